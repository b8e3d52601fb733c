package webhook

import (
	"encoding/json"
	"fmt"
	"strings"
)

type zapiPayload struct {
	Type       string `json:"type"`
	MessageID  string `json:"messageId"`
	Phone      string `json:"phone"`
	FromMe     bool   `json:"fromMe"`
	IsGroup    bool   `json:"isGroup"`
	SenderName string `json:"senderName"`
	Text       *struct {
		Message string `json:"message"`
	} `json:"text"`
	ButtonsResponseMessage *struct {
		Message string `json:"message"`
	} `json:"buttonsResponseMessage"`
	ListResponseMessage *struct {
		Title string `json:"title"`
	} `json:"listResponseMessage"`
}

func parseZAPI(body []byte) ([]Event, error) {
	var p zapiPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: zapi: %v", ErrUnparseable, err)
	}
	var text string
	switch {
	case p.Text != nil:
		text = p.Text.Message
	case p.ButtonsResponseMessage != nil:
		text = p.ButtonsResponseMessage.Message
	case p.ListResponseMessage != nil:
		text = p.ListResponseMessage.Title
	}
	return []Event{{
		MessageID:  p.MessageID,
		Phone:      p.Phone,
		Text:       text,
		SenderName: p.SenderName,
		IsSelfSent: p.FromMe,
		IsGroup:    p.IsGroup || strings.HasSuffix(p.Phone, "-group") || strings.HasSuffix(p.Phone, "@g.us"),
	}}, nil
}

type evolutionMessage struct {
	Key struct {
		RemoteJID string `json:"remoteJid"`
		FromMe    bool   `json:"fromMe"`
		ID        string `json:"id"`
	} `json:"key"`
	PushName string `json:"pushName"`
	Message  struct {
		Conversation        string `json:"conversation"`
		ExtendedTextMessage *struct {
			Text string `json:"text"`
		} `json:"extendedTextMessage"`
		ButtonsResponseMessage *struct {
			SelectedDisplayText string `json:"selectedDisplayText"`
		} `json:"buttonsResponseMessage"`
	} `json:"message"`
}

type evolutionPayload struct {
	Event    string          `json:"event"`
	Instance string          `json:"instance"`
	Data     json.RawMessage `json:"data"`
}

// parseEvolution accepts data as a single message or as a batch.
func parseEvolution(body []byte) ([]Event, error) {
	var p evolutionPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: evolution: %v", ErrUnparseable, err)
	}
	data := []byte(p.Data)
	var batch []evolutionMessage
	switch {
	case len(data) > 0 && data[0] == '[':
		if err := json.Unmarshal(data, &batch); err != nil {
			return nil, fmt.Errorf("%w: evolution data: %v", ErrUnparseable, err)
		}
	case len(data) > 0:
		var msg evolutionMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("%w: evolution data: %v", ErrUnparseable, err)
		}
		batch = append(batch, msg)
	}

	out := make([]Event, 0, len(batch))
	for _, msg := range batch {
		out = append(out, evolutionEvent(msg))
	}
	return out, nil
}

func evolutionEvent(msg evolutionMessage) Event {
	text := msg.Message.Conversation
	if text == "" && msg.Message.ExtendedTextMessage != nil {
		text = msg.Message.ExtendedTextMessage.Text
	}
	if text == "" && msg.Message.ButtonsResponseMessage != nil {
		text = msg.Message.ButtonsResponseMessage.SelectedDisplayText
	}
	user, server, _ := strings.Cut(msg.Key.RemoteJID, "@")
	return Event{
		MessageID:  msg.Key.ID,
		Phone:      user,
		Text:       text,
		SenderName: msg.PushName,
		IsSelfSent: msg.Key.FromMe,
		IsGroup:    server == "g.us",
	}
}

type metaPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				Contacts []struct {
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
					WaID string `json:"wa_id"`
				} `json:"contacts"`
				Messages []struct {
					From string `json:"from"`
					ID   string `json:"id"`
					Type string `json:"type"`
					Text *struct {
						Body string `json:"body"`
					} `json:"text"`
					Button *struct {
						Text string `json:"text"`
					} `json:"button"`
					Interactive *struct {
						ButtonReply *struct {
							Title string `json:"title"`
						} `json:"button_reply"`
					} `json:"interactive"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// parseMeta returns every inbound message of every change; Meta may batch
// several messages into one delivery.
func parseMeta(body []byte) ([]Event, error) {
	var p metaPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: meta: %v", ErrUnparseable, err)
	}
	var out []Event
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			names := make(map[string]string, len(change.Value.Contacts))
			for _, c := range change.Value.Contacts {
				names[c.WaID] = c.Profile.Name
			}
			for _, m := range change.Value.Messages {
				ev := Event{MessageID: m.ID, Phone: m.From, SenderName: names[m.From]}
				switch {
				case m.Text != nil:
					ev.Text = m.Text.Body
				case m.Button != nil:
					ev.Text = m.Button.Text
				case m.Interactive != nil && m.Interactive.ButtonReply != nil:
					ev.Text = m.Interactive.ButtonReply.Title
				}
				if ev.SenderName == "" && len(change.Value.Contacts) == 1 {
					ev.SenderName = change.Value.Contacts[0].Profile.Name
				}
				out = append(out, ev)
			}
		}
	}
	// Status-only callbacks carry no inbound message and yield nothing.
	return out, nil
}
