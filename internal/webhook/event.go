// Package webhook turns provider-specific inbound payloads into one canonical
// event. Nothing downstream of Normalize knows which provider sent it.
package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/clinic-messaging/internal/phone"
)

// Provider identifies an inbound payload shape.
type Provider string

const (
	ProviderZAPI      Provider = "zapi"
	ProviderEvolution Provider = "evolution"
	ProviderMeta      Provider = "meta"
)

var (
	// ErrUnparseable is returned when neither a phone nor a text can be extracted.
	ErrUnparseable = errors.New("webhook: payload has no phone or text")
	// ErrUnknownProvider is returned for a provider outside the closed set.
	ErrUnknownProvider = errors.New("webhook: unknown provider")
)

// Event is the canonical inbound message.
type Event struct {
	Provider   Provider
	MessageID  string
	Phone      string
	Text       string
	SenderName string
	IsSelfSent bool
	IsGroup    bool
	Raw        json.RawMessage
}

// Actionable reports whether the event is a direct inbound patient reply.
func (e Event) Actionable() bool {
	return !e.IsSelfSent && !e.IsGroup
}

// ParseProvider maps a path segment to a Provider.
func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderZAPI, ProviderEvolution, ProviderMeta:
		return p, nil
	case "z-api":
		return ProviderZAPI, nil
	case "evolution-api", "evolution_api":
		return ProviderEvolution, nil
	case "whatsapp_cloud", "cloud":
		return ProviderMeta, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, s)
	}
}

// Normalize decodes body according to provider and returns its first
// message. Use NormalizeAll for payloads that may batch several messages.
func Normalize(provider Provider, body []byte) (Event, error) {
	events, err := NormalizeAll(provider, body)
	if err != nil {
		return Event{}, err
	}
	return events[0], nil
}

// NormalizeAll decodes every message carried by body. Messages with neither
// phone nor text are dropped; when none remain ErrUnparseable is returned.
func NormalizeAll(provider Provider, body []byte) ([]Event, error) {
	var (
		parsed []Event
		err    error
	)
	switch provider {
	case ProviderZAPI:
		parsed, err = parseZAPI(body)
	case ProviderEvolution:
		parsed, err = parseEvolution(body)
	case ProviderMeta:
		parsed, err = parseMeta(body)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	if err != nil {
		return nil, err
	}

	raw := append(json.RawMessage(nil), body...)
	out := make([]Event, 0, len(parsed))
	for _, ev := range parsed {
		ev.Provider = provider
		ev.Raw = raw
		ev.Phone = phone.Digits(ev.Phone)
		ev.Text = strings.TrimSpace(ev.Text)
		if ev.Phone == "" && ev.Text == "" {
			continue
		}
		out = append(out, ev)
	}
	if len(out) == 0 {
		return nil, ErrUnparseable
	}
	return out, nil
}

// Detect guesses the provider from the payload's distinguishing fields.
func Detect(body []byte) (Provider, error) {
	var shape struct {
		Object     string          `json:"object"`
		Entry      json.RawMessage `json:"entry"`
		Event      string          `json:"event"`
		Data       json.RawMessage `json:"data"`
		Phone      *string         `json:"phone"`
		ZaapID     string          `json:"zaapId"`
		Type       string          `json:"type"`
		InstanceID json.RawMessage `json:"instanceId"`
	}
	if err := json.Unmarshal(body, &shape); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	switch {
	case shape.Object == "whatsapp_business_account" || len(shape.Entry) > 0:
		return ProviderMeta, nil
	case len(shape.Data) > 0 || strings.HasPrefix(strings.ToLower(shape.Event), "messages."):
		return ProviderEvolution, nil
	case shape.Phone != nil || shape.ZaapID != "" || strings.HasSuffix(shape.Type, "Callback") || len(shape.InstanceID) > 0:
		return ProviderZAPI, nil
	default:
		return "", ErrUnknownProvider
	}
}
