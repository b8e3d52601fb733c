package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wolfman30/clinic-messaging/internal/store"
)

type sentMessage struct {
	phone string
	body  string
}

type fakeGateway struct {
	mu    sync.Mutex
	name  string
	err   error
	sent  []sentMessage
	nextN int
}

func (g *fakeGateway) Name() string { return g.name }

func (g *fakeGateway) Send(_ context.Context, phone, body string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, sentMessage{phone: phone, body: body})
	if g.err != nil {
		return "", g.err
	}
	g.nextN++
	return g.name + "-id", nil
}

type memoryCampaignStore struct {
	messages  []store.OutboundMessage
	campaigns map[string]store.CampaignStatus
	failMark  bool
	writes    int
	// sentElsewhere marks messages another run records as sent between
	// this run's load and its status update.
	sentElsewhere map[string]bool
}

func newMemoryCampaignStore(msgs ...store.OutboundMessage) *memoryCampaignStore {
	for i := range msgs {
		if msgs[i].Status == "" {
			msgs[i].Status = store.MessagePending
		}
	}
	return &memoryCampaignStore{messages: msgs, campaigns: map[string]store.CampaignStatus{}}
}

func (s *memoryCampaignStore) PendingMessages(_ context.Context, limit int) ([]store.OutboundMessage, error) {
	var out []store.OutboundMessage
	for _, m := range s.messages {
		if m.Status == store.MessagePending && len(out) < limit {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memoryCampaignStore) MarkMessageSent(_ context.Context, id, providerID string, sentAt time.Time) error {
	if s.failMark {
		return errors.New("db unavailable")
	}
	s.applyConcurrentSends(id)
	for i := range s.messages {
		if s.messages[i].ID == id && s.messages[i].Status == store.MessagePending {
			s.messages[i].Status = store.MessageSent
			s.messages[i].ProviderMessageID = providerID
			s.messages[i].SentAt = &sentAt
			return nil
		}
	}
	return store.ErrNotPending
}

func (s *memoryCampaignStore) MarkMessageFailed(_ context.Context, id, _ string) error {
	if s.failMark {
		return errors.New("db unavailable")
	}
	s.applyConcurrentSends(id)
	for i := range s.messages {
		if s.messages[i].ID == id && s.messages[i].Status == store.MessagePending {
			s.messages[i].Status = store.MessageFailed
			return nil
		}
	}
	return store.ErrNotPending
}

func (s *memoryCampaignStore) applyConcurrentSends(id string) {
	if !s.sentElsewhere[id] {
		return
	}
	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages[i].Status = store.MessageSent
		}
	}
}

func (s *memoryCampaignStore) CampaignStatusCounts(_ context.Context, campaignID string) (store.StatusCounts, error) {
	var c store.StatusCounts
	for _, m := range s.messages {
		if m.CampaignID != campaignID {
			continue
		}
		switch m.Status {
		case store.MessagePending:
			c.Pending++
		case store.MessageSent:
			c.Sent++
		case store.MessageFailed:
			c.Failed++
		}
	}
	return c, nil
}

func (s *memoryCampaignStore) SetCampaignStatus(_ context.Context, campaignID string, status store.CampaignStatus) error {
	if s.campaigns[campaignID] != status {
		s.writes++
	}
	s.campaigns[campaignID] = status
	return nil
}

func (s *memoryCampaignStore) status(id string) store.MessageStatus {
	for _, m := range s.messages {
		if m.ID == id {
			return m.Status
		}
	}
	return ""
}
