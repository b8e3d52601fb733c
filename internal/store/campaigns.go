package store

import (
	"context"
	"fmt"
	"time"
)

// PendingMessages returns up to limit pending campaign messages, oldest first.
func (s *Store) PendingMessages(ctx context.Context, limit int) ([]OutboundMessage, error) {
	if limit <= 0 {
		limit = 6
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, campaign_id, phone, content
		FROM campaign_messages
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: pending messages: %w", err)
	}
	defer rows.Close()

	var out []OutboundMessage
	for rows.Next() {
		m := OutboundMessage{Status: MessagePending}
		if err := rows.Scan(&m.ID, &m.CampaignID, &m.Phone, &m.Body); err != nil {
			return nil, fmt.Errorf("store: scan pending message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// MarkMessageSent moves a pending message to sent. It returns ErrNotPending
// when the message had already left pending.
func (s *Store) MarkMessageSent(ctx context.Context, id, providerMessageID string, sentAt time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE campaign_messages
		SET status = 'sent', sent_at = $2, provider_message_id = $3, error_message = NULL
		WHERE id = $1 AND status = 'pending'`, id, sentAt, providerMessageID)
	if err != nil {
		return fmt.Errorf("store: mark message sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("store: mark message %s sent: %w", id, ErrNotPending)
	}
	return nil
}

// MarkMessageFailed moves a pending message to failed. It returns
// ErrNotPending when the message had already left pending.
func (s *Store) MarkMessageFailed(ctx context.Context, id, reason string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE campaign_messages
		SET status = 'failed', error_message = $2
		WHERE id = $1 AND status = 'pending'`, id, reason)
	if err != nil {
		return fmt.Errorf("store: mark message failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("store: mark message %s failed: %w", id, ErrNotPending)
	}
	return nil
}

// CampaignStatusCounts tallies every message of a campaign by status.
func (s *Store) CampaignStatusCounts(ctx context.Context, campaignID string) (StatusCounts, error) {
	rows, err := s.db.Query(ctx, `
		SELECT status, COUNT(*)
		FROM campaign_messages
		WHERE campaign_id = $1
		GROUP BY status`, campaignID)
	if err != nil {
		return StatusCounts{}, fmt.Errorf("store: campaign status counts: %w", err)
	}
	defer rows.Close()

	var counts StatusCounts
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return StatusCounts{}, fmt.Errorf("store: scan status count: %w", err)
		}
		switch MessageStatus(status) {
		case MessagePending:
			counts.Pending += int(n)
		case MessageSent:
			counts.Sent += int(n)
		case MessageFailed:
			counts.Failed += int(n)
		}
	}
	return counts, rows.Err()
}

// SetCampaignStatus writes a derived status. Rewriting the same status is a no-op.
func (s *Store) SetCampaignStatus(ctx context.Context, campaignID string, status CampaignStatus) error {
	_, err := s.db.Exec(ctx, `
		UPDATE campaigns
		SET status = $2, completed_at = now(), updated_at = now()
		WHERE id = $1 AND status IS DISTINCT FROM $2`, campaignID, string(status))
	if err != nil {
		return fmt.Errorf("store: set campaign status: %w", err)
	}
	return nil
}
