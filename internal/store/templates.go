package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ActiveTemplate returns the most recently updated active template for a trigger.
func (s *Store) ActiveTemplate(ctx context.Context, trigger TriggerType) (*Template, error) {
	var t Template
	var triggerType string
	err := s.db.QueryRow(ctx, `
		SELECT id, name, trigger_type, content, is_active
		FROM message_templates
		WHERE trigger_type = $1 AND is_active = true
		ORDER BY updated_at DESC
		LIMIT 1`, string(trigger)).Scan(&t.ID, &t.Name, &triggerType, &t.Body, &t.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: active template: %w", err)
	}
	t.TriggerType = TriggerType(triggerType)
	return &t, nil
}

// HasRecentDelivery reports whether message_logs already holds a row for the
// template and phone created at or after since.
func (s *Store) HasRecentDelivery(ctx context.Context, templateID, phone string, since time.Time) (bool, error) {
	var exists int
	err := s.db.QueryRow(ctx, `
		SELECT 1 FROM message_logs
		WHERE template_id = $1 AND phone = $2 AND created_at >= $3
		LIMIT 1`, templateID, phone, since).Scan(&exists)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("store: check delivery log: %w", err)
	}
	return true, nil
}

// InsertDeliveryLog appends a row to message_logs.
func (s *Store) InsertDeliveryLog(ctx context.Context, log *DeliveryLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = s.now().UTC()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO message_logs (id, template_id, phone, content, status, provider_message_id, appointment_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		log.ID, log.TemplateID, log.Phone, log.Content, log.Status,
		nullable(log.ProviderMessageID), nullable(log.AppointmentID), log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: insert delivery log: %w", err)
	}
	return nil
}
