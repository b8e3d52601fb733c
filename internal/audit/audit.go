// Package audit records inbound confirmation replies and how each was
// resolved, matched or not.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Outcome classifies how an inbound event was handled.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeIgnored Outcome = "ignored"
	OutcomeError   Outcome = "error"
)

// Entry is one immutable row of webhook_audit_logs.
type Entry struct {
	ID            string
	Provider      string
	Outcome       Outcome
	Reason        string
	Phone         string
	Text          string
	Candidates    []string
	PatientID     string
	AppointmentID string
	Payload       json.RawMessage
	CreatedAt     time.Time
}

// Recorder is the append-only sink the confirmation pipeline writes to.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}

// Log persists entries to Postgres through database/sql.
type Log struct {
	db *sql.DB
}

var _ Recorder = (*Log)(nil)

// NewLog creates a webhook audit log.
func NewLog(db *sql.DB) *Log {
	return &Log{db: db}
}

// Record appends an entry.
func (l *Log) Record(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	payload := entry.Payload
	if len(payload) == 0 || !json.Valid(payload) {
		wrapped, _ := json.Marshal(map[string]string{"raw": string(entry.Payload)})
		payload = wrapped
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO webhook_audit_logs (
			id, provider, outcome, reason, phone, message_text,
			phone_candidates, patient_id, appointment_id, payload, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		entry.ID,
		entry.Provider,
		string(entry.Outcome),
		nullString(entry.Reason),
		nullString(entry.Phone),
		nullString(entry.Text),
		pq.Array(entry.Candidates),
		nullString(entry.PatientID),
		nullString(entry.AppointmentID),
		[]byte(payload),
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: failed to record webhook event: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
