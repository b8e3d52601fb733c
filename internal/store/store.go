// Package store implements the data-store contracts the messaging pipeline
// reads and writes: appointments, patients, templates, delivery logs,
// campaign messages and campaigns.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("store: not found")

// ErrAmbiguous is returned when a fuzzy lookup matches more than one row.
var ErrAmbiguous = errors.New("store: ambiguous match")

// ErrNotPending is returned when a guarded status update finds the message
// already moved out of pending by another run.
var ErrNotPending = errors.New("store: message no longer pending")

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store provides the pipeline's reads and writes over Postgres.
type Store struct {
	db  DB
	now func() time.Time
}

// NewStore creates a store over a pgx pool or transaction.
func NewStore(db DB) *Store {
	return &Store{db: db, now: time.Now}
}

// MessageStatus is the lifecycle of a campaign message.
type MessageStatus string

const (
	MessagePending MessageStatus = "pending"
	MessageSent    MessageStatus = "sent"
	MessageFailed  MessageStatus = "failed"
)

// CampaignStatus values are stored verbatim in campaigns.status.
type CampaignStatus string

const (
	CampaignRunning  CampaignStatus = "running"
	CampaignComplete CampaignStatus = "Concluído"
	CampaignFailed   CampaignStatus = "Falhou"
)

// TriggerType selects which template a scheduler uses.
type TriggerType string

const (
	TriggerAppointmentConfirmation TriggerType = "appointment_confirmation"
	TriggerAppointmentReminder     TriggerType = "appointment_reminder"
	TriggerPostAttendance          TriggerType = "post_attendance"
	TriggerBirthday                TriggerType = "birthday"
)

// AppointmentStatus mirrors appointments.status.
type AppointmentStatus string

const (
	AppointmentScheduled  AppointmentStatus = "scheduled"
	AppointmentConfirmed  AppointmentStatus = "confirmed"
	AppointmentCompleted  AppointmentStatus = "completed"
	AppointmentCancelled  AppointmentStatus = "cancelled"
	AppointmentInProgress AppointmentStatus = "in_progress"
)

// OutboundMessage is one campaign recipient row.
type OutboundMessage struct {
	ID                string
	CampaignID        string
	Phone             string
	Body              string
	Status            MessageStatus
	SentAt            *time.Time
	ProviderMessageID string
}

// StatusCounts tallies a campaign's messages by status.
type StatusCounts struct {
	Pending int
	Sent    int
	Failed  int
}

// Total returns the number of counted messages.
func (c StatusCounts) Total() int { return c.Pending + c.Sent + c.Failed }

// Template is an active message template.
type Template struct {
	ID          string
	Name        string
	TriggerType TriggerType
	Body        string
	Active      bool
}

// Patient is the subset of patient fields the pipeline needs.
type Patient struct {
	ID    string
	Name  string
	Phone string
}

// Appointment is the subset of appointment fields the pipeline needs.
type Appointment struct {
	ID             string
	PatientID      string
	ProfessionalID string
	StartTime      time.Time
	EndTime        time.Time
	Status         AppointmentStatus
}

// AppointmentContact joins an appointment with the names and phone needed to
// render a notification.
type AppointmentContact struct {
	Appointment
	PatientName      string
	PatientPhone     string
	ProfessionalName string
}

// DeliveryLog is one row of message_logs, the scheduler dedup ledger.
type DeliveryLog struct {
	ID                string
	TemplateID        string
	Phone             string
	Content           string
	Status            string
	ProviderMessageID string
	AppointmentID     string
	CreatedAt         time.Time
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
