package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// unconfirmableStatuses can never be moved to confirmed by an inbound reply.
var unconfirmableStatuses = []string{
	string(AppointmentCancelled),
	string(AppointmentCompleted),
	string(AppointmentConfirmed),
}

const appointmentContactColumns = `
	SELECT a.id, a.patient_id, COALESCE(a.professional_id::text, ''), a.start_time, a.end_time, a.status,
		COALESCE(p.name, ''), COALESCE(p.phone, ''), COALESCE(pr.name, '')
	FROM appointments a
	JOIN patients p ON p.id = a.patient_id
	LEFT JOIN professionals pr ON pr.id = a.professional_id`

// ReminderCandidates lists appointments starting in [from, to) that still
// need a reminder: anything not cancelled, confirmed or completed.
func (s *Store) ReminderCandidates(ctx context.Context, from, to time.Time) ([]AppointmentContact, error) {
	rows, err := s.db.Query(ctx, appointmentContactColumns+`
	WHERE a.start_time >= $1 AND a.start_time < $2 AND a.status <> ALL($3)
	ORDER BY a.start_time ASC`, from, to, unconfirmableStatuses)
	if err != nil {
		return nil, fmt.Errorf("store: reminder candidates: %w", err)
	}
	defer rows.Close()
	return scanAppointmentContacts(rows)
}

// FeedbackCandidates lists completed appointments that ended in [from, to].
func (s *Store) FeedbackCandidates(ctx context.Context, from, to time.Time) ([]AppointmentContact, error) {
	rows, err := s.db.Query(ctx, appointmentContactColumns+`
	WHERE a.status = 'completed' AND a.end_time >= $1 AND a.end_time <= $2
	ORDER BY a.end_time ASC`, from, to)
	if err != nil {
		return nil, fmt.Errorf("store: feedback candidates: %w", err)
	}
	defer rows.Close()
	return scanAppointmentContacts(rows)
}

// NextConfirmableAppointment returns the patient's earliest appointment after
// now whose status still allows confirmation.
func (s *Store) NextConfirmableAppointment(ctx context.Context, patientID string, now time.Time) (*Appointment, error) {
	var a Appointment
	var status string
	err := s.db.QueryRow(ctx, `
		SELECT id, patient_id, COALESCE(professional_id::text, ''), start_time, end_time, status
		FROM appointments
		WHERE patient_id = $1 AND start_time > $2 AND status <> ALL($3)
		ORDER BY start_time ASC
		LIMIT 1`, patientID, now, unconfirmableStatuses).
		Scan(&a.ID, &a.PatientID, &a.ProfessionalID, &a.StartTime, &a.EndTime, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: next confirmable appointment: %w", err)
	}
	a.Status = AppointmentStatus(status)
	return &a, nil
}

// ConfirmAppointment moves a future, confirmable appointment to confirmed.
// It returns false when the row no longer qualifies, e.g. a concurrent
// webhook confirmed it first.
func (s *Store) ConfirmAppointment(ctx context.Context, id string, now time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments
		SET status = 'confirmed', updated_at = now()
		WHERE id = $1 AND start_time > $2 AND status <> ALL($3)`, id, now, unconfirmableStatuses)
	if err != nil {
		return false, fmt.Errorf("store: confirm appointment: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanAppointmentContacts(rows pgx.Rows) ([]AppointmentContact, error) {
	var out []AppointmentContact
	for rows.Next() {
		var c AppointmentContact
		var status string
		if err := rows.Scan(
			&c.ID, &c.PatientID, &c.ProfessionalID, &c.StartTime, &c.EndTime, &status,
			&c.PatientName, &c.PatientPhone, &c.ProfessionalName,
		); err != nil {
			return nil, fmt.Errorf("store: scan appointment: %w", err)
		}
		c.Status = AppointmentStatus(status)
		out = append(out, c)
	}
	return out, rows.Err()
}
