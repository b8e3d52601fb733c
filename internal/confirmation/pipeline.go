// Package confirmation turns an inbound patient reply into an appointment
// confirmation. Replaying the same reply never confirms twice: once an
// appointment is confirmed it is excluded from the lookup and from the
// guarded update.
package confirmation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-messaging/internal/audit"
	"github.com/wolfman30/clinic-messaging/internal/intent"
	"github.com/wolfman30/clinic-messaging/internal/phone"
	"github.com/wolfman30/clinic-messaging/internal/store"
	"github.com/wolfman30/clinic-messaging/internal/webhook"
	"github.com/wolfman30/clinic-messaging/pkg/logging"
)

var tracer = otel.Tracer("clinic.internal.confirmation")

// Reasons reported alongside an ignored outcome.
const (
	ReasonSelfSent             = "self_sent"
	ReasonGroupMessage         = "group_message"
	ReasonNotConfirmation      = "not_confirmation"
	ReasonPatientNotFound      = "patient_not_found"
	ReasonAmbiguousPhone       = "ambiguous_phone"
	ReasonNoPendingAppointment = "no_pending_appointment"
	ReasonDuplicateDelivery    = "duplicate_delivery"
)

// Store is the data-store contract the pipeline needs.
type Store interface {
	FindPatientByPhone(ctx context.Context, candidates []string, suffix string) (*store.Patient, error)
	NextConfirmableAppointment(ctx context.Context, patientID string, now time.Time) (*store.Appointment, error)
	ConfirmAppointment(ctx context.Context, id string, now time.Time) (bool, error)
}

var _ Store = (*store.Store)(nil)

// Result is the pipeline's verdict for one event.
type Result struct {
	Outcome       audit.Outcome
	Reason        string
	PatientID     string
	AppointmentID string
}

// Pipeline classifies, matches and confirms.
type Pipeline struct {
	store      Store
	recorder   audit.Recorder
	classifier *intent.Classifier
	logger     *logging.Logger
	now        func() time.Time
}

// New creates a pipeline. recorder may be nil to skip auditing.
func New(s Store, recorder audit.Recorder, classifier *intent.Classifier, logger *logging.Logger) *Pipeline {
	if logger == nil {
		logger = logging.Default()
	}
	return &Pipeline{store: s, recorder: recorder, classifier: classifier, logger: logger, now: time.Now}
}

// WithClock overrides the time source used to decide which appointments are in the future.
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	if now != nil {
		p.now = now
	}
	return p
}

// Handle processes one canonical event. Unmatched events are not errors; an
// error is returned only when the data store fails.
func (p *Pipeline) Handle(ctx context.Context, ev webhook.Event) (Result, error) {
	ctx, span := tracer.Start(ctx, "confirmation.handle")
	defer span.End()
	span.SetAttributes(attribute.String("provider", string(ev.Provider)))

	switch {
	case ev.IsSelfSent:
		return ignored(ReasonSelfSent), nil
	case ev.IsGroup:
		return ignored(ReasonGroupMessage), nil
	case !p.classifier.IsConfirmation(ev.Text):
		return ignored(ReasonNotConfirmation), nil
	}

	logger := p.logger.With("provider", string(ev.Provider), "phone", ev.Phone, "message_id", ev.MessageID)
	candidates := phone.Candidates(ev.Phone)
	entry := audit.Entry{
		Provider:   string(ev.Provider),
		Phone:      ev.Phone,
		Text:       ev.Text,
		Candidates: candidates,
		Payload:    ev.Raw,
	}

	// Too few digits to identify anyone; an empty or partial number must not
	// match patients stored without a phone or sharing a short suffix.
	if len(phone.Digits(ev.Phone)) < phone.SuffixLength {
		logger.Info("confirmation ignored: sender phone too short to match")
		return p.finish(ctx, logger, entry, ignored(ReasonPatientNotFound)), nil
	}

	patient, err := p.store.FindPatientByPhone(ctx, candidates, phone.Suffix(ev.Phone))
	switch {
	case errors.Is(err, store.ErrNotFound):
		logger.Info("confirmation ignored: patient not found")
		return p.finish(ctx, logger, entry, ignored(ReasonPatientNotFound)), nil
	case errors.Is(err, store.ErrAmbiguous):
		logger.Warn("confirmation ignored: phone matches several patients")
		return p.finish(ctx, logger, entry, ignored(ReasonAmbiguousPhone)), nil
	case err != nil:
		span.RecordError(err)
		p.finish(ctx, logger, entry, Result{Outcome: audit.OutcomeError, Reason: "patient_lookup_failed"})
		return Result{}, fmt.Errorf("confirmation: %w", err)
	}
	entry.PatientID = patient.ID

	now := p.now()
	appt, err := p.store.NextConfirmableAppointment(ctx, patient.ID, now)
	switch {
	case errors.Is(err, store.ErrNotFound):
		logger.Info("confirmation ignored: no pending appointment", "patient_id", patient.ID)
		res := ignored(ReasonNoPendingAppointment)
		res.PatientID = patient.ID
		return p.finish(ctx, logger, entry, res), nil
	case err != nil:
		span.RecordError(err)
		p.finish(ctx, logger, entry, Result{Outcome: audit.OutcomeError, Reason: "appointment_lookup_failed", PatientID: patient.ID})
		return Result{}, fmt.Errorf("confirmation: %w", err)
	}
	entry.AppointmentID = appt.ID

	confirmed, err := p.store.ConfirmAppointment(ctx, appt.ID, now)
	if err != nil {
		span.RecordError(err)
		p.finish(ctx, logger, entry, Result{Outcome: audit.OutcomeError, Reason: "confirm_failed", PatientID: patient.ID, AppointmentID: appt.ID})
		return Result{}, fmt.Errorf("confirmation: %w", err)
	}
	if !confirmed {
		// Another delivery confirmed it between the lookup and the update.
		res := ignored(ReasonNoPendingAppointment)
		res.PatientID = patient.ID
		entry.AppointmentID = ""
		return p.finish(ctx, logger, entry, res), nil
	}

	logger.Info("appointment confirmed", "patient_id", patient.ID, "appointment_id", appt.ID)
	return p.finish(ctx, logger, entry, Result{
		Outcome:       audit.OutcomeSuccess,
		PatientID:     patient.ID,
		AppointmentID: appt.ID,
	}), nil
}

// finish appends the audit entry. Audit failures are logged, never returned.
func (p *Pipeline) finish(ctx context.Context, logger *logging.Logger, entry audit.Entry, res Result) Result {
	if p.recorder == nil {
		return res
	}
	entry.Outcome = res.Outcome
	entry.Reason = res.Reason
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := p.recorder.Record(actx, entry); err != nil {
		logger.Error("failed to record webhook audit entry", "error", err, "outcome", string(res.Outcome))
	}
	return res
}

func ignored(reason string) Result {
	return Result{Outcome: audit.OutcomeIgnored, Reason: reason}
}
