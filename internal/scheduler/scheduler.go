// Package scheduler runs the idempotent reminder, feedback and birthday jobs.
// Each job is a policy over the same loop: load the active template, select
// candidates, skip anything the delivery log already covers, render, send and
// append to the log.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wolfman30/clinic-messaging/internal/dispatch"
	"github.com/wolfman30/clinic-messaging/internal/messaging/templates"
	"github.com/wolfman30/clinic-messaging/internal/observability/metrics"
	"github.com/wolfman30/clinic-messaging/internal/phone"
	"github.com/wolfman30/clinic-messaging/internal/store"
	"github.com/wolfman30/clinic-messaging/pkg/logging"
)

const (
	JobReminder = "reminder"
	JobFeedback = "feedback"
	JobBirthday = "birthday"
)

// Store is the data-store contract shared by every policy.
type Store interface {
	ActiveTemplate(ctx context.Context, trigger store.TriggerType) (*store.Template, error)
	HasRecentDelivery(ctx context.Context, templateID, phone string, since time.Time) (bool, error)
	InsertDeliveryLog(ctx context.Context, log *store.DeliveryLog) error
	ReminderCandidates(ctx context.Context, from, to time.Time) ([]store.AppointmentContact, error)
	FeedbackCandidates(ctx context.Context, from, to time.Time) ([]store.AppointmentContact, error)
	BirthdayPatients(ctx context.Context, month, day int) ([]store.Patient, error)
}

// Sender is the single-message dispatch path.
type Sender interface {
	SendOne(ctx context.Context, to, body string) (dispatch.Result, error)
	GatewayName() string
}

var _ Sender = (*dispatch.Engine)(nil)

// Windows are the dedup lookbacks per job.
type Windows struct {
	Reminder time.Duration
	Feedback time.Duration
	Birthday time.Duration
}

// DefaultWindows mirror the config defaults.
var DefaultWindows = Windows{
	Reminder: 24 * time.Hour,
	Feedback: 24 * time.Hour,
	Birthday: 20 * time.Hour,
}

// Scheduler runs the trigger-based jobs.
type Scheduler struct {
	store    Store
	sender   Sender
	renderer templates.Renderer
	windows  Windows
	loc      *time.Location
	metrics  *metrics.MessagingMetrics
	logger   *logging.Logger
	now      func() time.Time
}

// New creates a scheduler. A nil location means UTC.
func New(s Store, sender Sender, loc *time.Location, logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		store:   s,
		sender:  sender,
		windows: DefaultWindows,
		loc:     loc,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *Scheduler) WithWindows(w Windows) *Scheduler {
	if w.Reminder > 0 {
		s.windows.Reminder = w.Reminder
	}
	if w.Feedback > 0 {
		s.windows.Feedback = w.Feedback
	}
	if w.Birthday > 0 {
		s.windows.Birthday = w.Birthday
	}
	return s
}

func (s *Scheduler) WithMetrics(m *metrics.MessagingMetrics) *Scheduler {
	s.metrics = m
	return s
}

func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	if now != nil {
		s.now = now
	}
	return s
}

// candidate is one recipient produced by a policy.
type candidate struct {
	phone         string
	appointmentID string
	vars          map[string]string
}

type policy struct {
	job      string
	trigger  store.TriggerType
	lookback time.Duration
	load     func(ctx context.Context, now time.Time) ([]candidate, error)
}

// Reminders notifies patients about appointments on the next calendar day.
func (s *Scheduler) Reminders(ctx context.Context) (dispatch.Summary, error) {
	return s.run(ctx, policy{
		job:      JobReminder,
		trigger:  store.TriggerAppointmentReminder,
		lookback: s.windows.Reminder,
		load: func(ctx context.Context, now time.Time) ([]candidate, error) {
			local := now.In(s.loc)
			from := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, s.loc)
			to := from.AddDate(0, 0, 1)
			appts, err := s.store.ReminderCandidates(ctx, from, to)
			if err != nil {
				return nil, err
			}
			return s.appointmentCandidates(appts), nil
		},
	})
}

// Feedback asks for feedback on appointments completed within the last day.
func (s *Scheduler) Feedback(ctx context.Context) (dispatch.Summary, error) {
	return s.run(ctx, policy{
		job:      JobFeedback,
		trigger:  store.TriggerPostAttendance,
		lookback: s.windows.Feedback,
		load: func(ctx context.Context, now time.Time) ([]candidate, error) {
			appts, err := s.store.FeedbackCandidates(ctx, now.Add(-24*time.Hour), now)
			if err != nil {
				return nil, err
			}
			return s.appointmentCandidates(appts), nil
		},
	})
}

// Birthdays greets patients whose birthday is today in the clinic timezone.
func (s *Scheduler) Birthdays(ctx context.Context) (dispatch.Summary, error) {
	return s.run(ctx, policy{
		job:      JobBirthday,
		trigger:  store.TriggerBirthday,
		lookback: s.windows.Birthday,
		load: func(ctx context.Context, now time.Time) ([]candidate, error) {
			local := now.In(s.loc)
			patients, err := s.store.BirthdayPatients(ctx, int(local.Month()), local.Day())
			if err != nil {
				return nil, err
			}
			out := make([]candidate, 0, len(patients))
			for _, p := range patients {
				out = append(out, candidate{
					phone: p.Phone,
					vars:  patientVars(p.Name),
				})
			}
			return out, nil
		},
	})
}

func (s *Scheduler) run(ctx context.Context, p policy) (dispatch.Summary, error) {
	summary := dispatch.NewSummary(p.job)
	summary.Gateway = s.sender.GatewayName()
	logger := s.logger.With("job", p.job, "gateway", summary.Gateway)
	began := time.Now()
	defer func() {
		s.metrics.ObserveJobDuration(p.job, time.Since(began).Seconds())
	}()
	start := s.now()

	tmpl, err := s.store.ActiveTemplate(ctx, p.trigger)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			logger.Info("no active template; nothing to send", "trigger", string(p.trigger))
			return summary, nil
		}
		return summary, fmt.Errorf("scheduler: %s: %w", p.job, err)
	}

	candidates, err := p.load(ctx, start)
	if err != nil {
		return summary, fmt.Errorf("scheduler: %s: %w", p.job, err)
	}
	since := start.Add(-p.lookback)
	if len(candidates) > 0 {
		if unfilled := unfilledPlaceholders(tmpl.Body, candidates[0].vars); len(unfilled) > 0 {
			logger.Warn("template placeholders not filled by this job; sent verbatim",
				"template_id", tmpl.ID,
				"placeholders", unfilled,
			)
		}
	}

	for _, c := range candidates {
		summary.Processed++
		s.deliver(ctx, logger, p, tmpl, c, since, &summary)
	}

	logger.Info("scheduler run finished",
		"processed", summary.Processed,
		"sent", summary.Sent,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
	)
	return summary, nil
}

func (s *Scheduler) deliver(ctx context.Context, logger *logging.Logger, p policy, tmpl *store.Template, c candidate, since time.Time, summary *dispatch.Summary) {
	canonical := phone.Canonical(c.phone)
	if canonical == "" {
		summary.Skipped++
		s.metrics.ObserveDispatch(p.job, "skipped", summary.Gateway)
		return
	}

	// Keyed by phone and template, not appointment: two same-day appointments
	// for one patient share a single notification.
	seen, err := s.store.HasRecentDelivery(ctx, tmpl.ID, canonical, since)
	if err != nil {
		summary.Failed++
		summary.AddError("%s: dedup check: %v", canonical, err)
		return
	}
	if seen {
		summary.Skipped++
		s.metrics.ObserveDispatch(p.job, "skipped", summary.Gateway)
		logger.Debug("already notified within window", "phone", canonical, "appointment_id", c.appointmentID)
		return
	}

	body, err := s.renderer.Render(tmpl.Name, tmpl.Body, c.vars)
	if err != nil {
		summary.Failed++
		summary.AddError("%s: %v", canonical, err)
		return
	}

	res, err := s.sender.SendOne(ctx, canonical, body)
	if err != nil {
		summary.Failed++
		summary.AddError("%s: %v", canonical, err)
		s.metrics.ObserveDispatch(p.job, "failed", summary.Gateway)
		logger.Warn("scheduled send failed", "phone", canonical, "appointment_id", c.appointmentID, "error", err)
		return
	}
	summary.Sent++
	outcome := "sent"
	if res.Simulated {
		outcome = "simulated"
	}
	s.metrics.ObserveDispatch(p.job, outcome, res.Gateway)

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	entry := &store.DeliveryLog{
		TemplateID:        tmpl.ID,
		Phone:             canonical,
		Content:           body,
		Status:            string(store.MessageSent),
		ProviderMessageID: res.MessageID,
		AppointmentID:     c.appointmentID,
		CreatedAt:         s.now().UTC(),
	}
	if err := s.store.InsertDeliveryLog(pctx, entry); err != nil {
		logger.Error("message sent but not logged",
			"phone", canonical,
			"provider_message_id", res.MessageID,
			"error", err,
			"at_least_once_risk", true,
		)
		summary.AddError("%s: sent as %s but not logged: %v", canonical, res.MessageID, err)
	}
}

func (s *Scheduler) appointmentCandidates(appts []store.AppointmentContact) []candidate {
	out := make([]candidate, 0, len(appts))
	for _, a := range appts {
		vars := patientVars(a.PatientName)
		start := a.StartTime.In(s.loc)
		vars["profissional"] = a.ProfessionalName
		vars["professional_name"] = a.ProfessionalName
		vars["data"] = start.Format("02/01/2006")
		vars["date"] = vars["data"]
		vars["hora"] = start.Format("15:04")
		vars["time"] = vars["hora"]
		out = append(out, candidate{
			phone:         a.PatientPhone,
			appointmentID: a.ID,
			vars:          vars,
		})
	}
	return out
}

func unfilledPlaceholders(body string, vars map[string]string) []string {
	var out []string
	for _, name := range templates.Placeholders(body) {
		if _, ok := vars[name]; !ok {
			out = append(out, name)
		}
	}
	return out
}

func patientVars(name string) map[string]string {
	first := name
	for i, r := range name {
		if r == ' ' {
			first = name[:i]
			break
		}
	}
	return map[string]string{
		"nome":         first,
		"first_name":   first,
		"paciente":     name,
		"patient_name": name,
	}
}
