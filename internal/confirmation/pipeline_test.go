package confirmation

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-messaging/internal/audit"
	"github.com/wolfman30/clinic-messaging/internal/config"
	"github.com/wolfman30/clinic-messaging/internal/intent"
	"github.com/wolfman30/clinic-messaging/internal/phone"
	"github.com/wolfman30/clinic-messaging/internal/store"
	"github.com/wolfman30/clinic-messaging/internal/webhook"
)

type memoryStore struct {
	patients     []store.Patient
	appointments []store.Appointment
	lookups      int
	lookupErr    error
}

func (m *memoryStore) FindPatientByPhone(_ context.Context, candidates []string, suffix string) (*store.Patient, error) {
	m.lookups++
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	for _, p := range m.patients {
		for _, c := range candidates {
			if p.Phone == c {
				p := p
				return &p, nil
			}
		}
	}
	var matches []store.Patient
	for _, p := range m.patients {
		if strings.HasSuffix(phone.Digits(p.Phone), suffix) {
			matches = append(matches, p)
		}
	}
	switch len(matches) {
	case 0:
		return nil, store.ErrNotFound
	case 1:
		return &matches[0], nil
	default:
		return nil, store.ErrAmbiguous
	}
}

func confirmable(a store.Appointment, now time.Time) bool {
	if !a.StartTime.After(now) {
		return false
	}
	switch a.Status {
	case store.AppointmentCancelled, store.AppointmentCompleted, store.AppointmentConfirmed:
		return false
	}
	return true
}

func (m *memoryStore) NextConfirmableAppointment(_ context.Context, patientID string, now time.Time) (*store.Appointment, error) {
	var found []store.Appointment
	for _, a := range m.appointments {
		if a.PatientID == patientID && confirmable(a, now) {
			found = append(found, a)
		}
	}
	if len(found) == 0 {
		return nil, store.ErrNotFound
	}
	sort.Slice(found, func(i, j int) bool { return found[i].StartTime.Before(found[j].StartTime) })
	return &found[0], nil
}

func (m *memoryStore) ConfirmAppointment(_ context.Context, id string, now time.Time) (bool, error) {
	for i := range m.appointments {
		if m.appointments[i].ID == id && confirmable(m.appointments[i], now) {
			m.appointments[i].Status = store.AppointmentConfirmed
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryStore) status(id string) store.AppointmentStatus {
	for _, a := range m.appointments {
		if a.ID == id {
			return a.Status
		}
	}
	return ""
}

type memoryRecorder struct {
	entries []audit.Entry
	err     error
}

func (r *memoryRecorder) Record(_ context.Context, e audit.Entry) error {
	r.entries = append(r.entries, e)
	return r.err
}

func (r *memoryRecorder) count(outcome audit.Outcome) int {
	n := 0
	for _, e := range r.entries {
		if e.Outcome == outcome {
			n++
		}
	}
	return n
}

var fixedNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func newPipeline(st *memoryStore, rec *memoryRecorder) *Pipeline {
	classifier := intent.New(intent.Config{Keywords: config.DefaultConfirmKeywords, MaxFuzzyLength: 30})
	return New(st, rec, classifier, nil).WithClock(func() time.Time { return fixedNow })
}

func fixture() *memoryStore {
	return &memoryStore{
		patients: []store.Patient{{ID: "p1", Name: "Ana", Phone: "(11) 98765-4321"}},
		appointments: []store.Appointment{
			{ID: "past", PatientID: "p1", StartTime: fixedNow.Add(-48 * time.Hour), Status: store.AppointmentScheduled},
			{ID: "cancelled", PatientID: "p1", StartTime: fixedNow.Add(2 * time.Hour), Status: store.AppointmentCancelled},
			{ID: "later", PatientID: "p1", StartTime: fixedNow.Add(72 * time.Hour), Status: store.AppointmentScheduled},
			{ID: "next", PatientID: "p1", StartTime: fixedNow.Add(24 * time.Hour), Status: store.AppointmentScheduled},
		},
	}
}

const evolutionSim = `{"event":"messages.upsert","data":{"key":{"remoteJid":"5511987654321@s.whatsapp.net","fromMe":false,"id":"BAE5F1"},"message":{"conversation":"Sim"}}}`

func TestHandleConfirmsEarliestFutureAppointment(t *testing.T) {
	st := fixture()
	rec := &memoryRecorder{}
	ev, err := webhook.Normalize(webhook.ProviderEvolution, []byte(evolutionSim))
	require.NoError(t, err)

	res, err := newPipeline(st, rec).Handle(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, audit.OutcomeSuccess, res.Outcome)
	assert.Equal(t, "next", res.AppointmentID)
	assert.Equal(t, store.AppointmentConfirmed, st.status("next"))
	assert.Equal(t, store.AppointmentScheduled, st.status("later"))
	assert.Equal(t, store.AppointmentCancelled, st.status("cancelled"))
	assert.Equal(t, store.AppointmentScheduled, st.status("past"))

	require.Len(t, rec.entries, 1)
	assert.Equal(t, "p1", rec.entries[0].PatientID)
	assert.Equal(t, "next", rec.entries[0].AppointmentID)
	assert.JSONEq(t, evolutionSim, string(rec.entries[0].Payload))
	assert.Contains(t, rec.entries[0].Candidates, "11987654321")
}

func TestHandleReplayIsOneWay(t *testing.T) {
	st := &memoryStore{
		patients:     []store.Patient{{ID: "p1", Phone: "5511987654321"}},
		appointments: []store.Appointment{{ID: "a1", PatientID: "p1", StartTime: fixedNow.Add(24 * time.Hour), Status: store.AppointmentScheduled}},
	}
	rec := &memoryRecorder{}
	p := newPipeline(st, rec)
	ev, err := webhook.Normalize(webhook.ProviderEvolution, []byte(evolutionSim))
	require.NoError(t, err)

	first, err := p.Handle(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, audit.OutcomeSuccess, first.Outcome)

	for i := 0; i < 3; i++ {
		again, err := p.Handle(context.Background(), ev)
		require.NoError(t, err)
		assert.Equal(t, audit.OutcomeIgnored, again.Outcome)
		assert.Equal(t, ReasonNoPendingAppointment, again.Reason)
	}
	assert.Equal(t, store.AppointmentConfirmed, st.status("a1"))
	assert.Equal(t, 1, rec.count(audit.OutcomeSuccess))
	assert.Equal(t, 3, rec.count(audit.OutcomeIgnored))
}

func TestHandleSelfSentSkipsLookup(t *testing.T) {
	st := fixture()
	rec := &memoryRecorder{}
	body := `{"event":"messages.upsert","data":{"key":{"remoteJid":"5511987654321@s.whatsapp.net","fromMe":true,"id":"X"},"message":{"conversation":"sim"}}}`
	ev, err := webhook.Normalize(webhook.ProviderEvolution, []byte(body))
	require.NoError(t, err)

	res, err := newPipeline(st, rec).Handle(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, audit.OutcomeIgnored, res.Outcome)
	assert.Equal(t, ReasonSelfSent, res.Reason)
	assert.Zero(t, st.lookups)
	assert.Empty(t, rec.entries)
}

func TestHandleEarlyRejections(t *testing.T) {
	tests := []struct {
		name   string
		event  webhook.Event
		reason string
	}{
		{name: "group", event: webhook.Event{Phone: "5511987654321", Text: "sim", IsGroup: true}, reason: ReasonGroupMessage},
		{name: "declined", event: webhook.Event{Phone: "5511987654321", Text: "Não, prefiro outro horário"}, reason: ReasonNotConfirmation},
		{name: "empty text", event: webhook.Event{Phone: "5511987654321"}, reason: ReasonNotConfirmation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := fixture()
			res, err := newPipeline(st, &memoryRecorder{}).Handle(context.Background(), tt.event)
			require.NoError(t, err)
			assert.Equal(t, tt.reason, res.Reason)
			assert.Zero(t, st.lookups)
		})
	}
}

func TestHandleUnmatched(t *testing.T) {
	t.Run("patient not found", func(t *testing.T) {
		rec := &memoryRecorder{}
		res, err := newPipeline(fixture(), rec).Handle(context.Background(), webhook.Event{Phone: "5521900001111", Text: "ok"})
		require.NoError(t, err)
		assert.Equal(t, ReasonPatientNotFound, res.Reason)
		require.Len(t, rec.entries, 1)
		assert.Equal(t, audit.OutcomeIgnored, rec.entries[0].Outcome)
	})

	t.Run("ambiguous suffix", func(t *testing.T) {
		st := &memoryStore{patients: []store.Patient{
			{ID: "p1", Phone: "+55 11 98765-4321"},
			{ID: "p2", Phone: "+55 21 98765-4321"},
		}}
		res, err := newPipeline(st, &memoryRecorder{}).Handle(context.Background(), webhook.Event{Phone: "5531987654321", Text: "sim"})
		require.NoError(t, err)
		assert.Equal(t, ReasonAmbiguousPhone, res.Reason)
	})

	t.Run("suffix fallback matches legacy format", func(t *testing.T) {
		st := &memoryStore{
			patients:     []store.Patient{{ID: "p1", Phone: "01198765-4321"}},
			appointments: []store.Appointment{{ID: "a1", PatientID: "p1", StartTime: fixedNow.Add(time.Hour), Status: store.AppointmentInProgress}},
		}
		res, err := newPipeline(st, &memoryRecorder{}).Handle(context.Background(), webhook.Event{Phone: "5511987654321", Text: "confirmo"})
		require.NoError(t, err)
		assert.Equal(t, audit.OutcomeSuccess, res.Outcome)
	})
}

func TestHandleStoreFailure(t *testing.T) {
	st := fixture()
	st.lookupErr = errors.New("connection refused")
	rec := &memoryRecorder{}

	_, err := newPipeline(st, rec).Handle(context.Background(), webhook.Event{Phone: "5511987654321", Text: "sim"})
	require.Error(t, err)
	require.Len(t, rec.entries, 1)
	assert.Equal(t, audit.OutcomeError, rec.entries[0].Outcome)
}

func TestHandleAuditFailureDoesNotChangeOutcome(t *testing.T) {
	st := fixture()
	rec := &memoryRecorder{err: errors.New("audit table missing")}

	res, err := newPipeline(st, rec).Handle(context.Background(), webhook.Event{Phone: "5511987654321", Text: "sim"})
	require.NoError(t, err)
	assert.Equal(t, audit.OutcomeSuccess, res.Outcome)
}

func TestHandleEmptyOrShortPhoneNeverMatches(t *testing.T) {
	for _, raw := range []string{"", "21", "8765432"} {
		t.Run("phone="+raw, func(t *testing.T) {
			st := fixture()
			st.patients = append(st.patients, store.Patient{ID: "p-nophone", Name: "Sem Telefone", Phone: ""})
			st.appointments = append(st.appointments, store.Appointment{
				ID: "a-other", PatientID: "p-nophone", StartTime: fixedNow.Add(3 * time.Hour), Status: store.AppointmentScheduled,
			})
			rec := &memoryRecorder{}
			body := `{"phone":"` + raw + `","messageId":"Z9","text":{"message":"sim"}}`
			ev, err := webhook.Normalize(webhook.ProviderZAPI, []byte(body))
			require.NoError(t, err)

			res, err := newPipeline(st, rec).Handle(context.Background(), ev)
			require.NoError(t, err)
			assert.Equal(t, audit.OutcomeIgnored, res.Outcome)
			assert.Equal(t, ReasonPatientNotFound, res.Reason)
			assert.Zero(t, st.lookups)
			assert.Equal(t, store.AppointmentScheduled, st.status("a-other"))
			assert.Equal(t, store.AppointmentScheduled, st.status("next"))
			require.Len(t, rec.entries, 1)
			assert.Equal(t, audit.OutcomeIgnored, rec.entries[0].Outcome)
		})
	}
}
