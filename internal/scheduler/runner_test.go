package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-messaging/internal/dispatch"
	"github.com/wolfman30/clinic-messaging/internal/gateway"
	"github.com/wolfman30/clinic-messaging/internal/store"
)

type runnerStore struct {
	*memoryStore
	pending []store.OutboundMessage
	marked  int
}

func (r *runnerStore) PendingMessages(context.Context, int) ([]store.OutboundMessage, error) {
	out := r.pending
	r.pending = nil
	return out, nil
}

func (r *runnerStore) MarkMessageSent(context.Context, string, string, time.Time) error {
	r.marked++
	return nil
}

func (r *runnerStore) MarkMessageFailed(context.Context, string, string) error {
	r.marked++
	return nil
}

func (r *runnerStore) CampaignStatusCounts(context.Context, string) (store.StatusCounts, error) {
	return store.StatusCounts{Sent: r.marked}, nil
}

func (r *runnerStore) SetCampaignStatus(context.Context, string, store.CampaignStatus) error {
	return nil
}

func simulationResolver() (*dispatch.Engine, error) {
	return dispatch.NewEngine(gateway.NewSimulation(0, nil), nil, dispatch.RunConfig{}, nil), nil
}

func TestRunnerUnknownJob(t *testing.T) {
	r := NewRunner(RunnerConfig{Store: &runnerStore{memoryStore: newMemoryStore()}, Resolve: simulationResolver})
	_, err := r.Run(context.Background(), "payroll")
	assert.ErrorIs(t, err, ErrUnknownJob)
}

func TestRunnerConfigurationErrorAttemptsNothing(t *testing.T) {
	st := &runnerStore{memoryStore: newMemoryStore(), pending: []store.OutboundMessage{{ID: "m1", CampaignID: "c1", Phone: "11987654321"}}}
	cfgErr := errors.New("gateway not configured")
	r := NewRunner(RunnerConfig{Store: st, Resolve: func() (*dispatch.Engine, error) { return nil, cfgErr }})

	_, err := r.Run(context.Background(), dispatch.JobCampaign)
	assert.ErrorIs(t, err, cfgErr)
	assert.Zero(t, st.marked)
	assert.Len(t, st.pending, 1)
}

func TestRunnerDispatchesEveryJob(t *testing.T) {
	mem := newMemoryStore()
	mem.templates[store.TriggerAppointmentReminder] = reminderTemplate()
	mem.reminders = []store.AppointmentContact{{Appointment: store.Appointment{ID: "a1"}, PatientName: "Ana", PatientPhone: "11987654321"}}
	st := &runnerStore{memoryStore: mem, pending: []store.OutboundMessage{{ID: "m1", CampaignID: "c1", Phone: "11987654321", Body: "promo"}}}
	r := NewRunner(RunnerConfig{Store: st, Resolve: simulationResolver, BatchSize: 6})

	for _, job := range Jobs() {
		summary, err := r.Run(context.Background(), job)
		require.NoError(t, err, job)
		assert.Equal(t, job, summary.Job)
		assert.Equal(t, gateway.ProviderSimulation, summary.Gateway)
	}
	assert.Equal(t, 1, st.marked)
	assert.Len(t, mem.logs, 1)
}
