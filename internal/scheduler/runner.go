package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wolfman30/clinic-messaging/internal/dispatch"
	"github.com/wolfman30/clinic-messaging/internal/observability/metrics"
	"github.com/wolfman30/clinic-messaging/pkg/logging"
)

// ErrUnknownJob is returned for a job name Run does not know.
var ErrUnknownJob = errors.New("scheduler: unknown job")

// Jobs lists every job name accepted by Runner.Run.
func Jobs() []string {
	return []string{dispatch.JobCampaign, JobReminder, JobFeedback, JobBirthday}
}

// RunnerStore is satisfied by *store.Store.
type RunnerStore interface {
	Store
	dispatch.CampaignStore
}

// EngineResolver builds the dispatch engine for one run. Resolving per run
// keeps each invocation on its own immutable configuration.
type EngineResolver func() (*dispatch.Engine, error)

// RunnerConfig wires a Runner.
type RunnerConfig struct {
	Store     RunnerStore
	Resolve   EngineResolver
	Location  *time.Location
	Windows   Windows
	BatchSize int
	Metrics   *metrics.MessagingMetrics
	Logger    *logging.Logger
}

// Runner is the single entry point shared by the HTTP job endpoint, the CLI
// and the Lambda handler.
type Runner struct {
	cfg RunnerConfig
}

// NewRunner creates a job runner.
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Runner{cfg: cfg}
}

// Run executes one job. A gateway configuration error fails the whole run
// before any message is attempted.
func (r *Runner) Run(ctx context.Context, job string) (dispatch.Summary, error) {
	switch job {
	case dispatch.JobCampaign, JobReminder, JobFeedback, JobBirthday:
	default:
		return dispatch.NewSummary(job), fmt.Errorf("%w: %q", ErrUnknownJob, job)
	}

	engine, err := r.cfg.Resolve()
	if err != nil {
		r.cfg.Logger.Error("job aborted: gateway configuration", "job", job, "error", err)
		return dispatch.NewSummary(job), err
	}

	if job == dispatch.JobCampaign {
		began := time.Now()
		summary, err := dispatch.NewCampaignDispatcher(r.cfg.Store, engine, r.cfg.Logger).
			WithBatchSize(r.cfg.BatchSize).
			WithMetrics(r.cfg.Metrics).
			Run(ctx)
		r.cfg.Metrics.ObserveJobDuration(job, time.Since(began).Seconds())
		return summary, err
	}

	s := New(r.cfg.Store, engine, r.cfg.Location, r.cfg.Logger).
		WithWindows(r.cfg.Windows).
		WithMetrics(r.cfg.Metrics)
	switch job {
	case JobReminder:
		return s.Reminders(ctx)
	case JobFeedback:
		return s.Feedback(ctx)
	default:
		return s.Birthdays(ctx)
	}
}
