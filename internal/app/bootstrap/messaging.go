package bootstrap

import (
	"database/sql"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-messaging/internal/audit"
	appconfig "github.com/wolfman30/clinic-messaging/internal/config"
	"github.com/wolfman30/clinic-messaging/internal/confirmation"
	"github.com/wolfman30/clinic-messaging/internal/dispatch"
	"github.com/wolfman30/clinic-messaging/internal/gateway"
	"github.com/wolfman30/clinic-messaging/internal/intent"
	observemetrics "github.com/wolfman30/clinic-messaging/internal/observability/metrics"
	"github.com/wolfman30/clinic-messaging/internal/scheduler"
	"github.com/wolfman30/clinic-messaging/internal/webhook"
	"github.com/wolfman30/clinic-messaging/pkg/logging"
)

// GatewaySelection maps config onto the gateway credentials.
func GatewaySelection(cfg *appconfig.Config) gateway.SelectionConfig {
	if cfg == nil {
		return gateway.SelectionConfig{}
	}
	return gateway.SelectionConfig{
		Provider:          cfg.WhatsAppProvider,
		Timeout:           cfg.GatewayTimeout,
		ZAPIBaseURL:       cfg.ZAPIBaseURL,
		ZAPIInstanceID:    cfg.ZAPIInstanceID,
		ZAPIToken:         cfg.ZAPIToken,
		ZAPIClientToken:   cfg.ZAPIClientToken,
		EvolutionBaseURL:  cfg.EvolutionBaseURL,
		EvolutionAPIKey:   cfg.EvolutionAPIKey,
		EvolutionInstance: cfg.EvolutionInstance,
		SimulationDelay:   cfg.SimulationDelay,
	}
}

// RunConfig captures the per-run dispatch settings from config.
func RunConfig(cfg *appconfig.Config) dispatch.RunConfig {
	if cfg == nil {
		return dispatch.RunConfig{}
	}
	return dispatch.RunConfig{
		Provider:     cfg.WhatsAppProvider,
		TestMode:     cfg.TestMode,
		SandboxPhone: cfg.TestPhone,
	}
}

// EngineResolver resolves a fresh engine for every job run.
func EngineResolver(cfg *appconfig.Config, logger *logging.Logger) scheduler.EngineResolver {
	sel := GatewaySelection(cfg)
	run := RunConfig(cfg)
	return func() (*dispatch.Engine, error) {
		return dispatch.Resolve(sel, run, logger)
	}
}

// BuildRunner wires the job runner shared by the API, the CLI and the Lambda.
func BuildRunner(cfg *appconfig.Config, st scheduler.RunnerStore, m *observemetrics.MessagingMetrics, logger *logging.Logger) *scheduler.Runner {
	if logger == nil {
		logger = logging.Default()
	}
	return scheduler.NewRunner(scheduler.RunnerConfig{
		Store:    st,
		Resolve:  EngineResolver(cfg, logger),
		Location: cfg.Location(),
		Windows: scheduler.Windows{
			Reminder: cfg.ReminderLookback,
			Feedback: cfg.FeedbackLookback,
			Birthday: cfg.BirthdayLookback,
		},
		BatchSize: cfg.CampaignBatchSize,
		Metrics:   m,
		Logger:    logger,
	})
}

// BuildPipeline wires the confirmation pipeline. A nil sqlDB disables auditing.
func BuildPipeline(cfg *appconfig.Config, st confirmation.Store, sqlDB *sql.DB, logger *logging.Logger) *confirmation.Pipeline {
	var recorder audit.Recorder
	if sqlDB != nil {
		recorder = audit.NewLog(sqlDB)
	}
	if logger == nil {
		logger = logging.Default()
	}
	classifier := intent.New(intent.Config{
		Keywords:       cfg.ConfirmKeywords,
		MaxFuzzyLength: cfg.ConfirmMaxFuzzyLength,
	})
	logger.Info("confirmation pipeline ready",
		"keywords", classifier.Keywords(),
		"audit", recorder != nil,
	)
	return confirmation.New(st, recorder, classifier, logger)
}

// BuildReplayGuard returns nil when Redis is disabled.
func BuildReplayGuard(client *redis.Client, ttl time.Duration) *webhook.ReplayGuard {
	if client == nil {
		return nil
	}
	return webhook.NewReplayGuard(client, ttl)
}
