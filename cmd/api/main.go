package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/clinic-messaging/internal/api/router"
	"github.com/wolfman30/clinic-messaging/internal/app/bootstrap"
	appconfig "github.com/wolfman30/clinic-messaging/internal/config"
	"github.com/wolfman30/clinic-messaging/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/clinic-messaging/internal/http/middleware"
	observemetrics "github.com/wolfman30/clinic-messaging/internal/observability/metrics"
	"github.com/wolfman30/clinic-messaging/internal/store"
	"github.com/wolfman30/clinic-messaging/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic-messaging API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"provider", cfg.WhatsAppProvider,
		"test_mode", cfg.TestMode,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbs, err := bootstrap.OpenDatabases(ctx, cfg)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer dbs.Close()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	} else {
		logger.Warn("webhook replay guard disabled; redis not configured")
	}

	metricsHandler, messagingMetrics := setupMessagingMetrics()
	st := store.NewStore(dbs.Pool)

	runner := bootstrap.BuildRunner(cfg, st, messagingMetrics, logger)
	pipeline := bootstrap.BuildPipeline(cfg, st, dbs.SQL, logger)

	webhookCfg := handlers.WebhookConfig{
		Pipeline: pipeline,
		Metrics:  messagingMetrics,
		Logger:   logger,
	}
	if guard := bootstrap.BuildReplayGuard(redisClient, cfg.WebhookReplayTTL); guard != nil {
		webhookCfg.Replay = guard
	}

	// Setup router
	r := router.New(&router.Config{
		Logger:         logger,
		Health:         handlers.NewHealthHandler(dbs.Pool),
		Webhooks:       handlers.NewWebhookHandler(webhookCfg),
		Jobs:           handlers.NewJobsHandler(runner, logger),
		JobAuthSecret:  cfg.AdminJWTSecret,
		JobRateLimiter: httpmiddleware.NewRateLimiter(1, 5),
		MetricsHandler: metricsHandler,
	})
	if cfg.AdminJWTSecret == "" {
		logger.Warn("ADMIN_JWT_SECRET not set; job endpoints are unauthenticated")
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		// Job runs send sequentially through the gateway and can outlast a webhook.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server exited")
}

func setupMessagingMetrics() (http.Handler, *observemetrics.MessagingMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), observemetrics.NewMessagingMetrics(reg)
}
