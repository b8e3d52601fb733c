package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/clinic-messaging/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/clinic-messaging/internal/http/middleware"
	"github.com/wolfman30/clinic-messaging/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	Health         *handlers.HealthHandler
	Webhooks       *handlers.WebhookHandler
	Jobs           *handlers.JobsHandler
	JobAuthSecret  string
	JobRateLimiter *httpmiddleware.RateLimiter
	MetricsHandler http.Handler
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	// Public endpoints (webhooks, health checks)
	r.Group(func(public chi.Router) {
		if cfg.Health != nil {
			public.Get("/health", cfg.Health.Check)
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.Webhooks != nil {
			public.Route("/webhooks", func(r chi.Router) {
				r.Post("/whatsapp", cfg.Webhooks.HandleDetect)
				r.Post("/{provider}", cfg.Webhooks.HandleProvider)
			})
		}
	})

	// Scheduler triggers for external cron.
	if cfg.Jobs != nil {
		r.Route("/jobs", func(jobs chi.Router) {
			jobs.Use(httpmiddleware.JobAuth(cfg.JobAuthSecret))
			if cfg.JobRateLimiter != nil {
				jobs.Use(httpmiddleware.RateLimit(cfg.JobRateLimiter, nil))
			}
			jobs.Post("/{job}", cfg.Jobs.Run)
		})
	}

	return r
}
