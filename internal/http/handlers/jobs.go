package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinic-messaging/internal/dispatch"
	httpmiddleware "github.com/wolfman30/clinic-messaging/internal/http/middleware"
	"github.com/wolfman30/clinic-messaging/internal/scheduler"
	"github.com/wolfman30/clinic-messaging/pkg/logging"
)

type jobRunner interface {
	Run(ctx context.Context, job string) (dispatch.Summary, error)
}

// JobsHandler triggers scheduler jobs over HTTP for external cron callers.
type JobsHandler struct {
	runner jobRunner
	logger *logging.Logger
}

func NewJobsHandler(runner jobRunner, logger *logging.Logger) *JobsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &JobsHandler{runner: runner, logger: logger}
}

type jobResponse struct {
	dispatch.Summary
	Error string `json:"error,omitempty"`
}

// Run serves POST /jobs/{job}. Unlike webhooks, a failed run is reported as 5xx.
func (h *JobsHandler) Run(w http.ResponseWriter, r *http.Request) {
	job := chi.URLParam(r, "job")
	caller := "anonymous"
	if claims, ok := httpmiddleware.JobClaimsFromContext(r.Context()); ok && claims.Subject != "" {
		caller = claims.Subject
	}
	h.logger.Info("job triggered", "job", job, "caller", caller)

	summary, err := h.runner.Run(r.Context(), job)
	switch {
	case errors.Is(err, scheduler.ErrUnknownJob):
		writeJSON(w, http.StatusNotFound, jobResponse{Summary: summary, Error: err.Error()})
	case err != nil:
		h.logger.Error("job failed", "job", job, "caller", caller, "error", err)
		writeJSON(w, http.StatusInternalServerError, jobResponse{Summary: summary, Error: err.Error()})
	default:
		writeJSON(w, http.StatusOK, jobResponse{Summary: summary})
	}
}
