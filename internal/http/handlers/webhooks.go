package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinic-messaging/internal/audit"
	"github.com/wolfman30/clinic-messaging/internal/confirmation"
	observemetrics "github.com/wolfman30/clinic-messaging/internal/observability/metrics"
	"github.com/wolfman30/clinic-messaging/internal/webhook"
	"github.com/wolfman30/clinic-messaging/pkg/logging"
)

const maxWebhookBody = 1 << 20

type confirmationPipeline interface {
	Handle(ctx context.Context, ev webhook.Event) (confirmation.Result, error)
}

type replayGuard interface {
	FirstSeen(ctx context.Context, provider webhook.Provider, messageID string) (bool, error)
	Forget(ctx context.Context, provider webhook.Provider, messageID string) error
}

// WebhookResponse is the body of every webhook response. Status is always 200.
type WebhookResponse struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	Reason        string `json:"reason,omitempty"`
	AppointmentID string `json:"appointment_id,omitempty"`
}

// WebhookHandler receives inbound WhatsApp provider webhooks. Providers retry
// on any non-2xx, so every outcome, including internal errors, answers 200
// and the body tells "ignored" apart from "error".
type WebhookHandler struct {
	pipeline confirmationPipeline
	replay   replayGuard
	metrics  *observemetrics.MessagingMetrics
	logger   *logging.Logger
	timeout  time.Duration
}

type WebhookConfig struct {
	Pipeline confirmationPipeline
	// Replay may be nil; a typed nil *webhook.ReplayGuard is also safe.
	Replay  replayGuard
	Metrics *observemetrics.MessagingMetrics
	Logger  *logging.Logger
	Timeout time.Duration
}

func NewWebhookHandler(cfg WebhookConfig) *WebhookHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &WebhookHandler{
		pipeline: cfg.Pipeline,
		replay:   cfg.Replay,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		timeout:  cfg.Timeout,
	}
}

// HandleProvider serves /webhooks/{provider}.
func (h *WebhookHandler) HandleProvider(w http.ResponseWriter, r *http.Request) {
	label := chi.URLParam(r, "provider")
	provider, err := webhook.ParseProvider(label)
	if err != nil {
		h.respond(w, label, WebhookResponse{Success: false, Message: "error", Reason: "unknown_provider"})
		return
	}
	h.serve(w, r, func([]byte) (webhook.Provider, error) { return provider, nil })
}

// HandleDetect serves /webhooks/whatsapp, inferring the provider from the payload.
func (h *WebhookHandler) HandleDetect(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, webhook.Detect)
}

func (h *WebhookHandler) serve(w http.ResponseWriter, r *http.Request, resolve func([]byte) (webhook.Provider, error)) {
	start := time.Now()
	label := "unknown"
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("webhook handler panic", "provider", label, "panic", fmt.Sprint(rec))
			h.respond(w, label, WebhookResponse{Success: false, Message: "error", Reason: "internal_error"})
		}
	}()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.logger.Warn("webhook body read failed", "error", err)
		h.respond(w, label, WebhookResponse{Success: false, Message: "error", Reason: "invalid_body"})
		return
	}
	provider, err := resolve(body)
	if err != nil {
		h.respond(w, label, WebhookResponse{Success: true, Message: "ignored", Reason: "unknown_provider"})
		return
	}
	label = string(provider)
	defer func() {
		h.metrics.ObserveWebhookLatency(label, time.Since(start).Seconds())
	}()

	events, err := webhook.NormalizeAll(provider, body)
	if err != nil {
		if !errors.Is(err, webhook.ErrUnparseable) {
			h.logger.Warn("webhook normalize failed", "provider", label, "error", err)
		}
		h.respond(w, label, WebhookResponse{Success: true, Message: "ignored", Reason: "unparseable"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	// Every message of a batched delivery is processed. The response carries
	// the first error, else the first confirmation, else the last ignore.
	var errored, confirmed, last *WebhookResponse
	for _, ev := range events {
		out := h.process(ctx, provider, ev)
		switch {
		case !out.Success && errored == nil:
			errored = &out
		case out.Message == "confirmed" && confirmed == nil:
			confirmed = &out
		}
		last = &out
	}
	resp := last
	if confirmed != nil {
		resp = confirmed
	}
	if errored != nil {
		resp = errored
	}
	h.respond(w, label, *resp)
}

func (h *WebhookHandler) process(ctx context.Context, provider webhook.Provider, ev webhook.Event) WebhookResponse {
	label := string(provider)
	claimed := false
	if ev.Actionable() && h.replay != nil {
		first, err := h.replay.FirstSeen(ctx, provider, ev.MessageID)
		if err != nil {
			h.logger.Warn("replay guard unavailable", "provider", label, "error", err)
		} else if !first {
			return WebhookResponse{Success: true, Message: "ignored", Reason: confirmation.ReasonDuplicateDelivery}
		} else {
			claimed = ev.MessageID != ""
		}
	}

	res, err := h.pipeline.Handle(ctx, ev)
	if err != nil {
		h.logger.Error("webhook processing failed", "provider", label, "message_id", ev.MessageID, "error", err)
		if claimed {
			if ferr := h.replay.Forget(context.WithoutCancel(ctx), provider, ev.MessageID); ferr != nil {
				h.logger.Warn("replay guard release failed", "provider", label, "error", ferr)
			}
		}
		return WebhookResponse{Success: false, Message: "error", Reason: "internal_error"}
	}

	if res.Outcome == audit.OutcomeSuccess {
		return WebhookResponse{Success: true, Message: "confirmed", AppointmentID: res.AppointmentID}
	}
	return WebhookResponse{Success: true, Message: "ignored", Reason: res.Reason}
}

func (h *WebhookHandler) respond(w http.ResponseWriter, provider string, resp WebhookResponse) {
	outcome := resp.Message
	h.metrics.ObserveWebhook(provider, outcome, resp.Reason)
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
