package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/clinic-messaging/pkg/logging"
)

var evolutionTracer = otel.Tracer("clinic.internal.gateway.evolution")

// EvolutionConfig configures the Evolution API gateway.
type EvolutionConfig struct {
	BaseURL    string
	APIKey     string
	Instance   string
	HTTPClient *http.Client
}

// Evolution posts text messages through a self-hosted Evolution API instance,
// authenticated with the apikey header.
type Evolution struct {
	baseURL    string
	apiKey     string
	instance   string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewEvolution builds an Evolution API gateway.
func NewEvolution(cfg EvolutionConfig, logger *logging.Logger) *Evolution {
	if logger == nil {
		logger = logging.Default()
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &Evolution{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:     cfg.APIKey,
		instance:   cfg.Instance,
		httpClient: client,
		logger:     logger,
	}
}

var _ Gateway = (*Evolution)(nil)

// Name implements Gateway.
func (e *Evolution) Name() string { return ProviderEvolution }

type evolutionResponse struct {
	Key struct {
		ID        string `json:"id"`
		RemoteJID string `json:"remoteJid"`
	} `json:"key"`
	ID     string `json:"id"`
	Status any    `json:"status"`
}

// Send dispatches one text message.
func (e *Evolution) Send(ctx context.Context, phone, body string) (string, error) {
	if e.baseURL == "" || e.apiKey == "" || e.instance == "" {
		return "", fmt.Errorf("%w: evolution credentials missing", ErrNotConfigured)
	}
	if phone == "" {
		return "", errors.New("gateway: phone required")
	}
	if strings.TrimSpace(body) == "" {
		return "", errors.New("gateway: body required")
	}

	ctx, span := evolutionTracer.Start(ctx, "gateway.evolution.send", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("clinic.to", phone),
		attribute.String("clinic.instance", e.instance),
	)

	payload, err := json.Marshal(map[string]string{
		"number": phone,
		"text":   body,
	})
	if err != nil {
		return "", fmt.Errorf("gateway: marshal evolution payload: %w", err)
	}
	endpoint := fmt.Sprintf("%s/message/sendText/%s", e.baseURL, url.PathEscape(e.instance))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("gateway: build evolution request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("gateway: evolution request: %w", err)
	}
	defer resp.Body.Close()
	raw := readBody(resp)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := statusError(ProviderEvolution, resp.StatusCode, raw)
		span.RecordError(err)
		e.logger.Error("evolution send failed", "status", resp.StatusCode, "to", phone)
		return "", err
	}

	var parsed evolutionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("gateway: decode evolution response: %w", err)
	}
	id := firstNonEmpty(parsed.Key.ID, parsed.ID)
	if id == "" {
		err := errors.New("gateway: evolution response missing message id")
		span.RecordError(err)
		return "", err
	}
	e.logger.Info("evolution message sent", "to", phone, "message_id", id)
	return id, nil
}
