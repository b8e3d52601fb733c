package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/clinic-messaging/pkg/logging"
)

var zapiTracer = otel.Tracer("clinic.internal.gateway.zapi")

const defaultZAPIBaseURL = "https://api.z-api.io"

// ZAPIConfig configures the Z-API gateway.
type ZAPIConfig struct {
	BaseURL     string
	InstanceID  string
	Token       string
	ClientToken string
	HTTPClient  *http.Client
}

// ZAPI posts text messages through Z-API. Authentication is the instance
// token in the path plus an optional Client-Token header.
type ZAPI struct {
	baseURL     string
	instanceID  string
	token       string
	clientToken string
	httpClient  *http.Client
	logger      *logging.Logger
}

// NewZAPI builds a Z-API gateway.
func NewZAPI(cfg ZAPIConfig, logger *logging.Logger) *ZAPI {
	if logger == nil {
		logger = logging.Default()
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultZAPIBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &ZAPI{
		baseURL:     baseURL,
		instanceID:  cfg.InstanceID,
		token:       cfg.Token,
		clientToken: cfg.ClientToken,
		httpClient:  client,
		logger:      logger,
	}
}

var _ Gateway = (*ZAPI)(nil)

// Name implements Gateway.
func (z *ZAPI) Name() string { return ProviderZAPI }

type zapiResponse struct {
	ZaapID    string `json:"zaapId"`
	MessageID string `json:"messageId"`
	ID        string `json:"id"`
	Error     string `json:"error"`
	Message   string `json:"message"`
}

// Send dispatches one text message. There is no retry: a failed send is
// picked up by the next scheduled run.
func (z *ZAPI) Send(ctx context.Context, phone, body string) (string, error) {
	if z.instanceID == "" || z.token == "" {
		return "", fmt.Errorf("%w: zapi credentials missing", ErrNotConfigured)
	}
	if phone == "" {
		return "", errors.New("gateway: phone required")
	}
	if strings.TrimSpace(body) == "" {
		return "", errors.New("gateway: body required")
	}

	ctx, span := zapiTracer.Start(ctx, "gateway.zapi.send", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("clinic.to", phone))

	payload, err := json.Marshal(map[string]string{
		"phone":   phone,
		"message": body,
	})
	if err != nil {
		return "", fmt.Errorf("gateway: marshal zapi payload: %w", err)
	}
	endpoint := fmt.Sprintf("%s/instances/%s/token/%s/send-text", z.baseURL, z.instanceID, z.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("gateway: build zapi request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if z.clientToken != "" {
		req.Header.Set("Client-Token", z.clientToken)
	}

	resp, err := z.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("gateway: zapi request: %w", err)
	}
	defer resp.Body.Close()
	raw := readBody(resp)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := statusError(ProviderZAPI, resp.StatusCode, raw)
		span.RecordError(err)
		z.logger.Error("zapi send failed", "status", resp.StatusCode, "to", phone)
		return "", err
	}

	var parsed zapiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("gateway: decode zapi response: %w", err)
	}
	if parsed.Error != "" {
		err := fmt.Errorf("gateway: zapi rejected message: %s", firstNonEmpty(parsed.Message, parsed.Error))
		span.RecordError(err)
		return "", err
	}
	id := firstNonEmpty(parsed.ZaapID, parsed.MessageID, parsed.ID)
	if id == "" {
		err := errors.New("gateway: zapi response missing message id")
		span.RecordError(err)
		return "", err
	}
	z.logger.Info("zapi message sent", "to", phone, "message_id", id)
	return id, nil
}
