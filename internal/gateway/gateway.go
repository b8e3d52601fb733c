// Package gateway sends WhatsApp text messages through a configured provider.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/clinic-messaging/pkg/logging"
)

const (
	// ProviderZAPI selects the Z-API gateway.
	ProviderZAPI = "zapi"
	// ProviderEvolution selects the Evolution API gateway.
	ProviderEvolution = "evolution"
	// ProviderSimulation never touches the network.
	ProviderSimulation = "simulation"
)

// ErrNotConfigured is returned when a provider is selected without its credentials.
var ErrNotConfigured = errors.New("gateway: provider not configured")

// Gateway delivers a single text message and returns the provider's message id.
type Gateway interface {
	Send(ctx context.Context, phone, body string) (string, error)
	Name() string
}

// SelectionConfig captures the credentials required to build gateways.
type SelectionConfig struct {
	Provider string
	Timeout  time.Duration

	ZAPIBaseURL     string
	ZAPIInstanceID  string
	ZAPIToken       string
	ZAPIClientToken string

	EvolutionBaseURL  string
	EvolutionAPIKey   string
	EvolutionInstance string

	SimulationDelay time.Duration
	HTTPClient      *http.Client
}

// Build resolves the configured provider once per dispatch run.
// An empty or "simulation" provider yields the Simulation gateway. A named
// provider with missing credentials returns ErrNotConfigured with the reason.
func Build(cfg SelectionConfig, logger *logging.Logger) (Gateway, error) {
	if logger == nil {
		logger = logging.Default()
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderSimulation:
		return NewSimulation(cfg.SimulationDelay, logger), nil
	case ProviderZAPI:
		var missing []string
		if cfg.ZAPIInstanceID == "" {
			missing = append(missing, "ZAPI_INSTANCE_ID missing")
		}
		if cfg.ZAPIToken == "" {
			missing = append(missing, "ZAPI_TOKEN missing")
		}
		if len(missing) > 0 {
			return nil, fmt.Errorf("%w: %s", ErrNotConfigured, strings.Join(missing, ", "))
		}
		return NewZAPI(ZAPIConfig{
			BaseURL:     cfg.ZAPIBaseURL,
			InstanceID:  cfg.ZAPIInstanceID,
			Token:       cfg.ZAPIToken,
			ClientToken: cfg.ZAPIClientToken,
			HTTPClient:  client,
		}, logger), nil
	case ProviderEvolution:
		var missing []string
		if cfg.EvolutionBaseURL == "" {
			missing = append(missing, "EVOLUTION_BASE_URL missing")
		}
		if cfg.EvolutionAPIKey == "" {
			missing = append(missing, "EVOLUTION_API_KEY missing")
		}
		if cfg.EvolutionInstance == "" {
			missing = append(missing, "EVOLUTION_INSTANCE missing")
		}
		if len(missing) > 0 {
			return nil, fmt.Errorf("%w: %s", ErrNotConfigured, strings.Join(missing, ", "))
		}
		return NewEvolution(EvolutionConfig{
			BaseURL:    cfg.EvolutionBaseURL,
			APIKey:     cfg.EvolutionAPIKey,
			Instance:   cfg.EvolutionInstance,
			HTTPClient: client,
		}, logger), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrNotConfigured, cfg.Provider)
	}
}

// readBody drains at most 8KiB of a provider response.
func readBody(resp *http.Response) []byte {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
	return body
}

func statusError(provider string, status int, body []byte) error {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return fmt.Errorf("gateway: %s send failed: status %d", provider, status)
	}
	return fmt.Errorf("gateway: %s send failed: status %d: %s", provider, status, trimmed)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
