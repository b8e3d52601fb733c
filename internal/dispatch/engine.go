// Package dispatch sends outbound messages through a gateway with test-mode
// containment, and keeps campaign bookkeeping in step with each batch.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-messaging/internal/gateway"
	"github.com/wolfman30/clinic-messaging/internal/phone"
	"github.com/wolfman30/clinic-messaging/pkg/logging"
)

var tracer = otel.Tracer("clinic.internal.dispatch")

// FallbackIDPrefix marks ids synthesized after a real gateway failed in test mode.
const FallbackIDPrefix = "sim-fallback-"

// ErrInvalidPhone is returned when a destination has no usable digits.
var ErrInvalidPhone = errors.New("dispatch: invalid destination phone")

// persistTimeout bounds bookkeeping writes that run after a send, detached from
// the caller's cancellation so a terminal status is always attempted.
const persistTimeout = 10 * time.Second

// RunConfig is resolved once per dispatch run and never mutated.
type RunConfig struct {
	Provider     string
	TestMode     bool
	SandboxPhone string
}

// Redirects reports whether sends are rerouted to the sandbox number.
func (c RunConfig) Redirects() bool {
	return c.TestMode && phone.Canonical(c.SandboxPhone) != ""
}

// Result describes one completed send.
type Result struct {
	MessageID   string
	Destination string
	Gateway     string
	Simulated   bool
}

// Engine performs the single-message send path shared by every scheduler.
type Engine struct {
	gateway  gateway.Gateway
	fallback gateway.Gateway
	run      RunConfig
	logger   *logging.Logger
}

// NewEngine wraps a resolved gateway. fallback is used only in test mode; when
// nil a zero-delay Simulation gateway is used.
func NewEngine(gw gateway.Gateway, fallback gateway.Gateway, run RunConfig, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.Default()
	}
	if fallback == nil {
		fallback = gateway.NewSimulation(0, logger)
	}
	return &Engine{gateway: gw, fallback: fallback, run: run, logger: logger}
}

// Resolve builds the engine for a run from gateway credentials. A named
// provider without credentials is a configuration error unless test mode is
// active, in which case the run falls back to the Simulation gateway.
func Resolve(sel gateway.SelectionConfig, run RunConfig, logger *logging.Logger) (*Engine, error) {
	if logger == nil {
		logger = logging.Default()
	}
	sim := gateway.NewSimulation(sel.SimulationDelay, logger)
	gw, err := gateway.Build(sel, logger)
	if err != nil {
		if !run.TestMode || !errors.Is(err, gateway.ErrNotConfigured) {
			return nil, fmt.Errorf("dispatch: resolve gateway: %w", err)
		}
		logger.Warn("gateway not configured; test mode active, using simulation",
			"provider", sel.Provider,
			"error", err,
		)
		gw = sim
	}
	if run.Provider == "" {
		run.Provider = gw.Name()
	}
	return NewEngine(gw, sim, run, logger), nil
}

// RunConfig returns the configuration the engine was built with.
func (e *Engine) RunConfig() RunConfig { return e.run }

// GatewayName returns the name of the primary gateway.
func (e *Engine) GatewayName() string { return e.gateway.Name() }

// SendOne canonicalizes the destination, applies test-mode redirection and
// sends. With test mode active a gateway failure is replaced by a simulated
// send carrying a sim-fallback- id; otherwise the failure is returned.
func (e *Engine) SendOne(ctx context.Context, to, body string) (Result, error) {
	ctx, span := tracer.Start(ctx, "dispatch.send_one")
	defer span.End()

	original := phone.Canonical(to)
	if original == "" {
		span.RecordError(ErrInvalidPhone)
		return Result{}, fmt.Errorf("%w: %q", ErrInvalidPhone, to)
	}

	dest := original
	if e.run.Redirects() {
		dest = phone.Canonical(e.run.SandboxPhone)
		body = fmt.Sprintf("[TESTE] Destinatário original: %s\n\n%s", original, body)
	}
	span.SetAttributes(
		attribute.String("gateway", e.gateway.Name()),
		attribute.Bool("test_mode", e.run.TestMode),
	)

	id, err := e.gateway.Send(ctx, dest, body)
	if err == nil {
		return Result{
			MessageID:   id,
			Destination: dest,
			Gateway:     e.gateway.Name(),
			Simulated:   strings.HasPrefix(id, gateway.SimulatedIDPrefix),
		}, nil
	}
	if !e.run.TestMode {
		span.RecordError(err)
		return Result{}, err
	}

	e.logger.Warn("gateway send failed in test mode; simulating",
		"gateway", e.gateway.Name(),
		"to", dest,
		"error", err,
	)
	simID, simErr := e.fallback.Send(ctx, dest, body)
	if simErr != nil {
		span.RecordError(simErr)
		return Result{}, fmt.Errorf("dispatch: simulated fallback: %w", simErr)
	}
	return Result{
		MessageID:   FallbackIDPrefix + strings.TrimPrefix(simID, gateway.SimulatedIDPrefix),
		Destination: dest,
		Gateway:     e.fallback.Name(),
		Simulated:   true,
	}, nil
}

// persistContext detaches bookkeeping from request cancellation.
func persistContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
}
