package gateway

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/clinic-messaging/pkg/logging"
)

// SimulatedIDPrefix marks ids produced without contacting a provider.
const SimulatedIDPrefix = "sim-"

// Simulation is a Gateway that never fails. It waits a fixed delay and
// returns a synthetic message id.
type Simulation struct {
	delay  time.Duration
	logger *logging.Logger
}

// NewSimulation builds a simulation gateway with the given artificial delay.
func NewSimulation(delay time.Duration, logger *logging.Logger) *Simulation {
	if logger == nil {
		logger = logging.Default()
	}
	if delay < 0 {
		delay = 0
	}
	return &Simulation{delay: delay, logger: logger}
}

var _ Gateway = (*Simulation)(nil)

// Name implements Gateway.
func (s *Simulation) Name() string { return ProviderSimulation }

// Send waits for the configured delay and returns a sim- id. A cancelled
// context cuts the delay short; the send still succeeds.
func (s *Simulation) Send(ctx context.Context, phone, body string) (string, error) {
	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}
	id := SimulatedIDPrefix + uuid.NewString()
	s.logger.Info("simulated whatsapp send", "to", phone, "message_id", id, "body_len", len(body))
	return id, nil
}
