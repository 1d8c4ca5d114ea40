package authgate

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"media-client-bridge/internal/logging"
)

// SimulatorGate simulates an authentication prompt for tests and
// development. Outcomes and reported hardware are scriptable.
type SimulatorGate struct {
	mu               sync.Mutex
	outcome          Result
	delay            time.Duration
	strong           bool
	weak             bool
	deviceCredential bool
	prompts          []string
	logger           *logrus.Entry
}

// NewSimulatorGate creates a simulator that grants every prompt and reports
// a strong authenticator
func NewSimulatorGate(logger *logrus.Logger) *SimulatorGate {
	return &SimulatorGate{
		outcome: ResultGranted,
		strong:  true,
		logger:  logging.NewProviderLogger(logger, "authgate", "simulator"),
	}
}

// SetOutcome scripts the result of subsequent Authenticate calls
func (g *SimulatorGate) SetOutcome(outcome Result) {
	g.mu.Lock()
	g.outcome = outcome
	g.mu.Unlock()
}

// SetDelay makes Authenticate wait before resolving, to exercise
// cancellation paths
func (g *SimulatorGate) SetDelay(delay time.Duration) {
	g.mu.Lock()
	g.delay = delay
	g.mu.Unlock()
}

// SetHardware scripts what authenticator classes the simulator reports
func (g *SimulatorGate) SetHardware(strong, weak, deviceCredential bool) {
	g.mu.Lock()
	g.strong = strong
	g.weak = weak
	g.deviceCredential = deviceCredential
	g.mu.Unlock()
}

// Prompts returns the reasons passed to Authenticate so far
func (g *SimulatorGate) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts...)
}

// Capability reports the scripted hardware
func (g *SimulatorGate) Capability(requireStrong bool) Capability {
	g.mu.Lock()
	defer g.mu.Unlock()
	return computeCapability(g.strong, g.weak, g.deviceCredential, requireStrong)
}

// Authenticate resolves to the scripted outcome after the scripted delay
func (g *SimulatorGate) Authenticate(ctx context.Context, reason string) Result {
	g.mu.Lock()
	g.prompts = append(g.prompts, reason)
	outcome := g.outcome
	delay := g.delay
	g.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			g.logger.WithField("reason", reason).Info("Simulated prompt canceled")
			return ResultCanceled
		case <-time.After(delay):
		}
	}

	g.logger.WithFields(logrus.Fields{
		"reason":  reason,
		"outcome": outcome.String(),
	}).Debug("Simulated authentication prompt resolved")

	return outcome
}
