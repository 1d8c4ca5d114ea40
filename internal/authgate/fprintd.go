package authgate

import (
	"context"
	"errors"
	"os/exec"
	"time"

	"github.com/sirupsen/logrus"

	"media-client-bridge/internal/config"
	"media-client-bridge/internal/logging"
)

// FprintdGate authenticates against the fprintd fingerprint daemon by
// running fprintd-verify. Fingerprint readers enrolled through fprintd are
// treated as the strong authenticator class; there is no weak class and no
// device-credential fallback on this provider.
type FprintdGate struct {
	verifyPath string
	timeout    time.Duration
	logger     *logrus.Entry
}

// NewFprintdGate creates a gate backed by fprintd
func NewFprintdGate(cfg config.GateConfig, logger *logrus.Logger) *FprintdGate {
	path, err := exec.LookPath("fprintd-verify")
	if err != nil {
		path = ""
	}

	return &FprintdGate{
		verifyPath: path,
		timeout:    time.Duration(cfg.Timeout) * time.Second,
		logger:     logging.NewProviderLogger(logger, "authgate", "fprintd"),
	}
}

// Capability reports what this device can authenticate with
func (g *FprintdGate) Capability(requireStrong bool) Capability {
	return computeCapability(g.verifyPath != "", false, false, requireStrong)
}

// Authenticate runs fprintd-verify and maps its exit status to a Result.
// Context cancellation kills the verify process, which releases the reader.
func (g *FprintdGate) Authenticate(ctx context.Context, reason string) Result {
	if g.verifyPath == "" {
		return ResultUnavailable
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	g.logger.WithField("reason", reason).Debug("Starting fingerprint verification")

	cmd := exec.CommandContext(ctx, g.verifyPath)
	err := cmd.Run()

	if ctx.Err() != nil {
		g.logger.WithField("reason", reason).Info("Fingerprint verification canceled")
		return ResultCanceled
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			g.logger.WithFields(logrus.Fields{
				"reason":    reason,
				"exit_code": exitErr.ExitCode(),
			}).Info("Fingerprint verification denied")
			return ResultDenied
		}
		g.logger.WithError(err).Warn("Failed to run fprintd-verify")
		return ResultUnavailable
	}

	g.logger.WithField("reason", reason).Info("Fingerprint verification granted")
	return ResultGranted
}
