package authgate

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"media-client-bridge/internal/config"
)

// Result is the outcome of an authentication prompt. Authenticate never
// returns an error; every failure mode maps onto one of these values.
type Result int

const (
	// ResultGranted means the user authenticated successfully
	ResultGranted Result = iota
	// ResultDenied means the user failed or declined authentication
	ResultDenied
	// ResultUnavailable means no authenticator is present on this device
	ResultUnavailable
	// ResultCanceled means the caller abandoned the prompt
	ResultCanceled
)

// String returns the string representation of the result
func (r Result) String() string {
	switch r {
	case ResultGranted:
		return "granted"
	case ResultDenied:
		return "denied"
	case ResultUnavailable:
		return "unavailable"
	case ResultCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Capability describes what the gate can do on this device. Callers use it
// to decide whether to warn about weak-only biometrics before prompting.
type Capability struct {
	Available                bool   `json:"available"`
	StrongAvailable          bool   `json:"strongAvailable"`
	WeakOnly                 bool   `json:"weakOnly"`
	DeviceCredentialFallback bool   `json:"deviceCredentialFallback"`
	Authenticator            string `json:"authenticator"` // "fingerprint", "device-credential", "none"
}

// Gate presents an authentication prompt and resolves to a Result. The
// prompt is bound to the context: cancellation kills the underlying prompt.
type Gate interface {
	Capability(requireStrong bool) Capability
	Authenticate(ctx context.Context, reason string) Result
}

// NewGate creates a gate provider by configured name
func NewGate(cfg config.GateConfig, logger *logrus.Logger) (Gate, error) {
	switch cfg.Provider {
	case "fprintd":
		return NewFprintdGate(cfg, logger), nil
	case "simulator":
		return NewSimulatorGate(logger), nil
	default:
		return nil, fmt.Errorf("unknown gate provider: %s", cfg.Provider)
	}
}

// computeCapability resolves the strongest authenticator class available
// given what the provider reports and the caller's preference. A device
// credential fallback is layered in whenever the provider supports one.
func computeCapability(strong, weak, deviceCredential, requireStrong bool) Capability {
	cap := Capability{
		DeviceCredentialFallback: deviceCredential,
		Authenticator:            "none",
	}

	switch {
	case strong:
		cap.Available = true
		cap.StrongAvailable = true
		cap.Authenticator = "fingerprint"
	case weak && !requireStrong:
		cap.Available = true
		cap.WeakOnly = true
		cap.Authenticator = "fingerprint"
	case deviceCredential:
		cap.Available = true
		cap.Authenticator = "device-credential"
	}

	return cap
}
