package authgate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-client-bridge/internal/config"
	"media-client-bridge/internal/logging"
)

func TestComputeCapability(t *testing.T) {
	tests := []struct {
		name          string
		strong        bool
		weak          bool
		devCred       bool
		requireStrong bool
		expected      Capability
	}{
		{
			name:   "strong available",
			strong: true,
			expected: Capability{
				Available:       true,
				StrongAvailable: true,
				Authenticator:   "fingerprint",
			},
		},
		{
			name: "weak only, weak allowed",
			weak: true,
			expected: Capability{
				Available:     true,
				WeakOnly:      true,
				Authenticator: "fingerprint",
			},
		},
		{
			name:          "weak only, strong required",
			weak:          true,
			requireStrong: true,
			expected: Capability{
				Authenticator: "none",
			},
		},
		{
			name:          "weak with device credential, strong required",
			weak:          true,
			devCred:       true,
			requireStrong: true,
			expected: Capability{
				Available:                true,
				DeviceCredentialFallback: true,
				Authenticator:            "device-credential",
			},
		},
		{
			name: "nothing available",
			expected: Capability{
				Authenticator: "none",
			},
		},
		{
			name:    "strong with device credential fallback",
			strong:  true,
			devCred: true,
			expected: Capability{
				Available:                true,
				StrongAvailable:          true,
				DeviceCredentialFallback: true,
				Authenticator:            "fingerprint",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := computeCapability(tt.strong, tt.weak, tt.devCred, tt.requireStrong)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestSimulatorOutcomes(t *testing.T) {
	gate := NewSimulatorGate(logging.Initialize("error"))

	for _, outcome := range []Result{ResultGranted, ResultDenied, ResultUnavailable} {
		gate.SetOutcome(outcome)
		assert.Equal(t, outcome, gate.Authenticate(context.Background(), "test"))
	}

	assert.Equal(t, []string{"test", "test", "test"}, gate.Prompts())
}

func TestSimulatorCancellation(t *testing.T) {
	gate := NewSimulatorGate(logging.Initialize("error"))
	gate.SetDelay(5 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan Result, 1)
	go func() {
		done <- gate.Authenticate(ctx, "unlock")
	}()

	cancel()

	select {
	case result := <-done:
		assert.Equal(t, ResultCanceled, result)
	case <-time.After(2 * time.Second):
		t.Fatal("Authenticate did not resolve after cancellation")
	}
}

func TestSimulatorCapabilityScripting(t *testing.T) {
	gate := NewSimulatorGate(logging.Initialize("error"))

	cap := gate.Capability(false)
	assert.True(t, cap.Available)
	assert.True(t, cap.StrongAvailable)

	gate.SetHardware(false, true, true)

	cap = gate.Capability(false)
	assert.True(t, cap.Available)
	assert.True(t, cap.WeakOnly)

	cap = gate.Capability(true)
	assert.False(t, cap.WeakOnly)
	assert.Equal(t, "device-credential", cap.Authenticator)
}

func TestResultString(t *testing.T) {
	assert.Equal(t, "granted", ResultGranted.String())
	assert.Equal(t, "denied", ResultDenied.String())
	assert.Equal(t, "unavailable", ResultUnavailable.String())
	assert.Equal(t, "canceled", ResultCanceled.String())
}

func TestNewGate(t *testing.T) {
	logger := logging.Initialize("error")

	gate, err := NewGate(config.GateConfig{Provider: "simulator"}, logger)
	require.NoError(t, err)
	assert.IsType(t, &SimulatorGate{}, gate)

	gate, err = NewGate(config.GateConfig{Provider: "fprintd", Timeout: 30}, logger)
	require.NoError(t, err)
	assert.IsType(t, &FprintdGate{}, gate)

	_, err = NewGate(config.GateConfig{Provider: "bogus"}, logger)
	assert.Error(t, err)
}
