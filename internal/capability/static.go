package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// Fixture describes a simulated device for the static prober. Used by tests
// and by `probe --fixture` to evaluate capability decisions for a device
// other than the one the agent runs on.
type Fixture struct {
	Decoders         []Decoder `json:"decoders"`
	DisplayWidth     int       `json:"displayWidth"`
	DisplayHeight    int       `json:"displayHeight"`
	TotalMemoryBytes uint64    `json:"totalMemoryBytes"`

	// Failure switches for exercising fail-closed paths
	FailDecoders bool `json:"failDecoders,omitempty"`
	FailDisplay  bool `json:"failDisplay,omitempty"`
	FailMemory   bool `json:"failMemory,omitempty"`
}

// LoadFixture reads a fixture from a JSON file
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture file: %w", err)
	}

	var fixture Fixture
	if err := json.Unmarshal(data, &fixture); err != nil {
		return nil, fmt.Errorf("failed to parse fixture file: %w", err)
	}
	return &fixture, nil
}

// StaticProber implements all three prober interfaces from a fixture
type StaticProber struct {
	fixture *Fixture
}

// NewStaticProber creates a prober backed by the given fixture
func NewStaticProber(fixture *Fixture) *StaticProber {
	return &StaticProber{fixture: fixture}
}

// ProbeDecoders returns the fixture's decoder set
func (p *StaticProber) ProbeDecoders(ctx context.Context) ([]Decoder, error) {
	if p.fixture.FailDecoders {
		return nil, fmt.Errorf("simulated decoder probe failure")
	}
	return append([]Decoder(nil), p.fixture.Decoders...), nil
}

// MaxDisplayResolution returns the fixture's display mode
func (p *StaticProber) MaxDisplayResolution(ctx context.Context) (int, int, error) {
	if p.fixture.FailDisplay {
		return 0, 0, fmt.Errorf("simulated display probe failure")
	}
	if p.fixture.DisplayWidth == 0 || p.fixture.DisplayHeight == 0 {
		return 0, 0, fmt.Errorf("fixture has no display mode")
	}
	return p.fixture.DisplayWidth, p.fixture.DisplayHeight, nil
}

// TotalMemoryBytes returns the fixture's memory size
func (p *StaticProber) TotalMemoryBytes() (uint64, error) {
	if p.fixture.FailMemory {
		return 0, fmt.Errorf("simulated memory probe failure")
	}
	return p.fixture.TotalMemoryBytes, nil
}
