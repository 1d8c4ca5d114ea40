//go:build !linux

package capability

import (
	"context"
	"fmt"
	"runtime"
)

// stubDisplayProber reports an error so the analyzer falls back to its
// 1080p floor on platforms without a display probe
type stubDisplayProber struct{}

// NewDisplayProber creates the stub display prober
func NewDisplayProber() DisplayProber {
	return &stubDisplayProber{}
}

func (p *stubDisplayProber) MaxDisplayResolution(ctx context.Context) (int, int, error) {
	return 0, 0, fmt.Errorf("display probing not supported on %s", runtime.GOOS)
}
