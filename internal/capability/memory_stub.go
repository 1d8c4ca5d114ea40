//go:build !linux && !windows

package capability

import (
	"runtime"
)

// runtimeMemoryProber gives a rough estimate from the Go runtime where no
// platform call is available. The estimate errs low, which only ever
// down-tiers the device.
type runtimeMemoryProber struct{}

// NewMemoryProber creates the fallback memory prober
func NewMemoryProber() MemoryProber {
	return &runtimeMemoryProber{}
}

// TotalMemoryBytes estimates total memory from runtime statistics
func (p *runtimeMemoryProber) TotalMemoryBytes() (uint64, error) {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.Sys * 4, nil
}
