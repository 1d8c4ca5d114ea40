//go:build linux

package capability

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// sysinfoMemoryProber reads total memory via the sysinfo syscall
type sysinfoMemoryProber struct{}

// NewMemoryProber creates the Linux memory prober
func NewMemoryProber() MemoryProber {
	return &sysinfoMemoryProber{}
}

// TotalMemoryBytes returns total physical memory
func (p *sysinfoMemoryProber) TotalMemoryBytes() (uint64, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, fmt.Errorf("sysinfo failed: %w", err)
	}
	return uint64(info.Totalram) * uint64(info.Unit), nil
}
