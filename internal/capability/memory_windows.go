//go:build windows

package capability

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// globalMemoryProber reads total memory via GlobalMemoryStatusEx
type globalMemoryProber struct{}

// NewMemoryProber creates the Windows memory prober
func NewMemoryProber() MemoryProber {
	return &globalMemoryProber{}
}

var (
	kernel32                 = windows.NewLazySystemDLL("kernel32.dll")
	procGlobalMemoryStatusEx = kernel32.NewProc("GlobalMemoryStatusEx")
)

type memoryStatusEx struct {
	Length               uint32
	MemoryLoad           uint32
	TotalPhys            uint64
	AvailPhys            uint64
	TotalPageFile        uint64
	AvailPageFile        uint64
	TotalVirtual         uint64
	AvailVirtual         uint64
	AvailExtendedVirtual uint64
}

// TotalMemoryBytes returns total physical memory
func (p *globalMemoryProber) TotalMemoryBytes() (uint64, error) {
	var status memoryStatusEx
	status.Length = uint32(unsafe.Sizeof(status))

	ret, _, err := procGlobalMemoryStatusEx.Call(uintptr(unsafe.Pointer(&status)))
	if ret == 0 {
		return 0, fmt.Errorf("GlobalMemoryStatusEx failed: %v", err)
	}

	return status.TotalPhys, nil
}
