//go:build linux

package capability

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// drmDisplayProber reads connected display modes from the DRM subsystem
type drmDisplayProber struct {
	sysfsRoot string
}

// NewDisplayProber creates the Linux DRM display prober
func NewDisplayProber() DisplayProber {
	return &drmDisplayProber{sysfsRoot: "/sys/class/drm"}
}

// MaxDisplayResolution scans /sys/class/drm/card*/modes for the largest
// advertised mode across all connectors
func (p *drmDisplayProber) MaxDisplayResolution(ctx context.Context) (int, int, error) {
	matches, err := filepath.Glob(filepath.Join(p.sysfsRoot, "card*", "modes"))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to glob drm connectors: %w", err)
	}

	maxWidth, maxHeight := 0, 0
	for _, path := range matches {
		width, height, err := p.scanModes(path)
		if err != nil {
			continue
		}
		if width*height > maxWidth*maxHeight {
			maxWidth, maxHeight = width, height
		}
	}

	if maxWidth == 0 || maxHeight == 0 {
		return 0, 0, fmt.Errorf("no display modes found under %s", p.sysfsRoot)
	}
	return maxWidth, maxHeight, nil
}

// scanModes parses a connector's modes file, lines like "3840x2160"
func (p *drmDisplayProber) scanModes(path string) (int, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer file.Close()

	maxWidth, maxHeight := 0, 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		parts := strings.SplitN(strings.TrimSpace(scanner.Text()), "x", 2)
		if len(parts) != 2 {
			continue
		}

		width, werr := strconv.Atoi(parts[0])
		height, herr := strconv.Atoi(parts[1])
		if werr != nil || herr != nil {
			continue
		}

		if width*height > maxWidth*maxHeight {
			maxWidth, maxHeight = width, height
		}
	}

	if err := scanner.Err(); err != nil {
		return 0, 0, err
	}
	if maxWidth == 0 {
		return 0, 0, fmt.Errorf("no modes in %s", path)
	}
	return maxWidth, maxHeight, nil
}
