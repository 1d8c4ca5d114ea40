//go:build !windows && !darwin

package keyring

import (
	"fmt"
	"runtime"
)

// newPlatformProvider returns an error on platforms without an OS key store;
// the file provider is the supported choice here
func newPlatformProvider(name string) (Provider, error) {
	return nil, fmt.Errorf("keyring provider %s not supported on %s", name, runtime.GOOS)
}
