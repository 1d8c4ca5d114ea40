//go:build windows

package keyring

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"unsafe"
)

// WincredProvider stores key material in per-alias files protected with
// Windows DPAPI, so only the current user on this machine can recover it.
type WincredProvider struct {
	dir string
}

// NewWincredProvider creates a DPAPI-backed provider
func NewWincredProvider() (*WincredProvider, error) {
	appData, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to resolve config directory: %v", ErrUnavailable, err)
	}

	dir := filepath.Join(appData, "MediaClientBridge", "keys")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("%w: failed to create key directory: %v", ErrUnavailable, err)
	}

	return &WincredProvider{dir: dir}, nil
}

var (
	crypt32                = syscall.NewLazyDLL("crypt32.dll")
	procCryptProtectData   = crypt32.NewProc("CryptProtectData")
	procCryptUnprotectData = crypt32.NewProc("CryptUnprotectData")
)

type dataBlob struct {
	cbData uint32
	pbData *byte
}

func (p *WincredProvider) path(alias string) string {
	return filepath.Join(p.dir, alias+keyFileSuffix)
}

// CreateKey generates a new key under alias
func (p *WincredProvider) CreateKey(alias string) (Key, error) {
	material, err := generateKeyMaterial()
	if err != nil {
		return nil, err
	}

	protected, err := protectData(material)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if err := os.WriteFile(p.path(alias), protected, 0600); err != nil {
		return nil, fmt.Errorf("%w: failed to write key file: %v", ErrUnavailable, err)
	}

	return newAEADKey(alias, material)
}

// Key returns a handle to the key stored under alias
func (p *WincredProvider) Key(alias string) (Key, error) {
	protected, err := os.ReadFile(p.path(alias))
	if os.IsNotExist(err) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read key file: %v", ErrUnavailable, err)
	}

	material, err := unprotectData(protected)
	if err != nil {
		return nil, fmt.Errorf("failed to unprotect key for alias %s: %w", alias, err)
	}
	if len(material) != KeySize {
		return nil, fmt.Errorf("key for alias %s has wrong size %d", alias, len(material))
	}

	return newAEADKey(alias, material)
}

// DeleteKey removes the key stored under alias
func (p *WincredProvider) DeleteKey(alias string) error {
	err := os.Remove(p.path(alias))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete key file for alias %s: %w", alias, err)
	}
	return nil
}

// ListAliases returns all stored aliases starting with prefix
func (p *WincredProvider) ListAliases(prefix string) ([]string, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read key directory: %v", ErrUnavailable, err)
	}

	var aliases []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, keyFileSuffix) {
			continue
		}
		alias := strings.TrimSuffix(name, keyFileSuffix)
		if strings.HasPrefix(alias, prefix) {
			aliases = append(aliases, alias)
		}
	}
	sort.Strings(aliases)
	return aliases, nil
}

// protectData encrypts data using Windows DPAPI
func protectData(data []byte) ([]byte, error) {
	var inBlob dataBlob
	inBlob.pbData = &data[0]
	inBlob.cbData = uint32(len(data))

	var outBlob dataBlob

	ret, _, err := procCryptProtectData.Call(
		uintptr(unsafe.Pointer(&inBlob)),
		0, // description
		0, // optional entropy
		0, // reserved
		0, // prompt struct
		0, // flags
		uintptr(unsafe.Pointer(&outBlob)),
	)
	if ret == 0 {
		return nil, fmt.Errorf("CryptProtectData failed: %v", err)
	}

	protected := make([]byte, outBlob.cbData)
	copy(protected, (*[1 << 30]byte)(unsafe.Pointer(outBlob.pbData))[:outBlob.cbData:outBlob.cbData])
	syscall.LocalFree(syscall.Handle(unsafe.Pointer(outBlob.pbData)))

	return protected, nil
}

// unprotectData decrypts data using Windows DPAPI
func unprotectData(protected []byte) ([]byte, error) {
	var inBlob dataBlob
	inBlob.pbData = &protected[0]
	inBlob.cbData = uint32(len(protected))

	var outBlob dataBlob

	ret, _, err := procCryptUnprotectData.Call(
		uintptr(unsafe.Pointer(&inBlob)),
		0, // description
		0, // optional entropy
		0, // reserved
		0, // prompt struct
		0, // flags
		uintptr(unsafe.Pointer(&outBlob)),
	)
	if ret == 0 {
		return nil, fmt.Errorf("CryptUnprotectData failed: %v", err)
	}

	data := make([]byte, outBlob.cbData)
	copy(data, (*[1 << 30]byte)(unsafe.Pointer(outBlob.pbData))[:outBlob.cbData:outBlob.cbData])
	syscall.LocalFree(syscall.Handle(unsafe.Pointer(outBlob.pbData)))

	return data, nil
}

// newPlatformProvider creates the Windows DPAPI provider
func newPlatformProvider(name string) (Provider, error) {
	if name != "wincred" {
		return nil, fmt.Errorf("keyring provider %s not supported on windows", name)
	}
	return NewWincredProvider()
}
