package keyring

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileProvider stores key material in per-alias files under a private
// directory. Used where no OS key storage is available (typical for a
// headless Linux HTPC); file permissions are the only protection boundary.
type FileProvider struct {
	dir string
}

const keyFileSuffix = ".key"

// NewFileProvider creates a file-backed provider rooted at dir. An empty dir
// defaults to ~/.media-client-bridge/keys.
func NewFileProvider(dir string) (*FileProvider, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("%w: failed to resolve home directory: %v", ErrUnavailable, err)
		}
		dir = filepath.Join(home, ".media-client-bridge", "keys")
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("%w: failed to create key directory: %v", ErrUnavailable, err)
	}

	return &FileProvider{dir: dir}, nil
}

func (p *FileProvider) path(alias string) string {
	return filepath.Join(p.dir, alias+keyFileSuffix)
}

// CreateKey generates a new key under alias
func (p *FileProvider) CreateKey(alias string) (Key, error) {
	material, err := generateKeyMaterial()
	if err != nil {
		return nil, err
	}

	encoded := base64.StdEncoding.EncodeToString(material)
	if err := os.WriteFile(p.path(alias), []byte(encoded), 0600); err != nil {
		return nil, fmt.Errorf("%w: failed to write key file: %v", ErrUnavailable, err)
	}

	return newAEADKey(alias, material)
}

// Key returns a handle to the key stored under alias
func (p *FileProvider) Key(alias string) (Key, error) {
	data, err := os.ReadFile(p.path(alias))
	if os.IsNotExist(err) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read key file: %v", ErrUnavailable, err)
	}

	material, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode key file for alias %s: %w", alias, err)
	}
	if len(material) != KeySize {
		return nil, fmt.Errorf("key file for alias %s has wrong size %d", alias, len(material))
	}

	return newAEADKey(alias, material)
}

// DeleteKey removes the key stored under alias
func (p *FileProvider) DeleteKey(alias string) error {
	err := os.Remove(p.path(alias))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete key file for alias %s: %w", alias, err)
	}
	return nil
}

// ListAliases returns all stored aliases starting with prefix
func (p *FileProvider) ListAliases(prefix string) ([]string, error) {
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
