//go:build darwin

package keyring

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os/exec"
	"sort"
	"strings"
)

// KeychainProvider stores key material in the macOS Keychain, one generic
// password item per alias. A separate index item tracks the alias set since
// the keychain offers no prefix enumeration.
type KeychainProvider struct {
	serviceName  string
	indexAccount string
}

// NewKeychainProvider creates a macOS Keychain provider
func NewKeychainProvider() (*KeychainProvider, error) {
	return &KeychainProvider{
		serviceName:  "MediaClientBridge",
		indexAccount: "alias-index",
	}, nil
}

// CreateKey generates a new key under alias
func (p *KeychainProvider) CreateKey(alias string) (Key, error) {
	material, err := generateKeyMaterial()
	if err != nil {
		return nil, err
	}

	encoded := base64.StdEncoding.EncodeToString(material)

	// Delete any existing item first; -U alone does not reliably replace
	p.deleteItem(alias)

	cmd := exec.Command("security", "add-generic-password",
		"-s", p.serviceName,
		"-a", alias,
		"-w", encoded,
		"-U",
	)
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: failed to store key in keychain: %v", ErrUnavailable, err)
	}

	if err := p.addToIndex(alias); err != nil {
		return nil, err
	}

	return newAEADKey(alias, material)
}

// Key returns a handle to the key stored under alias
func (p *KeychainProvider) Key(alias string) (Key, error) {
	cmd := exec.Command("security", "find-generic-password",
		"-s", p.serviceName,
		"-a", alias,
		"-w",
	)

	output, err := cmd.Output()
	if err != nil {
		return nil, ErrKeyNotFound
	}

	material, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(output)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode keychain item for alias %s: %w", alias, err)
	}
	if len(material) != KeySize {
		return nil, fmt.Errorf("keychain item for alias %s has wrong size %d", alias, len(material))
	}

	return newAEADKey(alias, material)
}

// DeleteKey removes the key stored under alias
func (p *KeychainProvider) DeleteKey(alias string) error {
	p.deleteItem(alias)
	return p.removeFromIndex(alias)
}

// ListAliases returns all stored aliases starting with prefix
func (p *KeychainProvider) ListAliases(prefix string) ([]string, error) {
	index, err := p.readIndex()
	if err != nil {
		return nil, err
	}

	var aliases []string
	for _, alias := range index {
		if strings.HasPrefix(alias, prefix) {
			aliases = append(aliases, alias)
		}
	}
	sort.Strings(aliases)
	return aliases, nil
}

func (p *KeychainProvider) deleteItem(account string) {
	cmd := exec.Command("security", "delete-generic-password",
		"-s", p.serviceName,
		"-a", account,
	)
	// Ignore error if item doesn't exist
	cmd.Run()
}

func (p *KeychainProvider) readIndex() ([]string, error) {
	cmd := exec.Command("security", "find-generic-password",
		"-s", p.serviceName,
		"-a", p.indexAccount,
		"-w",
	)

	output, err := cmd.Output()
	if err != nil {
		// No index item yet means no keys stored
		return nil, nil
	}

	var index []string
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(output))), &index); err != nil {
		return nil, fmt.Errorf("failed to unmarshal alias index: %w", err)
	}
	return index, nil
}

func (p *KeychainProvider) writeIndex(index []string) error {
	data, err := json.Marshal(index)
	if err != nil {
		return fmt.Errorf("failed to marshal alias index: %w", err)
	}

	p.deleteItem(p.indexAccount)

	cmd := exec.Command("security", "add-generic-password",
		"-s", p.serviceName,
		"-a", p.indexAccount,
		"-w", string(data),
		"-U",
	)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: failed to store alias index: %v", ErrUnavailable, err)
	}
	return nil
}

func (p *KeychainProvider) addToIndex(alias string) error {
	index, err := p.readIndex()
	if err != nil {
		return err
	}
	for _, existing := range index {
		if existing == alias {
			return nil
		}
	}
	return p.writeIndex(append(index, alias))
}

func (p *KeychainProvider) removeFromIndex(alias string) error {
	index, err := p.readIndex()
	if err != nil {
		return err
	}

	filtered := index[:0]
	for _, existing := range index {
		if existing != alias {
			filtered = append(filtered, existing)
		}
	}
	return p.writeIndex(filtered)
}

// newPlatformProvider creates the macOS keychain provider
func newPlatformProvider(name string) (Provider, error) {
	if name != "keychain" {
		return nil, fmt.Errorf("keyring provider %s not supported on darwin", name)
	}
	return NewKeychainProvider()
}
