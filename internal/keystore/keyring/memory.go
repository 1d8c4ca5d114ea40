package keyring

import (
	"sort"
	"strings"
	"sync"
)

// MemoryProvider keeps key material in process memory. Intended for tests
// and development only.
type MemoryProvider struct {
	mu   sync.RWMutex
	keys map[string][]byte
}

// NewMemoryProvider creates an empty in-memory provider
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		keys: make(map[string][]byte),
	}
}

// CreateKey generates a new key under alias
func (p *MemoryProvider) CreateKey(alias string) (Key, error) {
	material, err := generateKeyMaterial()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.keys[alias] = material
	p.mu.Unlock()

	return newAEADKey(alias, material)
}

// Key returns a handle to the key stored under alias
func (p *MemoryProvider) Key(alias string) (Key, error) {
	p.mu.RLock()
	material, ok := p.keys[alias]
	p.mu.RUnlock()

	if !ok {
		return nil, ErrKeyNotFound
	}
	return newAEADKey(alias, material)
}

// DeleteKey removes the key stored under alias
func (p *MemoryProvider) DeleteKey(alias string) error {
	p.mu.Lock()
	delete(p.keys, alias)
	p.mu.Unlock()
	return nil
}

// ListAliases returns all stored aliases starting with prefix
func (p *MemoryProvider) ListAliases(prefix string) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var aliases []string
	for alias := range p.keys {
		if strings.HasPrefix(alias, prefix) {
			aliases = append(aliases, alias)
		}
	}
	sort.Strings(aliases)
	return aliases, nil
}
