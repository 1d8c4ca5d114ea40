package keyring

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

// Provider manages symmetric keys identified by alias. Key material stays
// inside the provider; callers only ever receive a Key handle that seals and
// opens with caller-supplied nonces.
type Provider interface {
	// CreateKey generates a new AES-256 key under the given alias,
	// replacing any existing key with the same alias
	CreateKey(alias string) (Key, error)

	// Key returns a handle to the key stored under alias, or ErrKeyNotFound
	Key(alias string) (Key, error)

	// DeleteKey removes the key stored under alias; missing aliases are
	// not an error
	DeleteKey(alias string) error

	// ListAliases returns all stored aliases starting with prefix
	ListAliases(prefix string) ([]string, error)
}

// Key is a handle to a symmetric key. Nonces are caller-supplied so a
// recorded nonce can be replayed for decryption.
type Key interface {
	Alias() string
	NonceSize() int
	Seal(nonce, plaintext []byte) ([]byte, error)
	Open(nonce, ciphertext []byte) ([]byte, error)
}

var (
	// ErrKeyNotFound is returned when no key exists under the requested alias
	ErrKeyNotFound = errors.New("key not found")

	// ErrUnavailable is returned when the platform key storage cannot be
	// reached at all
	ErrUnavailable = errors.New("key storage unavailable")
)

// KeySize is the AES-256 key size in bytes
const KeySize = 32

// NewProvider creates a provider by name. The keychain and wincred providers
// are only available on their respective platforms.
func NewProvider(name, keyDir string) (Provider, error) {
	switch name {
	case "memory":
		return NewMemoryProvider(), nil
	case "file":
		return NewFileProvider(keyDir)
	case "keychain", "wincred":
		return newPlatformProvider(name)
	default:
		return nil, fmt.Errorf("unknown keyring provider: %s", name)
	}
}

// generateKeyMaterial produces fresh AES-256 key material
func generateKeyMaterial() ([]byte, error) {
	material := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, material); err != nil {
		return nil, fmt.Errorf("failed to generate key material: %w", err)
	}
	return material, nil
}

// aeadKey implements Key over an AES-GCM AEAD
type aeadKey struct {
	alias string
	aead  cipher.AEAD
}

// newAEADKey builds a Key handle from raw key material. The material is not
// retained beyond cipher initialization.
func newAEADKey(alias string, material []byte) (Key, error) {
	block, err := aes.NewCipher(material)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &aeadKey{alias: alias, aead: gcm}, nil
}

func (k *aeadKey) Alias() string {
	return k.alias
}

func (k *aeadKey) NonceSize() int {
	return k.aead.NonceSize()
}

func (k *aeadKey) Seal(nonce, plaintext []byte) ([]byte, error) {
	if len(nonce) != k.aead.NonceSize() {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", k.aead.NonceSize(), len(nonce))
	}
	return k.aead.Seal(nil, nonce, plaintext, nil), nil
}

func (k *aeadKey) Open(nonce, ciphertext []byte) ([]byte, error) {
	if len(nonce) != k.aead.NonceSize() {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", k.aead.NonceSize(), len(nonce))
	}

	plaintext, err := k.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}
