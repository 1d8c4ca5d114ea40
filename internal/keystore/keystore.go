package keystore

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"media-client-bridge/internal/authgate"
	"media-client-bridge/internal/config"
	"media-client-bridge/internal/keystore/keyring"
	"media-client-bridge/internal/logging"
	"media-client-bridge/internal/storage"
	"media-client-bridge/internal/types"
)

var (
	// ErrKeystoreUnavailable is returned when the underlying key storage
	// cannot be reached. There is no plaintext fallback path.
	ErrKeystoreUnavailable = errors.New("keystore unavailable")

	// ErrInvalidInput is returned when serverURL or username is blank
	ErrInvalidInput = errors.New("server URL and username must not be blank")
)

// Outcome classifies the result of a password lookup
type Outcome int

const (
	// OutcomeNotFound means no credential is stored for the pair
	OutcomeNotFound Outcome = iota
	// OutcomeFound means the password decrypted cleanly
	OutcomeFound
	// OutcomeDeclined means the biometric gate refused to unlock
	OutcomeDeclined
	// OutcomeCorrupted means a stored entry failed authentication on decrypt
	OutcomeCorrupted
)

// String returns the string representation of the outcome
func (o Outcome) String() string {
	switch o {
	case OutcomeFound:
		return "found"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeDeclined:
		return "declined"
	case OutcomeCorrupted:
		return "corrupted"
	default:
		return "unknown"
	}
}

// Lookup is the result of a password lookup. Outcomes other than
// OutcomeFound never surface a password.
type Lookup struct {
	Outcome Outcome
	SavedAt time.Time

	password string
}

// Found reports whether the lookup produced a password
func (l Lookup) Found() bool {
	return l.Outcome == OutcomeFound
}

// Password returns the stored password, or "" for any non-found outcome.
// Login flows that do not care why a credential is missing use this and
// re-prompt the user.
func (l Lookup) Password() string {
	if l.Outcome != OutcomeFound {
		return ""
	}
	return l.password
}

const (
	baseAlias  = "mcb_key"
	keyVersion = 1
)

// Store persists passwords for (server, username) pairs encrypted under a
// rotating AES-256-GCM key held by a keyring provider. Entries saved under
// older key-derivation schemes migrate forward transparently on lookup.
type Store struct {
	storage          *storage.Store
	provider         keyring.Provider
	appSalt          string
	rotationInterval time.Duration
	clock            func() time.Time
	logger           *logrus.Entry
	onEvent          types.CredentialCallback

	// rotateMu serializes key creation so a save racing a rotation can
	// never observe a half-rotated alias set
	rotateMu sync.Mutex
}

// Option is a functional option for configuring the Store
type Option func(*Store)

// WithClock sets the time source used for rotation epochs and timestamps
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

// WithEventCallback sets a callback invoked on credential lifecycle events
func WithEventCallback(callback types.CredentialCallback) Option {
	return func(s *Store) {
		s.onEvent = callback
	}
}

// New creates a credential store over the given storage and keyring provider
func New(store *storage.Store, provider keyring.Provider, cfg config.KeystoreConfig, logger *logrus.Logger, opts ...Option) *Store {
	s := &Store{
		storage:          store,
		provider:         provider,
		appSalt:          cfg.AppSalt,
		rotationInterval: cfg.RotationIntervalDuration(),
		clock:            time.Now,
		logger:           logging.NewComponentLogger(logger, "keystore"),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// SavePassword encrypts and stores the password for a (server, username)
// pair under the current-scheme key, deleting any legacy-scheme entries for
// the same pair in the same transaction.
func (s *Store) SavePassword(ctx context.Context, serverURL, username, password string) error {
	if strings.TrimSpace(serverURL) == "" || strings.TrimSpace(username) == "" {
		return ErrInvalidInput
	}

	key, err := s.ensureCurrentKey(false)
	if err != nil {
		return err
	}

	value, err := s.encrypt(key, password)
	if err != nil {
		return fmt.Errorf("failed to encrypt password: %w", err)
	}

	storageKey := currentScheme.derive(serverURL, username, s.appSalt)
	timestamp := strconv.FormatInt(s.clock().Unix(), 10)

	writes := map[string]string{
		storageKey:                   value,
		storageKey + timestampSuffix: timestamp,
	}

	var deletes []string
	for _, scheme := range legacySchemes {
		legacyKey := scheme.derive(serverURL, username, s.appSalt)
		if legacyKey != storageKey {
			deletes = append(deletes, legacyKey, legacyKey+timestampSuffix)
		}
	}

	if err := s.storage.ReplaceKeys(writes, deletes); err != nil {
		return fmt.Errorf("failed to persist credential: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"key_alias": key.Alias(),
	}).Debug("Credential saved")

	s.emit(types.EventTypeSaved, serverURL, username)
	return nil
}

// GetPassword looks up the password for a (server, username) pair, walking
// the legacy derivation schemes on a current-scheme miss and migrating any
// legacy hit forward.
func (s *Store) GetPassword(ctx context.Context, serverURL, username string) Lookup {
	return s.lookup(serverURL, username)
}

// GetPasswordGated is GetPassword behind the biometric gate: when the gate
// is present and available for the requested authenticator class, a failed
// or declined prompt resolves to OutcomeDeclined and the password is never
// surfaced.
func (s *Store) GetPasswordGated(ctx context.Context, serverURL, username string, gate authgate.Gate, requireStrong bool) Lookup {
	if gate != nil && gate.Capability(requireStrong).Available {
		if result := gate.Authenticate(ctx, "Unlock stored media server credentials"); result != authgate.ResultGranted {
			s.logger.WithField("result", result.String()).Info("Credential access declined by gate")
			return Lookup{Outcome: OutcomeDeclined}
		}
	}
	return s.lookup(serverURL, username)
}

// ClearPassword removes the stored credential for a (server, username)
// pair, including any legacy-scheme entries
func (s *Store) ClearPassword(ctx context.Context, serverURL, username string) error {
	if strings.TrimSpace(serverURL) == "" || strings.TrimSpace(username) == "" {
		return ErrInvalidInput
	}

	keys := []string{}
	storageKey := currentScheme.derive(serverURL, username, s.appSalt)
	keys = append(keys, storageKey, storageKey+timestampSuffix)
	for _, scheme := range legacySchemes {
		legacyKey := scheme.derive(serverURL, username, s.appSalt)
		keys = append(keys, legacyKey, legacyKey+timestampSuffix)
	}

	if err := s.storage.DeleteBatch(keys); err != nil {
		return fmt.Errorf("failed to clear credential: %w", err)
	}

	s.emit(types.EventTypeCleared, serverURL, username)
	return nil
}

// ClearAll wipes every entry owned by the store
func (s *Store) ClearAll(ctx context.Context) error {
	n, err := s.storage.Wipe(entryPrefix)
	if err != nil {
		return fmt.Errorf("failed to wipe credentials: %w", err)
	}

	s.logger.WithField("entries", n).Info("All credentials cleared")
	s.emit(types.EventTypeCleared, "", "")
	return nil
}

// RotateKey force-creates a new current-epoch key ahead of schedule. Every
// stored entry is re-encrypted under the new key before stale aliases are
// swept, so rotation alone can never make a saved credential unreadable.
func (s *Store) RotateKey(ctx context.Context) error {
	key, err := s.ensureCurrentKey(true)
	if err != nil {
		return err
	}

	s.logger.WithField("key_alias", key.Alias()).Info("Encryption key rotated")
	s.emit(types.EventTypeRotated, "", "")
	return nil
}

// lookup implements the ordered current-then-legacy search
func (s *Store) lookup(serverURL, username string) Lookup {
	if strings.TrimSpace(serverURL) == "" || strings.TrimSpace(username) == "" {
		return Lookup{Outcome: OutcomeNotFound}
	}

	key, err := s.ensureCurrentKey(false)
	if err != nil {
		s.logger.WithError(err).Error("Key unavailable during lookup")
		return Lookup{Outcome: OutcomeNotFound}
	}

	storageKey := currentScheme.derive(serverURL, username, s.appSalt)

	value, err := s.storage.Get(storageKey)
	if err == nil {
		password, derr := s.decrypt(key, value)
		if derr != nil {
			s.logger.WithError(derr).Warn("Stored credential failed decryption")
			return Lookup{Outcome: OutcomeCorrupted}
		}
		return Lookup{
			Outcome:  OutcomeFound,
			SavedAt:  s.savedAt(storageKey),
			password: password,
		}
	}
	if !errors.Is(err, storage.ErrNotFound) {
		s.logger.WithError(err).Error("Failed to read credential entry")
		return Lookup{Outcome: OutcomeNotFound}
	}

	// Ordered legacy walk: normalized derivation before raw
	for _, scheme := range legacySchemes {
		legacyKey := scheme.derive(serverURL, username, s.appSalt)

		value, err := s.storage.Get(legacyKey)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			s.logger.WithError(err).Error("Failed to read legacy credential entry")
			return Lookup{Outcome: OutcomeNotFound}
		}

		password, derr := s.decrypt(key, value)
		if derr != nil {
			s.logger.WithFields(logrus.Fields{
				"scheme": scheme.name,
			}).Warn("Legacy credential failed decryption")
			return Lookup{Outcome: OutcomeCorrupted}
		}

		if err := s.migrate(legacyKey, storageKey, value); err != nil {
			// Migration failure is non-fatal; the legacy entry stays
			// readable and the next lookup retries
			s.logger.WithError(err).Warn("Failed to migrate legacy credential")
		} else {
			s.logger.WithField("scheme", scheme.name).Info("Legacy credential migrated")
			s.emit(types.EventTypeMigrated, serverURL, username)
		}

		return Lookup{
			Outcome:  OutcomeFound,
			SavedAt:  s.savedAt(storageKey),
			password: password,
		}
	}

	return Lookup{Outcome: OutcomeNotFound}
}

// migrate re-homes a legacy entry under the current-scheme key in a single
// transaction, preserving the original save timestamp
func (s *Store) migrate(legacyKey, storageKey, value string) error {
	writes := map[string]string{storageKey: value}
	if timestamp, err := s.storage.Get(legacyKey + timestampSuffix); err == nil {
		writes[storageKey+timestampSuffix] = timestamp
	}

	return s.storage.ReplaceKeys(writes, []string{legacyKey, legacyKey + timestampSuffix})
}

// savedAt reads the timestamp sibling of an entry, zero time when absent
func (s *Store) savedAt(storageKey string) time.Time {
	value, err := s.storage.Get(storageKey + timestampSuffix)
	if err != nil {
		return time.Time{}
	}

	unix, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(unix, 0)
}

// aliasPrefix is the prefix shared by every key alias the store owns
func (s *Store) aliasPrefix() string {
	return baseAlias + "_"
}

// currentAlias computes the alias for the current rotation epoch
func (s *Store) currentAlias() string {
	epoch := s.clock().Unix() / int64(s.rotationInterval/time.Second)
	return fmt.Sprintf("%s_v%d_%d", baseAlias, keyVersion, epoch)
}

// ensureCurrentKey returns a handle to the current-epoch key, creating it
// when absent or when force is set
func (s *Store) ensureCurrentKey(force bool) (keyring.Key, error) {
	alias := s.currentAlias()

	if !force {
		key, err := s.provider.Key(alias)
		if err == nil {
			return key, nil
		}
		if !errors.Is(err, keyring.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrKeystoreUnavailable, err)
		}
	}

	return s.createCurrentKey(alias, force)
}

// createCurrentKey creates the key for alias, re-encrypts every stored
// entry under it, then sweeps all other base-prefix aliases. Serialized so
// concurrent saves cannot observe a half-rotated alias set.
func (s *Store) createCurrentKey(alias string, force bool) (keyring.Key, error) {
	s.rotateMu.Lock()
	defer s.rotateMu.Unlock()

	// Re-check under the lock: another caller may have created it
	if !force {
		if key, err := s.provider.Key(alias); err == nil {
			return key, nil
		}
	}

	oldAliases, err := s.provider.ListAliases(s.aliasPrefix())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeystoreUnavailable, err)
	}

	// Grab handles before creation: a forced rotation replaces the
	// material under the same alias, and the sweep removes the rest
	var oldKeys []keyring.Key
	for _, old := range oldAliases {
		if key, err := s.provider.Key(old); err == nil {
			oldKeys = append(oldKeys, key)
		}
	}

	newKey, err := s.provider.CreateKey(alias)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeystoreUnavailable, err)
	}

	if err := s.reencryptEntries(newKey, oldKeys); err != nil {
		return nil, err
	}

	// Sweep stale aliases only after re-encryption committed
	swept := 0
	for _, old := range oldAliases {
		if old == alias {
			continue
		}
		if err := s.provider.DeleteKey(old); err != nil {
			s.logger.WithError(err).WithField("alias", old).Warn("Failed to delete stale key alias")
			continue
		}
		swept++
	}

	s.logger.WithFields(logrus.Fields{
		"key_alias":     alias,
		"swept_aliases": swept,
		"forced":        force,
	}).Info("Encryption key created")

	return newKey, nil
}

// reencryptEntries rewrites every stored entry under newKey. Entries no key
// can open are left in place and will surface as corrupted on lookup.
func (s *Store) reencryptEntries(newKey keyring.Key, oldKeys []keyring.Key) error {
	entries, err := s.storage.List(entryPrefix)
	if err != nil {
		return fmt.Errorf("failed to list entries for re-encryption: %w", err)
	}

	writes := make(map[string]string)
	for _, entry := range entries {
		if strings.HasSuffix(entry.Key, timestampSuffix) {
			continue
		}

		plaintext, ok := s.tryDecrypt(entry.Value, oldKeys)
		if !ok {
			s.logger.WithField("key", entry.Key).Warn("Entry not readable by any key, skipping re-encryption")
			continue
		}

		value, err := s.encrypt(newKey, plaintext)
		if err != nil {
			return fmt.Errorf("failed to re-encrypt entry %s: %w", entry.Key, err)
		}
		writes[entry.Key] = value
	}

	if len(writes) == 0 {
		return nil
	}

	if err := s.storage.ReplaceKeys(writes, nil); err != nil {
		return fmt.Errorf("failed to persist re-encrypted entries: %w", err)
	}

	s.logger.WithField("entries", len(writes)).Info("Entries re-encrypted under new key")
	return nil
}

// tryDecrypt attempts each key in order until one authenticates the value
func (s *Store) tryDecrypt(value string, keys []keyring.Key) (string, bool) {
	for _, key := range keys {
		if plaintext, err := s.decrypt(key, value); err == nil {
			return plaintext, true
		}
	}
	return "", false
}

// encrypt seals plaintext with a fresh random nonce and encodes
// base64(nonce ‖ ciphertext ‖ tag)
func (s *Store) encrypt(key keyring.Key, plaintext string) (string, error) {
	nonce := make([]byte, key.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed, err := key.Seal(nonce, []byte(plaintext))
	if err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(append(nonce, sealed...)), nil
}

// decrypt reverses encrypt; any authentication failure is an error
func (s *Store) decrypt(key keyring.Key, value string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return "", fmt.Errorf("failed to decode entry: %w", err)
	}

	nonceSize := key.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("entry too short")
	}

	plaintext, err := key.Open(data[:nonceSize], data[nonceSize:])
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// emit invokes the event callback if one is configured
func (s *Store) emit(eventType, serverURL, username string) {
	if s.onEvent == nil {
		return
	}

	s.onEvent(types.CredentialEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		ServerURL: serverURL,
		Username:  username,
		Timestamp: s.clock(),
	})
}
