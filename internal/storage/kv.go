package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a key has no stored value
var ErrNotFound = errors.New("key not found")

// Entry represents a stored key-value entry
type Entry struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}

// Get returns the value stored under key
func (s *Store) Get(key string) (string, error) {
	var value string
	err := s.conn.QueryRow(
		"SELECT value FROM credential_entries WHERE key = ?", key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return value, nil
}

// Put stores value under key, replacing any existing value
func (s *Store) Put(key, value string) error {
	_, err := s.conn.Exec(`
		INSERT INTO credential_entries (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to put key %s: %w", key, err)
	}
	return nil
}

// Delete removes the entry stored under key; missing keys are not an error
func (s *Store) Delete(key string) error {
	if _, err := s.conn.Exec("DELETE FROM credential_entries WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// DeleteBatch removes a set of keys in a single transaction
func (s *Store) DeleteBatch(keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, key := range keys {
		if _, err := tx.Exec("DELETE FROM credential_entries WHERE key = ?", key); err != nil {
			return fmt.Errorf("failed to delete key %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete batch: %w", err)
	}
	return nil
}

// List returns all entries whose key starts with prefix
func (s *Store) List(prefix string) ([]Entry, error) {
	rows, err := s.conn.Query(
		"SELECT key, value, updated_at FROM credential_entries WHERE key LIKE ? || '%' ORDER BY key",
		prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys with prefix %s: %w", prefix, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.Value, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan entry row: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entry rows: %w", err)
	}

	return entries, nil
}

// ReplaceKeys atomically writes a set of new entries and deletes a set of old
// keys in one transaction. Used by the keystore migration and rotation paths
// so an interrupted re-home never leaves both copies missing.
func (s *Store) ReplaceKeys(writes map[string]string, deletes []string) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for key, value := range writes {
		if _, err := tx.Exec(`
			INSERT INTO credential_entries (key, value, updated_at)
			VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
		`, key, value); err != nil {
			return fmt.Errorf("failed to write key %s: %w", key, err)
		}
	}

	for _, key := range deletes {
		if _, err := tx.Exec("DELETE FROM credential_entries WHERE key = ?", key); err != nil {
			return fmt.Errorf("failed to delete key %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit key replacement: %w", err)
	}
	return nil
}

// Wipe removes every entry whose key starts with prefix and returns the
// number of entries removed
func (s *Store) Wipe(prefix string) (int64, error) {
	result, err := s.conn.Exec("DELETE FROM credential_entries WHERE key LIKE ? || '%'", prefix)
	if err != nil {
		return 0, fmt.Errorf("failed to wipe prefix %s: %w", prefix, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count wiped rows: %w", err)
	}
	return n, nil
}
