package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps the SQLite database holding credential entries and the
// decision event queue
type Store struct {
	conn *sql.DB
}

// Open opens (or creates) the bridge database at the given path
func Open(databasePath string) (*Store, error) {
	// Ensure database directory exists
	if err := os.MkdirAll(filepath.Dir(databasePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Open SQLite connection with WAL mode
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_foreign_keys=on", databasePath)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{conn: conn}

	if err := store.configurePragmas(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to configure pragmas: %w", err)
	}

	if err := store.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// configurePragmas sets SQLite pragmas for a small single-writer database
func (s *Store) configurePragmas() error {
	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -8000", // 8MB cache
		"PRAGMA temp_store = memory",
	}

	for _, pragma := range pragmas {
		if _, err := s.conn.Exec(pragma); err != nil {
			return fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	return nil
}

// migrate runs database migrations to create the required schema
func (s *Store) migrate() error {
	migrations := []string{
		createCredentialEntriesTable,
		createDecisionEventsTable,
		createIndexes,
	}

	for i, migration := range migrations {
		if _, err := s.conn.Exec(migration); err != nil {
			return fmt.Errorf("failed to run migration %d: %w", i+1, err)
		}
	}

	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.conn.Close()
}

const createCredentialEntriesTable = `
CREATE TABLE IF NOT EXISTS credential_entries (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);`

const createDecisionEventsTable = `
CREATE TABLE IF NOT EXISTS decision_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    event_id TEXT UNIQUE NOT NULL,
    item_id TEXT,
    container TEXT NOT NULL,
    video_codec TEXT,
    audio_codec TEXT,
    width INTEGER,
    height INTEGER,
    bitrate INTEGER,
    can_direct_play BOOLEAN NOT NULL,
    score INTEGER NOT NULL,
    issues TEXT, -- JSON array
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    published_at DATETIME NULL,
    retry_count INTEGER DEFAULT 0
);`

const createIndexes = `
CREATE INDEX IF NOT EXISTS idx_decision_events_published_at ON decision_events(published_at);
CREATE INDEX IF NOT EXISTS idx_decision_events_created_at ON decision_events(created_at);
`
