package store

import (
	"database/sql"
	"fmt"
)

// schema holds one entry per schema version. Entries are append-only: a
// database at user_version N has run the first N of them.
var schema = []string{
	// 1: catalog, samples, sessions, announcements, settings.
	`CREATE TABLE signs (
		id         TEXT PRIMARY KEY,
		label      TEXT NOT NULL UNIQUE,
		ordinal    INTEGER NOT NULL DEFAULT -1,
		samples    INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE samples (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		sign_id       TEXT NOT NULL REFERENCES signs(id) ON DELETE CASCADE,
		sample_index  INTEGER NOT NULL,
		path          TEXT NOT NULL UNIQUE,
		frames        INTEGER NOT NULL,
		missed_frames INTEGER NOT NULL DEFAULT 0,
		session_id    TEXT,
		created_at    DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE sessions (
		id         TEXT PRIMARY KEY,
		mode       TEXT NOT NULL CHECK(mode IN ('record', 'live')),
		config     TEXT NOT NULL DEFAULT '{}',
		started_at DATETIME NOT NULL,
		ended_at   DATETIME
	);
	CREATE TABLE announcements (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT REFERENCES sessions(id) ON DELETE SET NULL,
		sign       TEXT NOT NULL,
		confidence REAL NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE TABLE settings (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`,

	// 2: lookup indexes.
	`CREATE INDEX idx_samples_sign_id ON samples(sign_id);
	CREATE INDEX idx_announcements_created_at ON announcements(created_at);
	CREATE INDEX idx_announcements_session_id ON announcements(session_id);`,
}

// SchemaVersion is the version New leaves the database at.
func SchemaVersion() int { return len(schema) }

// migrate runs every schema step past the database's user_version, each in
// its own transaction.
func (s *Store) migrate() error {
	var current int
	if err := s.db.QueryRow(`PRAGMA user_version`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if current > len(schema) {
		return fmt.Errorf("schema version %d is newer than this build (%d)", current, len(schema))
	}

	for v := current; v < len(schema); v++ {
		err := s.inTx(func(tx *sql.Tx) error {
			if _, err := tx.Exec(schema[v]); err != nil {
				return err
			}
			// PRAGMA arguments cannot be bound.
			_, err := tx.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, v+1))
			return err
		})
		if err != nil {
			return fmt.Errorf("schema step %d: %w", v+1, err)
		}
	}
	return nil
}
