package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Session modes.
const (
	ModeRecord = "record"
	ModeLive   = "live"
)

// Session is one run of the recorder or the live loop.
type Session struct {
	ID        string     `json:"id"`
	Mode      string     `json:"mode"`
	Config    string     `json:"config"` // JSON snapshot of the effective settings
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// SessionRepository provides operations for sessions.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

// Start inserts a new open session. An empty ID is filled with a new UUID.
func (r *SessionRepository) Start(sess *Session) error {
	if sess.ID == "" {
		sess.ID = uuid.New().String()
	}
	if sess.Config == "" {
		sess.Config = "{}"
	}
	sess.StartedAt = time.Now()
	sess.EndedAt = nil

	_, err := r.db.Exec(
		`INSERT INTO sessions (id, mode, config, started_at) VALUES (?, ?, ?, ?)`,
		sess.ID, sess.Mode, sess.Config, sess.StartedAt,
	)
	return err
}

// End marks a session as finished.
func (r *SessionRepository) End(id string) error {
	result, err := r.db.Exec(`UPDATE sessions SET ended_at = ? WHERE id = ?`, time.Now(), id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// Get retrieves a session by ID.
func (r *SessionRepository) Get(id string) (*Session, error) {
	sess, err := scanSession(r.db.QueryRow(
		`SELECT id, mode, config, started_at, ended_at FROM sessions WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sess, err
}

// List retrieves the most recent sessions, newest first.
func (r *SessionRepository) List(limit int) ([]*Session, error) {
	rows, err := r.db.Query(
		`SELECT id, mode, config, started_at, ended_at FROM sessions
		 ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func scanSession(row interface{ Scan(...any) error }) (*Session, error) {
	var (
		sess  Session
		ended sql.NullTime
	)
	if err := row.Scan(&sess.ID, &sess.Mode, &sess.Config, &sess.StartedAt, &ended); err != nil {
		return nil, err
	}
	if ended.Valid {
		sess.EndedAt = &ended.Time
	}
	return &sess, nil
}
