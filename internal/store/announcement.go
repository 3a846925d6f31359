package store

import (
	"database/sql"
	"time"
)

// Announcement is one sign spoken during a live session.
type Announcement struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id,omitempty"`
	Sign       string    `json:"sign"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// AnnouncementRepository records and lists announcements.
type AnnouncementRepository struct {
	db *sql.DB
}

// Announcements returns the announcement repository for this store.
func (s *Store) Announcements() *AnnouncementRepository {
	return &AnnouncementRepository{db: s.db}
}

// Create appends an announcement. A zero CreatedAt is set to now.
func (r *AnnouncementRepository) Create(a *Announcement) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	result, err := r.db.Exec(
		`INSERT INTO announcements (session_id, sign, confidence, created_at) VALUES (?, ?, ?, ?)`,
		nullString(a.SessionID), a.Sign, a.Confidence, a.CreatedAt,
	)
	if err != nil {
		return err
	}
	a.ID, err = result.LastInsertId()
	return err
}

// Recent returns up to limit announcements, newest first.
func (r *AnnouncementRepository) Recent(limit int) ([]Announcement, error) {
	return r.query(
		`SELECT id, COALESCE(session_id, ''), sign, confidence, created_at FROM announcements
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		limit,
	)
}

// BySession returns the announcements of one session in order.
func (r *AnnouncementRepository) BySession(sessionID string) ([]Announcement, error) {
	return r.query(
		`SELECT id, COALESCE(session_id, ''), sign, confidence, created_at FROM announcements
		 WHERE session_id = ? ORDER BY created_at, id`,
		sessionID,
	)
}

// CountBySign returns how often each sign was announced.
func (r *AnnouncementRepository) CountBySign() (map[string]int, error) {
	rows, err := r.db.Query(`SELECT sign, COUNT(*) FROM announcements GROUP BY sign`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			sign string
			n    int
		)
		if err := rows.Scan(&sign, &n); err != nil {
			return nil, err
		}
		counts[sign] = n
	}
	return counts, rows.Err()
}

func (r *AnnouncementRepository) query(q string, args ...any) ([]Announcement, error) {
	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Announcement
	for rows.Next() {
		var a Announcement
		if err := rows.Scan(&a.ID, &a.SessionID, &a.Sign, &a.Confidence, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
