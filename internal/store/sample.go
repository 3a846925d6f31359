package store

import (
	"database/sql"
	"time"
)

// Sample records where one dataset file lives and how it was captured.
type Sample struct {
	ID           int64     `json:"id"`
	SignID       string    `json:"sign_id"`
	SampleIndex  int       `json:"sample_index"`
	Path         string    `json:"path"`
	Frames       int       `json:"frames"`
	MissedFrames int       `json:"missed_frames"` // padded frames inside the window
	SessionID    string    `json:"session_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type SampleRepository struct {
	db *sql.DB
}

func (s *Store) Samples() *SampleRepository {
	return &SampleRepository{db: s.db}
}

// Create stores sm and bumps its sign's sample counter. It fails with
// ErrNotFound, storing nothing, when the sign does not exist.
func (r *SampleRepository) Create(sm *Sample) error {
	sm.CreatedAt = time.Now()

	return withTx(r.db, func(tx *sql.Tx) error {
		bumped, err := tx.Exec(`UPDATE signs SET samples = samples + 1, updated_at = ? WHERE id = ?`, sm.CreatedAt, sm.SignID)
		if err != nil {
			return err
		}
		if err := requireRow(bumped); err != nil {
			return err
		}
		inserted, err := tx.Exec(`
			INSERT INTO samples (sign_id, sample_index, path, frames, missed_frames, session_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			sm.SignID, sm.SampleIndex, sm.Path, sm.Frames, sm.MissedFrames, nullString(sm.SessionID), sm.CreatedAt)
		if err != nil {
			return err
		}
		sm.ID, err = inserted.LastInsertId()
		return err
	})
}

// GetBySignID lists a sign's samples by index.
func (r *SampleRepository) GetBySignID(signID string) ([]Sample, error) {
	rows, err := r.db.Query(`
		SELECT id, sign_id, sample_index, path, frames, missed_frames, IFNULL(session_id, ''), created_at
		FROM samples WHERE sign_id = ? ORDER BY sample_index`, signID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Sample
	for rows.Next() {
		var sm Sample
		if err := rows.Scan(&sm.ID, &sm.SignID, &sm.SampleIndex, &sm.Path, &sm.Frames, &sm.MissedFrames, &sm.SessionID, &sm.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, sm)
	}
	return out, rows.Err()
}

// DeleteBySignID forgets every sample of a sign and zeroes its counter.
// The dataset files are left alone.
func (r *SampleRepository) DeleteBySignID(signID string) error {
	return withTx(r.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM samples WHERE sign_id = ?`, signID); err != nil {
			return err
		}
		_, err := tx.Exec(`UPDATE signs SET samples = 0, updated_at = ? WHERE id = ?`, time.Now(), signID)
		return err
	})
}
