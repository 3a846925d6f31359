package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a sign label already exists.
var ErrDuplicate = errors.New("already exists")

// Sign is one entry of the sign catalog.
type Sign struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	Ordinal   int       `json:"ordinal"` // position in the label list, -1 when untrained
	Samples   int       `json:"samples"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SignRepository provides CRUD operations for signs.
type SignRepository struct {
	db *sql.DB
}

// Signs returns the sign repository for this store.
func (s *Store) Signs() *SignRepository {
	return &SignRepository{db: s.db}
}

const signColumns = `id, label, ordinal, samples, created_at, updated_at`

func scanSign(row interface{ Scan(...any) error }) (*Sign, error) {
	sg := &Sign{}
	if err := row.Scan(&sg.ID, &sg.Label, &sg.Ordinal, &sg.Samples, &sg.CreatedAt, &sg.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return sg, nil
}

// Create inserts a new sign. An empty ID is filled with a new UUID.
func (r *SignRepository) Create(sg *Sign) error {
	if sg.ID == "" {
		sg.ID = uuid.New().String()
	}
	now := time.Now()
	sg.CreatedAt = now
	sg.UpdatedAt = now

	if _, err := r.GetByLabel(sg.Label); err == nil {
		return fmt.Errorf("sign %q: %w", sg.Label, ErrDuplicate)
	}

	_, err := r.db.Exec(
		`INSERT INTO signs (`+signColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		sg.ID, sg.Label, sg.Ordinal, sg.Samples, sg.CreatedAt, sg.UpdatedAt,
	)
	return err
}

// GetByID retrieves a sign by its ID.
func (r *SignRepository) GetByID(id string) (*Sign, error) {
	return scanSign(r.db.QueryRow(`SELECT `+signColumns+` FROM signs WHERE id = ?`, id))
}

// GetByLabel retrieves a sign by its label.
func (r *SignRepository) GetByLabel(label string) (*Sign, error) {
	return scanSign(r.db.QueryRow(`SELECT `+signColumns+` FROM signs WHERE label = ?`, label))
}

// Ensure returns the sign with the given label, creating it when missing.
func (r *SignRepository) Ensure(label string) (*Sign, error) {
	sg, err := r.GetByLabel(label)
	if err == nil {
		return sg, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	sg = &Sign{Label: label, Ordinal: -1}
	if err := r.Create(sg); err != nil {
		return nil, err
	}
	return sg, nil
}

// List retrieves all signs, trained signs first in label order.
func (r *SignRepository) List() ([]*Sign, error) {
	rows, err := r.db.Query(
		`SELECT ` + signColumns + ` FROM signs
		 ORDER BY CASE WHEN ordinal < 0 THEN 1 ELSE 0 END, ordinal, label`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var signs []*Sign
	for rows.Next() {
		sg, err := scanSign(rows)
		if err != nil {
			return nil, err
		}
		signs = append(signs, sg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return signs, nil
}

// SyncLabels creates any missing signs and sets every ordinal to the sign's
// position in labels. Signs not in labels get ordinal -1.
func (r *SignRepository) SyncLabels(labels []string) error {
	now := time.Now()
	return withTx(r.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`UPDATE signs SET ordinal = -1, updated_at = ?`, now); err != nil {
			return err
		}
		for i, label := range labels {
			res, err := tx.Exec(`UPDATE signs SET ordinal = ?, updated_at = ? WHERE label = ?`, i, now, label)
			if err != nil {
				return err
			}
			if n, err := res.RowsAffected(); err != nil {
				return err
			} else if n > 0 {
				continue
			}
			if _, err := tx.Exec(
				`INSERT INTO signs (`+signColumns+`) VALUES (?, ?, ?, 0, ?, ?)`,
				uuid.New().String(), label, i, now, now,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

// SetSampleCount stores the number of dataset samples for a label.
func (r *SignRepository) SetSampleCount(label string, n int) error {
	result, err := r.db.Exec(`UPDATE signs SET samples = ?, updated_at = ? WHERE label = ?`, n, time.Now(), label)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// Delete removes a sign and its sample rows.
func (r *SignRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM signs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func requireRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
