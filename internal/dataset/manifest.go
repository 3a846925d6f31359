package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ayusman/mudra/internal/keypoints"
	"github.com/ayusman/mudra/internal/sequence"
)

// ManifestFile is the manifest's name inside the dataset root.
const ManifestFile = "dataset.json"

// Manifest records how the samples in a dataset were produced so that a model
// trained on it can be checked against the live configuration.
type Manifest struct {
	WindowLength   int                  `json:"window_length"`
	HandAssignment keypoints.Assignment `json:"hand_assignment"`
	GapPolicy      sequence.GapPolicy   `json:"gap_policy"`
	Mirrored       bool                 `json:"mirrored"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// ReadManifest loads the manifest. A missing manifest returns (nil, nil).
func (s *Store) ReadManifest() (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(s.root, ManifestFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}

// WriteManifest saves the manifest, stamping UpdatedAt.
func (s *Store) WriteManifest(m Manifest) error {
	if err := os.MkdirAll(s.root, 0755); err != nil {
		return fmt.Errorf("create dataset dir: %w", err)
	}
	m.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.root, ManifestFile), data, 0644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// Compatible reports whether samples described by m can be mixed with
// samples produced with the given settings.
func (m *Manifest) Compatible(window int, rule keypoints.Assignment) error {
	if m.WindowLength != window {
		return fmt.Errorf("dataset window length %d, configured %d", m.WindowLength, window)
	}
	if m.HandAssignment != rule {
		return fmt.Errorf("dataset hand assignment %s, configured %s", m.HandAssignment, rule)
	}
	return nil
}
