// Package gesture provides template-based sign models: nearest-neighbour
// matching of recorded windows with DTW and per-frame centroid matching.
package gesture

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ayusman/mudra/internal/classifier"
	"github.com/ayusman/mudra/internal/keypoints"
)

// DefaultTemperature scales distances before the softmax that turns them
// into probabilities. Smaller values make the best match more dominant.
const DefaultTemperature = 0.25

// ErrNoTemplates is returned when a model has nothing to match against.
var ErrNoTemplates = errors.New("no templates")

// Template is one recorded window of a sign, resampled to the model length.
type Template struct {
	Label  string            `json:"label"`
	Frames []keypoints.Frame `json:"frames"`
}

// Centroid is the mean hand-normalised frame of a sign.
type Centroid struct {
	Label string          `json:"label"`
	Frame keypoints.Frame `json:"frame"`
}

// Model is the persisted form of a trained template model.
type Model struct {
	Kind           classifier.Kind      `json:"kind"`
	WindowLength   int                  `json:"window_length"`
	HandAssignment keypoints.Assignment `json:"hand_assignment"`
	Labels         classifier.Labels    `json:"labels"`
	Temperature    float64              `json:"temperature"`
	Templates      []Template           `json:"templates,omitempty"`
	Centroids      []Centroid           `json:"centroids,omitempty"`
	TrainedAt      time.Time            `json:"trained_at"`
}

// Validate checks the model for internal consistency.
func (m *Model) Validate() error {
	if len(m.Labels) == 0 {
		return fmt.Errorf("model has no labels")
	}
	if m.Temperature <= 0 {
		return fmt.Errorf("model temperature must be positive, got %v", m.Temperature)
	}
	switch m.Kind {
	case classifier.KindSequence:
		if m.WindowLength < 1 {
			return fmt.Errorf("sequence model window length must be at least 1, got %d", m.WindowLength)
		}
		if len(m.Templates) == 0 {
			return ErrNoTemplates
		}
		for i, t := range m.Templates {
			if len(t.Frames) != m.WindowLength {
				return fmt.Errorf("template %d has %d frames, want %d", i, len(t.Frames), m.WindowLength)
			}
			if m.Labels.Index(t.Label) < 0 {
				return fmt.Errorf("template %d has unknown label %q", i, t.Label)
			}
		}
	case classifier.KindPerFrame:
		if len(m.Centroids) == 0 {
			return ErrNoTemplates
		}
		for i, c := range m.Centroids {
			if m.Labels.Index(c.Label) < 0 {
				return fmt.Errorf("centroid %d has unknown label %q", i, c.Label)
			}
		}
	default:
		return fmt.Errorf("unknown model kind %v", m.Kind)
	}
	return nil
}

// Save writes the model as JSON.
func (m *Model) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode model: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write model: %w", err)
	}
	return nil
}

// LoadModel reads and validates a model file.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse model %s: %w", path, err)
	}
	if m.Temperature == 0 {
		m.Temperature = DefaultTemperature
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model %s: %w", path, err)
	}
	return &m, nil
}

// Classifier builds the classifier matching the model kind.
func (m *Model) Classifier() (classifier.Classifier, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if m.Kind == classifier.KindPerFrame {
		return classifier.NewPerFrameClassifier(NewFrameMatcher(m), m.Labels), nil
	}
	return classifier.NewSequenceClassifier(NewSequenceMatcher(m), m.Labels)
}
