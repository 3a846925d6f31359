package classifier

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Labels is the ordered list of sign names. Index i is the class the models
// report at position i.
type Labels []string

// LoadLabels reads a JSON array of strings, e.g. ["hello","thankyou","sorry"].
func LoadLabels(path string) (Labels, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read labels: %w", err)
	}

	var labels Labels
	if err := json.Unmarshal(data, &labels); err != nil {
		return nil, fmt.Errorf("parse labels %s: %w", path, err)
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("labels file %s is empty", path)
	}
	return labels, nil
}

// Save writes the labels as a JSON array, creating parent directories.
func (l Labels) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create labels dir: %w", err)
	}
	data, err := json.Marshal([]string(l))
	if err != nil {
		return fmt.Errorf("encode labels: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write labels: %w", err)
	}
	return nil
}

// Index returns the position of label, or -1.
func (l Labels) Index(label string) int {
	for i, v := range l {
		if v == label {
			return i
		}
	}
	return -1
}

// Name returns the label at i, or "" when out of range.
func (l Labels) Name(i int) string {
	if i < 0 || i >= len(l) {
		return ""
	}
	return l[i]
}
