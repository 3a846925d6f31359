package gesture

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/ayusman/mudra/internal/keypoints"
)

// Match is one label's best match against an input.
type Match struct {
	Label    string  // Matched sign
	Score    float64 // 1 / (1 + distance), higher is better
	Distance float64 // Best distance to any template of the label
}

// SequenceMatcher matches whole windows against recorded templates with DTW.
// It implements classifier.SequenceModel.
type SequenceMatcher struct {
	window      int
	labels      []string
	temperature float64
	templates   [][]keypoints.Frame // normalized, parallel to owners
	owners      []int               // label index per template
}

// NewSequenceMatcher builds a matcher from a sequence model.
func NewSequenceMatcher(m *Model) *SequenceMatcher {
	sm := &SequenceMatcher{
		window:      m.WindowLength,
		labels:      m.Labels,
		temperature: m.Temperature,
	}
	for _, t := range m.Templates {
		idx := m.Labels.Index(t.Label)
		if idx < 0 || len(t.Frames) == 0 {
			continue
		}
		sm.templates = append(sm.templates, NormalizeWindow(t.Frames))
		sm.owners = append(sm.owners, idx)
	}
	return sm
}

// InputShape returns (window length, 126).
func (sm *SequenceMatcher) InputShape() (int, int) {
	return sm.window, keypoints.Size
}

// Predict returns one probability per label: a softmax over the negated best
// DTW distance of each label's templates.
func (sm *SequenceMatcher) Predict(window *mat.Dense) ([]float64, error) {
	frames, err := framesOf(window)
	if err != nil {
		return nil, err
	}

	probs := softmaxNeg(sm.distances(NormalizeWindow(frames)), sm.temperature)
	if probs == nil {
		return nil, ErrNoTemplates
	}
	return probs, nil
}

// Match returns every label's best match, best first.
func (sm *SequenceMatcher) Match(window []keypoints.Frame) []Match {
	return rank(sm.labels, sm.distances(NormalizeWindow(window)))
}

func (sm *SequenceMatcher) distances(input []keypoints.Frame) []float64 {
	best := make([]float64, len(sm.labels))
	for i := range best {
		best[i] = math.Inf(1)
	}
	for i, t := range sm.templates {
		d := DTWDistance(input, t)
		if d < best[sm.owners[i]] {
			best[sm.owners[i]] = d
		}
	}
	return best
}

// FrameMatcher classifies single frames by distance to per-label centroids.
// It implements classifier.FrameModel and classifier.ProbabilityModel.
type FrameMatcher struct {
	labels      []string
	temperature float64
	centroids   []keypoints.Frame // parallel to owners
	owners      []int
}

// NewFrameMatcher builds a matcher from a per-frame model.
func NewFrameMatcher(m *Model) *FrameMatcher {
	fm := &FrameMatcher{
		labels:      m.Labels,
		temperature: m.Temperature,
	}
	for _, c := range m.Centroids {
		idx := m.Labels.Index(c.Label)
		if idx < 0 {
			continue
		}
		fm.centroids = append(fm.centroids, c.Frame)
		fm.owners = append(fm.owners, idx)
	}
	return fm
}

// PredictLabel returns the label of the nearest centroid.
func (fm *FrameMatcher) PredictLabel(f keypoints.Frame) (string, error) {
	matches := fm.Match(f)
	if len(matches) == 0 || math.IsInf(matches[0].Distance, 1) {
		return "", ErrNoTemplates
	}
	return matches[0].Label, nil
}

// PredictProba returns one probability per label, in Classes order.
func (fm *FrameMatcher) PredictProba(f keypoints.Frame) ([]float64, error) {
	probs := softmaxNeg(fm.distances(NormalizeFrame(f)), fm.temperature)
	if probs == nil {
		return nil, ErrNoTemplates
	}
	return probs, nil
}

// Classes returns the label list.
func (fm *FrameMatcher) Classes() []string {
	return fm.labels
}

// Match returns every label's distance to the frame, best first.
func (fm *FrameMatcher) Match(f keypoints.Frame) []Match {
	return rank(fm.labels, fm.distances(NormalizeFrame(f)))
}

func (fm *FrameMatcher) distances(f keypoints.Frame) []float64 {
	best := make([]float64, len(fm.labels))
	for i := range best {
		best[i] = math.Inf(1)
	}
	for i := range fm.centroids {
		d := frameDistance(&f, &fm.centroids[i])
		if d < best[fm.owners[i]] {
			best[fm.owners[i]] = d
		}
	}
	return best
}

func rank(labels []string, distances []float64) []Match {
	matches := make([]Match, 0, len(labels))
	for i, d := range distances {
		matches = append(matches, Match{
			Label:    labels[i],
			Score:    1.0 / (1.0 + d),
			Distance: d,
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})
	return matches
}

func framesOf(m *mat.Dense) ([]keypoints.Frame, error) {
	rows, cols := m.Dims()
	if cols != keypoints.Size {
		return nil, fmt.Errorf("window has %d columns, want %d", cols, keypoints.Size)
	}
	frames := make([]keypoints.Frame, rows)
	for i := range frames {
		mat.Row(frames[i][:], i, m)
	}
	return frames, nil
}
