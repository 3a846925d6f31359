package gesture

import (
	"fmt"
	"sort"
	"time"

	"github.com/ayusman/mudra/internal/classifier"
	"github.com/ayusman/mudra/internal/keypoints"
)

// Trainer collects recorded samples and builds template models from them.
type Trainer struct {
	// WindowLength is the length every sequence template is resampled to.
	WindowLength int
	// HandAssignment is recorded in the model for compatibility checks.
	HandAssignment keypoints.Assignment
	// Temperature is the softmax temperature written into the model.
	Temperature float64
	// MaxTemplates caps the templates kept per label. Zero keeps all.
	MaxTemplates int

	samples map[string][][]keypoints.Frame
}

// NewTrainer creates a trainer for the given window length.
func NewTrainer(window int, rule keypoints.Assignment) *Trainer {
	return &Trainer{
		WindowLength:   window,
		HandAssignment: rule,
		Temperature:    DefaultTemperature,
		samples:        make(map[string][][]keypoints.Frame),
	}
}

// Add registers one recorded sample.
func (t *Trainer) Add(label string, frames []keypoints.Frame) error {
	if label == "" {
		return fmt.Errorf("sample has no label")
	}
	if len(frames) < 2 {
		return fmt.Errorf("sample for %q has %d frames, need at least 2", label, len(frames))
	}
	t.samples[label] = append(t.samples[label], frames)
	return nil
}

// Labels returns the labels seen so far, sorted.
func (t *Trainer) Labels() classifier.Labels {
	labels := make(classifier.Labels, 0, len(t.samples))
	for label := range t.samples {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// Count returns the number of samples for a label.
func (t *Trainer) Count(label string) int {
	return len(t.samples[label])
}

// TrainSequences builds a sequence model with one template per sample,
// each resampled to the window length.
func (t *Trainer) TrainSequences() (*Model, error) {
	if len(t.samples) == 0 {
		return nil, fmt.Errorf("no samples provided")
	}
	if t.WindowLength < 2 {
		return nil, fmt.Errorf("window length must be at least 2, got %d", t.WindowLength)
	}

	m := t.newModel(classifier.KindSequence)
	m.WindowLength = t.WindowLength
	for _, label := range m.Labels {
		samples := t.samples[label]
		if t.MaxTemplates > 0 && len(samples) > t.MaxTemplates {
			samples = samples[:t.MaxTemplates]
		}
		for _, s := range samples {
			m.Templates = append(m.Templates, Template{
				Label:  label,
				Frames: resampleFrames(s, t.WindowLength),
			})
		}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// TrainFrames builds a per-frame model holding one centroid per label: the
// average of every hand-normalised non-empty frame recorded for it.
func (t *Trainer) TrainFrames() (*Model, error) {
	if len(t.samples) == 0 {
		return nil, fmt.Errorf("no samples provided")
	}

	m := t.newModel(classifier.KindPerFrame)
	m.WindowLength = 1
	for _, label := range m.Labels {
		var sum keypoints.Frame
		n := 0
		for _, s := range t.samples[label] {
			for _, f := range s {
				if f.Empty() {
					continue
				}
				nf := NormalizeFrame(f)
				for i := range sum {
					sum[i] += nf[i]
				}
				n++
			}
		}
		if n == 0 {
			return nil, fmt.Errorf("label %q has no frames with hands", label)
		}
		for i := range sum {
			sum[i] /= float64(n)
		}
		m.Centroids = append(m.Centroids, Centroid{Label: label, Frame: sum})
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (t *Trainer) newModel(kind classifier.Kind) *Model {
	temp := t.Temperature
	if temp <= 0 {
		temp = DefaultTemperature
	}
	return &Model{
		Kind:           kind,
		HandAssignment: t.HandAssignment,
		Labels:         t.Labels(),
		Temperature:    temp,
		TrainedAt:      time.Now().UTC(),
	}
}

// resampleFrames resamples a window to exactly targetLength frames.
// Uses linear interpolation between neighbouring frames.
func resampleFrames(frames []keypoints.Frame, targetLength int) []keypoints.Frame {
	if len(frames) == 0 {
		return nil
	}
	if len(frames) == targetLength {
		out := make([]keypoints.Frame, len(frames))
		copy(out, frames)
		return out
	}
	if len(frames) == 1 || targetLength <= 1 {
		out := make([]keypoints.Frame, max(targetLength, 1))
		for i := range out {
			out[i] = frames[0]
		}
		return out
	}

	result := make([]keypoints.Frame, targetLength)
	for i := 0; i < targetLength; i++ {
		pos := float64(i) / float64(targetLength-1) * float64(len(frames)-1)

		idx := int(pos)
		if idx >= len(frames)-1 {
			idx = len(frames) - 2
		}
		frac := pos - float64(idx)

		p1 := &frames[idx]
		p2 := &frames[idx+1]
		for k := range result[i] {
			result[i][k] = p1[k] + frac*(p2[k]-p1[k])
		}
	}
	return result
}
