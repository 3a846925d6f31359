package classifier

import (
	"fmt"
	"slices"

	"github.com/ayusman/mudra/internal/keypoints"
)

// FrameModel predicts a label from a single frame.
type FrameModel interface {
	PredictLabel(f keypoints.Frame) (string, error)
}

// ProbabilityModel reports a probability per class for a single frame.
// Classes gives the label of each probability position.
type ProbabilityModel interface {
	PredictProba(f keypoints.Frame) ([]float64, error)
	Classes() []string
}

// PerFrameClassifier classifies the newest frame of a window.
type PerFrameClassifier struct {
	model  FrameModel
	proba  ProbabilityModel
	labels Labels
}

// NewPerFrameClassifier wraps a frame model. When the model also implements
// ProbabilityModel the reported class probability becomes the confidence;
// otherwise confidence is always 1.0. Labels may be nil.
func NewPerFrameClassifier(model FrameModel, labels Labels) *PerFrameClassifier {
	c := &PerFrameClassifier{model: model, labels: labels}
	if p, ok := model.(ProbabilityModel); ok {
		c.proba = p
	}
	return c
}

// Classify uses the last frame of the window.
func (c *PerFrameClassifier) Classify(window []keypoints.Frame) (Prediction, error) {
	if len(window) == 0 {
		return Prediction{}, fmt.Errorf("empty window: %w", ErrShapeMismatch)
	}
	return c.ClassifyFrame(window[len(window)-1])
}

// ClassifyFrame classifies one frame.
func (c *PerFrameClassifier) ClassifyFrame(f keypoints.Frame) (Prediction, error) {
	label, err := c.model.PredictLabel(f)
	if err != nil {
		return Prediction{}, fmt.Errorf("predict label: %w", err)
	}

	p := Prediction{Label: label, Confidence: 1.0, Index: c.labels.Index(label)}
	if c.proba == nil {
		return p, nil
	}

	probs, err := c.proba.PredictProba(f)
	if err != nil {
		return Prediction{}, fmt.Errorf("predict probabilities: %w", err)
	}
	classes := c.proba.Classes()
	if len(probs) != len(classes) {
		return Prediction{}, fmt.Errorf("%d probabilities for %d classes: %w", len(probs), len(classes), ErrShapeMismatch)
	}
	i := slices.Index(classes, label)
	if i < 0 {
		return Prediction{}, fmt.Errorf("label %q not in model classes: %w", label, ErrShapeMismatch)
	}
	p.Confidence = probs[i]
	return p, nil
}

// WindowLength is always 1.
func (c *PerFrameClassifier) WindowLength() int {
	return 1
}

// Kind returns KindPerFrame.
func (c *PerFrameClassifier) Kind() Kind {
	return KindPerFrame
}

// Close closes the underlying model if it holds resources.
func (c *PerFrameClassifier) Close() error {
	return closeModel(c.model)
}
