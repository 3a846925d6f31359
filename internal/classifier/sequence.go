package classifier

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/ayusman/mudra/internal/keypoints"
)

// SequenceModel maps a (rows x cols) window matrix to a probability per class.
type SequenceModel interface {
	Predict(window *mat.Dense) ([]float64, error)
	InputShape() (rows, cols int)
}

// SequenceClassifier classifies a whole window with a sequence model.
type SequenceClassifier struct {
	model  SequenceModel
	labels Labels
}

// NewSequenceClassifier wraps a sequence model. The model must accept
// frame-sized columns and labels must be non-empty.
func NewSequenceClassifier(model SequenceModel, labels Labels) (*SequenceClassifier, error) {
	rows, cols := model.InputShape()
	if rows < 1 || cols != keypoints.Size {
		return nil, fmt.Errorf("model input (%d, %d), want (n, %d): %w", rows, cols, keypoints.Size, ErrShapeMismatch)
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("sequence classifier needs labels")
	}
	return &SequenceClassifier{model: model, labels: labels}, nil
}

// Classify reshapes the window to (length x 126) and picks the most probable class.
func (c *SequenceClassifier) Classify(window []keypoints.Frame) (Prediction, error) {
	rows, _ := c.model.InputShape()
	if len(window) != rows {
		return Prediction{}, fmt.Errorf("window of %d frames, model expects %d: %w", len(window), rows, ErrShapeMismatch)
	}

	probs, err := c.model.Predict(WindowMatrix(window))
	if err != nil {
		return Prediction{}, fmt.Errorf("predict: %w", err)
	}
	if len(probs) != len(c.labels) {
		return Prediction{}, fmt.Errorf("%d probabilities for %d labels: %w", len(probs), len(c.labels), ErrShapeMismatch)
	}

	best := argmax(probs)
	return Prediction{
		Label:      c.labels[best],
		Confidence: probs[best],
		Index:      best,
	}, nil
}

// WindowLength is the number of frames the model expects.
func (c *SequenceClassifier) WindowLength() int {
	rows, _ := c.model.InputShape()
	return rows
}

// Kind returns KindSequence.
func (c *SequenceClassifier) Kind() Kind {
	return KindSequence
}

// Labels returns the label list.
func (c *SequenceClassifier) Labels() Labels {
	return c.labels
}

// Close closes the underlying model if it holds resources.
func (c *SequenceClassifier) Close() error {
	return closeModel(c.model)
}

// WindowMatrix lays out frames as rows of a dense matrix. The window must
// not be empty.
func WindowMatrix(window []keypoints.Frame) *mat.Dense {
	data := make([]float64, 0, len(window)*keypoints.Size)
	for _, f := range window {
		data = append(data, f[:]...)
	}
	return mat.NewDense(len(window), keypoints.Size, data)
}

// argmax returns the index of the largest value; ties go to the lowest index.
func argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}
