// Package classifier turns a window of keypoint frames into a labelled
// prediction using either a per-frame or a sequence model.
package classifier

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ayusman/mudra/internal/keypoints"
)

// ErrShapeMismatch is returned when the input does not have the shape the
// model expects, or when the model's output does not match the label list.
var ErrShapeMismatch = errors.New("shape mismatch")

// Prediction is the result of one classification.
type Prediction struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Index      int     `json:"index"` // position in the label list, -1 when unknown
}

// Kind identifies the classifier variant.
type Kind int

const (
	// KindSequence classifies a whole window.
	KindSequence Kind = iota
	// KindPerFrame classifies the newest frame of the window.
	KindPerFrame
)

func (k Kind) String() string {
	switch k {
	case KindSequence:
		return "sequence"
	case KindPerFrame:
		return "frame"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind parses "sequence" or "frame".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sequence", "":
		return KindSequence, nil
	case "frame", "per-frame", "perframe":
		return KindPerFrame, nil
	default:
		return 0, fmt.Errorf("unknown classifier kind %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Classifier maps a window of frames, oldest first, to a prediction.
// Implementations are deterministic: the same window yields the same prediction.
type Classifier interface {
	Classify(window []keypoints.Frame) (Prediction, error)
	// WindowLength is the number of frames Classify expects.
	WindowLength() int
	Kind() Kind
	Close() error
}

// closeModel closes m if it holds resources.
func closeModel(m any) error {
	if c, ok := m.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
