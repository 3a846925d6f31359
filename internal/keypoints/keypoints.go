// Package keypoints flattens detected hands into the fixed 126-value frame
// vector that the sequence buffer, dataset and classifiers share.
package keypoints

import (
	"fmt"
	"strings"

	"github.com/ayusman/mudra/internal/detector"
)

const (
	// MaxHands is the number of hand slots in a frame.
	MaxHands = 2
	// HandSize is the number of values per hand: 21 landmarks times x, y, z.
	HandSize = detector.NumLandmarks * 3
	// Size is the length of a frame vector.
	Size = MaxHands * HandSize
)

// Frame is the keypoint vector of one camera frame. Slot 0 occupies
// values [0,63), slot 1 values [63,126). An absent hand is all zeros.
type Frame [Size]float64

// Hand returns the 63 values of the given slot (0 or 1).
func (f *Frame) Hand(slot int) []float64 {
	return f[slot*HandSize : (slot+1)*HandSize]
}

// Empty reports whether every value is zero.
func (f *Frame) Empty() bool {
	for _, v := range f {
		if v != 0 {
			return false
		}
	}
	return true
}

// Slice returns a copy of the frame as a slice.
func (f Frame) Slice() []float64 {
	out := make([]float64, Size)
	copy(out, f[:])
	return out
}

// FromSlice builds a frame from exactly Size values.
func FromSlice(values []float64) (Frame, error) {
	var f Frame
	if len(values) != Size {
		return f, fmt.Errorf("frame needs %d values, got %d", Size, len(values))
	}
	copy(f[:], values)
	return f, nil
}

// Assignment decides which slot each detected hand occupies.
type Assignment int

const (
	// AssignByHandedness puts a hand labelled left in slot 0 and any other
	// labelled hand in slot 1. Falls back to detector order when a hand is
	// unlabelled.
	AssignByHandedness Assignment = iota
	// AssignByOrder puts the first reported hand in slot 0 and the second in slot 1.
	AssignByOrder
)

func (a Assignment) String() string {
	switch a {
	case AssignByHandedness:
		return "handedness"
	case AssignByOrder:
		return "order"
	default:
		return fmt.Sprintf("Assignment(%d)", int(a))
	}
}

// ParseAssignment parses "handedness" or "order".
func ParseAssignment(s string) (Assignment, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "handedness", "":
		return AssignByHandedness, nil
	case "order":
		return AssignByOrder, nil
	default:
		return 0, fmt.Errorf("unknown hand assignment %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (a Assignment) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Assignment) UnmarshalText(b []byte) error {
	v, err := ParseAssignment(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Extract flattens up to two hands into a frame. Hands beyond the second are
// ignored. It never fails: missing hands leave their slot zeroed.
func Extract(hands []detector.HandLandmarks, rule Assignment) Frame {
	var f Frame
	if len(hands) > MaxHands {
		hands = hands[:MaxHands]
	}

	for i, slot := range slots(hands, rule) {
		hands[i].Flatten(f.Hand(slot))
	}
	return f
}

// slots returns the slot index for each considered hand.
func slots(hands []detector.HandLandmarks, rule Assignment) []int {
	out := make([]int, len(hands))
	for i := range hands {
		out[i] = i
	}
	if rule != AssignByHandedness {
		return out
	}
	for i := range hands {
		if !hands[i].Labelled() {
			return out
		}
	}

	taken := [MaxHands]bool{}
	for i := range hands {
		want := 1
		if hands[i].IsLeft() {
			want = 0
		}
		if taken[want] {
			want = 1 - want
		}
		taken[want] = true
		out[i] = want
	}
	return out
}
