// Package sequence accumulates keypoint frames into fixed-length windows.
package sequence

import (
	"fmt"
	"strings"

	"github.com/ayusman/mudra/internal/keypoints"
)

// Mode selects what happens once the buffer reaches capacity.
type Mode int

const (
	// Sliding evicts the oldest frame when a push would exceed capacity.
	Sliding Mode = iota
	// Batch hands the full window back from Push and starts over empty.
	Batch
)

func (m Mode) String() string {
	switch m {
	case Sliding:
		return "sliding"
	case Batch:
		return "batch"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// GapPolicy selects what a missed frame (no hands detected) does to the
// window in progress.
type GapPolicy int

const (
	// DropOnGap clears the window.
	DropOnGap GapPolicy = iota
	// PadOnGap pushes an all-zero frame in place of the missing one.
	PadOnGap
)

func (g GapPolicy) String() string {
	switch g {
	case DropOnGap:
		return "drop"
	case PadOnGap:
		return "pad"
	default:
		return fmt.Sprintf("GapPolicy(%d)", int(g))
	}
}

// ParseGapPolicy parses "drop" or "pad".
func ParseGapPolicy(s string) (GapPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "drop", "":
		return DropOnGap, nil
	case "pad":
		return PadOnGap, nil
	default:
		return 0, fmt.Errorf("unknown gap policy %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (g GapPolicy) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (g *GapPolicy) UnmarshalText(b []byte) error {
	v, err := ParseGapPolicy(string(b))
	if err != nil {
		return err
	}
	*g = v
	return nil
}

// Buffer is a bounded window of frames, oldest first. Its length never
// exceeds its capacity. A Buffer is not safe for concurrent use.
type Buffer struct {
	frames     []keypoints.Frame
	padded     []bool
	capacity   int
	mode       Mode
	gap        GapPolicy
	missed     int
	lastMissed int
	generation uint64
}

// NewBuffer creates a buffer. Capacity must be at least 1.
func NewBuffer(capacity int, mode Mode, gap GapPolicy) (*Buffer, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("buffer capacity must be at least 1, got %d", capacity)
	}
	return &Buffer{
		frames:   make([]keypoints.Frame, 0, capacity),
		padded:   make([]bool, 0, capacity),
		capacity: capacity,
		mode:     mode,
		gap:      gap,
	}, nil
}

// Push appends a frame. In Sliding mode the oldest frame is evicted when the
// buffer is full. In Batch mode, when the push fills the buffer, the completed
// window is returned and the buffer is cleared; otherwise nil is returned.
func (b *Buffer) Push(f keypoints.Frame) []keypoints.Frame {
	return b.push(f, false)
}

func (b *Buffer) push(f keypoints.Frame, pad bool) []keypoints.Frame {
	if b.mode == Sliding && len(b.frames) == b.capacity {
		if b.padded[0] {
			b.missed--
		}
		copy(b.frames, b.frames[1:])
		copy(b.padded, b.padded[1:])
		b.frames = b.frames[:len(b.frames)-1]
		b.padded = b.padded[:len(b.padded)-1]
	}
	b.frames = append(b.frames, f)
	b.padded = append(b.padded, pad)
	if pad {
		b.missed++
	}

	if b.mode == Batch && len(b.frames) == b.capacity {
		window := b.Window()
		missed := b.missed
		b.Clear()
		b.lastMissed = missed
		return window
	}
	return nil
}

// Miss records a frame in which no hand was found, applying the gap policy.
// It returns a completed window when padding fills a batch buffer.
func (b *Buffer) Miss() []keypoints.Frame {
	switch b.gap {
	case PadOnGap:
		return b.push(keypoints.Frame{}, true)
	default:
		b.Clear()
		return nil
	}
}

// IsReady reports whether the buffer holds exactly Cap frames.
func (b *Buffer) IsReady() bool {
	return len(b.frames) == b.capacity
}

// Len returns the number of buffered frames.
func (b *Buffer) Len() int {
	return len(b.frames)
}

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int {
	return b.capacity
}

// Mode returns the buffer mode.
func (b *Buffer) Mode() Mode {
	return b.mode
}

// GapPolicy returns the gap policy.
func (b *Buffer) GapPolicy() GapPolicy {
	return b.gap
}

// Missed returns the number of padded frames currently buffered.
func (b *Buffer) Missed() int {
	return b.missed
}

// LastMissed returns the number of padded frames in the most recent window
// completed by a batch buffer.
func (b *Buffer) LastMissed() int {
	return b.lastMissed
}

// Generation increments every time the buffer is cleared. Results computed
// from an older generation describe frames the buffer no longer holds.
func (b *Buffer) Generation() uint64 {
	return b.generation
}

// Clear empties the buffer and resets the missed-frame count.
func (b *Buffer) Clear() {
	b.frames = b.frames[:0]
	b.padded = b.padded[:0]
	b.missed = 0
	b.generation++
}

// Window returns a copy of the buffered frames, oldest first.
func (b *Buffer) Window() []keypoints.Frame {
	out := make([]keypoints.Frame, len(b.frames))
	copy(out, b.frames)
	return out
}
