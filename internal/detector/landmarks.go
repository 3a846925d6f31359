// Package detector finds hands in camera frames and reports their 21
// MediaPipe landmarks.
package detector

import (
	"math"
	"strings"
)

// Landmark indices in MediaPipe hand-model order. Each finger runs from its
// base joint to its tip.
const (
	Wrist = iota
	ThumbCMC
	ThumbMCP
	ThumbIP
	ThumbTip
	IndexMCP
	IndexPIP
	IndexDIP
	IndexTip
	MiddleMCP
	MiddlePIP
	MiddleDIP
	MiddleTip
	RingMCP
	RingPIP
	RingDIP
	RingTip
	PinkyMCP
	PinkyPIP
	PinkyDIP
	PinkyTip

	NumLandmarks
)

// Finger lists the four landmark indices of one digit, base to tip.
type Finger [4]int

// Fingers holds the digits from thumb to pinky.
var Fingers = [5]Finger{
	{ThumbCMC, ThumbMCP, ThumbIP, ThumbTip},
	{IndexMCP, IndexPIP, IndexDIP, IndexTip},
	{MiddleMCP, MiddlePIP, MiddleDIP, MiddleTip},
	{RingMCP, RingPIP, RingDIP, RingTip},
	{PinkyMCP, PinkyPIP, PinkyDIP, PinkyTip},
}

// Side labels reported by the detector. An empty Handedness means the
// detector did not classify the hand.
const (
	SideLeft  = "Left"
	SideRight = "Right"
)

// Point3D is a landmark in normalized image coordinates. Z is depth
// relative to the wrist.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (p Point3D) sub(q Point3D) Point3D { return Point3D{p.X - q.X, p.Y - q.Y, p.Z - q.Z} }

func (p Point3D) scale(f float64) Point3D { return Point3D{p.X * f, p.Y * f, p.Z * f} }

func (p Point3D) norm() float64 { return math.Sqrt(p.X*p.X + p.Y*p.Y + p.Z*p.Z) }

// HandLandmarks is one hand in one frame.
type HandLandmarks struct {
	Points     [NumLandmarks]Point3D `json:"points"`
	Handedness string                `json:"handedness"`
	Score      float64               `json:"score"`
}

func (h *HandLandmarks) side() string {
	return strings.TrimSpace(h.Handedness)
}

// Labelled reports whether the hand carries a side label.
func (h *HandLandmarks) Labelled() bool {
	return h.side() != ""
}

// IsLeft reports whether the hand is labelled Left, ignoring case.
func (h *HandLandmarks) IsLeft() bool {
	return strings.EqualFold(h.side(), SideLeft)
}

// Flatten writes x0,y0,z0,x1,... into dst. dst needs NumLandmarks*3 slots.
func (h *HandLandmarks) Flatten(dst []float64) {
	_ = dst[NumLandmarks*3-1]
	for i, p := range h.Points {
		dst[i*3], dst[i*3+1], dst[i*3+2] = p.X, p.Y, p.Z
	}
}

// Normalize returns a wrist-centred copy whose wrist to middle-MCP
// distance is 1. A degenerate hand is only translated.
func (h *HandLandmarks) Normalize() *HandLandmarks {
	if h == nil {
		return nil
	}
	out := *h
	origin := h.Points[Wrist]
	for i := range out.Points {
		out.Points[i] = h.Points[i].sub(origin)
	}
	palm := out.Points[MiddleMCP].norm()
	if palm < 1e-10 {
		return &out
	}
	for i := range out.Points {
		out.Points[i] = out.Points[i].scale(1 / palm)
	}
	return &out
}
