package detector

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a scripted Detector for tests. Queued results are
// consumed one per Detect call; after that every call returns the fixed
// hands. A set error wins over both.
type MockDetector struct {
	mu     sync.Mutex
	fixed  []HandLandmarks
	queue  [][]HandLandmarks
	err    error
	calls  int
	closed bool
}

// NewMockDetector returns a detector that sees no hands.
func NewMockDetector() *MockDetector {
	return new(MockDetector)
}

func (m *MockDetector) locked(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn()
}

// SetHands fixes the result returned once the queue is empty.
func (m *MockDetector) SetHands(hands []HandLandmarks) {
	m.locked(func() { m.fixed = hands })
}

// SetError makes every Detect call fail with err. Nil clears it.
func (m *MockDetector) SetError(err error) {
	m.locked(func() { m.err = err })
}

// Queue appends one result per future Detect call.
func (m *MockDetector) Queue(results ...[]HandLandmarks) {
	m.locked(func() { m.queue = append(m.queue, results...) })
}

// Detect ignores the frame and replays the scripted result.
func (m *MockDetector) Detect(*gocv.Mat) (hands []HandLandmarks, err error) {
	m.locked(func() {
		m.calls++
		switch {
		case m.err != nil:
			err = m.err
		case len(m.queue) > 0:
			hands, m.queue = m.queue[0], m.queue[1:]
		default:
			hands = m.fixed
		}
	})
	return hands, err
}

// Calls counts Detect invocations.
func (m *MockDetector) Calls() (n int) {
	m.locked(func() { n = m.calls })
	return n
}

func (m *MockDetector) Close() error {
	m.locked(func() { m.closed = true })
	return nil
}

// Closed reports whether Close ran.
func (m *MockDetector) Closed() (closed bool) {
	m.locked(func() { closed = m.closed })
	return closed
}

// pose lists x, y, z for every landmark in index order.
type pose [NumLandmarks][3]float64

func (p *pose) hand(side string, score float64) HandLandmarks {
	h := HandLandmarks{Handedness: side, Score: score}
	for i, xyz := range p {
		h.Points[i] = Point3D{X: xyz[0], Y: xyz[1], Z: xyz[2]}
	}
	return h
}

var thumbsUp = pose{
	{0.50, 0.80, 0},
	{0.55, 0.75, 0}, {0.58, 0.65, 0}, {0.58, 0.50, 0}, {0.58, 0.35, 0},
	{0.55, 0.70, -0.02}, {0.55, 0.68, -0.05}, {0.52, 0.70, -0.04}, {0.50, 0.72, -0.02},
	{0.50, 0.68, -0.02}, {0.50, 0.66, -0.05}, {0.47, 0.68, -0.04}, {0.45, 0.70, -0.02},
	{0.45, 0.70, -0.02}, {0.45, 0.68, -0.05}, {0.42, 0.70, -0.04}, {0.40, 0.72, -0.02},
	{0.40, 0.72, -0.02}, {0.40, 0.70, -0.05}, {0.37, 0.72, -0.04}, {0.35, 0.74, -0.02},
}

var openPalm = pose{
	{0.50, 0.80, 0},
	{0.55, 0.75, 0.02}, {0.62, 0.70, 0.03}, {0.68, 0.65, 0.03}, {0.73, 0.60, 0.03},
	{0.55, 0.68, 0}, {0.57, 0.55, 0}, {0.58, 0.45, 0}, {0.58, 0.35, 0},
	{0.50, 0.66, 0}, {0.50, 0.52, 0}, {0.50, 0.40, 0}, {0.50, 0.28, 0},
	{0.45, 0.68, 0}, {0.43, 0.55, 0}, {0.42, 0.45, 0}, {0.42, 0.35, 0},
	{0.40, 0.70, 0}, {0.37, 0.60, 0}, {0.35, 0.50, 0}, {0.34, 0.42, 0},
}

// ThumbsUpLandmarks is a right hand with the thumb raised and the other
// fingers curled into the palm.
func ThumbsUpLandmarks() HandLandmarks { return thumbsUp.hand(SideRight, 0.95) }

// OpenPalmLandmarks is a right hand with every finger spread.
func OpenPalmLandmarks() HandLandmarks { return openPalm.hand(SideRight, 0.95) }

// Mirrored flips the hand horizontally and swaps its side label, as a
// selfie-view camera would report it.
func Mirrored(h HandLandmarks) HandLandmarks {
	for i := range h.Points {
		h.Points[i].X = 1 - h.Points[i].X
	}
	if h.IsLeft() {
		h.Handedness = SideRight
	} else if h.Labelled() {
		h.Handedness = SideLeft
	}
	return h
}
