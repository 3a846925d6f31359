package capture

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockCamera replays a fixed set of frames. Each ReadFrame hands out a
// clone, so callers may close what they get.
type MockCamera struct {
	frames []*gocv.Mat
	loop   bool

	mu      sync.Mutex
	open    bool
	reads   int // ReadFrame calls since Open
	next    int // next frame to hand out
	closes  int
	openErr error
	readErr map[int]error
}

// NewMockCamera plays frames once, or forever when loop is set.
func NewMockCamera(frames []*gocv.Mat, loop bool) *MockCamera {
	return &MockCamera{frames: frames, loop: loop, readErr: map[int]error{}}
}

// FailOpen makes Open fail with err.
func (c *MockCamera) FailOpen(err error) {
	c.mu.Lock()
	c.openErr = err
	c.mu.Unlock()
}

// FailRead makes the read-th ReadFrame after Open, counting from zero,
// return err. The failed read does not use up a frame.
func (c *MockCamera) FailRead(read int, err error) {
	c.mu.Lock()
	c.readErr[read] = err
	c.mu.Unlock()
}

func (c *MockCamera) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.openErr != nil {
		return c.openErr
	}
	c.open = true
	c.reads, c.next = 0, 0
	return nil
}

func (c *MockCamera) Close() error {
	c.mu.Lock()
	c.open = false
	c.closes++
	c.mu.Unlock()
	return nil
}

func (c *MockCamera) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return nil, ErrCameraNotOpen
	}

	read := c.reads
	c.reads++
	if err := c.readErr[read]; err != nil {
		return nil, err
	}

	if c.next >= len(c.frames) {
		if !c.loop || len(c.frames) == 0 {
			return nil, ErrEndOfStream
		}
		c.next = 0
	}
	clone := c.frames[c.next].Clone()
	c.next++
	return &clone, nil
}

func (c *MockCamera) SetFPS(int) {}

func (c *MockCamera) FPS() int { return DefaultFPS }

func (c *MockCamera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Closed counts Close calls.
func (c *MockCamera) Closed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

// Reset rewinds playback without reopening.
func (c *MockCamera) Reset() {
	c.mu.Lock()
	c.reads, c.next = 0, 0
	c.mu.Unlock()
}

// BlankFrames makes n black 8-bit BGR frames. The caller closes them.
func BlankFrames(n, width, height int) []*gocv.Mat {
	frames := make([]*gocv.Mat, 0, n)
	for range n {
		m := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)
		frames = append(frames, &m)
	}
	return frames
}
