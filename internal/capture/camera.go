// Package capture pulls BGR frames from a webcam or a video file through
// GoCV.
package capture

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"gocv.io/x/gocv"
)

const (
	DefaultFPS    = 30
	DefaultWidth  = 640
	DefaultHeight = 480
)

var (
	ErrCameraNotOpen = errors.New("camera is not open")
	// ErrReadFrame is a transient miss from a live device.
	ErrReadFrame = errors.New("failed to read frame")
	// ErrEndOfStream means a file source has no frames left.
	ErrEndOfStream = errors.New("end of stream")
)

// Camera is a frame source. ReadFrame returns a Mat the caller must close.
type Camera interface {
	Open() error
	Close() error
	ReadFrame() (*gocv.Mat, error)
	SetFPS(fps int)
	FPS() int
	IsOpen() bool
}

// Options selects and sizes the source. Size and rate are requests to the
// driver and are ignored for files.
type Options struct {
	Source string // device index such as "0", or a video file path
	Width  int
	Height int
	FPS    int
	Mirror bool // flip horizontally, selfie style
}

func DefaultOptions() Options {
	return Options{
		Source: "0",
		Width:  DefaultWidth,
		Height: DefaultHeight,
		FPS:    DefaultFPS,
		Mirror: true,
	}
}

type videoCamera struct {
	mu   sync.Mutex
	opts Options
	vc   *gocv.VideoCapture
	file bool
}

// NewCamera returns an unopened camera. Empty fields fall back to device 0
// at DefaultFPS.
func NewCamera(opts Options) Camera {
	if opts.Source == "" {
		opts.Source = "0"
	}
	if opts.FPS <= 0 {
		opts.FPS = DefaultFPS
	}
	return &videoCamera{opts: opts}
}

// openSource treats an integer source as a device index and anything else
// as a file.
func openSource(source string) (vc *gocv.VideoCapture, file bool, err error) {
	if id, convErr := strconv.Atoi(source); convErr == nil {
		vc, err = gocv.OpenVideoCapture(id)
	} else {
		vc, err = gocv.VideoCaptureFile(source)
		file = true
	}
	if err != nil {
		return nil, file, err
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, file, errors.New("device unavailable")
	}
	return vc, file, nil
}

func (c *videoCamera) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.vc != nil {
		return nil
	}

	vc, file, err := openSource(c.opts.Source)
	if err != nil {
		return fmt.Errorf("open video source %q: %w", c.opts.Source, err)
	}
	if !file {
		if c.opts.Width > 0 && c.opts.Height > 0 {
			vc.Set(gocv.VideoCaptureFrameWidth, float64(c.opts.Width))
			vc.Set(gocv.VideoCaptureFrameHeight, float64(c.opts.Height))
		}
		vc.Set(gocv.VideoCaptureFPS, float64(c.opts.FPS))
	}
	c.vc, c.file = vc, file
	return nil
}

func (c *videoCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.vc == nil {
		return nil
	}
	err := c.vc.Close()
	c.vc = nil
	return err
}

func (c *videoCamera) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.vc == nil {
		return nil, ErrCameraNotOpen
	}

	frame := gocv.NewMat()
	if !c.vc.Read(&frame) || frame.Empty() {
		frame.Close()
		if c.file {
			return nil, ErrEndOfStream
		}
		return nil, ErrReadFrame
	}
	if c.opts.Mirror {
		Mirror(&frame)
	}
	return &frame, nil
}

// SetFPS ignores non-positive rates.
func (c *videoCamera) SetFPS(fps int) {
	if fps <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opts.FPS = fps
	if c.vc != nil && !c.file {
		c.vc.Set(gocv.VideoCaptureFPS, float64(fps))
	}
}

func (c *videoCamera) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts.FPS
}

func (c *videoCamera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.vc != nil
}

// Mirror flips m around its vertical axis in place.
func Mirror(m *gocv.Mat) {
	gocv.Flip(*m, m, 1)
}
