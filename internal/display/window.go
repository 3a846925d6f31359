package display

import (
	"gocv.io/x/gocv"
)

// Key codes that stop the loop.
const (
	KeyEsc = 27
	KeyQ   = 'q'
)

// Display shows annotated frames.
type Display interface {
	// Show presents frame and reports whether the user asked to quit.
	Show(frame *gocv.Mat) (quit bool)
	Close() error
}

// Window shows frames in a native OpenCV window.
type Window struct {
	win *gocv.Window
}

// NewWindow opens a window with the given title.
func NewWindow(title string) *Window {
	return &Window{win: gocv.NewWindow(title)}
}

// Show draws frame and polls the keyboard once.
func (w *Window) Show(frame *gocv.Mat) bool {
	w.win.IMShow(*frame)
	return IsQuitKey(w.win.WaitKey(1))
}

// Close destroys the window.
func (w *Window) Close() error {
	return w.win.Close()
}

// IsQuitKey reports whether a WaitKey result is q or Esc.
func IsQuitKey(key int) bool {
	if key < 0 {
		return false
	}
	switch key & 0xFF {
	case KeyQ, KeyEsc:
		return true
	}
	return false
}

// Headless discards frames. It never asks to quit.
type Headless struct{}

func (Headless) Show(*gocv.Mat) bool { return false }
func (Headless) Close() error        { return nil }
