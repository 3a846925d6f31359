package detector

import (
	"time"

	"gocv.io/x/gocv"
)

// Detector reports the hands visible in a frame, in the order the model
// found them. No hands is an empty result, not an error.
type Detector interface {
	Detect(frame *gocv.Mat) ([]HandLandmarks, error)
	Close() error
}

// Config tunes the landmark model.
type Config struct {
	MaxHands        int     // extra hands are dropped
	MinConfidence   float64 // palm detection cut-off
	MinTrackingConf float64 // landmark tracking cut-off between frames

	// StaticImages disables tracking so unrelated stills are each
	// detected from scratch.
	StaticImages bool

	// IdleTimeout stops the helper process after this long without a
	// frame. It restarts on the next Detect. Zero keeps it running.
	IdleTimeout time.Duration
}

// DefaultConfig suits a live webcam: two hands, tracking on.
func DefaultConfig() Config {
	return Config{
		MaxHands:        2,
		MinConfidence:   0.7,
		MinTrackingConf: 0.5,
		IdleTimeout:     30 * time.Second,
	}
}
