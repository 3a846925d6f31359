package display

import (
	"context"
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// Frames holds the most recent annotated frame as JPEG and lets readers
// wait for newer ones.
type Frames struct {
	mu      sync.Mutex
	jpeg    []byte
	seq     uint64
	updated chan struct{}
}

// NewFrames creates an empty frame holder.
func NewFrames() *Frames {
	return &Frames{updated: make(chan struct{})}
}

// Publish encodes frame as JPEG and makes it the latest frame.
func (f *Frames) Publish(frame *gocv.Mat) error {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	data := make([]byte, len(buf.GetBytes()))
	copy(data, buf.GetBytes())
	f.PublishJPEG(data)
	return nil
}

// PublishJPEG stores already encoded bytes as the latest frame.
func (f *Frames) PublishJPEG(data []byte) {
	f.mu.Lock()
	f.jpeg = data
	f.seq++
	close(f.updated)
	f.updated = make(chan struct{})
	f.mu.Unlock()
}

// Latest returns the newest frame and its sequence number. Sequence 0 means
// nothing was published yet.
func (f *Frames) Latest() ([]byte, uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jpeg, f.seq
}

// Next blocks until a frame newer than after is available or ctx is done.
func (f *Frames) Next(ctx context.Context, after uint64) ([]byte, uint64, error) {
	for {
		f.mu.Lock()
		if f.seq > after {
			data, seq := f.jpeg, f.seq
			f.mu.Unlock()
			return data, seq, nil
		}
		updated := f.updated
		f.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, after, ctx.Err()
		case <-updated:
		}
	}
}
