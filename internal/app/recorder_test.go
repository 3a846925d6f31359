package app

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/dataset"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/keypoints"
	"github.com/ayusman/mudra/internal/sequence"
	"github.com/ayusman/mudra/internal/store"
)

func newTestRecorder(t *testing.T, opts RecordOptions) (*Recorder, *dataset.Store) {
	t.Helper()
	if opts.Label == "" {
		opts.Label = "hello"
	}
	ds := dataset.New(t.TempDir(), opts.WindowLength)
	r, err := NewRecorder(opts, RecordDeps{
		Camera:   capture.NewMockCamera(nil, false),
		Detector: detector.NewMockDetector(),
		Dataset:  ds,
	})
	if err != nil {
		t.Fatalf("NewRecorder() error = %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r, ds
}

// feed replays a pattern where 'h' is a frame with a hand and '.' a frame
// without one.
func feed(t *testing.T, r *Recorder, pattern string) []string {
	t.Helper()
	var saved []string
	for _, c := range pattern {
		var hands []detector.HandLandmarks
		if c == 'h' {
			hands = thumbsUp()
		}
		path, err := r.ProcessHands(hands)
		if err != nil {
			t.Fatalf("ProcessHands() error = %v", err)
		}
		if path != "" {
			saved = append(saved, path)
		}
	}
	return saved
}

func TestRecorder_SavesCompleteWindows(t *testing.T) {
	r, ds := newTestRecorder(t, RecordOptions{WindowLength: 3})

	saved := feed(t, r, "hhhhhhh")
	if len(saved) != 2 {
		t.Fatalf("saved %d samples, want 2", len(saved))
	}
	for _, path := range saved {
		frames, err := ds.Load(path)
		if err != nil {
			t.Fatalf("Load(%s) error = %v", path, err)
		}
		want := keypoints.Extract(thumbsUp(), keypoints.AssignByHandedness)
		for i, f := range frames {
			if f != want {
				t.Fatalf("%s frame %d differs from the extracted frame", path, i)
			}
		}
	}
	if filepath.Base(saved[0]) != "0.npy" || filepath.Base(saved[1]) != "1.npy" {
		t.Errorf("sample files = %v, want 0.npy and 1.npy", saved)
	}
	if stats := r.Stats(); stats.Saved != 2 || stats.Discarded != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestRecorder_GapPolicies(t *testing.T) {
	tests := []struct {
		name          string
		gap           sequence.GapPolicy
		maxMissed     int
		pattern       string
		wantSaved     int
		wantDiscarded int
	}{
		{name: "drop restarts the sample", gap: sequence.DropOnGap, pattern: "hh.hhhh", wantSaved: 1, wantDiscarded: 1},
		{name: "drop ignores gaps between samples", gap: sequence.DropOnGap, pattern: "hhhh..hhhh", wantSaved: 2},
		{name: "pad keeps short gaps", gap: sequence.PadOnGap, maxMissed: 1, pattern: "h.hh", wantSaved: 1},
		{name: "pad discards long gaps", gap: sequence.PadOnGap, maxMissed: 1, pattern: "h..hhhhh", wantSaved: 1, wantDiscarded: 1},
		{name: "pad with zero tolerance", gap: sequence.PadOnGap, pattern: "hh.h", wantDiscarded: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, ds := newTestRecorder(t, RecordOptions{
				WindowLength:    4,
				GapPolicy:       tt.gap,
				MaxMissedFrames: tt.maxMissed,
			})
			saved := feed(t, r, tt.pattern)

			stats := r.Stats()
			if stats.Saved != tt.wantSaved || len(saved) != tt.wantSaved {
				t.Errorf("saved = %d, want %d", stats.Saved, tt.wantSaved)
			}
			if stats.Discarded != tt.wantDiscarded {
				t.Errorf("discarded = %d, want %d", stats.Discarded, tt.wantDiscarded)
			}
			paths, err := ds.Samples("hello")
			if err != nil && !errors.Is(err, os.ErrNotExist) {
				t.Fatalf("Samples() error = %v", err)
			}
			if len(paths) != tt.wantSaved {
				t.Errorf("%d files on disk, want %d", len(paths), tt.wantSaved)
			}
		})
	}
}

func TestRecorder_PaddedFramesAreZero(t *testing.T) {
	r, ds := newTestRecorder(t, RecordOptions{WindowLength: 3, GapPolicy: sequence.PadOnGap, MaxMissedFrames: 1})

	saved := feed(t, r, "h.h")
	if len(saved) != 1 {
		t.Fatalf("saved %d samples, want 1", len(saved))
	}
	frames, err := ds.Load(saved[0])
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if frames[0].Empty() || !frames[1].Empty() || frames[2].Empty() {
		t.Error("expected only the middle frame to be zero")
	}
}

func TestNewRecorder_Manifest(t *testing.T) {
	root := t.TempDir()
	ds := dataset.New(root, 5)
	deps := RecordDeps{
		Camera:   capture.NewMockCamera(nil, false),
		Detector: detector.NewMockDetector(),
		Dataset:  ds,
	}

	r, err := NewRecorder(RecordOptions{Label: "hello", WindowLength: 5, GapPolicy: sequence.PadOnGap}, deps)
	if err != nil {
		t.Fatalf("NewRecorder() error = %v", err)
	}
	r.Close()

	m, err := ds.ReadManifest()
	if err != nil || m == nil {
		t.Fatalf("ReadManifest() = %v, %v", m, err)
	}
	if m.WindowLength != 5 || m.GapPolicy != sequence.PadOnGap {
		t.Errorf("manifest = %+v", m)
	}

	tests := []struct {
		name string
		opts RecordOptions
	}{
		{"window mismatch", RecordOptions{Label: "hello", WindowLength: 3}},
		{"assignment mismatch", RecordOptions{Label: "hello", WindowLength: 5, HandAssignment: keypoints.AssignByOrder}},
		{"invalid label", RecordOptions{Label: "../up", WindowLength: 5}},
		{"negative tolerance", RecordOptions{Label: "hello", WindowLength: 5, MaxMissedFrames: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRecorder(tt.opts, deps); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestRecorder_Run(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	st, err := store.New(filepath.Join(t.TempDir(), "mudra.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer st.Close()

	frames := capture.BlankFrames(1, 64, 48)
	defer frames[0].Close()
	camera := capture.NewMockCamera(frames, true)
	det := detector.NewMockDetector()
	det.SetHands(thumbsUp())

	r, err := NewRecorder(RecordOptions{Label: "hello", WindowLength: 2, Samples: 2}, RecordDeps{
		Camera:   camera,
		Detector: det,
		Dataset:  dataset.New(t.TempDir(), 2),
		Store:    st,
	})
	if err != nil {
		t.Fatalf("NewRecorder() error = %v", err)
	}

	stats, err := r.Run(t.Context())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if stats.Saved != 2 || len(stats.Paths) != 2 {
		t.Errorf("stats = %+v, want 2 saved", stats)
	}
	if det.Calls() != 4 {
		t.Errorf("detector calls = %d, want 4", det.Calls())
	}
	if camera.Closed() != 1 || !det.Closed() {
		t.Error("camera and detector should be closed")
	}

	sign, err := st.Signs().GetByLabel("hello")
	if err != nil {
		t.Fatalf("GetByLabel() error = %v", err)
	}
	if sign.Samples != 2 {
		t.Errorf("sign samples = %d, want 2", sign.Samples)
	}
	samples, err := st.Samples().GetBySignID(sign.ID)
	if err != nil {
		t.Fatalf("GetBySignID() error = %v", err)
	}
	if len(samples) != 2 || samples[1].SampleIndex != 1 || samples[0].Frames != 2 {
		t.Errorf("stored samples = %+v", samples)
	}
	sess, err := st.Sessions().Get(r.opts.SessionID)
	if err != nil {
		t.Fatalf("Sessions().Get() error = %v", err)
	}
	if sess.Mode != store.ModeRecord || sess.EndedAt == nil {
		t.Errorf("stored session = %+v", sess)
	}
}
