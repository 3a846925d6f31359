package dataset

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/sbinet/npyio"

	"github.com/ayusman/mudra/internal/keypoints"
	"github.com/ayusman/mudra/internal/sequence"
)

func makeWindow(n int, seed float64) []keypoints.Frame {
	w := make([]keypoints.Frame, n)
	for i := range w {
		for j := range w[i] {
			w[i][j] = seed + float64(i)*0.001 + float64(j)*1e-6
		}
	}
	return w
}

func TestSaveLoad_RoundTripExact(t *testing.T) {
	s := New(t.TempDir(), 50)
	window := makeWindow(50, 0.123456789)

	path, index, err := s.Save("hello", window)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if index != 0 || filepath.Base(path) != "0.npy" {
		t.Errorf("expected first sample 0.npy, got %s (index %d)", path, index)
	}

	loaded, err := s.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 50 {
		t.Fatalf("expected 50 frames, got %d", len(loaded))
	}
	for i := range window {
		if loaded[i] != window[i] {
			t.Fatalf("frame %d differs after round trip", i)
		}
	}
}

func TestSave_IncrementsIndex(t *testing.T) {
	s := New(t.TempDir(), 10)
	for want := 0; want < 3; want++ {
		_, index, err := s.Save("sorry", makeWindow(10, 1))
		if err != nil {
			t.Fatalf("Save: %v", err)
		}
		if index != want {
			t.Errorf("expected index %d, got %d", want, index)
		}
	}

	paths, err := s.Samples("sorry")
	if err != nil {
		t.Fatalf("Samples: %v", err)
	}
	if len(paths) != 3 || filepath.Base(paths[2]) != "2.npy" {
		t.Errorf("unexpected samples %v", paths)
	}
}

func TestSave_Rejects(t *testing.T) {
	s := New(t.TempDir(), 10)

	if _, _, err := s.Save("hello", makeWindow(9, 0)); !errors.Is(err, ErrBadShape) {
		t.Errorf("expected ErrBadShape for short window, got %v", err)
	}
	for _, label := range []string{"", "..", "a/b", " padded"} {
		if _, _, err := s.Save(label, makeWindow(10, 0)); !errors.Is(err, ErrInvalidLabel) {
			t.Errorf("label %q: expected ErrInvalidLabel, got %v", label, err)
		}
	}
}

// rawNpy builds a version 1.0 .npy file by hand.
func rawNpy(descr string, rows int, data []byte) []byte {
	header := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': (%d, %d), }", descr, rows, keypoints.Size)
	for (10+len(header)+1)%64 != 0 {
		header += " "
	}
	header += "\n"

	var buf bytes.Buffer
	buf.WriteString("\x93NUMPY")
	buf.Write([]byte{1, 0})
	binary.Write(&buf, binary.LittleEndian, uint16(len(header)))
	buf.WriteString(header)
	buf.Write(data)
	return buf.Bytes()
}

func TestDecode_Float32(t *testing.T) {
	var data bytes.Buffer
	for i := 0; i < 2*keypoints.Size; i++ {
		binary.Write(&data, binary.LittleEndian, float32(i)*0.5)
	}

	frames, err := Decode(bytes.NewReader(rawNpy("<f4", 2, data.Bytes())))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if frames[1][0] != float64(keypoints.Size)*0.5 || frames[0][3] != 1.5 {
		t.Errorf("unexpected values %v %v", frames[1][0], frames[0][3])
	}
}

func TestDecode_RejectsFlatArray(t *testing.T) {
	values := make([]float64, 10*keypoints.Size)
	var buf bytes.Buffer
	if err := npyio.Write(&buf, values); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := Decode(bytes.NewReader(buf.Bytes())); !errors.Is(err, ErrBadShape) {
		t.Errorf("expected ErrBadShape for 1-D array, got %v", err)
	}
}

func TestDecode_RejectsOtherDtypes(t *testing.T) {
	data := make([]byte, keypoints.Size*4)
	if _, err := Decode(bytes.NewReader(rawNpy("<i4", 1, data))); err == nil {
		t.Error("expected error for integer array")
	}
}

func TestWalk_SkipsBadShapes(t *testing.T) {
	root := t.TempDir()
	s := New(root, 10)

	for _, label := range []string{"hello", "thankyou"} {
		if _, _, err := s.Save(label, makeWindow(10, 1)); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	// A sample with the wrong window length, written by a store without a fixed length.
	if _, _, err := New(root, 0).Save("hello", makeWindow(7, 1)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	// A file that is not an npy array at all.
	if err := os.WriteFile(filepath.Join(root, "thankyou", "junk.npy"), []byte("nope"), 0644); err != nil {
		t.Fatal(err)
	}

	seen := map[string]int{}
	stats, err := s.Walk(func(label, path string, frames []keypoints.Frame) error {
		seen[label]++
		if len(frames) != 10 {
			t.Errorf("walk delivered %d frames", len(frames))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if stats.Loaded != 2 || len(stats.Skipped) != 2 {
		t.Errorf("expected 2 loaded and 2 skipped, got %d and %v", stats.Loaded, stats.Skipped)
	}
	if seen["hello"] != 1 || seen["thankyou"] != 1 {
		t.Errorf("unexpected per-label counts %v", seen)
	}
}

func TestLabelsAndCounts(t *testing.T) {
	s := New(t.TempDir(), 5)
	if labels, err := s.Labels(); err != nil || len(labels) != 0 {
		t.Fatalf("expected no labels in empty dataset, got %v, %v", labels, err)
	}

	for _, label := range []string{"sorry", "hello", "hello"} {
		if _, _, err := s.Save(label, makeWindow(5, 0)); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	labels, err := s.Labels()
	if err != nil {
		t.Fatalf("Labels: %v", err)
	}
	if len(labels) != 2 || labels[0] != "hello" || labels[1] != "sorry" {
		t.Errorf("expected sorted [hello sorry], got %v", labels)
	}

	counts, err := s.Counts()
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts["hello"] != 2 || counts["sorry"] != 1 {
		t.Errorf("unexpected counts %v", counts)
	}
}

func TestIndexOf(t *testing.T) {
	tests := []struct {
		name string
		want int
		ok   bool
	}{
		{"7.npy", 7, true},
		{"hello_12.npy", 12, true},
		{"seq_3.npy", 3, true},
		{"junk.npy", 0, false},
	}
	for _, tt := range tests {
		got, ok := indexOf(tt.name)
		if ok != tt.ok || got != tt.want {
			t.Errorf("indexOf(%q) = %d, %v; want %d, %v", tt.name, got, ok, tt.want, tt.ok)
		}
	}
}

func TestSplit(t *testing.T) {
	root := t.TempDir()
	s := New(root, 5)
	for i := 0; i < 10; i++ {
		if _, _, err := s.Save("hello", makeWindow(5, float64(i))); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 2; i++ {
		if _, _, err := s.Save("sorry", makeWindow(5, float64(i))); err != nil {
			t.Fatal(err)
		}
	}

	dst := t.TempDir()
	res, err := s.Split(dst, 0.8, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if res.Train["hello"] != 8 || res.Val["hello"] != 2 {
		t.Errorf("expected 8/2 for hello, got %d/%d", res.Train["hello"], res.Val["hello"])
	}
	if res.Train["sorry"] != 1 || res.Val["sorry"] != 1 {
		t.Errorf("expected 1/1 for sorry, got %d/%d", res.Train["sorry"], res.Val["sorry"])
	}

	train := New(filepath.Join(dst, TrainDir), 5)
	counts, err := train.Counts()
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts["hello"] != 8 {
		t.Errorf("expected 8 files copied to train/hello, got %d", counts["hello"])
	}

	if _, err := s.Split(dst, 1.5, rand.New(rand.NewSource(1))); err == nil {
		t.Error("expected error for ratio outside (0,1)")
	}
}

func TestManifest(t *testing.T) {
	s := New(t.TempDir(), 10)

	m, err := s.ReadManifest()
	if err != nil || m != nil {
		t.Fatalf("expected no manifest, got %v, %v", m, err)
	}

	want := Manifest{WindowLength: 10, HandAssignment: keypoints.AssignByOrder, GapPolicy: sequence.PadOnGap, Mirrored: true}
	if err := s.WriteManifest(want); err != nil {
		t.Fatalf("WriteManifest: %v", err)
	}

	got, err := s.ReadManifest()
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if got.WindowLength != 10 || got.HandAssignment != keypoints.AssignByOrder || got.GapPolicy != sequence.PadOnGap || !got.Mirrored {
		t.Errorf("unexpected manifest %+v", got)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("expected UpdatedAt to be stamped")
	}

	if err := got.Compatible(10, keypoints.AssignByOrder); err != nil {
		t.Errorf("expected compatible, got %v", err)
	}
	if err := got.Compatible(50, keypoints.AssignByOrder); err == nil {
		t.Error("expected window length mismatch")
	}
	if err := got.Compatible(10, keypoints.AssignByHandedness); err == nil {
		t.Error("expected hand assignment mismatch")
	}
}
