package app

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/dataset"
	"github.com/ayusman/mudra/internal/detector"
)

func writeImages(t *testing.T, dir string, n int) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create image dir: %v", err)
	}
	img := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	defer img.Close()
	for i := 0; i < n; i++ {
		if ok := gocv.IMWrite(filepath.Join(dir, fmt.Sprintf("%02d.png", i)), img); !ok {
			t.Fatalf("failed to write image %d", i)
		}
	}
}

func TestExtract(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	src := t.TempDir()
	writeImages(t, filepath.Join(src, "hello"), 5)
	os.WriteFile(filepath.Join(src, "hello", "notes.txt"), []byte("not an image"), 0644)
	os.WriteFile(filepath.Join(src, "hello", "zz-broken.png"), []byte("garbage"), 0644)
	os.WriteFile(filepath.Join(src, "README"), []byte("top-level file"), 0644)

	det := detector.NewMockDetector()
	det.SetHands(thumbsUp())
	det.Queue(nil)

	out := dataset.New(t.TempDir(), 2)
	stats, err := Extract(t.Context(), src, det, out, 0)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if stats.Images["hello"] != 5 {
		t.Errorf("images = %d, want 5", stats.Images["hello"])
	}
	if stats.Samples["hello"] != 2 {
		t.Errorf("samples = %d, want 2", stats.Samples["hello"])
	}
	if stats.Leftover["hello"] != 1 {
		t.Errorf("leftover = %d, want 1", stats.Leftover["hello"])
	}
	if len(stats.Skipped) != 1 || filepath.Base(stats.Skipped[0]) != "zz-broken.png" {
		t.Errorf("skipped = %v, want the broken image", stats.Skipped)
	}
	if det.Calls() != 5 {
		t.Errorf("detector calls = %d, want 5", det.Calls())
	}

	paths, err := out.Samples("hello")
	if err != nil {
		t.Fatalf("Samples() error = %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("%d sample files, want 2", len(paths))
	}
	frames, err := out.Load(paths[0])
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !frames[0].Empty() {
		t.Error("an image without hands should give a zero frame")
	}
	if frames[1].Empty() {
		t.Error("an image with a hand should give keypoints")
	}
}

func TestExtract_MissingRoot(t *testing.T) {
	out := dataset.New(t.TempDir(), 2)
	_, err := Extract(t.Context(), filepath.Join(t.TempDir(), "missing"), detector.NewMockDetector(), out, 0)
	if err == nil {
		t.Fatal("expected error for a missing image root")
	}
}

func TestImageFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.JPG", "a.png", "c.txt", "d.jpeg"} {
		os.WriteFile(filepath.Join(dir, name), nil, 0644)
	}
	os.Mkdir(filepath.Join(dir, "e.png"), 0755)

	paths, err := imageFiles(dir)
	if err != nil {
		t.Fatalf("imageFiles() error = %v", err)
	}
	var names []string
	for _, p := range paths {
		names = append(names, filepath.Base(p))
	}
	want := []string{"a.png", "b.JPG", "d.jpeg"}
	if fmt.Sprint(names) != fmt.Sprint(want) {
		t.Errorf("imageFiles() = %v, want %v", names, want)
	}
}
