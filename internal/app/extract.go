package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/dataset"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/keypoints"
	"github.com/ayusman/mudra/internal/observability"
	"github.com/ayusman/mudra/internal/sequence"
)

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
}

// ExtractStats counts what Extract produced per label.
type ExtractStats struct {
	Images   map[string]int `json:"images"`
	Samples  map[string]int `json:"samples"`
	Skipped  []string       `json:"skipped,omitempty"`
	Leftover map[string]int `json:"leftover"`
}

// Extract turns folders of still images, one folder per label under src,
// into dataset samples. Images are read in name order and every
// window-length run becomes one sample. Images without a detected hand
// contribute an all-zero frame; images that cannot be read are skipped.
// A trailing run shorter than the window is dropped.
func Extract(ctx context.Context, src string, det detector.Detector, out *dataset.Store, rule keypoints.Assignment) (ExtractStats, error) {
	logger := observability.Component("extract")
	stats := ExtractStats{
		Images:   map[string]int{},
		Samples:  map[string]int{},
		Leftover: map[string]int{},
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return stats, fmt.Errorf("read image root: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		label := entry.Name()
		if err := dataset.ValidateLabel(label); err != nil {
			logger.Warn().Err(err).Msg("skipping folder")
			continue
		}

		images, err := imageFiles(filepath.Join(src, label))
		if err != nil {
			return stats, err
		}

		buffer, err := sequence.NewBuffer(out.Window(), sequence.Batch, sequence.PadOnGap)
		if err != nil {
			return stats, err
		}
		for _, path := range images {
			if err := ctx.Err(); err != nil {
				return stats, err
			}

			frame, ok := extractImage(det, path, rule)
			if !ok {
				logger.Warn().Str("path", path).Msg("skipping unreadable image")
				stats.Skipped = append(stats.Skipped, path)
				continue
			}
			stats.Images[label]++

			window := buffer.Push(frame)
			if window == nil {
				continue
			}
			saved, _, err := out.Save(label, window)
			if err != nil {
				return stats, err
			}
			stats.Samples[label]++
			observability.RecordSample(label, "saved")
			logger.Debug().Str("path", saved).Msg("sample saved")
		}
		if n := buffer.Len(); n > 0 {
			stats.Leftover[label] = n
		}
		logger.Info().
			Str("label", label).
			Int("images", stats.Images[label]).
			Int("samples", stats.Samples[label]).
			Int("leftover", buffer.Len()).
			Msg("label extracted")
	}
	return stats, nil
}

func extractImage(det detector.Detector, path string, rule keypoints.Assignment) (keypoints.Frame, bool) {
	img := gocv.IMRead(path, gocv.IMReadColor)
	defer img.Close()
	if img.Empty() {
		return keypoints.Frame{}, false
	}

	hands, err := det.Detect(&img)
	if err != nil {
		observability.RecordFrame(observability.FrameDetectFail)
		return keypoints.Frame{}, false
	}
	if len(hands) == 0 {
		observability.RecordFrame(observability.FrameNoHands)
	} else {
		observability.RecordFrame(observability.FrameDetected)
	}
	return keypoints.Extract(hands, rule), true
}

func imageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read image folder: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}
