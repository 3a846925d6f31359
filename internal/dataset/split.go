package dataset

import (
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"path/filepath"
)

// Partition directory names used by Split.
const (
	TrainDir = "train"
	ValDir   = "val"
)

// SplitResult counts the files copied per label.
type SplitResult struct {
	Train map[string]int
	Val   map[string]int
}

// Split copies every label's samples into dst/train/<label> and
// dst/val/<label>. ratio is the training fraction; each label with at least
// two samples keeps at least one in each partition. Files are shuffled with
// rng before the cut.
func (s *Store) Split(dst string, ratio float64, rng *rand.Rand) (SplitResult, error) {
	result := SplitResult{Train: map[string]int{}, Val: map[string]int{}}
	if ratio <= 0 || ratio >= 1 {
		return result, fmt.Errorf("split ratio must be in (0,1), got %v", ratio)
	}

	labels, err := s.Labels()
	if err != nil {
		return result, err
	}
	for _, label := range labels {
		if label == TrainDir || label == ValDir {
			continue
		}
		paths, err := s.Samples(label)
		if err != nil {
			return result, err
		}
		if len(paths) == 0 {
			continue
		}

		rng.Shuffle(len(paths), func(i, j int) { paths[i], paths[j] = paths[j], paths[i] })

		cut := splitPoint(len(paths), ratio)
		for i, src := range paths {
			part := TrainDir
			if i >= cut {
				part = ValDir
			}
			target := filepath.Join(dst, part, label, filepath.Base(src))
			if err := copyFile(src, target); err != nil {
				return result, err
			}
			if part == TrainDir {
				result.Train[label]++
			} else {
				result.Val[label]++
			}
		}
	}
	return result, nil
}

func splitPoint(n int, ratio float64) int {
	cut := int(math.Round(float64(n) * ratio))
	if n >= 2 {
		cut = max(1, min(cut, n-1))
	}
	return min(cut, n)
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("create split dir: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}
