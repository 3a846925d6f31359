// Package dataset stores recorded sign samples on disk as NumPy arrays,
// one directory per label: <root>/<label>/<index>.npy with shape (window, 126).
package dataset

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"

	"github.com/ayusman/mudra/internal/keypoints"
	"github.com/ayusman/mudra/internal/observability"
)

const ext = ".npy"

// ErrBadShape is returned for arrays that are not (n, 126), or not n rows
// when the store has a fixed window length.
var ErrBadShape = errors.New("unexpected sample shape")

// ErrInvalidLabel is returned for labels that cannot be used as a directory name.
var ErrInvalidLabel = errors.New("invalid label")

// Store is a dataset rooted at a directory.
type Store struct {
	root   string
	window int
}

// New returns a store rooted at root. When window is positive, samples whose
// frame count differs are rejected by Save and skipped by Walk.
func New(root string, window int) *Store {
	return &Store{root: root, window: window}
}

// Root returns the dataset directory.
func (s *Store) Root() string {
	return s.root
}

// Window returns the expected frame count, or 0 when any length is accepted.
func (s *Store) Window() int {
	return s.window
}

// ValidateLabel checks that a label is usable as a single path element.
func ValidateLabel(label string) error {
	if label == "" || label == "." || label == ".." ||
		strings.ContainsAny(label, `/\`) || strings.TrimSpace(label) != label {
		return fmt.Errorf("%w: %q", ErrInvalidLabel, label)
	}
	return nil
}

// Save writes one sample under the label's directory using the next free
// index, and returns the file path and index.
func (s *Store) Save(label string, window []keypoints.Frame) (string, int, error) {
	if err := ValidateLabel(label); err != nil {
		return "", 0, err
	}
	if len(window) == 0 || (s.window > 0 && len(window) != s.window) {
		return "", 0, fmt.Errorf("%w: %d frames, want %d", ErrBadShape, len(window), s.window)
	}

	dir := filepath.Join(s.root, label)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", 0, fmt.Errorf("create label dir: %w", err)
	}

	index, err := nextIndex(dir)
	if err != nil {
		return "", 0, err
	}

	path := filepath.Join(dir, strconv.Itoa(index)+ext)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", 0, fmt.Errorf("create sample: %w", err)
	}
	if err := Encode(f, window); err != nil {
		f.Close()
		os.Remove(path)
		return "", 0, err
	}
	if err := f.Close(); err != nil {
		return "", 0, fmt.Errorf("close sample: %w", err)
	}

	return path, index, nil
}

// Load reads one sample file.
func (s *Store) Load(path string) ([]keypoints.Frame, error) {
	frames, err := Load(path)
	if err != nil {
		return nil, err
	}
	if s.window > 0 && len(frames) != s.window {
		return nil, fmt.Errorf("%s: %w: %d frames, want %d", path, ErrBadShape, len(frames), s.window)
	}
	return frames, nil
}

// Load reads one sample file of any length.
func Load(path string) ([]keypoints.Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sample: %w", err)
	}
	defer f.Close()

	frames, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return frames, nil
}

// Encode writes frames as a float64 array of shape (len(frames), 126).
func Encode(w io.Writer, frames []keypoints.Frame) error {
	data := make([]float64, 0, len(frames)*keypoints.Size)
	for _, f := range frames {
		data = append(data, f[:]...)
	}
	m := mat.NewDense(len(frames), keypoints.Size, data)
	if err := npyio.Write(w, m); err != nil {
		return fmt.Errorf("encode sample: %w", err)
	}
	return nil
}

// Decode reads a (n, 126) float32 or float64 array.
func Decode(r io.Reader) ([]keypoints.Frame, error) {
	npy, err := npyio.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("read npy header: %w", err)
	}

	shape := npy.Header.Descr.Shape
	if len(shape) != 2 || shape[1] != keypoints.Size || shape[0] < 1 {
		return nil, fmt.Errorf("%w: %v", ErrBadShape, shape)
	}
	if npy.Header.Descr.Fortran {
		return nil, fmt.Errorf("%w: fortran-ordered arrays are not supported", ErrBadShape)
	}

	var values []float64
	switch npy.Header.Descr.Type {
	case "<f8", "f8", "float64":
		if err := npy.Read(&values); err != nil {
			return nil, fmt.Errorf("read npy data: %w", err)
		}
	case "<f4", "f4", "float32":
		var f32 []float32
		if err := npy.Read(&f32); err != nil {
			return nil, fmt.Errorf("read npy data: %w", err)
		}
		values = make([]float64, len(f32))
		for i, v := range f32 {
			values[i] = float64(v)
		}
	default:
		return nil, fmt.Errorf("unsupported dtype %q", npy.Header.Descr.Type)
	}

	if len(values) != shape[0]*shape[1] {
		return nil, fmt.Errorf("%w: %d values for shape %v", ErrBadShape, len(values), shape)
	}

	frames := make([]keypoints.Frame, shape[0])
	for i := range frames {
		copy(frames[i][:], values[i*keypoints.Size:(i+1)*keypoints.Size])
	}
	return frames, nil
}

// Labels returns the label directories, sorted.
func (s *Store) Labels() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dataset dir: %w", err)
	}

	var labels []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			labels = append(labels, e.Name())
		}
	}
	sort.Strings(labels)
	return labels, nil
}

// Samples returns the sample paths of a label, ordered by numeric index
// first and then by name.
func (s *Store) Samples(label string) ([]string, error) {
	if err := ValidateLabel(label); err != nil {
		return nil, err
	}
	return samplePaths(filepath.Join(s.root, label))
}

// Counts returns the number of sample files per label.
func (s *Store) Counts() (map[string]int, error) {
	labels, err := s.Labels()
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(labels))
	for _, label := range labels {
		paths, err := s.Samples(label)
		if err != nil {
			return nil, err
		}
		counts[label] = len(paths)
	}
	return counts, nil
}

// WalkFunc receives every loadable sample.
type WalkFunc func(label, path string, frames []keypoints.Frame) error

// WalkStats summarises a Walk.
type WalkStats struct {
	Loaded  int
	Skipped []string
}

// Walk calls fn for each sample in label order. Files that cannot be decoded
// or have the wrong shape are skipped, logged and listed in the stats.
func (s *Store) Walk(fn WalkFunc) (WalkStats, error) {
	logger := observability.Component("dataset")
	var stats WalkStats

	labels, err := s.Labels()
	if err != nil {
		return stats, err
	}

	for _, label := range labels {
		paths, err := s.Samples(label)
		if err != nil {
			return stats, err
		}
		for _, path := range paths {
			frames, err := s.Load(path)
			if err != nil {
				logger.Warn().Err(err).Str("path", path).Msg("skipping sample")
				stats.Skipped = append(stats.Skipped, path)
				continue
			}
			if err := fn(label, path, frames); err != nil {
				return stats, err
			}
			stats.Loaded++
		}
	}
	return stats, nil
}

func samplePaths(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read label dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ext) {
			names = append(names, e.Name())
		}
	}
	sort.Slice(names, func(i, j int) bool {
		a, aok := indexOf(names[i])
		b, bok := indexOf(names[j])
		if aok && bok && a != b {
			return a < b
		}
		if aok != bok {
			return aok
		}
		return names[i] < names[j]
	})

	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(dir, name)
	}
	return paths, nil
}

// indexOf parses the trailing number of a sample name: "7.npy", "hello_7.npy"
// and "seq_7.npy" all give 7.
func indexOf(name string) (int, bool) {
	stem := strings.TrimSuffix(name, ext)
	if i := strings.LastIndexByte(stem, '_'); i >= 0 {
		stem = stem[i+1:]
	}
	n, err := strconv.Atoi(stem)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func nextIndex(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read label dir: %w", err)
	}
	next := 0
	for _, e := range entries {
		if n, ok := indexOf(e.Name()); ok && strings.HasSuffix(e.Name(), ext) && n >= next {
			next = n + 1
		}
	}
	return next, nil
}
