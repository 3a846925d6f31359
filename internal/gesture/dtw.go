package gesture

import (
	"math"

	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/keypoints"
)

// DTWDistance calculates the Dynamic Time Warping distance between two
// windows of frames. Returns infinity if either window is empty.
// The distance is normalized by the longer window length.
func DTWDistance(a, b []keypoints.Frame) float64 {
	n := len(a)
	m := len(b)

	if n == 0 || m == 0 {
		return math.Inf(1)
	}

	// Two rolling rows of the (n+1) x (m+1) cost matrix.
	prev := make([]float64, m+1)
	curr := make([]float64, m+1)
	for j := range prev {
		prev[j] = math.Inf(1)
	}
	prev[0] = 0

	for i := 1; i <= n; i++ {
		curr[0] = math.Inf(1)
		for j := 1; j <= m; j++ {
			cost := frameDistance(&a[i-1], &b[j-1])
			curr[j] = cost + min(prev[j], curr[j-1], prev[j-1])
		}
		prev, curr = curr, prev
	}

	return prev[m] / float64(max(n, m))
}

// frameDistance is the Euclidean distance between two frame vectors.
func frameDistance(a, b *keypoints.Frame) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// NormalizeFrame moves each present hand's wrist to the origin and scales
// its wrist-to-middle-knuckle distance to 1, so that matching ignores where
// the hands are in the image and how close they are to the camera.
// Empty hand slots stay zero.
func NormalizeFrame(f keypoints.Frame) keypoints.Frame {
	var out keypoints.Frame
	for slot := 0; slot < keypoints.MaxHands; slot++ {
		values := f.Hand(slot)
		if allZero(values) {
			continue
		}

		var hand detector.HandLandmarks
		for i := range hand.Points {
			hand.Points[i] = detector.Point3D{X: values[i*3], Y: values[i*3+1], Z: values[i*3+2]}
		}
		hand.Normalize().Flatten(out.Hand(slot))
	}
	return out
}

// NormalizeWindow applies NormalizeFrame to every frame.
func NormalizeWindow(window []keypoints.Frame) []keypoints.Frame {
	out := make([]keypoints.Frame, len(window))
	for i, f := range window {
		out[i] = NormalizeFrame(f)
	}
	return out
}

func allZero(values []float64) bool {
	for _, v := range values {
		if v != 0 {
			return false
		}
	}
	return true
}

// softmaxNeg turns distances into probabilities proportional to
// exp(-d/temperature). Infinite distances get probability 0. Returns nil when
// every distance is infinite.
func softmaxNeg(distances []float64, temperature float64) []float64 {
	best := math.Inf(1)
	for _, d := range distances {
		best = min(best, d)
	}
	if math.IsInf(best, 1) {
		return nil
	}

	probs := make([]float64, len(distances))
	var sum float64
	for i, d := range distances {
		if math.IsInf(d, 1) {
			continue
		}
		probs[i] = math.Exp(-(d - best) / temperature)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}
