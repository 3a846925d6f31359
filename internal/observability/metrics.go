package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Frame outcomes recorded by RecordFrame.
const (
	FrameDetected   = "detected"
	FrameNoHands    = "no_hands"
	FrameReadError  = "read_error"
	FrameDetectFail = "detect_error"
)

var (
	framesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mudra_frames_total",
		Help: "Camera frames processed, by outcome",
	}, []string{"outcome"})

	predictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mudra_predictions_total",
		Help: "Classifier predictions, by label and whether they passed the threshold",
	}, []string{"label", "accepted"})

	announcementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mudra_announcements_total",
		Help: "Signs announced to the user",
	}, []string{"sign"})

	shapeMismatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mudra_shape_mismatches_total",
		Help: "Classifier calls skipped because the input shape did not match the model",
	})

	samplesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mudra_samples_total",
		Help: "Recorded training samples, by label and status",
	}, []string{"label", "status"})

	classifyLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mudra_classify_latency_seconds",
		Help:    "Classifier latency in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
	})

	heldConfidence = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mudra_held_confidence",
		Help: "Confidence of the currently held sign, 0 when idle",
	})
)

// RecordFrame counts one camera frame with the given outcome.
func RecordFrame(outcome string) {
	framesTotal.WithLabelValues(outcome).Inc()
}

// RecordPrediction counts one classifier prediction.
func RecordPrediction(label string, accepted bool) {
	a := "false"
	if accepted {
		a = "true"
	}
	predictionsTotal.WithLabelValues(label, a).Inc()
}

// RecordAnnouncement counts one announced sign.
func RecordAnnouncement(sign string) {
	announcementsTotal.WithLabelValues(sign).Inc()
}

// RecordShapeMismatch counts one skipped classifier call.
func RecordShapeMismatch() {
	shapeMismatches.Inc()
}

// RecordSample counts one recorded sample; status is "saved" or "discarded".
func RecordSample(label, status string) {
	samplesTotal.WithLabelValues(label, status).Inc()
}

// ObserveClassify records how long one classification took.
func ObserveClassify(d time.Duration) {
	classifyLatency.Observe(d.Seconds())
}

// SetHeldConfidence publishes the confidence of the held sign.
func SetHeldConfidence(c float64) {
	heldConfidence.Set(c)
}
