package app

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/classifier"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/keypoints"
	"github.com/ayusman/mudra/internal/observability"
	"github.com/ayusman/mudra/internal/plugin"
	"github.com/ayusman/mudra/internal/speech"
)

// NewCamera builds the configured camera. source overrides the device ID
// when not empty.
func NewCamera(cfg *config.Config, source string) capture.Camera {
	opts := capture.DefaultOptions()
	opts.Source = strconv.Itoa(cfg.CameraID)
	if source != "" {
		opts.Source = source
	}
	opts.Mirror = cfg.Mirror
	return capture.NewCamera(opts)
}

// NewDetector builds the MediaPipe detector. static treats every frame as
// an unrelated image.
func NewDetector(cfg *config.Config, static bool) (*detector.MediaPipeDetector, error) {
	dc := detector.DefaultConfig()
	dc.MinConfidence = cfg.MinDetectionConfidence
	dc.MinTrackingConf = cfg.MinTrackingConfidence
	dc.StaticImages = static
	return detector.NewMediaPipeDetector(dc)
}

// NewClassifier loads the configured model. Template models carry their own
// labels and window length; DNN models use the persisted label list and the
// configured window length.
func NewClassifier(cfg *config.Config) (classifier.Classifier, error) {
	switch strings.ToLower(cfg.ModelBackend) {
	case config.BackendDNN:
		if cfg.ClassifierKind() != classifier.KindSequence {
			return nil, fmt.Errorf("%s backend only supports the sequence classifier", config.BackendDNN)
		}
		labels, err := classifier.LoadLabels(cfg.LabelsPath)
		if err != nil {
			return nil, err
		}
		model, err := classifier.LoadDNNModel(cfg.ModelPath, "", cfg.WindowLength, keypoints.Size)
		if err != nil {
			return nil, err
		}
		c, err := classifier.NewSequenceClassifier(model, labels)
		if err != nil {
			model.Close()
			return nil, err
		}
		return c, nil

	default:
		model, err := gesture.LoadModel(cfg.ModelPath)
		if err != nil {
			return nil, err
		}
		if model.HandAssignment != cfg.Assignment() {
			return nil, fmt.Errorf("model was trained with hand assignment %s, configured %s",
				model.HandAssignment, cfg.Assignment())
		}
		if model.Kind != cfg.ClassifierKind() {
			observability.Component("app").Warn().
				Str("model", model.Kind.String()).
				Str("configured", cfg.ClassifierKind().String()).
				Msg("model kind differs from configured classifier, using the model's")
		}
		return model.Classifier()
	}
}

// NewAnnouncer builds the configured announcer. Slow announcers are wrapped
// in Async so the frame loop never waits for speech.
func NewAnnouncer(cfg *config.Config) (speech.Announcer, error) {
	switch strings.ToLower(cfg.Announcer) {
	case config.AnnouncerNone:
		return speech.Nop{}, nil

	case config.AnnouncerPlugin:
		manager := plugin.NewManager(cfg.PluginDir)
		if err := manager.Discover(); err != nil {
			return nil, fmt.Errorf("discover plugins: %w", err)
		}
		a, err := speech.NewPluginAnnouncer(manager, plugin.NewExecutor(cfg.PluginTimeout), cfg.PluginName)
		if err != nil {
			return nil, fmt.Errorf("plugin %q in %s: %w", cfg.PluginName, cfg.PluginDir, err)
		}
		return speech.NewAsync(a), nil

	default:
		a, err := speech.NewCommandAnnouncer(cfg.SpeechCommand, cfg.PluginTimeout)
		if err != nil {
			return nil, err
		}
		return speech.NewAsync(a), nil
	}
}

// NewOptions maps the configuration onto live session options.
func NewOptions(cfg *config.Config) Options {
	return Options{
		HandAssignment:  cfg.Assignment(),
		GapPolicy:       cfg.Gap(),
		Threshold:       cfg.Threshold,
		DisplayDuration: cfg.DisplayDuration,
		AsyncInference:  cfg.AsyncInference,
	}
}
