// Package config loads mudra settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/ayusman/mudra/internal/classifier"
	"github.com/ayusman/mudra/internal/keypoints"
	"github.com/ayusman/mudra/internal/sequence"
)

// Prefix is the environment variable prefix, e.g. MUDRA_THRESHOLD.
const Prefix = "MUDRA"

// Model back-ends.
const (
	BackendTemplate = "template"
	BackendDNN      = "dnn"
)

// Announcer kinds.
const (
	AnnouncerCommand = "command"
	AnnouncerPlugin  = "plugin"
	AnnouncerNone    = "none"
)

// Config holds all settings for recording, training and live recognition.
type Config struct {
	// Storage
	DataDir    string `envconfig:"DATA_DIR"` // defaults to ~/.mudra
	DatasetDir string `envconfig:"DATASET_DIR" default:"data"`

	// Capture
	CameraID int  `envconfig:"CAMERA_ID" default:"0"`
	Mirror   bool `envconfig:"MIRROR" default:"true"`

	// Windows
	WindowLength       int `envconfig:"WINDOW_LENGTH" default:"50"`
	RecordWindowLength int `envconfig:"RECORD_WINDOW_LENGTH" default:"10"`

	// Decision gate
	Threshold       float64       `envconfig:"THRESHOLD" default:"0.8"`
	DisplayDuration time.Duration `envconfig:"DISPLAY_DURATION" default:"2s"`

	// Keypoints and buffering
	HandAssignment  string `envconfig:"HAND_ASSIGNMENT" default:"handedness"` // handedness, order
	GapPolicy       string `envconfig:"GAP_POLICY" default:"drop"`            // drop, pad
	MaxMissedFrames int    `envconfig:"MAX_MISSED_FRAMES" default:"3"`

	// Classification
	Classifier     string `envconfig:"CLASSIFIER" default:"sequence"`     // sequence, frame
	ModelBackend   string `envconfig:"MODEL_BACKEND" default:"template"` // template, dnn
	ModelPath      string `envconfig:"MODEL_PATH"`                       // defaults under DataDir
	LabelsPath     string `envconfig:"LABELS_PATH"`                      // defaults under DataDir
	AsyncInference bool   `envconfig:"ASYNC_INFERENCE" default:"false"`

	// Announcement
	Announcer     string        `envconfig:"ANNOUNCER" default:"command"` // command, plugin, none
	SpeechCommand string        `envconfig:"SPEECH_COMMAND"`              // e.g. "say" or "espeak"
	PluginDir     string        `envconfig:"PLUGIN_DIR"`                  // defaults under DataDir
	PluginName    string        `envconfig:"PLUGIN_NAME" default:"speak"`
	PluginTimeout time.Duration `envconfig:"PLUGIN_TIMEOUT" default:"5s"`

	// Surfaces
	HTTPAddr   string `envconfig:"HTTP_ADDR"` // empty disables the HTTP server
	ShowWindow bool   `envconfig:"SHOW_WINDOW" default:"true"`
	Tray       bool   `envconfig:"TRAY" default:"false"`

	// Detector
	MinDetectionConfidence float64 `envconfig:"MIN_DETECTION_CONFIDENCE" default:"0.7"`
	MinTrackingConfidence  float64 `envconfig:"MIN_TRACKING_CONFIDENCE" default:"0.5"`

	// Observability
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"true"`
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
}

// Load reads a .env file when present, then the environment, fills derived
// paths and validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv loads configuration from the environment only.
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Normalize()
	if err := cfg.fillPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize lower-cases the enum-valued settings so later comparisons can
// be exact.
func (c *Config) Normalize() {
	for _, v := range []*string{&c.ModelBackend, &c.Announcer, &c.HandAssignment, &c.GapPolicy, &c.Classifier} {
		*v = strings.ToLower(strings.TrimSpace(*v))
	}
}

func (c *Config) fillPaths() error {
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home directory: %w", err)
		}
		c.DataDir = filepath.Join(home, ".mudra")
	}
	if c.ModelPath == "" {
		if c.ModelBackend == BackendDNN {
			c.ModelPath = filepath.Join(c.DataDir, "model.onnx")
		} else {
			c.ModelPath = filepath.Join(c.DataDir, "model.json")
		}
	}
	if c.LabelsPath == "" {
		c.LabelsPath = filepath.Join(c.DataDir, "actions.json")
	}
	if c.PluginDir == "" {
		c.PluginDir = filepath.Join(c.DataDir, "plugins")
	}
	return nil
}

// DBPath is the location of the sqlite database.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "mudra.db")
}

// Validate rejects unknown enum values and out-of-range numbers.
func (c *Config) Validate() error {
	var errs []error

	if c.WindowLength < 1 {
		errs = append(errs, fmt.Errorf("window length must be at least 1, got %d", c.WindowLength))
	}
	if c.RecordWindowLength < 1 {
		errs = append(errs, fmt.Errorf("record window length must be at least 1, got %d", c.RecordWindowLength))
	}
	if c.Threshold <= 0 || c.Threshold >= 1 {
		errs = append(errs, fmt.Errorf("threshold must be in (0,1), got %v", c.Threshold))
	}
	if c.DisplayDuration < 0 {
		errs = append(errs, fmt.Errorf("display duration must not be negative, got %v", c.DisplayDuration))
	}
	if c.MaxMissedFrames < 0 {
		errs = append(errs, fmt.Errorf("max missed frames must not be negative, got %d", c.MaxMissedFrames))
	}
	if _, err := keypoints.ParseAssignment(c.HandAssignment); err != nil {
		errs = append(errs, err)
	}
	if _, err := sequence.ParseGapPolicy(c.GapPolicy); err != nil {
		errs = append(errs, err)
	}
	if _, err := classifier.ParseKind(c.Classifier); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.ModelBackend) {
	case BackendTemplate, BackendDNN:
	default:
		errs = append(errs, fmt.Errorf("unknown model backend %q", c.ModelBackend))
	}
	switch strings.ToLower(c.Announcer) {
	case AnnouncerCommand, AnnouncerPlugin, AnnouncerNone:
	default:
		errs = append(errs, fmt.Errorf("unknown announcer %q", c.Announcer))
	}
	for name, v := range map[string]float64{
		"min detection confidence": c.MinDetectionConfidence,
		"min tracking confidence":  c.MinTrackingConfidence,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s must be in [0,1], got %v", name, v))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Assignment returns the parsed hand-assignment rule. Call after Validate.
func (c *Config) Assignment() keypoints.Assignment {
	a, _ := keypoints.ParseAssignment(c.HandAssignment)
	return a
}

// Gap returns the parsed gap policy. Call after Validate.
func (c *Config) Gap() sequence.GapPolicy {
	g, _ := sequence.ParseGapPolicy(c.GapPolicy)
	return g
}

// ClassifierKind returns the parsed classifier kind. Call after Validate.
func (c *Config) ClassifierKind() classifier.Kind {
	k, _ := classifier.ParseKind(c.Classifier)
	return k
}
