package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/dataset"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/display"
	"github.com/ayusman/mudra/internal/keypoints"
	"github.com/ayusman/mudra/internal/observability"
	"github.com/ayusman/mudra/internal/sequence"
	"github.com/ayusman/mudra/internal/store"
)

// RecordOptions configures a recording run.
type RecordOptions struct {
	Label           string
	WindowLength    int
	HandAssignment  keypoints.Assignment
	GapPolicy       sequence.GapPolicy
	MaxMissedFrames int
	// Samples stops the run after this many saved samples. Zero records
	// until stopped.
	Samples int
	// Countdown is shown before the first sample.
	Countdown time.Duration
	Mirrored  bool
	SessionID string
}

// RecordDeps are the resources a recorder owns. Camera, Detector and
// Dataset are required.
type RecordDeps struct {
	Camera   capture.Camera
	Detector detector.Detector
	Dataset  *dataset.Store
	Display  display.Display
	Frames   *display.Frames
	Store    *store.Store
	Now      func() time.Time
}

// RecordStats summarises a recording run.
type RecordStats struct {
	Saved     int      `json:"saved"`
	Discarded int      `json:"discarded"`
	Paths     []string `json:"paths"`
}

// Recorder captures labelled samples into the dataset.
type Recorder struct {
	opts     RecordOptions
	camera   capture.Camera
	detector detector.Detector
	dataset  *dataset.Store
	display  display.Display
	frames   *display.Frames
	store    *store.Store
	now      func() time.Time
	logger   zerolog.Logger

	buffer *sequence.Buffer
	signID string
	stats  RecordStats

	closeOnce sync.Once
	closeErr  error
}

// NewRecorder validates the label and checks the dataset manifest against
// the options, writing a manifest for a new dataset.
func NewRecorder(opts RecordOptions, deps RecordDeps) (*Recorder, error) {
	if deps.Camera == nil || deps.Detector == nil || deps.Dataset == nil {
		return nil, errors.New("recorder needs a camera, a detector and a dataset")
	}
	if err := dataset.ValidateLabel(opts.Label); err != nil {
		return nil, err
	}
	if opts.MaxMissedFrames < 0 {
		return nil, fmt.Errorf("max missed frames must not be negative, got %d", opts.MaxMissedFrames)
	}

	buffer, err := sequence.NewBuffer(opts.WindowLength, sequence.Batch, opts.GapPolicy)
	if err != nil {
		return nil, err
	}

	m, err := deps.Dataset.ReadManifest()
	if err != nil {
		return nil, err
	}
	if m != nil {
		if err := m.Compatible(opts.WindowLength, opts.HandAssignment); err != nil {
			return nil, fmt.Errorf("dataset %s: %w", deps.Dataset.Root(), err)
		}
	} else {
		err := deps.Dataset.WriteManifest(dataset.Manifest{
			WindowLength:   opts.WindowLength,
			HandAssignment: opts.HandAssignment,
			GapPolicy:      opts.GapPolicy,
			Mirrored:       opts.Mirrored,
		})
		if err != nil {
			return nil, err
		}
	}

	if opts.SessionID == "" {
		opts.SessionID = observability.NewSessionID()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	disp := deps.Display
	if disp == nil {
		disp = display.Headless{}
	}

	return &Recorder{
		opts:     opts,
		camera:   deps.Camera,
		detector: deps.Detector,
		dataset:  deps.Dataset,
		display:  disp,
		frames:   deps.Frames,
		store:    deps.Store,
		now:      now,
		logger:   observability.WithSession(opts.SessionID).With().Str("component", "recorder").Str("label", opts.Label).Logger(),
		buffer:   buffer,
	}, nil
}

// Stats returns the counts so far.
func (r *Recorder) Stats() RecordStats {
	return r.stats
}

// Done reports whether the sample limit was reached.
func (r *Recorder) Done() bool {
	return r.opts.Samples > 0 && r.stats.Saved >= r.opts.Samples
}

// Run opens the camera, shows the countdown and records until the sample
// limit is reached, ctx is done, the display asks to quit or the source
// ends.
func (r *Recorder) Run(ctx context.Context) (stats RecordStats, err error) {
	defer func() {
		if cerr := r.Close(); err == nil {
			err = cerr
		}
		stats = r.stats
	}()

	if err := r.camera.Open(); err != nil {
		return r.stats, fmt.Errorf("open camera: %w", err)
	}
	r.startRecord()
	r.logger.Info().
		Int("window", r.buffer.Cap()).
		Int("samples", r.opts.Samples).
		Str("gap_policy", r.opts.GapPolicy.String()).
		Msg("recording started")

	countdownEnd := r.now().Add(r.opts.Countdown)
	for !r.Done() {
		select {
		case <-ctx.Done():
			return r.stats, nil
		default:
		}

		frame, err := r.camera.ReadFrame()
		switch {
		case errors.Is(err, capture.ErrEndOfStream):
			return r.stats, nil
		case errors.Is(err, capture.ErrCameraNotOpen):
			return r.stats, err
		case err != nil:
			observability.RecordFrame(observability.FrameReadError)
			r.logger.Debug().Err(err).Msg("frame read failed")
			continue
		}

		var quit bool
		if remaining := countdownEnd.Sub(r.now()); remaining > 0 {
			display.Draw(frame, display.CountdownOverlay(r.opts.Label, int(math.Ceil(remaining.Seconds()))))
			quit = r.show(frame)
		} else {
			quit = r.step(frame)
		}
		frame.Close()
		if quit {
			r.logger.Info().Msg("quit requested")
			return r.stats, nil
		}
	}
	return r.stats, nil
}

func (r *Recorder) step(frame *gocv.Mat) bool {
	hands, err := r.detector.Detect(frame)
	if err != nil {
		observability.RecordFrame(observability.FrameDetectFail)
		r.logger.Warn().Err(err).Msg("hand detection failed")
		hands = nil
	} else if _, err := r.ProcessHands(hands); err != nil {
		r.logger.Error().Err(err).Msg("failed to save sample")
	}
	display.Draw(frame, display.RecordOverlay(hands, r.opts.Label, r.stats.Saved, r.buffer.Len(), r.buffer.Cap()))
	return r.show(frame)
}

func (r *Recorder) show(frame *gocv.Mat) bool {
	if r.frames != nil {
		if err := r.frames.Publish(frame); err != nil {
			r.logger.Debug().Err(err).Msg("publish frame failed")
		}
	}
	return r.display.Show(frame)
}

// ProcessHands adds one frame's detector output to the current sample. It
// returns the saved path when the frame completed a valid sample.
func (r *Recorder) ProcessHands(hands []detector.HandLandmarks) (string, error) {
	var window []keypoints.Frame
	if len(hands) == 0 {
		observability.RecordFrame(observability.FrameNoHands)
		partial := r.buffer.Len()
		window = r.buffer.Miss()
		if r.buffer.GapPolicy() == sequence.DropOnGap && partial > 0 {
			r.discard(fmt.Sprintf("hand lost after %d frames", partial))
			return "", nil
		}
	} else {
		observability.RecordFrame(observability.FrameDetected)
		window = r.buffer.Push(keypoints.Extract(hands, r.opts.HandAssignment))
	}
	if window == nil {
		return "", nil
	}

	missed := r.buffer.LastMissed()
	if missed > r.opts.MaxMissedFrames {
		r.discard(fmt.Sprintf("%d frames without hands", missed))
		return "", nil
	}
	return r.save(window, missed)
}

func (r *Recorder) save(window []keypoints.Frame, missed int) (string, error) {
	path, index, err := r.dataset.Save(r.opts.Label, window)
	if err != nil {
		return "", fmt.Errorf("save sample: %w", err)
	}
	r.stats.Saved++
	r.stats.Paths = append(r.stats.Paths, path)
	observability.RecordSample(r.opts.Label, "saved")
	r.logger.Info().Str("path", path).Int("index", index).Int("missed", missed).Msg("sample saved")

	if r.store != nil && r.signID != "" {
		err := r.store.Samples().Create(&store.Sample{
			SignID:       r.signID,
			SampleIndex:  index,
			Path:         path,
			Frames:       len(window),
			MissedFrames: missed,
			SessionID:    r.opts.SessionID,
		})
		if err != nil {
			r.logger.Warn().Err(err).Msg("failed to store sample metadata")
		}
	}
	return path, nil
}

func (r *Recorder) discard(reason string) {
	r.stats.Discarded++
	observability.RecordSample(r.opts.Label, "discarded")
	r.logger.Info().Str("reason", reason).Msg("sample discarded")
}

func (r *Recorder) startRecord() {
	if r.store == nil {
		return
	}
	sg, err := r.store.Signs().Ensure(r.opts.Label)
	if err != nil {
		r.logger.Warn().Err(err).Msg("failed to register sign")
		return
	}
	r.signID = sg.ID

	cfg, _ := json.Marshal(map[string]any{
		"label":             r.opts.Label,
		"window":            r.opts.WindowLength,
		"hand_assignment":   r.opts.HandAssignment,
		"gap_policy":        r.opts.GapPolicy,
		"max_missed_frames": r.opts.MaxMissedFrames,
	})
	err = r.store.Sessions().Start(&store.Session{
		ID:     r.opts.SessionID,
		Mode:   store.ModeRecord,
		Config: string(cfg),
	})
	if err != nil {
		r.logger.Warn().Err(err).Msg("failed to record session start")
	}
}

// Close releases the camera, detector and display. It is safe to call more
// than once.
func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		errs := []error{
			r.camera.Close(),
			r.detector.Close(),
			r.display.Close(),
		}
		if r.store != nil {
			if err := r.store.Sessions().End(r.opts.SessionID); err != nil && !errors.Is(err, store.ErrNotFound) {
				errs = append(errs, err)
			}
		}
		r.closeErr = errors.Join(errs...)
		r.logger.Info().Int("saved", r.stats.Saved).Int("discarded", r.stats.Discarded).Msg("recording finished")
	})
	return r.closeErr
}
