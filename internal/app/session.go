// Package app runs the recording and live recognition loops of mudra.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/classifier"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/display"
	"github.com/ayusman/mudra/internal/gate"
	"github.com/ayusman/mudra/internal/keypoints"
	"github.com/ayusman/mudra/internal/observability"
	"github.com/ayusman/mudra/internal/sequence"
	"github.com/ayusman/mudra/internal/speech"
	"github.com/ayusman/mudra/internal/store"
)

// Event is published to the event sink whenever the held sign changes.
type Event struct {
	SessionID string        `json:"session_id"`
	Decision  gate.Decision `json:"decision"`
	Hands     int           `json:"hands"`
	Time      time.Time     `json:"time"`
}

// EventSink receives session events. Publish must not block.
type EventSink interface {
	Publish(Event)
}

// Options configures a live session.
type Options struct {
	HandAssignment  keypoints.Assignment
	GapPolicy       sequence.GapPolicy
	Threshold       float64
	DisplayDuration time.Duration
	// AsyncInference classifies on a worker goroutine instead of the frame loop.
	AsyncInference bool
	// SessionID defaults to a new UUID.
	SessionID string
}

// Deps are the resources a session owns. Camera, Detector and Classifier
// are required.
type Deps struct {
	Camera     capture.Camera
	Detector   detector.Detector
	Classifier classifier.Classifier
	Announcer  speech.Announcer
	Display    display.Display
	Frames     *display.Frames
	Events     EventSink
	Store      *store.Store
	// Now overrides the clock.
	Now func() time.Time
}

// Session is one live recognition run. ProcessHands and Run must be called
// from a single goroutine; Held, Enabled and SetEnabled may be called from
// any goroutine.
type Session struct {
	opts       Options
	camera     capture.Camera
	detector   detector.Detector
	classifier classifier.Classifier
	announcer  speech.Announcer
	display    display.Display
	frames     *display.Frames
	events     EventSink
	store      *store.Store
	now        func() time.Time
	logger     zerolog.Logger

	buffer *sequence.Buffer
	gate   *gate.Gate
	worker *inferenceWorker

	mu       sync.RWMutex
	enabled  bool
	lastSent gate.Held

	closeOnce sync.Once
	closeErr  error
}

// NewSession validates deps and builds the buffer and gate. The buffer
// capacity is the classifier's window length.
func NewSession(opts Options, deps Deps) (*Session, error) {
	if deps.Camera == nil || deps.Detector == nil || deps.Classifier == nil {
		return nil, errors.New("session needs a camera, a detector and a classifier")
	}

	buffer, err := sequence.NewBuffer(deps.Classifier.WindowLength(), sequence.Sliding, opts.GapPolicy)
	if err != nil {
		return nil, err
	}

	if opts.SessionID == "" {
		opts.SessionID = observability.NewSessionID()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	announcer := deps.Announcer
	if announcer == nil {
		announcer = speech.Nop{}
	}
	disp := deps.Display
	if disp == nil {
		disp = display.Headless{}
	}

	s := &Session{
		opts:       opts,
		camera:     deps.Camera,
		detector:   deps.Detector,
		classifier: deps.Classifier,
		announcer:  announcer,
		display:    disp,
		frames:     deps.Frames,
		events:     deps.Events,
		store:      deps.Store,
		now:        now,
		logger:     observability.WithSession(opts.SessionID).With().Str("component", "session").Logger(),
		buffer:     buffer,
		gate: gate.New(gate.Config{
			Threshold:       opts.Threshold,
			DisplayDuration: opts.DisplayDuration,
			Now:             now,
		}),
		enabled: true,
	}
	if s.store != nil {
		s.enabled = s.store.Settings().GetOr(store.SettingLiveEnabled, "true") != "false"
	}
	if opts.AsyncInference {
		s.worker = newInferenceWorker(deps.Classifier)
	}
	return s, nil
}

// ID returns the session ID.
func (s *Session) ID() string {
	return s.opts.SessionID
}

// Held returns the current decision snapshot.
func (s *Session) Held() gate.Held {
	return s.gate.Held()
}

// Enabled reports whether classification is running.
func (s *Session) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled
}

// SetEnabled pauses or resumes classification. Pausing drops the held sign
// on the next frame.
func (s *Session) SetEnabled(enabled bool) {
	s.mu.Lock()
	s.enabled = enabled
	s.mu.Unlock()
	s.logger.Info().Bool("enabled", enabled).Msg("classification toggled")

	if s.store != nil {
		if err := s.store.Settings().Set(store.SettingLiveEnabled, strconv.FormatBool(enabled)); err != nil {
			s.logger.Warn().Err(err).Msg("failed to persist enabled state")
		}
	}
}

// Run opens the camera and processes frames until ctx is done, the display
// asks to quit or a finite source ends. Every resource is released before
// Run returns.
func (s *Session) Run(ctx context.Context) (err error) {
	defer func() {
		if cerr := s.Close(); err == nil {
			err = cerr
		}
	}()

	if err := s.camera.Open(); err != nil {
		return fmt.Errorf("open camera: %w", err)
	}
	s.startRecord()
	s.logger.Info().
		Int("window", s.buffer.Cap()).
		Str("classifier", s.classifier.Kind().String()).
		Float64("threshold", s.opts.Threshold).
		Bool("async", s.worker != nil).
		Msg("live session started")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		frame, err := s.camera.ReadFrame()
		switch {
		case errors.Is(err, capture.ErrEndOfStream):
			return nil
		case errors.Is(err, capture.ErrCameraNotOpen):
			return err
		case err != nil:
			observability.RecordFrame(observability.FrameReadError)
			s.logger.Debug().Err(err).Msg("frame read failed")
			continue
		}

		quit := s.step(frame)
		frame.Close()
		if quit {
			s.logger.Info().Msg("quit requested")
			return nil
		}
	}
}

// step runs detection and recognition on one frame and renders it.
func (s *Session) step(frame *gocv.Mat) bool {
	hands, err := s.detector.Detect(frame)
	if err != nil {
		observability.RecordFrame(observability.FrameDetectFail)
		s.logger.Warn().Err(err).Msg("hand detection failed")
		return s.render(frame, nil)
	}
	s.ProcessHands(hands, s.now())
	return s.render(frame, hands)
}

func (s *Session) render(frame *gocv.Mat, hands []detector.HandLandmarks) bool {
	display.Draw(frame, display.LiveOverlay(hands, s.gate.Held()))
	if s.frames != nil {
		if err := s.frames.Publish(frame); err != nil {
			s.logger.Debug().Err(err).Msg("publish frame failed")
		}
	}
	return s.display.Show(frame)
}

// ProcessHands advances the session by one frame's detector output.
func (s *Session) ProcessHands(hands []detector.HandLandmarks, now time.Time) gate.Decision {
	if !s.Enabled() {
		s.buffer.Clear()
		s.gate.Reset()
		return s.finish(gate.Decision{Held: s.gate.Held()}, len(hands), now)
	}

	if len(hands) == 0 {
		observability.RecordFrame(observability.FrameNoHands)
		s.buffer.Miss()
		s.gate.Reset()
		observability.SetHeldConfidence(0)
		return s.finish(gate.Decision{Held: s.gate.Held()}, 0, now)
	}

	observability.RecordFrame(observability.FrameDetected)
	s.buffer.Push(keypoints.Extract(hands, s.opts.HandAssignment))

	dec := gate.Decision{Held: s.gate.Held()}
	if s.worker != nil {
		if s.buffer.IsReady() {
			s.worker.submit(s.buffer.Window(), s.buffer.Generation())
		}
		if r, ok := s.worker.poll(); ok {
			if r.generation == s.buffer.Generation() {
				dec = s.apply(r.prediction, r.err)
			} else {
				s.logger.Debug().Uint64("generation", r.generation).Msg("discarding stale prediction")
			}
		}
	} else if s.buffer.IsReady() {
		start := time.Now()
		p, err := s.classifier.Classify(s.buffer.Window())
		observability.ObserveClassify(time.Since(start))
		dec = s.apply(p, err)
	}

	if s.gate.Tick(now) {
		dec = gate.Decision{Held: s.gate.Held()}
		observability.SetHeldConfidence(0)
	}
	return s.finish(dec, len(hands), now)
}

// apply feeds a classifier result through the gate and announces new signs.
func (s *Session) apply(p classifier.Prediction, err error) gate.Decision {
	if err != nil {
		if errors.Is(err, classifier.ErrShapeMismatch) {
			observability.RecordShapeMismatch()
		}
		s.logger.Warn().Err(err).Msg("classification skipped")
		return gate.Decision{Held: s.gate.Held()}
	}

	dec := s.gate.Observe(p)
	accepted := dec.State == gate.Holding
	observability.RecordPrediction(p.Label, accepted)
	observability.SetHeldConfidence(dec.Confidence)
	s.logger.Debug().Str("label", p.Label).Float64("confidence", p.Confidence).Bool("accepted", accepted).Msg("prediction")

	if dec.Announce {
		observability.RecordAnnouncement(dec.Label)
		s.logger.Info().Str("sign", dec.Label).Float64("confidence", dec.Confidence).Msg("sign recognised")
		s.announcer.Announce(dec.Label)
		s.recordAnnouncement(dec)
	}
	return dec
}

// finish publishes an event when the held sign changed.
func (s *Session) finish(dec gate.Decision, hands int, now time.Time) gate.Decision {
	if s.events == nil {
		return dec
	}
	s.mu.Lock()
	changed := dec.Announce || dec.State != s.lastSent.State || dec.Label != s.lastSent.Label
	s.lastSent = dec.Held
	s.mu.Unlock()

	if changed {
		s.events.Publish(Event{
			SessionID: s.opts.SessionID,
			Decision:  dec,
			Hands:     hands,
			Time:      now,
		})
	}
	return dec
}

func (s *Session) startRecord() {
	if s.store == nil {
		return
	}
	cfg, _ := json.Marshal(map[string]any{
		"window":          s.buffer.Cap(),
		"classifier":      s.classifier.Kind(),
		"hand_assignment": s.opts.HandAssignment,
		"gap_policy":      s.opts.GapPolicy,
		"threshold":       s.opts.Threshold,
	})
	err := s.store.Sessions().Start(&store.Session{
		ID:     s.opts.SessionID,
		Mode:   store.ModeLive,
		Config: string(cfg),
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to record session start")
	}
}

func (s *Session) recordAnnouncement(dec gate.Decision) {
	if s.store == nil {
		return
	}
	err := s.store.Announcements().Create(&store.Announcement{
		SessionID:  s.opts.SessionID,
		Sign:       dec.Label,
		Confidence: dec.Confidence,
		CreatedAt:  dec.Since,
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to store announcement")
	}
}

// Close stops the inference worker and releases the camera, detector,
// classifier, announcer and display. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if s.worker != nil {
			s.worker.close()
		}
		errs = append(errs,
			s.camera.Close(),
			s.detector.Close(),
			s.classifier.Close(),
			speech.Close(s.announcer),
			s.display.Close(),
		)
		if s.store != nil {
			if err := s.store.Sessions().End(s.opts.SessionID); err != nil && !errors.Is(err, store.ErrNotFound) {
				errs = append(errs, err)
			}
		}
		s.closeErr = errors.Join(errs...)
		s.logger.Info().Msg("live session closed")
	})
	return s.closeErr
}
