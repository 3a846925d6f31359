package app

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/classifier"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/display"
	"github.com/ayusman/mudra/internal/gate"
	"github.com/ayusman/mudra/internal/keypoints"
	"github.com/ayusman/mudra/internal/sequence"
	"github.com/ayusman/mudra/internal/speech"
	"github.com/ayusman/mudra/internal/store"
)

var testLabels = classifier.Labels{"hello", "thankyou", "sorry"}

// fakeModel returns fixed probabilities. When release is set, Predict
// blocks until it is closed.
type fakeModel struct {
	rows    int
	probs   []float64
	started chan struct{}
	release chan struct{}

	mu    sync.Mutex
	calls int
}

func (m *fakeModel) InputShape() (int, int) {
	return m.rows, keypoints.Size
}

func (m *fakeModel) Predict(window *mat.Dense) ([]float64, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.started != nil {
		select {
		case m.started <- struct{}{}:
		default:
		}
	}
	if m.release != nil {
		<-m.release
	}
	return slices.Clone(m.probs), nil
}

func (m *fakeModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type spoken struct {
	mu     sync.Mutex
	labels []string
}

func (s *spoken) Announce(label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.labels = append(s.labels, label)
}

func (s *spoken) Labels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.labels)
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Publish(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.events)
}

var testClock = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type sessionFixture struct {
	session  *Session
	model    *fakeModel
	camera   *capture.MockCamera
	detector *detector.MockDetector
	spoken   *spoken
	events   *eventLog
}

func newFixture(t *testing.T, model *fakeModel, opts Options) *sessionFixture {
	t.Helper()
	c, err := classifier.NewSequenceClassifier(model, testLabels)
	if err != nil {
		t.Fatalf("NewSequenceClassifier() error = %v", err)
	}
	if opts.Threshold == 0 {
		opts.Threshold = 0.8
	}
	if opts.DisplayDuration == 0 {
		opts.DisplayDuration = 2 * time.Second
	}

	f := &sessionFixture{
		model:    model,
		camera:   capture.NewMockCamera(nil, false),
		detector: detector.NewMockDetector(),
		spoken:   &spoken{},
		events:   &eventLog{},
	}
	f.session, err = NewSession(opts, Deps{
		Camera:     f.camera,
		Detector:   f.detector,
		Classifier: c,
		Announcer:  f.spoken,
		Events:     f.events,
		Now:        func() time.Time { return testClock },
	})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	t.Cleanup(func() { f.session.Close() })
	return f
}

func thumbsUp() []detector.HandLandmarks {
	return []detector.HandLandmarks{detector.ThumbsUpLandmarks()}
}

func TestSession_EndToEndAnnouncesOnce(t *testing.T) {
	model := &fakeModel{rows: 50, probs: []float64{0.1, 0.85, 0.05}}
	f := newFixture(t, model, Options{})

	for i := 1; i < 50; i++ {
		dec := f.session.ProcessHands(thumbsUp(), testClock)
		if dec.State != gate.Idle {
			t.Fatalf("frame %d: state = %v before the window filled", i, dec.State)
		}
	}
	if model.Calls() != 0 {
		t.Fatalf("model called %d times before the window filled", model.Calls())
	}

	dec := f.session.ProcessHands(thumbsUp(), testClock)
	if dec.State != gate.Holding || dec.Label != "thankyou" || dec.Confidence != 0.85 {
		t.Fatalf("frame 50: decision = %+v, want Holding thankyou 0.85", dec)
	}
	if !dec.Announce {
		t.Error("frame 50: expected announcement")
	}

	for i := 0; i < 10; i++ {
		dec = f.session.ProcessHands(thumbsUp(), testClock)
		if dec.Announce {
			t.Fatalf("repeat frame %d announced again", i)
		}
		if dec.Label != "thankyou" {
			t.Fatalf("repeat frame %d: label = %q", i, dec.Label)
		}
	}

	if got := f.spoken.Labels(); !slices.Equal(got, []string{"thankyou"}) {
		t.Errorf("announcements = %v, want [thankyou]", got)
	}
	if held := f.session.Held(); held.State != gate.Holding || held.Label != "thankyou" {
		t.Errorf("Held() = %+v", held)
	}
}

func TestSession_BelowThresholdStaysIdle(t *testing.T) {
	model := &fakeModel{rows: 3, probs: []float64{0.5, 0.3, 0.2}}
	f := newFixture(t, model, Options{})

	for i := 0; i < 6; i++ {
		if dec := f.session.ProcessHands(thumbsUp(), testClock); dec.State != gate.Idle {
			t.Fatalf("frame %d: state = %v, want idle", i, dec.State)
		}
	}
	if model.Calls() != 4 {
		t.Errorf("model calls = %d, want 4", model.Calls())
	}
	if n := len(f.spoken.Labels()); n != 0 {
		t.Errorf("%d announcements, want 0", n)
	}
}

func TestSession_NoHands(t *testing.T) {
	tests := []struct {
		name      string
		gap       sequence.GapPolicy
		wantCalls int
	}{
		// The dropped window has to refill before the next classification.
		{name: "drop", gap: sequence.DropOnGap, wantCalls: 1},
		// The padded window stays full and classifies on the next hand.
		{name: "pad", gap: sequence.PadOnGap, wantCalls: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &fakeModel{rows: 3, probs: []float64{0.9, 0.05, 0.05}}
			f := newFixture(t, model, Options{GapPolicy: tt.gap})

			for i := 0; i < 3; i++ {
				f.session.ProcessHands(thumbsUp(), testClock)
			}
			if f.session.Held().State != gate.Holding {
				t.Fatal("expected Holding after a full window")
			}

			dec := f.session.ProcessHands(nil, testClock)
			if dec.State != gate.Idle {
				t.Fatalf("no hands: state = %v, want idle", dec.State)
			}
			if model.Calls() != 1 {
				t.Fatalf("model calls = %d after the gap, want 1", model.Calls())
			}

			dec = f.session.ProcessHands(thumbsUp(), testClock)
			if tt.gap == sequence.PadOnGap {
				if !dec.Announce {
					t.Error("pad: expected the sign to be announced again after the gap")
				}
			} else if dec.State != gate.Idle {
				t.Error("drop: expected idle while the window refills")
			}
			if model.Calls() != tt.wantCalls {
				t.Errorf("model calls = %d, want %d", model.Calls(), tt.wantCalls)
			}
		})
	}
}

func TestSession_Events(t *testing.T) {
	model := &fakeModel{rows: 2, probs: []float64{0.9, 0.05, 0.05}}
	f := newFixture(t, model, Options{})

	for i := 0; i < 5; i++ {
		f.session.ProcessHands(thumbsUp(), testClock)
	}
	f.session.ProcessHands(nil, testClock)
	f.session.ProcessHands(nil, testClock)

	events := f.events.Events()
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2: %+v", len(events), events)
	}
	if !events[0].Decision.Announce || events[0].Decision.Label != "hello" || events[0].Hands != 1 {
		t.Errorf("first event = %+v", events[0])
	}
	if events[1].Decision.State != gate.Idle || events[1].Hands != 0 {
		t.Errorf("second event = %+v", events[1])
	}
	if events[0].SessionID != f.session.ID() {
		t.Errorf("event session = %q, want %q", events[0].SessionID, f.session.ID())
	}
}

func TestSession_ShapeMismatchKeepsDecision(t *testing.T) {
	model := &fakeModel{rows: 2, probs: []float64{0.9, 0.1}}
	f := newFixture(t, model, Options{})

	for i := 0; i < 4; i++ {
		dec := f.session.ProcessHands(thumbsUp(), testClock)
		if dec.State != gate.Idle {
			t.Fatalf("frame %d: state = %v, want idle", i, dec.State)
		}
	}
	if model.Calls() != 3 {
		t.Errorf("model calls = %d, want 3", model.Calls())
	}
}

func TestSession_SetEnabled(t *testing.T) {
	model := &fakeModel{rows: 2, probs: []float64{0.9, 0.05, 0.05}}
	f := newFixture(t, model, Options{})

	f.session.ProcessHands(thumbsUp(), testClock)
	f.session.ProcessHands(thumbsUp(), testClock)
	if f.session.Held().State != gate.Holding {
		t.Fatal("expected Holding")
	}

	f.session.SetEnabled(false)
	if f.session.Enabled() {
		t.Fatal("Enabled() = true after SetEnabled(false)")
	}
	for i := 0; i < 3; i++ {
		if dec := f.session.ProcessHands(thumbsUp(), testClock); dec.State != gate.Idle {
			t.Fatalf("paused frame %d: state = %v", i, dec.State)
		}
	}
	if model.Calls() != 1 {
		t.Errorf("model calls = %d while paused, want 1", model.Calls())
	}

	f.session.SetEnabled(true)
	f.session.ProcessHands(thumbsUp(), testClock)
	dec := f.session.ProcessHands(thumbsUp(), testClock)
	if !dec.Announce {
		t.Error("expected a new announcement after resuming")
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSession_EnabledPersists(t *testing.T) {
	st, err := store.New(filepath.Join(t.TempDir(), "mudra.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	newSession := func() *Session {
		c, err := classifier.NewSequenceClassifier(&fakeModel{rows: 2, probs: []float64{1, 0, 0}}, testLabels)
		if err != nil {
			t.Fatalf("NewSequenceClassifier() error = %v", err)
		}
		s, err := NewSession(Options{Threshold: 0.8}, Deps{
			Camera:     capture.NewMockCamera(nil, false),
			Detector:   detector.NewMockDetector(),
			Classifier: c,
			Store:      st,
		})
		if err != nil {
			t.Fatalf("NewSession() error = %v", err)
		}
		t.Cleanup(func() { s.Close() })
		return s
	}

	first := newSession()
	if !first.Enabled() {
		t.Fatal("first session should start enabled")
	}
	first.SetEnabled(false)

	if second := newSession(); second.Enabled() {
		t.Error("second session should start paused")
	}
	if got := st.Settings().GetOr(store.SettingLiveEnabled, ""); got != "false" {
		t.Errorf("stored setting = %q, want false", got)
	}
}

func TestSession_AsyncInference(t *testing.T) {
	model := &fakeModel{rows: 3, probs: []float64{0.05, 0.05, 0.9}}
	f := newFixture(t, model, Options{AsyncInference: true})

	var dec gate.Decision
	waitFor(t, "async announcement", func() bool {
		dec = f.session.ProcessHands(thumbsUp(), testClock)
		return dec.State == gate.Holding
	})
	if dec.Label != "sorry" || !dec.Announce {
		t.Errorf("decision = %+v, want announced sorry", dec)
	}
	if got := f.spoken.Labels(); !slices.Equal(got, []string{"sorry"}) {
		t.Errorf("announcements = %v, want [sorry]", got)
	}
}

func TestSession_AsyncDiscardsStaleResults(t *testing.T) {
	model := &fakeModel{
		rows:    3,
		probs:   []float64{0.9, 0.05, 0.05},
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	f := newFixture(t, model, Options{AsyncInference: true})

	for i := 0; i < 3; i++ {
		f.session.ProcessHands(thumbsUp(), testClock)
	}
	<-model.started

	// The gap clears the window while the worker still holds it.
	f.session.ProcessHands(nil, testClock)
	close(model.release)
	waitFor(t, "stale result", func() bool { return len(f.session.worker.results) == 1 })

	dec := f.session.ProcessHands(thumbsUp(), testClock)
	if dec.State != gate.Idle {
		t.Errorf("state = %v, want idle after a stale result", dec.State)
	}
	if len(f.session.worker.results) != 0 {
		t.Error("stale result was not consumed")
	}
	if n := len(f.spoken.Labels()); n != 0 {
		t.Errorf("%d announcements from a stale result, want 0", n)
	}
}

func TestNewSession_RequiresDeps(t *testing.T) {
	if _, err := NewSession(Options{}, Deps{}); err == nil {
		t.Fatal("expected error without a camera, detector and classifier")
	}
}

func TestSession_Run(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	st, err := store.New(filepath.Join(t.TempDir(), "mudra.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer st.Close()

	frames := capture.BlankFrames(4, 64, 48)
	defer func() {
		for _, m := range frames {
			m.Close()
		}
	}()

	camera := capture.NewMockCamera(frames, false)
	camera.FailRead(1, capture.ErrReadFrame)
	det := detector.NewMockDetector()
	det.SetHands(thumbsUp())
	model := &fakeModel{rows: 2, probs: []float64{0.1, 0.85, 0.05}}
	c, err := classifier.NewSequenceClassifier(model, testLabels)
	if err != nil {
		t.Fatalf("NewSequenceClassifier() error = %v", err)
	}
	spoken := &spoken{}
	pub := display.NewFrames()

	s, err := NewSession(Options{Threshold: 0.8, DisplayDuration: time.Second}, Deps{
		Camera:     camera,
		Detector:   det,
		Classifier: c,
		Announcer:  speech.Multi{spoken},
		Frames:     pub,
		Store:      st,
	})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}

	if err := s.Run(t.Context()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if camera.Closed() != 1 {
		t.Errorf("camera closed %d times, want 1", camera.Closed())
	}
	if !det.Closed() {
		t.Error("detector was not closed")
	}
	if det.Calls() != 4 {
		t.Errorf("detector calls = %d, want 4", det.Calls())
	}
	if got := spoken.Labels(); !slices.Equal(got, []string{"thankyou"}) {
		t.Errorf("announcements = %v, want [thankyou]", got)
	}
	if _, seq := pub.Latest(); seq != 4 {
		t.Errorf("published frame seq = %d, want 4", seq)
	}

	logged, err := st.Announcements().BySession(s.ID())
	if err != nil {
		t.Fatalf("BySession() error = %v", err)
	}
	if len(logged) != 1 || logged[0].Sign != "thankyou" {
		t.Errorf("stored announcements = %+v", logged)
	}
	sess, err := st.Sessions().Get(s.ID())
	if err != nil {
		t.Fatalf("Sessions().Get() error = %v", err)
	}
	if sess.Mode != store.ModeLive || sess.EndedAt == nil {
		t.Errorf("stored session = %+v, want an ended live session", sess)
	}

	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if camera.Closed() != 1 {
		t.Error("second Close() closed the camera again")
	}
}

func TestSession_RunOpenFailure(t *testing.T) {
	noDevice := errors.New("no device")
	model := &fakeModel{rows: 2, probs: []float64{0.9, 0.05, 0.05}}
	f := newFixture(t, model, Options{})
	f.camera.FailOpen(noDevice)

	err := f.session.Run(t.Context())
	if !errors.Is(err, noDevice) {
		t.Fatalf("Run() error = %v, want %v", err, noDevice)
	}
	if !f.detector.Closed() {
		t.Error("detector was not closed after the open failure")
	}
}

func TestSession_RunStopsOnCancel(t *testing.T) {
	model := &fakeModel{rows: 2, probs: []float64{0.9, 0.05, 0.05}}
	f := newFixture(t, model, Options{})

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	if err := f.session.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if f.detector.Calls() != 0 {
		t.Errorf("detector calls = %d after cancel, want 0", f.detector.Calls())
	}
	if f.camera.Closed() != 1 {
		t.Errorf("camera closed %d times, want 1", f.camera.Closed())
	}
}
