// Package gate turns a stream of predictions into discrete announcements.
//
// A sign is announced once when it first rises above the threshold and is
// then held, without repeating, until a different confident sign appears,
// confidence drops, no hand is seen, or the display duration runs out.
package gate

import (
	"fmt"
	"sync"
	"time"

	"github.com/ayusman/mudra/internal/classifier"
)

// State is the gate state.
type State int

const (
	// Idle means no sign is held.
	Idle State = iota
	// Holding means a confident sign is being displayed.
	Holding
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Holding:
		return "holding"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "idle":
		*s = Idle
	case "holding":
		*s = Holding
	default:
		return fmt.Errorf("unknown gate state %q", b)
	}
	return nil
}

// Held is a snapshot of the gate.
type Held struct {
	State      State     `json:"state"`
	Label      string    `json:"label,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
	Since      time.Time `json:"since,omitempty"`
}

// Decision is the outcome of one observation.
type Decision struct {
	Held
	// Announce is set exactly once per transition to a new label.
	Announce bool `json:"announce"`
}

// Config configures a Gate.
type Config struct {
	// Threshold is the confidence a prediction must strictly exceed.
	Threshold float64
	// DisplayDuration is how long a held sign survives without refresh.
	// Zero disables the decay.
	DisplayDuration time.Duration
	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig returns threshold 0.8 and a 2 second display duration.
func DefaultConfig() Config {
	return Config{
		Threshold:       0.8,
		DisplayDuration: 2 * time.Second,
	}
}

// Gate is the decision state machine. It is safe for concurrent use so that
// the HTTP surface can read snapshots while the frame loop updates it.
type Gate struct {
	threshold float64
	duration  time.Duration
	now       func() time.Time

	mu   sync.RWMutex
	held Held
}

// New creates a gate in the Idle state.
func New(cfg Config) *Gate {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Gate{
		threshold: cfg.Threshold,
		duration:  cfg.DisplayDuration,
		now:       now,
	}
}

// Observe feeds one prediction through the gate.
func (g *Gate) Observe(p classifier.Prediction) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	if p.Confidence <= g.threshold {
		g.held = Held{}
		return Decision{Held: g.held}
	}

	now := g.now()
	announce := g.held.State != Holding || g.held.Label != p.Label
	g.held = Held{
		State:      Holding,
		Label:      p.Label,
		Confidence: p.Confidence,
		Since:      now,
	}
	return Decision{Held: g.held, Announce: announce}
}

// Tick expires a held sign whose last refresh is older than the display
// duration. It reports whether the gate went Idle.
func (g *Gate) Tick(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.held.State != Holding || g.duration <= 0 {
		return false
	}
	if now.Sub(g.held.Since) > g.duration {
		g.held = Held{}
		return true
	}
	return false
}

// Reset returns the gate to Idle. Used when no hand is detected.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.held = Held{}
}

// State returns the current state.
func (g *Gate) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.held.State
}

// Held returns a snapshot of the held sign.
func (g *Gate) Held() Held {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.held
}

// Threshold returns the configured threshold.
func (g *Gate) Threshold() float64 {
	return g.threshold
}
