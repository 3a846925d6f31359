package detector

import (
	"errors"
	"math"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const epsilon = 1e-9

func near(a, b float64) bool { return math.Abs(a-b) <= epsilon }

func TestNormalize(t *testing.T) {
	var hand HandLandmarks
	hand.Handedness = SideLeft
	hand.Score = 0.8
	for i := range hand.Points {
		hand.Points[i] = Point3D{X: 2 + float64(i), Y: -1 + 0.5*float64(i), Z: 3}
	}
	hand.Points[Wrist] = Point3D{X: 10, Y: 20, Z: 5}
	hand.Points[MiddleMCP] = Point3D{X: 13, Y: 24, Z: 5}

	got := hand.Normalize()

	if w := got.Points[Wrist]; !near(w.X, 0) || !near(w.Y, 0) || !near(w.Z, 0) {
		t.Errorf("wrist = %+v, want origin", w)
	}
	if m := got.Points[MiddleMCP]; !near(m.norm(), 1) || !near(m.X, 0.6) || !near(m.Y, 0.8) {
		t.Errorf("middle MCP = %+v, want unit vector (0.6, 0.8, 0)", m)
	}
	if got.Handedness != SideLeft || got.Score != 0.8 {
		t.Errorf("metadata = %q/%v, want Left/0.8", got.Handedness, got.Score)
	}
	if hand.Points[Wrist].X != 10 {
		t.Error("Normalize modified its receiver")
	}
}

func TestNormalize_Degenerate(t *testing.T) {
	var nilHand *HandLandmarks
	if nilHand.Normalize() != nil {
		t.Error("nil hand should normalize to nil")
	}

	var flat HandLandmarks
	for i := range flat.Points {
		flat.Points[i] = Point3D{X: 0.4, Y: 0.4}
	}
	flat.Points[IndexTip] = Point3D{X: 0.5, Y: 0.4}
	got := flat.Normalize()
	if !near(got.Points[IndexTip].X, 0.1) {
		t.Errorf("zero palm should translate only, index tip x = %v", got.Points[IndexTip].X)
	}
}

func TestSideLabels(t *testing.T) {
	cases := map[string]struct{ labelled, left bool }{
		"Left":   {true, true},
		"left":   {true, true},
		" LEFT ": {true, true},
		"Right":  {true, false},
		"":       {false, false},
		"\t":     {false, false},
	}
	for side, want := range cases {
		h := HandLandmarks{Handedness: side}
		if h.Labelled() != want.labelled || h.IsLeft() != want.left {
			t.Errorf("%q: Labelled=%v IsLeft=%v, want %v %v", side, h.Labelled(), h.IsLeft(), want.labelled, want.left)
		}
	}
}

func TestFlatten(t *testing.T) {
	h := OpenPalmLandmarks()
	dst := make([]float64, NumLandmarks*3)
	h.Flatten(dst)
	for _, i := range []int{Wrist, ThumbTip, PinkyTip} {
		p := h.Points[i]
		if dst[3*i] != p.X || dst[3*i+1] != p.Y || dst[3*i+2] != p.Z {
			t.Errorf("landmark %d flattened to %v, want %+v", i, dst[3*i:3*i+3], p)
		}
	}
}

func TestFingers(t *testing.T) {
	seen := map[int]bool{Wrist: true}
	for _, f := range Fingers {
		for _, idx := range f {
			if seen[idx] {
				t.Fatalf("landmark %d listed twice", idx)
			}
			seen[idx] = true
		}
	}
	if len(seen) != NumLandmarks {
		t.Errorf("fingers cover %d landmarks, want %d", len(seen), NumLandmarks)
	}
}

// lift is how far a finger tip sits above its base joint. Image y grows
// downward.
func lift(h HandLandmarks, f Finger) float64 {
	return h.Points[f[0]].Y - h.Points[f[3]].Y
}

func TestPresets(t *testing.T) {
	thumbs, palm := ThumbsUpLandmarks(), OpenPalmLandmarks()
	for _, h := range []HandLandmarks{thumbs, palm} {
		if h.Handedness != SideRight || h.Score < 0.9 {
			t.Errorf("preset labelled %q score %v, want confident Right", h.Handedness, h.Score)
		}
	}

	if lift(thumbs, Fingers[0]) < 0.3 {
		t.Errorf("thumbs up: thumb lift %.2f, want raised", lift(thumbs, Fingers[0]))
	}
	for _, f := range Fingers[1:] {
		if l := lift(thumbs, f); l > 0.15 {
			t.Errorf("thumbs up: finger %v lift %.2f, want curled", f, l)
		}
		if l := lift(palm, f); l < 0.2 {
			t.Errorf("open palm: finger %v lift %.2f, want extended", f, l)
		}
	}
	if palm.Points[ThumbTip].X <= palm.Points[ThumbMCP].X {
		t.Error("open palm: thumb should point outward")
	}
	for i := 1; i < len(Fingers)-1; i++ {
		if palm.Points[Fingers[i][0]].X <= palm.Points[Fingers[i+1][0]].X {
			t.Errorf("open palm: knuckle %d not right of knuckle %d", i, i+1)
		}
	}
}

func TestMirrored(t *testing.T) {
	h := Mirrored(OpenPalmLandmarks())
	if h.Handedness != SideLeft {
		t.Errorf("mirrored Right = %q, want Left", h.Handedness)
	}
	if !near(h.Points[Wrist].X, 0.5) || !near(h.Points[ThumbTip].X, 0.27) {
		t.Errorf("mirrored x = %v, %v", h.Points[Wrist].X, h.Points[ThumbTip].X)
	}
	if back := Mirrored(h); back.Handedness != SideRight || !near(back.Points[ThumbTip].X, 0.73) {
		t.Errorf("double mirror = %q %v", back.Handedness, back.Points[ThumbTip].X)
	}
	if Mirrored(HandLandmarks{}).Labelled() {
		t.Error("mirroring labelled an unlabelled hand")
	}
}

func TestMockDetector(t *testing.T) {
	var _ Detector = (*MockDetector)(nil)
	var _ Detector = (*MediaPipeDetector)(nil)

	m := NewMockDetector()
	if hands, err := m.Detect(nil); hands != nil || err != nil {
		t.Fatalf("fresh mock = %v, %v", hands, err)
	}

	m.SetHands([]HandLandmarks{OpenPalmLandmarks()})
	m.Queue(nil, []HandLandmarks{ThumbsUpLandmarks(), ThumbsUpLandmarks()})
	var sizes []int
	for range 3 {
		hands, _ := m.Detect(nil)
		sizes = append(sizes, len(hands))
	}
	if sizes[0] != 0 || sizes[1] != 2 || sizes[2] != 1 {
		t.Errorf("queued then fixed sizes = %v, want [0 2 1]", sizes)
	}

	boom := errors.New("camera unplugged")
	m.SetError(boom)
	if hands, err := m.Detect(nil); !errors.Is(err, boom) || hands != nil {
		t.Errorf("with error set got %v, %v", hands, err)
	}
	if m.Calls() != 5 {
		t.Errorf("Calls() = %d, want 5", m.Calls())
	}

	if err := m.Close(); err != nil || !m.Closed() {
		t.Errorf("Close() = %v, Closed() = %v", err, m.Closed())
	}
}

func TestParseResponse(t *testing.T) {
	pts := strings.TrimSuffix(strings.Repeat(`{"x":0.1,"y":0.2,"z":0.3},`, NumLandmarks), ",")
	hand := `{"points":[` + pts + `],"handedness":"Left","score":0.9}`

	hands, err := parseResponse([]byte(`{"hands":[` + hand + `,` + hand + `]}` + "\n"))
	if err != nil {
		t.Fatalf("parseResponse() error = %v", err)
	}
	if len(hands) != 2 || hands[1].Handedness != "Left" || hands[1].Score != 0.9 || hands[1].Points[PinkyTip].Z != 0.3 {
		t.Errorf("parsed %+v", hands)
	}

	if hands, err := parseResponse([]byte(`{"hands":[]}`)); err != nil || len(hands) != 0 {
		t.Errorf("empty reply = %v, %v", hands, err)
	}

	for name, line := range map[string]string{
		"service error": `{"hands":[],"error":"decode failed"}`,
		"short hand":    `{"hands":[{"points":[{"x":1,"y":1,"z":1}]}]}`,
		"not json":      `hands?`,
	} {
		if _, err := parseResponse([]byte(line)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestMediaPipeDetector_Args(t *testing.T) {
	d := &MediaPipeDetector{
		config:     Config{MaxHands: 1, MinConfidence: 0.6, MinTrackingConf: 0.45},
		scriptPath: "svc.py",
	}
	if got, want := strings.Join(d.args(), " "), "svc.py --max-hands 1 --min-detection-confidence 0.6 --min-tracking-confidence 0.45"; got != want {
		t.Errorf("args = %q, want %q", got, want)
	}
	d.config.StaticImages = true
	if args := d.args(); args[len(args)-1] != "--static" {
		t.Errorf("static args = %v", args)
	}
}

func TestFirstExisting(t *testing.T) {
	dir := t.TempDir()
	if got := firstExisting([]string{dir + "/nope", dir}); got != dir {
		t.Errorf("firstExisting = %q, want %q", got, dir)
	}
	if got := firstExisting([]string{dir + "/nope"}); got != "" {
		t.Errorf("firstExisting of missing = %q", got)
	}
}

func TestMediaPipeDetector_StaleIdleFire(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}
	svc, err := startService("cat", nil)
	if err != nil {
		t.Fatalf("startService() error = %v", err)
	}
	d := &MediaPipeDetector{config: Config{IdleTimeout: time.Hour}, logger: zerolog.Nop(), svc: svc}
	defer d.Close()

	d.mu.Lock()
	d.armIdle()
	stale := d.idleGen
	d.armIdle()
	current := d.idleGen
	d.mu.Unlock()

	d.idleExpired(stale)
	if d.svc == nil {
		t.Fatal("a stale idle fire stopped the service")
	}
	d.idleExpired(current)
	if d.svc != nil {
		t.Error("the current idle fire left the service running")
	}
}
