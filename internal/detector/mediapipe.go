package detector

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/observability"
)

const scriptName = "mediapipe_service.py"

// ScriptEnv overrides the location of the helper script.
const ScriptEnv = "MUDRA_MEDIAPIPE_SCRIPT"

// service is one running helper process. A request is a 4-byte big-endian
// length and a JPEG; the reply is a single JSON line.
type service struct {
	cmd *exec.Cmd
	in  io.WriteCloser
	out *bufio.Reader
}

func startService(python string, args []string) (*service, error) {
	cmd := exec.Command(python, args...)
	cmd.Stderr = os.Stderr
	in, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start mediapipe service: %w", err)
	}
	return &service{cmd: cmd, in: in, out: bufio.NewReader(out)}, nil
}

func (s *service) roundTrip(jpeg []byte) ([]byte, error) {
	msg := make([]byte, 4, 4+len(jpeg))
	binary.BigEndian.PutUint32(msg, uint32(len(jpeg)))
	if _, err := s.in.Write(append(msg, jpeg...)); err != nil {
		return nil, fmt.Errorf("send frame: %w", err)
	}
	line, err := s.out.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("read reply: %w", err)
	}
	return line, nil
}

// stop closes stdin, which the helper treats as end of input, and reaps it.
func (s *service) stop() error {
	s.in.Close()
	return s.cmd.Wait()
}

// MediaPipeDetector runs MediaPipe Hands in a Python helper. The helper is
// started on the first Detect and restarted after any protocol error.
type MediaPipeDetector struct {
	config     Config
	scriptPath string
	pythonPath string
	logger     zerolog.Logger

	mu      sync.Mutex
	svc     *service
	idle    *time.Timer
	idleGen uint64
}

// NewMediaPipeDetector locates the helper script and a Python interpreter,
// preferring a project virtualenv over python3 on PATH.
func NewMediaPipeDetector(config Config) (*MediaPipeDetector, error) {
	script := findMediaPipeScript()
	if script == "" {
		return nil, fmt.Errorf("%s not found (set %s)", scriptName, ScriptEnv)
	}
	python := findVenvPython()
	if python == "" {
		python = "python3"
	}
	return &MediaPipeDetector{
		config:     config,
		scriptPath: script,
		pythonPath: python,
		logger:     observability.Component("detector"),
	}, nil
}

func (d *MediaPipeDetector) Detect(frame *gocv.Mat) ([]HandLandmarks, error) {
	if frame == nil || frame.Empty() {
		return nil, errors.New("detect: empty frame")
	}
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.svc == nil {
		svc, err := startService(d.pythonPath, d.args())
		if err != nil {
			return nil, err
		}
		d.svc = svc
		d.logger.Info().Str("script", d.scriptPath).Int("pid", svc.cmd.Process.Pid).Msg("mediapipe service started")
	}

	line, err := d.svc.roundTrip(buf.GetBytes())
	if err != nil {
		if serr := d.stopLocked(); serr != nil {
			d.logger.Warn().Err(serr).Msg("mediapipe service exited")
		}
		return nil, err
	}
	d.armIdle()

	hands, err := parseResponse(line)
	if err != nil {
		return nil, err
	}
	if n := d.config.MaxHands; n > 0 && len(hands) > n {
		hands = hands[:n]
	}
	return hands, nil
}

func (d *MediaPipeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopLocked()
}

func (d *MediaPipeDetector) stopLocked() error {
	if d.idle != nil {
		d.idle.Stop()
		d.idle = nil
	}
	if d.svc == nil {
		return nil
	}
	err := d.svc.stop()
	d.svc = nil
	d.logger.Debug().Msg("mediapipe service stopped")
	return err
}

// armIdle restarts the idle countdown. Each arming bumps the generation and
// a fire from an older one is ignored.
func (d *MediaPipeDetector) armIdle() {
	if d.config.IdleTimeout <= 0 {
		return
	}
	if d.idle != nil {
		d.idle.Stop()
	}
	d.idleGen++
	gen := d.idleGen
	d.idle = time.AfterFunc(d.config.IdleTimeout, func() { d.idleExpired(gen) })
}

func (d *MediaPipeDetector) idleExpired(gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if gen != d.idleGen || d.idle == nil {
		return
	}
	d.idle = nil
	if err := d.stopLocked(); err != nil {
		d.logger.Debug().Err(err).Msg("idle shutdown")
	}
}

// args forwards the detector config to the helper's command line.
func (d *MediaPipeDetector) args() []string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	args := []string{
		d.scriptPath,
		"--max-hands", strconv.Itoa(d.config.MaxHands),
		"--min-detection-confidence", f(d.config.MinConfidence),
		"--min-tracking-confidence", f(d.config.MinTrackingConf),
	}
	if d.config.StaticImages {
		args = append(args, "--static")
	}
	return args
}

// searchDirs are the places a checkout or an installed binary keeps its
// helper files: the working directory, its parents, the executable's
// directory and ~/.mudra.
func searchDirs() []string {
	dirs := []string{".", "..", filepath.Join("..", "..")}
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exe))
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".mudra"))
	}
	return dirs
}

func findMediaPipeScript() string {
	if p := os.Getenv(ScriptEnv); p != "" {
		return firstExisting([]string{p})
	}
	return lookup(filepath.Join("scripts", scriptName))
}

func findVenvPython() string {
	return lookup(filepath.Join("venv", "bin", "python"))
}

func lookup(rel string) string {
	dirs := searchDirs()
	paths := make([]string, len(dirs))
	for i, dir := range dirs {
		paths[i] = filepath.Join(dir, rel)
	}
	return firstExisting(paths)
}

// firstExisting returns the first path that exists, made absolute when
// possible.
func firstExisting(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if abs, err := filepath.Abs(p); err == nil {
			return abs
		}
		return p
	}
	return ""
}

// reply is one line from the helper.
type reply struct {
	Hands []struct {
		Points     []Point3D `json:"points"`
		Handedness string    `json:"handedness"`
		Score      float64   `json:"score"`
	} `json:"hands"`
	Error string `json:"error"`
}

func parseResponse(line []byte) ([]HandLandmarks, error) {
	var r reply
	if err := json.Unmarshal(line, &r); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if r.Error != "" {
		return nil, fmt.Errorf("mediapipe service: %s", r.Error)
	}
	hands := make([]HandLandmarks, len(r.Hands))
	for i, h := range r.Hands {
		if len(h.Points) != NumLandmarks {
			return nil, fmt.Errorf("hand %d has %d landmarks, want %d", i, len(h.Points), NumLandmarks)
		}
		hands[i] = HandLandmarks{Handedness: h.Handedness, Score: h.Score}
		copy(hands[i].Points[:], h.Points)
	}
	return hands, nil
}
