// Package speech announces recognised signs.
package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ayusman/mudra/internal/observability"
)

// Announcer announces a sign label. Implementations must not return errors
// to the caller; failures are logged.
type Announcer interface {
	Announce(label string)
}

// AnnouncerFunc adapts a function to the Announcer interface.
type AnnouncerFunc func(label string)

// Announce calls f(label).
func (f AnnouncerFunc) Announce(label string) { f(label) }

// Nop discards announcements.
type Nop struct{}

// Announce does nothing.
func (Nop) Announce(string) {}

// Multi announces to every announcer in order.
type Multi []Announcer

// Announce forwards label to each announcer.
func (m Multi) Announce(label string) {
	for _, a := range m {
		a.Announce(label)
	}
}

// Close closes every announcer that implements io.Closer.
func (m Multi) Close() error {
	var errs []error
	for _, a := range m {
		errs = append(errs, Close(a))
	}
	return errors.Join(errs...)
}

// Close closes a if it implements io.Closer.
func Close(a Announcer) error {
	if c, ok := a.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// ErrNoSpeechCommand is returned when no text-to-speech program is found.
var ErrNoSpeechCommand = errors.New("no speech command found")

// DefaultCommand returns the platform text-to-speech program: say on macOS,
// otherwise the first of espeak-ng, espeak or spd-say on PATH.
func DefaultCommand() (string, error) {
	candidates := []string{"espeak-ng", "espeak", "spd-say"}
	if runtime.GOOS == "darwin" {
		candidates = []string{"say"}
	}
	for _, c := range candidates {
		if path, err := exec.LookPath(c); err == nil {
			return path, nil
		}
	}
	return "", ErrNoSpeechCommand
}

// CommandAnnouncer speaks a label by running an external program with the
// label as its last argument. Announce blocks until the program exits or
// the timeout elapses; wrap it in Async for the live loop.
type CommandAnnouncer struct {
	args    []string
	timeout time.Duration
	logger  zerolog.Logger
}

// NewCommandAnnouncer parses command (program and leading arguments,
// whitespace separated). An empty command uses DefaultCommand.
func NewCommandAnnouncer(command string, timeout time.Duration) (*CommandAnnouncer, error) {
	args := strings.Fields(command)
	if len(args) == 0 {
		def, err := DefaultCommand()
		if err != nil {
			return nil, err
		}
		args = []string{def}
	}
	return &CommandAnnouncer{
		args:    args,
		timeout: timeout,
		logger:  observability.Component("speech"),
	}, nil
}

// Command returns the program and its leading arguments.
func (c *CommandAnnouncer) Command() []string {
	return append([]string(nil), c.args...)
}

// Announce runs the speech program for label.
func (c *CommandAnnouncer) Announce(label string) {
	if err := c.Speak(context.Background(), label); err != nil {
		c.logger.Warn().Err(err).Str("sign", label).Msg("speech command failed")
	}
}

// Speak runs the speech program for text and reports its error.
func (c *CommandAnnouncer) Speak(ctx context.Context, text string) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	args := append(c.Command(), text)
	out, err := exec.CommandContext(ctx, args[0], args[1:]...).CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", args[0], ctx.Err())
		}
		return fmt.Errorf("%s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}
