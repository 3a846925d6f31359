package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

var ErrTimeout = errors.New("plugin execution timeout")

// Executor runs one plugin process per request.
type Executor struct {
	timeout time.Duration
}

// NewExecutor bounds every call by timeout. Zero or less means no bound
// beyond the caller's context.
func NewExecutor(timeout time.Duration) *Executor {
	return &Executor{timeout: timeout}
}

func (e *Executor) Timeout() time.Duration {
	return e.timeout
}

// Execute starts the plugin, feeds it req and decodes its reply. A reply
// with Success false is returned as a Response, not an error.
func (e *Executor) Execute(ctx context.Context, p *Plugin, req *Request) (*Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.Executable)
	cmd.Dir = p.Path
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Children of a killed plugin may hold stdout open.
	cmd.WaitDelay = time.Second

	runErr := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%s: %w after %s", p.Manifest.Name, ErrTimeout, e.timeout)
	}
	if runErr != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", p.Manifest.Name, runErr, msg)
		}
		return nil, fmt.Errorf("%s: %w", p.Manifest.Name, runErr)
	}

	resp := new(Response)
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), resp); err != nil {
		return nil, fmt.Errorf("%s: bad response %q: %w", p.Manifest.Name, truncate(stdout.String(), 200), err)
	}
	return resp, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
