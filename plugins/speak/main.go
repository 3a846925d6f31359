// Package main provides a text-to-speech plugin.
// It speaks the announced sign with say on macOS and espeak elsewhere.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
)

// Request represents the input from the plugin executor.
type Request struct {
	Action string          `json:"action"`
	Sign   string          `json:"sign"`
	Config json.RawMessage `json:"config"`
}

// Response represents the output to the plugin executor.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Config holds the optional voice settings.
type Config struct {
	Voice string `json:"voice"`
	Rate  int    `json:"rate"` // words per minute
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeResponse(fmt.Errorf("failed to decode request: %w", err))
		return
	}

	if req.Action != "announce" {
		writeResponse(fmt.Errorf("unknown action: %s", req.Action))
		return
	}
	if req.Sign == "" {
		writeResponse(fmt.Errorf("sign is required"))
		return
	}

	var cfg Config
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			writeResponse(fmt.Errorf("failed to parse config: %w", err))
			return
		}
	}

	writeResponse(speak(spoken(req.Sign), cfg))
}

// spoken turns a label such as "thank_you" into speakable text.
func spoken(label string) string {
	return strings.NewReplacer("_", " ", "-", " ").Replace(label)
}

func speak(text string, cfg Config) error {
	name, args := "espeak", []string{}
	if runtime.GOOS == "darwin" {
		name = "say"
		if cfg.Voice != "" {
			args = append(args, "-v", cfg.Voice)
		}
		if cfg.Rate > 0 {
			args = append(args, "-r", strconv.Itoa(cfg.Rate))
		}
	} else {
		if cfg.Voice != "" {
			args = append(args, "-v", cfg.Voice)
		}
		if cfg.Rate > 0 {
			args = append(args, "-s", strconv.Itoa(cfg.Rate))
		}
	}
	args = append(args, text)

	output, err := exec.Command(name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, string(output))
	}
	return nil
}

func writeResponse(err error) {
	resp := Response{Success: err == nil}
	if err != nil {
		resp.Error = err.Error()
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}
