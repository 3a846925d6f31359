// Package main provides a plugin that types recognised signs into the
// focused application, via AppleScript on macOS and xdotool on Linux.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
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
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Config controls what is typed for each sign.
type Config struct {
	// Suffix is typed after every sign. Defaults to a single space.
	Suffix *string `json:"suffix"`
	// Replacements maps a sign label to the text typed for it.
	Replacements map[string]string `json:"replacements"`
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	if req.Action != "announce" {
		writeErrorResponse(fmt.Sprintf("unknown action: %s", req.Action))
		return
	}
	if req.Sign == "" {
		writeErrorResponse("sign is required")
		return
	}

	var cfg Config
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			writeErrorResponse(fmt.Sprintf("failed to parse config: %v", err))
			return
		}
	}

	text := textFor(req.Sign, cfg)
	if err := typeText(text); err != nil {
		writeErrorResponse(fmt.Sprintf("typing failed: %v", err))
		return
	}

	data, _ := json.Marshal(map[string]string{"typed": text})
	json.NewEncoder(os.Stdout).Encode(Response{Success: true, Data: data})
}

// textFor returns the text typed for a sign.
func textFor(sign string, cfg Config) string {
	text := strings.ReplaceAll(sign, "_", " ")
	if r, ok := cfg.Replacements[sign]; ok {
		text = r
	}
	suffix := " "
	if cfg.Suffix != nil {
		suffix = *cfg.Suffix
	}
	return text + suffix
}

func typeText(text string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(text)
		cmd = exec.Command("osascript", "-e",
			fmt.Sprintf(`tell application "System Events" to keystroke "%s"`, escaped))
	case "linux":
		cmd = exec.Command("xdotool", "type", "--", text)
	default:
		return fmt.Errorf("unsupported platform %s", runtime.GOOS)
	}

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}

func writeErrorResponse(errMsg string) {
	json.NewEncoder(os.Stdout).Encode(Response{Success: false, Error: errMsg})
}
