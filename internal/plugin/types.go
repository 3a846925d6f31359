// Package plugin runs external programs that react to recognised signs.
//
// Each plugin lives in its own directory with a plugin.json manifest naming
// an executable. The executable reads one JSON Request from stdin and
// writes one JSON Response to stdout, then exits.
package plugin

import (
	"encoding/json"
	"errors"
	"slices"
)

// ActionAnnounce asks a plugin to present a newly announced sign.
const ActionAnnounce = "announce"

// Manifest is the decoded plugin.json.
type Manifest struct {
	Name         string          `json:"name"`
	Version      string          `json:"version"`
	Description  string          `json:"description"`
	Executable   string          `json:"executable"` // relative to the plugin directory
	Actions      []string        `json:"actions"`
	ConfigSchema json.RawMessage `json:"configSchema,omitempty"`
}

func (m Manifest) validate() error {
	switch {
	case m.Name == "":
		return errors.New("manifest has no name")
	case m.Executable == "":
		return errors.New("manifest has no executable")
	}
	return nil
}

// Supports reports whether the manifest lists action.
func (m Manifest) Supports(action string) bool {
	return slices.Contains(m.Actions, action)
}

// Request is written to the plugin's stdin.
type Request struct {
	Action     string          `json:"action"`
	Sign       string          `json:"sign,omitempty"`
	Confidence float64         `json:"confidence,omitempty"`
	Config     json.RawMessage `json:"config,omitempty"`
	Params     json.RawMessage `json:"params,omitempty"`
}

// Response is read from the plugin's stdout. A plugin that ran but could
// not do the work sets Success false and explains in Error.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin is an installed plugin.
type Plugin struct {
	Manifest   Manifest
	Path       string // plugin directory, also the working directory when run
	Executable string // absolute or Path-joined executable
}
