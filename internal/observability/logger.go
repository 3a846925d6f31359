// Package observability holds the process-wide structured logger and the
// Prometheus collectors for capture, recognition and announcement.
package observability

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	globalLogger zerolog.Logger
	initOnce     sync.Once
	mu           sync.RWMutex
)

// InitLogger initializes the global structured logger. Only the first call
// has an effect. Logs go to stderr so that subcommands can print to stdout.
func InitLogger(level string, pretty bool) {
	initOnce.Do(func() {
		setLogger(os.Stderr, level, pretty)
	})
}

// SetOutput replaces the global logger's destination. Intended for tests.
func SetOutput(w io.Writer, level string) {
	initOnce.Do(func() {})
	setLogger(w, level, false)
}

func setLogger(w io.Writer, level string, pretty bool) {
	zerolog.SetGlobalLevel(parseLevel(level))

	var logger zerolog.Logger
	if pretty {
		output := zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
		}
		logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(w).With().Timestamp().Logger()
	}

	mu.Lock()
	globalLogger = logger
	mu.Unlock()
	log.Logger = logger
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// GetLogger returns the global logger, initializing it with defaults if needed.
func GetLogger() zerolog.Logger {
	InitLogger("info", false)
	mu.RLock()
	defer mu.RUnlock()
	return globalLogger
}

// Component returns a logger tagged with a component name.
func Component(name string) zerolog.Logger {
	return GetLogger().With().Str("component", name).Logger()
}

// WithSession returns a logger carrying the session ID, generating one when empty.
func WithSession(sessionID string) zerolog.Logger {
	if sessionID == "" {
		sessionID = NewSessionID()
	}
	return GetLogger().With().Str("session_id", sessionID).Logger()
}

// NewSessionID generates a new session ID.
func NewSessionID() string {
	return uuid.New().String()
}
