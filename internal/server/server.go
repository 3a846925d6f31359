// Package server provides the HTTP surface of a mudra live session.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ayusman/mudra/internal/display"
	"github.com/ayusman/mudra/internal/gate"
	"github.com/ayusman/mudra/internal/observability"
	"github.com/ayusman/mudra/internal/server/api"
	"github.com/ayusman/mudra/internal/store"
)

// Session is the part of a live session the server reads and controls.
type Session interface {
	ID() string
	Held() gate.Held
	Enabled() bool
	SetEnabled(enabled bool)
}

// Config holds the server configuration. Every field is optional; routes
// whose dependency is missing are not registered.
type Config struct {
	StaticDir string
	Store     *store.Store
	Session   Session
	Hub       *Hub
	Frames    *display.Frames
	Metrics   bool
}

// Server is the HTTP handler of the application.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	logger zerolog.Logger
}

// New creates a Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
		logger: observability.Component("server"),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Store != nil {
		signs := api.NewSignHandler(s.config.Store)
		samples := api.NewSamplesHandler(s.config.Store)
		signRouter := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasSuffix(r.URL.Path, "/samples") {
				samples.ServeHTTP(w, r)
				return
			}
			signs.ServeHTTP(w, r)
		})
		s.mux.Handle("/api/signs", signRouter)
		s.mux.Handle("/api/signs/", signRouter)

		announcements := api.NewAnnouncementHandler(s.config.Store)
		s.mux.Handle("/api/announcements", announcements)
		s.mux.Handle("/api/announcements/", announcements)
	}

	if s.config.Session != nil {
		s.mux.HandleFunc("/api/state", s.handleState)
	}
	if s.config.Hub != nil {
		s.mux.Handle("/api/live", s.config.Hub)
	}
	if s.config.Frames != nil {
		s.mux.Handle("/api/stream", NewStreamHandler(s.config.Frames))
	}
	if s.config.Metrics {
		s.mux.Handle("/metrics", promhttp.Handler())
	}

	if s.config.StaticDir != "" {
		s.mux.Handle("/", http.FileServer(http.Dir(s.config.StaticDir)))
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	})
}

type stateResponse struct {
	SessionID string    `json:"session_id"`
	Enabled   bool      `json:"enabled"`
	Held      gate.Held `json:"held"`
}

type stateRequest struct {
	Enabled *bool `json:"enabled"`
}

// handleState reports the held sign. PUT {"enabled": bool} pauses or
// resumes recognition.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	sess := s.config.Session
	switch r.Method {
	case http.MethodGet:
	case http.MethodPut:
		var req stateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "enabled is required"})
			return
		}
		sess.SetEnabled(*req.Enabled)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, stateResponse{
		SessionID: sess.ID(),
		Enabled:   sess.Enabled(),
		Held:      sess.Held(),
	})
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	if s.config.Hub != nil {
		s.config.Hub.Close()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
