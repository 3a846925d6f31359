package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ayusman/mudra/internal/store"
)

// SamplesHandler lists the recorded samples of a sign.
type SamplesHandler struct {
	store *store.Store
}

// NewSamplesHandler creates a SamplesHandler backed by s.
func NewSamplesHandler(s *store.Store) *SamplesHandler {
	return &SamplesHandler{store: s}
}

// ServeHTTP handles GET /api/signs/{id}/samples.
func (h *SamplesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/signs/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "samples" {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.list(w, r, parts[0])
}

type sampleResponse struct {
	ID           int64  `json:"id"`
	SignID       string `json:"sign_id"`
	SampleIndex  int    `json:"sample_index"`
	Path         string `json:"path"`
	Frames       int    `json:"frames"`
	MissedFrames int    `json:"missed_frames"`
	SessionID    string `json:"session_id,omitempty"`
	CreatedAt    string `json:"created_at"`
}

type listSamplesResponse struct {
	Samples []sampleResponse `json:"samples"`
}

func (h *SamplesHandler) list(w http.ResponseWriter, r *http.Request, signID string) {
	if _, err := h.store.Signs().GetByID(signID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Sign not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get sign")
		return
	}

	samples, err := h.store.Samples().GetBySignID(signID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list samples")
		return
	}

	response := listSamplesResponse{Samples: make([]sampleResponse, 0, len(samples))}
	for _, s := range samples {
		response.Samples = append(response.Samples, sampleResponse{
			ID:           s.ID,
			SignID:       s.SignID,
			SampleIndex:  s.SampleIndex,
			Path:         s.Path,
			Frames:       s.Frames,
			MissedFrames: s.MissedFrames,
			SessionID:    s.SessionID,
			CreatedAt:    s.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, response)
}
