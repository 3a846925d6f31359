// Package api provides the JSON handlers of the mudra HTTP surface.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ayusman/mudra/internal/dataset"
	"github.com/ayusman/mudra/internal/store"
)

// SignHandler serves the sign catalog.
type SignHandler struct {
	store *store.Store
}

// NewSignHandler creates a SignHandler backed by s.
func NewSignHandler(s *store.Store) *SignHandler {
	return &SignHandler{store: s}
}

// ServeHTTP routes /api/signs and /api/signs/{id}.
func (h *SignHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/api/signs"), "/")

	if id == "" {
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.create(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.get(w, r, id)
	case http.MethodDelete:
		h.delete(w, r, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type createSignRequest struct {
	Label string `json:"label"`
}

type signResponse struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Ordinal   int    `json:"ordinal"`
	Trained   bool   `json:"trained"`
	Samples   int    `json:"samples"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type listSignsResponse struct {
	Signs []signResponse `json:"signs"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toSignResponse(sg *store.Sign) signResponse {
	return signResponse{
		ID:        sg.ID,
		Label:     sg.Label,
		Ordinal:   sg.Ordinal,
		Trained:   sg.Ordinal >= 0,
		Samples:   sg.Samples,
		CreatedAt: sg.CreatedAt.Format(time.RFC3339),
		UpdatedAt: sg.UpdatedAt.Format(time.RFC3339),
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func (h *SignHandler) list(w http.ResponseWriter, r *http.Request) {
	signs, err := h.store.Signs().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list signs")
		return
	}

	response := listSignsResponse{Signs: make([]signResponse, 0, len(signs))}
	for _, sg := range signs {
		response.Signs = append(response.Signs, toSignResponse(sg))
	}
	writeJSON(w, http.StatusOK, response)
}

func (h *SignHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	sg, err := h.store.Signs().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Sign not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get sign")
		return
	}
	writeJSON(w, http.StatusOK, toSignResponse(sg))
}

// create registers a label before any sample is recorded for it. The sign
// stays untrained until the next training run includes it.
func (h *SignHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createSignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Label == "" {
		writeError(w, http.StatusBadRequest, "Label is required")
		return
	}
	if err := dataset.ValidateLabel(req.Label); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid label")
		return
	}

	sg := &store.Sign{Label: req.Label, Ordinal: -1}
	if err := h.store.Signs().Create(sg); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			writeError(w, http.StatusConflict, "Sign already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to create sign")
		return
	}
	writeJSON(w, http.StatusCreated, toSignResponse(sg))
}

// delete removes the catalog entry and its sample rows. Dataset files are
// left on disk.
func (h *SignHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.store.Signs().Delete(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Sign not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete sign")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
