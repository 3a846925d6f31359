package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ayusman/mudra/internal/store"
)

// Announcement list limits.
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// AnnouncementHandler serves the announcement log.
type AnnouncementHandler struct {
	store *store.Store
}

// NewAnnouncementHandler creates an AnnouncementHandler backed by s.
func NewAnnouncementHandler(s *store.Store) *AnnouncementHandler {
	return &AnnouncementHandler{store: s}
}

// ServeHTTP routes GET /api/announcements and GET /api/announcements/counts.
//
// The list accepts ?limit=N (default 50, at most 500) or ?session=ID for
// the full log of one session.
func (h *AnnouncementHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	switch strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/api/announcements"), "/") {
	case "":
		h.list(w, r)
	case "counts":
		h.counts(w, r)
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

type announcementResponse struct {
	ID         int64   `json:"id"`
	SessionID  string  `json:"session_id,omitempty"`
	Sign       string  `json:"sign"`
	Confidence float64 `json:"confidence"`
	CreatedAt  string  `json:"created_at"`
}

type listAnnouncementsResponse struct {
	Announcements []announcementResponse `json:"announcements"`
}

type countsResponse struct {
	Counts map[string]int `json:"counts"`
}

func (h *AnnouncementHandler) list(w http.ResponseWriter, r *http.Request) {
	var (
		items []store.Announcement
		err   error
	)
	if session := r.URL.Query().Get("session"); session != "" {
		items, err = h.store.Announcements().BySession(session)
	} else {
		limit, ok := parseLimit(r.URL.Query().Get("limit"))
		if !ok {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		items, err = h.store.Announcements().Recent(limit)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list announcements")
		return
	}

	response := listAnnouncementsResponse{Announcements: make([]announcementResponse, 0, len(items))}
	for _, a := range items {
		response.Announcements = append(response.Announcements, announcementResponse{
			ID:         a.ID,
			SessionID:  a.SessionID,
			Sign:       a.Sign,
			Confidence: a.Confidence,
			CreatedAt:  a.CreatedAt.Format(time.RFC3339Nano),
		})
	}
	writeJSON(w, http.StatusOK, response)
}

func (h *AnnouncementHandler) counts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.store.Announcements().CountBySign()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count announcements")
		return
	}
	writeJSON(w, http.StatusOK, countsResponse{Counts: counts})
}

// parseLimit reads the limit query value. Empty means DefaultLimit; values
// above MaxLimit are clamped.
func parseLimit(s string) (int, bool) {
	if s == "" {
		return DefaultLimit, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, false
	}
	return min(n, MaxLimit), true
}
