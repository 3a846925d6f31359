package server

import (
	"fmt"
	"net/http"

	"github.com/ayusman/mudra/internal/display"
)

// StreamHandler serves the annotated preview as MJPEG.
type StreamHandler struct {
	frames *display.Frames
}

// NewStreamHandler creates a StreamHandler reading from frames.
func NewStreamHandler(frames *display.Frames) *StreamHandler {
	return &StreamHandler{frames: frames}
}

// ServeHTTP writes every new frame as a multipart part until the client
// disconnects. The stream runs at the session's frame rate.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}

	var seq uint64
	for {
		data, next, err := h.frames.Next(r.Context(), seq)
		if err != nil {
			return
		}
		seq = next

		if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(data)); err != nil {
			return
		}
		if _, err := w.Write(data); err != nil {
			return
		}
		if _, err := fmt.Fprint(w, "\r\n"); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}
