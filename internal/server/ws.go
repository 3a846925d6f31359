package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/observability"
)

const (
	clientBuffer = 16
	writeTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // local dashboard
	},
}

// Hub fans session events out to websocket clients. It implements
// app.EventSink.
type Hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
	last    []byte
	closed  bool
	logger  zerolog.Logger
}

// NewHub creates a Hub with no clients.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]chan []byte),
		logger:  observability.Component("hub"),
	}
}

// Publish sends ev to every client. Slow clients miss messages instead of
// stalling the session.
func (h *Hub) Publish(ev app.Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to encode event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = msg
	for conn, send := range h.clients {
		select {
		case send <- msg:
		default:
			h.logger.Debug().Str("remote", conn.RemoteAddr().String()).Msg("dropping event for slow client")
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and streams events until the client goes
// away. A new client first receives the most recent event, if any.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	send := make(chan []byte, clientBuffer)
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	if h.last != nil {
		send <- h.last
	}
	h.clients[conn] = send
	h.mu.Unlock()

	done := make(chan struct{})
	go h.write(conn, send, done)

	// Reads only detect disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.remove(conn)
	<-done
}

func (h *Hub) write(conn *websocket.Conn, send <-chan []byte, done chan<- struct{}) {
	defer close(done)
	defer conn.Close()
	for msg := range send {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.logger.Debug().Err(err).Msg("websocket write failed")
			h.remove(conn)
			return
		}
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if send, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		close(send)
	}
}

// Close disconnects all clients and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for conn, send := range h.clients {
		delete(h.clients, conn)
		close(send)
	}
}
