package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/ayusman/nidra/internal/alert"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 2 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// Message is pushed to websocket clients.
type Message struct {
	Type        string   `json:"type"`
	Status      string   `json:"status,omitempty"`
	WindowStart string   `json:"window_start,omitempty"`
	TriggeredAt string   `json:"triggered_at,omitempty"`
	ClosedMs    int64    `json:"closed_ms,omitempty"`
	AvgEAR      *float64 `json:"avg_ear,omitempty"`
	Model       string   `json:"model,omitempty"`
	Timestamp   int64    `json:"timestamp"`
}

// Message types.
const (
	MessageStatus = "status"
	MessageAlert  = "alert"
)

// AlertHub pushes alert raises and queried statuses to websocket clients.
//
// It is an alert.Sink for raise events and a notifier that forwards every
// queried status unchanged.
type AlertHub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	now     func() time.Time
}

// NewAlertHub creates a hub with no clients.
func NewAlertHub() *AlertHub {
	return &AlertHub{
		clients: make(map[*websocket.Conn]struct{}),
		now:     time.Now,
	}
}

// ServeHTTP upgrades the request and keeps the client until it disconnects.
func (h *AlertHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
	}()

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// AlertRaised broadcasts an alert raise.
func (h *AlertHub) AlertRaised(e alert.Event) {
	ear := e.AvgEAR
	h.broadcast(Message{
		Type:        MessageAlert,
		Status:      alert.AlertText,
		WindowStart: e.WindowStart.UTC().Format(time.RFC3339Nano),
		TriggeredAt: e.TriggeredAt.UTC().Format(time.RFC3339Nano),
		ClosedMs:    e.Closed().Milliseconds(),
		AvgEAR:      &ear,
		Model:       e.Model,
	})
}

// Notify broadcasts status and returns it unchanged.
func (h *AlertHub) Notify(status string) string {
	h.broadcast(Message{Type: MessageStatus, Status: status})
	return status
}

// Clients returns the number of connected websocket clients.
func (h *AlertHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *AlertHub) broadcast(m Message) {
	m.Timestamp = h.now().UnixMilli()
	msg, err := json.Marshal(m)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode websocket message")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			log.Debug().Err(err).Msg("Dropping websocket client")
			conn.Close()
			delete(h.clients, conn)
		}
	}
}
