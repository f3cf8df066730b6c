package http

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"
	"vn.io.arda/realtime/internal/application"
	"vn.io.arda/realtime/internal/domain"
	"vn.io.arda/realtime/internal/infrastructure/memory"
)

// SSE event names.
const (
	EventConnected    = "connected"
	EventNotification = "notification"
	EventAlert        = "alert"
	EventStatus       = "status"
)

// Client represents a connected SSE client.
type Client struct {
	send chan []byte
}

// StatusPayload is the data of a status event.
type StatusPayload struct {
	Status    string `json:"status"`
	Connected bool   `json:"connected"`
}

// Hub fans coordinator output out to every open stream of the local UI.
// It is the coordinator's Notifier and the store's Alerter.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
}

var (
	_ application.Notifier = (*Hub)(nil)
	_ memory.Alerter       = (*Hub)(nil)
)

// NewHub creates a new SSE Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*Client]struct{})}
}

// Register adds a new SSE client.
func (h *Hub) Register(send chan []byte) *Client {
	c := &Client{send: send}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	log.Debug().Msg("SSE client connected")
	return c
}

// Unregister removes an SSE client.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()

	log.Debug().Msg("SSE client disconnected")
}

// Broadcast pushes an admitted notification.
func (h *Hub) Broadcast(n domain.Notification) {
	h.publish(buildSSEMessage(EventNotification, n))
}

// Alert pushes a transient alert. Alerts are not replayed to late clients.
func (h *Hub) Alert(n domain.Notification) {
	h.publish(buildSSEMessage(EventAlert, n))
}

// BroadcastStatus pushes a transport status change.
func (h *Hub) BroadcastStatus(status string, connected bool) {
	h.publish(buildSSEMessage(EventStatus, StatusPayload{Status: status, Connected: connected}))
}

// ConnectedCount returns the total number of connected SSE clients.
func (h *Hub) ConnectedCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) publish(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			// Client is slow, skip
			log.Warn().Msg("SSE client send buffer full, skipping")
		}
	}
}

// buildSSEMessage formats v as one SSE frame.
func buildSSEMessage(event string, v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		b = []byte("{}")
	}
	return []byte("event: " + event + "\ndata: " + string(b) + "\n\n")
}
