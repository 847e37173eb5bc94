// Package events pushes session change notifications to websocket
// clients, so a session list UI can refresh without polling.
package events

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/naila/sayra/internal/observability"
)

const (
	writeTimeout  = 10 * time.Second
	sendQueueSize = 16
)

// Event is a server-initiated notification
type Event struct {
	Event     string      `json:"event"`
	Data      interface{} `json:"data"`
	Seq       int64       `json:"seq"`
	Timestamp int64       `json:"timestamp"`
}

// Client is one connected websocket listener
type Client struct {
	ID          string
	ConnectedAt time.Time

	conn      *websocket.Conn
	send      chan Event
	closeOnce sync.Once
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.send)
		c.conn.Close()
	})
}

// Hub manages websocket clients and broadcasts events to all of them
type Hub struct {
	upgrader websocket.Upgrader
	logger   zerolog.Logger
	seq      int64

	mu      sync.RWMutex
	clients map[string]*Client
}

// NewHub creates an event hub
func NewHub(logger zerolog.Logger) *Hub {
	observability.EnsureRegistered()
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger:  logger.With().Str("module", "events").Logger(),
		clients: make(map[string]*Client),
	}
}

// HandleWS upgrades an HTTP request to a websocket event subscription
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	clientID, _ := gonanoid.New()
	client := &Client{
		ID:          clientID,
		ConnectedAt: time.Now(),
		conn:        conn,
		send:        make(chan Event, sendQueueSize),
	}

	h.mu.Lock()
	h.clients[clientID] = client
	count := len(h.clients)
	h.mu.Unlock()
	observability.SetConnectedClients(count)

	h.logger.Info().
		Str("clientId", clientID).
		Str("ip", r.RemoteAddr).
		Msg("Event client connected")

	go h.writePump(client)
	go h.readPump(client)
}

// Publish broadcasts an event to all connected clients. It never
// blocks: a client whose queue is full misses the event.
func (h *Hub) Publish(event string, data interface{}) {
	msg := Event{
		Event:     event,
		Data:      data,
		Seq:       atomic.AddInt64(&h.seq, 1),
		Timestamp: time.Now().UnixMilli(),
	}

	// Sends happen under the read lock and closes under the write
	// lock, so a client channel is never closed mid-send. The sends
	// are non-blocking, so holding the lock here is cheap.
	h.mu.RLock()
	for _, client := range h.clients {
		select {
		case client.send <- msg:
		default:
			h.logger.Debug().
				Str("clientId", client.ID).
				Str("event", event).
				Msg("Client queue full, event dropped")
		}
	}
	h.mu.RUnlock()

	observability.RecordBroadcast()
}

// Count returns the number of connected clients
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects all clients
func (h *Hub) Close() {
	h.mu.Lock()
	for _, client := range h.clients {
		client.close()
	}
	h.clients = make(map[string]*Client)
	h.mu.Unlock()

	observability.SetConnectedClients(0)
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	delete(h.clients, client.ID)
	client.close()
	count := len(h.clients)
	h.mu.Unlock()

	observability.SetConnectedClients(count)

	h.logger.Info().Str("clientId", client.ID).Msg("Event client disconnected")
}

func (h *Hub) writePump(client *Client) {
	for msg := range client.send {
		client.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := client.conn.WriteJSON(msg); err != nil {
			h.remove(client)
			return
		}
	}
}

// readPump discards inbound frames; the subscription is one-way. It
// exists to notice the peer going away.
func (h *Hub) readPump(client *Client) {
	defer h.remove(client)

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Str("clientId", client.ID).Msg("WebSocket read error")
			}
			return
		}
	}
}
