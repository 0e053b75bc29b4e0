// Package statusfeed pushes sync lifecycle events to UI clients over
// WebSocket, feeding the status indicator without polling.
package statusfeed

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/kimhsiao/promptdeck/internal/logging"
	"github.com/kimhsiao/promptdeck/internal/sync/events"
)

// Wire message types.
const (
	TypeSyncStarted          = "sync.started"
	TypeSyncCompleted        = "sync.completed"
	TypeSyncFailed           = "sync.failed"
	TypeSyncConflictDetected = "sync.conflict_detected"
)

// Envelope wraps every message sent to a client.
type Envelope struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data"`
	Timestamp int64                  `json:"timestamp"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The feed is a local desktop companion; only same-host clients.
		return r.Host == "localhost" || r.Host == "localhost:8090" || r.Host == "127.0.0.1:8090"
	},
}

// client is one connected WebSocket consumer.
type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// Hub fans sync events out to connected clients. It subscribes to the
// event bus on Run and translates each event into a wire envelope.
type Hub struct {
	bus *events.Bus

	mu      sync.RWMutex
	clients map[string]*client

	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	stop       chan struct{}
	done       chan struct{}
}

// NewHub creates a Hub bound to the given event bus.
func NewHub(bus *events.Bus) *Hub {
	return &Hub{
		bus:        bus,
		clients:    make(map[string]*client),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Run subscribes to the bus and serves clients until Close is called.
func (h *Hub) Run() {
	evCh, cancel := h.bus.Subscribe()
	defer cancel()
	defer close(h.done)

	for {
		select {
		case <-h.stop:
			h.mu.Lock()
			for id, c := range h.clients {
				close(c.send)
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return

		case ev, ok := <-evCh:
			if !ok {
				return
			}
			h.publish(Translate(ev))

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.id] = c
			total := len(h.clients)
			h.mu.Unlock()
			logging.Debug("Status feed client connected", map[string]interface{}{
				"client_id": c.id,
				"total":     total,
			})

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c.id]; ok {
				delete(h.clients, c.id)
				close(c.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			logging.Debug("Status feed client disconnected", map[string]interface{}{
				"client_id": c.id,
				"total":     total,
			})

		case msg := <-h.broadcast:
			h.mu.Lock()
			for id, c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Slow consumer, drop the connection.
					close(c.send)
					delete(h.clients, id)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Close stops the hub and disconnects all clients.
func (h *Hub) Close() {
	close(h.stop)
	<-h.done
}

func (h *Hub) publish(env Envelope) {
	raw, err := json.Marshal(env)
	if err != nil {
		logging.Error("Failed to marshal status feed envelope", err)
		return
	}
	select {
	case h.broadcast <- raw:
	default:
	}
}

// Translate maps a sync event onto its wire envelope.
func Translate(ev events.Event) Envelope {
	env := Envelope{Timestamp: ev.Timestamp, Data: map[string]interface{}{}}

	switch ev.Kind {
	case events.KindSyncStart:
		env.Type = TypeSyncStarted
		env.Data["status"] = "started"
	case events.KindSyncComplete:
		env.Type = TypeSyncCompleted
		env.Data["status"] = "completed"
		env.Data["remaining_items"] = ev.RemainingItems
	case events.KindSyncError:
		env.Type = TypeSyncFailed
		env.Data["status"] = "failed"
		env.Data["error"] = ev.Error
		if ev.EntityID != "" {
			env.Data["entity_type"] = string(ev.EntityType)
			env.Data["entity_id"] = ev.EntityID
		}
	case events.KindConflictDetected:
		env.Type = TypeSyncConflictDetected
		env.Data["conflict_count"] = ev.ConflictCount
	default:
		env.Type = string(ev.Kind)
	}
	return env
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Handler upgrades HTTP requests to WebSocket connections on the hub.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Error("Failed to upgrade status feed connection", err)
			return
		}

		c := &client{
			id:   uuid.New().String(),
			conn: conn,
			send: make(chan []byte, 256),
			hub:  h,
		}
		h.register <- c

		go c.writePump()
		go c.readPump()
	}
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Debug("Status feed read error", map[string]interface{}{
					"client_id": c.id,
					"error":     err.Error(),
				})
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
