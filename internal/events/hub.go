// Package events fans prediction lifecycle events out to websocket viewers.
package events

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event types
const (
	PredictionCreated = "prediction.created"
	PredictionDeleted = "prediction.deleted"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = (pongWait * 9) / 10
	readLimit    = 512
	queueSize    = 64
)

// Event is the JSON message sent to viewers
type Event struct {
	Type         string    `json:"type"`
	PredictionID int64     `json:"prediction_id"`
	DetectType   string    `json:"detect_type,omitempty"`
	ResultCount  int       `json:"result_count"`
	Success      bool      `json:"success"`
	Timestamp    time.Time `json:"timestamp"`
}

// Publisher accepts events for delivery
type Publisher interface {
	Publish(Event)
}

// Hub tracks connected viewers and broadcasts events to them. Run must be
// started before connections are served.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	mutex      sync.RWMutex
	upgrader   websocket.Upgrader
}

// NewHub creates a hub. With no allowed origins every origin is accepted.
func NewHub(allowedOrigins []string) *Hub {
	h := &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, queueSize),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(r *http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// non-browser clients send no Origin
		return origin == "" || set[origin]
	}
}

// Run serves registrations and broadcasts until ctx is done, then closes
// every connection.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mutex.Unlock()
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mutex.Unlock()
			log.Printf("Viewer connected. Total: %d", count)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			count := len(h.clients)
			h.mutex.Unlock()
			log.Printf("Viewer disconnected. Total: %d", count)

		case message := <-h.broadcast:
			h.send(func(client *websocket.Conn) error {
				client.SetWriteDeadline(time.Now().Add(writeWait))
				return client.WriteMessage(websocket.TextMessage, message)
			})

		case <-ticker.C:
			h.send(func(client *websocket.Conn) error {
				return client.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			})
		}
	}
}

// send writes to every client and drops the ones that fail
func (h *Hub) send(write func(*websocket.Conn) error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for client := range h.clients {
		if err := write(client); err != nil {
			log.Printf("Error sending to viewer: %v", err)
			delete(h.clients, client)
			client.Close()
		}
	}
}

// Register adds a connection to the broadcast set
func (h *Hub) Register(client *websocket.Conn) {
	select {
	case h.register <- client:
	case <-h.done:
		client.Close()
	}
}

// Unregister removes and closes a connection
func (h *Hub) Unregister(client *websocket.Conn) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Publish queues an event for broadcast. Events are dropped when the queue
// is full so callers never block on slow viewers.
func (h *Hub) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	message, err := json.Marshal(event)
	if err != nil {
		log.Printf("Error encoding event %s: %v", event.Type, err)
		return
	}
	select {
	case h.broadcast <- message:
	default:
		log.Printf("Event queue full, dropping %s for prediction %d", event.Type, event.PredictionID)
	}
}

// ClientCount returns the number of connected viewers
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades a viewer connection and keeps it registered until the
// peer goes away. Viewers only receive; incoming messages are discarded.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	connection, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}
	connection.SetReadLimit(readLimit)
	connection.SetReadDeadline(time.Now().Add(pongWait))
	connection.SetPongHandler(func(string) error {
		connection.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	h.Register(connection)
	defer h.Unregister(connection)

	for {
		if _, _, err := connection.ReadMessage(); err != nil {
			return
		}
	}
}
