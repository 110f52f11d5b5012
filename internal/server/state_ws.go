package server

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/zero2005x/glasscam/internal/capture"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// sendBuffer is the per-client transition backlog. A client that falls this
// far behind is dropped rather than allowed to stall the capture worker.
const sendBuffer = 8

// StateHub broadcasts capture-controller state transitions to WebSocket
// clients, so the companion app can mirror capture progress live.
//
// All writes to a connection go through that client's writeLoop goroutine;
// Broadcast and the replay of the last transition only enqueue.
type StateHub struct {
	mu      sync.RWMutex
	clients map[*stateClient]bool
	last    capture.Transition
	hasLast bool
}

type stateClient struct {
	conn *websocket.Conn
	send chan capture.Transition
}

// NewStateHub creates an empty hub.
func NewStateHub() *StateHub {
	return &StateHub{clients: make(map[*stateClient]bool)}
}

// Broadcast enqueues a transition for all connected clients. Safe to call
// from the controller's worker goroutine; it never blocks on a client.
func (h *StateHub) Broadcast(t capture.Transition) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = t
	h.hasLast = true
	for c := range h.clients {
		select {
		case c.send <- t:
		default:
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// ServeHTTP handles WebSocket upgrade requests. The most recent transition is
// replayed to the new client through its writer.
func (h *StateHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}

	c := &stateClient{conn: conn, send: make(chan capture.Transition, sendBuffer)}

	h.mu.Lock()
	h.clients[c] = true
	if h.hasLast {
		// The channel is fresh and buffered; this cannot block.
		c.send <- h.last
	}
	h.mu.Unlock()

	go h.writeLoop(c)
	defer h.drop(c)

	// Block reading until the client goes away; inbound messages are ignored.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writeLoop is the sole writer on the client's connection.
func (h *StateHub) writeLoop(c *stateClient) {
	for t := range c.send {
		if err := c.conn.WriteJSON(t); err != nil {
			h.drop(c)
			break
		}
	}
	c.conn.Close()
}

func (h *StateHub) drop(c *stateClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	c.conn.Close()
}
