package websocket

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/0xmhha/stealth-monitor-go/pkg/types"
)

const (
	// DefaultMaxClients is the maximum number of concurrent clients.
	DefaultMaxClients = 10000

	// broadcastBuffer is how many events may queue for fan-out before
	// new ones are dropped.
	broadcastBuffer = 256
)

// Hub fans processed stealth events out to the connected clients. Each
// client receives the kinds it subscribed to; clients that cannot keep
// up are disconnected.
type Hub struct {
	clients map[*Client]bool
	mu      sync.RWMutex

	register   chan *Client
	unregister chan *Client
	broadcast  chan *types.StealthEvent

	// done signals the Run goroutine to exit
	done chan struct{}

	maxClients int
	logger     *zap.Logger
}

// NewHub creates a hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *types.StealthEvent, broadcastBuffer),
		done:       make(chan struct{}),
		maxClients: DefaultMaxClients,
		logger:     logger,
	}
}

// Run runs the hub event loop. It exits when Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			return

		case client := <-h.register:
			h.mu.Lock()
			if len(h.clients) >= h.maxClients {
				h.mu.Unlock()
				h.logger.Warn("Max clients reached, rejecting connection",
					zap.Int("max_clients", h.maxClients))
				close(client.send)
				continue
			}
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug("Client registered",
				zap.Int("total_clients", h.ClientCount()))

		case client := <-h.unregister:
			h.removeClient(client)
			h.logger.Debug("Client unregistered",
				zap.Int("total_clients", h.ClientCount()))

		case event := <-h.broadcast:
			h.broadcastEvent(event)
		}
	}
}

// Broadcast enqueues an event for fan-out. It never blocks; when the
// queue is full the event is dropped, since the feed is best-effort.
func (h *Hub) Broadcast(event *types.StealthEvent) {
	select {
	case h.broadcast <- event:
	case <-h.done:
	default:
		h.logger.Warn("Broadcast queue full, dropping event",
			zap.String("event_id", event.ID().String()))
	}
}

// broadcastEvent sends one event to every subscribed client. Clients
// with a full send buffer are collected under the read lock and dropped
// after it is released.
func (h *Hub) broadcastEvent(event *types.StealthEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Failed to marshal event", zap.Error(err))
		return
	}
	frame, err := json.Marshal(Message{Type: "event", Payload: payload})
	if err != nil {
		h.logger.Error("Failed to marshal message", zap.Error(err))
		return
	}

	var slow []*Client
	sent := 0

	h.mu.RLock()
	for client := range h.clients {
		if !client.wants(event.Kind) {
			continue
		}
		select {
		case client.send <- frame:
			sent++
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.logger.Warn("Dropping slow client")
		h.removeClient(client)
	}

	h.logger.Debug("Event broadcast",
		zap.String("kind", string(event.Kind)),
		zap.Int("recipients", sent))
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

// add hands a client to the run loop. It reports false when the hub is
// already stopped.
func (h *Hub) add(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// remove detaches a client, tolerating a stopped hub.
func (h *Hub) remove(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stop exits the run loop and disconnects every client.
func (h *Hub) Stop() {
	close(h.done)

	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}

	h.logger.Info("Websocket hub stopped")
}
