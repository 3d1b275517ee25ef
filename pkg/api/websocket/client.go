package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/0xmhha/stealth-monitor-go/internal/constants"
	"github.com/0xmhha/stealth-monitor-go/pkg/types"
)

const (
	// writeWait bounds a single write to the peer.
	writeWait = constants.DefaultWSWriteTimeout

	// pingPeriod is how often pings go out; pongWait must exceed it.
	pingPeriod = constants.DefaultWSPingInterval
	pongWait   = 2 * constants.DefaultWSPingInterval

	// maxMessageSize bounds inbound frames; clients only send small
	// subscription messages.
	maxMessageSize = 512
)

// Client is one WebSocket connection and its kind subscriptions.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu    sync.RWMutex
	kinds map[types.EventKind]bool

	logger *zap.Logger
}

// NewClient wraps an upgraded connection. The client receives nothing
// until it subscribes.
func NewClient(hub *Hub, conn *websocket.Conn, logger *zap.Logger) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, constants.DefaultWSSendBuffer),
		kinds:  make(map[types.EventKind]bool),
		logger: logger,
	}
}

func (c *Client) wants(kind types.EventKind) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.kinds[kind]
}

func (c *Client) subscribe(kinds []types.EventKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, kind := range kinds {
		c.kinds[kind] = true
	}
}

func (c *Client) unsubscribe(kinds []types.EventKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, kind := range kinds {
		delete(c.kinds, kind)
	}
}

// ReadPump reads subscription messages until the connection drops, then
// detaches the client from the hub.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("Websocket read error", zap.Error(err))
			}
			break
		}

		c.handleMessage(message)
	}
}

// WritePump writes queued frames and keep-alive pings until the send
// channel closes or a write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)

			// Drain whatever else queued up into the same frame.
			n := len(c.send)
			for i := 0; i < n; i++ {
				_, _ = w.Write([]byte{'\n'})
				_, _ = w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(message []byte) {
	var msg Message
	if err := json.Unmarshal(message, &msg); err != nil {
		c.sendError("invalid message format")
		return
	}

	switch msg.Type {
	case "subscribe":
		c.handleSubscribe(msg.Payload)
	case "unsubscribe":
		c.handleUnsubscribe(msg.Payload)
	case "ping":
		c.sendMessage(Message{Type: "pong"})
	default:
		c.sendError("unknown message type: " + msg.Type)
	}
}

func (c *Client) handleSubscribe(payload json.RawMessage) {
	kinds, ok := c.decodeKinds(payload)
	if !ok {
		return
	}

	c.subscribe(kinds)
	c.sendSuccess("subscribed")
}

func (c *Client) handleUnsubscribe(payload json.RawMessage) {
	kinds, ok := c.decodeKinds(payload)
	if !ok {
		return
	}

	c.unsubscribe(kinds)
	c.sendSuccess("unsubscribed")
}

// decodeKinds parses a subscription payload. An empty or omitted kind
// list means both kinds.
func (c *Client) decodeKinds(payload json.RawMessage) ([]types.EventKind, bool) {
	var req SubscribeRequest
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			c.sendError("invalid subscription payload")
			return nil, false
		}
	}

	if len(req.Kinds) == 0 {
		return []types.EventKind{types.EventKindAnnouncement, types.EventKindRegistration}, true
	}

	for _, kind := range req.Kinds {
		if !kind.Valid() {
			c.sendError("unknown event kind: " + string(kind))
			return nil, false
		}
	}
	return req.Kinds, true
}

func (c *Client) sendMessage(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("Failed to marshal message", zap.Error(err))
		return
	}

	select {
	case c.send <- data:
	default:
		c.logger.Warn("Client send buffer full, dropping message")
	}
}

func (c *Client) sendError(errMsg string) {
	payload, _ := json.Marshal(ErrorMessage{Error: errMsg})
	c.sendMessage(Message{Type: "error", Payload: payload})
}

func (c *Client) sendSuccess(message string) {
	payload, _ := json.Marshal(SuccessMessage{Message: message})
	c.sendMessage(Message{Type: "success", Payload: payload})
}
