// Package websocket streams processed stealth events to connected
// clients. Clients subscribe to event kinds over a small JSON protocol;
// the hub drops clients that cannot keep up with the feed.
package websocket

import (
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/0xmhha/stealth-monitor-go/internal/constants"
	"github.com/0xmhha/stealth-monitor-go/pkg/types"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  constants.DefaultWSReadBufferSize,
	WriteBufferSize: constants.DefaultWSWriteBufferSize,
	CheckOrigin: func(r *http.Request) bool {
		// The feed is read-only; deployments restrict origins upstream.
		return true
	},
}

// Server upgrades HTTP connections and owns the broadcast hub.
type Server struct {
	hub    *Hub
	logger *zap.Logger
}

// NewServer creates a server and starts its hub.
func NewServer(logger *zap.Logger) *Server {
	hub := NewHub(logger)
	go hub.Run()

	return &Server{
		hub:    hub,
		logger: logger,
	}
}

// ServeHTTP handles a WebSocket upgrade request.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Failed to upgrade connection", zap.Error(err))
		return
	}

	client := NewClient(s.hub, conn, s.logger)
	if !s.hub.add(client) {
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()

	s.logger.Debug("New websocket connection",
		zap.String("remote_addr", r.RemoteAddr))
}

// Broadcast enqueues an event for all subscribed clients.
func (s *Server) Broadcast(event *types.StealthEvent) {
	s.hub.Broadcast(event)
}

// Hub returns the underlying hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Stop disconnects all clients and stops the hub.
func (s *Server) Stop() {
	s.hub.Stop()
}
