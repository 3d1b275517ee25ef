// Package api exposes the monitor's operational HTTP surface: health
// and status endpoints, Prometheus metrics and a WebSocket feed of
// processed stealth events. The monitor itself never depends on this
// package; deployments that want no HTTP surface simply do not start it.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apimiddleware "github.com/0xmhha/stealth-monitor-go/pkg/api/middleware"
	"github.com/0xmhha/stealth-monitor-go/pkg/api/websocket"
	"github.com/0xmhha/stealth-monitor-go/pkg/eventbus"
	"github.com/0xmhha/stealth-monitor-go/pkg/monitor"
	"github.com/0xmhha/stealth-monitor-go/pkg/types"
)

// StatusSource reports the current state of the monitoring service.
// *monitor.Service satisfies this interface.
type StatusSource interface {
	Status() monitor.ServiceStatus
}

// Server represents the API server
type Server struct {
	config   *Config
	logger   *zap.Logger
	status   StatusSource
	router   *chi.Mux
	server   *http.Server
	wsServer *websocket.Server
	started  time.Time
}

// NewServer creates a new API server
func NewServer(config *Config, logger *zap.Logger, status StatusSource) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if status == nil {
		return nil, fmt.Errorf("status source is required")
	}

	s := &Server{
		config:  config,
		logger:  logger,
		status:  status,
		router:  chi.NewRouter(),
		started: time.Now(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:           config.Address(),
		Handler:        s.router,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}

	return s, nil
}

// setupMiddleware configures the middleware stack
func (s *Server) setupMiddleware() {
	// Recovery middleware (must be first)
	s.router.Use(apimiddleware.Recovery(s.logger))

	// Request ID middleware
	s.router.Use(middleware.RequestID)

	// Real IP middleware
	s.router.Use(middleware.RealIP)

	// Logger middleware
	s.router.Use(apimiddleware.Logger(s.logger))

	// Rate limiting middleware (if enabled)
	if s.config.EnableRateLimit {
		s.router.Use(apimiddleware.RateLimit(
			s.config.RateLimitPerSecond,
			s.config.RateLimitBurst,
			s.logger,
		))
		s.logger.Info("rate limiting enabled",
			zap.Float64("rate_per_second", s.config.RateLimitPerSecond),
			zap.Int("burst", s.config.RateLimitBurst),
		)
	}
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	// WebSocket feed - registered directly so the upgrade bypasses
	// response buffering
	if s.config.EnableWebSocket {
		s.wsServer = websocket.NewServer(s.logger)
		s.router.Get("/ws", s.wsServer.ServeHTTP)
		s.logger.Info("WebSocket feed enabled", zap.String("path", "/ws"))
	}

	// Health check endpoint
	s.router.Get("/health", s.handleHealth)

	// Full service status endpoint
	s.router.Get("/status", s.handleStatus)

	// API version endpoint
	s.router.Get("/version", s.handleVersion)

	// Prometheus metrics endpoint
	s.router.Handle("/metrics", promhttp.Handler())
}

// handleVersion handles the version endpoint
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"version":"1.0.0","name":"stealth-monitor-go"}`)
}

// Broadcast pushes a processed event to all subscribed WebSocket
// clients. It is a no-op when the feed is disabled.
func (s *Server) Broadcast(event *types.StealthEvent) {
	if s.wsServer != nil {
		s.wsServer.Broadcast(event)
	}
}

// eventSink adapts the WebSocket feed to the publisher interface so the
// monitor can fan events into it alongside the event bus.
type eventSink struct {
	server *Server
}

func (e eventSink) Publish(_ context.Context, event *types.StealthEvent) error {
	e.server.Broadcast(event)
	return nil
}

// Close is a no-op; the server owns the hub's shutdown.
func (e eventSink) Close() error {
	return nil
}

// EventSink returns a publisher that broadcasts events to WebSocket
// clients. Publishing never fails; events are dropped when the feed is
// disabled or the broadcast queue is full.
func (s *Server) EventSink() eventbus.Publisher {
	return eventSink{server: s}
}

// Start starts the API server
func (s *Server) Start() error {
	s.logger.Info("starting API server",
		zap.String("address", s.config.Address()),
		zap.Bool("websocket", s.config.EnableWebSocket),
	)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Stop gracefully stops the API server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping API server")

	// Stop WebSocket server first
	if s.wsServer != nil {
		s.wsServer.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("API server stopped gracefully")
	return nil
}

// Router returns the underlying chi router (for testing)
func (s *Server) Router() *chi.Mux {
	return s.router
}
