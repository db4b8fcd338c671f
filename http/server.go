// Package http exposes training, run inspection and live monitoring over HTTP.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"linfit/monitor"
)

// Server wraps the HTTP server and its middleware chain.
type Server struct {
	server *http.Server
	config ServerConfig
	hub    *monitor.Hub
}

// ServerConfig holds server settings.
type ServerConfig struct {
	Port           int
	Timeout        time.Duration
	AllowedOrigins []string
}

// DefaultServerConfig returns sane defaults for local use.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:           8080,
		Timeout:        30 * time.Second,
		AllowedOrigins: []string{"*"},
	}
}

// NewServer builds a server with all routes registered. The hub carries live
// training events to websocket subscribers.
func NewServer(config ServerConfig, hub *monitor.Hub) *Server {
	mux := http.NewServeMux()

	RegisterHandlers(mux)
	RegisterTrainingHandlers(mux, monitor.NewTrainingMonitor(hub))
	mux.HandleFunc("GET /api/ws/monitor", hub.HandleWebSocket)

	chain := Chain(
		RecoveryMiddleware,
		LoggerMiddleware,
		CORSMiddleware(config.AllowedOrigins),
	)

	return &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", config.Port),
			Handler:      chain(mux),
			ReadTimeout:  config.Timeout,
			WriteTimeout: config.Timeout,
			IdleTimeout:  120 * time.Second,
		},
		config: config,
		hub:    hub,
	}
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	zap.S().Infof("starting HTTP server on %s", s.server.Addr)
	zap.S().Infof("websocket endpoint: ws://localhost%s/api/ws/monitor", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	zap.S().Info("shutting down HTTP server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}
