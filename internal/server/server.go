// Package server wires the HTTP surface: webhook ingestion, health, and
// recompute triggers.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/outcomefi/vaultsync/internal/server/handler"
	"github.com/outcomefi/vaultsync/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port          int
	SigningSecret string
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health    *handler.HealthHandler
	Webhooks  *handler.WebhookHandler
	Recompute *handler.RecomputeHandler
}

// Server is the webhook ingestion and operations API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers all routes and builds the middleware chain. The
// signature check guards only the webhook endpoints; health and recompute are
// operator-facing and sit behind network controls instead.
func NewServer(cfg Config, handlers Handlers, logger *slog.Logger) *Server {
	verify := middleware.VerifySignature(cfg.SigningSecret)

	mux := http.NewServeMux()

	mux.Handle("POST /webhooks/vault-events", verify(http.HandlerFunc(handlers.Webhooks.VaultEvents)))
	mux.Handle("POST /webhooks/genesis-events", verify(http.HandlerFunc(handlers.Webhooks.GenesisEvents)))

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("POST /api/recompute", handlers.Recompute.RecomputeAll)
	mux.HandleFunc("POST /api/recompute/{conditionId}", handlers.Recompute.RecomputeMarket)

	var h http.Handler = mux
	h = middleware.Logging(logger)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
