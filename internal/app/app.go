// Package app provides the top-level application lifecycle management for the
// vault sync service. It wires together the stores, cache, blob storage, and
// notification channels, builds the reconciliation engine and the HTTP
// server, and runs until the context is cancelled.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/outcomefi/vaultsync/internal/chain"
	"github.com/outcomefi/vaultsync/internal/config"
	"github.com/outcomefi/vaultsync/internal/engine"
	"github.com/outcomefi/vaultsync/internal/server"
	"github.com/outcomefi/vaultsync/internal/server/handler"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 15 * time.Second

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, starts the HTTP server, and blocks until the
// context is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("log_level", a.cfg.LogLevel),
		slog.Int("port", a.cfg.Server.Port),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	decoder := chain.NewDecoder(a.cfg.Chain.ManagerAddress, a.cfg.Chain.GenesisAddress)

	router := engine.NewRouter(
		deps.MarketStore,
		deps.ActivityStore,
		deps.PositionStore,
		deps.MarketCache,
		deps.Notifier,
		a.logger,
	)
	replayer := engine.NewReplayer(
		deps.MarketStore,
		deps.ActivityStore,
		deps.MarketCache,
		deps.LockManager,
		deps.Notifier,
		a.logger,
	)

	srv := server.NewServer(
		server.Config{
			Port:          a.cfg.Server.Port,
			SigningSecret: a.cfg.Webhook.SigningSecret,
		},
		server.Handlers{
			Health:    handler.NewHealthHandler(a.logger),
			Webhooks:  handler.NewWebhookHandler(decoder, router, deps.BlobWriter, a.logger),
			Recompute: handler.NewRecomputeHandler(replayer, a.logger),
		},
		a.logger,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
