package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mcclellann/pawnledger/pkg/config"
	"github.com/mcclellann/pawnledger/pkg/ledger"
	"github.com/mcclellann/pawnledger/pkg/logging"
	"github.com/mcclellann/pawnledger/pkg/metrics"
	"github.com/mcclellann/pawnledger/pkg/store"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.Init("pawnledger", cfg.LogLevel, cfg.AppEnv)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	storage, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer storage.Close()

	server := NewServer(storage, metrics.New(), ledger.WithInterestTolerance(cfg.InterestTolerance()))

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      server.Routes(cfg.CORSAllowedOrigins),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", httpServer.Addr, "db_driver", cfg.DBDriver)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	logger.Info("server stopped")
	return nil
}

func openStorage(ctx context.Context, cfg *config.Config) (store.Storage, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		if err := store.RunMigrations(cfg.DatabaseURL); err != nil {
			return nil, err
		}
		return store.NewPostgresStore(ctx, cfg.DatabaseURL, store.PoolConfig{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: cfg.DBConnMaxLifetime,
		})
	default:
		return store.NewSQLiteStore(cfg.SQLitePath)
	}
}
