package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/terra-clan/exam-engine/internal/api"
	"github.com/terra-clan/exam-engine/internal/cleanup"
	"github.com/terra-clan/exam-engine/internal/config"
	"github.com/terra-clan/exam-engine/internal/examapi"
	"github.com/terra-clan/exam-engine/internal/languages"
	"github.com/terra-clan/exam-engine/internal/runner"
	"github.com/terra-clan/exam-engine/internal/session"
	"github.com/terra-clan/exam-engine/internal/snapshot"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	slog.Info("starting exam-engine",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"snapshot_backend", cfg.Snapshot.Backend,
	)

	// Create context for initialization
	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	// Initialize the snapshot backend
	snapshots, err := newSnapshotStore(initCtx, cfg)
	if err != nil {
		slog.Error("failed to create snapshot store", "error", err)
		os.Exit(1)
	}
	slog.Info("snapshot store connected", "backend", cfg.Snapshot.Backend)

	// Load language catalog
	catalog := languages.NewCatalog()
	if cfg.Languages.Dir != "" {
		if err := catalog.LoadFromDir(cfg.Languages.Dir); err != nil {
			slog.Warn("failed to load language definitions", "dir", cfg.Languages.Dir, "error", err)
		}
	}

	// External boundaries
	runnerClient := runner.NewHTTPClient(cfg.Runner.URL, runner.WithTimeout(cfg.Runner.Timeout))
	examClient := examapi.NewHTTPClient(cfg.ExamAPI.BaseURL, cfg.ExamAPI.Token)

	// Session manager
	manager := session.NewManager(examClient, runnerClient, snapshots, catalog)

	// Cleanup worker
	reaper := cleanup.NewReaper(manager, cfg.Cleanup.Interval, cfg.Cleanup.Retention)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager.Start(ctx)
	reaper.Start(ctx)

	// Setup HTTP server
	server := api.NewServer(cfg.Server, manager, catalog)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down gracefully...")

	// Cancel context to stop background workers and session timers
	cancel()

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// Tear down sessions (flushes pending workspace writes)
	manager.Close()

	if err := snapshots.Close(); err != nil {
		slog.Error("snapshot store close error", "error", err)
	}

	slog.Info("exam-engine stopped")
}

// newSnapshotStore builds the configured snapshot backend. The postgres
// backend runs pending migrations first.
func newSnapshotStore(ctx context.Context, cfg *config.Config) (snapshot.Store, error) {
	switch cfg.Snapshot.Backend {
	case "redis":
		return snapshot.NewRedisStore(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
	case "postgres":
		slog.Info("running database migrations", "dir", cfg.Database.MigrationsDir)
		if err := snapshot.MigrateFromDSN(ctx, cfg.Database.DSN, cfg.Database.MigrationsDir); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return snapshot.NewPostgresStore(ctx, snapshot.PostgresConfig{
			DSN:          cfg.Database.DSN,
			MaxOpenConns: int32(cfg.Database.MaxOpenConns),
			MaxIdleConns: int32(cfg.Database.MaxIdleConns),
		})
	case "memory":
		return snapshot.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown snapshot backend: %s", cfg.Snapshot.Backend)
	}
}
