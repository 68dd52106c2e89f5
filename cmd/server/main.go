package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"convertly/internal/converter"
	"convertly/internal/server/api"
	"convertly/internal/server/config"
	"convertly/internal/server/database"
	"convertly/internal/server/service"
	"convertly/internal/server/storage"
)

func main() {
	// Structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load config
	cfg := config.Load()
	slog.Info("configuration loaded",
		"port", cfg.Port,
		"root_dir", cfg.RootDir,
		"max_file_size", cfg.MaxFileSize,
		"upload_retention", cfg.UploadRetention,
	)

	// Connect to database
	ctx := context.Background()
	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Run migrations
	if err := db.RunMigrations(ctx); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("database migrations complete")

	// Initialize storage
	store := storage.NewFileSystemStore(cfg.RootDir, cfg.UploadDir(), cfg.OutputDir())
	if err := store.EnsureDir(); err != nil {
		slog.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	slog.Info("file storage initialized", "uploads", cfg.UploadDir(), "outputs", store.OutputDir())

	// Background workers share one lifetime
	bgCtx, bgCancel := context.WithCancel(context.Background())

	hub := api.NewHub()
	go hub.Run(bgCtx)

	// Initialize repository and service
	repo := database.NewRepository(db)
	conv := converter.New(store.OutputDir())
	svc := service.NewConversionService(repo, store, conv, cfg, hub)

	// Start cleanup service
	cleanup := storage.NewCleanupService(repo, store, cfg.CleanupInterval)
	cleanup.Start(bgCtx)

	// Setup HTTP router
	handler := api.NewHandler(svc, db)
	e := api.SetupRouter(bgCtx, handler, hub, cfg)

	// Start server in a goroutine
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Port)
		slog.Info("starting server", "addr", addr)
		if err := e.Start(addr); err != nil {
			slog.Info("server stopped", "reason", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutting down", "signal", sig)

	// Stop accepting new requests, finish in-flight with 30s timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// Stop cleanup service and event hub
	bgCancel()
	cleanup.Wait()

	slog.Info("server exited cleanly")
}
