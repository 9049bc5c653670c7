package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"resourcehub/internal/server/api"
	"resourcehub/internal/server/config"
	"resourcehub/internal/server/convert"
	"resourcehub/internal/server/database"
	"resourcehub/internal/server/ingest"
	"resourcehub/internal/server/service"
	"resourcehub/internal/server/storage"
)

func main() {
	// Structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load config
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("configuration loaded",
		"port", cfg.Port,
		"storage_path", cfg.StoragePath,
		"staging_path", cfg.StagingPath,
		"max_file_size", cfg.MaxFileSize,
		"convert_timeout", cfg.ConvertTimeout,
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
	if err := db.RunMigrations(); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("database migrations complete")

	// Initialize storage
	store := storage.NewFileSystemStore(cfg.StoragePath)
	if err := store.EnsureDir(); err != nil {
		slog.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	staging := storage.NewStaging(cfg.StagingPath)
	if err := staging.EnsureDir(); err != nil {
		slog.Error("failed to initialize staging area", "error", err)
		os.Exit(1)
	}
	slog.Info("file storage initialized", "path", cfg.StoragePath, "staging", cfg.StagingPath)

	// Conversion tools
	converter := convert.NewConverter(
		staging,
		&convert.Pandoc{Path: cfg.PandocPath},
		&convert.Wkhtmltopdf{Path: cfg.WkhtmltopdfPath},
		&convert.PDF2Docx{Python: cfg.PythonPath, Script: cfg.PDF2DocxScript},
		cfg.ConvertTimeout,
	)
	toolStatus := convert.NewStatusCache(converter, cfg.ToolStatusTTL, 10*time.Second)
	for _, s := range toolStatus.Refresh(ctx) {
		if s.Available() {
			slog.Info("converter available", "tool", s.Tool, "version", s.Detail)
		} else {
			slog.Warn("converter unavailable", "tool", s.Tool, "error", s.Err)
		}
	}

	// Initialize repository and service
	repo := database.NewRepository(db)
	ledger := storage.NewStagedLedger()
	svc := service.NewArtifactService(
		repo,
		store,
		staging,
		ledger,
		ingest.NewValidator(cfg.MaxFileSize),
		converter,
	)

	// Start staging sweeper
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	sweeper := storage.NewStagingSweeper(staging, ledger, cfg.StagingSweepInterval, cfg.StagingMaxAge)
	sweeper.Start(sweepCtx)

	// Setup HTTP router
	handler := api.NewHandler(svc, db, toolStatus)
	e := api.SetupRouter(handler, cfg)

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

	// Stop accepting new requests, finish in-flight with the conversion timeout plus slack
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ConvertTimeout+30*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// Stop staging sweeper
	sweepCancel()
	sweeper.Wait()

	slog.Info("server exited cleanly")
}
