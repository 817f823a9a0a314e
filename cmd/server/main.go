package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/sqlview/internal/config"
	"github.com/JonMunkholm/sqlview/internal/core"
	"github.com/JonMunkholm/sqlview/internal/logging"
	"github.com/JonMunkholm/sqlview/internal/scratch"
	"github.com/JonMunkholm/sqlview/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	store := scratch.New(cfg.Scratch.ScratchDir(), cfg.Scratch.Retain)
	if cfg.Scratch.Retain {
		slog.Warn("scratch retention enabled, uploads are kept until swept", "dir", store.Root())
	}

	service := core.NewService(cfg, store)

	sweeper, err := scratch.NewSweeper(store, cfg.Scratch.SweepSchedule, cfg.Scratch.MaxAge)
	if err != nil {
		slog.Error("failed to create scratch sweeper", "error", err)
		os.Exit(1)
	}
	sweeper.Start()

	server := web.NewServer(service, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
		return
	case <-ctx.Done():
	}

	slog.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Stop accepting uploads first, then let in-flight ones finish.
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}

	if status := service.UploadLimiterStatus(); status.Active > 0 {
		slog.Info("waiting for uploads to complete", "active", status.Active)
		if err := service.WaitForUploads(shutdownCtx); err != nil {
			slog.Warn("uploads did not complete in time", "error", err)
		}
	}

	sweeper.Stop(shutdownCtx)
	slog.Info("server stopped")
}
