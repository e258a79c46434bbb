package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"budgetsync/internal/cli"
	"budgetsync/internal/config"
	apphttp "budgetsync/internal/http"
	blog "budgetsync/internal/log"
	"budgetsync/internal/services"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Stdout, slog.LevelInfo)
	cfg := cli.LoadAndValidateConfig(logger)
	logger = cli.SetupLogger(os.Stdout, cfg.SlogLevel())

	app, err := cli.NewApp(context.Background(), cfg, logger, cli.AppOptions{
		Publish:     true,
		Enqueue:     true,
		ReadThrough: true,
	})
	if err != nil {
		logger.Error("Failed to initialize application", blog.FieldError, err)
		os.Exit(1)
	}

	// Without a broker nobody else drains the outbox, so the server runs the
	// processor itself.
	var processor *services.SyncProcessor
	if app.AMQP == nil && cfg.SyncBackend != config.BackendNone {
		processor = services.NewSyncProcessor(app.Repo, app.Ledger, cli.ProcessorConfig(cfg))
	}

	srv := apphttp.NewServer(app.Ledger, apphttp.Config{
		Addr:     ":" + cfg.Port,
		Logger:   logger.WithComponent(blog.ComponentHTTP),
		Database: app.Repo,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", blog.FieldError, err)
		}
		if processor != nil {
			if err := processor.Stop(ctx); err != nil {
				logger.Error("Sync processor shutdown error", blog.FieldError, err)
			}
		}
		if err := app.Close(); err != nil {
			logger.Error("Cleanup error", blog.FieldError, err)
		}
	})

	if processor != nil {
		if err := processor.Start(ctx); err != nil {
			logger.Error("Failed to start sync processor", blog.FieldError, err)
			os.Exit(1)
		}
	}

	if _, err := app.Ledger.Load(ctx); err != nil {
		logger.Error("Failed to load local snapshot", blog.FieldError, err)
		os.Exit(1)
	}

	logger.Info("Starting budgetd", "port", cfg.Port, "backend", cfg.SyncBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", blog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
