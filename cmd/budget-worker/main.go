package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"budgetsync/internal/cli"
	blog "budgetsync/internal/log"
	"budgetsync/internal/services"
	"budgetsync/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Stdout, slog.LevelInfo)
	cfg := cli.LoadAndValidateConfig(logger)
	logger = cli.SetupLogger(os.Stdout, cfg.SlogLevel()).WithComponent(blog.ComponentWorker)

	logger.Info("Starting budget-worker")

	app, err := cli.NewApp(context.Background(), cfg, logger, cli.AppOptions{
		Enqueue:     true,
		ReadThrough: true,
	})
	if err != nil {
		logger.Error("Failed to initialize application", blog.FieldError, err)
		os.Exit(1)
	}
	defer app.Close()

	processor := services.NewSyncProcessor(app.Repo, app.Ledger, cli.ProcessorConfig(cfg))
	syncWorker := worker.NewSyncWorker(app.Ledger, app.Repo)
	recurring := services.NewRecurringProcessor(app.Ledger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)
	g, gctx := errgroup.WithContext(ctx)

	// Catch up on requests that were lost while the worker was down.
	if err := syncWorker.StartupSync(gctx); err != nil {
		logger.Error("Failed startup sync check", blog.FieldError, err)
	}

	g.Go(func() error {
		return processor.Run(gctx)
	})

	if app.AMQP != nil {
		g.Go(func() error {
			err := app.AMQP.ConsumeSyncRequests(gctx, syncWorker.HandleSyncMessage)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	} else {
		logger.Info("Skipping AMQP message consumption - no broker configured")
	}

	if cfg.RecurringInterval > 0 {
		g.Go(func() error {
			return worker.RunEvery(gctx, cfg.RecurringInterval, "recurring", func(ctx context.Context) error {
				_, err := recurring.ProcessDueExpenses(ctx, time.Now())
				return err
			})
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped with error", blog.FieldError, err)
		app.Close()
		os.Exit(1)
	}
	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
