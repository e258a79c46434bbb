package cli

import (
	"context"
	"errors"
	"fmt"

	"budgetsync/internal/amqp"
	"budgetsync/internal/backend"
	"budgetsync/internal/config"
	blog "budgetsync/internal/log"
	"budgetsync/internal/services"
	"budgetsync/internal/storage"
)

// App bundles the components every command needs around one ledger.
type App struct {
	Config *config.Config
	Logger *blog.Logger
	Repo   *storage.SQLiteRepository
	Ledger *services.LedgerService
	// AMQP is nil when AMQP_URL is empty.
	AMQP *amqp.Client

	cleanup []func() error
}

// AppOptions selects how the ledger announces its commits.
type AppOptions struct {
	// Publish sends a sync request to the broker after each commit.
	Publish bool
	// Enqueue records each commit in the SQLite sync outbox.
	Enqueue bool
	// ReadThrough reloads the snapshot from SQLite on every call.
	ReadThrough bool
}

// NewApp opens storage, builds the configured remote and wires the ledger.
func NewApp(ctx context.Context, cfg *config.Config, logger *blog.Logger, opts AppOptions) (*App, error) {
	repo, err := OpenSQLite(cfg.SQLiteDBPath)
	if err != nil {
		return nil, err
	}
	app := &App{Config: cfg, Logger: logger, Repo: repo}
	app.cleanup = append(app.cleanup, repo.Close)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	res, err := backend.NewFactory(logger.WithComponent(blog.ComponentBackend).Logger).CreateRemote(ctx, backendCfg)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("create remote: %w", err)
	}
	if res.Cleanup != nil {
		app.cleanup = append(app.cleanup, res.Cleanup)
	}

	ledgerOpts := []services.LedgerOption{}
	if res.Remote != nil {
		ledgerOpts = append(ledgerOpts, services.WithRemote(res.Remote))
	}
	if opts.Enqueue {
		ledgerOpts = append(ledgerOpts, services.WithQueue(repo))
	}
	if opts.ReadThrough {
		ledgerOpts = append(ledgerOpts, services.WithReadThrough())
	}

	if cfg.AMQPEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without broker", blog.FieldError, err)
		} else {
			app.AMQP = client
			app.cleanup = append(app.cleanup, client.Close)
			if opts.Publish {
				ledgerOpts = append(ledgerOpts, services.WithPublisher(client))
			}
			logger.Info("Initialized AMQP client",
				"exchange", cfg.AMQPExchange,
				"queue", cfg.AMQPQueue)
		}
	}

	app.Ledger = services.NewLedgerService(repo, cfg.SnapshotKey, ledgerOpts...)
	logger.Info("Ledger ready",
		blog.FieldSnapshotKey, cfg.SnapshotKey,
		"backend", cfg.SyncBackend,
		"db_path", cfg.SQLiteDBPath)
	return app, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		if err := a.cleanup[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.cleanup = nil
	return errors.Join(errs...)
}

// ProcessorConfig maps the SYNC_* settings onto the processor defaults.
func ProcessorConfig(cfg *config.Config) services.SyncProcessorConfig {
	pc := services.DefaultSyncProcessorConfig()
	pc.PollInterval = cfg.SyncInterval
	pc.BatchSize = cfg.SyncBatchSize
	pc.MaxRetries = cfg.SyncMaxRetries
	return pc
}
