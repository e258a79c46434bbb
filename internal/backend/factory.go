package backend

import (
	"context"
	"fmt"
	"log/slog"

	"budgetsync/internal/cache"
	gsheet "budgetsync/internal/sheets/google"
	"budgetsync/internal/sheets/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger}
}

// CreateRemote implements Factory.CreateRemote
func (f *DefaultFactory) CreateRemote(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case NoneBackend:
		f.logger.Info("No sync backend configured, running local only")
		return &Result{}, nil
	case MemoryBackend:
		return f.createMemoryRemote(config)
	case SheetsBackend:
		return f.createSheetsRemote(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createMemoryRemote(config Config) (*Result, error) {
	if config.SeedFile == "" {
		f.logger.Info("Initialized memory remote")
		return &Result{Remote: memory.New()}, nil
	}

	store, err := memory.NewFromFile(config.SeedFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize memory remote: %w", err)
	}
	f.logger.Info("Initialized memory remote", "seed_file", config.SeedFile)
	return &Result{Remote: store}, nil
}

func (f *DefaultFactory) createSheetsRemote(ctx context.Context, config Config) (*Result, error) {
	cli, err := gsheet.New(ctx, gsheet.Options{
		SpreadsheetID: config.GoogleSpreadsheetID,
		SheetName:     config.GoogleSheetName,
		CacheTTL:      config.CacheTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	f.logger.Info("Initialized Google Sheets remote",
		"sheet", config.GoogleSheetName,
		"cache_ttl", config.CacheTTL)

	cleanup := func() error {
		cli.InvalidateCache()
		return nil
	}
	if config.CacheTTL > 0 {
		sweeper := cache.NewManager()
		sweeper.Register(cli)
		sweeper.StartCleanup(config.CacheTTL)
		cleanup = func() error {
			sweeper.Stop()
			cli.InvalidateCache()
			return nil
		}
	}

	return &Result{Remote: cli, Cleanup: cleanup}, nil
}
