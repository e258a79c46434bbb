package cli

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"budgetsync/internal/config"
	"budgetsync/internal/core"
	blog "budgetsync/internal/log"
)

func TestNewAppMemoryBackend(t *testing.T) {
	cfg := &config.Config{
		SQLiteDBPath:   filepath.Join(t.TempDir(), "budget.db"),
		SnapshotKey:    "default",
		SyncBackend:    config.BackendMemory,
		SyncBatchSize:  10,
		SyncInterval:   time.Second,
		SyncMaxRetries: 3,
	}
	logger := blog.New(blog.Config{Output: io.Discard})
	ctx := context.Background()

	app, err := NewApp(ctx, cfg, logger, AppOptions{Enqueue: true})
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	defer app.Close()

	if app.AMQP != nil {
		t.Error("AMQP client must be nil without AMQP_URL")
	}

	if _, err := app.Ledger.SaveAccount(ctx, core.Account{Name: "Cash", Type: core.AccountCash}); err != nil {
		t.Fatalf("SaveAccount() error = %v", err)
	}
	stats, err := app.Repo.GetSyncQueueStats(ctx)
	if err != nil {
		t.Fatalf("GetSyncQueueStats() error = %v", err)
	}
	if stats.Pending != 1 {
		t.Errorf("pending sync requests = %d, want 1", stats.Pending)
	}

	result, err := app.Ledger.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if !result.Pushed {
		t.Error("first sync should seed the memory remote")
	}

	if err := app.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestNewAppRejectsUnknownBackend(t *testing.T) {
	cfg := &config.Config{
		SQLiteDBPath: filepath.Join(t.TempDir(), "budget.db"),
		SnapshotKey:  "default",
		SyncBackend:  "ftp",
	}
	if _, err := NewApp(context.Background(), cfg, blog.New(blog.Config{Output: io.Discard}), AppOptions{}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
