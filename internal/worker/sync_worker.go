package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"budgetsync/internal/amqp"
	blog "budgetsync/internal/log"
	"budgetsync/internal/services"
	"budgetsync/internal/sheets"
)

// Ledger is the part of services.LedgerService the worker drives.
type Ledger interface {
	Key() string
	Sync(ctx context.Context) (services.SyncResult, error)
}

// SyncWorker turns broker messages into reconciliations. With a queue the
// request is recorded in the SQLite outbox and the SyncProcessor does the
// work; without one the worker syncs inline.
type SyncWorker struct {
	ledger Ledger
	queue  services.SyncEnqueuer
}

func NewSyncWorker(ledger Ledger, queue services.SyncEnqueuer) *SyncWorker {
	return &SyncWorker{ledger: ledger, queue: queue}
}

// HandleSyncMessage processes a single sync request from AMQP. Messages for
// other snapshot keys are acknowledged and ignored.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.SyncRequestMessage) error {
	if msg.SnapshotKey != w.ledger.Key() {
		slog.DebugContext(ctx, "Ignoring sync request for another snapshot",
			blog.FieldSnapshotKey, msg.SnapshotKey)
		return nil
	}

	slog.InfoContext(ctx, "Processing sync message",
		"id", msg.ID,
		blog.FieldRevision, msg.Revision,
		blog.FieldReason, msg.Reason)

	return w.request(ctx, msg.Revision, msg.Reason)
}

// StartupSync requests one reconciliation when the worker boots, in case
// messages were lost while it was down.
func (w *SyncWorker) StartupSync(ctx context.Context) error {
	return w.request(ctx, 0, amqp.ReasonStartup)
}

func (w *SyncWorker) request(ctx context.Context, revision int64, reason string) error {
	if w.queue != nil {
		if err := w.queue.EnqueueSync(ctx, w.ledger.Key(), revision, reason); err != nil {
			return fmt.Errorf("enqueue sync: %w", err)
		}
		return nil
	}

	result, err := w.ledger.Sync(ctx)
	if errors.Is(err, sheets.ErrNotConfigured) {
		slog.WarnContext(ctx, "No remote configured, skipping sync", blog.FieldReason, reason)
		return nil
	}
	if err != nil {
		return fmt.Errorf("sync snapshot: %w", err)
	}
	slog.InfoContext(ctx, "Snapshot synced",
		blog.FieldRevision, result.Snapshot.Revision,
		"pushed", result.Pushed,
		"local_changed", result.LocalChanged)
	return nil
}

// RunEvery calls fn immediately and then on every tick until ctx is done.
// Errors are logged and do not stop the loop.
func RunEvery(ctx context.Context, interval time.Duration, name string, fn func(context.Context) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	run := func() {
		if err := fn(ctx); err != nil {
			slog.ErrorContext(ctx, "Periodic job failed", "job", name, blog.FieldError, err)
		}
	}

	run()
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Periodic job stopped", "job", name)
			return nil
		case <-ticker.C:
			run()
		}
	}
}
