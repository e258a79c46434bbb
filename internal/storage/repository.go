package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     time.Now,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// LoadSnapshot returns the persisted blob for key. found is false when
// nothing was ever saved under it.
func (r *SQLiteRepository) LoadSnapshot(ctx context.Context, key string) (body []byte, found bool, err error) {
	row, err := r.queries.GetSnapshot(ctx, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get snapshot %s: %w", key, err)
	}
	return []byte(row.Body), true, nil
}

// SaveSnapshot replaces the blob stored under key.
func (r *SQLiteRepository) SaveSnapshot(ctx context.Context, key string, body []byte, revision int64) error {
	err := r.queries.UpsertSnapshot(ctx, UpsertSnapshotParams{
		Key:       key,
		Body:      string(body),
		Revision:  revision,
		UpdatedAt: r.now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("upsert snapshot %s: %w", key, err)
	}

	slog.DebugContext(ctx, "Snapshot persisted",
		"key", key,
		"revision", revision,
		"bytes", len(body))
	return nil
}

// EnqueueSync records a sync request for key. Requests coalesce: while one
// is pending for the same key, later calls only raise its revision.
func (r *SQLiteRepository) EnqueueSync(ctx context.Context, key string, revision int64, reason string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin enqueue tx: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	inserted, err := q.EnqueueSync(ctx, EnqueueSyncParams{
		SnapshotKey: key,
		Revision:    revision,
		Reason:      reason,
		Now:         r.now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("enqueue sync: %w", err)
	}
	if inserted == 0 {
		if err := q.BumpPendingRevision(ctx, key, revision); err != nil {
			return fmt.Errorf("bump pending revision: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit enqueue tx: %w", err)
	}

	slog.DebugContext(ctx, "Sync request queued",
		"key", key,
		"revision", revision,
		"reason", reason,
		"coalesced", inserted == 0)
	return nil
}

// DequeueSyncBatch returns up to limit pending items that are due.
func (r *SQLiteRepository) DequeueSyncBatch(ctx context.Context, limit int64) ([]SyncQueue, error) {
	items, err := r.queries.DequeueSyncBatch(ctx, DequeueSyncBatchParams{
		Now:   r.now().Unix(),
		Limit: limit,
	})
	if err != nil {
		return nil, fmt.Errorf("dequeue sync batch: %w", err)
	}
	return items, nil
}

// MarkSyncProcessing claims a pending item. It fails when another
// processor claimed it first.
func (r *SQLiteRepository) MarkSyncProcessing(ctx context.Context, id int64) error {
	n, err := r.queries.MarkSyncProcessing(ctx, id)
	if err != nil {
		return fmt.Errorf("mark sync processing: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("sync item %d is no longer pending", id)
	}
	return nil
}

func (r *SQLiteRepository) MarkSyncComplete(ctx context.Context, id int64) error {
	if err := r.queries.MarkSyncComplete(ctx, id, r.now().Unix()); err != nil {
		return fmt.Errorf("mark sync complete: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) MarkSyncFailed(ctx context.Context, id int64, lastErr string) error {
	err := r.queries.MarkSyncFailed(ctx, MarkSyncFailedParams{
		ID:        id,
		LastError: lastErr,
		Now:       r.now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("mark sync failed: %w", err)
	}
	slog.WarnContext(ctx, "Sync item marked as failed", "id", id, "error", lastErr)
	return nil
}

// IncrementSyncAttempt puts an item back in the queue, due after delay.
func (r *SQLiteRepository) IncrementSyncAttempt(ctx context.Context, id int64, lastErr string, delay time.Duration) error {
	err := r.queries.IncrementSyncAttempt(ctx, IncrementSyncAttemptParams{
		ID:            id,
		LastError:     lastErr,
		NextAttemptAt: r.now().Add(delay).Unix(),
	})
	if err != nil {
		return fmt.Errorf("increment sync attempt: %w", err)
	}
	return nil
}

// ResetStaleProcessing returns items left in processing by a crashed
// processor to the queue.
func (r *SQLiteRepository) ResetStaleProcessing(ctx context.Context) error {
	n, err := r.queries.ResetStaleProcessing(ctx)
	if err != nil {
		return fmt.Errorf("reset stale processing: %w", err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "Reset stale sync items", "count", n)
	}
	return nil
}

func (r *SQLiteRepository) CleanupCompletedSyncs(ctx context.Context, olderThan time.Time) error {
	n, err := r.queries.CleanupCompletedSyncs(ctx, olderThan.Unix())
	if err != nil {
		return fmt.Errorf("cleanup completed syncs: %w", err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "Cleaned up completed sync items", "count", n)
	}
	return nil
}

func (r *SQLiteRepository) RetryFailedSyncs(ctx context.Context) error {
	n, err := r.queries.RetryFailedSyncs(ctx, r.now().Unix())
	if err != nil {
		return fmt.Errorf("retry failed syncs: %w", err)
	}
	slog.InfoContext(ctx, "Failed sync items requeued", "count", n)
	return nil
}

func (r *SQLiteRepository) GetSyncQueueStats(ctx context.Context) (*GetSyncQueueStatsRow, error) {
	stats, err := r.queries.GetSyncQueueStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("get sync queue stats: %w", err)
	}
	return &stats, nil
}
