package storage

import (
	"context"
)

const getSnapshot = `
SELECT key, body, revision, updated_at FROM snapshots WHERE key = ?
`

func (q *Queries) GetSnapshot(ctx context.Context, key string) (Snapshot, error) {
	row := q.db.QueryRowContext(ctx, getSnapshot, key)
	var i Snapshot
	err := row.Scan(&i.Key, &i.Body, &i.Revision, &i.UpdatedAt)
	return i, err
}

const upsertSnapshot = `
INSERT INTO snapshots (key, body, revision, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (key) DO UPDATE SET
    body = excluded.body,
    revision = excluded.revision,
    updated_at = excluded.updated_at
`

type UpsertSnapshotParams struct {
	Key       string
	Body      string
	Revision  int64
	UpdatedAt int64
}

func (q *Queries) UpsertSnapshot(ctx context.Context, arg UpsertSnapshotParams) error {
	_, err := q.db.ExecContext(ctx, upsertSnapshot, arg.Key, arg.Body, arg.Revision, arg.UpdatedAt)
	return err
}

const enqueueSync = `
INSERT INTO sync_queue (snapshot_key, revision, reason, status, next_attempt_at, created_at)
SELECT ?1, ?2, ?3, 'pending', ?4, ?4
WHERE NOT EXISTS (
    SELECT 1 FROM sync_queue WHERE snapshot_key = ?1 AND status = 'pending'
)
`

type EnqueueSyncParams struct {
	SnapshotKey string
	Revision    int64
	Reason      string
	Now         int64
}

// EnqueueSync adds a pending request unless one is already waiting for the
// same key. It reports the number of rows inserted.
func (q *Queries) EnqueueSync(ctx context.Context, arg EnqueueSyncParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, enqueueSync, arg.SnapshotKey, arg.Revision, arg.Reason, arg.Now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const bumpPendingRevision = `
UPDATE sync_queue SET revision = MAX(revision, ?2)
WHERE snapshot_key = ?1 AND status = 'pending'
`

func (q *Queries) BumpPendingRevision(ctx context.Context, snapshotKey string, revision int64) error {
	_, err := q.db.ExecContext(ctx, bumpPendingRevision, snapshotKey, revision)
	return err
}

const dequeueSyncBatch = `
SELECT id, snapshot_key, revision, reason, status, attempts, last_error, next_attempt_at, created_at, processed_at
FROM sync_queue
WHERE status = 'pending' AND next_attempt_at <= ?
ORDER BY id
LIMIT ?
`

type DequeueSyncBatchParams struct {
	Now   int64
	Limit int64
}

func (q *Queries) DequeueSyncBatch(ctx context.Context, arg DequeueSyncBatchParams) ([]SyncQueue, error) {
	rows, err := q.db.QueryContext(ctx, dequeueSyncBatch, arg.Now, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []SyncQueue
	for rows.Next() {
		var i SyncQueue
		if err := rows.Scan(
			&i.ID,
			&i.SnapshotKey,
			&i.Revision,
			&i.Reason,
			&i.Status,
			&i.Attempts,
			&i.LastError,
			&i.NextAttemptAt,
			&i.CreatedAt,
			&i.ProcessedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const markSyncProcessing = `
UPDATE sync_queue SET status = 'processing' WHERE id = ? AND status = 'pending'
`

func (q *Queries) MarkSyncProcessing(ctx context.Context, id int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, markSyncProcessing, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const markSyncComplete = `
UPDATE sync_queue SET status = 'completed', processed_at = ?, last_error = NULL WHERE id = ?
`

func (q *Queries) MarkSyncComplete(ctx context.Context, id, now int64) error {
	_, err := q.db.ExecContext(ctx, markSyncComplete, now, id)
	return err
}

const markSyncFailed = `
UPDATE sync_queue
SET status = 'failed', attempts = attempts + 1, last_error = ?, processed_at = ?
WHERE id = ?
`

type MarkSyncFailedParams struct {
	ID        int64
	LastError string
	Now       int64
}

func (q *Queries) MarkSyncFailed(ctx context.Context, arg MarkSyncFailedParams) error {
	_, err := q.db.ExecContext(ctx, markSyncFailed, arg.LastError, arg.Now, arg.ID)
	return err
}

const incrementSyncAttempt = `
UPDATE sync_queue
SET status = 'pending', attempts = attempts + 1, last_error = ?, next_attempt_at = ?
WHERE id = ?
`

type IncrementSyncAttemptParams struct {
	ID            int64
	LastError     string
	NextAttemptAt int64
}

func (q *Queries) IncrementSyncAttempt(ctx context.Context, arg IncrementSyncAttemptParams) error {
	_, err := q.db.ExecContext(ctx, incrementSyncAttempt, arg.LastError, arg.NextAttemptAt, arg.ID)
	return err
}

const resetStaleProcessing = `
UPDATE sync_queue SET status = 'pending' WHERE status = 'processing'
`

func (q *Queries) ResetStaleProcessing(ctx context.Context) (int64, error) {
	result, err := q.db.ExecContext(ctx, resetStaleProcessing)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const cleanupCompletedSyncs = `
DELETE FROM sync_queue WHERE status = 'completed' AND processed_at < ?
`

func (q *Queries) CleanupCompletedSyncs(ctx context.Context, cutoff int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, cleanupCompletedSyncs, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const retryFailedSyncs = `
UPDATE sync_queue SET status = 'pending', attempts = 0, next_attempt_at = ? WHERE status = 'failed'
`

func (q *Queries) RetryFailedSyncs(ctx context.Context, now int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, retryFailedSyncs, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const getSyncQueueStats = `
SELECT
    COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN status = 'processing' THEN 1 ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)
FROM sync_queue
`

func (q *Queries) GetSyncQueueStats(ctx context.Context) (GetSyncQueueStatsRow, error) {
	row := q.db.QueryRowContext(ctx, getSyncQueueStats)
	var i GetSyncQueueStatsRow
	err := row.Scan(&i.Pending, &i.Processing, &i.Completed, &i.Failed)
	return i, err
}
