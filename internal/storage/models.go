package storage

import "database/sql"

// Sync queue statuses.
const (
	SyncStatusPending    = "pending"
	SyncStatusProcessing = "processing"
	SyncStatusCompleted  = "completed"
	SyncStatusFailed     = "failed"
)

type Snapshot struct {
	Key       string
	Body      string
	Revision  int64
	UpdatedAt int64
}

type SyncQueue struct {
	ID            int64
	SnapshotKey   string
	Revision      int64
	Reason        string
	Status        string
	Attempts      int64
	LastError     sql.NullString
	NextAttemptAt int64
	CreatedAt     int64
	ProcessedAt   sql.NullInt64
}

type GetSyncQueueStatsRow struct {
	Pending    int64
	Processing int64
	Completed  int64
	Failed     int64
}
