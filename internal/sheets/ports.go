package sheets

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned by remotes that have no backing store.
var ErrNotConfigured = errors.New("remote snapshot store not configured")

// Ports for the remote side of snapshot sync. Bodies are opaque JSON; the
// caller parses and normalizes them.
type (
	SnapshotReader interface {
		// FetchSnapshot returns the remote body. found is false when the
		// remote has never been written.
		FetchSnapshot(ctx context.Context) (body []byte, found bool, err error)
	}

	SnapshotWriter interface {
		PushSnapshot(ctx context.Context, body []byte, revision int64) error
	}

	SnapshotRemote interface {
		SnapshotReader
		SnapshotWriter
	}

	// CachedReader is a reader that may serve a stale copy. After
	// InvalidateCache the next fetch reads the backing store.
	CachedReader interface {
		InvalidateCache()
	}
)
