package backend

import (
	"context"
	"time"

	"budgetsync/internal/sheets"
)

// CleanupFunc releases resources held by a remote.
type CleanupFunc func() error

// Result carries the remote built for a configuration. Remote is nil for the
// none backend; the ledger then reports sheets.ErrNotConfigured on sync.
type Result struct {
	Remote  sheets.SnapshotRemote
	Cleanup CleanupFunc
}

// Factory creates remotes based on configuration
type Factory interface {
	CreateRemote(ctx context.Context, config Config) (*Result, error)
}

// Config holds what the factory needs to build a remote.
type Config struct {
	Type Type

	// Memory specific
	SeedFile string

	// Google Sheets specific
	GoogleSpreadsheetID string
	GoogleSheetName     string
	CacheTTL            time.Duration
}

// Type names a sync backend.
type Type string

const (
	NoneBackend   Type = "none"
	MemoryBackend Type = "memory"
	SheetsBackend Type = "sheets"
)

func (t Type) String() string {
	return string(t)
}

// IsValid returns true if the backend type is known
func (t Type) IsValid() bool {
	switch t {
	case NoneBackend, MemoryBackend, SheetsBackend:
		return true
	default:
		return false
	}
}
