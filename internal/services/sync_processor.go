package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	blog "budgetsync/internal/log"
	"budgetsync/internal/sheets"
	"budgetsync/internal/storage"
)

// SyncProcessorConfig holds configuration for the sync processor
type SyncProcessorConfig struct {
	// PollInterval is how often to check for pending items (default: 10s)
	PollInterval time.Duration

	// BatchSize is the max number of items to process per poll cycle (default: 10)
	BatchSize int

	// MaxRetries is the maximum retry attempts before marking as failed (default: 3)
	MaxRetries int

	// RetryBaseDelay is the delay before the first retry; it doubles on
	// every further attempt up to MaxRetryDelay (default: 5s, 5m)
	RetryBaseDelay time.Duration
	MaxRetryDelay  time.Duration

	// CleanupInterval is how often to clean up completed items (default: 1h)
	CleanupInterval time.Duration

	// CleanupAge is how old completed items must be before cleanup (default: 24h)
	CleanupAge time.Duration
}

func DefaultSyncProcessorConfig() SyncProcessorConfig {
	return SyncProcessorConfig{
		PollInterval:    10 * time.Second,
		BatchSize:       10,
		MaxRetries:      3,
		RetryBaseDelay:  5 * time.Second,
		MaxRetryDelay:   5 * time.Minute,
		CleanupInterval: 1 * time.Hour,
		CleanupAge:      24 * time.Hour,
	}
}

// SyncQueue is the durable outbox the processor drains.
type SyncQueue interface {
	ResetStaleProcessing(ctx context.Context) error
	DequeueSyncBatch(ctx context.Context, limit int64) ([]storage.SyncQueue, error)
	MarkSyncProcessing(ctx context.Context, id int64) error
	MarkSyncComplete(ctx context.Context, id int64) error
	MarkSyncFailed(ctx context.Context, id int64, lastErr string) error
	IncrementSyncAttempt(ctx context.Context, id int64, lastErr string, delay time.Duration) error
	CleanupCompletedSyncs(ctx context.Context, olderThan time.Time) error
	GetSyncQueueStats(ctx context.Context) (*storage.GetSyncQueueStatsRow, error)
	RetryFailedSyncs(ctx context.Context) error
}

// Syncer reconciles one snapshot key with the remote.
type Syncer interface {
	Key() string
	Sync(ctx context.Context) (SyncResult, error)
}

// SyncProcessor drains the SQLite sync queue, running one reconciliation per
// queued request.
type SyncProcessor struct {
	queue  SyncQueue
	ledger Syncer
	config SyncProcessorConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewSyncProcessor(queue SyncQueue, ledger Syncer, config SyncProcessorConfig) *SyncProcessor {
	return &SyncProcessor{
		queue:  queue,
		ledger: ledger,
		config: config,
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *SyncProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("sync processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	// Items left in processing by a crashed run go back to pending.
	if err := p.queue.ResetStaleProcessing(ctx); err != nil {
		slog.WarnContext(ctx, "Failed to reset stale processing items", blog.FieldError, err)
	}

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Sync processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)

	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *SyncProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.doneCh:
		slog.InfoContext(ctx, "Sync processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Sync processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

func (p *SyncProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Run starts the processor and blocks until ctx is cancelled.
func (p *SyncProcessor) Run(ctx context.Context) error {
	if err := p.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return p.Stop(stopCtx)
}

func (p *SyncProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	pollTicker := time.NewTicker(p.config.PollInterval)
	defer pollTicker.Stop()

	cleanupTicker := time.NewTicker(p.config.CleanupInterval)
	defer cleanupTicker.Stop()

	p.ProcessBatch(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			p.ProcessBatch(ctx)
		case <-cleanupTicker.C:
			p.cleanupCompleted(ctx)
		}
	}
}

// ProcessBatch handles one batch of due items and returns how many it
// claimed.
func (p *SyncProcessor) ProcessBatch(ctx context.Context) int {
	items, err := p.queue.DequeueSyncBatch(ctx, int64(p.config.BatchSize))
	if err != nil {
		slog.ErrorContext(ctx, "Failed to dequeue sync batch", blog.FieldError, err)
		return 0
	}
	if len(items) == 0 {
		return 0
	}

	slog.DebugContext(ctx, "Processing sync batch", "count", len(items))

	processed := 0
	for _, item := range items {
		select {
		case <-p.stopCh:
			return processed
		case <-ctx.Done():
			return processed
		default:
		}

		if err := p.queue.MarkSyncProcessing(ctx, item.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to mark item as processing",
				"id", item.ID, blog.FieldError, err)
			continue
		}
		processed++

		if err := p.processItem(ctx, item); err != nil {
			p.handleFailure(ctx, item, err)
		} else {
			p.handleSuccess(ctx, item)
		}
	}
	return processed
}

func (p *SyncProcessor) processItem(ctx context.Context, item storage.SyncQueue) error {
	if item.SnapshotKey != p.ledger.Key() {
		return fmt.Errorf("%w: unknown snapshot key %q", errPermanent, item.SnapshotKey)
	}
	result, err := p.ledger.Sync(ctx)
	if errors.Is(err, sheets.ErrNotConfigured) {
		return fmt.Errorf("%w: %v", errPermanent, err)
	}
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Processed sync request",
		"id", item.ID,
		blog.FieldSnapshotKey, item.SnapshotKey,
		blog.FieldRevision, result.Snapshot.Revision,
		blog.FieldReason, item.Reason,
		"pushed", result.Pushed)
	return nil
}

// errPermanent marks failures that retrying cannot fix.
var errPermanent = errors.New("permanent sync failure")

func (p *SyncProcessor) handleSuccess(ctx context.Context, item storage.SyncQueue) {
	if err := p.queue.MarkSyncComplete(ctx, item.ID); err != nil {
		slog.ErrorContext(ctx, "Failed to mark sync complete",
			"id", item.ID, blog.FieldError, err)
	}
}

func (p *SyncProcessor) handleFailure(ctx context.Context, item storage.SyncQueue, processErr error) {
	slog.WarnContext(ctx, "Sync processing failed",
		"id", item.ID,
		blog.FieldSnapshotKey, item.SnapshotKey,
		"attempt", item.Attempts+1,
		blog.FieldError, processErr)

	if errors.Is(processErr, errPermanent) || item.Attempts+1 >= int64(p.config.MaxRetries) {
		if err := p.queue.MarkSyncFailed(ctx, item.ID, processErr.Error()); err != nil {
			slog.ErrorContext(ctx, "Failed to mark sync as failed",
				"id", item.ID, blog.FieldError, err)
		}
		slog.ErrorContext(ctx, "Sync item failed permanently",
			"id", item.ID,
			blog.FieldSnapshotKey, item.SnapshotKey,
			"attempts", item.Attempts+1)
		return
	}

	delay := p.retryDelay(item.Attempts)
	if err := p.queue.IncrementSyncAttempt(ctx, item.ID, processErr.Error(), delay); err != nil {
		slog.ErrorContext(ctx, "Failed to increment sync attempt",
			"id", item.ID, blog.FieldError, err)
	}
}

// retryDelay doubles the base delay for every previous attempt.
func (p *SyncProcessor) retryDelay(attempts int64) time.Duration {
	delay := p.config.RetryBaseDelay
	for i := int64(0); i < attempts; i++ {
		delay *= 2
		if delay >= p.config.MaxRetryDelay {
			return p.config.MaxRetryDelay
		}
	}
	return min(delay, p.config.MaxRetryDelay)
}

func (p *SyncProcessor) cleanupCompleted(ctx context.Context) {
	cutoff := time.Now().Add(-p.config.CleanupAge)
	if err := p.queue.CleanupCompletedSyncs(ctx, cutoff); err != nil {
		slog.ErrorContext(ctx, "Failed to cleanup completed syncs", blog.FieldError, err)
	}
}

func (p *SyncProcessor) Stats(ctx context.Context) (*storage.GetSyncQueueStatsRow, error) {
	return p.queue.GetSyncQueueStats(ctx)
}

// RetryFailed resets all failed items for retry
func (p *SyncProcessor) RetryFailed(ctx context.Context) error {
	return p.queue.RetryFailedSyncs(ctx)
}
