package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"budgetsync/internal/sheets/memory"
	"budgetsync/internal/storage"
)

var testNow = time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock { return &testClock{t: testNow} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeStore struct {
	mu      sync.Mutex
	bodies  map[string][]byte
	saves   int
	saveErr error
	loadErr error
}

func newFakeStore() *fakeStore { return &fakeStore{bodies: map[string][]byte{}} }

func (f *fakeStore) LoadSnapshot(_ context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, false, f.loadErr
	}
	body, ok := f.bodies[key]
	return body, ok, nil
}

func (f *fakeStore) SaveSnapshot(_ context.Context, key string, body []byte, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saves++
	f.bodies[key] = append([]byte(nil), body...)
	return nil
}

type syncRequest struct {
	key      string
	revision int64
	reason   string
}

type fakeNotifier struct {
	mu       sync.Mutex
	requests []syncRequest
	err      error
}

func (f *fakeNotifier) record(key string, revision int64, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, syncRequest{key, revision, reason})
	return f.err
}

func (f *fakeNotifier) PublishSyncRequest(_ context.Context, key string, revision int64, reason string) error {
	return f.record(key, revision, reason)
}

func (f *fakeNotifier) EnqueueSync(_ context.Context, key string, revision int64, reason string) error {
	return f.record(key, revision, reason)
}

// failingRemote fails every call with err.
type failingRemote struct{ err error }

func (f failingRemote) FetchSnapshot(context.Context) ([]byte, bool, error) { return nil, false, f.err }
func (f failingRemote) PushSnapshot(context.Context, []byte, int64) error   { return f.err }

var errRemoteDown = errors.New("remote down")

// readOnlyRemote serves fetches from a fixed body and rejects every push.
type readOnlyRemote struct {
	body []byte
	err  error
}

func (r readOnlyRemote) FetchSnapshot(context.Context) ([]byte, bool, error) {
	return r.body, r.body != nil, nil
}

func (r readOnlyRemote) PushSnapshot(context.Context, []byte, int64) error { return r.err }

// cachingRemote keeps the first fetch of the wrapped store until
// InvalidateCache is called.
type cachingRemote struct {
	*memory.Store
	loaded bool
	body   []byte
	found  bool
}

func (c *cachingRemote) FetchSnapshot(ctx context.Context) ([]byte, bool, error) {
	if !c.loaded {
		body, found, err := c.Store.FetchSnapshot(ctx)
		if err != nil {
			return nil, false, err
		}
		c.body, c.found, c.loaded = body, found, true
	}
	return c.body, c.found, nil
}

func (c *cachingRemote) InvalidateCache() { c.loaded = false }

// fakeQueue is an in-memory SyncQueue.
type fakeQueue struct {
	mu        sync.Mutex
	items     []storage.SyncQueue
	completed []int64
	failed    map[int64]string
	retried   map[int64]time.Duration
	claimErr  error
}

func newFakeQueue(items ...storage.SyncQueue) *fakeQueue {
	for i := range items {
		items[i].Status = storage.SyncStatusPending
	}
	return &fakeQueue{items: items, failed: map[int64]string{}, retried: map[int64]time.Duration{}}
}

func (q *fakeQueue) ResetStaleProcessing(context.Context) error { return nil }

func (q *fakeQueue) DequeueSyncBatch(_ context.Context, limit int64) ([]storage.SyncQueue, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []storage.SyncQueue
	for _, item := range q.items {
		if item.Status == storage.SyncStatusPending && int64(len(out)) < limit {
			out = append(out, item)
		}
	}
	return out, nil
}

func (q *fakeQueue) setStatus(id int64, status string) {
	for i := range q.items {
		if q.items[i].ID == id {
			q.items[i].Status = status
		}
	}
}

func (q *fakeQueue) MarkSyncProcessing(_ context.Context, id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.claimErr != nil {
		return q.claimErr
	}
	q.setStatus(id, storage.SyncStatusProcessing)
	return nil
}

func (q *fakeQueue) MarkSyncComplete(_ context.Context, id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.setStatus(id, storage.SyncStatusCompleted)
	q.completed = append(q.completed, id)
	return nil
}

func (q *fakeQueue) MarkSyncFailed(_ context.Context, id int64, lastErr string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.setStatus(id, storage.SyncStatusFailed)
	q.failed[id] = lastErr
	return nil
}

func (q *fakeQueue) IncrementSyncAttempt(_ context.Context, id int64, _ string, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.retried[id] = delay
	for i := range q.items {
		if q.items[i].ID == id {
			q.items[i].Attempts++
			q.items[i].Status = storage.SyncStatusPending
		}
	}
	return nil
}

func (q *fakeQueue) CleanupCompletedSyncs(context.Context, time.Time) error { return nil }

func (q *fakeQueue) GetSyncQueueStats(context.Context) (*storage.GetSyncQueueStatsRow, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var stats storage.GetSyncQueueStatsRow
	for _, item := range q.items {
		switch item.Status {
		case storage.SyncStatusPending:
			stats.Pending++
		case storage.SyncStatusProcessing:
			stats.Processing++
		case storage.SyncStatusCompleted:
			stats.Completed++
		case storage.SyncStatusFailed:
			stats.Failed++
		}
	}
	return &stats, nil
}

func (q *fakeQueue) RetryFailedSyncs(context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.items {
		if q.items[i].Status == storage.SyncStatusFailed {
			q.items[i].Status = storage.SyncStatusPending
		}
	}
	return nil
}
