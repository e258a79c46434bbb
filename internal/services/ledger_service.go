package services

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"budgetsync/internal/amqp"
	"budgetsync/internal/core"
	blog "budgetsync/internal/log"
	"budgetsync/internal/sheets"
	"budgetsync/internal/snapshot"
)

var ErrNotFound = errors.New("not found")

// SnapshotStore persists the canonical snapshot as an opaque blob.
type SnapshotStore interface {
	LoadSnapshot(ctx context.Context, key string) ([]byte, bool, error)
	SaveSnapshot(ctx context.Context, key string, body []byte, revision int64) error
}

// SyncPublisher announces committed changes to a broker.
type SyncPublisher interface {
	PublishSyncRequest(ctx context.Context, snapshotKey string, revision int64, reason string) error
}

// SyncEnqueuer records committed changes in a durable outbox.
type SyncEnqueuer interface {
	EnqueueSync(ctx context.Context, snapshotKey string, revision int64, reason string) error
}

// Mutation edits a working copy of the snapshot. now is the commit time
// formatted as an ISO timestamp.
type Mutation func(s *core.Snapshot, now string) error

// SyncResult describes one reconciliation with the remote.
type SyncResult struct {
	Snapshot     core.Snapshot
	RemoteFound  bool
	LocalChanged bool
	Pushed       bool
}

// RemoteStatus compares the remote revision with the local one.
type RemoteStatus struct {
	RemoteFound    bool
	RemoteRevision int64
	LocalRevision  int64
}

// Behind reports whether the remote holds a newer revision.
func (r RemoteStatus) Behind() bool {
	return r.RemoteFound && r.RemoteRevision > r.LocalRevision
}

// LedgerService owns one canonical snapshot. Mutations and syncs are
// serialized; every commit runs derive, normalize and persist before the
// new state becomes visible.
type LedgerService struct {
	key       string
	store     SnapshotStore
	remote    sheets.SnapshotRemote
	publisher SyncPublisher
	queue     SyncEnqueuer
	now       func() time.Time
	// readThrough reloads from the store before every operation.
	readThrough bool

	mu      sync.Mutex
	current core.Snapshot
	loaded  bool

	subsMu  sync.Mutex
	subs    map[int]func(core.Snapshot)
	nextSub int
}

type LedgerOption func(*LedgerService)

// WithRemote sets the backend used by Sync.
func WithRemote(remote sheets.SnapshotRemote) LedgerOption {
	return func(s *LedgerService) { s.remote = remote }
}

func WithPublisher(p SyncPublisher) LedgerOption {
	return func(s *LedgerService) { s.publisher = p }
}

func WithQueue(q SyncEnqueuer) LedgerOption {
	return func(s *LedgerService) { s.queue = q }
}

// WithReadThrough makes every read and mutation start from the stored copy.
// Use it when another process writes the same snapshot key.
func WithReadThrough() LedgerOption {
	return func(s *LedgerService) { s.readThrough = true }
}

func WithClock(now func() time.Time) LedgerOption {
	return func(s *LedgerService) { s.now = now }
}

func NewLedgerService(store SnapshotStore, key string, opts ...LedgerOption) *LedgerService {
	s := &LedgerService{
		key:   key,
		store: store,
		now:   time.Now,
		subs:  map[int]func(core.Snapshot){},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key returns the snapshot key the service reads and writes.
func (s *LedgerService) Key() string { return s.key }

// Load reads the persisted snapshot, normalizing it on the way in. A key that
// was never written yields a blank snapshot.
func (s *LedgerService) Load(ctx context.Context) (core.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = false
	if err := s.ensureLoaded(ctx); err != nil {
		return core.Snapshot{}, err
	}
	return s.current.Clone(), nil
}

// Snapshot returns a copy of the current state, loading it on first use.
func (s *LedgerService) Snapshot(ctx context.Context) (core.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return core.Snapshot{}, err
	}
	return s.current.Clone(), nil
}

func (s *LedgerService) ensureLoaded(ctx context.Context) error {
	if s.loaded && !s.readThrough {
		return nil
	}
	body, found, err := s.store.LoadSnapshot(ctx, s.key)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	var raw snapshot.Raw
	if found {
		raw, err = snapshot.ParseRaw(body)
		if err != nil {
			return fmt.Errorf("load snapshot %s: %w", s.key, err)
		}
	}
	s.current = snapshot.Normalize(raw, s.now())
	s.loaded = true
	slog.DebugContext(ctx, "Snapshot loaded",
		blog.FieldSnapshotKey, s.key,
		blog.FieldRevision, s.current.Revision,
		"found", found)
	return nil
}

// Apply commits a mutation: the patch runs on a copy, the revision is bumped,
// the derived view is recomputed and the result is normalized and persisted.
// Subscribers are notified and a sync is requested once the write succeeded.
func (s *LedgerService) Apply(ctx context.Context, op string, patch Mutation) (core.Snapshot, error) {
	next, err := s.commit(ctx, patch)
	if err != nil {
		return core.Snapshot{}, err
	}

	blog.NewStructuredLogger(blog.FromContext(ctx)).LogMutation(ctx, s.key, next.Revision, op, "", "")
	s.notify(next)
	s.requestSync(ctx, next.Revision, amqp.ReasonMutation)
	return next.Clone(), nil
}

func (s *LedgerService) commit(ctx context.Context, patch Mutation) (core.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return core.Snapshot{}, err
	}

	now := s.now().UTC()
	stamp := core.FormatTimestamp(now)
	next := s.current.Clone()
	if err := patch(&next, stamp); err != nil {
		return core.Snapshot{}, err
	}
	next.Revision = max(next.Revision, s.current.Revision) + 1
	next.LastLocalChangeAt = stamp
	snapshot.Refresh(&next, now)
	next = snapshot.Normalize(snapshot.ToRaw(next), now)

	if err := s.persist(ctx, next); err != nil {
		return core.Snapshot{}, err
	}
	s.current = next
	return next, nil
}

func (s *LedgerService) persist(ctx context.Context, snap core.Snapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.store.SaveSnapshot(ctx, s.key, body, snap.Revision); err != nil {
		return fmt.Errorf("persist snapshot: %w", err)
	}
	return nil
}

// RequestSync asks the configured outbox and broker for a sync of the
// current revision.
func (s *LedgerService) RequestSync(ctx context.Context, reason string) error {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return err
	}
	s.requestSync(ctx, snap.Revision, reason)
	return nil
}

// requestSync is best-effort: the local commit already succeeded.
func (s *LedgerService) requestSync(ctx context.Context, revision int64, reason string) {
	if s.queue != nil {
		if err := s.queue.EnqueueSync(ctx, s.key, revision, reason); err != nil {
			slog.ErrorContext(ctx, "Failed to enqueue sync request",
				blog.FieldSnapshotKey, s.key, blog.FieldRevision, revision, blog.FieldError, err)
		}
	}
	if s.publisher != nil {
		if err := s.publisher.PublishSyncRequest(ctx, s.key, revision, reason); err != nil {
			slog.WarnContext(ctx, "Failed to publish sync request",
				blog.FieldSnapshotKey, s.key, blog.FieldRevision, revision, blog.FieldError, err)
		}
	}
}

// Subscribe registers fn to receive every committed snapshot. The returned
// function removes the subscription.
func (s *LedgerService) Subscribe(fn func(core.Snapshot)) func() {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *LedgerService) notify(snap core.Snapshot) {
	s.subsMu.Lock()
	fns := make([]func(core.Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subsMu.Unlock()
	for _, fn := range fns {
		fn(snap.Clone())
	}
}

// Sync reconciles the local snapshot with the remote. A remote that was never
// written is seeded with the local state. Fetch errors leave local state
// untouched; retrying is up to the caller.
func (s *LedgerService) Sync(ctx context.Context) (SyncResult, error) {
	if s.remote == nil {
		return SyncResult{}, sheets.ErrNotConfigured
	}

	result, err := s.reconcile(ctx)
	if result.LocalChanged {
		s.notify(result.Snapshot)
	}
	if err != nil {
		return SyncResult{}, err
	}

	slog.InfoContext(ctx, "Snapshot synced",
		blog.FieldSnapshotKey, s.key,
		blog.FieldRevision, result.Snapshot.Revision,
		"remote_found", result.RemoteFound,
		"local_changed", result.LocalChanged,
		"pushed", result.Pushed)
	result.Snapshot = result.Snapshot.Clone()
	return result, nil
}

// RemoteStatus reads the remote revision without merging. Cached readers may
// answer from their cache.
func (s *LedgerService) RemoteStatus(ctx context.Context) (RemoteStatus, error) {
	if s.remote == nil {
		return RemoteStatus{}, sheets.ErrNotConfigured
	}
	local, err := s.Snapshot(ctx)
	if err != nil {
		return RemoteStatus{}, err
	}
	status := RemoteStatus{LocalRevision: local.Revision}

	body, found, err := s.remote.FetchSnapshot(ctx)
	if err != nil {
		return RemoteStatus{}, fmt.Errorf("fetch remote snapshot: %w", err)
	}
	if !found {
		return status, nil
	}
	raw, err := snapshot.ParseRaw(body)
	if err != nil {
		return RemoteStatus{}, fmt.Errorf("remote snapshot: %w", err)
	}
	status.RemoteFound = true
	status.RemoteRevision = snapshot.Normalize(raw, s.now()).Revision
	return status, nil
}

// reconcile runs fetch, merge, persist and push under the lock. The merged
// state is kept as soon as it is persisted, so a failed push still leaves
// memory and the store in agreement.
func (s *LedgerService) reconcile(ctx context.Context) (SyncResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return SyncResult{}, err
	}
	local := s.current

	// the merge must start from the remote as it is now
	if cached, ok := s.remote.(sheets.CachedReader); ok {
		cached.InvalidateCache()
	}
	body, found, err := s.remote.FetchSnapshot(ctx)
	if err != nil {
		return SyncResult{}, fmt.Errorf("fetch remote snapshot: %w", err)
	}

	merged := local
	var remoteJSON []byte
	if found {
		raw, err := snapshot.ParseRaw(body)
		if err != nil {
			return SyncResult{}, fmt.Errorf("remote snapshot: %w", err)
		}
		remote := snapshot.Normalize(raw, s.now())
		merged = snapshot.Merge(local, remote)
		remoteJSON, _ = json.Marshal(remote)
	}

	mergedJSON, err := json.Marshal(merged)
	if err != nil {
		return SyncResult{}, fmt.Errorf("encode merged snapshot: %w", err)
	}
	localJSON, _ := json.Marshal(local)

	result := SyncResult{
		RemoteFound:  found,
		LocalChanged: !bytes.Equal(localJSON, mergedJSON),
		Pushed:       !found || !bytes.Equal(remoteJSON, mergedJSON),
	}

	if result.LocalChanged {
		if err := s.persist(ctx, merged); err != nil {
			return SyncResult{}, err
		}
		s.current = merged
	}
	result.Snapshot = merged

	if result.Pushed {
		if err := s.remote.PushSnapshot(ctx, mergedJSON, merged.Revision); err != nil {
			return result, fmt.Errorf("push snapshot: %w", err)
		}
	}
	return result, nil
}

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

// keepCreated carries createdAt over from the stored copy so an edit cannot
// rewrite history.
func keepCreated[T core.Entity](list []T, id string, created func(T) string) string {
	if existing, ok := core.FindByID(list, id); ok {
		return created(existing)
	}
	return ""
}

func (s *LedgerService) SaveAccount(ctx context.Context, a core.Account) (core.Account, error) {
	if err := a.Validate(); err != nil {
		return core.Account{}, fmt.Errorf("account: %w", err)
	}
	a.ID = newID(a.ID)
	_, err := s.Apply(ctx, blog.OpUpdate, func(snap *core.Snapshot, now string) error {
		a.CreatedAt = keepCreated(snap.Accounts, a.ID, func(e core.Account) string { return e.CreatedAt })
		a.Touch(now)
		snap.Accounts = core.Upsert(snap.Accounts, a)
		return nil
	})
	return a, err
}

func (s *LedgerService) DeleteAccount(ctx context.Context, id string) error {
	_, err := s.Apply(ctx, blog.OpDelete, func(snap *core.Snapshot, _ string) error {
		var removed bool
		snap.Accounts, removed = core.RemoveByID(snap.Accounts, id)
		if !removed {
			return fmt.Errorf("account %s: %w", id, ErrNotFound)
		}
		return nil
	})
	return err
}

func (s *LedgerService) SaveCategory(ctx context.Context, c core.Category) (core.Category, error) {
	if err := c.Validate(); err != nil {
		return core.Category{}, fmt.Errorf("category: %w", err)
	}
	c.ID = newID(c.ID)
	if c.Tags == nil {
		c.Tags = []string{}
	}
	_, err := s.Apply(ctx, blog.OpUpdate, func(snap *core.Snapshot, now string) error {
		c.CreatedAt = keepCreated(snap.Categories, c.ID, func(e core.Category) string { return e.CreatedAt })
		c.Touch(now)
		snap.Categories = core.Upsert(snap.Categories, c)
		return nil
	})
	return c, err
}

func (s *LedgerService) DeleteCategory(ctx context.Context, id string) error {
	_, err := s.Apply(ctx, blog.OpDelete, func(snap *core.Snapshot, _ string) error {
		var removed bool
		snap.Categories, removed = core.RemoveByID(snap.Categories, id)
		if !removed {
			return fmt.Errorf("category %s: %w", id, ErrNotFound)
		}
		return nil
	})
	return err
}

func (s *LedgerService) SaveTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, fmt.Errorf("transaction: %w", err)
	}
	t.ID = newID(t.ID)
	_, err := s.Apply(ctx, blog.OpUpdate, func(snap *core.Snapshot, now string) error {
		t.CreatedAt = keepCreated(snap.Transactions, t.ID, func(e core.Transaction) string { return e.CreatedAt })
		t.Touch(now)
		snap.Transactions = core.Upsert(snap.Transactions, t)
		return nil
	})
	return t, err
}

func (s *LedgerService) DeleteTransaction(ctx context.Context, id string) error {
	_, err := s.Apply(ctx, blog.OpDelete, func(snap *core.Snapshot, _ string) error {
		var removed bool
		snap.Transactions, removed = core.RemoveByID(snap.Transactions, id)
		if !removed {
			return fmt.Errorf("transaction %s: %w", id, ErrNotFound)
		}
		return nil
	})
	return err
}

func (s *LedgerService) SaveMonthlyIncome(ctx context.Context, m core.MonthlyIncome) (core.MonthlyIncome, error) {
	if !core.IsMonthKey(m.Month) {
		return core.MonthlyIncome{}, fmt.Errorf("monthly income: %w", core.ErrInvalidDate)
	}
	if m.Amount < 0 {
		return core.MonthlyIncome{}, fmt.Errorf("monthly income: %w", core.ErrInvalidAmount)
	}
	m.ID = newID(m.ID)
	_, err := s.Apply(ctx, blog.OpUpdate, func(snap *core.Snapshot, now string) error {
		m.CreatedAt = keepCreated(snap.MonthlyIncomes, m.ID, func(e core.MonthlyIncome) string { return e.CreatedAt })
		m.Touch(now)
		snap.MonthlyIncomes = core.Upsert(snap.MonthlyIncomes, m)
		return nil
	})
	return m, err
}

func (s *LedgerService) SavePlannedExpense(ctx context.Context, p core.PlannedExpense) (core.PlannedExpense, error) {
	if p.Amount < 0 {
		return core.PlannedExpense{}, fmt.Errorf("planned expense: %w", core.ErrInvalidAmount)
	}
	p.ID = newID(p.ID)
	_, err := s.Apply(ctx, blog.OpUpdate, func(snap *core.Snapshot, now string) error {
		p.CreatedAt = keepCreated(snap.PlannedExpenses, p.ID, func(e core.PlannedExpense) string { return e.CreatedAt })
		p.Touch(now)
		snap.PlannedExpenses = core.Upsert(snap.PlannedExpenses, p)
		return nil
	})
	return p, err
}

func (s *LedgerService) SaveRecurringExpense(ctx context.Context, r core.RecurringExpense) (core.RecurringExpense, error) {
	if r.Amount <= 0 {
		return core.RecurringExpense{}, fmt.Errorf("recurring expense: %w", core.ErrInvalidAmount)
	}
	switch r.Frequency {
	case core.Daily, core.Weekly, core.Monthly, core.Yearly:
	default:
		return core.RecurringExpense{}, fmt.Errorf("recurring expense: %w", core.ErrUnknownType)
	}
	r.ID = newID(r.ID)
	_, err := s.Apply(ctx, blog.OpUpdate, func(snap *core.Snapshot, now string) error {
		r.CreatedAt = keepCreated(snap.RecurringExpenses, r.ID, func(e core.RecurringExpense) string { return e.CreatedAt })
		if old, ok := core.FindByID(snap.RecurringExpenses, r.ID); ok && r.AnchorDay == 0 && old.NextDueDate == r.NextDueDate {
			r.AnchorDay = old.AnchorDay
		}
		r.Touch(now)
		snap.RecurringExpenses = core.Upsert(snap.RecurringExpenses, r)
		return nil
	})
	return r, err
}

func (s *LedgerService) SaveGoal(ctx context.Context, g core.Goal) (core.Goal, error) {
	if err := g.Validate(); err != nil {
		return core.Goal{}, fmt.Errorf("goal: %w", err)
	}
	g.ID = newID(g.ID)
	_, err := s.Apply(ctx, blog.OpUpdate, func(snap *core.Snapshot, now string) error {
		g.CreatedAt = keepCreated(snap.Goals, g.ID, func(e core.Goal) string { return e.CreatedAt })
		g.Touch(now)
		snap.Goals = core.Upsert(snap.Goals, g)
		return nil
	})
	return g, err
}

func (s *LedgerService) SaveSmartExportRule(ctx context.Context, r core.SmartExportRule) (core.SmartExportRule, error) {
	if r.Name == "" {
		return core.SmartExportRule{}, fmt.Errorf("smart export rule: %w", core.ErrEmptyName)
	}
	switch r.Format {
	case "":
		r.Format = "json"
	case "json", "csv":
	default:
		return core.SmartExportRule{}, fmt.Errorf("smart export rule format %q: %w", r.Format, core.ErrUnknownType)
	}
	r.ID = newID(r.ID)
	if r.CategoryIDs == nil {
		r.CategoryIDs = []string{}
	}
	if r.AccountIDs == nil {
		r.AccountIDs = []string{}
	}
	_, err := s.Apply(ctx, blog.OpUpdate, func(snap *core.Snapshot, now string) error {
		r.CreatedAt = keepCreated(snap.SmartExportRules, r.ID, func(e core.SmartExportRule) string { return e.CreatedAt })
		r.Touch(now)
		snap.SmartExportRules = core.Upsert(snap.SmartExportRules, r)
		return nil
	})
	return r, err
}

// RecordExport appends an entry to the export history.
func (s *LedgerService) RecordExport(ctx context.Context, rec core.ExportRecord) (core.ExportRecord, error) {
	rec.ID = newID(rec.ID)
	_, err := s.Apply(ctx, blog.OpExport, func(snap *core.Snapshot, now string) error {
		if rec.ExportedAt == "" {
			rec.ExportedAt = now
		}
		rec.Touch(now)
		snap.ExportHistory = core.Upsert(snap.ExportHistory, rec)
		return nil
	})
	return rec, err
}

// SaveBudgetItem upserts a planned line into the given month, creating the
// month when needed.
func (s *LedgerService) SaveBudgetItem(ctx context.Context, month string, item core.BudgetPlannedItem) (core.BudgetPlannedItem, error) {
	if !core.IsMonthKey(month) {
		return core.BudgetPlannedItem{}, fmt.Errorf("budget month %q: %w", month, core.ErrInvalidDate)
	}
	if item.Amount < 0 {
		return core.BudgetPlannedItem{}, fmt.Errorf("budget item: %w", core.ErrInvalidAmount)
	}
	item.ID = newID(item.ID)
	_, err := s.Apply(ctx, blog.OpUpdate, func(snap *core.Snapshot, now string) error {
		bm := budgetMonth(snap, month)
		item.CreatedAt = keepCreated(bm.PlannedItems, item.ID, func(e core.BudgetPlannedItem) string { return e.CreatedAt })
		item.Touch(now)
		bm.PlannedItems = core.Upsert(bm.PlannedItems, item)
		commitMonth(snap, bm, now)
		return nil
	})
	return item, err
}

// RecordBudgetActual books spending against a month. Actuals without a
// planned item land in the unassigned list.
func (s *LedgerService) RecordBudgetActual(ctx context.Context, month string, actual core.BudgetActual) (core.BudgetActual, error) {
	if !core.IsMonthKey(month) {
		return core.BudgetActual{}, fmt.Errorf("budget month %q: %w", month, core.ErrInvalidDate)
	}
	actual.ID = newID(actual.ID)
	_, err := s.Apply(ctx, blog.OpUpdate, func(snap *core.Snapshot, now string) error {
		bm := budgetMonth(snap, month)
		if actual.PlannedItemID != "" {
			if _, ok := core.FindByID(bm.PlannedItems, actual.PlannedItemID); !ok {
				return fmt.Errorf("planned item %s: %w", actual.PlannedItemID, ErrNotFound)
			}
		}
		// An actual lives in exactly one list; moving it keeps its creation time.
		getCreated := func(e core.BudgetActual) string { return e.CreatedAt }
		actual.CreatedAt = cmp.Or(
			keepCreated(bm.Actuals, actual.ID, getCreated),
			keepCreated(bm.UnassignedActuals, actual.ID, getCreated),
		)
		bm.Actuals, _ = core.RemoveByID(bm.Actuals, actual.ID)
		bm.UnassignedActuals, _ = core.RemoveByID(bm.UnassignedActuals, actual.ID)
		actual.Touch(now)
		if actual.PlannedItemID != "" {
			bm.Actuals = core.Upsert(bm.Actuals, actual)
		} else {
			bm.UnassignedActuals = core.Upsert(bm.UnassignedActuals, actual)
		}
		commitMonth(snap, bm, now)
		return nil
	})
	return actual, err
}

func budgetMonth(snap *core.Snapshot, month string) core.BudgetMonth {
	if bm, ok := snap.BudgetMonths[month]; ok {
		return bm
	}
	return core.BudgetMonth{
		Month:                month,
		PlannedItems:         []core.BudgetPlannedItem{},
		Actuals:              []core.BudgetActual{},
		UnassignedActuals:    []core.BudgetActual{},
		RecurringAllocations: []core.RecurringAllocation{},
		Adjustments:          []core.BudgetAdjustment{},
	}
}

func commitMonth(snap *core.Snapshot, bm core.BudgetMonth, now string) {
	bm.Touch(now)
	snapshot.RecomputeTotals(&bm)
	if snap.BudgetMonths == nil {
		snap.BudgetMonths = map[string]core.BudgetMonth{}
	}
	snap.BudgetMonths[bm.Month] = bm
}

func (s *LedgerService) UpdateProfile(ctx context.Context, p core.Profile) (core.Profile, error) {
	if p.Currency == "" {
		return core.Profile{}, fmt.Errorf("profile currency: %w", core.ErrEmptyName)
	}
	_, err := s.Apply(ctx, blog.OpUpdate, func(snap *core.Snapshot, now string) error {
		p.CreatedAt = ""
		if snap.Profile != nil {
			p.CreatedAt = snap.Profile.CreatedAt
		}
		p.Touch(now)
		profile := p
		snap.Profile = &profile
		return nil
	})
	return p, err
}

// Import replaces the local state with an arbitrary JSON document. The
// normalizer upgrades whatever shape it has; the revision keeps increasing.
func (s *LedgerService) Import(ctx context.Context, raw snapshot.Raw) (core.Snapshot, error) {
	return s.Apply(ctx, blog.OpImport, func(snap *core.Snapshot, _ string) error {
		*snap = snapshot.Normalize(raw, s.now())
		return nil
	})
}

// Reset discards all local data.
func (s *LedgerService) Reset(ctx context.Context) (core.Snapshot, error) {
	return s.Apply(ctx, blog.OpDelete, func(snap *core.Snapshot, _ string) error {
		rev := snap.Revision
		*snap = snapshot.Normalize(nil, s.now())
		snap.Revision = rev
		return nil
	})
}
