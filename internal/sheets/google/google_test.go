package google

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeValues is an in-memory sheet keyed by spreadsheet.
type fakeValues struct {
	mu     sync.Mutex
	rows   [][]any
	gets   int
	ranges []string
	err    error
}

func (f *fakeValues) Get(_ context.Context, _, rng string) ([][]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	f.ranges = append(f.ranges, "get "+rng)
	if f.err != nil {
		return nil, f.err
	}
	return f.rows, nil
}

func (f *fakeValues) Update(_ context.Context, _, rng string, rows [][]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ranges = append(f.ranges, "update "+rng)
	if f.err != nil {
		return f.err
	}
	for i, row := range rows {
		if i < len(f.rows) {
			f.rows[i] = row
		} else {
			f.rows = append(f.rows, row)
		}
	}
	return nil
}

func (f *fakeValues) Clear(_ context.Context, _, rng string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ranges = append(f.ranges, "clear "+rng)
	return f.err
}

func TestClientFetchEmptySheet(t *testing.T) {
	c := newClient(&fakeValues{}, Options{SpreadsheetID: "sheet-id"})
	body, found, err := c.FetchSnapshot(context.Background())
	if err != nil || found || body != nil {
		t.Fatalf("FetchSnapshot() = %q, %v, %v; want not found", body, found, err)
	}
	if c.sheetName != defaultSheetName {
		t.Errorf("sheetName = %q, want default", c.sheetName)
	}
}

func TestClientPushThenFetch(t *testing.T) {
	values := &fakeValues{}
	c := newClient(values, Options{SpreadsheetID: "sheet-id", SheetName: "Budget Sync"})
	c.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	if err := c.PushSnapshot(ctx, []byte(`{"revision":4}`), 4); err != nil {
		t.Fatalf("PushSnapshot() error = %v", err)
	}
	want := []string{"update Budget Sync!A1:D2", "clear Budget Sync!A3:D"}
	if strings.Join(values.ranges, ",") != strings.Join(want, ",") {
		t.Errorf("ranges = %v, want %v", values.ranges, want)
	}

	body, found, err := c.FetchSnapshot(ctx)
	if err != nil || !found {
		t.Fatalf("FetchSnapshot() = %v, %v", found, err)
	}
	if string(body) != `{"revision":4}` {
		t.Errorf("FetchSnapshot() body = %s", body)
	}
}

func TestClientCachesFetches(t *testing.T) {
	values := &fakeValues{rows: encodeRows([]byte(`{"a":1}`), 1, time.Now())}
	c := newClient(values, Options{SpreadsheetID: "sheet-id", CacheTTL: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, found, err := c.FetchSnapshot(ctx); err != nil || !found {
			t.Fatalf("FetchSnapshot() = %v, %v", found, err)
		}
	}
	if values.gets != 1 {
		t.Errorf("API reads = %d, want 1", values.gets)
	}

	// a push refreshes the cached copy without another read
	if err := c.PushSnapshot(ctx, []byte(`{"a":2}`), 2); err != nil {
		t.Fatalf("PushSnapshot() error = %v", err)
	}
	body, _, _ := c.FetchSnapshot(ctx)
	if string(body) != `{"a":2}` || values.gets != 1 {
		t.Errorf("after push: body %s, reads %d", body, values.gets)
	}

	c.InvalidateCache()
	c.FetchSnapshot(ctx)
	if values.gets != 2 {
		t.Errorf("API reads after invalidation = %d, want 2", values.gets)
	}
}

func TestClientCleanExpired(t *testing.T) {
	values := &fakeValues{rows: encodeRows([]byte(`{"a":1}`), 1, time.Now())}
	if n := newClient(values, Options{SpreadsheetID: "sheet-id"}).CleanExpired(); n != 0 {
		t.Errorf("CleanExpired() without cache = %d, want 0", n)
	}

	c := newClient(values, Options{SpreadsheetID: "sheet-id", CacheTTL: time.Millisecond})
	if _, _, err := c.FetchSnapshot(context.Background()); err != nil {
		t.Fatalf("FetchSnapshot() error = %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if n := c.CleanExpired(); n != 1 {
		t.Errorf("CleanExpired() = %d, want 1", n)
	}
}

func TestClientPropagatesErrors(t *testing.T) {
	boom := errors.New("quota exceeded")
	c := newClient(&fakeValues{err: boom}, Options{SpreadsheetID: "sheet-id", CacheTTL: time.Minute})
	ctx := context.Background()

	if _, _, err := c.FetchSnapshot(ctx); !errors.Is(err, boom) {
		t.Errorf("FetchSnapshot() error = %v, want wrapped quota error", err)
	}
	if err := c.PushSnapshot(ctx, []byte(`{}`), 1); !errors.Is(err, boom) {
		t.Errorf("PushSnapshot() error = %v, want wrapped quota error", err)
	}
}

func TestNew_MissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), Options{})
	if err == nil || err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Fatalf("New() error = %v", err)
	}
}

func TestNewSheetsService_MissingCredentials(t *testing.T) {
	for _, key := range []string{"GOOGLE_SERVICE_ACCOUNT_JSON", "GOOGLE_SERVICE_ACCOUNT_FILE", "GOOGLE_APPLICATION_CREDENTIALS"} {
		t.Setenv(key, "")
	}
	_, err := newSheetsService(context.Background())
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("newSheetsService() error = %v", err)
	}
}

func TestNewSheetsService_UnreadableFile(t *testing.T) {
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "/nonexistent/credentials.json")
	_, err := newSheetsService(context.Background())
	if err == nil || !strings.Contains(err.Error(), "read service account file") {
		t.Fatalf("newSheetsService() error = %v", err)
	}
	if _, statErr := os.Stat("/nonexistent/credentials.json"); statErr == nil {
		t.Skip("credentials file unexpectedly exists")
	}
}
