package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"budgetsync/internal/cache"
	ports "budgetsync/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const defaultSheetName = "Sync"

var (
	_ ports.SnapshotRemote = (*Client)(nil)
	_ ports.CachedReader   = (*Client)(nil)
)

// Options configures a Client.
type Options struct {
	SpreadsheetID string
	SheetName     string
	// CacheTTL bounds how long a fetched snapshot is reused. Zero disables
	// caching.
	CacheTTL time.Duration
}

// Client stores the shared snapshot in a single sheet of a spreadsheet.
type Client struct {
	values        valuesAPI
	spreadsheetID string
	sheetName     string
	cache         *cache.LRUCache[remoteSnapshot]
	now           func() time.Time
}

type remoteSnapshot struct {
	body     []byte
	revision int64
	found    bool
}

// valuesAPI is the slice of the Sheets values service the client uses.
type valuesAPI interface {
	Get(ctx context.Context, spreadsheetID, rng string) ([][]any, error)
	Update(ctx context.Context, spreadsheetID, rng string, rows [][]any) error
	Clear(ctx context.Context, spreadsheetID, rng string) error
}

// New creates a client backed by the Sheets API, authenticated with the
// service account found in the environment.
func New(ctx context.Context, opts Options) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return newClient(serviceValues{svc: svc}, opts), nil
}

func newClient(values valuesAPI, opts Options) *Client {
	sheet := strings.TrimSpace(opts.SheetName)
	if sheet == "" {
		sheet = defaultSheetName
	}
	c := &Client{
		values:        values,
		spreadsheetID: opts.SpreadsheetID,
		sheetName:     sheet,
		now:           time.Now,
	}
	if opts.CacheTTL > 0 {
		c.cache = cache.NewLRUCache[remoteSnapshot](1, opts.CacheTTL)
	}
	return c
}

// newSheetsService initializes a Sheets service with service account
// credentials from GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE
// or GOOGLE_APPLICATION_CREDENTIALS.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case serviceAccountJSON != "":
		slog.DebugContext(ctx, "Using inline service account credentials")
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		slog.DebugContext(ctx, "Reading service account credentials", "path", serviceAccountFile)
		data, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = data
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

func (c *Client) dataRange() string {
	return fmt.Sprintf("%s!A:D", c.sheetName)
}

// FetchSnapshot reads the snapshot stored in the sync sheet.
func (c *Client) FetchSnapshot(ctx context.Context) ([]byte, bool, error) {
	load := func() (remoteSnapshot, error) {
		return c.fetch(ctx)
	}
	var (
		snap remoteSnapshot
		err  error
	)
	if c.cache != nil {
		snap, err = c.cache.GetOrLoad(c.spreadsheetID, load)
	} else {
		snap, err = load()
	}
	if err != nil {
		return nil, false, err
	}
	if !snap.found {
		return nil, false, nil
	}
	return append([]byte(nil), snap.body...), true, nil
}

func (c *Client) fetch(ctx context.Context) (remoteSnapshot, error) {
	start := time.Now()
	values, err := c.values.Get(ctx, c.spreadsheetID, c.dataRange())
	if err != nil {
		return remoteSnapshot{}, fmt.Errorf("read %s: %w", c.dataRange(), err)
	}
	body, revision, found, err := decodeRows(values)
	if err != nil {
		return remoteSnapshot{}, fmt.Errorf("decode sheet %s: %w", c.sheetName, err)
	}
	slog.DebugContext(ctx, "Fetched remote snapshot",
		"sheet", c.sheetName,
		"found", found,
		"revision", revision,
		"bytes", len(body),
		"duration", time.Since(start))
	return remoteSnapshot{body: body, revision: revision, found: found}, nil
}

// PushSnapshot overwrites the sync sheet with body. Rows left over from a
// longer previous snapshot are cleared after the write.
func (c *Client) PushSnapshot(ctx context.Context, body []byte, revision int64) error {
	if c.cache != nil {
		c.cache.Delete(c.spreadsheetID)
	}

	rows := encodeRows(body, revision, c.now())
	rng := fmt.Sprintf("%s!A1:D%d", c.sheetName, len(rows))
	if err := c.values.Update(ctx, c.spreadsheetID, rng, rows); err != nil {
		return fmt.Errorf("write %s: %w", rng, err)
	}
	tail := fmt.Sprintf("%s!A%d:D", c.sheetName, len(rows)+1)
	if err := c.values.Clear(ctx, c.spreadsheetID, tail); err != nil {
		return fmt.Errorf("clear %s: %w", tail, err)
	}

	if c.cache != nil {
		c.cache.Set(c.spreadsheetID, remoteSnapshot{
			body:     append([]byte(nil), body...),
			revision: revision,
			found:    true,
		})
	}
	slog.InfoContext(ctx, "Pushed snapshot to Google Sheets",
		"sheet", c.sheetName,
		"revision", revision,
		"chunks", len(rows)-1)
	return nil
}

// InvalidateCache forces the next fetch to hit the API.
func (c *Client) InvalidateCache() {
	if c.cache != nil {
		c.cache.Purge()
	}
}

// CleanExpired drops a cached fetch whose TTL has passed.
func (c *Client) CleanExpired() int {
	if c.cache == nil {
		return 0
	}
	return c.cache.CleanExpired()
}

type serviceValues struct {
	svc *gsheet.Service
}

func (s serviceValues) Get(ctx context.Context, spreadsheetID, rng string) ([][]any, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (s serviceValues) Update(ctx context.Context, spreadsheetID, rng string, rows [][]any) error {
	vr := &gsheet.ValueRange{Values: rows}
	_, err := s.svc.Spreadsheets.Values.Update(spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	return err
}

func (s serviceValues) Clear(ctx context.Context, spreadsheetID, rng string) error {
	_, err := s.svc.Spreadsheets.Values.Clear(spreadsheetID, rng, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	return err
}
