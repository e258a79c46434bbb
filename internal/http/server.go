package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"budgetsync/internal/core"
	blog "budgetsync/internal/log"
	"budgetsync/internal/services"
	"budgetsync/internal/snapshot"
)

// Ledger is the part of services.LedgerService the API serves.
type Ledger interface {
	Key() string
	Snapshot(ctx context.Context) (core.Snapshot, error)
	Import(ctx context.Context, raw snapshot.Raw) (core.Snapshot, error)
	Sync(ctx context.Context) (services.SyncResult, error)
	RemoteStatus(ctx context.Context) (services.RemoteStatus, error)
	RequestSync(ctx context.Context, reason string) error
	SaveTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, id string) error
	RecordExport(ctx context.Context, rec core.ExportRecord) (core.ExportRecord, error)
}

// Pinger is a dependency checked by /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config tunes the server. Zero values get defaults.
type Config struct {
	Addr               string
	RateLimitPerMinute int
	Logger             *blog.Logger
	Now                func() time.Time
	// Database, when set, must answer Ping for /readyz to pass.
	Database Pinger
}

type Server struct {
	http.Server
	ledger      Ledger
	db          Pinger
	logger      *blog.Logger
	rateLimiter *rateLimiter
	now         func() time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// server.
func NewServer(ledger Ledger, cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = blog.New(blog.DefaultConfig()).WithComponent(blog.ComponentHTTP)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &Server{
		ledger:      ledger,
		db:          cfg.Database,
		logger:      cfg.Logger,
		rateLimiter: newRateLimiter(cfg.RateLimitPerMinute),
		now:         cfg.Now,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /api/snapshot", s.handleGetSnapshot)
	mux.HandleFunc("PUT /api/snapshot", s.handleImportSnapshot)
	mux.HandleFunc("GET /api/insights", s.handleInsights)
	mux.HandleFunc("GET /api/export.json", s.handleExport)
	mux.HandleFunc("GET /api/export.csv", s.handleExport)
	mux.HandleFunc("GET /api/sync", s.handleSyncStatus)
	mux.HandleFunc("POST /api/sync", s.handleSync)
	mux.HandleFunc("POST /api/transactions", s.handleCreateTransaction)
	mux.HandleFunc("DELETE /api/transactions/{id}", s.handleDeleteTransaction)

	var handler http.Handler = mux
	handler = s.rateLimiter.middleware(handler)
	handler = blog.AccessLogMiddleware(handler)
	handler = blog.RequestIDMiddleware(handler)
	handler = blog.Middleware(cfg.Logger)(handler)
	handler = securityHeaders(handler)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown stops the rate limiter and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
