package cli

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetupLoggerFormat(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	setupLogger(&buf, false, slog.LevelInfo).Info("json line")
	if !strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Errorf("non-terminal output should be JSON, got %q", buf.String())
	}

	buf.Reset()
	logger := setupLogger(&buf, true, slog.LevelWarn)
	logger.Info("dropped")
	logger.Warn("text line")
	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Error("info record should be filtered at warn level")
	}
	if !strings.Contains(out, "msg=\"text line\"") {
		t.Errorf("terminal output should be text, got %q", out)
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("SNAPSHOT_KEY=from-dotenv\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SNAPSHOT_KEY", "")
	os.Unsetenv("SNAPSHOT_KEY")

	LoadEnvFile(path)
	if got := os.Getenv("SNAPSHOT_KEY"); got != "from-dotenv" {
		t.Errorf("SNAPSHOT_KEY = %q, want from-dotenv", got)
	}

	// missing files are ignored
	LoadEnvFile(filepath.Join(t.TempDir(), "missing.env"))
}

func TestLoadConfigValidates(t *testing.T) {
	t.Setenv("SQLITE_DB_PATH", filepath.Join(t.TempDir(), "budget.db"))
	t.Setenv("SYNC_BACKEND", "bogus")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected validation error for unknown backend")
	}

	t.Setenv("SYNC_BACKEND", "memory")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.SyncBackend != "memory" {
		t.Errorf("SyncBackend = %q", cfg.SyncBackend)
	}
}

func TestOpenSQLite(t *testing.T) {
	repo, err := OpenSQLite(filepath.Join(t.TempDir(), "db", "budget.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	defer repo.Close()
}
