package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"budgetsync/internal/config"
	"budgetsync/internal/sheets/memory"
)

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Error("expected error for nil config")
	}

	cfg, err := FromAppConfig(&config.Config{
		SyncBackend:         "sheets",
		GoogleSpreadsheetID: "sheet-123",
		GoogleSyncSheetName: "Sync",
		RemoteCacheTTL:      time.Minute,
	})
	if err != nil {
		t.Fatalf("FromAppConfig() error = %v", err)
	}
	if cfg.Type != SheetsBackend || cfg.GoogleSpreadsheetID != "sheet-123" || cfg.CacheTTL != time.Minute {
		t.Errorf("FromAppConfig() = %+v", cfg)
	}

	if _, err := FromAppConfig(&config.Config{SyncBackend: "postgres"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"none", Config{Type: NoneBackend}, false},
		{"memory", Config{Type: MemoryBackend}, false},
		{"sheets without id", Config{Type: SheetsBackend}, true},
		{"sheets", Config{Type: SheetsBackend, GoogleSpreadsheetID: "x"}, false},
		{"negative ttl", Config{Type: MemoryBackend, CacheTTL: -time.Second}, true},
		{"unknown", Config{Type: "ftp"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCreateRemote(t *testing.T) {
	f := NewFactory(nil)
	ctx := context.Background()

	res, err := f.CreateRemote(ctx, Config{Type: NoneBackend})
	if err != nil {
		t.Fatalf("none: error = %v", err)
	}
	if res.Remote != nil {
		t.Error("none backend must not return a remote")
	}

	res, err = f.CreateRemote(ctx, Config{Type: MemoryBackend})
	if err != nil {
		t.Fatalf("memory: error = %v", err)
	}
	if _, ok := res.Remote.(*memory.Store); !ok {
		t.Errorf("memory backend returned %T", res.Remote)
	}

	seed := filepath.Join(t.TempDir(), "remote.json")
	if err := os.WriteFile(seed, []byte(`{"revision":4}`), 0o600); err != nil {
		t.Fatal(err)
	}
	res, err = f.CreateRemote(ctx, Config{Type: MemoryBackend, SeedFile: seed})
	if err != nil {
		t.Fatalf("memory seed: error = %v", err)
	}
	body, found, err := res.Remote.FetchSnapshot(ctx)
	if err != nil || !found || string(body) != `{"revision":4}` {
		t.Errorf("seeded remote = %s, %v, %v", body, found, err)
	}

	if _, err := f.CreateRemote(ctx, Config{Type: SheetsBackend}); err == nil {
		t.Error("sheets without spreadsheet id should fail")
	}
}

func TestTypeStrings(t *testing.T) {
	got := TypeStrings()
	if len(got) != 3 || got[0] != "none" {
		t.Errorf("TypeStrings() = %v", got)
	}
}
