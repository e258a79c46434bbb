package backend

import (
	"fmt"

	"budgetsync/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := Type(appConfig.SyncBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.SyncBackend)
	}

	return Config{
		Type:                backendType,
		SeedFile:            appConfig.MemoryRemoteFile,
		GoogleSpreadsheetID: appConfig.GoogleSpreadsheetID,
		GoogleSheetName:     appConfig.GoogleSyncSheetName,
		CacheTTL:            appConfig.RemoteCacheTTL,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}
	if c.Type == SheetsBackend && c.GoogleSpreadsheetID == "" {
		return fmt.Errorf("Google Spreadsheet ID is required for sheets backend")
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("cache TTL must not be negative")
	}
	return nil
}

// TypeStrings returns all valid backend type strings
func TypeStrings() []string {
	types := []Type{NoneBackend, MemoryBackend, SheetsBackend}
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = t.String()
	}
	return out
}
