package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Sync backends.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendSheets = "sheets"
)

var validBackends = []string{BackendNone, BackendMemory, BackendSheets}

type Config struct {
	// HTTP Server
	Port string

	// Local persistence
	SQLiteDBPath string
	SnapshotKey  string

	// Remote sync
	SyncBackend      string
	MemoryRemoteFile string
	RemoteCacheTTL   time.Duration

	// AMQP (optional; empty URL disables it)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets
	GoogleSpreadsheetID       string
	GoogleSyncSheetName       string
	GoogleServiceAccountJSON  string
	GoogleServiceAccountFile  string
	GoogleApplicationCredFile string

	// Worker
	SyncBatchSize  int
	SyncInterval   time.Duration
	SyncMaxRetries int
	// RecurringInterval is how often due recurring expenses are posted.
	// Zero disables posting.
	RecurringInterval time.Duration

	LogLevel string
}

func Load() *Config {
	return &Config{
		Port: getEnv("PORT", "8081"),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/budget.db"),
		SnapshotKey:  getEnv("SNAPSHOT_KEY", "default"),

		SyncBackend:      getEnv("SYNC_BACKEND", BackendNone),
		MemoryRemoteFile: getEnv("MEMORY_REMOTE_FILE", ""),
		RemoteCacheTTL:   getEnvDuration("REMOTE_CACHE_TTL", 30*time.Second),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "budgetsync"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "sync_requests"),

		GoogleSpreadsheetID:       getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSyncSheetName:       getEnv("GOOGLE_SYNC_SHEET_NAME", "Sync"),
		GoogleServiceAccountJSON:  getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile:  getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
		GoogleApplicationCredFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),

		SyncBatchSize:  getEnvInt("SYNC_BATCH_SIZE", 10),
		SyncInterval:   getEnvDuration("SYNC_INTERVAL", 30*time.Second),
		SyncMaxRetries: getEnvInt("SYNC_MAX_RETRIES", 3),

		RecurringInterval: getEnvDuration("RECURRING_INTERVAL", time.Hour),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// AMQPEnabled reports whether sync requests should go through a broker.
func (c *Config) AMQPEnabled() bool {
	return strings.TrimSpace(c.AMQPURL) != ""
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Validate checks every setting and reports all problems at once.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
			}
		}
	}

	if strings.TrimSpace(c.SnapshotKey) == "" {
		errors = append(errors, "snapshot key cannot be empty")
	}

	if !slices.Contains(validBackends, c.SyncBackend) {
		errors = append(errors, fmt.Sprintf("invalid sync backend '%s': must be one of %v", c.SyncBackend, validBackends))
	}

	if c.SyncBackend == BackendSheets {
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when using sheets backend")
		}
		if c.GoogleSyncSheetName == "" {
			errors = append(errors, "Google sync sheet name is required when using sheets backend")
		}
		credFile := c.GoogleServiceAccountFile
		if credFile == "" {
			credFile = c.GoogleApplicationCredFile
		}
		switch {
		case c.GoogleServiceAccountJSON != "":
		case credFile != "":
			if _, err := os.Stat(credFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", credFile))
			}
		default:
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_APPLICATION_CREDENTIALS must be provided for sheets backend")
		}
	}

	if c.RemoteCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid remote cache ttl %v: must not be negative", c.RemoteCacheTTL))
	}

	if c.AMQPEnabled() {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.SyncBatchSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid sync batch size %d: must be at least 1", c.SyncBatchSize))
	} else if c.SyncBatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid sync batch size %d: must be at most 1000", c.SyncBatchSize))
	}

	if c.SyncInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at least 1 second", c.SyncInterval))
	} else if c.SyncInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at most 24 hours", c.SyncInterval))
	}

	if c.SyncMaxRetries < 1 {
		errors = append(errors, fmt.Sprintf("invalid sync max retries %d: must be at least 1", c.SyncMaxRetries))
	}

	if c.RecurringInterval != 0 && c.RecurringInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid recurring interval %v: must be 0 or at least 1 minute", c.RecurringInterval))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
