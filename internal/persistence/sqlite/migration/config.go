package migration

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// MemoryDSN selects a private in-memory database.
const MemoryDSN = ":memory:"

// SQLiteConfig holds SQLite-specific database configuration
type SQLiteConfig struct {
	// DSN is the database file path or ":memory:"
	DSN string

	// BusyTimeout sets how long to wait for database locks
	BusyTimeout time.Duration

	// EnableForeignKeys enables foreign key constraint checking
	EnableForeignKeys bool

	// JournalMode sets the SQLite journal mode (WAL, DELETE, TRUNCATE, etc.)
	JournalMode string

	// Synchronous sets the synchronous mode (FULL, NORMAL, OFF)
	Synchronous string

	// MaxOpenConns sets the maximum number of open connections
	MaxOpenConns int
}

// DefaultSQLiteConfig returns a SQLite configuration with sensible defaults
func DefaultSQLiteConfig(databasePath string) SQLiteConfig {
	cfg := SQLiteConfig{
		DSN:               databasePath,
		BusyTimeout:       5 * time.Second,
		EnableForeignKeys: true,
		JournalMode:       "WAL",
		Synchronous:       "NORMAL",
		MaxOpenConns:      1,
	}
	if databasePath == MemoryDSN {
		cfg.JournalMode = "MEMORY"
		cfg.Synchronous = "OFF"
	}
	return cfg
}

// Validate checks the SQLite configuration
func (c SQLiteConfig) Validate() error {
	if strings.TrimSpace(c.DSN) == "" {
		return fmt.Errorf("DSN cannot be empty")
	}
	if c.BusyTimeout < 0 {
		return fmt.Errorf("BusyTimeout cannot be negative")
	}

	validJournalModes := map[string]bool{"DELETE": true, "TRUNCATE": true, "PERSIST": true, "MEMORY": true, "WAL": true, "OFF": true}
	if c.JournalMode != "" && !validJournalModes[strings.ToUpper(c.JournalMode)] {
		return fmt.Errorf("invalid journal mode: %s", c.JournalMode)
	}

	validSyncModes := map[string]bool{"OFF": true, "NORMAL": true, "FULL": true, "EXTRA": true}
	if c.Synchronous != "" && !validSyncModes[strings.ToUpper(c.Synchronous)] {
		return fmt.Errorf("invalid synchronous mode: %s", c.Synchronous)
	}

	if c.MaxOpenConns < 0 {
		return fmt.Errorf("MaxOpenConns cannot be negative")
	}
	return nil
}

// connectionString renders the DSN with per-connection pragmas, so every
// pooled connection is configured identically.
func (c SQLiteConfig) connectionString() string {
	params := url.Values{}
	if c.BusyTimeout > 0 {
		params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", c.BusyTimeout.Milliseconds()))
	}
	if c.EnableForeignKeys {
		params.Add("_pragma", "foreign_keys(1)")
	}
	if c.JournalMode != "" {
		params.Add("_pragma", fmt.Sprintf("journal_mode(%s)", strings.ToUpper(c.JournalMode)))
	}
	if c.Synchronous != "" {
		params.Add("_pragma", fmt.Sprintf("synchronous(%s)", strings.ToUpper(c.Synchronous)))
	}
	if len(params) == 0 {
		return c.DSN
	}
	return c.DSN + "?" + params.Encode()
}

// OpenDatabase opens and pings a configured SQLite database, creating the
// parent directory of a file database when needed.
func OpenDatabase(ctx context.Context, config SQLiteConfig) (*sql.DB, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid SQLite configuration: %w", err)
	}

	if config.DSN != MemoryDSN {
		if err := os.MkdirAll(filepath.Dir(config.DSN), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", config.connectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	maxOpen := config.MaxOpenConns
	if maxOpen == 0 || config.DSN == MemoryDSN {
		// Every connection to ":memory:" would be a separate database.
		maxOpen = 1
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	return db, nil
}
