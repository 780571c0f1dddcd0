package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/workorder-scheduler/internal/persistence/sqlite"
)

// SQLiteHarness wraps a migrated SQLite storage in a temporary directory.
type SQLiteHarness struct {
	Storage *sqlite.Storage
	Path    string

	cleanup func()
}

// Close releases the database. It is safe to call more than once.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness opens and migrates a fresh database file. Close is
// registered with tb.Cleanup.
func NewSQLiteHarness(tb testing.TB, opts ...sqlite.Option) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "scheduler.db")
	storage, err := sqlite.Open(path, opts...)
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}
	if err := storage.Migrate(context.Background()); err != nil {
		_ = storage.Close()
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	harness := &SQLiteHarness{
		Storage: storage,
		Path:    path,
		cleanup: func() { _ = storage.Close() },
	}
	tb.Cleanup(harness.Close)
	return harness
}
