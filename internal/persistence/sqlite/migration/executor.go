package migration

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const timestampLayout = time.RFC3339Nano

// SQLiteExecutor implements the Executor interface for SQLite databases
type SQLiteExecutor struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteExecutor creates a new SQLite migration executor
func NewSQLiteExecutor(db *sql.DB) *SQLiteExecutor {
	return &SQLiteExecutor{db: db, now: time.Now}
}

// ExecuteMigration runs every statement of the migration and records it in
// schema_migrations within a single transaction.
func (e *SQLiteExecutor) ExecuteMigration(ctx context.Context, migration Migration) (elapsed time.Duration, err error) {
	started := e.now()

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, NewDatabaseError(migration.Version, "begin transaction", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	statements := splitStatements(migration.SQL)
	if len(statements) == 0 {
		return 0, NewMigrationError(migration.Version, migration.FilePath, "parse SQL",
			fmt.Errorf("%w: no SQL statements found in migration", ErrInvalidMigrationFile))
	}

	for i, stmt := range statements {
		if _, execErr := tx.ExecContext(ctx, stmt); execErr != nil {
			return 0, NewDatabaseError(migration.Version, fmt.Sprintf("execute statement %d", i+1), execErr)
		}
	}

	elapsed = e.now().Sub(started)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, applied_at, checksum, execution_time_ms) VALUES (?, ?, ?, ?)`,
		migration.Version,
		e.now().UTC().Format(timestampLayout),
		migration.Checksum,
		elapsed.Milliseconds(),
	)
	if err != nil {
		return 0, NewDatabaseError(migration.Version, "record migration", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, NewDatabaseError(migration.Version, "commit transaction", err)
	}

	return elapsed, nil
}

// InitializeVersionTable creates the schema_migrations table if it doesn't exist
func (e *SQLiteExecutor) InitializeVersionTable(ctx context.Context) error {
	_, err := e.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL,
			checksum TEXT,
			execution_time_ms INTEGER
		)
	`)
	if err != nil {
		return NewDatabaseError("", "create schema_migrations table", err)
	}
	return nil
}

// GetAppliedVersions returns all applied migration versions with timestamps
func (e *SQLiteExecutor) GetAppliedVersions(ctx context.Context) ([]AppliedMigration, error) {
	rows, err := e.db.QueryContext(ctx, `
		SELECT version, applied_at, COALESCE(execution_time_ms, 0), COALESCE(checksum, '')
		FROM schema_migrations
		ORDER BY CAST(version AS INTEGER) ASC
	`)
	if err != nil {
		return nil, NewDatabaseError("", "get applied versions", err)
	}
	defer rows.Close()

	var applied []AppliedMigration
	for rows.Next() {
		var (
			record          AppliedMigration
			appliedAt       string
			executionTimeMs int64
		)
		if err := rows.Scan(&record.Version, &appliedAt, &executionTimeMs, &record.Checksum); err != nil {
			return nil, NewDatabaseError("", "scan applied migration", err)
		}
		if record.AppliedAt, err = time.Parse(timestampLayout, appliedAt); err != nil {
			return nil, NewDatabaseError(record.Version, "parse applied_at", err)
		}
		record.ExecutionTime = time.Duration(executionTimeMs) * time.Millisecond
		applied = append(applied, record)
	}
	if err := rows.Err(); err != nil {
		return nil, NewDatabaseError("", "iterate applied migrations", err)
	}

	return applied, nil
}
