package migration

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

// Manager orchestrates scanning and applying migrations.
type Manager struct {
	scanner  FileScanner
	executor Executor
	logger   *slog.Logger
}

// NewManager wires a scanner and an executor together.
func NewManager(scanner FileScanner, executor Executor, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		scanner:  scanner,
		executor: executor,
		logger:   logger.With("component", "migration"),
	}
}

// RunMigrations executes all pending migrations in sequential order
func (m *Manager) RunMigrations(ctx context.Context) error {
	started := time.Now()

	pending, err := m.PendingMigrations(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		m.logger.Debug("schema up to date")
		return nil
	}

	for i, migration := range pending {
		logger := m.logger.With("version", migration.Version, "description", migration.Description)
		logger.Info("applying migration", "position", i+1, "pending", len(pending))

		elapsed, err := m.executor.ExecuteMigration(ctx, migration)
		if err != nil {
			logger.Error("migration failed", "error", err)
			return NewMigrationError(migration.Version, migration.FilePath, "execute migration",
				fmt.Errorf("%w: %w", ErrMigrationFailed, err))
		}
		logger.Info("migration applied", "duration", elapsed)
	}

	m.logger.Info("migrations complete", "applied", len(pending), "duration", time.Since(started))
	return nil
}

// PendingMigrations returns the scanned migrations not yet recorded as
// applied. A previously applied file whose checksum changed is an error.
func (m *Manager) PendingMigrations(ctx context.Context) ([]Migration, error) {
	if err := m.executor.InitializeVersionTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize version table: %w", err)
	}

	available, err := m.scanner.ScanMigrations()
	if err != nil {
		return nil, fmt.Errorf("failed to scan migrations: %w", err)
	}

	applied, err := m.executor.GetAppliedVersions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get applied versions: %w", err)
	}

	checksums := make(map[string]string, len(applied))
	for _, record := range applied {
		checksums[normalizeVersion(record.Version)] = record.Checksum
	}

	var pending []Migration
	for _, migration := range available {
		checksum, ok := checksums[normalizeVersion(migration.Version)]
		if !ok {
			pending = append(pending, migration)
			continue
		}
		if checksum != "" && checksum != migration.Checksum {
			return nil, NewMigrationError(migration.Version, migration.FilePath, "verify checksum", ErrChecksumMismatch)
		}
	}

	return pending, nil
}

// Status reports the applied and pending migrations.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	pending, err := m.PendingMigrations(ctx)
	if err != nil {
		return Status{}, err
	}
	applied, err := m.executor.GetAppliedVersions(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("failed to get applied versions: %w", err)
	}

	status := Status{AppliedMigrations: applied, PendingMigrations: pending}
	if len(applied) > 0 {
		status.CurrentVersion = applied[len(applied)-1].Version
	}
	return status, nil
}

func normalizeVersion(version string) string {
	if n, err := strconv.Atoi(version); err == nil {
		return strconv.Itoa(n)
	}
	return version
}
