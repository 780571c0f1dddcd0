package sqlite

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/workorder-scheduler/internal/persistence"
	"github.com/example/workorder-scheduler/internal/persistence/sqlite/migration"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Storage is the SQLite-backed persistence layer. It embeds one repository
// per aggregate so a single value satisfies every persistence interface.
type Storage struct {
	*WorkOrderRepository
	*UserRepository
	*SessionRepository

	pool   *ConnectionPool
	logger *slog.Logger
}

var (
	_ persistence.WorkOrderRepository = (*Storage)(nil)
	_ persistence.UserRepository      = (*Storage)(nil)
	_ persistence.SessionRepository   = (*Storage)(nil)
)

// Option customises Storage construction.
type Option func(*options)

type options struct {
	logger *slog.Logger
	now    func() time.Time
}

// WithLogger sets the logger used for migration output.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithClock overrides the clock used for default timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Open opens the database at dsn (a file path or ":memory:") with the default
// SQLite configuration.
func Open(dsn string, opts ...Option) (*Storage, error) {
	return OpenWithConfig(context.Background(), migration.DefaultSQLiteConfig(dsn), opts...)
}

// OpenWithConfig opens a database using an explicit configuration.
func OpenWithConfig(ctx context.Context, cfg migration.SQLiteConfig, opts ...Option) (*Storage, error) {
	o := options{logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	db, err := migration.OpenDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}

	pool := NewConnectionPool(db)
	return &Storage{
		WorkOrderRepository: NewWorkOrderRepository(pool, o.now),
		UserRepository:      NewUserRepository(pool, o.now),
		SessionRepository:   NewSessionRepository(pool, o.now),
		pool:                pool,
		logger:              o.logger,
	}, nil
}

// Close releases the underlying database handle.
func (s *Storage) Close() error {
	return s.pool.Close()
}

// Ping checks the database connection.
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate applies the embedded schema migrations.
func (s *Storage) Migrate(ctx context.Context) error {
	manager := s.migrationManager()
	if err := manager.RunMigrations(ctx); err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	return nil
}

// MigrationStatus reports applied and pending embedded migrations.
func (s *Storage) MigrationStatus(ctx context.Context) (migration.Status, error) {
	return s.migrationManager().Status(ctx)
}

func (s *Storage) migrationManager() *migration.Manager {
	return migration.NewManager(
		migration.NewScanner(migrationFiles, "migrations"),
		migration.NewSQLiteExecutor(s.pool.DB()),
		s.logger,
	)
}
