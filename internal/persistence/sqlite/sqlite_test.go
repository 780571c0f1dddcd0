package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/workorder-scheduler/internal/persistence"
)

func newTestStorage(t *testing.T) (*Storage, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "scheduler.db")
	storage, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })

	require.NoError(t, storage.Migrate(context.Background()))
	return storage, path
}

func TestStorageMigrate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage, path := newTestStorage(t)

	status, err := storage.MigrationStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, "002", status.CurrentVersion)
	assert.Empty(t, status.PendingMigrations)

	require.NoError(t, storage.Migrate(ctx), "migrating twice is a no-op")

	created, err := storage.CreateWorkOrder(ctx, persistence.WorkOrder{WorkOrderNumber: "N1"})
	require.NoError(t, err)
	require.NoError(t, storage.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })
	require.NoError(t, reopened.Migrate(ctx))

	fetched, err := reopened.GetWorkOrder(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "N1", fetched.WorkOrderNumber)
}

func TestInMemoryDatabase(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })

	require.NoError(t, storage.Migrate(ctx))
	require.NoError(t, storage.Ping(ctx))

	_, err = storage.CreateWorkOrder(ctx, persistence.WorkOrder{WorkOrderNumber: "N1"})
	require.NoError(t, err)

	orders, err := storage.ListWorkOrders(ctx, persistence.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestTimestampLayoutSortsChronologically(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, time.March, 4, 8, 0, 0, 0, time.UTC)
	instants := []time.Time{
		base.Add(time.Second),
		base.Add(1500 * time.Millisecond),
		base,
		base.Add(time.Nanosecond),
		base.In(time.FixedZone("JST", 9*60*60)).Add(-time.Hour),
	}

	formatted := make([]string, 0, len(instants))
	for _, instant := range instants {
		formatted = append(formatted, formatTime(instant))
	}
	sort.Strings(formatted)

	previous := time.Time{}
	for _, value := range formatted {
		parsed, err := parseTime(value)
		require.NoError(t, err)
		assert.False(t, parsed.Before(previous), value)
		previous = parsed
	}

	legacy, err := parseTime("2024-03-04T08:00:00+09:00")
	require.NoError(t, err)
	assert.True(t, base.Add(-9*time.Hour).Equal(legacy))
}

func TestErrorMapper(t *testing.T) {
	t.Parallel()

	mapper := NewErrorMapper()
	assert.NoError(t, mapper.MapError(nil))
	assert.ErrorIs(t, mapper.MapError(errors.New("constraint failed: UNIQUE constraint failed: users.email (2067)")), persistence.ErrDuplicate)
	assert.ErrorIs(t, mapper.MapError(errors.New("FOREIGN KEY constraint failed (787)")), persistence.ErrForeignKeyViolation)
	assert.ErrorIs(t, mapper.MapError(errors.New("CHECK constraint failed: is_admin")), persistence.ErrConstraintViolation)

	other := errors.New("disk I/O error")
	assert.Same(t, other, mapper.MapError(other))
}
