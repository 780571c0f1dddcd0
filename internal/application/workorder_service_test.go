package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/workorder-scheduler/internal/batch"
	"github.com/example/workorder-scheduler/internal/persistence"
)

var (
	testNow       = time.Date(2024, time.January, 1, 7, 0, 0, 0, time.UTC)
	testPrincipal = Principal{UserID: "user-1", DisplayName: "Dana"}
)

func at(day, hour, minute int) time.Time {
	return time.Date(2024, time.January, day, hour, minute, 0, 0, time.UTC)
}

func ptrTime(t time.Time) *time.Time {
	return &t
}

func newTestWorkOrderService(store WorkOrderStore) *WorkOrderService {
	return NewWorkOrderService(store, WorkOrderServiceConfig{
		Location: time.UTC,
		Batch:    batch.Policy{Concurrency: 1},
	}, func() time.Time { return testNow }, nil)
}

func TestWorkOrderService_ExpandRecurrence(t *testing.T) {
	t.Parallel()

	t.Run("weekly rule creates one work order per week", func(t *testing.T) {
		t.Parallel()

		store := newWorkOrderStoreStub()
		svc := newTestWorkOrderService(store)

		result, err := svc.ExpandRecurrence(context.Background(), ExpandRecurrenceParams{
			Principal: testPrincipal,
			Template: WorkOrderTemplate{
				SourceID:        "template-1",
				WorkOrderNumber: "N7",
				Title:           "Boiler check",
				Status:          "scheduled",
				BranchID:        "branch-a",
				TeamIDs:         []string{"T1"},
				PlannedStart:    at(1, 9, 0),
				PlannedEnd:      mo.Some(at(1, 11, 0)),
			},
			RecurrenceType:     "weekly",
			RecurrenceInterval: 1,
			RecurrenceEndDate:  at(22, 0, 0),
		})
		require.NoError(t, err)
		assert.Equal(t, 4, result.TotalOccurrences)
		assert.Equal(t, 4, result.TotalCreated)
		assert.Empty(t, result.Failed)

		require.Len(t, result.WorkOrders, 4)
		for i, day := range []int{1, 8, 15, 22} {
			assert.True(t, at(day, 9, 0).Equal(result.WorkOrders[i].Date), "occurrence %d", i)
			assert.False(t, result.WorkOrders[i].MovedFromSunday)
		}

		created := store.all()
		require.Len(t, created, 4)
		for i, order := range created {
			assert.Equal(t, fmt.Sprintf("N%d", i+1), order.WorkOrderNumber)
			assert.Equal(t, 2*time.Hour, order.PlannedEnd.Sub(*order.PlannedStart))
			assert.Equal(t, "Boiler check", order.Title)
			assert.Equal(t, "branch-a", order.BranchID)
			assert.Equal(t, []string{"T1"}, order.TeamIDs)
			assert.True(t, order.IsRecurring)
			assert.Equal(t, "template-1", order.RecurrenceParentID)
			assert.Equal(t, "weekly", order.RecurrenceType)
			assert.Equal(t, 1, order.RecurrenceInterval)
			assert.Equal(t, "user-1", order.CreatedBy)

			require.Len(t, order.ActivityLog, 1)
			entry := order.ActivityLog[0]
			assert.Equal(t, ActionCreated, entry.Action)
			assert.Equal(t, "Dana", entry.Actor)
			assert.Contains(t, entry.Details, "N7")
			assert.True(t, testNow.Equal(entry.Timestamp))
		}
	})

	t.Run("weekend skip folds Sunday and drops Saturday", func(t *testing.T) {
		t.Parallel()

		store := newWorkOrderStoreStub()
		svc := newTestWorkOrderService(store)

		result, err := svc.ExpandRecurrence(context.Background(), ExpandRecurrenceParams{
			Principal: testPrincipal,
			Template: WorkOrderTemplate{
				PlannedStart: at(5, 9, 0),
				PlannedEnd:   mo.Some(at(5, 10, 0)),
			},
			RecurrenceType:     "daily",
			RecurrenceInterval: 2,
			RecurrenceEndDate:  at(14, 0, 0),
			SkipWeekends:       true,
		})
		require.NoError(t, err)

		days := make([]int, 0, len(result.WorkOrders))
		moved := make([]bool, 0, len(result.WorkOrders))
		for _, occurrence := range result.WorkOrders {
			assert.NotEqual(t, time.Sunday, occurrence.Date.Weekday())
			days = append(days, occurrence.Date.Day())
			moved = append(moved, occurrence.MovedFromSunday)
		}
		assert.Equal(t, []int{5, 6, 9, 11}, days)
		assert.Equal(t, []bool{false, true, false, false}, moved)

		created := store.all()
		require.Len(t, created, 4)
		assert.True(t, created[1].MovedFromSunday)
		assert.Contains(t, created[1].ActivityLog[0].Details, "moved from Sunday")
	})

	t.Run("numbers continue from the latest work order", func(t *testing.T) {
		t.Parallel()

		store := newWorkOrderStoreStub()
		store.seed(WorkOrder{ID: "existing", WorkOrderNumber: "N41"})
		svc := newTestWorkOrderService(store)

		_, err := svc.ExpandRecurrence(context.Background(), ExpandRecurrenceParams{
			Principal:         testPrincipal,
			Template:          WorkOrderTemplate{PlannedStart: at(1, 9, 0)},
			RecurrenceType:    "daily",
			RecurrenceEndDate: at(2, 0, 0),
		})
		require.NoError(t, err)

		created := store.all()
		require.Len(t, created, 3)
		assert.Equal(t, "N42", created[1].WorkOrderNumber)
		assert.Equal(t, "N43", created[2].WorkOrderNumber)
		assert.Nil(t, created[1].PlannedEnd, "a template without an end creates open-ended occurrences")
	})

	t.Run("failed creates are reported and skipped", func(t *testing.T) {
		t.Parallel()

		store := newWorkOrderStoreStub()
		store.createErrs = map[int]error{2: errors.New("disk full")}
		svc := newTestWorkOrderService(store)

		result, err := svc.ExpandRecurrence(context.Background(), ExpandRecurrenceParams{
			Principal:         testPrincipal,
			Template:          WorkOrderTemplate{PlannedStart: at(1, 9, 0), PlannedEnd: mo.Some(at(1, 10, 0))},
			RecurrenceType:    "daily",
			RecurrenceEndDate: at(4, 0, 0),
		})
		require.NoError(t, err)
		assert.Equal(t, 4, result.TotalOccurrences)
		assert.Equal(t, 3, result.TotalCreated)
		require.Len(t, result.Failed, 1)
		require.NotNil(t, result.Failed[0].Date)
		assert.True(t, at(2, 9, 0).Equal(*result.Failed[0].Date))
		assert.Equal(t, "disk full", result.Failed[0].Error)

		days := []int{}
		for _, occurrence := range result.WorkOrders {
			days = append(days, occurrence.Date.Day())
		}
		assert.Equal(t, []int{1, 3, 4}, days)
	})

	t.Run("request branch overrides the template branch", func(t *testing.T) {
		t.Parallel()

		store := newWorkOrderStoreStub()
		svc := newTestWorkOrderService(store)

		_, err := svc.ExpandRecurrence(context.Background(), ExpandRecurrenceParams{
			Principal:         testPrincipal,
			Template:          WorkOrderTemplate{PlannedStart: at(1, 9, 0), BranchID: "template-branch"},
			RecurrenceType:    "monthly",
			RecurrenceEndDate: at(1, 0, 0),
			BranchID:          "request-branch",
		})
		require.NoError(t, err)

		created := store.all()
		require.Len(t, created, 1)
		assert.Equal(t, "request-branch", created[0].BranchID)
		assert.Equal(t, 1, created[0].RecurrenceInterval, "a zero interval defaults to one")
	})

	t.Run("rejects incomplete requests before touching the store", func(t *testing.T) {
		t.Parallel()

		store := newWorkOrderStoreStub()
		svc := newTestWorkOrderService(store)

		_, err := svc.ExpandRecurrence(context.Background(), ExpandRecurrenceParams{
			Principal:          testPrincipal,
			RecurrenceInterval: -1,
		})
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, []string{"baseWorkOrder.planned_start_time", "recurrence_end_date", "recurrence_interval", "recurrence_type"}, vErr.Fields())
		assert.Empty(t, store.all())
	})

	t.Run("requires an authenticated principal", func(t *testing.T) {
		t.Parallel()

		svc := newTestWorkOrderService(newWorkOrderStoreStub())
		_, err := svc.ExpandRecurrence(context.Background(), ExpandRecurrenceParams{})
		assert.ErrorIs(t, err, ErrUnauthorized)
	})
}

func TestWorkOrderNumberer(t *testing.T) {
	t.Parallel()

	logger := defaultLogger(nil)
	clock := func() time.Time { return testNow }

	t.Run("starts at N1 when nothing parses", func(t *testing.T) {
		t.Parallel()

		store := newWorkOrderStoreStub()
		numberer := workOrderNumberer{store: store, now: clock}
		assert.Equal(t, "N1", numberer.Next(context.Background(), logger))

		store.seed(WorkOrder{ID: "legacy", WorkOrderNumber: "legacy"})
		assert.Equal(t, "N1", numberer.Next(context.Background(), logger))
	})

	t.Run("falls back to a timestamp when the lookup fails", func(t *testing.T) {
		t.Parallel()

		store := newWorkOrderStoreStub()
		store.listErr = errors.New("connection reset")
		numberer := workOrderNumberer{store: store, now: clock}
		assert.Equal(t, fmt.Sprintf("N%d", testNow.UnixMilli()), numberer.Next(context.Background(), logger))
	})
}

func TestWorkOrderService_ResolveOverlaps(t *testing.T) {
	t.Parallel()

	t.Run("packs a conflicting bucket in work order number order", func(t *testing.T) {
		t.Parallel()

		orders := []WorkOrder{
			{ID: "a", WorkOrderNumber: "N10", TeamIDs: []string{"T1"}, PlannedStart: ptrTime(at(4, 10, 0)), PlannedEnd: ptrTime(at(4, 11, 0)),
				ActivityLog: []ActivityEntry{{Action: ActionCreated, Actor: "Bob"}}},
			{ID: "b", WorkOrderNumber: "N11", TeamIDs: []string{"T1"}, PlannedStart: ptrTime(at(4, 9, 30)), PlannedEnd: ptrTime(at(4, 10, 15))},
			{ID: "c", WorkOrderNumber: "N12", TeamIDs: []string{"T1"}, PlannedStart: ptrTime(at(4, 8, 0)), PlannedEnd: ptrTime(at(4, 8, 30))},
		}
		store := newWorkOrderStoreStub()
		store.seed(orders...)
		svc := newTestWorkOrderService(store)

		result, err := svc.ResolveOverlaps(context.Background(), ResolveOverlapsParams{
			Principal:  testPrincipal,
			WorkOrders: orders,
			Teams:      []Team{{ID: "T1", Name: "Night crew"}},
		})
		require.NoError(t, err)
		assert.Equal(t, 3, result.UpdatedCount)
		assert.Empty(t, result.Failed)
		assert.Contains(t, result.Summary, "1 overlap group")

		expected := []AdjustedWorkOrder{
			{ID: "a", WorkOrderNumber: "N10", NewStart: at(4, 8, 0), NewEnd: at(4, 9, 0)},
			{ID: "b", WorkOrderNumber: "N11", NewStart: at(4, 9, 0), NewEnd: at(4, 9, 45)},
			{ID: "c", WorkOrderNumber: "N12", NewStart: at(4, 9, 45), NewEnd: at(4, 10, 15)},
		}
		require.Len(t, result.Updated, 3)
		for i, want := range expected {
			got := result.Updated[i]
			assert.Equal(t, want.ID, got.ID)
			assert.Equal(t, want.WorkOrderNumber, got.WorkOrderNumber)
			assert.True(t, want.NewStart.Equal(got.NewStart), "%s start %s", got.ID, got.NewStart)
			assert.True(t, want.NewEnd.Equal(got.NewEnd), "%s end %s", got.ID, got.NewEnd)
		}

		stored := store.get("a")
		assert.True(t, at(4, 8, 0).Equal(*stored.PlannedStart))
		require.Len(t, stored.ActivityLog, 2, "the existing entry is kept and one is appended")
		assert.Equal(t, ActionCreated, stored.ActivityLog[0].Action)
		entry := stored.ActivityLog[1]
		assert.Equal(t, ActionScheduleAdjusted, entry.Action)
		assert.Equal(t, "Dana", entry.Actor)
		assert.Contains(t, entry.Details, "team Night crew")
		assert.Contains(t, entry.Details, "2024-01-04")
		assert.Contains(t, entry.Details, "10:00-11:00 moved to 08:00-09:00")
		assert.Contains(t, entry.Details, "position 1 of 3")

		assert.Len(t, orders[0].ActivityLog, 1, "the caller snapshot is not mutated")
	})

	t.Run("single member buckets produce no updates", func(t *testing.T) {
		t.Parallel()

		orders := []WorkOrder{
			{ID: "a", WorkOrderNumber: "N1", TeamIDs: []string{"T1"}, PlannedStart: ptrTime(at(4, 9, 0)), PlannedEnd: ptrTime(at(4, 10, 0))},
			{ID: "b", WorkOrderNumber: "N2", TeamIDs: []string{"T2"}, PlannedStart: ptrTime(at(4, 9, 30)), PlannedEnd: ptrTime(at(4, 10, 30))},
			{ID: "c", WorkOrderNumber: "N3", TeamIDs: []string{"T1"}, PlannedStart: ptrTime(at(5, 9, 0)), PlannedEnd: ptrTime(at(5, 10, 0))},
		}
		store := newWorkOrderStoreStub()
		store.seed(orders...)
		svc := newTestWorkOrderService(store)

		result, err := svc.ResolveOverlaps(context.Background(), ResolveOverlapsParams{Principal: testPrincipal, WorkOrders: orders})
		require.NoError(t, err)
		assert.Zero(t, result.UpdatedCount)
		assert.Empty(t, result.Updated)
		assert.Equal(t, "No overlapping work orders found", result.Summary)
		assert.Zero(t, store.updateCount())
	})

	t.Run("a record in several buckets accumulates its activity log", func(t *testing.T) {
		t.Parallel()

		orders := []WorkOrder{
			{ID: "shared", WorkOrderNumber: "N1", TeamIDs: []string{"T1"}, EmployeeIDs: []string{"E1"}, PlannedStart: ptrTime(at(4, 9, 0)), PlannedEnd: ptrTime(at(4, 10, 0))},
			{ID: "team-mate", WorkOrderNumber: "N2", TeamIDs: []string{"T1"}, PlannedStart: ptrTime(at(4, 9, 0)), PlannedEnd: ptrTime(at(4, 9, 30))},
			{ID: "employee-mate", WorkOrderNumber: "N3", EmployeeIDs: []string{"E1"}, PlannedStart: ptrTime(at(4, 8, 0)), PlannedEnd: ptrTime(at(4, 8, 45))},
		}
		store := newWorkOrderStoreStub()
		store.seed(orders...)
		svc := newTestWorkOrderService(store)

		result, err := svc.ResolveOverlaps(context.Background(), ResolveOverlapsParams{Principal: testPrincipal, WorkOrders: orders})
		require.NoError(t, err)
		assert.Equal(t, 4, result.UpdatedCount)

		shared := store.get("shared")
		require.Len(t, shared.ActivityLog, 2)
		assert.Contains(t, shared.ActivityLog[0].Details, "employee E1")
		assert.Contains(t, shared.ActivityLog[1].Details, "team T1")
		assert.True(t, at(4, 9, 0).Equal(*shared.PlannedStart), "the team bucket is applied last")
	})

	t.Run("failed updates are reported and skipped", func(t *testing.T) {
		t.Parallel()

		orders := []WorkOrder{
			{ID: "a", WorkOrderNumber: "N1", TeamIDs: []string{"T1"}, PlannedStart: ptrTime(at(4, 9, 0)), PlannedEnd: ptrTime(at(4, 10, 0))},
			{ID: "b", WorkOrderNumber: "N2", TeamIDs: []string{"T1"}, PlannedStart: ptrTime(at(4, 9, 0)), PlannedEnd: ptrTime(at(4, 10, 0))},
			{ID: "ghost", WorkOrderNumber: "N3", TeamIDs: []string{"T1"}, PlannedStart: ptrTime(at(4, 9, 0)), PlannedEnd: ptrTime(at(4, 10, 0))},
		}
		store := newWorkOrderStoreStub()
		store.seed(orders[0], orders[1])
		store.updateErrs = map[string]error{"a": errors.New("locked")}
		svc := newTestWorkOrderService(store)

		result, err := svc.ResolveOverlaps(context.Background(), ResolveOverlapsParams{Principal: testPrincipal, WorkOrders: orders})
		require.NoError(t, err)
		assert.Equal(t, 1, result.UpdatedCount)
		require.Len(t, result.Updated, 1)
		assert.Equal(t, "b", result.Updated[0].ID)

		require.Len(t, result.Failed, 2)
		assert.Equal(t, FailedItem{ID: "a", Error: "locked"}, result.Failed[0])
		assert.Equal(t, "ghost", result.Failed[1].ID)
		assert.Contains(t, result.Summary, "updated 1 of 3")
	})

	t.Run("validates the candidate set", func(t *testing.T) {
		t.Parallel()

		svc := newTestWorkOrderService(newWorkOrderStoreStub())

		_, err := svc.ResolveOverlaps(context.Background(), ResolveOverlapsParams{Principal: testPrincipal})
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Contains(t, vErr.FieldErrors, "overlapping_work_orders")

		_, err = svc.ResolveOverlaps(context.Background(), ResolveOverlapsParams{Principal: testPrincipal, WorkOrders: []WorkOrder{{WorkOrderNumber: "N1"}}})
		require.ErrorAs(t, err, &vErr)
		assert.Contains(t, vErr.FieldErrors, "overlapping_work_orders[0].id")

		_, err = svc.ResolveOverlaps(context.Background(), ResolveOverlapsParams{WorkOrders: []WorkOrder{{ID: "a"}}})
		assert.ErrorIs(t, err, ErrUnauthorized)
	})
}

func TestWorkOrderService_Reads(t *testing.T) {
	t.Parallel()

	store := newWorkOrderStoreStub()
	store.seed(WorkOrder{ID: "a", WorkOrderNumber: "N1"}, WorkOrder{ID: "b", WorkOrderNumber: "N2"})
	svc := newTestWorkOrderService(store)
	ctx := context.Background()

	order, err := svc.GetWorkOrder(ctx, testPrincipal, "a")
	require.NoError(t, err)
	assert.Equal(t, "N1", order.WorkOrderNumber)

	_, err = svc.GetWorkOrder(ctx, testPrincipal, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	orders, err := svc.ListWorkOrders(ctx, testPrincipal, ListWorkOrdersParams{Sort: "-created_at", Limit: 1})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "b", orders[0].ID)

	_, err = svc.ListWorkOrders(ctx, testPrincipal, ListWorkOrdersParams{Sort: "priority"})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.FieldErrors, "sort")

	_, err = svc.ListWorkOrders(ctx, Principal{}, ListWorkOrdersParams{})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

// workOrderStoreStub is an insertion-ordered WorkOrderStore with per-call
// failure injection.
type workOrderStoreStub struct {
	mu         sync.Mutex
	orders     map[string]WorkOrder
	ids        []string
	creates    int
	updates    int
	createErrs map[int]error
	updateErrs map[string]error
	listErr    error
}

func newWorkOrderStoreStub() *workOrderStoreStub {
	return &workOrderStoreStub{orders: make(map[string]WorkOrder)}
}

func (s *workOrderStoreStub) seed(orders ...WorkOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, order := range orders {
		order.ActivityLog = cloneActivity(order.ActivityLog)
		s.orders[order.ID] = order
		s.ids = append(s.ids, order.ID)
	}
}

func (s *workOrderStoreStub) all() []WorkOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	orders := make([]WorkOrder, 0, len(s.ids))
	for _, id := range s.ids {
		orders = append(orders, s.orders[id])
	}
	return orders
}

func (s *workOrderStoreStub) get(id string) WorkOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[id]
}

func (s *workOrderStoreStub) updateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

func (s *workOrderStoreStub) CreateWorkOrder(ctx context.Context, order WorkOrder) (WorkOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	if err := s.createErrs[s.creates]; err != nil {
		return WorkOrder{}, err
	}
	order.ID = fmt.Sprintf("wo-%d", s.creates)
	s.orders[order.ID] = order
	s.ids = append(s.ids, order.ID)
	return order, nil
}

func (s *workOrderStoreStub) UpdateWorkOrder(ctx context.Context, id string, patch WorkOrderPatch) (WorkOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.updateErrs[id]; err != nil {
		return WorkOrder{}, err
	}
	order, ok := s.orders[id]
	if !ok {
		return WorkOrder{}, fmt.Errorf("stub: %w", persistence.ErrNotFound)
	}
	s.updates++
	if patch.PlannedStart != nil {
		order.PlannedStart = ptrTime(*patch.PlannedStart)
	}
	if patch.PlannedEnd != nil {
		order.PlannedEnd = ptrTime(*patch.PlannedEnd)
	}
	if patch.ActivityLog != nil {
		order.ActivityLog = cloneActivity(patch.ActivityLog)
	}
	order.UpdatedAt = patch.UpdatedAt
	s.orders[id] = order
	return order, nil
}

func (s *workOrderStoreStub) GetWorkOrder(ctx context.Context, id string) (WorkOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return WorkOrder{}, persistence.ErrNotFound
	}
	return order, nil
}

func (s *workOrderStoreStub) ListWorkOrders(ctx context.Context, params ListWorkOrdersParams) ([]WorkOrder, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	_, descending, err := persistence.ParseSort(params.Sort)
	if err != nil {
		return nil, err
	}
	orders := s.all()
	if descending {
		for i, j := 0, len(orders)-1; i < j; i, j = i+1, j-1 {
			orders[i], orders[j] = orders[j], orders[i]
		}
	}
	if params.Limit > 0 && len(orders) > params.Limit {
		orders = orders[:params.Limit]
	}
	return orders, nil
}
