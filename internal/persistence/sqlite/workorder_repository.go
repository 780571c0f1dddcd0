package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/example/workorder-scheduler/internal/persistence"
)

const workOrderColumns = `id, work_order_number, title, notes, category, shift_type, status, branch_id,
	team_ids, employee_ids, planned_start_time, planned_end_time,
	is_recurring, recurrence_parent_id, recurrence_type, recurrence_interval, recurrence_end_date,
	skip_weekends, moved_from_sunday, activity_log, created_by, created_at, updated_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// WorkOrderRepository implements persistence.WorkOrderRepository using SQLite
type WorkOrderRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
	now    func() time.Time
}

// NewWorkOrderRepository creates a new SQLite work order repository
func NewWorkOrderRepository(pool *ConnectionPool, now func() time.Time) *WorkOrderRepository {
	if now == nil {
		now = time.Now
	}
	return &WorkOrderRepository{pool: pool, mapper: NewErrorMapper(), now: now}
}

// CreateWorkOrder inserts a work order. A missing ID is generated and missing
// timestamps default to the repository clock.
func (r *WorkOrderRepository) CreateWorkOrder(ctx context.Context, order persistence.WorkOrder) (persistence.WorkOrder, error) {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.WorkOrderNumber == "" {
		return persistence.WorkOrder{}, fmt.Errorf("%w: work order number is required", persistence.ErrConstraintViolation)
	}

	now := r.now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = order.CreatedAt
	}

	teamIDs, err := encodeJSON(order.TeamIDs, "[]")
	if err != nil {
		return persistence.WorkOrder{}, err
	}
	employeeIDs, err := encodeJSON(order.EmployeeIDs, "[]")
	if err != nil {
		return persistence.WorkOrder{}, err
	}
	activityLog, err := encodeJSON(order.ActivityLog, "[]")
	if err != nil {
		return persistence.WorkOrder{}, err
	}

	_, err = r.pool.DB().ExecContext(ctx,
		`INSERT INTO work_orders (`+workOrderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID,
		order.WorkOrderNumber,
		order.Title,
		order.Notes,
		order.Category,
		order.ShiftType,
		order.Status,
		order.BranchID,
		teamIDs,
		employeeIDs,
		nullableTime(order.PlannedStart),
		nullableTime(order.PlannedEnd),
		order.IsRecurring,
		nullableString(order.RecurrenceParentID),
		order.RecurrenceType,
		order.RecurrenceInterval,
		nullableTime(order.RecurrenceEndDate),
		order.SkipWeekends,
		order.MovedFromSunday,
		activityLog,
		order.CreatedBy,
		formatTime(order.CreatedAt),
		formatTime(order.UpdatedAt),
	)
	if err != nil {
		return persistence.WorkOrder{}, r.mapper.MapError(err)
	}

	return r.GetWorkOrder(ctx, order.ID)
}

// UpdateWorkOrder applies patch to the stored record and returns the result.
func (r *WorkOrderRepository) UpdateWorkOrder(ctx context.Context, id string, patch persistence.WorkOrderPatch) (persistence.WorkOrder, error) {
	if id == "" {
		return persistence.WorkOrder{}, persistence.ErrNotFound
	}
	if patch.UpdatedAt.IsZero() {
		patch.UpdatedAt = r.now().UTC()
	}

	var updated persistence.WorkOrder
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+workOrderColumns+` FROM work_orders WHERE id = ?`, id)
		current, err := scanWorkOrder(row)
		if err != nil {
			return r.mapper.MapError(err)
		}

		updated = patch.Apply(current)
		activityLog, err := encodeJSON(updated.ActivityLog, "[]")
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE work_orders
			SET planned_start_time = ?, planned_end_time = ?, status = ?, activity_log = ?, updated_at = ?
			WHERE id = ?
		`,
			nullableTime(updated.PlannedStart),
			nullableTime(updated.PlannedEnd),
			updated.Status,
			activityLog,
			formatTime(updated.UpdatedAt),
			id,
		)
		return r.mapper.MapError(err)
	})
	if err != nil {
		return persistence.WorkOrder{}, err
	}

	return r.GetWorkOrder(ctx, id)
}

// GetWorkOrder retrieves a work order by ID.
func (r *WorkOrderRepository) GetWorkOrder(ctx context.Context, id string) (persistence.WorkOrder, error) {
	if id == "" {
		return persistence.WorkOrder{}, persistence.ErrNotFound
	}
	row := r.pool.DB().QueryRowContext(ctx, `SELECT `+workOrderColumns+` FROM work_orders WHERE id = ?`, id)
	order, err := scanWorkOrder(row)
	if err != nil {
		return persistence.WorkOrder{}, r.mapper.MapError(err)
	}
	return order, nil
}

// ListWorkOrders returns work orders in the requested order. Ties on the sort
// column fall back to insertion order.
func (r *WorkOrderRepository) ListWorkOrders(ctx context.Context, opts persistence.ListOptions) ([]persistence.WorkOrder, error) {
	field, descending, err := persistence.ParseSort(opts.Sort)
	if err != nil {
		return nil, err
	}

	column := "created_at"
	if field == persistence.SortPlannedStart {
		column = "planned_start_time"
	}
	direction := "ASC"
	if descending {
		direction = "DESC"
	}

	query := fmt.Sprintf(`SELECT %s FROM work_orders ORDER BY %s %s, rowid %s`, workOrderColumns, column, direction, direction)
	args := []any{}
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := r.pool.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	orders := make([]persistence.WorkOrder, 0)
	for rows.Next() {
		order, err := scanWorkOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return orders, nil
}

func scanWorkOrder(row rowScanner) (persistence.WorkOrder, error) {
	var (
		order                                   persistence.WorkOrder
		teamIDs, employeeIDs, activityLog       string
		plannedStart, plannedEnd, recurrenceEnd sql.NullString
		parentID                                sql.NullString
		createdAt, updatedAt                    string
	)
	if err := row.Scan(
		&order.ID,
		&order.WorkOrderNumber,
		&order.Title,
		&order.Notes,
		&order.Category,
		&order.ShiftType,
		&order.Status,
		&order.BranchID,
		&teamIDs,
		&employeeIDs,
		&plannedStart,
		&plannedEnd,
		&order.IsRecurring,
		&parentID,
		&order.RecurrenceType,
		&order.RecurrenceInterval,
		&recurrenceEnd,
		&order.SkipWeekends,
		&order.MovedFromSunday,
		&activityLog,
		&order.CreatedBy,
		&createdAt,
		&updatedAt,
	); err != nil {
		return persistence.WorkOrder{}, err
	}

	order.RecurrenceParentID = parentID.String

	var err error
	if err = json.Unmarshal([]byte(teamIDs), &order.TeamIDs); err != nil {
		return persistence.WorkOrder{}, fmt.Errorf("failed to decode team_ids: %w", err)
	}
	if err = json.Unmarshal([]byte(employeeIDs), &order.EmployeeIDs); err != nil {
		return persistence.WorkOrder{}, fmt.Errorf("failed to decode employee_ids: %w", err)
	}
	if err = json.Unmarshal([]byte(activityLog), &order.ActivityLog); err != nil {
		return persistence.WorkOrder{}, fmt.Errorf("failed to decode activity_log: %w", err)
	}
	if order.PlannedStart, err = parseNullableTime(plannedStart); err != nil {
		return persistence.WorkOrder{}, fmt.Errorf("failed to parse planned_start_time: %w", err)
	}
	if order.PlannedEnd, err = parseNullableTime(plannedEnd); err != nil {
		return persistence.WorkOrder{}, fmt.Errorf("failed to parse planned_end_time: %w", err)
	}
	if order.RecurrenceEndDate, err = parseNullableTime(recurrenceEnd); err != nil {
		return persistence.WorkOrder{}, fmt.Errorf("failed to parse recurrence_end_date: %w", err)
	}
	if order.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.WorkOrder{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if order.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.WorkOrder{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return order, nil
}

func encodeJSON(value any, empty string) (string, error) {
	encoded, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("failed to encode column: %w", err)
	}
	if string(encoded) == "null" {
		return empty, nil
	}
	return string(encoded), nil
}
