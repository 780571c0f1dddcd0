package persistence

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// UserRepository exposes the user operations the session gate needs.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
}

// SessionRepository stores authentication session state.
type SessionRepository interface {
	CreateSession(ctx context.Context, session Session) (Session, error)
	GetSession(ctx context.Context, token string) (Session, error)
	RevokeSession(ctx context.Context, token string, revokedAt time.Time) (Session, error)
	DeleteExpiredSessions(ctx context.Context, reference time.Time) error
}

// WorkOrderRepository stores work orders. Each call is independent; there are
// no multi-record transactions.
type WorkOrderRepository interface {
	CreateWorkOrder(ctx context.Context, order WorkOrder) (WorkOrder, error)
	UpdateWorkOrder(ctx context.Context, id string, patch WorkOrderPatch) (WorkOrder, error)
	GetWorkOrder(ctx context.Context, id string) (WorkOrder, error)
	ListWorkOrders(ctx context.Context, opts ListOptions) ([]WorkOrder, error)
}

// SortField names a column work orders can be listed by.
type SortField string

const (
	SortCreatedAt    SortField = "created_at"
	SortPlannedStart SortField = "planned_start_time"
)

// ListOptions narrows ListWorkOrders. Sort takes a field name optionally
// prefixed with "-" for descending order. Limit <= 0 means unbounded.
type ListOptions struct {
	Sort  string
	Limit int
}

// ParseSort splits a sort expression into its field and direction. An empty
// expression sorts by creation time ascending.
func ParseSort(expr string) (SortField, bool, error) {
	expr = strings.TrimSpace(expr)
	descending := false
	switch {
	case strings.HasPrefix(expr, "-"):
		descending = true
		expr = expr[1:]
	case strings.HasPrefix(expr, "+"):
		expr = expr[1:]
	}

	switch SortField(expr) {
	case "", SortCreatedAt:
		return SortCreatedAt, descending, nil
	case SortPlannedStart:
		return SortPlannedStart, descending, nil
	default:
		return "", false, fmt.Errorf("%w: %q", ErrInvalidSort, expr)
	}
}
