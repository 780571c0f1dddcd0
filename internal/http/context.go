package http

import (
	"context"
	"log/slog"

	"github.com/example/workorder-scheduler/internal/application"
	"github.com/example/workorder-scheduler/internal/logging"
)

type contextKey string

const (
	principalContextKey   contextKey = "principal"
	workOrderIDContextKey contextKey = "work_order_id"
)

// ContextWithPrincipal returns a derived context containing the authenticated principal.
func ContextWithPrincipal(ctx context.Context, principal application.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, principal)
}

// PrincipalFromContext extracts the authenticated principal from context if available.
func PrincipalFromContext(ctx context.Context) (application.Principal, bool) {
	principal, ok := ctx.Value(principalContextKey).(application.Principal)
	return principal, ok
}

// ContextWithWorkOrderID injects the work order identifier resolved from the request path.
func ContextWithWorkOrderID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, workOrderIDContextKey, id)
}

// WorkOrderIDFromContext extracts a work order identifier previously associated with the context.
func WorkOrderIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(workOrderIDContextKey).(string)
	return id, ok
}

// ContextWithLogger stores the request-scoped logger.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return logging.ContextWithLogger(ctx, logger)
}

// LoggerFromContext returns the request-scoped logger, or nil.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx)
}
