package http

import (
	"context"
	"log/slog"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

// handlerLogger scopes a log line to one WorkOrderHandler or AuthHandler
// operation. The request logger installed by RequestLogger takes precedence
// over the handler's own, and the authenticated planner is attached when
// RequireSession has resolved one.
func handlerLogger(ctx context.Context, fallback *slog.Logger, handlerName, operation string, attrs ...any) *slog.Logger {
	logger := LoggerFromContext(ctx)
	if logger == nil {
		logger = defaultLogger(fallback)
	}

	pairs := make([]any, 0, 4+len(attrs))
	pairs = append(pairs, "handler", handlerName)
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	if principal, ok := PrincipalFromContext(ctx); ok && principal.UserID != "" {
		pairs = append(pairs, "principal_id", principal.UserID)
	}
	return logger.With(append(pairs, attrs...)...)
}
