package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/workorder-scheduler/internal/application"
)

const requestIDHeader = "X-Request-ID"

type SessionValidator interface {
	ValidateSession(ctx context.Context, token string) (application.Principal, error)
}

// RequireSession rejects requests without a valid bearer token and stores the
// resolved principal in the request context.
func RequireSession(validator SessionValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	responder := newResponder(logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token := extractTokenFromRequest(r)
			if token == "" {
				responder.writeProblem(ctx, w, r, http.StatusUnauthorized, "unauthorized", errMissingSessionToken)
				return
			}

			principal, err := validator.ValidateSession(ctx, token)
			if err != nil {
				if !isSessionRejection(err) {
					responder.handleServiceError(ctx, w, r, err)
					return
				}
				responder.writeProblem(ctx, w, r, http.StatusUnauthorized, "unauthorized", errInvalidSession)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(ctx, principal)))
		})
	}
}

func isSessionRejection(err error) bool {
	return errors.Is(err, application.ErrUnauthorized) ||
		errors.Is(err, application.ErrNotFound) ||
		errors.Is(err, application.ErrInvalidCredentials) ||
		errors.Is(err, application.ErrSessionExpired) ||
		errors.Is(err, application.ErrSessionRevoked)
}

// RequestLogger attaches a request-scoped logger carrying a request id. An
// incoming X-Request-ID header is reused; otherwise a uuid is generated.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(requestIDHeader))
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, id)

			logger := base.With(
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
			)

			ctx := ContextWithLogger(r.Context(), logger)
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			logger.DebugContext(ctx, "request started")
			next.ServeHTTP(recorder, r.WithContext(ctx))
			logger.InfoContext(ctx, "request completed", "status", recorder.status, "duration", time.Since(start))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}
