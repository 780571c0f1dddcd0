package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/moogar0880/problems"

	"github.com/example/workorder-scheduler/internal/application"
)

const problemContentType = "application/problem+json"

var (
	errBadRequestBody      = errors.New("request body must be a valid JSON document")
	errMissingSessionToken = errors.New("a session token is required")
	errInvalidSession      = errors.New("the session is invalid or has expired; sign in again")
	errMissingWorkOrderID  = errors.New("work order id is required")
)

// validationProblem is an RFC 7807 document extended with per-field messages.
type validationProblem struct {
	*problems.Problem
	Errors map[string]string `json:"errors,omitempty"`
}

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	r.write(ctx, w, status, "application/json; charset=utf-8", payload)
}

func (r responder) write(ctx context.Context, w http.ResponseWriter, status int, contentType string, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// writeProblem writes a problem document whose detail is err's message.
func (r responder) writeProblem(ctx context.Context, w http.ResponseWriter, req *http.Request, status int, problemType string, err error) {
	problem := problems.NewStatusProblem(status).
		WithInstance(req.URL.Path).
		WithType(problemType)
	if err != nil {
		problem = problem.WithDetail(err.Error())
		r.loggerFor(ctx).ErrorContext(ctx, "request failed", "status", status, "error", err)
	}
	r.write(ctx, w, status, problemContentType, problem)
}

func (r responder) writeValidation(ctx context.Context, w http.ResponseWriter, req *http.Request, vErr *application.ValidationError) {
	problem := validationProblem{
		Problem: problems.NewStatusProblem(http.StatusBadRequest).
			WithInstance(req.URL.Path).
			WithType("validation_error").
			WithDetail(vErr.Error()),
		Errors: vErr.FieldErrors,
	}
	r.loggerFor(ctx).WarnContext(ctx, "request rejected", "status", http.StatusBadRequest, "fields", vErr.Fields())
	r.write(ctx, w, http.StatusBadRequest, problemContentType, problem)
}

// handleServiceError maps service errors onto HTTP statuses. Unexpected errors
// are surfaced with their raw message.
func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, req *http.Request, err error) {
	if err == nil {
		r.writeProblem(ctx, w, req, http.StatusInternalServerError, "internal_error", errors.New("unknown error"))
		return
	}

	var vErr *application.ValidationError
	switch {
	case errors.As(err, &vErr):
		r.writeValidation(ctx, w, req, vErr)
	case errors.Is(err, application.ErrUnauthorized),
		errors.Is(err, application.ErrInvalidCredentials),
		errors.Is(err, application.ErrSessionExpired),
		errors.Is(err, application.ErrSessionRevoked):
		r.writeProblem(ctx, w, req, http.StatusUnauthorized, "unauthorized", err)
	case errors.Is(err, application.ErrNotFound):
		r.writeProblem(ctx, w, req, http.StatusNotFound, "not_found", err)
	case errors.Is(err, application.ErrAlreadyExists):
		r.writeProblem(ctx, w, req, http.StatusConflict, "conflict", err)
	default:
		r.writeProblem(ctx, w, req, http.StatusInternalServerError, "internal_error", err)
	}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}
