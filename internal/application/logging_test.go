package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/example/workorder-scheduler/internal/persistence"
)

func TestDefaultLogger(t *testing.T) {
	t.Parallel()

	custom := slog.New(slog.NewTextHandler(io.Discard, nil))
	if got := defaultLogger(custom); got != custom {
		t.Fatalf("expected custom logger to be returned")
	}

	if got := defaultLogger(nil); got != slog.Default() {
		t.Fatalf("expected default logger when none provided")
	}
}

func TestErrorKind(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrUnauthorized, "unauthorized"},
		{fmt.Errorf("wrap: %w", ErrNotFound), "not_found"},
		{ErrInvalidCredentials, "invalid_credentials"},
		{ErrSessionExpired, "session_expired"},
		{context.Canceled, "canceled"},
		{fmt.Errorf("sqlite: %w", persistence.ErrConstraintViolation), "store_constraint"},
		{NewValidationError("title", "is required"), "validation"},
		{errors.New("boom"), "unexpected"},
	}
	for _, tc := range cases {
		if got := ErrorKind(tc.err); got != tc.want {
			t.Errorf("ErrorKind(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
