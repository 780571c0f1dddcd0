package application

import "testing"

func TestValidationError_Error(t *testing.T) {
	t.Parallel()

	var err *ValidationError
	if err.Error() != "" {
		t.Fatalf("expected empty string for nil error, got %q", err.Error())
	}

	empty := &ValidationError{}
	if got := empty.Error(); got != "validation failed" {
		t.Fatalf("expected generic message for empty error, got %q", got)
	}

	withFields := &ValidationError{FieldErrors: map[string]string{"recurrence_type": "is required", "baseWorkOrder": "is required"}}
	if got, want := withFields.Error(), "validation failed: baseWorkOrder: is required; recurrence_type: is required"; got != want {
		t.Fatalf("expected message naming every field %q, got %q", want, got)
	}
}

func TestNewValidationError(t *testing.T) {
	t.Parallel()

	err := NewValidationError("recurrence_end_date", "is required")
	if !err.HasErrors() {
		t.Fatalf("expected a field error to be recorded")
	}
	if fields := err.Fields(); len(fields) != 1 || fields[0] != "recurrence_end_date" {
		t.Fatalf("unexpected fields %v", fields)
	}
}

func TestValidationError_HasErrors(t *testing.T) {
	t.Parallel()

	if err := (&ValidationError{}).HasErrors(); err {
		t.Fatalf("expected HasErrors to report false for empty error")
	}

	if err := (&ValidationError{FieldErrors: map[string]string{"field": "bad"}}).HasErrors(); !err {
		t.Fatalf("expected HasErrors to report true when fields are present")
	}
}

func TestValidationError_AddAndMerge(t *testing.T) {
	t.Parallel()

	base := &ValidationError{}
	base.add("first", "value")
	if got := base.FieldErrors["first"]; got != "value" {
		t.Fatalf("expected add to populate map, got %q", got)
	}

	other := &ValidationError{FieldErrors: map[string]string{"second": "another"}}
	base.merge(other)
	if got := base.FieldErrors["second"]; got != "another" {
		t.Fatalf("expected merge to copy field, got %q", got)
	}

	base.merge(nil)
	if len(base.FieldErrors) != 2 {
		t.Fatalf("expected merge with nil to leave fields unchanged")
	}
}
