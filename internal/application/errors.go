package application

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrUnauthorized is returned when the acting principal lacks permission for an operation.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrAlreadyExists is returned when a unique attribute is already taken.
	ErrAlreadyExists = errors.New("application: already exists")
	// ErrInvalidCredentials is returned for unknown users, bad passwords and unknown tokens.
	ErrInvalidCredentials = errors.New("application: invalid credentials")
	// ErrSessionExpired is returned when a session token is past its expiry.
	ErrSessionExpired = errors.New("application: session expired")
	// ErrSessionRevoked is returned when a session token was revoked.
	ErrSessionRevoked = errors.New("application: session revoked")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface. The message names every offending
// field so it can be shown to callers as is.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	if len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := v.Fields()
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+": "+v.FieldErrors[field])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Fields returns the offending field names in sorted order.
func (v *ValidationError) Fields() []string {
	if v == nil {
		return nil
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for field := range v.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// NewValidationError returns a ValidationError holding a single field issue.
func NewValidationError(field, message string) *ValidationError {
	v := &ValidationError{}
	v.add(field, message)
	return v
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// merge copies entries from another validation error into the receiver.
func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}
