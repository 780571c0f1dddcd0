package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when a unique key is already taken.
	ErrDuplicate = errors.New("persistence: duplicate record")
	// ErrConstraintViolation is returned when a record fails a storage constraint.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
	// ErrForeignKeyViolation is returned when a referenced record is missing.
	ErrForeignKeyViolation = errors.New("persistence: foreign key violation")
	// ErrInvalidSort is returned for an unsupported list ordering.
	ErrInvalidSort = errors.New("persistence: invalid sort")
)
