package models

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks missing or malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrStateConflict is returned when a record is not in the state an operation needs.
	ErrStateConflict = errors.New("state conflict")
	// ErrInsufficientCredit is returned when balance plus credit limit cannot cover a price.
	ErrInsufficientCredit = errors.New("insufficient credit")
	// ErrArtifactFormat is returned for an artifact that is not a readable archive.
	ErrArtifactFormat = errors.New("artifact is not a valid archive")
	// ErrConcurrencyConflict is returned when a balance changed between read and write.
	ErrConcurrencyConflict = errors.New("concurrent balance update")
	// ErrDownstream wraps failures of external collaborators.
	ErrDownstream = errors.New("downstream failure")
)

var (
	ErrInvalidState    = fmt.Errorf("%w: transition not allowed from current status", ErrStateConflict)
	ErrAlreadyResolved = fmt.Errorf("%w: appeal already resolved", ErrStateConflict)
)

// Invalid returns a validation error with a message.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
