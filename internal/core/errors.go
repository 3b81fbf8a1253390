package core

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrDuplicate          = errors.New("already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotAuthenticated   = errors.New("not authenticated")
)

// NotFoundError reports an unknown entity id. It matches ErrNotFound.
type NotFoundError struct {
	Kind string
	ID   any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ImportFailure reports a store write failure in the middle of an import
// batch. The batch has been rolled back when it is returned.
type ImportFailure struct {
	AccountID int64
	Err       error
}

func (e *ImportFailure) Error() string {
	return fmt.Sprintf("import into account %d failed: %v", e.AccountID, e.Err)
}

func (e *ImportFailure) Unwrap() error {
	return e.Err
}

// ValidationError reports a malformed input. Record is the 1-based position
// of the offending record within an import batch, 0 outside of imports.
type ValidationError struct {
	Field  string
	Reason string
	Record int
}

func (e *ValidationError) Error() string {
	if e.Record > 0 {
		return fmt.Sprintf("record %d: invalid %s: %s", e.Record, e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewNotFound is shorthand for a NotFoundError.
func NewNotFound(kind string, id any) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
