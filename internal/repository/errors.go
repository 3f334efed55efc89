package repository

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// Sentinel errors surfaced by conditional writes.
var (
	ErrCapacityExceeded    = errors.New("batch capacity exceeded")
	ErrEnrollmentUnderflow = errors.New("batch enrollment cannot drop below zero")
	ErrBatchNotEmpty       = errors.New("batch still has enrolled students")
	ErrUniqueViolation     = errors.New("unique constraint violated")
)

const pqUniqueViolation = "23505"

// UniqueViolationError reports the constraint that rejected a write.
type UniqueViolationError struct {
	Constraint string
	Err        error
}

func (e *UniqueViolationError) Error() string {
	return fmt.Sprintf("unique constraint %q violated: %v", e.Constraint, e.Err)
}

func (e *UniqueViolationError) Unwrap() error { return e.Err }

// Is matches ErrUniqueViolation.
func (e *UniqueViolationError) Is(target error) bool { return target == ErrUniqueViolation }

// ViolatedConstraint returns the constraint name when err is a unique violation.
func ViolatedConstraint(err error) (string, bool) {
	var uv *UniqueViolationError
	if errors.As(err, &uv) {
		return uv.Constraint, true
	}
	return "", false
}

func classifyWriteError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
		return fmt.Errorf("%s: %w", op, &UniqueViolationError{Constraint: pqErr.Constraint, Err: err})
	}
	return fmt.Errorf("%s: %w", op, err)
}
