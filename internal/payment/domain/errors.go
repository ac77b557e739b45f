package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAttendance    = errors.New("invalid_attendance")
	ErrInvalidAmount        = errors.New("invalid_amount")
	ErrInvalidMethod        = errors.New("invalid_method")
	ErrAttendanceNotFound   = errors.New("attendance_not_found")
	ErrPaymentNotFound      = errors.New("payment_not_found")
	ErrPaymentAlreadyExists = errors.New("payment_already_exists")
	ErrConcurrentUpdate     = errors.New("concurrent_update")

	// ErrDatabase marks unexpected persistence failures. Expected races
	// (duplicate key, lost compare-and-swap) are reclassified before they
	// reach callers and never surface as ErrDatabase.
	ErrDatabase = errors.New("database_error")

	// ErrInvalidStatusTransition is the sentinel all transition failures
	// match; the concrete error carries both states.
	ErrInvalidStatusTransition = errors.New("invalid_status_transition")
)

// InvalidTransitionError names both states of a rejected transition.
type InvalidTransitionError struct {
	Method Method
	From   Status
	To     Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid_status_transition: %s -> %s (method %s)", e.From, e.To, e.Method)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidStatusTransition
}

// DatabaseError wraps an unexpected persistence failure with its cause.
func DatabaseError(cause error) error {
	if cause == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrDatabase, cause)
}
