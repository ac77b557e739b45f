package domain

import (
	"errors"
	"fmt"
)

var (
	ErrEventNotFound = errors.New("event_not_found")
	ErrForbidden     = errors.New("forbidden")
	ErrDatabase      = errors.New("database_error")
)

// DatabaseError wraps a storage failure so callers can match ErrDatabase
// while logs keep the cause.
func DatabaseError(cause error) error {
	if cause == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrDatabase, cause)
}
