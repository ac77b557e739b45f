package processor

import (
	"errors"
	"fmt"
)

// ErrProcessor is the sentinel every processor failure matches.
var ErrProcessor = errors.New("processor_api_error")

// ErrorKind classifies a processor failure for retry decisions.
type ErrorKind string

const (
	// KindIdempotencyConflict means a request with the same idempotency
	// key is still in flight. The only safe response is to wait and
	// retry with the SAME key; minting a fresh key would reintroduce the
	// duplicate-operation risk the key exists to prevent.
	KindIdempotencyConflict ErrorKind = "idempotency_conflict"

	// KindConnection is a network or connection-level failure.
	KindConnection ErrorKind = "connection"

	// KindAPI is any other processor rejection. Not retryable.
	KindAPI ErrorKind = "api"
)

// Error is a classified processor failure.
type Error struct {
	Kind       ErrorKind
	Op         string
	StatusCode int
	Message    string
	cause      error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("processor %s: %s (%s)", e.Op, e.Message, e.Kind)
	}
	return fmt.Sprintf("processor %s failed (%s)", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Is(target error) bool { return target == ErrProcessor }

// Retryable reports whether the failure may resolve by retrying with
// the same idempotency key.
func (e *Error) Retryable() bool {
	return e.Kind == KindIdempotencyConflict || e.Kind == KindConnection
}

// IsRetryable classifies any error for the retry wrapper.
func IsRetryable(err error) bool {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Retryable()
	}
	return false
}

func newError(kind ErrorKind, op string, statusCode int, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, StatusCode: statusCode, Message: message, cause: cause}
}
