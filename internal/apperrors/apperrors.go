// Package apperrors defines the error-kind taxonomy the run-control core
// surfaces to its callers. Each kind is a package-level sentinel wrapped
// with context via fmt.Errorf("%s: %w", msg, ErrXxx) and checked with
// errors.Is, the same construction the HTTP error mapper expects.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound: unknown task/run id.
	ErrNotFound = errors.New("not found")
	// ErrPrecondition: wrong status for the requested transition.
	ErrPrecondition = errors.New("precondition failed")
	// ErrUnauthorized: bad approval token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrTransport: bridge disconnect or send failure.
	ErrTransport = errors.New("transport error")
	// ErrTimeout: bridge or broadcast send exceeded its deadline.
	ErrTimeout = errors.New("timeout")
	// ErrExecutorFailure: executor returned ok=false.
	ErrExecutorFailure = errors.New("executor failure")
	// ErrInternalInvariant: the state machine reached an impossible state.
	ErrInternalInvariant = errors.New("internal invariant violated")
)

// NotFound wraps msg with ErrNotFound.
func NotFound(msg string) error { return wrap(msg, ErrNotFound) }

// Precondition wraps msg with ErrPrecondition.
func Precondition(msg string) error { return wrap(msg, ErrPrecondition) }

// Unauthorized wraps msg with ErrUnauthorized.
func Unauthorized(msg string) error { return wrap(msg, ErrUnauthorized) }

// Transport wraps msg with ErrTransport.
func Transport(msg string) error { return wrap(msg, ErrTransport) }

// Timeout wraps msg with ErrTimeout.
func Timeout(msg string) error { return wrap(msg, ErrTimeout) }

// ExecutorFailure wraps msg with ErrExecutorFailure.
func ExecutorFailure(msg string) error { return wrap(msg, ErrExecutorFailure) }

// InternalInvariant wraps msg with ErrInternalInvariant.
func InternalInvariant(msg string) error { return wrap(msg, ErrInternalInvariant) }

func wrap(msg string, sentinel error) error {
	return fmt.Errorf("%s: %w", msg, sentinel)
}
