// Package fabricerr defines the error taxonomy shared by every component of
// the knowledge fabric. Components never return bare errors for conditions
// a caller might need to branch on; they wrap them in a *Error carrying one
// of the Kind values below.
package fabricerr

import (
	"errors"
	"fmt"
)

// Kind classifies a fabric error into one of the taxonomy buckets from the
// core specification. Callers branch on Kind via errors.As, never on the
// formatted message.
type Kind string

const (
	// ConfigurationError is fatal at start: malformed or missing config.
	ConfigurationError Kind = "configuration_error"
	// BackendUnavailable is transient: the graph backend is unreachable.
	// The GAL retries these internally up to max_retry_time before
	// surfacing one to the caller.
	BackendUnavailable Kind = "backend_unavailable"
	// PoolExhausted is transient: no connection became free before the
	// pool's configured wait bound elapsed.
	PoolExhausted Kind = "pool_exhausted"
	// ValidationError is never retried: the caller's input is bad.
	ValidationError Kind = "validation_error"
	// EntityNotFound means a referenced node or relationship endpoint
	// does not exist.
	EntityNotFound Kind = "entity_not_found"
	// DuplicateID means a Create collided with an existing id.
	DuplicateID Kind = "duplicate_id"
	// SchemaConflict is fatal during a Schema Registry domain extension.
	SchemaConflict Kind = "schema_conflict"
	// QueryError indicates a syntax or semantic error in a Cypher
	// statement; always a programmer error, never retried.
	QueryError Kind = "query_error"
	// BackpressureExceeded means the event pipeline's dispatch queue
	// stayed full past the configured backpressure wait.
	BackpressureExceeded Kind = "backpressure_exceeded"
	// ProcessorStopped means a Log call arrived after Stop.
	ProcessorStopped Kind = "processor_stopped"
	// Cancelled means the caller's context was cancelled mid-operation.
	Cancelled Kind = "cancelled"
	// Timeout means the caller's deadline elapsed mid-operation.
	Timeout Kind = "timeout"
)

// Error is the concrete type returned for every taxonomy condition. It
// wraps an optional cause and carries a human-readable message distinct
// from the cause's own message (the cause may be a raw driver error).
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is a *Error with the same Kind, so that
// errors.Is(err, fabricerr.New(ValidationError, "")) matches on Kind alone.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

// New constructs an *Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error that wraps cause, preserving it for
// errors.Unwrap/errors.As chains while attaching a Kind and message.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Of returns the Kind of err if it is (or wraps) a *Error, and false
// otherwise.
func Of(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	k, ok := Of(err)
	return ok && k == kind
}
