// Package fault defines the error taxonomy shared across the engine.
// Every error carries a machine-readable Kind next to its human message so
// callers can route on classification without string matching.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation and recovery decisions.
type Kind string

const (
	// KindConcurrencyConflict means an optimistic version check failed.
	KindConcurrencyConflict Kind = "concurrency_conflict"

	// KindDomainViolation means an aggregate rejected a command.
	KindDomainViolation Kind = "domain_violation"

	// KindInvalidInput means the caller passed malformed arguments.
	KindInvalidInput Kind = "invalid_input"

	// KindEncodingFailed means a payload could not be serialized or decoded.
	KindEncodingFailed Kind = "encoding_failed"

	// KindStorageUnavailable means a transient storage I/O failure.
	KindStorageUnavailable Kind = "storage_unavailable"

	// KindBrokerUnavailable means the message broker could not be reached
	// or did not acknowledge in time.
	KindBrokerUnavailable Kind = "broker_unavailable"

	// KindCircuitOpen means the circuit breaker rejected the call without
	// invoking the downstream.
	KindCircuitOpen Kind = "circuit_open"

	// KindDlqInsertFailed means the dead-letter store rejected an insert
	// after exhausting retries.
	KindDlqInsertFailed Kind = "dlq_insert_failed"

	// KindSupervisorFatal means the supervisor itself failed and the
	// process must exit.
	KindSupervisorFatal Kind = "supervisor_fatal"

	// KindUnknown is the classification of errors not produced by this
	// module.
	KindUnknown Kind = "unknown"
)

// Sentinel errors for the kinds callers commonly branch on.
var (
	ErrConcurrencyConflict = &Error{kind: KindConcurrencyConflict, msg: "concurrency conflict: aggregate version mismatch"}
	ErrCircuitOpen         = &Error{kind: KindCircuitOpen, msg: "circuit breaker is open"}
	ErrAggregateNotFound   = errors.New("aggregate not found")
)

// Error is the concrete error type produced by the engine.
type Error struct {
	kind  Kind
	msg   string
	cause error
}

// New creates an Error with the given kind and message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error with the given kind, message, and cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...), cause: cause}
}

// Kind returns the machine-readable classification.
func (e *Error) Kind() Kind {
	return e.kind
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.cause)
	}
	return e.msg
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches any *Error with the same kind, so
// errors.Is(err, fault.ErrConcurrencyConflict) works for wrapped errors.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.kind == t.kind
	}
	return false
}

// KindOf extracts the Kind from an error chain. Errors not produced by this
// module report KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindUnknown
}

// IsTransient reports whether the error is worth retrying. Storage and
// broker connectivity failures recover on their own; a rejecting breaker
// recovers once its cooldown elapses. Everything else is permanent.
func IsTransient(err error) bool {
	switch KindOf(err) {
	case KindStorageUnavailable, KindBrokerUnavailable, KindCircuitOpen:
		return true
	}
	return false
}
