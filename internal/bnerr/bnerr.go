// Package bnerr defines Banyan's error taxonomy (spec.md §7).
//
// Every locally recoverable condition is reported as a structured Error so
// the HTTP layer can translate it into the {status, issues} envelope without
// re-deriving the kind from string matching, following the sentinel-error
// plus errors.Is style used by the teacher pack's error_mapper.go.
package bnerr

import (
	"errors"
	"fmt"
)

// Kind identifies the class of a Banyan error.
type Kind int

const (
	// KindUnknown indicates a non-Banyan error, typically an unexpected
	// infrastructure failure that should surface as 500/Fatal.
	KindUnknown Kind = iota
	// KindUnauthorized is a missing/unknown token or a disallowed role/method.
	KindUnauthorized
	// KindValidationFailed covers schema, invariant, and cross-field issues.
	KindValidationFailed
	// KindNotFound indicates the target task/record does not exist.
	KindNotFound
	// KindConflict indicates a duplicate unique field.
	KindConflict
	// KindTransient indicates a store or notifier socket error.
	KindTransient
	// KindFatal indicates an internal invariant violation.
	KindFatal
)

// Sub-kinds of KindValidationFailed, surfaced in Issues keys for callers
// that want to branch on the specific rule that failed.
const (
	SubBadTransition          = "bad_transition"
	SubMissingExecutionData   = "missing_execution_data"
	SubContinuationNotInactive = "continuation_not_inactive"
	SubSelfLoop               = "self_loop"
	SubMutateAfterInactive    = "mutate_after_inactive"
	SubSizeLimit              = "size_limit"
	SubUnknownField           = "unknown_field"
)

// Error is Banyan's structured error type.
type Error struct {
	Kind    Kind
	Message string
	Issues  map[string]string
	cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.String()
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As chains.
func (e *Error) Unwrap() error { return e.cause }

// String renders a human-readable name for the Kind.
func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindValidationFailed:
		return "validation_failed"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindTransient:
		return "transient"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// New creates an Error of the given kind with a message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a Kind to an underlying cause, preserving it for errors.Is.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// WithIssue attaches a single field-level issue and returns the receiver for
// chaining, e.g. bnerr.New(...).WithIssue("continuations", "self-loop").
func (e *Error) WithIssue(field, message string) *Error {
	if e.Issues == nil {
		e.Issues = make(map[string]string, 1)
	}
	e.Issues[field] = message
	return e
}

// WithSub is shorthand for WithIssue(sub, message) using one of the Sub*
// constants as the field key, for validation errors that don't map cleanly
// to a single request field.
func (e *Error) WithSub(sub, message string) *Error {
	return e.WithIssue(sub, message)
}

// KindOf extracts the Kind from err if it is (or wraps) a *Error; otherwise
// KindUnknown.
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindUnknown
}

// Validation builds a KindValidationFailed error with a single sub-kind
// issue, the common case throughout the continuation/statemachine packages.
func Validation(sub, message string) *Error {
	return New(KindValidationFailed, message).WithSub(sub, message)
}

// NotFound builds a KindNotFound error for the given resource/id pair.
func NotFound(resource, id string) *Error {
	return Newf(KindNotFound, "%s %q not found", resource, id)
}

// Unauthorized builds a KindUnauthorized error.
func Unauthorized(message string) *Error {
	return New(KindUnauthorized, message)
}

// Conflict builds a KindConflict error for a duplicate unique field.
func Conflict(field, value string) *Error {
	return Newf(KindConflict, "%s %q already exists", field, value).WithIssue(field, "duplicate")
}
