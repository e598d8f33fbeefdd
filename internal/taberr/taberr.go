// Package taberr defines the typed error taxonomy for the tabular engine.
//
// Every failure surfaced by the engine carries a Kind from a closed set so
// that callers (and the HTTP layer) can classify errors without string
// matching. Errors wrap an optional cause and participate in errors.Is /
// errors.As chains.
package taberr

import (
	"errors"
	"fmt"
)

// Kind classifies an engine error.
type Kind string

const (
	// FileNotFound is returned when the requested file does not exist or
	// vanished between the existence check and the read.
	FileNotFound Kind = "FILE_NOT_FOUND"
	// UnsupportedFormat is returned for file extensions the decoder does not
	// recognize.
	UnsupportedFormat Kind = "UNSUPPORTED_FORMAT"
	// ColumnNotFound is returned when a column selection names a column that
	// is not present in the data.
	ColumnNotFound Kind = "COLUMN_NOT_FOUND"
	// AggregationError is returned when required aggregation parameters are
	// missing or the aggregation kind is unknown.
	AggregationError Kind = "AGGREGATION_ERROR"
	// FilterError is returned for malformed filter clauses.
	FilterError Kind = "FILTER_ERROR"
	// CacheError is returned when an internal cache invariant is violated.
	CacheError Kind = "CACHE_ERROR"
)

// Error is a typed engine error.
type Error struct {
	kind    Kind
	message string
	wrapped error
}

// New creates an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{kind: kind, message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind wrapping a cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{kind: kind, message: fmt.Sprintf(format, args...), wrapped: err}
}

// Kind returns the error classification.
func (e *Error) Kind() Kind {
	return e.kind
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrapped)
	}
	return e.message
}

// Message returns the human-readable message without the wrapped cause.
func (e *Error) Message() string {
	return e.message
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.wrapped
}

// KindOf returns the Kind of err if it is (or wraps) an engine error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.kind, true
	}
	return "", false
}

// IsKind reports whether err is an engine error of the given kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
