// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package apperr classifies engine failures. Every failure narrows to one
// operation not finishing; none is fatal to the process. A missing
// snapshot parent is not an error and has no kind here.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is a failure class.
type Kind string

const (
	// Retrieval means a source call failed. Progress already committed is kept.
	Retrieval Kind = "retrieval"
	// Enrichment means a column computation failed. The column is kept with
	// error sentinels in every row.
	Enrichment Kind = "enrichment"
	// Validation means required input was missing; nothing was sent.
	Validation Kind = "validation"
	// Busy means another enrichment run is in progress.
	Busy Kind = "busy"
	// NotFound means a snapshot or column id does not resolve.
	NotFound Kind = "not_found"
)

// ErrStale reports that results arrived for a superseded generation and
// were dropped.
var ErrStale = errors.New("stale result: the dataset changed while the operation was in flight")

// Error is a classified failure.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

// Unwrap exposes the cause.
func (e *Error) Unwrap() error { return e.Err }

// NewValidation rejects an operation before any network call.
func NewValidation(op, format string, args ...any) *Error {
	return &Error{Kind: Validation, Op: op, Message: fmt.Sprintf(format, args...)}
}

// NewRetrieval wraps a failed source call.
func NewRetrieval(op string, source string, err error) *Error {
	return &Error{Kind: Retrieval, Op: op, Message: "source " + source, Err: err}
}

// NewEnrichment wraps a failed column computation.
func NewEnrichment(op, column string, err error) *Error {
	return &Error{Kind: Enrichment, Op: op, Message: "column " + column, Err: err}
}

// NewBusy rejects a second concurrent enrichment run.
func NewBusy(op, running string) *Error {
	return &Error{Kind: Busy, Op: op, Message: fmt.Sprintf("column %q is still processing", running)}
}

// NewNotFound reports an id that does not resolve.
func NewNotFound(op, what, id string) *Error {
	return &Error{Kind: NotFound, Op: op, Message: fmt.Sprintf("%s not found: %s", what, id)}
}

// Is reports whether err, or anything it wraps, is an *Error of kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
