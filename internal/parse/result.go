// Package parse converts raw LLM provider text into validated, typed records.
//
// The pipeline is Normalize -> Validate -> typed value, composed by SafeParse.
// Failures are returned as values inside Result, never as Go errors across the
// package boundary, so every caller is forced to handle the no-data case.
package parse

import (
	"fmt"
	"time"
)

// ParseError describes a failed parse attempt. Immutable once created;
// produced only by SafeParse.
type ParseError struct {
	Message    string
	Context    string
	Cause      error
	OccurredAt time.Time
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("parse failed [%s]: %s", e.Context, e.Message)
	}
	return fmt.Sprintf("parse failed: %s", e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *ParseError) Unwrap() error {
	return e.Cause
}

// Result is a tagged union of Success{Data} or Failure{Err}.
// Exactly one variant is populated; callers must branch on Ok and
// never assume Data is present.
type Result[T any] struct {
	Ok   bool
	Data T
	Err  *ParseError
}

// Success wraps a validated value.
func Success[T any](data T) Result[T] {
	return Result[T]{Ok: true, Data: data}
}

// Failure wraps a parse error.
func Failure[T any](err *ParseError) Result[T] {
	return Result[T]{Ok: false, Err: err}
}

// FallbackOr returns the parsed data on success, or the caller-supplied
// fallback on failure. The second return reports whether the fallback was
// used. SafeParse itself never substitutes fallbacks; the decision to accept
// a default in place of real data always belongs to the caller.
func FallbackOr[T any](res Result[T], fallback T) (T, bool) {
	if res.Ok {
		return res.Data, false
	}
	return fallback, true
}
