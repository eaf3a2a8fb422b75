package parse

import (
	"time"

	"github.com/0Reliance/maeple/internal/logging"
)

// Options tags a SafeParse call for observability.
type Options struct {
	// Context names the call site (e.g. "mood-analysis"). Attached to any
	// ParseError and to the emitted reporter event.
	Context string

	// Reporter receives exactly one event per call outcome. Nil means the
	// event is dropped (the facade still logs locally).
	Reporter Reporter
}

// SafeParse composes Normalize then schema validation into one call,
// converting any failure into a structured ParseError inside the Result.
//
// The facade never substitutes caller-supplied fallback values on failure:
// it reports faithfully and leaves the fallback decision to the caller
// (see FallbackOr).
func SafeParse[T any](raw string, schema Schema, opts Options) Result[T] {
	start := time.Now()

	candidate := Normalize(raw)

	if _, err := schema.Validate(candidate); err != nil {
		return fail[T](raw, start, opts, err)
	}

	data, err := DecodeInto[T](candidate)
	if err != nil {
		return fail[T](raw, start, opts, err)
	}

	emit(opts, ParseEvent{
		Context:        opts.Context,
		Success:        true,
		Duration:       time.Since(start),
		ResponseLength: len(raw),
	})
	logging.ParserDebug("parse ok context=%s len=%d", opts.Context, len(raw))

	return Success(data)
}

func fail[T any](raw string, start time.Time, opts Options, cause error) Result[T] {
	perr := &ParseError{
		Message:    cause.Error(),
		Context:    opts.Context,
		Cause:      cause,
		OccurredAt: time.Now(),
	}

	emit(opts, ParseEvent{
		Context:        opts.Context,
		Success:        false,
		Duration:       time.Since(start),
		ResponseLength: len(raw),
	})
	logging.Parser("parse failed context=%s len=%d: %s", opts.Context, len(raw), perr.Message)

	return Failure[T](perr)
}

func emit(opts Options, ev ParseEvent) {
	if opts.Reporter != nil {
		opts.Reporter.ParseOutcome(ev)
	}
}
