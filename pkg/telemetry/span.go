package telemetry

import (
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RecordErrorOnSpan records err on span and marks the span's status as an
// error. A no-op if err is nil, so call sites can call it unconditionally
// on every error-returning path without an extra nil check.
func RecordErrorOnSpan(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
