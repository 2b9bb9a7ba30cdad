package telemetry

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracerName identifies kirogate's spans in the global TracerProvider.
const TracerName = "kirogate"

// GetTracer returns a no-op tracer when settings is nil or telemetry is
// disabled, otherwise the tracer registered on the global TracerProvider
// (a real exporter-backed one if cmd/gateway installed one, a no-op
// otherwise — otel.Tracer never errors, it just traces nowhere).
func GetTracer(settings *Settings) trace.Tracer {
	if settings == nil || !settings.IsEnabled {
		return noop.NewTracerProvider().Tracer(TracerName)
	}
	return otel.Tracer(TracerName)
}
