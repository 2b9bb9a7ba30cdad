// Package telemetry provides the OpenTelemetry tracer kirogate wraps its
// network-bound hops (upstream dispatch, credential refresh/balance,
// batch import) in. Disabled by default; cmd/gateway enables it and
// installs a real exporter when KIROGATE_OTEL_EXPORTER_ENDPOINT is set.
package telemetry

import "sync/atomic"

// Settings configures whether a given tracer call site is active.
type Settings struct {
	// IsEnabled controls whether telemetry is active.
	IsEnabled bool
}

var enabledDefault atomic.Bool

// SetEnabledDefault switches DefaultSettings' IsEnabled value process-wide.
// cmd/gateway calls this once at startup after wiring (or declining to
// wire) a TracerProvider; packages that construct their tracer from
// DefaultSettings() at New-time must be constructed after this call for
// it to take effect.
func SetEnabledDefault(enabled bool) {
	enabledDefault.Store(enabled)
}

// DefaultSettings returns Settings reflecting the process-wide default set
// by SetEnabledDefault (false until cmd/gateway says otherwise).
func DefaultSettings() *Settings {
	return &Settings{IsEnabled: enabledDefault.Load()}
}

// WithEnabled returns a copy of Settings with IsEnabled set to the given value.
func (s *Settings) WithEnabled(enabled bool) *Settings {
	copy := *s
	copy.IsEnabled = enabled
	return &copy
}
