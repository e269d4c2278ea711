// Package telemetry provides the pluggable, reentrant-safe facade every
// other component reports errors, warnings, progress, and counters through.
// It defaults to a no-op; the host installs a backend (e.g. ZapSink, or one
// that also forwards to a browser/OS analytics endpoint) at process start.
package telemetry

import "sync"

// Sink is the telemetry facade contract. Implementations must be safe for
// concurrent use; the default no-op and ZapSink both are.
type Sink interface {
	RecordError(event string, data map[string]any)
	RecordWarning(event string, data map[string]any)
	RecordProgress(event string, data map[string]any)
	RecordCounters(group string, counters map[string]float64)
	RecordTick()
}

// noopSink discards everything. Zero value is ready to use.
type noopSink struct{}

func (noopSink) RecordError(string, map[string]any)        {}
func (noopSink) RecordWarning(string, map[string]any)      {}
func (noopSink) RecordProgress(string, map[string]any)     {}
func (noopSink) RecordCounters(string, map[string]float64) {}
func (noopSink) RecordTick()                               {}

var (
	mu      sync.RWMutex
	current Sink = noopSink{}
)

// Default returns the currently installed sink.
func Default() Sink {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// SetDefault installs sink as the process-global telemetry backend. Passing
// nil restores the no-op sink.
func SetDefault(sink Sink) {
	mu.Lock()
	defer mu.Unlock()
	if sink == nil {
		current = noopSink{}
		return
	}
	current = sink
}
