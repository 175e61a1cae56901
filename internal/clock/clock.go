// Package clock provides the monotonic time source the driver polls for
// every timestamp comparison (RTT sampling, loss detection, PTO, idle
// timeout, path-validation deadlines). Indirected the same way
// internal/xrand indirects randomness, so a host can inject a
// deterministic clock for tests without the driver ever calling
// time.Now directly.
package clock

import "time"

// Source produces the current time. Now must be monotonic within a
// single connection's lifetime; a value earlier than a previously
// returned one is a fatal error for the caller, per the data model's
// "invalid times are a fatal error" rule.
type Source interface {
	Now() time.Time
}

// systemClock is a Source backed by the runtime's monotonic clock.
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Default is the system-clock-backed Source used unless a host supplies
// its own.
var Default Source = systemClock{}
