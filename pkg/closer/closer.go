// Package closer holds the first error that terminates a connection and
// drives the closing/draining lifecycle, per RFC 9000 section 10.
package closer

import "time"

// State is the connection lifecycle phase the closer drives.
type State int

const (
	StateActive State = iota
	StateClosing
	StateDraining
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateDraining:
		return "draining"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// minRateLimitInterval bounds how often a CONNECTION_CLOSE is re-emitted
// in response to incoming packets while closing, to avoid becoming a
// reflection amplifier for an attacker spoofing the peer address.
const minRateLimitInterval = 100 * time.Millisecond

// Closer tracks the first terminal error and the closing/draining
// lifecycle.
type Closer struct {
	state State
	err   error

	closeDeadline  time.Time
	lastCloseEmit  time.Time
}

// New returns a Closer in the active state.
func New() *Closer { return &Closer{} }

// State returns the current lifecycle phase.
func (c *Closer) State() State { return c.state }

// HasError reports whether a terminal error has been recorded.
func (c *Closer) HasError() bool { return c.err != nil }

// Err returns the first recorded terminal error, or nil.
func (c *Closer) Err() error { return c.err }

// Close records err as the connection's terminal error if none is
// already recorded, and enters the closing state with a close timeout of
// now+3*pto. Later calls after the first are no-ops, since only the
// first error is kept.
func (c *Closer) Close(err error, now time.Time, pto time.Duration) {
	if c.err != nil {
		return
	}
	c.err = err
	c.state = StateClosing
	c.closeDeadline = now.Add(3 * pto)
}

// OnPeerClose transitions directly to draining on receipt of a
// CONNECTION_CLOSE from the peer: no further sends occur, and the
// connection is destroyed once the same 3*pto timeout elapses.
func (c *Closer) OnPeerClose(err error, now time.Time, pto time.Duration) {
	if c.err == nil {
		c.err = err
	}
	c.state = StateDraining
	c.closeDeadline = now.Add(3 * pto)
}

// ShouldEmit reports whether a CONNECTION_CLOSE should be (re-)sent now:
// true on the first call after Close, and thereafter rate-limited to at
// most once per minRateLimitInterval in response to further incoming
// packets while closing.
func (c *Closer) ShouldEmit(now time.Time) bool {
	if c.state != StateClosing {
		return false
	}
	if now.Sub(c.lastCloseEmit) < minRateLimitInterval {
		return false
	}
	c.lastCloseEmit = now
	return true
}

// Expired reports whether the close-timeout has elapsed, at which point
// the connection must be destroyed.
func (c *Closer) Expired(now time.Time) bool {
	return (c.state == StateClosing || c.state == StateDraining) && !now.Before(c.closeDeadline)
}

// Deadline returns the close-timeout deadline, used by the driver's
// earliest_deadline computation.
func (c *Closer) Deadline() (time.Time, bool) {
	if c.state == StateClosing || c.state == StateDraining {
		return c.closeDeadline, true
	}
	return time.Time{}, false
}

// Destroy marks the connection fully torn down.
func (c *Closer) Destroy() { c.state = StateDestroyed }
