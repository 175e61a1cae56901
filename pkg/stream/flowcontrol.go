// Package stream implements the stream engine: the send and receive half
// state machines, per-stream and per-connection flow control, stream-ID
// issuance and implicit-open acceptance, outgoing fragment splitting, and
// inbound reassembly, per RFC 9000 sections 2 through 4 and 19.8-19.13.
package stream

import "github.com/quicwire/qtp/pkg/qerr"

// Limiter tracks a used/limit pair shared by both per-stream and
// per-connection flow control (send and receive side alike).
type Limiter struct {
	used  uint64
	limit uint64
}

// NewLimiter returns a Limiter starting at zero usage under limit.
func NewLimiter(limit uint64) *Limiter { return &Limiter{limit: limit} }

func (l *Limiter) Used() uint64  { return l.used }
func (l *Limiter) Limit() uint64 { return l.limit }

// Available returns how much more may be used before hitting the limit.
func (l *Limiter) Available() uint64 {
	if l.used >= l.limit {
		return 0
	}
	return l.limit - l.used
}

// Use attempts to consume n units, returning false (and leaving state
// unchanged) if that would exceed the limit.
func (l *Limiter) Use(n uint64) bool {
	if l.used+n > l.limit {
		return false
	}
	l.used += n
	return true
}

// SetLimit raises the limit; a peer is not permitted to lower it, so
// values below the current limit are ignored (MAX_DATA/MAX_STREAM_DATA
// frames that arrive out of order or duplicated must not regress it).
func (l *Limiter) SetLimit(n uint64) {
	if n > l.limit {
		l.limit = n
	}
}

// CheckReceive validates that consuming up to highestByte (a stream's
// absolute offset-plus-length, or a connection's running total) is
// within limit, returning a FLOW_CONTROL_ERROR otherwise. Unlike Use,
// this does not track a separate "used" counter: the caller already
// knows the highest byte offset seen and only needs the ceiling check.
func (l *Limiter) CheckReceive(highestByte uint64) error {
	if highestByte > l.limit {
		return qerr.Transport(qerr.FlowControlError, "received data exceeds flow control limit")
	}
	return nil
}
