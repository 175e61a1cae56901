// Package recovery implements loss detection, RTT estimation, the PTO
// timer, NewReno congestion control, and the pacer, per RFC 9002.
package recovery

import "time"

// RTTEstimator holds the smoothed RTT, RTT variance, and minimum RTT for
// one connection (RTT is estimated once across the connection, not per
// packet-number space, per RFC 9002 section 5).
type RTTEstimator struct {
	granularity time.Duration

	Min      time.Duration
	Smoothed time.Duration
	Var      time.Duration

	hasSample bool
}

// NewRTTEstimator returns an estimator with the given timer granularity
// (the floor applied to loss_delay and PTO calculations).
func NewRTTEstimator(granularity time.Duration) *RTTEstimator {
	return &RTTEstimator{granularity: granularity}
}

// HasSample reports whether at least one RTT sample has been applied.
func (e *RTTEstimator) HasSample() bool { return e.hasSample }

// Update applies one usable RTT sample, adjusting it by the peer's
// reported ack_delay (capped at maxAckDelay) before folding it into the
// smoothed estimate, per RFC 9002 section 5.3.
func (e *RTTEstimator) Update(latest, ackDelay, maxAckDelay time.Duration) {
	if !e.hasSample {
		e.hasSample = true
		e.Min = latest
		e.Smoothed = latest
		e.Var = latest / 2
		return
	}
	if latest < e.Min {
		e.Min = latest
	}
	cappedDelay := ackDelay
	if cappedDelay > maxAckDelay {
		cappedDelay = maxAckDelay
	}
	adjusted := latest
	if latest >= e.Min+cappedDelay {
		adjusted = latest - cappedDelay
	}
	diff := e.Smoothed - adjusted
	if diff < 0 {
		diff = -diff
	}
	e.Var = (3*e.Var + diff) / 4
	e.Smoothed = (7*e.Smoothed + adjusted) / 8
}

// LossDelay returns max(granularity, 9/8 * max(smoothed, latest)), the
// time after which an unacknowledged in-flight packet is presumed lost.
func (e *RTTEstimator) LossDelay(latest time.Duration) time.Duration {
	base := e.Smoothed
	if latest > base {
		base = latest
	}
	d := base * 9 / 8
	if d < e.granularity {
		d = e.granularity
	}
	return d
}

// PTODuration returns smoothed + max(4*rttvar, granularity) +
// maxAckDelay, the base probe-timeout interval before the exponential
// pto_count backoff is applied.
func (e *RTTEstimator) PTODuration(maxAckDelay time.Duration) time.Duration {
	v := 4 * e.Var
	if v < e.granularity {
		v = e.granularity
	}
	return e.Smoothed + v + maxAckDelay
}
