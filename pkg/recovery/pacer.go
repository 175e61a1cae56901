package recovery

import "time"

// Pacer smooths packet emission within a congestion window using a
// token-bucket: N/D (default 5/4) controls how much faster than
// estimated bandwidth the bucket refills, per RFC 9002 section 7.7.
type Pacer struct {
	n, d int

	budget     float64 // bytes
	lastRefill time.Time
}

// NewPacer returns a Pacer with the given N/D ratio (5/4 if either is
// zero) and an initially full budget, so the first packet of a
// connection is never paced.
func NewPacer(n, d int, now time.Time) *Pacer {
	if n == 0 || d == 0 {
		n, d = 5, 4
	}
	return &Pacer{n: n, d: d, budget: 10 * MaxDatagramSize, lastRefill: now}
}

// Refill advances the budget by elapsed time at rate N*cwnd/(D*smoothedRTT)
// bytes/second, capped at max(2ms*bandwidth, 10*MSS).
func (p *Pacer) Refill(now time.Time, cwnd int, smoothedRTT time.Duration) {
	if smoothedRTT <= 0 {
		p.lastRefill = now
		return
	}
	elapsed := now.Sub(p.lastRefill)
	if elapsed <= 0 {
		return
	}
	bandwidth := float64(p.n) * float64(cwnd) / (float64(p.d) * smoothedRTT.Seconds())
	p.budget += bandwidth * elapsed.Seconds()
	budgetCap := bandwidth * 0.002
	if floor := 10 * float64(MaxDatagramSize); budgetCap < floor {
		budgetCap = floor
	}
	if p.budget > budgetCap {
		p.budget = budgetCap
	}
	p.lastRefill = now
}

// CanSend reports whether the budget covers one maximum-sized datagram,
// or whether nothing has been sent yet (the pacer never blocks the very
// first send of a connection).
func (p *Pacer) CanSend(everSent bool) bool {
	return !everSent || p.budget >= MaxDatagramSize
}

// OnSent deducts size from the budget.
func (p *Pacer) OnSent(size int) { p.budget -= float64(size) }

// NextSendTime estimates when enough budget will have accrued to send
// one more maximum-sized datagram, given the last send time and the
// current bandwidth estimate.
func (p *Pacer) NextSendTime(lastSent time.Time, cwnd int, smoothedRTT time.Duration) time.Time {
	if smoothedRTT <= 0 {
		return lastSent
	}
	bandwidth := float64(p.n) * float64(cwnd) / (float64(p.d) * smoothedRTT.Seconds())
	if bandwidth <= 0 {
		return lastSent
	}
	deficit := float64(MaxDatagramSize) - p.budget
	if deficit <= 0 {
		return lastSent
	}
	return lastSent.Add(time.Duration(deficit / bandwidth * float64(time.Second)))
}
