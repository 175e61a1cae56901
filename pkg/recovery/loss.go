package recovery

import (
	"time"

	"github.com/quicwire/qtp/pkg/pnspace"
)

// LossResult partitions one space's in-flight sent records into those
// declared lost and, among the survivors, the earliest send time to feed
// the next loss-detection timer.
type LossResult struct {
	Lost     []*pnspace.SentRecord
	LossTime time.Time // zero if no unlost packet remains
}

// DetectLosses implements the per-space loss rule: a sent packet is
// declared lost iff largestAcked >= pn and either its send time is at or
// before now-lossDelay, or it trails the largest acknowledged packet by
// at least the reordering threshold (3 packets).
func DetectLosses(space *pnspace.Space, lossDelay time.Duration, now time.Time) LossResult {
	const reorderingThreshold = 3
	largestAcked := space.LargestAcked()
	var res LossResult
	if largestAcked < 0 {
		return res
	}
	for _, rec := range space.SentRecords() {
		if !rec.InFlight || largestAcked < rec.PacketNumber {
			continue
		}
		lostByTime := !rec.SentTime.After(now.Add(-lossDelay))
		lostByReorder := largestAcked-rec.PacketNumber >= reorderingThreshold
		if lostByTime || lostByReorder {
			res.Lost = append(res.Lost, rec)
			continue
		}
		if res.LossTime.IsZero() || rec.SentTime.Before(res.LossTime) {
			res.LossTime = rec.SentTime
		}
	}
	return res
}
