// Package pnspace tracks per-packet-number-space sent and received state:
// the next packet number to send, duplicate detection on receive, and the
// generation and consumption of ACK ranges, per RFC 9000 sections 12.3
// and 13.2.
package pnspace

import (
	"sort"
	"time"

	"github.com/quicwire/qtp/pkg/wire"
)

// duplicateWindow bounds how far behind largestRecv a received packet
// number is still individually tracked for duplicate detection; anything
// older is unconditionally rejected, per the 2^14 window named in the
// data model.
const duplicateWindow = 1 << 14

// SentRecord is what a space remembers about one packet it sent, enough
// for the recovery layer to judge loss and compute RTT samples without
// this package knowing anything about congestion control.
type SentRecord struct {
	PacketNumber int64
	SentTime     time.Time
	Size         int
	AckEliciting bool
	InFlight     bool
	IsPTOProbe   bool
}

// Space is the per-packet-number-space state described in the Initial,
// Handshake, and Application data: sent-packet history for one direction
// plus received-packet history for generating ACKs back.
type Space struct {
	nextPN       int64
	largestAcked int64

	sent      map[int64]*SentRecord
	sentOrder []int64 // ascending packet numbers, for oldest-first scans

	largestRecv          int64
	received             map[int64]bool
	firstAckElicitingRecv time.Time
	unackedAckEliciting   bool
}

// New returns an empty Space with next_pn = 0 and largest_acked = -1.
func New() *Space {
	return &Space{
		largestAcked: -1,
		sent:         make(map[int64]*SentRecord),
		largestRecv:  -1,
		received:     make(map[int64]bool),
	}
}

// AllocatePN returns the next packet number to use and advances the
// counter.
func (s *Space) AllocatePN() int64 {
	pn := s.nextPN
	s.nextPN++
	return pn
}

// PeekNext returns the packet number AllocatePN will hand out next,
// without advancing the counter.
func (s *Space) PeekNext() int64 { return s.nextPN }

// LargestAcked returns the highest packet number acknowledged by the
// peer so far in this space, or -1 if none yet.
func (s *Space) LargestAcked() int64 { return s.largestAcked }

// LargestReceived returns the highest packet number received so far in
// this space, or -1 if none yet. This is the largestPN reference
// DecodePacketNumber needs to recover a truncated packet number off the
// wire.
func (s *Space) LargestReceived() int64 { return s.largestRecv }

// OnSent records that pn was just sent.
func (s *Space) OnSent(rec SentRecord) {
	r := rec
	s.sent[rec.PacketNumber] = &r
	s.sentOrder = append(s.sentOrder, rec.PacketNumber)
}

// SentRecords returns every currently-tracked sent record, oldest first.
// The returned slice must not be mutated.
func (s *Space) SentRecords() []*SentRecord {
	out := make([]*SentRecord, 0, len(s.sentOrder))
	for _, pn := range s.sentOrder {
		if r, ok := s.sent[pn]; ok {
			out = append(out, r)
		}
	}
	return out
}

// Forget removes a sent record, e.g. once it is acknowledged or declared
// lost and retransmitted.
func (s *Space) Forget(pn int64) {
	delete(s.sent, pn)
	// sentOrder is compacted lazily by compactSentOrder (run from
	// ConsumeAck) to avoid an O(n) slice rewrite on every single forget.
}

func (s *Space) compactSentOrder() {
	kept := s.sentOrder[:0]
	for _, pn := range s.sentOrder {
		if _, ok := s.sent[pn]; ok {
			kept = append(kept, pn)
		}
	}
	s.sentOrder = kept
}

// IsDuplicate reports whether pn has already been seen in this space,
// either because it is outside the tracked window (rejected
// unconditionally) or because it was individually recorded.
func (s *Space) IsDuplicate(pn int64) bool {
	if s.largestRecv >= 0 && pn <= s.largestRecv-duplicateWindow {
		return true
	}
	return s.received[pn]
}

// OnReceived records pn as received. Callers must have already checked
// IsDuplicate. now is used to start the first-ack-eliciting-received
// timestamp that seeds ACK delay.
func (s *Space) OnReceived(pn int64, ackEliciting bool, now time.Time) {
	s.received[pn] = true
	if pn > s.largestRecv {
		s.largestRecv = pn
	}
	if ackEliciting {
		if !s.unackedAckEliciting {
			s.firstAckElicitingRecv = now
		}
		s.unackedAckEliciting = true
	}
	s.pruneReceived()
}

func (s *Space) pruneReceived() {
	if len(s.received) < 4*duplicateWindow {
		return
	}
	floor := s.largestRecv - duplicateWindow
	for pn := range s.received {
		if pn < floor {
			delete(s.received, pn)
		}
	}
}

// HasUnackedAckEliciting reports whether an ack-eliciting packet has been
// received since the last ACK was sent, i.e. whether an ACK is owed.
func (s *Space) HasUnackedAckEliciting() bool { return s.unackedAckEliciting }

// GenerateAckRanges builds the ACK ranges covering every received packet
// number still outstanding, largest-first, along with the ack_delay
// measured from the first ack-eliciting packet received since the last
// ACK. It does not clear the unacked-ack-eliciting flag or the
// duplicate-detection history; callers call MarkAcksSent once the ACK
// frame is actually queued for send.
func (s *Space) GenerateAckRanges(now time.Time) (ranges []wire.AckRange, delay time.Duration, ok bool) {
	if len(s.received) == 0 {
		return nil, 0, false
	}
	pns := make([]int64, 0, len(s.received))
	for pn := range s.received {
		pns = append(pns, pn)
	}
	sort.Slice(pns, func(i, j int) bool { return pns[i] > pns[j] })

	ranges = append(ranges, wire.AckRange{Smallest: pns[0], Largest: pns[0]})
	for _, pn := range pns[1:] {
		last := &ranges[len(ranges)-1]
		if pn == last.Smallest-1 {
			last.Smallest = pn
			continue
		}
		ranges = append(ranges, wire.AckRange{Smallest: pn, Largest: pn})
	}
	if !s.firstAckElicitingRecv.IsZero() {
		delay = now.Sub(s.firstAckElicitingRecv)
	}
	return ranges, delay, true
}

// MarkAcksSent clears the owes-an-ACK flag after an ACK frame covering
// the current received set has been queued for send. Duplicate-detection
// history (the received set itself) is kept regardless.
func (s *Space) MarkAcksSent() {
	s.unackedAckEliciting = false
}

// AckResult is what ConsumeAck reports back to the caller so the
// recovery layer can update RTT and congestion state without reaching
// back into Space internals.
type AckResult struct {
	Acked          []*SentRecord
	RTTSample      time.Duration
	HasRTTSample   bool
	AckedAckElicit bool
}

// ConsumeAck applies the packet-number ranges of a received ACK frame:
// every sent record inside a range is removed and reported as acked.
// largestAckedInFrame is the frame's Largest() field, used to decide
// which acked record (if any) yields a usable RTT sample per the rule in
// the data model: the sample is usable iff its packet number equals the
// frame's largest acknowledged and at least one acked packet was
// ack-eliciting.
func (s *Space) ConsumeAck(ranges []wire.AckRange, largestAckedInFrame int64, now time.Time) AckResult {
	var res AckResult
	for _, rg := range ranges {
		for pn := rg.Smallest; pn <= rg.Largest; pn++ {
			rec, ok := s.sent[pn]
			if !ok {
				continue
			}
			res.Acked = append(res.Acked, rec)
			if rec.AckEliciting {
				res.AckedAckElicit = true
			}
			delete(s.sent, pn)
		}
	}
	if largestAckedInFrame > s.largestAcked {
		s.largestAcked = largestAckedInFrame
	}
	if res.AckedAckElicit {
		for _, rec := range res.Acked {
			if rec.PacketNumber == largestAckedInFrame {
				res.RTTSample = now.Sub(rec.SentTime)
				res.HasRTTSample = true
				break
			}
		}
	}
	s.compactSentOrder()
	return res
}
