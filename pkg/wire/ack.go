package wire

import (
	"fmt"
	"time"

	"github.com/quicwire/qtp/pkg/qerr"
)

// AckRange is one (gap, length) pair following the first range of an ACK
// frame, both already converted out of their varint encodings: Smallest
// and Largest bound an inclusive, contiguous run of acknowledged packet
// numbers.
type AckRange struct {
	Smallest int64
	Largest  int64
}

// AckFrame is the decoded form of ACK / ACK_ECN. Ranges is sorted
// largest-first and covers every acknowledged packet number, including the
// implicit first range; ECN counts are present only when ECN is true.
type AckFrame struct {
	Ranges     []AckRange
	AckDelay   time.Duration
	ECN        bool
	ECT0, ECT1, ECNCE uint64
}

// Largest returns the highest acknowledged packet number.
func (f *AckFrame) Largest() int64 {
	if len(f.Ranges) == 0 {
		return -1
	}
	return f.Ranges[0].Largest
}

// AppendAck encodes ranges (already sorted largest-first, non-overlapping)
// as an ACK or ACK_ECN frame. ackDelay is the raw, already-scaled field
// value (the caller divides actual delay by 2^ack_delay_exponent).
func AppendAck(buf []byte, ranges []AckRange, ackDelayRaw uint64, ecn *AckFrame) ([]byte, error) {
	if len(ranges) == 0 {
		return nil, qerr.Internal("AppendAck: no ranges", nil)
	}
	for i := 1; i < len(ranges); i++ {
		if ranges[i-1].Smallest <= ranges[i].Largest {
			return nil, qerr.Internal("AppendAck: ranges not descending/non-overlapping", nil)
		}
	}
	t := FrameAck
	if ecn != nil {
		t = FrameAckECN
	}
	buf = AppendVarint(buf, uint64(t))
	buf = AppendVarint(buf, uint64(ranges[0].Largest))
	buf = AppendVarint(buf, ackDelayRaw)
	buf = AppendVarint(buf, uint64(len(ranges)-1))
	buf = AppendVarint(buf, uint64(ranges[0].Largest-ranges[0].Smallest))
	for i := 1; i < len(ranges); i++ {
		gap := ranges[i-1].Smallest - ranges[i].Largest - 2
		if gap < 0 {
			return nil, qerr.Internal("AppendAck: negative gap", nil)
		}
		buf = AppendVarint(buf, uint64(gap))
		buf = AppendVarint(buf, uint64(ranges[i].Largest-ranges[i].Smallest))
	}
	if ecn != nil {
		buf = AppendVarint(buf, ecn.ECT0)
		buf = AppendVarint(buf, ecn.ECT1)
		buf = AppendVarint(buf, ecn.ECNCE)
	}
	return buf, nil
}

// ParseAck decodes an ACK or ACK_ECN frame body (the type byte already
// consumed by the caller, with ecn indicating which). ackDelayExponent
// scales the wire ack_delay field into a time.Duration of microseconds.
func ParseAck(r *Reader, ecn bool, ackDelayExponent uint8) (*AckFrame, error) {
	largest, err := r.Varint()
	if err != nil {
		return nil, err
	}
	delayRaw, err := r.Varint()
	if err != nil {
		return nil, err
	}
	rangeCount, err := r.Varint()
	if err != nil {
		return nil, err
	}
	firstRange, err := r.Varint()
	if err != nil {
		return nil, err
	}
	if firstRange > largest {
		return nil, qerr.TransportFrame(qerr.FrameEncodingError, uint64(FrameAck), "first ACK range exceeds largest")
	}
	f := &AckFrame{
		AckDelay: time.Duration(delayRaw) * time.Microsecond * (1 << ackDelayExponent),
	}
	smallest := int64(largest) - int64(firstRange)
	f.Ranges = append(f.Ranges, AckRange{Smallest: smallest, Largest: int64(largest)})
	for i := uint64(0); i < rangeCount; i++ {
		gap, err := r.Varint()
		if err != nil {
			return nil, err
		}
		length, err := r.Varint()
		if err != nil {
			return nil, err
		}
		newLargest := smallest - int64(gap) - 2
		newSmallest := newLargest - int64(length)
		if newLargest < 0 || newSmallest < 0 || newLargest >= smallest {
			return nil, qerr.TransportFrame(qerr.FrameEncodingError, uint64(FrameAck), "ACK ranges descend below zero or are non-monotonic")
		}
		f.Ranges = append(f.Ranges, AckRange{Smallest: newSmallest, Largest: newLargest})
		smallest = newSmallest
	}
	if ecn {
		f.ECN = true
		if f.ECT0, err = r.Varint(); err != nil {
			return nil, err
		}
		if f.ECT1, err = r.Varint(); err != nil {
			return nil, err
		}
		if f.ECNCE, err = r.Varint(); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func (f *AckFrame) String() string {
	return fmt.Sprintf("ACK largest=%d delay=%s ranges=%d", f.Largest(), f.AckDelay, len(f.Ranges))
}
