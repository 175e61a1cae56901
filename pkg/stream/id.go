package stream

import "github.com/quicwire/qtp/pkg/qerr"

// ID is a QUIC stream ID, whose low two bits encode initiator and
// directionality per RFC 9000 section 2.1.
type ID uint64

const (
	initiatorBit  = 0x1 // 0 = client-initiated, 1 = server-initiated
	directionBit  = 0x2 // 0 = bidirectional, 1 = unidirectional
	maxStreamSeq  = (uint64(1) << 60) - 1
)

// ClientInitiated reports whether the stream was opened by the client.
func (id ID) ClientInitiated() bool { return uint64(id)&initiatorBit == 0 }

// Bidi reports whether the stream is bidirectional.
func (id ID) Bidi() bool { return uint64(id)&directionBit == 0 }

// Sequence returns the stream's sequence number within its
// (initiator, direction) class.
func (id ID) Sequence() uint64 { return uint64(id) >> 2 }

// Make constructs a stream ID from a sequence number and class.
func Make(seq uint64, clientInitiated, bidi bool) ID {
	v := seq << 2
	if !clientInitiated {
		v |= initiatorBit
	}
	if !bidi {
		v |= directionBit
	}
	return ID(v)
}

// Issuer allocates stream IDs of one (initiator, direction) class for
// streams this endpoint opens, bounded by the peer's advertised stream
// limit (initial_max_streams_* and subsequent MAX_STREAMS frames).
type Issuer struct {
	clientInitiated bool
	bidi            bool
	next            uint64
	limit           uint64
}

// NewIssuer returns an Issuer for one class, with the peer's initial
// limit.
func NewIssuer(clientInitiated, bidi bool, initialLimit uint64) *Issuer {
	return &Issuer{clientInitiated: clientInitiated, bidi: bidi, limit: initialLimit}
}

// SetLimit raises the limit in response to a MAX_STREAMS frame; lower
// values (out-of-order delivery) are ignored.
func (iss *Issuer) SetLimit(n uint64) {
	if n > iss.limit {
		iss.limit = n
	}
}

// Open allocates the next stream ID of this class, or a
// STREAM_LIMIT_ERROR if doing so would exceed the peer's limit or the
// protocol-wide 2^60 sequence ceiling.
func (iss *Issuer) Open() (ID, error) {
	if iss.next >= iss.limit {
		return 0, qerr.Transport(qerr.StreamLimitError, "stream limit exceeded")
	}
	if iss.next > maxStreamSeq {
		return 0, qerr.Transport(qerr.StreamLimitError, "stream sequence exceeds 2^60")
	}
	id := Make(iss.next, iss.clientInitiated, iss.bidi)
	iss.next++
	return id, nil
}

// Acceptor tracks the highest sequence number implicitly or explicitly
// opened for one (initiator, direction) class of remotely-initiated
// streams, and the local limit it must not exceed.
type Acceptor struct {
	highestSeq   int64 // -1 if none opened yet
	limit        uint64
}

// NewAcceptor returns an Acceptor bounded by the local stream limit
// advertised to the peer for this class.
func NewAcceptor(limit uint64) *Acceptor {
	return &Acceptor{highestSeq: -1, limit: limit}
}

// SetLimit raises the local limit, e.g. after the application consumes
// capacity and the driver sends a fresh MAX_STREAMS.
func (a *Acceptor) SetLimit(n uint64) {
	if n > a.limit {
		a.limit = n
	}
}

// OpenReason distinguishes why a stream in an Acceptor's class came into
// existence, per the implicit-open rule in the data model.
type OpenReason int

const (
	// ReasonHigherOpen is used for every sequence number between the
	// previous highest and the newly-referenced one, exclusive of the
	// latter.
	ReasonHigherOpen OpenReason = iota
	// ReasonRecvFrame is used for the stream the triggering frame
	// actually names.
	ReasonRecvFrame
)

// Observe processes a reference to stream sequence seq arriving in a
// frame, returning, in order, every newly-implicitly-opened sequence
// number (reason ReasonHigherOpen) followed by seq itself (reason
// ReasonRecvFrame) if seq is higher than anything seen before. If seq
// was already opened, it returns nothing (the caller routes the frame to
// the existing stream without calling Observe again).
func (a *Acceptor) Observe(seq uint64) ([]uint64, error) {
	if seq > maxStreamSeq {
		return nil, qerr.Transport(qerr.StreamLimitError, "stream sequence exceeds 2^60")
	}
	if int64(seq) <= a.highestSeq {
		return nil, nil
	}
	if seq >= a.limit {
		return nil, qerr.Transport(qerr.FlowControlError, "stream exceeds local stream limit")
	}
	opened := make([]uint64, 0, seq-uint64(a.highestSeq))
	for s := uint64(a.highestSeq + 1); s <= seq; s++ {
		opened = append(opened, s)
	}
	a.highestSeq = int64(seq)
	return opened, nil
}
