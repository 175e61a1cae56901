package stream

// PendingFragment is one outgoing STREAM frame fragment awaiting
// acknowledgment or retransmission.
type PendingFragment struct {
	Offset uint64
	Data   []byte
	Fin    bool
}

// SendStream is the send-half of one stream: buffered-but-unsent bytes,
// the flow-control limiter, the state machine, and the set of fragments
// in flight.
type SendStream struct {
	ID ID

	State State
	Limit *Limiter

	buffered   [][]byte
	sendOffset uint64 // absolute offset of the next byte to fragment out
	finQueued  bool
	finOffset  uint64

	inFlight map[uint64]PendingFragment // keyed by offset
}

// State is a renamed alias kept local to this file only for readability
// at call sites (stream.SendStream{State: stream.SendReady}).
type State = SendState

// NewSendStream returns a SendStream with the given per-stream send
// limit (from the peer's initial_max_stream_data_*).
func NewSendStream(id ID, limit uint64) *SendStream {
	return &SendStream{ID: id, Limit: NewLimiter(limit), inFlight: make(map[uint64]PendingFragment)}
}

// Write appends data to the unsent buffer, applying the send(n>0)
// transition. The caller must have already reserved n bytes against the
// per-stream and per-connection send limiters (Limit.Use and the
// connection-level limiter) before calling, since this layer only
// advances state.
func (s *SendStream) Write(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := s.State.OnSend(); err != nil {
		return err
	}
	s.buffered = append(s.buffered, data)
	return nil
}

// Finish marks no more data will be written; Fragment will eventually
// emit a FIN-bearing fragment once the buffer drains.
func (s *SendStream) Finish() {
	s.finQueued = true
}

// SentOffset returns the absolute offset of the next byte Fragment has
// not yet emitted, i.e. the final size a RESET_STREAM sent right now
// would carry.
func (s *SendStream) SentOffset() uint64 { return s.sendOffset }

// Fragment splits off up to maxLen bytes of unsent data starting at the
// current send offset, for framing into an outgoing packet. It returns
// ok=false if there is nothing to send.
func (s *SendStream) Fragment(maxLen int) (frag PendingFragment, ok bool) {
	var data []byte
	for len(data) < maxLen && len(s.buffered) > 0 {
		head := s.buffered[0]
		room := maxLen - len(data)
		if len(head) <= room {
			data = append(data, head...)
			s.buffered = s.buffered[1:]
			continue
		}
		data = append(data, head[:room]...)
		s.buffered[0] = head[room:]
	}
	fin := s.finQueued && len(s.buffered) == 0
	if len(data) == 0 && !fin {
		return PendingFragment{}, false
	}
	frag = PendingFragment{Offset: s.sendOffset, Data: data, Fin: fin}
	s.sendOffset += uint64(len(data))
	if fin {
		s.finOffset = s.sendOffset
		s.finQueued = false
	}
	s.inFlight[frag.Offset] = frag
	if len(s.buffered) == 0 && fin {
		_ = s.State.OnSentAllFinQueued()
	} else {
		_ = s.State.OnSend()
	}
	return frag, true
}

// OnAcked removes a fragment from the in-flight set and, once every
// fragment up to and including a queued FIN has been acknowledged,
// applies all_data_acked.
func (s *SendStream) OnAcked(offset uint64) {
	delete(s.inFlight, offset)
	if s.State == SendDataSent && len(s.inFlight) == 0 {
		_ = s.State.OnAllDataAcked()
	}
}

// OnLost re-queues a fragment's bytes for retransmission at the front of
// the unsent buffer and rewinds the send cursor past it.
func (s *SendStream) OnLost(frag PendingFragment) {
	delete(s.inFlight, frag.Offset)
	s.buffered = append([][]byte{frag.Data}, s.buffered...)
	s.sendOffset -= uint64(len(frag.Data))
	if frag.Fin {
		s.finQueued = true
	}
}

// Reset applies the reset(code) transition.
func (s *SendStream) Reset() error { return s.State.OnReset() }
