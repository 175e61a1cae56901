package stream

import "github.com/quicwire/qtp/pkg/qerr"

// RecvStream is the receive-half of one stream: reassembly buffer,
// flow-control limiter, state machine, and the final size once known.
type RecvStream struct {
	ID ID

	State RecvState
	Limit *Limiter

	reassembler Reassembler
	hasFinal    bool
	finalSize   uint64
}

// NewRecvStream returns a RecvStream with the given per-stream receive
// limit (our own initial_max_stream_data_* advertised to the peer).
func NewRecvStream(id ID, limit uint64) *RecvStream {
	return &RecvStream{ID: id, Limit: NewLimiter(limit)}
}

// OnStreamFrame applies one received STREAM frame's bytes, validating
// flow control and final-size consistency and driving the state machine.
// Frames arriving while the stream ignores input (ResetRecvd/ResetRead)
// are silently dropped, per the invariant in the data model.
func (r *RecvStream) OnStreamFrame(offset uint64, data []byte, fin bool) error {
	if r.State.IgnoresFrames() {
		return nil
	}
	highest := offset + uint64(len(data))
	if err := r.Limit.CheckReceive(highest); err != nil {
		return err
	}
	if fin {
		if r.hasFinal && r.finalSize != highest {
			return qerr.Transport(qerr.FinalSizeError, "FIN offset contradicts previously known final size")
		}
		r.hasFinal = true
		r.finalSize = highest
	} else if r.hasFinal && highest > r.finalSize {
		return qerr.Transport(qerr.FinalSizeError, "stream data extends past known final size")
	}

	if len(data) > 0 {
		r.reassembler.Insert(offset, data)
		if err := r.State.OnBytes(); err != nil {
			return err
		}
	}
	if fin {
		if err := r.State.OnFinOffsetKnown(); err != nil {
			return err
		}
	}
	if r.hasFinal && r.reassembler.ContiguousThrough() == r.finalSize && r.State == RecvSizeKnown {
		if err := r.State.OnAllBytesReceived(); err != nil {
			return err
		}
	}
	return nil
}

// OnResetStream applies a RESET_STREAM frame, validating the peer's
// claimed final size against anything already reassembled.
func (r *RecvStream) OnResetStream(finalSize uint64) error {
	if r.State.IgnoresFrames() {
		return nil
	}
	if r.hasFinal && r.finalSize != finalSize {
		return qerr.Transport(qerr.FinalSizeError, "RESET_STREAM final size contradicts prior FIN")
	}
	if finalSize < r.reassembler.HighestByteSeen() {
		return qerr.Transport(qerr.FinalSizeError, "RESET_STREAM final size smaller than data already received")
	}
	r.hasFinal = true
	r.finalSize = finalSize
	return r.State.OnResetStream()
}

// Read drains the contiguous prefix available for the application,
// transitioning to DataRecvd -> DataRead bookkeeping is left to the
// caller (app_read_all is a host-driven event once it has consumed
// everything through finalSize).
func (r *RecvStream) Read() []byte {
	return r.reassembler.ReadContiguous()
}

// ReadAll applies app_read_all once the application has consumed every
// byte through the final size.
func (r *RecvStream) ReadAll() error {
	if r.State != RecvDataRecvd {
		return nil
	}
	return r.State.OnAppReadAll()
}

// ConsumeReset applies app_consumed_reset.
func (r *RecvStream) ConsumeReset() error { return r.State.OnAppConsumedReset() }
