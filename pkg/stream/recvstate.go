package stream

import "github.com/quicwire/qtp/pkg/qerr"

// RecvState is the receive-half state machine of RFC 9000 section 3.2.
type RecvState int

const (
	RecvPreRecv RecvState = iota
	RecvRecv
	RecvSizeKnown
	RecvDataRecvd
	RecvDataRead
	RecvResetRecvd
	RecvResetRead
)

func (s RecvState) String() string {
	switch s {
	case RecvPreRecv:
		return "PreRecv"
	case RecvRecv:
		return "Recv"
	case RecvSizeKnown:
		return "SizeKnown"
	case RecvDataRecvd:
		return "DataRecvd"
	case RecvDataRead:
		return "DataRead"
	case RecvResetRecvd:
		return "ResetRecvd"
	case RecvResetRead:
		return "ResetRead"
	default:
		return "Unknown"
	}
}

var errRecvState = func(from RecvState, event string) error {
	return &qerr.StateError{Reason: "recv stream: invalid transition " + event + " from " + from.String()}
}

// IgnoresFrames reports whether STREAM frames arriving in this state
// must be silently ignored, per the invariant that ResetRecvd/ResetRead
// streams no longer process incoming data.
func (s RecvState) IgnoresFrames() bool {
	return s == RecvResetRecvd || s == RecvResetRead
}

// OnBytes validates and applies receipt of stream bytes not carrying FIN.
func (s *RecvState) OnBytes() error {
	switch *s {
	case RecvPreRecv, RecvRecv:
		*s = RecvRecv
		return nil
	default:
		return errRecvState(*s, "bytes")
	}
}

// OnFinOffsetKnown validates and applies "fin_offset_known": either the
// FIN bit itself, or bytes that complete a previously-learned final
// size.
func (s *RecvState) OnFinOffsetKnown() error {
	switch *s {
	case RecvPreRecv, RecvRecv:
		*s = RecvSizeKnown
		return nil
	default:
		return errRecvState(*s, "fin_offset_known")
	}
}

// OnAllBytesReceived validates and applies "all_bytes_received".
func (s *RecvState) OnAllBytesReceived() error {
	if *s != RecvSizeKnown {
		return errRecvState(*s, "all_bytes_received")
	}
	*s = RecvDataRecvd
	return nil
}

// OnAppReadAll validates and applies "app_read_all".
func (s *RecvState) OnAppReadAll() error {
	if *s != RecvDataRecvd {
		return errRecvState(*s, "app_read_all")
	}
	*s = RecvDataRead
	return nil
}

// OnResetStream validates and applies receipt of RESET_STREAM, legal
// from any state except DataRead and ResetRead.
func (s *RecvState) OnResetStream() error {
	if *s == RecvDataRead || *s == RecvResetRead {
		return errRecvState(*s, "RESET_STREAM")
	}
	*s = RecvResetRecvd
	return nil
}

// OnAppConsumedReset validates and applies "app_consumed_reset".
func (s *RecvState) OnAppConsumedReset() error {
	if *s != RecvResetRecvd {
		return errRecvState(*s, "app_consumed_reset")
	}
	*s = RecvResetRead
	return nil
}
