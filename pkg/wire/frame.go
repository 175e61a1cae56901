package wire

import (
	"fmt"

	"github.com/quicwire/qtp/pkg/qerr"
)

// FrameType is a QUIC frame type as it appears on the wire. STREAM and a
// few other frames pack flag bits into the low bits of the type field; the
// constants below name the canonical (all-flags-clear) form.
type FrameType uint64

const (
	FramePadding             FrameType = 0x00
	FramePing                FrameType = 0x01
	FrameAck                 FrameType = 0x02
	FrameAckECN              FrameType = 0x03
	FrameResetStream         FrameType = 0x04
	FrameStopSending         FrameType = 0x05
	FrameCrypto              FrameType = 0x06
	FrameNewToken            FrameType = 0x07
	FrameStream              FrameType = 0x08 // through 0x0f, 3 flag bits: OFF(0x04) LEN(0x02) FIN(0x01)
	FrameMaxData             FrameType = 0x10
	FrameMaxStreamData       FrameType = 0x11
	FrameMaxStreamsBidi      FrameType = 0x12
	FrameMaxStreamsUni       FrameType = 0x13
	FrameDataBlocked         FrameType = 0x14
	FrameStreamDataBlocked   FrameType = 0x15
	FrameStreamsBlockedBidi  FrameType = 0x16
	FrameStreamsBlockedUni   FrameType = 0x17
	FrameNewConnectionID     FrameType = 0x18
	FrameRetireConnectionID  FrameType = 0x19
	FramePathChallenge       FrameType = 0x1a
	FramePathResponse        FrameType = 0x1b
	FrameConnectionCloseTransport FrameType = 0x1c
	FrameConnectionCloseApp  FrameType = 0x1d
	FrameHandshakeDone       FrameType = 0x1e
	FrameDatagramNoLen       FrameType = 0x30
	FrameDatagramLen         FrameType = 0x31
)

const (
	streamFlagFin = 0x01
	streamFlagLen = 0x02
	streamFlagOff = 0x04
)

// IsStream reports whether t is one of the eight STREAM frame variants.
func (t FrameType) IsStream() bool { return t >= 0x08 && t <= 0x0f }

// IsDatagram reports whether t is one of the two DATAGRAM frame variants.
func (t FrameType) IsDatagram() bool { return t == FrameDatagramNoLen || t == FrameDatagramLen }

func (t FrameType) String() string {
	switch {
	case t.IsStream():
		return "STREAM"
	case t.IsDatagram():
		return "DATAGRAM"
	}
	switch t {
	case FramePadding:
		return "PADDING"
	case FramePing:
		return "PING"
	case FrameAck:
		return "ACK"
	case FrameAckECN:
		return "ACK_ECN"
	case FrameResetStream:
		return "RESET_STREAM"
	case FrameStopSending:
		return "STOP_SENDING"
	case FrameCrypto:
		return "CRYPTO"
	case FrameNewToken:
		return "NEW_TOKEN"
	case FrameMaxData:
		return "MAX_DATA"
	case FrameMaxStreamData:
		return "MAX_STREAM_DATA"
	case FrameMaxStreamsBidi, FrameMaxStreamsUni:
		return "MAX_STREAMS"
	case FrameDataBlocked:
		return "DATA_BLOCKED"
	case FrameStreamDataBlocked:
		return "STREAM_DATA_BLOCKED"
	case FrameStreamsBlockedBidi, FrameStreamsBlockedUni:
		return "STREAMS_BLOCKED"
	case FrameNewConnectionID:
		return "NEW_CONNECTION_ID"
	case FrameRetireConnectionID:
		return "RETIRE_CONNECTION_ID"
	case FramePathChallenge:
		return "PATH_CHALLENGE"
	case FramePathResponse:
		return "PATH_RESPONSE"
	case FrameConnectionCloseTransport:
		return "CONNECTION_CLOSE"
	case FrameConnectionCloseApp:
		return "CONNECTION_CLOSE_APP"
	case FrameHandshakeDone:
		return "HANDSHAKE_DONE"
	default:
		return fmt.Sprintf("UNKNOWN(0x%x)", uint64(t))
	}
}

// Allowed reports whether frame type t may legally appear in a packet of
// the given space, per the admissibility table in section 4.1. A frame
// rejected here must be reported to the peer as PROTOCOL_VIOLATION.
func (t FrameType) Allowed(space Space) bool {
	switch t {
	case FramePadding, FramePing:
		return true
	case FrameAck, FrameAckECN, FrameCrypto, FrameConnectionCloseTransport:
		return space != Space0RTT
	case FrameNewToken, FrameHandshakeDone:
		// Server-to-client only; direction is enforced by the caller, not
		// by this table, since the table has no notion of sender side.
		return space == SpaceApplication
	case FrameConnectionCloseApp:
		return space == Space0RTT || space == SpaceApplication
	default:
		if t.IsStream() || t.IsDatagram() {
			return space == Space0RTT || space == SpaceApplication
		}
		switch t {
		case FrameMaxData, FrameMaxStreamData, FrameMaxStreamsBidi, FrameMaxStreamsUni,
			FrameDataBlocked, FrameStreamDataBlocked, FrameStreamsBlockedBidi, FrameStreamsBlockedUni,
			FrameResetStream, FrameStopSending, FrameNewConnectionID, FrameRetireConnectionID,
			FramePathChallenge, FramePathResponse:
			return space == Space0RTT || space == SpaceApplication
		}
		return false
	}
}

// AckEliciting reports whether a packet containing only frames of this
// kind (alongside possibly others) counts this frame toward making the
// packet ack-eliciting: every frame except ACK, PADDING, and
// CONNECTION_CLOSE is ack-eliciting.
func (t FrameType) AckEliciting() bool {
	switch t {
	case FramePadding, FrameAck, FrameAckECN, FrameConnectionCloseTransport, FrameConnectionCloseApp:
		return false
	default:
		return true
	}
}

// violation is a convenience constructor for the PROTOCOL_VIOLATION the
// admissibility check raises.
func violation(t FrameType, space Space) error {
	return qerr.TransportFrame(qerr.ProtocolViolation, uint64(t), fmt.Sprintf("frame %s not allowed in %s packet", t, space))
}

// CheckAdmissible validates a frame type against the per-packet-type table
// and returns a PROTOCOL_VIOLATION qerr.Error if it is not allowed.
func CheckAdmissible(t FrameType, space Space) error {
	if !t.Allowed(space) {
		return violation(t, space)
	}
	return nil
}
