// Package qerr defines the error taxonomy shared across the transport: the
// RFC 9000 transport error codes, application-level close codes, and the
// library-internal error kind used for bugs and resource exhaustion that
// must never be written to the wire.
package qerr

import "fmt"

// Code is a QUIC transport error code as carried in a CONNECTION_CLOSE
// frame of type 0x1c.
type Code uint64

const (
	NoError                  Code = 0x0
	InternalError            Code = 0x1
	ConnectionRefused        Code = 0x2
	FlowControlError         Code = 0x3
	StreamLimitError         Code = 0x4
	StreamStateError         Code = 0x5
	FinalSizeError           Code = 0x6
	FrameEncodingError       Code = 0x7
	TransportParameterError Code = 0x8
	ConnectionIDLimitError   Code = 0x9
	ProtocolViolation        Code = 0xa
	InvalidToken             Code = 0xb
	ApplicationError         Code = 0xc
	CryptoBufferExceeded     Code = 0xd
	KeyUpdateError           Code = 0xe
	AEADLimitReached         Code = 0xf
	NoViablePath             Code = 0x10
	// CryptoErrorBase is the low end of the 0x0100-0x01ff range reserved
	// for TLS alerts: CryptoErrorBase + alert-code.
	CryptoErrorBase Code = 0x100
)

func (c Code) String() string {
	switch {
	case c >= CryptoErrorBase && c <= CryptoErrorBase+0xff:
		return fmt.Sprintf("CRYPTO_ERROR(alert=%d)", c-CryptoErrorBase)
	}
	switch c {
	case NoError:
		return "NO_ERROR"
	case InternalError:
		return "INTERNAL_ERROR"
	case ConnectionRefused:
		return "CONNECTION_REFUSED"
	case FlowControlError:
		return "FLOW_CONTROL_ERROR"
	case StreamLimitError:
		return "STREAM_LIMIT_ERROR"
	case StreamStateError:
		return "STREAM_STATE_ERROR"
	case FinalSizeError:
		return "FINAL_SIZE_ERROR"
	case FrameEncodingError:
		return "FRAME_ENCODING_ERROR"
	case TransportParameterError:
		return "TRANSPORT_PARAMETER_ERROR"
	case ConnectionIDLimitError:
		return "CONNECTION_ID_LIMIT_ERROR"
	case ProtocolViolation:
		return "PROTOCOL_VIOLATION"
	case InvalidToken:
		return "INVALID_TOKEN"
	case ApplicationError:
		return "APPLICATION_ERROR"
	case CryptoBufferExceeded:
		return "CRYPTO_BUFFER_EXCEEDED"
	case KeyUpdateError:
		return "KEY_UPDATE_ERROR"
	case AEADLimitReached:
		return "AEAD_LIMIT_REACHED"
	case NoViablePath:
		return "NO_VIABLE_PATH"
	default:
		return fmt.Sprintf("UNKNOWN(0x%x)", uint64(c))
	}
}

// Kind distinguishes the three error families described by the taxonomy.
type Kind int

const (
	// KindTransport carries an RFC 9000 transport error code, surfaced to
	// the peer in a CONNECTION_CLOSE frame of type 0x1c.
	KindTransport Kind = iota
	// KindApplication carries a host-defined 62-bit code, surfaced to the
	// peer in a CONNECTION_CLOSE frame of type 0x1d.
	KindApplication
	// KindInternal never crosses the wire; it reports bugs and resource
	// exhaustion local to this endpoint.
	KindInternal
)

// Error is the tagged-union error object described in the data model: it
// carries enough information to either build a CONNECTION_CLOSE frame or
// to report a purely local failure, and records whether it originated from
// a CONNECTION_CLOSE received from the peer.
type Error struct {
	Kind Kind

	// TransportCode is valid when Kind == KindTransport.
	TransportCode Code
	// FrameType is the offending frame type, if known; 0 otherwise. Per
	// RFC 9000 a CONNECTION_CLOSE may carry 0 when no single frame is at
	// fault.
	FrameType uint64
	HasFrameType bool

	// AppCode is valid when Kind == KindApplication.
	AppCode uint64

	Reason string

	// ByPeer is set when this Error was constructed from a received
	// CONNECTION_CLOSE rather than detected locally.
	ByPeer bool

	cause error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindApplication:
		return fmt.Sprintf("application error 0x%x: %s", e.AppCode, e.Reason)
	case KindInternal:
		if e.cause != nil {
			return fmt.Sprintf("internal error: %s: %v", e.Reason, e.cause)
		}
		return fmt.Sprintf("internal error: %s", e.Reason)
	default:
		if e.HasFrameType {
			return fmt.Sprintf("%s (frame 0x%x): %s", e.TransportCode, e.FrameType, e.Reason)
		}
		return fmt.Sprintf("%s: %s", e.TransportCode, e.Reason)
	}
}

func (e *Error) Unwrap() error { return e.cause }

// Transport builds a locally-detected transport error.
func Transport(code Code, reason string) *Error {
	return &Error{Kind: KindTransport, TransportCode: code, Reason: reason}
}

// TransportFrame builds a locally-detected transport error that names the
// offending frame type, as required for PROTOCOL_VIOLATION and
// FRAME_ENCODING_ERROR diagnostics.
func TransportFrame(code Code, frameType uint64, reason string) *Error {
	return &Error{Kind: KindTransport, TransportCode: code, FrameType: frameType, HasFrameType: true, Reason: reason}
}

// Wrap attaches cause as the underlying reason for a locally-detected
// transport error, preserving it for errors.Is/As.
func (e *Error) Wrap(cause error) *Error {
	e.cause = cause
	return e
}

// Application builds a host-supplied application error for CONNECTION_CLOSE
// type 0x1d.
func Application(code uint64, reason string) *Error {
	return &Error{Kind: KindApplication, AppCode: code, Reason: reason}
}

// Internal builds a library-internal error that must never be put on the
// wire.
func Internal(reason string, cause error) *Error {
	return &Error{Kind: KindInternal, Reason: reason, cause: cause}
}

// FromPeerTransport builds the Error recorded when a transport-type
// CONNECTION_CLOSE arrives from the peer.
func FromPeerTransport(code Code, frameType uint64, hasFrameType bool, reason string) *Error {
	return &Error{Kind: KindTransport, TransportCode: code, FrameType: frameType, HasFrameType: hasFrameType, Reason: reason, ByPeer: true}
}

// FromPeerApplication builds the Error recorded when an application-type
// CONNECTION_CLOSE arrives from the peer.
func FromPeerApplication(code uint64, reason string) *Error {
	return &Error{Kind: KindApplication, AppCode: code, Reason: reason, ByPeer: true}
}

// DecryptError reports a non-fatal, packet-scoped AEAD failure. Callers
// must drop the offending packet and continue processing the rest of the
// datagram; it must never be escalated to a connection error.
type DecryptError struct {
	Reason string
}

func (e *DecryptError) Error() string { return "decrypt failure: " + e.Reason }

// StateError reports an operation rejected by a state machine (stream
// send/recv half, connection lifecycle) per the transition tables in the
// spec. It is surfaced to the host, not necessarily to the wire.
type StateError struct {
	Reason string
}

func (e *StateError) Error() string { return "state error: " + e.Reason }

// ClosedError is returned by any error-returning host-facing call made
// after the connection has entered the closing or draining state.
var ClosedError = Internal("connection is closed", nil)
