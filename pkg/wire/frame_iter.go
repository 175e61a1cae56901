package wire

import "github.com/quicwire/qtp/pkg/qerr"

// Frame is implemented by every decoded frame payload type in this
// package; it lets the connection driver dispatch on concrete type via a
// type switch without re-parsing the wire bytes.
type Frame interface {
	Type() FrameType
}

func (*AckFrame) Type() FrameType                 { return FrameAck }
func (f *StreamFrame) Type() FrameType             { return FrameStream }
func (*ResetStreamFrame) Type() FrameType          { return FrameResetStream }
func (*StopSendingFrame) Type() FrameType          { return FrameStopSending }
func (*CryptoFrame) Type() FrameType               { return FrameCrypto }
func (*NewTokenFrame) Type() FrameType              { return FrameNewToken }
func (*MaxDataFrame) Type() FrameType               { return FrameMaxData }
func (*MaxStreamDataFrame) Type() FrameType         { return FrameMaxStreamData }
func (f *MaxStreamsFrame) Type() FrameType {
	if f.Bidi {
		return FrameMaxStreamsBidi
	}
	return FrameMaxStreamsUni
}
func (*DataBlockedFrame) Type() FrameType           { return FrameDataBlocked }
func (*StreamDataBlockedFrame) Type() FrameType     { return FrameStreamDataBlocked }
func (f *StreamsBlockedFrame) Type() FrameType {
	if f.Bidi {
		return FrameStreamsBlockedBidi
	}
	return FrameStreamsBlockedUni
}
func (*NewConnectionIDFrame) Type() FrameType       { return FrameNewConnectionID }
func (*RetireConnectionIDFrame) Type() FrameType    { return FrameRetireConnectionID }
func (*PathChallengeFrame) Type() FrameType         { return FramePathChallenge }
func (*PathResponseFrame) Type() FrameType          { return FramePathResponse }
func (f *ConnectionCloseFrame) Type() FrameType {
	if f.Transport {
		return FrameConnectionCloseTransport
	}
	return FrameConnectionCloseApp
}
func (f *DatagramFrame) Type() FrameType {
	if f.HasLen {
		return FrameDatagramLen
	}
	return FrameDatagramNoLen
}

type paddingFrame struct{}

func (paddingFrame) Type() FrameType { return FramePadding }

type pingFrame struct{}

func (pingFrame) Type() FrameType { return FramePing }

type handshakeDoneFrame struct{}

func (handshakeDoneFrame) Type() FrameType { return FrameHandshakeDone }

// PaddingFrame and PingFrame are the exported singletons for the two
// frame types with no payload beyond the type field.
var (
	PaddingFrame       Frame = paddingFrame{}
	PingFrame          Frame = pingFrame{}
	HandshakeDoneFrame Frame = handshakeDoneFrame{}
)

// Next decodes one frame from r, validates it against the per-space
// admissibility table, and returns it. ackDelayExponent is the peer's
// negotiated exponent, needed to interpret ACK frames.
func Next(r *Reader, space Space, ackDelayExponent uint8) (Frame, error) {
	typ, err := r.Varint()
	if err != nil {
		return nil, err
	}
	ft := FrameType(typ)
	if err := CheckAdmissible(ft, space); err != nil {
		return nil, err
	}
	switch {
	case ft.IsStream():
		f, err := ParseStream(r, byte(ft-FrameStream))
		return frameOrErr(ft, f, err)
	case ft.IsDatagram():
		f, err := ParseDatagram(r, ft == FrameDatagramLen)
		return frameOrErr(ft, f, err)
	}
	switch ft {
	case FramePadding:
		return PaddingFrame, nil
	case FramePing:
		return PingFrame, nil
	case FrameAck:
		f, err := ParseAck(r, false, ackDelayExponent)
		return frameOrErr(ft, f, err)
	case FrameAckECN:
		f, err := ParseAck(r, true, ackDelayExponent)
		return frameOrErr(ft, f, err)
	case FrameResetStream:
		f, err := ParseResetStream(r)
		return frameOrErr(ft, f, err)
	case FrameStopSending:
		f, err := ParseStopSending(r)
		return frameOrErr(ft, f, err)
	case FrameCrypto:
		f, err := ParseCrypto(r)
		return frameOrErr(ft, f, err)
	case FrameNewToken:
		f, err := ParseNewToken(r)
		return frameOrErr(ft, f, err)
	case FrameMaxData:
		f, err := ParseMaxData(r)
		return frameOrErr(ft, f, err)
	case FrameMaxStreamData:
		f, err := ParseMaxStreamData(r)
		return frameOrErr(ft, f, err)
	case FrameMaxStreamsBidi:
		f, err := ParseMaxStreams(r, true)
		return frameOrErr(ft, f, err)
	case FrameMaxStreamsUni:
		f, err := ParseMaxStreams(r, false)
		return frameOrErr(ft, f, err)
	case FrameDataBlocked:
		f, err := ParseDataBlocked(r)
		return frameOrErr(ft, f, err)
	case FrameStreamDataBlocked:
		f, err := ParseStreamDataBlocked(r)
		return frameOrErr(ft, f, err)
	case FrameStreamsBlockedBidi:
		f, err := ParseStreamsBlocked(r, true)
		return frameOrErr(ft, f, err)
	case FrameStreamsBlockedUni:
		f, err := ParseStreamsBlocked(r, false)
		return frameOrErr(ft, f, err)
	case FrameNewConnectionID:
		f, err := ParseNewConnectionID(r)
		return frameOrErr(ft, f, err)
	case FrameRetireConnectionID:
		f, err := ParseRetireConnectionID(r)
		return frameOrErr(ft, f, err)
	case FramePathChallenge:
		f, err := ParsePathChallenge(r)
		return frameOrErr(ft, f, err)
	case FramePathResponse:
		f, err := ParsePathResponse(r)
		return frameOrErr(ft, f, err)
	case FrameConnectionCloseTransport:
		f, err := ParseConnectionClose(r, true)
		return frameOrErr(ft, f, err)
	case FrameConnectionCloseApp:
		f, err := ParseConnectionClose(r, false)
		return frameOrErr(ft, f, err)
	case FrameHandshakeDone:
		return HandshakeDoneFrame, nil
	default:
		return nil, qerr.TransportFrame(qerr.FrameEncodingError, uint64(ft), "unknown frame type")
	}
}

// frameOrErr adapts a (*T, error) parse result to (Frame, error), wrapping
// non-qerr decode failures as FRAME_ENCODING_ERROR. ft is passed
// explicitly rather than derived from f because f is nil on the error
// path and several Type() implementations dereference fields.
func frameOrErr[T Frame](ft FrameType, f T, err error) (Frame, error) {
	if err != nil {
		if qe, ok := err.(*qerr.Error); ok {
			return nil, qe
		}
		return nil, qerr.TransportFrame(qerr.FrameEncodingError, uint64(ft), err.Error())
	}
	return f, nil
}

// ParseFrames decodes every frame in payload, in wire order, calling visit
// for each. It stops at the first error, which visit or the codec may
// produce. Duplicate validation work is avoided by doing the admissibility
// check once per frame inside Next.
func ParseFrames(payload []byte, space Space, ackDelayExponent uint8, visit func(Frame) error) error {
	r := NewReader(payload)
	for r.Len() > 0 {
		f, err := Next(r, space, ackDelayExponent)
		if err != nil {
			return err
		}
		if err := visit(f); err != nil {
			return err
		}
	}
	return nil
}
