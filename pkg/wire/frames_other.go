package wire

import "github.com/quicwire/qtp/pkg/qerr"

// StreamFrame is the decoded form of any of the eight STREAM wire variants.
// Data aliases the input buffer; callers that retain it past the lifetime
// of that buffer must copy.
type StreamFrame struct {
	ID     uint64
	Offset uint64
	Data   []byte
	Fin    bool
}

// AppendStream encodes f, choosing the OFF/LEN/FIN bit combination that
// matches its fields. The LEN bit is always set; a frame that extends to
// the end of the packet without a length is never produced.
func AppendStream(buf []byte, f StreamFrame) []byte {
	t := byte(FrameStream) | streamFlagLen
	if f.Offset != 0 {
		t |= streamFlagOff
	}
	if f.Fin {
		t |= streamFlagFin
	}
	buf = append(buf, t)
	buf = AppendVarint(buf, f.ID)
	if f.Offset != 0 {
		buf = AppendVarint(buf, f.Offset)
	}
	buf = AppendVarint(buf, uint64(len(f.Data)))
	buf = append(buf, f.Data...)
	return buf
}

// ParseStream decodes a STREAM frame body given the low three bits of the
// type byte already consumed by the caller.
func ParseStream(r *Reader, flags byte) (*StreamFrame, error) {
	f := &StreamFrame{}
	id, err := r.Varint()
	if err != nil {
		return nil, err
	}
	f.ID = id
	if flags&streamFlagOff != 0 {
		if f.Offset, err = r.Varint(); err != nil {
			return nil, err
		}
	}
	if flags&streamFlagLen != 0 {
		n, err := r.Varint()
		if err != nil {
			return nil, err
		}
		if f.Data, err = r.Bytes(int(n)); err != nil {
			return nil, err
		}
	} else {
		f.Data = r.Remaining()
		if err := r.Skip(len(f.Data)); err != nil {
			return nil, err
		}
	}
	f.Fin = flags&streamFlagFin != 0
	return f, nil
}

// ResetStreamFrame is RESET_STREAM.
type ResetStreamFrame struct {
	ID        uint64
	ErrorCode uint64
	FinalSize uint64
}

func AppendResetStream(buf []byte, f ResetStreamFrame) []byte {
	buf = AppendVarint(buf, uint64(FrameResetStream))
	buf = AppendVarint(buf, f.ID)
	buf = AppendVarint(buf, f.ErrorCode)
	buf = AppendVarint(buf, f.FinalSize)
	return buf
}

func ParseResetStream(r *Reader) (*ResetStreamFrame, error) {
	f := &ResetStreamFrame{}
	var err error
	if f.ID, err = r.Varint(); err != nil {
		return nil, err
	}
	if f.ErrorCode, err = r.Varint(); err != nil {
		return nil, err
	}
	if f.FinalSize, err = r.Varint(); err != nil {
		return nil, err
	}
	return f, nil
}

// StopSendingFrame is STOP_SENDING.
type StopSendingFrame struct {
	ID        uint64
	ErrorCode uint64
}

func AppendStopSending(buf []byte, f StopSendingFrame) []byte {
	buf = AppendVarint(buf, uint64(FrameStopSending))
	buf = AppendVarint(buf, f.ID)
	buf = AppendVarint(buf, f.ErrorCode)
	return buf
}

func ParseStopSending(r *Reader) (*StopSendingFrame, error) {
	f := &StopSendingFrame{}
	var err error
	if f.ID, err = r.Varint(); err != nil {
		return nil, err
	}
	if f.ErrorCode, err = r.Varint(); err != nil {
		return nil, err
	}
	return f, nil
}

// CryptoFrame is CRYPTO.
type CryptoFrame struct {
	Offset uint64
	Data   []byte
}

func AppendCrypto(buf []byte, f CryptoFrame) []byte {
	buf = AppendVarint(buf, uint64(FrameCrypto))
	buf = AppendVarint(buf, f.Offset)
	buf = AppendVarint(buf, uint64(len(f.Data)))
	buf = append(buf, f.Data...)
	return buf
}

func ParseCrypto(r *Reader) (*CryptoFrame, error) {
	f := &CryptoFrame{}
	var err error
	if f.Offset, err = r.Varint(); err != nil {
		return nil, err
	}
	if f.Data, err = r.VarintBytes(); err != nil {
		return nil, err
	}
	return f, nil
}

// NewTokenFrame is NEW_TOKEN (server -> client only).
type NewTokenFrame struct{ Token []byte }

func AppendNewToken(buf []byte, f NewTokenFrame) []byte {
	buf = AppendVarint(buf, uint64(FrameNewToken))
	buf = AppendVarint(buf, uint64(len(f.Token)))
	buf = append(buf, f.Token...)
	return buf
}

func ParseNewToken(r *Reader) (*NewTokenFrame, error) {
	tok, err := r.VarintBytes()
	if err != nil {
		return nil, err
	}
	return &NewTokenFrame{Token: tok}, nil
}

// MaxDataFrame is MAX_DATA.
type MaxDataFrame struct{ Maximum uint64 }

func AppendMaxData(buf []byte, f MaxDataFrame) []byte {
	buf = AppendVarint(buf, uint64(FrameMaxData))
	return AppendVarint(buf, f.Maximum)
}

func ParseMaxData(r *Reader) (*MaxDataFrame, error) {
	v, err := r.Varint()
	if err != nil {
		return nil, err
	}
	return &MaxDataFrame{Maximum: v}, nil
}

// MaxStreamDataFrame is MAX_STREAM_DATA.
type MaxStreamDataFrame struct {
	ID      uint64
	Maximum uint64
}

func AppendMaxStreamData(buf []byte, f MaxStreamDataFrame) []byte {
	buf = AppendVarint(buf, uint64(FrameMaxStreamData))
	buf = AppendVarint(buf, f.ID)
	return AppendVarint(buf, f.Maximum)
}

func ParseMaxStreamData(r *Reader) (*MaxStreamDataFrame, error) {
	f := &MaxStreamDataFrame{}
	var err error
	if f.ID, err = r.Varint(); err != nil {
		return nil, err
	}
	if f.Maximum, err = r.Varint(); err != nil {
		return nil, err
	}
	return f, nil
}

// MaxStreamsFrame is MAX_STREAMS; Bidi distinguishes the two type values.
type MaxStreamsFrame struct {
	Bidi    bool
	Maximum uint64
}

func AppendMaxStreams(buf []byte, f MaxStreamsFrame) []byte {
	t := FrameMaxStreamsUni
	if f.Bidi {
		t = FrameMaxStreamsBidi
	}
	buf = AppendVarint(buf, uint64(t))
	return AppendVarint(buf, f.Maximum)
}

func ParseMaxStreams(r *Reader, bidi bool) (*MaxStreamsFrame, error) {
	v, err := r.Varint()
	if err != nil {
		return nil, err
	}
	return &MaxStreamsFrame{Bidi: bidi, Maximum: v}, nil
}

// DataBlockedFrame is DATA_BLOCKED.
type DataBlockedFrame struct{ Limit uint64 }

func AppendDataBlocked(buf []byte, f DataBlockedFrame) []byte {
	buf = AppendVarint(buf, uint64(FrameDataBlocked))
	return AppendVarint(buf, f.Limit)
}

func ParseDataBlocked(r *Reader) (*DataBlockedFrame, error) {
	v, err := r.Varint()
	if err != nil {
		return nil, err
	}
	return &DataBlockedFrame{Limit: v}, nil
}

// StreamDataBlockedFrame is STREAM_DATA_BLOCKED.
type StreamDataBlockedFrame struct {
	ID    uint64
	Limit uint64
}

func AppendStreamDataBlocked(buf []byte, f StreamDataBlockedFrame) []byte {
	buf = AppendVarint(buf, uint64(FrameStreamDataBlocked))
	buf = AppendVarint(buf, f.ID)
	return AppendVarint(buf, f.Limit)
}

func ParseStreamDataBlocked(r *Reader) (*StreamDataBlockedFrame, error) {
	f := &StreamDataBlockedFrame{}
	var err error
	if f.ID, err = r.Varint(); err != nil {
		return nil, err
	}
	if f.Limit, err = r.Varint(); err != nil {
		return nil, err
	}
	return f, nil
}

// StreamsBlockedFrame is STREAMS_BLOCKED.
type StreamsBlockedFrame struct {
	Bidi  bool
	Limit uint64
}

func AppendStreamsBlocked(buf []byte, f StreamsBlockedFrame) []byte {
	t := FrameStreamsBlockedUni
	if f.Bidi {
		t = FrameStreamsBlockedBidi
	}
	buf = AppendVarint(buf, uint64(t))
	return AppendVarint(buf, f.Limit)
}

func ParseStreamsBlocked(r *Reader, bidi bool) (*StreamsBlockedFrame, error) {
	v, err := r.Varint()
	if err != nil {
		return nil, err
	}
	return &StreamsBlockedFrame{Bidi: bidi, Limit: v}, nil
}

// NewConnectionIDFrame is NEW_CONNECTION_ID.
type NewConnectionIDFrame struct {
	Sequence      uint64
	RetirePriorTo uint64
	ConnectionID  []byte
	ResetToken    [16]byte
}

func AppendNewConnectionID(buf []byte, f NewConnectionIDFrame) []byte {
	buf = AppendVarint(buf, uint64(FrameNewConnectionID))
	buf = AppendVarint(buf, f.Sequence)
	buf = AppendVarint(buf, f.RetirePriorTo)
	buf = append(buf, byte(len(f.ConnectionID)))
	buf = append(buf, f.ConnectionID...)
	buf = append(buf, f.ResetToken[:]...)
	return buf
}

func ParseNewConnectionID(r *Reader) (*NewConnectionIDFrame, error) {
	f := &NewConnectionIDFrame{}
	var err error
	if f.Sequence, err = r.Varint(); err != nil {
		return nil, err
	}
	if f.RetirePriorTo, err = r.Varint(); err != nil {
		return nil, err
	}
	if f.RetirePriorTo > f.Sequence {
		return nil, qerr.TransportFrame(qerr.FrameEncodingError, uint64(FrameNewConnectionID), "retire_prior_to exceeds sequence_number")
	}
	idLen, err := r.Uint8()
	if err != nil {
		return nil, err
	}
	if idLen > 20 {
		return nil, qerr.TransportFrame(qerr.FrameEncodingError, uint64(FrameNewConnectionID), "connection ID too long")
	}
	if f.ConnectionID, err = r.Bytes(int(idLen)); err != nil {
		return nil, err
	}
	tok, err := r.Bytes(16)
	if err != nil {
		return nil, err
	}
	copy(f.ResetToken[:], tok)
	return f, nil
}

// RetireConnectionIDFrame is RETIRE_CONNECTION_ID.
type RetireConnectionIDFrame struct{ Sequence uint64 }

func AppendRetireConnectionID(buf []byte, f RetireConnectionIDFrame) []byte {
	buf = AppendVarint(buf, uint64(FrameRetireConnectionID))
	return AppendVarint(buf, f.Sequence)
}

func ParseRetireConnectionID(r *Reader) (*RetireConnectionIDFrame, error) {
	v, err := r.Varint()
	if err != nil {
		return nil, err
	}
	return &RetireConnectionIDFrame{Sequence: v}, nil
}

// PathChallengeFrame is PATH_CHALLENGE.
type PathChallengeFrame struct{ Data [8]byte }

func AppendPathChallenge(buf []byte, f PathChallengeFrame) []byte {
	buf = AppendVarint(buf, uint64(FramePathChallenge))
	return append(buf, f.Data[:]...)
}

func ParsePathChallenge(r *Reader) (*PathChallengeFrame, error) {
	b, err := r.Bytes(8)
	if err != nil {
		return nil, err
	}
	f := &PathChallengeFrame{}
	copy(f.Data[:], b)
	return f, nil
}

// PathResponseFrame is PATH_RESPONSE.
type PathResponseFrame struct{ Data [8]byte }

func AppendPathResponse(buf []byte, f PathResponseFrame) []byte {
	buf = AppendVarint(buf, uint64(FramePathResponse))
	return append(buf, f.Data[:]...)
}

func ParsePathResponse(r *Reader) (*PathResponseFrame, error) {
	b, err := r.Bytes(8)
	if err != nil {
		return nil, err
	}
	f := &PathResponseFrame{}
	copy(f.Data[:], b)
	return f, nil
}

// ConnectionCloseFrame covers both the transport (0x1c) and application
// (0x1d) variants; Transport distinguishes them. FrameType is only
// meaningful (and only present on the wire) for the transport variant.
type ConnectionCloseFrame struct {
	Transport    bool
	ErrorCode    uint64
	FrameType    uint64
	HasFrameType bool
	Reason       string
}

func AppendConnectionClose(buf []byte, f ConnectionCloseFrame) []byte {
	if f.Transport {
		buf = AppendVarint(buf, uint64(FrameConnectionCloseTransport))
		buf = AppendVarint(buf, f.ErrorCode)
		buf = AppendVarint(buf, f.FrameType)
	} else {
		buf = AppendVarint(buf, uint64(FrameConnectionCloseApp))
		buf = AppendVarint(buf, f.ErrorCode)
	}
	buf = AppendVarint(buf, uint64(len(f.Reason)))
	buf = append(buf, f.Reason...)
	return buf
}

func ParseConnectionClose(r *Reader, transport bool) (*ConnectionCloseFrame, error) {
	f := &ConnectionCloseFrame{Transport: transport}
	var err error
	if f.ErrorCode, err = r.Varint(); err != nil {
		return nil, err
	}
	if transport {
		f.HasFrameType = true
		if f.FrameType, err = r.Varint(); err != nil {
			return nil, err
		}
	}
	reason, err := r.VarintBytes()
	if err != nil {
		return nil, err
	}
	f.Reason = string(reason)
	return f, nil
}

// DatagramFrame is DATAGRAM (RFC 9221), either length-prefixed or
// extending to the end of the packet.
type DatagramFrame struct {
	Data   []byte
	HasLen bool
}

func AppendDatagram(buf []byte, f DatagramFrame) []byte {
	if f.HasLen {
		buf = AppendVarint(buf, uint64(FrameDatagramLen))
		buf = AppendVarint(buf, uint64(len(f.Data)))
	} else {
		buf = AppendVarint(buf, uint64(FrameDatagramNoLen))
	}
	return append(buf, f.Data...)
}

func ParseDatagram(r *Reader, hasLen bool) (*DatagramFrame, error) {
	f := &DatagramFrame{HasLen: hasLen}
	if hasLen {
		data, err := r.VarintBytes()
		if err != nil {
			return nil, err
		}
		f.Data = data
		return f, nil
	}
	f.Data = r.Remaining()
	if err := r.Skip(len(f.Data)); err != nil {
		return nil, err
	}
	return f, nil
}
