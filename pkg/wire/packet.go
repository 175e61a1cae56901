package wire

import (
	"encoding/binary"

	"github.com/quicwire/qtp/pkg/qerr"
)

// LongPacketType distinguishes the long-header packet forms. Values match
// the two bits carried in the first byte.
type LongPacketType byte

const (
	LongTypeInitial   LongPacketType = 0x0
	LongTypeZeroRTT   LongPacketType = 0x1
	LongTypeHandshake LongPacketType = 0x2
	LongTypeRetry     LongPacketType = 0x3
)

func (t LongPacketType) Space() Space {
	switch t {
	case LongTypeInitial:
		return SpaceInitial
	case LongTypeHandshake:
		return SpaceHandshake
	case LongTypeZeroRTT:
		return Space0RTT
	default:
		return SpaceInitial
	}
}

const (
	longHeaderForm  = 0x80
	fixedBit        = 0x40
	shortHeaderKeyPhase = 0x04
	shortHeaderSpin     = 0x20
)

// IsLongHeader reports whether the first byte of a datagram begins a
// long-header packet.
func IsLongHeader(b byte) bool { return b&longHeaderForm != 0 }

// LongHeader is the cleartext portion of a long-header packet, common to
// Initial, 0-RTT, and Handshake (Retry and Version Negotiation are parsed
// separately since they carry no packet number).
type LongHeader struct {
	Type    LongPacketType
	Version uint32
	DestCID []byte
	SrcCID  []byte
	Token   []byte // Initial only

	// FirstByte is the raw first byte, still carrying header-protection
	// bits that must be unmasked before PacketNumberLen is meaningful.
	FirstByte byte
}

// ParsedLongHeader additionally locates the length-delimited fields needed
// to decrypt and to find the next coalesced packet.
type ParsedLongHeader struct {
	LongHeader
	// HeaderLen is the offset of the first byte of the (still protected)
	// packet number field.
	HeaderLen int
	// PacketLength is the value of the Length field: the number of bytes
	// from the packet number field to the end of this packet.
	PacketLength int
}

// ParseLongHeaderPrefix parses the version-independent long-header prefix
// of an Initial, 0-RTT, or Handshake packet (Retry and Version
// Negotiation use ParseRetry / ParseVersionNegotiation instead). It stops
// just before the packet-number field, which remains header-protected
// until the crypto layer removes the mask.
func ParseLongHeaderPrefix(datagram []byte) (*ParsedLongHeader, error) {
	r := NewReader(datagram)
	first, err := r.Uint8()
	if err != nil {
		return nil, err
	}
	if !IsLongHeader(first) {
		return nil, qerr.Transport(qerr.ProtocolViolation, "expected long header")
	}
	verBytes, err := r.Bytes(4)
	if err != nil {
		return nil, err
	}
	version := binary.BigEndian.Uint32(verBytes)

	h := &ParsedLongHeader{LongHeader: LongHeader{
		Type:      LongPacketType((first >> 4) & 0x3),
		Version:   version,
		FirstByte: first,
	}}

	dcidLen, err := r.Uint8()
	if err != nil {
		return nil, err
	}
	if dcidLen > 20 {
		return nil, qerr.Transport(qerr.ProtocolViolation, "destination connection ID too long")
	}
	if h.DestCID, err = r.Bytes(int(dcidLen)); err != nil {
		return nil, err
	}
	scidLen, err := r.Uint8()
	if err != nil {
		return nil, err
	}
	if scidLen > 20 {
		return nil, qerr.Transport(qerr.ProtocolViolation, "source connection ID too long")
	}
	if h.SrcCID, err = r.Bytes(int(scidLen)); err != nil {
		return nil, err
	}

	if h.Type == LongTypeInitial {
		token, err := r.VarintBytes()
		if err != nil {
			return nil, err
		}
		h.Token = token
	}

	length, err := r.Varint()
	if err != nil {
		return nil, err
	}
	h.PacketLength = int(length)
	h.HeaderLen = r.Pos()
	if h.HeaderLen+h.PacketLength > len(datagram) {
		return nil, qerr.Transport(qerr.ProtocolViolation, "packet length exceeds datagram")
	}
	return h, nil
}

// AppendLongHeaderPrefix appends the cleartext long-header prefix (through
// Token, for Initial) and returns the buffer along with the offset at
// which the 2-byte placeholder Length field begins, so the caller can
// patch it in once the protected payload length is known.
func AppendLongHeaderPrefix(buf []byte, typ LongPacketType, version uint32, dcid, scid, token []byte, pnLen int) (out []byte, lengthFieldOffset int) {
	first := longHeaderForm | fixedBit | byte(typ)<<4 | byte(pnLen-1)
	buf = append(buf, first)
	buf = binary.BigEndian.AppendUint32(buf, version)
	buf = append(buf, byte(len(dcid)))
	buf = append(buf, dcid...)
	buf = append(buf, byte(len(scid)))
	buf = append(buf, scid...)
	if typ == LongTypeInitial {
		buf = AppendVarint(buf, uint64(len(token)))
		buf = append(buf, token...)
	}
	lengthFieldOffset = len(buf)
	// Reserve a fixed 2-byte varint for Length; patched once the
	// protected payload size is known by PatchLength.
	buf = append(buf, 0, 0)
	return buf, lengthFieldOffset
}

// PatchLength overwrites the 2-byte placeholder Length field written by
// AppendLongHeaderPrefix with the real value (must be <= 0x3fff).
func PatchLength(buf []byte, lengthFieldOffset int, value int) {
	buf[lengthFieldOffset] = 0x40 | byte(value>>8)
	buf[lengthFieldOffset+1] = byte(value)
}

// RetryPacket is the decoded form of a Retry packet.
type RetryPacket struct {
	Version        uint32
	DestCID        []byte
	SrcCID         []byte
	Token          []byte
	IntegrityTag   [16]byte
}

// ParseRetry decodes a Retry packet. Integrity verification is performed
// by the crypto suite, not here, since it requires the original DCID from
// the client's first Initial.
func ParseRetry(datagram []byte) (*RetryPacket, error) {
	if len(datagram) < 1+4+1+1+16 {
		return nil, qerr.Transport(qerr.ProtocolViolation, "retry packet too short")
	}
	r := NewReader(datagram)
	first, err := r.Uint8()
	if err != nil || !IsLongHeader(first) || LongPacketType((first>>4)&0x3) != LongTypeRetry {
		return nil, qerr.Transport(qerr.ProtocolViolation, "not a retry packet")
	}
	verBytes, _ := r.Bytes(4)
	p := &RetryPacket{Version: binary.BigEndian.Uint32(verBytes)}
	dcidLen, err := r.Uint8()
	if err != nil {
		return nil, err
	}
	if p.DestCID, err = r.Bytes(int(dcidLen)); err != nil {
		return nil, err
	}
	scidLen, err := r.Uint8()
	if err != nil {
		return nil, err
	}
	if p.SrcCID, err = r.Bytes(int(scidLen)); err != nil {
		return nil, err
	}
	if r.Len() < 16 {
		return nil, qerr.Transport(qerr.ProtocolViolation, "retry packet missing integrity tag")
	}
	p.Token = make([]byte, r.Len()-16)
	copy(p.Token, r.Remaining()[:len(p.Token)])
	copy(p.IntegrityTag[:], r.Remaining()[len(p.Token):])
	return p, nil
}

// VersionNegotiationPacket is the decoded form of a Version Negotiation
// packet.
type VersionNegotiationPacket struct {
	DestCID          []byte
	SrcCID           []byte
	SupportedVersions []uint32
}

func ParseVersionNegotiation(datagram []byte) (*VersionNegotiationPacket, error) {
	r := NewReader(datagram)
	first, err := r.Uint8()
	if err != nil || !IsLongHeader(first) {
		return nil, qerr.Transport(qerr.ProtocolViolation, "not a long header packet")
	}
	if _, err := r.Bytes(4); err != nil { // version == 0
		return nil, err
	}
	p := &VersionNegotiationPacket{}
	dcidLen, err := r.Uint8()
	if err != nil {
		return nil, err
	}
	if p.DestCID, err = r.Bytes(int(dcidLen)); err != nil {
		return nil, err
	}
	scidLen, err := r.Uint8()
	if err != nil {
		return nil, err
	}
	if p.SrcCID, err = r.Bytes(int(scidLen)); err != nil {
		return nil, err
	}
	for r.Len() >= 4 {
		b, err := r.Bytes(4)
		if err != nil {
			return nil, err
		}
		p.SupportedVersions = append(p.SupportedVersions, binary.BigEndian.Uint32(b))
	}
	return p, nil
}

// ShortHeader is the cleartext portion of a 1-RTT packet.
type ShortHeader struct {
	DestCID   []byte
	HeaderLen int // offset of the (still protected) packet number field
	FirstByte byte
}

// ParseShortHeaderPrefix parses a 1-RTT packet's header up to (but not
// including) the packet number, which remains protected. dcidLen is
// supplied by the caller (the connection-ID manager), since the DCID
// length is not self-describing on the wire for short headers.
func ParseShortHeaderPrefix(datagram []byte, dcidLen int) (*ShortHeader, error) {
	if len(datagram) < 1+dcidLen {
		return nil, qerr.Transport(qerr.ProtocolViolation, "short header packet too short")
	}
	return &ShortHeader{
		DestCID:   datagram[1 : 1+dcidLen],
		HeaderLen: 1 + dcidLen,
		FirstByte: datagram[0],
	}, nil
}

// AppendShortHeaderPrefix appends a 1-RTT header's cleartext prefix.
// keyPhase is the low bit selecting the current key epoch; spin is the
// latency-spin bit.
func AppendShortHeaderPrefix(buf []byte, dcid []byte, pnLen int, keyPhase bool, spin bool) []byte {
	first := fixedBit | byte(pnLen-1)
	if keyPhase {
		first |= shortHeaderKeyPhase
	}
	if spin {
		first |= shortHeaderSpin
	}
	buf = append(buf, first)
	buf = append(buf, dcid...)
	return buf
}

// ShortHeaderKeyPhase extracts the key-phase bit from an unprotected first
// byte (i.e. after header-protection removal).
func ShortHeaderKeyPhase(unprotectedFirstByte byte) bool {
	return unprotectedFirstByte&shortHeaderKeyPhase != 0
}

// LongHeaderPacketNumberLen extracts the encoded packet-number length
// (1-4) from an unprotected long-header first byte.
func LongHeaderPacketNumberLen(unprotectedFirstByte byte) int {
	return int(unprotectedFirstByte&0x3) + 1
}

// ShortHeaderPacketNumberLen extracts the encoded packet-number length
// (1-4) from an unprotected short-header first byte.
func ShortHeaderPacketNumberLen(unprotectedFirstByte byte) int {
	return int(unprotectedFirstByte&0x3) + 1
}
