// Package tparams implements transport parameter encoding, decoding, and
// validation, per RFC 9000 section 18.
package tparams

import (
	"time"

	"github.com/quicwire/qtp/pkg/qerr"
	"github.com/quicwire/qtp/pkg/wire"
)

// ID is a transport parameter identifier.
type ID uint64

const (
	IDOriginalDestinationConnectionID ID = 0x00
	IDMaxIdleTimeout                  ID = 0x01
	IDStatelessResetToken             ID = 0x02
	IDMaxUDPPayloadSize               ID = 0x03
	IDInitialMaxData                  ID = 0x04
	IDInitialMaxStreamDataBidiLocal   ID = 0x05
	IDInitialMaxStreamDataBidiRemote  ID = 0x06
	IDInitialMaxStreamDataUni         ID = 0x07
	IDInitialMaxStreamsBidi           ID = 0x08
	IDInitialMaxStreamsUni            ID = 0x09
	IDAckDelayExponent                ID = 0x0a
	IDMaxAckDelay                     ID = 0x0b
	IDDisableActiveMigration          ID = 0x0c
	IDPreferredAddress                ID = 0x0d
	IDActiveConnectionIDLimit         ID = 0x0e
	IDInitialSourceConnectionID       ID = 0x0f
	IDRetrySourceConnectionID         ID = 0x10
	IDMaxDatagramFrameSize            ID = 0x20
)

// Params is the decoded set of transport parameters exchanged during the
// handshake. Fields use pointer/bool-present pairing only where the
// parameter's absence is meaningful; the numeric limits default to their
// RFC-specified defaults via Defaults().
type Params struct {
	OriginalDestinationConnectionID []byte
	HasOriginalDestinationConnectionID bool

	MaxIdleTimeout time.Duration

	StatelessResetToken    [16]byte
	HasStatelessResetToken bool

	MaxUDPPayloadSize uint64

	InitialMaxData                 uint64
	InitialMaxStreamDataBidiLocal  uint64
	InitialMaxStreamDataBidiRemote uint64
	InitialMaxStreamDataUni        uint64
	InitialMaxStreamsBidi          uint64
	InitialMaxStreamsUni           uint64

	AckDelayExponent uint64
	MaxAckDelay      time.Duration

	DisableActiveMigration bool

	ActiveConnectionIDLimit uint64

	InitialSourceConnectionID    []byte
	HasInitialSourceConnectionID bool

	RetrySourceConnectionID    []byte
	HasRetrySourceConnectionID bool

	MaxDatagramFrameSize    uint64
	HasMaxDatagramFrameSize bool

	// PreferredAddress is carried opaquely: this library does not
	// implement active connection migration to a server-preferred
	// address, so the raw bytes are preserved only for completeness and
	// round-tripping.
	PreferredAddress    []byte
	HasPreferredAddress bool
}

// Defaults returns the RFC 9000 section 18.2 default values for
// parameters that have one.
func Defaults() Params {
	return Params{
		MaxUDPPayloadSize:       65527,
		AckDelayExponent:        3,
		MaxAckDelay:             25 * time.Millisecond,
		ActiveConnectionIDLimit: 2,
	}
}

// Encode appends the wire encoding of p to buf.
func Encode(buf []byte, p Params) []byte {
	put := func(buf []byte, id ID, value []byte) []byte {
		buf = wire.AppendVarint(buf, uint64(id))
		buf = wire.AppendVarint(buf, uint64(len(value)))
		return append(buf, value...)
	}
	putVarint := func(buf []byte, id ID, v uint64) []byte {
		var tmp []byte
		tmp = wire.AppendVarint(tmp, v)
		return put(buf, id, tmp)
	}

	if p.HasOriginalDestinationConnectionID {
		buf = put(buf, IDOriginalDestinationConnectionID, p.OriginalDestinationConnectionID)
	}
	buf = putVarint(buf, IDMaxIdleTimeout, uint64(p.MaxIdleTimeout/time.Millisecond))
	if p.HasStatelessResetToken {
		buf = put(buf, IDStatelessResetToken, p.StatelessResetToken[:])
	}
	buf = putVarint(buf, IDMaxUDPPayloadSize, p.MaxUDPPayloadSize)
	buf = putVarint(buf, IDInitialMaxData, p.InitialMaxData)
	buf = putVarint(buf, IDInitialMaxStreamDataBidiLocal, p.InitialMaxStreamDataBidiLocal)
	buf = putVarint(buf, IDInitialMaxStreamDataBidiRemote, p.InitialMaxStreamDataBidiRemote)
	buf = putVarint(buf, IDInitialMaxStreamDataUni, p.InitialMaxStreamDataUni)
	buf = putVarint(buf, IDInitialMaxStreamsBidi, p.InitialMaxStreamsBidi)
	buf = putVarint(buf, IDInitialMaxStreamsUni, p.InitialMaxStreamsUni)
	buf = putVarint(buf, IDAckDelayExponent, p.AckDelayExponent)
	buf = putVarint(buf, IDMaxAckDelay, uint64(p.MaxAckDelay/time.Millisecond))
	if p.DisableActiveMigration {
		buf = put(buf, IDDisableActiveMigration, nil)
	}
	if p.HasPreferredAddress {
		buf = put(buf, IDPreferredAddress, p.PreferredAddress)
	}
	buf = putVarint(buf, IDActiveConnectionIDLimit, p.ActiveConnectionIDLimit)
	if p.HasInitialSourceConnectionID {
		buf = put(buf, IDInitialSourceConnectionID, p.InitialSourceConnectionID)
	}
	if p.HasRetrySourceConnectionID {
		buf = put(buf, IDRetrySourceConnectionID, p.RetrySourceConnectionID)
	}
	if p.HasMaxDatagramFrameSize {
		buf = putVarint(buf, IDMaxDatagramFrameSize, p.MaxDatagramFrameSize)
	}
	return buf
}

// Decode parses the repeated (id, length, value) sequence of a
// transport-parameters extension body.
func Decode(data []byte) (Params, error) {
	p := Defaults()
	r := wire.NewReader(data)
	for r.Len() > 0 {
		idRaw, err := r.Varint()
		if err != nil {
			return p, qerr.Transport(qerr.TransportParameterError, "truncated transport parameter id")
		}
		value, err := r.VarintBytes()
		if err != nil {
			return p, qerr.Transport(qerr.TransportParameterError, "truncated transport parameter value")
		}
		id := ID(idRaw)
		vr := wire.NewReader(value)
		switch id {
		case IDOriginalDestinationConnectionID:
			p.OriginalDestinationConnectionID = value
			p.HasOriginalDestinationConnectionID = true
		case IDMaxIdleTimeout:
			v, err := vr.Varint()
			if err != nil {
				return p, qerr.Transport(qerr.TransportParameterError, "max_idle_timeout")
			}
			p.MaxIdleTimeout = time.Duration(v) * time.Millisecond
		case IDStatelessResetToken:
			if len(value) != 16 {
				return p, qerr.Transport(qerr.TransportParameterError, "stateless_reset_token wrong length")
			}
			copy(p.StatelessResetToken[:], value)
			p.HasStatelessResetToken = true
		case IDMaxUDPPayloadSize:
			v, err := vr.Varint()
			if err != nil || v < 1200 {
				return p, qerr.Transport(qerr.TransportParameterError, "max_udp_payload_size")
			}
			p.MaxUDPPayloadSize = v
		case IDInitialMaxData:
			if p.InitialMaxData, err = vr.Varint(); err != nil {
				return p, qerr.Transport(qerr.TransportParameterError, "initial_max_data")
			}
		case IDInitialMaxStreamDataBidiLocal:
			if p.InitialMaxStreamDataBidiLocal, err = vr.Varint(); err != nil {
				return p, qerr.Transport(qerr.TransportParameterError, "initial_max_stream_data_bidi_local")
			}
		case IDInitialMaxStreamDataBidiRemote:
			if p.InitialMaxStreamDataBidiRemote, err = vr.Varint(); err != nil {
				return p, qerr.Transport(qerr.TransportParameterError, "initial_max_stream_data_bidi_remote")
			}
		case IDInitialMaxStreamDataUni:
			if p.InitialMaxStreamDataUni, err = vr.Varint(); err != nil {
				return p, qerr.Transport(qerr.TransportParameterError, "initial_max_stream_data_uni")
			}
		case IDInitialMaxStreamsBidi:
			v, err := vr.Varint()
			if err != nil || v > (1<<60) {
				return p, qerr.Transport(qerr.TransportParameterError, "initial_max_streams_bidi")
			}
			p.InitialMaxStreamsBidi = v
		case IDInitialMaxStreamsUni:
			v, err := vr.Varint()
			if err != nil || v > (1<<60) {
				return p, qerr.Transport(qerr.TransportParameterError, "initial_max_streams_uni")
			}
			p.InitialMaxStreamsUni = v
		case IDAckDelayExponent:
			v, err := vr.Varint()
			if err != nil || v > 20 {
				return p, qerr.Transport(qerr.TransportParameterError, "ack_delay_exponent exceeds 20")
			}
			p.AckDelayExponent = v
		case IDMaxAckDelay:
			v, err := vr.Varint()
			if err != nil || v >= (1<<14) {
				return p, qerr.Transport(qerr.TransportParameterError, "max_ack_delay exceeds 2^14")
			}
			p.MaxAckDelay = time.Duration(v) * time.Millisecond
		case IDDisableActiveMigration:
			if len(value) != 0 {
				return p, qerr.Transport(qerr.TransportParameterError, "disable_active_migration must be empty")
			}
			p.DisableActiveMigration = true
		case IDPreferredAddress:
			p.PreferredAddress = value
			p.HasPreferredAddress = true
		case IDActiveConnectionIDLimit:
			v, err := vr.Varint()
			if err != nil || v < 2 {
				return p, qerr.Transport(qerr.TransportParameterError, "active_connection_id_limit below 2")
			}
			p.ActiveConnectionIDLimit = v
		case IDInitialSourceConnectionID:
			p.InitialSourceConnectionID = value
			p.HasInitialSourceConnectionID = true
		case IDRetrySourceConnectionID:
			p.RetrySourceConnectionID = value
			p.HasRetrySourceConnectionID = true
		case IDMaxDatagramFrameSize:
			if p.MaxDatagramFrameSize, err = vr.Varint(); err != nil {
				return p, qerr.Transport(qerr.TransportParameterError, "max_datagram_frame_size")
			}
			p.HasMaxDatagramFrameSize = true
		default:
			// Unrecognized parameters are ignored, per RFC 9000 section
			// 18.1.
		}
	}
	return p, nil
}

// ZeroRTTRemembered returns the subset of p safe for a client to apply
// when offering 0-RTT from a previous connection: the parameters the
// data model forbids remembering are dropped (ack_delay_exponent and
// max_ack_delay reset to their defaults, the rest cleared) so the caller
// is forced to take them only from the server's fresh value.
func ZeroRTTRemembered(p Params) Params {
	remembered := p
	remembered.AckDelayExponent = Defaults().AckDelayExponent
	remembered.MaxAckDelay = Defaults().MaxAckDelay
	remembered.InitialSourceConnectionID = nil
	remembered.HasInitialSourceConnectionID = false
	remembered.OriginalDestinationConnectionID = nil
	remembered.HasOriginalDestinationConnectionID = false
	remembered.PreferredAddress = nil
	remembered.HasPreferredAddress = false
	remembered.RetrySourceConnectionID = nil
	remembered.HasRetrySourceConnectionID = false
	remembered.StatelessResetToken = [16]byte{}
	remembered.HasStatelessResetToken = false
	return remembered
}

// ValidateInitialSourceConnectionID checks the initial_source_connection_id
// transport parameter against the SCID actually seen on the peer's first
// Initial packet.
func ValidateInitialSourceConnectionID(p Params, firstInitialSCID []byte) error {
	if !p.HasInitialSourceConnectionID {
		return qerr.Transport(qerr.TransportParameterError, "missing initial_source_connection_id")
	}
	if string(p.InitialSourceConnectionID) != string(firstInitialSCID) {
		return qerr.Transport(qerr.TransportParameterError, "initial_source_connection_id does not match first Initial's SCID")
	}
	return nil
}

// ValidateRetrySourceConnectionID checks retry_source_connection_id
// against the SCID of the Retry packet the client accepted, when a Retry
// occurred.
func ValidateRetrySourceConnectionID(p Params, retrySCID []byte) error {
	if !p.HasRetrySourceConnectionID {
		return qerr.Transport(qerr.TransportParameterError, "missing retry_source_connection_id after Retry")
	}
	if string(p.RetrySourceConnectionID) != string(retrySCID) {
		return qerr.Transport(qerr.TransportParameterError, "retry_source_connection_id does not match Retry's SCID")
	}
	return nil
}
