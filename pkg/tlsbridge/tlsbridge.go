// Package tlsbridge defines the collaborator interface between the
// transport driver and a TLS 1.3 engine, per RFC 9001 section 4: the
// transport hands the TLS engine encrypted-then-decrypted CRYPTO frame
// bytes and receives secrets, handshake bytes, and alerts back through a
// callback.
package tlsbridge

import "github.com/quicwire/qtp/pkg/qcrypto"

// Level names one of the four encryption levels TLS installs secrets
// for. EarlyData has no QUIC packet-number space of its own; it shares
// Application's, per RFC 9001 section 4.3.
type Level int

const (
	LevelInitial Level = iota
	LevelEarlyData
	LevelHandshake
	LevelApplication
)

func (l Level) String() string {
	switch l {
	case LevelInitial:
		return "initial"
	case LevelEarlyData:
		return "early_data"
	case LevelHandshake:
		return "handshake"
	case LevelApplication:
		return "application"
	default:
		return "unknown"
	}
}

// Engine is implemented by the TLS 1.3 handshake engine the driver
// drives. Implementations wrap a concrete TLS stack (e.g. crypto/tls's
// QUIC transport integration); this package only defines the seam.
type Engine interface {
	// SetCallback installs the driver as this engine's event sink. The
	// driver calls this exactly once, immediately after constructing
	// itself, so the two can be built independently (the driver needs a
	// constructed Engine to embed in its Config; the Engine needs a
	// constructed driver to call back into) without either side
	// observing a partially-initialized counterpart.
	SetCallback(cb Callback)
	// SetQUICTransportParams supplies the local transport parameters
	// extension body for TLS to send to the peer.
	SetQUICTransportParams(data []byte)
	// PeerQUICTransportParams returns the peer's transport parameters
	// extension body once received, or ok=false before that.
	PeerQUICTransportParams() (data []byte, ok bool)
	// ProvideData hands TLS decrypted CRYPTO frame payload received at
	// level.
	ProvideData(level Level, data []byte) error
	// Progress lets TLS make handshake progress and emit any outgoing
	// handshake bytes or secrets via the installed Callback.
	Progress() error
}

// Callback is implemented by the driver to receive events from the TLS
// engine as the handshake progresses.
type Callback interface {
	// InstallReadSecret installs the receive-direction secret for level
	// under the given cipher suite.
	InstallReadSecret(level Level, suite qcrypto.SuiteID, secret []byte) error
	// InstallWriteSecret installs the send-direction secret for level.
	InstallWriteSecret(level Level, suite qcrypto.SuiteID, secret []byte) error
	// EmitHandshakeData queues bytes for a CRYPTO frame at level.
	EmitHandshakeData(level Level, data []byte)
	// Alert reports a fatal TLS alert; the driver closes the connection
	// with a CRYPTO_ERROR transport code of CryptoErrorBase+code.
	Alert(code uint8)
	// HandshakeComplete reports that the TLS state machine has verified
	// the peer's Finished message (client) or produced and is ready to
	// act on its own (server), per RFC 9001 section 4.1.1/4.1.2. A
	// server driver treats this as the trigger to queue HANDSHAKE_DONE
	// and consider the handshake confirmed; a client only confirms once
	// it receives HANDSHAKE_DONE back, but still uses this signal to
	// know 1-RTT keys are safe to rely on for anything beyond early
	// data.
	HandshakeComplete()
	// Flush signals that TLS has no more immediate progress to make;
	// the driver should stop calling Progress until more CRYPTO data
	// arrives.
	Flush()
}
