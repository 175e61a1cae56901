/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

package conn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quicwire/qtp/pkg/qcrypto"
	"github.com/quicwire/qtp/pkg/qerr"
	"github.com/quicwire/qtp/pkg/stream"
	"github.com/quicwire/qtp/pkg/tlsbridge"
	"github.com/quicwire/qtp/pkg/tparams"
	"github.com/quicwire/qtp/pkg/wire"
)

// pairedTLS is a minimal fake Engine standing in for the real TLS 1.3
// handshake this module delegates per section 1. Two instances are
// constructed as a pair sharing a fixed handshake and application
// secret on each side, mimicking what a real TLS handshake would
// negotiate, without implementing any TLS record layer itself. The
// client's first Progress only emits its Initial flight; each side
// installs secrets and signals completion the first time Progress runs
// with the peer's transport parameters in hand (the server on its first
// call), which is enough to drive the driver's key schedule and
// HANDSHAKE_DONE machinery end to end.
type pairedTLS struct {
	cb        tlsbridge.Callback
	isClient  bool
	progressed bool
	helloSent  bool
	hsClientSecret, hsServerSecret     []byte
	appClientSecret, appServerSecret   []byte
	localTPData []byte
	peerParams []byte
}

func newPairedTLS(isClient bool, shared *pairedTLS) *pairedTLS {
	return &pairedTLS{
		isClient:        isClient,
		hsClientSecret:  shared.hsClientSecret,
		hsServerSecret:  shared.hsServerSecret,
		appClientSecret: shared.appClientSecret,
		appServerSecret: shared.appServerSecret,
	}
}

func (e *pairedTLS) SetCallback(cb tlsbridge.Callback) { e.cb = cb }

func (e *pairedTLS) SetQUICTransportParams(data []byte) { e.localTPData = data }

func (e *pairedTLS) PeerQUICTransportParams() ([]byte, bool) {
	if e.peerParams == nil {
		return nil, false
	}
	return e.peerParams, true
}

func (e *pairedTLS) ProvideData(level tlsbridge.Level, data []byte) error {
	if level == tlsbridge.LevelInitial {
		e.peerParams = data
	}
	return nil
}

func (e *pairedTLS) Progress() error {
	if e.progressed {
		return nil
	}
	if e.isClient && !e.helloSent {
		e.helloSent = true
		e.cb.EmitHandshakeData(tlsbridge.LevelInitial, e.localTPData)
	}
	if e.isClient && e.peerParams == nil {
		return nil
	}
	e.progressed = true

	if e.isClient {
		if err := e.cb.InstallWriteSecret(tlsbridge.LevelHandshake, qcrypto.SuiteAES128GCM, e.hsClientSecret); err != nil {
			return err
		}
		if err := e.cb.InstallReadSecret(tlsbridge.LevelHandshake, qcrypto.SuiteAES128GCM, e.hsServerSecret); err != nil {
			return err
		}
		if err := e.cb.InstallWriteSecret(tlsbridge.LevelApplication, qcrypto.SuiteAES128GCM, e.appClientSecret); err != nil {
			return err
		}
		if err := e.cb.InstallReadSecret(tlsbridge.LevelApplication, qcrypto.SuiteAES128GCM, e.appServerSecret); err != nil {
			return err
		}
	} else {
		if err := e.cb.InstallWriteSecret(tlsbridge.LevelHandshake, qcrypto.SuiteAES128GCM, e.hsServerSecret); err != nil {
			return err
		}
		if err := e.cb.InstallReadSecret(tlsbridge.LevelHandshake, qcrypto.SuiteAES128GCM, e.hsClientSecret); err != nil {
			return err
		}
		if err := e.cb.InstallWriteSecret(tlsbridge.LevelApplication, qcrypto.SuiteAES128GCM, e.appServerSecret); err != nil {
			return err
		}
		if err := e.cb.InstallReadSecret(tlsbridge.LevelApplication, qcrypto.SuiteAES128GCM, e.appClientSecret); err != nil {
			return err
		}
	}
	// Stand in for a real TLS stack carrying the transport parameters
	// extension inside its first flight: hand the peer our encoded
	// local parameters over the Initial CRYPTO stream so the driver's
	// applyPeerParams path (which reads them back out through
	// PeerQUICTransportParams on the *peer's* engine) has something to
	// see.
	if !e.isClient {
		e.cb.EmitHandshakeData(tlsbridge.LevelInitial, e.localTPData)
	}
	e.cb.EmitHandshakeData(tlsbridge.LevelHandshake, []byte("fake-handshake-bytes"))
	e.cb.Flush()
	e.cb.HandshakeComplete()
	return nil
}

// testPair wires up a client and server Connection that address each
// other directly: bytes written by one side's CreateUDPPayload are fed
// straight into the other's ParseUDPPayload, standing in for the host's
// UDP socket plumbing (an explicit external collaborator per section
// 1).
type testPair struct {
	client, server *Connection
}

func newTestPair(t *testing.T) *testPair {
	t.Helper()

	odcid := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	clientSCID := []byte{0x11, 0x12, 0x13, 0x14}
	serverSCID := []byte{0x21, 0x22, 0x23, 0x24}

	shared := &pairedTLS{
		hsClientSecret:  make([]byte, 32),
		hsServerSecret:  make([]byte, 32),
		appClientSecret: make([]byte, 32),
		appServerSecret: make([]byte, 32),
	}
	for i := range shared.hsClientSecret {
		shared.hsClientSecret[i] = byte(i + 1)
		shared.hsServerSecret[i] = byte(i + 101)
		shared.appClientSecret[i] = byte(i + 201)
		shared.appServerSecret[i] = byte(255 - i)
	}

	localParams := tparams.Defaults()
	localParams.InitialMaxData = 1 << 20
	localParams.InitialMaxStreamDataBidiLocal = 1 << 16
	localParams.InitialMaxStreamDataBidiRemote = 1 << 16
	localParams.InitialMaxStreamDataUni = 1 << 16
	localParams.InitialMaxStreamsBidi = 10
	localParams.InitialMaxStreamsUni = 10
	localParams.MaxIdleTimeout = 30 * time.Second

	client, err := New(Config{
		IsClient:                true,
		TLS:                     newPairedTLS(true, shared),
		LocalParams:             localParams,
		OriginalDestinationCID:  odcid,
		InitialSourceCID:        clientSCID,
		LocalCIDLen:             len(clientSCID),
		MaxIdleTimeout:          localParams.MaxIdleTimeout,
	})
	require.NoError(t, err)

	server, err := New(Config{
		IsClient:                false,
		TLS:                     newPairedTLS(false, shared),
		LocalParams:             localParams,
		OriginalDestinationCID:  odcid,
		InitialSourceCID:        serverSCID,
		LocalCIDLen:             len(serverSCID),
		MaxIdleTimeout:          localParams.MaxIdleTimeout,
	})
	require.NoError(t, err)

	return &testPair{client: client, server: server}
}

// pump exchanges datagrams between client and server until neither side
// has anything left to send, or maxRounds is hit. It returns the total
// number of non-empty datagrams exchanged.
func (p *testPair) pump(t *testing.T, maxRounds int) int {
	t.Helper()
	buf := make([]byte, 2048)
	exchanged := 0
	for i := 0; i < maxRounds; i++ {
		progressed := false

		out, pathID, _ := p.client.CreateUDPPayload(buf)
		if len(out) > 0 {
			cp := append([]byte(nil), out...)
			require.NoError(t, p.server.ParseUDPPayload(cp, pathID))
			exchanged++
			progressed = true
		}

		out, pathID, _ = p.server.CreateUDPPayload(buf)
		if len(out) > 0 {
			cp := append([]byte(nil), out...)
			require.NoError(t, p.client.ParseUDPPayload(cp, pathID))
			exchanged++
			progressed = true
		}

		if !progressed {
			break
		}
	}
	return exchanged
}

// TestHandshakeCompletesAndConfirms drives scenario S1: a full handshake
// with no loss ends with the server having sent HANDSHAKE_DONE, the
// client treating the handshake as confirmed, and both sides agreeing
// the connection is alive (1-RTT keys installed both directions).
func TestHandshakeCompletesAndConfirms(t *testing.T) {
	p := newTestPair(t)

	exchanged := p.pump(t, 10)
	assert.Greater(t, exchanged, 0)

	assert.True(t, p.server.IsHandshakeConfirmed(), "server confirms as soon as its own TLS stack completes")
	assert.True(t, p.client.IsHandshakeConfirmed(), "client confirms once HANDSHAKE_DONE arrives")
	assert.NotNil(t, p.client.oneRTT)
	assert.NotNil(t, p.server.oneRTT)
}

// TestStreamRoundTrip drives a simplified version of scenario S3: the
// client opens a bidirectional stream, writes bytes, and the server
// observes exactly those bytes, in order, exactly once.
func TestStreamRoundTrip(t *testing.T) {
	p := newTestPair(t)
	p.pump(t, 10)
	require.True(t, p.client.IsHandshakeConfirmed())

	id, err := p.client.OpenStream(true)
	require.NoError(t, err)

	payload := []byte("abcdef")
	n, err := p.client.WriteStream(id, payload, true)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)

	p.pump(t, 10)

	sid, ok := p.server.AcceptStream(true)
	require.True(t, ok)
	assert.Equal(t, id, sid)

	var got []byte
	for i := 0; i < 5; i++ {
		data, done, err := p.server.ReadStream(sid)
		require.NoError(t, err)
		got = append(got, data...)
		if done {
			break
		}
		p.pump(t, 2)
	}
	assert.Equal(t, payload, got)
}

// TestFlowControlBlockedThenRaised drives scenario S5: a small
// stream-data limit caps how much of a write the driver can actually
// frame, and raising the limit (as MAX_STREAM_DATA would) lets the rest
// through without re-sending what already made it.
func TestFlowControlBlockedThenRaised(t *testing.T) {
	p := newTestPair(t)
	p.pump(t, 10)
	require.True(t, p.client.IsHandshakeConfirmed())

	id, err := p.client.OpenStream(true)
	require.NoError(t, err)

	e, ok := p.client.streams.Get(id)
	require.True(t, ok)
	e.Send.Limit = stream.NewLimiter(100)

	data := make([]byte, 200)
	for i := range data {
		data[i] = byte(i)
	}
	n, err := p.client.WriteStream(id, data, true)
	require.NoError(t, err)
	assert.Equal(t, 100, n, "write is capped at the current stream-data limit")

	p.pump(t, 5)

	e.Send.Limit.SetLimit(250)
	n2, err := p.client.WriteStream(id, data[100:], true)
	require.NoError(t, err)
	assert.Equal(t, 100, n2)

	p.pump(t, 10)

	sid, ok := p.server.AcceptStream(true)
	require.True(t, ok)

	var got []byte
	for i := 0; i < 6; i++ {
		chunk, done, err := p.server.ReadStream(sid)
		require.NoError(t, err)
		got = append(got, chunk...)
		if done {
			break
		}
		p.pump(t, 2)
	}
	assert.Equal(t, data, got)
}

// TestOneRTTProtocolViolationClosesConnection forges a 1-RTT packet
// carrying a NEW_TOKEN frame and feeds it to the server as if the client
// had sent it. NEW_TOKEN is server-to-client only (RFC 9000 section
// 19.7); a server receiving one is PROTOCOL_VIOLATION
// (pkg/conn/frames.go's NewTokenFrame handler). Per spec.md section 7
// that error must close the connection rather than be discarded, which
// regressed once for the 1-RTT parsing path (parseShortHeaderPacket
// discarded dispatchPacket's error instead of propagating it like
// decryptAndDispatchLong already did for the long-header path).
func TestOneRTTProtocolViolationClosesConnection(t *testing.T) {
	p := newTestPair(t)
	p.pump(t, 10)
	require.True(t, p.server.IsHandshakeConfirmed())

	_, hadErr := p.server.ConnectionError()
	require.False(t, hadErr)

	payload := wire.AppendNewToken(nil, wire.NewTokenFrame{Token: []byte("forged-token")})

	keys := p.client.oneRTT.Send()
	raw, ok := p.client.sealShortPacket(keys, payload, 0)
	require.True(t, ok)

	err := p.server.ParseUDPPayload(raw, p.server.activePathID)
	require.NoError(t, err, "ParseUDPPayload itself never returns a frame-handler error; it closes the connection instead")

	connErr, hadErr := p.server.ConnectionError()
	require.True(t, hadErr, "a PROTOCOL_VIOLATION raised while dispatching a 1-RTT packet must close the connection")
	qe, ok := connErr.(*qerr.Error)
	require.True(t, ok)
	assert.Equal(t, qerr.ProtocolViolation, qe.TransportCode)
}
