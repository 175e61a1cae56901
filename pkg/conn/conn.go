/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

// Package conn is the connection driver: it owns one QUIC connection's
// full state and exposes the three host-facing entry points (parse an
// incoming datagram, produce the next outgoing datagram, and report the
// next time the driver must be invoked even absent I/O) plus the
// stream-facing operations an application drives directly. It
// orchestrates every other package in this module: wire codecs, crypto
// key schedule, packet-number spaces, loss detection and congestion
// control, the stream engine, connection-ID and path management,
// transport parameters, and the connection close lifecycle.
package conn

import (
	"time"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/quicwire/qtp/internal/allocator"
	"github.com/quicwire/qtp/internal/clock"
	"github.com/quicwire/qtp/internal/xrand"
	"github.com/quicwire/qtp/pkg/cid"
	"github.com/quicwire/qtp/pkg/closer"
	"github.com/quicwire/qtp/pkg/pathval"
	"github.com/quicwire/qtp/pkg/qcrypto"
	"github.com/quicwire/qtp/pkg/recovery"
	"github.com/quicwire/qtp/pkg/sessioncache"
	"github.com/quicwire/qtp/pkg/stream"
	"github.com/quicwire/qtp/pkg/tlsbridge"
	"github.com/quicwire/qtp/pkg/tparams"
	"github.com/quicwire/qtp/pkg/wire"
)

// Version is the only QUIC version this driver speaks.
const Version uint32 = 0x00000001

// granularity is the system timer granularity floor recovery
// calculations apply, per RFC 9002 section 6.1.2.
const granularity = time.Millisecond

// Config bundles everything a host supplies to establish one connection.
type Config struct {
	IsClient bool

	// TLS is the handshake engine collaborator; the driver installs
	// itself as its Callback.
	TLS tlsbridge.Engine

	LocalParams tparams.Params

	// OriginalDestinationCID is the DCID the client chose for its first
	// Initial packet; it seeds Initial secret derivation and (for a
	// server) the original_destination_connection_id transport
	// parameter.
	OriginalDestinationCID []byte
	// InitialSourceCID is this endpoint's first SCID, echoed in
	// initial_source_connection_id.
	InitialSourceCID []byte

	Allocator allocator.Allocator
	Rand      xrand.Source

	// Clock supplies the monotonic time source every timer and RTT
	// calculation reads from. A nil Clock falls back to the system
	// clock; hosts with deterministic test harnesses supply their own.
	Clock clock.Source

	// SessionStore persists the 0-RTT-eligible subset of the peer's
	// transport parameters and the most recent NEW_TOKEN value across
	// connections, per the data model's persisted-state collaborator. A
	// nil SessionStore disables 0-RTT resumption entirely.
	SessionStore sessioncache.Store

	// ServerName identifies which SessionStore entry a client loads from
	// and saves to; ignored by servers.
	ServerName string

	MaxIdleTimeout time.Duration

	// LocalCIDLen is the length, in bytes, of connection IDs this
	// endpoint issues. All CIDs this endpoint hands out (including
	// InitialSourceCID) must share this length, since short-header
	// packets don't self-describe it on the wire.
	LocalCIDLen int

	// Logger receives structured per-connection diagnostics (dropped
	// packets, state transitions, key updates). A nil Logger falls back
	// to logrus's standard logger.
	Logger *logrus.Entry

	// MetricsID identifies this connection in exported metrics and log
	// fields. A blank value is replaced with a freshly generated xid.
	MetricsID string
}

// Connection is one QUIC connection's full driver state.
type Connection struct {
	isClient bool

	tls tlsbridge.Engine

	localParams   tparams.Params
	peerParams    tparams.Params
	peerParamsSet bool

	initialKeys    *qcrypto.InitialKeyPair
	handshakeKeys  *directionalPair
	oneRTT         *qcrypto.OneRTTKeys
	handshakeSuite *qcrypto.Suite

	spaces map[wire.Space]*packetSpace

	streams *stream.Manager

	localCIDs    *cid.Pool
	remoteCIDs   *cid.Pool
	scid         []byte
	dcid         []byte
	localCIDLen  int
	nextLocalSeq uint64

	// cidRetireOwed/cidIssueOwed track NEW_CONNECTION_ID / RETIRE_CONNECTION_ID
	// frames queued for a sequence number but not yet acknowledged; the
	// driver resends them opportunistically until the waiter fires.
	cidIssueOwed  map[uint64]bool
	cidRetireOwed map[uint64]bool

	paths        map[string]*pathval.Path
	activePathID string

	rtt   *recovery.RTTEstimator
	cc    *recovery.NewRenoController
	pacer *recovery.Pacer

	closer *closer.Closer

	handshakeConfirmed bool
	everSent           bool

	lastActivity   time.Time
	maxIdleTimeout time.Duration

	alloc allocator.Allocator
	rand  xrand.Source
	clock clock.Source

	sessionStore sessioncache.Store
	serverName   string
	// zeroRTTOffered records whether New remembered a prior session for
	// this server, so the driver knows whether to expect EarlyData
	// keys/offer 0-RTT at all.
	zeroRTTOffered bool
	remembered     sessioncache.Entry

	metricsID string
	log       *logrus.Entry

	// stats is the running counters MetricsSnapshot reports; updated
	// inline as packets are sent, received, and declared lost.
	stats connStats

	// retransmission bookkeeping for idempotent, monotonic control
	// frames: set true when the local value has advanced past what the
	// peer is known to have acknowledged, cleared only once a waiter
	// confirms that advertisement arrived. Resending while true (e.g.
	// after a loss) is always safe since these frames only ever raise a
	// limit.
	maxDataOwed        bool
	maxStreamDataOwed  map[stream.ID]bool
	handshakeDoneOwed  bool
	peerCIDRetirePrior uint64

	// everSentInitial records that this endpoint, as a client, has sent
	// at least one Initial packet; handleRetry ignores any Retry once it
	// is set. Padding to 1200 bytes is applied per datagram.
	everSentInitial bool

	// hsClientSecret/hsServerSecret and oneRTTClientSecret/oneRTTServerSecret
	// accumulate the two directional secrets TLS installs one at a time;
	// the Handshake directional pair and the 1-RTT key schedule are each
	// only (re)built once both arrive.
	hsClientSecret, hsServerSecret         []byte
	oneRTTClientSecret, oneRTTServerSecret []byte
	oneRTTSuite                            *qcrypto.Suite

	// initialDropped/handshakeDropped apply the key-discard rules of RFC
	// 9001 section 4.9 once both directions are installed one level up
	// and the older space is no longer needed.
	initialDropped, handshakeDropped                   bool
	sentFirstHandshakePacket, recvFirstHandshakePacket bool

	// tlsProgressing guards against re-entrant Progress calls from
	// within a Callback method invoked by Progress itself.
	tlsProgressing bool
	tlsDone        bool

	// sentWaiters records, per space and packet number, the ack/loss
	// callbacks owed to the frames that packet carried. It is consulted
	// by ConsumeAck/DetectLosses handling and cleared per packet number
	// once resolved; entries for a discarded space are simply dropped.
	sentWaiters map[wire.Space]map[int64][]ackWaiter

	// datagramsOut/datagramsIn are the unreliable application datagram
	// (RFC 9221) queues; the driver never retransmits or reorders them.
	datagramsOut [][]byte
	datagramsIn  [][]byte

	// streamRecvHighest tracks the highest offset-plus-length seen on
	// each stream, so connection-level flow control (which bounds the
	// sum across every stream, not actual bytes stored) can charge only
	// the newly-extended portion against streams.ConnRecvLimit.
	streamRecvHighest map[stream.ID]uint64

	// stopSendingRecv records a STOP_SENDING error code the peer sent for
	// a stream, for the application to observe and react to (typically by
	// resetting its own send half).
	stopSendingRecv map[stream.ID]uint64

	// peerToken is the most recent NEW_TOKEN value received from a
	// server, for use in token validation on a future connection attempt.
	peerToken []byte

	// pendingPathResponses queues PATH_RESPONSE payloads owed in reply to
	// a received PATH_CHALLENGE, for the driver to frame into the next
	// outgoing packet.
	pendingPathResponses [][8]byte

	// retrySourceCID is set once a client accepts a Retry, so the
	// server's eventual retry_source_connection_id transport parameter
	// can be validated against it.
	retrySourceCID []byte

	// streamResetOwed/streamResetCode/streamResetFinalSize track a
	// RESET_STREAM the application requested but that has not yet been
	// acknowledged; resent opportunistically while owed, same as the
	// other idempotent control-frame bookkeeping above.
	streamResetOwed      map[stream.ID]bool
	streamResetCode      map[stream.ID]uint64
	streamResetFinalSize map[stream.ID]uint64

	// stopSendingLocalOwed/stopSendingLocalCode track a STOP_SENDING the
	// application requested for a peer-opened stream's send half.
	stopSendingLocalOwed map[stream.ID]bool
	stopSendingLocalCode map[stream.ID]uint64

	// acceptQueueBidi/acceptQueueUni hold remotely-initiated stream IDs
	// the application has not yet observed via AcceptStream, in the order
	// they were created (higher_open entries first, then the frame that
	// triggered them, per section 4.6's acceptor rule).
	acceptQueueBidi []stream.ID
	acceptQueueUni  []stream.ID
}

type connStats struct {
	bytesSent, bytesReceived uint64
	packetsLost              uint64
}

// directionalPair is a client/server key pair for a single-epoch space
// (Handshake), mirroring qcrypto.InitialKeyPair's shape.
type directionalPair struct {
	client *qcrypto.DirectionalKeys
	server *qcrypto.DirectionalKeys
}

func (p *directionalPair) send(isClient bool) *qcrypto.DirectionalKeys {
	if isClient {
		return p.client
	}
	return p.server
}

func (p *directionalPair) recv(isClient bool) *qcrypto.DirectionalKeys {
	if isClient {
		return p.server
	}
	return p.client
}

// New constructs a Connection and derives its Initial keys. The caller
// drives the handshake forward by calling CreateUDPPayload and
// ParseUDPPayload, each of which advances the TLS engine.
func New(cfg Config) (*Connection, error) {
	initialKeys, err := qcrypto.DeriveInitialKeyPair(cfg.OriginalDestinationCID)
	if err != nil {
		return nil, err
	}

	alloc := cfg.Allocator
	if alloc == nil {
		alloc = allocator.Default
	}
	rnd := cfg.Rand
	if rnd == nil {
		rnd = xrand.Default
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Default
	}

	var remembered sessioncache.Entry
	zeroRTTOffered := false
	if cfg.IsClient && cfg.SessionStore != nil {
		if e, ok := cfg.SessionStore.Load(cfg.ServerName); ok {
			remembered = e
			zeroRTTOffered = true
		}
	}

	localParams := cfg.LocalParams
	localParams.InitialSourceConnectionID = cfg.InitialSourceCID
	localParams.HasInitialSourceConnectionID = true
	if !cfg.IsClient {
		localParams.OriginalDestinationConnectionID = cfg.OriginalDestinationCID
		localParams.HasOriginalDestinationConnectionID = true
	}

	metricsID := cfg.MetricsID
	if metricsID == "" {
		metricsID = xid.New().String()
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("conn", metricsID)

	localCIDLen := cfg.LocalCIDLen
	if localCIDLen == 0 {
		localCIDLen = len(cfg.InitialSourceCID)
	}

	c := &Connection{
		isClient:    cfg.IsClient,
		tls:         cfg.TLS,
		localParams: localParams,
		initialKeys: initialKeys,

		spaces: map[wire.Space]*packetSpace{
			wire.SpaceInitial:     newPacketSpace(wire.SpaceInitial),
			wire.SpaceHandshake:   newPacketSpace(wire.SpaceHandshake),
			wire.SpaceApplication: newPacketSpace(wire.SpaceApplication),
		},

		// localCIDs holds the IDs this endpoint issues to the peer, so its
		// limit is the peer's active_connection_id_limit (unknown until
		// the handshake completes; applyPeerParams raises it). remoteCIDs
		// holds the IDs the peer issues to us, bounded by the limit we
		// advertised ourselves.
		localCIDs:  cid.NewPool(tparams.Defaults().ActiveConnectionIDLimit),
		remoteCIDs: cid.NewPool(localParams.ActiveConnectionIDLimit),
		scid:        cfg.InitialSourceCID,
		dcid:        cfg.OriginalDestinationCID,
		localCIDLen: localCIDLen,

		cidIssueOwed:  make(map[uint64]bool),
		cidRetireOwed: make(map[uint64]bool),

		paths: make(map[string]*pathval.Path),

		rtt:   recovery.NewRTTEstimator(granularity),
		cc:    recovery.NewNewRenoController(),
		pacer: recovery.NewPacer(0, 0, clk.Now()),

		closer: closer.New(),

		maxIdleTimeout: cfg.MaxIdleTimeout,
		lastActivity:   clk.Now(),

		alloc: alloc,
		rand:  rnd,
		clock: clk,

		sessionStore:   cfg.SessionStore,
		serverName:     cfg.ServerName,
		zeroRTTOffered: zeroRTTOffered,
		remembered:     remembered,
		peerToken:      remembered.Token,

		metricsID: metricsID,
		log:       log,

		maxStreamDataOwed: make(map[stream.ID]bool),
		streamRecvHighest: make(map[stream.ID]uint64),
		stopSendingRecv:   make(map[stream.ID]uint64),

		streamResetOwed:      make(map[stream.ID]bool),
		streamResetCode:      make(map[stream.ID]uint64),
		streamResetFinalSize: make(map[stream.ID]uint64),
		stopSendingLocalOwed: make(map[stream.ID]bool),
		stopSendingLocalCode: make(map[stream.ID]uint64),
		sentWaiters: map[wire.Space]map[int64][]ackWaiter{
			wire.SpaceInitial:     {},
			wire.SpaceHandshake:   {},
			wire.SpaceApplication: {},
		},

		streams: stream.NewManager(stream.Params{
			IsClient:                      cfg.IsClient,
			LocalInitialMaxStreamsBidi:    localParams.InitialMaxStreamsBidi,
			LocalInitialMaxStreamsUni:     localParams.InitialMaxStreamsUni,
			ConnRecvLimit:                 localParams.InitialMaxData,
			LocalInitialMaxStreamDataBidi: localParams.InitialMaxStreamDataBidiLocal,
			LocalInitialMaxStreamDataUni:  localParams.InitialMaxStreamDataUni,
		}),
	}
	c.localCIDs.Insert(cid.Entry{Sequence: 0, ID: cfg.InitialSourceCID})
	c.nextLocalSeq = 1

	if cfg.TLS != nil {
		cfg.TLS.SetCallback(c)
		cfg.TLS.SetQUICTransportParams(tparams.Encode(nil, localParams))
	}

	c.activePathID = "0"
	c.paths[c.activePathID] = pathval.NewPath()
	if !cfg.IsClient {
		// A server only ever sees a path after receiving the client's
		// first Initial, which validates it immediately (the client's
		// address is trusted to the extent any UDP source address is).
		c.paths[c.activePathID].MarkValidated()
	}

	return c, nil
}

func (c *Connection) space(s wire.Space) *packetSpace { return c.spaces[s] }

func (c *Connection) path() *pathval.Path { return c.paths[c.activePathID] }

// IsHandshakeConfirmed reports whether the handshake has completed, per
// RFC 9001 section 4.1.2: for a client, receipt of HANDSHAKE_DONE; for a
// server, the TLS engine reporting the handshake complete.
func (c *Connection) IsHandshakeConfirmed() bool { return c.handshakeConfirmed }

// RememberedSession returns the prior session SessionStore.Load
// produced at construction time, if any. A client's TLS engine wrapper
// consults this to offer 0-RTT (the resumption PSK itself is a TLS
// concern, delegated entirely to tlsbridge.Engine); the transport's own
// use of it is limited to the NEW_TOKEN value already installed into
// the first Initial packet's token field.
func (c *Connection) RememberedSession() (sessioncache.Entry, bool) {
	return c.remembered, c.zeroRTTOffered
}

// ConnectionError returns the error that closed the connection, if any.
func (c *Connection) ConnectionError() (error, bool) {
	if c.closer.HasError() {
		return c.closer.Err(), true
	}
	return nil, false
}

// Close begins the closing lifecycle with the given application or
// transport error, per RFC 9000 section 10.2.
func (c *Connection) Close(err error, now time.Time) {
	c.closer.Close(err, now, c.ptoDuration())
}

func (c *Connection) ptoDuration() time.Duration {
	d := c.rtt.PTODuration(c.localParams.MaxAckDelay)
	if c.peerParamsSet && c.peerParams.MaxAckDelay > c.localParams.MaxAckDelay {
		d = c.rtt.PTODuration(c.peerParams.MaxAckDelay)
	}
	return d
}
