package stream

import "github.com/quicwire/qtp/pkg/qerr"

// Entry pairs the send and/or receive half that exist for one stream ID:
// both halves for a bidirectional stream, only one for a unidirectional
// stream depending on which side opened it.
type Entry struct {
	Send *SendStream
	Recv *RecvStream
}

// OpenedStream is reported by Manager.Accept for every stream an
// incoming frame references, including streams implicitly opened by a
// gap in the peer's sequence numbers.
type OpenedStream struct {
	ID     ID
	Reason OpenReason
}

// Manager owns the four (initiator, direction) issuer/acceptor pairs and
// the map of live streams for one connection.
type Manager struct {
	clientInitiatedUni  *Issuer
	clientInitiatedBidi *Issuer
	serverInitiatedUni  *Issuer
	serverInitiatedBidi *Issuer

	uniAcceptor  *Acceptor
	bidiAcceptor *Acceptor

	isClient bool

	streams map[ID]*Entry

	connSendLimit *Limiter
	connRecvLimit *Limiter

	peerInitialMaxStreamDataBidiLocal  uint64
	peerInitialMaxStreamDataBidiRemote uint64
	peerInitialMaxStreamDataUni        uint64
	localInitialMaxStreamDataBidi      uint64
	localInitialMaxStreamDataUni       uint64
}

// Params bundles the transport-parameter-derived limits a Manager needs
// at construction.
type Params struct {
	IsClient bool

	PeerInitialMaxStreamsBidi uint64
	PeerInitialMaxStreamsUni  uint64
	LocalInitialMaxStreamsBidi uint64
	LocalInitialMaxStreamsUni  uint64

	ConnSendLimit uint64
	ConnRecvLimit uint64

	PeerInitialMaxStreamDataBidiLocal  uint64
	PeerInitialMaxStreamDataBidiRemote uint64
	PeerInitialMaxStreamDataUni        uint64
	LocalInitialMaxStreamDataBidi      uint64
	LocalInitialMaxStreamDataUni       uint64
}

// NewManager constructs a Manager with issuers/acceptors seeded from the
// negotiated transport parameters.
func NewManager(p Params) *Manager {
	return &Manager{
		clientInitiatedUni:  NewIssuer(true, false, boolSel(p.IsClient, p.PeerInitialMaxStreamsUni, 0)),
		clientInitiatedBidi: NewIssuer(true, true, boolSel(p.IsClient, p.PeerInitialMaxStreamsBidi, 0)),
		serverInitiatedUni:  NewIssuer(false, false, boolSel(!p.IsClient, p.PeerInitialMaxStreamsUni, 0)),
		serverInitiatedBidi: NewIssuer(false, true, boolSel(!p.IsClient, p.PeerInitialMaxStreamsBidi, 0)),

		uniAcceptor:  NewAcceptor(p.LocalInitialMaxStreamsUni),
		bidiAcceptor: NewAcceptor(p.LocalInitialMaxStreamsBidi),

		isClient: p.IsClient,
		streams:  make(map[ID]*Entry),

		connSendLimit: NewLimiter(p.ConnSendLimit),
		connRecvLimit: NewLimiter(p.ConnRecvLimit),

		peerInitialMaxStreamDataBidiLocal:  p.PeerInitialMaxStreamDataBidiLocal,
		peerInitialMaxStreamDataBidiRemote: p.PeerInitialMaxStreamDataBidiRemote,
		peerInitialMaxStreamDataUni:        p.PeerInitialMaxStreamDataUni,
		localInitialMaxStreamDataBidi:      p.LocalInitialMaxStreamDataBidi,
		localInitialMaxStreamDataUni:       p.LocalInitialMaxStreamDataUni,
	}
}

func boolSel(cond bool, whenTrue, whenFalse uint64) uint64 {
	if cond {
		return whenTrue
	}
	return whenFalse
}

// issuerFor returns the Issuer this endpoint uses to open streams of the
// given class.
func (m *Manager) issuerFor(bidi bool) *Issuer {
	if m.isClient {
		if bidi {
			return m.clientInitiatedBidi
		}
		return m.clientInitiatedUni
	}
	if bidi {
		return m.serverInitiatedBidi
	}
	return m.serverInitiatedUni
}

// OpenLocal allocates a new locally-initiated stream of the given class
// and registers its Entry.
func (m *Manager) OpenLocal(bidi bool) (*Entry, error) {
	id, err := m.issuerFor(bidi).Open()
	if err != nil {
		return nil, err
	}
	e := &Entry{Send: NewSendStream(id, m.peerSendLimitFor(id))}
	if bidi {
		e.Recv = NewRecvStream(id, m.localRecvLimitFor(id))
	}
	m.streams[id] = e
	return e, nil
}

func (m *Manager) peerSendLimitFor(id ID) uint64 {
	if !id.Bidi() {
		return m.peerInitialMaxStreamDataUni
	}
	if id.ClientInitiated() == m.isClient {
		return m.peerInitialMaxStreamDataBidiRemote
	}
	return m.peerInitialMaxStreamDataBidiLocal
}

func (m *Manager) localRecvLimitFor(id ID) uint64 {
	if !id.Bidi() {
		return m.localInitialMaxStreamDataUni
	}
	return m.localInitialMaxStreamDataBidi
}

// Accept processes a reference to a remotely-initiated stream ID,
// implicitly opening any lower-sequence streams of the same class first.
// It returns every stream opened as a result, in order, and rejects a
// locally-initiated ID referenced by the peer as PROTOCOL_VIOLATION.
func (m *Manager) Accept(id ID) ([]OpenedStream, error) {
	if id.ClientInitiated() == m.isClient {
		return nil, qerr.Transport(qerr.ProtocolViolation, "peer referenced a locally-initiated stream ID")
	}
	acceptor := m.uniAcceptor
	if id.Bidi() {
		acceptor = m.bidiAcceptor
	}
	opened, err := acceptor.Observe(id.Sequence())
	if err != nil {
		return nil, err
	}
	var out []OpenedStream
	for i, seq := range opened {
		oid := Make(seq, id.ClientInitiated(), id.Bidi())
		if _, exists := m.streams[oid]; !exists {
			entry := &Entry{Recv: NewRecvStream(oid, m.localRecvLimitFor(oid))}
			if oid.Bidi() {
				entry.Send = NewSendStream(oid, m.peerSendLimitFor(oid))
			}
			m.streams[oid] = entry
		}
		reason := ReasonHigherOpen
		if i == len(opened)-1 {
			reason = ReasonRecvFrame
		}
		out = append(out, OpenedStream{ID: oid, Reason: reason})
	}
	return out, nil
}

// Get returns the Entry for id, if any.
func (m *Manager) Get(id ID) (*Entry, bool) {
	e, ok := m.streams[id]
	return e, ok
}

// ConnSendLimit and ConnRecvLimit expose the connection-wide flow
// control limiters (MAX_DATA / DATA_BLOCKED bookkeeping lives one layer
// up, in the driver, since it must coordinate across every stream).
func (m *Manager) ConnSendLimit() *Limiter { return m.connSendLimit }
func (m *Manager) ConnRecvLimit() *Limiter { return m.connRecvLimit }

// SetPeerStreamLimit raises the relevant Issuer's limit in response to a
// MAX_STREAMS frame from the peer.
func (m *Manager) SetPeerStreamLimit(bidi bool, limit uint64) {
	m.issuerFor(bidi).SetLimit(limit)
}

// SetPeerStreamDataLimits installs the peer's initial_max_stream_data_*
// transport parameters, once known, for every stream class this
// endpoint may later open. It only affects streams opened after this
// call; already-open streams keep whatever limit they were constructed
// with and must be raised individually via their SendStream.Limit.
func (m *Manager) SetPeerStreamDataLimits(bidiLocal, bidiRemote, uni uint64) {
	if bidiLocal > m.peerInitialMaxStreamDataBidiLocal {
		m.peerInitialMaxStreamDataBidiLocal = bidiLocal
	}
	if bidiRemote > m.peerInitialMaxStreamDataBidiRemote {
		m.peerInitialMaxStreamDataBidiRemote = bidiRemote
	}
	if uni > m.peerInitialMaxStreamDataUni {
		m.peerInitialMaxStreamDataUni = uni
	}
}

// Streams returns every live stream Entry, for bulk operations like
// raising newly-learned peer limits across already-open sends.
func (m *Manager) Streams() map[ID]*Entry { return m.streams }
