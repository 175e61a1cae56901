// Package cid manages the two connection-ID pools a connection keeps:
// the local IDs issued to the peer, and the remote IDs the peer issued
// to us, per RFC 9000 section 5.1, plus stateless-reset detection.
package cid

import (
	"crypto/subtle"

	"github.com/quicwire/qtp/pkg/qerr"
)

// Entry is one connection ID together with its sequence number and, when
// HasToken is set, the stateless reset token bound to it (for peer-issued
// IDs, the token MatchStatelessReset compares incoming packets against).
type Entry struct {
	Sequence   uint64
	ID         []byte
	ResetToken [16]byte
	HasToken   bool
}

// Pool is a single ordered set of connection IDs: either the IDs we
// issued to the peer (local) or the ones the peer issued to us (remote).
type Pool struct {
	bySeq          map[uint64]Entry
	retirePriorTo  uint64
	activeLimit    uint64
}

// NewPool returns an empty Pool bounded by activeLimit
// (active_connection_id_limit, local or peer-declared depending on
// which Pool this is).
func NewPool(activeLimit uint64) *Pool {
	return &Pool{bySeq: make(map[uint64]Entry), activeLimit: activeLimit}
}

// Active returns the number of connection IDs not yet retired.
func (p *Pool) Active() int { return len(p.bySeq) }

// ActiveLimit returns the active_connection_id_limit this pool is
// currently bounded by.
func (p *Pool) ActiveLimit() uint64 { return p.activeLimit }

// SetActiveLimit raises the pool's active_connection_id_limit once the
// peer's transport parameters are known; the limit only ever grows
// after construction.
func (p *Pool) SetActiveLimit(limit uint64) {
	if limit > p.activeLimit {
		p.activeLimit = limit
	}
}

// Insert adds a locally-chosen connection ID (used by the local pool
// when this endpoint issues a NEW_CONNECTION_ID).
func (p *Pool) Insert(e Entry) {
	p.bySeq[e.Sequence] = e
}

// ObserveNewConnectionID applies a received NEW_CONNECTION_ID frame to
// the remote pool: rejects a sequence reused with a different ID, and
// reports which
// sequences (if any) must now be retired because retire_prior_to
// advanced.
func (p *Pool) ObserveNewConnectionID(seq, retirePriorTo uint64, id []byte, token [16]byte) (toRetire []uint64, err error) {
	if existing, ok := p.bySeq[seq]; ok {
		if string(existing.ID) != string(id) {
			return nil, qerr.Transport(qerr.ProtocolViolation, "NEW_CONNECTION_ID reused sequence with a different ID")
		}
	} else {
		p.bySeq[seq] = Entry{Sequence: seq, ID: id, ResetToken: token, HasToken: true}
	}
	if retirePriorTo > p.retirePriorTo {
		for s := range p.bySeq {
			if s < retirePriorTo {
				toRetire = append(toRetire, s)
			}
		}
		p.retirePriorTo = retirePriorTo
	}
	return toRetire, nil
}

// Retire removes a sequence from the pool, e.g. once its
// RETIRE_CONNECTION_ID has been queued for send.
func (p *Pool) Retire(seq uint64) { delete(p.bySeq, seq) }

// ObserveRetireConnectionID validates a received RETIRE_CONNECTION_ID
// against the local pool: the sequence must be one we issued, and must
// not name the DCID of the packet that carried the frame.
func (p *Pool) ObserveRetireConnectionID(seq uint64, packetDCIDSeq uint64, packetDCIDKnown bool) error {
	if _, ok := p.bySeq[seq]; !ok {
		return qerr.Transport(qerr.ProtocolViolation, "RETIRE_CONNECTION_ID named a sequence we never issued")
	}
	if packetDCIDKnown && seq == packetDCIDSeq {
		return qerr.Transport(qerr.ProtocolViolation, "RETIRE_CONNECTION_ID retired the DCID of its own packet")
	}
	delete(p.bySeq, seq)
	return nil
}

// Get returns the entry for sequence seq.
func (p *Pool) Get(seq uint64) (Entry, bool) {
	e, ok := p.bySeq[seq]
	return e, ok
}

// SequenceFor reverse-looks-up the sequence number of a connection ID by
// its byte value, so a packet's destination CID can be resolved back to
// the sequence RETIRE_CONNECTION_ID validation needs.
func (p *Pool) SequenceFor(id []byte) (uint64, bool) {
	for seq, e := range p.bySeq {
		if string(e.ID) == string(id) {
			return seq, true
		}
	}
	return 0, false
}

// MatchStatelessReset reports whether the trailing 16 bytes of an
// incoming packet of at least 21 bytes match any stateless reset token
// in this pool, in constant time per token (a timing side-channel across
// different tokens is out of scope, as is true for every implementation
// comparing against a bounded token set).
func (p *Pool) MatchStatelessReset(packet []byte) bool {
	if len(packet) < 21 {
		return false
	}
	tail := packet[len(packet)-16:]
	for _, e := range p.bySeq {
		if !e.HasToken {
			continue
		}
		if subtle.ConstantTimeCompare(tail, e.ResetToken[:]) == 1 {
			return true
		}
	}
	return false
}
