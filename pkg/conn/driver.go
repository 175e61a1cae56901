/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

package conn

import (
	"time"

	"github.com/quicwire/qtp/internal/xrand"
	"github.com/quicwire/qtp/pkg/closer"
	"github.com/quicwire/qtp/pkg/metrics"
	"github.com/quicwire/qtp/pkg/pathval"
	"github.com/quicwire/qtp/pkg/qcrypto"
	"github.com/quicwire/qtp/pkg/qerr"
	"github.com/quicwire/qtp/pkg/recovery"
	"github.com/quicwire/qtp/pkg/wire"
)

// maxDatagramSize is the default UDP payload size this driver builds
// packets up to absent path MTU discovery, which is out of scope.
const maxDatagramSize = 1350

// minInitialSize is the padded floor a client's datagram carrying an
// Initial packet must reach, per RFC 9000 section 14.1.
const minInitialSize = 1200

// ParseUDPPayload drives one inbound datagram: it loops over every
// coalesced packet, decrypting and dispatching each in turn. A
// decryption failure drops only the offending packet; parsing continues
// with whatever coalesced packets follow it, per RFC 9000 section 12.2.
func (c *Connection) ParseUDPPayload(datagram []byte, pathID string) error {
	if c.closer.State() == closer.StateDraining || c.closer.State() == closer.StateDestroyed {
		return nil
	}
	now := c.now()
	p := c.paths[pathID]
	if p == nil {
		p = pathval.NewPath()
		c.paths[pathID] = p
		if c.handshakeConfirmed {
			// RFC 9000 section 9.3: traffic arriving on a path this
			// endpoint has never sent on is a migration candidate, and
			// must not be used until validated.
			challenge := [8]byte{}
			copy(challenge[:], xrand.Bytes(c.rand, 8, xrand.UsagePathChallenge))
			p.IssueChallenge(challenge, now, c.ptoDuration())
		}
	}
	c.activePathID = pathID
	p.OnBytesReceived(len(datagram))
	c.lastActivity = now

	rest := datagram
	for len(rest) > 0 {
		consumed, err := c.parseOnePacket(rest, datagram)
		if consumed <= 0 {
			// Nothing more can be recovered from this datagram (a
			// malformed cleartext prefix, not a decrypt failure).
			if err != nil {
				c.log.WithError(err).Debug("dropping malformed coalesced packet")
			}
			return nil
		}
		rest = rest[consumed:]
	}
	return c.progress()
}

// parseOnePacket consumes exactly one packet (long- or short-header)
// from the front of rest, returning the number of bytes it occupied in
// the datagram so the caller can advance past it regardless of whether
// decryption succeeded.
func (c *Connection) parseOnePacket(rest, fullDatagram []byte) (int, error) {
	first := rest[0]
	if !wire.IsLongHeader(first) {
		n := len(rest)
		if err := c.parseShortHeaderPacket(rest); err != nil {
			if _, ok := err.(*qerr.DecryptError); ok {
				c.log.Debug("dropping 1-RTT packet that failed to decrypt")
				return n, nil
			}
			c.fail(err)
		}
		return n, nil
	}

	if len(rest) >= 5 && rest[1] == 0 && rest[2] == 0 && rest[3] == 0 && rest[4] == 0 {
		// Version Negotiation carries no length field and is never
		// coalesced with anything else; consume the rest of the
		// datagram. Only a client acts on it, and only before any
		// Initial has been acknowledged; this driver does not
		// implement version renegotiation (a single version is
		// supported), so it is otherwise ignored.
		return len(rest), nil
	}

	lt := wire.LongPacketType((first >> 4) & 0x3)
	if lt == wire.LongTypeRetry {
		c.handleRetry(rest)
		return len(rest), nil
	}

	hdr, err := wire.ParseLongHeaderPrefix(rest)
	if err != nil {
		return 0, err
	}
	total := hdr.HeaderLen + hdr.PacketLength
	if total > len(rest) {
		return 0, qerr.Transport(qerr.ProtocolViolation, "coalesced packet length exceeds datagram")
	}

	space := hdr.Type.Space()
	keys := c.recvKeysFor(space)
	if keys == nil || c.spaces[space].discarded {
		// No keys installed yet (or already dropped): drop this packet
		// silently and move on to whatever follows it.
		return total, nil
	}

	if err := c.decryptAndDispatchLong(rest[:total], hdr, space, keys); err != nil {
		if _, ok := err.(*qerr.DecryptError); ok {
			c.log.WithField("space", space).Debug("dropping packet that failed to decrypt")
			return total, nil
		}
		c.fail(err)
		return total, nil
	}
	return total, nil
}

func (c *Connection) recvKeysFor(space wire.Space) *qcrypto.DirectionalKeys {
	switch space {
	case wire.SpaceInitial:
		if c.initialKeys == nil {
			return nil
		}
		if c.isClient {
			return c.initialKeys.Server
		}
		return c.initialKeys.Client
	case wire.SpaceHandshake:
		if c.handshakeKeys == nil {
			return nil
		}
		return c.handshakeKeys.recv(c.isClient)
	case wire.SpaceApplication:
		if c.oneRTT == nil {
			return nil
		}
		k, _, _ := c.oneRTT.Recv()
		return k
	default:
		return nil
	}
}

// removeHeaderProtection samples the packet and unmasks the first byte
// and packet-number field in place, returning the unprotected first byte
// and the packet-number field length it encodes.
func removeHeaderProtection(keys *qcrypto.DirectionalKeys, buf []byte, pnOffset int, longHeader bool) (pnLen int, err error) {
	sampleOffset := pnOffset + 4
	if sampleOffset+16 > len(buf) {
		return 0, qerr.Transport(qerr.ProtocolViolation, "packet too short to sample for header protection")
	}
	mask, err := keys.HeaderProtectionMask(buf[sampleOffset : sampleOffset+16])
	if err != nil {
		return 0, qerr.Internal("header protection mask", err)
	}
	qcrypto.ApplyHeaderProtection(buf, 0, pnOffset, 4, mask, longHeader)
	// ApplyHeaderProtection above only unmasked the first byte fully and
	// (at most) 4 PN bytes; the true length is now recoverable from the
	// unmasked first byte, but bytes beyond the true length were also
	// XORed and must be reapplied to restore them, since the mask was
	// computed for 4 bytes unconditionally.
	if longHeader {
		pnLen = wire.LongHeaderPacketNumberLen(buf[0])
	} else {
		pnLen = wire.ShortHeaderPacketNumberLen(buf[0])
	}
	for i := pnLen; i < 4; i++ {
		buf[pnOffset+i] ^= mask[1+i]
	}
	return pnLen, nil
}

func (c *Connection) decryptAndDispatchLong(packet []byte, hdr *wire.ParsedLongHeader, space wire.Space, keys *qcrypto.DirectionalKeys) error {
	pnOffset := hdr.HeaderLen
	pnLen, err := removeHeaderProtection(keys, packet, pnOffset, true)
	if err != nil {
		return err
	}
	truncated, n, err := readTruncatedPN(packet[pnOffset:], pnLen)
	if err != nil {
		return err
	}
	header := packet[:pnOffset+n]
	ciphertext := packet[pnOffset+n:]

	sp := c.space(space)
	pn := wire.DecodePacketNumber(sp.pn.LargestReceived(), truncated, pnLen)
	if sp.pn.IsDuplicate(pn) {
		return nil
	}

	plaintext, err := keys.Open(nil, header, ciphertext, pn)
	if err != nil {
		return err
	}

	// From here on, address the peer with the source CID it chose, per
	// RFC 9000 section 7.2.
	if space != wire.SpaceApplication {
		c.dcid = append([]byte(nil), hdr.SrcCID...)
	}

	if !c.isClient && space == wire.SpaceHandshake {
		c.recvFirstHandshakePacket = true
		c.maybeDropInitial()
	}

	return c.dispatchPacket(space, pn, plaintext, len(packet), hdr.DestCID)
}

// parseShortHeaderPacket decrypts and dispatches one 1-RTT packet,
// returning any error dispatchPacket's frame handlers raised (mirroring
// decryptAndDispatchLong's shape) so the caller can close the connection
// on a protocol violation instead of discarding it.
func (c *Connection) parseShortHeaderPacket(packet []byte) error {
	dcidLen := c.localCIDLen
	hdr, err := wire.ParseShortHeaderPrefix(packet, dcidLen)
	if err != nil {
		return nil
	}
	keys := c.recvKeysFor(wire.SpaceApplication)
	if keys == nil {
		if c.remoteCIDs.MatchStatelessReset(packet) {
			c.closer.OnPeerClose(qerr.Transport(qerr.NoError, "stateless reset"), c.now(), c.ptoDuration())
		}
		return nil
	}
	pnOffset := hdr.HeaderLen
	pnLen, err := removeHeaderProtection(keys, packet, pnOffset, false)
	if err != nil {
		return nil
	}
	truncated, n, err := readTruncatedPN(packet[pnOffset:], pnLen)
	if err != nil {
		return nil
	}
	header := packet[:pnOffset+n]
	ciphertext := packet[pnOffset+n:]

	sp := c.space(wire.SpaceApplication)
	pn := wire.DecodePacketNumber(sp.pn.LargestReceived(), truncated, pnLen)
	if sp.pn.IsDuplicate(pn) {
		return nil
	}

	keyPhase := wire.ShortHeaderKeyPhase(packet[0])
	current, epoch, previous := c.oneRTT.Recv()
	useKeys := current
	if keyPhase != (epoch%2 == 1) {
		if !c.oneRTT.CanInitiateUpdate() {
			// Rate-limited: treat as if decryption failed under next
			// keys too, since the peer hasn't earned a new update yet.
			if previous == nil {
				return nil
			}
		}
		useKeys = c.oneRTT.RecvNext()
	}

	plaintext, err := useKeys.Open(nil, header, ciphertext, pn)
	if err != nil {
		if c.remoteCIDs.MatchStatelessReset(packet) {
			c.closer.OnPeerClose(qerr.Transport(qerr.NoError, "stateless reset"), c.now(), c.ptoDuration())
		}
		return nil
	}
	if useKeys != current {
		if err := c.oneRTT.Promote(c.isClient); err == nil {
			c.log.Debug("promoted to next key-update epoch")
		}
	}

	return c.dispatchPacket(wire.SpaceApplication, pn, plaintext, len(packet), hdr.DestCID)
}

// readTruncatedPN reads the pnLen-byte big-endian truncated packet
// number and returns the number of bytes consumed.
func readTruncatedPN(buf []byte, pnLen int) (uint64, int, error) {
	if len(buf) < pnLen {
		return 0, 0, qerr.Transport(qerr.ProtocolViolation, "packet truncated in packet-number field")
	}
	var v uint64
	for i := 0; i < pnLen; i++ {
		v = v<<8 | uint64(buf[i])
	}
	return v, pnLen, nil
}

// dispatchPacket applies every frame in a decrypted packet's payload, in
// wire order, and records the packet as received for ACK generation.
func (c *Connection) dispatchPacket(space wire.Space, pn int64, payload []byte, wireLen int, destCID []byte) error {
	sp := c.space(space)
	ackEliciting := false
	var destCIDSeq int64
	var hasDestCIDSeq bool
	if seq, ok := c.localCIDs.SequenceFor(destCID); ok {
		destCIDSeq, hasDestCIDSeq = int64(seq), true
	}

	err := wire.ParseFrames(payload, space, c.ackDelayExponent(), func(f wire.Frame) error {
		if !ackEliciting && f.Type() != wire.FrameAck && f.Type() != wire.FrameAckECN && f.Type() != wire.FramePadding {
			ackEliciting = true
		}
		if err := wire.CheckAdmissible(f.Type(), space); err != nil {
			return err
		}
		return c.handleFrame(frameContext{Space: space, PacketNumber: pn, DestCIDSeq: destCIDSeq, HasDestCIDSeq: hasDestCIDSeq}, f)
	})
	if err != nil {
		return err
	}

	sp.pn.OnReceived(pn, ackEliciting, c.now())
	if space == wire.SpaceApplication && ackEliciting && c.oneRTT != nil {
		c.oneRTT.NoteAckEliciting()
	}
	c.stats.bytesReceived += uint64(wireLen)
	return nil
}

func (c *Connection) ackDelayExponent() uint8 {
	if c.peerParamsSet {
		return uint8(c.peerParams.AckDelayExponent)
	}
	return uint8(c.localParams.AckDelayExponent)
}

// fail closes the connection with the first locally-detected error, per
// the propagation rule: a frame handler's error becomes the closer's
// terminal error.
func (c *Connection) fail(err error) {
	c.closer.Close(err, c.now(), c.ptoDuration())
}

func (c *Connection) handleRetry(packet []byte) {
	if !c.isClient || c.everSentInitial {
		// A Retry is only meaningful in reply to a client's first
		// Initial; ignore anything arriving after that point.
		return
	}
	rp, err := wire.ParseRetry(packet)
	if err != nil {
		return
	}
	pseudoHeader := packet[:len(packet)-16]
	if !qcrypto.VerifyRetry(c.dcid, pseudoHeader, rp.IntegrityTag) {
		c.log.Debug("dropping Retry with invalid integrity tag")
		return
	}
	newKeys, err := qcrypto.DeriveInitialKeyPair(rp.SrcCID)
	if err != nil {
		c.fail(qerr.Internal("re-deriving initial keys after retry", err))
		return
	}
	c.initialKeys = newKeys
	c.dcid = rp.SrcCID
	c.peerToken = rp.Token
	c.spaces[wire.SpaceInitial] = newPacketSpace(wire.SpaceInitial)
	c.retrySourceCID = rp.SrcCID
}

// maybeDropInitial applies the Initial key-discard rule of RFC 9001
// section 4.9: once Handshake keys are installed in both directions and
// the first Handshake packet has been sent or received.
func (c *Connection) maybeDropInitial() {
	if c.initialDropped || c.handshakeKeys == nil {
		return
	}
	sent := c.sentFirstHandshakePacket
	recv := c.recvFirstHandshakePacket
	if (c.isClient && sent) || (!c.isClient && recv) {
		c.spaces[wire.SpaceInitial].discarded = true
		c.initialKeys = nil
		c.initialDropped = true
	}
}

// maybeDropHandshake applies the Handshake key-discard rule: dropped
// once the handshake is confirmed.
func (c *Connection) maybeDropHandshake() {
	if c.handshakeDropped || !c.handshakeConfirmed {
		return
	}
	c.spaces[wire.SpaceHandshake].discarded = true
	c.handshakeKeys = nil
	c.handshakeDropped = true
}

// EarliestDeadline reports when the driver must next be invoked absent
// further I/O: the earlier of any loss-detection/PTO timer, an
// outstanding path-challenge deadline, the idle timeout, or the
// close-timeout.
func (c *Connection) EarliestDeadline() time.Time {
	var deadline time.Time
	consider := func(t time.Time) {
		if t.IsZero() {
			return
		}
		if deadline.IsZero() || t.Before(deadline) {
			deadline = t
		}
	}

	now := c.now()
	for _, s := range c.spaces {
		if s.discarded {
			continue
		}
		lossDelay := c.rtt.LossDelay(c.rtt.Smoothed)
		loss := recovery.DetectLosses(s.pn, lossDelay, now)
		if !loss.LossTime.IsZero() {
			consider(loss.LossTime.Add(lossDelay))
		} else if !s.lastAckElicitingSent.IsZero() && s.pn.HasUnackedAckEliciting() {
			consider(s.pto.Deadline(s.lastAckElicitingSent, c.ptoDuration()))
		}
	}
	if d, ok := c.closer.Deadline(); ok {
		consider(d)
	}
	if c.maxIdleTimeout > 0 {
		consider(c.lastActivity.Add(c.maxIdleTimeout))
	}
	for _, p := range c.paths {
		if ch, has := p.PendingChallenge(); has {
			_ = ch
			consider(c.lastActivity.Add(3 * c.ptoDuration()))
		}
	}
	return deadline
}

// MetricsSnapshot reports the connection's current point-in-time
// statistics for export via pkg/metrics.
func (c *Connection) MetricsSnapshot() metrics.Snapshot {
	bidi, uni := 0, 0
	for id, e := range c.streams.Streams() {
		if e.Send == nil && e.Recv == nil {
			continue
		}
		if id.Bidi() {
			bidi++
		} else {
			uni++
		}
	}
	return metrics.Snapshot{
		SmoothedRTTSeconds: c.rtt.Smoothed.Seconds(),
		MinRTTSeconds:      c.rtt.Min.Seconds(),
		CongestionWindow:   float64(c.cc.Window()),
		BytesInFlight:      float64(c.cc.BytesInFlight()),
		PTOCount:           float64(c.space(wire.SpaceApplication).pto.Count()),
		StreamsOpenBidi:    float64(bidi),
		StreamsOpenUni:     float64(uni),
		BytesSent:          float64(c.stats.bytesSent),
		BytesReceived:      float64(c.stats.bytesReceived),
		PacketsLost:        float64(c.stats.packetsLost),
	}
}
