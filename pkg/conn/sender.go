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
	"github.com/quicwire/qtp/pkg/cid"
	"github.com/quicwire/qtp/pkg/closer"
	"github.com/quicwire/qtp/pkg/pnspace"
	"github.com/quicwire/qtp/pkg/qcrypto"
	"github.com/quicwire/qtp/pkg/qerr"
	"github.com/quicwire/qtp/pkg/recovery"
	"github.com/quicwire/qtp/pkg/stream"
	"github.com/quicwire/qtp/pkg/wire"
)

// frameHeaderSlack is a conservative reservation for the bytes a single
// frame's own type/length fields occupy beyond its payload, used when
// deciding how much room remains for the next frame in a packet under
// construction. It overestimates for most frames, which only wastes a
// few bytes of an otherwise-unused packet tail.
const frameHeaderSlack = 24

// CreateUDPPayload produces the next datagram this connection wants
// transmitted, following the construction order of the driver's outbound
// path: closing/draining takes priority, then idle-timeout destruction,
// then loss-detection/PTO timers, then an outstanding path probe, then
// the regular coalesced Initial/0-RTT/Handshake/1-RTT datagram. keepAlive
// is false once the host must stop calling (the connection is destroyed).
func (c *Connection) CreateUDPPayload(buf []byte) (out []byte, pathID string, keepAlive bool) {
	now := c.now()
	pathID = c.activePathID

	if c.closer.State() == closer.StateDestroyed {
		return nil, pathID, false
	}

	if !c.closer.HasError() {
		// Nothing ever drives the TLS engine forward on the send side
		// otherwise: a client's first CreateUDPPayload call happens
		// before any datagram has arrived to trigger progress() from
		// ParseUDPPayload, so without this the handshake could never
		// start. Idempotent once TLS has nothing left to emit.
		if err := c.progress(); err != nil {
			c.fail(err)
		}
	}

	if c.closer.HasError() {
		if c.closer.Expired(now) {
			c.closer.Destroy()
			return nil, pathID, false
		}
		if c.closer.State() == closer.StateClosing && c.closer.ShouldEmit(now) {
			if out := c.buildCloseDatagram(buf[:0]); len(out) > 0 {
				c.onDatagramSent(out)
				return out, pathID, true
			}
		}
		return nil, pathID, true
	}

	if c.maxIdleTimeout > 0 && !now.Before(c.lastActivity.Add(c.maxIdleTimeout)) {
		// RFC 9000 section 10.1: idle timeout is a silent close, no
		// CONNECTION_CLOSE is emitted.
		c.closer.Destroy()
		return nil, pathID, false
	}

	c.runLossDetection(now)

	if out := c.buildPathProbeDatagram(buf[:0], now); len(out) > 0 {
		c.onDatagramSent(out)
		return out, pathID, true
	}

	if out := c.buildCoalescedDatagram(buf[:0], now); len(out) > 0 {
		c.onDatagramSent(out)
		return out, pathID, true
	}

	return nil, pathID, true
}

func (c *Connection) onDatagramSent(out []byte) {
	c.path().OnBytesSent(len(out))
	c.stats.bytesSent += uint64(len(out))
}

// runLossDetection applies RFC 9002's timer-driven side of loss
// detection: for every active space, declare anything past its loss
// delay lost, and fire PTO (arming a probe) if no earlier loss timer is
// pending and the deadline has passed.
func (c *Connection) runLossDetection(now time.Time) {
	threshold := recovery.PersistentCongestionDuration(c.rtt, granularity)
	persistent := false
	for id, sp := range c.spaces {
		if sp.discarded {
			continue
		}
		lossDelay := c.rtt.LossDelay(c.rtt.Smoothed)
		loss := recovery.DetectLosses(sp.pn, lossDelay, now)
		var lostAckEliciting []*pnspace.SentRecord
		for _, rec := range loss.Lost {
			c.resolveWaiters(id, rec.PacketNumber, false)
			if rec.InFlight {
				c.cc.OnPacketLost(rec.Size, rec.SentTime, now)
			}
			if rec.AckEliciting {
				lostAckEliciting = append(lostAckEliciting, rec)
			}
			sp.pn.Forget(rec.PacketNumber)
			c.stats.packetsLost++
		}
		if spacePersistentCongestion(sp, lostAckEliciting, threshold) {
			persistent = true
		}
		if !loss.LossTime.IsZero() {
			continue
		}
		if sp.lastAckElicitingSent.IsZero() || !sp.pn.HasUnackedAckEliciting() && sp.probeNeeded == 0 {
			// Fall through: PTO only arms once something ack-eliciting
			// has actually been sent in this space.
		}
		if sp.lastAckElicitingSent.IsZero() {
			continue
		}
		deadline := sp.pto.Deadline(sp.lastAckElicitingSent, c.ptoDuration())
		if !now.Before(deadline) {
			sp.pto.OnFire()
			sp.probeNeeded = recovery.MaxProbePackets
		}
	}
	if persistent {
		c.cc.OnPersistentCongestion()
	}
}

// spacePersistentCongestion reports whether the packets a single
// loss-detection pass just declared lost in one space span a period of at
// least threshold with no ack-eliciting packet sent in that span still
// outstanding, per RFC 9002 section 7.6: persistent congestion requires
// two or more lost ack-eliciting packets bookending the period, and
// nothing sent within that period may still be awaiting acknowledgment.
func spacePersistentCongestion(sp *packetSpace, lost []*pnspace.SentRecord, threshold time.Duration) bool {
	if len(lost) < 2 {
		return false
	}
	earliest, latest := lost[0].SentTime, lost[0].SentTime
	for _, rec := range lost[1:] {
		if rec.SentTime.Before(earliest) {
			earliest = rec.SentTime
		}
		if rec.SentTime.After(latest) {
			latest = rec.SentTime
		}
	}
	if latest.Sub(earliest) < threshold {
		return false
	}
	for _, rec := range sp.pn.SentRecords() {
		if rec.AckEliciting && !rec.SentTime.Before(earliest) && !rec.SentTime.After(latest) {
			return false
		}
	}
	return true
}

// buildCloseDatagram assembles a single CONNECTION_CLOSE datagram under
// whatever keys are currently installed, coalescing across spaces the
// same way a regular datagram would, per RFC 9000 section 10.2.2 (a
// closing endpoint SHOULD send in every space it has keys for, so the
// peer can observe the close regardless of which packets it has
// processed).
func (c *Connection) buildCloseDatagram(buf []byte) []byte {
	err := c.closer.Err()
	frame := closeFrameFor(err)

	order := []struct {
		space wire.Space
		typ   wire.LongPacketType
	}{
		{wire.SpaceInitial, wire.LongTypeInitial},
		{wire.SpaceHandshake, wire.LongTypeHandshake},
	}
	for _, o := range order {
		sp := c.space(o.space)
		if sp.discarded {
			continue
		}
		keys := c.sendKeysFor(o.space)
		if keys == nil {
			continue
		}
		payload := wire.AppendConnectionClose(nil, frame)
		pkt, ok := c.sealLongPacket(o.typ, o.space, keys, payload, 0)
		if ok {
			buf = append(buf, pkt...)
		}
	}
	if c.oneRTT != nil {
		payload := wire.AppendConnectionClose(nil, frame)
		pkt, ok := c.sealShortPacket(c.oneRTT.Send(), payload, 0)
		if ok {
			buf = append(buf, pkt...)
		}
	}
	return buf
}

// closeFrameFor converts the closer's recorded error into the
// CONNECTION_CLOSE frame to put on the wire. A library-internal error is
// never exposed; it closes with INTERNAL_ERROR instead.
func closeFrameFor(err error) wire.ConnectionCloseFrame {
	if qe, ok := err.(*qerr.Error); ok {
		switch qe.Kind {
		case qerr.KindTransport:
			return wire.ConnectionCloseFrame{Transport: true, ErrorCode: uint64(qe.TransportCode), FrameType: qe.FrameType, HasFrameType: qe.HasFrameType, Reason: qe.Reason}
		case qerr.KindApplication:
			return wire.ConnectionCloseFrame{ErrorCode: qe.AppCode, Reason: qe.Reason}
		}
	}
	return wire.ConnectionCloseFrame{Transport: true, ErrorCode: uint64(qerr.InternalError), Reason: "internal error"}
}

// buildPathProbeDatagram emits a padded datagram carrying only a
// PATH_CHALLENGE for a path this endpoint is actively validating (e.g.
// after a migration request), per RFC 9000 section 8.2. It never
// coalesces with other packet types, matching the construction order's
// step 4.
func (c *Connection) buildPathProbeDatagram(buf []byte, now time.Time) []byte {
	if c.oneRTT == nil {
		return nil
	}
	for id, p := range c.paths {
		challenge, has := p.PendingChallenge()
		if !has || !p.ChallengeDue(now) {
			continue
		}
		payload := wire.AppendPathChallenge(nil, wire.PathChallengeFrame{Data: challenge})
		pkt, ok := c.sealShortPacket(c.oneRTT.Send(), payload, minInitialSize)
		if !ok {
			continue
		}
		p.OnChallengeSent(now, c.ptoDuration())
		c.activePathID = id
		return append(buf, pkt...)
	}
	return nil
}

// sendKeysFor returns the keys this endpoint currently sends with in the
// given space, or nil if none are installed or the space has been
// discarded.
func (c *Connection) sendKeysFor(space wire.Space) *qcrypto.DirectionalKeys {
	if c.spaces[space].discarded {
		return nil
	}
	switch space {
	case wire.SpaceInitial:
		if c.initialKeys == nil {
			return nil
		}
		if c.isClient {
			return c.initialKeys.Client
		}
		return c.initialKeys.Server
	case wire.SpaceHandshake:
		if c.handshakeKeys == nil {
			return nil
		}
		return c.handshakeKeys.send(c.isClient)
	default:
		return nil
	}
}

// buildCoalescedDatagram assembles Initial, 0-RTT, Handshake, then 1-RTT
// sub-packets into a single datagram up to maxDatagramSize, per the
// construction order of section 4.11 step 5.
func (c *Connection) buildCoalescedDatagram(buf []byte, now time.Time) []byte {
	budget := maxDatagramSize - len(buf)
	start := len(buf)
	sawInitial := false

	if keys := c.sendKeysFor(wire.SpaceInitial); keys != nil {
		sp := c.space(wire.SpaceInitial)
		if pkt, ackEliciting, ok := c.buildInitialLikePacket(wire.LongTypeInitial, wire.SpaceInitial, sp, keys, budget, now); ok {
			buf = append(buf, pkt...)
			budget -= len(pkt)
			sawInitial = true
			c.everSentInitial = c.everSentInitial || c.isClient
			_ = ackEliciting
		}
	}

	if keys := c.sendKeysFor(wire.SpaceHandshake); keys != nil {
		sp := c.space(wire.SpaceHandshake)
		if pkt, _, ok := c.buildInitialLikePacket(wire.LongTypeHandshake, wire.SpaceHandshake, sp, keys, budget, now); ok {
			buf = append(buf, pkt...)
			budget -= len(pkt)
			if c.isClient {
				c.sentFirstHandshakePacket = true
				c.maybeDropInitial()
			}
		}
	}

	if c.oneRTT != nil {
		sp := c.space(wire.SpaceApplication)
		if pkt, ok := c.build1RTTPacket(sp, budget, now); ok {
			buf = append(buf, pkt...)
			budget -= len(pkt)
		}
	}

	if len(buf) == start {
		return buf[:start]
	}

	// A client's datagram carrying an Initial packet must reach 1200
	// bytes total, per RFC 9000 section 14.1.
	if sawInitial && c.isClient && len(buf) < minInitialSize {
		pad := make([]byte, minInitialSize-len(buf))
		buf = append(buf, pad...)
	}
	return buf
}

// buildInitialLikePacket builds one Initial or Handshake sub-packet: ACK
// then CRYPTO, the only frame producers admissible at those levels.
func (c *Connection) buildInitialLikePacket(typ wire.LongPacketType, space wire.Space, sp *packetSpace, keys *qcrypto.DirectionalKeys, budget int, now time.Time) (pkt []byte, ackEliciting bool, ok bool) {
	if budget < 64 {
		return nil, false, false
	}
	var payload []byte
	var waiters []ackWaiter

	if ranges, delay, has := sp.pn.GenerateAckRanges(now); has {
		raw := uint64(delay.Microseconds())
		if f, err := wire.AppendAck(nil, ranges, raw, nil); err == nil {
			payload = append(payload, f...)
			sp.pn.MarkAcksSent()
		}
	}

	if off, data, has := sp.cryptoSend.Fragment(budget - len(payload) - frameHeaderSlack); has {
		payload = wire.AppendCrypto(payload, wire.CryptoFrame{Offset: off, Data: data})
		waiters = append(waiters, cryptoWaiter{space: sp, offset: off, data: data})
		ackEliciting = true
	}

	if !ackEliciting && sp.probeNeeded > 0 {
		payload = append(payload, byte(wire.FramePing))
		ackEliciting = true
	}

	if len(payload) == 0 {
		return nil, false, false
	}

	padTo := 0
	if typ == wire.LongTypeInitial && c.isClient {
		padTo = minInitialSize - len(payload) // best-effort; final pad applied at datagram level too
		if padTo < 0 {
			padTo = 0
		}
	}

	out, sealed := c.sealLongPacket(typ, space, keys, payload, padTo)
	if !sealed {
		return nil, false, false
	}
	c.recordSent(sp, space, len(out), ackEliciting, waiters, now)
	return out, ackEliciting, true
}

// build1RTTPacket builds a single short-header packet: ACK, then CRYPTO
// (for post-handshake CRYPTO, e.g. NewSessionTicket / key updates), then
// connection-ID maintenance, path responses, DATAGRAM frames, and
// finally stream data, per section 4.11 step 5.
func (c *Connection) build1RTTPacket(sp *packetSpace, budget int, now time.Time) ([]byte, bool) {
	if budget < 64 {
		return nil, false
	}
	var payload []byte
	var waiters []ackWaiter
	ackEliciting := false

	if ranges, delay, has := sp.pn.GenerateAckRanges(now); has {
		raw := uint64(delay.Microseconds())
		if f, err := wire.AppendAck(nil, ranges, raw, nil); err == nil {
			payload = append(payload, f...)
			sp.pn.MarkAcksSent()
		}
	}

	if off, data, has := sp.cryptoSend.Fragment(remaining(budget, len(payload))); has {
		payload = wire.AppendCrypto(payload, wire.CryptoFrame{Offset: off, Data: data})
		waiters = append(waiters, cryptoWaiter{space: sp, offset: off, data: data})
		ackEliciting = true
	}

	if c.handshakeDoneOwed {
		payload = append(payload, byte(wire.FrameHandshakeDone))
		waiters = append(waiters, flagWaiter{flag: &c.handshakeDoneOwed})
		ackEliciting = true
	}

	payload, ack1 := c.appendCIDMaintenance(payload, &waiters)
	ackEliciting = ackEliciting || ack1

	for len(c.pendingPathResponses) > 0 && remaining(budget, len(payload)) > 9 {
		resp := c.pendingPathResponses[0]
		c.pendingPathResponses = c.pendingPathResponses[1:]
		payload = wire.AppendPathResponse(payload, wire.PathResponseFrame{Data: resp})
		ackEliciting = true
	}

	for len(c.datagramsOut) > 0 {
		d := c.datagramsOut[0]
		if remaining(budget, len(payload)) < len(d)+frameHeaderSlack {
			break
		}
		payload = wire.AppendDatagram(payload, wire.DatagramFrame{Data: d, HasLen: true})
		c.datagramsOut = c.datagramsOut[1:]
		ackEliciting = true
	}

	payload, streamWaiters, streamAckEliciting := c.appendStreamFrames(payload, remaining(budget, len(payload)))
	waiters = append(waiters, streamWaiters...)
	ackEliciting = ackEliciting || streamAckEliciting

	if !ackEliciting && sp.probeNeeded > 0 {
		payload = append(payload, byte(wire.FramePing))
		ackEliciting = true
	}

	if len(payload) == 0 {
		return nil, false
	}

	out, ok := c.sealShortPacket(c.oneRTT.Send(), payload, 0)
	if !ok {
		return nil, false
	}
	c.recordSent(sp, wire.SpaceApplication, len(out), ackEliciting, waiters, now)
	return out, true
}

func remaining(budget, used int) int {
	r := budget - used - frameHeaderSlack
	if r < 0 {
		return 0
	}
	return r
}

// appendCIDMaintenance frames any owed NEW_CONNECTION_ID and
// RETIRE_CONNECTION_ID, attaching waiters that clear the owed bookkeeping
// once acknowledged.
func (c *Connection) appendCIDMaintenance(payload []byte, waiters *[]ackWaiter) ([]byte, bool) {
	ackEliciting := false
	for seq := range c.cidIssueOwed {
		entry, ok := c.localCIDs.Get(seq)
		if !ok {
			delete(c.cidIssueOwed, seq)
			continue
		}
		payload = wire.AppendNewConnectionID(payload, wire.NewConnectionIDFrame{
			Sequence:      entry.Sequence,
			RetirePriorTo: c.peerCIDRetirePrior,
			ConnectionID:  entry.ID,
			ResetToken:    entry.ResetToken,
		})
		*waiters = append(*waiters, cidIssueWaiter{c: c, seq: seq})
		ackEliciting = true
	}
	for seq := range c.cidRetireOwed {
		payload = wire.AppendRetireConnectionID(payload, wire.RetireConnectionIDFrame{Sequence: seq})
		*waiters = append(*waiters, cidRetireWaiter{c: c, seq: seq})
		ackEliciting = true
		c.remoteCIDs.Retire(seq)
	}
	return payload, ackEliciting
}

// appendStreamFrames drains connection- and stream-level send limits,
// framing STREAM data (and RESET_STREAM / STOP_SENDING / blocked
// notifications) for whatever streams have pending work, until the
// packet's remaining budget or the congestion/pacer budget is exhausted.
func (c *Connection) appendStreamFrames(payload []byte, budget int) ([]byte, []ackWaiter, bool) {
	var waiters []ackWaiter
	ackEliciting := false

	for id, e := range c.streams.Streams() {
		if e.Send == nil {
			continue
		}
		if e.Send.State == stream.SendResetSent || e.Send.State == stream.SendResetRecvd {
			if !c.streamResetOwed[id] {
				continue
			}
			if e.Send.State == stream.SendResetRecvd {
				delete(c.streamResetOwed, id)
				continue
			}
			payload = wire.AppendResetStream(payload, wire.ResetStreamFrame{
				ID:        uint64(id),
				ErrorCode: c.streamResetCode[id],
				FinalSize: c.streamResetFinalSize[id],
			})
			waiters = append(waiters, streamResetWaiter{send: e.Send})
			ackEliciting = true
			continue
		}

		remain := remaining(budget, len(payload))
		if remain <= 0 {
			break
		}
		available := e.Send.Limit.Available()
		connAvailable := c.streams.ConnSendLimit().Available()
		maxLen := remain
		if available > 0 && uint64(maxLen) > available {
			maxLen = int(available)
		}
		if connAvailable == 0 {
			maxLen = 0
		} else if uint64(maxLen) > connAvailable {
			maxLen = int(connAvailable)
		}
		if maxLen <= 0 {
			continue
		}
		frag, ok := e.Send.Fragment(maxLen)
		if !ok {
			continue
		}
		c.streams.ConnSendLimit().Use(uint64(len(frag.Data)))
		payload = wire.AppendStream(payload, wire.StreamFrame{ID: uint64(id), Offset: frag.Offset, Data: frag.Data, Fin: frag.Fin})
		waiters = append(waiters, streamSendWaiter{send: e.Send, frag: frag})
		ackEliciting = true
		budget = remaining(budget, len(payload)) + len(payload) // re-sync for next iteration's accounting
	}

	for id := range c.stopSendingLocalOwed {
		if remaining(budget, len(payload)) < 8 {
			break
		}
		payload = wire.AppendStopSending(payload, wire.StopSendingFrame{ID: uint64(id), ErrorCode: c.stopSendingLocalCode[id]})
		delete(c.stopSendingLocalOwed, id)
		ackEliciting = true
	}

	return payload, waiters, ackEliciting
}

// recordSent stores the sent-packet record, registers its waiters, feeds
// the congestion controller, and updates the space's PTO bookkeeping.
func (c *Connection) recordSent(sp *packetSpace, space wire.Space, size int, ackEliciting bool, waiters []ackWaiter, now time.Time) {
	pn := sp.pn.AllocatePN()
	inFlight := ackEliciting
	sp.pn.OnSent(pnspace.SentRecord{
		PacketNumber: pn,
		SentTime:     now,
		Size:         size,
		AckEliciting: ackEliciting,
		InFlight:     inFlight,
	})
	for _, w := range waiters {
		c.recordWaiter(space, pn, w)
	}
	if ackEliciting {
		sp.lastAckElicitingSent = now
		if sp.probeNeeded > 0 {
			sp.probeNeeded--
		}
	}
	if inFlight {
		c.cc.OnPacketSent(size)
		c.pacer.OnSent(size)
	}
}

// sealLongPacket encodes a long-header packet's cleartext prefix, applies
// PADDING up to padTo total payload bytes, encrypts, and applies header
// protection.
func (c *Connection) sealLongPacket(typ wire.LongPacketType, space wire.Space, keys *qcrypto.DirectionalKeys, payload []byte, padTo int) ([]byte, bool) {
	sp := c.space(space)
	pnLen := wire.EncodePacketNumberLen(sp.pn.PeekNext(), sp.pn.LargestAcked())

	var token []byte
	if space == wire.SpaceInitial && c.isClient {
		token = c.peerToken
	}

	buf, lengthOff := wire.AppendLongHeaderPrefix(nil, typ, Version, c.dcid, c.scid, token, pnLen)
	pnOffset := len(buf)
	buf = wire.AppendTruncatedPacketNumber(buf, sp.pn.PeekNext(), pnLen)

	// The header-protection sample starts 4 bytes past the packet-number
	// offset, so packet number plus payload must span at least 4 bytes.
	if padTo < 4-pnLen {
		padTo = 4 - pnLen
	}
	for len(payload) < padTo {
		payload = append(payload, 0)
	}
	wire.PatchLength(buf, lengthOff, pnLen+len(payload)+16)

	sealed := keys.Seal(nil, buf, payload, sp.pn.PeekNext())
	buf = append(buf, sealed...)

	if err := applyOutgoingHeaderProtection(keys, buf, pnOffset, pnLen, true); err != nil {
		return nil, false
	}
	return buf, true
}

// sealShortPacket encodes a 1-RTT packet using the connection's current
// local DCID-for-peer (the remote CID this endpoint currently addresses
// the peer with, tracked as c.dcid) and key-phase bit.
func (c *Connection) sealShortPacket(keys *qcrypto.DirectionalKeys, payload []byte, padTo int) ([]byte, bool) {
	sp := c.space(wire.SpaceApplication)
	pnLen := wire.EncodePacketNumberLen(sp.pn.PeekNext(), sp.pn.LargestAcked())

	_, epoch, _ := c.oneRTT.Recv()
	keyPhase := epoch%2 == 1

	buf := wire.AppendShortHeaderPrefix(nil, c.dcid, pnLen, keyPhase, false)
	pnOffset := len(buf)
	buf = wire.AppendTruncatedPacketNumber(buf, sp.pn.PeekNext(), pnLen)

	if padTo < 4-pnLen {
		padTo = 4 - pnLen
	}
	for len(payload) < padTo {
		payload = append(payload, 0)
	}

	sealed := keys.Seal(nil, buf, payload, sp.pn.PeekNext())
	buf = append(buf, sealed...)

	if err := applyOutgoingHeaderProtection(keys, buf, pnOffset, pnLen, false); err != nil {
		return nil, false
	}
	return buf, true
}

// applyOutgoingHeaderProtection samples the just-sealed packet's
// ciphertext and masks the first byte and packet-number field in place,
// the send-side mirror of removeHeaderProtection.
func applyOutgoingHeaderProtection(keys *qcrypto.DirectionalKeys, buf []byte, pnOffset, pnLen int, longHeader bool) error {
	sampleOffset := pnOffset + 4
	if sampleOffset+16 > len(buf) {
		return errHeaderProtectionSampleTooShort
	}
	mask, err := keys.HeaderProtectionMask(buf[sampleOffset : sampleOffset+16])
	if err != nil {
		return err
	}
	qcrypto.ApplyHeaderProtection(buf, 0, pnOffset, pnLen, mask, longHeader)
	return nil
}

var errHeaderProtectionSampleTooShort = &shortSampleError{}

type shortSampleError struct{}

func (*shortSampleError) Error() string { return "packet too short to sample for header protection" }

// IssueNewConnectionID generates and queues a fresh locally-issued
// connection ID for the peer, respecting the peer's
// active_connection_id_limit.
func (c *Connection) IssueNewConnectionID() error {
	if uint64(c.localCIDs.Active()) >= c.localCIDs.ActiveLimit() {
		return nil
	}
	id := xrand.Bytes(c.rand, c.localCIDLen, xrand.UsageConnectionID)
	var token [16]byte
	copy(token[:], xrand.Bytes(c.rand, 16, xrand.UsageStatelessReset))
	seq := c.nextLocalSeq
	c.nextLocalSeq++
	c.localCIDs.Insert(cid.Entry{Sequence: seq, ID: id, ResetToken: token, HasToken: true})
	c.cidIssueOwed[seq] = true
	return nil
}
