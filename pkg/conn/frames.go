/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

package conn

import (
	"time"

	"github.com/quicwire/qtp/pkg/qerr"
	"github.com/quicwire/qtp/pkg/recovery"
	"github.com/quicwire/qtp/pkg/stream"
	"github.com/quicwire/qtp/pkg/wire"
)

// frameContext carries the per-packet facts handleFrame needs beyond the
// frame payload itself: which space and packet number the frame arrived
// in, and (for RETIRE_CONNECTION_ID) which of our connection IDs the
// packet used as its destination.
type frameContext struct {
	Space         wire.Space
	PacketNumber  int64
	DestCIDSeq    int64
	HasDestCIDSeq bool
}

// handleFrame applies one decoded inbound frame's effect to connection
// state. It is called from ParseUDPPayload once per frame, in wire order,
// after CheckAdmissible has already validated the frame belongs in ctx.Space.
func (c *Connection) handleFrame(ctx frameContext, f wire.Frame) error {
	switch fr := f.(type) {
	case *wire.AckFrame:
		return c.onAck(ctx.Space, fr)
	case *wire.StreamFrame:
		return c.onStream(fr)
	case *wire.ResetStreamFrame:
		return c.onResetStream(fr)
	case *wire.StopSendingFrame:
		c.stopSendingRecv[stream.ID(fr.ID)] = fr.ErrorCode
		return nil
	case *wire.CryptoFrame:
		c.space(ctx.Space).cryptoRecv.OnCryptoFrame(fr.Offset, fr.Data)
		return c.progress()
	case *wire.NewTokenFrame:
		if !c.isClient {
			return qerr.Transport(qerr.ProtocolViolation, "server received NEW_TOKEN")
		}
		c.peerToken = fr.Token
		c.saveSession()
		return nil
	case *wire.MaxDataFrame:
		c.streams.ConnSendLimit().SetLimit(fr.Maximum)
		return nil
	case *wire.MaxStreamDataFrame:
		if e, ok := c.streams.Get(stream.ID(fr.ID)); ok && e.Send != nil {
			e.Send.Limit.SetLimit(fr.Maximum)
		}
		return nil
	case *wire.MaxStreamsFrame:
		c.streams.SetPeerStreamLimit(fr.Bidi, fr.Maximum)
		return nil
	case *wire.DataBlockedFrame:
		c.log.WithField("limit", fr.Limit).Debug("peer is connection send-blocked")
		return nil
	case *wire.StreamDataBlockedFrame:
		c.log.WithFields(map[string]interface{}{"stream": fr.ID, "limit": fr.Limit}).Debug("peer is stream send-blocked")
		return nil
	case *wire.StreamsBlockedFrame:
		c.log.WithFields(map[string]interface{}{"bidi": fr.Bidi, "limit": fr.Limit}).Debug("peer is stream-creation-blocked")
		return nil
	case *wire.NewConnectionIDFrame:
		return c.onNewConnectionID(fr)
	case *wire.RetireConnectionIDFrame:
		return c.localCIDs.ObserveRetireConnectionID(fr.Sequence, uint64(ctx.DestCIDSeq), ctx.HasDestCIDSeq)
	case *wire.PathChallengeFrame:
		c.pendingPathResponses = append(c.pendingPathResponses, fr.Data)
		return nil
	case *wire.PathResponseFrame:
		c.path().OnPathResponse(fr.Data)
		return nil
	case *wire.ConnectionCloseFrame:
		c.closer.OnPeerClose(peerCloseError(fr), c.now(), c.ptoDuration())
		return nil
	case *wire.DatagramFrame:
		c.datagramsIn = append(c.datagramsIn, fr.Data)
		return nil
	default:
		switch f.Type() {
		case wire.FramePadding, wire.FramePing:
			return nil
		case wire.FrameHandshakeDone:
			if !c.isClient {
				return qerr.Transport(qerr.ProtocolViolation, "client sent HANDSHAKE_DONE")
			}
			c.handshakeConfirmed = true
			c.saveSession()
			return nil
		}
		return qerr.Internal("unhandled frame type", nil)
	}
}

// peerCloseError converts a received CONNECTION_CLOSE frame into the
// error closer.Closer records, distinguishing transport from application
// closes so ConnectionError reports it the same way a local Close would.
func peerCloseError(fr *wire.ConnectionCloseFrame) error {
	if fr.Transport {
		return qerr.FromPeerTransport(qerr.Code(fr.ErrorCode), fr.FrameType, fr.HasFrameType, fr.Reason)
	}
	return qerr.FromPeerApplication(fr.ErrorCode, fr.Reason)
}

// onAck applies a received ACK frame: resolves every newly-acknowledged
// packet's waiters, feeds congestion control and the RTT estimator, and
// runs loss detection over whatever remains in flight.
func (c *Connection) onAck(s wire.Space, fr *wire.AckFrame) error {
	sp := c.space(s)
	now := c.now()
	result := sp.pn.ConsumeAck(fr.Ranges, fr.Largest(), now)
	for _, rec := range result.Acked {
		c.resolveWaiters(s, rec.PacketNumber, true)
		if rec.InFlight {
			c.cc.OnPacketAcked(rec.Size, rec.SentTime)
		}
	}
	if result.HasRTTSample {
		c.rtt.Update(result.RTTSample, fr.AckDelay, c.maxAckDelay())
	}
	if result.AckedAckElicit && c.path().Validated() {
		sp.pto.OnAckElicitingAckReceived()
	}

	lossDelay := c.rtt.LossDelay(c.rtt.Smoothed)
	loss := recovery.DetectLosses(sp.pn, lossDelay, now)
	for _, rec := range loss.Lost {
		c.resolveWaiters(s, rec.PacketNumber, false)
		if rec.InFlight {
			c.cc.OnPacketLost(rec.Size, rec.SentTime, now)
		}
		sp.pn.Forget(rec.PacketNumber)
		c.stats.packetsLost++
	}
	return nil
}

func (c *Connection) maxAckDelay() time.Duration {
	if c.peerParamsSet {
		return c.peerParams.MaxAckDelay
	}
	return c.localParams.MaxAckDelay
}

// onStream applies a received STREAM frame, implicitly opening any
// intervening remotely-initiated streams and charging the
// connection-wide flow control limit for any newly-extended range.
func (c *Connection) onStream(fr *wire.StreamFrame) error {
	id := stream.ID(fr.ID)
	if id.ClientInitiated() != c.isClient {
		opened, err := c.streams.Accept(id)
		if err != nil {
			return err
		}
		c.queueAccepted(opened)
	}
	e, ok := c.streams.Get(id)
	if !ok || e.Recv == nil {
		return qerr.Transport(qerr.StreamStateError, "STREAM frame for a send-only local stream")
	}
	highest := fr.Offset + uint64(len(fr.Data))
	if prev := c.streamRecvHighest[id]; highest > prev {
		if !c.streams.ConnRecvLimit().Use(highest - prev) {
			return qerr.Transport(qerr.FlowControlError, "STREAM frame exceeds connection flow control limit")
		}
		c.streamRecvHighest[id] = highest
	}
	return e.Recv.OnStreamFrame(fr.Offset, fr.Data, fr.Fin)
}

// onResetStream applies a received RESET_STREAM frame, implicitly opening
// the stream if necessary and charging connection flow control the same
// way onStream does.
func (c *Connection) onResetStream(fr *wire.ResetStreamFrame) error {
	id := stream.ID(fr.ID)
	if id.ClientInitiated() != c.isClient {
		opened, err := c.streams.Accept(id)
		if err != nil {
			return err
		}
		c.queueAccepted(opened)
	}
	e, ok := c.streams.Get(id)
	if !ok || e.Recv == nil {
		return qerr.Transport(qerr.StreamStateError, "RESET_STREAM for a send-only local stream")
	}
	if prev := c.streamRecvHighest[id]; fr.FinalSize > prev {
		if !c.streams.ConnRecvLimit().Use(fr.FinalSize - prev) {
			return qerr.Transport(qerr.FlowControlError, "RESET_STREAM exceeds connection flow control limit")
		}
		c.streamRecvHighest[id] = fr.FinalSize
	}
	return e.Recv.OnResetStream(fr.FinalSize)
}

// onNewConnectionID applies a received NEW_CONNECTION_ID frame, queuing
// RETIRE_CONNECTION_ID for any sequence numbers the frame's
// retire_prior_to value obsoletes.
func (c *Connection) onNewConnectionID(fr *wire.NewConnectionIDFrame) error {
	toRetire, err := c.remoteCIDs.ObserveNewConnectionID(fr.Sequence, fr.RetirePriorTo, fr.ConnectionID, fr.ResetToken)
	if err != nil {
		return err
	}
	for _, seq := range toRetire {
		c.cidRetireOwed[seq] = true
	}
	return nil
}
