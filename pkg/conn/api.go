/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

package conn

import (
	"github.com/quicwire/qtp/pkg/closer"
	"github.com/quicwire/qtp/pkg/qerr"
	"github.com/quicwire/qtp/pkg/stream"
)

// closedErr reports whether the connection has left the active state and,
// if so, the error every host-facing call after that point must return.
func (c *Connection) closedErr() error {
	switch c.closer.State() {
	case closer.StateClosing, closer.StateDraining, closer.StateDestroyed:
		return qerr.ClosedError
	default:
		return nil
	}
}

// OpenStream allocates a new locally-initiated stream of the requested
// class, routed to the stream engine's issuer for that (initiator,
// direction) pair.
func (c *Connection) OpenStream(bidi bool) (stream.ID, error) {
	if err := c.closedErr(); err != nil {
		return 0, err
	}
	e, err := c.streams.OpenLocal(bidi)
	if err != nil {
		return 0, err
	}
	return e.Send.ID, nil
}

// queueAccepted appends newly remotely-opened streams to the per-class
// accept queue the application drains with AcceptStream, preserving the
// higher_open-then-recv_frame order the manager already returns them in.
func (c *Connection) queueAccepted(opened []stream.OpenedStream) {
	for _, o := range opened {
		if o.ID.Bidi() {
			c.acceptQueueBidi = append(c.acceptQueueBidi, o.ID)
		} else {
			c.acceptQueueUni = append(c.acceptQueueUni, o.ID)
		}
	}
}

// AcceptStream returns the next remotely-initiated stream of the
// requested class the application has not yet observed, if any.
func (c *Connection) AcceptStream(bidi bool) (stream.ID, bool) {
	queue := &c.acceptQueueUni
	if bidi {
		queue = &c.acceptQueueBidi
	}
	if len(*queue) == 0 {
		return 0, false
	}
	id := (*queue)[0]
	*queue = (*queue)[1:]
	return id, true
}

// WriteStream reserves n bytes of stream-level send flow control and
// buffers data for later framing; connection-level credit is charged
// only when the bytes are framed. It returns a short count (never an
// error) if the per-stream limit is reached before all of data fits, per
// the backpressure rule in section 7: a flow-control stall is not itself
// a failure.
func (c *Connection) WriteStream(id stream.ID, data []byte, fin bool) (int, error) {
	if err := c.closedErr(); err != nil {
		return 0, err
	}
	e, ok := c.streams.Get(id)
	if !ok || e.Send == nil {
		return 0, qerr.Transport(qerr.StreamStateError, "write on a stream with no local send half")
	}
	if e.Send.State.Terminal() || e.Send.State == stream.SendResetSent {
		return 0, &qerr.StateError{Reason: "write on a reset or fully-acknowledged stream"}
	}

	// Connection-level flow control is reserved lazily, only once bytes
	// are actually framed (appendStreamFrames), since buffering here
	// doesn't yet commit wire bytes. Only the per-stream limit is
	// reserved eagerly, to bound how much any one stream can queue ahead
	// of the connection-wide share it's been given.
	n := len(data)
	streamAvail := e.Send.Limit.Available()
	if uint64(n) > streamAvail {
		n = int(streamAvail)
		c.log.WithField("stream", id).Debug("write blocked on stream flow control")
	}
	if n == 0 {
		if fin && len(data) == 0 {
			e.Send.Finish()
		}
		return 0, nil
	}
	if !e.Send.Limit.Use(uint64(n)) {
		return 0, nil
	}
	if err := e.Send.Write(data[:n]); err != nil {
		return 0, err
	}
	if n == len(data) && fin {
		e.Send.Finish()
	}
	return n, nil
}

// ReadStream drains whatever contiguous application bytes are available
// on the stream's receive half. The returned done flag is true once the
// stream's final size has been reached and every byte through it has
// been delivered; the caller must not call ReadStream again afterward.
func (c *Connection) ReadStream(id stream.ID) (data []byte, done bool, err error) {
	if err := c.closedErr(); err != nil {
		return nil, false, err
	}
	e, ok := c.streams.Get(id)
	if !ok || e.Recv == nil {
		return nil, false, qerr.Transport(qerr.StreamStateError, "read on a stream with no local recv half")
	}
	data = e.Recv.Read()
	if e.Recv.State == stream.RecvDataRecvd {
		if err := e.Recv.ReadAll(); err == nil {
			return data, true, nil
		}
	}
	return data, false, nil
}

// ResetStream abandons the stream's send half with the given
// application-supplied error code, queuing a RESET_STREAM frame.
func (c *Connection) ResetStream(id stream.ID, code uint64) error {
	if err := c.closedErr(); err != nil {
		return err
	}
	e, ok := c.streams.Get(id)
	if !ok || e.Send == nil {
		return qerr.Transport(qerr.StreamStateError, "reset on a stream with no local send half")
	}
	finalSize := e.Send.SentOffset()
	if err := e.Send.Reset(); err != nil {
		return err
	}
	c.streamResetOwed[id] = true
	c.streamResetCode[id] = code
	c.streamResetFinalSize[id] = finalSize
	return nil
}

// StopSending requests that the peer abandon the stream's send half,
// queuing a STOP_SENDING frame. It does not itself affect the local
// receive half's state; the peer is expected to reply with RESET_STREAM.
func (c *Connection) StopSending(id stream.ID, code uint64) error {
	if err := c.closedErr(); err != nil {
		return err
	}
	e, ok := c.streams.Get(id)
	if !ok || e.Recv == nil {
		return qerr.Transport(qerr.StreamStateError, "stop_sending on a stream with no local recv half")
	}
	c.stopSendingLocalOwed[id] = true
	c.stopSendingLocalCode[id] = code
	return nil
}

// SendDatagram queues an unreliable RFC 9221 DATAGRAM for the next
// outgoing 1-RTT packet; it is neither retransmitted nor reordered if
// lost.
func (c *Connection) SendDatagram(data []byte) error {
	if err := c.closedErr(); err != nil {
		return err
	}
	c.datagramsOut = append(c.datagramsOut, data)
	return nil
}

// ReceiveDatagram returns the oldest unread received DATAGRAM, if any.
func (c *Connection) ReceiveDatagram() ([]byte, bool) {
	if len(c.datagramsIn) == 0 {
		return nil, false
	}
	d := c.datagramsIn[0]
	c.datagramsIn = c.datagramsIn[1:]
	return d, true
}

// StopSendingReceived reports the error code the peer most recently sent
// in a STOP_SENDING frame for id, if any, clearing it once observed.
func (c *Connection) StopSendingReceived(id stream.ID) (uint64, bool) {
	code, ok := c.stopSendingRecv[id]
	if ok {
		delete(c.stopSendingRecv, id)
	}
	return code, ok
}
