/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

package conn

import (
	"github.com/quicwire/qtp/pkg/stream"
	"github.com/quicwire/qtp/pkg/wire"
)

// ackWaiter is notified when the packet that carried its frame is
// acknowledged or declared lost. It is the driver's answer to the
// "sent-packet record tracks which frames it carried" requirement
// without growing pnspace.SentRecord itself: the driver keeps its own
// side table keyed by (space, packet number) and lets whichever producer
// owns the data (a stream, the CRYPTO queue, a control-frame flag)
// decide what acking or losing it means.
type ackWaiter interface {
	OnAcked()
	OnLost()
}

// recordWaiter attaches a waiter to the most recently sent packet in the
// given space, so it fires when that packet number is acked or lost.
func (c *Connection) recordWaiter(s wire.Space, pn int64, w ackWaiter) {
	m := c.sentWaiters[s]
	if m == nil {
		return
	}
	m[pn] = append(m[pn], w)
}

// resolveWaiters fires and discards every waiter recorded for pn in
// space, calling either OnAcked or OnLost depending on outcome.
func (c *Connection) resolveWaiters(s wire.Space, pn int64, acked bool) {
	m := c.sentWaiters[s]
	if m == nil {
		return
	}
	for _, w := range m[pn] {
		if acked {
			w.OnAcked()
		} else {
			w.OnLost()
		}
	}
	delete(m, pn)
}

// flagWaiter clears a bool once its packet is acked; it never reacts to
// loss, since the frames it covers are idempotent and monotonic (the
// value simply gets resent on the next build pass while the flag is
// still set).
type flagWaiter struct{ flag *bool }

func (w flagWaiter) OnAcked() { *w.flag = false }
func (w flagWaiter) OnLost()  {}

// cryptoWaiter relays ack/loss to one encryption level's CRYPTO send
// queue.
type cryptoWaiter struct {
	space  *packetSpace
	offset uint64
	data   []byte
}

func (w cryptoWaiter) OnAcked() { w.space.cryptoSend.OnAcked(w.offset) }
func (w cryptoWaiter) OnLost()  { w.space.cryptoSend.OnLost(w.offset, w.data) }

// streamSendWaiter relays ack/loss to one STREAM frame fragment.
type streamSendWaiter struct {
	send *stream.SendStream
	frag stream.PendingFragment
}

func (w streamSendWaiter) OnAcked() { w.send.OnAcked(w.frag.Offset) }
func (w streamSendWaiter) OnLost()  { w.send.OnLost(w.frag) }

// streamResetWaiter applies reset_acked once a RESET_STREAM frame is
// acknowledged; on loss it does nothing; the driver keeps re-framing
// RESET_STREAM while the stream is still in SendResetSent.
type streamResetWaiter struct{ send *stream.SendStream }

func (w streamResetWaiter) OnAcked() { _ = w.send.State.OnResetAcked() }
func (w streamResetWaiter) OnLost()  {}

// cidIssueWaiter clears the owed flag for one locally-issued connection
// ID sequence once its NEW_CONNECTION_ID is acknowledged.
type cidIssueWaiter struct {
	c   *Connection
	seq uint64
}

func (w cidIssueWaiter) OnAcked() { delete(w.c.cidIssueOwed, w.seq) }
func (w cidIssueWaiter) OnLost()  {}

// cidRetireWaiter clears the owed flag for one peer-issued connection ID
// sequence once its RETIRE_CONNECTION_ID is acknowledged.
type cidRetireWaiter struct {
	c   *Connection
	seq uint64
}

func (w cidRetireWaiter) OnAcked() { delete(w.c.cidRetireOwed, w.seq) }
func (w cidRetireWaiter) OnLost()  {}
