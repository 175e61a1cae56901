/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

package conn

import "github.com/quicwire/qtp/pkg/stream"

// cryptoSendQueue buffers outgoing CRYPTO frame bytes for one encryption
// level, with the same buffer/fragment/ack/loss shape as a stream
// send-half but without a state machine: a CRYPTO stream never closes.
type cryptoSendQueue struct {
	buffered   [][]byte
	sendOffset uint64
	inFlight   map[uint64][]byte
}

func newCryptoSendQueue() *cryptoSendQueue {
	return &cryptoSendQueue{inFlight: make(map[uint64][]byte)}
}

func (q *cryptoSendQueue) Write(data []byte) {
	if len(data) == 0 {
		return
	}
	q.buffered = append(q.buffered, data)
}

// Fragment splits off up to maxLen bytes for a CRYPTO frame, returning
// ok=false if nothing is queued.
func (q *cryptoSendQueue) Fragment(maxLen int) (offset uint64, data []byte, ok bool) {
	for len(data) < maxLen && len(q.buffered) > 0 {
		head := q.buffered[0]
		room := maxLen - len(data)
		if len(head) <= room {
			data = append(data, head...)
			q.buffered = q.buffered[1:]
			continue
		}
		data = append(data, head[:room]...)
		q.buffered[0] = head[room:]
	}
	if len(data) == 0 {
		return 0, nil, false
	}
	offset = q.sendOffset
	q.sendOffset += uint64(len(data))
	q.inFlight[offset] = data
	return offset, data, true
}

func (q *cryptoSendQueue) OnAcked(offset uint64) { delete(q.inFlight, offset) }

func (q *cryptoSendQueue) OnLost(offset uint64, data []byte) {
	if _, ok := q.inFlight[offset]; !ok {
		return
	}
	delete(q.inFlight, offset)
	q.buffered = append([][]byte{data}, q.buffered...)
	q.sendOffset -= uint64(len(data))
}

// cryptoRecvBuffer reassembles incoming CRYPTO frame bytes for one
// encryption level, reusing the stream reassembler's gap/overlap handling
// since CRYPTO is itself an ordered, reliable byte stream per RFC 9000
// section 7.
type cryptoRecvBuffer struct {
	reassembler stream.Reassembler
}

func (b *cryptoRecvBuffer) OnCryptoFrame(offset uint64, data []byte) {
	b.reassembler.Insert(offset, data)
}

// ReadContiguous drains and returns every contiguous byte available from
// the current read offset.
func (b *cryptoRecvBuffer) ReadContiguous() []byte {
	var out []byte
	for {
		chunk := b.reassembler.ReadContiguous()
		if chunk == nil {
			return out
		}
		out = append(out, chunk...)
	}
}
