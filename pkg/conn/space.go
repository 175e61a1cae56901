/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

package conn

import (
	"time"

	"github.com/quicwire/qtp/pkg/pnspace"
	"github.com/quicwire/qtp/pkg/recovery"
	"github.com/quicwire/qtp/pkg/wire"
)

// packetSpace bundles everything the driver tracks independently for one
// of the three packet-number spaces: sent/received packet-number
// bookkeeping, the CRYPTO stream carried at this level, and the
// loss-detection timer state, per RFC 9000 section 12.3 and RFC 9002
// section 6.
type packetSpace struct {
	id wire.Space

	pn *pnspace.Space

	cryptoSend *cryptoSendQueue
	cryptoRecv *cryptoRecvBuffer

	pto *recovery.PTOTimer

	// discarded marks that keys for this space have been dropped (RFC
	// 9001 section 4.9); the driver stops sending or processing packets
	// in a discarded space entirely.
	discarded bool

	lastAckElicitingSent time.Time

	// probeNeeded counts the ack-eliciting PTO probe packets still owed in
	// this space after a PTO firing, decremented as each is sent.
	probeNeeded int
}

func newPacketSpace(id wire.Space) *packetSpace {
	return &packetSpace{
		id:         id,
		pn:         pnspace.New(),
		cryptoSend: newCryptoSendQueue(),
		cryptoRecv: &cryptoRecvBuffer{},
		pto:        &recovery.PTOTimer{},
	}
}
