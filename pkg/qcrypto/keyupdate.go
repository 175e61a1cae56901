package qcrypto

import "github.com/quicwire/qtp/pkg/qerr"

// OneRTTKeys tracks the 1-RTT key schedule across key updates: the
// current epoch, the previous epoch (retained briefly to decrypt packets
// reordered across an update), and the pre-derived next epoch. Only
// 1-RTT keys ever update; Initial and Handshake keys are used for exactly
// one epoch each.
type OneRTTKeys struct {
	suite *Suite

	epoch int

	currentSecretClient, currentSecretServer []byte
	pendingSecretClient, pendingSecretServer []byte
	current                                  epochKeys
	previous                                 *epochKeys
	next                                     epochKeys

	// ackElicitingSinceUpdate counts ack-eliciting packets received in
	// the current phase, enforcing the rate limit: a peer must send at
	// least one before it may initiate another update.
	ackElicitingSinceUpdate int
}

type epochKeys struct {
	recv *DirectionalKeys
	send *DirectionalKeys
}

// NewOneRTTKeys derives the initial (epoch 0) and pre-derived next-epoch
// 1-RTT key schedule from the handshake's exported traffic secrets.
func NewOneRTTKeys(suite *Suite, clientSecret, serverSecret []byte, isClient bool) (*OneRTTKeys, error) {
	k := &OneRTTKeys{suite: suite, currentSecretClient: clientSecret, currentSecretServer: serverSecret}
	var err error
	if k.current, err = deriveEpoch(suite, clientSecret, serverSecret, isClient); err != nil {
		return nil, err
	}
	if err = k.prepareNext(isClient); err != nil {
		return nil, err
	}
	return k, nil
}

func deriveEpoch(suite *Suite, clientSecret, serverSecret []byte, isClient bool) (epochKeys, error) {
	clientKeys := DeriveKeys(suite, clientSecret)
	serverKeys := DeriveKeys(suite, serverSecret)
	clientDir, err := NewDirectionalKeys(suite, clientKeys)
	if err != nil {
		return epochKeys{}, err
	}
	serverDir, err := NewDirectionalKeys(suite, serverKeys)
	if err != nil {
		return epochKeys{}, err
	}
	if isClient {
		return epochKeys{recv: serverDir, send: clientDir}, nil
	}
	return epochKeys{recv: clientDir, send: serverDir}, nil
}

func (k *OneRTTKeys) prepareNext(isClient bool) error {
	nextClient := NextSecret(k.currentSecretClient)
	nextServer := NextSecret(k.currentSecretServer)
	next, err := deriveEpoch(k.suite, nextClient, nextServer, isClient)
	if err != nil {
		return err
	}
	k.next = next
	// Stash the not-yet-promoted secrets so a later update can derive
	// epoch N+2 from them.
	k.pendingSecretClient, k.pendingSecretServer = nextClient, nextServer
	return nil
}

// Send returns the keys for the current epoch's send direction.
func (k *OneRTTKeys) Send() *DirectionalKeys { return k.current.send }

// Recv returns the keys for the current epoch's receive direction, the
// epoch, and (if present) the previous epoch's receive keys, for decrypt
// attempts against reordered packets from just before an update.
func (k *OneRTTKeys) Recv() (current *DirectionalKeys, epoch int, previous *DirectionalKeys) {
	var prev *DirectionalKeys
	if k.previous != nil {
		prev = k.previous.recv
	}
	return k.current.recv, k.epoch, prev
}

// RecvNext returns the pre-derived next epoch's receive keys, used to
// attempt decryption when the peer's key-phase bit flips.
func (k *OneRTTKeys) RecvNext() *DirectionalKeys { return k.next.recv }

// CanInitiateUpdate enforces the rate limit: at least one ack-eliciting
// packet must have been received in the current phase before another
// update may begin.
func (k *OneRTTKeys) CanInitiateUpdate() bool { return k.ackElicitingSinceUpdate > 0 }

// NoteAckEliciting records receipt of an ack-eliciting packet in the
// current phase, for the rate-limit check.
func (k *OneRTTKeys) NoteAckEliciting() { k.ackElicitingSinceUpdate++ }

// Promote advances next -> current, current -> previous, and derives a
// fresh next, incrementing the epoch counter. Callers must only invoke
// this after successfully decrypting a packet under RecvNext's keys, and
// must have checked CanInitiateUpdate before treating a key-phase flip as
// a legitimate update (otherwise it is an off-path injection attempt and
// should be ignored, not promoted).
func (k *OneRTTKeys) Promote(isClient bool) error {
	if !k.CanInitiateUpdate() {
		return qerr.Transport(qerr.KeyUpdateError, "key update attempted before rate-limit window elapsed")
	}
	prev := k.current
	k.previous = &prev
	k.current = k.next
	k.currentSecretClient, k.currentSecretServer = k.pendingSecretClient, k.pendingSecretServer
	k.epoch++
	k.ackElicitingSinceUpdate = 0
	return k.prepareNext(isClient)
}

// DropPrevious discards the previous epoch's keys once enough time has
// passed (3x PTO, per RFC 9001 section 6.5) that reordered packets from
// before the update can no longer plausibly arrive.
func (k *OneRTTKeys) DropPrevious() { k.previous = nil }
