// Package qcrypto implements the QUIC crypto suite: Initial-secret
// derivation, HKDF-Expand-Label, per-level key schedules, AEAD packet
// protection, header protection, Retry integrity, and key update, per RFC
// 9001.
package qcrypto

import (
	"crypto/aes"
	"crypto/cipher"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/quicwire/qtp/pkg/qerr"
)

// SuiteID names a negotiated TLS 1.3 AEAD cipher suite.
type SuiteID int

const (
	SuiteAES128GCM SuiteID = iota
	SuiteAES256GCM
	SuiteChaCha20Poly1305
)

// KeySize and IVSize return the wire sizes for a suite's AEAD key and IV.
// HPKeySize matches KeySize for every suite QUIC uses.
func (s SuiteID) KeySize() int {
	switch s {
	case SuiteAES256GCM, SuiteChaCha20Poly1305:
		return 32
	default:
		return 16
	}
}

func (s SuiteID) IVSize() int  { return 12 }
func (s SuiteID) HPKeySize() int { return s.KeySize() }

// Suite is a negotiated AEAD cipher suite bound to packet protection and
// header protection operations. Initial packets always use AES-128-GCM,
// independent of whatever the handshake eventually negotiates for
// Handshake/1-RTT.
type Suite struct {
	id  SuiteID
	gcm func(key []byte) (cipher.AEAD, error)
	hp  func(key []byte, sample []byte) ([]byte, error)
}

// NewSuite builds the Suite for a negotiated cipher suite ID.
func NewSuite(id SuiteID) *Suite {
	switch id {
	case SuiteChaCha20Poly1305:
		return &Suite{id: id, gcm: newChaChaAEAD, hp: chachaHPMask}
	default:
		return &Suite{id: id, gcm: newAESGCMAEAD, hp: aesHPMask}
	}
}

func (s *Suite) ID() SuiteID { return s.id }

func newAESGCMAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func newChaChaAEAD(key []byte) (cipher.AEAD, error) {
	return chacha20poly1305.New(key)
}

// aesHPMask computes the 5-byte header-protection mask for an AES-based
// suite: AES-ECB(hpKey, sample), per RFC 9001 section 5.4.3. A single
// block cipher invocation is exactly AES-ECB for one 16-byte block.
func aesHPMask(hpKey, sample []byte) ([]byte, error) {
	if len(sample) < aes.BlockSize {
		return nil, qerr.Internal("header protection sample too short", nil)
	}
	block, err := aes.NewCipher(hpKey)
	if err != nil {
		return nil, err
	}
	out := make([]byte, aes.BlockSize)
	block.Encrypt(out, sample[:aes.BlockSize])
	return out[:5], nil
}

// chachaHPMask computes the mask for the ChaCha20 header-protection
// variant: the sample's first four bytes (little-endian) become the
// block counter, the remaining twelve the nonce, and five zero bytes are
// encrypted, per RFC 9001 section 5.4.4.
func chachaHPMask(hpKey, sample []byte) ([]byte, error) {
	if len(sample) < chacha20.NonceSize+4 {
		return nil, qerr.Internal("header protection sample too short", nil)
	}
	counter := uint32(sample[0]) | uint32(sample[1])<<8 | uint32(sample[2])<<16 | uint32(sample[3])<<24
	c, err := chacha20.NewUnauthenticatedCipher(hpKey, sample[4:4+chacha20.NonceSize])
	if err != nil {
		return nil, err
	}
	c.SetCounter(counter)
	mask := make([]byte, 5)
	c.XORKeyStream(mask, mask)
	return mask, nil
}
