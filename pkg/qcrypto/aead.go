package qcrypto

import (
	"crypto/cipher"

	"github.com/quicwire/qtp/pkg/qerr"
)

// DirectionalKeys is the fully-instantiated AEAD and header-protection
// state for one traffic direction at one encryption level.
type DirectionalKeys struct {
	suite *Suite
	aead  cipher.AEAD
	iv    []byte
	hpKey []byte
}

// NewDirectionalKeys instantiates the AEAD and retains the IV/HP key
// material needed for per-packet nonce construction and header
// protection.
func NewDirectionalKeys(suite *Suite, keys Keys) (*DirectionalKeys, error) {
	aead, err := suite.gcm(keys.Key)
	if err != nil {
		return nil, qerr.Internal("constructing AEAD", err)
	}
	return &DirectionalKeys{suite: suite, aead: aead, iv: keys.IV, hpKey: keys.HP}, nil
}

// nonce builds the per-packet AEAD nonce: the IV XORed with the packet
// number in its last 8 bytes, per RFC 9001 section 5.3.
func (d *DirectionalKeys) nonce(packetNumber int64) []byte {
	n := make([]byte, len(d.iv))
	copy(n, d.iv)
	for i := 0; i < 8; i++ {
		n[len(n)-1-i] ^= byte(packetNumber >> (8 * uint(i)))
	}
	return n
}

// Seal encrypts plaintext in place (appending the authentication tag),
// authenticating header as associated data. dst may alias plaintext's
// backing array per the cipher.AEAD.Seal contract.
func (d *DirectionalKeys) Seal(dst, header, plaintext []byte, packetNumber int64) []byte {
	return d.aead.Seal(dst, d.nonce(packetNumber), plaintext, header)
}

// Open decrypts and authenticates ciphertext (header as associated data),
// returning a DecryptError (never a transport-level error) on failure:
// packet-scoped AEAD failures must not terminate the connection.
func (d *DirectionalKeys) Open(dst, header, ciphertext []byte, packetNumber int64) ([]byte, error) {
	pt, err := d.aead.Open(dst, d.nonce(packetNumber), ciphertext, header)
	if err != nil {
		return nil, &qerr.DecryptError{Reason: "AEAD authentication failed"}
	}
	return pt, nil
}

// HeaderProtectionMask computes the 5-byte mask used to protect or
// unprotect the first byte and truncated packet-number field, sampled 4
// bytes into the (still-encrypted) packet payload per RFC 9001 section
// 5.4.2.
func (d *DirectionalKeys) HeaderProtectionMask(sample []byte) ([]byte, error) {
	return d.suite.hp(d.hpKey, sample)
}

// ApplyHeaderProtection XORs mask into the packet's first byte and
// pnLen-byte truncated packet number in place. longHeader selects which
// bits of the first byte are maskable (RFC 9001 section 5.4.1): the low 4
// bits for long headers, the low 5 for short.
func ApplyHeaderProtection(buf []byte, firstByteOffset, pnOffset, pnLen int, mask []byte, longHeader bool) {
	firstMask := byte(0x1f)
	if longHeader {
		firstMask = 0x0f
	}
	buf[firstByteOffset] ^= mask[0] & firstMask
	for i := 0; i < pnLen; i++ {
		buf[pnOffset+i] ^= mask[1+i]
	}
}
