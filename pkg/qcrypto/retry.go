package qcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"

	"github.com/quicwire/qtp/pkg/qerr"
)

var (
	retryIntegrityKey   = mustHex("be0c690b9f66575a1d766b54e368c84e")
	retryIntegrityNonce = mustHex("461599d35d632bf2239825bb")
)

// RetryIntegrityTag computes the 16-byte Retry integrity tag over the
// pseudo-packet [origDstID_len | origDstID | retry_header], per RFC 9001
// section 5.8. retryHeader is the Retry packet's bytes excluding its
// trailing 16-byte tag.
func RetryIntegrityTag(origDstID, retryHeader []byte) ([16]byte, error) {
	block, err := aes.NewCipher(retryIntegrityKey)
	if err != nil {
		return [16]byte{}, qerr.Internal("constructing retry integrity AEAD", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return [16]byte{}, qerr.Internal("constructing retry integrity AEAD", err)
	}
	pseudo := make([]byte, 0, 1+len(origDstID)+len(retryHeader))
	pseudo = append(pseudo, byte(len(origDstID)))
	pseudo = append(pseudo, origDstID...)
	pseudo = append(pseudo, retryHeader...)

	sealed := aead.Seal(nil, retryIntegrityNonce, nil, pseudo)
	var tag [16]byte
	copy(tag[:], sealed)
	return tag, nil
}

// VerifyRetry reports whether tag matches the Retry integrity tag
// computed over origDstID and retryHeader, in constant time. A client
// that receives a Retry with a mismatching tag must discard it silently.
func VerifyRetry(origDstID, retryHeader []byte, tag [16]byte) bool {
	computed, err := RetryIntegrityTag(origDstID, retryHeader)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(computed[:], tag[:]) == 1
}
