package qcrypto

import (
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/crypto/hkdf"
)

// initialSalt is the version-specific salt used to derive Initial
// secrets for QUIC version 1, per RFC 9001 section 5.2.
var initialSalt = mustHex("38762cf7f55934b34d179ae6a4c80cadccbb7f0a")

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

// Keys is the derived key material for one traffic secret: the AEAD key,
// IV, and header-protection key.
type Keys struct {
	Key []byte
	IV  []byte
	HP  []byte
}

// InitialSecrets holds the client and server Initial secrets derived from
// a connection ID, from which Keys for both directions are derived with
// DeriveKeys.
type InitialSecrets struct {
	Client []byte
	Server []byte
}

// DeriveInitialSecrets implements the Initial secret derivation of RFC
// 9001 section 5.2: HKDF-Extract over the client's original destination
// connection ID, salted per-version, then Expand-Label into the two
// directional secrets.
func DeriveInitialSecrets(dcid []byte) InitialSecrets {
	initialSecret := hkdf.Extract(sha256.New, dcid, initialSalt)
	return InitialSecrets{
		Client: expandLabel(initialSecret, "client in", nil, sha256.Size),
		Server: expandLabel(initialSecret, "server in", nil, sha256.Size),
	}
}

// DeriveKeys expands a traffic secret into the AEAD key, IV, and
// header-protection key for suite.
func DeriveKeys(suite *Suite, secret []byte) Keys {
	return Keys{
		Key: expandLabel(secret, "quic key", nil, suite.id.KeySize()),
		IV:  expandLabel(secret, "quic iv", nil, suite.id.IVSize()),
		HP:  expandLabel(secret, "quic hp", nil, suite.id.HPKeySize()),
	}
}

// NextSecret derives the next-generation secret from the current one for
// a key update, per RFC 9001 section 6: Expand-Label(secret, "quic ku",
// "", Hash.length).
func NextSecret(secret []byte) []byte {
	return expandLabel(secret, "quic ku", nil, sha256.Size)
}

// expandLabel implements HKDF-Expand-Label from RFC 8446 section 7.1,
// using SHA-256 (the only hash QUIC v1's cipher suites pin for key
// schedule purposes outside the record-layer AEAD itself).
func expandLabel(secret []byte, label string, context []byte, length int) []byte {
	var hkdfLabel []byte
	hkdfLabel = append(hkdfLabel, byte(length>>8), byte(length))
	fullLabel := "tls13 " + label
	hkdfLabel = append(hkdfLabel, byte(len(fullLabel)))
	hkdfLabel = append(hkdfLabel, fullLabel...)
	hkdfLabel = append(hkdfLabel, byte(len(context)))
	hkdfLabel = append(hkdfLabel, context...)

	out := make([]byte, length)
	r := hkdf.Expand(sha256.New, secret, hkdfLabel)
	if _, err := r.Read(out); err != nil {
		panic(err)
	}
	return out
}
