package qcrypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveInitialKeyPairRoundTrip(t *testing.T) {
	dcid := mustHex("8394c8f03e515708")
	pair, err := DeriveInitialKeyPair(dcid)
	require.NoError(t, err)
	require.NotNil(t, pair.Client)
	require.NotNil(t, pair.Server)

	header := []byte{0xc3, 0, 0, 0, 1}
	plaintext := []byte("client hello fragment")
	sealed := pair.Client.Seal(nil, header, plaintext, 0)

	opened, err := pair.Client.Open(nil, header, sealed, 0)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestDeriveInitialKeyPairClientServerKeysDiffer(t *testing.T) {
	dcid := []byte{9, 9, 9, 9}
	pair, err := DeriveInitialKeyPair(dcid)
	require.NoError(t, err)

	header := []byte{0xc3}
	sealed := pair.Client.Seal(nil, header, []byte("x"), 0)
	_, err = pair.Server.Open(nil, header, sealed, 0)
	assert.Error(t, err, "client and server keys must not be the same direction")
}
