package qcrypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryIntegrityTagVerifies(t *testing.T) {
	origDstID := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	retryHeader := []byte{0xf0, 0xde, 0xad, 0xbe, 0xef}

	tag, err := RetryIntegrityTag(origDstID, retryHeader)
	require.NoError(t, err)
	assert.True(t, VerifyRetry(origDstID, retryHeader, tag))
}

func TestVerifyRetryRejectsTamperedTag(t *testing.T) {
	origDstID := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	retryHeader := []byte{0xf0, 0xde, 0xad}

	tag, err := RetryIntegrityTag(origDstID, retryHeader)
	require.NoError(t, err)
	tag[0] ^= 0xff
	assert.False(t, VerifyRetry(origDstID, retryHeader, tag))
}

func TestVerifyRetryRejectsWrongOrigDstID(t *testing.T) {
	retryHeader := []byte{0xf0, 0xde, 0xad}
	tag, err := RetryIntegrityTag([]byte{1, 2, 3}, retryHeader)
	require.NoError(t, err)
	assert.False(t, VerifyRetry([]byte{9, 9, 9}, retryHeader, tag))
}
