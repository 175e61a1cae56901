package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendStateHappyPath(t *testing.T) {
	var s SendState
	require.NoError(t, s.OnSend())
	assert.Equal(t, SendSend, s)
	require.NoError(t, s.OnSentAllFinQueued())
	assert.Equal(t, SendDataSent, s)
	require.NoError(t, s.OnAllDataAcked())
	assert.Equal(t, SendDataRecvd, s)
	assert.True(t, s.Terminal())
}

func TestSendStateResetFromAnyNonTerminalState(t *testing.T) {
	for _, start := range []SendState{SendReady, SendSend, SendDataSent} {
		s := start
		require.NoError(t, s.OnReset())
		assert.Equal(t, SendResetSent, s)
	}
}

func TestSendStateRejectsInvalidTransitions(t *testing.T) {
	s := SendDataRecvd
	assert.Error(t, s.OnSend())
	assert.Error(t, s.OnReset())

	s = SendReady
	assert.Error(t, s.OnAllDataAcked())
}

func TestSendStateResetAckedRequiresResetSent(t *testing.T) {
	var s SendState
	assert.Error(t, s.OnResetAcked())
	require.NoError(t, s.OnReset())
	require.NoError(t, s.OnResetAcked())
	assert.True(t, s.Terminal())
}
