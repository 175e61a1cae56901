package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecvStreamFrameThenFinReachesDataRecvd(t *testing.T) {
	r := NewRecvStream(Make(0, false, true), 1000)
	require.NoError(t, r.OnStreamFrame(0, []byte("hello"), false))
	assert.Equal(t, RecvRecv, r.State)

	require.NoError(t, r.OnStreamFrame(5, []byte("world"), true))
	assert.Equal(t, RecvDataRecvd, r.State)

	assert.Equal(t, []byte("helloworld"), r.Read())
	require.NoError(t, r.ReadAll())
	assert.Equal(t, RecvDataRead, r.State)
}

func TestRecvStreamRejectsDataOverFlowControlLimit(t *testing.T) {
	r := NewRecvStream(Make(0, false, true), 4)
	err := r.OnStreamFrame(0, []byte("toolong"), false)
	assert.Error(t, err)
}

func TestRecvStreamFinContradictsPriorFinalSize(t *testing.T) {
	r := NewRecvStream(Make(0, false, true), 1000)
	require.NoError(t, r.OnStreamFrame(0, []byte("abcde"), true))
	err := r.OnStreamFrame(0, []byte("abc"), true)
	assert.Error(t, err)
}

func TestRecvStreamDataPastKnownFinalSizeRejected(t *testing.T) {
	r := NewRecvStream(Make(0, false, true), 1000)
	require.NoError(t, r.OnStreamFrame(0, []byte("abc"), true))
	err := r.OnStreamFrame(3, []byte("def"), false)
	assert.Error(t, err)
}

func TestRecvStreamIgnoresFramesAfterReset(t *testing.T) {
	r := NewRecvStream(Make(0, false, true), 1000)
	require.NoError(t, r.OnResetStream(10))
	assert.Equal(t, RecvResetRecvd, r.State)

	// Frames arriving after reset must be silently dropped, not error.
	require.NoError(t, r.OnStreamFrame(0, []byte("late"), false))
	assert.Equal(t, RecvResetRecvd, r.State)
}

func TestRecvStreamResetFinalSizeBelowReceivedRejected(t *testing.T) {
	r := NewRecvStream(Make(0, false, true), 1000)
	require.NoError(t, r.OnStreamFrame(0, []byte("hello"), false))
	err := r.OnResetStream(2)
	assert.Error(t, err)
}

func TestRecvStreamConsumeReset(t *testing.T) {
	r := NewRecvStream(Make(0, false, true), 1000)
	require.NoError(t, r.OnResetStream(0))
	require.NoError(t, r.ConsumeReset())
	assert.Equal(t, RecvResetRead, r.State)
}
