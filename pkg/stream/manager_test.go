package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clientParams() Params {
	return Params{
		IsClient:                   true,
		PeerInitialMaxStreamsBidi:  4,
		PeerInitialMaxStreamsUni:   4,
		LocalInitialMaxStreamsBidi: 4,
		LocalInitialMaxStreamsUni:  4,
		ConnSendLimit:              1 << 20,
		ConnRecvLimit:              1 << 20,
	}
}

func TestManagerOpenLocalRegistersEntry(t *testing.T) {
	m := NewManager(clientParams())
	e, err := m.OpenLocal(true)
	require.NoError(t, err)
	require.NotNil(t, e.Send)
	require.NotNil(t, e.Recv)
	assert.True(t, e.Send.ID.ClientInitiated())
	assert.True(t, e.Send.ID.Bidi())

	got, ok := m.Get(e.Send.ID)
	assert.True(t, ok)
	assert.Same(t, e, got)
}

func TestManagerOpenLocalUniHasNoRecvHalf(t *testing.T) {
	m := NewManager(clientParams())
	e, err := m.OpenLocal(false)
	require.NoError(t, err)
	assert.NotNil(t, e.Send)
	assert.Nil(t, e.Recv)
}

func TestManagerAcceptRejectsLocallyInitiatedID(t *testing.T) {
	m := NewManager(clientParams())
	clientID := Make(0, true, true)
	_, err := m.Accept(clientID)
	assert.Error(t, err)
}

func TestManagerAcceptOpensImplicitGapThenTarget(t *testing.T) {
	m := NewManager(clientParams())
	serverID := Make(2, false, true)

	opened, err := m.Accept(serverID)
	require.NoError(t, err)
	require.Len(t, opened, 3)

	// Every implicitly-opened stream is reported ReasonHigherOpen, in
	// ascending sequence order, with the triggering ID last and tagged
	// ReasonRecvFrame.
	assert.Equal(t, ReasonHigherOpen, opened[0].Reason)
	assert.Equal(t, uint64(0), opened[0].ID.Sequence())
	assert.Equal(t, ReasonHigherOpen, opened[1].Reason)
	assert.Equal(t, uint64(1), opened[1].ID.Sequence())
	assert.Equal(t, ReasonRecvFrame, opened[2].Reason)
	assert.Equal(t, serverID, opened[2].ID)

	for _, o := range opened {
		_, ok := m.Get(o.ID)
		assert.True(t, ok)
	}
}

func TestManagerAcceptSameIDTwiceOpensNothingNew(t *testing.T) {
	m := NewManager(clientParams())
	serverID := Make(0, false, false)

	_, err := m.Accept(serverID)
	require.NoError(t, err)
	opened, err := m.Accept(serverID)
	require.NoError(t, err)
	assert.Empty(t, opened)
}

func TestManagerAcceptRejectsOverLocalStreamLimit(t *testing.T) {
	p := clientParams()
	p.LocalInitialMaxStreamsBidi = 1
	m := NewManager(p)
	_, err := m.Accept(Make(1, false, true))
	assert.Error(t, err)
}

func TestManagerSetPeerStreamDataLimitsOnlyRaises(t *testing.T) {
	m := NewManager(clientParams())
	m.SetPeerStreamDataLimits(100, 200, 300)
	assert.Equal(t, uint64(100), m.peerInitialMaxStreamDataBidiLocal)
	assert.Equal(t, uint64(200), m.peerInitialMaxStreamDataBidiRemote)
	assert.Equal(t, uint64(300), m.peerInitialMaxStreamDataUni)

	m.SetPeerStreamDataLimits(50, 250, 10)
	assert.Equal(t, uint64(100), m.peerInitialMaxStreamDataBidiLocal)
	assert.Equal(t, uint64(250), m.peerInitialMaxStreamDataBidiRemote)
	assert.Equal(t, uint64(300), m.peerInitialMaxStreamDataUni)
}

func TestManagerSetPeerStreamLimitRaisesIssuerCeiling(t *testing.T) {
	p := clientParams()
	p.PeerInitialMaxStreamsBidi = 0
	m := NewManager(p)
	_, err := m.OpenLocal(true)
	assert.Error(t, err)

	m.SetPeerStreamLimit(true, 1)
	_, err = m.OpenLocal(true)
	assert.NoError(t, err)
}
