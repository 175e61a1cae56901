package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDClassBits(t *testing.T) {
	id := Make(5, true, true)
	assert.True(t, id.ClientInitiated())
	assert.True(t, id.Bidi())
	assert.Equal(t, uint64(5), id.Sequence())

	id = Make(5, false, false)
	assert.False(t, id.ClientInitiated())
	assert.False(t, id.Bidi())
	assert.Equal(t, uint64(5), id.Sequence())
}

func TestIssuerOpenAdvancesAndEnforcesLimit(t *testing.T) {
	iss := NewIssuer(true, true, 2)
	id0, err := iss.Open()
	require.NoError(t, err)
	id1, err := iss.Open()
	require.NoError(t, err)
	assert.NotEqual(t, id0, id1)
	assert.Equal(t, uint64(0), id0.Sequence())
	assert.Equal(t, uint64(1), id1.Sequence())

	_, err = iss.Open()
	assert.Error(t, err)
}

func TestIssuerSetLimitNeverRegresses(t *testing.T) {
	iss := NewIssuer(true, true, 1)
	iss.SetLimit(0)
	_, err := iss.Open()
	assert.NoError(t, err)
	_, err = iss.Open()
	assert.Error(t, err)

	iss.SetLimit(2)
	_, err = iss.Open()
	assert.NoError(t, err)
}

func TestAcceptorObserveOpensImplicitGap(t *testing.T) {
	a := NewAcceptor(10)
	opened, err := a.Observe(3)
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 1, 2, 3}, opened)
}

func TestAcceptorObserveAlreadySeenReturnsNothing(t *testing.T) {
	a := NewAcceptor(10)
	_, err := a.Observe(3)
	require.NoError(t, err)
	opened, err := a.Observe(2)
	require.NoError(t, err)
	assert.Empty(t, opened)
}

func TestAcceptorObserveRejectsOverLocalLimit(t *testing.T) {
	a := NewAcceptor(2)
	_, err := a.Observe(2)
	assert.Error(t, err)
}
