package recovery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewRenoInitialWindow(t *testing.T) {
	cc := NewNewRenoController()
	assert.Equal(t, InitialWindow, cc.Window())
	assert.True(t, cc.CanSend(InitialWindow))
	assert.False(t, cc.CanSend(InitialWindow+1))
}

func TestNewRenoSlowStartGrowsByFullAckedBytes(t *testing.T) {
	cc := NewNewRenoController()
	cc.OnPacketSent(1000)
	cc.OnPacketAcked(1000, time.Now())
	assert.Equal(t, InitialWindow+1000, cc.Window())
	assert.Equal(t, 0, cc.BytesInFlight())
}

func TestNewRenoLossHalvesWindowAndEntersRecovery(t *testing.T) {
	cc := NewNewRenoController()
	cc.OnPacketSent(InitialWindow)
	now := time.Now()
	sentTime := now.Add(-time.Millisecond)
	cc.OnPacketLost(MaxDatagramSize, sentTime, now)

	wantSsthresh := InitialWindow / 2
	assert.Equal(t, wantSsthresh, cc.Window())
}

func TestNewRenoWindowNeverBelowMinimum(t *testing.T) {
	cc := &NewRenoController{cwnd: MinWindow}
	now := time.Now()
	cc.OnPacketLost(MaxDatagramSize, now.Add(-time.Millisecond), now)
	assert.GreaterOrEqual(t, cc.Window(), MinWindow)
}

func TestNewRenoOnlyFirstLossInRecoveryPeriodDecreases(t *testing.T) {
	cc := NewNewRenoController()
	cc.OnPacketSent(InitialWindow)
	now := time.Now()
	cc.OnPacketLost(MaxDatagramSize, now.Add(-time.Millisecond), now)
	afterFirstLoss := cc.Window()

	// A second loss for a packet sent before recoveryStart must not
	// trigger a second multiplicative decrease.
	cc.OnPacketLost(MaxDatagramSize, now.Add(-2*time.Millisecond), now.Add(time.Microsecond))
	assert.Equal(t, afterFirstLoss, cc.Window())
}

func TestNewRenoPersistentCongestionCollapsesToFloor(t *testing.T) {
	cc := NewNewRenoController()
	cc.OnPersistentCongestion()
	assert.Equal(t, MinWindow, cc.Window())
}

func TestPersistentCongestionDurationUsesGranularityFloor(t *testing.T) {
	rtt := NewRTTEstimator(time.Second)
	got := PersistentCongestionDuration(rtt, time.Second)
	assert.Equal(t, 3*time.Second, got)
}
