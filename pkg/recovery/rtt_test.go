package recovery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRTTEstimatorFirstSample(t *testing.T) {
	e := NewRTTEstimator(time.Millisecond)
	assert.False(t, e.HasSample())
	e.Update(100*time.Millisecond, 0, 25*time.Millisecond)
	assert.True(t, e.HasSample())
	assert.Equal(t, 100*time.Millisecond, e.Min)
	assert.Equal(t, 100*time.Millisecond, e.Smoothed)
	assert.Equal(t, 50*time.Millisecond, e.Var)
}

func TestRTTEstimatorSubsequentSampleAdjustsByAckDelay(t *testing.T) {
	e := NewRTTEstimator(time.Millisecond)
	e.Update(100*time.Millisecond, 0, 25*time.Millisecond)
	e.Update(120*time.Millisecond, 10*time.Millisecond, 25*time.Millisecond)
	assert.Equal(t, 100*time.Millisecond, e.Min)
	// adjusted = 120 - 10 = 110ms; smoothed = (7*100 + 110)/8 = 101.25ms
	assert.Equal(t, (7*100*time.Millisecond+110*time.Millisecond)/8, e.Smoothed)
}

func TestRTTEstimatorAckDelayCappedAtMaxAckDelay(t *testing.T) {
	e := NewRTTEstimator(time.Millisecond)
	e.Update(100*time.Millisecond, 0, 25*time.Millisecond)
	// ackDelay of 90ms exceeds maxAckDelay of 25ms, so only 25ms is
	// subtracted, not the full 90ms (200ms clears min_rtt+25ms).
	e.Update(200*time.Millisecond, 90*time.Millisecond, 25*time.Millisecond)
	adjusted := 200*time.Millisecond - 25*time.Millisecond
	assert.Equal(t, (7*100*time.Millisecond+adjusted)/8, e.Smoothed)
}

func TestLossDelayFloorsAtGranularity(t *testing.T) {
	e := NewRTTEstimator(10 * time.Millisecond)
	assert.Equal(t, 10*time.Millisecond, e.LossDelay(0))

	e.Update(100*time.Millisecond, 0, 25*time.Millisecond)
	assert.Equal(t, 100*time.Millisecond*9/8, e.LossDelay(100*time.Millisecond))
}

func TestPTODurationFloorsRTTVarAtGranularity(t *testing.T) {
	e := NewRTTEstimator(10 * time.Millisecond)
	e.Update(100*time.Millisecond, 0, 25*time.Millisecond)
	// Var starts at latest/2 = 50ms, so 4*Var = 200ms dominates granularity.
	got := e.PTODuration(25 * time.Millisecond)
	assert.Equal(t, 100*time.Millisecond+200*time.Millisecond+25*time.Millisecond, got)
}
