package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLimiterUseWithinLimit(t *testing.T) {
	l := NewLimiter(100)
	assert.True(t, l.Use(60))
	assert.Equal(t, uint64(60), l.Used())
	assert.Equal(t, uint64(40), l.Available())
}

func TestLimiterUseRejectsOverLimit(t *testing.T) {
	l := NewLimiter(100)
	assert.True(t, l.Use(90))
	assert.False(t, l.Use(20))
	assert.Equal(t, uint64(90), l.Used(), "a rejected Use must not partially apply")
}

func TestLimiterSetLimitNeverRegresses(t *testing.T) {
	l := NewLimiter(100)
	l.SetLimit(50)
	assert.Equal(t, uint64(100), l.Limit())
	l.SetLimit(200)
	assert.Equal(t, uint64(200), l.Limit())
}

func TestLimiterCheckReceive(t *testing.T) {
	l := NewLimiter(100)
	assert.NoError(t, l.CheckReceive(100))
	assert.Error(t, l.CheckReceive(101))
}
