package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodePacketNumberLen(t *testing.T) {
	assert.Equal(t, 1, EncodePacketNumberLen(0, -1))
	assert.Equal(t, 2, EncodePacketNumberLen(200, -1))
	assert.Equal(t, 1, EncodePacketNumberLen(100, 99))
	assert.Equal(t, 2, EncodePacketNumberLen(1000, 10))
}

func TestTruncatedPacketNumberRoundTrip(t *testing.T) {
	cases := []struct {
		largestPN int64
		fullPN    int64
	}{
		{-1, 0},
		{0, 1},
		{100, 101},
		{100, 150},
		{1000, 1005},
		{1 << 20, (1 << 20) + 3},
	}
	for _, c := range cases {
		pnLen := EncodePacketNumberLen(c.fullPN, c.largestPN)
		buf := AppendTruncatedPacketNumber(nil, c.fullPN, pnLen)
		assert.Len(t, buf, pnLen)

		var truncated uint64
		for _, b := range buf {
			truncated = (truncated << 8) | uint64(b)
		}
		got := DecodePacketNumber(c.largestPN, truncated, pnLen)
		assert.Equal(t, c.fullPN, got, "largestPN=%d fullPN=%d pnLen=%d", c.largestPN, c.fullPN, pnLen)
	}
}

func TestDecodePacketNumberReordering(t *testing.T) {
	// A packet delivered out of order, trailing the largest received, must
	// still decode to its true (lower) value rather than wrapping forward.
	pnLen := EncodePacketNumberLen(1000, 1000)
	truncated := uint64(1000) & ((1 << (8 * uint(pnLen))) - 1)
	got := DecodePacketNumber(1005, truncated, pnLen)
	assert.Equal(t, int64(1000), got)
}
