package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVarintLen(t *testing.T) {
	cases := []struct {
		v    uint64
		want int
	}{
		{0, 1},
		{0x3f, 1},
		{0x40, 2},
		{0x3fff, 2},
		{0x4000, 4},
		{0x3fffffff, 4},
		{0x40000000, 8},
		{MaxVarint, 8},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, VarintLen(c.v), "v=%d", c.v)
	}
	assert.Equal(t, -1, VarintLen(MaxVarint+1))
}

func TestAppendConsumeVarintRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 37, 0x3f, 0x40, 0x3fff, 0x4000, 0x3fffffff, 0x40000000, MaxVarint}
	for _, v := range values {
		buf := AppendVarint(nil, v)
		assert.Len(t, buf, VarintLen(v))
		got, n, err := ConsumeVarint(buf)
		require.NoError(t, err)
		assert.Equal(t, v, got)
		assert.Equal(t, len(buf), n)
	}
}

func TestAppendVarintPanicsOnOverflow(t *testing.T) {
	assert.Panics(t, func() {
		AppendVarint(nil, MaxVarint+1)
	})
}

func TestConsumeVarintShortBuffer(t *testing.T) {
	_, _, err := ConsumeVarint(nil)
	assert.Error(t, err)

	// length class says 2 bytes but only 1 is present
	_, _, err = ConsumeVarint([]byte{0x40})
	assert.Error(t, err)
}

func TestConsumeVarintAcceptsNonMinimalEncoding(t *testing.T) {
	// 2-byte encoding of the value 1, which minimally fits in 1 byte.
	buf := []byte{0x40, 0x01}
	v, n, err := ConsumeVarint(buf)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)
	assert.Equal(t, 2, n)
}

func TestReaderSequentialReads(t *testing.T) {
	w := NewWriter(nil)
	w.PutVarint(42)
	w.PutUint8(7)
	w.PutVarintBytes([]byte("hello"))

	r := NewReader(w.Bytes())
	v, err := r.Varint()
	require.NoError(t, err)
	assert.Equal(t, uint64(42), v)

	b, err := r.Uint8()
	require.NoError(t, err)
	assert.Equal(t, byte(7), b)

	data, err := r.VarintBytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	assert.Equal(t, 0, r.Len())
}

func TestReaderBytesAndSkipRejectOverrun(t *testing.T) {
	r := NewReader([]byte{1, 2, 3})
	_, err := r.Bytes(4)
	assert.Error(t, err)

	err = r.Skip(10)
	assert.Error(t, err)

	err = r.Skip(3)
	assert.NoError(t, err)
	assert.Equal(t, 0, r.Len())
}

func TestWriterLenAndBytes(t *testing.T) {
	w := NewWriter(make([]byte, 0, 16))
	assert.Equal(t, 0, w.Len())
	w.PutBytes([]byte{1, 2, 3})
	assert.Equal(t, 3, w.Len())
	assert.Equal(t, []byte{1, 2, 3}, w.Bytes())
}
