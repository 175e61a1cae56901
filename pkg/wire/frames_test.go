package wire

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamFrameRoundTrip(t *testing.T) {
	f := StreamFrame{ID: 4, Offset: 16, Data: []byte("payload"), Fin: true}
	buf := AppendStream(nil, f)

	r := NewReader(buf)
	typ, err := r.Varint()
	require.NoError(t, err)
	ft := FrameType(typ)
	assert.True(t, ft.IsStream())

	got, err := ParseStream(r, byte(ft-FrameStream))
	require.NoError(t, err)
	assert.Equal(t, f.ID, got.ID)
	assert.Equal(t, f.Offset, got.Offset)
	assert.Equal(t, f.Data, got.Data)
	assert.True(t, got.Fin)
}

func TestStreamFrameZeroOffsetOmitsOffBit(t *testing.T) {
	f := StreamFrame{ID: 0, Offset: 0, Data: []byte("x")}
	buf := AppendStream(nil, f)
	assert.Equal(t, byte(FrameStream)|streamFlagLen, buf[0])
}

func TestResetStreamRoundTrip(t *testing.T) {
	f := ResetStreamFrame{ID: 9, ErrorCode: 2, FinalSize: 500}
	buf := AppendResetStream(nil, f)
	r := NewReader(buf)
	typ, err := r.Varint()
	require.NoError(t, err)
	assert.Equal(t, FrameResetStream, FrameType(typ))

	got, err := ParseResetStream(r)
	require.NoError(t, err)
	assert.Equal(t, f, *got)
}

func TestCryptoFrameRoundTrip(t *testing.T) {
	f := CryptoFrame{Offset: 12, Data: []byte("clienthello")}
	buf := AppendCrypto(nil, f)
	r := NewReader(buf)
	_, err := r.Varint()
	require.NoError(t, err)
	got, err := ParseCrypto(r)
	require.NoError(t, err)
	assert.Equal(t, f.Offset, got.Offset)
	assert.Equal(t, f.Data, got.Data)
}

func TestNewConnectionIDRoundTrip(t *testing.T) {
	f := NewConnectionIDFrame{Sequence: 3, RetirePriorTo: 1, ConnectionID: []byte{1, 2, 3, 4}}
	f.ResetToken[0] = 0xaa
	buf := AppendNewConnectionID(nil, f)
	r := NewReader(buf)
	_, err := r.Varint()
	require.NoError(t, err)
	got, err := ParseNewConnectionID(r)
	require.NoError(t, err)
	assert.Equal(t, f.Sequence, got.Sequence)
	assert.Equal(t, f.RetirePriorTo, got.RetirePriorTo)
	assert.Equal(t, f.ConnectionID, got.ConnectionID)
	assert.Equal(t, f.ResetToken, got.ResetToken)
}

func TestNewConnectionIDRejectsRetirePriorToAboveSequence(t *testing.T) {
	f := NewConnectionIDFrame{Sequence: 1, RetirePriorTo: 5, ConnectionID: []byte{1}}
	buf := AppendNewConnectionID(nil, f)
	r := NewReader(buf)
	_, err := r.Varint()
	require.NoError(t, err)
	_, err = ParseNewConnectionID(r)
	assert.Error(t, err)
}

func TestConnectionCloseTransportRoundTrip(t *testing.T) {
	f := ConnectionCloseFrame{Transport: true, ErrorCode: 0xa, FrameType: 0x08, HasFrameType: true, Reason: "bad stream"}
	buf := AppendConnectionClose(nil, f)
	r := NewReader(buf)
	_, err := r.Varint()
	require.NoError(t, err)
	got, err := ParseConnectionClose(r, true)
	require.NoError(t, err)
	assert.Equal(t, f, *got)
}

func TestConnectionCloseAppRoundTrip(t *testing.T) {
	f := ConnectionCloseFrame{Transport: false, ErrorCode: 77, Reason: "done"}
	buf := AppendConnectionClose(nil, f)
	r := NewReader(buf)
	_, err := r.Varint()
	require.NoError(t, err)
	got, err := ParseConnectionClose(r, false)
	require.NoError(t, err)
	assert.Equal(t, f.ErrorCode, got.ErrorCode)
	assert.False(t, got.HasFrameType)
	assert.Equal(t, f.Reason, got.Reason)
}

func TestDatagramRoundTripBothForms(t *testing.T) {
	lenForm := DatagramFrame{Data: []byte("hi"), HasLen: true}
	buf := AppendDatagram(nil, lenForm)
	r := NewReader(buf)
	_, err := r.Varint()
	require.NoError(t, err)
	got, err := ParseDatagram(r, true)
	require.NoError(t, err)
	assert.Equal(t, lenForm.Data, got.Data)

	noLenForm := DatagramFrame{Data: []byte("bye")}
	buf = AppendDatagram(nil, noLenForm)
	r = NewReader(buf)
	_, err = r.Varint()
	require.NoError(t, err)
	got, err = ParseDatagram(r, false)
	require.NoError(t, err)
	assert.Equal(t, noLenForm.Data, got.Data)
}

func TestAckFrameRoundTripMultipleRanges(t *testing.T) {
	ranges := []AckRange{
		{Smallest: 18, Largest: 20},
		{Smallest: 10, Largest: 15},
		{Smallest: 0, Largest: 5},
	}
	buf, err := AppendAck(nil, ranges, 100, nil)
	require.NoError(t, err)

	r := NewReader(buf)
	typ, err := r.Varint()
	require.NoError(t, err)
	assert.Equal(t, FrameAck, FrameType(typ))

	got, err := ParseAck(r, false, 3)
	require.NoError(t, err)
	assert.Equal(t, ranges, got.Ranges)
	assert.Equal(t, time.Duration(100)*time.Microsecond*(1<<3), got.AckDelay)
	assert.Equal(t, int64(20), got.Largest())
}

func TestAppendAckRejectsUnsortedRanges(t *testing.T) {
	ranges := []AckRange{
		{Smallest: 0, Largest: 5},
		{Smallest: 10, Largest: 15},
	}
	_, err := AppendAck(nil, ranges, 0, nil)
	assert.Error(t, err)
}

func TestNextDispatchesAndRejectsInadmissibleFrame(t *testing.T) {
	buf := AppendCrypto(nil, CryptoFrame{Offset: 0, Data: []byte("hi")})
	r := NewReader(buf)
	f, err := Next(r, SpaceInitial, 3)
	require.NoError(t, err)
	cf, ok := f.(*CryptoFrame)
	require.True(t, ok)
	assert.Equal(t, []byte("hi"), cf.Data)

	// CRYPTO is not allowed in a 0-RTT packet.
	buf = AppendCrypto(nil, CryptoFrame{Offset: 0, Data: []byte("hi")})
	r = NewReader(buf)
	_, err = Next(r, Space0RTT, 3)
	assert.Error(t, err)
}

func TestParseFramesVisitsEveryFrame(t *testing.T) {
	var buf []byte
	buf = append(buf, byte(FramePing))
	buf = AppendCrypto(buf, CryptoFrame{Offset: 0, Data: []byte("a")})

	var types []FrameType
	err := ParseFrames(buf, SpaceInitial, 3, func(f Frame) error {
		types = append(types, f.Type())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []FrameType{FramePing, FrameCrypto}, types)
}

func TestFrameTypeAckElicitingAndAllowed(t *testing.T) {
	assert.False(t, FrameAck.AckEliciting())
	assert.False(t, FramePadding.AckEliciting())
	assert.False(t, FrameConnectionCloseTransport.AckEliciting())
	assert.True(t, FramePing.AckEliciting())
	assert.True(t, FrameStream.AckEliciting())

	assert.True(t, FrameCrypto.Allowed(SpaceHandshake))
	assert.False(t, FrameCrypto.Allowed(Space0RTT))
	assert.True(t, FrameStream.Allowed(Space0RTT))
	assert.False(t, FrameStream.Allowed(SpaceInitial))
}
