package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReassemblerInOrder(t *testing.T) {
	var r Reassembler
	r.Insert(0, []byte("hello"))
	assert.Equal(t, []byte("hello"), r.ReadContiguous())
	assert.Equal(t, uint64(5), r.NextReadOffset())
}

func TestReassemblerOutOfOrderCoalesces(t *testing.T) {
	var r Reassembler
	r.Insert(5, []byte("world"))
	assert.Nil(t, r.ReadContiguous(), "gap at the front must withhold the later segment")
	r.Insert(0, []byte("hello"))
	assert.Equal(t, []byte("helloworld"), r.ReadContiguous())
}

func TestReassemblerDuplicateKeepsFirstSeen(t *testing.T) {
	var r Reassembler
	r.Insert(0, []byte("AAAAA"))
	r.Insert(0, []byte("BBBBB"))
	assert.Equal(t, []byte("AAAAA"), r.ReadContiguous())
}

func TestReassemblerOverlapTrimsToFirstSeen(t *testing.T) {
	var r Reassembler
	r.Insert(0, []byte("AAAAA"))
	// Overlaps bytes 3-7; only the non-overlapping tail ("BB") should
	// survive.
	r.Insert(3, []byte("XXBB"))
	assert.Equal(t, []byte("AAAAABB"), r.ReadContiguous())
}

func TestReassemblerAlreadyConsumedBytesIgnored(t *testing.T) {
	var r Reassembler
	r.Insert(0, []byte("hello"))
	r.ReadContiguous()
	r.Insert(0, []byte("hello")) // fully before nextRead now
	assert.Nil(t, r.ReadContiguous())
	assert.Equal(t, uint64(5), r.NextReadOffset())
}

func TestReassemblerPartialOverlapWithNextReadTrimmed(t *testing.T) {
	var r Reassembler
	r.Insert(0, []byte("abc"))
	r.ReadContiguous()
	// Offset 1 is already consumed; only "def" at offsets 3-5 is new.
	r.Insert(1, []byte("XXdef"))
	assert.Equal(t, []byte("def"), r.ReadContiguous())
}

func TestReassemblerHighestByteSeen(t *testing.T) {
	var r Reassembler
	assert.Equal(t, uint64(0), r.HighestByteSeen())
	r.Insert(10, []byte("xyz"))
	assert.Equal(t, uint64(13), r.HighestByteSeen())
}

func TestReassemblerEmptyInsertIsNoop(t *testing.T) {
	var r Reassembler
	r.Insert(0, nil)
	assert.Nil(t, r.ReadContiguous())
}
