package recovery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPTOTimerDeadlineDoublesWithBackoff(t *testing.T) {
	pt := &PTOTimer{}
	last := time.Now()
	base := 50 * time.Millisecond

	assert.Equal(t, last.Add(base), pt.Deadline(last, base))

	pt.OnFire()
	assert.Equal(t, 1, pt.Count())
	assert.Equal(t, last.Add(2*base), pt.Deadline(last, base))

	pt.OnFire()
	assert.Equal(t, last.Add(4*base), pt.Deadline(last, base))
}

func TestPTOTimerResetOnAckElicitingAckReceived(t *testing.T) {
	pt := &PTOTimer{}
	pt.OnFire()
	pt.OnFire()
	assert.Equal(t, 2, pt.Count())
	pt.OnAckElicitingAckReceived()
	assert.Equal(t, 0, pt.Count())
}
