package recovery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/quicwire/qtp/pkg/pnspace"
	"github.com/quicwire/qtp/pkg/wire"
)

func TestDetectLossesNoneBeforeFirstAck(t *testing.T) {
	s := pnspace.New()
	s.OnSent(pnspace.SentRecord{PacketNumber: 0, SentTime: time.Now(), InFlight: true, AckEliciting: true})
	res := DetectLosses(s, time.Millisecond, time.Now())
	assert.Empty(t, res.Lost)
}

func TestDetectLossesByTime(t *testing.T) {
	s := pnspace.New()
	base := time.Now()
	s.OnSent(pnspace.SentRecord{PacketNumber: 0, SentTime: base, InFlight: true, AckEliciting: true})
	s.OnSent(pnspace.SentRecord{PacketNumber: 1, SentTime: base, InFlight: true, AckEliciting: true})
	s.ConsumeAck([]wire.AckRange{{Smallest: 1, Largest: 1}}, 1, base)

	res := DetectLosses(s, 10*time.Millisecond, base.Add(20*time.Millisecond))
	if assert.Len(t, res.Lost, 1) {
		assert.Equal(t, int64(0), res.Lost[0].PacketNumber)
	}
}

func TestDetectLossesByReorderingThreshold(t *testing.T) {
	s := pnspace.New()
	base := time.Now()
	for pn := int64(0); pn <= 3; pn++ {
		s.OnSent(pnspace.SentRecord{PacketNumber: pn, SentTime: base, InFlight: true, AckEliciting: true})
	}
	// Acking pn=3 leaves pn=0 three packets behind, which is lost by
	// reordering even though not enough time has passed.
	s.ConsumeAck([]wire.AckRange{{Smallest: 3, Largest: 3}}, 3, base)
	res := DetectLosses(s, time.Hour, base)
	var lostPNs []int64
	for _, rec := range res.Lost {
		lostPNs = append(lostPNs, rec.PacketNumber)
	}
	assert.Contains(t, lostPNs, int64(0))
}

func TestDetectLossesReportsEarliestLossTimeForSurvivor(t *testing.T) {
	s := pnspace.New()
	base := time.Now()
	s.OnSent(pnspace.SentRecord{PacketNumber: 0, SentTime: base, InFlight: true, AckEliciting: true})
	s.OnSent(pnspace.SentRecord{PacketNumber: 1, SentTime: base.Add(time.Millisecond), InFlight: true, AckEliciting: true})
	s.ConsumeAck([]wire.AckRange{{Smallest: 1, Largest: 1}}, 1, base)

	res := DetectLosses(s, time.Hour, base.Add(time.Millisecond))
	assert.Empty(t, res.Lost)
	assert.False(t, res.LossTime.IsZero())
}

func TestDetectLossesIgnoresNotYetAcked(t *testing.T) {
	s := pnspace.New()
	base := time.Now()
	s.OnSent(pnspace.SentRecord{PacketNumber: 0, SentTime: base, InFlight: true, AckEliciting: true})
	res := DetectLosses(s, time.Nanosecond, base.Add(time.Hour))
	assert.Empty(t, res.Lost)
}
