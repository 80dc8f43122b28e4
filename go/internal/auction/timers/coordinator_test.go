package timers

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

func newTestCoordinator() (*Coordinator, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClock()
	return NewCoordinator(clock, DefaultConfig(), nil), clock
}

func waitSignal(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not expire")
	}
}

func TestStartTimersUseConfiguredDurations(t *testing.T) {
	c, _ := newTestCoordinator()

	c.StartWaitTimer(nil)
	check.Equal(t, 10*time.Second, c.WaitRemaining())
	bid, wait := c.Active()
	check.False(t, bid)
	check.True(t, wait)

	c.StopWait()
	c.StartBidTimer(nil)
	check.Equal(t, 30*time.Second, c.BidRemaining())
	bid, wait = c.Active()
	check.True(t, bid)
	check.False(t, wait)
}

func TestPauseAllSnapshotsBothTimers(t *testing.T) {
	c, clock := newTestCoordinator()

	c.StartBidTimer(nil)
	clock.Advance(18 * time.Second)

	snap := c.PauseAll()
	check.Equal(t, 12*time.Second, snap.BidRemaining)
	check.Equal(t, time.Duration(0), snap.WaitRemaining)

	// remaining is still reported while paused
	clock.Advance(3 * time.Second)
	check.Equal(t, 12*time.Second, c.BidRemaining())
	bid, wait := c.Active()
	check.False(t, bid)
	check.False(t, wait)
}

func TestResumeBidContinuesFromFrozenValue(t *testing.T) {
	c, clock := newTestCoordinator()
	expired := make(chan struct{}, 1)
	onExpire := func() { expired <- struct{}{} }

	c.StartBidTimer(onExpire)
	clock.Advance(18 * time.Second)
	c.PauseAll()
	clock.Advance(3 * time.Second)

	c.ResumeBid(onExpire)
	assert.Equal(t, 12*time.Second, c.BidRemaining())

	clock.Advance(12 * time.Second)
	waitSignal(t, expired)
}

func TestPauseResumeCyclesForBothTimers(t *testing.T) {
	for _, kind := range []Kind{KindBid, KindWait} {
		t.Run(string(kind), func(t *testing.T) {
			c, clock := newTestCoordinator()
			start, resume := c.StartBidTimer, c.ResumeBid
			if kind == KindWait {
				start, resume = c.StartWaitTimer, c.ResumeWait
			}

			start(nil)
			for i := 0; i < 3; i++ {
				clock.Advance(2 * time.Second)
				before := c.Remaining(kind)
				c.PauseAll()
				clock.Advance(5 * time.Second)
				resume(nil)
				after := c.Remaining(kind)

				diff := before - after
				if diff < 0 {
					diff = -diff
				}
				check.True(t, diff <= time.Second)
			}
		})
	}
}

func TestStopAllClearsEverything(t *testing.T) {
	c, clock := newTestCoordinator()

	c.StartWaitTimer(nil)
	clock.Advance(time.Second)
	c.PauseAll()
	c.StopAll()

	check.Equal(t, time.Duration(0), c.BidRemaining())
	check.Equal(t, time.Duration(0), c.WaitRemaining())
	bid, wait := c.Active()
	check.False(t, bid)
	check.False(t, wait)
}

func TestTicksCarryTimerKind(t *testing.T) {
	clock := clockwork.NewFakeClock()
	kinds := make(chan Kind, 4)
	c := NewCoordinator(clock, DefaultConfig(), func(kind Kind, _ time.Duration) {
		kinds <- kind
	})

	c.StartWaitTimer(nil)
	clock.Advance(time.Second)

	select {
	case kind := <-kinds:
		check.Equal(t, KindWait, kind)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a wait tick")
	}
}
