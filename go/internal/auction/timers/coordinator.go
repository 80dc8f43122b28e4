package timers

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/gavel/go/internal/auction/countdown"
)

// Kind identifies one of the two auction timers
type Kind string

const (
	KindNone Kind = ""
	KindBid  Kind = "bid"
	KindWait Kind = "wait"
)

// Config holds the configured window for each timer
type Config struct {
	BidDuration  time.Duration
	WaitDuration time.Duration
}

// DefaultConfig returns a 30s bid window and a 10s wait between items
func DefaultConfig() Config {
	return Config{
		BidDuration:  30 * time.Second,
		WaitDuration: 10 * time.Second,
	}
}

// Snapshot is the remaining time of both timers at the moment of a pause
type Snapshot struct {
	BidRemaining  time.Duration `json:"bid_remaining"`
	WaitRemaining time.Duration `json:"wait_remaining"`
}

// TickFunc receives ticks from either timer
type TickFunc func(kind Kind, remaining time.Duration)

// Coordinator owns the bid and wait countdowns. It does not stop the two
// from running together; the engine is responsible for that.
type Coordinator struct {
	cfg  Config
	bid  *countdown.Countdown
	wait *countdown.Countdown
}

// NewCoordinator creates a coordinator with both timers stopped
func NewCoordinator(clock clockwork.Clock, cfg Config, onTick TickFunc) *Coordinator {
	tickFor := func(kind Kind) countdown.TickFunc {
		return func(remaining time.Duration) {
			if onTick != nil {
				onTick(kind, remaining)
			}
		}
	}

	return &Coordinator{
		cfg:  cfg,
		bid:  countdown.New(clock, countdown.WithOnTick(tickFor(KindBid))),
		wait: countdown.New(clock, countdown.WithOnTick(tickFor(KindWait))),
	}
}

// Config returns the configured durations
func (c *Coordinator) Config() Config {
	return c.cfg
}

// StartBidTimer starts a full bid window
func (c *Coordinator) StartBidTimer(onExpire func()) {
	c.bid.Start(c.cfg.BidDuration, onExpire)
}

// StartWaitTimer starts a full wait between items
func (c *Coordinator) StartWaitTimer(onExpire func()) {
	c.wait.Start(c.cfg.WaitDuration, onExpire)
}

// PauseAll freezes both timers and reports what each had left.
func (c *Coordinator) PauseAll() Snapshot {
	return Snapshot{
		BidRemaining:  c.bid.Pause(),
		WaitRemaining: c.wait.Pause(),
	}
}

// ResumeBid continues the bid timer from its frozen remaining time
func (c *Coordinator) ResumeBid(onExpire func()) {
	c.bid.Resume(onExpire)
}

// ResumeWait continues the wait timer from its frozen remaining time
func (c *Coordinator) ResumeWait(onExpire func()) {
	c.wait.Resume(onExpire)
}

func (c *Coordinator) StopBid() {
	c.bid.Stop()
}

func (c *Coordinator) StopWait() {
	c.wait.Stop()
}

// StopAll stops both timers and clears frozen values
func (c *Coordinator) StopAll() {
	c.bid.Stop()
	c.wait.Stop()
}

// BidRemaining reports the bid timer's remaining time, running or paused
func (c *Coordinator) BidRemaining() time.Duration {
	return c.bid.Remaining()
}

// WaitRemaining reports the wait timer's remaining time, running or paused
func (c *Coordinator) WaitRemaining() time.Duration {
	return c.wait.Remaining()
}

// Active reports which timers are currently running.
func (c *Coordinator) Active() (bid, wait bool) {
	return c.bid.Running(), c.wait.Running()
}

// Remaining reports the remaining time of the given timer
func (c *Coordinator) Remaining(kind Kind) time.Duration {
	switch kind {
	case KindBid:
		return c.BidRemaining()
	case KindWait:
		return c.WaitRemaining()
	default:
		return 0
	}
}
