// Package countdown provides a cancellable, pausable countdown whose remaining
// time is always derived from the clock rather than from counted ticks.
package countdown

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const defaultTickInterval = time.Second

// TickFunc observes a running countdown once per tick interval.
type TickFunc func(remaining time.Duration)

// Option configures a Countdown.
type Option func(*Countdown)

// WithTickInterval overrides the one second tick.
func WithTickInterval(d time.Duration) Option {
	return func(c *Countdown) {
		if d > 0 {
			c.tickInterval = d
		}
	}
}

// WithOnTick registers an observer for ticks.
func WithOnTick(fn TickFunc) Option {
	return func(c *Countdown) {
		c.onTick = fn
	}
}

// Countdown fires onExpire exactly once per run. Every Start, Resume, Pause and
// Stop bumps a generation counter, so a tick or expiry that was already queued
// for an older run finds a stale generation and does nothing.
type Countdown struct {
	clock        clockwork.Clock
	tickInterval time.Duration
	onTick       TickFunc

	mu        sync.Mutex
	gen       uint64
	running   bool
	paused    bool
	startedAt time.Time
	runFor    time.Duration // duration of the current run, measured from startedAt
	lastStart time.Duration // duration passed to the last Start
	frozen    time.Duration // remaining time captured by Pause
	expiry    clockwork.Timer
	ticker    clockwork.Timer
}

// New creates a stopped countdown.
func New(clock clockwork.Clock, opts ...Option) *Countdown {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	c := &Countdown{
		clock:        clock,
		tickInterval: defaultTickInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start begins a fresh run of duration d, cancelling any run in progress.
func (c *Countdown) Start(d time.Duration, onExpire func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelLocked()
	c.paused = false
	c.frozen = 0
	c.lastStart = d
	c.armLocked(d, onExpire)
}

// Pause freezes the countdown and returns the remaining time. Pausing a
// stopped countdown returns 0; pausing an already paused one returns the
// frozen value again.
func (c *Countdown) Pause() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.paused {
		return c.frozen
	}
	if !c.running {
		return 0
	}

	remaining := c.remainingLocked()
	c.cancelLocked()
	c.paused = true
	c.frozen = remaining
	return remaining
}

// Resume continues from the frozen remaining time. A countdown that was never
// paused starts over with the duration of its last Start. Resuming a running
// countdown is a no-op.
func (c *Countdown) Resume(onExpire func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return
	}

	d := c.lastStart
	if c.paused {
		d = c.frozen
	}
	c.paused = false
	c.frozen = 0
	c.armLocked(d, onExpire)
}

// Stop cancels the countdown and clears any frozen state. Always safe to call.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelLocked()
	c.paused = false
	c.frozen = 0
}

// Remaining reports the time left, whether running or paused.
func (c *Countdown) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.running:
		return c.remainingLocked()
	case c.paused:
		return c.frozen
	default:
		return 0
	}
}

// Running reports whether the countdown is actively counting down.
func (c *Countdown) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Paused reports whether the countdown holds a frozen remaining value.
func (c *Countdown) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

func (c *Countdown) armLocked(d time.Duration, onExpire func()) {
	if d < 0 {
		d = 0
	}
	c.gen++
	gen := c.gen
	c.running = true
	c.startedAt = c.clock.Now()
	c.runFor = d

	c.expiry = c.clock.AfterFunc(d, func() { c.expire(gen, onExpire) })
	if d > c.tickInterval {
		c.ticker = c.clock.AfterFunc(c.tickInterval, func() { c.tick(gen) })
	}
}

// cancelLocked stops both timers and invalidates anything they may have queued.
func (c *Countdown) cancelLocked() {
	if c.expiry != nil {
		c.expiry.Stop()
		c.expiry = nil
	}
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
	c.gen++
	c.running = false
}

func (c *Countdown) remainingLocked() time.Duration {
	remaining := c.runFor - c.clock.Since(c.startedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (c *Countdown) expire(gen uint64, onExpire func()) {
	c.mu.Lock()
	if gen != c.gen || !c.running {
		c.mu.Unlock()
		return
	}
	c.cancelLocked()
	c.mu.Unlock()

	if onExpire != nil {
		onExpire()
	}
}

func (c *Countdown) tick(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || !c.running {
		c.mu.Unlock()
		return
	}
	remaining := c.remainingLocked()
	if remaining <= 0 {
		// expiry owns the final transition
		c.mu.Unlock()
		return
	}
	if remaining > c.tickInterval {
		c.ticker = c.clock.AfterFunc(c.tickInterval, func() { c.tick(gen) })
	} else {
		c.ticker = nil
	}
	onTick := c.onTick
	c.mu.Unlock()

	if onTick != nil {
		onTick(remaining)
	}
}

// Seconds rounds a remaining duration up to whole seconds for display.
func Seconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
