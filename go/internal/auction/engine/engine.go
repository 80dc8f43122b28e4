// Package engine runs a single live auction: it owns the auction state and the
// two timers, validates bids, resolves items and publishes an event after
// every committed transition. All commands and timer callbacks are serialized
// on one mutex.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/gavel/go/internal/auction/events"
	"github.com/mcdev12/gavel/go/internal/auction/state"
	"github.com/mcdev12/gavel/go/internal/auction/store"
	"github.com/mcdev12/gavel/go/internal/auction/timers"
	"github.com/mcdev12/gavel/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Publisher receives events after each committed transition. Publish must not
// block; it is called with the engine lock held.
type Publisher interface {
	Publish(ev events.Event)
}

// PublisherFunc adapts a function to Publisher
type PublisherFunc func(ev events.Event)

func (f PublisherFunc) Publish(ev events.Event) { f(ev) }

// Config holds the auction rules
type Config struct {
	BidDuration        time.Duration
	WaitDuration       time.Duration
	MinBidIncrement    int64
	ExtensionThreshold time.Duration
	PersistTimeout     time.Duration
}

func DefaultConfig() Config {
	return Config{
		BidDuration:        30 * time.Second,
		WaitDuration:       10 * time.Second,
		MinBidIncrement:    10,
		ExtensionThreshold: 15 * time.Second,
		PersistTimeout:     3 * time.Second,
	}
}

func (c Config) Validate() error {
	switch {
	case c.BidDuration <= 0:
		return fmt.Errorf("bid duration must be positive, got %s", c.BidDuration)
	case c.WaitDuration <= 0:
		return fmt.Errorf("wait duration must be positive, got %s", c.WaitDuration)
	case c.MinBidIncrement < 1:
		return fmt.Errorf("minimum bid increment must be at least 1, got %d", c.MinBidIncrement)
	case c.ExtensionThreshold < 0 || c.ExtensionThreshold > c.BidDuration:
		return fmt.Errorf("extension threshold must be within [0, %s], got %s", c.BidDuration, c.ExtensionThreshold)
	case c.PersistTimeout <= 0:
		return fmt.Errorf("persist timeout must be positive, got %s", c.PersistTimeout)
	}
	return nil
}

// Option configures an Engine
type Option func(*Engine)

// WithClock replaces the real clock, typically with a clockwork fake in tests
func WithClock(clock clockwork.Clock) Option {
	return func(e *Engine) { e.clock = clock }
}

func WithMetrics(m MetricsCollector) Option {
	return func(e *Engine) { e.metrics = m }
}

// Status is a point-in-time view of the auction with timer information
type Status struct {
	state.Snapshot
	ActiveTimer   timers.Kind
	TimeRemaining time.Duration
}

type Engine struct {
	cfg        Config
	clock      clockwork.Clock
	store      store.Store
	publisher  Publisher
	metrics    MetricsCollector
	instanceID string

	mu     sync.Mutex
	state  *state.AuctionState
	timers *timers.Coordinator
	active timers.Kind
	// epoch changes whenever a timer is started, stopped or paused. Expiry
	// callbacks carry the epoch they were armed under and do nothing if it
	// has moved on.
	epoch uint64

	ledger  *budgetLedger
	persist *persistQueue
}

// New creates an Idle engine. Close must be called to drain pending writes.
func New(st store.Store, publisher Publisher, cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	if publisher == nil {
		publisher = PublisherFunc(func(events.Event) {})
	}

	e := &Engine{
		cfg:        cfg,
		clock:      clockwork.NewRealClock(),
		store:      st,
		publisher:  publisher,
		metrics:    &NoOpMetricsCollector{},
		instanceID: uuid.New().String()[:8],
		state:      state.New(),
		ledger:     newBudgetLedger(),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.timers = timers.NewCoordinator(e.clock, timers.Config{
		BidDuration:  cfg.BidDuration,
		WaitDuration: cfg.WaitDuration,
	}, e.handleTick)
	e.persist = newPersistQueue(cfg.PersistTimeout, e.metrics)
	e.metrics.RecordPhase(string(state.PhaseIdle))

	log.Info().
		Str("instance", e.instanceID).
		Dur("bid_duration", cfg.BidDuration).
		Dur("wait_duration", cfg.WaitDuration).
		Int64("min_increment", cfg.MinBidIncrement).
		Msg("auction engine created")
	return e, nil
}

// Config returns the auction rules the engine was created with
func (e *Engine) Config() Config {
	return e.cfg
}

// Start opens the auction and starts the wait timer before the first item.
// Starting an Ended auction resets it first.
func (e *Engine) Start(ctx context.Context) (state.Phase, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Phase() == state.PhaseEnded {
		e.resetLocked()
	}
	if err := e.state.Start(); err != nil {
		return e.state.Phase(), err
	}
	if err := e.startWaitTimerLocked(); err != nil {
		return e.state.Phase(), err
	}

	log.Info().Str("instance", e.instanceID).Msg("auction started")
	e.publishStatusLocked("auction started")
	return e.state.Phase(), nil
}

// Pause freezes whichever timer is running
func (e *Engine) Pause(ctx context.Context, reason string) (state.Phase, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pauseLocked(reason)
}

func (e *Engine) pauseLocked(reason string) (state.Phase, error) {
	if err := e.state.Pause(reason); err != nil {
		return e.state.Phase(), err
	}
	frozen := e.timers.PauseAll()
	e.bumpEpochLocked()
	e.active = timers.KindNone

	log.Info().
		Str("instance", e.instanceID).
		Str("paused_from", string(e.state.PausedFrom())).
		Str("reason", reason).
		Dur("bid_remaining", frozen.BidRemaining).
		Dur("wait_remaining", frozen.WaitRemaining).
		Msg("auction paused")
	e.publishStatusLocked("auction paused")
	return e.state.Phase(), nil
}

// Resume restores the paused sub-phase. A paused bid window continues from
// its frozen time; one frozen at zero resolves immediately. A wait with no
// frozen time left starts afresh.
func (e *Engine) Resume(ctx context.Context) (state.Phase, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Phase() != state.PhasePaused {
		return e.state.Phase(), &state.InvalidTransitionError{Op: "resume", Phase: e.state.Phase()}
	}
	bidLeft, waitLeft := e.timers.BidRemaining(), e.timers.WaitRemaining()
	if bidLeft > 0 && waitLeft > 0 {
		return e.state.Phase(), e.timerViolationLocked("both timers frozen on resume")
	}

	from, err := e.state.Resume()
	if err != nil {
		return e.state.Phase(), err
	}

	switch {
	case from == state.PhaseBidding && bidLeft > 0:
		epoch := e.bumpEpochLocked()
		e.timers.ResumeBid(func() { e.handleBidExpired(epoch) })
		e.active = timers.KindBid
	case from == state.PhaseBidding:
		log.Info().Str("instance", e.instanceID).Msg("bid window exhausted while paused, resolving")
		if err := e.resolveLocked(true, false); err != nil {
			return e.state.Phase(), err
		}
		return e.state.Phase(), nil
	case waitLeft > 0:
		epoch := e.bumpEpochLocked()
		e.timers.ResumeWait(func() { e.handleWaitExpired(epoch) })
		e.active = timers.KindWait
	default:
		e.timers.StopWait()
		if err := e.startWaitTimerLocked(); err != nil {
			return e.state.Phase(), err
		}
	}

	log.Info().
		Str("instance", e.instanceID).
		Str("phase", string(from)).
		Dur("remaining", e.timers.Remaining(e.active)).
		Msg("auction resumed")
	e.publishStatusLocked("auction resumed")
	return e.state.Phase(), nil
}

// End stops the auction. An item still on the block is released back to the
// store unresolved.
func (e *Engine) End(ctx context.Context, reason string) (state.Phase, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.endLocked(reason); err != nil {
		return e.state.Phase(), err
	}
	return e.state.Phase(), nil
}

// ForceResolve finalizes the current item now, selling it to the high bidder
// if there is one
func (e *Engine) ForceResolve(ctx context.Context) (state.Phase, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Phase() != state.PhaseBidding {
		return e.state.Phase(), &state.InvalidTransitionError{Op: "force resolve", Phase: e.state.Phase()}
	}
	if err := e.resolveLocked(false, false); err != nil {
		return e.state.Phase(), err
	}
	return e.state.Phase(), nil
}

// SkipCurrentItem marks the current item unsold regardless of bids
func (e *Engine) SkipCurrentItem(ctx context.Context) (state.Phase, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Phase() != state.PhaseBidding {
		return e.state.Phase(), &state.InvalidTransitionError{Op: "skip item", Phase: e.state.Phase()}
	}
	if err := e.resolveLocked(false, true); err != nil {
		return e.state.Phase(), err
	}
	return e.state.Phase(), nil
}

// ForceNext cuts the wait short and opens the next item immediately
func (e *Engine) ForceNext(ctx context.Context) (state.Phase, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Phase() != state.PhaseWaiting {
		return e.state.Phase(), &state.InvalidTransitionError{Op: "force next", Phase: e.state.Phase()}
	}
	e.timers.StopWait()
	e.bumpEpochLocked()
	e.active = timers.KindNone

	fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.PersistTimeout)
	defer cancel()
	err := e.openNextItemLocked(fetchCtx)
	return e.state.Phase(), err
}

// Reset returns an Ended auction to Idle. It is a no-op on an Idle auction.
func (e *Engine) Reset(ctx context.Context) (state.Phase, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state.Phase() {
	case state.PhaseIdle:
		return state.PhaseIdle, nil
	case state.PhaseEnded:
		e.resetLocked()
		log.Info().Str("instance", e.instanceID).Msg("auction reset")
		e.publishStatusLocked("auction reset")
		return e.state.Phase(), nil
	default:
		return e.state.Phase(), &state.InvalidTransitionError{Op: "reset", Phase: e.state.Phase()}
	}
}

// PlaceBid validates and records a bid on the current item. A bid must beat
// the high bid by at least the minimum increment and fit within the bidder's
// budget net of sales not yet debited in the store.
func (e *Engine) PlaceBid(ctx context.Context, bidderID uuid.UUID, amount int64) (*models.Bid, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	phase := e.state.Phase()
	if phase != state.PhaseBidding {
		e.metrics.RecordBid(false, "invalid_phase")
		return nil, &state.InvalidTransitionError{Op: "place bid", Phase: phase}
	}
	item := e.state.CurrentItem()
	if item == nil {
		return nil, e.rejectLocked(ReasonNoActiveItem, "")
	}
	if amount <= 0 {
		return nil, e.rejectLocked(ReasonNonPositiveAmount, fmt.Sprintf("amount %d", amount))
	}
	minimum := e.state.HighBid() + e.cfg.MinBidIncrement
	if amount < minimum {
		return nil, e.rejectLocked(ReasonBelowMinimumIncrement, fmt.Sprintf("minimum is %d", minimum))
	}

	lookupCtx, cancel := context.WithTimeout(ctx, e.cfg.PersistTimeout)
	defer cancel()
	bidder, budget, err := e.ledger.effectiveBudget(lookupCtx, e.store, bidderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, e.rejectLocked(ReasonUnknownBidder, bidderID.String())
		}
		log.Warn().
			Err(persistenceError(opGetBidder, err)).
			Str("bidder_id", bidderID.String()).
			Msg("budget lookup failed, rejecting bid")
		e.metrics.RecordPersistenceFailure(opGetBidder)
		return nil, e.rejectLocked(ReasonInsufficientBudget, "budget unavailable")
	}
	if amount > budget {
		return nil, e.rejectLocked(ReasonInsufficientBudget, fmt.Sprintf("available budget is %d", budget))
	}

	bid, err := e.state.AcceptBid(bidder, amount, e.clock.Now())
	if err != nil {
		if errors.Is(err, state.ErrBidNotHigher) {
			return nil, e.rejectLocked(ReasonBelowMinimumIncrement, fmt.Sprintf("minimum is %d", minimum))
		}
		return nil, err
	}
	e.persist.enqueue(opRecordBid, func(ctx context.Context) error {
		return e.store.RecordBid(ctx, bid)
	})

	restarted := false
	if e.timers.BidRemaining() < e.cfg.ExtensionThreshold {
		e.timers.StopBid()
		if err := e.startBidTimerLocked(); err != nil {
			return &bid, err
		}
		restarted = true
		e.metrics.RecordTimerRestart()
	}
	e.metrics.RecordBid(true, "")

	remaining := e.timers.BidRemaining()
	log.Info().
		Str("item_id", item.ID.String()).
		Str("bidder_id", bidder.ID.String()).
		Int64("amount", amount).
		Bool("timer_restarted", restarted).
		Msg("bid accepted")

	e.publishLocked(events.EventTypeBidAccepted, events.BidAcceptedPayload{
		BidID:            bid.ID.String(),
		Item:             item.Summary(),
		Bidder:           bidder.Summary(),
		Amount:           amount,
		TimeRemainingSec: secondsLeft(remaining),
		TimerRestarted:   restarted,
		PlacedAt:         bid.PlacedAt,
	})
	e.publishStatusLocked("bid accepted")
	return &bid, nil
}

// GetItem looks up an item in the store
func (e *Engine) GetItem(ctx context.Context, id uuid.UUID) (*models.Item, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.PersistTimeout)
	defer cancel()
	return e.store.GetItem(ctx, id)
}

// Status returns the current snapshot with the active timer's remaining time.
// While paused, the timer is the one that was running and the time is frozen.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statusLocked()
}

// StatusEvent builds a status event for the current state without publishing
// it, for observers that connect mid-auction
func (e *Engine) StatusEvent() events.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return events.New(events.EventTypeStatus, e.clock.Now(), e.statusPayloadLocked(""))
}

// PendingDebit reports sales won by the bidder not yet debited in the store
func (e *Engine) PendingDebit(bidderID uuid.UUID) int64 {
	return e.ledger.pendingFor(bidderID)
}

// FlushPersistence blocks until every write queued so far has been attempted
func (e *Engine) FlushPersistence(ctx context.Context) error {
	return e.persist.flush(ctx)
}

// Close stops both timers and drains queued writes. The engine must not be
// used afterwards.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	e.timers.StopAll()
	e.bumpEpochLocked()
	e.active = timers.KindNone
	e.mu.Unlock()

	log.Info().Str("instance", e.instanceID).Msg("auction engine closing")
	return e.persist.close(ctx)
}

func (e *Engine) statusLocked() Status {
	st := Status{Snapshot: e.state.Snapshot()}
	kind := timers.KindNone
	switch st.Phase {
	case state.PhaseBidding:
		kind = timers.KindBid
	case state.PhaseWaiting:
		kind = timers.KindWait
	case state.PhasePaused:
		if st.PausedFrom == state.PhaseBidding {
			kind = timers.KindBid
		} else {
			kind = timers.KindWait
		}
	}
	st.ActiveTimer = kind
	st.TimeRemaining = e.timers.Remaining(kind)
	return st
}

func (e *Engine) rejectLocked(reason Reason, detail string) error {
	e.metrics.RecordBid(false, string(reason))
	log.Debug().Str("reason", string(reason)).Str("detail", detail).Msg("bid rejected")
	return &ValidationError{Reason: reason, Detail: detail, Phase: e.state.Phase()}
}

func (e *Engine) resetLocked() {
	e.timers.StopAll()
	e.bumpEpochLocked()
	e.active = timers.KindNone
	// Reset on Ended cannot fail
	_ = e.state.Reset()
}

func (e *Engine) bumpEpochLocked() uint64 {
	e.epoch++
	return e.epoch
}

func (e *Engine) timerViolationLocked(detail string) error {
	e.metrics.RecordTimerViolation()
	err := fmt.Errorf("%w: %s", ErrTimerInvariantViolation, detail)
	log.Error().
		Err(err).
		Str("instance", e.instanceID).
		Str("phase", string(e.state.Phase())).
		Msg("timer invariant violated")
	return err
}
