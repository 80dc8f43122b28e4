package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/gavel/go/internal/auction/events"
	"github.com/mcdev12/gavel/go/internal/auction/state"
	"github.com/mcdev12/gavel/go/internal/auction/store"
	"github.com/mcdev12/gavel/go/internal/auction/store/memory"
	"github.com/mcdev12/gavel/go/internal/auction/timers"
	"github.com/mcdev12/gavel/go/internal/models"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) ofType(eventType events.EventType) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, ev := range r.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

// types returns the event types in order, leaving out timer ticks
func (r *recorder) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.EventType
	for _, ev := range r.events {
		if ev.Type != events.EventTypeTimerTick {
			out = append(out, ev.Type)
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

type harness struct {
	t       *testing.T
	ctx     context.Context
	clock   *clockwork.FakeClock
	store   *memory.Store
	rec     *recorder
	engine  *Engine
	items   []models.Item
	bidders []models.Bidder
}

func testConfig() Config {
	return Config{
		BidDuration:        30 * time.Second,
		WaitDuration:       10 * time.Second,
		MinBidIncrement:    10,
		ExtensionThreshold: 15 * time.Second,
		PersistTimeout:     time.Second,
	}
}

func newHarness(t *testing.T, itemCount int) *harness {
	t.Helper()
	return newHarnessWith(t, itemCount, testConfig(), nil)
}

// newHarnessWith lets a test change the rules or wrap the memory store
func newHarnessWith(t *testing.T, itemCount int, cfg Config, wrap func(*memory.Store) store.Store) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		ctx:   context.Background(),
		clock: clockwork.NewFakeClock(),
		rec:   &recorder{},
	}
	for i := 0; i < itemCount; i++ {
		h.items = append(h.items, models.Item{ID: uuid.New(), Name: "item", BasePrice: 100})
	}
	h.bidders = []models.Bidder{
		{ID: uuid.New(), Name: "X", Budget: 1000},
		{ID: uuid.New(), Name: "Y", Budget: 1000},
	}
	h.store = memory.New(h.items, h.bidders)

	var st store.Store = h.store
	if wrap != nil {
		st = wrap(h.store)
	}
	e, err := New(st, h.rec, cfg, WithClock(h.clock))
	assert.NoError(t, err)
	h.engine = e
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = e.Close(ctx)
	})
	return h
}

func (h *harness) waitFor(desc string, cond func() bool) {
	h.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			h.t.Fatalf("timed out waiting for %s", desc)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (h *harness) waitPhase(phase state.Phase) {
	h.t.Helper()
	h.waitFor("phase "+string(phase), func() bool {
		return h.engine.Status().Phase == phase
	})
}

func (h *harness) flush() {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(h.ctx, 2*time.Second)
	defer cancel()
	assert.NoError(h.t, h.engine.FlushPersistence(ctx))
}

// openBidding starts the auction and lets the wait run out on the first item
func (h *harness) openBidding() {
	h.t.Helper()
	_, err := h.engine.Start(h.ctx)
	assert.NoError(h.t, err)
	h.clock.Advance(10 * time.Second)
	h.waitPhase(state.PhaseBidding)
}

func validationReason(t *testing.T, err error) Reason {
	t.Helper()
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
	return verr.Reason
}

func TestStartBeginsWaitTimer(t *testing.T) {
	h := newHarness(t, 2)

	phase, err := h.engine.Start(h.ctx)
	assert.NoError(t, err)
	check.Equal(t, state.PhaseWaiting, phase)

	st := h.engine.Status()
	check.Equal(t, timers.KindWait, st.ActiveTimer)
	check.Equal(t, 10*time.Second, st.TimeRemaining)
	check.Equal(t, []events.EventType{events.EventTypeStatus}, h.rec.types())

	_, err = h.engine.Start(h.ctx)
	check.True(t, errors.Is(err, state.ErrInvalidTransition))
}

func TestWaitExpiryOpensFirstItem(t *testing.T) {
	h := newHarness(t, 2)
	h.openBidding()

	st := h.engine.Status()
	assert.NotNil(t, st.CurrentItem)
	check.Equal(t, h.items[0].ID, st.CurrentItem.ID)
	check.Equal(t, int64(100), st.HighBid)
	check.Nil(t, st.HighBidder)
	check.Equal(t, timers.KindBid, st.ActiveTimer)
	check.Equal(t, 30*time.Second, st.TimeRemaining)
	check.Equal(t, 1, st.Round)
}

func TestPlaceBidAccepted(t *testing.T) {
	h := newHarness(t, 2)
	h.openBidding()
	h.rec.reset()
	x := h.bidders[0]

	bid, err := h.engine.PlaceBid(h.ctx, x.ID, 110)
	assert.NoError(t, err)
	check.Equal(t, int64(110), bid.Amount)
	check.Equal(t, h.items[0].ID, bid.ItemID)

	st := h.engine.Status()
	check.Equal(t, int64(110), st.HighBid)
	check.Equal(t, x.ID, st.HighBidder.ID)

	accepted := h.rec.ofType(events.EventTypeBidAccepted)
	assert.Equal(t, 1, len(accepted))
	payload := accepted[0].Payload.(events.BidAcceptedPayload)
	check.Equal(t, int64(110), payload.Amount)
	check.Equal(t, x.ID, payload.Bidder.ID)
	check.Equal(t, []events.EventType{events.EventTypeBidAccepted, events.EventTypeStatus}, h.rec.types())

	// the high bidder may raise their own bid
	_, err = h.engine.PlaceBid(h.ctx, x.ID, 120)
	assert.NoError(t, err)

	h.flush()
	check.Equal(t, 2, len(h.store.Bids()))
}

func TestPlaceBidRejections(t *testing.T) {
	h := newHarness(t, 2)
	h.openBidding()
	x, y := h.bidders[0], h.bidders[1]
	_, err := h.engine.PlaceBid(h.ctx, x.ID, 200)
	assert.NoError(t, err)
	h.rec.reset()

	tests := []struct {
		name     string
		bidderID uuid.UUID
		amount   int64
		reason   Reason
	}{
		{"equal to high bid", y.ID, 200, ReasonBelowMinimumIncrement},
		{"below increment", y.ID, 209, ReasonBelowMinimumIncrement},
		{"zero amount", y.ID, 0, ReasonNonPositiveAmount},
		{"negative amount", y.ID, -50, ReasonNonPositiveAmount},
		{"unknown bidder", uuid.New(), 300, ReasonUnknownBidder},
		{"over budget", y.ID, 1001, ReasonInsufficientBudget},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bid, err := h.engine.PlaceBid(h.ctx, tt.bidderID, tt.amount)
			check.Nil(t, bid)
			check.True(t, errors.Is(err, ErrValidation))
			check.Equal(t, tt.reason, validationReason(t, err))

			st := h.engine.Status()
			check.Equal(t, int64(200), st.HighBid)
			check.Equal(t, x.ID, st.HighBidder.ID)
		})
	}
	check.Equal(t, 0, len(h.rec.types()))
}

func TestPlaceBidOutsideBidding(t *testing.T) {
	h := newHarness(t, 1)

	_, err := h.engine.PlaceBid(h.ctx, h.bidders[0].ID, 500)
	var invalidErr *state.InvalidTransitionError
	assert.True(t, errors.As(err, &invalidErr))
	check.Equal(t, state.PhaseIdle, invalidErr.Phase)

	_, err = h.engine.Start(h.ctx)
	assert.NoError(t, err)
	_, err = h.engine.PlaceBid(h.ctx, h.bidders[0].ID, 500)
	check.True(t, errors.Is(err, state.ErrInvalidTransition))
}

func TestBidExpirySellsToHighBidder(t *testing.T) {
	h := newHarness(t, 2)
	h.openBidding()
	x := h.bidders[0]
	_, err := h.engine.PlaceBid(h.ctx, x.ID, 400)
	assert.NoError(t, err)
	h.rec.reset()

	// bid placed with the full window left, so no restart
	h.clock.Advance(30 * time.Second)
	h.waitPhase(state.PhaseWaiting)

	st := h.engine.Status()
	check.Equal(t, 1, st.SoldCount)
	check.Nil(t, st.CurrentItem)
	check.Equal(t, timers.KindWait, st.ActiveTimer)

	resolved := h.rec.ofType(events.EventTypeItemResolved)
	assert.Equal(t, 1, len(resolved))
	payload := resolved[0].Payload.(events.ItemResolvedPayload)
	check.Equal(t, models.OutcomeSold, payload.Outcome)
	check.True(t, payload.AutoFinalized)
	check.Equal(t, int64(400), *payload.Amount)
	check.Equal(t, []events.EventType{events.EventTypeItemResolved, events.EventTypeStatus}, h.rec.types())

	h.flush()
	check.Equal(t, 1, h.store.Calls(memory.OpResolveSale))
	bidder, err := h.store.GetBidder(h.ctx, x.ID)
	assert.NoError(t, err)
	check.Equal(t, int64(600), bidder.Budget)
	check.Equal(t, int64(0), h.engine.PendingDebit(x.ID))
	other, err := h.store.GetBidder(h.ctx, h.bidders[1].ID)
	assert.NoError(t, err)
	check.Equal(t, int64(1000), other.Budget)

	item, err := h.store.GetItem(h.ctx, h.items[0].ID)
	assert.NoError(t, err)
	check.Equal(t, models.ItemStatusSold, item.Status)
}

func TestBidExpiryWithoutBidsIsUnsold(t *testing.T) {
	h := newHarness(t, 2)
	h.openBidding()

	h.clock.Advance(30 * time.Second)
	h.waitPhase(state.PhaseWaiting)
	check.Equal(t, 1, h.engine.Status().UnsoldCount)

	h.flush()
	check.Equal(t, 1, h.store.Calls(memory.OpResolveUnsold))
	check.Equal(t, 0, h.store.Calls(memory.OpResolveSale))
}

func TestPauseFreezesBidTimer(t *testing.T) {
	h := newHarness(t, 2)
	h.openBidding()

	h.clock.Advance(18 * time.Second)
	check.Equal(t, 12*time.Second, h.engine.Status().TimeRemaining)

	phase, err := h.engine.Pause(h.ctx, "review")
	assert.NoError(t, err)
	check.Equal(t, state.PhasePaused, phase)

	h.clock.Advance(3 * time.Second)
	st := h.engine.Status()
	check.Equal(t, state.PhaseBidding, st.PausedFrom)
	check.Equal(t, timers.KindBid, st.ActiveTimer)
	check.Equal(t, 12*time.Second, st.TimeRemaining)

	phase, err = h.engine.Resume(h.ctx)
	assert.NoError(t, err)
	check.Equal(t, state.PhaseBidding, phase)
	check.Equal(t, 12*time.Second, h.engine.Status().TimeRemaining)

	h.clock.Advance(12 * time.Second)
	h.waitPhase(state.PhaseWaiting)
	check.Equal(t, 1, h.engine.Status().UnsoldCount)
}

func TestPauseDuringWaitResumesRemaining(t *testing.T) {
	h := newHarness(t, 2)
	_, err := h.engine.Start(h.ctx)
	assert.NoError(t, err)

	h.clock.Advance(4 * time.Second)
	_, err = h.engine.Pause(h.ctx, "")
	assert.NoError(t, err)

	_, err = h.engine.Pause(h.ctx, "again")
	check.True(t, errors.Is(err, state.ErrInvalidTransition))

	h.clock.Advance(time.Minute)
	check.Equal(t, state.PhasePaused, h.engine.Status().Phase)

	phase, err := h.engine.Resume(h.ctx)
	assert.NoError(t, err)
	check.Equal(t, state.PhaseWaiting, phase)
	check.Equal(t, 6*time.Second, h.engine.Status().TimeRemaining)

	h.clock.Advance(6 * time.Second)
	h.waitPhase(state.PhaseBidding)
}

func TestResumeWhenNotPaused(t *testing.T) {
	h := newHarness(t, 1)
	_, err := h.engine.Resume(h.ctx)
	check.True(t, errors.Is(err, state.ErrInvalidTransition))
}

func TestLateBidRestartsBidTimer(t *testing.T) {
	h := newHarness(t, 2)
	h.openBidding()
	x := h.bidders[0]

	h.clock.Advance(10 * time.Second)
	_, err := h.engine.PlaceBid(h.ctx, x.ID, 110)
	assert.NoError(t, err)
	check.Equal(t, 20*time.Second, h.engine.Status().TimeRemaining)

	h.clock.Advance(10 * time.Second)
	_, err = h.engine.PlaceBid(h.ctx, x.ID, 120)
	assert.NoError(t, err)
	check.Equal(t, 30*time.Second, h.engine.Status().TimeRemaining)

	accepted := h.rec.ofType(events.EventTypeBidAccepted)
	assert.Equal(t, 2, len(accepted))
	check.False(t, accepted[0].Payload.(events.BidAcceptedPayload).TimerRestarted)
	check.True(t, accepted[1].Payload.(events.BidAcceptedPayload).TimerRestarted)

	// the original deadline no longer resolves the item
	h.clock.Advance(10 * time.Second)
	time.Sleep(20 * time.Millisecond)
	check.Equal(t, state.PhaseBidding, h.engine.Status().Phase)

	h.clock.Advance(20 * time.Second)
	h.waitPhase(state.PhaseWaiting)
	check.Equal(t, 1, h.engine.Status().SoldCount)
}

func TestForceResolveAndSkip(t *testing.T) {
	h := newHarness(t, 3)
	x := h.bidders[0]

	_, err := h.engine.ForceResolve(h.ctx)
	check.True(t, errors.Is(err, state.ErrInvalidTransition))

	h.openBidding()
	_, err = h.engine.PlaceBid(h.ctx, x.ID, 150)
	assert.NoError(t, err)

	phase, err := h.engine.ForceResolve(h.ctx)
	assert.NoError(t, err)
	check.Equal(t, state.PhaseWaiting, phase)

	// resolving again is rejected and changes nothing
	_, err = h.engine.ForceResolve(h.ctx)
	check.True(t, errors.Is(err, state.ErrInvalidTransition))
	check.Equal(t, 1, h.engine.Status().SoldCount)

	resolved := h.rec.ofType(events.EventTypeItemResolved)
	assert.Equal(t, 1, len(resolved))
	check.False(t, resolved[0].Payload.(events.ItemResolvedPayload).AutoFinalized)

	_, err = h.engine.SkipCurrentItem(h.ctx)
	check.True(t, errors.Is(err, state.ErrInvalidTransition))

	_, err = h.engine.ForceNext(h.ctx)
	assert.NoError(t, err)
	_, err = h.engine.PlaceBid(h.ctx, x.ID, 150)
	assert.NoError(t, err)

	phase, err = h.engine.SkipCurrentItem(h.ctx)
	assert.NoError(t, err)
	check.Equal(t, state.PhaseWaiting, phase)

	st := h.engine.Status()
	check.Equal(t, 1, st.SoldCount)
	check.Equal(t, 1, st.UnsoldCount)

	h.flush()
	check.Equal(t, 1, h.store.Calls(memory.OpResolveSale))
	check.Equal(t, 1, h.store.Calls(memory.OpResolveUnsold))
	check.Equal(t, int64(0), h.engine.PendingDebit(x.ID))
}

func TestForceNextSkipsWait(t *testing.T) {
	h := newHarness(t, 2)

	_, err := h.engine.ForceNext(h.ctx)
	check.True(t, errors.Is(err, state.ErrInvalidTransition))

	_, err = h.engine.Start(h.ctx)
	assert.NoError(t, err)
	phase, err := h.engine.ForceNext(h.ctx)
	assert.NoError(t, err)
	check.Equal(t, state.PhaseBidding, phase)
	check.Equal(t, h.items[0].ID, h.engine.Status().CurrentItem.ID)

	// the cancelled wait deadline passes without opening another item
	h.clock.Advance(10 * time.Second)
	time.Sleep(20 * time.Millisecond)
	st := h.engine.Status()
	check.Equal(t, state.PhaseBidding, st.Phase)
	check.Equal(t, 1, st.Round)
	check.Equal(t, 20*time.Second, st.TimeRemaining)
}

func TestExhaustedItemsEndAuction(t *testing.T) {
	h := newHarness(t, 1)
	h.openBidding()

	_, err := h.engine.ForceResolve(h.ctx)
	assert.NoError(t, err)
	h.rec.reset()

	h.clock.Advance(10 * time.Second)
	h.waitPhase(state.PhaseEnded)

	ended := h.rec.ofType(events.EventTypeAuctionEnded)
	assert.Equal(t, 1, len(ended))
	payload := ended[0].Payload.(events.AuctionEndedPayload)
	check.Equal(t, "no items remaining", payload.Reason)
	check.Equal(t, 1, payload.Summary.ItemsUnsold)
	check.Equal(t, []events.EventType{events.EventTypeAuctionEnded, events.EventTypeStatus}, h.rec.types())

	h.flush()
	check.Equal(t, 1, len(h.store.Summaries()))
}

func TestEndReleasesCurrentItem(t *testing.T) {
	h := newHarness(t, 2)
	h.openBidding()
	_, err := h.engine.PlaceBid(h.ctx, h.bidders[0].ID, 300)
	assert.NoError(t, err)
	_, err = h.engine.Pause(h.ctx, "")
	assert.NoError(t, err)

	phase, err := h.engine.End(h.ctx, "operator stopped")
	assert.NoError(t, err)
	check.Equal(t, state.PhaseEnded, phase)

	st := h.engine.Status()
	check.Nil(t, st.CurrentItem)
	check.Equal(t, 0, st.SoldCount)
	check.Equal(t, timers.KindNone, st.ActiveTimer)

	h.flush()
	item, err := h.store.GetItem(h.ctx, h.items[0].ID)
	assert.NoError(t, err)
	check.Equal(t, models.ItemStatusAvailable, item.Status)
	summaries := h.store.Summaries()
	assert.Equal(t, 1, len(summaries))
	check.Equal(t, "operator stopped", summaries[0].Reason)

	_, err = h.engine.End(h.ctx, "again")
	check.True(t, errors.Is(err, state.ErrInvalidTransition))

	// timers stay silent after the end
	h.clock.Advance(time.Minute)
	time.Sleep(20 * time.Millisecond)
	check.Equal(t, state.PhaseEnded, h.engine.Status().Phase)
}

func TestResetAndRestart(t *testing.T) {
	h := newHarness(t, 2)

	phase, err := h.engine.Reset(h.ctx)
	assert.NoError(t, err)
	check.Equal(t, state.PhaseIdle, phase)
	check.Equal(t, 0, len(h.rec.types()))

	_, err = h.engine.Start(h.ctx)
	assert.NoError(t, err)
	_, err = h.engine.Reset(h.ctx)
	check.True(t, errors.Is(err, state.ErrInvalidTransition))

	_, err = h.engine.End(h.ctx, "")
	assert.NoError(t, err)
	phase, err = h.engine.Reset(h.ctx)
	assert.NoError(t, err)
	check.Equal(t, state.PhaseIdle, phase)

	// starting an ended auction resets it first
	_, err = h.engine.Start(h.ctx)
	assert.NoError(t, err)
	_, err = h.engine.ForceNext(h.ctx)
	assert.NoError(t, err)
	_, err = h.engine.End(h.ctx, "")
	assert.NoError(t, err)
	phase, err = h.engine.Start(h.ctx)
	assert.NoError(t, err)
	check.Equal(t, state.PhaseWaiting, phase)
	check.Equal(t, 0, h.engine.Status().Round)
}

func TestPersistenceFailureDoesNotBlockBids(t *testing.T) {
	h := newHarness(t, 2)
	h.openBidding()
	h.store.Fail(memory.OpRecordBid, errors.New("disk full"))

	_, err := h.engine.PlaceBid(h.ctx, h.bidders[0].ID, 110)
	assert.NoError(t, err)
	_, err = h.engine.PlaceBid(h.ctx, h.bidders[1].ID, 120)
	assert.NoError(t, err)
	check.Equal(t, int64(120), h.engine.Status().HighBid)

	h.flush()
	check.Equal(t, 2, h.store.Calls(memory.OpRecordBid))
	check.Equal(t, 0, len(h.store.Bids()))
}

func TestFailedDebitStaysPending(t *testing.T) {
	h := newHarness(t, 2)
	x := h.bidders[0]
	h.openBidding()

	_, err := h.engine.PlaceBid(h.ctx, x.ID, 900)
	assert.NoError(t, err)
	h.store.Fail(memory.OpAdjustBudget, errors.New("connection reset"))
	_, err = h.engine.ForceResolve(h.ctx)
	assert.NoError(t, err)
	h.flush()

	check.Equal(t, int64(900), h.engine.PendingDebit(x.ID))
	stored, err := h.store.GetBidder(h.ctx, x.ID)
	assert.NoError(t, err)
	check.Equal(t, int64(1000), stored.Budget)

	_, err = h.engine.ForceNext(h.ctx)
	assert.NoError(t, err)
	_, err = h.engine.PlaceBid(h.ctx, x.ID, 200)
	check.Equal(t, ReasonInsufficientBudget, validationReason(t, err))
	_, err = h.engine.PlaceBid(h.ctx, x.ID, 110)
	check.Equal(t, ReasonInsufficientBudget, validationReason(t, err))
}

func TestBudgetLookupFailureRejectsBid(t *testing.T) {
	h := newHarness(t, 1)
	h.openBidding()
	h.store.Fail(memory.OpGetBidder, errors.New("timeout"))

	_, err := h.engine.PlaceBid(h.ctx, h.bidders[0].ID, 110)
	check.Equal(t, ReasonInsufficientBudget, validationReason(t, err))
	check.Nil(t, h.engine.Status().HighBidder)
}

func TestFetchFailureRetriesAfterWait(t *testing.T) {
	h := newHarness(t, 1)
	h.store.Fail(memory.OpFetchNextItem, errors.New("db down"))
	_, err := h.engine.Start(h.ctx)
	assert.NoError(t, err)

	h.clock.Advance(10 * time.Second)
	h.waitFor("first fetch", func() bool { return h.store.Calls(memory.OpFetchNextItem) == 1 })
	st := h.engine.Status()
	check.Equal(t, state.PhaseWaiting, st.Phase)
	check.Equal(t, 10*time.Second, st.TimeRemaining)

	h.store.Fail(memory.OpFetchNextItem, nil)
	h.clock.Advance(10 * time.Second)
	h.waitPhase(state.PhaseBidding)
	check.Equal(t, h.items[0].ID, h.engine.Status().CurrentItem.ID)
}

func TestStaleExpiryIsIgnored(t *testing.T) {
	h := newHarness(t, 2)
	_, err := h.engine.Start(h.ctx)
	assert.NoError(t, err)

	h.engine.handleWaitExpired(0)
	h.engine.handleBidExpired(0)

	st := h.engine.Status()
	check.Equal(t, state.PhaseWaiting, st.Phase)
	check.Equal(t, 0, h.store.Calls(memory.OpFetchNextItem))
}

func TestTimerTicksArePublished(t *testing.T) {
	h := newHarness(t, 1)
	_, err := h.engine.Start(h.ctx)
	assert.NoError(t, err)

	h.clock.Advance(time.Second)
	h.waitFor("tick", func() bool { return len(h.rec.ofType(events.EventTypeTimerTick)) > 0 })

	tick := h.rec.ofType(events.EventTypeTimerTick)[0].Payload.(events.TimerTickPayload)
	check.Equal(t, string(timers.KindWait), tick.TimerType)
	check.Equal(t, 9, tick.TimeRemainingSec)
}

func TestStatusEventDoesNotPublish(t *testing.T) {
	h := newHarness(t, 1)
	h.openBidding()
	h.rec.reset()

	ev := h.engine.StatusEvent()
	check.Equal(t, events.EventTypeStatus, ev.Type)
	payload := ev.Payload.(events.StatusPayload)
	check.Equal(t, string(state.PhaseBidding), payload.Phase)
	check.Equal(t, 30, payload.TimeRemainingSec)
	check.Equal(t, h.items[0].ID, payload.CurrentItem.ID)
	check.Equal(t, 0, len(h.rec.types()))
}

func TestConfigValidate(t *testing.T) {
	check.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.MinBidIncrement = 0
	check.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.ExtensionThreshold = time.Hour
	check.Error(t, cfg.Validate())

	_, err := New(memory.New(nil, nil), nil, cfg)
	check.Error(t, err)
}

// slowDebitStore holds every budget write until release is closed
type slowDebitStore struct {
	*memory.Store
	entered chan struct{}
	release chan struct{}
}

func (s *slowDebitStore) AdjustBudget(ctx context.Context, bidderID uuid.UUID, delta int64) error {
	select {
	case s.entered <- struct{}{}:
	default:
	}
	select {
	case <-s.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.Store.AdjustBudget(ctx, bidderID, delta)
}

// within runs fn and fails if it has not returned after d
func within(t *testing.T, d time.Duration, desc string, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("%s did not return within %s", desc, d)
	}
}

func TestSlowDebitDoesNotStallEngine(t *testing.T) {
	slow := &slowDebitStore{entered: make(chan struct{}, 1), release: make(chan struct{})}
	cfg := testConfig()
	cfg.PersistTimeout = 5 * time.Second
	h := newHarnessWith(t, 2, cfg, func(m *memory.Store) store.Store {
		slow.Store = m
		return slow
	})
	released := false
	defer func() {
		if !released {
			close(slow.release)
		}
	}()
	x, y := h.bidders[0], h.bidders[1]

	h.openBidding()
	_, err := h.engine.PlaceBid(h.ctx, x.ID, 900)
	assert.NoError(t, err)
	_, err = h.engine.ForceResolve(h.ctx)
	assert.NoError(t, err)

	select {
	case <-slow.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("budget write never started")
	}

	var (
		nextErr, yErr, xErr error
		st                  Status
	)
	within(t, 500*time.Millisecond, "ForceNext", func() { _, nextErr = h.engine.ForceNext(h.ctx) })
	within(t, 500*time.Millisecond, "Status", func() { st = h.engine.Status() })
	within(t, 500*time.Millisecond, "PlaceBid", func() { _, yErr = h.engine.PlaceBid(h.ctx, y.ID, 150) })
	within(t, 500*time.Millisecond, "PlaceBid", func() { _, xErr = h.engine.PlaceBid(h.ctx, x.ID, 200) })

	assert.NoError(t, nextErr)
	check.Equal(t, state.PhaseBidding, st.Phase)
	check.NoError(t, yErr)
	// the unwritten debit still counts against the winner
	check.Equal(t, ReasonInsufficientBudget, validationReason(t, xErr))

	close(slow.release)
	released = true
	h.flush()

	check.Equal(t, int64(0), h.engine.PendingDebit(x.ID))
	stored, err := h.store.GetBidder(h.ctx, x.ID)
	assert.NoError(t, err)
	check.Equal(t, int64(100), stored.Budget)
}

func TestConcurrentBidsRaceExpiry(t *testing.T) {
	for round := 0; round < 5; round++ {
		cfg := testConfig()
		cfg.ExtensionThreshold = 0
		h := newHarnessWith(t, 2, cfg, nil)
		h.openBidding()
		h.rec.reset()

		var (
			mu   sync.Mutex
			best int64
			wg   sync.WaitGroup
		)
		start := make(chan struct{})
		for i := 0; i < 20; i++ {
			bidderID := h.bidders[i%2].ID
			amount := int64(110 + 10*i)
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				if _, err := h.engine.PlaceBid(h.ctx, bidderID, amount); err == nil {
					mu.Lock()
					if amount > best {
						best = amount
					}
					mu.Unlock()
				}
			}()
		}
		close(start)
		h.clock.Advance(30 * time.Second)
		wg.Wait()
		h.waitPhase(state.PhaseWaiting)

		resolved := h.rec.ofType(events.EventTypeItemResolved)
		assert.Equal(t, 1, len(resolved))
		payload := resolved[0].Payload.(events.ItemResolvedPayload)
		if best == 0 {
			check.Equal(t, models.OutcomeUnsold, payload.Outcome)
			continue
		}
		check.Equal(t, models.OutcomeSold, payload.Outcome)
		assert.NotNil(t, payload.Amount)
		check.Equal(t, best, *payload.Amount)
	}
}

func TestResumeResolvesExhaustedBidWindow(t *testing.T) {
	h := newHarness(t, 2)
	h.openBidding()
	x := h.bidders[0]
	_, err := h.engine.PlaceBid(h.ctx, x.ID, 300)
	assert.NoError(t, err)
	h.rec.reset()

	// hold the engine so the expiry callback queues behind the pause
	var phase state.Phase
	func() {
		h.engine.mu.Lock()
		defer h.engine.mu.Unlock()
		h.clock.Advance(30 * time.Second)
		h.waitFor("bid countdown to fire", func() bool {
			bid, _ := h.engine.timers.Active()
			return !bid
		})
		phase, err = h.engine.pauseLocked("late call")
	}()
	assert.NoError(t, err)
	check.Equal(t, state.PhasePaused, phase)

	// the queued expiry is stale once the pause lands
	time.Sleep(20 * time.Millisecond)
	st := h.engine.Status()
	check.Equal(t, state.PhasePaused, st.Phase)
	check.Equal(t, time.Duration(0), st.TimeRemaining)
	check.Equal(t, 0, len(h.rec.ofType(events.EventTypeItemResolved)))

	phase, err = h.engine.Resume(h.ctx)
	assert.NoError(t, err)
	check.Equal(t, state.PhaseWaiting, phase)

	resolved := h.rec.ofType(events.EventTypeItemResolved)
	assert.Equal(t, 1, len(resolved))
	payload := resolved[0].Payload.(events.ItemResolvedPayload)
	check.Equal(t, models.OutcomeSold, payload.Outcome)
	check.True(t, payload.AutoFinalized)
	check.Equal(t, int64(300), *payload.Amount)

	st = h.engine.Status()
	check.Equal(t, 1, st.SoldCount)
	check.Equal(t, timers.KindWait, st.ActiveTimer)
	check.Equal(t, 10*time.Second, st.TimeRemaining)
}

func TestTimerInvariantViolations(t *testing.T) {
	h := newHarness(t, 2)
	h.openBidding()

	func() {
		h.engine.mu.Lock()
		defer h.engine.mu.Unlock()
		err := h.engine.startWaitTimerLocked()
		check.True(t, errors.Is(err, ErrTimerInvariantViolation))
	}()
	bid, wait := h.engine.timers.Active()
	check.True(t, bid)
	check.False(t, wait)

	_, err := h.engine.Pause(h.ctx, "")
	assert.NoError(t, err)
	// freeze a wait alongside the paused bid window
	h.engine.timers.StartWaitTimer(nil)
	h.engine.timers.PauseAll()

	_, err = h.engine.Resume(h.ctx)
	check.True(t, errors.Is(err, ErrTimerInvariantViolation))
	check.Equal(t, state.PhasePaused, h.engine.Status().Phase)
}

func TestTicksFromInactiveTimerAreDropped(t *testing.T) {
	h := newHarness(t, 1)
	_, err := h.engine.Start(h.ctx)
	assert.NoError(t, err)

	h.engine.handleTick(timers.KindBid, 5*time.Second)
	check.Equal(t, 0, len(h.rec.ofType(events.EventTypeTimerTick)))

	h.engine.handleTick(timers.KindWait, 5*time.Second)
	check.Equal(t, 1, len(h.rec.ofType(events.EventTypeTimerTick)))

	_, err = h.engine.Pause(h.ctx, "")
	assert.NoError(t, err)
	h.engine.handleTick(timers.KindWait, 4*time.Second)
	check.Equal(t, 1, len(h.rec.ofType(events.EventTypeTimerTick)))
}

func TestResolvedItemServedAgainKeepsOutcome(t *testing.T) {
	h := newHarness(t, 2)
	h.openBidding()
	x := h.bidders[0]
	_, err := h.engine.PlaceBid(h.ctx, x.ID, 300)
	assert.NoError(t, err)
	_, err = h.engine.ForceResolve(h.ctx)
	assert.NoError(t, err)
	h.flush()

	// the store forgets the sale and hands the item out again
	h.store.AddItem(h.items[0])
	phase, err := h.engine.ForceNext(h.ctx)
	check.True(t, errors.Is(err, state.ErrAlreadyResolved))
	check.Equal(t, state.PhaseWaiting, phase)

	h.flush()
	item, err := h.store.GetItem(h.ctx, h.items[0].ID)
	assert.NoError(t, err)
	check.Equal(t, models.ItemStatusSold, item.Status)
	assert.NotNil(t, item.OwnerID)
	check.Equal(t, x.ID, *item.OwnerID)
	check.Equal(t, 2, h.store.Calls(memory.OpResolveSale))
	bidder, err := h.store.GetBidder(h.ctx, x.ID)
	assert.NoError(t, err)
	check.Equal(t, int64(700), bidder.Budget)

	_, err = h.engine.ForceNext(h.ctx)
	assert.NoError(t, err)
	check.Equal(t, h.items[1].ID, h.engine.Status().CurrentItem.ID)
}
