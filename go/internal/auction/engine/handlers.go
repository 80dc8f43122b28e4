package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/gavel/go/internal/auction/countdown"
	"github.com/mcdev12/gavel/go/internal/auction/events"
	"github.com/mcdev12/gavel/go/internal/auction/state"
	"github.com/mcdev12/gavel/go/internal/auction/timers"
	"github.com/mcdev12/gavel/go/internal/models"
	"github.com/rs/zerolog/log"
)

// handleWaitExpired opens the next item once the wait between items runs out
func (e *Engine) handleWaitExpired(epoch uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if epoch != e.epoch {
		log.Debug().Str("instance", e.instanceID).Msg("ignoring stale wait expiry")
		return
	}
	if e.state.Phase() != state.PhaseWaiting {
		_ = e.timerViolationLocked("wait timer expired outside waiting phase")
		return
	}
	e.active = timers.KindNone

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.PersistTimeout)
	defer cancel()
	if err := e.openNextItemLocked(ctx); err != nil {
		log.Error().Err(err).Str("instance", e.instanceID).Msg("failed to open next item")
	}
}

// handleBidExpired finalizes the current item when the bid window runs out
func (e *Engine) handleBidExpired(epoch uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if epoch != e.epoch {
		log.Debug().Str("instance", e.instanceID).Msg("ignoring stale bid expiry")
		return
	}
	if e.state.Phase() != state.PhaseBidding {
		_ = e.timerViolationLocked("bid timer expired outside bidding phase")
		return
	}
	e.active = timers.KindNone

	if err := e.resolveLocked(true, false); err != nil {
		log.Error().Err(err).Str("instance", e.instanceID).Msg("failed to resolve item on bid expiry")
	}
}

// handleTick forwards countdown ticks to observers. A countdown hands over its
// tick after releasing its own lock, so a tick can arrive after the engine
// paused or stopped that timer; those are dropped.
func (e *Engine) handleTick(kind timers.Kind, remaining time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if kind != e.active {
		return
	}
	e.publisher.Publish(events.New(events.EventTypeTimerTick, e.clock.Now(), events.TimerTickPayload{
		TimerType:        string(kind),
		TimeRemainingSec: secondsLeft(remaining),
		TickedAt:         e.clock.Now(),
	}))
}

// openNextItemLocked fetches the next item and opens bidding on it. No item
// left ends the auction; a fetch failure keeps the auction waiting and retries
// after another wait.
func (e *Engine) openNextItemLocked(ctx context.Context) error {
	item, err := e.store.FetchNextItem(ctx)
	if err != nil {
		err = persistenceError(opFetchNextItem, err)
		e.metrics.RecordPersistenceFailure(opFetchNextItem)
		log.Error().Err(err).Str("instance", e.instanceID).Msg("failed to fetch next item, retrying after wait")
		if terr := e.startWaitTimerLocked(); terr != nil {
			return terr
		}
		e.publishStatusLocked("next item unavailable, retrying")
		return err
	}
	if item == nil {
		log.Info().Str("instance", e.instanceID).Msg("no items remaining")
		return e.endLocked("no items remaining")
	}

	if err := e.state.OpenItem(item); err != nil {
		if errors.Is(err, state.ErrAlreadyResolved) {
			log.Error().
				Str("item_id", item.ID.String()).
				Msg("store returned an item already resolved in this auction")
			e.restoreResolutionLocked(item.ID)
		}
		if terr := e.startWaitTimerLocked(); terr != nil {
			return terr
		}
		return err
	}
	if err := e.startBidTimerLocked(); err != nil {
		return err
	}

	log.Info().
		Str("instance", e.instanceID).
		Str("item_id", item.ID.String()).
		Str("item_name", item.Name).
		Int64("base_price", item.BasePrice).
		Int("round", e.state.Round()).
		Msg("bidding opened")
	e.publishStatusLocked("bidding opened")
	return nil
}

// restoreResolutionLocked writes the outcome already recorded for an item back
// to the store after the store handed it out again. The budget was debited the
// first time, so a sale is not debited again.
func (e *Engine) restoreResolutionLocked(itemID uuid.UUID) {
	for _, sale := range e.state.Sold() {
		if sale.ItemID != itemID {
			continue
		}
		winnerID, amount := sale.BidderID, sale.Amount
		e.persist.enqueue(opResolveSale, func(ctx context.Context) error {
			return e.store.ResolveSale(ctx, itemID, winnerID, amount)
		})
		return
	}
	e.persist.enqueue(opResolveUnsold, func(ctx context.Context) error {
		return e.store.ResolveUnsold(ctx, itemID)
	})
}

// resolveLocked finalizes the current item, queues its persistence and starts
// the wait before the next one.
func (e *Engine) resolveLocked(auto, skip bool) error {
	res, err := e.state.Resolve(auto, skip, e.clock.Now())
	if err != nil {
		return err
	}
	e.timers.StopBid()
	e.bumpEpochLocked()
	e.active = timers.KindNone

	itemID := res.Item.ID
	payload := events.ItemResolvedPayload{
		Item:          res.Item.Summary(),
		Outcome:       res.Outcome,
		AutoFinalized: res.AutoFinalized,
		Skipped:       res.Skipped,
		ResolvedAt:    e.clock.Now(),
	}

	if res.Outcome == models.OutcomeSold {
		winnerID, amount := res.Winner.ID, res.Amount
		e.ledger.debit(winnerID, amount)
		e.persist.enqueue(opResolveSale, func(ctx context.Context) error {
			return e.store.ResolveSale(ctx, itemID, winnerID, amount)
		})
		e.persist.enqueue(opAdjustBudget, func(ctx context.Context) error {
			return e.ledger.apply(ctx, e.store, winnerID, amount)
		})
		payload.Winner = res.Winner.Summary()
		payload.Amount = &amount

		log.Info().
			Str("item_id", itemID.String()).
			Str("winner_id", winnerID.String()).
			Int64("amount", amount).
			Bool("auto_finalized", auto).
			Msg("item sold")
	} else {
		e.persist.enqueue(opResolveUnsold, func(ctx context.Context) error {
			return e.store.ResolveUnsold(ctx, itemID)
		})
		log.Info().
			Str("item_id", itemID.String()).
			Bool("skipped", skip).
			Bool("auto_finalized", auto).
			Msg("item unsold")
	}
	e.metrics.RecordResolution(string(res.Outcome), auto)

	e.publishLocked(events.EventTypeItemResolved, payload)
	if err := e.startWaitTimerLocked(); err != nil {
		return err
	}
	e.publishStatusLocked("item resolved")
	return nil
}

// endLocked moves the auction to Ended, releasing any item on the block and
// persisting the summary
func (e *Engine) endLocked(reason string) error {
	released, err := e.state.End(reason, e.clock.Now())
	if err != nil {
		return err
	}
	e.timers.StopAll()
	e.bumpEpochLocked()
	e.active = timers.KindNone

	if released != nil {
		itemID := released.ID
		e.persist.enqueue(opReleaseItem, func(ctx context.Context) error {
			return e.store.ReleaseItem(ctx, itemID)
		})
		log.Info().Str("item_id", itemID.String()).Msg("releasing unresolved item")
	}

	summary := e.state.Summary()
	summary.ID = uuid.New()
	e.persist.enqueue(opSaveSummary, func(ctx context.Context) error {
		return e.store.SaveSummary(ctx, summary)
	})

	log.Info().
		Str("instance", e.instanceID).
		Str("reason", reason).
		Int("items_sold", summary.ItemsSold).
		Int("items_unsold", summary.ItemsUnsold).
		Int64("total_amount", summary.TotalAmount).
		Msg("auction ended")

	e.publishLocked(events.EventTypeAuctionEnded, events.AuctionEndedPayload{
		Summary: summary,
		Reason:  reason,
	})
	e.publishStatusLocked("auction ended")
	return nil
}

func (e *Engine) startWaitTimerLocked() error {
	if bid, _ := e.timers.Active(); bid {
		return e.timerViolationLocked("wait timer started while bid timer running")
	}
	epoch := e.bumpEpochLocked()
	e.timers.StartWaitTimer(func() { e.handleWaitExpired(epoch) })
	e.active = timers.KindWait
	return nil
}

func (e *Engine) startBidTimerLocked() error {
	if _, wait := e.timers.Active(); wait {
		return e.timerViolationLocked("bid timer started while wait timer running")
	}
	epoch := e.bumpEpochLocked()
	e.timers.StartBidTimer(func() { e.handleBidExpired(epoch) })
	e.active = timers.KindBid
	return nil
}

func (e *Engine) publishLocked(eventType events.EventType, payload any) {
	e.publisher.Publish(events.New(eventType, e.clock.Now(), payload))
}

func (e *Engine) publishStatusLocked(reason string) {
	e.metrics.RecordPhase(string(e.state.Phase()))
	e.publishLocked(events.EventTypeStatus, e.statusPayloadLocked(reason))
}

func (e *Engine) statusPayloadLocked(reason string) events.StatusPayload {
	st := e.statusLocked()
	payload := events.StatusPayload{
		Phase:            string(st.Phase),
		PausedFrom:       string(st.PausedFrom),
		HighBid:          st.HighBid,
		ActiveTimer:      string(st.ActiveTimer),
		TimeRemainingSec: secondsLeft(st.TimeRemaining),
		Round:            st.Round,
		Reason:           reason,
	}
	if st.CurrentItem != nil {
		payload.CurrentItem = st.CurrentItem.Summary()
	}
	if st.HighBidder != nil {
		payload.HighBidder = st.HighBidder.Summary()
	}
	if st.Phase == state.PhasePaused && st.PauseReason != "" && reason != "" {
		payload.Reason = reason + ": " + st.PauseReason
	}
	return payload
}

func secondsLeft(d time.Duration) int {
	return countdown.Seconds(d)
}
