// Package state holds the authoritative record of a running auction and the
// transitions allowed between its phases. AuctionState is not safe for
// concurrent use; the engine serializes every call.
package state

import (
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/gavel/go/internal/models"
)

// Phase is the lifecycle phase of the auction
type Phase string

const (
	PhaseIdle    Phase = "IDLE"
	PhaseWaiting Phase = "WAITING"
	PhaseBidding Phase = "BIDDING"
	PhasePaused  Phase = "PAUSED"
	PhaseEnded   Phase = "ENDED"
)

// Running reports whether the phase has an active timer
func (p Phase) Running() bool {
	return p == PhaseWaiting || p == PhaseBidding
}

// Unsold is a single entry in the unsold record.
type Unsold struct {
	ItemID        uuid.UUID `json:"item_id"`
	ItemName      string    `json:"item_name"`
	Skipped       bool      `json:"skipped"`
	AutoFinalized bool      `json:"auto_finalized"`
	ResolvedAt    time.Time `json:"resolved_at"`
}

// Resolution describes how the current item left the block
type Resolution struct {
	Item          models.Item
	Outcome       models.Outcome
	Winner        *models.Bidder
	Amount        int64
	AutoFinalized bool
	Skipped       bool
}

// Snapshot is a copy of the state safe to hand outside the engine
type Snapshot struct {
	Phase       Phase
	PausedFrom  Phase
	PauseReason string
	CurrentItem *models.Item
	HighBid     int64
	HighBidder  *models.Bidder
	BidCount    int
	Round       int
	SoldCount   int
	UnsoldCount int
	EndReason   string
}

type AuctionState struct {
	phase       Phase
	pausedFrom  Phase
	pauseReason string

	currentItem *models.Item
	highBid     int64
	highBidder  *models.Bidder
	bids        []models.Bid

	sold     []models.Sale
	unsold   []Unsold
	resolved map[uuid.UUID]models.Outcome

	round     int
	endReason string
	endedAt   time.Time
}

// New returns an Idle auction
func New() *AuctionState {
	return &AuctionState{
		phase:    PhaseIdle,
		resolved: make(map[uuid.UUID]models.Outcome),
	}
}

func (s *AuctionState) Phase() Phase { return s.phase }
func (s *AuctionState) PausedFrom() Phase { return s.pausedFrom }
func (s *AuctionState) CurrentItem() *models.Item { return s.currentItem }
func (s *AuctionState) HighBid() int64 { return s.highBid }
func (s *AuctionState) HighBidder() *models.Bidder { return s.highBidder }
func (s *AuctionState) Round() int { return s.round }
func (s *AuctionState) Bids() []models.Bid { return append([]models.Bid(nil), s.bids...) }
func (s *AuctionState) Sold() []models.Sale { return append([]models.Sale(nil), s.sold...) }
func (s *AuctionState) Unsold() []Unsold { return append([]Unsold(nil), s.unsold...) }

// IsResolved reports whether the item is already in the sold or unsold record
func (s *AuctionState) IsResolved(itemID uuid.UUID) bool {
	_, ok := s.resolved[itemID]
	return ok
}

// Start moves Idle to Waiting and clears the tallies
func (s *AuctionState) Start() error {
	if s.phase != PhaseIdle {
		return invalid("start", s.phase)
	}
	s.clear()
	s.phase = PhaseWaiting
	return nil
}

// OpenItem puts an item on the block: Waiting to Bidding with the high bid
// seeded at the base price and no high bidder.
func (s *AuctionState) OpenItem(item *models.Item) error {
	if s.phase != PhaseWaiting {
		return invalid("open item", s.phase)
	}
	if s.IsResolved(item.ID) {
		return ErrAlreadyResolved
	}
	opened := *item
	opened.Status = models.ItemStatusInAuction
	s.currentItem = &opened
	s.highBid = item.BasePrice
	s.highBidder = nil
	s.bids = nil
	s.round++
	s.phase = PhaseBidding
	return nil
}

// AcceptBid records a bid the engine has already validated. The high bid only
// ever moves up.
func (s *AuctionState) AcceptBid(bidder *models.Bidder, amount int64, at time.Time) (models.Bid, error) {
	if s.phase != PhaseBidding {
		return models.Bid{}, invalid("place bid", s.phase)
	}
	if s.currentItem == nil {
		return models.Bid{}, ErrNoCurrentItem
	}
	if amount <= s.highBid {
		return models.Bid{}, ErrBidNotHigher
	}

	bid := models.Bid{
		ID:       uuid.New(),
		ItemID:   s.currentItem.ID,
		BidderID: bidder.ID,
		Amount:   amount,
		PlacedAt: at,
	}
	b := *bidder
	s.highBid = amount
	s.highBidder = &b
	s.bids = append(s.bids, bid)
	return bid, nil
}

// Resolve finalizes the current item and moves Bidding to Waiting. A high
// bidder makes it a sale unless skip is set, in which case the item goes
// unsold regardless of bids.
func (s *AuctionState) Resolve(auto, skip bool, at time.Time) (Resolution, error) {
	if s.phase != PhaseBidding {
		return Resolution{}, invalid("resolve item", s.phase)
	}
	if s.currentItem == nil {
		return Resolution{}, ErrNoCurrentItem
	}
	item := *s.currentItem
	if s.IsResolved(item.ID) {
		return Resolution{}, ErrAlreadyResolved
	}

	res := Resolution{
		Item:          item,
		AutoFinalized: auto,
		Skipped:       skip,
	}

	if s.highBidder != nil && !skip {
		winner := *s.highBidder
		res.Outcome = models.OutcomeSold
		res.Winner = &winner
		res.Amount = s.highBid
		res.Item.Status = models.ItemStatusSold
		res.Item.OwnerID = &winner.ID

		s.sold = append(s.sold, models.Sale{
			ItemID:        item.ID,
			ItemName:      item.Name,
			BidderID:      winner.ID,
			BidderName:    winner.Name,
			Amount:        s.highBid,
			AutoFinalized: auto,
			ResolvedAt:    at,
		})
	} else {
		res.Outcome = models.OutcomeUnsold
		res.Item.Status = models.ItemStatusUnsold

		s.unsold = append(s.unsold, Unsold{
			ItemID:        item.ID,
			ItemName:      item.Name,
			Skipped:       skip,
			AutoFinalized: auto,
			ResolvedAt:    at,
		})
	}
	s.resolved[item.ID] = res.Outcome

	s.currentItem = nil
	s.highBid = 0
	s.highBidder = nil
	s.bids = nil
	s.phase = PhaseWaiting
	return res, nil
}

// Pause freezes a running auction and remembers which sub-phase it left
func (s *AuctionState) Pause(reason string) error {
	if !s.phase.Running() {
		return invalid("pause", s.phase)
	}
	s.pausedFrom = s.phase
	s.pauseReason = reason
	s.phase = PhasePaused
	return nil
}

// Resume returns to the sub-phase that was paused
func (s *AuctionState) Resume() (Phase, error) {
	if s.phase != PhasePaused {
		return s.phase, invalid("resume", s.phase)
	}
	s.phase = s.pausedFrom
	s.pausedFrom = ""
	s.pauseReason = ""
	return s.phase, nil
}

// End moves any running or paused auction to Ended. An item still on the
// block is returned unresolved so the caller can release it.
func (s *AuctionState) End(reason string, at time.Time) (*models.Item, error) {
	if s.phase != PhaseWaiting && s.phase != PhaseBidding && s.phase != PhasePaused {
		return nil, invalid("end", s.phase)
	}
	released := s.currentItem

	s.currentItem = nil
	s.highBid = 0
	s.highBidder = nil
	s.bids = nil
	s.pausedFrom = ""
	s.pauseReason = ""
	s.endReason = reason
	s.endedAt = at
	s.phase = PhaseEnded
	return released, nil
}

// Reset returns an Ended auction to Idle. Resetting an Idle auction is a no-op.
func (s *AuctionState) Reset() error {
	switch s.phase {
	case PhaseIdle:
		return nil
	case PhaseEnded:
		s.clear()
		s.phase = PhaseIdle
		return nil
	default:
		return invalid("reset", s.phase)
	}
}

// Summary tallies the sold and unsold records
func (s *AuctionState) Summary() models.Summary {
	summary := models.Summary{
		ItemsSold:     len(s.sold),
		ItemsUnsold:   len(s.unsold),
		SpendByBidder: make(map[uuid.UUID]int64),
		Rounds:        s.round,
		Reason:        s.endReason,
		EndedAt:       s.endedAt,
	}
	for _, sale := range s.sold {
		summary.TotalAmount += sale.Amount
		summary.SpendByBidder[sale.BidderID] += sale.Amount
	}
	summary.DistinctBidders = len(summary.SpendByBidder)
	return summary
}

// Snapshot copies the current state
func (s *AuctionState) Snapshot() Snapshot {
	snap := Snapshot{
		Phase:       s.phase,
		PausedFrom:  s.pausedFrom,
		PauseReason: s.pauseReason,
		HighBid:     s.highBid,
		BidCount:    len(s.bids),
		Round:       s.round,
		SoldCount:   len(s.sold),
		UnsoldCount: len(s.unsold),
		EndReason:   s.endReason,
	}
	if s.currentItem != nil {
		item := *s.currentItem
		snap.CurrentItem = &item
	}
	if s.highBidder != nil {
		b := *s.highBidder
		snap.HighBidder = &b
	}
	return snap
}

func (s *AuctionState) clear() {
	s.pausedFrom = ""
	s.pauseReason = ""
	s.currentItem = nil
	s.highBid = 0
	s.highBidder = nil
	s.bids = nil
	s.sold = nil
	s.unsold = nil
	s.resolved = make(map[uuid.UUID]models.Outcome)
	s.round = 0
	s.endReason = ""
	s.endedAt = time.Time{}
}
