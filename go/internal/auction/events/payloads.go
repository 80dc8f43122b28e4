package events

import (
	"time"

	"github.com/mcdev12/gavel/go/internal/models"
)

// Event payload types shared between the engine, the broadcast adapter and the gateway

// StatusPayload is the full snapshot sent after every accepted transition
type StatusPayload struct {
	Phase            string                `json:"phase"`
	PausedFrom       string                `json:"paused_from,omitempty"`
	CurrentItem      *models.ItemSummary   `json:"current_item,omitempty"`
	HighBid          int64                 `json:"high_bid"`
	HighBidder       *models.BidderSummary `json:"high_bidder,omitempty"`
	ActiveTimer      string                `json:"active_timer,omitempty"`
	TimeRemainingSec int                   `json:"time_remaining_sec"`
	Round            int                   `json:"round"`
	Reason           string                `json:"reason,omitempty"`
	Message          string                `json:"message"`
}

// BidAcceptedPayload is the payload for a bid-accepted event
type BidAcceptedPayload struct {
	BidID            string                `json:"bid_id"`
	Item             *models.ItemSummary   `json:"item"`
	Bidder           *models.BidderSummary `json:"bidder"`
	Amount           int64                 `json:"amount"`
	TimeRemainingSec int                   `json:"time_remaining_sec"`
	TimerRestarted   bool                  `json:"timer_restarted"`
	PlacedAt         time.Time             `json:"placed_at"`
	Message          string                `json:"message"`
}

// ItemResolvedPayload is the payload for an item-resolved event
type ItemResolvedPayload struct {
	Item          *models.ItemSummary   `json:"item"`
	Outcome       models.Outcome        `json:"outcome"`
	Winner        *models.BidderSummary `json:"winner,omitempty"`
	Amount        *int64                `json:"amount,omitempty"`
	AutoFinalized bool                  `json:"auto_finalized"`
	Skipped       bool                  `json:"skipped,omitempty"`
	ResolvedAt    time.Time             `json:"resolved_at"`
	Message       string                `json:"message"`
}

// TimerTickPayload is the lightweight per-second timer update
type TimerTickPayload struct {
	TimerType        string    `json:"timer_type"`
	TimeRemainingSec int       `json:"time_remaining_sec"`
	TickedAt         time.Time `json:"ticked_at"`
}

// AuctionEndedPayload carries the final summary
type AuctionEndedPayload struct {
	Summary models.Summary `json:"summary"`
	Reason  string         `json:"reason,omitempty"`
	Message string         `json:"message"`
}
