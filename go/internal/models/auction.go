package models

import (
	"time"

	"github.com/google/uuid"
)

// Outcome is how an item left the block.
type Outcome string

const (
	OutcomeSold   Outcome = "SOLD"
	OutcomeUnsold Outcome = "UNSOLD"
)

// Sale is a single entry in the sold record.
type Sale struct {
	ItemID        uuid.UUID `json:"item_id"`
	ItemName      string    `json:"item_name"`
	BidderID      uuid.UUID `json:"bidder_id"`
	BidderName    string    `json:"bidder_name"`
	Amount        int64     `json:"amount"`
	AutoFinalized bool      `json:"auto_finalized"`
	ResolvedAt    time.Time `json:"resolved_at"`
}

// Summary is the final tally written when an auction ends.
type Summary struct {
	ID              uuid.UUID           `json:"id"`
	ItemsSold       int                 `json:"items_sold"`
	ItemsUnsold     int                 `json:"items_unsold"`
	TotalAmount     int64               `json:"total_amount"`
	DistinctBidders int                 `json:"distinct_bidders"`
	SpendByBidder   map[uuid.UUID]int64 `json:"spend_by_bidder"`
	Rounds          int                 `json:"rounds"`
	Reason          string              `json:"reason,omitempty"`
	EndedAt         time.Time           `json:"ended_at"`
}
