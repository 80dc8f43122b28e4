package models

import (
	"time"

	"github.com/google/uuid"
)

// Bid is an accepted offer on the item in progress. Immutable once recorded.
type Bid struct {
	ID       uuid.UUID `json:"id"`
	ItemID   uuid.UUID `json:"item_id"`
	BidderID uuid.UUID `json:"bidder_id"`
	Amount   int64     `json:"amount"`
	PlacedAt time.Time `json:"placed_at"`
}
