package models

import (
	"github.com/google/uuid"
)

// Bidder is a participant (a team) bidding against its budget.
type Bidder struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Budget   int64     `json:"budget"`   // decremented only on sale
	Identity string    `json:"identity"` // auth subject
}

type BidderSummary struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

func (b *Bidder) Summary() *BidderSummary {
	if b == nil {
		return nil
	}
	return &BidderSummary{ID: b.ID, Name: b.Name}
}
