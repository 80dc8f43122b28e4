package models

import (
	"encoding/json"

	"github.com/google/uuid"
)

// ItemStatus is the resolution status of an auction item.
type ItemStatus string

const (
	ItemStatusAvailable ItemStatus = "AVAILABLE"
	ItemStatusInAuction ItemStatus = "IN_AUCTION"
	ItemStatusSold      ItemStatus = "SOLD"
	ItemStatusUnsold    ItemStatus = "UNSOLD"
)

// Item represents a lot (a player) put up for auction
type Item struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	Role      string     `json:"role"`       // 'Batsman', 'Bowler', 'All-Rounder', etc.
	BasePrice int64      `json:"base_price"` // minor units
	Status    ItemStatus `json:"status"`
	OwnerID   *uuid.UUID `json:"owner_id,omitempty"` // nil until sold

	// Attributes is a free-form profile (batting style, nationality, ...)
	Attributes json.RawMessage `json:"attributes,omitempty"`
}

// ItemSummary is the trimmed view of an item carried on broadcast messages.
type ItemSummary struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	BasePrice int64     `json:"base_price"`
}

// Summary returns the broadcast view of the item.
func (i *Item) Summary() *ItemSummary {
	if i == nil {
		return nil
	}
	return &ItemSummary{
		ID:        i.ID,
		Name:      i.Name,
		Role:      i.Role,
		BasePrice: i.BasePrice,
	}
}
