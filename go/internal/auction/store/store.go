// Package store defines the persistence collaborator the auction engine talks to.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/mcdev12/gavel/go/internal/models"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrItemNotInAuction = errors.New("item is not in auction")
)

// Store is implemented by every persistence backend.
//
// FetchNextItem claims the next available item, marking it in auction, and
// returns nil with no error once nothing is left.
type Store interface {
	FetchNextItem(ctx context.Context) (*models.Item, error)
	GetItem(ctx context.Context, id uuid.UUID) (*models.Item, error)
	GetBidder(ctx context.Context, id uuid.UUID) (*models.Bidder, error)
	RecordBid(ctx context.Context, bid models.Bid) error
	ResolveSale(ctx context.Context, itemID, bidderID uuid.UUID, amount int64) error
	ResolveUnsold(ctx context.Context, itemID uuid.UUID) error
	AdjustBudget(ctx context.Context, bidderID uuid.UUID, delta int64) error
	ReleaseItem(ctx context.Context, itemID uuid.UUID) error
	SaveSummary(ctx context.Context, summary models.Summary) error
}
