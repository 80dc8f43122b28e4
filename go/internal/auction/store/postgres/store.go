// Package postgres is the production Store. Resolutions and the end-of-auction
// summary insert an auction_outbox row in the same transaction so the relay
// can publish them for downstream reconciliation.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/gavel/go/internal/auction/store"
	"github.com/mcdev12/gavel/go/internal/auction/store/postgres/db"
	"github.com/mcdev12/gavel/go/internal/models"
	"github.com/mcdev12/gavel/go/internal/sqlutil"
	"github.com/rs/zerolog/log"
	"github.com/sqlc-dev/pqtype"
)

//go:embed schema.sql
var Schema string

// Outbox event types written alongside resolutions
const (
	OutboxItemSold     = "item-sold"
	OutboxItemUnsold   = "item-unsold"
	OutboxAuctionEnded = "auction-ended"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	db      *sql.DB
	queries *db.Queries
}

func New(conn *sql.DB) *Store {
	return &Store{db: conn, queries: db.New(conn)}
}

// Migrate applies the schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	log.Info().Msg("auction schema applied")
	return nil
}

// SalePayload is the outbox payload for a sold item
type SalePayload struct {
	ItemID     uuid.UUID `json:"item_id"`
	BidderID   uuid.UUID `json:"bidder_id"`
	Amount     int64     `json:"amount"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// UnsoldPayload is the outbox payload for an item nobody bought
type UnsoldPayload struct {
	ItemID     uuid.UUID `json:"item_id"`
	ResolvedAt time.Time `json:"resolved_at"`
}

func (s *Store) FetchNextItem(ctx context.Context) (*models.Item, error) {
	row, err := s.queries.ClaimNextItem(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim next item: %w", err)
	}
	return dbItemToModel(row.ID, row.Name, row.Role, row.BasePrice, row.Status, row.OwnerID, row.Attributes), nil
}

func (s *Store) GetItem(ctx context.Context, id uuid.UUID) (*models.Item, error) {
	row, err := s.queries.GetItem(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("item %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return dbItemToModel(row.ID, row.Name, row.Role, row.BasePrice, row.Status, row.OwnerID, row.Attributes), nil
}

func (s *Store) GetBidder(ctx context.Context, id uuid.UUID) (*models.Bidder, error) {
	row, err := s.queries.GetBidder(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("bidder %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get bidder: %w", err)
	}
	return &models.Bidder{
		ID:       row.ID,
		Name:     row.Name,
		Budget:   row.Budget,
		Identity: row.Identity,
	}, nil
}

func (s *Store) RecordBid(ctx context.Context, bid models.Bid) error {
	err := s.queries.InsertBid(ctx, db.InsertBidParams{
		ID:       bid.ID,
		ItemID:   bid.ItemID,
		BidderID: bid.BidderID,
		Amount:   bid.Amount,
		PlacedAt: bid.PlacedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to record bid: %w", err)
	}
	return nil
}

func (s *Store) ResolveSale(ctx context.Context, itemID, bidderID uuid.UUID, amount int64) error {
	payload, err := json.Marshal(SalePayload{
		ItemID:     itemID,
		BidderID:   bidderID,
		Amount:     amount,
		ResolvedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal sale payload: %w", err)
	}

	return sqlutil.Run(ctx, s.db, txQueries, func(q *db.Queries) error {
		n, err := q.MarkItemSold(ctx, db.MarkItemSoldParams{
			ID:        itemID,
			OwnerID:   uuid.NullUUID{UUID: bidderID, Valid: true},
			SoldPrice: amount,
		})
		if err != nil {
			return fmt.Errorf("failed to mark item sold: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("item %s: %w", itemID, store.ErrItemNotInAuction)
		}
		return insertOutbox(ctx, q, OutboxItemSold, &itemID, payload)
	})
}

func (s *Store) ResolveUnsold(ctx context.Context, itemID uuid.UUID) error {
	payload, err := json.Marshal(UnsoldPayload{ItemID: itemID, ResolvedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal unsold payload: %w", err)
	}

	return sqlutil.Run(ctx, s.db, txQueries, func(q *db.Queries) error {
		n, err := q.MarkItemUnsold(ctx, itemID)
		if err != nil {
			return fmt.Errorf("failed to mark item unsold: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("item %s: %w", itemID, store.ErrItemNotInAuction)
		}
		return insertOutbox(ctx, q, OutboxItemUnsold, &itemID, payload)
	})
}

// AdjustBudget applies delta to the bidder's budget. The update refuses to
// take a budget below zero.
func (s *Store) AdjustBudget(ctx context.Context, bidderID uuid.UUID, delta int64) error {
	n, err := s.queries.AdjustBidderBudget(ctx, db.AdjustBidderBudgetParams{Delta: delta, ID: bidderID})
	if err != nil {
		return fmt.Errorf("failed to adjust budget: %w", err)
	}
	if n == 1 {
		return nil
	}

	exists, err := s.queries.BidderExists(ctx, bidderID)
	if err != nil {
		return fmt.Errorf("failed to check bidder: %w", err)
	}
	if !exists {
		return fmt.Errorf("bidder %s: %w", bidderID, store.ErrNotFound)
	}
	return fmt.Errorf("budget adjustment of %d would leave bidder %s negative", delta, bidderID)
}

func (s *Store) ReleaseItem(ctx context.Context, itemID uuid.UUID) error {
	n, err := s.queries.ReleaseItem(ctx, itemID)
	if err != nil {
		return fmt.Errorf("failed to release item: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("item %s: %w", itemID, store.ErrItemNotInAuction)
	}
	return nil
}

func (s *Store) SaveSummary(ctx context.Context, summary models.Summary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	return sqlutil.Run(ctx, s.db, txQueries, func(q *db.Queries) error {
		if err := q.InsertSummary(ctx, db.InsertSummaryParams{
			ID:      summary.ID,
			Summary: data,
			EndedAt: summary.EndedAt,
		}); err != nil {
			return fmt.Errorf("failed to insert summary: %w", err)
		}
		return insertOutbox(ctx, q, OutboxAuctionEnded, nil, data)
	})
}

// SeedBidder inserts or updates a bidder
func (s *Store) SeedBidder(ctx context.Context, b models.Bidder) error {
	return s.queries.UpsertBidder(ctx, db.UpsertBidderParams{
		ID:       b.ID,
		Name:     b.Name,
		Budget:   b.Budget,
		Identity: b.Identity,
	})
}

// SeedItem inserts or updates an item without touching its auction status
func (s *Store) SeedItem(ctx context.Context, item models.Item) error {
	return s.queries.UpsertItem(ctx, db.UpsertItemParams{
		ID:         item.ID,
		Name:       item.Name,
		Role:       item.Role,
		BasePrice:  item.BasePrice,
		Attributes: pqtype.NullRawMessage{RawMessage: item.Attributes, Valid: len(item.Attributes) > 0},
	})
}

func insertOutbox(ctx context.Context, q *db.Queries, eventType string, itemID *uuid.UUID, payload []byte) error {
	err := q.InsertOutboxEvent(ctx, db.InsertOutboxEventParams{
		ID:        uuid.New(),
		EventType: eventType,
		ItemID:    sqlutil.ToNullUUID(itemID),
		Payload:   payload,
	})
	if err != nil {
		return fmt.Errorf("failed to insert %s outbox event: %w", eventType, err)
	}
	return nil
}

func dbItemToModel(id uuid.UUID, name, role string, basePrice int64, status string, owner uuid.NullUUID, attrs pqtype.NullRawMessage) *models.Item {
	item := &models.Item{
		ID:        id,
		Name:      name,
		Role:      role,
		BasePrice: basePrice,
		Status:    models.ItemStatus(status),
		OwnerID:   sqlutil.FromNullUUID(owner),
	}
	if attrs.Valid {
		item.Attributes = attrs.RawMessage
	}
	return item
}

func txQueries(tx *sql.Tx) *db.Queries {
	return db.New(tx)
}
