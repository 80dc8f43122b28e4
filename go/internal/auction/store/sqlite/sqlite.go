// Package sqlite is a single-node Store backed by an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/gavel/go/internal/auction/store"
	"github.com/mcdev12/gavel/go/internal/models"
	"github.com/mcdev12/gavel/go/internal/sqlutil"
	_ "modernc.org/sqlite"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	db *sql.DB
}

// New opens the database at dbPath, creating parent directories and
// running migrations
func New(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer at a time; the persistence queue is serial anyway
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// AddBidder inserts or replaces a bidder
func (s *Store) AddBidder(ctx context.Context, b models.Bidder) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bidders (id, name, budget, identity) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, budget = excluded.budget, identity = excluded.identity`,
		b.ID.String(), b.Name, b.Budget, b.Identity)
	if err != nil {
		return fmt.Errorf("failed to add bidder: %w", err)
	}
	return nil
}

// AddItem appends an item to the end of the auction order
func (s *Store) AddItem(ctx context.Context, item models.Item) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO items (id, position, name, role, base_price, attributes)
		 VALUES (?, (SELECT COALESCE(MAX(position), 0) + 1 FROM items), ?, ?, ?, ?)`,
		item.ID.String(), item.Name, item.Role, item.BasePrice, sqlutil.ToNullJSON(item.Attributes))
	if err != nil {
		return fmt.Errorf("failed to add item: %w", err)
	}
	return nil
}

func (s *Store) FetchNextItem(ctx context.Context) (*models.Item, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM items WHERE status = ? ORDER BY position LIMIT 1`,
		string(models.ItemStatusAvailable)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select next item: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE items SET status = ? WHERE id = ?`,
		string(models.ItemStatusInAuction), id); err != nil {
		return nil, fmt.Errorf("failed to claim item: %w", err)
	}

	item, err := scanItem(tx.QueryRowContext(ctx, selectItem, id))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return item, nil
}

const selectItem = `SELECT id, name, role, base_price, status, owner_id, attributes FROM items WHERE id = ?`

func (s *Store) GetItem(ctx context.Context, id uuid.UUID) (*models.Item, error) {
	item, err := scanItem(s.db.QueryRowContext(ctx, selectItem, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %s: %w", id, store.ErrNotFound)
	}
	return item, err
}

func (s *Store) GetBidder(ctx context.Context, id uuid.UUID) (*models.Bidder, error) {
	var b models.Bidder
	var rawID string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, budget, identity FROM bidders WHERE id = ?`, id.String()).
		Scan(&rawID, &b.Name, &b.Budget, &b.Identity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("bidder %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bidder: %w", err)
	}
	if b.ID, err = uuid.Parse(rawID); err != nil {
		return nil, fmt.Errorf("bad bidder id %q: %w", rawID, err)
	}
	return &b, nil
}

func (s *Store) RecordBid(ctx context.Context, bid models.Bid) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bids (id, item_id, bidder_id, amount, placed_at) VALUES (?, ?, ?, ?, ?)`,
		bid.ID.String(), bid.ItemID.String(), bid.BidderID.String(), bid.Amount, bid.PlacedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to record bid: %w", err)
	}
	return nil
}

func (s *Store) ResolveSale(ctx context.Context, itemID, bidderID uuid.UUID, amount int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE items SET status = ?, owner_id = ?, sold_price = ?, resolved_at = ?
		 WHERE id = ? AND status = ?`,
		string(models.ItemStatusSold), bidderID.String(), amount, time.Now().UnixMilli(),
		itemID.String(), string(models.ItemStatusInAuction))
	if err != nil {
		return fmt.Errorf("failed to resolve sale: %w", err)
	}
	return requireInAuction(res, itemID)
}

func (s *Store) ResolveUnsold(ctx context.Context, itemID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE items SET status = ?, resolved_at = ? WHERE id = ? AND status = ?`,
		string(models.ItemStatusUnsold), time.Now().UnixMilli(),
		itemID.String(), string(models.ItemStatusInAuction))
	if err != nil {
		return fmt.Errorf("failed to resolve unsold: %w", err)
	}
	return requireInAuction(res, itemID)
}

func (s *Store) AdjustBudget(ctx context.Context, bidderID uuid.UUID, delta int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE bidders SET budget = budget + ? WHERE id = ? AND budget + ? >= 0`,
		delta, bidderID.String(), delta)
	if err != nil {
		return fmt.Errorf("failed to adjust budget: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}
	if _, err := s.GetBidder(ctx, bidderID); err != nil {
		return err
	}
	return fmt.Errorf("budget adjustment of %d would leave bidder %s negative", delta, bidderID)
}

func (s *Store) ReleaseItem(ctx context.Context, itemID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE items SET status = ? WHERE id = ? AND status = ?`,
		string(models.ItemStatusAvailable), itemID.String(), string(models.ItemStatusInAuction))
	if err != nil {
		return fmt.Errorf("failed to release item: %w", err)
	}
	return requireInAuction(res, itemID)
}

func (s *Store) SaveSummary(ctx context.Context, summary models.Summary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO summaries (id, summary, ended_at) VALUES (?, ?, ?)`,
		summary.ID.String(), string(data), summary.EndedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save summary: %w", err)
	}
	return nil
}

// Bids returns the recorded bids for an item, oldest first
func (s *Store) Bids(ctx context.Context, itemID uuid.UUID) ([]models.Bid, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, bidder_id, amount, placed_at FROM bids WHERE item_id = ? ORDER BY placed_at, rowid`,
		itemID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query bids: %w", err)
	}
	defer rows.Close()

	var bids []models.Bid
	for rows.Next() {
		var id, bidderID string
		var placedAt int64
		bid := models.Bid{ItemID: itemID}
		if err := rows.Scan(&id, &bidderID, &bid.Amount, &placedAt); err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		bid.ID, _ = uuid.Parse(id)
		bid.BidderID, _ = uuid.Parse(bidderID)
		bid.PlacedAt = time.UnixMilli(placedAt)
		bids = append(bids, bid)
	}
	return bids, rows.Err()
}

func requireInAuction(res sql.Result, itemID uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("item %s: %w", itemID, store.ErrItemNotInAuction)
	}
	return nil
}

func scanItem(row *sql.Row) (*models.Item, error) {
	var (
		item    models.Item
		rawID   string
		status  string
		ownerID sql.NullString
		attrs   sql.NullString
	)
	if err := row.Scan(&rawID, &item.Name, &item.Role, &item.BasePrice, &status, &ownerID, &attrs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan item: %w", err)
	}

	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("bad item id %q: %w", rawID, err)
	}
	item.ID = id
	item.Status = models.ItemStatus(status)
	if item.OwnerID, err = sqlutil.FromNullText(ownerID); err != nil {
		return nil, fmt.Errorf("bad owner id: %w", err)
	}
	item.Attributes = sqlutil.FromNullJSON(attrs)
	return &item, nil
}
