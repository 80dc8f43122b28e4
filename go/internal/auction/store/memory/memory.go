// Package memory is an in-process Store used for development runs and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/mcdev12/gavel/go/internal/auction/store"
	"github.com/mcdev12/gavel/go/internal/models"
)

var _ store.Store = (*Store)(nil)

// Operation names used for failure injection and call counting
const (
	OpFetchNextItem = "fetch_next_item"
	OpGetItem       = "get_item"
	OpGetBidder     = "get_bidder"
	OpRecordBid     = "record_bid"
	OpResolveSale   = "resolve_sale"
	OpResolveUnsold = "resolve_unsold"
	OpAdjustBudget  = "adjust_budget"
	OpReleaseItem   = "release_item"
	OpSaveSummary   = "save_summary"
)

type Store struct {
	mu        sync.Mutex
	order     []uuid.UUID
	items     map[uuid.UUID]*models.Item
	bidders   map[uuid.UUID]*models.Bidder
	bids      []models.Bid
	summaries []models.Summary

	failures map[string]error
	calls    map[string]int
}

// New creates a store seeded with items in auction order and bidders
func New(items []models.Item, bidders []models.Bidder) *Store {
	s := &Store{
		items:    make(map[uuid.UUID]*models.Item),
		bidders:  make(map[uuid.UUID]*models.Bidder),
		failures: make(map[string]error),
		calls:    make(map[string]int),
	}
	for i := range items {
		s.AddItem(items[i])
	}
	for i := range bidders {
		s.AddBidder(bidders[i])
	}
	return s
}

func (s *Store) AddItem(item models.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.Status == "" {
		item.Status = models.ItemStatusAvailable
	}
	if _, exists := s.items[item.ID]; !exists {
		s.order = append(s.order, item.ID)
	}
	s.items[item.ID] = &item
}

func (s *Store) AddBidder(bidder models.Bidder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bidders[bidder.ID] = &bidder
}

// Fail makes every later call to op return err. A nil err clears the failure.
func (s *Store) Fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// Calls reports how many times op was invoked, including failed calls
func (s *Store) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// Bids returns every recorded bid in order
func (s *Store) Bids() []models.Bid {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Bid(nil), s.bids...)
}

// Summaries returns every saved summary
func (s *Store) Summaries() []models.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Summary(nil), s.summaries...)
}

func (s *Store) enter(ctx context.Context, op string) error {
	s.calls[op]++
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.failures[op]
}

func (s *Store) FetchNextItem(ctx context.Context) (*models.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpFetchNextItem); err != nil {
		return nil, err
	}

	for _, id := range s.order {
		item := s.items[id]
		if item.Status == models.ItemStatusAvailable {
			item.Status = models.ItemStatusInAuction
			claimed := *item
			return &claimed, nil
		}
	}
	return nil, nil
}

func (s *Store) GetItem(ctx context.Context, id uuid.UUID) (*models.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpGetItem); err != nil {
		return nil, err
	}

	item, ok := s.items[id]
	if !ok {
		return nil, fmt.Errorf("item %s: %w", id, store.ErrNotFound)
	}
	found := *item
	return &found, nil
}

func (s *Store) GetBidder(ctx context.Context, id uuid.UUID) (*models.Bidder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpGetBidder); err != nil {
		return nil, err
	}

	bidder, ok := s.bidders[id]
	if !ok {
		return nil, fmt.Errorf("bidder %s: %w", id, store.ErrNotFound)
	}
	found := *bidder
	return &found, nil
}

func (s *Store) RecordBid(ctx context.Context, bid models.Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpRecordBid); err != nil {
		return err
	}
	s.bids = append(s.bids, bid)
	return nil
}

func (s *Store) ResolveSale(ctx context.Context, itemID, bidderID uuid.UUID, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpResolveSale); err != nil {
		return err
	}

	item, ok := s.items[itemID]
	if !ok {
		return fmt.Errorf("item %s: %w", itemID, store.ErrNotFound)
	}
	if _, ok := s.bidders[bidderID]; !ok {
		return fmt.Errorf("bidder %s: %w", bidderID, store.ErrNotFound)
	}
	if item.Status != models.ItemStatusInAuction {
		return fmt.Errorf("item %s is %s: %w", itemID, item.Status, store.ErrItemNotInAuction)
	}
	owner := bidderID
	item.Status = models.ItemStatusSold
	item.OwnerID = &owner
	return nil
}

func (s *Store) ResolveUnsold(ctx context.Context, itemID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpResolveUnsold); err != nil {
		return err
	}

	item, ok := s.items[itemID]
	if !ok {
		return fmt.Errorf("item %s: %w", itemID, store.ErrNotFound)
	}
	if item.Status != models.ItemStatusInAuction {
		return fmt.Errorf("item %s is %s: %w", itemID, item.Status, store.ErrItemNotInAuction)
	}
	item.Status = models.ItemStatusUnsold
	return nil
}

func (s *Store) AdjustBudget(ctx context.Context, bidderID uuid.UUID, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpAdjustBudget); err != nil {
		return err
	}

	bidder, ok := s.bidders[bidderID]
	if !ok {
		return fmt.Errorf("bidder %s: %w", bidderID, store.ErrNotFound)
	}
	bidder.Budget += delta
	return nil
}

func (s *Store) ReleaseItem(ctx context.Context, itemID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpReleaseItem); err != nil {
		return err
	}

	item, ok := s.items[itemID]
	if !ok {
		return fmt.Errorf("item %s: %w", itemID, store.ErrNotFound)
	}
	if item.Status == models.ItemStatusInAuction {
		item.Status = models.ItemStatusAvailable
	}
	return nil
}

func (s *Store) SaveSummary(ctx context.Context, summary models.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpSaveSummary); err != nil {
		return err
	}
	s.summaries = append(s.summaries, summary)
	return nil
}
