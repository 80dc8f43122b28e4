package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/mcdev12/gavel/go/internal/auction/store"
	"github.com/mcdev12/gavel/go/internal/models"
)

// budgetLedger tracks sales whose budget debit has not reached the store yet.
// mu only guards the pending map; store I/O always runs outside it.
//
// A read snapshots the pending amount before reading the stored budget, and
// apply clears the pending amount only after the store write. A read racing
// an apply can therefore count the debit twice, never zero times.
type budgetLedger struct {
	mu      sync.Mutex
	pending map[uuid.UUID]int64
}

func newBudgetLedger() *budgetLedger {
	return &budgetLedger{pending: make(map[uuid.UUID]int64)}
}

// debit reserves amount against the bidder until apply succeeds
func (l *budgetLedger) debit(bidderID uuid.UUID, amount int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending[bidderID] += amount
}

// effectiveBudget returns the bidder and their stored budget minus pending debits
func (l *budgetLedger) effectiveBudget(ctx context.Context, st store.Store, bidderID uuid.UUID) (*models.Bidder, int64, error) {
	pending := l.pendingFor(bidderID)

	bidder, err := st.GetBidder(ctx, bidderID)
	if err != nil {
		return nil, 0, err
	}
	if bidder == nil {
		return nil, 0, fmt.Errorf("bidder %s: %w", bidderID, store.ErrNotFound)
	}
	return bidder, bidder.Budget - pending, nil
}

// apply writes a pending debit to the store. On failure the debit stays pending
// so the bidder cannot overspend.
func (l *budgetLedger) apply(ctx context.Context, st store.Store, bidderID uuid.UUID, amount int64) error {
	if err := st.AdjustBudget(ctx, bidderID, -amount); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending[bidderID] -= amount
	if l.pending[bidderID] == 0 {
		delete(l.pending, bidderID)
	}
	return nil
}

func (l *budgetLedger) pendingFor(bidderID uuid.UUID) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pending[bidderID]
}
