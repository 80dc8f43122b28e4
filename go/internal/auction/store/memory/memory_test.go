package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/mcdev12/gavel/go/internal/auction/store"
	"github.com/mcdev12/gavel/go/internal/models"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	first := models.Item{ID: uuid.New(), Name: "Kohli", BasePrice: 200}
	second := models.Item{ID: uuid.New(), Name: "Bumrah", BasePrice: 150}
	bidder := models.Bidder{ID: uuid.New(), Name: "Mumbai", Budget: 1000}
	s := New([]models.Item{first, second}, []models.Bidder{bidder})

	t.Run("FetchNextItem claims items in order", func(t *testing.T) {
		item, err := s.FetchNextItem(ctx)
		assert.NoError(t, err)
		assert.NotNil(t, item)
		check.Equal(t, first.ID, item.ID)
		check.Equal(t, models.ItemStatusInAuction, item.Status)
	})

	t.Run("ResolveSale assigns the owner", func(t *testing.T) {
		assert.NoError(t, s.ResolveSale(ctx, first.ID, bidder.ID, 300))
		item, err := s.GetItem(ctx, first.ID)
		assert.NoError(t, err)
		check.Equal(t, models.ItemStatusSold, item.Status)
		check.Equal(t, bidder.ID, *item.OwnerID)

		err = s.ResolveSale(ctx, first.ID, bidder.ID, 300)
		check.True(t, errors.Is(err, store.ErrItemNotInAuction))
	})

	t.Run("AdjustBudget applies the delta", func(t *testing.T) {
		assert.NoError(t, s.AdjustBudget(ctx, bidder.ID, -300))
		got, err := s.GetBidder(ctx, bidder.ID)
		assert.NoError(t, err)
		check.Equal(t, int64(700), got.Budget)
	})

	t.Run("ReleaseItem returns a claimed item", func(t *testing.T) {
		item, err := s.FetchNextItem(ctx)
		assert.NoError(t, err)
		check.Equal(t, second.ID, item.ID)

		assert.NoError(t, s.ReleaseItem(ctx, second.ID))
		again, err := s.FetchNextItem(ctx)
		assert.NoError(t, err)
		check.Equal(t, second.ID, again.ID)
		assert.NoError(t, s.ResolveUnsold(ctx, second.ID))
	})

	t.Run("FetchNextItem returns nil when exhausted", func(t *testing.T) {
		item, err := s.FetchNextItem(ctx)
		assert.NoError(t, err)
		check.Nil(t, item)
	})

	t.Run("unknown ids are not found", func(t *testing.T) {
		_, err := s.GetBidder(ctx, uuid.New())
		check.True(t, errors.Is(err, store.ErrNotFound))
		_, err = s.GetItem(ctx, uuid.New())
		check.True(t, errors.Is(err, store.ErrNotFound))
	})

	t.Run("injected failures", func(t *testing.T) {
		boom := errors.New("boom")
		s.Fail(OpRecordBid, boom)
		err := s.RecordBid(ctx, models.Bid{ID: uuid.New()})
		check.True(t, errors.Is(err, boom))

		s.Fail(OpRecordBid, nil)
		assert.NoError(t, s.RecordBid(ctx, models.Bid{ID: uuid.New()}))
		check.Equal(t, 2, s.Calls(OpRecordBid))
		check.Equal(t, 1, len(s.Bids()))
	})
}
