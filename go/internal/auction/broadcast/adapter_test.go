package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/gavel/go/internal/auction/events"
	"github.com/mcdev12/gavel/go/internal/models"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

type fakeSink struct {
	name string
	err  error

	mu   sync.Mutex
	envs []*events.Envelope
}

func (s *fakeSink) Name() string { return s.name }

func (s *fakeSink) Send(ctx context.Context, env *events.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.envs = append(s.envs, env)
	return s.err
}

func (s *fakeSink) received() []*events.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*events.Envelope(nil), s.envs...)
}

func TestFormatterAmount(t *testing.T) {
	check.Equal(t, "123.45", NewFormatter(2, "").Amount(12345))
	check.Equal(t, "$0.05", NewFormatter(2, "$").Amount(5))
	check.Equal(t, "250", NewFormatter(0, "").Amount(250))
	check.Equal(t, "-1.5", NewFormatter(1, "").Amount(-15))
}

func TestFormatterMessages(t *testing.T) {
	f := NewFormatter(0, "")
	item := &models.ItemSummary{ID: uuid.New(), Name: "Kohli"}
	bidder := &models.BidderSummary{ID: uuid.New(), Name: "Mumbai"}
	amount := int64(450)

	tests := []struct {
		name    string
		payload any
		want    string
	}{
		{"bid", events.BidAcceptedPayload{Item: item, Bidder: bidder, Amount: 300}, "Mumbai bids 300 for Kohli"},
		{"bid with restart", events.BidAcceptedPayload{Item: item, Bidder: bidder, Amount: 300, TimerRestarted: true}, "Mumbai bids 300 for Kohli, clock reset"},
		{"sold", events.ItemResolvedPayload{Item: item, Outcome: models.OutcomeSold, Winner: bidder, Amount: &amount}, "Kohli sold to Mumbai for 450"},
		{"unsold", events.ItemResolvedPayload{Item: item, Outcome: models.OutcomeUnsold}, "Kohli unsold"},
		{"skipped", events.ItemResolvedPayload{Item: item, Outcome: models.OutcomeUnsold, Skipped: true}, "Kohli skipped"},
		{"waiting", events.StatusPayload{Phase: "WAITING", TimeRemainingSec: 7}, "next item in 7s"},
		{"bidding", events.StatusPayload{Phase: "BIDDING", CurrentItem: item, HighBid: 200, HighBidder: bidder, TimeRemainingSec: 12}, "Kohli on the block at 200 by Mumbai, 12s left"},
		{"ended", events.AuctionEndedPayload{Summary: models.Summary{ItemsSold: 2, ItemsUnsold: 1, TotalAmount: 900}}, "auction ended: 2 sold, 1 unsold, 900 spent"},
		{"tick", events.TimerTickPayload{TimerType: "bid", TimeRemainingSec: 3}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := events.New(events.EventTypeStatus, time.Now(), tt.payload)
			check.Equal(t, tt.want, f.Message(ev))
		})
	}
}

func TestTranslateFillsMessage(t *testing.T) {
	a := NewAdapter(DefaultConfig())
	ev := events.New(events.EventTypeStatus, time.Now(), events.StatusPayload{Phase: "ENDED"})

	env, err := a.Translate(ev)
	assert.NoError(t, err)
	check.Equal(t, ev.ID.String(), env.ID)
	check.Equal(t, events.EventTypeStatus, env.Type)

	var payload events.StatusPayload
	assert.NoError(t, json.Unmarshal(env.Data, &payload))
	check.Equal(t, "auction ended", payload.Message)
}

func TestAdapterFansOutToSinks(t *testing.T) {
	first := &fakeSink{name: "first"}
	failing := &fakeSink{name: "failing", err: errors.New("unreachable")}
	a := NewAdapter(DefaultConfig(), first)
	a.AddSink(failing)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	for i := 0; i < 3; i++ {
		a.Publish(events.New(events.EventTypeTimerTick, time.Now(), events.TimerTickPayload{TimeRemainingSec: i}))
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(first.received()) < 3 || len(failing.received()) < 3 {
		if time.Now().After(deadline) {
			t.Fatal("events were not delivered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	got := first.received()
	for i, env := range got {
		var tick events.TimerTickPayload
		assert.NoError(t, json.Unmarshal(env.Data, &tick))
		check.Equal(t, i, tick.TimeRemainingSec)
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	a := NewAdapter(Config{BufferSize: 2})
	for i := 0; i < 5; i++ {
		a.Publish(events.New(events.EventTypeStatus, time.Now(), events.StatusPayload{}))
	}
	check.Equal(t, int64(3), a.Dropped())
}

func TestJetStreamSubject(t *testing.T) {
	cfg := DefaultJetStreamConfig()
	check.Equal(t, "auction.events.bid-accepted", cfg.Subject(events.EventTypeBidAccepted))
	check.Equal(t, "AUCTION_EVENTS", cfg.StreamName)
}
