package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/lib/pq"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

type fakeRepo struct {
	mu     sync.Mutex
	events []OutboxEvent
	sent   map[uuid.UUID]bool
}

func newFakeRepo(events ...OutboxEvent) *fakeRepo {
	return &fakeRepo{events: events, sent: map[uuid.UUID]bool{}}
}

func (r *fakeRepo) add(ev OutboxEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *fakeRepo) isSent(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent[id]
}

func (r *fakeRepo) FetchByID(ctx context.Context, id uuid.UUID) (*OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.ID == id && !r.sent[id] {
			ev := ev
			return &ev, nil
		}
	}
	return nil, fmt.Errorf("outbox event %s: %w", id, ErrAlreadySent)
}

func (r *fakeRepo) FetchUnsent(ctx context.Context, limit int32) ([]OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []OutboxEvent
	for _, ev := range r.events {
		if !r.sent[ev.ID] && int32(len(out)) < limit {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (r *fakeRepo) MarkSent(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent[id] = true
	return nil
}

func (r *fakeRepo) CountUnsent(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, ev := range r.events {
		if !r.sent[ev.ID] {
			n++
		}
	}
	return n, nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []OutboxEvent
	attempts  int
	failFirst int
	failIDs   map[uuid.UUID]bool
}

func (p *fakePublisher) Publish(ctx context.Context, event OutboxEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts++
	if p.attempts <= p.failFirst || p.failIDs[event.ID] {
		return errors.New("nats unavailable")
	}
	p.published = append(p.published, event)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testListenerConfig() ListenerConfig {
	cfg := DefaultListenerConfig()
	cfg.MaxRetries = 2
	cfg.RetryDelay = 0
	return cfg
}

func newEvent(eventType string) OutboxEvent {
	itemID := uuid.New()
	return OutboxEvent{
		ID:        uuid.New(),
		EventType: eventType,
		ItemID:    &itemID,
		Payload:   json.RawMessage(`{"amount":300}`),
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestHandleNotification(t *testing.T) {
	ctx := context.Background()

	t.Run("relays and marks sent", func(t *testing.T) {
		ev := newEvent("item-sold")
		repo := newFakeRepo(ev)
		pub := &fakePublisher{}
		l := newListener(repo, pub, testListenerConfig(), testLogger(), nil)

		assert.NoError(t, l.handleNotification(ctx, ev.ID.String()))
		check.Equal(t, 1, pub.count())
		check.True(t, repo.isSent(ev.ID))

		processed, last := l.Stats()
		check.Equal(t, uint64(1), processed)
		check.False(t, last.IsZero())
	})

	t.Run("already sent is a no-op", func(t *testing.T) {
		ev := newEvent("item-unsold")
		repo := newFakeRepo(ev)
		assert.NoError(t, repo.MarkSent(ctx, ev.ID))
		pub := &fakePublisher{}
		l := newListener(repo, pub, testListenerConfig(), testLogger(), nil)

		check.NoError(t, l.handleNotification(ctx, ev.ID.String()))
		check.Equal(t, 0, pub.count())
	})

	t.Run("bad payload", func(t *testing.T) {
		l := newListener(newFakeRepo(), &fakePublisher{}, testListenerConfig(), testLogger(), nil)
		check.Error(t, l.handleNotification(ctx, "not-a-uuid"))
	})
}

func TestPublishWithRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeds after transient failures", func(t *testing.T) {
		ev := newEvent("item-sold")
		repo := newFakeRepo(ev)
		pub := &fakePublisher{failFirst: 2}
		l := newListener(repo, pub, testListenerConfig(), testLogger(), nil)

		assert.NoError(t, l.relay(ctx, ev))
		check.Equal(t, 3, pub.attempts)
		check.True(t, repo.isSent(ev.ID))
	})

	t.Run("exhausted retries leave the row unsent", func(t *testing.T) {
		ev := newEvent("item-sold")
		repo := newFakeRepo(ev)
		pub := &fakePublisher{failFirst: 100}
		l := newListener(repo, pub, testListenerConfig(), testLogger(), nil)

		check.Error(t, l.relay(ctx, ev))
		check.Equal(t, 3, pub.attempts)
		check.False(t, repo.isSent(ev.ID))
	})
}

func TestProcessUnsentContinuesPastFailures(t *testing.T) {
	ctx := context.Background()
	good1, bad, good2 := newEvent("item-sold"), newEvent("item-unsold"), newEvent("auction-ended")
	repo := newFakeRepo(good1, bad, good2)
	pub := &fakePublisher{failIDs: map[uuid.UUID]bool{bad.ID: true}}
	l := newListener(repo, pub, testListenerConfig(), testLogger(), nil)

	assert.NoError(t, l.processUnsent(ctx))
	check.True(t, repo.isSent(good1.ID))
	check.False(t, repo.isSent(bad.ID))
	check.True(t, repo.isSent(good2.ID))

	pending, err := repo.CountUnsent(ctx)
	assert.NoError(t, err)
	check.Equal(t, int64(1), pending)
}

func waitFor(t *testing.T, desc string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", desc)
}

func TestStartRelaysBacklogThenNotifications(t *testing.T) {
	backlog := newEvent("item-sold")
	repo := newFakeRepo(backlog)
	pub := &fakePublisher{}
	notify := make(chan *pq.Notification, 1)
	clock := clockwork.NewFakeClock()
	l := newListener(repo, pub, testListenerConfig(), testLogger(), notify, WithListenerClock(clock))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Start(ctx) }()

	waitFor(t, "backlog relay", func() bool { return repo.isSent(backlog.ID) })
	check.True(t, l.Active())

	live := newEvent("item-unsold")
	repo.add(live)
	notify <- &pq.Notification{Channel: "auction_outbox_events", Extra: live.ID.String()}
	waitFor(t, "notified relay", func() bool { return repo.isSent(live.ID) })

	// a reconnect (nil notification) triggers a poll
	missed := newEvent("auction-ended")
	repo.add(missed)
	notify <- nil
	waitFor(t, "poll after reconnect", func() bool { return repo.isSent(missed.ID) })

	cancel()
	select {
	case err := <-done:
		check.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
	check.False(t, l.Active())
	check.Equal(t, 3, pub.count())
}

type fakePinger struct{ err error }

func (p fakePinger) PingContext(ctx context.Context) error { return p.err }

type fakeConn bool

func (c fakeConn) IsConnected() bool { return bool(c) }

func TestHealthChecker(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()

	t.Run("healthy while active", func(t *testing.T) {
		repo := newFakeRepo()
		l := newListener(repo, &fakePublisher{}, testListenerConfig(), testLogger(), nil, WithListenerClock(clock))
		l.setActive(true)
		h := NewHealthChecker(l, fakePinger{}, fakeConn(true), repo, time.Minute)

		status := h.Check(ctx)
		check.True(t, status.Healthy)
		check.True(t, status.DatabaseConnected)
		check.True(t, status.NATSConnected)
		check.Equal(t, 0, len(status.Errors))
	})

	t.Run("inactive listener and lost nats", func(t *testing.T) {
		repo := newFakeRepo()
		l := newListener(repo, &fakePublisher{}, testListenerConfig(), testLogger(), nil, WithListenerClock(clock))
		h := NewHealthChecker(l, fakePinger{}, fakeConn(false), repo, time.Minute)

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		check.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var status HealthStatus
		assert.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
		check.False(t, status.Healthy)
		check.Equal(t, 2, len(status.Errors))
	})

	t.Run("stalled relay", func(t *testing.T) {
		sent := newEvent("item-sold")
		repo := newFakeRepo(sent)
		l := newListener(repo, &fakePublisher{}, testListenerConfig(), testLogger(), nil, WithListenerClock(clock))
		l.setActive(true)
		assert.NoError(t, l.relay(ctx, sent))

		repo.add(newEvent("item-unsold"))
		h := NewHealthChecker(l, fakePinger{}, fakeConn(true), repo, time.Minute)
		check.True(t, h.Check(ctx).Healthy)

		clock.Advance(2 * time.Minute)
		status := h.Check(ctx)
		check.False(t, status.Healthy)
		check.Equal(t, int64(1), status.PendingEvents)
	})

	t.Run("database down", func(t *testing.T) {
		repo := newFakeRepo()
		l := newListener(repo, &fakePublisher{}, testListenerConfig(), testLogger(), nil, WithListenerClock(clock))
		l.setActive(true)
		h := NewHealthChecker(l, fakePinger{err: errors.New("refused")}, fakeConn(true), repo, time.Minute)

		status := h.Check(ctx)
		check.False(t, status.Healthy)
		check.False(t, status.DatabaseConnected)
	})
}

func TestBuildMsg(t *testing.T) {
	ev := newEvent("item-sold")
	msg, err := buildMsg("auction.outbox", ev)
	assert.NoError(t, err)

	check.Equal(t, "auction.outbox.item-sold", msg.Subject)
	check.Equal(t, ev.ID.String(), msg.Header.Get("Event-ID"))
	check.Equal(t, "item-sold", msg.Header.Get("Event-Type"))
	check.Equal(t, ev.ItemID.String(), msg.Header.Get("Item-ID"))

	var body map[string]any
	assert.NoError(t, json.Unmarshal(msg.Data, &body))
	check.Equal[any](t, ev.ID.String(), body["event_id"])
	check.Equal[any](t, float64(300), body["payload"].(map[string]any)["amount"])

	ended := OutboxEvent{ID: uuid.New(), EventType: "auction-ended", Payload: json.RawMessage(`{}`)}
	msg, err = buildMsg("auction.outbox", ended)
	assert.NoError(t, err)
	check.Equal(t, "", msg.Header.Get("Item-ID"))
}
