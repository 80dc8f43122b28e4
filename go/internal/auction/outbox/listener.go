package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/lib/pq"
)

type ListenerConfig struct {
	DatabaseURL      string // Postgres DSN for LISTEN/NOTIFY
	NotifyChannel    string
	FallbackInterval time.Duration // how often to poll for missed rows
	MaxRetries       int
	RetryDelay       time.Duration // multiplied by the attempt number
	PingInterval     time.Duration
	BatchSize        int32
}

func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		NotifyChannel:    "auction_outbox_events",
		FallbackInterval: 30 * time.Second,
		MaxRetries:       5,
		RetryDelay:       200 * time.Millisecond,
		PingInterval:     90 * time.Second,
		BatchSize:        100,
	}
}

type ListenerOption func(*Listener)

func WithListenerClock(clock clockwork.Clock) ListenerOption {
	return func(l *Listener) { l.clock = clock }
}

func WithListenerMetrics(m MetricsCollector) ListenerOption {
	return func(l *Listener) { l.metrics = m }
}

type Listener struct {
	repo      Repository
	publisher Publisher
	metrics   MetricsCollector
	cfg       ListenerConfig
	logger    *slog.Logger
	clock     clockwork.Clock

	notify <-chan *pq.Notification
	ping   func() error
	close  func() error

	mu          sync.Mutex
	active      bool
	processed   uint64
	lastEventAt time.Time
}

// NewListener opens a dedicated LISTEN connection on cfg.NotifyChannel
func NewListener(repo Repository, publisher Publisher, cfg ListenerConfig, logger *slog.Logger, opts ...ListenerOption) (*Listener, error) {
	pl := pq.NewListener(
		cfg.DatabaseURL,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				logger.Error("listener event", slog.Int("event", int(ev)), slog.String("error", err.Error()))
			}
		},
	)
	if err := pl.Listen(cfg.NotifyChannel); err != nil {
		pl.Close()
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	logger.Info("listening for notifications", slog.String("channel", cfg.NotifyChannel))

	l := newListener(repo, publisher, cfg, logger, pl.Notify, opts...)
	l.ping = pl.Ping
	l.close = pl.Close
	return l, nil
}

func newListener(repo Repository, publisher Publisher, cfg ListenerConfig, logger *slog.Logger, notify <-chan *pq.Notification, opts ...ListenerOption) *Listener {
	l := &Listener{
		repo:      repo,
		publisher: publisher,
		metrics:   &NoOpMetricsCollector{},
		cfg:       cfg,
		logger:    logger,
		clock:     clockwork.NewRealClock(),
		notify:    notify,
		ping:      func() error { return nil },
		close:     func() error { return nil },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start relays unsent rows, then blocks handling notifications and the
// fallback poll until ctx is cancelled
func (l *Listener) Start(ctx context.Context) error {
	l.setActive(true)
	defer l.setActive(false)

	l.logger.Info("listener started",
		slog.String("channel", l.cfg.NotifyChannel),
		slog.Duration("ping_interval", l.cfg.PingInterval),
		slog.Duration("fallback_interval", l.cfg.FallbackInterval))

	pingTicker := l.clock.NewTicker(l.cfg.PingInterval)
	fallbackTicker := l.clock.NewTicker(l.cfg.FallbackInterval)
	defer pingTicker.Stop()
	defer fallbackTicker.Stop()

	if err := l.processUnsent(ctx); err != nil {
		l.logger.Error("failed to process unsent events", slog.String("error", err.Error()))
	}

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("listener shutting down")
			return l.close()
		case note := <-l.notify:
			if note == nil {
				// the connection was re-established; notifications may have been missed
				if err := l.processUnsent(ctx); err != nil {
					l.logger.Error("failed to process unsent events", slog.String("error", err.Error()))
				}
				continue
			}
			if err := l.handleNotification(ctx, note.Extra); err != nil {
				l.logger.Error("failed to handle notification", slog.String("error", err.Error()))
			}
		case <-fallbackTicker.Chan():
			if err := l.processUnsent(ctx); err != nil {
				l.logger.Error("failed to process unsent events", slog.String("error", err.Error()))
			}
		case <-pingTicker.Chan():
			if err := l.ping(); err != nil {
				l.logger.Error("failed to ping listener", slog.String("error", err.Error()))
			}
		}
	}
}

// Active reports whether Start is running
func (l *Listener) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// Stats returns how many events have been relayed and when the last one was
func (l *Listener) Stats() (uint64, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.processed, l.lastEventAt
}

func (l *Listener) setActive(active bool) {
	l.mu.Lock()
	l.active = active
	l.mu.Unlock()
}

// handleNotification relays the row whose id is the notification payload
func (l *Listener) handleNotification(ctx context.Context, extra string) error {
	id, err := uuid.Parse(extra)
	if err != nil {
		return fmt.Errorf("invalid event ID in notification: %w", err)
	}

	event, err := l.repo.FetchByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAlreadySent) {
			l.logger.Debug("outbox event already relayed", slog.String("event_id", id.String()))
			return nil
		}
		return err
	}
	return l.relay(ctx, *event)
}

func (l *Listener) processUnsent(ctx context.Context) error {
	start := l.clock.Now()
	unsent, err := l.repo.FetchUnsent(ctx, l.cfg.BatchSize)
	if err != nil {
		return err
	}

	relayed := 0
	for _, event := range unsent {
		if err := l.relay(ctx, event); err != nil {
			l.logger.Error("failed to relay event",
				slog.String("event_id", event.ID.String()),
				slog.String("event_type", event.EventType),
				slog.String("error", err.Error()))
			continue
		}
		relayed++
	}

	if len(unsent) > 0 {
		l.metrics.RecordBatchProcessed(relayed, l.clock.Since(start))
		l.logger.Info("processed unsent events",
			slog.Int("total", len(unsent)),
			slog.Int("successful", relayed))
	}

	if lag, err := l.repo.CountUnsent(ctx); err == nil {
		l.metrics.RecordOutboxLag(int(lag))
	}
	return nil
}

// relay publishes the event and marks it sent. A row that fails to mark is
// published again on the next poll; the publisher's message id dedupes it.
func (l *Listener) relay(ctx context.Context, event OutboxEvent) error {
	start := l.clock.Now()
	err := l.publishWithRetry(ctx, event)
	l.metrics.RecordEventProcessed(event.EventType, err == nil, l.clock.Since(start))
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	if err := l.repo.MarkSent(ctx, event.ID); err != nil {
		return err
	}

	l.mu.Lock()
	l.processed++
	l.lastEventAt = l.clock.Now()
	l.mu.Unlock()

	l.logger.Info("published and marked event as sent",
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", event.EventType))
	return nil
}

func (l *Listener) publishWithRetry(ctx context.Context, event OutboxEvent) error {
	var lastErr error

	for attempt := 0; attempt <= l.cfg.MaxRetries; attempt++ {
		if attempt > 0 && l.cfg.RetryDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-l.clock.After(l.cfg.RetryDelay * time.Duration(attempt)):
			}
		}

		if err := l.publisher.Publish(ctx, event); err != nil {
			lastErr = err
			l.metrics.RecordPublishAttempt(event.EventType, attempt+1, false)
			l.logger.Warn("failed to publish, retrying",
				slog.String("event_id", event.ID.String()),
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()))
			continue
		}

		l.metrics.RecordPublishAttempt(event.EventType, attempt+1, true)
		if attempt > 0 {
			l.logger.Info("publish succeeded after retry",
				slog.String("event_id", event.ID.String()),
				slog.Int("attempt", attempt+1))
		}
		return nil
	}

	return fmt.Errorf("publish failed after %d attempts: %w", l.cfg.MaxRetries+1, lastErr)
}
