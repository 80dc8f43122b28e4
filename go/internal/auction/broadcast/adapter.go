// Package broadcast turns engine events into wire envelopes and fans them out
// to observers. Publishing never blocks the engine: events go into a buffered
// queue and are dropped with a warning when it is full.
package broadcast

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mcdev12/gavel/go/internal/auction/events"
	"github.com/rs/zerolog/log"
)

// Sink delivers envelopes to one kind of observer
type Sink interface {
	Name() string
	Send(ctx context.Context, env *events.Envelope) error
}

// Config holds adapter settings
type Config struct {
	BufferSize     int
	SendTimeout    time.Duration
	CurrencyScale  int32
	CurrencySymbol string
}

func DefaultConfig() Config {
	return Config{
		BufferSize:  1000,
		SendTimeout: 2 * time.Second,
	}
}

type Adapter struct {
	config    Config
	formatter Formatter
	queue     chan events.Event
	dropped   atomic.Int64

	mu    sync.RWMutex
	sinks []Sink
}

// NewAdapter creates an adapter delivering to the given sinks
func NewAdapter(config Config, sinks ...Sink) *Adapter {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = DefaultConfig().SendTimeout
	}
	return &Adapter{
		config:    config,
		formatter: NewFormatter(config.CurrencyScale, config.CurrencySymbol),
		queue:     make(chan events.Event, config.BufferSize),
		sinks:     sinks,
	}
}

// AddSink registers another observer. Safe to call while running.
func (a *Adapter) AddSink(s Sink) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sinks = append(a.sinks, s)
}

// Publish queues an event for delivery
func (a *Adapter) Publish(ev events.Event) {
	select {
	case a.queue <- ev:
	default:
		a.dropped.Add(1)
		log.Warn().
			Str("event_type", string(ev.Type)).
			Str("event_id", ev.ID.String()).
			Msg("broadcast queue full, dropping event")
	}
}

// Dropped reports how many events were discarded because the queue was full
func (a *Adapter) Dropped() int64 {
	return a.dropped.Load()
}

// Formatter returns the formatter used for event messages
func (a *Adapter) Formatter() Formatter {
	return a.formatter
}

// Translate fills the event message and marshals it into an envelope
func (a *Adapter) Translate(ev events.Event) (*events.Envelope, error) {
	return events.NewEnvelope(a.formatter.withMessage(ev))
}

// Run delivers queued events until ctx is cancelled
func (a *Adapter) Run(ctx context.Context) {
	log.Info().Int("buffer", a.config.BufferSize).Msg("broadcast adapter started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("broadcast adapter shutting down")
			return
		case ev := <-a.queue:
			a.dispatch(ctx, ev)
		}
	}
}

func (a *Adapter) dispatch(ctx context.Context, ev events.Event) {
	env, err := a.Translate(ev)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(ev.Type)).Msg("failed to translate event")
		return
	}

	a.mu.RLock()
	sinks := append([]Sink(nil), a.sinks...)
	a.mu.RUnlock()

	for _, s := range sinks {
		sendCtx, cancel := context.WithTimeout(ctx, a.config.SendTimeout)
		if err := s.Send(sendCtx, env); err != nil {
			log.Warn().
				Err(err).
				Str("sink", s.Name()).
				Str("event_type", string(env.Type)).
				Msg("failed to deliver event")
		}
		cancel()
	}
}
