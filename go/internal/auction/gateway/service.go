package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
)

// Service ties the WebSocket fan-out to a source of events. In the auction
// server the broadcast adapter feeds the connection manager directly; the
// standalone gateway consumes from JetStream instead.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
	eventConsumer     *EventConsumer
}

type Config struct {
	ConnectionConfig ConnectionConfig
	// JetStream is nil when events arrive in-process
	JetStream *JetStreamConsumerConfig
}

func DefaultConfig() Config {
	return Config{ConnectionConfig: DefaultConnectionConfig()}
}

func NewService(ctx context.Context, config Config, provider StateProvider, translator Translator) (*Service, error) {
	cm := NewConnectionManager(config.ConnectionConfig)
	s := &Service{
		connectionManager: cm,
		wsHandler:         NewWebSocketHandler(cm, provider, translator),
		stateHandler:      NewStateHandler(provider),
	}

	if config.JetStream != nil {
		consumer, err := NewEventConsumer(ctx, cm, *config.JetStream)
		if err != nil {
			return nil, fmt.Errorf("failed to create event consumer: %w", err)
		}
		s.eventConsumer = consumer
	}
	return s, nil
}

// ConnectionManager is the sink to register with a broadcast adapter
func (s *Service) ConnectionManager() *ConnectionManager {
	return s.connectionManager
}

// Start runs until ctx is cancelled
func (s *Service) Start(ctx context.Context) error {
	log.Info().Bool("jetstream", s.eventConsumer != nil).Msg("starting auction gateway")

	go s.connectionManager.Start(ctx)

	if s.eventConsumer != nil {
		go func() {
			if err := s.eventConsumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("event consumer failed")
			}
		}()
	}

	<-ctx.Done()
	log.Info().Msg("auction gateway shutting down")
	return s.Stop()
}

func (s *Service) Stop() error {
	if s.eventConsumer != nil {
		if err := s.eventConsumer.Stop(); err != nil {
			log.Error().Err(err).Msg("failed to stop event consumer")
		}
	}
	log.Info().Msg("auction gateway stopped")
	return nil
}

// Healthy is false when a configured JetStream connection is down
func (s *Service) Healthy() bool {
	return s.eventConsumer == nil || s.eventConsumer.Connected()
}

func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	log.Info().Msg("auction gateway routes registered")
}

func (s *Service) Stats() ConnectionStats {
	return s.connectionManager.Stats()
}
