package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gavel/go/internal/auction/broadcast"
	"github.com/mcdev12/gavel/go/internal/auction/engine"
	"github.com/mcdev12/gavel/go/internal/auction/gateway"
	"github.com/mcdev12/gavel/go/internal/auction/rpc"
	"github.com/mcdev12/gavel/go/internal/auth"
	"github.com/mcdev12/gavel/go/internal/config"
)

type Services struct {
	Engine    *engine.Engine
	Adapter   *broadcast.Adapter
	Gateway   *gateway.Service
	Auction   *rpc.Service
	JetStream *broadcast.JetStreamSink // nil unless NATS_URL is set
	Registry  *prometheus.Registry
}

func setupServices(ctx context.Context, cfg *config.Config, st *storeHandle) (*Services, error) {
	// Wire up: store → engine → broadcast adapter → sinks (websocket, jetstream)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	adapter := broadcast.NewAdapter(cfg.Broadcast())
	registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "gavel",
		Subsystem: "broadcast",
		Name:      "dropped_events",
		Help:      "Events dropped because the broadcast queue was full.",
	}, func() float64 { return float64(adapter.Dropped()) }))

	eng, err := engine.New(st, adapter, cfg.Engine(),
		engine.WithMetrics(engine.NewPrometheusMetrics(registry)))
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}

	gw, err := gateway.NewService(ctx, gateway.DefaultConfig(), gateway.NewEngineStateProvider(eng), adapter)
	if err != nil {
		return nil, fmt.Errorf("create gateway: %w", err)
	}
	adapter.AddSink(gw.ConnectionManager())

	var js *broadcast.JetStreamSink
	if cfg.NATS.URL != "" {
		jsCfg := broadcast.DefaultJetStreamConfig()
		jsCfg.URL = cfg.NATS.URL
		if js, err = broadcast.NewJetStreamSink(ctx, jsCfg); err != nil {
			return nil, fmt.Errorf("create JetStream sink: %w", err)
		}
		adapter.AddSink(js)
	}

	var jwtManager *auth.JWTManager
	if cfg.Auth.JWTSecret != "" {
		jwtManager = auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.TokenTTL())
	} else {
		log.Warn().Msg("JWT_SECRET not set; every RPC caller is treated as an operator")
	}
	operator := auth.NewOperatorAuthenticator(cfg.Auth.OperatorName, cfg.Auth.OperatorPasswordHash)

	return &Services{
		Engine:    eng,
		Adapter:   adapter,
		Gateway:   gw,
		Auction:   rpc.NewService(eng, jwtManager, operator),
		JetStream: js,
		Registry:  registry,
	}, nil
}

// run starts the background loops; they stop when ctx is cancelled
func (s *Services) run(ctx context.Context) {
	go s.Adapter.Run(ctx)
	go func() {
		if err := s.Gateway.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway stopped with error")
		}
	}()
}

// close drains pending persistence writes and releases connections
func (s *Services) close(ctx context.Context) {
	if err := s.Engine.Close(ctx); err != nil {
		log.Error().Err(err).Msg("engine close")
	}
	if s.JetStream != nil {
		_ = s.JetStream.Close()
	}
}
