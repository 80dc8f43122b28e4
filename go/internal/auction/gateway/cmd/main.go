package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gavel/go/internal/auction/broadcast"
	"github.com/mcdev12/gavel/go/internal/auction/gateway"
	"github.com/mcdev12/gavel/go/internal/auction/rpc"
	"github.com/mcdev12/gavel/go/internal/auth"
	"github.com/mcdev12/gavel/go/internal/config"
	"github.com/mcdev12/gavel/go/internal/logging"
)

// The standalone gateway serves WebSocket clients from a separate process.
// Live events come from JetStream; snapshots come from the auction server's
// GetStatus RPC.
func main() {
	envErr := godotenv.Load()
	logging.Setup()
	if envErr != nil {
		log.Warn().Err(envErr).Msg("could not load .env file")
	}

	cfg, err := config.Load("")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	var clientOpts []connect.ClientOption
	if cfg.Auth.JWTSecret != "" {
		token, err := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.TokenTTL()).GenerateOperator("auction-gateway")
		if err != nil {
			log.Fatal().Err(err).Msg("failed to mint gateway token")
		}
		clientOpts = append(clientOpts, rpc.WithBearerToken(token))
	}
	client := rpc.NewClient(&http.Client{Timeout: 5 * time.Second}, cfg.Server.AuctionURL, clientOpts...)

	jsCfg := gateway.DefaultJetStreamConsumerConfig()
	if cfg.NATS.URL != "" {
		jsCfg.URL = cfg.NATS.URL
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// the adapter is only used to translate snapshots; it is never run
	translator := broadcast.NewAdapter(cfg.Broadcast())
	gatewayService, err := gateway.NewService(ctx, gateway.Config{
		ConnectionConfig: gateway.DefaultConnectionConfig(),
		JetStream:        &jsCfg,
	}, gateway.NewClientStateProvider(client), translator)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create gateway service")
	}

	mux := http.NewServeMux()
	gatewayService.RegisterRoutes(mux)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if !gatewayService.Healthy() {
			http.Error(w, "jetstream disconnected", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"service":     "auction-gateway",
			"auction_url": cfg.Server.AuctionURL,
			"connections": gatewayService.Stats(),
		})
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.GatewayPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		if err := gatewayService.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway service failed")
		}
	}()

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Str("auction_url", cfg.Server.AuctionURL).
			Str("nats_url", jsCfg.URL).
			Msg("auction gateway listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	log.Info().Msg("auction gateway shutdown complete")
}
