package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gavel/go/internal/config"
	"github.com/mcdev12/gavel/go/internal/logging"
)

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := setupStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Store.Backend).Msg("failed to set up store")
	}
	defer st.close()

	services, err := setupServices(ctx, cfg, st)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up services")
	}
	services.run(ctx)

	server := setupServer(cfg, services, st)
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Str("store", cfg.Store.Backend).
			Dur("bid_timer", cfg.Engine().BidDuration).
			Dur("wait_timer", cfg.Engine().WaitDuration).
			Int64("min_bid_increment", cfg.Auction.MinBidIncrement).
			Msg("auction server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	services.close(shutdownCtx)
	log.Info().Msg("auction server stopped")
}
