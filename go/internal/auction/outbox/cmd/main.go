package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mcdev12/gavel/go/internal/auction/outbox"
	"github.com/mcdev12/gavel/go/internal/auction/store/postgres/db"
	"github.com/mcdev12/gavel/go/internal/config"
	"github.com/mcdev12/gavel/go/internal/dbconfig"
	"github.com/mcdev12/gavel/go/internal/logging"
)

func main() {
	envErr := godotenv.Load()

	// the JetStream publisher logs through zerolog, the relay itself through slog
	logging.Setup()
	logger := logging.SetupSlog()
	if envErr != nil {
		logger.Warn("could not load .env file", slog.String("error", envErr.Error()))
	}

	cfg, err := config.Load("")
	if err != nil {
		logger.Error("load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbCfg := dbconfig.NewConfigFromEnv()
	conn, err := dbCfg.Open(ctx)
	if err != nil {
		logger.Error("open database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer conn.Close()

	jsCfg := outbox.DefaultJetStreamConfig()
	if cfg.NATS.URL != "" {
		jsCfg.URL = cfg.NATS.URL
	}
	publisher, err := outbox.NewJetStreamPublisher(ctx, jsCfg)
	if err != nil {
		logger.Error("create JetStream publisher", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer publisher.Close()

	ltCfg := outbox.DefaultListenerConfig()
	ltCfg.DatabaseURL = dbCfg.DSN()
	if iv := os.Getenv("FALLBACK_INTERVAL"); iv != "" {
		if d, err := time.ParseDuration(iv); err == nil {
			ltCfg.FallbackInterval = d
		}
	}

	registry := prometheus.NewRegistry()
	metrics := outbox.NewPrometheusMetrics(registry)
	repo := outbox.NewPostgresRepository(db.New(conn))

	listener, err := outbox.NewListener(repo, publisher, ltCfg, logger, outbox.WithListenerMetrics(metrics))
	if err != nil {
		logger.Error("create outbox listener", slog.String("error", err.Error()))
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.Handle("/health", outbox.NewHealthChecker(listener, conn, publisher, repo, 2*ltCfg.FallbackInterval))
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	healthServer := &http.Server{
		Addr:              ":" + cfg.Server.OutboxHealthPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("health server listening", slog.String("addr", healthServer.Addr))
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("health server", slog.String("error", err.Error()))
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting outbox relay")
		errCh <- listener.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		if err := <-errCh; err != nil {
			logger.Error("listener close", slog.String("error", err.Error()))
		}
	case err := <-errCh:
		logger.Error("listener exited unexpectedly", slog.Any("error", err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = healthServer.Shutdown(shutdownCtx)
	logger.Info("graceful shutdown complete")
}
