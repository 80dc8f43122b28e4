package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/gavel/go/internal/config"
)

func setupServer(cfg *config.Config, services *Services, st *storeHandle) *http.Server {
	mux := http.NewServeMux()

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"Auction-Phase", "Bid-Rejection-Reason"},
	})

	path, handler := services.Auction.Handler()
	mux.Handle(path, handler)

	services.Gateway.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.HandlerFor(services.Registry, promhttp.HandlerOpts{}))
	setupHealthCheck(mux, services, st)

	return &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           h2c.NewHandler(c.Handler(mux), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

type healthResponse struct {
	Status      string `json:"status"`
	Phase       string `json:"phase"`
	Store       string `json:"store"`
	Gateway     string `json:"gateway"`
	Connections int    `json:"connections"`
}

func setupHealthCheck(mux *http.ServeMux, services *Services, st *storeHandle) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{
			Status:      "ok",
			Phase:       string(services.Engine.Status().Phase),
			Store:       "ok",
			Gateway:     "ok",
			Connections: services.Gateway.Stats().TotalConnections,
		}
		code := http.StatusOK
		if err := st.ping(ctx); err != nil {
			resp.Status, resp.Store = "degraded", err.Error()
			code = http.StatusServiceUnavailable
		}
		if !services.Gateway.Healthy() {
			resp.Status, resp.Gateway = "degraded", "jetstream disconnected"
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}
