package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/gavel/go/internal/auction/events"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler upgrades auction watchers and bidders to WebSocket
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	stateProvider     StateProvider
	translator        Translator
	snapshotTimeout   time.Duration
}

func NewWebSocketHandler(cm *ConnectionManager, provider StateProvider, translator Translator) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		stateProvider:     provider,
		translator:        translator,
		snapshotTimeout:   2 * time.Second,
	}
}

// HandleAuctionConnection serves /ws/auction. bidder_id is optional; without
// it the client joins as an observer.
func (h *WebSocketHandler) HandleAuctionConnection(w http.ResponseWriter, r *http.Request) {
	bidderID := r.URL.Query().Get("bidder_id")
	if bidderID != "" {
		if _, err := uuid.Parse(bidderID); err != nil {
			http.Error(w, "invalid bidder_id format", http.StatusBadRequest)
			return
		}
	}

	snapshot := h.snapshot(r.Context())

	if err := h.connectionManager.UpgradeConnection(w, r, bidderID, snapshot); err != nil {
		// the upgrader has already written the error response
		log.Error().Err(err).Str("bidder_id", bidderID).Msg("failed to upgrade websocket connection")
	}
}

// snapshot builds the status envelope sent to a client on connect. A
// failure is logged and the client simply waits for the next status event.
func (h *WebSocketHandler) snapshot(ctx context.Context) *events.Envelope {
	if h.stateProvider == nil || h.translator == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, h.snapshotTimeout)
	defer cancel()

	st, err := h.stateProvider.GetAuctionState(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load auction state for snapshot")
		return nil
	}
	env, err := h.translator.Translate(statusEvent(st, time.Now()))
	if err != nil {
		log.Error().Err(err).Msg("failed to translate snapshot")
		return nil
	}
	return env
}

// HandleConnectionStats serves /ws/stats
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.connectionManager.Stats()); err != nil {
		log.Error().Err(err).Msg("failed to encode connection stats")
	}
}

func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/auction", h.HandleAuctionConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}
