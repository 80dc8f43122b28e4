package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// StateHandler serves the auction status over plain HTTP for clients that
// poll instead of holding a socket
type StateHandler struct {
	stateProvider StateProvider
}

func NewStateHandler(provider StateProvider) *StateHandler {
	return &StateHandler{stateProvider: provider}
}

// HandleGetAuctionState handles GET /api/auction/state
func (h *StateHandler) HandleGetAuctionState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	st, err := h.stateProvider.GetAuctionState(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to get auction state")
		http.Error(w, "failed to get auction state", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(st); err != nil {
		log.Error().Err(err).Msg("failed to encode auction state response")
	}
}

func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/auction/state", h.HandleGetAuctionState)
}
