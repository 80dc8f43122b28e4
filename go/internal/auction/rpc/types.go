package rpc

import (
	"encoding/json"
	"time"

	"github.com/mcdev12/gavel/go/internal/auction/countdown"
	"github.com/mcdev12/gavel/go/internal/auction/engine"
	"github.com/mcdev12/gavel/go/internal/models"
)

const ServiceName = "gavel.auction.v1.AuctionService"

const (
	StartProcedure           = "/" + ServiceName + "/Start"
	PauseProcedure           = "/" + ServiceName + "/Pause"
	ResumeProcedure          = "/" + ServiceName + "/Resume"
	EndProcedure             = "/" + ServiceName + "/End"
	ForceResolveProcedure    = "/" + ServiceName + "/ForceResolve"
	SkipCurrentItemProcedure = "/" + ServiceName + "/SkipCurrentItem"
	ForceNextProcedure       = "/" + ServiceName + "/ForceNext"
	ResetProcedure           = "/" + ServiceName + "/Reset"
	GetStatusProcedure       = "/" + ServiceName + "/GetStatus"
	PlaceBidProcedure        = "/" + ServiceName + "/PlaceBid"
	GetItemProcedure         = "/" + ServiceName + "/GetItem"
	LoginProcedure           = "/" + ServiceName + "/Login"
)

type PauseRequest struct {
	Reason string `json:"reason,omitempty"`
}

type EndRequest struct {
	Reason string `json:"reason,omitempty"`
}

// CommandResponse reports the phase after an operator command
type CommandResponse struct {
	Phase string `json:"phase"`
}

// PlaceBidRequest places a bid on the current item. Bidder tokens bid as
// themselves; operators must name the bidder.
type PlaceBidRequest struct {
	BidderID string `json:"bidder_id,omitempty"`
	Amount   int64  `json:"amount"`
}

type PlaceBidResponse struct {
	BidID    string    `json:"bid_id"`
	ItemID   string    `json:"item_id"`
	BidderID string    `json:"bidder_id"`
	Amount   int64     `json:"amount"`
	PlacedAt time.Time `json:"placed_at"`
}

type GetItemRequest struct {
	ItemID string `json:"item_id"`
}

type ItemResponse struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Role       string          `json:"role,omitempty"`
	BasePrice  int64           `json:"base_price"`
	Status     string          `json:"status"`
	OwnerID    string          `json:"owner_id,omitempty"`
	Attributes json.RawMessage `json:"attributes,omitempty"`
}

type LoginRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

// StatusResponse is the public view of the auction
type StatusResponse struct {
	Phase            string                `json:"phase"`
	PausedFrom       string                `json:"paused_from,omitempty"`
	PauseReason      string                `json:"pause_reason,omitempty"`
	CurrentItem      *models.ItemSummary   `json:"current_item,omitempty"`
	HighBid          int64                 `json:"high_bid"`
	HighBidder       *models.BidderSummary `json:"high_bidder,omitempty"`
	BidCount         int                   `json:"bid_count"`
	ActiveTimer      string                `json:"active_timer,omitempty"`
	TimeRemainingSec int                   `json:"time_remaining_sec"`
	Round            int                   `json:"round"`
	SoldCount        int                   `json:"sold_count"`
	UnsoldCount      int                   `json:"unsold_count"`
	EndReason        string                `json:"end_reason,omitempty"`
}

// NewStatusResponse converts an engine status
func NewStatusResponse(st engine.Status) *StatusResponse {
	return &StatusResponse{
		Phase:            string(st.Phase),
		PausedFrom:       string(st.PausedFrom),
		PauseReason:      st.PauseReason,
		CurrentItem:      st.CurrentItem.Summary(),
		HighBid:          st.HighBid,
		HighBidder:       st.HighBidder.Summary(),
		BidCount:         st.BidCount,
		ActiveTimer:      string(st.ActiveTimer),
		TimeRemainingSec: countdown.Seconds(st.TimeRemaining),
		Round:            st.Round,
		SoldCount:        st.SoldCount,
		UnsoldCount:      st.UnsoldCount,
		EndReason:        st.EndReason,
	}
}

func newItemResponse(item *models.Item) *ItemResponse {
	resp := &ItemResponse{
		ID:         item.ID.String(),
		Name:       item.Name,
		Role:       item.Role,
		BasePrice:  item.BasePrice,
		Status:     string(item.Status),
		Attributes: item.Attributes,
	}
	if item.OwnerID != nil {
		resp.OwnerID = item.OwnerID.String()
	}
	return resp
}
