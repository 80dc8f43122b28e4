package gateway

import (
	"context"
	"time"

	"github.com/mcdev12/gavel/go/internal/auction/engine"
	"github.com/mcdev12/gavel/go/internal/auction/events"
	"github.com/mcdev12/gavel/go/internal/auction/rpc"
)

// StateProvider reports the current auction status
type StateProvider interface {
	GetAuctionState(ctx context.Context) (*rpc.StatusResponse, error)
}

// Translator turns an event into its wire envelope
type Translator interface {
	Translate(ev events.Event) (*events.Envelope, error)
}

// EngineStateProvider reads status from an engine in the same process
type EngineStateProvider struct {
	engine *engine.Engine
}

func NewEngineStateProvider(e *engine.Engine) *EngineStateProvider {
	return &EngineStateProvider{engine: e}
}

func (p *EngineStateProvider) GetAuctionState(ctx context.Context) (*rpc.StatusResponse, error) {
	return rpc.NewStatusResponse(p.engine.Status()), nil
}

// ClientStateProvider asks a remote auction service for status. Used by the
// standalone gateway.
type ClientStateProvider struct {
	client *rpc.Client
}

func NewClientStateProvider(client *rpc.Client) *ClientStateProvider {
	return &ClientStateProvider{client: client}
}

func (p *ClientStateProvider) GetAuctionState(ctx context.Context) (*rpc.StatusResponse, error) {
	return p.client.GetStatus(ctx)
}

// statusEvent wraps a status response as a status event so that new clients
// get the same envelope shape as live updates
func statusEvent(st *rpc.StatusResponse, at time.Time) events.Event {
	return events.New(events.EventTypeStatus, at, events.StatusPayload{
		Phase:            st.Phase,
		PausedFrom:       st.PausedFrom,
		CurrentItem:      st.CurrentItem,
		HighBid:          st.HighBid,
		HighBidder:       st.HighBidder,
		ActiveTimer:      st.ActiveTimer,
		TimeRemainingSec: st.TimeRemainingSec,
		Round:            st.Round,
		Reason:           snapshotReason(st),
	})
}

func snapshotReason(st *rpc.StatusResponse) string {
	switch {
	case st.PauseReason != "":
		return st.PauseReason
	case st.EndReason != "":
		return st.EndReason
	default:
		return ""
	}
}
