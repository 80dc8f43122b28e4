package broadcast

import (
	"fmt"
	"strings"

	"github.com/mcdev12/gavel/go/internal/auction/events"
	"github.com/mcdev12/gavel/go/internal/auction/state"
	"github.com/mcdev12/gavel/go/internal/models"
	"github.com/shopspring/decimal"
)

// Formatter renders amounts stored in minor units and the human readable
// message attached to every outgoing event
type Formatter struct {
	scale  int32
	symbol string
}

// NewFormatter creates a formatter. scale is the number of minor-unit digits,
// e.g. 2 renders 12345 as "123.45".
func NewFormatter(scale int32, symbol string) Formatter {
	if scale < 0 {
		scale = 0
	}
	return Formatter{scale: scale, symbol: symbol}
}

// Amount formats a minor-unit amount with the currency symbol
func (f Formatter) Amount(minor int64) string {
	return f.symbol + decimal.New(minor, -f.scale).StringFixed(f.scale)
}

// Message builds the display text for an event. Timer ticks carry no message.
func (f Formatter) Message(ev events.Event) string {
	switch p := ev.Payload.(type) {
	case events.StatusPayload:
		return f.statusMessage(p)
	case events.BidAcceptedPayload:
		msg := fmt.Sprintf("%s bids %s for %s", bidderName(p.Bidder), f.Amount(p.Amount), itemName(p.Item))
		if p.TimerRestarted {
			msg += ", clock reset"
		}
		return msg
	case events.ItemResolvedPayload:
		switch {
		case p.Outcome == models.OutcomeSold && p.Amount != nil:
			return fmt.Sprintf("%s sold to %s for %s", itemName(p.Item), bidderName(p.Winner), f.Amount(*p.Amount))
		case p.Skipped:
			return fmt.Sprintf("%s skipped", itemName(p.Item))
		default:
			return fmt.Sprintf("%s unsold", itemName(p.Item))
		}
	case events.AuctionEndedPayload:
		return fmt.Sprintf("auction ended: %d sold, %d unsold, %s spent",
			p.Summary.ItemsSold, p.Summary.ItemsUnsold, f.Amount(p.Summary.TotalAmount))
	default:
		return ""
	}
}

func (f Formatter) statusMessage(p events.StatusPayload) string {
	switch state.Phase(p.Phase) {
	case state.PhaseIdle:
		return "auction not started"
	case state.PhaseWaiting:
		return fmt.Sprintf("next item in %ds", p.TimeRemainingSec)
	case state.PhaseBidding:
		msg := fmt.Sprintf("%s on the block at %s", itemName(p.CurrentItem), f.Amount(p.HighBid))
		if p.HighBidder != nil {
			msg += " by " + p.HighBidder.Name
		}
		return fmt.Sprintf("%s, %ds left", msg, p.TimeRemainingSec)
	case state.PhasePaused:
		if p.Reason != "" {
			return p.Reason
		}
		return "auction paused"
	case state.PhaseEnded:
		return "auction ended"
	default:
		return strings.ToLower(p.Phase)
	}
}

// withMessage returns a copy of ev with the payload message filled in
func (f Formatter) withMessage(ev events.Event) events.Event {
	msg := f.Message(ev)
	switch p := ev.Payload.(type) {
	case events.StatusPayload:
		p.Message = msg
		ev.Payload = p
	case events.BidAcceptedPayload:
		p.Message = msg
		ev.Payload = p
	case events.ItemResolvedPayload:
		p.Message = msg
		ev.Payload = p
	case events.AuctionEndedPayload:
		p.Message = msg
		ev.Payload = p
	}
	return ev
}

func itemName(item *models.ItemSummary) string {
	if item == nil {
		return "item"
	}
	return item.Name
}

func bidderName(bidder *models.BidderSummary) string {
	if bidder == nil {
		return "unknown bidder"
	}
	return bidder.Name
}
