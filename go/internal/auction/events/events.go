package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of auction event
type EventType string

const (
	EventTypeStatus       EventType = "status"
	EventTypeBidAccepted  EventType = "bid-accepted"
	EventTypeItemResolved EventType = "item-resolved"
	EventTypeTimerTick    EventType = "timer-tick"
	EventTypeAuctionEnded EventType = "auction-ended"
)

// Event is what the engine publishes after a committed mutation. Payload holds
// one of the *Payload types in this package.
type Event struct {
	ID        uuid.UUID
	Type      EventType
	Timestamp time.Time
	Payload   any
}

// New stamps an event with a fresh id
func New(eventType EventType, at time.Time, payload any) Event {
	return Event{
		ID:        uuid.New(),
		Type:      eventType,
		Timestamp: at,
		Payload:   payload,
	}
}

// Envelope is the wire form of an event sent to observers
type Envelope struct {
	ID        string          `json:"id"`        // Event UUID
	Type      EventType       `json:"type"`      // Event type
	Timestamp time.Time       `json:"timestamp"` // Event creation time
	Data      json.RawMessage `json:"data"`      // Event-specific payload
}

// NewEnvelope marshals the event payload
func NewEnvelope(ev Event) (*Envelope, error) {
	data, err := json.Marshal(ev.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", ev.Type, err)
	}
	return &Envelope{
		ID:        ev.ID.String(),
		Type:      ev.Type,
		Timestamp: ev.Timestamp,
		Data:      data,
	}, nil
}

// ParsePayload parses envelope data into the matching payload struct
func ParsePayload(env *Envelope) (any, error) {
	switch env.Type {
	case EventTypeStatus:
		var payload StatusPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeBidAccepted:
		var payload BidAcceptedPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeItemResolved:
		var payload ItemResolvedPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeTimerTick:
		var payload TimerTickPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeAuctionEnded:
		var payload AuctionEndedPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	default:
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}
}
