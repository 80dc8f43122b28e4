// Package outbox relays auction_outbox rows written by the Postgres store to
// JetStream. Rows are picked up on LISTEN/NOTIFY and by a fallback poll, and
// marked sent only after the publish is acknowledged.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrAlreadySent is returned by Repository.FetchByID when the row has been
// relayed by a concurrent poll
var ErrAlreadySent = errors.New("outbox event already sent")

// OutboxEvent is one unsent outbox row
type OutboxEvent struct {
	ID        uuid.UUID       `json:"id"`
	EventType string          `json:"event_type"`
	ItemID    *uuid.UUID      `json:"item_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Publisher delivers one event downstream
type Publisher interface {
	Publish(ctx context.Context, event OutboxEvent) error
}

// Repository is what the relay needs from the outbox table
type Repository interface {
	FetchByID(ctx context.Context, id uuid.UUID) (*OutboxEvent, error)
	FetchUnsent(ctx context.Context, limit int32) ([]OutboxEvent, error)
	MarkSent(ctx context.Context, id uuid.UUID) error
	CountUnsent(ctx context.Context) (int64, error)
}
