package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/gavel/go/internal/auction/store/postgres/db"
	"github.com/mcdev12/gavel/go/internal/sqlutil"
)

var _ Repository = (*PostgresRepository)(nil)

type PostgresRepository struct {
	queries *db.Queries
}

func NewPostgresRepository(queries *db.Queries) *PostgresRepository {
	return &PostgresRepository{queries: queries}
}

func (r *PostgresRepository) FetchByID(ctx context.Context, id uuid.UUID) (*OutboxEvent, error) {
	row, err := r.queries.FetchOutboxByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("outbox event %s: %w", id, ErrAlreadySent)
		}
		return nil, fmt.Errorf("failed to fetch outbox event: %w", err)
	}
	return &OutboxEvent{
		ID:        row.ID,
		EventType: row.EventType,
		ItemID:    sqlutil.FromNullUUID(row.ItemID),
		Payload:   row.Payload,
		CreatedAt: row.CreatedAt,
	}, nil
}

func (r *PostgresRepository) FetchUnsent(ctx context.Context, limit int32) ([]OutboxEvent, error) {
	rows, err := r.queries.FetchUnsentOutbox(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsent outbox events: %w", err)
	}

	out := make([]OutboxEvent, 0, len(rows))
	for _, row := range rows {
		out = append(out, OutboxEvent{
			ID:        row.ID,
			EventType: row.EventType,
			ItemID:    sqlutil.FromNullUUID(row.ItemID),
			Payload:   row.Payload,
			CreatedAt: row.CreatedAt,
		})
	}
	return out, nil
}

func (r *PostgresRepository) MarkSent(ctx context.Context, id uuid.UUID) error {
	if err := r.queries.MarkOutboxSent(ctx, id); err != nil {
		return fmt.Errorf("failed to mark outbox event sent: %w", err)
	}
	return nil
}

func (r *PostgresRepository) CountUnsent(ctx context.Context) (int64, error) {
	n, err := r.queries.CountUnsentOutbox(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count unsent outbox events: %w", err)
	}
	return n, nil
}
