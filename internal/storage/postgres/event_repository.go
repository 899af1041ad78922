package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/timothylidede/vendai-credit/internal/domain"
)

// EventRepository records inbound external events for at-most-once admission.
// Records are never deleted; they double as an audit trail.
type EventRepository struct {
	pool *pgxpool.Pool
}

func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

// Admit inserts the event key if unseen. The conditional insert is the whole
// point: two concurrent deliveries of the same event race on the primary key
// and exactly one wins.
func (r *EventRepository) Admit(ctx context.Context, source domain.EventSource, eventKey string, receivedAt time.Time) (bool, error) {
	const stmt = `
INSERT INTO external_events (event_key, source, received_at)
VALUES ($1, $2, $3)
ON CONFLICT (event_key) DO NOTHING`

	tag, err := r.pool.Exec(ctx, stmt, eventKey, string(source), receivedAt)
	if err != nil {
		return false, fmt.Errorf("admit event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
