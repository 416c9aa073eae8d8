package repositories

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/qrpay-marketplace/backend/internal/models"
)

// TimelineRepo is the append-only dispute timeline. Rows are never
// updated or deleted; seq is a global bigserial used to break ties when
// two sources record the same instant.
type TimelineRepo struct {
	pool *pgxpool.Pool
}

func NewTimelineRepo(pool *pgxpool.Pool) *TimelineRepo {
	return &TimelineRepo{pool: pool}
}

func (r *TimelineRepo) Append(ctx context.Context, ev *models.TimelineEvent) error {
	details, _ := json.Marshal(ev.Details)
	return r.pool.QueryRow(ctx, `
		INSERT INTO timeline_events (dispute_id, event, actor, details, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, seq
	`, ev.DisputeID, ev.Event, ev.Actor, details, ev.CreatedAt).Scan(&ev.ID, &ev.Seq)
}

func (r *TimelineRepo) List(ctx context.Context, disputeID uuid.UUID) ([]models.TimelineEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, dispute_id, seq, event, actor, details, created_at
		FROM timeline_events
		WHERE dispute_id = $1
		ORDER BY created_at ASC, seq ASC
	`, disputeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.TimelineEvent
	for rows.Next() {
		var ev models.TimelineEvent
		var details []byte
		if err := rows.Scan(&ev.ID, &ev.DisputeID, &ev.Seq, &ev.Event, &ev.Actor, &details, &ev.CreatedAt); err != nil {
			return nil, err
		}
		if len(details) > 0 {
			_ = json.Unmarshal(details, &ev.Details)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
