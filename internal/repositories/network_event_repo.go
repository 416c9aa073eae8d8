package repositories

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/qrpay-marketplace/backend/internal/models"
)

// NetworkEventRepo tracks processed inbound events (for idempotency)
// and dead letters (events that could not be applied).
type NetworkEventRepo struct {
	pool *pgxpool.Pool
}

func NewNetworkEventRepo(pool *pgxpool.Pool) *NetworkEventRepo {
	return &NetworkEventRepo{pool: pool}
}

// Claim inserts the dedup key and reports whether this call won it.
// The unique index makes the insert the arbiter: of any number of
// concurrent claims for one key, exactly one sees a row inserted.
func (r *NetworkEventRepo) Claim(ctx context.Context, dedupKey string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO network_events (dedup_key) VALUES ($1)
		ON CONFLICT (dedup_key) DO NOTHING
	`, dedupKey)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Release drops a claim whose apply failed, re-opening the key for the
// sender's retry.
func (r *NetworkEventRepo) Release(ctx context.Context, dedupKey string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM network_events WHERE dedup_key = $1`, dedupKey)
	return err
}

func (r *NetworkEventRepo) SaveDeadLetter(ctx context.Context, dl *models.DeadLetter) error {
	event, _ := json.Marshal(dl.Event)
	notes, _ := json.Marshal(dl.Notes)
	err := r.pool.QueryRow(ctx, `
		INSERT INTO dead_letters (dedup_key, reason, event, attempts, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (dedup_key) DO UPDATE SET attempts = dead_letters.attempts + 1, last_tried = now()
		RETURNING id
	`, dl.DedupKey, dl.Reason, event, dl.Attempts, notes, dl.CreatedAt).Scan(&dl.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	return err
}

func (r *NetworkEventRepo) ListDeadLetters(ctx context.Context, limit int) ([]models.DeadLetter, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, dedup_key, reason, event, attempts, created_at, last_tried, notes
		FROM dead_letters
		ORDER BY created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var letters []models.DeadLetter
	for rows.Next() {
		var dl models.DeadLetter
		var event, notes []byte
		if err := rows.Scan(&dl.ID, &dl.DedupKey, &dl.Reason, &event, &dl.Attempts, &dl.CreatedAt, &dl.LastTried, &notes); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(event, &dl.Event)
		if len(notes) > 0 {
			_ = json.Unmarshal(notes, &dl.Notes)
		}
		letters = append(letters, dl)
	}
	return letters, rows.Err()
}

func (r *NetworkEventRepo) DeleteDeadLetter(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM dead_letters WHERE id = $1`, id)
	return err
}

func (r *NetworkEventRepo) TouchDeadLetter(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE dead_letters SET attempts = attempts + 1, last_tried = now() WHERE id = $1
	`, id)
	return err
}
