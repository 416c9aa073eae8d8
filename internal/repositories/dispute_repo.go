package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/qrpay-marketplace/backend/internal/models"
)

type DisputeRepo struct {
	pool *pgxpool.Pool
}

func NewDisputeRepo(pool *pgxpool.Pool) *DisputeRepo {
	return &DisputeRepo{pool: pool}
}

const disputeColumns = `
	id, transaction_id, customer_id, merchant_id, status,
	requested_resolution, requested_amount_minor, reason, description,
	evidence_refs, contact_merchant_first, amount_minor, currency,
	network_case_id, network_status, network_resolution, resolution_conflict,
	merchant_response, resolution, risk_factors, chat_id,
	version, created_at, updated_at`

func (r *DisputeRepo) Create(ctx context.Context, d *models.Dispute) error {
	evidence, _ := json.Marshal(d.EvidenceRefs)
	factors, _ := json.Marshal(d.RiskFactors)
	_, err := r.pool.Exec(ctx, `
		INSERT INTO disputes (id, transaction_id, customer_id, merchant_id, status,
		                      requested_resolution, requested_amount_minor, reason, description,
		                      evidence_refs, contact_merchant_first, amount_minor, currency,
		                      risk_factors, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, d.ID, d.TransactionID, d.CustomerID, d.MerchantID, d.Status,
		d.RequestedResolution, d.RequestedAmountMinor, d.Reason, d.Description,
		evidence, d.ContactMerchantFirst, d.AmountMinor, d.Currency,
		factors, d.Version, d.CreatedAt, d.UpdatedAt)
	return err
}

func (r *DisputeRepo) Get(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	return r.one(ctx, `SELECT`+disputeColumns+` FROM disputes WHERE id = $1`, id)
}

func (r *DisputeRepo) FindByTransactionID(ctx context.Context, txID uuid.UUID) (*models.Dispute, error) {
	return r.one(ctx, `SELECT`+disputeColumns+` FROM disputes WHERE transaction_id = $1`, txID)
}

func (r *DisputeRepo) FindByNetworkCaseID(ctx context.Context, caseID string) (*models.Dispute, error) {
	return r.one(ctx, `SELECT`+disputeColumns+` FROM disputes WHERE network_case_id = $1`, caseID)
}

// Save updates the full aggregate under a version check. A stale
// expected version affects zero rows and surfaces as ErrVersionConflict.
func (r *DisputeRepo) Save(ctx context.Context, d *models.Dispute, expectedVersion int) error {
	evidence, _ := json.Marshal(d.EvidenceRefs)
	factors, _ := json.Marshal(d.RiskFactors)
	var response, resolution []byte
	if d.MerchantResponse != nil {
		response, _ = json.Marshal(d.MerchantResponse)
	}
	if d.Resolution != nil {
		resolution, _ = json.Marshal(d.Resolution)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE disputes SET
			status = $1, evidence_refs = $2, network_case_id = $3, network_status = $4,
			network_resolution = $5, resolution_conflict = $6, merchant_response = $7,
			resolution = $8, risk_factors = $9, chat_id = $10,
			version = version + 1, updated_at = $11
		WHERE id = $12 AND version = $13
	`, d.Status, evidence, d.NetworkCaseID, d.NetworkStatus,
		d.NetworkResolution, d.ResolutionConflict, response,
		resolution, factors, d.ChatID,
		d.UpdatedAt, d.ID, expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrVersionConflict
	}
	d.Version = expectedVersion + 1
	return nil
}

func (r *DisputeRepo) DueMerchantTimeouts(ctx context.Context, before time.Time) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM disputes WHERE status = $1 AND created_at < $2
	`, models.StatusMerchantReview, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *DisputeRepo) ListByStatus(ctx context.Context, status models.Status, limit, offset int) ([]models.Dispute, error) {
	return r.list(ctx, `SELECT`+disputeColumns+` FROM disputes WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		status, clampLimit(limit), offset)
}

func (r *DisputeRepo) ListByParty(ctx context.Context, partyID uuid.UUID, limit, offset int) ([]models.Dispute, error) {
	return r.list(ctx, `SELECT`+disputeColumns+` FROM disputes WHERE customer_id = $1 OR merchant_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		partyID, clampLimit(limit), offset)
}

func (r *DisputeRepo) ListConflicts(ctx context.Context) ([]models.Dispute, error) {
	return r.list(ctx, `SELECT`+disputeColumns+` FROM disputes WHERE resolution_conflict = true ORDER BY updated_at ASC`)
}

func (r *DisputeRepo) one(ctx context.Context, query string, args ...any) (*models.Dispute, error) {
	d, err := scanDispute(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrUnknownDispute
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (r *DisputeRepo) list(ctx context.Context, query string, args ...any) ([]models.Dispute, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var disputes []models.Dispute
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, err
		}
		disputes = append(disputes, *d)
	}
	return disputes, rows.Err()
}

func scanDispute(row pgx.Row) (*models.Dispute, error) {
	var d models.Dispute
	var evidence, factors, response, resolution []byte
	err := row.Scan(&d.ID, &d.TransactionID, &d.CustomerID, &d.MerchantID, &d.Status,
		&d.RequestedResolution, &d.RequestedAmountMinor, &d.Reason, &d.Description,
		&evidence, &d.ContactMerchantFirst, &d.AmountMinor, &d.Currency,
		&d.NetworkCaseID, &d.NetworkStatus, &d.NetworkResolution, &d.ResolutionConflict,
		&response, &resolution, &factors, &d.ChatID,
		&d.Version, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	_ = json.Unmarshal(evidence, &d.EvidenceRefs)
	_ = json.Unmarshal(factors, &d.RiskFactors)
	if len(response) > 0 {
		d.MerchantResponse = &models.MerchantResponse{}
		_ = json.Unmarshal(response, d.MerchantResponse)
	}
	if len(resolution) > 0 {
		d.Resolution = &models.Resolution{}
		_ = json.Unmarshal(resolution, d.Resolution)
	}
	return &d, nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 20
	}
	return limit
}
