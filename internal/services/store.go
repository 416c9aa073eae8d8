package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/qrpay-marketplace/backend/internal/models"
)

// DisputeStore is the durable home of dispute aggregates. Save performs
// a compare-and-swap on the version counter and returns
// models.ErrVersionConflict when the expected version is stale; this is
// what serializes concurrent writers per aggregate.
type DisputeStore interface {
	Create(ctx context.Context, d *models.Dispute) error
	Get(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	Save(ctx context.Context, d *models.Dispute, expectedVersion int) error
	FindByTransactionID(ctx context.Context, txID uuid.UUID) (*models.Dispute, error)
	FindByNetworkCaseID(ctx context.Context, caseID string) (*models.Dispute, error)
	// DueMerchantTimeouts lists disputes still in merchant_review whose
	// creation predates the cutoff.
	DueMerchantTimeouts(ctx context.Context, before time.Time) ([]uuid.UUID, error)
	ListByStatus(ctx context.Context, status models.Status, limit, offset int) ([]models.Dispute, error)
	ListByParty(ctx context.Context, partyID uuid.UUID, limit, offset int) ([]models.Dispute, error)
	ListConflicts(ctx context.Context) ([]models.Dispute, error)
}

// Ledger is the append-only timeline per dispute.
type Ledger interface {
	Append(ctx context.Context, ev *models.TimelineEvent) error
	List(ctx context.Context, disputeID uuid.UUID) ([]models.TimelineEvent, error)
}

// NetworkEventStore tracks processed inbound events for idempotency and
// retains unmatched ones as dead letters. Claim atomically records the
// dedup key and reports whether this caller won it; concurrent
// deliveries of the same event see exactly one true. Release undoes a
// claim after a transient failure so the sender's retry can reprocess.
type NetworkEventStore interface {
	Claim(ctx context.Context, dedupKey string) (bool, error)
	Release(ctx context.Context, dedupKey string) error
	SaveDeadLetter(ctx context.Context, dl *models.DeadLetter) error
	ListDeadLetters(ctx context.Context, limit int) ([]models.DeadLetter, error)
	DeleteDeadLetter(ctx context.Context, id int64) error
	TouchDeadLetter(ctx context.Context, id int64) error
}

// Notifier is called after every accepted transition. Failures are
// logged and never roll the transition back.
type Notifier interface {
	Notify(ctx context.Context, d *models.Dispute, eventKind string) error
}

// NetworkCaseSummary is the outbound shape for opening a Network case.
type NetworkCaseSummary struct {
	DisputeID     uuid.UUID `json:"dispute_id"`
	TransactionID uuid.UUID `json:"transaction_id"`
	Reason        string    `json:"reason"`
	Description   string    `json:"description"`
	AmountMinor   int64     `json:"amount_minor"`
	Currency      string    `json:"currency"`
	EvidenceRefs  []string  `json:"evidence_refs,omitempty"`
}

// NetworkAPI is the thin outbound client to the payment network.
type NetworkAPI interface {
	CreateCase(ctx context.Context, summary NetworkCaseSummary) (string, error)
	FetchCaseStatus(ctx context.Context, caseID string) (string, error)
	IssueRefund(ctx context.Context, caseID string, amountMinor int64, currency string) error
}
