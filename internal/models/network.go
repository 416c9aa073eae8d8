package models

import (
	"fmt"
	"time"
)

// Network event kinds
const (
	NetworkEventCreated           NetworkEventKind = "created"
	NetworkEventUpdated           NetworkEventKind = "updated"
	NetworkEventResolved          NetworkEventKind = "resolved"
	NetworkEventEvidenceRequested NetworkEventKind = "evidence_requested"
	NetworkEventMessage           NetworkEventKind = "message"
)

type NetworkEventKind string

// Network resolution vocabulary
const (
	NetworkResolutionWon     = "won"
	NetworkResolutionLost    = "lost"
	NetworkResolutionPartial = "partial"
)

// NetworkEvent is the reconciler's input, already signature-verified by
// the webhook handler. Delivery is at-least-once and possibly out of
// order; DedupKey makes retries safe.
type NetworkEvent struct {
	NetworkCaseID     string           `json:"network_case_id"`
	Kind              NetworkEventKind `json:"kind"`
	Status            string           `json:"status,omitempty"`     // raw Network status
	Resolution        string           `json:"resolution,omitempty"` // won / lost / partial
	RefundAmountMinor *int64           `json:"refund_amount_minor,omitempty"`
	NetworkPaymentID  string           `json:"network_payment_id,omitempty"` // originating transaction, created events only
	Message           string           `json:"message,omitempty"`
	ExternalTimestamp time.Time        `json:"external_timestamp"`
	Raw               map[string]any   `json:"raw,omitempty"`
}

// DedupKey identifies an event for idempotent processing.
func (e NetworkEvent) DedupKey() string {
	return fmt.Sprintf("%s|%s|%d", e.NetworkCaseID, e.Kind, e.ExternalTimestamp.UTC().UnixNano())
}

// Dead letter reasons
const (
	DeadLetterUnknownDispute = "unknown_dispute"
	DeadLetterUnmappedStatus = "unmapped_status"
	DeadLetterBadPayload     = "bad_payload"
)

// DeadLetter retains an inbound event that could not be applied, for
// manual matching or periodic replay. Never silently dropped.
type DeadLetter struct {
	ID        int64          `json:"id"`
	DedupKey  string         `json:"dedup_key"`
	Reason    string         `json:"reason"`
	Event     NetworkEvent   `json:"event"`
	Attempts  int            `json:"attempts"`
	CreatedAt time.Time      `json:"created_at"`
	LastTried *time.Time     `json:"last_tried,omitempty"`
	Notes     map[string]any `json:"notes,omitempty"`
}
