package models

import (
	"time"

	"github.com/google/uuid"
)

// Timeline actors
const (
	ActorCustomer Actor = "customer"
	ActorMerchant Actor = "merchant"
	ActorSystem   Actor = "system"
	ActorNetwork  Actor = "network"
)

type Actor string

// Timeline event names
const (
	EventDisputeSubmitted         = "dispute-submitted"
	EventMerchantReviewStarted    = "merchant-review-started"
	EventReviewStarted            = "review-started"
	EventMerchantResponded        = "merchant-responded"
	EventNoResponse               = "no-response"
	EventEvidenceAdded            = "evidence-added"
	EventEscalated                = "escalated-to-network"
	EventEvidenceSubmitted        = "evidence-submitted-to-network"
	EventNetworkCaseCreated       = "network-case-created"
	EventNetworkStatusUpdated     = "network-status-updated"
	EventNetworkEvidenceRequested = "network-evidence-requested"
	EventNetworkMessage           = "network-message"
	EventResolutionProposed       = "resolution-proposed"
	EventResolved                 = "resolved"
	EventResolutionConflict       = "resolution-conflict"
	EventConflictAcknowledged     = "conflict-acknowledged"
	EventClosed                   = "closed"
)

// TimelineEvent is an immutable fact about a dispute. Ordering within a
// dispute is by CreatedAt with Seq breaking ties, since two sources can
// report the same instant.
type TimelineEvent struct {
	ID        int64          `json:"id"`
	DisputeID uuid.UUID      `json:"dispute_id"`
	Seq       int64          `json:"seq"`
	Event     string         `json:"event"`
	Actor     Actor          `json:"actor"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
