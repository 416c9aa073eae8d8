package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Dispute statuses
const (
	StatusSubmitted          Status = "submitted"
	StatusMerchantReview     Status = "merchant_review"
	StatusUnderReview        Status = "under_review"
	StatusEscalatedToNetwork Status = "escalated_to_network"
	StatusInternalReview     Status = "internal_review"
	StatusResolved           Status = "resolved"
	StatusClosed             Status = "closed"
)

type Status string

// Transition triggers. Network-originated triggers are derived from the
// inbound event kind by the reconciler; everything else comes from the API.
const (
	TriggerRouteToMerchant        Trigger = "route_to_merchant"
	TriggerRouteToReview          Trigger = "route_to_review"
	TriggerMerchantResponded      Trigger = "merchant_responded"
	TriggerMerchantTimeout        Trigger = "merchant_timeout_48h"
	TriggerInternalDecision       Trigger = "internal_decision"
	TriggerEscalate               Trigger = "escalate"
	TriggerEvidenceSubmitted      Trigger = "evidence_submitted"
	TriggerNetworkCaseCreated     Trigger = "network_case_created"
	TriggerNetworkUpdate          Trigger = "network_update"
	TriggerNetworkEvidenceRequest Trigger = "network_evidence_request"
	TriggerNetworkResolved        Trigger = "network_resolved"
	TriggerAdminClose             Trigger = "admin_close"
)

type Trigger string

// Valid transitions: trigger -> current status -> next status.
// Absent pairs are rejected with ErrInvalidForState, never silently ignored.
var DisputeTransitions = map[Trigger]map[Status]Status{
	TriggerRouteToMerchant:   {StatusSubmitted: StatusMerchantReview},
	TriggerRouteToReview:     {StatusSubmitted: StatusUnderReview},
	TriggerMerchantResponded: {StatusMerchantReview: StatusUnderReview},
	TriggerMerchantTimeout:   {StatusMerchantReview: StatusUnderReview},
	TriggerInternalDecision: {
		StatusUnderReview:    StatusResolved,
		StatusInternalReview: StatusResolved,
	},
	TriggerEscalate:          {StatusUnderReview: StatusEscalatedToNetwork},
	TriggerEvidenceSubmitted: {StatusInternalReview: StatusEscalatedToNetwork},
	TriggerNetworkCaseCreated: {
		// Case acknowledgement may race our own escalation call.
		StatusUnderReview:        StatusEscalatedToNetwork,
		StatusEscalatedToNetwork: StatusEscalatedToNetwork,
	},
	TriggerNetworkUpdate:          {StatusEscalatedToNetwork: StatusEscalatedToNetwork},
	TriggerNetworkEvidenceRequest: {StatusEscalatedToNetwork: StatusInternalReview},
	TriggerNetworkResolved: {
		StatusEscalatedToNetwork: StatusResolved,
		// The Network may rule while its evidence request is still
		// outstanding on our side; the ruling is final either way.
		StatusInternalReview: StatusResolved,
	},
	TriggerAdminClose: {StatusResolved: StatusClosed},
}

// NextStatus returns the status a trigger leads to from the given one.
func NextStatus(trigger Trigger, from Status) (Status, bool) {
	targets, ok := DisputeTransitions[trigger]
	if !ok {
		return "", false
	}
	to, ok := targets[from]
	return to, ok
}

// IsTerminal reports whether a status accepts no further state mutation
// (closed) or only archival closing (resolved).
func (s Status) IsTerminal() bool {
	return s == StatusResolved || s == StatusClosed
}

// ActorForTrigger maps a trigger to the timeline actor that caused it.
func ActorForTrigger(t Trigger) Actor {
	switch t {
	case TriggerMerchantResponded:
		return ActorMerchant
	case TriggerNetworkCaseCreated, TriggerNetworkUpdate, TriggerNetworkEvidenceRequest, TriggerNetworkResolved:
		return ActorNetwork
	default:
		return ActorSystem
	}
}

// Requested resolutions
const (
	RequestedFullRefund    RequestedResolution = "full_refund"
	RequestedPartialRefund RequestedResolution = "partial_refund"
)

type RequestedResolution string

// Resolution outcomes
const (
	OutcomeCustomerFullRefund    Outcome = "customer_full_refund"
	OutcomeCustomerPartialRefund Outcome = "customer_partial_refund"
	OutcomeMerchantWins          Outcome = "merchant_wins"
	OutcomeCompromise            Outcome = "compromise"
)

type Outcome string

// Typed errors surfaced by the engine. Handlers translate these to status
// codes; storage failures propagate as-is.
var (
	ErrInvalidForState         = errors.New("transition not permitted for current status")
	ErrVersionConflict         = errors.New("dispute version conflict")
	ErrUnknownDispute          = errors.New("no dispute matches inbound event")
	ErrUnmappedNetworkStatus   = errors.New("unmapped network status")
	ErrResolutionImmutable     = errors.New("resolution already set")
	ErrRefundExceedsTxn        = errors.New("refund amount exceeds transaction amount")
	ErrConfirmationOutstanding = errors.New("resolution awaits human confirmation")
)

// Dispute is the aggregate root. All mutation goes through the state
// machine and is serialized by the Version compare-and-swap on save.
type Dispute struct {
	ID            uuid.UUID `json:"id"`
	TransactionID uuid.UUID `json:"transaction_id"`
	CustomerID    uuid.UUID `json:"customer_id"`
	MerchantID    uuid.UUID `json:"merchant_id"`

	Status               Status              `json:"status"`
	RequestedResolution  RequestedResolution `json:"requested_resolution"`
	RequestedAmountMinor int64               `json:"requested_amount_minor"`
	Reason               string              `json:"reason"`
	Description          string              `json:"description"`
	EvidenceRefs         []string            `json:"evidence_refs"` // ordered, duplicates allowed
	ContactMerchantFirst bool                `json:"contact_merchant_first"`

	// Transaction amount snapshot; refunds never exceed it.
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`

	// External linkage: set once the Network acknowledges the case.
	NetworkCaseID     *string `json:"network_case_id,omitempty"`
	NetworkStatus     *string `json:"network_status,omitempty"` // last seen raw status
	NetworkResolution *string `json:"network_resolution,omitempty"`

	// Set when the Network's ruling disagrees with an internal resolution;
	// cleared only by a reviewer acknowledging the conflict.
	ResolutionConflict bool `json:"resolution_conflict"`

	MerchantResponse *MerchantResponse `json:"merchant_response,omitempty"`
	Resolution       *Resolution       `json:"resolution,omitempty"`
	RiskFactors      []RiskFactor      `json:"risk_factors,omitempty"`

	ChatID *uuid.UUID `json:"chat_id,omitempty"`

	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MerchantResponse is the merchant's single live answer; a replacement
// overwrites it, but each arrival is still recorded on the timeline.
type MerchantResponse struct {
	Message         string    `json:"message"`
	AcceptsFault    bool      `json:"accepts_fault"`
	Evidence        []string  `json:"evidence,omitempty"`
	ResolutionOffer *string   `json:"resolution_offer,omitempty"`
	ReceivedAt      time.Time `json:"received_at"`
}

// Resolution is terminal and write-once.
type Resolution struct {
	Outcome              Outcome      `json:"outcome"`
	Reason               string       `json:"reason"`
	RefundAmountMinor    *int64       `json:"refund_amount_minor,omitempty"`
	CompromiseDetails    *string      `json:"compromise_details,omitempty"`
	Factors              []RiskFactor `json:"factors,omitempty"`
	RequiresConfirmation bool         `json:"requires_confirmation"`
	DecidedBy            string       `json:"decided_by"` // internal / network
	DecidedAt            time.Time    `json:"decided_at"`
}

// RiskFactor is a single weighted input to the fraud aggregator.
type RiskFactor struct {
	Factor  string  `json:"factor"`
	Score   float64 `json:"score"` // 0..1
	Details string  `json:"details,omitempty"`
}
