package dto

import "time"

type CreateDisputeRequest struct {
	TransactionID        string   `json:"transaction_id"`
	MerchantID           string   `json:"merchant_id"`
	Amount               string   `json:"amount"` // decimal string, e.g. "45.00"
	Currency             string   `json:"currency"`
	Reason               string   `json:"reason"`
	Description          string   `json:"description,omitempty"`
	RequestedResolution  string   `json:"requested_resolution"` // full_refund / partial_refund
	RequestedAmount      string   `json:"requested_amount,omitempty"`
	EvidenceRefs         []string `json:"evidence_refs,omitempty"`
	ContactMerchantFirst bool     `json:"contact_merchant_first"`
}

type MerchantRespondRequest struct {
	Message         string   `json:"message"`
	AcceptsFault    bool     `json:"accepts_fault"`
	Evidence        []string `json:"evidence,omitempty"`
	ResolutionOffer *string  `json:"resolution_offer,omitempty"`
}

type AddEvidenceRequest struct {
	Refs []string `json:"refs"`
}

type RiskFactorInput struct {
	Factor  string  `json:"factor"`
	Score   float64 `json:"score"`
	Details string  `json:"details,omitempty"`
}

type ProposeResolutionRequest struct {
	Factors []RiskFactorInput `json:"factors,omitempty"`
}

type AckConflictRequest struct {
	Note string `json:"note,omitempty"`
}

// NetworkWebhookRequest is the Network's delivery envelope. Amounts
// arrive as decimal strings and timestamps in RFC 3339.
type NetworkWebhookRequest struct {
	CaseID       string    `json:"case_id"`
	EventType    string    `json:"event_type"` // created / updated / resolved / evidence_requested / message
	Status       string    `json:"status,omitempty"`
	Resolution   string    `json:"resolution,omitempty"`
	RefundAmount string    `json:"refund_amount,omitempty"`
	PaymentID    string    `json:"payment_id,omitempty"`
	Message      string    `json:"message,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}
