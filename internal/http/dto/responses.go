package dto

type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

// WebhookAckResponse tells the Network how a delivery landed. Parked
// deliveries are acknowledged so the Network stops retrying; replay
// happens from our side.
type WebhookAckResponse struct {
	OK     bool   `json:"ok"`
	Parked bool   `json:"parked,omitempty"`
	Reason string `json:"reason,omitempty"`
}
