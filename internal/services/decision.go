package services

import (
	"time"

	"github.com/qrpay-marketplace/backend/internal/models"
	"github.com/qrpay-marketplace/backend/internal/risk"
)

// DecisionInput collects everything the resolution decision procedure
// looks at. Amounts are integer minor units.
type DecisionInput struct {
	Recommendation         risk.Recommendation
	Factors                []models.RiskFactor
	AcceptsFault           bool
	EvidenceCount          int
	RequestedResolution    models.RequestedResolution
	RequestedAmountMinor   int64
	TransactionAmountMinor int64
}

// Decide computes the internal resolution when no Network ruling exists.
// Pure and deterministic; rules apply in priority order:
//
//  1. merchant accepted fault        -> customer wins at requested resolution
//  2. risk says reject               -> merchant wins
//  3. risk says approve + evidence   -> customer wins full refund
//  4. compromise/further review with
//     at least some evidence         -> compromise at half the requested
//     amount, held for human confirmation
//  5. otherwise                      -> merchant wins (insufficient evidence)
//
// The driving factors always ride along for auditability.
func Decide(in DecisionInput) models.Resolution {
	now := time.Now().UTC()
	requested := requestedAmount(in)

	res := models.Resolution{
		Factors:   in.Factors,
		DecidedBy: "internal",
		DecidedAt: now,
	}

	switch {
	case in.AcceptsFault:
		res.Reason = "merchant accepted fault"
		if in.RequestedResolution == models.RequestedPartialRefund {
			res.Outcome = models.OutcomeCustomerPartialRefund
		} else {
			res.Outcome = models.OutcomeCustomerFullRefund
		}
		res.RefundAmountMinor = &requested

	case in.Recommendation == risk.RecommendReject:
		res.Outcome = models.OutcomeMerchantWins
		res.Reason = "insufficient or contradictory evidence"

	case in.Recommendation == risk.RecommendApprove && in.EvidenceCount > 0:
		res.Outcome = models.OutcomeCustomerFullRefund
		res.Reason = "evidence supports the claim"
		full := in.TransactionAmountMinor
		res.RefundAmountMinor = &full

	case (in.Recommendation == risk.RecommendCompromise || in.Recommendation == risk.RecommendFurtherReview) && in.EvidenceCount > 0:
		res.Outcome = models.OutcomeCompromise
		res.Reason = "mixed evidence, split resolution proposed"
		half := halfRoundUp(requested)
		res.RefundAmountMinor = &half
		details := "refund half of the requested amount"
		res.CompromiseDetails = &details
		res.RequiresConfirmation = true

	default:
		res.Outcome = models.OutcomeMerchantWins
		res.Reason = "insufficient evidence to support the claim"
	}

	return res
}

// requestedAmount resolves what the customer asked for in minor units,
// never above the transaction amount.
func requestedAmount(in DecisionInput) int64 {
	amount := in.TransactionAmountMinor
	if in.RequestedResolution == models.RequestedPartialRefund && in.RequestedAmountMinor > 0 {
		amount = in.RequestedAmountMinor
	}
	if amount > in.TransactionAmountMinor {
		amount = in.TransactionAmountMinor
	}
	return amount
}

// halfRoundUp halves an amount in minor units, rounding half up.
func halfRoundUp(minor int64) int64 {
	return (minor + 1) / 2
}
