package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/qrpay-marketplace/backend/internal/http/dto"
	"github.com/qrpay-marketplace/backend/internal/models"
	"github.com/qrpay-marketplace/backend/internal/services"
	"go.uber.org/zap"
)

// SignatureHeader carries the Network's HMAC-SHA256 of the raw body.
const SignatureHeader = "X-Network-Signature"

// WebhookHandler receives Network case events. Deliveries are verified
// against the shared webhook secret before anything is parsed.
type WebhookHandler struct {
	reconciler *services.Reconciler
	secret     string
	log        *zap.Logger
}

func NewWebhookHandler(reconciler *services.Reconciler, secret string, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler, secret: secret, log: log}
}

func (h *WebhookHandler) HandleNetworkEvent(c *fiber.Ctx) error {
	body := c.Body()
	if !VerifySignature(h.secret, body, c.Get(SignatureHeader)) {
		h.log.Warn("webhook signature mismatch", zap.String("ip", c.IP()))
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "invalid signature"})
	}

	var req dto.NetworkWebhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid payload"})
	}
	if req.CaseID == "" || req.EventType == "" || req.OccurredAt.IsZero() {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "case_id, event_type and occurred_at are required"})
	}

	ev := models.NetworkEvent{
		NetworkCaseID:     req.CaseID,
		Kind:              models.NetworkEventKind(req.EventType),
		Status:            req.Status,
		Resolution:        req.Resolution,
		NetworkPaymentID:  req.PaymentID,
		Message:           req.Message,
		ExternalTimestamp: req.OccurredAt,
	}
	if req.RefundAmount != "" {
		minor, err := services.ParseDecimalMinor(req.RefundAmount, currencyExponent)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid refund_amount"})
		}
		ev.RefundAmountMinor = &minor
	}
	var raw map[string]any
	if json.Unmarshal(body, &raw) == nil {
		ev.Raw = raw
	}

	err := h.reconciler.Reconcile(c.Context(), ev)
	switch {
	case err == nil:
		return c.JSON(dto.WebhookAckResponse{OK: true})
	case errors.Is(err, models.ErrUnknownDispute):
		// Parked for replay; acknowledge so the Network stops retrying.
		return c.Status(fiber.StatusAccepted).JSON(dto.WebhookAckResponse{
			OK:     true,
			Parked: true,
			Reason: models.DeadLetterUnknownDispute,
		})
	default:
		h.log.Error("webhook reconcile failed",
			zap.String("case_id", req.CaseID),
			zap.String("event_type", req.EventType),
			zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
}

// VerifySignature checks a hex HMAC-SHA256 over the raw body. An empty
// configured secret rejects everything.
func VerifySignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
