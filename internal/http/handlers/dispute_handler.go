package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/qrpay-marketplace/backend/internal/http/dto"
	"github.com/qrpay-marketplace/backend/internal/middleware"
	"github.com/qrpay-marketplace/backend/internal/models"
	"github.com/qrpay-marketplace/backend/internal/rbac"
	"github.com/qrpay-marketplace/backend/internal/services"
	"go.uber.org/zap"
)

// currencyExponent is fixed at 2 (cent-denominated currencies).
const currencyExponent = 2

type DisputeHandler struct {
	disputes *services.DisputeService
	log      *zap.Logger
}

func NewDisputeHandler(disputes *services.DisputeService, log *zap.Logger) *DisputeHandler {
	return &DisputeHandler{disputes: disputes, log: log}
}

func (h *DisputeHandler) CreateDispute(c *fiber.Ctx) error {
	var req dto.CreateDisputeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}

	txID, err := uuid.Parse(req.TransactionID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid transaction_id"})
	}
	merchantID, err := uuid.Parse(req.MerchantID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid merchant_id"})
	}
	amount, err := services.ParseDecimalMinor(req.Amount, currencyExponent)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid amount"})
	}
	if req.Reason == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "reason is required"})
	}

	in := services.CreateDisputeInput{
		TransactionID:        txID,
		CustomerID:           middleware.GetUserID(c),
		MerchantID:           merchantID,
		AmountMinor:          amount,
		Currency:             req.Currency,
		Reason:               req.Reason,
		Description:          req.Description,
		RequestedResolution:  models.RequestedResolution(req.RequestedResolution),
		EvidenceRefs:         req.EvidenceRefs,
		ContactMerchantFirst: req.ContactMerchantFirst,
	}
	if req.RequestedAmount != "" {
		requested, err := services.ParseDecimalMinor(req.RequestedAmount, currencyExponent)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid requested_amount"})
		}
		in.RequestedAmountMinor = requested
	}

	d, err := h.disputes.CreateDispute(c.Context(), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: d})
}

func (h *DisputeHandler) GetDispute(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid dispute id"})
	}
	d, err := h.disputes.Get(c.Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: d})
}

func (h *DisputeHandler) ListMyDisputes(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)
	offset := c.QueryInt("offset", 0)
	disputes, err := h.disputes.ListByParty(c.Context(), middleware.GetUserID(c), limit, offset)
	if err != nil {
		h.log.Error("list disputes failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: disputes})
}

func (h *DisputeHandler) GetTimeline(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid dispute id"})
	}
	events, err := h.disputes.Timeline(c.Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: events})
}

func (h *DisputeHandler) AddEvidence(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid dispute id"})
	}
	var req dto.AddEvidenceRequest
	if err := c.BodyParser(&req); err != nil || len(req.Refs) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "refs are required"})
	}

	actor := models.ActorCustomer
	if middleware.GetRole(c) == rbac.RoleMerchant {
		actor = models.ActorMerchant
	}
	d, err := h.disputes.AddEvidence(c.Context(), id, req.Refs, actor)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: d})
}

func (h *DisputeHandler) MerchantRespond(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid dispute id"})
	}
	var req dto.MerchantRespondRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}

	d, err := h.disputes.MerchantRespond(c.Context(), id, models.MerchantResponse{
		Message:         req.Message,
		AcceptsFault:    req.AcceptsFault,
		Evidence:        req.Evidence,
		ResolutionOffer: req.ResolutionOffer,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: d})
}

func (h *DisputeHandler) Escalate(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid dispute id"})
	}
	d, err := h.disputes.Escalate(c.Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: d})
}

func (h *DisputeHandler) SubmitNetworkEvidence(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid dispute id"})
	}
	var req dto.AddEvidenceRequest
	if err := c.BodyParser(&req); err != nil || len(req.Refs) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "refs are required"})
	}
	d, err := h.disputes.SubmitEvidenceToNetwork(c.Context(), id, req.Refs)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: d})
}

func (h *DisputeHandler) CloseDispute(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid dispute id"})
	}
	d, err := h.disputes.Close(c.Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: d})
}

// respondError translates engine errors into status codes. The request
// id rides along so a rejected call can be matched against the logs.
func respondError(c *fiber.Ctx, err error) error {
	reqID := middleware.GetRequestID(c)
	switch {
	case errors.Is(err, models.ErrUnknownDispute):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "dispute not found", RequestID: reqID})
	case errors.Is(err, models.ErrInvalidForState),
		errors.Is(err, models.ErrResolutionImmutable),
		errors.Is(err, models.ErrConfirmationOutstanding):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: err.Error(), RequestID: reqID})
	case errors.Is(err, models.ErrVersionConflict):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: "concurrent update, retry", RequestID: reqID})
	case errors.Is(err, models.ErrRefundExceedsTxn):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error(), RequestID: reqID})
	default:
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error(), RequestID: reqID})
	}
}
