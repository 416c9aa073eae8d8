package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/qrpay-marketplace/backend/internal/http/dto"
	"github.com/qrpay-marketplace/backend/internal/middleware"
	"github.com/qrpay-marketplace/backend/internal/models"
	"github.com/qrpay-marketplace/backend/internal/services"
	"go.uber.org/zap"
)

// ReviewHandler serves the internal reviewer surface: work queues,
// decisions, compromise confirmations, conflict acknowledgements.
type ReviewHandler struct {
	disputes   *services.DisputeService
	reconciler *services.Reconciler
	log        *zap.Logger
}

func NewReviewHandler(disputes *services.DisputeService, reconciler *services.Reconciler, log *zap.Logger) *ReviewHandler {
	return &ReviewHandler{disputes: disputes, reconciler: reconciler, log: log}
}

func (h *ReviewHandler) Queue(c *fiber.Ctx) error {
	status := models.Status(c.Query("status", string(models.StatusUnderReview)))
	switch status {
	case models.StatusUnderReview, models.StatusInternalReview, models.StatusEscalatedToNetwork, models.StatusResolved:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "unsupported queue status"})
	}
	disputes, err := h.disputes.ListByStatus(c.Context(), status, c.QueryInt("limit", 20), c.QueryInt("offset", 0))
	if err != nil {
		h.log.Error("queue list failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: disputes})
}

func (h *ReviewHandler) Conflicts(c *fiber.Ctx) error {
	disputes, err := h.disputes.ListConflicts(c.Context())
	if err != nil {
		h.log.Error("conflict list failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: disputes})
}

func (h *ReviewHandler) DeadLetters(c *fiber.Ctx) error {
	letters, err := h.reconciler.DeadLetters(c.Context(), c.QueryInt("limit", 50))
	if err != nil {
		h.log.Error("dead letter list failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: letters})
}

func (h *ReviewHandler) ProposeResolution(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid dispute id"})
	}
	var req dto.ProposeResolutionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}

	factors := make([]models.RiskFactor, 0, len(req.Factors))
	for _, f := range req.Factors {
		if f.Factor == "" || f.Score < 0 || f.Score > 1 {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "factor scores must be in [0, 1]"})
		}
		factors = append(factors, models.RiskFactor{Factor: f.Factor, Score: f.Score, Details: f.Details})
	}

	d, res, err := h.disputes.ProposeResolution(c.Context(), id, factors)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: fiber.Map{
		"dispute":    d,
		"resolution": res,
	}})
}

func (h *ReviewHandler) ConfirmCompromise(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid dispute id"})
	}
	d, err := h.disputes.ConfirmCompromise(c.Context(), id, middleware.GetUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: d})
}

func (h *ReviewHandler) AckConflict(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid dispute id"})
	}
	var req dto.AckConflictRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}
	d, err := h.disputes.AckConflict(c.Context(), id, middleware.GetUserID(c), req.Note)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: d})
}
