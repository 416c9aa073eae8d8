package http

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/qrpay-marketplace/backend/internal/config"
	"github.com/qrpay-marketplace/backend/internal/http/handlers"
	"github.com/qrpay-marketplace/backend/internal/middleware"
	"github.com/qrpay-marketplace/backend/internal/rbac"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	disputeHandler *handlers.DisputeHandler,
	reviewHandler *handlers.ReviewHandler,
	webhookHandler *handlers.WebhookHandler,
	wsHub *handlers.WSHub,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Inbound webhooks authenticate by signature, not JWT.
	app.Post("/webhooks/network", webhookHandler.HandleNetworkEvent)

	api := app.Group("/api/v1")
	api.Use(middleware.RateLimitMiddleware(rdb, 100, time.Minute))

	protected := api.Group("", middleware.AuthMiddleware(cfg, log))

	// Disputes (customer + merchant surface)
	protected.Post("/disputes", middleware.RequirePermission(rbac.PermFileDispute), disputeHandler.CreateDispute)
	protected.Get("/disputes", disputeHandler.ListMyDisputes)
	protected.Get("/disputes/:id", disputeHandler.GetDispute)
	protected.Get("/disputes/:id/timeline", disputeHandler.GetTimeline)
	protected.Post("/disputes/:id/evidence", middleware.RequirePermission(rbac.PermAddEvidence), disputeHandler.AddEvidence)
	protected.Post("/disputes/:id/respond", middleware.RequirePermission(rbac.PermRespondDispute), disputeHandler.MerchantRespond)

	// Review (internal surface)
	protected.Get("/review/queue", middleware.RequirePermission(rbac.PermViewReviewQueues), reviewHandler.Queue)
	protected.Get("/review/conflicts", middleware.RequirePermission(rbac.PermViewReviewQueues), reviewHandler.Conflicts)
	protected.Get("/review/dead-letters", middleware.RequirePermission(rbac.PermViewReviewQueues), reviewHandler.DeadLetters)
	protected.Post("/disputes/:id/escalate", middleware.RequirePermission(rbac.PermEscalateDispute), disputeHandler.Escalate)
	protected.Post("/disputes/:id/network-evidence", middleware.RequirePermission(rbac.PermEscalateDispute), disputeHandler.SubmitNetworkEvidence)
	protected.Post("/disputes/:id/decide", middleware.RequirePermission(rbac.PermDecideDispute), reviewHandler.ProposeResolution)
	protected.Post("/disputes/:id/resolution/confirm", middleware.RequirePermission(rbac.PermConfirmCompromise), reviewHandler.ConfirmCompromise)
	protected.Post("/disputes/:id/conflict/ack", middleware.RequirePermission(rbac.PermAckConflict), reviewHandler.AckConflict)
	protected.Post("/disputes/:id/close", middleware.RequirePermission(rbac.PermCloseDispute), disputeHandler.CloseDispute)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(wsHub.HandleWS))
}
