package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/qrpay-marketplace/backend/internal/config"
	"github.com/qrpay-marketplace/backend/internal/db"
	"github.com/qrpay-marketplace/backend/internal/events"
	apphttp "github.com/qrpay-marketplace/backend/internal/http"
	"github.com/qrpay-marketplace/backend/internal/http/handlers"
	"github.com/qrpay-marketplace/backend/internal/repositories"
	"github.com/qrpay-marketplace/backend/internal/services"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, pool, "migrations", log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repositories
	disputeRepo := repositories.NewDisputeRepo(pool)
	timelineRepo := repositories.NewTimelineRepo(pool)
	networkEventRepo := repositories.NewNetworkEventRepo(pool)

	// Events
	publisher := events.NewRedisPublisher(rdb, log)
	subscriber := events.NewRedisSubscriber(rdb, log)
	notifier := events.NewPubSubNotifier(publisher, log)

	// Services
	networkClient := services.NewNetworkClient(cfg.NetworkBaseURL, cfg.NetworkAPIKey, log)
	disputeService := services.NewDisputeService(disputeRepo, timelineRepo, networkClient, notifier, cfg, log)
	reconciler := services.NewReconciler(disputeService, networkEventRepo, log)

	// Handlers
	disputeHandler := handlers.NewDisputeHandler(disputeService, log)
	reviewHandler := handlers.NewReviewHandler(disputeService, reconciler, log)
	webhookHandler := handlers.NewWebhookHandler(reconciler, cfg.NetworkWebhookSecret, log)
	wsHub := handlers.NewWSHub(cfg, subscriber, log)

	// Start WS hub
	wsHub.Start(ctx)

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, disputeHandler, reviewHandler, webhookHandler, wsHub)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
