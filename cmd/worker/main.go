package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/qrpay-marketplace/backend/internal/config"
	"github.com/qrpay-marketplace/backend/internal/db"
	"github.com/qrpay-marketplace/backend/internal/events"
	"github.com/qrpay-marketplace/backend/internal/models"
	"github.com/qrpay-marketplace/backend/internal/repositories"
	"github.com/qrpay-marketplace/backend/internal/services"
	"go.uber.org/zap"
)

// The worker runs the clock-driven parts of the dispute lifecycle:
// merchant response timeouts, Network status polling, and dead-letter
// replay.
func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repos
	disputeRepo := repositories.NewDisputeRepo(pool)
	timelineRepo := repositories.NewTimelineRepo(pool)
	networkEventRepo := repositories.NewNetworkEventRepo(pool)

	// Services
	publisher := events.NewRedisPublisher(rdb, log)
	notifier := events.NewPubSubNotifier(publisher, log)
	networkClient := services.NewNetworkClient(cfg.NetworkBaseURL, cfg.NetworkAPIKey, log)
	disputeService := services.NewDisputeService(disputeRepo, timelineRepo, networkClient, notifier, cfg, log)
	reconciler := services.NewReconciler(disputeService, networkEventRepo, log)

	log.Info("worker started")

	timeoutTicker := time.NewTicker(cfg.TimeoutSweepInterval)
	pollTicker := time.NewTicker(cfg.NetworkPollInterval)
	replayTicker := time.NewTicker(cfg.DeadLetterReplayInterval)
	defer timeoutTicker.Stop()
	defer pollTicker.Stop()
	defer replayTicker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-timeoutTicker.C:
			runMerchantTimeouts(ctx, disputeService, log)
		case <-pollTicker.C:
			runNetworkPoll(ctx, disputeService, networkClient, log)
		case <-replayTicker.C:
			runDeadLetterReplay(ctx, reconciler, log)
		case <-sigCh:
			log.Info("shutting down worker")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}

func runMerchantTimeouts(ctx context.Context, disputes *services.DisputeService, log *zap.Logger) {
	fired, err := disputes.DueTransitions(ctx, time.Now().UTC())
	if err != nil {
		log.Error("merchant timeout sweep failed", zap.Error(err))
		return
	}
	if fired > 0 {
		log.Info("merchant response timeouts fired", zap.Int("count", fired))
	}
}

// runNetworkPoll cross-checks escalated cases against the Network. The
// webhook is the primary channel; polling catches deliveries we missed.
func runNetworkPoll(ctx context.Context, disputes *services.DisputeService, network services.NetworkAPI, log *zap.Logger) {
	escalated, err := disputes.ListByStatus(ctx, models.StatusEscalatedToNetwork, 100, 0)
	if err != nil {
		log.Error("listing escalated disputes failed", zap.Error(err))
		return
	}

	for _, d := range escalated {
		if d.NetworkCaseID == nil {
			continue
		}
		status, err := network.FetchCaseStatus(ctx, *d.NetworkCaseID)
		if err != nil {
			log.Warn("case status poll failed",
				zap.String("dispute_id", d.ID.String()),
				zap.String("network_case_id", *d.NetworkCaseID),
				zap.Error(err))
			continue
		}
		if d.NetworkStatus != nil && *d.NetworkStatus == status {
			continue
		}
		log.Info("network case status drift",
			zap.String("dispute_id", d.ID.String()),
			zap.String("network_case_id", *d.NetworkCaseID),
			zap.String("status", status))
	}
}

func runDeadLetterReplay(ctx context.Context, reconciler *services.Reconciler, log *zap.Logger) {
	replayed, err := reconciler.ReplayDeadLetters(ctx, 50)
	if err != nil {
		log.Error("dead letter replay failed", zap.Error(err))
		return
	}
	if replayed > 0 {
		log.Info("dead letters replayed", zap.Int("count", replayed))
	}
}
