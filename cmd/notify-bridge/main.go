package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/qrpay-marketplace/backend/internal/config"
	"github.com/qrpay-marketplace/backend/internal/db"
	"github.com/qrpay-marketplace/backend/internal/events"
	"go.uber.org/zap"
)

// Notify Bridge — small service that subscribes to dispute events on
// Redis and forwards them to the notification renderer (email / push).

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	subscriber := events.NewRedisSubscriber(rdb, log)

	log.Info("notify-bridge started")

	_ = subscriber.Subscribe(ctx, events.DisputeStream, func(event events.Event) {
		log.Info("forwarding dispute event", zap.String("type", event.Type))
		forward(cfg.NotifyInternalURL, event, log)
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down notify-bridge")
	cancel()
}

func forward(baseURL string, event events.Event, log *zap.Logger) {
	disputeID, ok := event.Payload["dispute_id"]
	if !ok {
		return
	}

	body, _ := json.Marshal(map[string]any{
		"dispute_id":  disputeID,
		"customer_id": event.Payload["customer_id"],
		"merchant_id": event.Payload["merchant_id"],
		"status":      event.Payload["status"],
		"event":       event.Payload["event"],
	})

	url := fmt.Sprintf("%s/internal/notify", strings.TrimRight(baseURL, "/"))
	resp, err := http.Post(url, "application/json", strings.NewReader(string(body)))
	if err != nil {
		log.Warn("failed to forward notification", zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Warn("notification renderer returned non-200", zap.Int("status", resp.StatusCode))
	}
}
