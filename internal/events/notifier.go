package events

import (
	"context"

	"github.com/qrpay-marketplace/backend/internal/models"
	"go.uber.org/zap"
)

// DisputeStream is the pubsub channel carrying dispute events.
const DisputeStream = "events:dispute"

// PubSubNotifier fans dispute notifications out over the event stream.
// The notify-bridge and the websocket hub consume them; delivery is
// best-effort and never blocks a state transition.
type PubSubNotifier struct {
	publisher Publisher
	log       *zap.Logger
}

func NewPubSubNotifier(publisher Publisher, log *zap.Logger) *PubSubNotifier {
	return &PubSubNotifier{publisher: publisher, log: log}
}

func (n *PubSubNotifier) Notify(ctx context.Context, d *models.Dispute, eventKind string) error {
	err := n.publisher.Publish(ctx, DisputeStream, Event{
		Type: EventDisputeStatusChanged,
		Payload: map[string]any{
			"dispute_id":  d.ID.String(),
			"customer_id": d.CustomerID.String(),
			"merchant_id": d.MerchantID.String(),
			"status":      string(d.Status),
			"event":       eventKind,
		},
	})
	if err != nil {
		n.log.Warn("dispute notification failed",
			zap.String("dispute_id", d.ID.String()),
			zap.String("event", eventKind),
			zap.Error(err),
		)
	}
	return err
}
