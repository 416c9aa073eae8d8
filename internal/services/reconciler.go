package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qrpay-marketplace/backend/internal/models"
	"go.uber.org/zap"
)

// saveRetries bounds re-reads when a webhook and an internal writer race
// on the same dispute version.
const saveRetries = 3

// Reconciler folds inbound Network events into dispute state. Delivery
// is at-least-once and unordered; the dedup key makes retries no-ops,
// and events that cannot be applied are retained as dead letters.
type Reconciler struct {
	svc    *DisputeService
	events NetworkEventStore
	log    *zap.Logger
}

func NewReconciler(svc *DisputeService, events NetworkEventStore, log *zap.Logger) *Reconciler {
	return &Reconciler{svc: svc, events: events, log: log}
}

// Reconcile processes one inbound event end to end. A nil return means
// the event is fully accounted for: applied, already seen, or parked as
// a dead letter. ErrUnknownDispute is returned (after parking) so the
// transport can answer "accepted, not yet matched".
func (r *Reconciler) Reconcile(ctx context.Context, ev models.NetworkEvent) error {
	key := ev.DedupKey()

	// Claim the key before touching anything: concurrent deliveries of
	// the same event race on a single INSERT, and only the winner gets
	// to apply. Unmatched events stay claimed too, so retries of the
	// same delivery never pile up duplicate dead letters; replay goes
	// through the dead-letter table, not back through here.
	claimed, err := r.events.Claim(ctx, key)
	if err != nil {
		return fmt.Errorf("dedup claim: %w", err)
	}
	if !claimed {
		r.log.Debug("duplicate network event", zap.String("dedup_key", key))
		return nil
	}

	applyErr := r.apply(ctx, ev)
	if applyErr == nil || errors.Is(applyErr, models.ErrUnknownDispute) {
		return applyErr
	}

	// Transient failure: hand the key back so the sender's retry can
	// reprocess instead of being swallowed as a duplicate.
	if relErr := r.events.Release(ctx, key); relErr != nil {
		r.log.Error("release dedup claim", zap.String("dedup_key", key), zap.Error(relErr))
	}
	return applyErr
}

// ReplayDeadLetters retries parked events, typically after a dispute
// was escalated late or a status mapping was added. Applied letters are
// deleted; the rest get their attempt counter bumped.
func (r *Reconciler) ReplayDeadLetters(ctx context.Context, limit int) (int, error) {
	letters, err := r.events.ListDeadLetters(ctx, limit)
	if err != nil {
		return 0, err
	}
	replayed := 0
	for _, dl := range letters {
		if err := r.apply(ctx, dl.Event); err != nil {
			if touchErr := r.events.TouchDeadLetter(ctx, dl.ID); touchErr != nil {
				r.log.Error("touch dead letter", zap.Int64("id", dl.ID), zap.Error(touchErr))
			}
			r.log.Debug("dead letter still unapplied",
				zap.Int64("id", dl.ID),
				zap.String("reason", dl.Reason),
				zap.Error(err))
			continue
		}
		if err := r.events.DeleteDeadLetter(ctx, dl.ID); err != nil {
			r.log.Error("delete dead letter", zap.Int64("id", dl.ID), zap.Error(err))
			continue
		}
		replayed++
	}
	return replayed, nil
}

// DeadLetters lists currently parked events, oldest first.
func (r *Reconciler) DeadLetters(ctx context.Context, limit int) ([]models.DeadLetter, error) {
	return r.events.ListDeadLetters(ctx, limit)
}

// apply matches the event to a dispute and folds it in, retrying a
// bounded number of times on version conflicts.
func (r *Reconciler) apply(ctx context.Context, ev models.NetworkEvent) error {
	var lastErr error
	for attempt := 0; attempt < saveRetries; attempt++ {
		d, err := r.match(ctx, ev)
		if err != nil {
			return err
		}

		err = r.fold(ctx, d, ev)
		if errors.Is(err, models.ErrVersionConflict) {
			lastErr = err
			continue
		}
		return err
	}
	return lastErr
}

// match locates the dispute an event belongs to. Created events carry
// the originating payment id; everything else matches on the case id.
// No match parks the event and reports ErrUnknownDispute.
func (r *Reconciler) match(ctx context.Context, ev models.NetworkEvent) (*models.Dispute, error) {
	if ev.Kind == models.NetworkEventCreated && ev.NetworkPaymentID != "" {
		txID, err := uuid.Parse(ev.NetworkPaymentID)
		if err != nil {
			if parkErr := r.park(ctx, ev, models.DeadLetterBadPayload, map[string]any{
				"network_payment_id": ev.NetworkPaymentID,
			}); parkErr != nil {
				return nil, parkErr
			}
			return nil, fmt.Errorf("bad network_payment_id %q: %w", ev.NetworkPaymentID, models.ErrUnknownDispute)
		}
		if d, err := r.svc.disputes.FindByTransactionID(ctx, txID); err == nil && d != nil {
			return d, nil
		}
	}

	d, err := r.svc.disputes.FindByNetworkCaseID(ctx, ev.NetworkCaseID)
	if err == nil && d != nil {
		return d, nil
	}
	if err != nil && !errors.Is(err, models.ErrUnknownDispute) {
		return nil, err
	}

	if parkErr := r.park(ctx, ev, models.DeadLetterUnknownDispute, nil); parkErr != nil {
		return nil, parkErr
	}
	return nil, fmt.Errorf("case %s: %w", ev.NetworkCaseID, models.ErrUnknownDispute)
}

// fold applies one matched event. Events the current status can no
// longer accept are recorded as informational timeline facts rather
// than rejected, since the Network may replay history we already moved
// past.
func (r *Reconciler) fold(ctx context.Context, d *models.Dispute, ev models.NetworkEvent) error {
	switch ev.Kind {
	case models.NetworkEventCreated:
		return r.foldCreated(ctx, d, ev)
	case models.NetworkEventUpdated:
		return r.foldUpdated(ctx, d, ev)
	case models.NetworkEventEvidenceRequested:
		return r.foldEvidenceRequested(ctx, d, ev)
	case models.NetworkEventResolved:
		return r.foldResolved(ctx, d, ev)
	case models.NetworkEventMessage:
		r.svc.append(ctx, d.ID, models.EventNetworkMessage, models.ActorNetwork, map[string]any{
			"message":         ev.Message,
			"network_case_id": ev.NetworkCaseID,
		})
		return nil
	default:
		return r.park(ctx, ev, models.DeadLetterBadPayload, map[string]any{"kind": string(ev.Kind)})
	}
}

func (r *Reconciler) foldCreated(ctx context.Context, d *models.Dispute, ev models.NetworkEvent) error {
	err := r.svc.applyTransition(ctx, d, models.TriggerNetworkCaseCreated, models.EventNetworkCaseCreated,
		map[string]any{"network_case_id": ev.NetworkCaseID},
		func(d *models.Dispute) error {
			if d.NetworkCaseID == nil {
				caseID := ev.NetworkCaseID
				d.NetworkCaseID = &caseID
			}
			return nil
		})
	if errors.Is(err, models.ErrInvalidForState) {
		return r.recordStale(ctx, d, ev)
	}
	return err
}

func (r *Reconciler) foldUpdated(ctx context.Context, d *models.Dispute, ev models.NetworkEvent) error {
	trigger, event, ok := mapNetworkStatus(ev.Status)
	if !ok {
		// Fail closed: an unrecognized status must never guess a transition.
		return r.park(ctx, ev, models.DeadLetterUnmappedStatus, map[string]any{"status": ev.Status})
	}

	err := r.svc.applyTransition(ctx, d, trigger, event,
		map[string]any{"network_status": ev.Status},
		func(d *models.Dispute) error {
			status := ev.Status
			d.NetworkStatus = &status
			return nil
		})
	if errors.Is(err, models.ErrInvalidForState) {
		return r.recordStale(ctx, d, ev)
	}
	return err
}

func (r *Reconciler) foldEvidenceRequested(ctx context.Context, d *models.Dispute, ev models.NetworkEvent) error {
	err := r.svc.applyTransition(ctx, d, models.TriggerNetworkEvidenceRequest, models.EventNetworkEvidenceRequested,
		map[string]any{"message": ev.Message}, nil)
	if errors.Is(err, models.ErrInvalidForState) {
		return r.recordStale(ctx, d, ev)
	}
	return err
}

func (r *Reconciler) foldResolved(ctx context.Context, d *models.Dispute, ev models.NetworkEvent) error {
	outcome, ok := mapNetworkResolution(ev.Resolution)
	if !ok {
		return r.park(ctx, ev, models.DeadLetterUnmappedStatus, map[string]any{"resolution": ev.Resolution})
	}
	if ev.RefundAmountMinor != nil && *ev.RefundAmountMinor > d.AmountMinor {
		return r.park(ctx, ev, models.DeadLetterBadPayload, map[string]any{
			"refund_amount_minor": *ev.RefundAmountMinor,
			"amount_minor":        d.AmountMinor,
		})
	}

	// Already resolved internally: never overwrite, but a disagreeing
	// Network ruling raises the conflict flag for a reviewer.
	if d.Resolution != nil {
		return r.recordRuling(ctx, d, ev, outcome)
	}

	// Resolution arrived before the case acknowledgement; catch the
	// dispute up first, then resolve.
	if d.Status == models.StatusUnderReview {
		if err := r.foldCreated(ctx, d, ev); err != nil {
			return err
		}
	}

	res := networkResolution(d, ev, outcome)
	err := r.svc.applyTransition(ctx, d, models.TriggerNetworkResolved, models.EventResolved,
		map[string]any{
			"outcome":             string(outcome),
			"network_resolution":  ev.Resolution,
			"refund_amount_minor": derefInt64(res.RefundAmountMinor),
		},
		func(d *models.Dispute) error {
			resolution := ev.Resolution
			d.NetworkResolution = &resolution
			return setResolution(d, res)
		})
	if errors.Is(err, models.ErrInvalidForState) {
		return r.recordStale(ctx, d, ev)
	}
	return err
}

// recordRuling handles a Network ruling for an already-resolved
// dispute: matching outcomes are recorded quietly, disagreements raise
// the resolution-conflict flag.
func (r *Reconciler) recordRuling(ctx context.Context, d *models.Dispute, ev models.NetworkEvent, outcome models.Outcome) error {
	expected := d.Version
	resolution := ev.Resolution
	d.NetworkResolution = &resolution

	if d.Resolution.Outcome == outcome {
		d.UpdatedAt = time.Now().UTC()
		if err := r.svc.disputes.Save(ctx, d, expected); err != nil {
			return err
		}
		r.svc.append(ctx, d.ID, models.EventNetworkStatusUpdated, models.ActorNetwork, map[string]any{
			"network_resolution": ev.Resolution,
			"agrees":             true,
		})
		return nil
	}

	d.ResolutionConflict = true
	d.UpdatedAt = time.Now().UTC()
	if err := r.svc.disputes.Save(ctx, d, expected); err != nil {
		return err
	}
	r.svc.append(ctx, d.ID, models.EventResolutionConflict, models.ActorNetwork, map[string]any{
		"internal_outcome":   string(d.Resolution.Outcome),
		"network_resolution": ev.Resolution,
	})
	if err := r.svc.notifier.Notify(ctx, d, models.EventResolutionConflict); err != nil {
		r.log.Warn("notify failed", zap.String("dispute_id", d.ID.String()), zap.Error(err))
	}
	r.log.Warn("resolution conflict",
		zap.String("dispute_id", d.ID.String()),
		zap.String("internal_outcome", string(d.Resolution.Outcome)),
		zap.String("network_resolution", ev.Resolution))
	return nil
}

// recordStale keeps an out-of-order event as a timeline fact without
// touching state.
func (r *Reconciler) recordStale(ctx context.Context, d *models.Dispute, ev models.NetworkEvent) error {
	r.svc.append(ctx, d.ID, models.EventNetworkStatusUpdated, models.ActorNetwork, map[string]any{
		"kind":               string(ev.Kind),
		"network_status":     ev.Status,
		"stale":              true,
		"external_timestamp": ev.ExternalTimestamp,
	})
	return nil
}

// park retains an unapplicable event as a dead letter.
func (r *Reconciler) park(ctx context.Context, ev models.NetworkEvent, reason string, notes map[string]any) error {
	dl := &models.DeadLetter{
		DedupKey:  ev.DedupKey(),
		Reason:    reason,
		Event:     ev,
		Attempts:  1,
		CreatedAt: time.Now().UTC(),
		Notes:     notes,
	}
	if err := r.events.SaveDeadLetter(ctx, dl); err != nil {
		return fmt.Errorf("save dead letter: %w", err)
	}
	r.log.Warn("network event parked",
		zap.String("network_case_id", ev.NetworkCaseID),
		zap.String("kind", string(ev.Kind)),
		zap.String("reason", reason))
	return nil
}

// mapNetworkStatus translates the Network's raw case statuses into our
// triggers. Anything unlisted is unmapped and fails closed.
func mapNetworkStatus(status string) (models.Trigger, string, bool) {
	switch status {
	case "SUBMITTED", "UNDER_REVIEW", "MERCHANT_RESPONDED":
		return models.TriggerNetworkUpdate, models.EventNetworkStatusUpdated, true
	case "EVIDENCE_REQUIRED":
		return models.TriggerNetworkEvidenceRequest, models.EventNetworkEvidenceRequested, true
	default:
		return "", "", false
	}
}

func mapNetworkResolution(resolution string) (models.Outcome, bool) {
	switch resolution {
	case models.NetworkResolutionWon:
		return models.OutcomeCustomerFullRefund, true
	case models.NetworkResolutionLost:
		return models.OutcomeMerchantWins, true
	case models.NetworkResolutionPartial:
		return models.OutcomeCustomerPartialRefund, true
	default:
		return "", false
	}
}

// networkResolution builds the stored resolution from a Network ruling.
func networkResolution(d *models.Dispute, ev models.NetworkEvent, outcome models.Outcome) models.Resolution {
	res := models.Resolution{
		Outcome:   outcome,
		Reason:    fmt.Sprintf("network ruling: %s", ev.Resolution),
		DecidedBy: "network",
		DecidedAt: ev.ExternalTimestamp.UTC(),
	}
	switch outcome {
	case models.OutcomeCustomerFullRefund:
		amount := d.AmountMinor
		if ev.RefundAmountMinor != nil {
			amount = *ev.RefundAmountMinor
		}
		res.RefundAmountMinor = &amount
	case models.OutcomeCustomerPartialRefund:
		amount := halfRoundUp(d.AmountMinor)
		if ev.RefundAmountMinor != nil {
			amount = *ev.RefundAmountMinor
		}
		res.RefundAmountMinor = &amount
	}
	return res
}
