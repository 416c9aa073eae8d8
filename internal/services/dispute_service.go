package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qrpay-marketplace/backend/internal/config"
	"github.com/qrpay-marketplace/backend/internal/models"
	"github.com/qrpay-marketplace/backend/internal/risk"
	"go.uber.org/zap"
)

// DisputeService drives the dispute lifecycle. Every state change goes
// through applyTransition, so the transition table is the single
// authority on what is allowed.
type DisputeService struct {
	disputes DisputeStore
	ledger   Ledger
	network  NetworkAPI
	notifier Notifier
	cfg      *config.Config
	log      *zap.Logger
}

func NewDisputeService(disputes DisputeStore, ledger Ledger, network NetworkAPI, notifier Notifier, cfg *config.Config, log *zap.Logger) *DisputeService {
	return &DisputeService{
		disputes: disputes,
		ledger:   ledger,
		network:  network,
		notifier: notifier,
		cfg:      cfg,
		log:      log,
	}
}

// CreateDisputeInput carries everything needed to file a dispute.
type CreateDisputeInput struct {
	TransactionID        uuid.UUID
	CustomerID           uuid.UUID
	MerchantID           uuid.UUID
	AmountMinor          int64
	Currency             string
	Reason               string
	Description          string
	RequestedResolution  models.RequestedResolution
	RequestedAmountMinor int64
	EvidenceRefs         []string
	ContactMerchantFirst bool
}

// CreateDispute files a new dispute and immediately routes it to the
// merchant or straight to internal review, per the customer's choice.
func (s *DisputeService) CreateDispute(ctx context.Context, in CreateDisputeInput) (*models.Dispute, error) {
	if in.AmountMinor <= 0 {
		return nil, fmt.Errorf("transaction amount must be positive")
	}
	switch in.RequestedResolution {
	case models.RequestedFullRefund:
		in.RequestedAmountMinor = in.AmountMinor
	case models.RequestedPartialRefund:
		if in.RequestedAmountMinor <= 0 {
			return nil, fmt.Errorf("partial refund requires a requested amount")
		}
		if in.RequestedAmountMinor > in.AmountMinor {
			return nil, models.ErrRefundExceedsTxn
		}
	default:
		return nil, fmt.Errorf("unknown requested resolution %q", in.RequestedResolution)
	}

	now := time.Now().UTC()
	d := &models.Dispute{
		ID:                   uuid.New(),
		TransactionID:        in.TransactionID,
		CustomerID:           in.CustomerID,
		MerchantID:           in.MerchantID,
		Status:               models.StatusSubmitted,
		RequestedResolution:  in.RequestedResolution,
		RequestedAmountMinor: in.RequestedAmountMinor,
		Reason:               in.Reason,
		Description:          in.Description,
		EvidenceRefs:         in.EvidenceRefs,
		ContactMerchantFirst: in.ContactMerchantFirst,
		AmountMinor:          in.AmountMinor,
		Currency:             in.Currency,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := s.disputes.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("create dispute: %w", err)
	}
	s.append(ctx, d.ID, models.EventDisputeSubmitted, models.ActorCustomer, map[string]any{
		"reason":               d.Reason,
		"requested_resolution": string(d.RequestedResolution),
	})

	trigger := models.TriggerRouteToReview
	event := models.EventReviewStarted
	if d.ContactMerchantFirst {
		trigger = models.TriggerRouteToMerchant
		event = models.EventMerchantReviewStarted
	}
	if err := s.applyTransition(ctx, d, trigger, event, nil, nil); err != nil {
		return nil, err
	}

	s.log.Info("dispute filed",
		zap.String("dispute_id", d.ID.String()),
		zap.String("transaction_id", d.TransactionID.String()),
		zap.String("status", string(d.Status)))
	return d, nil
}

func (s *DisputeService) Get(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	return s.disputes.Get(ctx, id)
}

func (s *DisputeService) Timeline(ctx context.Context, disputeID uuid.UUID) ([]models.TimelineEvent, error) {
	return s.ledger.List(ctx, disputeID)
}

func (s *DisputeService) ListByStatus(ctx context.Context, status models.Status, limit, offset int) ([]models.Dispute, error) {
	return s.disputes.ListByStatus(ctx, status, limit, offset)
}

func (s *DisputeService) ListByParty(ctx context.Context, partyID uuid.UUID, limit, offset int) ([]models.Dispute, error) {
	return s.disputes.ListByParty(ctx, partyID, limit, offset)
}

func (s *DisputeService) ListConflicts(ctx context.Context) ([]models.Dispute, error) {
	return s.disputes.ListConflicts(ctx)
}

// AddEvidence appends evidence references without changing state.
// Rejected once the dispute is terminal.
func (s *DisputeService) AddEvidence(ctx context.Context, id uuid.UUID, refs []string, actor models.Actor) (*models.Dispute, error) {
	d, err := s.disputes.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Status.IsTerminal() {
		return nil, fmt.Errorf("add evidence in %s: %w", d.Status, models.ErrInvalidForState)
	}

	expected := d.Version
	d.EvidenceRefs = append(d.EvidenceRefs, refs...)
	d.UpdatedAt = time.Now().UTC()
	if err := s.disputes.Save(ctx, d, expected); err != nil {
		return nil, err
	}
	s.append(ctx, d.ID, models.EventEvidenceAdded, actor, map[string]any{"refs": refs})
	return d, nil
}

// MerchantRespond records the merchant's answer. In merchant_review it
// advances the dispute to under_review; in later pre-terminal states a
// replacement overwrites the stored answer in place, with the arrival
// still appended to the timeline. A response accepting fault resolves
// the dispute immediately once it is decidable.
func (s *DisputeService) MerchantRespond(ctx context.Context, id uuid.UUID, resp models.MerchantResponse) (*models.Dispute, error) {
	d, err := s.disputes.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	resp.ReceivedAt = time.Now().UTC()

	switch d.Status {
	case models.StatusMerchantReview:
		err = s.applyTransition(ctx, d, models.TriggerMerchantResponded, models.EventMerchantResponded,
			map[string]any{"accepts_fault": resp.AcceptsFault},
			func(d *models.Dispute) error {
				d.MerchantResponse = &resp
				return nil
			})
	case models.StatusUnderReview, models.StatusInternalReview, models.StatusEscalatedToNetwork:
		expected := d.Version
		d.MerchantResponse = &resp
		d.UpdatedAt = time.Now().UTC()
		if err = s.disputes.Save(ctx, d, expected); err == nil {
			s.append(ctx, d.ID, models.EventMerchantResponded, models.ActorMerchant,
				map[string]any{"accepts_fault": resp.AcceptsFault, "replacement": true})
		}
	default:
		return nil, fmt.Errorf("merchant response in %s: %w", d.Status, models.ErrInvalidForState)
	}
	if err != nil {
		return nil, err
	}

	// Accepted fault short-circuits review.
	if resp.AcceptsFault && d.Status == models.StatusUnderReview {
		if err := s.resolveInternally(ctx, d, d.RiskFactors); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// FireMerchantTimeout moves an unanswered dispute out of merchant
// review after the response window elapses.
func (s *DisputeService) FireMerchantTimeout(ctx context.Context, id uuid.UUID) error {
	d, err := s.disputes.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.applyTransition(ctx, d, models.TriggerMerchantTimeout, models.EventNoResponse,
		map[string]any{"window_hours": int(s.cfg.MerchantResponseWindow.Hours())}, nil)
}

// DueTransitions sweeps merchant-review disputes past the response
// window. Intended for the worker ticker; individual failures are
// logged and do not stop the sweep.
func (s *DisputeService) DueTransitions(ctx context.Context, now time.Time) (int, error) {
	ids, err := s.disputes.DueMerchantTimeouts(ctx, now.Add(-s.cfg.MerchantResponseWindow))
	if err != nil {
		return 0, err
	}
	fired := 0
	for _, id := range ids {
		if err := s.FireMerchantTimeout(ctx, id); err != nil {
			// Merchant answered (or another sweep won) between listing and firing.
			s.log.Debug("timeout skipped", zap.String("dispute_id", id.String()), zap.Error(err))
			continue
		}
		fired++
	}
	return fired, nil
}

// Escalate opens a Network case and moves the dispute to
// escalated_to_network. The transition happens only after the Network
// acknowledged the case, so a failed outbound call leaves state intact.
func (s *DisputeService) Escalate(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	d, err := s.disputes.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, ok := models.NextStatus(models.TriggerEscalate, d.Status); !ok {
		return nil, fmt.Errorf("escalate in %s: %w", d.Status, models.ErrInvalidForState)
	}

	caseID, err := s.network.CreateCase(ctx, NetworkCaseSummary{
		DisputeID:     d.ID,
		TransactionID: d.TransactionID,
		Reason:        d.Reason,
		Description:   d.Description,
		AmountMinor:   d.AmountMinor,
		Currency:      d.Currency,
		EvidenceRefs:  d.EvidenceRefs,
	})
	if err != nil {
		return nil, fmt.Errorf("open network case: %w", err)
	}

	err = s.applyTransition(ctx, d, models.TriggerEscalate, models.EventEscalated,
		map[string]any{"network_case_id": caseID},
		func(d *models.Dispute) error {
			d.NetworkCaseID = &caseID
			return nil
		})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// SubmitEvidenceToNetwork answers a Network evidence request, sending
// the dispute back to the escalated state.
func (s *DisputeService) SubmitEvidenceToNetwork(ctx context.Context, id uuid.UUID, refs []string) (*models.Dispute, error) {
	d, err := s.disputes.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	err = s.applyTransition(ctx, d, models.TriggerEvidenceSubmitted, models.EventEvidenceSubmitted,
		map[string]any{"refs": refs},
		func(d *models.Dispute) error {
			d.EvidenceRefs = append(d.EvidenceRefs, refs...)
			return nil
		})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// ProposeResolution runs the fraud aggregator and the decision
// procedure. Non-compromise outcomes resolve the dispute immediately;
// a compromise is recorded as a proposal on the timeline and held until
// a reviewer confirms it.
func (s *DisputeService) ProposeResolution(ctx context.Context, id uuid.UUID, factors []models.RiskFactor) (*models.Dispute, models.Resolution, error) {
	d, err := s.disputes.Get(ctx, id)
	if err != nil {
		return nil, models.Resolution{}, err
	}
	if _, ok := models.NextStatus(models.TriggerInternalDecision, d.Status); !ok {
		return nil, models.Resolution{}, fmt.Errorf("decide in %s: %w", d.Status, models.ErrInvalidForState)
	}

	if len(factors) > 0 {
		d.RiskFactors = factors
	}
	overall, res := s.decide(d)

	if res.RequiresConfirmation {
		// Persist the factors so confirmation recomputes the same answer,
		// but leave the status untouched until a human signs off.
		expected := d.Version
		d.UpdatedAt = time.Now().UTC()
		if err := s.disputes.Save(ctx, d, expected); err != nil {
			return nil, models.Resolution{}, err
		}
		s.append(ctx, d.ID, models.EventResolutionProposed, models.ActorSystem, map[string]any{
			"outcome":             string(res.Outcome),
			"refund_amount_minor": derefInt64(res.RefundAmountMinor),
			"overall_risk":        overall,
		})
		return d, res, nil
	}

	if err := s.resolveWith(ctx, d, res); err != nil {
		return nil, models.Resolution{}, err
	}
	return d, res, nil
}

// ConfirmCompromise applies a previously proposed compromise. The
// resolution is recomputed from the stored factors rather than read
// back, so a confirmation can never apply a stale proposal.
func (s *DisputeService) ConfirmCompromise(ctx context.Context, id uuid.UUID, reviewerID uuid.UUID) (*models.Dispute, error) {
	d, err := s.disputes.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	_, res := s.decide(d)
	if !res.RequiresConfirmation {
		return nil, fmt.Errorf("no compromise outstanding: %w", models.ErrInvalidForState)
	}
	res.RequiresConfirmation = false
	res.Reason = fmt.Sprintf("%s (confirmed by reviewer)", res.Reason)

	if err := s.resolveWith(ctx, d, res); err != nil {
		return nil, err
	}
	s.log.Info("compromise confirmed",
		zap.String("dispute_id", d.ID.String()),
		zap.String("reviewer_id", reviewerID.String()))
	return d, nil
}

// Close archives a resolved dispute. Outstanding confirmations and
// unacknowledged resolution conflicts block closing.
func (s *DisputeService) Close(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	d, err := s.disputes.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Resolution != nil && d.Resolution.RequiresConfirmation {
		return nil, models.ErrConfirmationOutstanding
	}
	if d.ResolutionConflict {
		return nil, fmt.Errorf("resolution conflict unacknowledged: %w", models.ErrInvalidForState)
	}
	err = s.applyTransition(ctx, d, models.TriggerAdminClose, models.EventClosed, nil, nil)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// AckConflict clears the resolution-conflict flag after a reviewer has
// reconciled the internal and Network outcomes.
func (s *DisputeService) AckConflict(ctx context.Context, id uuid.UUID, reviewerID uuid.UUID, note string) (*models.Dispute, error) {
	d, err := s.disputes.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !d.ResolutionConflict {
		return nil, fmt.Errorf("no conflict flagged: %w", models.ErrInvalidForState)
	}

	expected := d.Version
	d.ResolutionConflict = false
	d.UpdatedAt = time.Now().UTC()
	if err := s.disputes.Save(ctx, d, expected); err != nil {
		return nil, err
	}
	s.append(ctx, d.ID, models.EventConflictAcknowledged, models.ActorSystem, map[string]any{
		"reviewer_id": reviewerID.String(),
		"note":        note,
	})
	return d, nil
}

// decide runs the aggregator and decision procedure against the
// dispute's current evidence and merchant response.
func (s *DisputeService) decide(d *models.Dispute) (float64, models.Resolution) {
	overall, rec := risk.Score(d.RiskFactors, s.cfg.Risk)
	in := DecisionInput{
		Recommendation:         rec,
		Factors:                d.RiskFactors,
		EvidenceCount:          len(d.EvidenceRefs),
		RequestedResolution:    d.RequestedResolution,
		RequestedAmountMinor:   d.RequestedAmountMinor,
		TransactionAmountMinor: d.AmountMinor,
	}
	if d.MerchantResponse != nil {
		in.AcceptsFault = d.MerchantResponse.AcceptsFault
	}
	return overall, Decide(in)
}

// resolveInternally decides and applies in one step, for paths where no
// human gate applies (merchant accepted fault).
func (s *DisputeService) resolveInternally(ctx context.Context, d *models.Dispute, factors []models.RiskFactor) error {
	if len(factors) > 0 {
		d.RiskFactors = factors
	}
	_, res := s.decide(d)
	if res.RequiresConfirmation {
		return models.ErrConfirmationOutstanding
	}
	return s.resolveWith(ctx, d, res)
}

func (s *DisputeService) resolveWith(ctx context.Context, d *models.Dispute, res models.Resolution) error {
	err := s.applyTransition(ctx, d, models.TriggerInternalDecision, models.EventResolved,
		map[string]any{
			"outcome":             string(res.Outcome),
			"reason":              res.Reason,
			"refund_amount_minor": derefInt64(res.RefundAmountMinor),
		},
		func(d *models.Dispute) error {
			return setResolution(d, res)
		})
	if err != nil {
		return err
	}

	// An internal decision on an escalated case executes the refund
	// through the Network. Failures are retried manually; the resolution
	// itself stands.
	if res.RefundAmountMinor != nil && *res.RefundAmountMinor > 0 && d.NetworkCaseID != nil {
		if err := s.network.IssueRefund(ctx, *d.NetworkCaseID, *res.RefundAmountMinor, d.Currency); err != nil {
			s.log.Warn("refund issuance failed",
				zap.String("dispute_id", d.ID.String()),
				zap.String("network_case_id", *d.NetworkCaseID),
				zap.Int64("refund_amount_minor", *res.RefundAmountMinor),
				zap.Error(err))
		}
	}
	return nil
}

// applyTransition is the one choke point for state changes: validate
// against the transition table, mutate, save with a version check,
// append the timeline fact, then notify best-effort.
func (s *DisputeService) applyTransition(ctx context.Context, d *models.Dispute, trigger models.Trigger, event string, details map[string]any, mutate func(*models.Dispute) error) error {
	to, ok := models.NextStatus(trigger, d.Status)
	if !ok {
		return fmt.Errorf("trigger %s in %s: %w", trigger, d.Status, models.ErrInvalidForState)
	}

	expected := d.Version
	from := d.Status
	d.Status = to
	if mutate != nil {
		if err := mutate(d); err != nil {
			d.Status = from
			return err
		}
	}
	d.UpdatedAt = time.Now().UTC()

	if err := s.disputes.Save(ctx, d, expected); err != nil {
		d.Status = from
		return err
	}

	if details == nil {
		details = map[string]any{}
	}
	details["from"] = string(from)
	details["to"] = string(to)
	s.append(ctx, d.ID, event, models.ActorForTrigger(trigger), details)

	if err := s.notifier.Notify(ctx, d, event); err != nil {
		s.log.Warn("notify failed", zap.String("dispute_id", d.ID.String()), zap.Error(err))
	}
	return nil
}

// append writes a timeline fact; ledger failures are logged, never
// propagated, so a flaky audit store cannot undo an applied transition.
func (s *DisputeService) append(ctx context.Context, disputeID uuid.UUID, event string, actor models.Actor, details map[string]any) {
	ev := &models.TimelineEvent{
		DisputeID: disputeID,
		Event:     event,
		Actor:     actor,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.ledger.Append(ctx, ev); err != nil {
		s.log.Error("timeline append failed",
			zap.String("dispute_id", disputeID.String()),
			zap.String("event", event),
			zap.Error(err))
	}
}

// setResolution enforces write-once resolutions and the refund cap.
func setResolution(d *models.Dispute, res models.Resolution) error {
	if d.Resolution != nil {
		return models.ErrResolutionImmutable
	}
	if res.RefundAmountMinor != nil && *res.RefundAmountMinor > d.AmountMinor {
		return models.ErrRefundExceedsTxn
	}
	d.Resolution = &res
	return nil
}

func derefInt64(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}
