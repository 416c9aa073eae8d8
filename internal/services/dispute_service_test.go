package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/qrpay-marketplace/backend/internal/config"
	"github.com/qrpay-marketplace/backend/internal/models"
	"github.com/qrpay-marketplace/backend/internal/risk"
	"go.uber.org/zap"
)

func newTestService() (*DisputeService, *memStore, *fakeNetwork, *nopNotifier) {
	store := newMemStore()
	net := &fakeNetwork{}
	notif := &nopNotifier{}
	cfg := &config.Config{
		MerchantResponseWindow: 48 * time.Hour,
		Risk:                   risk.DefaultConfig(),
	}
	svc := NewDisputeService(store, store, net, notif, cfg, zap.NewNop())
	return svc, store, net, notif
}

func fileDispute(t *testing.T, svc *DisputeService, contactMerchantFirst bool) *models.Dispute {
	t.Helper()
	d, err := svc.CreateDispute(context.Background(), CreateDisputeInput{
		TransactionID:        uuid.New(),
		CustomerID:           uuid.New(),
		MerchantID:           uuid.New(),
		AmountMinor:          4500,
		Currency:             "USD",
		Reason:               "item_not_received",
		Description:          "paid at the stall, nothing arrived",
		RequestedResolution:  models.RequestedFullRefund,
		EvidenceRefs:         []string{"s3://evidence/receipt-1.jpg"},
		ContactMerchantFirst: contactMerchantFirst,
	})
	if err != nil {
		t.Fatalf("CreateDispute: %v", err)
	}
	return d
}

func TestCreateDisputeRouting(t *testing.T) {
	svc, store, _, _ := newTestService()

	viaMerchant := fileDispute(t, svc, true)
	if viaMerchant.Status != models.StatusMerchantReview {
		t.Fatalf("status = %s, want merchant_review", viaMerchant.Status)
	}
	names := store.eventNames(viaMerchant.ID)
	if len(names) != 2 || names[0] != models.EventDisputeSubmitted || names[1] != models.EventMerchantReviewStarted {
		t.Fatalf("timeline = %v", names)
	}

	direct := fileDispute(t, svc, false)
	if direct.Status != models.StatusUnderReview {
		t.Fatalf("status = %s, want under_review", direct.Status)
	}
}

func TestCreateDisputeValidation(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.CreateDispute(ctx, CreateDisputeInput{
		AmountMinor:          4500,
		RequestedResolution:  models.RequestedPartialRefund,
		RequestedAmountMinor: 9000,
	})
	if !errors.Is(err, models.ErrRefundExceedsTxn) {
		t.Fatalf("err = %v, want ErrRefundExceedsTxn", err)
	}

	_, err = svc.CreateDispute(ctx, CreateDisputeInput{
		AmountMinor:         4500,
		RequestedResolution: "store_credit",
	})
	if err == nil {
		t.Fatal("expected error for unknown requested resolution")
	}
}

func TestMerchantTimeoutSweep(t *testing.T) {
	svc, store, _, _ := newTestService()
	d := fileDispute(t, svc, true)

	// Backdate past the 48h response window.
	store.mu.Lock()
	store.disputes[d.ID].CreatedAt = time.Now().Add(-72 * time.Hour)
	store.mu.Unlock()

	fired, err := svc.DueTransitions(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("DueTransitions: %v", err)
	}
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}

	got, _ := svc.Get(context.Background(), d.ID)
	if got.Status != models.StatusUnderReview {
		t.Fatalf("status = %s, want under_review", got.Status)
	}
	names := store.eventNames(d.ID)
	if names[len(names)-1] != models.EventNoResponse {
		t.Fatalf("last event = %s, want no-response", names[len(names)-1])
	}

	// Second sweep finds nothing.
	fired, err = svc.DueTransitions(context.Background(), time.Now())
	if err != nil || fired != 0 {
		t.Fatalf("second sweep fired = %d err = %v", fired, err)
	}
}

func TestMerchantAcceptsFaultAutoResolves(t *testing.T) {
	svc, _, _, notif := newTestService()
	d := fileDispute(t, svc, true)

	got, err := svc.MerchantRespond(context.Background(), d.ID, models.MerchantResponse{
		Message:      "our mistake, refund approved",
		AcceptsFault: true,
	})
	if err != nil {
		t.Fatalf("MerchantRespond: %v", err)
	}
	if got.Status != models.StatusResolved {
		t.Fatalf("status = %s, want resolved", got.Status)
	}
	if got.Resolution == nil || got.Resolution.Outcome != models.OutcomeCustomerFullRefund {
		t.Fatalf("resolution = %+v", got.Resolution)
	}
	if got.Resolution.RefundAmountMinor == nil || *got.Resolution.RefundAmountMinor != 4500 {
		t.Fatalf("refund = %v, want 4500", got.Resolution.RefundAmountMinor)
	}
	if len(notif.kinds) == 0 {
		t.Fatal("expected notifications for applied transitions")
	}
}

func TestMerchantReplacementResponse(t *testing.T) {
	svc, store, _, _ := newTestService()
	d := fileDispute(t, svc, true)

	if _, err := svc.MerchantRespond(context.Background(), d.ID, models.MerchantResponse{Message: "checking with the courier"}); err != nil {
		t.Fatalf("first response: %v", err)
	}
	got, err := svc.MerchantRespond(context.Background(), d.ID, models.MerchantResponse{Message: "courier confirms delivery", Evidence: []string{"s3://evidence/pod.pdf"}})
	if err != nil {
		t.Fatalf("replacement: %v", err)
	}
	if got.Status != models.StatusUnderReview {
		t.Fatalf("status = %s, want under_review", got.Status)
	}
	if got.MerchantResponse.Message != "courier confirms delivery" {
		t.Fatalf("stored response not replaced: %q", got.MerchantResponse.Message)
	}

	// Both arrivals are on the timeline even though only one is stored.
	responded := 0
	for _, name := range store.eventNames(d.ID) {
		if name == models.EventMerchantResponded {
			responded++
		}
	}
	if responded != 2 {
		t.Fatalf("merchant-responded events = %d, want 2", responded)
	}
}

func TestInvalidTransitionLeavesStateUnchanged(t *testing.T) {
	svc, store, _, _ := newTestService()
	d := fileDispute(t, svc, false) // under_review

	before, _ := store.Get(context.Background(), d.ID)
	_, err := svc.Close(context.Background(), d.ID)
	if !errors.Is(err, models.ErrInvalidForState) {
		t.Fatalf("err = %v, want ErrInvalidForState", err)
	}
	after, _ := store.Get(context.Background(), d.ID)
	if after.Status != before.Status || after.Version != before.Version {
		t.Fatalf("state changed on rejected transition: %s v%d -> %s v%d",
			before.Status, before.Version, after.Status, after.Version)
	}
}

func TestEscalateOpensNetworkCase(t *testing.T) {
	svc, _, net, _ := newTestService()
	d := fileDispute(t, svc, false)

	got, err := svc.Escalate(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("Escalate: %v", err)
	}
	if got.Status != models.StatusEscalatedToNetwork {
		t.Fatalf("status = %s, want escalated_to_network", got.Status)
	}
	if got.NetworkCaseID == nil || *got.NetworkCaseID != "NET-1" {
		t.Fatalf("network case id = %v", got.NetworkCaseID)
	}
	if len(net.created) != 1 || net.created[0].AmountMinor != 4500 {
		t.Fatalf("outbound case = %+v", net.created)
	}
}

func TestEscalateNetworkFailureKeepsState(t *testing.T) {
	svc, store, net, _ := newTestService()
	net.fail = true
	d := fileDispute(t, svc, false)

	if _, err := svc.Escalate(context.Background(), d.ID); err == nil {
		t.Fatal("expected escalation error")
	}
	got, _ := store.Get(context.Background(), d.ID)
	if got.Status != models.StatusUnderReview || got.NetworkCaseID != nil {
		t.Fatalf("state mutated on failed escalation: %+v", got)
	}
}

func TestProposeResolutionReject(t *testing.T) {
	svc, _, _, _ := newTestService()
	d := fileDispute(t, svc, false)

	factors := []models.RiskFactor{
		{Factor: "merchant_history", Score: 0.9},
		{Factor: "claim_pattern", Score: 0.85},
	}
	got, res, err := svc.ProposeResolution(context.Background(), d.ID, factors)
	if err != nil {
		t.Fatalf("ProposeResolution: %v", err)
	}
	if res.Outcome != models.OutcomeMerchantWins {
		t.Fatalf("outcome = %s, want merchant_wins", res.Outcome)
	}
	if got.Status != models.StatusResolved {
		t.Fatalf("status = %s, want resolved", got.Status)
	}
}

func TestCompromiseHeldUntilConfirmed(t *testing.T) {
	svc, store, _, _ := newTestService()
	svc.cfg.Risk.Weights = map[string]float64{"qr_verified": 2.0}

	d, err := svc.CreateDispute(context.Background(), CreateDisputeInput{
		TransactionID:        uuid.New(),
		CustomerID:           uuid.New(),
		MerchantID:           uuid.New(),
		AmountMinor:          9000,
		Currency:             "USD",
		Reason:               "not_as_described",
		RequestedResolution:  models.RequestedPartialRefund,
		RequestedAmountMinor: 4500,
		EvidenceRefs:         []string{"s3://evidence/photo.jpg"},
	})
	if err != nil {
		t.Fatalf("CreateDispute: %v", err)
	}

	// One heavy dissenter against two calm factors lands in the
	// compromise band.
	factors := []models.RiskFactor{
		{Factor: "qr_verified", Score: 0.9},
		{Factor: "merchant_history", Score: 0.3},
		{Factor: "claim_velocity", Score: 0.35},
	}
	got, res, err := svc.ProposeResolution(context.Background(), d.ID, factors)
	if err != nil {
		t.Fatalf("ProposeResolution: %v", err)
	}
	if res.Outcome != models.OutcomeCompromise || !res.RequiresConfirmation {
		t.Fatalf("resolution = %+v, want compromise pending confirmation", res)
	}
	if got.Status != models.StatusUnderReview {
		t.Fatalf("status = %s, compromise must not transition before confirmation", got.Status)
	}
	if got.Resolution != nil {
		t.Fatal("compromise proposal must not be persisted as the resolution")
	}
	names := store.eventNames(d.ID)
	if names[len(names)-1] != models.EventResolutionProposed {
		t.Fatalf("last event = %s, want resolution-proposed", names[len(names)-1])
	}

	confirmed, err := svc.ConfirmCompromise(context.Background(), d.ID, uuid.New())
	if err != nil {
		t.Fatalf("ConfirmCompromise: %v", err)
	}
	if confirmed.Status != models.StatusResolved {
		t.Fatalf("status = %s, want resolved", confirmed.Status)
	}
	if confirmed.Resolution.RequiresConfirmation {
		t.Fatal("confirmed resolution still flagged")
	}
	// Half of the requested 4500, rounded half up.
	if *confirmed.Resolution.RefundAmountMinor != 2250 {
		t.Fatalf("refund = %d, want 2250", *confirmed.Resolution.RefundAmountMinor)
	}
}

func TestCloseLifecycle(t *testing.T) {
	svc, _, _, _ := newTestService()
	d := fileDispute(t, svc, true)

	if _, err := svc.MerchantRespond(context.Background(), d.ID, models.MerchantResponse{AcceptsFault: true}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	closed, err := svc.Close(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if closed.Status != models.StatusClosed {
		t.Fatalf("status = %s, want closed", closed.Status)
	}

	// Closed is absorbing.
	if _, err := svc.Close(context.Background(), d.ID); !errors.Is(err, models.ErrInvalidForState) {
		t.Fatalf("reclose err = %v, want ErrInvalidForState", err)
	}
	if _, err := svc.AddEvidence(context.Background(), d.ID, []string{"late.jpg"}, models.ActorCustomer); !errors.Is(err, models.ErrInvalidForState) {
		t.Fatalf("evidence after close err = %v", err)
	}
}

func TestResolutionWriteOnce(t *testing.T) {
	svc, _, _, _ := newTestService()
	d := fileDispute(t, svc, true)

	if _, err := svc.MerchantRespond(context.Background(), d.ID, models.MerchantResponse{AcceptsFault: true}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	_, _, err := svc.ProposeResolution(context.Background(), d.ID, nil)
	if !errors.Is(err, models.ErrInvalidForState) {
		t.Fatalf("second decision err = %v, want ErrInvalidForState", err)
	}
}
