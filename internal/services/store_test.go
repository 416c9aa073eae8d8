package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qrpay-marketplace/backend/internal/models"
)

// memStore is an in-memory DisputeStore + Ledger + NetworkEventStore
// with the same version-check semantics as the postgres repositories.
type memStore struct {
	mu          sync.Mutex
	disputes    map[uuid.UUID]*models.Dispute
	timeline    []models.TimelineEvent
	seen        map[string]bool
	deadLetters map[int64]*models.DeadLetter
	nextDL      int64
	nextSeq     int64
}

func newMemStore() *memStore {
	return &memStore{
		disputes:    map[uuid.UUID]*models.Dispute{},
		seen:        map[string]bool{},
		deadLetters: map[int64]*models.DeadLetter{},
	}
}

func (m *memStore) Create(_ context.Context, d *models.Dispute) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.disputes[d.ID] = &cp
	return nil
}

func (m *memStore) Get(_ context.Context, id uuid.UUID) (*models.Dispute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.disputes[id]
	if !ok {
		return nil, models.ErrUnknownDispute
	}
	cp := *d
	return &cp, nil
}

func (m *memStore) Save(_ context.Context, d *models.Dispute, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.disputes[d.ID]
	if !ok {
		return models.ErrUnknownDispute
	}
	if cur.Version != expectedVersion {
		return models.ErrVersionConflict
	}
	d.Version = expectedVersion + 1
	cp := *d
	m.disputes[d.ID] = &cp
	return nil
}

func (m *memStore) FindByTransactionID(_ context.Context, txID uuid.UUID) (*models.Dispute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.disputes {
		if d.TransactionID == txID {
			cp := *d
			return &cp, nil
		}
	}
	return nil, models.ErrUnknownDispute
}

func (m *memStore) FindByNetworkCaseID(_ context.Context, caseID string) (*models.Dispute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.disputes {
		if d.NetworkCaseID != nil && *d.NetworkCaseID == caseID {
			cp := *d
			return &cp, nil
		}
	}
	return nil, models.ErrUnknownDispute
}

func (m *memStore) DueMerchantTimeouts(_ context.Context, before time.Time) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uuid.UUID
	for _, d := range m.disputes {
		if d.Status == models.StatusMerchantReview && d.CreatedAt.Before(before) {
			ids = append(ids, d.ID)
		}
	}
	return ids, nil
}

func (m *memStore) ListByStatus(_ context.Context, status models.Status, _, _ int) ([]models.Dispute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Dispute
	for _, d := range m.disputes {
		if d.Status == status {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (m *memStore) ListByParty(_ context.Context, partyID uuid.UUID, _, _ int) ([]models.Dispute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Dispute
	for _, d := range m.disputes {
		if d.CustomerID == partyID || d.MerchantID == partyID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (m *memStore) ListConflicts(_ context.Context) ([]models.Dispute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Dispute
	for _, d := range m.disputes {
		if d.ResolutionConflict {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (m *memStore) Append(_ context.Context, ev *models.TimelineEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSeq++
	ev.Seq = m.nextSeq
	ev.ID = m.nextSeq
	m.timeline = append(m.timeline, *ev)
	return nil
}

func (m *memStore) List(_ context.Context, disputeID uuid.UUID) ([]models.TimelineEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.TimelineEvent
	for _, ev := range m.timeline {
		if ev.DisputeID == disputeID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *memStore) Claim(_ context.Context, dedupKey string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen[dedupKey] {
		return false, nil
	}
	m.seen[dedupKey] = true
	return true, nil
}

func (m *memStore) Release(_ context.Context, dedupKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, dedupKey)
	return nil
}

func (m *memStore) SaveDeadLetter(_ context.Context, dl *models.DeadLetter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextDL++
	dl.ID = m.nextDL
	cp := *dl
	m.deadLetters[dl.ID] = &cp
	return nil
}

func (m *memStore) ListDeadLetters(_ context.Context, limit int) ([]models.DeadLetter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.DeadLetter
	for _, dl := range m.deadLetters {
		out = append(out, *dl)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) DeleteDeadLetter(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.deadLetters, id)
	return nil
}

func (m *memStore) TouchDeadLetter(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	dl, ok := m.deadLetters[id]
	if !ok {
		return fmt.Errorf("dead letter %d not found", id)
	}
	dl.Attempts++
	now := time.Now().UTC()
	dl.LastTried = &now
	return nil
}

// events recorded for a dispute, in append order.
func (m *memStore) eventNames(disputeID uuid.UUID) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for _, ev := range m.timeline {
		if ev.DisputeID == disputeID {
			names = append(names, ev.Event)
		}
	}
	return names
}

// fakeNetwork is a canned NetworkAPI.
type fakeNetwork struct {
	mu      sync.Mutex
	caseID  string
	fail    bool
	created []NetworkCaseSummary
	refunds []int64
}

func (f *fakeNetwork) CreateCase(_ context.Context, summary NetworkCaseSummary) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", fmt.Errorf("network unavailable")
	}
	f.created = append(f.created, summary)
	if f.caseID == "" {
		f.caseID = "NET-1"
	}
	return f.caseID, nil
}

func (f *fakeNetwork) FetchCaseStatus(_ context.Context, _ string) (string, error) {
	return "UNDER_REVIEW", nil
}

func (f *fakeNetwork) IssueRefund(_ context.Context, _ string, amountMinor int64, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refunds = append(f.refunds, amountMinor)
	return nil
}

// nopNotifier counts notifications.
type nopNotifier struct {
	mu    sync.Mutex
	kinds []string
}

func (n *nopNotifier) Notify(_ context.Context, _ *models.Dispute, eventKind string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.kinds = append(n.kinds, eventKind)
	return nil
}
