package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"listwright/internal/billing"
	"listwright/internal/types"
)

type mockSweepStore struct {
	mu          sync.Mutex
	due         []*types.Entitlement
	listErr     error
	updateErr   map[string]error
	updateCalls []string
}

func (m *mockSweepStore) Get(ctx context.Context, userID string) (*types.Entitlement, error) {
	return nil, types.NewAppError(types.ErrCodeNotFoundEntitlement, "not found", nil)
}

func (m *mockSweepStore) Update(ctx context.Context, userID string, patch types.EntitlementPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls = append(m.updateCalls, userID)
	if err, ok := m.updateErr[userID]; ok {
		return err
	}
	return nil
}

func (m *mockSweepStore) ConsumeCredit(ctx context.Context, userID string) (int, bool, error) {
	return 0, false, nil
}

func (m *mockSweepStore) AddCredits(ctx context.Context, userID string, delta int) (int, error) {
	return 0, nil
}

func (m *mockSweepStore) FindByCustomerID(ctx context.Context, customerID string) (*types.Entitlement, error) {
	return nil, types.NewAppError(types.ErrCodeNotFoundEntitlement, "not found", nil)
}

func (m *mockSweepStore) ListResetDue(ctx context.Context, asOf time.Time, limit int) ([]*types.Entitlement, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	if len(m.due) > limit {
		return m.due[:limit], nil
	}
	return m.due, nil
}

func dueEntitlement(userID string, plan types.PlanTier, daysAgo int, asOf time.Time) *types.Entitlement {
	start := asOf.AddDate(0, 0, -daysAgo)
	return &types.Entitlement{
		UserID:            userID,
		Plan:              plan,
		Credits:           0,
		CreditsLimit:      25,
		IsPaid:            plan != types.PlanFree,
		BillingCycleStart: &start,
	}
}

func newTestSweeper(store *mockSweepStore) *CycleSweeper {
	return NewCycleSweeper(store, billing.NewCycleResetter(billing.NewStaticPlanRegistry()), nil)
}

func TestRun_ResetsAllDueRecords(t *testing.T) {
	asOf := time.Date(2026, 8, 29, 3, 0, 0, 0, time.UTC)
	store := &mockSweepStore{
		due: []*types.Entitlement{
			dueEntitlement("user_1", types.PlanProfessional, 31, asOf),
			dueEntitlement("user_2", types.PlanFree, 45, asOf),
			dueEntitlement("user_3", types.PlanAgency, 30, asOf),
		},
	}
	sweeper := newTestSweeper(store)

	result, err := sweeper.Run(context.Background(), SweepPayload{ReferenceTime: asOf})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Scanned != 3 || result.Reset != 3 || result.Failed != 0 {
		t.Errorf("result = %+v, want 3 scanned, 3 reset, 0 failed", result)
	}
	if len(store.updateCalls) != 3 {
		t.Errorf("expected 3 persists, got %d", len(store.updateCalls))
	}
}

func TestRun_PerRecordFailureDoesNotAbort(t *testing.T) {
	asOf := time.Date(2026, 8, 29, 3, 0, 0, 0, time.UTC)
	store := &mockSweepStore{
		due: []*types.Entitlement{
			dueEntitlement("user_1", types.PlanProfessional, 31, asOf),
			dueEntitlement("user_2", types.PlanProfessional, 31, asOf),
		},
		updateErr: map[string]error{
			"user_1": types.NewAppError(types.ErrCodeInternalDB, "write failed", nil),
		},
	}
	sweeper := newTestSweeper(store)

	result, err := sweeper.Run(context.Background(), SweepPayload{ReferenceTime: asOf})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Reset != 1 || result.Failed != 1 {
		t.Errorf("result = %+v, want 1 reset, 1 failed", result)
	}
}

func TestRun_ListFailurePropagates(t *testing.T) {
	store := &mockSweepStore{
		listErr: types.NewAppError(types.ErrCodeInternalDB, "query failed", nil),
	}
	sweeper := newTestSweeper(store)

	_, err := sweeper.Run(context.Background(), SweepPayload{})
	if err == nil {
		t.Fatal("a list failure must propagate; there is nothing to sweep")
	}
}

func TestRun_HonorsBatchSize(t *testing.T) {
	asOf := time.Date(2026, 8, 29, 3, 0, 0, 0, time.UTC)
	due := make([]*types.Entitlement, 10)
	for i := range due {
		due[i] = dueEntitlement("user_"+string(rune('a'+i)), types.PlanFree, 40, asOf)
	}
	store := &mockSweepStore{due: due}
	sweeper := newTestSweeper(store)

	result, err := sweeper.Run(context.Background(), SweepPayload{ReferenceTime: asOf, BatchSize: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Scanned != 4 {
		t.Errorf("scanned = %d, want 4", result.Scanned)
	}
}

func TestParsePayload(t *testing.T) {
	p, err := ParsePayload(nil)
	if err != nil {
		t.Fatalf("empty payload must parse: %v", err)
	}
	if !p.ReferenceTime.IsZero() {
		t.Error("empty payload yields the zero value")
	}

	p, err = ParsePayload([]byte(`{"reference_time":"2026-08-01T00:00:00Z","batch_size":50}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.BatchSize != 50 {
		t.Errorf("batch_size = %d, want 50", p.BatchSize)
	}
	if p.ReferenceTime.IsZero() {
		t.Error("reference_time must be parsed")
	}
}
