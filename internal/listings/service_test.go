package listings

import (
	"context"
	"errors"
	"testing"
	"time"

	"listwright/internal/billing"
	"listwright/internal/types"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type mockStore struct {
	ent    *types.Entitlement
	getErr error

	updateCalls []types.EntitlementPatch
	updateErr   error

	consumeRemaining int
	consumeOK        bool
	consumeErr       error
	consumeCalls     int
}

func (m *mockStore) Get(ctx context.Context, userID string) (*types.Entitlement, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	cp := *m.ent
	return &cp, nil
}

func (m *mockStore) Update(ctx context.Context, userID string, patch types.EntitlementPatch) error {
	m.updateCalls = append(m.updateCalls, patch)
	return m.updateErr
}

func (m *mockStore) ConsumeCredit(ctx context.Context, userID string) (int, bool, error) {
	m.consumeCalls++
	return m.consumeRemaining, m.consumeOK, m.consumeErr
}

func (m *mockStore) AddCredits(ctx context.Context, userID string, delta int) (int, error) {
	return 0, nil
}

func (m *mockStore) FindByCustomerID(ctx context.Context, customerID string) (*types.Entitlement, error) {
	return nil, types.NewAppError(types.ErrCodeNotFoundEntitlement, "not found", nil)
}

func (m *mockStore) ListResetDue(ctx context.Context, asOf time.Time, limit int) ([]*types.Entitlement, error) {
	return nil, nil
}

type mockGenerator struct {
	listing *types.Listing
	err     error
	calls   int
}

func (m *mockGenerator) GenerateListing(ctx context.Context, req types.ListingRequest) (*types.Listing, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.listing, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func validRequest() types.ListingRequest {
	return types.ListingRequest{
		PropertyType: "single_family",
		Address:      "12 Birch Lane",
		Price:        450000,
		Bedrooms:     3,
		Bathrooms:    2,
		Sqft:         1850,
	}
}

func freeEntitlement(credits int) *types.Entitlement {
	return &types.Entitlement{
		UserID:       "user_1",
		Plan:         types.PlanFree,
		Credits:      credits,
		CreditsLimit: 3,
	}
}

func newGateService(store *mockStore, gen *mockGenerator) *Service {
	resetter := billing.NewCycleResetter(billing.NewStaticPlanRegistry())
	return NewService(store, gen, resetter, nil)
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestGenerate_Success_ConsumesCredit(t *testing.T) {
	store := &mockStore{
		ent:              freeEntitlement(3),
		consumeRemaining: 2,
		consumeOK:        true,
	}
	gen := &mockGenerator{listing: &types.Listing{Text: "Charming home."}}
	svc := newGateService(store, gen)

	result, err := svc.Generate(context.Background(), "user_1", validRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Listing.Text != "Charming home." {
		t.Errorf("unexpected listing text %q", result.Listing.Text)
	}
	if store.consumeCalls != 1 {
		t.Errorf("expected exactly one credit consume, got %d", store.consumeCalls)
	}
	if result.Entitlement.Credits != 2 {
		t.Errorf("expected 2 remaining credits, got %d", result.Entitlement.Credits)
	}
}

func TestGenerate_Denied_WhenExhausted(t *testing.T) {
	store := &mockStore{ent: freeEntitlement(0)}
	gen := &mockGenerator{listing: &types.Listing{Text: "never"}}
	svc := newGateService(store, gen)

	_, err := svc.Generate(context.Background(), "user_1", validRequest())
	if err == nil {
		t.Fatal("expected denial")
	}
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodePaywallDenied {
		t.Fatalf("expected paywall denial, got %v", err)
	}
	if gen.calls != 0 {
		t.Error("denied request must never reach the generation collaborator")
	}
	if store.consumeCalls != 0 {
		t.Error("denied request must not touch the credit balance")
	}
}

func TestGenerate_Failure_DoesNotConsume(t *testing.T) {
	store := &mockStore{ent: freeEntitlement(2)}
	gen := &mockGenerator{err: types.NewAppError(types.ErrCodeUpstreamGeneration, "upstream timeout", nil)}
	svc := newGateService(store, gen)

	_, err := svc.Generate(context.Background(), "user_1", validRequest())
	if err == nil {
		t.Fatal("expected generation failure to propagate")
	}
	if store.consumeCalls != 0 {
		t.Error("a failed generation must never consume a credit")
	}
}

func TestGenerate_UnlimitedSkipsConsume(t *testing.T) {
	store := &mockStore{ent: &types.Entitlement{
		UserID:       "user_1",
		Plan:         types.PlanAgency,
		Credits:      types.UnlimitedCredits,
		CreditsLimit: types.UnlimitedCredits,
		IsPaid:       true,
	}}
	gen := &mockGenerator{listing: &types.Listing{Text: "Estate."}}
	svc := newGateService(store, gen)

	result, err := svc.Generate(context.Background(), "user_1", validRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.consumeCalls != 0 {
		t.Error("unlimited plan must not consume credits")
	}
	if !result.Entitlement.Unlimited() {
		t.Error("result should carry the unlimited entitlement")
	}
}

func TestGenerate_ReadFailureAllowsAttempt(t *testing.T) {
	store := &mockStore{
		getErr: types.NewAppError(types.ErrCodeInternalDB, "connection refused", nil),
	}
	gen := &mockGenerator{listing: &types.Listing{Text: "Best effort."}}
	svc := newGateService(store, gen)

	result, err := svc.Generate(context.Background(), "user_1", validRequest())
	if err != nil {
		t.Fatalf("a pre-check read failure must not block generation: %v", err)
	}
	if result.Listing == nil {
		t.Fatal("expected a listing")
	}
	if store.consumeCalls != 0 {
		t.Error("no entitlement loaded means no credit settlement")
	}
}

func TestGenerate_ConsumeFailureStillReturnsListing(t *testing.T) {
	store := &mockStore{
		ent:        freeEntitlement(3),
		consumeErr: types.NewAppError(types.ErrCodeInternalDB, "write failed", nil),
	}
	gen := &mockGenerator{listing: &types.Listing{Text: "Yours anyway."}}
	svc := newGateService(store, gen)

	result, err := svc.Generate(context.Background(), "user_1", validRequest())
	if err != nil {
		t.Fatalf("a settlement failure must not fail the request: %v", err)
	}
	if result.Listing.Text != "Yours anyway." {
		t.Error("the generated listing must be delivered")
	}
}

func TestGenerate_ConcurrentDrainReportsZero(t *testing.T) {
	// Another request spent the last credit between the pre-check and the
	// conditional decrement.
	store := &mockStore{
		ent:              freeEntitlement(1),
		consumeRemaining: 0,
		consumeOK:        false,
	}
	gen := &mockGenerator{listing: &types.Listing{Text: "Squeaked through."}}
	svc := newGateService(store, gen)

	result, err := svc.Generate(context.Background(), "user_1", validRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Entitlement.Credits != 0 {
		t.Errorf("expected zero credits reported, got %d", result.Entitlement.Credits)
	}
}

func TestGenerate_LazyResetRefreshesAllotment(t *testing.T) {
	start := time.Now().UTC().AddDate(0, 0, -31)
	store := &mockStore{
		ent: &types.Entitlement{
			UserID:            "user_1",
			Plan:              types.PlanProfessional,
			Credits:           0,
			CreditsLimit:      25,
			IsPaid:            true,
			BillingCycleStart: &start,
		},
		consumeRemaining: 24,
		consumeOK:        true,
	}
	gen := &mockGenerator{listing: &types.Listing{Text: "Fresh cycle."}}
	svc := newGateService(store, gen)

	result, err := svc.Generate(context.Background(), "user_1", validRequest())
	if err != nil {
		t.Fatalf("a due reset must unlock the exhausted balance: %v", err)
	}
	if len(store.updateCalls) != 1 {
		t.Fatalf("expected one reset persist, got %d", len(store.updateCalls))
	}
	patch := store.updateCalls[0]
	if patch.Credits == nil || *patch.Credits != 25 {
		t.Error("reset patch must restore the professional allotment")
	}
	if result.Entitlement.Credits != 24 {
		t.Errorf("expected 24 after reset and consume, got %d", result.Entitlement.Credits)
	}
}
