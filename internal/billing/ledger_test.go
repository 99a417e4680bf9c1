package billing

import (
	"testing"
	"time"

	"listwright/internal/types"
)

func paidEntitlement(plan types.PlanTier, credits int) *types.Entitlement {
	start := time.Now().UTC().Add(-24 * time.Hour)
	e := &types.Entitlement{
		UserID:            "user_1",
		Plan:              plan,
		Credits:           credits,
		CreditsLimit:      credits,
		IsPaid:            plan != types.PlanFree,
		BillingCycleStart: &start,
	}
	return e
}

func TestCanGenerate_NilEntitlement(t *testing.T) {
	if CanGenerate(nil) {
		t.Error("nil entitlement must not be allowed to generate")
	}
}

func TestCanGenerate_FreeWithCredits(t *testing.T) {
	ent := &types.Entitlement{UserID: "u", Plan: types.PlanFree, Credits: 3, CreditsLimit: 3}
	if !CanGenerate(ent) {
		t.Error("free user with credits should be allowed")
	}
}

func TestCanGenerate_FreeExhausted(t *testing.T) {
	ent := &types.Entitlement{UserID: "u", Plan: types.PlanFree, Credits: 0, CreditsLimit: 3}
	if CanGenerate(ent) {
		t.Error("free user with zero credits must be denied")
	}
}

func TestCanGenerate_AgencyIgnoresBalance(t *testing.T) {
	ent := paidEntitlement(types.PlanAgency, 0)
	if !CanGenerate(ent) {
		t.Error("agency plan should be allowed regardless of balance")
	}
}

func TestCanGenerate_LegacyPaidFlag(t *testing.T) {
	// Legacy record: is_paid true with no plan tier set.
	ent := &types.Entitlement{UserID: "u", IsPaid: true, Credits: 0}
	if !CanGenerate(ent) {
		t.Error("legacy paid user should be allowed regardless of balance")
	}
}

func TestCanGenerate_ProfessionalExhausted(t *testing.T) {
	ent := &types.Entitlement{
		UserID: "u", Plan: types.PlanProfessional, Credits: 0, CreditsLimit: 25, IsPaid: true,
	}
	if CanGenerate(ent) {
		t.Error("professional user with zero credits must be denied")
	}
}

func TestApplyGeneration_Decrements(t *testing.T) {
	ent := paidEntitlement(types.PlanProfessional, 25)
	got := ApplyGeneration(*ent)
	if got.Credits != 24 {
		t.Errorf("expected 24 credits, got %d", got.Credits)
	}
}

func TestApplyGeneration_FloorsAtZero(t *testing.T) {
	ent := &types.Entitlement{UserID: "u", Plan: types.PlanFree, Credits: 0}
	got := ApplyGeneration(*ent)
	if got.Credits != 0 {
		t.Errorf("credits must never go negative, got %d", got.Credits)
	}
}

func TestApplyGeneration_UnlimitedUntouched(t *testing.T) {
	ent := paidEntitlement(types.PlanAgency, types.UnlimitedCredits)
	got := ApplyGeneration(*ent)
	if got.Credits != types.UnlimitedCredits {
		t.Errorf("unlimited plan balance must not change, got %d", got.Credits)
	}
}
