package billing

import (
	"time"

	"listwright/internal/types"
)

// Legacy fixed checkout amounts (in cents) recognized alongside the
// configured price IDs. Events created before price IDs were introduced
// carry only amount_total.
const (
	legacyAmountUnlimited    = 7900 // $79 unlimited subscription
	legacyAmountSingleCredit = 2900 // $29 single listing credit
	legacyAmountProfessional = 1900 // $19 professional subscription
	legacyAmountAgency       = 3900 // $39 agency subscription
)

// PriceTable maps configured Stripe price identifiers to plan tiers. It is
// built once from configuration at startup and passed into the webhook
// handler; the mapping is never read from ambient environment state.
type PriceTable struct {
	Professional string
	Agency       string
	Unlimited    string
}

// UpgradeKind distinguishes the two shapes of a completed checkout.
type UpgradeKind int

const (
	// UpgradePlan switches the user onto a subscription tier and resets
	// their allotment.
	UpgradePlan UpgradeKind = iota
	// UpgradeSingleCredit adds one credit to the current balance without
	// touching the plan or the per-cycle limit.
	UpgradeSingleCredit
)

// Upgrade is the resolved outcome of a checkout.session.completed event.
type Upgrade struct {
	Kind      UpgradeKind
	Plan      types.PlanTier
	Allotment int
}

// ResolveUpgrade matches the event's signals -- the configured price
// identifier or the legacy fixed amount -- against the plan table:
//
//	amount 7900 / unlimited price  -> agency-equivalent unlimited
//	amount 2900                    -> +1 credit (additive, not a reset)
//	amount 1900 / professional price -> professional, 25
//	amount 3900 / agency price     -> agency, unlimited
//
// An event matching none of these is rejected with webhook_unknown_plan and
// must cause no state change.
func (t PriceTable) ResolveUpgrade(amountTotal int64, priceID string) (Upgrade, error) {
	switch {
	case amountTotal == legacyAmountUnlimited || (priceID != "" && priceID == t.Unlimited):
		return Upgrade{Kind: UpgradePlan, Plan: types.PlanAgency, Allotment: types.UnlimitedCredits}, nil
	case amountTotal == legacyAmountSingleCredit:
		return Upgrade{Kind: UpgradeSingleCredit}, nil
	case amountTotal == legacyAmountProfessional || (priceID != "" && priceID == t.Professional):
		return Upgrade{Kind: UpgradePlan, Plan: types.PlanProfessional, Allotment: 25}, nil
	case amountTotal == legacyAmountAgency || (priceID != "" && priceID == t.Agency):
		return Upgrade{Kind: UpgradePlan, Plan: types.PlanAgency, Allotment: types.UnlimitedCredits}, nil
	default:
		return Upgrade{}, types.NewAppErrorWithDetails(
			types.ErrCodeWebhookUnknownPlan,
			"checkout amount and price id match no known plan",
			nil,
			map[string]any{"amount_total": amountTotal, "price_id": priceID},
		)
	}
}

// UpgradePatch builds the entitlement write for a matched plan upgrade:
// plan, credits, limit, the derived paid flag, the Stripe identifiers from
// the event, and a fresh billing cycle anchor.
func UpgradePatch(u Upgrade, customerID, subscriptionID string, now time.Time) types.EntitlementPatch {
	plan := u.Plan
	credits := u.Allotment
	limit := u.Allotment
	isPaid := true
	return types.EntitlementPatch{
		Plan:                 &plan,
		Credits:              &credits,
		CreditsLimit:         &limit,
		IsPaid:               &isPaid,
		BillingCycleStart:    &now,
		StripeCustomerID:     &customerID,
		StripeSubscriptionID: &subscriptionID,
	}
}

// CancellationPatch builds the free-tier revert applied when a subscription
// is deleted. The Stripe customer id is left in place; its linkage is
// severed logically by the plan revert.
func CancellationPatch(now time.Time) types.EntitlementPatch {
	plan := types.PlanFree
	credits := 3
	limit := 3
	isPaid := false
	return types.EntitlementPatch{
		Plan:              &plan,
		Credits:           &credits,
		CreditsLimit:      &limit,
		IsPaid:            &isPaid,
		BillingCycleStart: &now,
	}
}
