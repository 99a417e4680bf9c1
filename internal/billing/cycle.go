package billing

import (
	"time"

	"listwright/internal/types"
)

// CycleDays is the length of the rolling entitlement window.
const CycleDays = 30

// CycleResetter refreshes credit allotments when a billing cycle rolls over.
// It is a deterministic function of the current entitlement state, which is
// what makes it safe under at-least-once execution: a reset applied twice in
// a race cannot grant more than the fixed allotment, and the second call
// observes the just-updated cycle start and sees zero elapsed days.
type CycleResetter struct {
	plans PlanRegistry
}

// NewCycleResetter creates a CycleResetter using the given plan registry.
func NewCycleResetter(plans PlanRegistry) *CycleResetter {
	return &CycleResetter{plans: plans}
}

// MaybeReset returns the refreshed entitlement and true when 30 or more full
// days have elapsed since the cycle start; otherwise it returns the input
// unchanged and false so callers can distinguish "reset performed" from "no
// reset due".
//
// A record with no cycle anchor has never been through checkout or a prior
// reset; there is nothing to measure elapsed time against, so no reset is due.
func (c *CycleResetter) MaybeReset(ent types.Entitlement, now time.Time) (types.Entitlement, bool) {
	if ent.BillingCycleStart == nil {
		return ent, false
	}

	elapsedDays := int(now.Sub(*ent.BillingCycleStart).Hours() / 24)
	if elapsedDays < CycleDays {
		return ent, false
	}

	allotment := c.plans.Allotment(ent.Plan)
	ent.Credits = allotment
	ent.CreditsLimit = allotment
	cycleStart := now
	ent.BillingCycleStart = &cycleStart
	return ent, true
}

// ResetPatch converts a refreshed entitlement into the merge-patch write for
// the store: credits, limit, and cycle start change atomically from the
// caller's perspective.
func ResetPatch(ent types.Entitlement) types.EntitlementPatch {
	credits := ent.Credits
	limit := ent.CreditsLimit
	return types.EntitlementPatch{
		Credits:           &credits,
		CreditsLimit:      &limit,
		BillingCycleStart: ent.BillingCycleStart,
	}
}
