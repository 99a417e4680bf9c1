// Package billing provides plan management and the credit-accounting domain
// logic: the pure ledger rules, the 30-day cycle resetter, and the mapping
// from Stripe event facts to entitlement changes.
package billing

import "listwright/internal/types"

// PlanRegistry defines the authoritative monthly credit allotment for each
// tier. This is the single source of truth for what each plan grants on a
// billing cycle reset.
type PlanRegistry interface {
	// Allotment returns the per-cycle credit allotment for the given plan
	// tier. For unknown tiers, returns the most restrictive (Free) allotment
	// to fail safely.
	Allotment(tier types.PlanTier) int
}

// staticPlanRegistry is a compile-time plan registry backed by an in-memory map.
// It implements PlanRegistry and is the standard implementation for production use.
type staticPlanRegistry struct {
	allotments map[types.PlanTier]int
}

// planDefaults defines the hardcoded per-cycle credit allotments:
//
//	| Plan         | Credits / 30 days     |
//	|--------------|-----------------------|
//	| Free         | 3                     |
//	| Professional | 25                    |
//	| Agency       | 999999 (unlimited)    |
//
// Agency uses the UnlimitedCredits sentinel -- enforcement code never
// decrements a balance at that level.
var planDefaults = map[types.PlanTier]int{
	types.PlanFree:         3,
	types.PlanProfessional: 25,
	types.PlanAgency:       types.UnlimitedCredits,
}

// freeAllotment is cached to avoid map lookups on the fallback path.
var freeAllotment = planDefaults[types.PlanFree]

// NewStaticPlanRegistry returns a PlanRegistry backed by the hardcoded plan
// allotments. This is the standard production implementation; no database or
// external service is required.
func NewStaticPlanRegistry() PlanRegistry {
	// Copy the defaults into a new map so callers cannot mutate the package-level variable.
	m := make(map[types.PlanTier]int, len(planDefaults))
	for k, v := range planDefaults {
		m[k] = v
	}
	return &staticPlanRegistry{allotments: m}
}

// Allotment returns the per-cycle credit allotment for the given plan tier.
// If the tier is unknown, it returns the Free tier allotment as a safe default.
func (r *staticPlanRegistry) Allotment(tier types.PlanTier) int {
	if a, ok := r.allotments[tier]; ok {
		return a
	}
	return freeAllotment
}
