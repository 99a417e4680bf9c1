package billing

import "listwright/internal/types"

// CanGenerate decides whether the entitlement permits one more generation.
// Unlimited entitlements (agency tier, legacy paid records) are always
// allowed regardless of their credit balance; everyone else, metered
// professional users included, needs at least one credit. A false result is
// a paywall signal, not an error.
func CanGenerate(ent *types.Entitlement) bool {
	if ent == nil {
		return false
	}
	return ent.Unlimited() || ent.Credits > 0
}

// ApplyGeneration computes the post-generation entitlement state. It is a
// no-op for unlimited users; otherwise it consumes exactly one credit, never
// going below zero. Callers must only apply it after the generation
// collaborator has succeeded, so a failed generation never costs a credit.
// Persistence is the caller's responsibility.
func ApplyGeneration(ent types.Entitlement) types.Entitlement {
	if ent.Unlimited() {
		return ent
	}
	if ent.Credits > 0 {
		ent.Credits--
	}
	return ent
}
