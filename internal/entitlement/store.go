// Package entitlement defines the capability interface over the per-user
// entitlement records. The ledger, webhook handler, and cycle sweep depend
// only on this interface, so the backing store (Postgres today, an external
// identity provider's metadata API tomorrow) can be swapped without touching
// caller logic.
package entitlement

import (
	"context"
	"time"

	"listwright/internal/types"
)

// Store is the update contract for entitlement records.
//
// Writes are merge-patch semantics: only fields present in the patch are
// written, omitted fields are left untouched.
type Store interface {
	// Get returns the user's current entitlement, lazily initialized to the
	// free-tier defaults {credits: 3, is_paid: false, plan: free} if no
	// record exists yet. Legacy is_paid-only records are normalized to the
	// tiered scheme on read.
	Get(ctx context.Context, userID string) (*types.Entitlement, error)

	// Update applies a partial-field update to the user's record, creating
	// it with free-tier defaults first if absent.
	Update(ctx context.Context, userID string, patch types.EntitlementPatch) error

	// ConsumeCredit atomically decrements the user's balance by one, but
	// only while credits > 0. Returns the remaining balance and whether a
	// credit was consumed. This is the conditional-update path the
	// generation gate uses so two concurrent requests cannot spend the same
	// credit.
	ConsumeCredit(ctx context.Context, userID string) (remaining int, consumed bool, err error)

	// AddCredits atomically adds delta credits to the user's balance,
	// creating the record with free-tier defaults first if absent, and
	// returns the new balance. Used for paid top-ups, which must not be
	// lost to a concurrent writer.
	AddCredits(ctx context.Context, userID string, delta int) (balance int, err error)

	// FindByCustomerID returns the entitlement whose stripe_customer_id
	// matches, or a not_found_entitlement error. The lookup is indexed;
	// cancellation events arrive keyed by customer id, not user id.
	FindByCustomerID(ctx context.Context, customerID string) (*types.Entitlement, error)

	// ListResetDue returns up to limit entitlements whose billing cycle
	// started 30 or more days before asOf, for the periodic sweep.
	ListResetDue(ctx context.Context, asOf time.Time, limit int) ([]*types.Entitlement, error)
}
