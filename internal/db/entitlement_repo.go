package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"listwright/internal/billing"
	"listwright/internal/entitlement"
	"listwright/internal/types"
)

// EntitlementRepository is the Postgres implementation of entitlement.Store.
//
// The entitlements table has user_id as its primary key and an index on
// stripe_customer_id so cancellation events resolve without a table scan.
type EntitlementRepository struct {
	db DBTX
}

// Compile-time assertion that EntitlementRepository satisfies entitlement.Store.
var _ entitlement.Store = (*EntitlementRepository)(nil)

// NewEntitlementRepository creates a new EntitlementRepository backed by the
// given database connection (pool or transaction).
func NewEntitlementRepository(db DBTX) *EntitlementRepository {
	return &EntitlementRepository{db: db}
}

// entitlementColumns defines the standard set of columns selected for
// entitlement queries. Used consistently across all query methods to avoid
// column drift.
const entitlementColumns = `user_id, plan, credits, credits_limit, is_paid,
	billing_cycle_start, stripe_customer_id, stripe_subscription_id`

// scanEntitlement scans a single entitlement row into a types.Entitlement.
// The columns must match the order defined in entitlementColumns.
// Uses nullable scan targets for columns that may be NULL (plan on legacy
// rows, the cycle anchor, and the Stripe identifiers).
func scanEntitlement(row pgx.Row) (*types.Entitlement, error) {
	var e types.Entitlement
	var (
		plan           *string
		cycleStart     *time.Time
		customerID     *string
		subscriptionID *string
	)
	err := row.Scan(
		&e.UserID,
		&plan,
		&e.Credits,
		&e.CreditsLimit,
		&e.IsPaid,
		&cycleStart,
		&customerID,
		&subscriptionID,
	)
	if err != nil {
		return nil, err
	}
	if plan != nil {
		e.Plan = types.PlanTier(*plan)
	}
	e.BillingCycleStart = cycleStart
	if customerID != nil {
		e.StripeCustomerID = *customerID
	}
	if subscriptionID != nil {
		e.StripeSubscriptionID = *subscriptionID
	}
	// Legacy rows predate the tiered scheme; fold them into it on read.
	e.Normalize()
	return &e, nil
}

// Get retrieves the user's entitlement, materializing the free-tier default
// record on first load.
func (r *EntitlementRepository) Get(ctx context.Context, userID string) (*types.Entitlement, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+entitlementColumns+` FROM entitlements WHERE user_id = $1`,
		userID,
	)

	e, err := scanEntitlement(row)
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve entitlement", err)
	}

	// First interaction: lazily initialize the free-tier record. ON CONFLICT
	// makes this safe under concurrent first requests for the same user.
	if err := r.insertDefault(ctx, userID); err != nil {
		return nil, err
	}

	// Re-read instead of returning the defaults directly. If the insert hit
	// the conflict path, another writer (a webhook upgrade, most likely)
	// created the row between our SELECT and INSERT, and its state wins.
	row = r.db.QueryRow(ctx,
		`SELECT `+entitlementColumns+` FROM entitlements WHERE user_id = $1`,
		userID,
	)
	e, err = scanEntitlement(row)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve entitlement", err)
	}
	return e, nil
}

// insertDefault creates the free-tier default row if none exists.
func (r *EntitlementRepository) insertDefault(ctx context.Context, userID string) error {
	def := types.DefaultEntitlement(userID)
	_, err := r.db.Exec(ctx,
		`INSERT INTO entitlements (user_id, plan, credits, credits_limit, is_paid)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id) DO NOTHING`,
		def.UserID, string(def.Plan), def.Credits, def.CreditsLimit, def.IsPaid,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to initialize entitlement", err)
	}
	return nil
}

// Update applies a merge-patch write: only fields present in the patch are
// written. The row is created with free-tier defaults first if absent, so a
// webhook arriving before the user's first app use still lands.
func (r *EntitlementRepository) Update(ctx context.Context, userID string, patch types.EntitlementPatch) error {
	if patch.IsZero() {
		return nil
	}

	if err := r.insertDefault(ctx, userID); err != nil {
		return err
	}

	set, args := buildPatchSet(patch)
	args = append(args, userID)
	query := fmt.Sprintf(
		`UPDATE entitlements SET %s, updated_at = NOW() WHERE user_id = $%d`,
		strings.Join(set, ", "), len(args),
	)

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update entitlement", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundEntitlement, "entitlement not found", nil)
	}
	return nil
}

// buildPatchSet converts the non-nil patch fields into SET clauses and
// positional arguments.
func buildPatchSet(patch types.EntitlementPatch) ([]string, []any) {
	var set []string
	var args []any

	add := func(column string, value any) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Plan != nil {
		add("plan", string(*patch.Plan))
	}
	if patch.Credits != nil {
		add("credits", *patch.Credits)
	}
	if patch.CreditsLimit != nil {
		add("credits_limit", *patch.CreditsLimit)
	}
	if patch.IsPaid != nil {
		add("is_paid", *patch.IsPaid)
	}
	if patch.BillingCycleStart != nil {
		add("billing_cycle_start", *patch.BillingCycleStart)
	}
	if patch.StripeCustomerID != nil {
		add("stripe_customer_id", *patch.StripeCustomerID)
	}
	if patch.StripeSubscriptionID != nil {
		add("stripe_subscription_id", *patch.StripeSubscriptionID)
	}
	return set, args
}

// ConsumeCredit performs the conditional decrement: one credit is consumed
// only while the balance is positive, so two concurrent generation requests
// observing credits = 1 cannot both spend it.
func (r *EntitlementRepository) ConsumeCredit(ctx context.Context, userID string) (int, bool, error) {
	var remaining int
	err := r.db.QueryRow(ctx,
		`UPDATE entitlements SET credits = credits - 1, updated_at = NOW()
		 WHERE user_id = $1 AND credits > 0
		 RETURNING credits`,
		userID,
	).Scan(&remaining)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// No record or balance already at zero; nothing was consumed.
			return 0, false, nil
		}
		return 0, false, types.NewAppError(types.ErrCodeInternalDB, "failed to consume credit", err)
	}
	return remaining, true, nil
}

// AddCredits increments the balance in a single statement so two concurrent
// top-ups both land. The row is created with free-tier defaults first if
// absent, matching Update.
func (r *EntitlementRepository) AddCredits(ctx context.Context, userID string, delta int) (int, error) {
	if err := r.insertDefault(ctx, userID); err != nil {
		return 0, err
	}

	var balance int
	err := r.db.QueryRow(ctx,
		`UPDATE entitlements SET credits = credits + $2, updated_at = NOW()
		 WHERE user_id = $1
		 RETURNING credits`,
		userID, delta,
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, types.NewAppError(types.ErrCodeNotFoundEntitlement, "entitlement not found", nil)
		}
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to add credits", err)
	}
	return balance, nil
}

// FindByCustomerID resolves an entitlement from a Stripe customer id using
// the idx_entitlements_stripe_customer index.
func (r *EntitlementRepository) FindByCustomerID(ctx context.Context, customerID string) (*types.Entitlement, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+entitlementColumns+` FROM entitlements
		 WHERE stripe_customer_id = $1
		 LIMIT 1`,
		customerID,
	)

	e, err := scanEntitlement(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundEntitlement, "no entitlement for customer", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to find entitlement by customer id", err)
	}
	return e, nil
}

// ListResetDue returns entitlements whose billing cycle started a full cycle
// or more before asOf, oldest first, for the periodic sweep.
func (r *EntitlementRepository) ListResetDue(ctx context.Context, asOf time.Time, limit int) ([]*types.Entitlement, error) {
	cutoff := asOf.AddDate(0, 0, -billing.CycleDays)
	rows, err := r.db.Query(ctx,
		`SELECT `+entitlementColumns+` FROM entitlements
		 WHERE billing_cycle_start IS NOT NULL AND billing_cycle_start <= $1
		 ORDER BY billing_cycle_start ASC
		 LIMIT $2`,
		cutoff, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query reset-due entitlements", err)
	}
	defer rows.Close()

	var due []*types.Entitlement
	for rows.Next() {
		e, err := scanEntitlement(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan entitlement row", err)
		}
		due = append(due, e)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating entitlement rows", err)
	}
	return due, nil
}
