// Package listings implements the generation gate: the orchestration that
// decides whether a user may generate a listing, calls the generation
// collaborator, and settles the credit afterwards.
package listings

import (
	"context"
	"log/slog"
	"time"

	"listwright/internal/billing"
	"listwright/internal/entitlement"
	"listwright/internal/external"
	"listwright/internal/types"
)

// Service coordinates entitlement checks, lazy billing-cycle resets, the
// generation call, and credit consumption.
type Service struct {
	store     entitlement.Store
	generator external.GenerationService
	resetter  *billing.CycleResetter
	logger    *slog.Logger
}

// NewService wires the generation gate.
func NewService(
	store entitlement.Store,
	generator external.GenerationService,
	resetter *billing.CycleResetter,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		generator: generator,
		resetter:  resetter,
		logger:    logger,
	}
}

// GenerateResult carries the listing together with the caller's entitlement
// state after the operation, so the handler can report remaining credits.
type GenerateResult struct {
	Listing     *types.Listing
	Entitlement *types.Entitlement
}

// Generate runs the full gate sequence for one request:
//
//  1. Load the entitlement. A store failure here is logged and the attempt
//     proceeds as if the user had credit; a flaky database should degrade to
//     generosity, not lock paying users out.
//  2. Apply a lazy billing-cycle reset if 30 days have elapsed, persisting
//     the refreshed allotment.
//  3. Deny with paywall_credits_exhausted if no credit remains.
//  4. Call the generation collaborator. Failure or timeout surfaces as
//     upstream_generation_failed and no credit is consumed.
//  5. On success, consume one credit with a conditional decrement (unlimited
//     plans skip this). A write failure at this point is logged and the
//     listing is still returned; the user already has the text.
//
// The sequence is not atomic across the collaborator call and the decrement.
// A crash between them leaves the credit unconsumed, which favors the user.
func (s *Service) Generate(ctx context.Context, userID string, req types.ListingRequest) (*GenerateResult, error) {
	ent, err := s.store.Get(ctx, userID)
	if err != nil {
		s.logger.WarnContext(ctx, "entitlement read failed during gate pre-check, allowing attempt",
			"user_id", userID,
			"error", err,
		)
		ent = nil
	}

	if ent != nil {
		ent = s.maybeReset(ctx, ent)

		if !billing.CanGenerate(ent) {
			return nil, types.NewAppError(
				types.ErrCodePaywallDenied,
				"no generation credits remaining; upgrade your plan or wait for your cycle to reset",
				nil,
			)
		}
	}

	listing, err := s.generator.GenerateListing(ctx, req)
	if err != nil {
		// Entitlement untouched: a failed generation never costs a credit.
		return nil, err
	}

	if ent != nil && !ent.Unlimited() {
		remaining, consumed, err := s.store.ConsumeCredit(ctx, userID)
		switch {
		case err != nil:
			s.logger.WarnContext(ctx, "credit consume failed after successful generation",
				"user_id", userID,
				"error", err,
			)
		case !consumed:
			// A concurrent request drained the last credit between the
			// pre-check and the decrement. The text is already generated,
			// so deliver it; the conditional decrement kept the balance
			// from going negative.
			s.logger.InfoContext(ctx, "credit already exhausted at consume time",
				"user_id", userID,
			)
			ent.Credits = 0
		default:
			ent.Credits = remaining
		}
	}

	return &GenerateResult{Listing: listing, Entitlement: ent}, nil
}

// maybeReset applies a lazy billing-cycle reset and persists it. A persist
// failure is logged and the in-memory refreshed record is still used for
// this request; the sweeper or the next request will retry the write.
func (s *Service) maybeReset(ctx context.Context, ent *types.Entitlement) *types.Entitlement {
	if s.resetter == nil {
		return ent
	}

	refreshed, reset := s.resetter.MaybeReset(*ent, timeNow())
	if !reset {
		return ent
	}

	patch := billing.ResetPatch(refreshed)
	if err := s.store.Update(ctx, ent.UserID, patch); err != nil {
		s.logger.WarnContext(ctx, "billing cycle reset persist failed",
			"user_id", ent.UserID,
			"error", err,
		)
	} else {
		s.logger.InfoContext(ctx, "billing cycle reset applied",
			"user_id", ent.UserID,
			"plan", string(refreshed.Plan),
			"credits", refreshed.Credits,
		)
	}
	return &refreshed
}

// timeNow is a seam for tests.
var timeNow = func() time.Time { return time.Now().UTC() }
