// Package scheduler implements the periodic jobs for the Listwright platform.
//
// The cycle sweep is the safety net behind the lazy per-request reset: active
// users get their allotment refreshed the moment they make a request after
// day 30, while dormant users are picked up here so their records do not
// drift unboundedly stale.
package scheduler

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"listwright/internal/billing"
	"listwright/internal/entitlement"
)

// sweepBatchSize bounds a single sweep invocation so the job finishes well
// inside a Lambda timeout. Remaining records are caught by the next run.
const sweepBatchSize = 500

// sweepConcurrency bounds parallel per-user resets within a batch.
const sweepConcurrency = 8

// SweepPayload is the invocation payload for the cycle sweep job.
// ReferenceTime allows deterministic testing and manual backfill; when zero,
// the current time is used.
type SweepPayload struct {
	ReferenceTime time.Time `json:"reference_time,omitempty"`
	BatchSize     int       `json:"batch_size,omitempty"`
}

// SweepResult summarizes one sweep invocation.
type SweepResult struct {
	Scanned int `json:"scanned"`
	Reset   int `json:"reset"`
	Failed  int `json:"failed"`
}

// CycleSweeper scans for entitlements whose billing cycle started 30 or more
// days ago and refreshes their allotments.
type CycleSweeper struct {
	store    entitlement.Store
	resetter *billing.CycleResetter
	logger   *slog.Logger
}

// NewCycleSweeper creates a CycleSweeper.
func NewCycleSweeper(store entitlement.Store, resetter *billing.CycleResetter, logger *slog.Logger) *CycleSweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &CycleSweeper{
		store:    store,
		resetter: resetter,
		logger:   logger,
	}
}

// Run executes one sweep. Per-user failures are counted and logged but do
// not abort the batch; a record that fails today is still due tomorrow.
// The reset itself is a deterministic function of the record, so racing the
// lazy per-request reset is harmless: whichever writer lands second sees
// zero elapsed days and does nothing.
func (s *CycleSweeper) Run(ctx context.Context, payload SweepPayload) (SweepResult, error) {
	asOf := payload.ReferenceTime
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}
	batchSize := payload.BatchSize
	if batchSize <= 0 || batchSize > sweepBatchSize {
		batchSize = sweepBatchSize
	}

	due, err := s.store.ListResetDue(ctx, asOf, batchSize)
	if err != nil {
		return SweepResult{}, err
	}

	s.logger.InfoContext(ctx, "cycle sweep starting",
		"as_of", asOf,
		"due", len(due),
	)

	var result SweepResult
	result.Scanned = len(due)

	var resetCount, failedCount atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)

	for _, ent := range due {
		ent := ent
		g.Go(func() error {
			refreshed, reset := s.resetter.MaybeReset(*ent, asOf)
			if !reset {
				// A record with no cycle anchor; nothing to refresh.
				return nil
			}

			if err := s.store.Update(gctx, ent.UserID, billing.ResetPatch(refreshed)); err != nil {
				s.logger.WarnContext(gctx, "cycle sweep reset failed",
					"user_id", ent.UserID,
					"error", err,
				)
				failedCount.Add(1)
				return nil
			}

			s.logger.InfoContext(gctx, "cycle sweep reset applied",
				"user_id", ent.UserID,
				"plan", string(refreshed.Plan),
				"credits", refreshed.Credits,
			)
			resetCount.Add(1)
			return nil
		})
	}

	// Workers never return errors; Wait only observes context cancellation.
	waitErr := g.Wait()

	result.Reset = int(resetCount.Load())
	result.Failed = int(failedCount.Load())

	s.logger.InfoContext(ctx, "cycle sweep complete",
		"scanned", result.Scanned,
		"reset", result.Reset,
		"failed", result.Failed,
	)

	return result, waitErr
}

// ParsePayload decodes a raw invocation payload. An empty payload yields the
// zero value, which Run treats as "now, default batch".
func ParsePayload(raw []byte) (SweepPayload, error) {
	var payload SweepPayload
	if len(raw) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return SweepPayload{}, err
	}
	return payload, nil
}
