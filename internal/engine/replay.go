package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/outcomefi/vaultsync/internal/domain"
	"github.com/outcomefi/vaultsync/internal/notify"
)

// replayLockTTL bounds how long a market's recompute lock can be held if the
// process dies mid-replay.
const replayLockTTL = 5 * time.Minute

// recomputeConcurrency bounds how many markets are replayed in parallel.
const recomputeConcurrency = 4

// ReplayResult summarizes one market recomputation.
type ReplayResult struct {
	ConditionID string    `json:"conditionId"`
	Activities  int       `json:"activities"`
	Drift       bool      `json:"drift"`
	Aggregate   Aggregate `json:"-"`
}

// Replayer rebuilds market aggregates from the full activity history. The
// activity ledger is the source of truth: the stored aggregates are discarded
// and recomputed from zero with the same reconciliation algorithm and the
// same per-event delta derivation as incremental routing.
type Replayer struct {
	markets    domain.MarketStore
	activities domain.ActivityStore
	cache      domain.MarketCache // optional
	locks      domain.LockManager // optional; serializes per-market recompute
	notifier   *notify.Notifier   // optional
	logger     *slog.Logger
}

// NewReplayer creates a Replayer. cache, locks and notifier may be nil.
func NewReplayer(
	markets domain.MarketStore,
	activities domain.ActivityStore,
	cache domain.MarketCache,
	locks domain.LockManager,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *Replayer {
	return &Replayer{
		markets:    markets,
		activities: activities,
		cache:      cache,
		locks:      locks,
		notifier:   notifier,
		logger:     logger.With(slog.String("component", "replayer")),
	}
}

// RecomputeMarket replays a single market's activity history in block order
// into a fresh working aggregate and overwrites the stored aggregates in one
// write. It returns domain.ErrLockHeld when a recompute for the same market
// is already running.
func (rp *Replayer) RecomputeMarket(ctx context.Context, conditionID string) (ReplayResult, error) {
	if rp.locks != nil {
		unlock, err := rp.locks.Acquire(ctx, "recompute:"+conditionID, replayLockTTL)
		if err != nil {
			return ReplayResult{}, err
		}
		defer unlock()
	}

	m, err := rp.markets.GetByConditionID(ctx, conditionID)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("engine: load market %s: %w", conditionID, err)
	}

	history, err := rp.activities.ListByMarket(ctx, conditionID)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("engine: load history for %s: %w", conditionID, err)
	}

	working := ZeroAggregate()
	winning := domain.PositionNone

	for _, a := range history {
		// Finalization updates only the working winning position so later
		// redemptions attribute their deltas to the correct side.
		if a.Type == "MarketFinalized" || a.Type == "GenesisFinalized" {
			var info domain.FinalizeInfo
			if err := json.Unmarshal(a.Info, &info); err != nil {
				return ReplayResult{}, fmt.Errorf("engine: decode finalize info for %s: %w", a.ID, err)
			}
			winning = info.WinningPosition
			continue
		}

		yesDelta, noDelta, ok, err := balanceActivityDeltas(a, winning)
		if err != nil {
			rp.logger.ErrorContext(ctx, "replay anomaly",
				slog.String("market", conditionID),
				slog.String("activity", a.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !ok {
			continue
		}

		next, err := Reconcile(working, yesDelta, noDelta)
		if err != nil {
			// Keep replaying with the computed values; the violation is the
			// history's, not ours, and the final state still reflects it.
			rp.logger.ErrorContext(ctx, "invariant violation during replay",
				slog.String("market", conditionID),
				slog.String("activity", a.ID),
				slog.String("error", err.Error()),
			)
		}
		working = next
	}

	drift := m.MatchedTokens.Cmp(working.Matched) != 0 ||
		m.UnmatchedYes.Cmp(working.UnmatchedYes) != 0 ||
		m.UnmatchedNo.Cmp(working.UnmatchedNo) != 0

	if drift {
		rp.logger.WarnContext(ctx, "aggregate drift detected",
			slog.String("market", conditionID),
			slog.String("stored_matched", m.MatchedTokens.String()),
			slog.String("replayed_matched", working.Matched.String()),
		)
		rp.notify(ctx, "drift_detected", "Aggregate drift detected",
			fmt.Sprintf("market %s: stored matched=%s replayed matched=%s",
				conditionID, m.MatchedTokens, working.Matched))
	}

	if err := rp.markets.UpdateAggregates(ctx, conditionID, working.Matched, working.UnmatchedYes, working.UnmatchedNo); err != nil {
		return ReplayResult{}, fmt.Errorf("engine: write recomputed aggregates for %s: %w", conditionID, err)
	}
	if rp.cache != nil {
		if err := rp.cache.Invalidate(ctx, conditionID); err != nil {
			rp.logger.DebugContext(ctx, "market cache invalidate failed", slog.String("error", err.Error()))
		}
	}

	return ReplayResult{
		ConditionID: conditionID,
		Activities:  len(history),
		Drift:       drift,
		Aggregate:   working,
	}, nil
}

// RecomputeAll replays every market with a known vault address. Markets whose
// recompute lock is held elsewhere are skipped with a warning rather than
// failing the run.
func (rp *Replayer) RecomputeAll(ctx context.Context) ([]ReplayResult, error) {
	markets, err := rp.markets.ListProvisioned(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: list markets: %w", err)
	}

	var (
		mu      sync.Mutex
		results []ReplayResult
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(recomputeConcurrency)

	for _, m := range markets {
		g.Go(func() error {
			res, err := rp.RecomputeMarket(ctx, m.ConditionID)
			if errors.Is(err, domain.ErrLockHeld) {
				rp.logger.WarnContext(ctx, "recompute already running, skipping",
					slog.String("market", m.ConditionID),
				)
				return nil
			}
			if err != nil {
				return err
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func (rp *Replayer) notify(ctx context.Context, event, title, message string) {
	if rp.notifier == nil {
		return
	}
	if err := rp.notifier.Notify(ctx, event, title, message); err != nil {
		rp.logger.WarnContext(ctx, "notification failed", slog.String("error", err.Error()))
	}
}
