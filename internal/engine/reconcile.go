// Package engine implements the event-sourced reconciliation core: the
// matched/unmatched invariant algorithm, the idempotent event router, and the
// full-history replay engine.
package engine

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/outcomefi/vaultsync/internal/domain"
)

// Aggregate is a market's matched/unmatched token state. The pool is
// delta-neutral: yes and no tokens are matched 1:1, any imbalance is
// directional "unmatched" exposure on one side.
type Aggregate struct {
	Matched      *big.Int
	UnmatchedYes *big.Int
	UnmatchedNo  *big.Int
}

// ZeroAggregate returns an all-zero aggregate, the replay starting point.
func ZeroAggregate() Aggregate {
	return Aggregate{
		Matched:      new(big.Int),
		UnmatchedYes: new(big.Int),
		UnmatchedNo:  new(big.Int),
	}
}

// Reconcile applies signed per-side deltas to an aggregate:
//
//	overallYes = unmatchedYes + matched + yesDelta
//	overallNo  = unmatchedNo  + matched + noDelta
//	matched'   = min(overallYes, overallNo)
//
// with the unmatched remainders on each side. Deltas are positive for
// deposits, negative for withdrawals and redemptions. A correctly-ordered
// event stream never drives a component negative; when that happens anyway
// the computed aggregate is still returned together with
// domain.ErrInvariantViolated so callers can log the anomaly and let the
// replay engine repair the market.
func Reconcile(cur Aggregate, yesDelta, noDelta *big.Int) (Aggregate, error) {
	overallYes := new(big.Int).Add(cur.UnmatchedYes, cur.Matched)
	overallYes.Add(overallYes, yesDelta)

	overallNo := new(big.Int).Add(cur.UnmatchedNo, cur.Matched)
	overallNo.Add(overallNo, noDelta)

	matched := overallYes
	if overallNo.Cmp(overallYes) < 0 {
		matched = overallNo
	}
	matched = new(big.Int).Set(matched)

	next := Aggregate{
		Matched:      matched,
		UnmatchedYes: new(big.Int).Sub(overallYes, matched),
		UnmatchedNo:  new(big.Int).Sub(overallNo, matched),
	}

	if next.Matched.Sign() < 0 || next.UnmatchedYes.Sign() < 0 || next.UnmatchedNo.Sign() < 0 {
		return next, fmt.Errorf("engine: yesDelta=%s noDelta=%s left matched=%s unmatchedYes=%s unmatchedNo=%s: %w",
			yesDelta, noDelta, next.Matched, next.UnmatchedYes, next.UnmatchedNo, domain.ErrInvariantViolated)
	}
	return next, nil
}

// balanceActivityDeltas derives the signed aggregate deltas for a
// balance-affecting activity from its stored info payload. It is the single
// delta-derivation path shared by incremental routing and replay, so both
// always agree. The second return is false for lifecycle and other
// non-balance activities.
func balanceActivityDeltas(a domain.Activity, winning domain.Position) (yes, no *big.Int, ok bool, err error) {
	switch a.Type {
	case "TokensDeposited", "GenesisDeposited":
		var info domain.TransferInfo
		if err := json.Unmarshal(a.Info, &info); err != nil {
			return nil, nil, false, fmt.Errorf("engine: decode %s info for %s: %w", a.Type, a.ID, err)
		}
		yes, no, err = parseAmounts(info.YesAmount, info.NoAmount)
		return yes, no, err == nil, err

	case "TokensWithdrawn", "GenesisWithdrawn":
		var info domain.TransferInfo
		if err := json.Unmarshal(a.Info, &info); err != nil {
			return nil, nil, false, fmt.Errorf("engine: decode %s info for %s: %w", a.Type, a.ID, err)
		}
		yes, no, err = parseAmounts(info.YesAmount, info.NoAmount)
		if err != nil {
			return nil, nil, false, err
		}
		return yes.Neg(yes), no.Neg(no), true, nil

	case "WinningsRedeemed", "GenesisRedeemed":
		var info domain.RedeemInfo
		if err := json.Unmarshal(a.Info, &info); err != nil {
			return nil, nil, false, fmt.Errorf("engine: decode %s info for %s: %w", a.Type, a.ID, err)
		}
		amount, err := parseAmount(info.TokenAmount)
		if err != nil {
			return nil, nil, false, err
		}
		neg := new(big.Int).Neg(amount)
		switch winning {
		case domain.PositionYes:
			return neg, new(big.Int), true, nil
		case domain.PositionNo:
			return new(big.Int), neg, true, nil
		case domain.PositionBoth:
			return neg, new(big.Int).Set(neg), true, nil
		default:
			return nil, nil, false, fmt.Errorf("engine: redemption %s before finalization: %w", a.ID, domain.ErrInvariantViolated)
		}

	default:
		return nil, nil, false, nil
	}
}

func parseAmount(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("engine: invalid decimal amount %q", s)
	}
	return n, nil
}

func parseAmounts(yesStr, noStr string) (*big.Int, *big.Int, error) {
	yes, err := parseAmount(yesStr)
	if err != nil {
		return nil, nil, err
	}
	no, err := parseAmount(noStr)
	if err != nil {
		return nil, nil, err
	}
	return yes, no, nil
}
