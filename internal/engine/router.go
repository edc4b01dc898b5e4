package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/outcomefi/vaultsync/internal/chain"
	"github.com/outcomefi/vaultsync/internal/domain"
	"github.com/outcomefi/vaultsync/internal/notify"
)

// Router applies decoded events to the stores. Per event it derives the
// activity record, reconciles the market aggregate, increments the user's
// position ledger, and finally inserts the activity row. The activity
// ledger's primary key is the idempotency boundary: an already-recorded
// event is a complete no-op.
type Router struct {
	markets    domain.MarketStore
	activities domain.ActivityStore
	positions  domain.UserPositionStore
	cache      domain.MarketCache // optional
	notifier   *notify.Notifier   // optional
	logger     *slog.Logger
}

// NewRouter creates a Router. cache and notifier may be nil.
func NewRouter(
	markets domain.MarketStore,
	activities domain.ActivityStore,
	positions domain.UserPositionStore,
	cache domain.MarketCache,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *Router {
	return &Router{
		markets:    markets,
		activities: activities,
		positions:  positions,
		cache:      cache,
		notifier:   notifier,
		logger:     logger.With(slog.String("component", "router")),
	}
}

// Apply routes one decoded event. Events for an address or slot with no
// provisioned market are logged and dropped; they self-heal once the
// provisioning event arrives. All other errors abort the caller's batch.
func (r *Router) Apply(ctx context.Context, l chain.RawLog, ev chain.Event) error {
	id := domain.ActivityID(l.TransactionHash.Hex(), uint(l.LogIndex))

	exists, err := r.activities.Exists(ctx, id)
	if err != nil {
		return fmt.Errorf("engine: check activity %s: %w", id, err)
	}
	if exists {
		r.logger.DebugContext(ctx, "duplicate activity, skipping",
			slog.String("activity", id),
			slog.String("type", ev.EventName()),
		)
		return nil
	}

	act := domain.Activity{
		ID:           id,
		TxHash:       l.TransactionHash.Hex(),
		LogIndex:     uint(l.LogIndex),
		VaultAddress: l.VaultAddress(),
		BlockNumber:  uint64(l.BlockNumber),
		Timestamp:    l.Time(),
		Type:         ev.EventName(),
		Position:     domain.PositionNone,
	}

	switch ev := ev.(type) {
	case chain.VaultCreated:
		err = r.applyVaultCreated(ctx, &act, ev)
	case chain.SlotRegistered:
		err = r.applySlotRegistered(ctx, &act, ev)
	case chain.TokensDeposited:
		err = r.applyTransfer(ctx, &act, ev.User.Hex(), ev.YesAmount, ev.NoAmount, nil, false)
	case chain.TokensWithdrawn:
		err = r.applyTransfer(ctx, &act, ev.User.Hex(), ev.YesAmount, ev.NoAmount, nil, true)
	case chain.GenesisDeposited:
		err = r.applyTransfer(ctx, &act, ev.User.Hex(), ev.YesAmount, ev.NoAmount, ev.Slot, false)
	case chain.GenesisWithdrawn:
		err = r.applyTransfer(ctx, &act, ev.User.Hex(), ev.YesAmount, ev.NoAmount, ev.Slot, true)
	case chain.WinningsRedeemed:
		err = r.applyRedeem(ctx, &act, ev.User.Hex(), ev.TokenAmount, ev.USDAmount, nil)
	case chain.GenesisRedeemed:
		err = r.applyRedeem(ctx, &act, ev.User.Hex(), ev.TokenAmount, ev.USDAmount, ev.Slot)
	case chain.YieldHarvested:
		err = r.applyHarvest(ctx, &act, ev.User.Hex(), ev.Amount)
	case chain.MarketFinalized:
		err = r.applyFinalize(ctx, &act, winningFromWire(ev.WinningPosition), nil)
	case chain.GenesisFinalized:
		err = r.applyFinalize(ctx, &act, winningFromWire(ev.WinningPosition), ev.Slot)
	case chain.VaultUnlocked:
		err = r.applyUnlock(ctx, &act)
	case chain.PriceSubmitted:
		err = r.applyPrice(ctx, &act, ev.Slot, ev.Price)
	default:
		return fmt.Errorf("engine: unhandled event %s: %w", ev.EventName(), domain.ErrUnknownEvent)
	}

	if err != nil {
		if errors.Is(err, domain.ErrUnknownMarket) {
			r.logger.WarnContext(ctx, "event for unprovisioned market, dropping",
				slog.String("activity", id),
				slog.String("type", act.Type),
				slog.String("vault", act.VaultAddress),
			)
			return nil
		}
		return err
	}

	if err := r.activities.Insert(ctx, act); err != nil {
		if errors.Is(err, domain.ErrDuplicateActivity) {
			return nil
		}
		return fmt.Errorf("engine: insert activity %s: %w", id, err)
	}
	return nil
}

func (r *Router) applyVaultCreated(ctx context.Context, act *domain.Activity, ev chain.VaultCreated) error {
	conditionID := strings.ToLower(ev.ConditionID.Hex())
	vault := strings.ToLower(ev.Vault.Hex())

	m, err := r.markets.GetByConditionID(ctx, conditionID)
	if errors.Is(err, domain.ErrNotFound) {
		m = domain.NewMarket(conditionID)
	} else if err != nil {
		return fmt.Errorf("engine: load market %s: %w", conditionID, err)
	}

	m.VaultAddress = vault
	m.Status = domain.MarketStatusActive
	block := int64(act.BlockNumber)
	m.CreatedBlock = &block

	if err := r.markets.Provision(ctx, m); err != nil {
		return fmt.Errorf("engine: provision market %s: %w", conditionID, err)
	}
	r.invalidate(ctx, conditionID)

	act.ConditionID = conditionID
	act.UserAddress = strings.ToLower(ev.Creator.Hex())
	info, err := domain.EncodeInfo(domain.VaultCreatedInfo{
		ConditionID: conditionID,
		Vault:       vault,
		Creator:     act.UserAddress,
	})
	if err != nil {
		return err
	}
	act.Info = info
	return nil
}

func (r *Router) applySlotRegistered(ctx context.Context, act *domain.Activity, ev chain.SlotRegistered) error {
	conditionID := strings.ToLower(ev.ConditionID.Hex())
	slot := ev.Slot.Int64()

	m, err := r.markets.GetByConditionID(ctx, conditionID)
	if errors.Is(err, domain.ErrNotFound) {
		m = domain.NewMarket(conditionID)
	} else if err != nil {
		return fmt.Errorf("engine: load market %s: %w", conditionID, err)
	}

	m.VaultAddress = act.VaultAddress
	m.Status = domain.MarketStatusActive
	m.GenesisSlot = &slot
	m.Eligible = true
	endTime := time.Unix(int64(ev.EndTime), 0).UTC()
	m.EndTime = &endTime
	block := int64(act.BlockNumber)
	m.CreatedBlock = &block

	if err := r.markets.Provision(ctx, m); err != nil {
		return fmt.Errorf("engine: provision genesis slot %d: %w", slot, err)
	}
	r.invalidate(ctx, conditionID)

	act.ConditionID = conditionID
	info, err := domain.EncodeInfo(domain.SlotRegisteredInfo{
		Slot:        slot,
		ConditionID: conditionID,
		EndTime:     endTime.Unix(),
	})
	if err != nil {
		return err
	}
	act.Info = info
	return nil
}

func (r *Router) applyTransfer(ctx context.Context, act *domain.Activity, user string, yesAmount, noAmount, slot *big.Int, withdrawal bool) error {
	m, err := r.resolveMarket(ctx, act.VaultAddress, slot)
	if err != nil {
		return err
	}

	act.ConditionID = m.ConditionID
	act.UserAddress = strings.ToLower(user)
	act.Position = positionForAmounts(yesAmount, noAmount)

	info := domain.TransferInfo{
		User:      act.UserAddress,
		YesAmount: yesAmount.String(),
		NoAmount:  noAmount.String(),
	}
	if slot != nil {
		s := slot.Int64()
		info.Slot = &s
	}
	raw, err := domain.EncodeInfo(info)
	if err != nil {
		return err
	}
	act.Info = raw

	yesDelta := new(big.Int).Set(yesAmount)
	noDelta := new(big.Int).Set(noAmount)
	if withdrawal {
		yesDelta.Neg(yesDelta)
		noDelta.Neg(noDelta)
	}

	if err := r.reconcileMarket(ctx, m, *act, yesDelta, noDelta); err != nil {
		return err
	}

	return r.applyPositionDelta(ctx, domain.PositionDelta{
		UserAddress:  act.UserAddress,
		ConditionID:  m.ConditionID,
		VaultAddress: act.VaultAddress,
		YesTokens:    yesDelta,
		NoTokens:     noDelta,
	})
}

func (r *Router) applyRedeem(ctx context.Context, act *domain.Activity, user string, tokenAmount, usdAmount, slot *big.Int) error {
	m, err := r.resolveMarket(ctx, act.VaultAddress, slot)
	if err != nil {
		return err
	}

	act.ConditionID = m.ConditionID
	act.UserAddress = strings.ToLower(user)
	act.Position = m.WinningPosition

	info := domain.RedeemInfo{
		User:        act.UserAddress,
		TokenAmount: tokenAmount.String(),
		USDAmount:   usdAmount.String(),
	}
	if slot != nil {
		s := slot.Int64()
		info.Slot = &s
	}
	raw, err := domain.EncodeInfo(info)
	if err != nil {
		return err
	}
	act.Info = raw

	yesDelta, noDelta, ok, err := balanceActivityDeltas(*act, m.WinningPosition)
	if err != nil || !ok {
		// Redemption before finalization is an upstream ordering anomaly:
		// record it, skip the aggregate write, let replay repair the market.
		r.logger.ErrorContext(ctx, "redemption with unresolved winning position",
			slog.String("activity", act.ID),
			slog.String("market", m.ConditionID),
		)
		r.notify(ctx, "invariant_violation", "Redemption before finalization",
			fmt.Sprintf("market %s activity %s", m.ConditionID, act.ID))
	} else if err := r.reconcileMarket(ctx, m, *act, yesDelta, noDelta); err != nil {
		return err
	}

	delta := domain.PositionDelta{
		UserAddress:  act.UserAddress,
		ConditionID:  m.ConditionID,
		VaultAddress: act.VaultAddress,
		USDRedeemed:  new(big.Int).Set(usdAmount),
	}
	neg := new(big.Int).Neg(tokenAmount)
	switch m.WinningPosition {
	case domain.PositionYes:
		delta.YesTokens = neg
	case domain.PositionNo:
		delta.NoTokens = neg
	case domain.PositionBoth:
		delta.YesTokens = neg
		delta.NoTokens = new(big.Int).Set(neg)
	}
	return r.applyPositionDelta(ctx, delta)
}

func (r *Router) applyHarvest(ctx context.Context, act *domain.Activity, user string, amount *big.Int) error {
	m, err := r.resolveMarket(ctx, act.VaultAddress, nil)
	if err != nil {
		return err
	}

	act.ConditionID = m.ConditionID
	act.UserAddress = strings.ToLower(user)

	raw, err := domain.EncodeInfo(domain.HarvestInfo{
		User:   act.UserAddress,
		Amount: amount.String(),
	})
	if err != nil {
		return err
	}
	act.Info = raw

	return r.applyPositionDelta(ctx, domain.PositionDelta{
		UserAddress:    act.UserAddress,
		ConditionID:    m.ConditionID,
		VaultAddress:   act.VaultAddress,
		YieldHarvested: new(big.Int).Set(amount),
	})
}

func (r *Router) applyFinalize(ctx context.Context, act *domain.Activity, winning domain.Position, slot *big.Int) error {
	m, err := r.resolveMarket(ctx, act.VaultAddress, slot)
	if err != nil {
		return err
	}

	act.ConditionID = m.ConditionID
	act.Position = winning

	info := domain.FinalizeInfo{WinningPosition: winning}
	if slot != nil {
		s := slot.Int64()
		info.Slot = &s
	}
	raw, err := domain.EncodeInfo(info)
	if err != nil {
		return err
	}
	act.Info = raw

	if err := r.markets.Finalize(ctx, m.ConditionID, winning); err != nil {
		return fmt.Errorf("engine: finalize market %s: %w", m.ConditionID, err)
	}
	r.invalidate(ctx, m.ConditionID)
	return nil
}

func (r *Router) applyUnlock(ctx context.Context, act *domain.Activity) error {
	m, err := r.resolveMarket(ctx, act.VaultAddress, nil)
	if err != nil {
		return err
	}

	act.ConditionID = m.ConditionID
	act.Info = []byte(`{}`)

	if err := r.markets.UpdateStatus(ctx, m.ConditionID, domain.MarketStatusUnlocked); err != nil {
		return fmt.Errorf("engine: unlock market %s: %w", m.ConditionID, err)
	}
	r.invalidate(ctx, m.ConditionID)
	return nil
}

func (r *Router) applyPrice(ctx context.Context, act *domain.Activity, slot, price *big.Int) error {
	m, err := r.resolveMarket(ctx, act.VaultAddress, slot)
	if err != nil {
		return err
	}

	act.ConditionID = m.ConditionID
	raw, err := domain.EncodeInfo(domain.PriceInfo{
		Slot:  slot.Int64(),
		Price: price.String(),
	})
	if err != nil {
		return err
	}
	act.Info = raw

	if err := r.markets.SetLastPrice(ctx, m.ConditionID, price); err != nil {
		return fmt.Errorf("engine: set last price for %s: %w", m.ConditionID, err)
	}
	r.invalidate(ctx, m.ConditionID)
	return nil
}

// reconcileMarket runs the invariant algorithm against the market's current
// aggregates and writes the result back. An invariant violation is logged and
// reported but does not abort the event: the activity is still recorded and
// the replay engine is the repair path.
func (r *Router) reconcileMarket(ctx context.Context, m domain.Market, act domain.Activity, yesDelta, noDelta *big.Int) error {
	cur := Aggregate{
		Matched:      m.MatchedTokens,
		UnmatchedYes: m.UnmatchedYes,
		UnmatchedNo:  m.UnmatchedNo,
	}

	next, err := Reconcile(cur, yesDelta, noDelta)
	if err != nil {
		r.logger.ErrorContext(ctx, "invariant violation, skipping aggregate write",
			slog.String("activity", act.ID),
			slog.String("market", m.ConditionID),
			slog.String("error", err.Error()),
		)
		r.notify(ctx, "invariant_violation", "Matched/unmatched invariant violated",
			fmt.Sprintf("market %s activity %s: %v", m.ConditionID, act.ID, err))
		return nil
	}

	if err := r.markets.UpdateAggregates(ctx, m.ConditionID, next.Matched, next.UnmatchedYes, next.UnmatchedNo); err != nil {
		return fmt.Errorf("engine: update aggregates for %s: %w", m.ConditionID, err)
	}
	r.invalidate(ctx, m.ConditionID)
	return nil
}

func (r *Router) applyPositionDelta(ctx context.Context, d domain.PositionDelta) error {
	if err := r.positions.ApplyDelta(ctx, d); err != nil {
		return fmt.Errorf("engine: apply position delta for %s/%s: %w", d.UserAddress, d.ConditionID, err)
	}
	return nil
}

// resolveMarket finds the market for an event: by genesis slot when present,
// otherwise by the emitting vault address (cache first). A missing row maps
// to domain.ErrUnknownMarket.
func (r *Router) resolveMarket(ctx context.Context, vaultAddress string, slot *big.Int) (domain.Market, error) {
	if slot != nil {
		m, err := r.markets.GetBySlot(ctx, slot.Int64())
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Market{}, domain.ErrUnknownMarket
		}
		if err != nil {
			return domain.Market{}, fmt.Errorf("engine: get market by slot %d: %w", slot.Int64(), err)
		}
		return m, nil
	}

	if r.cache != nil {
		if m, err := r.cache.GetByVault(ctx, vaultAddress); err == nil {
			return m, nil
		}
	}

	m, err := r.markets.GetByVaultAddress(ctx, vaultAddress)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Market{}, domain.ErrUnknownMarket
	}
	if err != nil {
		return domain.Market{}, fmt.Errorf("engine: get market by vault %s: %w", vaultAddress, err)
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, m); err != nil {
			r.logger.DebugContext(ctx, "market cache set failed", slog.String("error", err.Error()))
		}
	}
	return m, nil
}

func (r *Router) invalidate(ctx context.Context, conditionID string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Invalidate(ctx, conditionID); err != nil {
		r.logger.DebugContext(ctx, "market cache invalidate failed",
			slog.String("market", conditionID),
			slog.String("error", err.Error()),
		)
	}
}

func (r *Router) notify(ctx context.Context, event, title, message string) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.Notify(ctx, event, title, message); err != nil {
		r.logger.WarnContext(ctx, "notification failed", slog.String("error", err.Error()))
	}
}

// positionForAmounts classifies which outcome side a (yes, no) amount pair
// touches.
func positionForAmounts(yes, no *big.Int) domain.Position {
	switch {
	case yes.Sign() != 0 && no.Sign() != 0:
		return domain.PositionBoth
	case yes.Sign() != 0:
		return domain.PositionYes
	case no.Sign() != 0:
		return domain.PositionNo
	default:
		return domain.PositionNone
	}
}

// winningFromWire maps the contract's uint8 winning-position encoding.
func winningFromWire(v uint8) domain.Position {
	switch v {
	case 1:
		return domain.PositionYes
	case 2:
		return domain.PositionNo
	case 3:
		return domain.PositionBoth
	default:
		return domain.PositionNone
	}
}
