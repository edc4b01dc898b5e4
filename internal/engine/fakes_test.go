package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/outcomefi/vaultsync/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memMarketStore is an in-memory domain.MarketStore.
type memMarketStore struct {
	mu      sync.Mutex
	markets map[string]domain.Market
}

func newMemMarketStore() *memMarketStore {
	return &memMarketStore{markets: make(map[string]domain.Market)}
}

func copyMarket(m domain.Market) domain.Market {
	c := m
	c.MatchedTokens = new(big.Int).Set(m.MatchedTokens)
	c.UnmatchedYes = new(big.Int).Set(m.UnmatchedYes)
	c.UnmatchedNo = new(big.Int).Set(m.UnmatchedNo)
	c.TVL = new(big.Int).Set(m.TVL)
	if m.LastPrice != nil {
		c.LastPrice = new(big.Int).Set(m.LastPrice)
	}
	return c
}

func (s *memMarketStore) Provision(_ context.Context, m domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Dedicated vault addresses are unique; genesis slot markets all share the
	// genesis contract address.
	if m.GenesisSlot == nil && m.VaultAddress != "" {
		for id, other := range s.markets {
			if id != m.ConditionID && other.GenesisSlot == nil && other.VaultAddress == m.VaultAddress {
				return fmt.Errorf("vault address %s already provisioned for %s", m.VaultAddress, id)
			}
		}
	}
	if existing, ok := s.markets[m.ConditionID]; ok {
		existing.VaultAddress = m.VaultAddress
		if existing.Status == domain.MarketStatusUninitialized {
			existing.Status = m.Status
		}
		existing.GenesisSlot = m.GenesisSlot
		existing.Eligible = m.Eligible
		existing.EndTime = m.EndTime
		existing.CreatedBlock = m.CreatedBlock
		s.markets[m.ConditionID] = existing
		return nil
	}
	s.markets[m.ConditionID] = copyMarket(m)
	return nil
}

func (s *memMarketStore) GetByConditionID(_ context.Context, conditionID string) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[conditionID]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return copyMarket(m), nil
}

func (s *memMarketStore) GetByVaultAddress(_ context.Context, vaultAddress string) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.markets {
		if m.VaultAddress == vaultAddress {
			return copyMarket(m), nil
		}
	}
	return domain.Market{}, domain.ErrNotFound
}

func (s *memMarketStore) GetBySlot(_ context.Context, slot int64) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.markets {
		if m.GenesisSlot != nil && *m.GenesisSlot == slot {
			return copyMarket(m), nil
		}
	}
	return domain.Market{}, domain.ErrNotFound
}

func (s *memMarketStore) ListProvisioned(_ context.Context) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Market
	for _, m := range s.markets {
		if m.VaultAddress != "" {
			out = append(out, copyMarket(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConditionID < out[j].ConditionID })
	return out, nil
}

func (s *memMarketStore) UpdateAggregates(_ context.Context, conditionID string, matched, unmatchedYes, unmatchedNo *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[conditionID]
	if !ok {
		return domain.ErrNotFound
	}
	m.MatchedTokens = new(big.Int).Set(matched)
	m.UnmatchedYes = new(big.Int).Set(unmatchedYes)
	m.UnmatchedNo = new(big.Int).Set(unmatchedNo)
	m.TVL = new(big.Int).Set(matched)
	s.markets[conditionID] = m
	return nil
}

func (s *memMarketStore) Finalize(_ context.Context, conditionID string, winning domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[conditionID]
	if !ok {
		return domain.ErrNotFound
	}
	m.Status = domain.MarketStatusFinalized
	m.WinningPosition = winning
	s.markets[conditionID] = m
	return nil
}

func (s *memMarketStore) UpdateStatus(_ context.Context, conditionID string, status domain.MarketStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[conditionID]
	if !ok {
		return domain.ErrNotFound
	}
	m.Status = status
	s.markets[conditionID] = m
	return nil
}

func (s *memMarketStore) SetLastPrice(_ context.Context, conditionID string, price *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[conditionID]
	if !ok {
		return domain.ErrNotFound
	}
	m.LastPrice = new(big.Int).Set(price)
	s.markets[conditionID] = m
	return nil
}

// memActivityStore is an in-memory domain.ActivityStore.
type memActivityStore struct {
	mu         sync.Mutex
	activities map[string]domain.Activity
}

func newMemActivityStore() *memActivityStore {
	return &memActivityStore{activities: make(map[string]domain.Activity)}
}

func (s *memActivityStore) Exists(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.activities[id]
	return ok, nil
}

func (s *memActivityStore) Insert(_ context.Context, a domain.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.activities[a.ID]; ok {
		return domain.ErrDuplicateActivity
	}
	s.activities[a.ID] = a
	return nil
}

func (s *memActivityStore) ListByMarket(_ context.Context, conditionID string) ([]domain.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Activity
	for _, a := range s.activities {
		if a.ConditionID == conditionID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber < out[j].BlockNumber
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// memPositionStore is an in-memory domain.UserPositionStore.
type memPositionStore struct {
	mu        sync.Mutex
	positions map[string]domain.UserPosition
}

func newMemPositionStore() *memPositionStore {
	return &memPositionStore{positions: make(map[string]domain.UserPosition)}
}

func posKey(user, conditionID string) string { return user + "|" + conditionID }

func addDelta(total, delta *big.Int) *big.Int {
	if delta == nil {
		return total
	}
	return new(big.Int).Add(total, delta)
}

func (s *memPositionStore) ApplyDelta(_ context.Context, d domain.PositionDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := posKey(d.UserAddress, d.ConditionID)
	p, ok := s.positions[key]
	if !ok {
		p = domain.UserPosition{
			UserAddress:    d.UserAddress,
			ConditionID:    d.ConditionID,
			YesTokens:      new(big.Int),
			NoTokens:       new(big.Int),
			YieldHarvested: new(big.Int),
			USDRedeemed:    new(big.Int),
		}
	}
	p.VaultAddress = d.VaultAddress
	p.YesTokens = addDelta(p.YesTokens, d.YesTokens)
	p.NoTokens = addDelta(p.NoTokens, d.NoTokens)
	p.YieldHarvested = addDelta(p.YieldHarvested, d.YieldHarvested)
	p.USDRedeemed = addDelta(p.USDRedeemed, d.USDRedeemed)
	p.UpdatedAt = time.Now()
	s.positions[key] = p
	return nil
}

func (s *memPositionStore) Get(_ context.Context, userAddress, conditionID string) (domain.UserPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[posKey(userAddress, conditionID)]
	if !ok {
		return domain.UserPosition{}, domain.ErrNotFound
	}
	return p, nil
}

// memLockManager is an in-memory domain.LockManager.
type memLockManager struct {
	mu    sync.Mutex
	locks map[string]bool
}

func newMemLockManager() *memLockManager {
	return &memLockManager{locks: make(map[string]bool)}
}

func (lm *memLockManager) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if lm.locks[key] {
		return nil, domain.ErrLockHeld
	}
	lm.locks[key] = true
	return func() {
		lm.mu.Lock()
		defer lm.mu.Unlock()
		delete(lm.locks, key)
	}, nil
}

var (
	_ domain.MarketStore       = (*memMarketStore)(nil)
	_ domain.ActivityStore     = (*memActivityStore)(nil)
	_ domain.UserPositionStore = (*memPositionStore)(nil)
	_ domain.LockManager       = (*memLockManager)(nil)
)
