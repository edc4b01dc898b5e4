package domain

import (
	"context"
	"io"
	"math/big"
	"time"
)

// MarketStore persists market rows. The Market row is exclusively written by
// the event router and the replay engine.
type MarketStore interface {
	// Provision inserts the market if absent and stamps identity fields
	// (vault address, genesis slot, creation block) if already present.
	// Aggregates of an existing row are left untouched.
	Provision(ctx context.Context, m Market) error
	GetByConditionID(ctx context.Context, conditionID string) (Market, error)
	GetByVaultAddress(ctx context.Context, vaultAddress string) (Market, error)
	GetBySlot(ctx context.Context, slot int64) (Market, error)
	// ListProvisioned returns all markets with a known vault address,
	// including genesis-slot markets.
	ListProvisioned(ctx context.Context) ([]Market, error)
	// UpdateAggregates overwrites the matched/unmatched/TVL columns in one write.
	UpdateAggregates(ctx context.Context, conditionID string, matched, unmatchedYes, unmatchedNo *big.Int) error
	Finalize(ctx context.Context, conditionID string, winning Position) error
	UpdateStatus(ctx context.Context, conditionID string, status MarketStatus) error
	SetLastPrice(ctx context.Context, conditionID string, price *big.Int) error
}

// ActivityStore is the append-only, idempotent event ledger.
type ActivityStore interface {
	Exists(ctx context.Context, id string) (bool, error)
	Insert(ctx context.Context, a Activity) error
	// ListByMarket returns the full activity history of a market ordered by
	// (block_number, id) ascending, the replay order.
	ListByMarket(ctx context.Context, conditionID string) ([]Activity, error)
}

// UserPositionStore persists per-(user, market) accumulators.
type UserPositionStore interface {
	// ApplyDelta upserts the row, incrementing every numeric column at the
	// database level so concurrent deltas never lose an update.
	ApplyDelta(ctx context.Context, d PositionDelta) error
	Get(ctx context.Context, userAddress, conditionID string) (UserPosition, error)
}

// MarketCache caches market rows keyed by condition ID with a secondary
// vault-address index, shaving a store round-trip off the hot ingest path.
type MarketCache interface {
	Set(ctx context.Context, m Market) error
	GetByVault(ctx context.Context, vaultAddress string) (Market, error)
	Invalidate(ctx context.Context, conditionID string) error
}

// LockManager provides distributed locks; used to keep recomputation of a
// single market from running concurrently with itself.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// BlobWriter stores raw payloads in object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}
