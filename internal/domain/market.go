package domain

import (
	"math/big"
	"time"
)

// MarketStatus represents the lifecycle state of a market vault.
type MarketStatus string

const (
	MarketStatusUninitialized MarketStatus = "uninitialized"
	MarketStatusActive        MarketStatus = "active"
	MarketStatusFinalized     MarketStatus = "finalized"
	MarketStatusUnlocked      MarketStatus = "unlocked"
)

// Position identifies an outcome side of a market.
type Position string

const (
	PositionYes  Position = "yes"
	PositionNo   Position = "no"
	PositionBoth Position = "both"
	PositionNone Position = "none"
)

// Market holds the aggregate token state for one on-chain condition, backed
// either by a dedicated vault contract or by a slot of the shared genesis
// vault. Invariant: MatchedTokens = min(overallYes, overallNo), so at most one
// of UnmatchedYes/UnmatchedNo is non-zero at any time. TVL is defined as the
// matched amount only.
type Market struct {
	ConditionID  string
	VaultAddress string // lower-cased hex, empty until provisioned
	Status       MarketStatus

	MatchedTokens *big.Int
	UnmatchedYes  *big.Int
	UnmatchedNo   *big.Int
	TVL           *big.Int

	WinningPosition Position // PositionNone until finalized

	// Genesis-slot markets only.
	GenesisSlot *int64
	Eligible    bool
	EndTime     *time.Time
	LastPrice   *big.Int

	CreatedBlock *int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewMarket returns a Market for the given condition with zeroed aggregates.
func NewMarket(conditionID string) Market {
	return Market{
		ConditionID:     conditionID,
		Status:          MarketStatusUninitialized,
		MatchedTokens:   new(big.Int),
		UnmatchedYes:    new(big.Int),
		UnmatchedNo:     new(big.Int),
		TVL:             new(big.Int),
		WinningPosition: PositionNone,
	}
}

// IsGenesis reports whether the market lives in a slot of the shared genesis
// vault rather than a dedicated vault contract.
func (m Market) IsGenesis() bool {
	return m.GenesisSlot != nil
}
