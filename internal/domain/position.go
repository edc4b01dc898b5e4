package domain

import (
	"math/big"
	"time"
)

// UserPosition is the derived per-(user, market) accumulator of net token
// holdings, harvested yield, and redeemed USD. Each numeric field is a running
// signed total updated only by atomic delta application at the database level.
// Components can transiently go negative during replay of inconsistent data.
type UserPosition struct {
	UserAddress  string
	ConditionID  string
	VaultAddress string

	YesTokens      *big.Int
	NoTokens       *big.Int
	YieldHarvested *big.Int
	USDRedeemed    *big.Int

	UpdatedAt time.Time
}

// PositionDelta is one signed increment to a user's position ledger. Nil
// fields are treated as zero.
type PositionDelta struct {
	UserAddress  string
	ConditionID  string
	VaultAddress string

	YesTokens      *big.Int
	NoTokens       *big.Int
	YieldHarvested *big.Int
	USDRedeemed    *big.Int
}
