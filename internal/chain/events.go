package chain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Event is the closed union of decoded contract events. Adding an event type
// means extending the decoder table and the router's type switch; the sealed
// marker keeps outside packages from growing the set.
type Event interface {
	// EventName returns the solidity event name, stored as Activity.Type.
	EventName() string
	isEvent()
}

// --- manager (factory) interface ---

// VaultCreated provisions the market row for a condition and stamps the
// deployed vault address.
type VaultCreated struct {
	ConditionID common.Hash
	Vault       common.Address
	Creator     common.Address
}

// --- per-market vault interface ---

type TokensDeposited struct {
	User      common.Address
	YesAmount *big.Int
	NoAmount  *big.Int
}

type TokensWithdrawn struct {
	User      common.Address
	YesAmount *big.Int
	NoAmount  *big.Int
}

type WinningsRedeemed struct {
	User        common.Address
	TokenAmount *big.Int
	USDAmount   *big.Int
}

type YieldHarvested struct {
	User   common.Address
	Amount *big.Int
}

type MarketFinalized struct {
	WinningPosition uint8
}

type VaultUnlocked struct{}

// --- shared genesis vault interface (slot-indexed) ---

type SlotRegistered struct {
	Slot        *big.Int
	ConditionID common.Hash
	EndTime     uint64
}

type GenesisDeposited struct {
	Slot      *big.Int
	User      common.Address
	YesAmount *big.Int
	NoAmount  *big.Int
}

type GenesisWithdrawn struct {
	Slot      *big.Int
	User      common.Address
	YesAmount *big.Int
	NoAmount  *big.Int
}

type GenesisRedeemed struct {
	Slot        *big.Int
	User        common.Address
	TokenAmount *big.Int
	USDAmount   *big.Int
}

type GenesisFinalized struct {
	Slot            *big.Int
	WinningPosition uint8
}

type PriceSubmitted struct {
	Slot  *big.Int
	Price *big.Int
}

func (VaultCreated) EventName() string     { return "VaultCreated" }
func (TokensDeposited) EventName() string  { return "TokensDeposited" }
func (TokensWithdrawn) EventName() string  { return "TokensWithdrawn" }
func (WinningsRedeemed) EventName() string { return "WinningsRedeemed" }
func (YieldHarvested) EventName() string   { return "YieldHarvested" }
func (MarketFinalized) EventName() string  { return "MarketFinalized" }
func (VaultUnlocked) EventName() string    { return "VaultUnlocked" }
func (SlotRegistered) EventName() string   { return "SlotRegistered" }
func (GenesisDeposited) EventName() string { return "GenesisDeposited" }
func (GenesisWithdrawn) EventName() string { return "GenesisWithdrawn" }
func (GenesisRedeemed) EventName() string  { return "GenesisRedeemed" }
func (GenesisFinalized) EventName() string { return "GenesisFinalized" }
func (PriceSubmitted) EventName() string   { return "PriceSubmitted" }

func (VaultCreated) isEvent()     {}
func (TokensDeposited) isEvent()  {}
func (TokensWithdrawn) isEvent()  {}
func (WinningsRedeemed) isEvent() {}
func (YieldHarvested) isEvent()   {}
func (MarketFinalized) isEvent()  {}
func (VaultUnlocked) isEvent()    {}
func (SlotRegistered) isEvent()   {}
func (GenesisDeposited) isEvent() {}
func (GenesisWithdrawn) isEvent() {}
func (GenesisRedeemed) isEvent()  {}
func (GenesisFinalized) isEvent() {}
func (PriceSubmitted) isEvent()   {}
