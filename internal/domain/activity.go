package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Activity is one immutable record of an applied on-chain event. Its ID is
// derived from the transaction hash and log index, which together are globally
// unique per chain and serve as the idempotency key. Activities are never
// updated or deleted; they are the source of truth for recomputation.
type Activity struct {
	ID           string // TxHash ‖ "-" ‖ LogIndex
	TxHash       string
	LogIndex     uint
	VaultAddress string // lower-cased hex
	ConditionID  string
	BlockNumber  uint64
	Timestamp    time.Time
	Type         string
	UserAddress  string   // empty for lifecycle events
	Position     Position // outcome side the event touches
	Info         json.RawMessage
}

// ActivityID builds the idempotency key for a (transaction, log-index) pair.
func ActivityID(txHash string, logIndex uint) string {
	return fmt.Sprintf("%s-%d", txHash, logIndex)
}

// ---------------------------------------------------------------------------
// Typed info payloads, one schema per event type. Token and USD amounts are
// serialized as decimal strings, never floats, to keep base-unit integers
// lossless across the JSON boundary.
// ---------------------------------------------------------------------------

// VaultCreatedInfo records the provisioning of a per-market vault.
type VaultCreatedInfo struct {
	ConditionID string `json:"conditionId"`
	Vault       string `json:"vault"`
	Creator     string `json:"creator"`
}

// SlotRegisteredInfo records the provisioning of a genesis-vault slot.
type SlotRegisteredInfo struct {
	Slot        int64  `json:"slot"`
	ConditionID string `json:"conditionId"`
	EndTime     int64  `json:"endTime"` // unix seconds
}

// TransferInfo covers deposits and withdrawals of outcome tokens.
type TransferInfo struct {
	User      string `json:"user"`
	YesAmount string `json:"yesAmount"`
	NoAmount  string `json:"noAmount"`
	Slot      *int64 `json:"slot,omitempty"` // genesis events only
}

// RedeemInfo covers redemptions of winning tokens for USD.
type RedeemInfo struct {
	User        string `json:"user"`
	TokenAmount string `json:"tokenAmount"`
	USDAmount   string `json:"usdAmount"`
	Slot        *int64 `json:"slot,omitempty"`
}

// HarvestInfo covers yield harvests; they touch only the position ledger.
type HarvestInfo struct {
	User   string `json:"user"`
	Amount string `json:"amount"`
}

// FinalizeInfo records the resolved winning side of a market.
type FinalizeInfo struct {
	WinningPosition Position `json:"winningPosition"`
	Slot            *int64   `json:"slot,omitempty"`
}

// PriceInfo records a genesis slot price submission.
type PriceInfo struct {
	Slot  int64  `json:"slot"`
	Price string `json:"price"`
}

// EncodeInfo marshals a typed info payload for storage on an Activity.
func EncodeInfo(v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("domain: encode activity info: %w", err)
	}
	return data, nil
}
