// Package chain decodes raw EVM event logs pushed by the webhook provider
// into typed event records. It is pure: no state, no I/O.
package chain

import (
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// RawLog mirrors one log object as delivered by the webhook provider.
// Quantity fields arrive hex-encoded ("0x..."); timestamp is in seconds.
type RawLog struct {
	Address          common.Address `json:"address"`
	Topics           []common.Hash  `json:"topics"`
	Data             hexutil.Bytes  `json:"data"`
	BlockNumber      hexutil.Uint64 `json:"blockNumber"`
	BlockHash        common.Hash    `json:"blockHash"`
	Timestamp        hexutil.Uint64 `json:"timestamp"`
	LogIndex         hexutil.Uint   `json:"logIndex"`
	TransactionHash  common.Hash    `json:"transactionHash"`
	TransactionIndex hexutil.Uint   `json:"transactionIndex"`
	Removed          bool           `json:"removed"`
}

// VaultAddress returns the emitting contract address lower-cased, the
// canonical form used for comparison and storage.
func (l RawLog) VaultAddress() string {
	return strings.ToLower(l.Address.Hex())
}

// Time converts the hex seconds timestamp to a time.Time in UTC.
func (l RawLog) Time() time.Time {
	return time.Unix(int64(l.Timestamp), 0).UTC()
}
