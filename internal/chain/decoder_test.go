package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outcomefi/vaultsync/internal/domain"
)

const (
	managerAddr = "0xAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAa"
	genesisAddr = "0xBbBbBbBbBbBbBbBbBbBbBbBbBbBbBbBbBbBbBbBb"
	vaultAddr   = "0xCcCcCcCcCcCcCcCcCcCcCcCcCcCcCcCcCcCcCcCc"
	userAddr    = "0x1234567890123456789012345678901234567890"
)

func testDecoder() *Decoder {
	return NewDecoder(managerAddr, genesisAddr)
}

func addressTopic(addr string) common.Hash {
	return common.BytesToHash(common.LeftPadBytes(common.HexToAddress(addr).Bytes(), 32))
}

func uintTopic(n int64) common.Hash {
	return common.BigToHash(big.NewInt(n))
}

// packData ABI-encodes the non-indexed inputs of an event the way the node
// would in the log data section.
func packData(t *testing.T, iface abi.ABI, event string, values ...any) hexutil.Bytes {
	t.Helper()
	data, err := iface.Events[event].Inputs.NonIndexed().Pack(values...)
	require.NoError(t, err)
	return data
}

func testLog(address string, topics []common.Hash, data hexutil.Bytes) RawLog {
	return RawLog{
		Address:         common.HexToAddress(address),
		Topics:          topics,
		Data:            data,
		BlockNumber:     hexutil.Uint64(100),
		Timestamp:       hexutil.Uint64(1_700_000_000),
		LogIndex:        hexutil.Uint(1),
		TransactionHash: common.HexToHash("0x01"),
	}
}

func TestDecode_TokensDeposited(t *testing.T) {
	l := testLog(vaultAddr,
		[]common.Hash{vaultABI.Events["TokensDeposited"].ID, addressTopic(userAddr)},
		packData(t, vaultABI, "TokensDeposited", big.NewInt(100), big.NewInt(60)),
	)

	ev, err := testDecoder().Decode(l)
	require.NoError(t, err)

	dep, ok := ev.(TokensDeposited)
	require.True(t, ok)
	assert.Equal(t, common.HexToAddress(userAddr), dep.User)
	assert.Equal(t, int64(100), dep.YesAmount.Int64())
	assert.Equal(t, int64(60), dep.NoAmount.Int64())
}

func TestDecode_VaultCreated(t *testing.T) {
	conditionID := common.HexToHash("0xdead")
	l := testLog(managerAddr,
		[]common.Hash{managerABI.Events["VaultCreated"].ID, conditionID},
		packData(t, managerABI, "VaultCreated",
			common.HexToAddress(vaultAddr), common.HexToAddress(userAddr)),
	)

	ev, err := testDecoder().Decode(l)
	require.NoError(t, err)

	created, ok := ev.(VaultCreated)
	require.True(t, ok)
	assert.Equal(t, conditionID, created.ConditionID)
	assert.Equal(t, common.HexToAddress(vaultAddr), created.Vault)
	assert.Equal(t, common.HexToAddress(userAddr), created.Creator)
}

func TestDecode_GenesisDepositedWithTwoIndexedTopics(t *testing.T) {
	l := testLog(genesisAddr,
		[]common.Hash{
			genesisABI.Events["GenesisDeposited"].ID,
			uintTopic(3),
			addressTopic(userAddr),
		},
		packData(t, genesisABI, "GenesisDeposited", big.NewInt(40), big.NewInt(25)),
	)

	ev, err := testDecoder().Decode(l)
	require.NoError(t, err)

	dep, ok := ev.(GenesisDeposited)
	require.True(t, ok)
	assert.Equal(t, int64(3), dep.Slot.Int64())
	assert.Equal(t, common.HexToAddress(userAddr), dep.User)
	assert.Equal(t, int64(40), dep.YesAmount.Int64())
	assert.Equal(t, int64(25), dep.NoAmount.Int64())
}

func TestDecode_MarketFinalizedNoIndexedTopics(t *testing.T) {
	l := testLog(vaultAddr,
		[]common.Hash{vaultABI.Events["MarketFinalized"].ID},
		packData(t, vaultABI, "MarketFinalized", uint8(1)),
	)

	ev, err := testDecoder().Decode(l)
	require.NoError(t, err)

	fin, ok := ev.(MarketFinalized)
	require.True(t, ok)
	assert.Equal(t, uint8(1), fin.WinningPosition)
}

func TestDecode_VaultUnlockedEmptyEvent(t *testing.T) {
	l := testLog(vaultAddr, []common.Hash{vaultABI.Events["VaultUnlocked"].ID}, nil)

	ev, err := testDecoder().Decode(l)
	require.NoError(t, err)
	_, ok := ev.(VaultUnlocked)
	assert.True(t, ok)
}

func TestDecode_UnknownTopic(t *testing.T) {
	l := testLog(vaultAddr, []common.Hash{common.HexToHash("0xabcdef")}, nil)

	_, err := testDecoder().Decode(l)
	require.ErrorIs(t, err, domain.ErrUnknownEvent)
}

func TestDecode_NoTopics(t *testing.T) {
	l := testLog(vaultAddr, nil, nil)

	_, err := testDecoder().Decode(l)
	require.ErrorIs(t, err, domain.ErrUnknownEvent)
}

func TestDecode_WrongInterfaceSurfaces(t *testing.T) {
	// A genesis event emitted from a plain vault address is a configuration
	// error, not an unknown event.
	l := testLog(vaultAddr,
		[]common.Hash{genesisABI.Events["PriceSubmitted"].ID, uintTopic(3)},
		packData(t, genesisABI, "PriceSubmitted", big.NewInt(970_000)),
	)

	_, err := testDecoder().Decode(l)
	require.ErrorIs(t, err, domain.ErrUnknownInterface)
}

func TestDecode_AddressCaseNormalization(t *testing.T) {
	// The decoder is configured with checksummed addresses; deliveries carry
	// whatever casing the provider uses.
	conditionID := common.HexToHash("0xbeef")
	l := testLog(managerAddr,
		[]common.Hash{managerABI.Events["VaultCreated"].ID, conditionID},
		packData(t, managerABI, "VaultCreated",
			common.HexToAddress(vaultAddr), common.HexToAddress(userAddr)),
	)

	_, err := NewDecoder(managerAddr, genesisAddr).Decode(l)
	require.NoError(t, err)

	_, err = NewDecoder("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", genesisAddr).Decode(l)
	require.NoError(t, err, "lower-cased configuration must match the same address")
}

func TestRawLog_VaultAddressIsLowerCased(t *testing.T) {
	l := RawLog{Address: common.HexToAddress(vaultAddr)}
	assert.Equal(t, "0xcccccccccccccccccccccccccccccccccccccccc", l.VaultAddress())
}

func TestRawLog_Time(t *testing.T) {
	l := RawLog{Timestamp: hexutil.Uint64(1_700_000_000)}
	assert.Equal(t, int64(1_700_000_000), l.Time().Unix())
	assert.Equal(t, "UTC", l.Time().Location().String())
}
