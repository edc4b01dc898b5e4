package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/outcomefi/vaultsync/internal/domain"
)

// Decoder maps raw logs onto the known contract interfaces. The manager and
// genesis contracts live at fixed addresses; every other emitting address is
// assumed to be a per-market vault.
type Decoder struct {
	manager string // lower-cased hex
	genesis string
}

// NewDecoder creates a Decoder for the given manager (factory) and genesis
// vault addresses. Addresses are case-normalized on construction.
func NewDecoder(managerAddress, genesisAddress string) *Decoder {
	return &Decoder{
		manager: strings.ToLower(managerAddress),
		genesis: strings.ToLower(genesisAddress),
	}
}

// Decode turns a raw log into a typed event.
//
// A topic that belongs to the interface assigned to the emitting address is
// decoded. A topic known to none of the interfaces is an unrecognized event
// name and yields domain.ErrUnknownEvent (callers log and skip). A topic that
// only decodes under a different interface than the address implies is a
// configuration error and yields domain.ErrUnknownInterface (surfaced, not
// silently dropped).
func (d *Decoder) Decode(l RawLog) (Event, error) {
	if len(l.Topics) == 0 {
		return nil, fmt.Errorf("chain: log %s has no topics: %w", l.TransactionHash.Hex(), domain.ErrUnknownEvent)
	}

	iface := vaultABI
	switch l.VaultAddress() {
	case d.manager:
		iface = managerABI
	case d.genesis:
		iface = genesisABI
	}

	ev, err := iface.EventByID(l.Topics[0])
	if err != nil {
		if otherInterfaceKnows(l.Topics[0]) {
			return nil, fmt.Errorf("chain: address %s emitted %s from a different interface: %w",
				l.VaultAddress(), l.Topics[0].Hex(), domain.ErrUnknownInterface)
		}
		return nil, fmt.Errorf("chain: topic %s: %w", l.Topics[0].Hex(), domain.ErrUnknownEvent)
	}

	args, err := unpackArgs(iface, ev, l)
	if err != nil {
		return nil, err
	}
	return buildEvent(ev.Name, args)
}

// otherInterfaceKnows reports whether any known interface can decode the topic.
func otherInterfaceKnows(topic common.Hash) bool {
	for _, a := range []abi.ABI{managerABI, vaultABI, genesisABI} {
		if _, err := a.EventByID(topic); err == nil {
			return true
		}
	}
	return false
}

// unpackArgs merges the non-indexed data fields and the indexed topic fields
// of an event into one name-keyed map.
func unpackArgs(iface abi.ABI, ev *abi.Event, l RawLog) (map[string]any, error) {
	args := make(map[string]any)

	if len(l.Data) > 0 {
		if err := iface.UnpackIntoMap(args, ev.Name, l.Data); err != nil {
			return nil, fmt.Errorf("chain: unpack %s data: %w", ev.Name, err)
		}
	}

	var indexed abi.Arguments
	for _, in := range ev.Inputs {
		if in.Indexed {
			indexed = append(indexed, in)
		}
	}
	if len(indexed) > 0 {
		if len(l.Topics)-1 != len(indexed) {
			return nil, fmt.Errorf("chain: %s expects %d indexed topics, got %d", ev.Name, len(indexed), len(l.Topics)-1)
		}
		if err := abi.ParseTopicsIntoMap(args, indexed, l.Topics[1:]); err != nil {
			return nil, fmt.Errorf("chain: parse %s topics: %w", ev.Name, err)
		}
	}
	return args, nil
}

// buildEvent converts the untyped argument map into the closed event union.
func buildEvent(name string, args map[string]any) (Event, error) {
	switch name {
	case "VaultCreated":
		return VaultCreated{
			ConditionID: hashArg(args, "conditionId"),
			Vault:       addrArg(args, "vault"),
			Creator:     addrArg(args, "creator"),
		}, nil
	case "TokensDeposited":
		return TokensDeposited{
			User:      addrArg(args, "user"),
			YesAmount: bigArg(args, "yesAmount"),
			NoAmount:  bigArg(args, "noAmount"),
		}, nil
	case "TokensWithdrawn":
		return TokensWithdrawn{
			User:      addrArg(args, "user"),
			YesAmount: bigArg(args, "yesAmount"),
			NoAmount:  bigArg(args, "noAmount"),
		}, nil
	case "WinningsRedeemed":
		return WinningsRedeemed{
			User:        addrArg(args, "user"),
			TokenAmount: bigArg(args, "tokenAmount"),
			USDAmount:   bigArg(args, "usdAmount"),
		}, nil
	case "YieldHarvested":
		return YieldHarvested{
			User:   addrArg(args, "user"),
			Amount: bigArg(args, "amount"),
		}, nil
	case "MarketFinalized":
		return MarketFinalized{WinningPosition: uint8Arg(args, "winningPosition")}, nil
	case "VaultUnlocked":
		return VaultUnlocked{}, nil
	case "SlotRegistered":
		return SlotRegistered{
			Slot:        bigArg(args, "slot"),
			ConditionID: hashArg(args, "conditionId"),
			EndTime:     uint64Arg(args, "endTime"),
		}, nil
	case "GenesisDeposited":
		return GenesisDeposited{
			Slot:      bigArg(args, "slot"),
			User:      addrArg(args, "user"),
			YesAmount: bigArg(args, "yesAmount"),
			NoAmount:  bigArg(args, "noAmount"),
		}, nil
	case "GenesisWithdrawn":
		return GenesisWithdrawn{
			Slot:      bigArg(args, "slot"),
			User:      addrArg(args, "user"),
			YesAmount: bigArg(args, "yesAmount"),
			NoAmount:  bigArg(args, "noAmount"),
		}, nil
	case "GenesisRedeemed":
		return GenesisRedeemed{
			Slot:        bigArg(args, "slot"),
			User:        addrArg(args, "user"),
			TokenAmount: bigArg(args, "tokenAmount"),
			USDAmount:   bigArg(args, "usdAmount"),
		}, nil
	case "GenesisFinalized":
		return GenesisFinalized{
			Slot:            bigArg(args, "slot"),
			WinningPosition: uint8Arg(args, "winningPosition"),
		}, nil
	case "PriceSubmitted":
		return PriceSubmitted{
			Slot:  bigArg(args, "slot"),
			Price: bigArg(args, "price"),
		}, nil
	default:
		return nil, fmt.Errorf("chain: event %s: %w", name, domain.ErrUnknownEvent)
	}
}

// ---------------------------------------------------------------------------
// Typed argument extraction. The ABI layer guarantees the shapes below for a
// successfully unpacked event, so missing keys decode to zero values.
// ---------------------------------------------------------------------------

func addrArg(args map[string]any, key string) common.Address {
	if v, ok := args[key].(common.Address); ok {
		return v
	}
	return common.Address{}
}

func bigArg(args map[string]any, key string) *big.Int {
	if v, ok := args[key].(*big.Int); ok {
		return v
	}
	return new(big.Int)
}

// hashArg handles bytes32 in both encodings: common.Hash when the field is
// indexed (parsed from a topic), [32]byte when it comes from the data section.
func hashArg(args map[string]any, key string) common.Hash {
	switch v := args[key].(type) {
	case common.Hash:
		return v
	case [32]byte:
		return common.BytesToHash(v[:])
	}
	return common.Hash{}
}

func uint8Arg(args map[string]any, key string) uint8 {
	if v, ok := args[key].(uint8); ok {
		return v
	}
	return 0
}

func uint64Arg(args map[string]any, key string) uint64 {
	if v, ok := args[key].(uint64); ok {
		return v
	}
	return 0
}
