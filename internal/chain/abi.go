package chain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Contract interfaces known to the decoder. The manager (factory) emits vault
// provisioning events, each per-market vault emits balance and lifecycle
// events, and the shared genesis vault emits slot-indexed variants of the
// same vocabulary.

const managerABIJSON = `[
	{"type":"event","name":"VaultCreated","inputs":[
		{"name":"conditionId","type":"bytes32","indexed":true},
		{"name":"vault","type":"address","indexed":false},
		{"name":"creator","type":"address","indexed":false}]}
]`

const vaultABIJSON = `[
	{"type":"event","name":"TokensDeposited","inputs":[
		{"name":"user","type":"address","indexed":true},
		{"name":"yesAmount","type":"uint256","indexed":false},
		{"name":"noAmount","type":"uint256","indexed":false}]},
	{"type":"event","name":"TokensWithdrawn","inputs":[
		{"name":"user","type":"address","indexed":true},
		{"name":"yesAmount","type":"uint256","indexed":false},
		{"name":"noAmount","type":"uint256","indexed":false}]},
	{"type":"event","name":"WinningsRedeemed","inputs":[
		{"name":"user","type":"address","indexed":true},
		{"name":"tokenAmount","type":"uint256","indexed":false},
		{"name":"usdAmount","type":"uint256","indexed":false}]},
	{"type":"event","name":"YieldHarvested","inputs":[
		{"name":"user","type":"address","indexed":true},
		{"name":"amount","type":"uint256","indexed":false}]},
	{"type":"event","name":"MarketFinalized","inputs":[
		{"name":"winningPosition","type":"uint8","indexed":false}]},
	{"type":"event","name":"VaultUnlocked","inputs":[]}
]`

const genesisABIJSON = `[
	{"type":"event","name":"SlotRegistered","inputs":[
		{"name":"slot","type":"uint256","indexed":true},
		{"name":"conditionId","type":"bytes32","indexed":false},
		{"name":"endTime","type":"uint64","indexed":false}]},
	{"type":"event","name":"GenesisDeposited","inputs":[
		{"name":"slot","type":"uint256","indexed":true},
		{"name":"user","type":"address","indexed":true},
		{"name":"yesAmount","type":"uint256","indexed":false},
		{"name":"noAmount","type":"uint256","indexed":false}]},
	{"type":"event","name":"GenesisWithdrawn","inputs":[
		{"name":"slot","type":"uint256","indexed":true},
		{"name":"user","type":"address","indexed":true},
		{"name":"yesAmount","type":"uint256","indexed":false},
		{"name":"noAmount","type":"uint256","indexed":false}]},
	{"type":"event","name":"GenesisRedeemed","inputs":[
		{"name":"slot","type":"uint256","indexed":true},
		{"name":"user","type":"address","indexed":true},
		{"name":"tokenAmount","type":"uint256","indexed":false},
		{"name":"usdAmount","type":"uint256","indexed":false}]},
	{"type":"event","name":"GenesisFinalized","inputs":[
		{"name":"slot","type":"uint256","indexed":true},
		{"name":"winningPosition","type":"uint8","indexed":false}]},
	{"type":"event","name":"PriceSubmitted","inputs":[
		{"name":"slot","type":"uint256","indexed":true},
		{"name":"price","type":"uint256","indexed":false}]}
]`

var (
	managerABI = mustABI("manager", managerABIJSON)
	vaultABI   = mustABI("vault", vaultABIJSON)
	genesisABI = mustABI("genesis", genesisABIJSON)
)

func mustABI(name, raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("chain: parse %s ABI: %v", name, err))
	}
	return parsed
}
