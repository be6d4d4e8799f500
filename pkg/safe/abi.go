package safe

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Hand-declared fragments of the contracts the subsystem consumes. The wallet
// ABI covers the Safe v1.3+ surface: replay counter, on-chain hash
// computation, signature checking and both execution entry points.
const walletABIJSON = `[
	{"type":"function","name":"nonce","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getTransactionHash","stateMutability":"view","inputs":[
		{"name":"to","type":"address"},
		{"name":"value","type":"uint256"},
		{"name":"data","type":"bytes"},
		{"name":"operation","type":"uint8"},
		{"name":"safeTxGas","type":"uint256"},
		{"name":"baseGas","type":"uint256"},
		{"name":"gasPrice","type":"uint256"},
		{"name":"gasToken","type":"address"},
		{"name":"refundReceiver","type":"address"},
		{"name":"_nonce","type":"uint256"}
	],"outputs":[{"name":"","type":"bytes32"}]},
	{"type":"function","name":"checkSignatures","stateMutability":"view","inputs":[
		{"name":"dataHash","type":"bytes32"},
		{"name":"data","type":"bytes"},
		{"name":"signatures","type":"bytes"}
	],"outputs":[]},
	{"type":"function","name":"execTransaction","stateMutability":"payable","inputs":[
		{"name":"to","type":"address"},
		{"name":"value","type":"uint256"},
		{"name":"data","type":"bytes"},
		{"name":"operation","type":"uint8"},
		{"name":"safeTxGas","type":"uint256"},
		{"name":"baseGas","type":"uint256"},
		{"name":"gasPrice","type":"uint256"},
		{"name":"gasToken","type":"address"},
		{"name":"refundReceiver","type":"address"},
		{"name":"signatures","type":"bytes"}
	],"outputs":[{"name":"success","type":"bool"}]},
	{"type":"function","name":"execTransactionFromModule","stateMutability":"nonpayable","inputs":[
		{"name":"to","type":"address"},
		{"name":"value","type":"uint256"},
		{"name":"data","type":"bytes"},
		{"name":"operation","type":"uint8"}
	],"outputs":[{"name":"success","type":"bool"}]},
	{"type":"function","name":"isModuleEnabled","stateMutability":"view","inputs":[
		{"name":"module","type":"address"}
	],"outputs":[{"name":"","type":"bool"}]}
]`

const multiSendABIJSON = `[
	{"type":"function","name":"multiSend","stateMutability":"payable","inputs":[
		{"name":"transactions","type":"bytes"}
	],"outputs":[]}
]`

const erc20ABIJSON = `[
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[
		{"name":"account","type":"address"}
	],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"allowance","stateMutability":"view","inputs":[
		{"name":"owner","type":"address"},
		{"name":"spender","type":"address"}
	],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[
		{"name":"to","type":"address"},
		{"name":"amount","type":"uint256"}
	],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[
		{"name":"spender","type":"address"},
		{"name":"amount","type":"uint256"}
	],"outputs":[{"name":"","type":"bool"}]}
]`

var (
	walletABI    abi.ABI
	multiSendABI abi.ABI
	erc20ABI     abi.ABI
)

func init() {
	walletABI = mustParseABI("wallet", walletABIJSON)
	multiSendABI = mustParseABI("multisend", multiSendABIJSON)
	erc20ABI = mustParseABI("erc20", erc20ABIJSON)
}

func mustParseABI(name, raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("safe: failed to parse %s abi: %v", name, err))
	}

	return parsed
}
