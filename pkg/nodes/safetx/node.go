// Package safetx implements the multisig transaction node. On first
// execution it builds a wallet transaction, computes the contract hash and
// suspends the run until an owner signature arrives; on resume it verifies
// the signature and executes. Module mode skips the pause and relays through
// the wallet's automation module immediately.
package safetx

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/vesselhq/vessel/pkg/chains"
	"github.com/vesselhq/vessel/pkg/models"
	"github.com/vesselhq/vessel/pkg/protocol"
	"github.com/vesselhq/vessel/pkg/safe"
	"github.com/vesselhq/vessel/pkg/template"
)

// Execution modes.
const (
	ModeTransaction = "transaction"
	ModeModule      = "module"
)

// Transaction actions.
const (
	ActionCustom   = "custom"
	ActionTransfer = "transfer"
	ActionApprove  = "approve"
	ActionBatch    = "batch"
)

// WalletService is the slice of the safe service the node drives.
// Satisfied by *safe.Service.
type WalletService interface {
	BuildTransactionHash(ctx context.Context, chainID int64, wallet common.Address, tx *safe.Transaction) (common.Hash, error)
	VerifySignatures(ctx context.Context, chainID int64, wallet common.Address, txHash common.Hash, txData []byte, raw string) ([]byte, error)
	ExecTransaction(ctx context.Context, chainID int64, wallet common.Address, tx *safe.Transaction, sigs []byte) (*types.Receipt, error)
	ExecTransactionFromModule(ctx context.Context, chainID int64, wallet common.Address, tx *safe.Transaction) (*types.Receipt, error)
	Allowance(ctx context.Context, chainID int64, token, owner, spender common.Address) (*big.Int, error)
	BalanceOf(ctx context.Context, chainID int64, token, account common.Address) (*big.Int, error)
}

type batchCall struct {
	to    string
	value any
	data  string
}

type preflightConfig struct {
	token        string
	spender      string
	minBalance   any
	minAllowance any
}

// SafeTxNode builds and executes one wallet transaction per run. String
// config fields support templating against the node input.
type SafeTxNode struct {
	id      string
	service WalletService
	chains  *chains.Config

	chainID     int64
	safeAddress string
	mode        string
	action      string

	// custom action
	to        string
	value     any
	data      string
	operation safe.Operation

	// transfer and approve actions
	token     string
	recipient string
	spender   string
	amount    any

	// batch action
	calls []batchCall

	preflight *preflightConfig
}

// NewSafeTxNode builds a safetx node from its config. Field presence and
// enumerations are checked here; addresses and amounts containing templates
// are validated after rendering at execution time.
func NewSafeTxNode(id string, config map[string]any, service WalletService, chainConfig *chains.Config) (*SafeTxNode, error) {
	node := &SafeTxNode{
		id:      id,
		service: service,
		chains:  chainConfig,
		mode:    ModeTransaction,
		action:  ActionCustom,
	}

	chainID, err := configChainID(config)
	if err != nil {
		return nil, err
	}

	node.chainID = chainID

	safeAddress, ok := config["safe_address"].(string)
	if !ok || safeAddress == "" {
		return nil, errors.New("missing required field 'safe_address'")
	}

	node.safeAddress = safeAddress

	if mode, ok := config["mode"].(string); ok {
		if mode != ModeTransaction && mode != ModeModule {
			return nil, fmt.Errorf("mode must be %q or %q; got %q", ModeTransaction, ModeModule, mode)
		}

		node.mode = mode
	}

	if action, ok := config["action"].(string); ok {
		node.action = action
	}

	if err := node.parseAction(config); err != nil {
		return nil, err
	}

	if err := node.parsePreflight(config); err != nil {
		return nil, err
	}

	return node, nil
}

func (n *SafeTxNode) parseAction(config map[string]any) error {
	switch n.action {
	case ActionCustom:
		to, ok := config["to"].(string)
		if !ok || to == "" {
			return errors.New("custom action requires field 'to'")
		}

		n.to = to
		n.value = config["value"]

		if data, ok := config["data"].(string); ok {
			n.data = data
		}

		operation, err := configOperation(config)
		if err != nil {
			return err
		}

		n.operation = operation

	case ActionTransfer, ActionApprove:
		token, ok := config["token"].(string)
		if !ok || token == "" {
			return fmt.Errorf("%s action requires field 'token'", n.action)
		}

		n.token = token

		if n.action == ActionTransfer {
			recipient, ok := config["recipient"].(string)
			if !ok || recipient == "" {
				return errors.New("transfer action requires field 'recipient'")
			}

			n.recipient = recipient
		} else {
			spender, ok := config["spender"].(string)
			if !ok || spender == "" {
				return errors.New("approve action requires field 'spender'")
			}

			n.spender = spender
		}

		amount, ok := config["amount"]
		if !ok {
			return fmt.Errorf("%s action requires field 'amount'", n.action)
		}

		n.amount = amount

	case ActionBatch:
		rawCalls, ok := config["calls"].([]any)
		if !ok || len(rawCalls) == 0 {
			return errors.New("batch action requires a non-empty 'calls' array")
		}

		for i, raw := range rawCalls {
			callMap, ok := raw.(map[string]any)
			if !ok {
				return fmt.Errorf("call %d must be an object", i)
			}

			to, ok := callMap["to"].(string)
			if !ok || to == "" {
				return fmt.Errorf("call %d missing 'to'", i)
			}

			call := batchCall{to: to, value: callMap["value"]}

			if data, ok := callMap["data"].(string); ok {
				call.data = data
			}

			n.calls = append(n.calls, call)
		}

	default:
		return fmt.Errorf("unknown action %q", n.action)
	}

	return nil
}

func (n *SafeTxNode) parsePreflight(config map[string]any) error {
	raw, ok := config["preflight"].(map[string]any)
	if !ok {
		return nil
	}

	pf := &preflightConfig{
		minBalance:   raw["min_balance"],
		minAllowance: raw["min_allowance"],
	}

	if token, ok := raw["token"].(string); ok {
		pf.token = token
	} else {
		pf.token = n.token
	}

	if pf.token == "" {
		return errors.New("preflight requires a token for the configured action")
	}

	if spender, ok := raw["spender"].(string); ok {
		pf.spender = spender
	}

	if pf.minAllowance != nil && pf.spender == "" {
		return errors.New("preflight min_allowance requires a spender")
	}

	if pf.minBalance == nil && pf.minAllowance == nil {
		return errors.New("preflight requires min_balance or min_allowance")
	}

	n.preflight = pf

	return nil
}

// Execute proposes the transaction on first invocation and finalizes it when
// the engine re-invokes the node with a signature injected into the input.
func (n *SafeTxNode) Execute(ctx context.Context, in protocol.Input) (*models.NodeResult, error) {
	if signature, ok := in.Data["signature"].(string); ok && signature != "" {
		return n.finalize(ctx, in, signature)
	}

	return n.propose(ctx, in)
}

// RequiresSignature marks processors that can suspend the run. Module mode
// executes without owner signatures and never pauses.
func (n *SafeTxNode) RequiresSignature() bool {
	return n.mode == ModeTransaction
}

// propose builds the transaction and either pauses for a signature or, in
// module mode, relays immediately.
func (n *SafeTxNode) propose(ctx context.Context, in protocol.Input) (*models.NodeResult, error) {
	scope := template.Scope(in.ExecutionID, in.WorkflowID, in.NodeID, in.Data, in.Secrets)

	wallet, err := renderAddress("safe_address", n.safeAddress, scope)
	if err != nil {
		return n.errorResult(err.Error()), nil
	}

	chain, err := n.chains.ByID(n.chainID)
	if err != nil {
		return n.errorResult(err.Error()), nil
	}

	if n.preflight != nil {
		if failure, err := n.runPreflight(ctx, wallet, scope); err != nil {
			return n.errorResult(fmt.Sprintf("preflight check failed: %v", err)), nil
		} else if failure != "" {
			return n.errorResult(failure), nil
		}
	}

	tx, err := n.buildTransaction(chain, scope)
	if err != nil {
		return n.errorResult(err.Error()), nil
	}

	if n.mode == ModeModule {
		receipt, err := n.service.ExecTransactionFromModule(ctx, n.chainID, wallet, tx)
		if err != nil {
			return n.errorResult(fmt.Sprintf("module execution failed: %v", err)), nil
		}

		output := receiptOutput(receipt)
		output["status"] = "executed"
		output["path"] = "module"

		return &models.NodeResult{NodeID: n.id, Success: true, Output: output}, nil
	}

	hash, err := n.service.BuildTransactionHash(ctx, n.chainID, wallet, tx)
	if err != nil {
		return n.errorResult(fmt.Sprintf("failed to compute transaction hash: %v", err)), nil
	}

	document := tx.ToDocument()
	document["chain_id"] = n.chainID
	document["safe_address"] = wallet.Hex()

	return &models.NodeResult{
		NodeID:            n.id,
		Success:           true,
		RequiresSignature: true,
		SafeTxHash:        hash.Hex(),
		SafeTxData:        document,
		Output: map[string]any{
			"safe_tx_hash": hash.Hex(),
			"status":       "awaiting_signature",
		},
	}, nil
}

// finalize verifies the supplied signature against the wallet contract and
// executes the pending transaction. A rejected signature re-demands one: the
// result keeps RequiresSignature set so the engine suspends the run again
// instead of failing it.
func (n *SafeTxNode) finalize(ctx context.Context, in protocol.Input, signature string) (*models.NodeResult, error) {
	hashHex, _ := in.Data["safe_tx_hash"].(string)
	document, _ := in.Data["safe_tx_data"].(map[string]any)

	if hashHex == "" || document == nil {
		return n.errorResult("resume input is missing the pending transaction"), nil
	}

	tx, err := safe.TransactionFromDocument(document)
	if err != nil {
		return n.errorResult(fmt.Sprintf("pending transaction document is unusable: %v", err)), nil
	}

	chainID := documentChainID(document, n.chainID)

	wallet, err := documentWallet(document, n.safeAddress, in)
	if err != nil {
		return n.errorResult(err.Error()), nil
	}

	sigs, err := n.service.VerifySignatures(ctx, chainID, wallet, common.HexToHash(hashHex), nil, signature)
	if err != nil {
		return &models.NodeResult{
			NodeID:            n.id,
			Error:             fmt.Sprintf("signature verification failed: %v", err),
			RequiresSignature: true,
			SafeTxHash:        hashHex,
			SafeTxData:        document,
		}, nil
	}

	chain, err := n.chains.ByID(chainID)
	if err != nil {
		return n.errorResult(err.Error()), nil
	}

	if chain.UserPaysGas {
		data, err := safe.EncodeExecTransaction(tx, sigs)
		if err != nil {
			return n.errorResult(fmt.Sprintf("failed to encode execution call: %v", err)), nil
		}

		return &models.NodeResult{
			NodeID:  n.id,
			Success: true,
			Output: map[string]any{
				"status":       "ready_for_submission",
				"to":           wallet.Hex(),
				"data":         hexutil.Encode(data),
				"safe_tx_hash": hashHex,
			},
		}, nil
	}

	receipt, err := n.service.ExecTransaction(ctx, chainID, wallet, tx, sigs)
	if err != nil {
		return n.errorResult(fmt.Sprintf("execution failed: %v", err)), nil
	}

	output := receiptOutput(receipt)
	output["status"] = "executed"
	output["path"] = "relayer"
	output["safe_tx_hash"] = hashHex

	return &models.NodeResult{NodeID: n.id, Success: true, Output: output}, nil
}

func (n *SafeTxNode) errorResult(message string) *models.NodeResult {
	return &models.NodeResult{NodeID: n.id, Error: message}
}

func receiptOutput(receipt *types.Receipt) map[string]any {
	output := map[string]any{
		"tx_hash":  receipt.TxHash.Hex(),
		"gas_used": receipt.GasUsed,
	}

	if receipt.BlockNumber != nil {
		output["block_number"] = receipt.BlockNumber.Uint64()
	}

	return output
}

// documentChainID reads the chain id stamped on the pending document,
// falling back to the configured one for documents written before the stamp
// existed.
func documentChainID(document map[string]any, fallback int64) int64 {
	switch v := document["chain_id"].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return fallback
	}
}

func documentWallet(document map[string]any, configured string, in protocol.Input) (common.Address, error) {
	if hex, ok := document["safe_address"].(string); ok && common.IsHexAddress(hex) {
		return common.HexToAddress(hex), nil
	}

	scope := template.Scope(in.ExecutionID, in.WorkflowID, in.NodeID, in.Data, in.Secrets)

	return renderAddress("safe_address", configured, scope)
}

func configChainID(config map[string]any) (int64, error) {
	var chainID int64

	switch v := config["chain_id"].(type) {
	case int:
		chainID = int64(v)
	case int64:
		chainID = v
	case float64:
		chainID = int64(v)
	default:
		return 0, errors.New("missing required field 'chain_id'")
	}

	if chainID <= 0 {
		return 0, fmt.Errorf("chain_id must be positive; got %d", chainID)
	}

	return chainID, nil
}

func configOperation(config map[string]any) (safe.Operation, error) {
	raw, ok := config["operation"]
	if !ok {
		return safe.OperationCall, nil
	}

	var operation int64

	switch v := raw.(type) {
	case int:
		operation = int64(v)
	case int64:
		operation = v
	case float64:
		operation = int64(v)
	default:
		return 0, errors.New("operation must be 0 (CALL) or 1 (DELEGATECALL)")
	}

	if operation != int64(safe.OperationCall) && operation != int64(safe.OperationDelegateCall) {
		return 0, fmt.Errorf("operation must be 0 (CALL) or 1 (DELEGATECALL); got %d", operation)
	}

	return safe.Operation(operation), nil
}
