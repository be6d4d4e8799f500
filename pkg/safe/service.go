package safe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/vesselhq/vessel/pkg/chains"
	"github.com/vesselhq/vessel/pkg/ethapi"
)

// ErrModuleNotEnabled is returned when module execution is requested against
// a wallet that has not enabled the configured automation module.
var ErrModuleNotEnabled = errors.New("automation module not enabled on wallet")

// ClientSource resolves the read-only JSON-RPC caller for a chain.
// Satisfied by *ethapi.Pool.
type ClientSource interface {
	Caller(chainID int64) (ethapi.Caller, error)
}

// Relayer is the submission surface the service executes through.
// Satisfied by *relayer.Relayer.
type Relayer interface {
	Send(ctx context.Context, chainID int64, to common.Address, data []byte, value *big.Int) (*types.Receipt, error)
}

// Service drives the wallet contract: hash computation, signature probing
// and both execution entry points.
type Service struct {
	config  *chains.Config
	clients ClientSource
	relayer Relayer
	logger  *slog.Logger
}

// NewService creates a wallet transaction service.
func NewService(config *chains.Config, clients ClientSource, relayer Relayer, logger *slog.Logger) *Service {
	return &Service{
		config:  config,
		clients: clients,
		relayer: relayer,
		logger:  logger.With("module", "safe"),
	}
}

// BuildTransactionHash reads the wallet's current nonce when the transaction
// carries none, stamps it, and asks the wallet contract itself to compute
// the transaction hash.
func (s *Service) BuildTransactionHash(ctx context.Context, chainID int64, wallet common.Address, tx *Transaction) (common.Hash, error) {
	caller, err := s.clients.Caller(chainID)
	if err != nil {
		return common.Hash{}, err
	}

	if tx.Nonce == nil {
		nonce, err := s.walletNonce(ctx, caller, wallet)
		if err != nil {
			return common.Hash{}, err
		}

		tx.Nonce = nonce
	}

	input, err := walletABI.Pack(
		"getTransactionHash",
		tx.To, tx.Value, tx.Data, uint8(tx.Operation),
		tx.SafeTxGas, tx.BaseGas, tx.GasPrice,
		tx.GasToken, tx.RefundReceiver, tx.Nonce,
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to encode getTransactionHash call: %w", err)
	}

	out, err := caller.CallContract(ctx, ethereum.CallMsg{To: &wallet, Data: input}, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to call getTransactionHash on wallet %s: %w", wallet.Hex(), err)
	}

	results, err := walletABI.Unpack("getTransactionHash", out)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to decode getTransactionHash result: %w", err)
	}

	hash, ok := results[0].([32]byte)
	if !ok {
		return common.Hash{}, fmt.Errorf("unexpected getTransactionHash result type %T", results[0])
	}

	return common.Hash(hash), nil
}

func (s *Service) walletNonce(ctx context.Context, caller ethapi.Caller, wallet common.Address) (*big.Int, error) {
	input, err := walletABI.Pack("nonce")
	if err != nil {
		return nil, fmt.Errorf("failed to encode nonce call: %w", err)
	}

	out, err := caller.CallContract(ctx, ethereum.CallMsg{To: &wallet, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read nonce from wallet %s: %w", wallet.Hex(), err)
	}

	results, err := walletABI.Unpack("nonce", out)
	if err != nil {
		return nil, fmt.Errorf("failed to decode nonce result: %w", err)
	}

	nonce, ok := results[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected nonce result type %T", results[0])
	}

	return nonce, nil
}

// VerifySignatures normalizes the raw payload and probes the wallet's
// checkSignatures with the raw-ECDSA candidate first, then the eth_sign
// candidate. The first accepted candidate is returned ready for execution.
// Both rejected means a *SignatureError carrying both contract reasons.
func (s *Service) VerifySignatures(ctx context.Context, chainID int64, wallet common.Address, txHash common.Hash, txData []byte, raw string) ([]byte, error) {
	sigs, err := NormalizeSignatures(raw)
	if err != nil {
		return nil, err
	}

	ecdsaSigs, err := ecdsaCandidate(sigs)
	if err != nil {
		return nil, err
	}

	caller, err := s.clients.Caller(chainID)
	if err != nil {
		return nil, err
	}

	ecdsaErr := s.checkSignatures(ctx, caller, wallet, txHash, txData, ecdsaSigs)
	if ecdsaErr == nil {
		return ecdsaSigs, nil
	}

	ethSignSigs := ethSignCandidate(ecdsaSigs)

	ethSignErr := s.checkSignatures(ctx, caller, wallet, txHash, txData, ethSignSigs)
	if ethSignErr == nil {
		s.logger.Debug("signatures accepted under eth_sign convention", "wallet", wallet.Hex())

		return ethSignSigs, nil
	}

	return nil, &SignatureError{
		Wallet:        wallet,
		ECDSAReason:   revertReason(ecdsaErr),
		EthSignReason: revertReason(ethSignErr),
	}
}

func (s *Service) checkSignatures(ctx context.Context, caller ethapi.Caller, wallet common.Address, txHash common.Hash, txData, sigs []byte) error {
	input, err := walletABI.Pack("checkSignatures", [32]byte(txHash), txData, sigs)
	if err != nil {
		return fmt.Errorf("failed to encode checkSignatures call: %w", err)
	}

	if _, err := caller.CallContract(ctx, ethereum.CallMsg{To: &wallet, Data: input}, nil); err != nil {
		return err
	}

	return nil
}

// revertReason extracts the ABI-encoded revert string from an RPC error when
// one is attached, falling back to the error text.
func revertReason(err error) string {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if encoded, ok := dataErr.ErrorData().(string); ok {
			if raw, decodeErr := hexutil.Decode(encoded); decodeErr == nil {
				if reason, unpackErr := abi.UnpackRevert(raw); unpackErr == nil {
					return reason
				}
			}
		}
	}

	return err.Error()
}

// EncodeExecTransaction packs the execTransaction call. Used by the relayer
// path and returned raw to clients on chains where the user pays gas.
func EncodeExecTransaction(tx *Transaction, sigs []byte) ([]byte, error) {
	data, err := walletABI.Pack(
		"execTransaction",
		tx.To, tx.Value, tx.Data, uint8(tx.Operation),
		tx.SafeTxGas, tx.BaseGas, tx.GasPrice,
		tx.GasToken, tx.RefundReceiver, sigs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to encode execTransaction call: %w", err)
	}

	return data, nil
}

// ExecTransaction submits execTransaction through the relayer and returns
// the mined receipt.
func (s *Service) ExecTransaction(ctx context.Context, chainID int64, wallet common.Address, tx *Transaction, sigs []byte) (*types.Receipt, error) {
	data, err := EncodeExecTransaction(tx, sigs)
	if err != nil {
		return nil, err
	}

	s.logger.Info("executing wallet transaction",
		"chain_id", chainID,
		"wallet", wallet.Hex(),
		"to", tx.To.Hex(),
		"operation", tx.Operation)

	return s.relayer.Send(ctx, chainID, wallet, data, nil)
}

// ExecTransactionFromModule submits the transaction through the wallet's
// module entry point, bypassing owner signatures. The configured automation
// module must be enabled on the wallet.
func (s *Service) ExecTransactionFromModule(ctx context.Context, chainID int64, wallet common.Address, tx *Transaction) (*types.Receipt, error) {
	chain, err := s.config.ByID(chainID)
	if err != nil {
		return nil, err
	}

	module, err := chain.ModuleAddress()
	if err != nil {
		return nil, err
	}

	moduleAddr := common.HexToAddress(module)

	enabled, err := s.IsModuleEnabled(ctx, chainID, wallet, moduleAddr)
	if err != nil {
		return nil, err
	}

	if !enabled {
		return nil, fmt.Errorf("%w: module %s, wallet %s", ErrModuleNotEnabled, moduleAddr.Hex(), wallet.Hex())
	}

	data, err := walletABI.Pack("execTransactionFromModule", tx.To, tx.Value, tx.Data, uint8(tx.Operation))
	if err != nil {
		return nil, fmt.Errorf("failed to encode execTransactionFromModule call: %w", err)
	}

	s.logger.Info("executing wallet transaction via module",
		"chain_id", chainID,
		"wallet", wallet.Hex(),
		"module", moduleAddr.Hex())

	return s.relayer.Send(ctx, chainID, wallet, data, nil)
}

// IsModuleEnabled asks the wallet whether it has enabled a module.
func (s *Service) IsModuleEnabled(ctx context.Context, chainID int64, wallet, module common.Address) (bool, error) {
	caller, err := s.clients.Caller(chainID)
	if err != nil {
		return false, err
	}

	input, err := walletABI.Pack("isModuleEnabled", module)
	if err != nil {
		return false, fmt.Errorf("failed to encode isModuleEnabled call: %w", err)
	}

	out, err := caller.CallContract(ctx, ethereum.CallMsg{To: &wallet, Data: input}, nil)
	if err != nil {
		return false, fmt.Errorf("failed to call isModuleEnabled on wallet %s: %w", wallet.Hex(), err)
	}

	results, err := walletABI.Unpack("isModuleEnabled", out)
	if err != nil {
		return false, fmt.Errorf("failed to decode isModuleEnabled result: %w", err)
	}

	enabled, ok := results[0].(bool)
	if !ok {
		return false, fmt.Errorf("unexpected isModuleEnabled result type %T", results[0])
	}

	return enabled, nil
}
