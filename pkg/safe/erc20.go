package safe

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// Allowance reads how much a spender may move from an owner's token balance.
func (s *Service) Allowance(ctx context.Context, chainID int64, token, owner, spender common.Address) (*big.Int, error) {
	input, err := erc20ABI.Pack("allowance", owner, spender)
	if err != nil {
		return nil, fmt.Errorf("failed to encode allowance call: %w", err)
	}

	return s.readUint(ctx, chainID, token, "allowance", input)
}

// BalanceOf reads an account's token balance.
func (s *Service) BalanceOf(ctx context.Context, chainID int64, token, account common.Address) (*big.Int, error) {
	input, err := erc20ABI.Pack("balanceOf", account)
	if err != nil {
		return nil, fmt.Errorf("failed to encode balanceOf call: %w", err)
	}

	return s.readUint(ctx, chainID, token, "balanceOf", input)
}

func (s *Service) readUint(ctx context.Context, chainID int64, token common.Address, method string, input []byte) (*big.Int, error) {
	caller, err := s.clients.Caller(chainID)
	if err != nil {
		return nil, err
	}

	out, err := caller.CallContract(ctx, ethereum.CallMsg{To: &token, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s on token %s: %w", method, token.Hex(), err)
	}

	results, err := erc20ABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s result: %w", method, err)
	}

	value, ok := results[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected %s result type %T", method, results[0])
	}

	return value, nil
}

// EncodeTransfer packs an ERC-20 transfer(to, amount) call.
func EncodeTransfer(to common.Address, amount *big.Int) ([]byte, error) {
	data, err := erc20ABI.Pack("transfer", to, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to encode transfer call: %w", err)
	}

	return data, nil
}

// EncodeApprove packs an ERC-20 approve(spender, amount) call.
func EncodeApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	data, err := erc20ABI.Pack("approve", spender, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to encode approve call: %w", err)
	}

	return data, nil
}
