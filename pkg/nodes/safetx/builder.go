package safetx

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/vesselhq/vessel/pkg/chains"
	"github.com/vesselhq/vessel/pkg/safe"
	"github.com/vesselhq/vessel/pkg/template"
)

// buildTransaction renders the action fields and assembles the wallet
// transaction. The nonce stays unset; BuildTransactionHash stamps it.
func (n *SafeTxNode) buildTransaction(chain *chains.Chain, scope map[string]any) (*safe.Transaction, error) {
	switch n.action {
	case ActionCustom:
		to, err := renderAddress("to", n.to, scope)
		if err != nil {
			return nil, err
		}

		value, err := renderAmount("value", n.value, scope)
		if err != nil {
			return nil, err
		}

		data, err := renderCallData("data", n.data, scope)
		if err != nil {
			return nil, err
		}

		return safe.NewTransaction(to, value, data, n.operation), nil

	case ActionTransfer:
		token, err := renderAddress("token", n.token, scope)
		if err != nil {
			return nil, err
		}

		recipient, err := renderAddress("recipient", n.recipient, scope)
		if err != nil {
			return nil, err
		}

		amount, err := renderAmount("amount", n.amount, scope)
		if err != nil {
			return nil, err
		}

		data, err := safe.EncodeTransfer(recipient, amount)
		if err != nil {
			return nil, err
		}

		return safe.NewTransaction(token, nil, data, safe.OperationCall), nil

	case ActionApprove:
		token, err := renderAddress("token", n.token, scope)
		if err != nil {
			return nil, err
		}

		spender, err := renderAddress("spender", n.spender, scope)
		if err != nil {
			return nil, err
		}

		amount, err := renderAmount("amount", n.amount, scope)
		if err != nil {
			return nil, err
		}

		data, err := safe.EncodeApprove(spender, amount)
		if err != nil {
			return nil, err
		}

		return safe.NewTransaction(token, nil, data, safe.OperationCall), nil

	case ActionBatch:
		multiSend, err := chain.MultiSendAddress()
		if err != nil {
			return nil, err
		}

		calls := make([]safe.Call, 0, len(n.calls))

		for i, c := range n.calls {
			to, err := renderAddress(fmt.Sprintf("calls[%d].to", i), c.to, scope)
			if err != nil {
				return nil, err
			}

			value, err := renderAmount(fmt.Sprintf("calls[%d].value", i), c.value, scope)
			if err != nil {
				return nil, err
			}

			data, err := renderCallData(fmt.Sprintf("calls[%d].data", i), c.data, scope)
			if err != nil {
				return nil, err
			}

			calls = append(calls, safe.Call{To: to, Value: value, Data: data})
		}

		return safe.EncodeMultiSend(common.HexToAddress(multiSend), calls)

	default:
		return nil, fmt.Errorf("unknown action %q", n.action)
	}
}

// runPreflight checks the configured token minimums. A non-empty return
// string is a failed check; an error is an infrastructure problem reading
// the chain.
func (n *SafeTxNode) runPreflight(ctx context.Context, wallet common.Address, scope map[string]any) (string, error) {
	token, err := renderAddress("preflight.token", n.preflight.token, scope)
	if err != nil {
		return err.Error(), nil
	}

	if n.preflight.minBalance != nil {
		minBalance, err := renderAmount("preflight.min_balance", n.preflight.minBalance, scope)
		if err != nil {
			return err.Error(), nil
		}

		balance, err := n.service.BalanceOf(ctx, n.chainID, token, wallet)
		if err != nil {
			return "", err
		}

		if balance.Cmp(minBalance) < 0 {
			return fmt.Sprintf(
				"preflight failed: balance %s of token %s below minimum %s",
				balance, token.Hex(), minBalance,
			), nil
		}
	}

	if n.preflight.minAllowance != nil {
		minAllowance, err := renderAmount("preflight.min_allowance", n.preflight.minAllowance, scope)
		if err != nil {
			return err.Error(), nil
		}

		spender, err := renderAddress("preflight.spender", n.preflight.spender, scope)
		if err != nil {
			return err.Error(), nil
		}

		allowance, err := n.service.Allowance(ctx, n.chainID, token, wallet, spender)
		if err != nil {
			return "", err
		}

		if allowance.Cmp(minAllowance) < 0 {
			return fmt.Sprintf(
				"preflight failed: allowance %s for spender %s below minimum %s",
				allowance, spender.Hex(), minAllowance,
			), nil
		}
	}

	return "", nil
}

// renderAddress renders a templated field and requires a hex address.
func renderAddress(field, raw string, scope map[string]any) (common.Address, error) {
	rendered, err := template.RenderString(raw, scope)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to render %s: %w", field, err)
	}

	if !common.IsHexAddress(rendered) {
		return common.Address{}, fmt.Errorf("%s is not an address: %q", field, rendered)
	}

	return common.HexToAddress(rendered), nil
}

// renderAmount accepts decimal strings (templated) and JSON numbers. Nil
// means zero so value-less calls need no config.
func renderAmount(field string, raw any, scope map[string]any) (*big.Int, error) {
	switch v := raw.(type) {
	case nil:
		return new(big.Int), nil
	case string:
		rendered, err := template.RenderString(v, scope)
		if err != nil {
			return nil, fmt.Errorf("failed to render %s: %w", field, err)
		}

		amount, ok := new(big.Int).SetString(rendered, 10)
		if !ok {
			return nil, fmt.Errorf("%s is not a decimal integer: %q", field, rendered)
		}

		return amount, nil
	case float64:
		if v != float64(int64(v)) {
			return nil, fmt.Errorf("%s must be an integer; got %v", field, v)
		}

		return big.NewInt(int64(v)), nil
	case int:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	default:
		return nil, fmt.Errorf("%s must be a decimal string or number; got %T", field, raw)
	}
}

// renderCallData renders a templated hex blob. Empty and "0x" mean no data.
func renderCallData(field, raw string, scope map[string]any) ([]byte, error) {
	if raw == "" {
		return nil, nil
	}

	rendered, err := template.RenderString(raw, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", field, err)
	}

	if rendered == "" || rendered == "0x" {
		return nil, nil
	}

	data, err := hexutil.Decode(rendered)
	if err != nil {
		return nil, fmt.Errorf("%s is not hex data: %w", field, err)
	}

	return data, nil
}
