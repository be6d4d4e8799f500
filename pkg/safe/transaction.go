// Package safe builds, verifies and executes multisig wallet transactions.
// The wallet contract is the source of truth for transaction hashes and
// signature validity; this package never recomputes either locally.
package safe

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Operation is the wallet-level call type.
type Operation uint8

const (
	OperationCall         Operation = 0
	OperationDelegateCall Operation = 1
)

// ErrMalformedDocument is returned when a stored transaction document is
// missing a field or carries one of the wrong shape.
var ErrMalformedDocument = errors.New("malformed transaction document")

// Transaction carries every field the wallet hashes over. Gas fields stay
// zero and gasToken/refundReceiver stay the zero address whenever the
// platform relayer pays, so the wallet refunds no one.
type Transaction struct {
	To             common.Address
	Value          *big.Int
	Data           []byte
	Operation      Operation
	SafeTxGas      *big.Int
	BaseGas        *big.Int
	GasPrice       *big.Int
	GasToken       common.Address
	RefundReceiver common.Address
	Nonce          *big.Int
}

// NewTransaction builds a relayer-paid transaction. The nonce is left unset
// until BuildTransactionHash reads it from the wallet.
func NewTransaction(to common.Address, value *big.Int, data []byte, operation Operation) *Transaction {
	if value == nil {
		value = new(big.Int)
	}

	return &Transaction{
		To:        to,
		Value:     value,
		Data:      data,
		Operation: operation,
		SafeTxGas: new(big.Int),
		BaseGas:   new(big.Int),
		GasPrice:  new(big.Int),
	}
}

// ToDocument renders the transaction as the JSON-friendly map persisted on a
// paused run. Numeric fields are decimal strings so values survive JSON and
// JSONB round-trips without float truncation.
func (t *Transaction) ToDocument() map[string]any {
	return map[string]any{
		"to":              t.To.Hex(),
		"value":           bigString(t.Value),
		"data":            hexutil.Encode(t.Data),
		"operation":       int(t.Operation),
		"safe_tx_gas":     bigString(t.SafeTxGas),
		"base_gas":        bigString(t.BaseGas),
		"gas_price":       bigString(t.GasPrice),
		"gas_token":       t.GasToken.Hex(),
		"refund_receiver": t.RefundReceiver.Hex(),
		"nonce":           bigString(t.Nonce),
	}
}

// TransactionFromDocument rebuilds a transaction from its persisted document.
func TransactionFromDocument(doc map[string]any) (*Transaction, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: document is nil", ErrMalformedDocument)
	}

	to, err := docAddress(doc, "to")
	if err != nil {
		return nil, err
	}

	value, err := docBigInt(doc, "value")
	if err != nil {
		return nil, err
	}

	data, err := docBytes(doc, "data")
	if err != nil {
		return nil, err
	}

	operation, err := docOperation(doc, "operation")
	if err != nil {
		return nil, err
	}

	safeTxGas, err := docBigInt(doc, "safe_tx_gas")
	if err != nil {
		return nil, err
	}

	baseGas, err := docBigInt(doc, "base_gas")
	if err != nil {
		return nil, err
	}

	gasPrice, err := docBigInt(doc, "gas_price")
	if err != nil {
		return nil, err
	}

	gasToken, err := docAddress(doc, "gas_token")
	if err != nil {
		return nil, err
	}

	refundReceiver, err := docAddress(doc, "refund_receiver")
	if err != nil {
		return nil, err
	}

	nonce, err := docBigInt(doc, "nonce")
	if err != nil {
		return nil, err
	}

	return &Transaction{
		To:             to,
		Value:          value,
		Data:           data,
		Operation:      operation,
		SafeTxGas:      safeTxGas,
		BaseGas:        baseGas,
		GasPrice:       gasPrice,
		GasToken:       gasToken,
		RefundReceiver: refundReceiver,
		Nonce:          nonce,
	}, nil
}

func bigString(n *big.Int) string {
	if n == nil {
		return "0"
	}

	return n.String()
}

func docString(doc map[string]any, key string) (string, error) {
	raw, ok := doc[key]
	if !ok {
		return "", fmt.Errorf("%w: missing field %q", ErrMalformedDocument, key)
	}

	value, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: field %q is not a string", ErrMalformedDocument, key)
	}

	return value, nil
}

func docAddress(doc map[string]any, key string) (common.Address, error) {
	value, err := docString(doc, key)
	if err != nil {
		return common.Address{}, err
	}

	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("%w: field %q is not an address", ErrMalformedDocument, key)
	}

	return common.HexToAddress(value), nil
}

func docBigInt(doc map[string]any, key string) (*big.Int, error) {
	value, err := docString(doc, key)
	if err != nil {
		return nil, err
	}

	n, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("%w: field %q is not a decimal integer", ErrMalformedDocument, key)
	}

	return n, nil
}

func docBytes(doc map[string]any, key string) ([]byte, error) {
	value, err := docString(doc, key)
	if err != nil {
		return nil, err
	}

	data, err := hexutil.Decode(value)
	if err != nil {
		return nil, fmt.Errorf("%w: field %q is not hex data", ErrMalformedDocument, key)
	}

	return data, nil
}

func docOperation(doc map[string]any, key string) (Operation, error) {
	raw, ok := doc[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing field %q", ErrMalformedDocument, key)
	}

	var operation int64

	switch value := raw.(type) {
	case int:
		operation = int64(value)
	case int64:
		operation = value
	case float64:
		operation = int64(value)
	default:
		return 0, fmt.Errorf("%w: field %q is not a number", ErrMalformedDocument, key)
	}

	if operation != int64(OperationCall) && operation != int64(OperationDelegateCall) {
		return 0, fmt.Errorf("%w: operation %d out of range", ErrMalformedDocument, operation)
	}

	return Operation(operation), nil
}
