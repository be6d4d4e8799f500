package safe

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrEmptyBatch is returned when a MultiSend batch has no calls.
	ErrEmptyBatch = errors.New("multisend batch is empty")

	// ErrMalformedBatch is returned when packed batch bytes do not decode
	// into whole calls.
	ErrMalformedBatch = errors.New("malformed multisend batch")
)

// Call is one entry in a batched execution. Sub-calls always run as plain
// CALLs with their own value; the DELEGATECALL happens at the wallet level.
type Call struct {
	To    common.Address
	Value *big.Int
	Data  []byte
}

// callHeaderLength is operation(1) + to(20) + value(32) + data length(32).
const callHeaderLength = 85

// EncodeMultiSend packs the calls into the batch executor's wire format,
// wraps them in multiSend(bytes) and returns the wallet transaction that
// DELEGATECALLs into the executor. The wallet-level value is zero; sub-call
// values are carried inside the packed bytes.
func EncodeMultiSend(multiSend common.Address, calls []Call) (*Transaction, error) {
	if len(calls) == 0 {
		return nil, ErrEmptyBatch
	}

	var packed bytes.Buffer

	for _, call := range calls {
		value := call.Value
		if value == nil {
			value = new(big.Int)
		}

		packed.WriteByte(byte(OperationCall))
		packed.Write(call.To.Bytes())
		packed.Write(common.LeftPadBytes(value.Bytes(), 32))
		packed.Write(common.LeftPadBytes(big.NewInt(int64(len(call.Data))).Bytes(), 32))
		packed.Write(call.Data)
	}

	data, err := multiSendABI.Pack("multiSend", packed.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to encode multiSend call: %w", err)
	}

	return NewTransaction(multiSend, nil, data, OperationDelegateCall), nil
}

// DecodeMultiSend unpacks a multiSend(bytes) call back into its calls.
func DecodeMultiSend(data []byte) ([]Call, error) {
	method := multiSendABI.Methods["multiSend"]

	if len(data) < 4 || !bytes.Equal(data[:4], method.ID) {
		return nil, fmt.Errorf("%w: not a multiSend call", ErrMalformedBatch)
	}

	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, fmt.Errorf("failed to decode multiSend arguments: %w", err)
	}

	packed, ok := args[0].([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: transactions argument is not bytes", ErrMalformedBatch)
	}

	var calls []Call

	offset := 0
	for offset < len(packed) {
		if len(packed)-offset < callHeaderLength {
			return nil, fmt.Errorf("%w: truncated call header at offset %d", ErrMalformedBatch, offset)
		}

		if packed[offset] != byte(OperationCall) {
			return nil, fmt.Errorf("%w: sub-call operation %d at offset %d", ErrMalformedBatch, packed[offset], offset)
		}
		offset++

		to := common.BytesToAddress(packed[offset : offset+20])
		offset += 20

		value := new(big.Int).SetBytes(packed[offset : offset+32])
		offset += 32

		dataLen := new(big.Int).SetBytes(packed[offset : offset+32])
		offset += 32

		if !dataLen.IsInt64() || dataLen.Int64() > int64(len(packed)-offset) {
			return nil, fmt.Errorf("%w: truncated call data at offset %d", ErrMalformedBatch, offset)
		}

		n := int(dataLen.Int64())
		callData := make([]byte, n)
		copy(callData, packed[offset:offset+n])
		offset += n

		calls = append(calls, Call{To: to, Value: value, Data: callData})
	}

	return calls, nil
}
