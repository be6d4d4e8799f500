package relayer

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrRelayingDisabled is returned for chains configured as
	// user-pays-gas; their transactions are returned to the client instead.
	ErrRelayingDisabled = errors.New("relaying disabled for chain")

	// ErrInvalidRelayerKey is returned when a chain's signing key does not
	// parse as a secp256k1 private key.
	ErrInvalidRelayerKey = errors.New("invalid relayer key")

	// ErrTransactionReverted is returned for a mined receipt with failure
	// status. Fatal, never retried.
	ErrTransactionReverted = errors.New("transaction reverted on chain")

	// ErrReceiptTimeout is returned when no receipt appeared within the
	// chain's confirmation window. Retryable.
	ErrReceiptTimeout = errors.New("timed out waiting for transaction receipt")

	// ErrRetriesExhausted is returned when the per-chain attempt budget ran
	// out; it wraps the last attempt's error.
	ErrRetriesExhausted = errors.New("transaction send retries exhausted")
)

// SendError reports a failed send with its chain and destination.
type SendError struct {
	ChainID int64
	To      common.Address
	Err     error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send on chain %d to %s: %v", e.ChainID, e.To.Hex(), e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}
