// Package relayer submits platform-signed transactions. One worker
// goroutine per chain serializes nonce acquisition and submission; sends
// retry with exponential backoff, recover already-mined transactions after
// confirmation timeouts, and treat reverted receipts as fatal.
package relayer

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/vesselhq/vessel/pkg/chains"
	"github.com/vesselhq/vessel/pkg/ethapi"
)

// ClientSource resolves the full JSON-RPC client for a chain. Satisfied by
// *ethapi.Pool.
type ClientSource interface {
	Client(chainID int64) (ethapi.Client, error)
}

// Relayer owns one sending worker per configured chain, created lazily on
// first use.
type Relayer struct {
	config  *chains.Config
	clients ClientSource
	lock    ChainLock
	logger  *slog.Logger

	newBackOff func(maxAttempts int) backoff.BackOff

	mu      sync.Mutex
	workers map[int64]*chainWorker
}

// New creates a relayer. Pass NopLock when a single replica is the only
// sender per chain.
func New(config *chains.Config, clients ClientSource, lock ChainLock, logger *slog.Logger) *Relayer {
	return &Relayer{
		config:     config,
		clients:    clients,
		lock:       lock,
		logger:     logger.With("module", "relayer"),
		newBackOff: defaultBackOff,
		workers:    make(map[int64]*chainWorker),
	}
}

func defaultBackOff(maxAttempts int) backoff.BackOff {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(maxAttempts-1))
}

type sendRequest struct {
	ctx    context.Context
	to     common.Address
	data   []byte
	value  *big.Int
	result chan sendResult
}

type sendResult struct {
	receipt *types.Receipt
	err     error
}

// Send enqueues a transaction on the chain's worker and waits for its mined
// receipt.
func (r *Relayer) Send(ctx context.Context, chainID int64, to common.Address, data []byte, value *big.Int) (*types.Receipt, error) {
	worker, err := r.worker(chainID)
	if err != nil {
		return nil, err
	}

	request := sendRequest{
		ctx:    ctx,
		to:     to,
		data:   data,
		value:  value,
		result: make(chan sendResult, 1),
	}

	select {
	case worker.requests <- request:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case result := <-request.result:
		if result.err != nil {
			return nil, &SendError{ChainID: chainID, To: to, Err: result.err}
		}

		return result.receipt, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SenderAddress returns the platform signing address for a chain.
func (r *Relayer) SenderAddress(chainID int64) (common.Address, error) {
	worker, err := r.worker(chainID)
	if err != nil {
		return common.Address{}, err
	}

	return worker.sender, nil
}

func (r *Relayer) worker(chainID int64) (*chainWorker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if worker, ok := r.workers[chainID]; ok {
		return worker, nil
	}

	chain, err := r.config.ByID(chainID)
	if err != nil {
		return nil, err
	}

	if chain.UserPaysGas {
		return nil, fmt.Errorf("%w: chain %d is user-pays-gas", ErrRelayingDisabled, chainID)
	}

	client, err := r.clients.Client(chainID)
	if err != nil {
		return nil, err
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(chain.RelayerKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: chain %d: %v", ErrInvalidRelayerKey, chainID, err)
	}

	worker := &chainWorker{
		chain:      chain,
		client:     client,
		key:        key,
		sender:     crypto.PubkeyToAddress(key.PublicKey),
		lock:       r.lock,
		newBackOff: r.newBackOff,
		logger:     r.logger.With("chain_id", chainID),
		requests:   make(chan sendRequest),
		stopCh:     make(chan struct{}),
	}

	go worker.run()

	r.workers[chainID] = worker

	return worker, nil
}

// Close stops every chain worker. In-flight sends finish; queued sends are
// abandoned to their caller's context.
func (r *Relayer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, worker := range r.workers {
		close(worker.stopCh)
	}

	r.workers = make(map[int64]*chainWorker)
}

type chainWorker struct {
	chain      *chains.Chain
	client     ethapi.Client
	key        *ecdsa.PrivateKey
	sender     common.Address
	lock       ChainLock
	newBackOff func(maxAttempts int) backoff.BackOff
	logger     *slog.Logger
	requests   chan sendRequest
	stopCh     chan struct{}
}

func (w *chainWorker) run() {
	for {
		select {
		case <-w.stopCh:
			return
		case request := <-w.requests:
			receipt, err := w.send(request.ctx, request.to, request.data, request.value)
			request.result <- sendResult{receipt: receipt, err: err}
		}
	}
}

func (w *chainWorker) send(ctx context.Context, to common.Address, data []byte, value *big.Int) (*types.Receipt, error) {
	release, err := w.lock.Acquire(ctx, w.chain.ChainID)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire chain lock: %w", err)
	}
	defer release()

	var (
		receipt    *types.Receipt
		lastTxHash common.Hash
		attempts   int
	)

	operation := func() error {
		attempts++

		// a previous attempt may have landed even though we saw an error
		if lastTxHash != (common.Hash{}) {
			if mined := w.minedReceipt(ctx, lastTxHash); mined != nil {
				if mined.Status == types.ReceiptStatusFailed {
					return backoff.Permanent(fmt.Errorf("%w: tx %s", ErrTransactionReverted, lastTxHash.Hex()))
				}

				w.logger.Info("recovered mined transaction before retrying", "tx_hash", lastTxHash.Hex())
				receipt = mined

				return nil
			}
		}

		mined, txHash, err := w.attempt(ctx, to, data, value)
		if txHash != (common.Hash{}) {
			lastTxHash = txHash
		}

		if err != nil {
			if errors.Is(err, ErrTransactionReverted) {
				return backoff.Permanent(err)
			}

			w.logger.Warn("send attempt failed", "attempt", attempts, "error", err)

			return err
		}

		receipt = mined

		return nil
	}

	policy := backoff.WithContext(w.newBackOff(w.chain.MaxSendAttempts), ctx)

	if err := backoff.Retry(operation, policy); err != nil {
		if errors.Is(err, ErrTransactionReverted) {
			return nil, err
		}

		return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts, err)
	}

	return receipt, nil
}

// attempt runs one full submission pipeline. The signed transaction hash is
// returned even when submission or confirmation failed, so the caller can
// look for a late receipt before retrying.
func (w *chainWorker) attempt(ctx context.Context, to common.Address, data []byte, value *big.Int) (*types.Receipt, common.Hash, error) {
	if value == nil {
		value = new(big.Int)
	}

	nonce, err := w.client.PendingNonceAt(ctx, w.sender)
	if err != nil {
		return nil, common.Hash{}, fmt.Errorf("failed to read pending nonce: %w", err)
	}

	gas, err := w.client.EstimateGas(ctx, ethereum.CallMsg{From: w.sender, To: &to, Data: data, Value: value})
	if err != nil {
		return nil, common.Hash{}, fmt.Errorf("failed to estimate gas: %w", err)
	}

	gas = gas * uint64(100+w.chain.GasMarginPercent) / 100

	gasPrice, err := w.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, common.Hash{}, fmt.Errorf("failed to fetch gas price: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     data,
	})

	signer := types.LatestSignerForChainID(big.NewInt(w.chain.ChainID))

	signed, err := types.SignTx(tx, signer, w.key)
	if err != nil {
		return nil, common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	txHash := signed.Hash()

	if err := w.client.SendTransaction(ctx, signed); err != nil {
		return nil, txHash, fmt.Errorf("failed to submit transaction: %w", err)
	}

	w.logger.Info("transaction submitted",
		"tx_hash", txHash.Hex(),
		"nonce", nonce,
		"gas", gas,
		"to", to.Hex())

	receipt, err := w.waitMined(ctx, txHash)
	if err != nil {
		return nil, txHash, err
	}

	if receipt.Status == types.ReceiptStatusFailed {
		return nil, txHash, fmt.Errorf("%w: tx %s", ErrTransactionReverted, txHash.Hex())
	}

	return receipt, txHash, nil
}

// waitMined polls for the receipt until the chain's confirmation timeout.
// After the deadline it queries once more on the parent context; a slow
// confirmation is not a failure.
func (w *chainWorker) waitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, w.chain.ConfirmationTimeout)
	defer cancel()

	ticker := time.NewTicker(w.chain.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := w.client.TransactionReceipt(waitCtx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}

		if err != nil && !errors.Is(err, ethereum.NotFound) && !errors.Is(err, context.DeadlineExceeded) {
			w.logger.Debug("receipt poll failed", "tx_hash", txHash.Hex(), "error", err)
		}

		select {
		case <-waitCtx.Done():
			if receipt := w.minedReceipt(ctx, txHash); receipt != nil {
				w.logger.Info("receipt found after wait deadline", "tx_hash", txHash.Hex())

				return receipt, nil
			}

			return nil, fmt.Errorf("%w: tx %s", ErrReceiptTimeout, txHash.Hex())
		case <-ticker.C:
		}
	}
}

func (w *chainWorker) minedReceipt(ctx context.Context, txHash common.Hash) *types.Receipt {
	receipt, err := w.client.TransactionReceipt(ctx, txHash)
	if err != nil || receipt == nil {
		return nil
	}

	return receipt
}
