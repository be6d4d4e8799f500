package relayer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesselhq/vessel/pkg/chains"
	"github.com/vesselhq/vessel/pkg/ethapi"
)

// well-known development key, address 0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266
const testRelayerKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var (
	testSender = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	testTarget = common.HexToAddress("0x4111111111111111111111111111111111111111")
)

type mockChainClient struct {
	mu        sync.Mutex
	sendCalls int
	sent      []*types.Transaction

	nonceFn    func() (uint64, error)
	estimateFn func(msg ethereum.CallMsg) (uint64, error)
	priceFn    func() (*big.Int, error)
	sendFn     func(tx *types.Transaction) error
	receiptFn  func(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

func (m *mockChainClient) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return nil, nil
}

func (m *mockChainClient) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	if m.nonceFn != nil {
		return m.nonceFn()
	}

	return 1, nil
}

func (m *mockChainClient) EstimateGas(_ context.Context, msg ethereum.CallMsg) (uint64, error) {
	if m.estimateFn != nil {
		return m.estimateFn(msg)
	}

	return 100_000, nil
}

func (m *mockChainClient) SuggestGasPrice(context.Context) (*big.Int, error) {
	if m.priceFn != nil {
		return m.priceFn()
	}

	return big.NewInt(30_000_000_000), nil
}

func (m *mockChainClient) SendTransaction(_ context.Context, tx *types.Transaction) error {
	m.mu.Lock()
	m.sendCalls++
	m.sent = append(m.sent, tx)
	m.mu.Unlock()

	if m.sendFn != nil {
		return m.sendFn(tx)
	}

	return nil
}

func (m *mockChainClient) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	if m.receiptFn != nil {
		return m.receiptFn(ctx, hash)
	}

	return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: hash}, nil
}

func (m *mockChainClient) sends() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.sendCalls
}

func (m *mockChainClient) lastSent() *types.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sent) == 0 {
		return nil
	}

	return m.sent[len(m.sent)-1]
}

type stubClientSource struct {
	client ethapi.Client
}

func (s stubClientSource) Client(int64) (ethapi.Client, error) {
	return s.client, nil
}

type stubLock struct {
	mu       sync.Mutex
	acquired int
	released int
}

func (l *stubLock) Acquire(context.Context, int64) (func(), error) {
	l.mu.Lock()
	l.acquired++
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		l.released++
		l.mu.Unlock()
	}, nil
}

func testRelayer(t *testing.T, client ethapi.Client, lock ChainLock) *Relayer {
	t.Helper()

	cfg, err := chains.Parse(fmt.Appendf(nil, `
chains:
  - chain_id: 137
    name: polygon
    rpc_url: https://polygon-rpc.example
    relayer_key: %s
    gas_margin_percent: 20
    confirmation_timeout: 40ms
    poll_interval: 5ms
    max_send_attempts: 3
  - chain_id: 1
    name: mainnet
    rpc_url: https://mainnet-rpc.example
    user_pays_gas: true
  - chain_id: 10
    name: optimism
    rpc_url: https://optimism-rpc.example
    relayer_key: not-a-key
`, testRelayerKey))
	require.NoError(t, err)

	relay := New(cfg, stubClientSource{client: client}, lock, slog.Default())

	// drop the exponential waits; attempt counting stays intact
	relay.newBackOff = func(maxAttempts int) backoff.BackOff {
		if maxAttempts < 1 {
			maxAttempts = 1
		}

		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(maxAttempts-1))
	}

	t.Cleanup(relay.Close)

	return relay
}

func TestSendSignsWithMarginAndReturnsReceipt(t *testing.T) {
	client := &mockChainClient{}
	lock := &stubLock{}
	relay := testRelayer(t, client, lock)

	receipt, err := relay.Send(context.Background(), 137, testTarget, []byte{0xde, 0xad}, nil)
	require.NoError(t, err)
	require.NotNil(t, receipt)

	assert.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)
	assert.Equal(t, 1, client.sends())

	sent := client.lastSent()
	require.NotNil(t, sent)

	// 100000 estimated, 20 percent margin
	assert.EqualValues(t, 120_000, sent.Gas())
	assert.Equal(t, testTarget, *sent.To())
	assert.Equal(t, []byte{0xde, 0xad}, sent.Data())

	signer := types.LatestSignerForChainID(big.NewInt(137))
	sender, err := types.Sender(signer, sent)
	require.NoError(t, err)
	assert.Equal(t, testSender, sender)

	assert.Equal(t, 1, lock.acquired)
	assert.Equal(t, 1, lock.released)
}

func TestSendRejectsUnconfiguredChain(t *testing.T) {
	relay := testRelayer(t, &mockChainClient{}, NopLock{})

	_, err := relay.Send(context.Background(), 42161, testTarget, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, chains.ErrChainNotConfigured)
}

func TestSendRejectsUserPaysGasChain(t *testing.T) {
	relay := testRelayer(t, &mockChainClient{}, NopLock{})

	_, err := relay.Send(context.Background(), 1, testTarget, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRelayingDisabled)
}

func TestSendRejectsInvalidRelayerKey(t *testing.T) {
	relay := testRelayer(t, &mockChainClient{}, NopLock{})

	_, err := relay.Send(context.Background(), 10, testTarget, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRelayerKey)
}

func TestRevertedReceiptIsFatal(t *testing.T) {
	client := &mockChainClient{
		receiptFn: func(_ context.Context, hash common.Hash) (*types.Receipt, error) {
			return &types.Receipt{Status: types.ReceiptStatusFailed, TxHash: hash}, nil
		},
	}
	relay := testRelayer(t, client, NopLock{})

	_, err := relay.Send(context.Background(), 137, testTarget, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransactionReverted)

	var sendErr *SendError
	require.ErrorAs(t, err, &sendErr)
	assert.EqualValues(t, 137, sendErr.ChainID)

	// fatal errors never retry
	assert.Equal(t, 1, client.sends())
}

func TestTransientSubmitErrorRetries(t *testing.T) {
	client := &mockChainClient{}

	submitted := false
	client.sendFn = func(*types.Transaction) error {
		if !submitted {
			submitted = true

			return errors.New("connection reset")
		}

		return nil
	}
	client.receiptFn = func(_ context.Context, hash common.Hash) (*types.Receipt, error) {
		if !submitted {
			return nil, ethereum.NotFound
		}

		// nothing mined until the second submission went through
		if client.sends() < 2 {
			return nil, ethereum.NotFound
		}

		return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: hash}, nil
	}

	relay := testRelayer(t, client, NopLock{})

	receipt, err := relay.Send(context.Background(), 137, testTarget, []byte{1}, nil)
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)
	assert.Equal(t, 2, client.sends())
}

func TestRecoversMinedTransactionWithoutResubmitting(t *testing.T) {
	client := &mockChainClient{
		sendFn: func(*types.Transaction) error {
			return errors.New("already known")
		},
	}
	relay := testRelayer(t, client, NopLock{})

	receipt, err := relay.Send(context.Background(), 137, testTarget, []byte{1}, nil)
	require.NoError(t, err)

	assert.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)

	// the first submission raced but landed; the retry found its receipt
	// instead of submitting again
	assert.Equal(t, 1, client.sends())
}

func TestLateReceiptAfterConfirmationTimeout(t *testing.T) {
	client := &mockChainClient{
		receiptFn: func(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
			if _, bounded := ctx.Deadline(); bounded {
				return nil, ethereum.NotFound
			}

			return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: hash}, nil
		},
	}
	relay := testRelayer(t, client, NopLock{})

	receipt, err := relay.Send(context.Background(), 137, testTarget, []byte{1}, nil)
	require.NoError(t, err)

	assert.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)
	assert.Equal(t, 1, client.sends())
}

func TestRetriesExhausted(t *testing.T) {
	client := &mockChainClient{
		sendFn: func(*types.Transaction) error {
			return errors.New("rpc unavailable")
		},
		receiptFn: func(context.Context, common.Hash) (*types.Receipt, error) {
			return nil, ethereum.NotFound
		},
	}
	relay := testRelayer(t, client, NopLock{})

	_, err := relay.Send(context.Background(), 137, testTarget, []byte{1}, nil)
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, 3, client.sends())
}

func TestSenderAddress(t *testing.T) {
	relay := testRelayer(t, &mockChainClient{}, NopLock{})

	sender, err := relay.SenderAddress(137)
	require.NoError(t, err)
	assert.Equal(t, testSender, sender)
}

func TestNopLock(t *testing.T) {
	release, err := NopLock{}.Acquire(context.Background(), 137)
	require.NoError(t, err)
	require.NotNil(t, release)

	release()
}
