// Package ethapi narrows the Ethereum JSON-RPC client to the surfaces the
// safe and relayer subsystems actually use, and pools one dialed client per
// configured chain.
package ethapi

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/vesselhq/vessel/pkg/chains"
)

// Caller is the read surface used for contract view calls.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Client adds the transaction surface the relayer drives. Satisfied by
// *ethclient.Client.
type Client interface {
	Caller
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Pool lazily dials and caches one JSON-RPC client per configured chain.
type Pool struct {
	config *chains.Config

	mu      sync.Mutex
	clients map[int64]*ethclient.Client
}

// NewPool creates a client pool over the chain configuration.
func NewPool(config *chains.Config) *Pool {
	return &Pool{
		config:  config,
		clients: make(map[int64]*ethclient.Client),
	}
}

// Client returns the cached client for a chain, dialing the chain's RPC
// endpoint on first use.
func (p *Pool) Client(chainID int64) (Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if client, ok := p.clients[chainID]; ok {
		return client, nil
	}

	chain, err := p.config.ByID(chainID)
	if err != nil {
		return nil, err
	}

	client, err := ethclient.Dial(chain.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc for chain %d: %w", chainID, err)
	}

	p.clients[chainID] = client

	return client, nil
}

// Caller returns the read-only view of Client.
func (p *Pool) Caller(chainID int64) (Caller, error) {
	return p.Client(chainID)
}

// Close releases every dialed client.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, client := range p.clients {
		client.Close()
	}

	p.clients = make(map[int64]*ethclient.Client)
}
