package cmd

import (
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/vesselhq/vessel/pkg/chains"
	"github.com/vesselhq/vessel/pkg/ethapi"
	"github.com/vesselhq/vessel/pkg/relayer"
	"github.com/vesselhq/vessel/pkg/safe"
)

// redisLockTTL bounds how long a crashed replica can hold a chain lock.
const redisLockTTL = 90 * time.Second

// WalletStack is the chain-facing half of the system: configuration, dialed
// clients, the relayer and the wallet contract service.
type WalletStack struct {
	Chains  *chains.Config
	Pool    *ethapi.Pool
	Relayer *relayer.Relayer
	Safe    *safe.Service
}

// NewWalletStack loads the chain configuration and wires the relayer and
// wallet service over one client pool. A non-empty redisURL enables the
// cross-replica chain lock.
func NewWalletStack(chainConfigPath, redisURL string, logger *slog.Logger) (*WalletStack, error) {
	config, err := chains.Load(chainConfigPath)
	if err != nil {
		return nil, err
	}

	pool := ethapi.NewPool(config)

	var lock relayer.ChainLock = relayer.NopLock{}

	if redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, err
		}

		lock = relayer.NewRedisLock(redis.NewClient(opts), redisLockTTL, logger)
	}

	sender := relayer.New(config, pool, lock, logger)

	return &WalletStack{
		Chains:  config,
		Pool:    pool,
		Relayer: sender,
		Safe:    safe.NewService(config, pool, sender, logger),
	}, nil
}

// Close stops the chain workers and releases the dialed chain clients.
func (s *WalletStack) Close() {
	s.Relayer.Close()
	s.Pool.Close()
}
