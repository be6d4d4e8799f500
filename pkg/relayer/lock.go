package relayer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// ChainLock serializes sends on one chain across processes. The per-chain
// worker already serializes within a process; the lock extends that to
// multi-replica deployments.
type ChainLock interface {
	Acquire(ctx context.Context, chainID int64) (release func(), err error)
}

// NopLock is the single-process default.
type NopLock struct{}

func (NopLock) Acquire(context.Context, int64) (func(), error) {
	return func() {}, nil
}

// releaseScript deletes the lock key only while it still holds our token,
// so an expired lock taken over by another replica is never released here.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`

// RedisLock takes a per-chain key with SET NX PX and polls until the key
// frees up or the context ends.
type RedisLock struct {
	client        redis.UniversalClient
	ttl           time.Duration
	retryInterval time.Duration
	logger        *slog.Logger
}

// NewRedisLock creates a distributed chain lock. The ttl bounds how long a
// crashed holder can block other replicas.
func NewRedisLock(client redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *RedisLock {
	return &RedisLock{
		client:        client,
		ttl:           ttl,
		retryInterval: 250 * time.Millisecond,
		logger:        logger.With("module", "chain_lock"),
	}
}

func (l *RedisLock) Acquire(ctx context.Context, chainID int64) (func(), error) {
	key := fmt.Sprintf("vessel:relayer:chain:%d", chainID)
	token := uuid.NewString()

	for {
		taken, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to take chain lock %s: %w", key, err)
		}

		if taken {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retryInterval):
		}
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := l.client.Eval(releaseCtx, releaseScript, []string{key}, token).Err(); err != nil {
			l.logger.Warn("failed to release chain lock", "key", key, "error", err)
		}
	}

	return release, nil
}
