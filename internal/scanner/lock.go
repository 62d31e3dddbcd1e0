package scanner

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Lock prevents two scan runs from processing the same overdue set at once
// across service instances
type Lock interface {
	TryAcquire(ctx context.Context) bool
	Release(ctx context.Context)
}

// RedisLock is a best-effort lease in Redis. A second instance that sees
// the key held skips its run; the TTL frees the lease if the holder dies.
type RedisLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisLock creates a scan lease with the given key and TTL
func NewRedisLock(client *redis.Client, key string, ttl time.Duration, logger *zap.Logger) *RedisLock {
	return &RedisLock{client: client, key: key, ttl: ttl, logger: logger}
}

// TryAcquire takes the lease if free. When Redis is unreachable the scan
// runs anyway: a duplicate run is tolerated, a silently skipped one is not.
func (l *RedisLock) TryAcquire(ctx context.Context) bool {
	ok, err := l.client.SetNX(ctx, l.key, "1", l.ttl).Result()
	if err != nil {
		l.logger.Warn("Scan lock unavailable, proceeding without it", zap.Error(err))
		return true
	}
	return ok
}

// Release frees the lease
func (l *RedisLock) Release(ctx context.Context) {
	if err := l.client.Del(ctx, l.key).Err(); err != nil {
		l.logger.Warn("Failed to release scan lock", zap.Error(err))
	}
}
