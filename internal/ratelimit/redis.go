package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisLimiter implements Limiter with INCR counters keyed by scope, key
// and the aligned window, so quotas hold across service instances.
type RedisLimiter struct {
	client   *redis.Client
	policies *Policies
	logger   zerolog.Logger
	now      func() time.Time
}

// NewRedisLimiter creates a Redis-backed limiter over the given policies.
func NewRedisLimiter(addr string, policies *Policies, logger zerolog.Logger) *RedisLimiter {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  500 * time.Millisecond,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})

	return &RedisLimiter{
		client:   client,
		policies: policies,
		logger:   logger,
		now:      time.Now,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, scope, key string) (bool, error) {
	policy, ok := l.policies.Scope(scope)
	if !ok || policy.Limit <= 0 {
		return true, nil
	}

	window := windowStart(l.now(), policy.Window)
	counterKey := keyFor(scope, key, window)

	count, err := l.client.Incr(ctx, counterKey).Result()
	if err != nil {
		return false, fmt.Errorf("redis incr error: %w", err)
	}
	if count == 1 {
		// First hit of this window; counter keys expire on their own so
		// rolled-over windows leave nothing behind.
		if err := l.client.Expire(ctx, counterKey, policy.Window+time.Second).Err(); err != nil {
			l.logger.Error().Err(err).Str("key", counterKey).Msg("failed to set counter expiry")
		}
	}
	return count <= int64(policy.Limit), nil
}

func (l *RedisLimiter) Ping(ctx context.Context) error {
	if err := l.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping error: %w", err)
	}
	return nil
}

func (l *RedisLimiter) Close() error {
	return l.client.Close()
}
