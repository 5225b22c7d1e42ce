package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type windowCounter struct {
	window int64
	// dur is the window duration the counter was created under. Eviction
	// judges each counter against its own duration; scopes with different
	// windows produce different indices for the same instant.
	dur   time.Duration
	count int
}

// MemoryLimiter implements Limiter with per-key fixed-window counters held
// in process. Counters reset when the aligned window rolls over.
type MemoryLimiter struct {
	mu       sync.Mutex
	counters map[string]*windowCounter
	policies *Policies
	now      func() time.Time
}

// NewMemoryLimiter creates an in-process limiter over the given policies.
func NewMemoryLimiter(policies *Policies) *MemoryLimiter {
	return &MemoryLimiter{
		counters: make(map[string]*windowCounter),
		policies: policies,
		now:      time.Now,
	}
}

func (l *MemoryLimiter) Allow(ctx context.Context, scope, key string) (bool, error) {
	policy, ok := l.policies.Scope(scope)
	if !ok || policy.Limit <= 0 {
		return true, nil
	}

	now := l.now()
	window := windowStart(now, policy.Window)
	counterKey := scope + ":" + key

	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.counters[counterKey]
	if !ok || c.window != window {
		c = &windowCounter{window: window, dur: policy.Window}
		l.counters[counterKey] = c
	}
	if c.count >= policy.Limit {
		return false, nil
	}
	c.count++

	// Drop counters whose own window has rolled over once the map gets big.
	if len(l.counters) >= 4096 {
		for k, old := range l.counters {
			if old.window != windowStart(now, old.dur) {
				delete(l.counters, k)
			}
		}
	}
	return true, nil
}

func (l *MemoryLimiter) Ping(ctx context.Context) error { return nil }

func (l *MemoryLimiter) Close() error { return nil }

// keyFor builds the storage key shared by limiter backends.
func keyFor(scope, key string, window int64) string {
	return fmt.Sprintf("beacon:rl:%s:%s:%d", scope, key, window)
}
