package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Rate-limit scopes. Each scope accounts quota independently: ingestion is
// keyed by the raw API key, analytics queries by the caller identity.
const (
	ScopeCollect   = "collect"
	ScopeAnalytics = "analytics"
)

// ScopePolicy is the ceiling for one scope: at most Limit requests per
// fixed Window per key.
type ScopePolicy struct {
	Limit  int
	Window time.Duration
}

// Policies holds the current per-scope policies. It is safe for concurrent
// reads while the config loader replaces it in the background.
type Policies struct {
	mu     sync.RWMutex
	scopes map[string]ScopePolicy
}

// NewPolicies creates a policy set from the given scope map.
func NewPolicies(scopes map[string]ScopePolicy) *Policies {
	cp := make(map[string]ScopePolicy, len(scopes))
	for name, p := range scopes {
		cp[name] = p
	}
	return &Policies{scopes: cp}
}

// Scope returns the policy for a scope. Unknown scopes report !ok and are
// not limited.
func (p *Policies) Scope(name string) (ScopePolicy, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	sp, ok := p.scopes[name]
	return sp, ok
}

// Replace swaps in a new scope map, e.g. after a config reload.
func (p *Policies) Replace(scopes map[string]ScopePolicy) {
	cp := make(map[string]ScopePolicy, len(scopes))
	for name, sp := range scopes {
		cp[name] = sp
	}
	p.mu.Lock()
	p.scopes = cp
	p.mu.Unlock()
}

// Limiter answers whether one more request is allowed for (scope, key),
// counting the request in the same call. Implementations must be safe for
// concurrent use; the Redis one shares counters across instances.
type Limiter interface {
	Allow(ctx context.Context, scope, key string) (bool, error)

	Ping(ctx context.Context) error
	Close() error
}

// New creates a limiter for the given backend type.
func New(backend, redisAddr string, policies *Policies, logger zerolog.Logger) (Limiter, error) {
	switch backend {
	case "memory":
		logger.Info().Msg("using memory rate limiter backend")
		return NewMemoryLimiter(policies), nil
	case "redis":
		logger.Info().Str("redis_addr", redisAddr).Msg("using redis rate limiter backend")
		l := NewRedisLimiter(redisAddr, policies, logger)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.Ping(ctx); err != nil {
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		return l, nil
	default:
		return nil, fmt.Errorf("unsupported rate limiter backend: %s", backend)
	}
}

// windowStart aligns now to the fixed window the request falls in.
func windowStart(now time.Time, window time.Duration) int64 {
	return now.UnixNano() / int64(window)
}
