// Package limiter provides fixed-window request counters keyed by an arbitrary string,
// used to throttle reset requests and verification resends per user id.
package limiter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLimited is returned by Allow when the window's budget is spent.
var ErrLimited = errors.New("rate limit exceeded")

// ErrUnavailable wraps backend failures. Callers decide whether to fail open.
var ErrUnavailable = errors.New("rate limiter unavailable")

// Limiter counts events per key within a fixed window.
type Limiter interface {
	// Allow records one event for key and returns ErrLimited once more than the budget
	// has been recorded within the current window.
	Allow(ctx context.Context, key string) error
}

// RedisLimiter keeps counters in Redis. INCR and EXPIRE NX run in one MULTI/EXEC, so a counter
// never outlives its window and later events do not extend it.
type RedisLimiter struct {
	redis  *redis.Client
	prefix string
	limit  int
	window time.Duration
}

// NewRedisLimiter returns a limiter that allows limit events per window for each key.
func NewRedisLimiter(client *redis.Client, prefix string, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{redis: client, prefix: prefix, limit: limit, window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) error {
	k := l.prefix + ":" + key
	var incr *redis.IntCmd
	_, err := l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pipe.ExpireNX(ctx, k, l.window)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if incr.Val() > int64(l.limit) {
		return ErrLimited
	}
	return nil
}

type window struct {
	count int
	reset time.Time
}

// MemoryLimiter is a process-local Limiter for single-instance deployments and tests.
type MemoryLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	windows map[string]*window
	nowF    func() time.Time
}

// NewMemoryLimiter returns a process-local limiter.
func NewMemoryLimiter(limit int, w time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limit:   limit,
		window:  w,
		windows: make(map[string]*window),
		nowF:    time.Now,
	}
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.nowF()
	w, ok := l.windows[key]
	if !ok || !now.Before(w.reset) {
		w = &window{reset: now.Add(l.window)}
		l.windows[key] = w
		l.sweepLocked(now)
	}
	w.count++
	if w.count > l.limit {
		return ErrLimited
	}
	return nil
}

// sweepLocked drops expired windows. Caller must hold l.mu.
func (l *MemoryLimiter) sweepLocked(now time.Time) {
	for k, w := range l.windows {
		if !now.Before(w.reset) {
			delete(l.windows, k)
		}
	}
}

// Unlimited never limits. Used when throttling is disabled.
type Unlimited struct{}

func (Unlimited) Allow(context.Context, string) error { return nil }
