// Package ratelimit implements fixed-window request limiting keyed by an
// arbitrary client key (the HTTP layer uses the client IP).
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Result describes one Allow decision.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// window returns the start of the fixed window containing now.
func window(now time.Time, size time.Duration) time.Time {
	return now.Truncate(size)
}

func decide(count int64, limit int, now, start time.Time, size time.Duration) Result {
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	res := Result{Allowed: count <= int64(limit), Remaining: remaining}
	if !res.Allowed {
		res.RetryAfter = start.Add(size).Sub(now)
	}
	return res
}

// RedisLimiter counts requests in Redis so the limit holds across restarts
// and replicas: one INCR + PEXPIRE per request on a per-window key.
type RedisLimiter struct {
	client redis.Cmdable
	limit  int
	size   time.Duration
	prefix string
	now    func() time.Time
}

func NewRedisLimiter(client redis.Cmdable, limit int, size time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		limit:  limit,
		size:   size,
		prefix: "raffle:ratelimit",
		now:    time.Now,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	now := l.now()
	start := window(now, l.size)
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, start.UnixMilli())

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.PExpire(ctx, redisKey, l.size)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, fmt.Errorf("rate limit counter: %w", err)
	}
	return decide(incr.Val(), l.limit, now, start, l.size), nil
}

// MemoryLimiter is the single-process fallback used when Redis is disabled.
type MemoryLimiter struct {
	mu       sync.Mutex
	limit    int
	size     time.Duration
	now      func() time.Time
	counters map[string]*counter
}

type counter struct {
	start time.Time
	count int64
}

func NewMemoryLimiter(limit int, size time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limit:    limit,
		size:     size,
		now:      time.Now,
		counters: make(map[string]*counter),
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	start := window(now, l.size)
	c, ok := l.counters[key]
	if !ok || !c.start.Equal(start) {
		l.evict(start)
		c = &counter{start: start}
		l.counters[key] = c
	}
	c.count++
	return decide(c.count, l.limit, now, start, l.size), nil
}

// evict drops counters from finished windows.
func (l *MemoryLimiter) evict(current time.Time) {
	for k, c := range l.counters {
		if c.start.Before(current) {
			delete(l.counters, k)
		}
	}
}
