package rate

import (
	"context"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// Rule is the budget for one bucket.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Counter is implemented by [Limiter] and [MemoryLimiter].
type Counter interface {
	// Allow counts one hit for key in bucket and returns ErrRateLimited with
	// the time left in the window once the budget is exceeded.
	Allow(ctx context.Context, bucket, key string, rule Rule) (time.Duration, error)
}

// Limiter counts hits in Redis.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
}

// New creates a Redis-backed [Limiter].
func New(redisClient redis.UniversalClient, prefix string) *Limiter {
	if prefix == "" {
		prefix = "gcr"
	}
	return &Limiter{redis: redisClient, prefix: prefix}
}

func (l *Limiter) Allow(ctx context.Context, bucket, key string, rule Rule) (time.Duration, error) {
	if rule.Limit <= 0 || key == "" {
		return 0, nil
	}

	k := l.prefix + ":" + bucket + ":" + key
	count, err := l.redis.Incr(ctx, k).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.PExpire(ctx, k, rule.Window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	if count > int64(rule.Limit) {
		ttl, err := l.redis.PTTL(ctx, k).Result()
		if err != nil || ttl < 0 {
			ttl = rule.Window
		}
		return ttl, ErrRateLimited
	}
	return 0, nil
}

type window struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter counts hits in process memory.
type MemoryLimiter struct {
	mu    sync.Mutex
	cache *gocache.Cache
	now   func() time.Time
}

func NewMemory() *MemoryLimiter {
	return &MemoryLimiter{
		cache: gocache.New(gocache.NoExpiration, time.Minute),
		now:   time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, bucket, key string, rule Rule) (time.Duration, error) {
	if rule.Limit <= 0 || key == "" {
		return 0, nil
	}

	k := bucket + ":" + key
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w := window{resetAt: now.Add(rule.Window)}
	if v, ok := l.cache.Get(k); ok {
		if cur, ok := v.(window); ok && now.Before(cur.resetAt) {
			w = cur
		}
	}
	w.count++
	l.cache.Set(k, w, w.resetAt.Sub(now))

	if w.count > rule.Limit {
		return w.resetAt.Sub(now), ErrRateLimited
	}
	return 0, nil
}
