package stores

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// StepStore remembers the highest authenticator time step accepted per
// subject. A step at or below it is a replay.
type StepStore interface {
	// Claim records step for subject when it is above the last claimed one
	// and reports whether it was. ttl only needs to outlive the skew window.
	Claim(ctx context.Context, subject string, step int64, ttl time.Duration) (bool, error)
}

// KEYS[1] = step key
// ARGV = step, ttlMs
var claimStepLua = redis.NewScript(`
local last = redis.call('GET', KEYS[1])
if last and tonumber(last) >= tonumber(ARGV[1]) then
  return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
return 1
`)

type RedisStepStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRedisStepStore(redisClient redis.UniversalClient, prefix string) *RedisStepStore {
	if prefix == "" {
		prefix = defaultChallengePrefix + ":step"
	}
	return &RedisStepStore{redis: redisClient, prefix: prefix}
}

func (s *RedisStepStore) Claim(ctx context.Context, subject string, step int64, ttl time.Duration) (bool, error) {
	if subject == "" {
		return false, errors.New("subject is required")
	}
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	n, err := claimStepLua.Run(ctx, s.redis, []string{s.prefix + ":" + subject}, step, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrChallengeUnavailable, err)
	}
	return n == 1, nil
}

// MemoryStepStore is the in-process StepStore.
type MemoryStepStore struct {
	mu    sync.Mutex
	cache *gocache.Cache
}

func NewMemoryStepStore(cleanupInterval time.Duration) *MemoryStepStore {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	return &MemoryStepStore{cache: gocache.New(gocache.NoExpiration, cleanupInterval)}
}

func (s *MemoryStepStore) Claim(_ context.Context, subject string, step int64, ttl time.Duration) (bool, error) {
	if subject == "" {
		return false, errors.New("subject is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.cache.Get(subject); ok {
		if last, ok := v.(int64); ok && last >= step {
			return false, nil
		}
	}
	s.cache.Set(subject, step, ttl)
	return true, nil
}
