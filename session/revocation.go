package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// ErrRevocationUnavailable wraps revocation backend failures.
var ErrRevocationUnavailable = errors.New("session revocation backend unavailable")

// RevocationStore remembers revoked session IDs until the session would have
// expired anyway.
type RevocationStore interface {
	Revoke(ctx context.Context, id string, until time.Time) error
	IsRevoked(ctx context.Context, id string) (bool, error)
}

// RedisRevocationStore keeps one key per revoked session.
type RedisRevocationStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisRevocationStore(redisClient redis.UniversalClient, prefix string) *RedisRevocationStore {
	if prefix == "" {
		prefix = "gcs"
	}
	return &RedisRevocationStore{redis: redisClient, prefix: prefix, now: time.Now}
}

func (s *RedisRevocationStore) key(id string) string {
	return s.prefix + ":revoked:" + id
}

// Revoke is idempotent. IDs whose expiry already passed are ignored.
func (s *RedisRevocationStore) Revoke(ctx context.Context, id string, until time.Time) error {
	ttl := until.Sub(s.now())
	if id == "" || ttl <= 0 {
		return nil
	}
	if err := s.redis.Set(ctx, s.key(id), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRevocationUnavailable, err)
	}
	return nil
}

func (s *RedisRevocationStore) IsRevoked(ctx context.Context, id string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRevocationUnavailable, err)
	}
	return n == 1, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *RedisRevocationStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRevocationUnavailable, err)
	}
	return time.Since(start), nil
}

// MemoryRevocationStore keeps revoked IDs in a go-cache map.
type MemoryRevocationStore struct {
	cache *gocache.Cache
	now   func() time.Time
}

func NewMemoryRevocationStore() *MemoryRevocationStore {
	return &MemoryRevocationStore{
		cache: gocache.New(gocache.NoExpiration, time.Minute),
		now:   time.Now,
	}
}

func (s *MemoryRevocationStore) Revoke(_ context.Context, id string, until time.Time) error {
	ttl := until.Sub(s.now())
	if id == "" || ttl <= 0 {
		return nil
	}
	s.cache.Set(id, struct{}{}, ttl)
	return nil
}

func (s *MemoryRevocationStore) IsRevoked(_ context.Context, id string) (bool, error) {
	_, ok := s.cache.Get(id)
	return ok, nil
}
