package stores

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const memoryLockStripes = 64

// MemoryChallengeStore keeps challenges in process memory. It suits single
// instance deployments and tests; go-cache's janitor evicts records once
// their retention lapses.
type MemoryChallengeStore struct {
	cache *gocache.Cache
	locks [memoryLockStripes]sync.Mutex
}

func NewMemoryChallengeStore(cleanupInterval time.Duration) *MemoryChallengeStore {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	return &MemoryChallengeStore{
		cache: gocache.New(gocache.NoExpiration, cleanupInterval),
	}
}

func (s *MemoryChallengeStore) lock(key string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	mu := &s.locks[h.Sum32()%memoryLockStripes]
	mu.Lock()
	return mu.Unlock
}

func (s *MemoryChallengeStore) load(key string) (*ChallengeRecord, bool) {
	v, ok := s.cache.Get(key)
	if !ok {
		return nil, false
	}
	rec, ok := v.(ChallengeRecord)
	if !ok {
		return nil, false
	}
	return &rec, true
}

// store keeps the remaining TTL of the existing item.
func (s *MemoryChallengeStore) store(key string, rec *ChallengeRecord) {
	ttl := gocache.DefaultExpiration
	if _, exp, ok := s.cache.GetWithExpiration(key); ok && !exp.IsZero() {
		ttl = time.Until(exp)
		if ttl <= 0 {
			ttl = time.Millisecond
		}
	}
	s.cache.Set(key, *rec, ttl)
}

func (s *MemoryChallengeStore) Put(_ context.Context, rec *ChallengeRecord, opts PutOptions) error {
	if rec == nil || rec.Subject == "" || rec.Channel == "" {
		return errors.New("invalid challenge record")
	}

	key := challengeKey("", rec.Subject, rec.Channel)
	unlock := s.lock(key)
	defer unlock()

	if prev, ok := s.load(key); ok && opts.Cooldown > 0 {
		if elapsed := opts.Now.Sub(prev.IssuedAt); elapsed < opts.Cooldown {
			return &CooldownError{RetryAfter: opts.Cooldown - elapsed}
		}
	}

	rec.Attempts = 0
	rec.State = StateIssued
	s.cache.Set(key, *rec, recordTTL(rec, opts))
	return nil
}

func (s *MemoryChallengeStore) Get(_ context.Context, subject, channel string) (*ChallengeRecord, error) {
	key := challengeKey("", subject, channel)
	unlock := s.lock(key)
	defer unlock()

	rec, ok := s.load(key)
	if !ok {
		return nil, ErrChallengeNotFound
	}
	return rec, nil
}

func (s *MemoryChallengeStore) Reserve(_ context.Context, subject, channel string, now time.Time) (*ChallengeRecord, error) {
	key := challengeKey("", subject, channel)
	unlock := s.lock(key)
	defer unlock()

	rec, ok := s.load(key)
	if !ok {
		return nil, ErrChallengeNotFound
	}

	switch rec.State {
	case StateIssued:
	case StateExpired:
		return nil, ErrChallengeExpired
	case StateLocked:
		return nil, ErrChallengeLocked
	default:
		return nil, ErrChallengeNotFound
	}

	if now.After(rec.ExpiresAt) {
		rec.State = StateExpired
		s.store(key, rec)
		return nil, ErrChallengeExpired
	}
	if rec.Attempts >= rec.MaxAttempts {
		rec.State = StateLocked
		s.store(key, rec)
		return nil, ErrChallengeLocked
	}

	rec.Attempts++
	s.store(key, rec)

	snapshot := *rec
	return &snapshot, nil
}

func (s *MemoryChallengeStore) Consume(_ context.Context, subject, channel, id string, now time.Time) error {
	key := challengeKey("", subject, channel)
	unlock := s.lock(key)
	defer unlock()

	rec, ok := s.load(key)
	if !ok || rec.ID != id || rec.State != StateIssued {
		return ErrChallengeNotFound
	}
	if now.After(rec.ExpiresAt) {
		rec.State = StateExpired
		s.store(key, rec)
		return ErrChallengeExpired
	}

	rec.State = StateConsumed
	s.store(key, rec)
	return nil
}

func (s *MemoryChallengeStore) Burn(_ context.Context, subject, channel string, now time.Time) (bool, error) {
	key := challengeKey("", subject, channel)
	unlock := s.lock(key)
	defer unlock()

	rec, ok := s.load(key)
	if !ok || rec.State != StateIssued {
		return false, nil
	}
	if now.After(rec.ExpiresAt) {
		rec.State = StateExpired
		s.store(key, rec)
		return false, nil
	}

	rec.State = StateLocked
	s.store(key, rec)
	return true, nil
}
