package limiters

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const guardLockStripes = 64

// MemoryGuard keeps lockout ledgers in process memory.
type MemoryGuard struct {
	cache *gocache.Cache
	locks [guardLockStripes]sync.Mutex
}

func NewMemoryGuard(cleanupInterval time.Duration) *MemoryGuard {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	return &MemoryGuard{cache: gocache.New(gocache.NoExpiration, cleanupInterval)}
}

func (g *MemoryGuard) lock(key string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	mu := &g.locks[h.Sum32()%guardLockStripes]
	mu.Lock()
	return mu.Unlock
}

func (g *MemoryGuard) load(key string) LockoutState {
	if v, ok := g.cache.Get(key); ok {
		if st, ok := v.(LockoutState); ok {
			return st
		}
	}
	return LockoutState{}
}

func (g *MemoryGuard) CheckAndRecord(_ context.Context, subject, class string, outcome Outcome, policy LockoutPolicy, now time.Time) (Decision, error) {
	if err := policy.validate(); err != nil {
		return Decision{}, err
	}

	key := ledgerKey("", subject, class)
	unlock := g.lock(key)
	defer unlock()

	st := g.load(key)
	before := st
	decision, drop := step(&st, outcome, policy, now)

	switch {
	case st == (LockoutState{}):
		if drop || before != st {
			g.cache.Delete(key)
		}
	case st != before:
		g.cache.Set(key, st, ledgerTTL(st, policy, now))
	}
	return decision, nil
}

func (g *MemoryGuard) State(_ context.Context, subject, class string) (LockoutState, bool, error) {
	key := ledgerKey("", subject, class)
	unlock := g.lock(key)
	defer unlock()

	v, ok := g.cache.Get(key)
	if !ok {
		return LockoutState{}, false, nil
	}
	st, ok := v.(LockoutState)
	return st, ok, nil
}

func (g *MemoryGuard) Reset(_ context.Context, subject, class string) error {
	g.cache.Delete(ledgerKey("", subject, class))
	return nil
}
