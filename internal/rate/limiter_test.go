package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestLimiterFixedWindow(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	counters := map[string]Counter{
		"redis":  New(rdb, "test"),
		"memory": NewMemory(),
	}
	rule := Rule{Limit: 3, Window: time.Minute}

	for name, c := range counters {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 0; i < 3; i++ {
				if _, err := c.Allow(ctx, "login", "10.0.0.1", rule); err != nil {
					t.Fatalf("hit %d: %v", i+1, err)
				}
			}

			retry, err := c.Allow(ctx, "login", "10.0.0.1", rule)
			if !errors.Is(err, ErrRateLimited) {
				t.Fatalf("expected rate limited, got %v", err)
			}
			if retry <= 0 || retry > time.Minute {
				t.Fatalf("unexpected retry-after %v", retry)
			}

			if _, err := c.Allow(ctx, "login", "10.0.0.2", rule); err != nil {
				t.Fatalf("other key should pass: %v", err)
			}
			if _, err := c.Allow(ctx, "forgot", "10.0.0.1", rule); err != nil {
				t.Fatalf("other bucket should pass: %v", err)
			}
		})
	}
}

func TestMemoryLimiterWindowRolls(t *testing.T) {
	l := NewMemory()
	now := time.Now()
	l.now = func() time.Time { return now }
	rule := Rule{Limit: 1, Window: time.Minute}
	ctx := context.Background()

	if _, err := l.Allow(ctx, "b", "k", rule); err != nil {
		t.Fatalf("first hit: %v", err)
	}
	if _, err := l.Allow(ctx, "b", "k", rule); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected limited, got %v", err)
	}

	now = now.Add(61 * time.Second)
	if _, err := l.Allow(ctx, "b", "k", rule); err != nil {
		t.Fatalf("window should have rolled: %v", err)
	}
}

func TestZeroRuleDisablesLimiter(t *testing.T) {
	l := NewMemory()
	for i := 0; i < 10; i++ {
		if _, err := l.Allow(context.Background(), "b", "k", Rule{}); err != nil {
			t.Fatalf("disabled rule should never limit: %v", err)
		}
	}
}
