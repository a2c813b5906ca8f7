package delivery

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestQueueRunsJobsBeforeClose(t *testing.T) {
	var ran atomic.Int32
	q := NewQueue(Config{Workers: 4, BufferSize: 32}, nil)
	for i := 0; i < 20; i++ {
		if !q.Enqueue(func(context.Context) error {
			ran.Add(1)
			return nil
		}) {
			t.Fatalf("job %d rejected", i)
		}
	}
	q.Close()

	if ran.Load() != 20 {
		t.Fatalf("expected 20 jobs, got %d", ran.Load())
	}
	if q.Enqueue(func(context.Context) error { return nil }) {
		t.Fatal("closed queue must reject jobs")
	}
}

func TestQueueReportsFailures(t *testing.T) {
	var (
		mu   sync.Mutex
		errs []error
	)
	boom := errors.New("smtp down")
	q := NewQueue(Config{Workers: 1}, func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	})
	q.Enqueue(func(context.Context) error { return boom })
	q.Close()

	if q.Failed() != 1 || len(errs) != 1 || !errors.Is(errs[0], boom) {
		t.Fatalf("expected one reported failure, got failed=%d errs=%v", q.Failed(), errs)
	}
}

func TestQueueDropsWhenFull(t *testing.T) {
	release := make(chan struct{})
	q := NewQueue(Config{Workers: 1, BufferSize: 1}, nil)

	accepted := 0
	for i := 0; i < 10; i++ {
		if q.Enqueue(func(context.Context) error {
			<-release
			return nil
		}) {
			accepted++
		}
	}
	if accepted > 2 || q.Dropped() < 8 {
		t.Fatalf("expected at most 2 accepted, got %d (dropped %d)", accepted, q.Dropped())
	}
	close(release)
	q.Close()
}

func TestQueueJobTimeout(t *testing.T) {
	var sawDeadline atomic.Bool
	q := NewQueue(Config{Workers: 1, JobTimeout: time.Second}, nil)
	q.Enqueue(func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		sawDeadline.Store(ok)
		return nil
	})
	q.Close()

	if !sawDeadline.Load() {
		t.Fatal("job context should carry a deadline")
	}
}

func TestQueueSurvivesPanickingJob(t *testing.T) {
	var (
		mu   sync.Mutex
		errs []error
		ran  atomic.Int32
	)
	q := NewQueue(Config{Workers: 1}, func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	})

	q.Enqueue(func(context.Context) error { panic("notifier bug") })
	q.Enqueue(func(context.Context) error {
		ran.Add(1)
		return nil
	})
	q.Close()

	if ran.Load() != 1 {
		t.Fatal("worker stopped after a panicking job")
	}
	if q.Panics() != 1 || q.Failed() != 1 {
		t.Fatalf("panics=%d failed=%d, want 1/1", q.Panics(), q.Failed())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(errs) != 1 || !strings.Contains(errs[0].Error(), "notifier bug") {
		t.Fatalf("unexpected reported errors %v", errs)
	}
}
