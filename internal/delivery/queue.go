// Package delivery runs outbound notifications off the request path.
//
// A [Queue] is a bounded buffer drained by a fixed set of workers. Jobs that
// do not fit are dropped and counted; the caller already committed the state
// change the job reports on, so nothing is rolled back.
//
// # What this package must NOT do
//
//   - Import goCred or any sibling internal package.
//   - Retry jobs. A failed job is reported to the error hook once.
package delivery

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Job performs one delivery.
type Job func(ctx context.Context) error

// Config sizes the queue.
type Config struct {
	Workers    int
	BufferSize int
	// JobTimeout bounds each job; zero means no deadline.
	JobTimeout time.Duration
}

// Queue is an async job runner.
type Queue struct {
	cfg       Config
	jobs      chan Job
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	failed    atomic.Uint64
	panics    atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
	onError   func(error)
}

// NewQueue starts cfg.Workers workers. onError may be nil.
func NewQueue(cfg Config, onError func(error)) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 64
	}
	if onError == nil {
		onError = func(error) {}
	}

	q := &Queue{
		cfg:     cfg,
		jobs:    make(chan Job, cfg.BufferSize),
		done:    make(chan struct{}),
		onError: onError,
	}
	for i := 0; i < cfg.Workers; i++ {
		q.wg.Add(1)
		go q.run()
	}
	return q
}

func (q *Queue) run() {
	defer q.wg.Done()

	for {
		select {
		case job := <-q.jobs:
			q.exec(job)
		case <-q.done:
			for {
				select {
				case job := <-q.jobs:
					q.exec(job)
				default:
					return
				}
			}
		}
	}
}

func (q *Queue) exec(job Job) {
	ctx := context.Background()
	if q.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.cfg.JobTimeout)
		defer cancel()
	}
	if err := q.call(ctx, job); err != nil {
		q.failed.Add(1)
		q.onError(err)
	}
}

// call turns a panicking job into an error so the worker survives.
func (q *Queue) call(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			q.panics.Add(1)
			err = fmt.Errorf("delivery job panicked: %v", r)
		}
	}()
	return job(ctx)
}

// Enqueue reports whether the job was accepted.
func (q *Queue) Enqueue(job Job) bool {
	if q == nil || job == nil || q.closed.Load() {
		return false
	}
	select {
	case q.jobs <- job:
		return true
	case <-q.done:
		return false
	default:
		q.dropped.Add(1)
		return false
	}
}

// Close stops accepting jobs and waits for queued ones to finish.
func (q *Queue) Close() {
	if q == nil {
		return
	}
	q.closeOnce.Do(func() {
		q.closed.Store(true)
		close(q.done)
		q.wg.Wait()
	})
}

func (q *Queue) Dropped() uint64 {
	if q == nil {
		return 0
	}
	return q.dropped.Load()
}

func (q *Queue) Failed() uint64 {
	if q == nil {
		return 0
	}
	return q.failed.Load()
}

// Panics counts jobs that panicked. They are also counted by Failed.
func (q *Queue) Panics() uint64 {
	if q == nil {
		return 0
	}
	return q.panics.Load()
}
