package resilience

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// QueueStats is a snapshot of the request queue.
type QueueStats struct {
	Active        int `json:"active"`
	Queued        int `json:"queued"`
	MaxConcurrent int `json:"max_concurrent"`
}

// RequestQueue admits work in FIFO order with at most MaxConcurrent
// operations running at once. Completion order is not guaranteed.
type RequestQueue struct {
	sem    *semaphore.Weighted
	max    int
	active atomic.Int64
	queued atomic.Int64
}

// NewRequestQueue creates a queue. maxConcurrent values below 1 are treated as 1.
func NewRequestQueue(maxConcurrent int) *RequestQueue {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &RequestQueue{
		sem: semaphore.NewWeighted(int64(maxConcurrent)),
		max: maxConcurrent,
	}
}

// Do waits for admission and runs fn, returning its outcome. A caller whose
// context ends while still queued leaves the queue without running fn.
func (q *RequestQueue) Do(ctx context.Context, fn func(context.Context) error) error {
	requestQueueDepth.Set(float64(q.queued.Add(1)))
	err := q.sem.Acquire(ctx, 1)
	requestQueueDepth.Set(float64(q.queued.Add(-1)))
	if err != nil {
		return fmt.Errorf("request queue: %w", err)
	}

	requestQueueActive.Set(float64(q.active.Add(1)))
	defer func() {
		requestQueueActive.Set(float64(q.active.Add(-1)))
		q.sem.Release(1)
	}()

	return fn(ctx)
}

// Submit is the value-returning form of RequestQueue.Do.
func Submit[T any](ctx context.Context, q *RequestQueue, fn func(context.Context) (T, error)) (T, error) {
	var result T
	err := q.Do(ctx, func(ctx context.Context) error {
		var err error
		result, err = fn(ctx)
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// Stats returns the current queue statistics.
func (q *RequestQueue) Stats() QueueStats {
	return QueueStats{
		Active:        int(q.active.Load()),
		Queued:        int(q.queued.Load()),
		MaxConcurrent: q.max,
	}
}
