package pagination

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// BatchProcessorConfig holds batch processor configuration.
type BatchProcessorConfig struct {
	// Concurrency is the number of batches transformed in parallel.
	Concurrency int

	// Timeout bounds one batch transform. Zero means no bound.
	Timeout time.Duration

	Logger zerolog.Logger
}

// BatchFunc transforms one page of items. index is the 0-based batch position.
type BatchFunc[T, R any] func(ctx context.Context, index int, batch []T) (R, error)

type batchJob[T any] struct {
	index int
	items []T
}

type batchOutcome[R any] struct {
	index  int
	result R
}

// ProcessBatches applies fn to every batch of it using a pool of workers.
// Each result is stored under the index of its batch, so results come back in
// batch order regardless of completion order. On the first failure the
// remaining work is cancelled and the results completed so far are returned,
// in batch order, with the error.
func ProcessBatches[T, R any](ctx context.Context, it *Iterator[T], cfg BatchProcessorConfig, fn BatchFunc[T, R]) ([]R, error) {
	workers := max(cfg.Concurrency, 1)
	start := time.Now()
	endpoint := it.Manager().Endpoint()

	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan batchJob[T])
	outcomes := make(chan batchOutcome[R], workers)

	// Producer: pages are fetched in order and handed out by index.
	g.Go(func() error {
		defer close(jobs)
		index := 0
		for batch, err := range it.Batches(gctx) {
			if err != nil {
				return err
			}
			select {
			case jobs <- batchJob[T]{index: index, items: batch}:
				index++
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		g.Go(func() error {
			defer wg.Done()
			processed := 0
			for job := range jobs {
				result, err := runBatch(gctx, cfg.Timeout, job, fn)
				if err != nil {
					cfg.Logger.Warn().
						Err(err).
						Int("worker_id", w).
						Int("batch", job.index).
						Msg("Batch transform failed")
					return fmt.Errorf("batch %d: %w", job.index, err)
				}
				select {
				case outcomes <- batchOutcome[R]{index: job.index, result: result}:
				case <-gctx.Done():
					return gctx.Err()
				}
				processed++
			}
			if processed > 0 {
				cfg.Logger.Debug().
					Int("worker_id", w).
					Int("batches_processed", processed).
					Msg("Worker completed")
			}
			return nil
		})
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	results := make(map[int]R)
	for o := range outcomes {
		results[o.index] = o.result
	}
	err := g.Wait()

	ordered := make([]R, 0, len(results))
	for _, idx := range slices.Sorted(maps.Keys(results)) {
		ordered = append(ordered, results[idx])
	}

	if err != nil {
		cfg.Logger.Warn().
			Err(err).
			Str("endpoint", endpoint).
			Int("completed_batches", len(ordered)).
			Msg("Batch processing stopped - returning partial results")
		return ordered, err
	}

	cfg.Logger.Info().
		Str("endpoint", endpoint).
		Int("batches", len(ordered)).
		Int("workers", workers).
		Dur("duration", time.Since(start)).
		Msg("Batch processing complete")
	return ordered, nil
}

func runBatch[T, R any](ctx context.Context, timeout time.Duration, job batchJob[T], fn BatchFunc[T, R]) (R, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return fn(ctx, job.index, job.items)
}
