package pagination

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// SourceResult records a source that was drained completely.
type SourceResult struct {
	Index    int    `json:"index"`
	Endpoint string `json:"endpoint"`
	Items    int    `json:"items"`
}

// SourceError records a source that was dropped after an error. Items
// delivered before the error stay in the merged output.
type SourceError struct {
	Index    int    `json:"index"`
	Endpoint string `json:"endpoint"`
	Items    int    `json:"items"`
	Err      error  `json:"-"`
}

// Error implements the error interface.
func (e SourceError) Error() string {
	return fmt.Sprintf("source %d (%s) failed after %d items: %v", e.Index, e.Endpoint, e.Items, e.Err)
}

// Unwrap returns the source error.
func (e SourceError) Unwrap() error { return e.Err }

// MergeReport summarises a concurrent merge. Sources abandoned because the
// consumer stopped early appear in neither list.
type MergeReport struct {
	Succeeded []SourceResult `json:"succeeded"`
	Failed    []SourceError  `json:"failed,omitempty"`
	Items     int            `json:"items"`
}

// Err joins the source failures, or returns nil when every source succeeded.
func (r *MergeReport) Err() error {
	if r == nil || len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failed))
	for i, f := range r.Failed {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// Partial reports whether some sources failed while others delivered data.
func (r *MergeReport) Partial() bool {
	return r != nil && len(r.Failed) > 0 && r.Items > 0
}

// ConcurrentIterator merges several iterators, draining up to concurrency
// sources at a time. Items are delivered as they arrive, so the order across
// sources is not deterministic; the order within one source is kept.
type ConcurrentIterator[T any] struct {
	sources     []*Iterator[T]
	concurrency int
	logger      zerolog.Logger
}

// NewConcurrentIterator creates a merging iterator. concurrency values below
// 1 are treated as 1.
func NewConcurrentIterator[T any](sources []*Iterator[T], concurrency int, logger zerolog.Logger) *ConcurrentIterator[T] {
	return &ConcurrentIterator[T]{
		sources:     slices.Clone(sources),
		concurrency: max(concurrency, 1),
		logger:      logger,
	}
}

// Items yields merged items until every source is exhausted or dropped. A
// failing source does not end the sequence; it is recorded in report, which
// is complete once the sequence ends. Sources not started before ctx is done
// are recorded as failed with the context error. Item counts cover delivered
// items only. report may be nil.
func (c *ConcurrentIterator[T]) Items(ctx context.Context, report *MergeReport) iter.Seq[T] {
	return func(yield func(T) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		var (
			mu      sync.Mutex
			summary MergeReport
			stopped atomic.Bool
		)
		items := make(chan sourcedItem[T])

		var g errgroup.Group
		g.SetLimit(c.concurrency)
		go func() {
			for i, src := range c.sources {
				if err := ctx.Err(); err != nil {
					if !stopped.Load() {
						mu.Lock()
						for j, skipped := range c.sources[i:] {
							summary.Failed = append(summary.Failed, SourceError{
								Index:    i + j,
								Endpoint: skipped.Manager().Endpoint(),
								Err:      err,
							})
						}
						mu.Unlock()
					}
					break
				}
				g.Go(func() error {
					n, err := c.drain(ctx, i, src, items)
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err != nil && !stopped.Load():
						endpoint := src.Manager().Endpoint()
						failedSourcesTotal.WithLabelValues(endpoint).Inc()
						c.logger.Warn().
							Err(err).
							Int("source", i).
							Str("endpoint", endpoint).
							Int("items", n).
							Msg("Dropping failed pagination source")
						summary.Failed = append(summary.Failed, SourceError{Index: i, Endpoint: endpoint, Err: err})
					case err == nil:
						summary.Succeeded = append(summary.Succeeded, SourceResult{Index: i, Endpoint: src.Manager().Endpoint()})
					}
					return nil
				})
			}
			_ = g.Wait()
			close(items)
		}()

		delivered := make([]int, len(c.sources))
		for item := range items {
			if stopped.Load() {
				continue
			}
			delivered[item.source]++
			if !yield(item.value) {
				stopped.Store(true)
				cancel()
			}
		}

		if report != nil {
			for i := range summary.Succeeded {
				summary.Succeeded[i].Items = delivered[summary.Succeeded[i].Index]
			}
			for i := range summary.Failed {
				summary.Failed[i].Items = delivered[summary.Failed[i].Index]
			}
			for _, n := range delivered {
				summary.Items += n
			}
			slices.SortFunc(summary.Succeeded, func(a, b SourceResult) int { return a.Index - b.Index })
			slices.SortFunc(summary.Failed, func(a, b SourceError) int { return a.Index - b.Index })
			*report = summary
		}
	}
}

type sourcedItem[T any] struct {
	source int
	value  T
}

// drain forwards every item of src and returns how many were forwarded.
func (c *ConcurrentIterator[T]) drain(ctx context.Context, index int, src *Iterator[T], out chan<- sourcedItem[T]) (int, error) {
	n := 0
	for item, err := range src.All(ctx) {
		if err != nil {
			return n, err
		}
		select {
		case out <- sourcedItem[T]{source: index, value: item}:
			n++
		case <-ctx.Done():
			return n, ctx.Err()
		}
	}
	return n, nil
}

// Collect drains the merge into a slice.
func (c *ConcurrentIterator[T]) Collect(ctx context.Context) ([]T, MergeReport) {
	var report MergeReport
	var items []T
	for item := range c.Items(ctx, &report) {
		items = append(items, item)
	}
	return items, report
}
