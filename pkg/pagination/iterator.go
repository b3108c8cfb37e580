package pagination

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/Sternrassler/mailer-client/pkg/apierr"
	"github.com/rs/zerolog"
)

type iteratorConfig struct {
	initial        Options
	maxResults     int
	retryAttempts  int
	retryBaseDelay time.Duration
	logger         zerolog.Logger
}

// IteratorOption configures an Iterator.
type IteratorOption func(*iteratorConfig)

// WithInitialOptions sets the options of the first page.
func WithInitialOptions(opts Options) IteratorOption {
	return func(c *iteratorConfig) { c.initial = opts }
}

// WithMaxResults caps the number of items delivered. Zero means no cap.
func WithMaxResults(n int) IteratorOption {
	return func(c *iteratorConfig) { c.maxResults = n }
}

// WithRetryAttempts sets how many times a page fetch is tried. Values below 1
// are treated as 1.
func WithRetryAttempts(n int) IteratorOption {
	return func(c *iteratorConfig) { c.retryAttempts = n }
}

// WithRetryBaseDelay sets the wait after the first failed try; it doubles
// after every further failure.
func WithRetryBaseDelay(d time.Duration) IteratorOption {
	return func(c *iteratorConfig) { c.retryBaseDelay = d }
}

// WithLogger sets the iterator logger.
func WithLogger(logger zerolog.Logger) IteratorOption {
	return func(c *iteratorConfig) { c.logger = logger }
}

// Iterator lazily walks a paginated endpoint. Pages are fetched strictly in
// order, and page N+1 is not requested before the items of page N have been
// delivered. Every traversal restarts from the initial options and keeps its
// position in local state, so one Iterator can be traversed any number of
// times, also concurrently.
type Iterator[T any] struct {
	manager *Manager
	fetch   FetchFunc
	config  iteratorConfig

	sleep func(ctx context.Context, d time.Duration) error
}

// NewIterator creates an iterator over the endpoint managed by m.
func NewIterator[T any](m *Manager, fetch FetchFunc, opts ...IteratorOption) *Iterator[T] {
	cfg := iteratorConfig{
		retryAttempts:  3,
		retryBaseDelay: time.Second,
		logger:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.initial == nil {
		cfg.initial = m.InitialOptions()
	}
	cfg.retryAttempts = max(cfg.retryAttempts, 1)
	cfg.logger = cfg.logger.With().Str("endpoint", m.Endpoint()).Logger()

	return &Iterator[T]{
		manager: m,
		fetch:   fetch,
		config:  cfg,
		sleep:   sleepContext,
	}
}

// Manager returns the manager the iterator uses.
func (it *Iterator[T]) Manager() *Manager { return it.manager }

// Pages yields each non-empty page in order. On failure it yields a nil
// result with the error and stops. An empty page ends the sequence without
// being yielded.
func (it *Iterator[T]) Pages(ctx context.Context) iter.Seq2[*Result[T], error] {
	return func(yield func(*Result[T], error) bool) {
		opts := it.config.initial
		delivered := 0

		for opts != nil {
			res, err := it.fetchPage(ctx, opts)
			if err != nil {
				yield(nil, err)
				return
			}
			if len(res.Data) == 0 {
				return
			}

			limit := it.config.maxResults
			capped := limit > 0 && delivered+len(res.Data) >= limit
			if capped {
				res.Data = res.Data[:limit-delivered]
			}
			delivered += len(res.Data)
			itemsYieldedTotal.WithLabelValues(it.manager.Endpoint()).Add(float64(len(res.Data)))

			if !yield(res, nil) || capped {
				return
			}
			opts = it.manager.NextPageOptions(opts, res.Pagination)
		}
	}
}

// Batches yields the items of each page as one slice.
func (it *Iterator[T]) Batches(ctx context.Context) iter.Seq2[[]T, error] {
	return func(yield func([]T, error) bool) {
		for page, err := range it.Pages(ctx) {
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(page.Data, nil) {
				return
			}
		}
	}
}

// All yields every item in order. On failure it yields the zero value with
// the error and stops.
func (it *Iterator[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for page, err := range it.Pages(ctx) {
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}
			for _, item := range page.Data {
				if !yield(item, nil) {
					return
				}
			}
		}
	}
}

func (it *Iterator[T]) fetchPage(ctx context.Context, opts Options) (*Result[T], error) {
	endpoint := it.manager.Endpoint()
	params, err := it.manager.BuildQueryParams(opts)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		pageFetchDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}()

	var lastErr error
	for attempt := 0; attempt < it.config.retryAttempts; attempt++ {
		if attempt > 0 {
			delay := it.config.retryBaseDelay << (attempt - 1)
			pageRetriesTotal.WithLabelValues(endpoint).Inc()
			it.config.logger.Warn().
				Err(lastErr).
				Int("attempt", attempt+1).
				Dur("delay", delay).
				Msg("Retrying page fetch")
			if err := it.sleep(ctx, delay); err != nil {
				return nil, fmt.Errorf("fetch %s page: %w (last error: %w)", endpoint, err, lastErr)
			}
		}

		raw, err := it.fetch(ctx, params)
		if err == nil {
			res, perr := ParseResponse[T](it.manager, raw, opts)
			if perr != nil {
				return nil, perr
			}
			pagesFetchedTotal.WithLabelValues(endpoint, it.manager.Strategy().String()).Inc()
			it.config.logger.Debug().
				Int("items", len(res.Data)).
				Bool("has_more", res.Pagination.HasMore()).
				Stringer("signal", res.Pagination.Signal()).
				Msg("Page fetched")
			return res, nil
		}

		lastErr = err
		if !retryablePageError(ctx, err) {
			break
		}
	}

	return nil, fmt.Errorf("fetch %s page: %w", endpoint, lastErr)
}

func retryablePageError(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return false
	}
	return apierr.KindOf(err) != apierr.KindValidation
}

// ToSlice collects every item.
func (it *Iterator[T]) ToSlice(ctx context.Context) ([]T, error) {
	var items []T
	for item, err := range it.All(ctx) {
		if err != nil {
			return items, err
		}
		items = append(items, item)
	}
	return items, nil
}

// ForEach calls fn for every item and stops at the first error.
func (it *Iterator[T]) ForEach(ctx context.Context, fn func(T) error) error {
	for item, err := range it.All(ctx) {
		if err != nil {
			return err
		}
		if err := fn(item); err != nil {
			return err
		}
	}
	return nil
}

// Filter collects the items for which keep returns true.
func (it *Iterator[T]) Filter(ctx context.Context, keep func(T) bool) ([]T, error) {
	var items []T
	for item, err := range it.All(ctx) {
		if err != nil {
			return items, err
		}
		if keep(item) {
			items = append(items, item)
		}
	}
	return items, nil
}

// Find returns the first item matching match. No further pages are fetched
// once it is found.
func (it *Iterator[T]) Find(ctx context.Context, match func(T) bool) (T, bool, error) {
	var zero T
	for item, err := range it.All(ctx) {
		if err != nil {
			return zero, false, err
		}
		if match(item) {
			return item, true, nil
		}
	}
	return zero, false, nil
}

// Count returns the number of items.
func (it *Iterator[T]) Count(ctx context.Context) (int, error) {
	n := 0
	for batch, err := range it.Batches(ctx) {
		if err != nil {
			return n, err
		}
		n += len(batch)
	}
	return n, nil
}

// Map collects fn applied to every item.
func Map[T, U any](ctx context.Context, it *Iterator[T], fn func(T) U) ([]U, error) {
	var out []U
	for item, err := range it.All(ctx) {
		if err != nil {
			return out, err
		}
		out = append(out, fn(item))
	}
	return out, nil
}

// Stats summarises a full traversal.
type Stats struct {
	TotalItems       int      `json:"total_items"`
	TotalBatches     int      `json:"total_batches"`
	AverageBatchSize float64  `json:"average_batch_size"`
	Strategy         Strategy `json:"strategy"`
}

// Stats drives the iterator to completion and reports what it delivered.
func (it *Iterator[T]) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{Strategy: it.manager.Strategy()}
	for batch, err := range it.Batches(ctx) {
		if err != nil {
			return stats, err
		}
		stats.TotalBatches++
		stats.TotalItems += len(batch)
	}
	if stats.TotalBatches > 0 {
		stats.AverageBatchSize = float64(stats.TotalItems) / float64(stats.TotalBatches)
	}
	return stats, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
