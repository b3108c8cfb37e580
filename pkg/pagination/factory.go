package pagination

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"time"

	"github.com/Sternrassler/mailer-client/pkg/apierr"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// Factory builds managers and iterators against one registry.
type Factory struct {
	registry *Registry
	logger   zerolog.Logger
}

// NewFactory creates a factory. A nil registry is replaced by NewDefaultRegistry.
func NewFactory(registry *Registry, logger zerolog.Logger) *Factory {
	if registry == nil {
		registry = NewDefaultRegistry()
	}
	return &Factory{
		registry: registry,
		logger:   logger.With().Str("component", "pagination").Logger(),
	}
}

// Registry returns the registry the factory resolves endpoints against.
func (f *Factory) Registry() *Registry { return f.registry }

// Manager creates a manager for endpoint.
func (f *Factory) Manager(endpoint string) *Manager {
	return NewManager(f.registry, endpoint)
}

// ValidatedManager creates a manager for endpoint after checking opts against
// its config. Invalid options yield a validation error and no manager.
func (f *Factory) ValidatedManager(endpoint string, opts Options) (*Manager, error) {
	m := f.Manager(endpoint)
	if err := m.Validate(opts); err != nil {
		return nil, err
	}
	return m, nil
}

// RegisterEndpoint adds or replaces an endpoint config.
func (f *Factory) RegisterEndpoint(name string, cfg EndpointConfig) error {
	if err := f.registry.Register(name, cfg); err != nil {
		return err
	}
	f.logger.Debug().
		Str("endpoint", name).
		Stringer("strategy", cfg.Strategy).
		Int("max_limit", cfg.MaxLimit).
		Msg("Pagination endpoint registered")
	return nil
}

// AllConfigs returns every registered endpoint config.
func (f *Factory) AllConfigs() map[string]EndpointConfig { return f.registry.All() }

// HasConfig reports whether name is registered.
func (f *Factory) HasConfig(name string) bool { return f.registry.Has(name) }

// NewIteratorFor creates an iterator for endpoint that logs through the
// factory logger unless opts say otherwise.
func NewIteratorFor[T any](f *Factory, endpoint string, fetch FetchFunc, opts ...IteratorOption) *Iterator[T] {
	opts = append([]IteratorOption{WithLogger(f.logger)}, opts...)
	return NewIterator[T](f.Manager(endpoint), fetch, opts...)
}

// SourceSpec describes one source of a concurrent merge.
type SourceSpec struct {
	Endpoint string
	Fetch    FetchFunc
	Options  []IteratorOption
}

// NewConcurrentIteratorFor creates a merging iterator over the given sources.
func NewConcurrentIteratorFor[T any](f *Factory, concurrency int, sources ...SourceSpec) *ConcurrentIterator[T] {
	iterators := make([]*Iterator[T], len(sources))
	for i, s := range sources {
		iterators[i] = NewIteratorFor[T](f, s.Endpoint, s.Fetch, s.Options...)
	}
	return NewConcurrentIterator(iterators, concurrency, f.logger)
}

// RobustConfig configures the fetch retry of CreateRobustIterator.
type RobustConfig struct {
	// MaxRetries is the number of retries after the first try.
	MaxRetries int

	// InitialInterval and MaxInterval bound the exponential backoff.
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// OnError is called after every failed try with the 1-based try number.
	OnError func(err error, attempt int)

	// ValidateResponse rejects a response; a rejection is retried like a fetch error.
	ValidateResponse func(*RawResponse) error
}

// DefaultRobustConfig returns 3 retries starting at 500ms, capped at 10s.
func DefaultRobustConfig() RobustConfig {
	return RobustConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// CreateRobustIterator creates an iterator whose fetch function is wrapped in
// its own retry with randomized exponential backoff, response validation and
// an error hook. The iterator's built-in retry is reduced to a single try
// unless opts set it explicitly.
func CreateRobustIterator[T any](f *Factory, endpoint string, fetch FetchFunc, cfg RobustConfig, opts ...IteratorOption) *Iterator[T] {
	robust := func(ctx context.Context, params url.Values) (*RawResponse, error) {
		attempt := 0
		op := func() (*RawResponse, error) {
			attempt++
			raw, err := fetch(ctx, params)
			if err == nil && cfg.ValidateResponse != nil {
				if verr := cfg.ValidateResponse(raw); verr != nil {
					err = fmt.Errorf("invalid response: %w", verr)
				}
			}
			if err == nil {
				return raw, nil
			}
			if cfg.OnError != nil {
				cfg.OnError(err, attempt)
			}
			if apierr.KindOf(err) == apierr.KindValidation {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}

		b := backoff.NewExponentialBackOff()
		if cfg.InitialInterval > 0 {
			b.InitialInterval = cfg.InitialInterval
		}
		if cfg.MaxInterval > 0 {
			b.MaxInterval = cfg.MaxInterval
		}
		b.MaxElapsedTime = 0

		policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(cfg.MaxRetries, 0))), ctx)
		return backoff.RetryNotifyWithData(op, policy, func(err error, d time.Duration) {
			f.logger.Warn().
				Err(err).
				Str("endpoint", endpoint).
				Int("attempt", attempt).
				Dur("delay", d).
				Msg("Robust fetch retrying")
		})
	}

	opts = append([]IteratorOption{WithRetryAttempts(1)}, opts...)
	return NewIteratorFor[T](f, endpoint, robust, opts...)
}

// MergeOptions controls MergeResults.
type MergeOptions[T any] struct {
	// Concurrent drains the iterators through a ConcurrentIterator.
	Concurrent  bool
	Concurrency int

	// Key de-duplicates items; the first item seen for a key wins.
	Key func(T) string

	// Compare sorts the merged items (stable).
	Compare func(a, b T) int
}

// MergeResults drains iterators into one slice. Sequential merges stop at the
// first error; concurrent merges keep the items of healthy sources and return
// the joined source failures. In both cases the items gathered so far are
// returned with the error.
func MergeResults[T any](ctx context.Context, opts MergeOptions[T], iterators ...*Iterator[T]) ([]T, error) {
	var (
		items []T
		err   error
	)

	if opts.Concurrent {
		concurrency := opts.Concurrency
		if concurrency <= 0 {
			concurrency = len(iterators)
		}
		var report MergeReport
		items, report = NewConcurrentIterator(iterators, concurrency, zerolog.Nop()).Collect(ctx)
		err = report.Err()
		if err == nil {
			err = ctx.Err()
		}
	} else {
		for _, it := range iterators {
			part, perr := it.ToSlice(ctx)
			items = append(items, part...)
			if perr != nil {
				err = perr
				break
			}
		}
	}

	if opts.Key != nil {
		seen := make(map[string]struct{}, len(items))
		items = slices.DeleteFunc(items, func(item T) bool {
			k := opts.Key(item)
			if _, dup := seen[k]; dup {
				return true
			}
			seen[k] = struct{}{}
			return false
		})
	}
	if opts.Compare != nil {
		slices.SortStableFunc(items, opts.Compare)
	}
	return items, err
}
