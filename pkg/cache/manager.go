package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates no fresh entry exists for the key.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates a stored entry could not be decoded.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// scanBatch is the COUNT hint for SCAN during invalidation.
const scanBatch = 100

// StaleRetention keeps revalidatable entries in Redis this long past their
// freshness so a conditional request can still reuse them.
const StaleRetention = time.Hour

// Manager stores entries in Redis with a TTL matching their freshness.
type Manager struct {
	redis redis.UniversalClient
}

// NewManager creates a cache manager. It panics on a nil client.
func NewManager(redisClient redis.UniversalClient) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Manager{redis: redisClient}
}

// Get returns the entry for key, or ErrCacheMiss when none is fresh.
func (m *Manager) Get(ctx context.Context, key Key) (*Entry, error) {
	data, err := m.redis.Get(ctx, key.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	if entry.IsExpired() {
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.Inc()
	return &entry, nil
}

// Set stores entry until it expires, plus StaleRetention when it can be
// revalidated. Expired entries without validators are not stored.
func (m *Manager) Set(ctx context.Context, key Key, entry *Entry) error {
	if entry == nil {
		return errors.New("cache entry cannot be nil")
	}

	ttl := entry.TTL()
	if CanRevalidate(entry) {
		ttl += StaleRetention
	}
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := m.redis.Set(ctx, key.String(), data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	CacheStoredBytes.Add(float64(len(data)))
	return nil
}

// Delete removes the entry for key.
func (m *Manager) Delete(ctx context.Context, key Key) error {
	if err := m.redis.Del(ctx, key.String()).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Touch extends a stored entry to expires, typically after a 304 Not Modified
// response. It returns ErrCacheMiss when the entry is gone.
func (m *Manager) Touch(ctx context.Context, key Key, expires time.Time) error {
	entry, err := m.Lookup(ctx, key)
	if err != nil {
		return err
	}

	entry.Expires = expires
	entry.CachedAt = time.Now()
	if err := m.Set(ctx, key, entry); err != nil {
		return err
	}
	Revalidations.Inc()
	return nil
}

// InvalidateEndpoint removes every entry stored for endpoint or its
// sub-resources and returns how many were removed.
func (m *Manager) InvalidateEndpoint(ctx context.Context, endpoint string) (int, error) {
	pattern, match := endpointScope(endpoint)

	var removed int
	var batch []string
	iter := m.redis.Scan(ctx, 0, pattern, scanBatch).Iterator()
	for iter.Next(ctx) {
		if !match(iter.Val()) {
			continue
		}
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			n, err := m.redis.Del(ctx, batch...).Result()
			if err != nil {
				CacheErrors.WithLabelValues("invalidate").Inc()
				return removed, fmt.Errorf("redis del: %w", err)
			}
			removed += int(n)
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		CacheErrors.WithLabelValues("invalidate").Inc()
		return removed, fmt.Errorf("redis scan: %w", err)
	}
	if len(batch) > 0 {
		n, err := m.redis.Del(ctx, batch...).Result()
		if err != nil {
			CacheErrors.WithLabelValues("invalidate").Inc()
			return removed, fmt.Errorf("redis del: %w", err)
		}
		removed += int(n)
	}

	Invalidations.Add(float64(removed))
	return removed, nil
}

// Lookup returns the stored entry even when it is no longer fresh, for use
// in conditional requests. It does not count hits or misses.
func (m *Manager) Lookup(ctx context.Context, key Key) (*Entry, error) {
	data, err := m.redis.Get(ctx, key.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	return &entry, nil
}
