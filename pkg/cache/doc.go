// Package cache stores GET responses of the marketing API in Redis.
//
// Entries live until the freshness lifetime announced by the server runs out:
// Cache-Control max-age first, then the Expires header, then DefaultTTL.
// Entries carrying an ETag or Last-Modified value can be revalidated with a
// conditional request, and a 304 Not Modified answer extends the stored entry
// instead of transferring the body again.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	manager := cache.NewManager(redisClient)
//
//	key := cache.Key{
//		Endpoint: "/v3/campaigns",
//		Query:    url.Values{"page": []string{"2"}},
//		Account:  "acme",
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from the API, then:
//		entry, _ = cache.ResponseToEntry(resp)
//		_ = manager.Set(ctx, key, entry)
//	}
//
// # Conditional Requests
//
//	stale, err := manager.Lookup(ctx, key)
//	if err == nil && cache.CanRevalidate(stale) {
//		cache.AddConditionalHeaders(req, stale)
//	}
//	// on 304:
//	_ = manager.Touch(ctx, key, cache.ExpiresFromHeaders(resp.Header, time.Now()))
//
// # Metrics
//
//   - mailer_cache_hits_total
//   - mailer_cache_misses_total
//   - mailer_cache_stored_bytes_total
//   - mailer_cache_revalidations_total
//   - mailer_cache_invalidations_total
//   - mailer_cache_errors_total{operation}
package cache
