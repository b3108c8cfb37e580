// Package client provides the marketing API client. Every call passes the
// request queue, the local rate limiter, the server rate limit tracker, the
// circuit breaker and the retry manager before reaching the network.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/mailer-client/pkg/apierr"
	"github.com/Sternrassler/mailer-client/pkg/auth"
	"github.com/Sternrassler/mailer-client/pkg/cache"
	"github.com/Sternrassler/mailer-client/pkg/logging"
	"github.com/Sternrassler/mailer-client/pkg/pagination"
	"github.com/Sternrassler/mailer-client/pkg/ratelimit"
	"github.com/Sternrassler/mailer-client/pkg/resilience"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for API client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailer_requests_total",
		Help: "Total API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mailer_request_duration_seconds",
		Help:    "API request duration in seconds by endpoint, including queueing and retries",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailer_errors_total",
		Help: "Total API errors surfaced to callers by kind",
	}, []string{"kind"})
)

// Client is the marketing API client.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	config     Config
	logger     zerolog.Logger

	auth    auth.Provider
	queue   *resilience.RequestQueue
	limiter *resilience.RateLimiter
	tracker *ratelimit.Tracker
	breaker *resilience.CircuitBreaker
	retry   *resilience.RetryManager
	cache   *cache.Manager
	factory *pagination.Factory
}

// New creates a client. The configuration is validated before anything is
// constructed.
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.NewLogger("mailer-client")
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	baseURL, _ := url.Parse(cfg.BaseURL)

	limiter, err := resilience.NewRateLimiter(cfg.RateLimit, logger)
	if err != nil {
		return nil, fmt.Errorf("create rate limiter: %w", err)
	}

	httpClient := &http.Client{}
	if cfg.HTTPClient != nil {
		clone := *cfg.HTTPClient
		httpClient = &clone
	}
	// Per-attempt deadlines come from the request context.
	httpClient.Timeout = 0

	c := &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		config:     cfg,
		logger:     logger,
		auth:       cfg.Auth,
		queue:      resilience.NewRequestQueue(cfg.MaxConcurrency),
		limiter:    limiter,
		breaker:    resilience.NewCircuitBreaker(baseURL.Host, cfg.CircuitBreaker, logger),
		retry:      resilience.NewRetryManager(cfg.Retry, logger),
		factory:    pagination.NewFactory(cfg.Registry, logger),
	}

	if cfg.RateLimit.RespectServerLimits {
		var store ratelimit.Store
		if cfg.Redis != nil {
			store = ratelimit.NewRedisStore(cfg.Redis, cfg.Account)
		}
		c.tracker = ratelimit.NewTracker(store, cfg.ServerLimits, logger)
	}

	if cfg.EnableCache {
		c.cache = cache.NewManager(cfg.Redis)
	}

	return c, nil
}

// Do performs a request through the resilience pipeline and returns the
// fully read response. Non-2xx responses are returned as *apierr.Error.
func (c *Client) Do(ctx context.Context, r Request) (*Response, error) {
	r.Method = normalizeMethod(r.Method)
	endpoint := r.endpoint()
	requestID := uuid.NewString()
	logger := c.logger.With().
		Str("endpoint", endpoint).
		Str("method", r.Method).
		Str("request_id", requestID).
		Logger()

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	cacheKey := c.cacheKey(r)
	var stale *cache.Entry
	if c.cache != nil && r.cacheable() {
		entry, err := c.cache.Get(ctx, cacheKey)
		switch {
		case err == nil:
			logger.Debug().Bool("cache_hit", true).Dur("ttl", entry.TTL()).Msg("Serving response from cache")
			requestsTotal.WithLabelValues(endpoint, "cache").Inc()
			return responseFromEntry(entry, requestID), nil
		case !errors.Is(err, cache.ErrCacheMiss):
			logger.Warn().Err(err).Msg("Cache get error")
		}
		if entry, err := c.cache.Lookup(ctx, cacheKey); err == nil && cache.CanRevalidate(entry) {
			stale = entry
		}
	}

	var resp *Response
	err := c.queue.Do(ctx, func(ctx context.Context) error {
		if err := c.limiter.Acquire(ctx); err != nil {
			return err
		}
		if c.tracker != nil {
			if err := c.tracker.Wait(ctx); err != nil {
				return err
			}
		}

		// Caller mistakes (4xx other than 408/429) bypass the breaker so
		// they cannot open the circuit for everyone else.
		var callerErr error
		err := c.breaker.Execute(ctx, r.operation(), func(ctx context.Context) error {
			err := c.retry.Execute(ctx, r.operation(), func(ctx context.Context) error {
				var err error
				resp, err = c.attempt(ctx, r, requestID, stale, logger)
				return err
			})
			if isCallerError(err) {
				callerErr = err
				return nil
			}
			return err
		})
		if callerErr != nil {
			return callerErr
		}
		return err
	})
	if err != nil {
		kind := apierr.KindOf(err)
		errorsTotal.WithLabelValues(kindLabel(kind)).Inc()
		logger.Error().Err(err).Str("error_kind", string(kind)).Msg("API request failed")
		return nil, err
	}

	if c.cache != nil && !r.cacheable() && r.Method != http.MethodHead {
		for _, scope := range invalidationScopes(r) {
			if n, err := c.cache.InvalidateEndpoint(ctx, scope); err != nil {
				logger.Warn().Err(err).Str("scope", scope).Msg("Failed to invalidate cached responses")
			} else if n > 0 {
				logger.Debug().Int("entries", n).Str("scope", scope).Msg("Invalidated cached responses after write")
			}
		}
	}

	return resp, nil
}

// invalidationScopes returns the cache scopes a write makes stale: the
// written path and, for writes to an item (PUT, PATCH, DELETE), the
// collection containing it.
func invalidationScopes(r Request) []string {
	scopes := []string{r.Path}
	if r.Method == http.MethodPost {
		return scopes
	}
	if parent := path.Dir(strings.TrimSuffix(r.Path, "/")); strings.Count(parent, "/") > 1 {
		scopes = append(scopes, parent)
	}
	return scopes
}

// attempt performs one HTTP exchange bounded by the configured timeout.
func (c *Client) attempt(ctx context.Context, r Request, requestID string, stale *cache.Entry, logger zerolog.Logger) (*Response, error) {
	endpoint := r.endpoint()

	attemptCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := c.newHTTPRequest(attemptCtx, r, requestID)
	if err != nil {
		return nil, err
	}
	if c.auth != nil {
		if err := c.auth.Apply(attemptCtx, req); err != nil {
			return nil, err
		}
	}
	if stale != nil {
		cache.AddConditionalHeaders(req, stale)
		logger.Debug().Str("etag", stale.ETag).Msg("Making conditional request")
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, c.transportError(ctx, attemptCtx, r, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, c.transportError(ctx, attemptCtx, r, err)
	}

	requestsTotal.WithLabelValues(endpoint, strconv.Itoa(httpResp.StatusCode)).Inc()

	if c.tracker != nil {
		if err := c.tracker.UpdateFromHeaders(ctx, httpResp.Header); err != nil {
			logger.Warn().Err(err).Msg("Failed to update server rate limit from headers")
		}
	}

	if httpResp.StatusCode == http.StatusNotModified && stale != nil {
		expires := cache.ExpiresFromHeaders(httpResp.Header, time.Now())
		if err := c.cache.Touch(ctx, c.cacheKey(r), expires); err != nil {
			logger.Warn().Err(err).Msg("Failed to extend cached response")
		}
		logger.Debug().Msg("304 Not Modified - using cache")
		return responseFromEntry(stale, requestID), nil
	}

	if httpResp.StatusCode >= 400 {
		apiErr := apierr.FromResponse(httpResp.StatusCode, httpResp.Header, body)
		if httpResp.StatusCode == http.StatusUnauthorized && c.auth != nil {
			c.auth.Invalidate()
		}
		logger.Warn().
			Int("status_code", httpResp.StatusCode).
			Str("error_kind", string(apiErr.Kind)).
			Msg("API request error")
		return nil, apiErr
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       body,
		RequestID:  requestID,
	}

	if c.cache != nil && r.cacheable() && cache.IsCacheable(httpResp) {
		c.store(ctx, r, httpResp, body, logger)
	}

	return resp, nil
}

func (c *Client) store(ctx context.Context, r Request, httpResp *http.Response, body []byte, logger zerolog.Logger) {
	now := time.Now()
	entry := &cache.Entry{
		Data:       body,
		ETag:       httpResp.Header.Get("ETag"),
		Expires:    cache.ExpiresFromHeaders(httpResp.Header, now),
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header.Clone(),
		CachedAt:   now,
	}
	if lastMod, err := http.ParseTime(httpResp.Header.Get("Last-Modified")); err == nil {
		entry.LastModified = lastMod
	}

	if err := c.cache.Set(ctx, c.cacheKey(r), entry); err != nil {
		logger.Warn().Err(err).Msg("Failed to cache response")
		return
	}
	logger.Debug().Dur("ttl", entry.TTL()).Msg("Cached response")
}

// transportError classifies a failed exchange. A caller cancellation is
// returned as is so the retry manager stops.
func (c *Client) transportError(ctx, attemptCtx context.Context, r Request, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return apierr.Timeout(r.operation(), c.config.Timeout)
	}
	return apierr.Network(err)
}

func (c *Client) cacheKey(r Request) cache.Key {
	return cache.Key{Endpoint: r.Path, Query: r.Query, Account: c.config.Account}
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query})
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body})
}

// Put performs a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPut, Path: path, Body: body})
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: path})
}

// Close releases resources owned by the client. The Redis client passed in
// Config is owned by the caller and left open.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// Factory returns the pagination factory bound to the client's registry.
func (c *Client) Factory() *pagination.Factory {
	return c.factory
}

func isCallerError(err error) bool {
	if err == nil {
		return false
	}
	switch apierr.KindOf(err) {
	case apierr.KindValidation, apierr.KindNotFound, apierr.KindConflict,
		apierr.KindForbidden, apierr.KindClient:
		return true
	}
	return false
}

func kindLabel(kind apierr.Kind) string {
	if kind == "" {
		return "unknown"
	}
	return string(kind)
}
