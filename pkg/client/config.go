package client

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/Sternrassler/mailer-client/pkg/auth"
	"github.com/Sternrassler/mailer-client/pkg/pagination"
	"github.com/Sternrassler/mailer-client/pkg/ratelimit"
	"github.com/Sternrassler/mailer-client/pkg/resilience"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Config holds the client configuration.
type Config struct {
	// BaseURL of the marketing API, e.g. "https://api.example-mailer.com".
	BaseURL string

	// UserAgent header sent with every request.
	// Format: "AppName/Version (contact@example.com)"
	UserAgent string

	// Timeout bounds a single HTTP attempt. Retries get their own timeout.
	Timeout time.Duration

	// Auth applies credentials to requests. Nil sends unauthenticated requests.
	Auth auth.Provider

	// Redis is optional. When set, server rate limit state is shared through
	// it and EnableCache may be used.
	Redis redis.UniversalClient

	// Account namespaces Redis keys when several accounts share one Redis.
	Account string

	// EnableCache stores GET responses in Redis. Requires Redis.
	EnableCache bool

	// Rate limiting
	RateLimit    resilience.RateLimitConfig
	ServerLimits ratelimit.Config

	// Retry and circuit breaking
	Retry          resilience.RetryConfig
	CircuitBreaker resilience.CircuitBreakerConfig

	// MaxConcurrency bounds in-flight requests. Excess requests queue FIFO.
	MaxConcurrency int

	// Registry holds the pagination configuration per endpoint. Nil uses
	// pagination.NewDefaultRegistry().
	Registry *pagination.Registry

	// HTTPClient overrides the transport (for testing). Its Timeout is ignored
	// in favour of Timeout.
	HTTPClient *http.Client

	// Logger overrides the component logger.
	Logger *zerolog.Logger
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL, userAgent string) Config {
	return Config{
		BaseURL:        baseURL,
		UserAgent:      userAgent,
		Timeout:        30 * time.Second,
		RateLimit:      resilience.DefaultRateLimitConfig(),
		ServerLimits:   ratelimit.DefaultConfig(),
		Retry:          resilience.DefaultRetryConfig(),
		CircuitBreaker: resilience.DefaultCircuitBreakerConfig(),
		MaxConcurrency: 5,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base_url must use http or https (got %q)", c.BaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("base_url must include a host (got %q)", c.BaseURL)
	}

	if c.UserAgent == "" {
		return fmt.Errorf("user-agent is required")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be > 0 (got %v)", c.Timeout)
	}
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("max_concurrency must be >= 1 (got %d)", c.MaxConcurrency)
	}
	if c.EnableCache && c.Redis == nil {
		return fmt.Errorf("enable_cache requires a redis client")
	}

	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("rate_limit: %w", err)
	}
	if err := c.Retry.Validate(); err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	if err := c.CircuitBreaker.Validate(); err != nil {
		return fmt.Errorf("circuit_breaker: %w", err)
	}
	return nil
}
