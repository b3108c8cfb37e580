package resilience

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/mailer-client/pkg/apierr"
	"github.com/rs/zerolog"
)

// ErrContextCancelled is returned when the context is cancelled during a retry backoff.
var ErrContextCancelled = errors.New("context cancelled")

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// BaseDelay is the backoff before the first retry.
	BaseDelay time.Duration

	// MaxDelay caps every computed or server-suggested delay.
	MaxDelay time.Duration

	// ExponentialBase is the growth factor of the backoff, > 1.
	ExponentialBase float64

	// Jitter scales computed delays by a random factor in [0.5, 1.0].
	Jitter bool

	// RetryableStatusCodes lists HTTP statuses that are retried.
	RetryableStatusCodes []int

	// RetryableErrors lists case-insensitive message substrings that are retried.
	RetryableErrors []string
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:           3,
		BaseDelay:            1 * time.Second,
		MaxDelay:             30 * time.Second,
		ExponentialBase:      2.0,
		Jitter:               true,
		RetryableStatusCodes: []int{408, 429, 500, 502, 503, 504},
		RetryableErrors: []string{
			"connection reset",
			"connection refused",
			"broken pipe",
			"no such host",
			"timeout",
			"unexpected eof",
		},
	}
}

// Validate checks the configuration.
func (c RetryConfig) Validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0 (got %d)", c.MaxRetries)
	}
	if c.BaseDelay < 0 {
		return fmt.Errorf("base_delay must be >= 0 (got %v)", c.BaseDelay)
	}
	if c.MaxDelay < c.BaseDelay {
		return fmt.Errorf("max_delay (%v) must be >= base_delay (%v)", c.MaxDelay, c.BaseDelay)
	}
	if c.ExponentialBase <= 1 {
		return fmt.Errorf("exponential_base must be > 1 (got %v)", c.ExponentialBase)
	}
	return nil
}

// MarshalJSON encodes the configuration with snake_case names and delays in
// milliseconds, matching the update_retry_config arguments.
func (c RetryConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		MaxRetries           int      `json:"max_retries"`
		BaseDelayMS          int64    `json:"base_delay_ms"`
		MaxDelayMS           int64    `json:"max_delay_ms"`
		ExponentialBase      float64  `json:"exponential_base"`
		Jitter               bool     `json:"jitter"`
		RetryableStatusCodes []int    `json:"retryable_status_codes"`
		RetryableErrors      []string `json:"retryable_errors"`
	}{
		MaxRetries:           c.MaxRetries,
		BaseDelayMS:          c.BaseDelay.Milliseconds(),
		MaxDelayMS:           c.MaxDelay.Milliseconds(),
		ExponentialBase:      c.ExponentialBase,
		Jitter:               c.Jitter,
		RetryableStatusCodes: c.RetryableStatusCodes,
		RetryableErrors:      c.RetryableErrors,
	})
}

func (c RetryConfig) clone() RetryConfig {
	c.RetryableStatusCodes = slices.Clone(c.RetryableStatusCodes)
	c.RetryableErrors = slices.Clone(c.RetryableErrors)
	return c
}

// RetryOption changes a single field of a RetryConfig.
type RetryOption func(*RetryConfig)

// WithMaxRetries sets the number of retries.
func WithMaxRetries(n int) RetryOption {
	return func(c *RetryConfig) { c.MaxRetries = n }
}

// WithBaseDelay sets the initial backoff.
func WithBaseDelay(d time.Duration) RetryOption {
	return func(c *RetryConfig) { c.BaseDelay = d }
}

// WithMaxDelay sets the backoff cap.
func WithMaxDelay(d time.Duration) RetryOption {
	return func(c *RetryConfig) { c.MaxDelay = d }
}

// WithExponentialBase sets the backoff growth factor.
func WithExponentialBase(b float64) RetryOption {
	return func(c *RetryConfig) { c.ExponentialBase = b }
}

// WithJitter enables or disables jitter.
func WithJitter(enabled bool) RetryOption {
	return func(c *RetryConfig) { c.Jitter = enabled }
}

// WithRetryableStatusCodes replaces the retryable status codes.
func WithRetryableStatusCodes(codes ...int) RetryOption {
	return func(c *RetryConfig) { c.RetryableStatusCodes = slices.Clone(codes) }
}

// WithRetryableErrors replaces the retryable message substrings.
func WithRetryableErrors(substrings ...string) RetryOption {
	return func(c *RetryConfig) { c.RetryableErrors = slices.Clone(substrings) }
}

// RetryManager retries fallible operations with classification-aware
// exponential backoff. The configuration may be changed at runtime; each
// Execute call uses the configuration current at its start.
type RetryManager struct {
	mu     sync.RWMutex
	config RetryConfig
	logger zerolog.Logger

	random func() float64
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewRetryManager creates a retry manager.
func NewRetryManager(cfg RetryConfig, logger zerolog.Logger) *RetryManager {
	return &RetryManager{
		config: cfg.clone(),
		logger: logger,
		random: rand.Float64,
		sleep:  sleepContext,
	}
}

// Config returns a copy of the current configuration.
func (m *RetryManager) Config() RetryConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.clone()
}

// UpdateConfig merges the given options into the current configuration.
// Invalid results are rejected and leave the configuration unchanged.
func (m *RetryManager) UpdateConfig(opts ...RetryOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.config.clone()
	for _, opt := range opts {
		opt(&next)
	}
	if err := next.Validate(); err != nil {
		return fmt.Errorf("update retry config: %w", err)
	}
	m.config = next

	m.logger.Info().
		Int("max_retries", next.MaxRetries).
		Dur("base_delay", next.BaseDelay).
		Dur("max_delay", next.MaxDelay).
		Bool("jitter", next.Jitter).
		Msg("Retry configuration updated")
	return nil
}

// ShouldRetry reports whether err is retryable under the current configuration.
func (m *RetryManager) ShouldRetry(err error) bool {
	return m.Config().shouldRetry(err)
}

// Delay returns the backoff before retry number attempt+1.
func (m *RetryManager) Delay(attempt int, err error) time.Duration {
	return m.Config().delay(attempt, err, m.random)
}

// Execute runs fn up to MaxRetries+1 times. Non-retryable errors are returned
// unchanged after the first failure; after the final attempt the last error
// is decorated with the attempt count.
func (m *RetryManager) Execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	cfg := m.Config()

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				m.logger.Info().
					Str("operation", operation).
					Int("attempt", attempt+1).
					Msg("Request succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if attempt == cfg.MaxRetries {
			break
		}

		if !cfg.shouldRetry(err) {
			return err
		}

		kind := kindLabel(err)
		delay := cfg.delay(attempt, err, m.random)
		retriesTotal.WithLabelValues(kind).Inc()
		retryBackoffSeconds.WithLabelValues(kind).Observe(delay.Seconds())

		m.logger.Warn().
			Err(err).
			Str("operation", operation).
			Str("error_kind", kind).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Msg("Retrying request after backoff")

		if err := m.sleep(ctx, delay); err != nil {
			m.logger.Warn().
				Str("operation", operation).
				Int("attempt", attempt+1).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %v (last error: %w)", ErrContextCancelled, err, lastErr)
		}
	}

	kind := kindLabel(lastErr)
	retryExhaustedTotal.WithLabelValues(kind).Inc()
	m.logger.Error().
		Err(lastErr).
		Str("operation", operation).
		Str("error_kind", kind).
		Int("attempts", cfg.MaxRetries+1).
		Msg("Retry attempts exhausted")

	return apierr.WithAttempts(lastErr, cfg.MaxRetries+1)
}

// Do is the value-returning form of RetryManager.Execute.
func Do[T any](ctx context.Context, m *RetryManager, operation string, fn func(context.Context) (T, error)) (T, error) {
	var result T
	err := m.Execute(ctx, operation, func(ctx context.Context) error {
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

func (c RetryConfig) shouldRetry(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	if status, ok := apierr.StatusCode(err); ok && slices.Contains(c.RetryableStatusCodes, status) {
		return true
	}

	if apierr.IsNetwork(err) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, s := range c.RetryableErrors {
		if s != "" && strings.Contains(msg, strings.ToLower(s)) {
			return true
		}
	}
	return false
}

func (c RetryConfig) delay(attempt int, err error, random func() float64) time.Duration {
	// Server guidance takes precedence over the backoff schedule.
	if ra := apierr.RetryAfter(err); ra > 0 {
		return min(ra, c.MaxDelay)
	}

	d := float64(c.BaseDelay) * math.Pow(c.ExponentialBase, float64(attempt))
	if c.Jitter {
		d *= 0.5 + random()*0.5
	}
	if math.IsInf(d, 0) || math.IsNaN(d) || d > float64(c.MaxDelay) {
		return c.MaxDelay
	}
	return time.Duration(d)
}

func kindLabel(err error) string {
	if kind := apierr.KindOf(err); kind != "" {
		return string(kind)
	}
	return "unknown"
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
