// Package resilience provides the building blocks wrapped around every
// outbound API call: a token bucket rate limiter, a circuit breaker, a
// classification-aware retry manager and a bounded request queue.
package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines a token bucket: capacity BurstLimit, refilled at
// MaxRequestsPerSecond tokens per second.
type RateLimitConfig struct {
	Enabled              bool
	MaxRequestsPerSecond float64
	BurstLimit           int

	// RespectServerLimits makes the client honour limits announced by the
	// server in response headers in addition to the local bucket.
	RespectServerLimits bool
}

// DefaultRateLimitConfig returns a conservative default configuration.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:              true,
		MaxRequestsPerSecond: 10,
		BurstLimit:           20,
		RespectServerLimits:  true,
	}
}

// Validate rejects configurations that would stall forever.
func (c RateLimitConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.MaxRequestsPerSecond <= 0 {
		return fmt.Errorf("max_requests_per_second must be > 0 (got %v)", c.MaxRequestsPerSecond)
	}
	if c.BurstLimit < 1 {
		return fmt.Errorf("burst_limit must be >= 1 (got %d)", c.BurstLimit)
	}
	return nil
}

// RateLimiter bounds the outbound request rate. Acquisition order under
// contention is not FIFO.
type RateLimiter struct {
	limiter *rate.Limiter
	config  RateLimitConfig
	logger  zerolog.Logger
}

// NewRateLimiter creates a rate limiter whose bucket starts full.
func NewRateLimiter(cfg RateLimitConfig, logger zerolog.Logger) (*RateLimiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	limit, burst := rate.Inf, 1
	if cfg.Enabled {
		limit, burst = rate.Limit(cfg.MaxRequestsPerSecond), cfg.BurstLimit
	}

	return &RateLimiter{
		limiter: rate.NewLimiter(limit, burst),
		config:  cfg,
		logger:  logger,
	}, nil
}

// Acquire blocks until a token is available. It only fails when ctx is done
// before a token could be taken.
func (r *RateLimiter) Acquire(ctx context.Context) error {
	if !r.config.Enabled {
		return nil
	}

	start := time.Now()
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	waited := time.Since(start)
	rateLimiterWaitSeconds.Observe(waited.Seconds())
	if waited > time.Millisecond {
		r.logger.Debug().Dur("waited", waited).Msg("Rate limiter token acquired after wait")
	}
	return nil
}

// Tokens returns the number of tokens currently available.
func (r *RateLimiter) Tokens() float64 {
	if !r.config.Enabled {
		return float64(r.config.BurstLimit)
	}
	return r.limiter.Tokens()
}

// Config returns the limiter configuration.
func (r *RateLimiter) Config() RateLimitConfig {
	return r.config
}
