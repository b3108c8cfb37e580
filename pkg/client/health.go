package client

import (
	"context"

	"github.com/Sternrassler/mailer-client/pkg/ratelimit"
	"github.com/Sternrassler/mailer-client/pkg/resilience"
)

// Health status values.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthReport summarises the state of the resilience components.
type HealthReport struct {
	Status            string                     `json:"status"`
	CircuitBreaker    resilience.BreakerSnapshot `json:"circuit_breaker"`
	RequestQueue      resilience.QueueStats      `json:"request_queue"`
	RateLimiterTokens float64                    `json:"rate_limiter_tokens"`
	ServerLimits      *ratelimit.State           `json:"server_limits,omitempty"`
	Retry             resilience.RetryConfig     `json:"retry"`
	Redis             string                     `json:"redis"`
}

// Health reports the client state. The client is unhealthy while the circuit
// is open and degraded while it is half open, the server quota runs low or
// Redis is unreachable.
func (c *Client) Health(ctx context.Context) HealthReport {
	report := HealthReport{
		Status:            StatusHealthy,
		CircuitBreaker:    c.breaker.State(),
		RequestQueue:      c.queue.Stats(),
		RateLimiterTokens: c.limiter.Tokens(),
		Retry:             c.retry.Config(),
		Redis:             "disabled",
	}

	if c.config.Redis != nil {
		if err := c.config.Redis.Ping(ctx).Err(); err != nil {
			report.Redis = "unavailable"
			report.Status = StatusDegraded
			c.logger.Warn().Err(err).Msg("Redis health check failed")
		} else {
			report.Redis = "ok"
		}
	}

	if c.tracker != nil {
		state, err := c.tracker.State(ctx)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Failed to read server rate limit state")
		} else {
			report.ServerLimits = state
			if state.NeedsThrottling() || state.NeedsBlock() {
				report.Status = StatusDegraded
			}
		}
	}

	switch report.CircuitBreaker.State {
	case resilience.StateOpen:
		report.Status = StatusUnhealthy
	case resilience.StateHalfOpen:
		report.Status = StatusDegraded
	}

	return report
}

// UpdateRetryConfig merges opts into the retry configuration.
func (c *Client) UpdateRetryConfig(opts ...resilience.RetryOption) error {
	return c.retry.UpdateConfig(opts...)
}

// RetryConfig returns a copy of the current retry configuration.
func (c *Client) RetryConfig() resilience.RetryConfig {
	return c.retry.Config()
}

// CircuitBreakerState returns a snapshot of the circuit breaker.
func (c *Client) CircuitBreakerState() resilience.BreakerSnapshot {
	return c.breaker.State()
}

// ResetCircuitBreaker closes the circuit and clears its failure count.
func (c *Client) ResetCircuitBreaker() {
	c.breaker.Reset()
}

// RequestQueueStats returns a snapshot of the request queue.
func (c *Client) RequestQueueStats() resilience.QueueStats {
	return c.queue.Stats()
}

// RateLimiterTokens returns the tokens currently available in the local bucket.
func (c *Client) RateLimiterTokens() float64 {
	return c.limiter.Tokens()
}
