package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Sternrassler/mailer-client/pkg/apierr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for server quota tracking.
var (
	serverRateLimitRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mailer_server_rate_limit_remaining",
		Help: "Requests remaining in the current server rate limit window",
	})

	serverRateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mailer_server_rate_limit_blocks_total",
		Help: "Total number of requests held until the server rate limit window reset",
	})

	serverRateLimitThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mailer_server_rate_limit_throttles_total",
		Help: "Total number of requests throttled because the server quota ran low",
	})
)

// Config holds tracker configuration.
type Config struct {
	// ThrottleDelay is the pause applied below the warning threshold.
	ThrottleDelay time.Duration

	// MaxWait is the longest Wait holds a request for a window reset. Longer
	// waits fail with a rate limit error instead.
	MaxWait time.Duration
}

// DefaultConfig returns the default tracker configuration.
func DefaultConfig() Config {
	return Config{
		ThrottleDelay: 1 * time.Second,
		MaxWait:       60 * time.Second,
	}
}

// Tracker monitors the server quota and gates requests.
type Tracker struct {
	store  Store
	config Config
	logger zerolog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewTracker creates a tracker. A nil store is replaced by a MemoryStore.
func NewTracker(store Store, cfg Config, logger zerolog.Logger) *Tracker {
	if store == nil {
		store = NewMemoryStore()
	}
	if cfg.ThrottleDelay < 0 {
		cfg.ThrottleDelay = 0
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = DefaultConfig().MaxWait
	}
	return &Tracker{
		store:  store,
		config: cfg,
		logger: logger,
		sleep:  sleepContext,
	}
}

// State returns the current quota state, or a healthy placeholder when
// nothing has been observed yet.
func (t *Tracker) State(ctx context.Context) (*State, error) {
	state, err := t.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if state == nil {
		t.logger.Debug().Msg("No server rate limit state yet, assuming healthy")
		return &State{
			Remaining:  RemainingThresholdHealthy,
			ResetAt:    time.Now(),
			LastUpdate: time.Now(),
			IsHealthy:  true,
		}, nil
	}
	return state, nil
}

// UpdateFromHeaders records the quota announced in a response. Responses
// without quota headers are ignored.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	state, ok, err := ParseHeaders(headers, time.Now())
	if err != nil || !ok {
		return err
	}

	if err := t.store.Save(ctx, state); err != nil {
		return err
	}
	serverRateLimitRemaining.Set(float64(state.Remaining))

	switch {
	case state.Remaining < RemainingThresholdCritical:
		t.logger.Error().
			Int("remaining", state.Remaining).
			Int("limit", state.Limit).
			Time("reset_at", state.ResetAt).
			Msg("Server rate limit exhausted - requests will wait for reset")
	case state.NeedsThrottling():
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Int("limit", state.Limit).
			Msg("Server rate limit low - requests will be throttled")
	default:
		t.logger.Debug().
			Int("remaining", state.Remaining).
			Int("limit", state.Limit).
			Time("reset_at", state.ResetAt).
			Msg("Server rate limit state updated")
	}
	return nil
}

// Wait holds the caller while the server quota requires it: until the window
// resets when the quota is exhausted, or ThrottleDelay when it runs low.
func (t *Tracker) Wait(ctx context.Context) error {
	state, err := t.State(ctx)
	if err != nil {
		return fmt.Errorf("get rate limit state: %w", err)
	}

	if state.NeedsBlock() {
		wait := state.TimeUntilReset()
		serverRateLimitBlocksTotal.Inc()
		if wait > t.config.MaxWait {
			t.logger.Error().
				Int("remaining", state.Remaining).
				Dur("wait_duration", wait).
				Msg("Server rate limit reset too far away - rejecting request")
			return &apierr.Error{
				Kind:       apierr.KindRateLimit,
				Message:    fmt.Sprintf("server quota exhausted, resets in %v", wait.Round(time.Second)),
				RetryAfter: wait,
			}
		}

		t.logger.Warn().
			Int("remaining", state.Remaining).
			Dur("wait_duration", wait).
			Msg("Server rate limit exhausted - waiting for reset")
		return t.sleep(ctx, wait)
	}

	if state.NeedsThrottling() {
		serverRateLimitThrottlesTotal.Inc()
		t.logger.Debug().
			Int("remaining", state.Remaining).
			Dur("delay", t.config.ThrottleDelay).
			Msg("Server rate limit low - throttling request")
		return t.sleep(ctx, t.config.ThrottleDelay)
	}

	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
