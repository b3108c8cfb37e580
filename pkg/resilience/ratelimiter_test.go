package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimitConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  RateLimitConfig
		wantErr bool
	}{
		{"default", DefaultRateLimitConfig(), false},
		{"zero rate", RateLimitConfig{Enabled: true, MaxRequestsPerSecond: 0, BurstLimit: 5}, true},
		{"negative rate", RateLimitConfig{Enabled: true, MaxRequestsPerSecond: -1, BurstLimit: 5}, true},
		{"zero burst", RateLimitConfig{Enabled: true, MaxRequestsPerSecond: 5, BurstLimit: 0}, true},
		{"disabled ignores values", RateLimitConfig{Enabled: false}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRateLimiter_BurstThenWait(t *testing.T) {
	limiter, err := NewRateLimiter(RateLimitConfig{
		Enabled:              true,
		MaxRequestsPerSecond: 10,
		BurstLimit:           20,
	}, zerolog.Nop())
	require.NoError(t, err)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 20; i++ {
		require.NoError(t, limiter.Acquire(ctx))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond, "burst should be admitted immediately")

	waitStart := time.Now()
	require.NoError(t, limiter.Acquire(ctx))
	waited := time.Since(waitStart)
	assert.GreaterOrEqual(t, waited, 80*time.Millisecond)
	assert.Less(t, waited, 300*time.Millisecond)
}

func TestRateLimiter_WindowBound(t *testing.T) {
	cfg := RateLimitConfig{Enabled: true, MaxRequestsPerSecond: 50, BurstLimit: 5}
	limiter, err := NewRateLimiter(cfg, zerolog.Nop())
	require.NoError(t, err)

	window := 300 * time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), window)
	defer cancel()

	acquired := 0
	for limiter.Acquire(ctx) == nil {
		acquired++
	}

	limit := cfg.BurstLimit + int(cfg.MaxRequestsPerSecond*window.Seconds()) + 1
	assert.LessOrEqual(t, acquired, limit)
	assert.GreaterOrEqual(t, acquired, cfg.BurstLimit)
}

func TestRateLimiter_Disabled(t *testing.T) {
	limiter, err := NewRateLimiter(RateLimitConfig{Enabled: false}, zerolog.Nop())
	require.NoError(t, err)

	start := time.Now()
	for i := 0; i < 1000; i++ {
		require.NoError(t, limiter.Acquire(context.Background()))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestRateLimiter_ContextCancelled(t *testing.T) {
	limiter, err := NewRateLimiter(RateLimitConfig{Enabled: true, MaxRequestsPerSecond: 0.1, BurstLimit: 1}, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, limiter.Acquire(context.Background()))
	assert.Less(t, limiter.Tokens(), 1.0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, limiter.Acquire(ctx))
}

func TestNewRateLimiter_RejectsInvalidConfig(t *testing.T) {
	_, err := NewRateLimiter(RateLimitConfig{Enabled: true, MaxRequestsPerSecond: 0, BurstLimit: 1}, zerolog.Nop())
	assert.Error(t, err)
}
