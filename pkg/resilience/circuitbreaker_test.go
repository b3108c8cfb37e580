package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/mailer-client/pkg/apierr"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(t *testing.T, threshold int, timeout time.Duration) (*CircuitBreaker, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(t.Name(), CircuitBreakerConfig{
		FailureThreshold: threshold,
		ResetTimeout:     timeout,
	}, zerolog.Nop())
	cb.now = clock.Now
	return cb, clock
}

var errBackend = errors.New("backend failure")

func failing(ctx context.Context) error    { return errBackend }
func succeeding(ctx context.Context) error { return nil }

func TestCircuitBreaker_Transitions(t *testing.T) {
	cb, clock := newTestBreaker(t, 3, 10*time.Second)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, "list_contacts", failing), errBackend)
		assert.Equal(t, StateClosed, cb.State().State)
	}

	assert.ErrorIs(t, cb.Execute(ctx, "list_contacts", failing), errBackend)
	snap := cb.State()
	assert.Equal(t, StateOpen, snap.State)
	assert.Equal(t, 3, snap.Failures)
	assert.Equal(t, clock.Now(), snap.LastFailureTime)

	// Open: the operation is not invoked and the failure count does not grow.
	invoked := false
	err := cb.Execute(ctx, "list_contacts", func(context.Context) error {
		invoked = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, invoked)
	assert.ErrorIs(t, err, apierr.ErrCircuitOpen)
	assert.Equal(t, apierr.KindNetwork, apierr.KindOf(err))
	assert.Equal(t, 3, cb.State().Failures)

	clock.Advance(10*time.Second + time.Millisecond)

	err = cb.Execute(ctx, "list_contacts", func(context.Context) error {
		invoked = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, invoked)
	snap = cb.State()
	assert.Equal(t, StateClosed, snap.State)
	assert.Zero(t, snap.Failures)
	assert.True(t, snap.LastFailureTime.IsZero())
}

func TestCircuitBreaker_ExactTimeoutStaysOpen(t *testing.T) {
	cb, clock := newTestBreaker(t, 1, time.Second)
	ctx := context.Background()

	_ = cb.Execute(ctx, "op", failing)
	clock.Advance(time.Second)

	err := cb.Execute(ctx, "op", succeeding)
	assert.ErrorIs(t, err, apierr.ErrCircuitOpen)
}

func TestCircuitBreaker_FailedTrialReopens(t *testing.T) {
	cb, clock := newTestBreaker(t, 2, time.Second)
	ctx := context.Background()

	_ = cb.Execute(ctx, "op", failing)
	_ = cb.Execute(ctx, "op", failing)
	require.Equal(t, StateOpen, cb.State().State)

	clock.Advance(2 * time.Second)
	assert.ErrorIs(t, cb.Execute(ctx, "op", failing), errBackend)

	snap := cb.State()
	assert.Equal(t, StateOpen, snap.State)
	assert.Equal(t, 3, snap.Failures)
	assert.Equal(t, clock.Now(), snap.LastFailureTime)

	assert.ErrorIs(t, cb.Execute(ctx, "op", succeeding), apierr.ErrCircuitOpen)
}

func TestCircuitBreaker_SuccessResetsConsecutiveFailures(t *testing.T) {
	cb, _ := newTestBreaker(t, 3, time.Second)
	ctx := context.Background()

	_ = cb.Execute(ctx, "op", failing)
	_ = cb.Execute(ctx, "op", failing)
	require.NoError(t, cb.Execute(ctx, "op", succeeding))
	_ = cb.Execute(ctx, "op", failing)

	snap := cb.State()
	assert.Equal(t, StateClosed, snap.State)
	assert.Equal(t, 1, snap.Failures)
}

func TestCircuitBreaker_SingleTrialWhileHalfOpen(t *testing.T) {
	cb, clock := newTestBreaker(t, 1, time.Second)
	ctx := context.Background()

	_ = cb.Execute(ctx, "op", failing)
	clock.Advance(2 * time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(ctx, "op", func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()

	<-started
	assert.Equal(t, StateHalfOpen, cb.State().State)
	assert.ErrorIs(t, cb.Execute(ctx, "op", succeeding), apierr.ErrCircuitOpen)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateClosed, cb.State().State)
}

func TestCircuitBreaker_Metrics(t *testing.T) {
	cb, _ := newTestBreaker(t, 1, time.Minute)
	ctx := context.Background()

	_ = cb.Execute(ctx, "op", failing)
	_ = cb.Execute(ctx, "op", succeeding)

	assert.Equal(t, 1.0, testutil.ToFloat64(circuitBreakerTripsTotal.WithLabelValues(t.Name())))
	assert.Equal(t, 1.0, testutil.ToFloat64(circuitBreakerRejectedTotal.WithLabelValues(t.Name())))
	assert.Equal(t, float64(StateOpen), testutil.ToFloat64(circuitBreakerState.WithLabelValues(t.Name())))
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb, _ := newTestBreaker(t, 1, time.Minute)
	_ = cb.Execute(context.Background(), "op", failing)
	require.Equal(t, StateOpen, cb.State().State)

	cb.Reset()

	assert.Equal(t, BreakerSnapshot{State: StateClosed}, cb.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "CLOSED", StateClosed.String())
	assert.Equal(t, "OPEN", StateOpen.String())
	assert.Equal(t, "HALF_OPEN", StateHalfOpen.String())
	assert.Equal(t, "UNKNOWN", State(42).String())
}
