package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/mailer-client/pkg/apierr"
	"github.com/rs/zerolog"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed lets every call through.
	StateClosed State = iota

	// StateOpen rejects calls without invoking them.
	StateOpen

	// StateHalfOpen lets a single trial call through.
	StateHalfOpen
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CircuitBreakerConfig holds the thresholds for state transitions.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int

	// ResetTimeout is how long the circuit stays open before a trial call.
	ResetTimeout time.Duration
}

// DefaultCircuitBreakerConfig returns the default breaker configuration.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     60 * time.Second,
	}
}

// Validate checks the configuration.
func (c CircuitBreakerConfig) Validate() error {
	if c.FailureThreshold < 1 {
		return fmt.Errorf("failure_threshold must be >= 1 (got %d)", c.FailureThreshold)
	}
	if c.ResetTimeout <= 0 {
		return fmt.Errorf("reset_timeout must be > 0 (got %v)", c.ResetTimeout)
	}
	return nil
}

// BreakerSnapshot is a read-only view of the breaker state.
type BreakerSnapshot struct {
	State           State     `json:"state"`
	Failures        int       `json:"failures"`
	LastFailureTime time.Time `json:"last_failure_time"`
}

// CircuitBreaker fast-fails calls to a dependency that keeps failing.
//
// Invariant: state == StateOpen implies failures >= FailureThreshold.
type CircuitBreaker struct {
	name   string
	config CircuitBreakerConfig
	logger zerolog.Logger
	now    func() time.Time

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	trialActive bool
}

// NewCircuitBreaker creates a closed circuit breaker.
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig, logger zerolog.Logger) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 60 * time.Second
	}

	cb := &CircuitBreaker{
		name:   name,
		config: cfg,
		logger: logger.With().Str("breaker", name).Logger(),
		now:    time.Now,
	}
	circuitBreakerState.WithLabelValues(name).Set(float64(StateClosed))
	return cb
}

// Execute runs fn unless the circuit is open. Every error returned by fn is
// recorded as a failure; a rejected call is not.
func (cb *CircuitBreaker) Execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	trial, err := cb.admit(operation)
	if err != nil {
		return err
	}

	if err := fn(ctx); err != nil {
		cb.recordFailure(operation, trial)
		return err
	}

	cb.recordSuccess(trial)
	return nil
}

func (cb *CircuitBreaker) admit(operation string) (trial bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return false, nil
	case StateOpen:
		if cb.now().Sub(cb.lastFailure) > cb.config.ResetTimeout {
			cb.setState(StateHalfOpen)
			cb.trialActive = true
			cb.logger.Info().Str("operation", operation).Msg("Circuit half-open, sending trial request")
			return true, nil
		}
	case StateHalfOpen:
		if !cb.trialActive {
			cb.trialActive = true
			return true, nil
		}
	}

	circuitBreakerRejectedTotal.WithLabelValues(cb.name).Inc()
	return false, &apierr.Error{
		Kind:    apierr.KindNetwork,
		Message: fmt.Sprintf("service unavailable for %s", operation),
		Err:     apierr.ErrCircuitOpen,
	}
}

func (cb *CircuitBreaker) recordFailure(operation string, trial bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailure = cb.now()
	if trial {
		cb.trialActive = false
	}

	// Failures are never reset while open, so a failed trial reopens with the
	// counter already past the threshold.
	if cb.state == StateHalfOpen || (cb.state == StateClosed && cb.failures >= cb.config.FailureThreshold) {
		cb.setState(StateOpen)
		circuitBreakerTripsTotal.WithLabelValues(cb.name).Inc()
		cb.logger.Error().
			Str("operation", operation).
			Int("failures", cb.failures).
			Dur("reset_timeout", cb.config.ResetTimeout).
			Msg("Circuit opened")
	}
}

func (cb *CircuitBreaker) recordSuccess(trial bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if trial {
		cb.trialActive = false
	}
	if cb.state == StateHalfOpen {
		cb.logger.Info().Msg("Trial request succeeded, circuit closed")
	}
	if cb.state != StateOpen {
		cb.reset()
	}
}

// Reset forces the breaker back to the closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.reset()
}

func (cb *CircuitBreaker) reset() {
	cb.failures = 0
	cb.lastFailure = time.Time{}
	cb.trialActive = false
	cb.setState(StateClosed)
}

func (cb *CircuitBreaker) setState(s State) {
	cb.state = s
	circuitBreakerState.WithLabelValues(cb.name).Set(float64(s))
}

// State returns a snapshot of the breaker state.
func (cb *CircuitBreaker) State() BreakerSnapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return BreakerSnapshot{
		State:           cb.state,
		Failures:        cb.failures,
		LastFailureTime: cb.lastFailure,
	}
}
