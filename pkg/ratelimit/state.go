// Package ratelimit tracks the request quota announced by the marketing API
// and gates requests before the quota is exhausted. It reads the
// X-RateLimit-Limit, X-RateLimit-Remaining and X-RateLimit-Reset headers and
// keeps the resulting state in a Store, optionally shared through Redis.
package ratelimit

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Response headers carrying the server quota.
const (
	HeaderLimit     = "X-RateLimit-Limit"
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
)

// Thresholds for rate limit decisions.
const (
	// RemainingThresholdCritical blocks requests until the window resets when
	// fewer requests than this remain.
	RemainingThresholdCritical = 2

	// RemainingThresholdWarning throttles requests when fewer requests than
	// this remain.
	RemainingThresholdWarning = 10

	// RemainingThresholdHealthy marks the state healthy at or above this value.
	RemainingThresholdHealthy = 25
)

// unixResetCutoff separates reset values given as seconds-until-reset from
// values given as a unix timestamp.
const unixResetCutoff = 1_000_000_000

// State is the server-announced request quota.
type State struct {
	// Limit is the window size from X-RateLimit-Limit, 0 if not sent.
	Limit int `json:"limit"`

	// Remaining is the number of requests left in the window.
	Remaining int `json:"remaining"`

	// ResetAt is when the window resets.
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when the state was read from response headers.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when Remaining >= RemainingThresholdHealthy.
	IsHealthy bool `json:"is_healthy"`
}

// IsStale returns true if the state is older than maxAge.
func (s *State) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// NeedsBlock returns true if requests must wait for the window to reset.
// A window that has already reset never blocks.
func (s *State) NeedsBlock() bool {
	return s.Remaining < RemainingThresholdCritical && s.TimeUntilReset() > 0
}

// NeedsThrottling returns true if requests should be slowed down.
func (s *State) NeedsThrottling() bool {
	return s.Remaining < RemainingThresholdWarning && s.Remaining >= RemainingThresholdCritical
}

// TimeUntilReset returns the duration until the window resets, 0 if it has passed.
func (s *State) TimeUntilReset() time.Duration {
	return max(time.Until(s.ResetAt), 0)
}

// UpdateHealth updates IsHealthy from Remaining.
func (s *State) UpdateHealth() {
	s.IsHealthy = s.Remaining >= RemainingThresholdHealthy
}

// ParseHeaders reads the quota headers. ok is false when the response carries
// no X-RateLimit-Remaining header. X-RateLimit-Reset may be seconds until
// reset or a unix timestamp.
func ParseHeaders(h http.Header, now time.Time) (state *State, ok bool, err error) {
	remainStr := h.Get(HeaderRemaining)
	if remainStr == "" {
		return nil, false, nil
	}

	remaining, err := strconv.Atoi(remainStr)
	if err != nil {
		return nil, false, fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
	}

	resetStr := h.Get(HeaderReset)
	if resetStr == "" {
		return nil, false, fmt.Errorf("%s header missing", HeaderReset)
	}
	reset, err := strconv.ParseInt(resetStr, 10, 64)
	if err != nil {
		return nil, false, fmt.Errorf("parse %s header: %w", HeaderReset, err)
	}

	state = &State{
		Remaining:  remaining,
		LastUpdate: now,
	}
	if reset >= unixResetCutoff {
		state.ResetAt = time.Unix(reset, 0)
	} else {
		state.ResetAt = now.Add(time.Duration(reset) * time.Second)
	}

	if limitStr := h.Get(HeaderLimit); limitStr != "" {
		if state.Limit, err = strconv.Atoi(limitStr); err != nil {
			return nil, false, fmt.Errorf("parse %s header: %w", HeaderLimit, err)
		}
	}

	state.UpdateHealth()
	return state, true, nil
}
