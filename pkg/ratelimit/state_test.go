package ratelimit

import (
	"net/http"
	"strconv"
	"testing"
	"time"
)

func TestState_IsStale(t *testing.T) {
	tests := []struct {
		name     string
		state    *State
		maxAge   time.Duration
		expected bool
	}{
		{
			name:     "fresh state",
			state:    &State{LastUpdate: time.Now()},
			maxAge:   5 * time.Minute,
			expected: false,
		},
		{
			name:     "stale state",
			state:    &State{LastUpdate: time.Now().Add(-10 * time.Minute)},
			maxAge:   5 * time.Minute,
			expected: true,
		},
		{
			name:     "just under max age",
			state:    &State{LastUpdate: time.Now().Add(-4 * time.Minute)},
			maxAge:   5 * time.Minute,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsStale(tt.maxAge); got != tt.expected {
				t.Errorf("IsStale() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestState_NeedsBlock(t *testing.T) {
	tests := []struct {
		name      string
		remaining int
		resetIn   time.Duration
		expected  bool
	}{
		{"plenty remaining", 50, time.Minute, false},
		{"at critical threshold", RemainingThresholdCritical, time.Minute, false},
		{"one remaining", 1, time.Minute, true},
		{"exhausted", 0, time.Minute, true},
		{"exhausted but window already reset", 0, -time.Second, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &State{Remaining: tt.remaining, ResetAt: time.Now().Add(tt.resetIn)}
			if got := state.NeedsBlock(); got != tt.expected {
				t.Errorf("NeedsBlock() with %d remaining = %v, want %v", tt.remaining, got, tt.expected)
			}
		})
	}
}

func TestState_NeedsThrottling(t *testing.T) {
	tests := []struct {
		name      string
		remaining int
		expected  bool
	}{
		{"healthy", 30, false},
		{"at warning threshold", RemainingThresholdWarning, false},
		{"just below warning", RemainingThresholdWarning - 1, true},
		{"at critical threshold", RemainingThresholdCritical, true},
		{"below critical", RemainingThresholdCritical - 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &State{Remaining: tt.remaining}
			if got := state.NeedsThrottling(); got != tt.expected {
				t.Errorf("NeedsThrottling() with %d remaining = %v, want %v", tt.remaining, got, tt.expected)
			}
		})
	}
}

func TestState_TimeUntilReset(t *testing.T) {
	tests := []struct {
		name    string
		resetAt time.Time
		minDur  time.Duration
		maxDur  time.Duration
	}{
		{"reset in future", time.Now().Add(30 * time.Second), 29 * time.Second, 31 * time.Second},
		{"reset in past", time.Now().Add(-10 * time.Second), 0, 0},
		{"reset now", time.Now(), 0, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &State{ResetAt: tt.resetAt}
			got := state.TimeUntilReset()
			if got < tt.minDur || got > tt.maxDur {
				t.Errorf("TimeUntilReset() = %v, want between %v and %v", got, tt.minDur, tt.maxDur)
			}
		})
	}
}

func TestState_UpdateHealth(t *testing.T) {
	tests := []struct {
		remaining int
		expected  bool
	}{
		{100, true},
		{RemainingThresholdHealthy, true},
		{RemainingThresholdHealthy - 1, false},
		{0, false},
	}

	for _, tt := range tests {
		state := &State{Remaining: tt.remaining}
		state.UpdateHealth()
		if state.IsHealthy != tt.expected {
			t.Errorf("UpdateHealth() with %d remaining: IsHealthy = %v, want %v", tt.remaining, state.IsHealthy, tt.expected)
		}
	}
}

func TestParseHeaders(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	unixReset := now.Add(90 * time.Second).Unix()

	tests := []struct {
		name          string
		headers       map[string]string
		wantOK        bool
		wantErr       bool
		wantLimit     int
		wantRemaining int
		wantResetAt   time.Time
		wantHealthy   bool
	}{
		{
			name:          "relative reset",
			headers:       map[string]string{HeaderLimit: "100", HeaderRemaining: "80", HeaderReset: "30"},
			wantOK:        true,
			wantLimit:     100,
			wantRemaining: 80,
			wantResetAt:   now.Add(30 * time.Second),
			wantHealthy:   true,
		},
		{
			name:          "unix reset",
			headers:       map[string]string{HeaderRemaining: "5", HeaderReset: formatInt(unixReset)},
			wantOK:        true,
			wantRemaining: 5,
			wantResetAt:   time.Unix(unixReset, 0),
		},
		{
			name:    "no quota headers",
			headers: map[string]string{},
		},
		{
			name:    "remaining without reset",
			headers: map[string]string{HeaderRemaining: "10"},
			wantErr: true,
		},
		{
			name:    "malformed remaining",
			headers: map[string]string{HeaderRemaining: "lots", HeaderReset: "10"},
			wantErr: true,
		},
		{
			name:    "malformed reset",
			headers: map[string]string{HeaderRemaining: "10", HeaderReset: "soon"},
			wantErr: true,
		},
		{
			name:    "malformed limit",
			headers: map[string]string{HeaderLimit: "x", HeaderRemaining: "10", HeaderReset: "10"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			for k, v := range tt.headers {
				h.Set(k, v)
			}

			state, ok, err := ParseHeaders(h, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseHeaders() error = %v, wantErr %v", err, tt.wantErr)
			}
			if ok != tt.wantOK {
				t.Fatalf("ParseHeaders() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if state.Limit != tt.wantLimit {
				t.Errorf("Limit = %d, want %d", state.Limit, tt.wantLimit)
			}
			if state.Remaining != tt.wantRemaining {
				t.Errorf("Remaining = %d, want %d", state.Remaining, tt.wantRemaining)
			}
			if !state.ResetAt.Equal(tt.wantResetAt) {
				t.Errorf("ResetAt = %v, want %v", state.ResetAt, tt.wantResetAt)
			}
			if state.IsHealthy != tt.wantHealthy {
				t.Errorf("IsHealthy = %v, want %v", state.IsHealthy, tt.wantHealthy)
			}
			if !state.LastUpdate.Equal(now) {
				t.Errorf("LastUpdate = %v, want %v", state.LastUpdate, now)
			}
		})
	}
}

func TestThresholdConstants(t *testing.T) {
	if RemainingThresholdCritical >= RemainingThresholdWarning {
		t.Errorf("critical threshold (%d) must be below warning (%d)", RemainingThresholdCritical, RemainingThresholdWarning)
	}
	if RemainingThresholdWarning >= RemainingThresholdHealthy {
		t.Errorf("warning threshold (%d) must be below healthy (%d)", RemainingThresholdWarning, RemainingThresholdHealthy)
	}
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}
