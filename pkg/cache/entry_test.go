package cache

import (
	"testing"
	"time"
)

func TestEntry_IsExpired(t *testing.T) {
	tests := []struct {
		name    string
		expires time.Time
		want    bool
	}{
		{"expired entry", time.Now().Add(-1 * time.Hour), true},
		{"fresh entry", time.Now().Add(1 * time.Hour), false},
		{"just expired", time.Now().Add(-1 * time.Second), true},
		{"zero expiry", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &Entry{Expires: tt.expires}
			if got := entry.IsExpired(); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEntry_TTL(t *testing.T) {
	tests := []struct {
		name    string
		expires time.Time
		wantMin time.Duration
		wantMax time.Duration
	}{
		{"one hour remaining", time.Now().Add(1 * time.Hour), 59 * time.Minute, 61 * time.Minute},
		{"already expired", time.Now().Add(-1 * time.Hour), 0, 0},
		{"30 seconds remaining", time.Now().Add(30 * time.Second), 29 * time.Second, 31 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &Entry{Expires: tt.expires}
			got := entry.TTL()
			if got < tt.wantMin || got > tt.wantMax {
				t.Errorf("TTL() = %v, want between %v and %v", got, tt.wantMin, tt.wantMax)
			}
		})
	}
}

func TestEntry_Age(t *testing.T) {
	entry := &Entry{CachedAt: time.Now().Add(-90 * time.Second)}
	if age := entry.Age(); age < 89*time.Second || age > 91*time.Second {
		t.Errorf("Age() = %v, want about 90s", age)
	}
}
