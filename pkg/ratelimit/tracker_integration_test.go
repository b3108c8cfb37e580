//go:build integration

package ratelimit

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns a client
func setupRedis(t *testing.T) (*redis.Client, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: endpoint,
	})

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func newIntegrationTracker(client *redis.Client, account string) *Tracker {
	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	return NewTracker(NewRedisStore(client, account), DefaultConfig(), logger)
}

func setQuota(t *testing.T, tracker *Tracker, remaining int, resetSeconds int) {
	t.Helper()
	headers := http.Header{}
	headers.Set(HeaderLimit, "100")
	headers.Set(HeaderRemaining, strconv.Itoa(remaining))
	headers.Set(HeaderReset, strconv.Itoa(resetSeconds))
	if err := tracker.UpdateFromHeaders(context.Background(), headers); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}
}

func TestTracker_Integration_State(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	tracker := newIntegrationTracker(redisClient, "integration")
	ctx := context.Background()

	// Default state when Redis is empty
	state, err := tracker.State(ctx)
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	if !state.IsHealthy {
		t.Error("Default state should be healthy")
	}

	setQuota(t, tracker, 75, 120)

	state, err = tracker.State(ctx)
	if err != nil {
		t.Fatalf("State() after update error = %v", err)
	}
	if state.Remaining != 75 {
		t.Errorf("Remaining = %d, want 75", state.Remaining)
	}
	if state.Limit != 100 {
		t.Errorf("Limit = %d, want 100", state.Limit)
	}

	expected := 120 * time.Second
	actual := state.TimeUntilReset()
	tolerance := 5 * time.Second
	if actual < expected-tolerance || actual > expected+tolerance {
		t.Errorf("TimeUntilReset = %v, want approximately %v", actual, expected)
	}
}

func TestTracker_Integration_UpdateFromHeaders(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	tracker := newIntegrationTracker(redisClient, "integration")
	ctx := context.Background()

	tests := []struct {
		name            string
		remaining       int
		reset           int
		expectedHealthy bool
	}{
		{"healthy update", 90, 60, true},
		{"warning update", 8, 30, false},
		{"critical update", 1, 45, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setQuota(t, tracker, tt.remaining, tt.reset)

			state, err := tracker.State(ctx)
			if err != nil {
				t.Fatalf("State() error = %v", err)
			}
			if state.Remaining != tt.remaining {
				t.Errorf("Remaining = %d, want %d", state.Remaining, tt.remaining)
			}
			if state.IsHealthy != tt.expectedHealthy {
				t.Errorf("IsHealthy = %v, want %v", state.IsHealthy, tt.expectedHealthy)
			}
		})
	}
}

func TestTracker_Integration_WaitForReset(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	tracker := newIntegrationTracker(redisClient, "integration")
	setQuota(t, tracker, 0, 2)

	start := time.Now()
	if err := tracker.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < time.Second {
		t.Errorf("Wait() returned after %v, expected to wait for the reset", elapsed)
	}
}

func TestTracker_Integration_SharedAcrossInstances(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	first := newIntegrationTracker(redisClient, "shared")
	second := newIntegrationTracker(redisClient, "shared")
	setQuota(t, first, 1, 600)

	err := second.Wait(context.Background())
	if err == nil {
		t.Fatal("Wait() should reject when the shared quota resets beyond MaxWait")
	}
}

func TestTracker_Integration_StateExpires(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	tracker := newIntegrationTracker(redisClient, "expiry")
	setQuota(t, tracker, 50, 1)

	ttl, err := redisClient.TTL(context.Background(), "mailer:rate_limit:expiry:remaining").Result()
	if err != nil {
		t.Fatalf("TTL() error = %v", err)
	}
	if ttl <= 0 || ttl > 2*time.Minute {
		t.Errorf("TTL = %v, want about one minute past reset", ttl)
	}
}
