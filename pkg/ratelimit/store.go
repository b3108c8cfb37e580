package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store persists the quota state.
type Store interface {
	// Load returns the stored state, or nil when none is stored.
	Load(ctx context.Context) (*State, error)

	// Save replaces the stored state.
	Save(ctx context.Context, state *State) error
}

// MemoryStore keeps the state in process.
type MemoryStore struct {
	mu    sync.RWMutex
	state *State
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load implements Store.
func (m *MemoryStore) Load(ctx context.Context) (*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == nil {
		return nil, nil
	}
	s := *m.state
	return &s, nil
}

// Save implements Store.
func (m *MemoryStore) Save(ctx context.Context, state *State) error {
	s := *state
	m.mu.Lock()
	m.state = &s
	m.mu.Unlock()
	return nil
}

// Redis key suffixes for quota state storage.
const (
	redisKeyLimit     = "limit"
	redisKeyRemaining = "remaining"
	redisKeyReset     = "reset_timestamp"
	redisKeyUpdate    = "last_update"
)

// stateRetention keeps stored state around this long past its reset.
const stateRetention = time.Minute

// RedisStore shares the quota state between processes using the same
// account. Keys expire shortly after the window resets.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a store under "mailer:rate_limit:<account>:".
func NewRedisStore(client redis.UniversalClient, account string) *RedisStore {
	if account == "" {
		account = "default"
	}
	return &RedisStore{
		client: client,
		prefix: "mailer:rate_limit:" + account + ":",
	}
}

func (r *RedisStore) key(suffix string) string {
	return r.prefix + suffix
}

// Load implements Store.
func (r *RedisStore) Load(ctx context.Context) (*State, error) {
	pipe := r.client.Pipeline()
	limitCmd := pipe.Get(ctx, r.key(redisKeyLimit))
	remainingCmd := pipe.Get(ctx, r.key(redisKeyRemaining))
	resetCmd := pipe.Get(ctx, r.key(redisKeyReset))
	updateCmd := pipe.Get(ctx, r.key(redisKeyUpdate))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("load rate limit state: %w", err)
	}

	remaining, err := remainingCmd.Int()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get remaining: %w", err)
	}

	limit, err := limitCmd.Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get limit: %w", err)
	}

	reset, err := resetCmd.Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get reset timestamp: %w", err)
	}

	var lastUpdate time.Time
	if raw, err := updateCmd.Bytes(); err == nil {
		if err := json.Unmarshal(raw, &lastUpdate); err != nil {
			return nil, fmt.Errorf("parse last update: %w", err)
		}
	} else if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get last update: %w", err)
	}

	state := &State{
		Limit:      limit,
		Remaining:  remaining,
		ResetAt:    time.Unix(reset, 0),
		LastUpdate: lastUpdate,
	}
	state.UpdateHealth()
	return state, nil
}

// Save implements Store.
func (r *RedisStore) Save(ctx context.Context, state *State) error {
	lastUpdateJSON, err := json.Marshal(state.LastUpdate)
	if err != nil {
		return fmt.Errorf("marshal last update: %w", err)
	}

	ttl := state.TimeUntilReset() + stateRetention

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.key(redisKeyLimit), state.Limit, ttl)
	pipe.Set(ctx, r.key(redisKeyRemaining), state.Remaining, ttl)
	pipe.Set(ctx, r.key(redisKeyReset), state.ResetAt.Unix(), ttl)
	pipe.Set(ctx, r.key(redisKeyUpdate), lastUpdateJSON, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}
	return nil
}
