package cache

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
)

// setupTestRedis starts an in-memory Redis for the test.
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return client, mr
}

func TestNewManager_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewManager should panic with nil redis client")
		}
	}()
	NewManager(nil)
}

func TestManager_SetAndGet(t *testing.T) {
	client, mr := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()

	key := Key{Endpoint: "/v3/campaigns", Query: url.Values{"page": []string{"1"}}, Account: "acme"}
	entry := &Entry{
		Data:       []byte(`{"data":[{"id":1}]}`),
		Expires:    time.Now().Add(5 * time.Minute),
		StatusCode: 200,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		CachedAt:   time.Now(),
	}

	hitsBefore := testutil.ToFloat64(CacheHits)

	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	retrieved, err := manager.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(retrieved.Data) != string(entry.Data) {
		t.Errorf("Data mismatch: got %s, want %s", retrieved.Data, entry.Data)
	}
	if retrieved.StatusCode != 200 {
		t.Errorf("StatusCode = %d, want 200", retrieved.StatusCode)
	}
	if got := testutil.ToFloat64(CacheHits) - hitsBefore; got != 1 {
		t.Errorf("hits delta = %v, want 1", got)
	}

	// Without validators the Redis TTL equals the freshness lifetime
	if ttl := mr.TTL(key.String()); ttl <= 0 || ttl > 5*time.Minute {
		t.Errorf("redis TTL = %v, want at most 5m", ttl)
	}
}

func TestManager_Get_CacheMiss(t *testing.T) {
	client, _ := setupTestRedis(t)
	manager := NewManager(client)

	missesBefore := testutil.ToFloat64(CacheMisses)

	_, err := manager.Get(context.Background(), Key{Endpoint: "/v3/nonexistent"})
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss, got %v", err)
	}
	if got := testutil.ToFloat64(CacheMisses) - missesBefore; got != 1 {
		t.Errorf("misses delta = %v, want 1", got)
	}
}

func TestManager_Get_InvalidEntry(t *testing.T) {
	client, mr := setupTestRedis(t)
	manager := NewManager(client)
	key := Key{Endpoint: "/v3/templates"}

	if err := mr.Set(key.String(), "not json"); err != nil {
		t.Fatal(err)
	}

	_, err := manager.Get(context.Background(), key)
	if !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("Expected ErrInvalidEntry, got %v", err)
	}
}

func TestManager_Set_Expired(t *testing.T) {
	client, mr := setupTestRedis(t)
	manager := NewManager(client)
	key := Key{Endpoint: "/v3/lists"}

	err := manager.Set(context.Background(), key, &Entry{
		Data:    []byte("stale"),
		Expires: time.Now().Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if mr.Exists(key.String()) {
		t.Error("expired entry without validators should not be stored")
	}
}

func TestManager_Set_Nil(t *testing.T) {
	client, _ := setupTestRedis(t)
	if err := NewManager(client).Set(context.Background(), Key{}, nil); err == nil {
		t.Error("Set(nil) should fail")
	}
}

func TestManager_StaleEntryRevalidation(t *testing.T) {
	client, mr := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()
	key := Key{Endpoint: "/v3/senders"}

	err := manager.Set(ctx, key, &Entry{
		Data:       []byte(`{"data":[]}`),
		ETag:       `"v7"`,
		Expires:    time.Now().Add(time.Second),
		StatusCode: 200,
		CachedAt:   time.Now(),
	})
	if err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if ttl := mr.TTL(key.String()); ttl <= StaleRetention {
		t.Errorf("redis TTL = %v, want beyond StaleRetention for revalidatable entries", ttl)
	}

	time.Sleep(1100 * time.Millisecond)

	if _, err := manager.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("Get on stale entry: expected ErrCacheMiss, got %v", err)
	}

	stale, err := manager.Lookup(ctx, key)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if stale.ETag != `"v7"` {
		t.Errorf("ETag = %q", stale.ETag)
	}

	revalidationsBefore := testutil.ToFloat64(Revalidations)
	if err := manager.Touch(ctx, key, time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("Touch failed: %v", err)
	}
	if got := testutil.ToFloat64(Revalidations) - revalidationsBefore; got != 1 {
		t.Errorf("revalidations delta = %v, want 1", got)
	}

	fresh, err := manager.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get after Touch failed: %v", err)
	}
	if string(fresh.Data) != `{"data":[]}` {
		t.Errorf("Data = %s", fresh.Data)
	}
}

func TestManager_Touch_Missing(t *testing.T) {
	client, _ := setupTestRedis(t)

	err := NewManager(client).Touch(context.Background(), Key{Endpoint: "/v3/gone"}, time.Now().Add(time.Minute))
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss, got %v", err)
	}
}

func TestManager_Delete(t *testing.T) {
	client, mr := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()
	key := Key{Endpoint: "/v3/webhooks"}

	if err := manager.Set(ctx, key, &Entry{Data: []byte("x"), Expires: time.Now().Add(time.Minute)}); err != nil {
		t.Fatal(err)
	}
	if err := manager.Delete(ctx, key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if mr.Exists(key.String()) {
		t.Error("entry still present after Delete")
	}
}

func TestManager_InvalidateEndpoint(t *testing.T) {
	client, mr := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()

	keys := []Key{
		{Endpoint: "/v3/campaigns"},
		{Endpoint: "/v3/campaigns", Query: url.Values{"page": []string{"2"}}},
		{Endpoint: "/v3/campaigns", Account: "acme"},
		{Endpoint: "/v3/campaigns/42"},
	}
	for i := 0; i < 150; i++ {
		keys = append(keys, Key{Endpoint: "/v3/campaigns", Query: url.Values{"page": []string{string(rune('a' + i%26))}, "n": []string{time.Duration(i).String()}}})
	}
	untouched := []Key{
		{Endpoint: "/v3/campaigns_archive"},
		{Endpoint: "/v3/contacts"},
	}

	for _, key := range append(keys, untouched...) {
		if err := manager.Set(ctx, key, &Entry{Data: []byte("x"), Expires: time.Now().Add(time.Minute)}); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := manager.InvalidateEndpoint(ctx, "/v3/campaigns/")
	if err != nil {
		t.Fatalf("InvalidateEndpoint failed: %v", err)
	}
	if removed != len(keys) {
		t.Errorf("removed = %d, want %d", removed, len(keys))
	}
	for _, key := range untouched {
		if !mr.Exists(key.String()) {
			t.Errorf("%s should not be invalidated", key)
		}
	}
}
