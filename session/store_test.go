package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStore(t *testing.T, prefix string, ttl time.Duration) (*RedisStore, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisStore(rdb, prefix, ttl), mr, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store, mr, done := newRedisStore(t, "ac", 0)
	defer done()
	ctx := context.Background()

	if err := store.Set(ctx, "token", "abc"); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	got, err := store.Get(ctx, "token")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got != "abc" {
		t.Fatalf("got %q, want %q", got, "abc")
	}
	if !mr.Exists("ac:token") {
		t.Fatalf("expected prefixed key ac:token in redis")
	}

	if err := store.Clear(ctx, "token"); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	got, err = store.Get(ctx, "token")
	if err != nil {
		t.Fatalf("get after clear failed: %v", err)
	}
	if got != "" {
		t.Fatalf("cleared key still returns %q", got)
	}
}

func TestRedisStoreMissingKeyIsNotAnError(t *testing.T) {
	store, _, done := newRedisStore(t, "", 0)
	defer done()

	got, err := store.Get(context.Background(), "never-set")
	if err != nil {
		t.Fatalf("missing key returned error: %v", err)
	}
	if got != "" {
		t.Fatalf("missing key returned %q", got)
	}
}

func TestRedisStoreTTL(t *testing.T) {
	store, mr, done := newRedisStore(t, "sess", time.Minute)
	defer done()

	if err := store.Set(context.Background(), "token", "abc"); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	got, err := store.Get(context.Background(), "token")
	if err != nil {
		t.Fatalf("get after expiry failed: %v", err)
	}
	if got != "" {
		t.Fatalf("expired key still returns %q", got)
	}
}

func TestRedisStoreUnavailable(t *testing.T) {
	store, mr, _ := newRedisStore(t, "ac", 0)
	mr.Close()

	ctx := context.Background()
	if store.Ready(ctx) {
		t.Fatalf("closed backend reported ready")
	}
	if _, err := store.Get(ctx, "token"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if err := store.Set(ctx, "token", "v"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if !store.Ready(ctx) {
		t.Fatalf("memory store not ready")
	}
	if err := store.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if got, _ := store.Get(ctx, "k"); got != "v" {
		t.Fatalf("got %q, want v", got)
	}
	if err := store.Clear(ctx, "k"); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if got, _ := store.Get(ctx, "k"); got != "" {
		t.Fatalf("cleared key returns %q", got)
	}
}
