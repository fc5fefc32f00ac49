package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrStoreUnavailable is returned when the backing store cannot be reached.
var ErrStoreUnavailable = errors.New("store unavailable")

// Store is the key-value collaborator contract. The core owns two
// independently keyed instances: a session-scope store whose values live
// only as long as the device session (tokens, device id), and a durable
// store for longer-lived values (serialized profile, phone moment).
//
// Get returns the empty string, not an error, for a missing key. Ready
// gates the first read; callers must not read before it reports true.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Clear(ctx context.Context, key string) error
	Ready(ctx context.Context) bool
}

// Keys names the storage slots the core reads and writes. The zero value
// is not usable; use DefaultKeys.
type Keys struct {
	Token        string
	RefreshToken string
	DeviceID     string
	Profile      string
	PhoneMoment  string
}

// DefaultKeys returns the slot names used by the production web and mobile
// clients.
func DefaultKeys() Keys {
	return Keys{
		Token:        "token",
		RefreshToken: "refresh_token",
		DeviceID:     "dg_id",
		Profile:      "profile",
		PhoneMoment:  "phone_moment",
	}
}

// RedisStore is a Store backed by a Redis namespace. A non-zero TTL makes
// every value volatile, which models the session-scope (browser-session)
// lifetime; a zero TTL makes the store durable.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore wraps client under the given key prefix. Values expire
// after ttl; pass 0 for no expiry.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(k string) string {
	if s.prefix == "" {
		return k
	}
	return s.prefix + ":" + k
}

// Get returns the stored value, or "" when the key does not exist.
func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, s.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", errors.Join(ErrStoreUnavailable, err)
	}
	return v, nil
}

// Set writes value under key, applying the store's TTL.
func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.key(key), value, s.ttl).Err(); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

// Clear removes key. Clearing a missing key is not an error.
func (s *RedisStore) Clear(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

// Ready reports whether the backing Redis answers a ping.
func (s *RedisStore) Ready(ctx context.Context) bool {
	return s.client.Ping(ctx).Err() == nil
}

// MemoryStore is an in-process Store for tests and hosts without external
// persistence. It is always ready.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

// Get returns the stored value, or "" when the key does not exist.
func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key], nil
}

// Set writes value under key.
func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// Clear removes key.
func (s *MemoryStore) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

// Ready always reports true.
func (s *MemoryStore) Ready(context.Context) bool { return true }
