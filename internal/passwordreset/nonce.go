package passwordreset

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// NonceStore records redeemed reset token ids.
type NonceStore interface {
	// Consume marks id used for ttl. It returns false when id was already used.
	Consume(ctx context.Context, id string, ttl time.Duration) (bool, error)
}

// RedisNonceStore keeps used ids as Redis keys with SET NX and a TTL.
type RedisNonceStore struct {
	client *redis.Client
	prefix string
}

// NewRedisNonceStore returns a store writing keys under prefix.
func NewRedisNonceStore(client *redis.Client, prefix string) *RedisNonceStore {
	if prefix == "" {
		prefix = "reset:jti"
	}
	return &RedisNonceStore{client: client, prefix: prefix}
}

// Consume implements NonceStore.
func (s *RedisNonceStore) Consume(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = time.Second
	}
	ok, err := s.client.SetNX(ctx, s.prefix+":"+id, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("consume reset nonce: %w", err)
	}
	return ok, nil
}

// MemoryNonceStore is an in-process NonceStore for single-instance deployments and tests.
type MemoryNonceStore struct {
	mu   sync.Mutex
	used map[string]time.Time
	nowF func() time.Time
}

// NewMemoryNonceStore returns an empty store.
func NewMemoryNonceStore() *MemoryNonceStore {
	return &MemoryNonceStore{
		used: make(map[string]time.Time),
		nowF: func() time.Time { return time.Now().UTC() },
	}
}

// Consume implements NonceStore. Expired entries are swept on each call.
func (s *MemoryNonceStore) Consume(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowF()
	for k, exp := range s.used {
		if !exp.After(now) {
			delete(s.used, k)
		}
	}
	if _, ok := s.used[id]; ok {
		return false, nil
	}
	s.used[id] = now.Add(ttl)
	return true, nil
}
