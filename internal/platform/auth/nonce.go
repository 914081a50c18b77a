package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// NonceStore records signature nonces for replay prevention. UseNonce reports false when the
// nonce was already seen within the scope and has not expired.
type NonceStore interface {
	UseNonce(ctx context.Context, scope, nonce string, expiry time.Time) (bool, error)
}

// InMemoryNonceStore suits a single instance and tests.
type InMemoryNonceStore struct {
	mu     sync.Mutex
	nonces map[string]time.Time
	now    func() time.Time
}

func NewInMemoryNonceStore() *InMemoryNonceStore {
	return &InMemoryNonceStore{nonces: make(map[string]time.Time), now: time.Now}
}

func (s *InMemoryNonceStore) UseNonce(_ context.Context, scope, nonce string, expiry time.Time) (bool, error) {
	if scope == "" || nonce == "" {
		return false, errors.New("auth: scope and nonce are required")
	}
	key := scope + "::" + nonce

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, exp := range s.nonces {
		if !exp.After(now) {
			delete(s.nonces, k)
		}
	}
	if !expiry.After(now) {
		return false, errors.New("auth: nonce expiry is in the past")
	}
	if _, ok := s.nonces[key]; ok {
		return false, nil
	}
	s.nonces[key] = expiry
	return true, nil
}

// RedisNonceStore shares nonces across instances using SET NX with an expiry.
type RedisNonceStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisNonceStore(client redis.UniversalClient) (*RedisNonceStore, error) {
	if client == nil {
		return nil, errors.New("auth: redis client is required")
	}
	return &RedisNonceStore{client: client, prefix: "nonce:", now: time.Now}, nil
}

func (s *RedisNonceStore) UseNonce(ctx context.Context, scope, nonce string, expiry time.Time) (bool, error) {
	if scope == "" || nonce == "" {
		return false, errors.New("auth: scope and nonce are required")
	}
	ttl := expiry.Sub(s.now())
	if ttl <= 0 {
		return false, errors.New("auth: nonce expiry is in the past")
	}
	return s.client.SetNX(ctx, s.prefix+scope+":"+nonce, 1, ttl).Result()
}
