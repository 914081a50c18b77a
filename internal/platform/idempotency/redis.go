package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "idem:"

// Deletes the key only while it still belongs to the fingerprint in ARGV[1].
const redisReleaseScript = `
local raw = redis.call("GET", KEYS[1])
if not raw then
  return 0
end
local record = cjson.decode(raw)
if record["fingerprint"] == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// RedisStore keeps idempotency records in Redis. Expiry is delegated to key TTLs, so
// CleanupExpired has nothing to do.
type RedisStore struct {
	client  redis.UniversalClient
	prefix  string
	release *redis.Script
}

// RedisOption customises a RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix namespaces the keys written by the store.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("idempotency: redis client is required")
	}
	store := &RedisStore{
		client:  client,
		prefix:  defaultRedisPrefix,
		release: redis.NewScript(redisReleaseScript),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

type redisRecord struct {
	Key             string              `json:"key"`
	Fingerprint     string              `json:"fingerprint"`
	Status          Status              `json:"status"`
	ResponseStatus  int                 `json:"responseStatus,omitempty"`
	ResponseHeaders map[string][]string `json:"responseHeaders,omitempty"`
	ResponseBody    []byte              `json:"responseBody,omitempty"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
	ExpiresAt       time.Time           `json:"expiresAt"`
}

func (r redisRecord) toRecord() Record {
	return Record(r)
}

func (s *RedisStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	now = now.UTC()
	ttl = effectiveTTL(ttl)
	pending := redisRecord{
		Key:         key,
		Fingerprint: fingerprint,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
	payload, err := json.Marshal(pending)
	if err != nil {
		return Reservation{}, fmt.Errorf("idempotency: encode record: %w", err)
	}

	redisKey := s.redisKey(key)
	ok, err := s.client.SetNX(ctx, redisKey, payload, ttl).Result()
	if err != nil {
		return Reservation{}, fmt.Errorf("idempotency: reserve: %w", err)
	}
	if ok {
		return Reservation{State: ReservationStateNew, Record: pending.toRecord()}, nil
	}

	existing, found, err := s.load(ctx, redisKey)
	if err != nil {
		return Reservation{}, err
	}
	if !found {
		// Expired between SETNX and GET.
		ok, err = s.client.SetNX(ctx, redisKey, payload, ttl).Result()
		if err != nil {
			return Reservation{}, fmt.Errorf("idempotency: reserve: %w", err)
		}
		if ok {
			return Reservation{State: ReservationStateNew, Record: pending.toRecord()}, nil
		}
		return Reservation{State: ReservationStatePending, Record: pending.toRecord()}, nil
	}
	if existing.Fingerprint != fingerprint {
		return Reservation{}, ErrFingerprintMismatch
	}
	if existing.Status == StatusCompleted {
		return Reservation{State: ReservationStateCompleted, Record: existing.toRecord()}, nil
	}
	return Reservation{State: ReservationStatePending, Record: existing.toRecord()}, nil
}

func (s *RedisStore) SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	ttl = effectiveTTL(ttl)
	redisKey := s.redisKey(key)

	record := redisRecord{Key: key, Fingerprint: fingerprint, CreatedAt: now}
	existing, found, err := s.load(ctx, redisKey)
	if err != nil {
		return err
	}
	if found {
		if existing.Fingerprint != fingerprint {
			return ErrFingerprintMismatch
		}
		record.CreatedAt = existing.CreatedAt
	}

	record.Status = StatusCompleted
	record.ResponseStatus = resp.Status
	record.ResponseHeaders = resp.replayable()
	if len(resp.Body) > 0 {
		record.ResponseBody = append([]byte(nil), resp.Body...)
	}
	record.UpdatedAt = now
	record.ExpiresAt = now.Add(ttl)

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("idempotency: encode record: %w", err)
	}
	if err := s.client.Set(ctx, redisKey, payload, ttl).Err(); err != nil {
		return fmt.Errorf("idempotency: save response: %w", err)
	}
	return nil
}

func (s *RedisStore) Release(ctx context.Context, key, fingerprint string) error {
	if err := s.release.Run(ctx, s.client, []string{s.redisKey(key)}, fingerprint).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("idempotency: release: %w", err)
	}
	return nil
}

func (s *RedisStore) CleanupExpired(context.Context, time.Time, int) (int, error) {
	return 0, nil
}

func (s *RedisStore) load(ctx context.Context, redisKey string) (redisRecord, bool, error) {
	raw, err := s.client.Get(ctx, redisKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return redisRecord{}, false, nil
	}
	if err != nil {
		return redisRecord{}, false, fmt.Errorf("idempotency: load: %w", err)
	}
	var record redisRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return redisRecord{}, false, fmt.Errorf("idempotency: decode record: %w", err)
	}
	return record, true, nil
}

func (s *RedisStore) redisKey(key string) string {
	return s.prefix + compositeKey(key)
}
