package idempotency

import (
	"context"
	"sort"
	"sync"
	"time"
)

const defaultMemoryLimit = 10000

// MemoryStore keeps records in process for single-instance and local runs. It holds at most
// limit keys; when full, the record closest to expiry is evicted first.
type MemoryStore struct {
	mu      sync.Mutex
	limit   int
	records map[string]*Record
}

// MemoryOption customises a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryLimit bounds the number of keys retained.
func WithMemoryLimit(limit int) MemoryOption {
	return func(s *MemoryStore) {
		if limit > 0 {
			s.limit = limit
		}
	}
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{limit: defaultMemoryLimit, records: make(map[string]*Record)}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Len reports the number of retained keys, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *MemoryStore) Reserve(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	now = now.UTC()
	id := compositeKey(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if record, ok := s.records[id]; ok && !record.expired(now) {
		if record.Fingerprint != fingerprint {
			return Reservation{}, ErrFingerprintMismatch
		}
		state := ReservationStatePending
		if record.Status == StatusCompleted {
			state = ReservationStateCompleted
		}
		return Reservation{State: state, Record: record.clone()}, nil
	}

	s.makeRoom(now)
	record := newPendingRecord(key, fingerprint, now, ttl)
	s.records[id] = &record
	return Reservation{State: ReservationStateNew, Record: record.clone()}, nil
}

func (s *MemoryStore) SaveResponse(_ context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	id := compositeKey(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		s.makeRoom(now)
		pending := newPendingRecord(key, fingerprint, now, ttl)
		record = &pending
		s.records[id] = record
	} else if record.Fingerprint != fingerprint {
		return ErrFingerprintMismatch
	}
	record.complete(resp, now, ttl)
	return nil
}

// Release drops the key if fingerprint still holds it.
func (s *MemoryStore) Release(_ context.Context, key, fingerprint string) error {
	id := compositeKey(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if record, ok := s.records[id]; ok && record.Fingerprint == fingerprint {
		delete(s.records, id)
	}
	return nil
}

// CleanupExpired removes at most limit expired records; limit <= 0 removes all of them.
func (s *MemoryStore) CleanupExpired(_ context.Context, now time.Time, limit int) (int, error) {
	now = now.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, record := range s.records {
		if limit > 0 && removed >= limit {
			break
		}
		if record.expired(now) {
			delete(s.records, id)
			removed++
		}
	}
	return removed, nil
}

// makeRoom frees a slot when the store is full. Callers hold s.mu.
func (s *MemoryStore) makeRoom(now time.Time) {
	if len(s.records) < s.limit {
		return
	}
	for id, record := range s.records {
		if record.expired(now) {
			delete(s.records, id)
		}
	}
	if len(s.records) < s.limit {
		return
	}

	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return s.records[ids[i]].ExpiresAt.Before(s.records[ids[j]].ExpiresAt)
	})
	for _, id := range ids[:len(s.records)-s.limit+1] {
		delete(s.records, id)
	}
}
