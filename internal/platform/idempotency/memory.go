package idempotency

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps records in process. It backs local runs without Redis and the tests.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Reserve(_ context.Context, scope Scope, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	now, ttl = now.UTC(), orDefaultTTL(ttl)
	id := scope.storageKey()

	s.mu.Lock()
	defer s.mu.Unlock()
	if record, ok := s.records[id]; ok && !record.expired(now) {
		return reservationFor(record, fingerprint)
	}
	record := pendingRecord(scope, fingerprint, now, ttl)
	s.records[id] = record
	return Reservation{State: ReservationStateNew, Record: record}, nil
}

func (s *MemoryStore) SaveResponse(_ context.Context, scope Scope, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	now, ttl = now.UTC(), orDefaultTTL(ttl)
	id := scope.storageKey()

	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	switch {
	case !ok:
		record = pendingRecord(scope, fingerprint, now, ttl)
	case record.Fingerprint != fingerprint:
		return ErrFingerprintMismatch
	}
	record.complete(resp, now, ttl)
	s.records[id] = record
	return nil
}

func (s *MemoryStore) Release(_ context.Context, scope Scope) error {
	s.mu.Lock()
	delete(s.records, scope.storageKey())
	s.mu.Unlock()
	return nil
}

// CleanupExpired removes up to limit expired records, oldest expiry first. A non-positive
// limit removes all of them.
func (s *MemoryStore) CleanupExpired(_ context.Context, now time.Time, limit int) (int, error) {
	now = now.UTC()
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []string
	for id, record := range s.records {
		if record.expired(now) {
			expired = append(expired, id)
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		return s.records[expired[i]].ExpiresAt.Before(s.records[expired[j]].ExpiresAt)
	})
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}
	for _, id := range expired {
		delete(s.records, id)
	}
	return len(expired), nil
}

func orDefaultTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}
