package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "orders:idem:"

// RedisStore keeps idempotency records as JSON values whose expiry matches the record TTL.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore constructs a Redis-backed idempotency store.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, prefix: defaultRedisPrefix}
}

// Reserve claims the scope with SET NX; an existing value is replayed or reported as pending.
func (s *RedisStore) Reserve(ctx context.Context, scope Scope, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	now, ttl = now.UTC(), orDefaultTTL(ttl)
	redisKey := s.prefix + scope.storageKey()
	pending := pendingRecord(scope, fingerprint, now, ttl)
	payload, err := json.Marshal(pending)
	if err != nil {
		return Reservation{}, err
	}

	// the existing record may expire between SETNX and GET
	for attempt := 0; attempt < 2; attempt++ {
		created, err := s.client.SetNX(ctx, redisKey, payload, ttl).Result()
		if err != nil {
			return Reservation{}, err
		}
		if created {
			return Reservation{State: ReservationStateNew, Record: pending}, nil
		}

		record, found, err := s.load(ctx, redisKey)
		if err != nil {
			return Reservation{}, err
		}
		if found {
			return reservationFor(record, fingerprint)
		}
	}
	return Reservation{State: ReservationStatePending, Record: pending}, nil
}

// SaveResponse stores the completed response, replacing the pending marker.
func (s *RedisStore) SaveResponse(ctx context.Context, scope Scope, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	now, ttl = now.UTC(), orDefaultTTL(ttl)
	redisKey := s.prefix + scope.storageKey()
	record, found, err := s.load(ctx, redisKey)
	if err != nil {
		return err
	}
	if found && record.Fingerprint != fingerprint {
		return ErrFingerprintMismatch
	}
	if !found {
		record = pendingRecord(scope, fingerprint, now, ttl)
	}
	record.complete(resp, now, ttl)

	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, redisKey, payload, ttl).Err()
}

// Release deletes the reservation so that subsequent attempts may retry.
func (s *RedisStore) Release(ctx context.Context, scope Scope) error {
	return s.client.Del(ctx, s.prefix+scope.storageKey()).Err()
}

// CleanupExpired is a no-op; Redis evicts records when their TTL lapses.
func (s *RedisStore) CleanupExpired(context.Context, time.Time, int) (int, error) {
	return 0, nil
}

func (s *RedisStore) load(ctx context.Context, redisKey string) (Record, bool, error) {
	raw, err := s.client.Get(ctx, redisKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return Record{}, false, err
	}
	return record, true, nil
}
