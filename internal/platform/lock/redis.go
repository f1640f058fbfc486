package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "lock:order:"

// releaseIfOwner deletes the key only while it still holds our token, so an expired lock that
// was re-acquired by another holder is left alone.
var releaseIfOwner = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX and a compare-and-delete release.
type RedisLocker struct {
	client redis.UniversalClient
	opts   options
}

// NewRedisLocker constructs a Redis-backed Locker.
func NewRedisLocker(client redis.UniversalClient, opts ...Option) *RedisLocker {
	return &RedisLocker{client: client, opts: buildOptions(opts)}
}

// Acquire polls until the key is free, ctx ends, or the wait deadline passes.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (Release, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	redisKey := keyPrefix + key
	deadline := time.Now().Add(l.opts.wait)
	interval := defaultInterval

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.opts.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("lock: acquire %s: %w", key, err)
		}
		if ok {
			return l.release(redisKey, token), nil
		}
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrNotAcquired, key)
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		interval = min(interval*2, maxInterval)
	}
}

func (l *RedisLocker) release(redisKey, token string) Release {
	var once sync.Once
	return func(ctx context.Context) error {
		var err error
		once.Do(func() {
			err = releaseIfOwner.Run(ctx, l.client, []string{redisKey}, token).Err()
		})
		return err
	}
}

func newToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("lock: token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
