//go:build integration

package lock

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestRedisLockerExclusive(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	locker := NewRedisLocker(client, WithTTL(2*time.Second), WithWait(50*time.Millisecond))
	key := "it-" + time.Now().Format(time.RFC3339Nano)

	release, err := locker.Acquire(ctx, key)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := locker.Acquire(ctx, key); !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("expected ErrNotAcquired, got %v", err)
	}
	if err := release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	again, err := locker.Acquire(ctx, key)
	if err != nil {
		t.Fatalf("re-acquire: %v", err)
	}
	_ = again(ctx)
}
