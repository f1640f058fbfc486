//go:build integration

package idempotency

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestRedisStoreLifecycle(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	store := NewRedisStore(client)
	scope := Scope{Key: "order-move-" + time.Now().Format(time.RFC3339Nano), Requester: "staff_1", Operation: "POST /api/orders/move"}

	first, err := store.Reserve(ctx, scope, "fp-1", fixedTime, time.Minute)
	if err != nil || first.State != ReservationStateNew {
		t.Fatalf("expected new reservation, got %#v %v", first, err)
	}
	second, err := store.Reserve(ctx, scope, "fp-1", fixedTime, time.Minute)
	if err != nil || second.State != ReservationStatePending {
		t.Fatalf("expected pending reservation, got %#v %v", second, err)
	}

	resp := Response{Status: http.StatusOK, Headers: http.Header{"Content-Type": {"application/json"}}, Body: []byte(`{"success":true}`)}
	if err := store.SaveResponse(ctx, scope, "fp-1", resp, fixedTime, time.Minute); err != nil {
		t.Fatalf("save response: %v", err)
	}
	replay, err := store.Reserve(ctx, scope, "fp-1", fixedTime, time.Minute)
	if err != nil || replay.State != ReservationStateCompleted || string(replay.Record.ResponseBody) != `{"success":true}` {
		t.Fatalf("expected completed replay, got %#v %v", replay, err)
	}

	if err := store.Release(ctx, scope); err != nil {
		t.Fatalf("release: %v", err)
	}
	again, err := store.Reserve(ctx, scope, "fp-1", fixedTime, time.Minute)
	if err != nil || again.State != ReservationStateNew {
		t.Fatalf("expected new reservation after release, got %#v %v", again, err)
	}
}
