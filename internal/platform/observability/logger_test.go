package observability

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/storefront-orders/api/internal/platform/requestctx"
)

func TestEventLoggerPrefersRequestLogger(t *testing.T) {
	fallbackCore, fallbackLogs := observer.New(zapcore.InfoLevel)
	requestCore, requestLogs := observer.New(zapcore.InfoLevel)

	logFn := EventLogger(zap.New(fallbackCore))

	logFn(context.Background(), "order.moved", map[string]any{"orderId": "ord_1"})
	if fallbackLogs.Len() != 1 {
		t.Fatalf("expected fallback logger to receive event, got %d", fallbackLogs.Len())
	}

	ctx := requestctx.WithLogger(context.Background(), zap.New(requestCore))
	logFn(ctx, "notification.publish_failed", map[string]any{"error": "boom", "attempt": 2})

	if requestLogs.Len() != 1 {
		t.Fatalf("expected request logger to receive event, got %d", requestLogs.Len())
	}
	entry := requestLogs.All()[0]
	if entry.Level != zapcore.WarnLevel {
		t.Fatalf("expected warn level for failure events, got %s", entry.Level)
	}
	fields := entry.ContextMap()
	if fields["event"] != "notification.publish_failed" || fields["error"] != "boom" {
		t.Fatalf("unexpected fields %#v", fields)
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.RecordMove(context.Background(), "pending", "accepted", "ok")
	m.RecordDecision(context.Background(), "cancellation", "approved")

	metrics, err := NewMetrics(nil)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	metrics.RecordStock(context.Background(), "decrement", "ok")
	metrics.RecordNotification(context.Background(), "log", "ok")
}
