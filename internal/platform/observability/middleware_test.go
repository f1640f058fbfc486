package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/storefront-orders/api/internal/platform/requestctx"
)

func newObservedRouter(t *testing.T, register func(chi.Router)) (http.Handler, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	r := chi.NewRouter()
	r.Use(
		InjectLoggerMiddleware(logger),
		TraceMiddleware("shop-prod"),
		RecoveryMiddleware(logger),
		RequestLoggerMiddleware("shop-prod"),
	)
	r.Route("/api/orders", register)
	return r, logs
}

func TestRequestLoggerCarriesOrderID(t *testing.T) {
	var seen requestctx.Resource
	handler, logs := newObservedRouter(t, func(orders chi.Router) {
		orders.Patch("/{id}/payment", func(w http.ResponseWriter, r *http.Request) {
			seen, _ = requestctx.ResourceFrom(r.Context())
			requestctx.Logger(r.Context()).Info("payment verified")
			w.WriteHeader(http.StatusNoContent)
		})
	})

	req := httptest.NewRequest(http.MethodPatch, "/api/orders/ord_42/payment", nil)
	req.Header.Set(cloudTraceHeader, "105445aa7843bc8bf206b12000100000/1;o=1")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if seen.OrderID != "ord_42" || seen.Route != "/api/orders/{id}/payment" {
		t.Fatalf("unexpected resource %+v", seen)
	}
	if got := rr.Header().Get(cloudTraceHeader); !strings.HasPrefix(got, "105445aa7843bc8bf206b12000100000/") {
		t.Fatalf("expected trace header to be echoed, got %q", got)
	}

	handled := logs.FilterMessage("payment verified").All()
	if len(handled) != 1 || handled[0].ContextMap()["order_id"] != "ord_42" {
		t.Fatalf("expected handler log to carry order id, got %+v", handled)
	}
	completed := logs.FilterMessage("request completed").All()
	if len(completed) != 1 {
		t.Fatalf("expected one access log line, got %d", len(completed))
	}
	fields := completed[0].ContextMap()
	if fields["route"] != "/api/orders/{id}/payment" || fields["status"] != int64(http.StatusNoContent) {
		t.Fatalf("unexpected access log fields %#v", fields)
	}
	if fields["trace_id"] != "105445aa7843bc8bf206b12000100000" {
		t.Fatalf("expected trace id from the cloud trace header, got %#v", fields["trace_id"])
	}
}

func TestRecoveryMiddlewareWritesErrorEnvelope(t *testing.T) {
	handler, logs := newObservedRouter(t, func(orders chi.Router) {
		orders.Put("/cancellation-request/{id}", func(http.ResponseWriter, *http.Request) {
			panic("boom")
		})
	})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/api/orders/cancellation-request/cr_7", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if logs.FilterMessage("panic recovered").Len() != 1 {
		t.Fatalf("expected panic to be logged")
	}
	completed := logs.FilterMessage("request completed").All()
	if len(completed) != 1 || completed[0].Level != zapcore.ErrorLevel {
		t.Fatalf("expected an error access log line, got %+v", completed)
	}
	if completed[0].ContextMap()["order_request_id"] != "cr_7" {
		t.Fatalf("expected request id on the access log, got %#v", completed[0].ContextMap())
	}
}

func TestParseCloudTrace(t *testing.T) {
	sc, ok := parseCloudTrace("105445aa7843bc8bf206b12000100000/18446744073709551615;o=1")
	if !ok || !sc.IsSampled() || sc.SpanID().String() != "ffffffffffffffff" {
		t.Fatalf("unexpected span context %+v %v", sc, ok)
	}
	if formatCloudTrace(sc) != "105445aa7843bc8bf206b12000100000/18446744073709551615;o=1" {
		t.Fatalf("unexpected formatted header %s", formatCloudTrace(sc))
	}
	for _, header := range []string{"", "nothex/1", "105445aa7843bc8bf206b12000100000", "105445aa7843bc8bf206b12000100000/0"} {
		if _, ok := parseCloudTrace(header); ok {
			t.Fatalf("expected %q to be rejected", header)
		}
	}
}
