package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/storefront-orders/api/internal/platform/auth"
	"github.com/storefront-orders/api/internal/services"
)

type stubSweeper struct {
	released int
	err      error
	calls    int
}

func (s *stubSweeper) SweepOnce(context.Context) (int, error) {
	s.calls++
	return s.released, s.err
}

type stubRelay struct {
	result    services.RelayResult
	err       error
	lastLimit int
}

func (s *stubRelay) RelayOnce(_ context.Context, limit int) (services.RelayResult, error) {
	s.lastLimit = limit
	return s.result, s.err
}

func internalRouter(h *InternalHandlers) chi.Router {
	router := chi.NewRouter()
	router.Route("/internal", h.Routes)
	return router
}

func serveInternal(router http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	req = req.WithContext(auth.WithServiceIdentity(req.Context(), &auth.ServiceIdentity{
		Subject: "scheduler",
		Email:   "scheduler@project.iam.gserviceaccount.com",
	}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestInternalHandlersSweep(t *testing.T) {
	sweeper := &stubSweeper{released: 3}
	rr := serveInternal(internalRouter(NewInternalHandlers(sweeper, nil, 0)), "/internal/reservations:sweep")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeMap(t, rr)
	if body["released"] != float64(3) {
		t.Fatalf("expected released=3, got %v", body["released"])
	}
	if body["caller"] != "scheduler@project.iam.gserviceaccount.com" {
		t.Fatalf("unexpected caller %v", body["caller"])
	}
	if sweeper.calls != 1 {
		t.Fatalf("expected one sweep, got %d", sweeper.calls)
	}
}

func TestInternalHandlersSweepFailure(t *testing.T) {
	sweeper := &stubSweeper{err: errors.New("firestore down")}
	rr := serveInternal(internalRouter(NewInternalHandlers(sweeper, nil, 0)), "/internal/reservations:sweep")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rr.Code)
	}
}

func TestInternalHandlersRelay(t *testing.T) {
	relay := &stubRelay{result: services.RelayResult{Published: 4, Failed: 1, Parked: 1}}
	rr := serveInternal(internalRouter(NewInternalHandlers(nil, relay, 25)), "/internal/notifications:relay")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if relay.lastLimit != 25 {
		t.Fatalf("expected batch size 25, got %d", relay.lastLimit)
	}
	body := decodeMap(t, rr)
	if body["published"] != float64(4) || body["failed"] != float64(1) || body["parked"] != float64(1) {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestInternalHandlersUnconfigured(t *testing.T) {
	router := internalRouter(NewInternalHandlers(nil, nil, 0))
	for _, path := range []string{"/internal/reservations:sweep", "/internal/notifications:relay"} {
		if rr := serveInternal(router, path); rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s: expected status 503, got %d", path, rr.Code)
		}
	}
}
