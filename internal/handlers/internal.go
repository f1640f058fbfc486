package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/storefront-orders/api/internal/platform/auth"
	"github.com/storefront-orders/api/internal/platform/httpx"
	"github.com/storefront-orders/api/internal/services"
)

// ReservationSweeper releases one batch of expired stock holds.
type ReservationSweeper interface {
	SweepOnce(ctx context.Context) (int, error)
}

// InternalHandlers serves scheduler-triggered maintenance endpoints. The /internal group is
// guarded by OIDC middleware configured on the router.
type InternalHandlers struct {
	sweeper    ReservationSweeper
	relay      services.NotificationRelay
	relayBatch int
}

// NewInternalHandlers constructs InternalHandlers.
func NewInternalHandlers(sweeper ReservationSweeper, relay services.NotificationRelay, relayBatch int) *InternalHandlers {
	return &InternalHandlers{sweeper: sweeper, relay: relay, relayBatch: relayBatch}
}

// Routes registers the /internal endpoints.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/reservations:sweep", h.sweepReservations)
	r.Post("/notifications:relay", h.relayNotifications)
}

func (h *InternalHandlers) sweepReservations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.sweeper == nil {
		writeUnavailable(ctx, w, "reservation_sweeper")
		return
	}
	released, err := h.sweeper.SweepOnce(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"released": released,
		"caller":   callerEmail(ctx),
	})
}

func (h *InternalHandlers) relayNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.relay == nil {
		writeUnavailable(ctx, w, "notification_relay")
		return
	}
	result, err := h.relay.RelayOnce(ctx, h.relayBatch)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"published": result.Published,
		"failed":    result.Failed,
		"parked":    result.Parked,
		"caller":    callerEmail(ctx),
	})
}

func callerEmail(ctx context.Context) string {
	if identity, ok := auth.ServiceIdentityFromContext(ctx); ok {
		return identity.Email
	}
	return ""
}
