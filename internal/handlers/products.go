package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/storefront-orders/api/internal/domain"
	"github.com/storefront-orders/api/internal/platform/auth"
	"github.com/storefront-orders/api/internal/platform/httpx"
	"github.com/storefront-orders/api/internal/services"
)

const maxStockBodySize = 32 * 1024

// ProductHandlers exposes the stock ledger.
type ProductHandlers struct {
	authn    *auth.Authenticator
	ledger   services.StockLedger
	mutation []func(http.Handler) http.Handler
}

// NewProductHandlers constructs ProductHandlers. mutation middlewares (idempotency) wrap the
// routes that change stock and run after authentication.
func NewProductHandlers(authn *auth.Authenticator, ledger services.StockLedger, mutation ...func(http.Handler) http.Handler) *ProductHandlers {
	return &ProductHandlers{authn: authn, ledger: ledger, mutation: mutation}
}

// Routes registers the /api/products endpoints.
func (h *ProductHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	mutating := r.With(h.mutation...)
	r.Post("/validate-stock", h.validateStock)
	mutating.Post("/reserve-stock", h.reserveStock)
	mutating.With(requireStaff).Put("/bulk-stock", h.bulkStock)
	mutating.Post("/restore-stock", h.restoreStock)
}

type stockItemRequest struct {
	ID        string `json:"id"`
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

func stockLines(items []stockItemRequest) []domain.StockLine {
	lines := make([]domain.StockLine, 0, len(items))
	for _, item := range items {
		id := strings.TrimSpace(item.ID)
		if id == "" {
			id = strings.TrimSpace(item.ProductID)
		}
		lines = append(lines, domain.StockLine{ProductID: id, Quantity: item.Quantity})
	}
	return lines
}

type validateStockRequest struct {
	Items []stockItemRequest `json:"items"`
}

type stockCheckPayload struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	RequestedQuantity int    `json:"requestedQuantity"`
	AvailableStock    int    `json:"availableStock"`
	Valid             bool   `json:"valid"`
	Error             string `json:"error,omitempty"`
}

type validateStockResponse struct {
	Success  bool                `json:"success"`
	AllValid bool                `json:"allValid"`
	Items    []stockCheckPayload `json:"items"`
}

func (h *ProductHandlers) validateStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.ledger == nil {
		writeUnavailable(ctx, w, "stock_ledger")
		return
	}
	var req validateStockRequest
	if !decodeBody(w, r, maxStockBodySize, &req) {
		return
	}

	result, err := h.ledger.Validate(ctx, stockLines(req.Items))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	resp := validateStockResponse{Success: true, AllValid: result.AllValid, Items: make([]stockCheckPayload, 0, len(result.Items))}
	for _, item := range result.Items {
		resp.Items = append(resp.Items, stockCheckPayload{
			ID:                item.ProductID,
			Name:              item.Name,
			RequestedQuantity: item.RequestedQuantity,
			AvailableStock:    item.AvailableStock,
			Valid:             item.Valid,
			Error:             item.Error,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

type reserveStockRequest struct {
	Items            []stockItemRequest `json:"items"`
	ReservationID    string             `json:"reservationId"`
	ExpiresInMinutes *int               `json:"expiresInMinutes"`
}

type reserveStockResponse struct {
	Success       bool   `json:"success"`
	ReservationID string `json:"reservationId"`
	ExpiresAt     string `json:"expiresAt"`
}

func (h *ProductHandlers) reserveStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.ledger == nil {
		writeUnavailable(ctx, w, "stock_ledger")
		return
	}
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	var req reserveStockRequest
	if !decodeBody(w, r, maxStockBodySize, &req) {
		return
	}

	cmd := services.ReserveCommand{
		ReservationID: strings.TrimSpace(req.ReservationID),
		Items:         stockLines(req.Items),
		OwnerID:       actor.ID,
	}
	if req.ExpiresInMinutes != nil {
		if *req.ExpiresInMinutes <= 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "expiresInMinutes must be positive", http.StatusBadRequest))
			return
		}
		cmd.TTL = time.Duration(*req.ExpiresInMinutes) * time.Minute
	}

	reservation, err := h.ledger.Reserve(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, reserveStockResponse{
		Success:       true,
		ReservationID: reservation.ID,
		ExpiresAt:     formatTime(reservation.ExpiresAt),
	})
}

type bulkStockRequest struct {
	Updates       []stockItemRequest `json:"updates"`
	ReservationID string             `json:"reservationId"`
}

type stockChangePayload struct {
	ID            string `json:"id"`
	Name          string `json:"name,omitempty"`
	Quantity      int    `json:"quantity"`
	Released      int    `json:"released,omitempty"`
	StockQuantity int    `json:"stockQuantity"`
	Error         string `json:"error,omitempty"`
}

type bulkStockResponse struct {
	Success bool                 `json:"success"`
	Updated []stockChangePayload `json:"updated"`
}

func (h *ProductHandlers) bulkStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.ledger == nil {
		writeUnavailable(ctx, w, "stock_ledger")
		return
	}
	var req bulkStockRequest
	if !decodeBody(w, r, maxStockBodySize, &req) {
		return
	}

	changes, err := h.ledger.Decrement(ctx, stockLines(req.Updates), strings.TrimSpace(req.ReservationID))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	resp := bulkStockResponse{Success: true, Updated: make([]stockChangePayload, 0, len(changes))}
	for _, change := range changes {
		resp.Updated = append(resp.Updated, stockChangePayloadFrom(change))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

type restoreStockRequest struct {
	Items         []stockItemRequest `json:"items"`
	Reason        string             `json:"reason"`
	ReservationID string             `json:"reservationId"`
	OwnerID       string             `json:"ownerId"`
}

type restoreStockResponse struct {
	Success  bool                 `json:"success"`
	Restored []stockChangePayload `json:"restored"`
	Skipped  []stockChangePayload `json:"skipped,omitempty"`
}

func (h *ProductHandlers) restoreStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.ledger == nil {
		writeUnavailable(ctx, w, "stock_ledger")
		return
	}
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	var req restoreStockRequest
	if !decodeBody(w, r, maxStockBodySize, &req) {
		return
	}

	// Customers may only release their own holds; staff restock and may name the hold owner.
	cmd := services.RestoreCommand{
		Items:         stockLines(req.Items),
		Reason:        req.Reason,
		ReservationID: strings.TrimSpace(req.ReservationID),
		OwnerID:       actor.ID,
		HoldsOnly:     !actor.Staff,
	}
	if owner := strings.TrimSpace(req.OwnerID); owner != "" && actor.Staff {
		cmd.OwnerID = owner
	}
	changes, err := h.ledger.Restore(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	resp := restoreStockResponse{Success: true, Restored: make([]stockChangePayload, 0, len(changes))}
	for _, change := range changes {
		if change.Skipped {
			resp.Skipped = append(resp.Skipped, stockChangePayloadFrom(change))
			continue
		}
		resp.Restored = append(resp.Restored, stockChangePayloadFrom(change))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func stockChangePayloadFrom(change services.StockChange) stockChangePayload {
	return stockChangePayload{
		ID:            change.ProductID,
		Name:          change.Name,
		Quantity:      change.Quantity,
		Released:      change.Released,
		StockQuantity: change.StockQuantity,
		Error:         change.Error,
	}
}
