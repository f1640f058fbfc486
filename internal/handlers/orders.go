package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/storefront-orders/api/internal/domain"
	"github.com/storefront-orders/api/internal/platform/auth"
	"github.com/storefront-orders/api/internal/platform/httpx"
	"github.com/storefront-orders/api/internal/platform/storage"
	"github.com/storefront-orders/api/internal/services"
)

const (
	maxOrderBodySize   = 32 * 1024
	maxRequestBodySize = 16 * 1024
)

// EvidenceUploader signs upload URLs for return evidence photos.
type EvidenceUploader interface {
	UploadURL(ctx context.Context, ownerID, contentType string) (storage.UploadTicket, error)
}

// OrderHandlerDeps bundles the services behind /api/orders.
type OrderHandlerDeps struct {
	Authn    *auth.Authenticator
	Moves    services.OrderMoveEngine
	Requests services.RequestWorkflow
	Query    services.OrderQuery
	Admin    services.OrderAdminService
	Intake   services.OrderIntake
	Uploads  EvidenceUploader
	// Mutation middlewares wrap every state-changing route after authentication.
	Mutation []func(http.Handler) http.Handler

	SubmissionLimit  int
	SubmissionWindow time.Duration
	Clock            func() time.Time
}

// OrderHandlers exposes order lifecycle endpoints.
type OrderHandlers struct {
	authn    *auth.Authenticator
	moves    services.OrderMoveEngine
	requests services.RequestWorkflow
	query    services.OrderQuery
	admin    services.OrderAdminService
	intake   services.OrderIntake
	uploads  EvidenceUploader
	mutation []func(http.Handler) http.Handler
	limiter  *submissionLimiter
}

// NewOrderHandlers constructs OrderHandlers.
func NewOrderHandlers(deps OrderHandlerDeps) *OrderHandlers {
	return &OrderHandlers{
		authn:    deps.Authn,
		moves:    deps.Moves,
		requests: deps.Requests,
		query:    deps.Query,
		admin:    deps.Admin,
		intake:   deps.Intake,
		uploads:  deps.Uploads,
		mutation: deps.Mutation,
		limiter:  newSubmissionLimiter(deps.SubmissionLimit, deps.SubmissionWindow, deps.Clock),
	}
}

// Routes registers the /api/orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	staff := r.With(requireStaff)
	mutating := r.With(h.mutation...)
	staffMutating := mutating.With(requireStaff)
	submissions := mutating.With(h.limiter.Middleware)

	staff.Get("/", h.listOrders)
	mutating.Post("/", h.checkout)
	staffMutating.Post("/move", h.moveOrder)

	submissions.Post("/cancel-request", h.requestCancellation)
	staff.Get("/cancellation-request", h.listCancellationRequests)
	staffMutating.Put("/cancellation-request/{id}", h.decideCancellation)
	staffMutating.Post("/cancellation-request/{id}/restore", h.restoreCancellation)

	submissions.Post("/return-request", h.requestReturn)
	submissions.Post("/return-request/upload-url", h.returnUploadURL)
	staff.Get("/return-request", h.listReturnRequests)
	staffMutating.Put("/return-request/{id}", h.decideReturn)
	staff.Get("/returned", h.listReturnedOrders)
	staff.Get("/returned/{id}", h.getReturnedOrder)

	r.Get("/lookup", h.ownerOrders)
	r.Get("/{id}", h.ownerOrders)
	staff.Get("/{id}/moves", h.listMoves)
	staffMutating.Patch("/{id}/payment", h.verifyPayment)
	staffMutating.Patch("/{id}/notes", h.updateNotes)
	mutating.With(requireAdmin).Delete("/{id}", h.purgeOrder)
}

type moveOrderRequest struct {
	OrderID        string `json:"orderId"`
	Operation      string `json:"operation"`
	FromCollection string `json:"fromCollection"`
	ToCollection   string `json:"toCollection"`
	DenialReason   string `json:"denialReason"`
	ReturnReason   string `json:"returnReason"`
	ReturnImage    string `json:"returnImage"`
}

type moveOrderResponse struct {
	Success    bool         `json:"success"`
	NewOrderID string       `json:"newOrderId"`
	Order      orderPayload `json:"order"`
	Move       movePayload  `json:"move"`
}

func (h *OrderHandlers) moveOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.moves == nil {
		writeUnavailable(ctx, w, "order_move")
		return
	}
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	var req moveOrderRequest
	if !decodeBody(w, r, maxOrderBodySize, &req) {
		return
	}

	from, ok := domain.ParsePartition(req.FromCollection)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "fromCollection is not a known order collection", http.StatusBadRequest))
		return
	}
	to, ok := domain.ParsePartition(req.ToCollection)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "toCollection is not a known order collection", http.StatusBadRequest))
		return
	}

	result, err := h.moves.Move(ctx, services.MoveCommand{
		OrderID:      strings.TrimSpace(req.OrderID),
		Operation:    strings.TrimSpace(req.Operation),
		From:         from,
		To:           to,
		DenialReason: req.DenialReason,
		ReturnReason: req.ReturnReason,
		ReturnImage:  strings.TrimSpace(req.ReturnImage),
		Actor:        actor,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, moveOrderResponse{
		Success:    true,
		NewOrderID: result.NewOrderID,
		Order:      buildOrderPayload(result.Order),
		Move:       buildMovePayload(result.Move),
	})
}

type cancelRequestBody struct {
	OrderID            string `json:"orderId"`
	Reason             string `json:"reason"`
	AdditionalComments string `json:"additionalComments"`
}

type cancellationResponse struct {
	Success   bool                `json:"success"`
	RequestID string              `json:"requestId"`
	Request   cancellationPayload `json:"request"`
}

func (h *OrderHandlers) requestCancellation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.requests == nil {
		writeUnavailable(ctx, w, "request_workflow")
		return
	}
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	var req cancelRequestBody
	if !decodeBody(w, r, maxRequestBodySize, &req) {
		return
	}

	created, err := h.requests.RequestCancellation(ctx, services.CancellationCommand{
		OrderID:            strings.TrimSpace(req.OrderID),
		Reason:             req.Reason,
		AdditionalComments: req.AdditionalComments,
		Actor:              actor,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, cancellationResponse{
		Success:   true,
		RequestID: created.ID,
		Request:   buildCancellationPayload(created),
	})
}

type decisionRequestBody struct {
	Action      string `json:"action"`
	StaffNotes  string `json:"staffNotes"`
	ReturnImage string `json:"returnImage"`
}

func (h *OrderHandlers) decodeDecision(w http.ResponseWriter, r *http.Request) (services.DecisionCommand, bool) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return services.DecisionCommand{}, false
	}
	var req decisionRequestBody
	if !decodeBody(w, r, maxRequestBodySize, &req) {
		return services.DecisionCommand{}, false
	}
	decision, ok := services.ParseDecision(req.Action)
	if !ok {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "action must be approve or reject", http.StatusBadRequest))
		return services.DecisionCommand{}, false
	}
	return services.DecisionCommand{
		RequestID:   strings.TrimSpace(chi.URLParam(r, "id")),
		Decision:    decision,
		StaffNotes:  req.StaffNotes,
		ReturnImage: strings.TrimSpace(req.ReturnImage),
		Actor:       actor,
	}, true
}

func (h *OrderHandlers) decideCancellation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.requests == nil {
		writeUnavailable(ctx, w, "request_workflow")
		return
	}
	cmd, ok := h.decodeDecision(w, r)
	if !ok {
		return
	}
	decided, err := h.requests.DecideCancellation(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, cancellationResponse{
		Success:   true,
		RequestID: decided.ID,
		Request:   buildCancellationPayload(decided),
	})
}

type orderResponse struct {
	Success bool         `json:"success"`
	Order   orderPayload `json:"order"`
}

func (h *OrderHandlers) restoreCancellation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.requests == nil {
		writeUnavailable(ctx, w, "request_workflow")
		return
	}
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	order, err := h.requests.RestoreCancelledRequest(ctx, chi.URLParam(r, "id"), actor)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Success: true, Order: buildOrderPayload(order)})
}

type returnItemRequest struct {
	ID        string `json:"id"`
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	Price     int64  `json:"price"`
}

type returnRequestBody struct {
	OrderID            string              `json:"orderId"`
	ReturnType         string              `json:"returnType"`
	SelectedItems      []returnItemRequest `json:"selectedItems"`
	Reason             string              `json:"reason"`
	AdditionalComments string              `json:"additionalComments"`
	ReturnImage        string              `json:"returnImage"`
}

type returnRequestResponse struct {
	Success   bool                 `json:"success"`
	RequestID string               `json:"requestId"`
	Request   returnRequestPayload `json:"request"`
}

func (h *OrderHandlers) requestReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.requests == nil {
		writeUnavailable(ctx, w, "request_workflow")
		return
	}
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	var req returnRequestBody
	if !decodeBody(w, r, maxRequestBodySize, &req) {
		return
	}

	items := make([]domain.ReturnItem, 0, len(req.SelectedItems))
	for _, item := range req.SelectedItems {
		id := strings.TrimSpace(item.ProductID)
		if id == "" {
			id = strings.TrimSpace(item.ID)
		}
		items = append(items, domain.ReturnItem{
			ProductID: id,
			Name:      strings.TrimSpace(item.Name),
			Quantity:  item.Quantity,
			UnitPrice: item.Price,
		})
	}

	created, err := h.requests.RequestReturn(ctx, services.ReturnCommand{
		OrderID:            strings.TrimSpace(req.OrderID),
		ReturnType:         domain.ReturnType(strings.ToLower(strings.TrimSpace(req.ReturnType))),
		SelectedItems:      items,
		Reason:             req.Reason,
		AdditionalComments: req.AdditionalComments,
		ReturnImage:        strings.TrimSpace(req.ReturnImage),
		Actor:              actor,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, returnRequestResponse{
		Success:   true,
		RequestID: created.ID,
		Request:   buildReturnRequestPayload(created),
	})
}

type returnDecisionResponse struct {
	Success bool                 `json:"success"`
	Archive returnArchivePayload `json:"archive"`
}

func (h *OrderHandlers) decideReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.requests == nil {
		writeUnavailable(ctx, w, "request_workflow")
		return
	}
	cmd, ok := h.decodeDecision(w, r)
	if !ok {
		return
	}
	archive, err := h.requests.DecideReturn(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, returnDecisionResponse{Success: true, Archive: buildReturnArchivePayload(archive)})
}

type uploadURLRequest struct {
	ContentType string `json:"contentType"`
}

type uploadURLResponse struct {
	Success   bool              `json:"success"`
	UploadURL string            `json:"uploadUrl"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers"`
	ImageURL  string            `json:"imageUrl"`
	ExpiresAt string            `json:"expiresAt"`
}

func (h *OrderHandlers) returnUploadURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.uploads == nil {
		writeUnavailable(ctx, w, "evidence_uploads")
		return
	}
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	var req uploadURLRequest
	if !decodeBody(w, r, 4*1024, &req) {
		return
	}

	ticket, err := h.uploads.UploadURL(ctx, actor.ID, req.ContentType)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrContentTypeNotAllowed):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "contentType must be an image type", http.StatusBadRequest))
		case errors.Is(err, storage.ErrNotConfigured):
			writeUnavailable(ctx, w, "evidence_uploads")
		default:
			httpx.WriteError(ctx, w, httpx.NewError("upload_url_failed", "failed to sign upload url", http.StatusBadGateway))
		}
		return
	}
	httpx.WriteJSON(w, http.StatusOK, uploadURLResponse{
		Success:   true,
		UploadURL: ticket.URL,
		Method:    ticket.Method,
		Headers:   ticket.Headers,
		ImageURL:  ticket.ObjectURL,
		ExpiresAt: formatTime(ticket.ExpiresAt),
	})
}

type ownerOrderPayload struct {
	OrderID       string       `json:"orderId"`
	Collection    string       `json:"collection"`
	Status        string       `json:"status"`
	DisplayStatus string       `json:"displayStatus,omitempty"`
	RequestID     string       `json:"requestId,omitempty"`
	CreatedAt     string       `json:"createdAt"`
	Order         orderPayload `json:"order"`
}

type ownerOrdersResponse struct {
	Success bool                `json:"success"`
	Orders  []ownerOrderPayload `json:"orders"`
}

// ownerOrders serves GET /{userId} and GET /lookup. Query parameters email and fullName
// widen the match to legacy records.
func (h *OrderHandlers) ownerOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.query == nil {
		writeUnavailable(ctx, w, "order_query")
		return
	}
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	lookup := services.OwnerLookup{
		UserID:   strings.TrimSpace(chi.URLParam(r, "id")),
		Email:    strings.TrimSpace(query.Get("email")),
		FullName: strings.TrimSpace(query.Get("fullName")),
	}
	if lookup.UserID == "" {
		lookup.UserID = strings.TrimSpace(query.Get("userId"))
	}

	views, err := h.query.OwnerOrders(ctx, lookup, actor)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	resp := ownerOrdersResponse{Success: true, Orders: make([]ownerOrderPayload, 0, len(views))}
	for _, view := range views {
		resp.Orders = append(resp.Orders, ownerOrderPayload{
			OrderID:       view.OrderID,
			Collection:    ownerViewCollection(view),
			Status:        view.Status,
			DisplayStatus: view.DisplayStatus,
			RequestID:     view.RequestID,
			CreatedAt:     formatTime(view.CreatedAt),
			Order:         buildOrderPayload(view.Order),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func ownerViewCollection(view services.OwnerOrderView) string {
	if view.Archived {
		return "returnedOrders"
	}
	return string(view.Partition)
}

type orderListResponse struct {
	Success bool           `json:"success"`
	Orders  []orderPayload `json:"orders"`
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.admin == nil {
		writeUnavailable(ctx, w, "order_admin")
		return
	}
	query := r.URL.Query()
	list := services.OrderListQuery{Status: strings.TrimSpace(query.Get("status"))}
	if raw := strings.TrimSpace(query.Get("partition")); raw != "" {
		partition, ok := domain.ParsePartition(raw)
		if !ok {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "partition is not a known order collection", http.StatusBadRequest))
			return
		}
		list.Partition = partition
	}
	limit, err := parseLimit(query.Get("limit"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	list.Limit = limit
	if list.From, err = parseTimeParam(query.Get("from")); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "from must be an RFC3339 timestamp or date", http.StatusBadRequest))
		return
	}
	if list.Until, err = parseTimeParam(query.Get("until")); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "until must be an RFC3339 timestamp or date", http.StatusBadRequest))
		return
	}

	orders, err := h.admin.ListOrders(ctx, list)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	resp := orderListResponse{Success: true, Orders: make([]orderPayload, 0, len(orders))}
	for _, order := range orders {
		resp.Orders = append(resp.Orders, buildOrderPayload(order))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

type moveListResponse struct {
	Success bool          `json:"success"`
	Moves   []movePayload `json:"moves"`
}

func (h *OrderHandlers) listMoves(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.admin == nil {
		writeUnavailable(ctx, w, "order_admin")
		return
	}
	moves, err := h.admin.ListMoves(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	resp := moveListResponse{Success: true, Moves: make([]movePayload, 0, len(moves))}
	for _, move := range moves {
		resp.Moves = append(resp.Moves, buildMovePayload(move))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

type verifyPaymentRequest struct {
	Verified  *bool  `json:"verified"`
	Reference string `json:"reference"`
}

func (h *OrderHandlers) verifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.admin == nil {
		writeUnavailable(ctx, w, "order_admin")
		return
	}
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	var req verifyPaymentRequest
	if !decodeBody(w, r, 4*1024, &req) {
		return
	}
	if req.Verified == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "verified is required", http.StatusBadRequest))
		return
	}

	order, err := h.admin.VerifyPayment(ctx, services.PaymentVerificationCommand{
		OrderID:   chi.URLParam(r, "id"),
		Verified:  *req.Verified,
		Reference: strings.TrimSpace(req.Reference),
		Actor:     actor,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Success: true, Order: buildOrderPayload(order)})
}

type updateNotesRequest struct {
	Notes string `json:"notes"`
}

func (h *OrderHandlers) updateNotes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.admin == nil {
		writeUnavailable(ctx, w, "order_admin")
		return
	}
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	var req updateNotesRequest
	if !decodeBody(w, r, maxRequestBodySize, &req) {
		return
	}
	order, err := h.admin.UpdateNotes(ctx, chi.URLParam(r, "id"), req.Notes, actor)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Success: true, Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) purgeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.admin == nil {
		writeUnavailable(ctx, w, "order_admin")
		return
	}
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "id"))
	if err := h.admin.Purge(ctx, orderID, actor); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"orderId": orderID})
}

type checkoutRequest struct {
	Items []struct {
		ProductID string `json:"productId"`
		ID        string `json:"id"`
		Quantity  int    `json:"quantity"`
	} `json:"items"`
	ReservationID string `json:"reservationId"`
	Payment       struct {
		Method    string `json:"method"`
		Type      string `json:"type"`
		Reference string `json:"reference"`
	} `json:"payment"`
	Address     addressPayload `json:"address"`
	DeliveryFee int64          `json:"deliveryFee"`
	Notes       string         `json:"notes"`
	WalkIn      bool           `json:"walkIn"`
	Customer    ownerPayload   `json:"customer"`
}

func (h *OrderHandlers) checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.intake == nil {
		writeUnavailable(ctx, w, "order_intake")
		return
	}
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	var req checkoutRequest
	if !decodeBody(w, r, maxOrderBodySize, &req) {
		return
	}

	items := make([]services.CheckoutItem, 0, len(req.Items))
	for _, item := range req.Items {
		id := strings.TrimSpace(item.ProductID)
		if id == "" {
			id = strings.TrimSpace(item.ID)
		}
		items = append(items, services.CheckoutItem{ProductID: id, Quantity: item.Quantity})
	}

	order, err := h.intake.PlaceOrder(ctx, services.CheckoutCommand{
		Items:         items,
		ReservationID: strings.TrimSpace(req.ReservationID),
		Payment: domain.Payment{
			Method:    strings.TrimSpace(req.Payment.Method),
			Type:      strings.TrimSpace(req.Payment.Type),
			Reference: strings.TrimSpace(req.Payment.Reference),
		},
		Address:     domain.Address(req.Address),
		DeliveryFee: req.DeliveryFee,
		Notes:       req.Notes,
		WalkIn:      req.WalkIn,
		Customer: domain.OwnerRef{
			UserID:   strings.TrimSpace(req.Customer.UserID),
			Email:    strings.TrimSpace(req.Customer.Email),
			FullName: strings.TrimSpace(req.Customer.FullName),
		},
		Actor: actor,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, orderResponse{Success: true, Order: buildOrderPayload(order)})
}

type cancellationListResponse struct {
	Success  bool                  `json:"success"`
	Requests []cancellationPayload `json:"requests"`
}

type returnListResponse struct {
	Success  bool                   `json:"success"`
	Requests []returnRequestPayload `json:"requests"`
}

func parseRequestStatuses(raw []string) []domain.RequestStatus {
	var out []domain.RequestStatus
	for _, value := range raw {
		for _, part := range strings.Split(value, ",") {
			if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
				out = append(out, domain.RequestStatus(part))
			}
		}
	}
	return out
}

func (h *OrderHandlers) listCancellationRequests(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.requests == nil {
		writeUnavailable(ctx, w, "request_workflow")
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	items, err := h.requests.ListCancellationRequests(ctx, parseRequestStatuses(r.URL.Query()["status"]), limit)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	resp := cancellationListResponse{Success: true, Requests: make([]cancellationPayload, 0, len(items))}
	for _, item := range items {
		resp.Requests = append(resp.Requests, buildCancellationPayload(item))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *OrderHandlers) listReturnRequests(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.requests == nil {
		writeUnavailable(ctx, w, "request_workflow")
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	items, err := h.requests.ListReturnRequests(ctx, parseRequestStatuses(r.URL.Query()["status"]), limit)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	resp := returnListResponse{Success: true, Requests: make([]returnRequestPayload, 0, len(items))}
	for _, item := range items {
		resp.Requests = append(resp.Requests, buildReturnRequestPayload(item))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

type returnedOrderListResponse struct {
	Success bool                   `json:"success"`
	Orders  []returnArchivePayload `json:"orders"`
}

// listReturnedOrders serves the decided return archive, filtered by ?staffDecision=.
func (h *OrderHandlers) listReturnedOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.requests == nil {
		writeUnavailable(ctx, w, "request_workflow")
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	items, err := h.requests.ListReturnedOrders(ctx, r.URL.Query().Get("staffDecision"), limit)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	resp := returnedOrderListResponse{Success: true, Orders: make([]returnArchivePayload, 0, len(items))}
	for _, item := range items {
		resp.Orders = append(resp.Orders, buildReturnArchivePayload(item))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *OrderHandlers) getReturnedOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.requests == nil {
		writeUnavailable(ctx, w, "request_workflow")
		return
	}
	archive, err := h.requests.GetReturnedOrder(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, returnDecisionResponse{Success: true, Archive: buildReturnArchivePayload(archive)})
}
