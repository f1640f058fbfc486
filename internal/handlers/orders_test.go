package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/storefront-orders/api/internal/domain"
	"github.com/storefront-orders/api/internal/platform/storage"
	"github.com/storefront-orders/api/internal/services"
)

type stubMoveEngine struct {
	moveFn func(context.Context, services.MoveCommand) (services.MoveResult, error)
}

func (s *stubMoveEngine) Move(ctx context.Context, cmd services.MoveCommand) (services.MoveResult, error) {
	if s.moveFn != nil {
		return s.moveFn(ctx, cmd)
	}
	return services.MoveResult{}, errors.New("not implemented")
}

type stubRequestWorkflow struct {
	requestCancelFn func(context.Context, services.CancellationCommand) (domain.CancellationRequest, error)
	decideCancelFn  func(context.Context, services.DecisionCommand) (domain.CancellationRequest, error)
	restoreFn       func(context.Context, string, services.Actor) (domain.Order, error)
	requestReturnFn func(context.Context, services.ReturnCommand) (domain.ReturnRequest, error)
	decideReturnFn  func(context.Context, services.DecisionCommand) (domain.ReturnArchive, error)
	listCancelFn    func(context.Context, []domain.RequestStatus, int) ([]domain.CancellationRequest, error)
	listReturnedFn  func(context.Context, string, int) ([]domain.ReturnArchive, error)
	getReturnedFn   func(context.Context, string) (domain.ReturnArchive, error)
}

func (s *stubRequestWorkflow) RequestCancellation(ctx context.Context, cmd services.CancellationCommand) (domain.CancellationRequest, error) {
	if s.requestCancelFn != nil {
		return s.requestCancelFn(ctx, cmd)
	}
	return domain.CancellationRequest{}, errors.New("not implemented")
}

func (s *stubRequestWorkflow) DecideCancellation(ctx context.Context, cmd services.DecisionCommand) (domain.CancellationRequest, error) {
	if s.decideCancelFn != nil {
		return s.decideCancelFn(ctx, cmd)
	}
	return domain.CancellationRequest{}, errors.New("not implemented")
}

func (s *stubRequestWorkflow) RestoreCancelledRequest(ctx context.Context, requestID string, actor services.Actor) (domain.Order, error) {
	if s.restoreFn != nil {
		return s.restoreFn(ctx, requestID, actor)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubRequestWorkflow) RequestReturn(ctx context.Context, cmd services.ReturnCommand) (domain.ReturnRequest, error) {
	if s.requestReturnFn != nil {
		return s.requestReturnFn(ctx, cmd)
	}
	return domain.ReturnRequest{}, errors.New("not implemented")
}

func (s *stubRequestWorkflow) DecideReturn(ctx context.Context, cmd services.DecisionCommand) (domain.ReturnArchive, error) {
	if s.decideReturnFn != nil {
		return s.decideReturnFn(ctx, cmd)
	}
	return domain.ReturnArchive{}, errors.New("not implemented")
}

func (s *stubRequestWorkflow) ListCancellationRequests(ctx context.Context, status []domain.RequestStatus, limit int) ([]domain.CancellationRequest, error) {
	if s.listCancelFn != nil {
		return s.listCancelFn(ctx, status, limit)
	}
	return nil, nil
}

func (s *stubRequestWorkflow) ListReturnRequests(context.Context, []domain.RequestStatus, int) ([]domain.ReturnRequest, error) {
	return nil, nil
}

func (s *stubRequestWorkflow) ListReturnedOrders(ctx context.Context, staffDecision string, limit int) ([]domain.ReturnArchive, error) {
	if s.listReturnedFn != nil {
		return s.listReturnedFn(ctx, staffDecision, limit)
	}
	return nil, nil
}

func (s *stubRequestWorkflow) GetReturnedOrder(ctx context.Context, archiveID string) (domain.ReturnArchive, error) {
	if s.getReturnedFn != nil {
		return s.getReturnedFn(ctx, archiveID)
	}
	return domain.ReturnArchive{}, errors.New("not implemented")
}

type stubOrderQuery struct {
	ownerFn func(context.Context, services.OwnerLookup, services.Actor) ([]services.OwnerOrderView, error)
}

func (s *stubOrderQuery) OwnerOrders(ctx context.Context, lookup services.OwnerLookup, actor services.Actor) ([]services.OwnerOrderView, error) {
	if s.ownerFn != nil {
		return s.ownerFn(ctx, lookup, actor)
	}
	return nil, errors.New("not implemented")
}

type stubOrderAdmin struct {
	listFn   func(context.Context, services.OrderListQuery) ([]domain.Order, error)
	verifyFn func(context.Context, services.PaymentVerificationCommand) (domain.Order, error)
	purgeFn  func(context.Context, string, services.Actor) error
}

func (s *stubOrderAdmin) ListOrders(ctx context.Context, query services.OrderListQuery) ([]domain.Order, error) {
	if s.listFn != nil {
		return s.listFn(ctx, query)
	}
	return nil, nil
}

func (s *stubOrderAdmin) ListMoves(context.Context, string) ([]domain.OrderMove, error) {
	return nil, nil
}

func (s *stubOrderAdmin) VerifyPayment(ctx context.Context, cmd services.PaymentVerificationCommand) (domain.Order, error) {
	if s.verifyFn != nil {
		return s.verifyFn(ctx, cmd)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderAdmin) UpdateNotes(context.Context, string, string, services.Actor) (domain.Order, error) {
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderAdmin) Purge(ctx context.Context, orderID string, actor services.Actor) error {
	if s.purgeFn != nil {
		return s.purgeFn(ctx, orderID, actor)
	}
	return errors.New("not implemented")
}

type stubOrderIntake struct {
	placeFn func(context.Context, services.CheckoutCommand) (domain.Order, error)
}

func (s *stubOrderIntake) PlaceOrder(ctx context.Context, cmd services.CheckoutCommand) (domain.Order, error) {
	if s.placeFn != nil {
		return s.placeFn(ctx, cmd)
	}
	return domain.Order{}, errors.New("not implemented")
}

type stubUploader struct {
	uploadFn func(context.Context, string, string) (storage.UploadTicket, error)
}

func (s *stubUploader) UploadURL(ctx context.Context, ownerID, contentType string) (storage.UploadTicket, error) {
	return s.uploadFn(ctx, ownerID, contentType)
}

func orderRouter(deps OrderHandlerDeps) chi.Router {
	router := chi.NewRouter()
	router.Route("/api/orders", NewOrderHandlers(deps).Routes)
	return router
}

func TestOrderHandlersMove(t *testing.T) {
	approvedAt := time.Date(2024, 4, 2, 9, 0, 0, 0, time.UTC)
	var captured services.MoveCommand
	engine := &stubMoveEngine{
		moveFn: func(_ context.Context, cmd services.MoveCommand) (services.MoveResult, error) {
			captured = cmd
			return services.MoveResult{
				NewOrderID: cmd.OrderID,
				Order: domain.Order{
					ID:         cmd.OrderID,
					Partition:  domain.PartitionAccepted,
					Status:     domain.OrderStatusApproved,
					ApprovedAt: &approvedAt,
				},
			}, nil
		},
	}

	rr := serve(orderRouter(OrderHandlerDeps{Moves: engine}), "POST", "/api/orders/move",
		`{"orderId":"ord_1","operation":"approve","fromCollection":"pendingOrders","toCollection":"acceptedOrders"}`, staffIdentity)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.From != domain.PartitionPending || captured.To != domain.PartitionAccepted {
		t.Fatalf("expected legacy collection names to resolve, got %s -> %s", captured.From, captured.To)
	}
	if captured.Actor.ID != "staff-1" || !captured.Actor.Staff {
		t.Fatalf("unexpected actor %+v", captured.Actor)
	}

	var resp moveOrderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if !resp.Success || resp.NewOrderID != "ord_1" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Order.Status != "approved" || resp.Order.ApprovedAt != "2024-04-02T09:00:00Z" {
		t.Fatalf("unexpected order payload %+v", resp.Order)
	}
}

func TestOrderHandlersMoveErrors(t *testing.T) {
	tests := []struct {
		name     string
		identity bool
		body     string
		err      error
		want     int
	}{
		{name: "unknown collection", body: `{"orderId":"o","fromCollection":"archive","toCollection":"accepted"}`, want: http.StatusBadRequest},
		{name: "not found", body: `{"orderId":"o","fromCollection":"pending","toCollection":"accepted"}`, err: fmt.Errorf("%w: order o", services.ErrNotFound), want: http.StatusNotFound},
		{name: "conflict", body: `{"orderId":"o","fromCollection":"pending","toCollection":"accepted"}`, err: fmt.Errorf("%w: order o is no longer pending", services.ErrConflict), want: http.StatusBadRequest},
		{name: "integrity", body: `{"orderId":"o","fromCollection":"pending","toCollection":"accepted"}`, err: &services.IntegrityError{OrderID: "o", Cause: errors.New("commit failed")}, want: http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			engine := &stubMoveEngine{
				moveFn: func(context.Context, services.MoveCommand) (services.MoveResult, error) {
					return services.MoveResult{}, tc.err
				},
			}
			rr := serve(orderRouter(OrderHandlerDeps{Moves: engine}), "POST", "/api/orders/move", tc.body, staffIdentity)
			if rr.Code != tc.want {
				t.Fatalf("expected status %d, got %d: %s", tc.want, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestOrderHandlersMoveRequiresStaff(t *testing.T) {
	rr := serve(orderRouter(OrderHandlerDeps{Moves: &stubMoveEngine{}}), "POST", "/api/orders/move",
		`{"orderId":"o","fromCollection":"pending","toCollection":"accepted"}`, customerIdentity)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rr.Code)
	}
}

func TestOrderHandlersCancelRequest(t *testing.T) {
	now := time.Date(2024, 4, 3, 8, 0, 0, 0, time.UTC)
	workflow := &stubRequestWorkflow{
		requestCancelFn: func(_ context.Context, cmd services.CancellationCommand) (domain.CancellationRequest, error) {
			if cmd.Actor.ID != "user-1" || cmd.OrderID != "ord_9" {
				t.Fatalf("unexpected command %+v", cmd)
			}
			return domain.CancellationRequest{
				ID:                "cr_1",
				OriginalOrderID:   cmd.OrderID,
				OriginalPartition: domain.PartitionPending,
				Status:            domain.RequestStatusPendingReview,
				Reason:            cmd.Reason,
				CreatedAt:         now,
			}, nil
		},
	}

	rr := serve(orderRouter(OrderHandlerDeps{Requests: workflow}), "POST", "/api/orders/cancel-request",
		`{"orderId":"ord_9","reason":"ordered twice"}`, customerIdentity)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp cancellationResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.RequestID != "cr_1" || resp.Request.Status != "pending_review" || resp.Request.OriginalOrderID != "ord_9" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestOrderHandlersCancelRequestRateLimited(t *testing.T) {
	now := time.Date(2024, 4, 3, 8, 0, 0, 0, time.UTC)
	workflow := &stubRequestWorkflow{
		requestCancelFn: func(context.Context, services.CancellationCommand) (domain.CancellationRequest, error) {
			return domain.CancellationRequest{ID: "cr_1"}, nil
		},
	}
	router := orderRouter(OrderHandlerDeps{
		Requests:         workflow,
		SubmissionLimit:  1,
		SubmissionWindow: time.Minute,
		Clock:            func() time.Time { return now },
	})

	body := `{"orderId":"ord_9","reason":"ordered twice"}`
	if rr := serve(router, "POST", "/api/orders/cancel-request", body, customerIdentity); rr.Code != http.StatusCreated {
		t.Fatalf("expected first submission to succeed, got %d", rr.Code)
	}
	if rr := serve(router, "POST", "/api/orders/cancel-request", body, customerIdentity); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
}

func TestOrderHandlersDecideCancellation(t *testing.T) {
	var captured services.DecisionCommand
	workflow := &stubRequestWorkflow{
		decideCancelFn: func(_ context.Context, cmd services.DecisionCommand) (domain.CancellationRequest, error) {
			captured = cmd
			return domain.CancellationRequest{ID: cmd.RequestID, Status: domain.RequestStatusRejected}, nil
		},
	}
	router := orderRouter(OrderHandlerDeps{Requests: workflow})

	rr := serve(router, "PUT", "/api/orders/cancellation-request/cr_1", `{"action":"Reject","staffNotes":"already shipped"}`, staffIdentity)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.RequestID != "cr_1" || captured.Decision != services.DecisionReject || captured.StaffNotes != "already shipped" {
		t.Fatalf("unexpected command %+v", captured)
	}

	rr = serve(router, "PUT", "/api/orders/cancellation-request/cr_1", `{"action":"maybe"}`, staffIdentity)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for unknown action, got %d", rr.Code)
	}
}

func TestOrderHandlersReturnRequestAndDecision(t *testing.T) {
	uploaded := time.Date(2024, 4, 5, 12, 0, 0, 0, time.UTC)
	var submitted services.ReturnCommand
	workflow := &stubRequestWorkflow{
		requestReturnFn: func(_ context.Context, cmd services.ReturnCommand) (domain.ReturnRequest, error) {
			submitted = cmd
			return domain.ReturnRequest{ID: "rr_1", OrderID: cmd.OrderID, ReturnType: cmd.ReturnType, Status: domain.RequestStatusPendingReview}, nil
		},
		decideReturnFn: func(_ context.Context, cmd services.DecisionCommand) (domain.ReturnArchive, error) {
			return domain.ReturnArchive{
				ID:            cmd.RequestID,
				OrderID:       "ord_4",
				StaffDecision: domain.StaffDecisionAccepted,
				CustomerImage: &domain.EvidenceImage{URL: "https://storage.googleapis.com/b/return-evidence/user-1/a.jpg", UploadedAt: uploaded},
				SourceDeleted: true,
				OrderFound:    true,
			}, nil
		},
	}
	router := orderRouter(OrderHandlerDeps{Requests: workflow})

	rr := serve(router, "POST", "/api/orders/return-request",
		`{"orderId":"ord_4","returnType":"Exchange","selectedItems":[{"id":"p1","quantity":1}],"reason":"wrong size"}`, customerIdentity)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if submitted.ReturnType != domain.ReturnTypeExchange || len(submitted.SelectedItems) != 1 || submitted.SelectedItems[0].ProductID != "p1" {
		t.Fatalf("unexpected return command %+v", submitted)
	}

	rr = serve(router, "PUT", "/api/orders/return-request/rr_1", `{"action":"approve"}`, staffIdentity)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp returnDecisionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Archive.StaffDecision != "accepted" || resp.Archive.CustomerImage == nil || !resp.Archive.SourceDeleted {
		t.Fatalf("unexpected archive %+v", resp.Archive)
	}
}

func TestOrderHandlersUploadURL(t *testing.T) {
	expires := time.Date(2024, 4, 5, 12, 15, 0, 0, time.UTC)
	uploads := &stubUploader{
		uploadFn: func(_ context.Context, owner, contentType string) (storage.UploadTicket, error) {
			if contentType != "image/png" {
				return storage.UploadTicket{}, storage.ErrContentTypeNotAllowed
			}
			return storage.UploadTicket{
				URL:       "https://signed.example/upload",
				Method:    "PUT",
				ObjectURL: "https://storage.googleapis.com/b/return-evidence/" + owner + "/x.png",
				ExpiresAt: expires,
			}, nil
		},
	}
	router := orderRouter(OrderHandlerDeps{Uploads: uploads})

	rr := serve(router, "POST", "/api/orders/return-request/upload-url", `{"contentType":"image/png"}`, customerIdentity)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeMap(t, rr)
	if body["imageUrl"] != "https://storage.googleapis.com/b/return-evidence/user-1/x.png" {
		t.Fatalf("unexpected image url %v", body["imageUrl"])
	}

	rr = serve(router, "POST", "/api/orders/return-request/upload-url", `{"contentType":"application/pdf"}`, customerIdentity)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for non-image, got %d", rr.Code)
	}
}

func TestOrderHandlersOwnerOrders(t *testing.T) {
	created := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	var captured services.OwnerLookup
	query := &stubOrderQuery{
		ownerFn: func(_ context.Context, lookup services.OwnerLookup, actor services.Actor) ([]services.OwnerOrderView, error) {
			captured = lookup
			return []services.OwnerOrderView{
				{OrderID: "ord_2", Partition: domain.PartitionPending, Status: "cancellation_requested", DisplayStatus: "Cancellation Requested", RequestID: "cr_2", CreatedAt: created},
			}, nil
		},
	}
	router := orderRouter(OrderHandlerDeps{Query: query})

	rr := serve(router, "GET", "/api/orders/user-1?email=Ana@Example.com", "", customerIdentity)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.UserID != "user-1" || captured.Email != "Ana@Example.com" {
		t.Fatalf("unexpected lookup %+v", captured)
	}
	var resp ownerOrdersResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Orders) != 1 || resp.Orders[0].RequestID != "cr_2" || resp.Orders[0].Collection != "pending" {
		t.Fatalf("unexpected orders %+v", resp.Orders)
	}

	rr = serve(router, "GET", "/api/orders/lookup?fullName=Ana%20Cruz", "", staffIdentity)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.UserID != "" || captured.FullName != "Ana Cruz" {
		t.Fatalf("unexpected lookup %+v", captured)
	}
}

func TestOrderHandlersOwnerOrdersShowsArchivedReturns(t *testing.T) {
	query := &stubOrderQuery{
		ownerFn: func(context.Context, services.OwnerLookup, services.Actor) ([]services.OwnerOrderView, error) {
			return []services.OwnerOrderView{{
				OrderID:       "ord_9",
				Partition:     domain.PartitionDelivered,
				Status:        "return_accepted",
				DisplayStatus: "Return Accepted",
				RequestID:     "rr_9",
				Archived:      true,
				CreatedAt:     time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			}}, nil
		},
	}
	rr := serve(orderRouter(OrderHandlerDeps{Query: query}), "GET", "/api/orders/user-1", "", customerIdentity)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp ownerOrdersResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Orders) != 1 || resp.Orders[0].Collection != "returnedOrders" || resp.Orders[0].Status != "return_accepted" {
		t.Fatalf("unexpected orders %+v", resp.Orders)
	}
}

func TestOrderHandlersReturnedOrders(t *testing.T) {
	decided := time.Date(2024, 4, 8, 10, 0, 0, 0, time.UTC)
	var gotDecision string
	var gotLimit int
	workflow := &stubRequestWorkflow{
		listReturnedFn: func(_ context.Context, staffDecision string, limit int) ([]domain.ReturnArchive, error) {
			gotDecision, gotLimit = staffDecision, limit
			return []domain.ReturnArchive{{ID: "rr_1", RequestID: "rr_1", OrderID: "ord_1", StaffDecision: "accepted", DecidedAt: decided}}, nil
		},
		getReturnedFn: func(_ context.Context, id string) (domain.ReturnArchive, error) {
			if id != "rr_1" {
				return domain.ReturnArchive{}, fmt.Errorf("%w: returned order %s", services.ErrNotFound, id)
			}
			return domain.ReturnArchive{ID: id, OrderID: "ord_1", StaffDecision: "accepted", DecidedAt: decided}, nil
		},
	}
	router := orderRouter(OrderHandlerDeps{Requests: workflow})

	rr := serve(router, "GET", "/api/orders/returned?staffDecision=accepted&limit=20", "", staffIdentity)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotDecision != "accepted" || gotLimit != 20 {
		t.Fatalf("unexpected arguments decision=%q limit=%d", gotDecision, gotLimit)
	}
	var resp returnedOrderListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Orders) != 1 || resp.Orders[0].OrderID != "ord_1" || resp.Orders[0].DecidedAt != "2024-04-08T10:00:00Z" {
		t.Fatalf("unexpected archive list %+v", resp.Orders)
	}

	if rr := serve(router, "GET", "/api/orders/returned/rr_1", "", staffIdentity); rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if rr := serve(router, "GET", "/api/orders/returned/rr_x", "", staffIdentity); rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
	if rr := serve(router, "GET", "/api/orders/returned", "", customerIdentity); rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403 for customers, got %d", rr.Code)
	}
}

func TestOrderHandlersOwnerOrdersFailClosed(t *testing.T) {
	query := &stubOrderQuery{
		ownerFn: func(context.Context, services.OwnerLookup, services.Actor) ([]services.OwnerOrderView, error) {
			return nil, fmt.Errorf("%w: an owner key is required", services.ErrValidation)
		},
	}
	rr := serve(orderRouter(OrderHandlerDeps{Query: query}), "GET", "/api/orders/lookup", "", staffIdentity)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	if body := decodeMap(t, rr); body["message"] != "an owner key is required" {
		t.Fatalf("unexpected message %v", body["message"])
	}
}

func TestOrderHandlersListOrders(t *testing.T) {
	var captured services.OrderListQuery
	admin := &stubOrderAdmin{
		listFn: func(_ context.Context, query services.OrderListQuery) ([]domain.Order, error) {
			captured = query
			return []domain.Order{{ID: "ord_1", Partition: domain.PartitionDelivered}}, nil
		},
	}
	router := orderRouter(OrderHandlerDeps{Admin: admin})

	rr := serve(router, "GET", "/api/orders?partition=deliveredOrders&limit=5&from=2024-03-01", "", staffIdentity)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Partition != domain.PartitionDelivered || captured.Limit != 5 || captured.From == nil {
		t.Fatalf("unexpected query %+v", captured)
	}

	if rr := serve(router, "GET", "/api/orders?partition=nowhere", "", staffIdentity); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for unknown partition, got %d", rr.Code)
	}
	if rr := serve(router, "GET", "/api/orders", "", customerIdentity); rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403 for customers, got %d", rr.Code)
	}
}

func TestOrderHandlersVerifyPayment(t *testing.T) {
	admin := &stubOrderAdmin{
		verifyFn: func(_ context.Context, cmd services.PaymentVerificationCommand) (domain.Order, error) {
			if cmd.Reference == "pi_unknown" {
				return domain.Order{}, fmt.Errorf("%w: stripe unavailable", services.ErrUpstream)
			}
			return domain.Order{ID: cmd.OrderID, Payment: domain.Payment{Verified: cmd.Verified, Reference: cmd.Reference}}, nil
		},
	}
	router := orderRouter(OrderHandlerDeps{Admin: admin})

	rr := serve(router, "PATCH", "/api/orders/ord_1/payment", `{"verified":true,"reference":"pi_123"}`, staffIdentity)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp orderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if !resp.Order.Payment.Verified || resp.Order.Payment.Reference != "pi_123" {
		t.Fatalf("unexpected payment %+v", resp.Order.Payment)
	}

	if rr := serve(router, "PATCH", "/api/orders/ord_1/payment", `{"reference":"pi_123"}`, staffIdentity); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 without verified flag, got %d", rr.Code)
	}
	if rr := serve(router, "PATCH", "/api/orders/ord_1/payment", `{"verified":true,"reference":"pi_unknown"}`, staffIdentity); rr.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502 on upstream failure, got %d", rr.Code)
	}
}

func TestOrderHandlersPurgeRequiresAdmin(t *testing.T) {
	purged := ""
	admin := &stubOrderAdmin{
		purgeFn: func(_ context.Context, orderID string, _ services.Actor) error {
			purged = orderID
			return nil
		},
	}
	router := orderRouter(OrderHandlerDeps{Admin: admin})

	if rr := serve(router, "DELETE", "/api/orders/ord_1", "", staffIdentity); rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403 for staff, got %d", rr.Code)
	}
	rr := serve(router, "DELETE", "/api/orders/ord_1", "", adminIdentity)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if purged != "ord_1" {
		t.Fatalf("expected ord_1 to be purged, got %q", purged)
	}
	if body := decodeMap(t, rr); body["success"] != true {
		t.Fatalf("expected success flag, got %v", body)
	}
}

func TestOrderHandlersCheckout(t *testing.T) {
	var captured services.CheckoutCommand
	intake := &stubOrderIntake{
		placeFn: func(_ context.Context, cmd services.CheckoutCommand) (domain.Order, error) {
			captured = cmd
			return domain.Order{ID: "ord_new", Partition: domain.PartitionPending, Status: domain.OrderStatusPending, Totals: domain.OrderTotals{Total: 5000}}, nil
		},
	}
	router := orderRouter(OrderHandlerDeps{Intake: intake})

	rr := serve(router, "POST", "/api/orders",
		`{"items":[{"productId":"p1","quantity":2}],"reservationId":"res-1","payment":{"method":"gcash"},"address":{"line1":"12 Mabini St","city":"Manila"},"deliveryFee":5000}`, customerIdentity)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(captured.Items) != 1 || captured.Items[0].Quantity != 2 || captured.ReservationID != "res-1" {
		t.Fatalf("unexpected command %+v", captured)
	}
	if captured.Address.Line1 != "12 Mabini St" || captured.Payment.Method != "gcash" || captured.DeliveryFee != 5000 {
		t.Fatalf("unexpected command details %+v", captured)
	}
}
