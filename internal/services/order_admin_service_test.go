package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/storefront-orders/api/internal/domain"
	"github.com/storefront-orders/api/internal/repositories/memory"
)

type stubPayments struct {
	verifyFn func(ctx context.Context, ref string) (PaymentCheck, error)
	calls    int
}

func (s *stubPayments) Supports(ref string) bool { return len(ref) > 3 && ref[:3] == "pi_" }

func (s *stubPayments) Verify(ctx context.Context, ref string) (PaymentCheck, error) {
	s.calls++
	if s.verifyFn != nil {
		return s.verifyFn(ctx, ref)
	}
	return PaymentCheck{Reference: ref, Status: "succeeded", Succeeded: true}, nil
}

func newTestAdmin(t *testing.T, reg *memory.Registry, payments PaymentVerifier) OrderAdminService {
	t.Helper()
	svc, err := NewOrderAdminService(OrderAdminServiceDeps{
		Orders:      reg.Orders(),
		Moves:       reg.OrderMoves(),
		UnitOfWork:  reg,
		Payments:    payments,
		Locker:      &stubLocker{},
		Clock:       fixedClock(testNow),
		IDGenerator: sequenceIDs("a"),
	})
	if err != nil {
		t.Fatalf("new admin service: %v", err)
	}
	return svc
}

func TestVerifyPaymentMarksPendingOrder(t *testing.T) {
	reg := memory.NewRegistry()
	seedOrders(t, reg, sampleOrder("ord_1", domain.PartitionPending, domain.OrderStatusPending))
	payments := &stubPayments{}
	svc := newTestAdmin(t, reg, payments)

	order, err := svc.VerifyPayment(context.Background(), PaymentVerificationCommand{
		OrderID: "ord_1", Verified: true, Reference: "pi_123", Actor: staffActor,
	})
	if err != nil {
		t.Fatalf("verify payment: %v", err)
	}
	if !order.Payment.Verified || order.Payment.Reference != "pi_123" || order.Payment.VerifiedBy != "staff_1" {
		t.Fatalf("unexpected payment: %+v", order.Payment)
	}
	if payments.calls != 1 {
		t.Fatalf("expected one provider lookup, got %d", payments.calls)
	}
	stored, _ := reg.Orders().Get(context.Background(), "ord_1")
	if !stored.Payment.Verified || stored.Payment.VerifiedAt == nil || !stored.Payment.VerifiedAt.Equal(testNow) {
		t.Fatalf("expected persisted verification, got %+v", stored.Payment)
	}
}

func TestVerifyPaymentRejectsUnsettledIntent(t *testing.T) {
	reg := memory.NewRegistry()
	seedOrders(t, reg, sampleOrder("ord_1", domain.PartitionPending, domain.OrderStatusPending))
	payments := &stubPayments{verifyFn: func(_ context.Context, ref string) (PaymentCheck, error) {
		return PaymentCheck{Reference: ref, Status: "requires_payment_method"}, nil
	}}
	svc := newTestAdmin(t, reg, payments)

	_, err := svc.VerifyPayment(context.Background(), PaymentVerificationCommand{
		OrderID: "ord_1", Verified: true, Reference: "pi_123", Actor: staffActor,
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	payments.verifyFn = func(context.Context, string) (PaymentCheck, error) {
		return PaymentCheck{}, errors.New("stripe down")
	}
	_, err = svc.VerifyPayment(context.Background(), PaymentVerificationCommand{
		OrderID: "ord_1", Verified: true, Reference: "pi_123", Actor: staffActor,
	})
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

func TestPendingOnlyEdits(t *testing.T) {
	reg := memory.NewRegistry()
	seedOrders(t, reg,
		sampleOrder("ord_pending", domain.PartitionPending, domain.OrderStatusPending),
		sampleOrder("ord_accepted", domain.PartitionAccepted, domain.OrderStatusApproved),
	)
	svc := newTestAdmin(t, reg, nil)
	ctx := context.Background()

	order, err := svc.UpdateNotes(ctx, "ord_pending", "  leave at <b>gate</b>  ", staffActor)
	if err != nil {
		t.Fatalf("update notes: %v", err)
	}
	if order.Notes != "leave at gate" {
		t.Fatalf("expected sanitised notes, got %q", order.Notes)
	}
	if _, err := svc.UpdateNotes(ctx, "ord_accepted", "x", staffActor); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict for accepted order, got %v", err)
	}
	if _, err := svc.UpdateNotes(ctx, "ord_pending", "x", customerActor); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for customer, got %v", err)
	}
	if _, err := svc.VerifyPayment(ctx, PaymentVerificationCommand{OrderID: "ord_missing", Verified: true, Actor: staffActor}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListOrdersFiltersPartition(t *testing.T) {
	reg := memory.NewRegistry()
	seedOrders(t, reg,
		sampleOrder("ord_1", domain.PartitionPending, domain.OrderStatusPending),
		sampleOrder("ord_2", domain.PartitionAccepted, domain.OrderStatusApproved),
	)
	svc := newTestAdmin(t, reg, nil)

	orders, err := svc.ListOrders(context.Background(), OrderListQuery{Partition: domain.PartitionAccepted})
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(orders) != 1 || orders[0].ID != "ord_2" {
		t.Fatalf("expected accepted order only, got %+v", orders)
	}

	from := testNow
	until := testNow.Add(-time.Hour)
	if _, err := svc.ListOrders(context.Background(), OrderListQuery{From: &from, Until: &until}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for inverted range, got %v", err)
	}
}

func TestPurgeRequiresAdminAndRecordsMove(t *testing.T) {
	reg := memory.NewRegistry()
	seedOrders(t, reg, sampleOrder("ord_1", domain.PartitionDenied, domain.OrderStatusDenied))
	svc := newTestAdmin(t, reg, nil)
	ctx := context.Background()

	if err := svc.Purge(ctx, "ord_1", staffActor); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for non-admin staff, got %v", err)
	}
	admin := Actor{ID: "admin_1", Staff: true, Admin: true}
	if err := svc.Purge(ctx, "ord_1", admin); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if _, err := reg.Orders().Get(ctx, "ord_1"); err == nil {
		t.Fatalf("expected order to be removed")
	}
	moves, err := svc.ListMoves(ctx, "ord_1")
	if err != nil {
		t.Fatalf("list moves: %v", err)
	}
	if len(moves) != 1 || moves[0].Operation != "purge" || moves[0].From != domain.PartitionDenied {
		t.Fatalf("expected purge audit entry, got %+v", moves)
	}
	if err := svc.Purge(ctx, "ord_1", admin); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found on second purge, got %v", err)
	}
}
