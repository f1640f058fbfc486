package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/storefront-orders/api/internal/domain"
	"github.com/storefront-orders/api/internal/platform/lock"
	"github.com/storefront-orders/api/internal/repositories"
	"github.com/storefront-orders/api/internal/repositories/memory"
)

type unavailableError struct{}

func (unavailableError) Error() string       { return "backend unavailable" }
func (unavailableError) IsNotFound() bool    { return false }
func (unavailableError) IsConflict() bool    { return false }
func (unavailableError) IsUnavailable() bool { return true }

// uncertainUnitOfWork optionally runs the transaction and then reports an unknown outcome.
type uncertainUnitOfWork struct {
	inner repositories.UnitOfWork
	apply bool
	after func()
}

func (u *uncertainUnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if u.apply {
		if err := u.inner.RunInTx(ctx, fn); err != nil {
			return err
		}
	}
	if u.after != nil {
		u.after()
	}
	return unavailableError{}
}

type stubEvidence struct{ owns bool }

func (s stubEvidence) Owns(string) bool { return s.owns }

type moveFixture struct {
	reg     *memory.Registry
	engine  OrderMoveEngine
	locker  *stubLocker
	logs    *captureLogger
	metrics *recordingMetrics
}

func newMoveFixture(t *testing.T, mutate func(*OrderMoveEngineDeps)) moveFixture {
	t.Helper()
	reg := memory.NewRegistry()
	seedProducts(t, reg, sampleProducts()...)
	logs := &captureLogger{}
	ledger, _ := newTestLedger(t, reg, testNow)
	notifications, err := NewNotificationService(NotificationServiceDeps{Notifications: reg.Notifications(), Clock: fixedClock(testNow)})
	if err != nil {
		t.Fatalf("notification service: %v", err)
	}
	locker := &stubLocker{}
	metrics := &recordingMetrics{}
	deps := OrderMoveEngineDeps{
		Orders:        reg.Orders(),
		Moves:         reg.OrderMoves(),
		UnitOfWork:    reg,
		Ledger:        ledger,
		Notifications: notifications,
		Locker:        locker,
		Metrics:       metrics,
		Clock:         fixedClock(testNow),
		IDGenerator:   sequenceIDs("m"),
		Logger:        logs.log,
	}
	if mutate != nil {
		mutate(&deps)
	}
	engine, err := NewOrderMoveEngine(deps)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return moveFixture{reg: reg, engine: engine, locker: locker, logs: logs, metrics: metrics}
}

func TestOrderMoveEngineAcceptsPendingOrder(t *testing.T) {
	fx := newMoveFixture(t, nil)
	seedOrders(t, fx.reg, sampleOrder("ord_1", domain.PartitionPending, domain.OrderStatusPending))
	ctx := context.Background()

	result, err := fx.engine.Move(ctx, MoveCommand{OrderID: "ord_1", From: domain.PartitionPending, To: domain.PartitionAccepted, Actor: staffActor})
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if result.NewOrderID != "ord_1" {
		t.Fatalf("expected id to be preserved, got %s", result.NewOrderID)
	}

	pending, err := fx.reg.Orders().List(ctx, repositories.OrderListFilter{Partitions: []domain.Partition{domain.PartitionPending}})
	if err != nil || len(pending) != 0 {
		t.Fatalf("expected no pending orders, got %d (%v)", len(pending), err)
	}
	stored, err := fx.reg.Orders().Get(ctx, "ord_1")
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if stored.Partition != domain.PartitionAccepted || stored.Status != "approved" || stored.ApprovedAt == nil {
		t.Fatalf("unexpected accepted order %+v", stored)
	}
	if stored.LastModifiedBy != "staff_1" || !stored.UpdatedAt.Equal(testNow) {
		t.Fatalf("expected audit stamps, got %s %s", stored.LastModifiedBy, stored.UpdatedAt)
	}

	moves, _ := fx.reg.OrderMoves().ListByOrder(ctx, "ord_1")
	if len(moves) != 1 || moves[0].Operation != "accept" || moves[0].PreviousStatus != "pending" || moves[0].Status != "approved" {
		t.Fatalf("unexpected move log %+v", moves)
	}
	if len(fx.locker.acquired) != 1 || fx.locker.released != 1 {
		t.Fatalf("expected lock acquired and released once, got %v/%d", fx.locker.acquired, fx.locker.released)
	}

	ntf, err := fx.reg.Notifications().Get(ctx, NotificationID(moves[0].ID, domain.NotificationOrderStatusChanged, domain.AudienceUser))
	if err != nil {
		t.Fatalf("expected status notification: %v", err)
	}
	if ntf.RecipientID != "user_1" || ntf.Payload["to"] != "accepted" {
		t.Fatalf("unexpected notification %+v", ntf)
	}
	if len(fx.metrics.moves) != 1 || fx.metrics.moves[0] != "pending>accepted:ok" {
		t.Fatalf("unexpected metrics %v", fx.metrics.moves)
	}
}

func TestOrderMoveEngineDenialRequiresReasonAndRestoresStock(t *testing.T) {
	fx := newMoveFixture(t, nil)
	seedOrders(t, fx.reg, sampleOrder("ord_2", domain.PartitionPending, domain.OrderStatusPending))
	ctx := context.Background()

	_, err := fx.engine.Move(ctx, MoveCommand{OrderID: "ord_2", From: domain.PartitionPending, To: domain.PartitionDenied, DenialReason: "  <b></b> "})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for blank reason, got %v", err)
	}

	_, err = fx.engine.Move(ctx, MoveCommand{OrderID: "ord_2", From: domain.PartitionPending, To: domain.PartitionDenied, DenialReason: "<i>Payment not received</i>", Actor: staffActor})
	if err != nil {
		t.Fatalf("deny: %v", err)
	}
	stored, _ := fx.reg.Orders().Get(ctx, "ord_2")
	if stored.DenialReason != "Payment not received" || stored.DeniedAt == nil || stored.Status != "denied" {
		t.Fatalf("unexpected denied order %+v", stored)
	}
	if got := mustProduct(t, fx.reg, "prod_rice"); got.StockQuantity != 12 {
		t.Fatalf("expected rice stock restored to 12, got %d", got.StockQuantity)
	}
}

func TestOrderMoveEngineRejectsInvalidMoves(t *testing.T) {
	fx := newMoveFixture(t, nil)
	seedOrders(t, fx.reg, sampleOrder("ord_3", domain.PartitionAccepted, domain.OrderStatusApproved))
	ctx := context.Background()

	cases := []struct {
		name string
		cmd  MoveCommand
		want error
	}{
		{"missing id", MoveCommand{From: domain.PartitionPending, To: domain.PartitionAccepted}, ErrValidation},
		{"terminal source", MoveCommand{OrderID: "ord_3", From: domain.PartitionDenied, To: domain.PartitionPending}, ErrValidation},
		{"skips a step", MoveCommand{OrderID: "ord_3", From: domain.PartitionPending, To: domain.PartitionDelivered}, ErrValidation},
		{"wrong source partition", MoveCommand{OrderID: "ord_3", From: domain.PartitionPending, To: domain.PartitionAccepted}, ErrConflict},
		{"unknown order", MoveCommand{OrderID: "ord_404", From: domain.PartitionPending, To: domain.PartitionAccepted}, ErrNotFound},
		{"return without reason", MoveCommand{OrderID: "ord_3", From: domain.PartitionDelivered, To: domain.PartitionReturned}, ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := fx.engine.Move(ctx, tc.cmd); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	stored, _ := fx.reg.Orders().Get(ctx, "ord_3")
	if stored.Partition != domain.PartitionAccepted {
		t.Fatalf("order should not have moved, got %s", stored.Partition)
	}
}

func TestOrderMoveEngineLockContentionIsConflict(t *testing.T) {
	fx := newMoveFixture(t, nil)
	seedOrders(t, fx.reg, sampleOrder("ord_4", domain.PartitionPending, domain.OrderStatusPending))
	fx.locker.acquireFn = func(context.Context, string) (func(context.Context) error, error) {
		return nil, lock.ErrNotAcquired
	}

	_, err := fx.engine.Move(context.Background(), MoveCommand{OrderID: "ord_4", From: domain.PartitionPending, To: domain.PartitionAccepted})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestOrderMoveEngineReturnStoresEvidence(t *testing.T) {
	fx := newMoveFixture(t, func(d *OrderMoveEngineDeps) { d.Evidence = stubEvidence{owns: true} })
	seedOrders(t, fx.reg, sampleOrder("ord_5", domain.PartitionDelivered, domain.OrderStatusDelivered))

	_, err := fx.engine.Move(context.Background(), MoveCommand{
		OrderID:      "ord_5",
		From:         domain.PartitionDelivered,
		To:           domain.PartitionReturned,
		ReturnReason: "Damaged packaging",
		ReturnImage:  "https://storage.googleapis.com/evidence/return-evidence/user_1/a.jpg",
	})
	if err != nil {
		t.Fatalf("return: %v", err)
	}
	stored, _ := fx.reg.Orders().Get(context.Background(), "ord_5")
	if stored.ReturnImage == nil || !stored.ReturnImage.UploadedAt.Equal(testNow) || stored.ReturnReason != "Damaged packaging" {
		t.Fatalf("unexpected returned order %+v", stored)
	}

	foreign := newMoveFixture(t, func(d *OrderMoveEngineDeps) { d.Evidence = stubEvidence{owns: false} })
	seedOrders(t, foreign.reg, sampleOrder("ord_6", domain.PartitionDelivered, domain.OrderStatusDelivered))
	_, err = foreign.engine.Move(context.Background(), MoveCommand{
		OrderID: "ord_6", From: domain.PartitionDelivered, To: domain.PartitionReturned,
		ReturnReason: "Wrong size", ReturnImage: "https://example.com/x.jpg",
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for foreign image, got %v", err)
	}
}

func TestOrderMoveEngineReissueClearsReturnFields(t *testing.T) {
	fx := newMoveFixture(t, func(d *OrderMoveEngineDeps) { d.Evidence = stubEvidence{owns: true} })
	seedOrders(t, fx.reg, sampleOrder("ord_7", domain.PartitionDelivered, domain.OrderStatusDelivered))
	ctx := context.Background()

	if _, err := fx.engine.Move(ctx, MoveCommand{
		OrderID:      "ord_7",
		From:         domain.PartitionDelivered,
		To:           domain.PartitionReturned,
		ReturnReason: "Damaged packaging",
		ReturnImage:  "https://storage.googleapis.com/evidence/return-evidence/user_1/b.jpg",
		Actor:        staffActor,
	}); err != nil {
		t.Fatalf("return: %v", err)
	}
	result, err := fx.engine.Move(ctx, MoveCommand{OrderID: "ord_7", From: domain.PartitionReturned, To: domain.PartitionAccepted, Actor: staffActor})
	if err != nil {
		t.Fatalf("reissue: %v", err)
	}
	if result.Move.Operation != "reissue" || result.Move.Reason != "reissued after return: Damaged packaging" {
		t.Fatalf("unexpected reissue move %+v", result.Move)
	}
	stored, _ := fx.reg.Orders().Get(ctx, "ord_7")
	if stored.Status != domain.OrderStatusApproved || stored.ApprovedAt == nil {
		t.Fatalf("expected approved order, got %+v", stored)
	}
	if stored.ReturnedAt != nil || stored.ReturnReason != "" || stored.ReturnImage != nil {
		t.Fatalf("expected return fields to be cleared, got %v %q %+v", stored.ReturnedAt, stored.ReturnReason, stored.ReturnImage)
	}
	moves, _ := fx.reg.OrderMoves().ListByOrder(ctx, "ord_7")
	if len(moves) != 2 || moves[0].Reason != "Damaged packaging" {
		t.Fatalf("expected the return to stay on the move log, got %+v", moves)
	}
}

func TestOrderMoveEngineReconcilesUncertainCommit(t *testing.T) {
	t.Run("applied", func(t *testing.T) {
		fx := newMoveFixture(t, func(d *OrderMoveEngineDeps) {
			d.UnitOfWork = &uncertainUnitOfWork{inner: d.UnitOfWork, apply: true}
		})
		seedOrders(t, fx.reg, sampleOrder("ord_7", domain.PartitionPending, domain.OrderStatusPending))
		result, err := fx.engine.Move(context.Background(), MoveCommand{OrderID: "ord_7", From: domain.PartitionPending, To: domain.PartitionAccepted})
		if err != nil {
			t.Fatalf("expected reconciled success, got %v", err)
		}
		if result.Order.Partition != domain.PartitionAccepted {
			t.Fatalf("unexpected partition %s", result.Order.Partition)
		}
	})

	t.Run("not applied", func(t *testing.T) {
		fx := newMoveFixture(t, func(d *OrderMoveEngineDeps) {
			d.UnitOfWork = &uncertainUnitOfWork{inner: d.UnitOfWork}
		})
		seedOrders(t, fx.reg, sampleOrder("ord_8", domain.PartitionPending, domain.OrderStatusPending))
		_, err := fx.engine.Move(context.Background(), MoveCommand{OrderID: "ord_8", From: domain.PartitionPending, To: domain.PartitionAccepted})
		if err == nil || errors.Is(err, ErrIntegrity) {
			t.Fatalf("expected the original backend error, got %v", err)
		}
	})

	t.Run("diverged", func(t *testing.T) {
		uow := &uncertainUnitOfWork{}
		fx := newMoveFixture(t, func(d *OrderMoveEngineDeps) {
			uow.inner = d.UnitOfWork
			d.UnitOfWork = uow
		})
		seedOrders(t, fx.reg, sampleOrder("ord_9", domain.PartitionPending, domain.OrderStatusPending))
		uow.after = func() {
			order, _ := fx.reg.Orders().Get(context.Background(), "ord_9")
			order.Partition = domain.PartitionDenied
			_ = fx.reg.Orders().Save(context.Background(), order)
		}
		_, err := fx.engine.Move(context.Background(), MoveCommand{OrderID: "ord_9", From: domain.PartitionPending, To: domain.PartitionAccepted})
		var integrity *IntegrityError
		if !errors.As(err, &integrity) || !errors.Is(err, ErrIntegrity) {
			t.Fatalf("expected integrity error, got %v", err)
		}
		if integrity.Found != domain.PartitionDenied {
			t.Fatalf("expected found partition denied, got %s", integrity.Found)
		}
		if fx.logs.count(eventOrderMoveIntegrity) != 1 {
			t.Fatalf("expected integrity log entry")
		}
	})
}
