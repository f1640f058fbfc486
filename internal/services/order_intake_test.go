package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/storefront-orders/api/internal/domain"
	"github.com/storefront-orders/api/internal/repositories"
	"github.com/storefront-orders/api/internal/repositories/memory"
)

func newTestIntake(t *testing.T, reg *memory.Registry) (OrderIntake, StockLedger) {
	t.Helper()
	ledger, _ := newTestLedger(t, reg, testNow)
	intake, err := NewOrderIntake(OrderIntakeDeps{
		Products:    reg.Products(),
		Orders:      reg.Orders(),
		UnitOfWork:  reg,
		Ledger:      ledger,
		Clock:       fixedClock(testNow),
		IDGenerator: sequenceIDs("o"),
	})
	if err != nil {
		t.Fatalf("new intake: %v", err)
	}
	return intake, ledger
}

func checkoutFor(actor Actor) CheckoutCommand {
	return CheckoutCommand{
		Items: []CheckoutItem{
			{ProductID: "prod_rice", Quantity: 2},
			{ProductID: "prod_oil", Quantity: 1},
		},
		Payment:     domain.Payment{Method: "gcash"},
		Address:     domain.Address{FullName: "Maria Santos", Line1: "12 Mabini St", City: "Quezon City"},
		DeliveryFee: 5000,
		Actor:       actor,
	}
}

func TestPlaceOrderPricesFromCatalogAndDecrements(t *testing.T) {
	reg := memory.NewRegistry()
	seedProducts(t, reg, sampleProducts()...)
	intake, _ := newTestIntake(t, reg)

	order, err := intake.PlaceOrder(context.Background(), checkoutFor(Actor{ID: "user_1", Email: "Maria@Example.com", FullName: "Maria Santos"}))
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if order.ID != "ord_o001" || order.Partition != domain.PartitionPending {
		t.Fatalf("unexpected order identity: %s in %s", order.ID, order.Partition)
	}
	if order.Totals.Subtotal != 79000 || order.Totals.Total != 84000 {
		t.Fatalf("unexpected totals: %+v", order.Totals)
	}
	if order.Owner.Email != "maria@example.com" {
		t.Fatalf("expected normalised owner email, got %q", order.Owner.Email)
	}
	if got := mustProduct(t, reg, "prod_rice").StockQuantity; got != 8 {
		t.Fatalf("expected rice stock 8, got %d", got)
	}
	if got := mustProduct(t, reg, "prod_oil").StockQuantity; got != 4 {
		t.Fatalf("expected oil stock 4, got %d", got)
	}
}

func TestPlaceOrderShortageLeavesNothingBehind(t *testing.T) {
	reg := memory.NewRegistry()
	seedProducts(t, reg, sampleProducts()...)
	intake, _ := newTestIntake(t, reg)

	cmd := checkoutFor(customerActor)
	cmd.Items[1].Quantity = 6
	_, err := intake.PlaceOrder(context.Background(), cmd)
	var shortage *StockShortageError
	if !errors.As(err, &shortage) || shortage.ProductID != "prod_oil" {
		t.Fatalf("expected oil shortage, got %v", err)
	}
	if got := mustProduct(t, reg, "prod_rice").StockQuantity; got != 10 {
		t.Fatalf("expected rice stock untouched, got %d", got)
	}
	orders, _ := reg.Orders().List(context.Background(), repositories.OrderListFilter{})
	if len(orders) != 0 {
		t.Fatalf("expected no order persisted, got %d", len(orders))
	}
}

func TestPlaceOrderCommitsReservation(t *testing.T) {
	reg := memory.NewRegistry()
	seedProducts(t, reg, sampleProducts()...)
	intake, ledger := newTestIntake(t, reg)
	ctx := context.Background()

	res, err := ledger.Reserve(ctx, ReserveCommand{Items: []domain.StockLine{{ProductID: "prod_rice", Quantity: 2}, {ProductID: "prod_oil", Quantity: 1}}})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	cmd := checkoutFor(customerActor)
	cmd.ReservationID = res.ID
	if _, err := intake.PlaceOrder(ctx, cmd); err != nil {
		t.Fatalf("place order: %v", err)
	}
	rice := mustProduct(t, reg, "prod_rice")
	if rice.StockQuantity != 8 || rice.ReservedQuantity != 0 {
		t.Fatalf("expected committed hold, got stock=%d reserved=%d", rice.StockQuantity, rice.ReservedQuantity)
	}
	stored, err := reg.Reservations().Get(ctx, res.ID)
	if err != nil || stored.Status != domain.ReservationStatusCommitted {
		t.Fatalf("expected committed reservation, got %+v (%v)", stored, err)
	}
}

func TestPlaceOrderWalkIn(t *testing.T) {
	reg := memory.NewRegistry()
	seedProducts(t, reg, sampleProducts()...)
	intake, _ := newTestIntake(t, reg)
	ctx := context.Background()

	cmd := CheckoutCommand{
		Items:    []CheckoutItem{{ProductID: "prod_oil", Quantity: 1}},
		WalkIn:   true,
		Customer: domain.OwnerRef{FullName: "Lito Cruz"},
		Actor:    customerActor,
	}
	if _, err := intake.PlaceOrder(ctx, cmd); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for customer walk-in, got %v", err)
	}

	cmd.Actor = staffActor
	order, err := intake.PlaceOrder(ctx, cmd)
	if err != nil {
		t.Fatalf("walk-in: %v", err)
	}
	if order.Partition != domain.PartitionWalkIn || order.Status != domain.OrderStatusCompleted {
		t.Fatalf("unexpected walk-in placement: %s/%s", order.Partition, order.Status)
	}
	if order.Payment.Method != "cash" || !order.Payment.Verified || order.Totals.Total != 15000 {
		t.Fatalf("unexpected walk-in payment or totals: %+v %+v", order.Payment, order.Totals)
	}
}

func TestPlaceOrderValidation(t *testing.T) {
	reg := memory.NewRegistry()
	seedProducts(t, reg, sampleProducts()...)
	intake, _ := newTestIntake(t, reg)

	cases := map[string]func(*CheckoutCommand){
		"no items":      func(c *CheckoutCommand) { c.Items = nil },
		"zero quantity": func(c *CheckoutCommand) { c.Items[0].Quantity = 0 },
		"no payment":    func(c *CheckoutCommand) { c.Payment.Method = "" },
		"no address":    func(c *CheckoutCommand) { c.Address.Line1 = "" },
		"negative fee":  func(c *CheckoutCommand) { c.DeliveryFee = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cmd := checkoutFor(customerActor)
			mutate(&cmd)
			if _, err := intake.PlaceOrder(context.Background(), cmd); !errors.Is(err, ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}
