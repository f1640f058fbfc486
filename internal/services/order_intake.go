package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/storefront-orders/api/internal/domain"
	"github.com/storefront-orders/api/internal/repositories"
)

const (
	eventOrderPlaced = "order.placed"

	maxCheckoutLines = 100
)

// OrderIntakeDeps bundles the collaborators of checkout.
type OrderIntakeDeps struct {
	Products    repositories.ProductRepository
	Orders      repositories.OrderRepository
	UnitOfWork  repositories.UnitOfWork
	Ledger      StockLedger
	Metrics     MetricsRecorder
	Clock       func() time.Time
	IDGenerator func() string
	Logger      Logger
}

type orderIntake struct {
	products repositories.ProductRepository
	orders   repositories.OrderRepository
	uow      repositories.UnitOfWork
	ledger   StockLedger
	metrics  MetricsRecorder
	now      func() time.Time
	newID    func() string
	logger   Logger
}

// NewOrderIntake wires checkout. The ledger must share the unit of work so the stock
// decrement and order insert commit together.
func NewOrderIntake(deps OrderIntakeDeps) (OrderIntake, error) {
	if deps.Products == nil {
		return nil, errors.New("order intake: product repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("order intake: order repository is required")
	}
	if deps.UnitOfWork == nil {
		return nil, errors.New("order intake: unit of work is required")
	}
	if deps.Ledger == nil {
		return nil, errors.New("order intake: stock ledger is required")
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return strings.ToLower(ulid.Make().String()) }
	}
	logger := deps.Logger
	if logger == nil {
		logger = nopLogger
	}
	return &orderIntake{
		products: deps.Products,
		orders:   deps.Orders,
		uow:      deps.UnitOfWork,
		ledger:   deps.Ledger,
		metrics:  metrics,
		now:      utcClock(deps.Clock),
		newID:    idGen,
		logger:   logger,
	}, nil
}

// PlaceOrder prices the cart from the product documents, commits the stock and inserts the
// order in one transaction. Walk-in sales land directly in the completed walk-in partition.
func (s *orderIntake) PlaceOrder(ctx context.Context, cmd CheckoutCommand) (domain.Order, error) {
	owner, err := checkoutOwner(cmd)
	if err != nil {
		return domain.Order{}, err
	}
	if len(cmd.Items) == 0 {
		return domain.Order{}, validationError("at least one item is required")
	}
	if len(cmd.Items) > maxCheckoutLines {
		return domain.Order{}, validationError("too many items: %d (max %d)", len(cmd.Items), maxCheckoutLines)
	}
	raw := make([]domain.StockLine, 0, len(cmd.Items))
	for _, item := range cmd.Items {
		raw = append(raw, domain.StockLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	lines, err := normaliseStockLines(raw)
	if err != nil {
		return domain.Order{}, err
	}
	if cmd.DeliveryFee < 0 {
		return domain.Order{}, validationError("deliveryFee must not be negative")
	}

	payment := cmd.Payment
	payment.Method = strings.TrimSpace(payment.Method)
	payment.Reference = strings.TrimSpace(payment.Reference)
	payment.Verified = false
	payment.VerifiedAt = nil
	payment.VerifiedBy = ""
	address := cmd.Address
	deliveryFee := cmd.DeliveryFee
	if cmd.WalkIn {
		if payment.Method == "" {
			payment.Method = "cash"
		}
		address = domain.Address{}
		deliveryFee = 0
	} else {
		if payment.Method == "" {
			return domain.Order{}, validationError("payment.method is required")
		}
		if strings.TrimSpace(address.Line1) == "" {
			return domain.Order{}, validationError("address.line1 is required")
		}
	}

	now := s.now()
	order := domain.Order{
		ID:             "ord_" + s.newID(),
		Partition:      domain.PartitionPending,
		Owner:          owner,
		Payment:        payment,
		Address:        address,
		Status:         domain.OrderStatusPending,
		DisplayStatus:  "Pending",
		Notes:          cleanText(cmd.Notes, maxNotesLength),
		ReservationID:  strings.TrimSpace(cmd.ReservationID),
		CreatedAt:      now,
		UpdatedAt:      now,
		LastModifiedBy: cmd.Actor.label(),
	}
	if cmd.WalkIn {
		order.Partition = domain.PartitionWalkIn
		order.Status = domain.OrderStatusCompleted
		order.DisplayStatus = "Completed"
		order.Payment.Verified = true
		order.Payment.VerifiedAt = &now
		order.Payment.VerifiedBy = cmd.Actor.label()
	}

	err = s.uow.RunInTx(ctx, func(ctx context.Context) error {
		products, err := s.products.GetMany(ctx, productIDs(lines))
		if err != nil {
			return err
		}
		items := make([]domain.OrderLineItem, 0, len(lines))
		var subtotal int64
		for _, line := range lines {
			product, ok := products[line.ProductID]
			if !ok {
				return notFoundError("product %s not found", line.ProductID)
			}
			if !product.IsActive {
				return conflictError("product %s is not available", product.Name)
			}
			total := product.Price * int64(line.Quantity)
			subtotal += total
			items = append(items, domain.OrderLineItem{
				ProductID: product.ID,
				Name:      product.Name,
				Quantity:  line.Quantity,
				UnitPrice: product.Price,
				LineTotal: total,
				Category:  product.Category,
			})
		}
		if _, err := s.ledger.Decrement(ctx, lines, order.ReservationID); err != nil {
			return err
		}
		order.Items = items
		order.Totals = domain.OrderTotals{
			Subtotal:    subtotal,
			DeliveryFee: deliveryFee,
			Total:       subtotal + deliveryFee,
		}
		return s.orders.Insert(ctx, order)
	})
	if err != nil {
		s.metrics.RecordMove(ctx, "checkout", string(order.Partition), outcomeFor(err))
		return domain.Order{}, mapRepositoryError(err, "order "+order.ID)
	}

	s.metrics.RecordMove(ctx, "checkout", string(order.Partition), "ok")
	s.logger(ctx, eventOrderPlaced, map[string]any{
		"orderId":   order.ID,
		"partition": string(order.Partition),
		"total":     order.Totals.Total,
		"lines":     len(order.Items),
		"actorId":   cmd.Actor.label(),
	})
	return order, nil
}

func checkoutOwner(cmd CheckoutCommand) (domain.OwnerRef, error) {
	if cmd.WalkIn {
		if !cmd.Actor.Staff {
			return domain.OwnerRef{}, forbiddenError("only staff may record walk-in sales")
		}
		owner := domain.OwnerRef{
			UserID:   strings.TrimSpace(cmd.Customer.UserID),
			Email:    domain.NormalizeEmail(cmd.Customer.Email),
			FullName: strings.TrimSpace(cmd.Customer.FullName),
		}
		if owner.Empty() {
			return domain.OwnerRef{}, validationError("customer is required for walk-in sales")
		}
		return owner, nil
	}
	if strings.TrimSpace(cmd.Actor.ID) == "" {
		return domain.OwnerRef{}, forbiddenError("caller identity is required")
	}
	return domain.OwnerRef{
		UserID:   cmd.Actor.ID,
		Email:    domain.NormalizeEmail(cmd.Actor.Email),
		FullName: strings.TrimSpace(cmd.Actor.FullName),
	}, nil
}
