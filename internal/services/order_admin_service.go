package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/storefront-orders/api/internal/domain"
	"github.com/storefront-orders/api/internal/platform/lock"
	"github.com/storefront-orders/api/internal/repositories"
)

const (
	eventOrderPayment = "order.payment_verified"
	eventOrderNotes   = "order.notes_updated"
	eventOrderPurge   = "order.purged"

	defaultOrderLimit = 50
	maxOrderLimit     = 500
)

// OrderAdminServiceDeps bundles the collaborators of staff order operations.
type OrderAdminServiceDeps struct {
	Orders      repositories.OrderRepository
	Moves       repositories.OrderMoveRepository
	UnitOfWork  repositories.UnitOfWork
	Payments    PaymentVerifier
	Locker      Locker
	Clock       func() time.Time
	IDGenerator func() string
	Logger      Logger
}

type orderAdminService struct {
	orders   repositories.OrderRepository
	moves    repositories.OrderMoveRepository
	uow      repositories.UnitOfWork
	payments PaymentVerifier
	locker   Locker
	now      func() time.Time
	newID    func() string
	logger   Logger
}

// NewOrderAdminService wires staff order operations.
func NewOrderAdminService(deps OrderAdminServiceDeps) (OrderAdminService, error) {
	if deps.Orders == nil || deps.Moves == nil || deps.UnitOfWork == nil {
		return nil, errors.New("order admin service: order, move repositories and unit of work are required")
	}
	var locker Locker = deps.Locker
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return strings.ToLower(ulid.Make().String()) }
	}
	logger := deps.Logger
	if logger == nil {
		logger = nopLogger
	}
	return &orderAdminService{
		orders:   deps.Orders,
		moves:    deps.Moves,
		uow:      deps.UnitOfWork,
		payments: deps.Payments,
		locker:   locker,
		now:      utcClock(deps.Clock),
		newID:    idGen,
		logger:   logger,
	}, nil
}

func (s *orderAdminService) ListOrders(ctx context.Context, query OrderListQuery) ([]domain.Order, error) {
	filter := repositories.OrderListFilter{
		Status:       strings.TrimSpace(query.Status),
		CreatedAfter: query.From,
		CreatedUntil: query.Until,
		Limit:        clampLimit(query.Limit, defaultOrderLimit, maxOrderLimit),
	}
	if query.Partition != "" {
		filter.Partitions = []domain.Partition{query.Partition}
	}
	if query.From != nil && query.Until != nil && query.Until.Before(*query.From) {
		return nil, validationError("createdUntil must not be before createdFrom")
	}
	orders, err := s.orders.List(ctx, filter)
	if err != nil {
		return nil, mapRepositoryError(err, "orders")
	}
	return orders, nil
}

func (s *orderAdminService) ListMoves(ctx context.Context, orderID string) ([]domain.OrderMove, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, validationError("orderId is required")
	}
	moves, err := s.moves.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, mapRepositoryError(err, "order moves")
	}
	return moves, nil
}

func (s *orderAdminService) VerifyPayment(ctx context.Context, cmd PaymentVerificationCommand) (domain.Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Order{}, validationError("orderId is required")
	}
	if !cmd.Actor.Staff {
		return domain.Order{}, forbiddenError("only staff may verify payments")
	}
	reference := strings.TrimSpace(cmd.Reference)
	if cmd.Verified && reference != "" && s.payments != nil && s.payments.Supports(reference) {
		check, err := s.payments.Verify(ctx, reference)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return domain.Order{}, validationError("payment reference %s is unknown", reference)
			}
			return domain.Order{}, fmt.Errorf("%w: verify payment %s: %v", ErrUpstream, reference, err)
		}
		if !check.Succeeded {
			return domain.Order{}, conflictError("payment %s has status %s", reference, check.Status)
		}
	}

	return s.mutatePending(ctx, orderID, cmd.Actor, func(order *domain.Order, now time.Time) {
		if reference != "" {
			order.Payment.Reference = reference
		}
		order.Payment.Verified = cmd.Verified
		if cmd.Verified {
			order.Payment.VerifiedAt = &now
			order.Payment.VerifiedBy = cmd.Actor.label()
		} else {
			order.Payment.VerifiedAt = nil
			order.Payment.VerifiedBy = ""
		}
	}, eventOrderPayment)
}

func (s *orderAdminService) UpdateNotes(ctx context.Context, orderID, notes string, actor Actor) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, validationError("orderId is required")
	}
	if !actor.Staff {
		return domain.Order{}, forbiddenError("only staff may edit order notes")
	}
	cleaned := cleanText(notes, maxNotesLength)
	return s.mutatePending(ctx, orderID, actor, func(order *domain.Order, _ time.Time) {
		order.Notes = cleaned
	}, eventOrderNotes)
}

// mutatePending applies an in-place edit to an order that is still pending.
func (s *orderAdminService) mutatePending(ctx context.Context, orderID string, actor Actor, mutate func(*domain.Order, time.Time), event string) (domain.Order, error) {
	release, err := acquireOrderLock(ctx, s.locker, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	defer func() { _ = release(context.WithoutCancel(ctx)) }()

	now := s.now()
	var updated domain.Order
	err = s.uow.RunInTx(ctx, func(ctx context.Context) error {
		order, err := s.orders.Get(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Partition != domain.PartitionPending {
			return conflictError("order %s is %s; only pending orders can be edited", orderID, order.Partition)
		}
		mutate(&order, now)
		order.UpdatedAt = now
		order.LastModifiedBy = actor.label()
		if err := s.orders.Save(ctx, order); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return domain.Order{}, mapRepositoryError(err, "order "+orderID)
	}
	s.logger(ctx, event, map[string]any{"orderId": orderID, "actorId": actor.label()})
	return updated, nil
}

func (s *orderAdminService) Purge(ctx context.Context, orderID string, actor Actor) error {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return validationError("orderId is required")
	}
	if !actor.Admin {
		return forbiddenError("only administrators may purge orders")
	}
	release, err := acquireOrderLock(ctx, s.locker, orderID)
	if err != nil {
		return err
	}
	defer func() { _ = release(context.WithoutCancel(ctx)) }()

	now := s.now()
	var purged domain.Order
	err = s.uow.RunInTx(ctx, func(ctx context.Context) error {
		order, err := s.orders.Get(ctx, orderID)
		if err != nil {
			return err
		}
		if _, err := s.orders.Delete(ctx, orderID); err != nil {
			return err
		}
		purged = order
		return s.moves.Append(ctx, domain.OrderMove{
			ID:             "mv_" + s.newID(),
			OrderID:        orderID,
			Operation:      "purge",
			From:           order.Partition,
			PreviousStatus: order.Status,
			ActorID:        actor.label(),
			OccurredAt:     now,
		})
	})
	if err != nil {
		return mapRepositoryError(err, "order "+orderID)
	}
	s.logger(ctx, eventOrderPurge, map[string]any{
		"orderId":   orderID,
		"partition": string(purged.Partition),
		"actorId":   actor.label(),
	})
	return nil
}
