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
	eventOrderMove           = "order.move"
	eventOrderMoveIntegrity  = "order.move.integrity"
	eventOrderMoveSideEffect = "order.move.side_effect"
)

// allowed partition changes; everything else is rejected
var moveTransitions = map[domain.Partition][]domain.Partition{
	domain.PartitionPending:   {domain.PartitionAccepted, domain.PartitionDenied},
	domain.PartitionAccepted:  {domain.PartitionDelivered, domain.PartitionDenied, domain.PartitionPending},
	domain.PartitionDelivered: {domain.PartitionReturned},
	domain.PartitionReturned:  {domain.PartitionAccepted},
}

// CanMove reports whether an order may move from one partition to another.
func CanMove(from, to domain.Partition) bool {
	for _, candidate := range moveTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// OrderMoveEngineDeps bundles the collaborators of the move engine.
type OrderMoveEngineDeps struct {
	Orders        repositories.OrderRepository
	Moves         repositories.OrderMoveRepository
	UnitOfWork    repositories.UnitOfWork
	Ledger        StockLedger
	Notifications NotificationService
	Locker        Locker
	Evidence      EvidenceVerifier
	Metrics       MetricsRecorder
	Clock         func() time.Time
	IDGenerator   func() string
	Logger        Logger
}

type orderMoveEngine struct {
	orders        repositories.OrderRepository
	moves         repositories.OrderMoveRepository
	uow           repositories.UnitOfWork
	ledger        StockLedger
	notifications NotificationService
	locker        Locker
	evidence      EvidenceVerifier
	metrics       MetricsRecorder
	now           func() time.Time
	newID         func() string
	logger        Logger
}

// NewOrderMoveEngine wires the move engine. Without a Locker moves are serialised in-process only.
func NewOrderMoveEngine(deps OrderMoveEngineDeps) (OrderMoveEngine, error) {
	if deps.Orders == nil {
		return nil, errors.New("order move engine: order repository is required")
	}
	if deps.Moves == nil {
		return nil, errors.New("order move engine: move repository is required")
	}
	if deps.UnitOfWork == nil {
		return nil, errors.New("order move engine: unit of work is required")
	}
	locker := deps.Locker
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
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &orderMoveEngine{
		orders:        deps.Orders,
		moves:         deps.Moves,
		uow:           deps.UnitOfWork,
		ledger:        deps.Ledger,
		notifications: deps.Notifications,
		locker:        locker,
		evidence:      deps.Evidence,
		metrics:       metrics,
		now:           utcClock(deps.Clock),
		newID:         idGen,
		logger:        logger,
	}, nil
}

func (e *orderMoveEngine) Move(ctx context.Context, cmd MoveCommand) (MoveResult, error) {
	cmd, err := e.normaliseMove(cmd)
	if err != nil {
		return MoveResult{}, err
	}

	release, err := acquireOrderLock(ctx, e.locker, cmd.OrderID)
	if err != nil {
		e.metrics.RecordMove(ctx, string(cmd.From), string(cmd.To), "locked")
		return MoveResult{}, err
	}
	defer func() {
		if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
			e.logger(ctx, eventOrderMove, map[string]any{"orderId": cmd.OrderID, "lockReleaseError": rerr.Error()})
		}
	}()

	now := e.now()
	move := domain.OrderMove{
		ID:         "mv_" + e.newID(),
		OrderID:    cmd.OrderID,
		Operation:  cmd.Operation,
		From:       cmd.From,
		To:         cmd.To,
		Reason:     firstNonEmpty(cmd.DenialReason, cmd.ReturnReason),
		ActorID:    cmd.Actor.label(),
		OccurredAt: now,
	}

	var moved domain.Order
	err = e.uow.RunInTx(ctx, func(ctx context.Context) error {
		order, err := e.orders.Get(ctx, cmd.OrderID)
		if err != nil {
			if isNotFound(err) {
				return notFoundError("order %s not found in %s", cmd.OrderID, cmd.From)
			}
			return err
		}
		if order.Partition != cmd.From {
			return conflictError("order %s is in %s, not %s", cmd.OrderID, order.Partition, cmd.From)
		}

		move.PreviousStatus = order.Status
		if cmd.From == domain.PartitionReturned && move.Reason == "" && order.ReturnReason != "" {
			move.Reason = "reissued after return: " + order.ReturnReason
		}
		applyMove(&order, cmd, now)
		move.Status = order.Status

		if err := e.orders.Save(ctx, order); err != nil {
			return err
		}
		if err := e.moves.Append(ctx, move); err != nil {
			return err
		}
		moved = order
		return nil
	})
	if err != nil && commitUncertain(err) {
		moved, err = e.reconcile(ctx, cmd, err)
	}
	if err != nil {
		e.metrics.RecordMove(ctx, string(cmd.From), string(cmd.To), outcomeFor(err))
		return MoveResult{}, mapRepositoryError(err, "order "+cmd.OrderID)
	}

	e.metrics.RecordMove(ctx, string(cmd.From), string(cmd.To), "ok")
	e.logger(ctx, eventOrderMove, map[string]any{
		"orderId":   cmd.OrderID,
		"moveId":    move.ID,
		"operation": cmd.Operation,
		"from":      string(cmd.From),
		"to":        string(cmd.To),
		"actorId":   move.ActorID,
	})

	e.afterMove(ctx, moved, move)
	return MoveResult{NewOrderID: moved.ID, Move: move, Order: moved}, nil
}

// reconcile resolves a transaction whose commit outcome is unknown by re-reading the order.
func (e *orderMoveEngine) reconcile(ctx context.Context, cmd MoveCommand, cause error) (domain.Order, error) {
	order, err := e.orders.Get(context.WithoutCancel(ctx), cmd.OrderID)
	switch {
	case err == nil && order.Partition == cmd.To:
		return order, nil
	case err == nil && order.Partition == cmd.From:
		return domain.Order{}, cause
	}

	integrity := &IntegrityError{OrderID: cmd.OrderID, From: cmd.From, To: cmd.To, Cause: cause}
	fields := map[string]any{
		"orderId": cmd.OrderID,
		"from":    string(cmd.From),
		"to":      string(cmd.To),
		"cause":   cause.Error(),
	}
	if err == nil {
		integrity.Found = order.Partition
		fields["found"] = string(order.Partition)
	} else {
		fields["readError"] = err.Error()
	}
	e.logger(ctx, eventOrderMoveIntegrity, fields)
	return domain.Order{}, integrity
}

func (e *orderMoveEngine) afterMove(ctx context.Context, order domain.Order, move domain.OrderMove) {
	if move.To == domain.PartitionDenied && e.ledger != nil {
		if lines := order.StockLines(); len(lines) > 0 {
			if _, err := e.ledger.Restore(ctx, RestoreCommand{Items: lines, Reason: "order denied"}); err != nil {
				e.logger(ctx, eventOrderMoveSideEffect, map[string]any{
					"orderId": order.ID,
					"step":    "restore_stock",
					"error":   err.Error(),
				})
			}
		}
	}

	if e.notifications == nil || order.Owner.Empty() {
		return
	}
	message := fmt.Sprintf("Your order %s is now %s.", order.ID, strings.ToLower(order.DisplayStatus))
	if move.Reason != "" {
		message = fmt.Sprintf("%s Reason: %s", message, move.Reason)
	}
	appendBestEffort(ctx, e.notifications, e.logger, domain.Notification{
		Type:           domain.NotificationOrderStatusChanged,
		Audience:       domain.AudienceUser,
		RecipientID:    order.Owner.UserID,
		RecipientEmail: order.Owner.Email,
		SourceID:       move.ID,
		Title:          "Order " + order.DisplayStatus,
		Message:        message,
		Payload: map[string]any{
			"orderId": order.ID,
			"from":    string(move.From),
			"to":      string(move.To),
			"status":  order.Status,
			"reason":  move.Reason,
		},
	})
}

func (e *orderMoveEngine) normaliseMove(cmd MoveCommand) (MoveCommand, error) {
	cmd.OrderID = strings.TrimSpace(cmd.OrderID)
	if cmd.OrderID == "" {
		return cmd, validationError("orderId is required")
	}
	if cmd.From == "" || cmd.To == "" {
		return cmd, validationError("fromCollection and toCollection are required")
	}
	if !CanMove(cmd.From, cmd.To) {
		return cmd, validationError("cannot move an order from %s to %s", cmd.From, cmd.To)
	}
	cmd.DenialReason = cleanText(cmd.DenialReason, maxReasonLength)
	cmd.ReturnReason = cleanText(cmd.ReturnReason, maxReasonLength)
	cmd.ReturnImage = strings.TrimSpace(cmd.ReturnImage)

	switch cmd.To {
	case domain.PartitionDenied:
		if cmd.DenialReason == "" {
			return cmd, validationError("denialReason is required")
		}
		cmd.ReturnReason = ""
		cmd.ReturnImage = ""
	case domain.PartitionReturned:
		if cmd.ReturnReason == "" {
			return cmd, validationError("returnReason is required")
		}
		if cmd.ReturnImage != "" && e.evidence != nil && !e.evidence.Owns(cmd.ReturnImage) {
			return cmd, validationError("returnImage must reference an uploaded evidence image")
		}
		cmd.DenialReason = ""
	default:
		cmd.DenialReason = ""
		cmd.ReturnReason = ""
		cmd.ReturnImage = ""
	}

	cmd.Operation = strings.TrimSpace(cmd.Operation)
	if cmd.Operation == "" {
		cmd.Operation = defaultOperation(cmd.From, cmd.To)
	}
	return cmd, nil
}

// applyMove stamps the target partition's status fields onto order.
func applyMove(order *domain.Order, cmd MoveCommand, now time.Time) {
	order.Partition = cmd.To
	switch cmd.To {
	case domain.PartitionPending:
		order.Status = domain.OrderStatusPending
		order.DisplayStatus = "Pending"
		order.ApprovedAt = nil
	case domain.PartitionAccepted:
		order.Status = domain.OrderStatusApproved
		order.DisplayStatus = "Approved"
		order.ApprovedAt = &now
		// A reissued order starts a fresh fulfilment; the return stays on the move log.
		order.ReturnedAt = nil
		order.ReturnReason = ""
		order.ReturnImage = nil
	case domain.PartitionDelivered:
		order.Status = domain.OrderStatusDelivered
		order.DisplayStatus = "Delivered"
		order.DeliveredAt = &now
	case domain.PartitionDenied:
		order.Status = domain.OrderStatusDenied
		order.DisplayStatus = "Denied"
		order.DeniedAt = &now
		order.DenialReason = cmd.DenialReason
	case domain.PartitionReturned:
		order.Status = domain.OrderStatusReturned
		order.DisplayStatus = "Returned"
		order.ReturnedAt = &now
		order.ReturnReason = cmd.ReturnReason
		order.ReturnImage = nil
		if cmd.ReturnImage != "" {
			order.ReturnImage = &domain.EvidenceImage{URL: cmd.ReturnImage, UploadedAt: now}
		}
	}
	order.UpdatedAt = now
	order.LastModifiedBy = cmd.Actor.label()
}

func defaultOperation(from, to domain.Partition) string {
	switch {
	case to == domain.PartitionAccepted && from == domain.PartitionReturned:
		return "reissue"
	case to == domain.PartitionAccepted:
		return "accept"
	case to == domain.PartitionPending:
		return "revert"
	case to == domain.PartitionDelivered:
		return "deliver"
	case to == domain.PartitionDenied:
		return "deny"
	case to == domain.PartitionReturned:
		return "return"
	}
	return "move"
}

// acquireOrderLock takes the per-order lock, mapping contention to a conflict.
func acquireOrderLock(ctx context.Context, locker Locker, orderID string) (func(context.Context) error, error) {
	release, err := locker.Acquire(ctx, orderID)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return nil, conflictError("order %s is being updated by another request", orderID)
		}
		return nil, fmt.Errorf("acquire order lock: %w", err)
	}
	return release, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
