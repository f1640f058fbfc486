package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/storefront-orders/api/internal/domain"
	"github.com/storefront-orders/api/internal/platform/lock"
	"github.com/storefront-orders/api/internal/repositories"
)

const (
	eventCancellationRequested = "request.cancellation.created"
	eventCancellationDecided   = "request.cancellation.decided"
	eventCancellationRestored  = "request.cancellation.restored"
	eventReturnRequested       = "request.return.created"
	eventReturnDecided         = "request.return.decided"
	eventRequestSideEffect     = "request.side_effect"

	defaultRequestLimit = 50
	maxRequestLimit     = 200
)

// RequestWorkflowDeps bundles the collaborators of the request workflow.
type RequestWorkflowDeps struct {
	Orders        repositories.OrderRepository
	Moves         repositories.OrderMoveRepository
	Cancellations repositories.CancellationRequestRepository
	Returns       repositories.ReturnRequestRepository
	Archives      repositories.ReturnArchiveRepository
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

type requestWorkflow struct {
	orders        repositories.OrderRepository
	moves         repositories.OrderMoveRepository
	cancellations repositories.CancellationRequestRepository
	returns       repositories.ReturnRequestRepository
	archives      repositories.ReturnArchiveRepository
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

// NewRequestWorkflow wires the cancellation and return workflows.
func NewRequestWorkflow(deps RequestWorkflowDeps) (RequestWorkflow, error) {
	switch {
	case deps.Orders == nil:
		return nil, errors.New("request workflow: order repository is required")
	case deps.Moves == nil:
		return nil, errors.New("request workflow: move repository is required")
	case deps.Cancellations == nil:
		return nil, errors.New("request workflow: cancellation repository is required")
	case deps.Returns == nil:
		return nil, errors.New("request workflow: return repository is required")
	case deps.Archives == nil:
		return nil, errors.New("request workflow: return archive repository is required")
	case deps.UnitOfWork == nil:
		return nil, errors.New("request workflow: unit of work is required")
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
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &requestWorkflow{
		orders:        deps.Orders,
		moves:         deps.Moves,
		cancellations: deps.Cancellations,
		returns:       deps.Returns,
		archives:      deps.Archives,
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

// cancellable order states
var cancellableStatuses = []string{domain.OrderStatusPending, domain.OrderStatusActive, domain.OrderStatusApproved}

func (w *requestWorkflow) RequestCancellation(ctx context.Context, cmd CancellationCommand) (domain.CancellationRequest, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.CancellationRequest{}, validationError("orderId is required")
	}
	reason := cleanText(cmd.Reason, maxReasonLength)
	if reason == "" {
		return domain.CancellationRequest{}, validationError("reason is required")
	}
	comments := cleanText(cmd.AdditionalComments, maxNotesLength)

	release, err := acquireOrderLock(ctx, w.locker, orderID)
	if err != nil {
		return domain.CancellationRequest{}, err
	}
	defer w.releaseLock(ctx, release, orderID)

	now := w.now()
	var req domain.CancellationRequest
	err = w.uow.RunInTx(ctx, func(ctx context.Context) error {
		order, err := w.orders.Get(ctx, orderID)
		if err != nil {
			if isNotFound(err) {
				return notFoundError("order %s not found", orderID)
			}
			return err
		}
		if !cmd.Actor.Staff && !cmd.Actor.owns(order.Owner) {
			return forbiddenError("order %s belongs to another customer", orderID)
		}
		if order.Partition != domain.PartitionPending && order.Partition != domain.PartitionAccepted {
			return conflictError("order %s cannot be cancelled once %s", orderID, order.Partition)
		}
		if !containsString(cancellableStatuses, strings.ToLower(order.Status)) {
			return conflictError("order %s cannot be cancelled with status %q", orderID, order.Status)
		}

		req = domain.CancellationRequest{
			ID:                 "cr_" + w.newID(),
			OriginalOrderID:    order.ID,
			OriginalPartition:  order.Partition,
			Owner:              order.Owner,
			UserIDNumeric:      numericUserID(order.Owner.UserID),
			Snapshot:           order.Clone(),
			Reason:             reason,
			AdditionalComments: comments,
			Status:             domain.RequestStatusPendingReview,
			RequestedBy:        cmd.Actor.label(),
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := w.cancellations.Create(ctx, req); err != nil {
			return err
		}
		removed, err := w.orders.Delete(ctx, order.ID)
		if err != nil {
			return err
		}
		if !removed {
			return conflictError("order %s was removed concurrently", orderID)
		}
		return nil
	})
	if err != nil {
		return domain.CancellationRequest{}, mapRepositoryError(err, "order "+orderID)
	}

	w.metrics.RecordDecision(ctx, "cancellation", "requested")
	w.logger(ctx, eventCancellationRequested, map[string]any{
		"requestId": req.ID,
		"orderId":   orderID,
		"partition": string(req.OriginalPartition),
	})
	appendBestEffort(ctx, w.notifications, w.logger, domain.Notification{
		Type:     domain.NotificationCancellationRequest,
		Audience: domain.AudienceStaff,
		SourceID: req.ID,
		Title:    "Cancellation requested",
		Message:  fmt.Sprintf("Order %s: %s", orderID, reason),
		Payload: map[string]any{
			"requestId": req.ID,
			"orderId":   orderID,
			"userId":    req.Owner.UserID,
			"userEmail": req.Owner.Email,
			"reason":    reason,
			"total":     req.Snapshot.Totals.Total,
		},
	})
	return req, nil
}

func (w *requestWorkflow) DecideCancellation(ctx context.Context, cmd DecisionCommand) (domain.CancellationRequest, error) {
	requestID, err := w.checkDecision(cmd)
	if err != nil {
		return domain.CancellationRequest{}, err
	}
	staffNotes := cleanText(cmd.StaffNotes, maxNotesLength)

	current, err := w.cancellations.Get(ctx, requestID)
	if err != nil {
		return domain.CancellationRequest{}, mapRepositoryError(err, "cancellation request "+requestID)
	}
	release, err := acquireOrderLock(ctx, w.locker, current.OriginalOrderID)
	if err != nil {
		return domain.CancellationRequest{}, err
	}
	defer w.releaseLock(ctx, release, current.OriginalOrderID)

	now := w.now()
	var (
		req       domain.CancellationRequest
		cancelled domain.Order
	)
	err = w.uow.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		req, err = w.cancellations.Get(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != domain.RequestStatusPendingReview {
			return conflictError("cancellation request %s is already %s", requestID, req.Status)
		}

		if cmd.Decision == DecisionApprove {
			if _, err := w.orders.Get(ctx, req.OriginalOrderID); err == nil {
				return conflictError("order %s already exists", req.OriginalOrderID)
			} else if !isNotFound(err) {
				return err
			}

			cancelled = req.Snapshot.Clone()
			cancelled.ID = req.OriginalOrderID
			cancelled.Partition = domain.PartitionCancelled
			cancelled.Status = domain.OrderStatusCancelled
			cancelled.DisplayStatus = "Cancelled"
			cancelled.CancelledAt = &now
			cancelled.CancellationReason = req.Reason
			cancelled.UpdatedAt = now
			cancelled.LastModifiedBy = cmd.Actor.label()
			if err := w.orders.Insert(ctx, cancelled); err != nil {
				return err
			}
			if err := w.moves.Append(ctx, domain.OrderMove{
				ID:             "mv_" + w.newID(),
				OrderID:        cancelled.ID,
				Operation:      "cancel",
				From:           req.OriginalPartition,
				To:             domain.PartitionCancelled,
				PreviousStatus: req.Snapshot.Status,
				Status:         cancelled.Status,
				Reason:         req.Reason,
				ActorID:        cmd.Actor.label(),
				OccurredAt:     now,
			}); err != nil {
				return err
			}
			req.Status = domain.RequestStatusApproved
		} else {
			req.Status = domain.RequestStatusRejected
		}

		req.StaffNotes = staffNotes
		req.DecidedBy = cmd.Actor.label()
		req.DecidedAt = &now
		req.UpdatedAt = now
		return w.cancellations.Save(ctx, req)
	})
	if err != nil {
		return domain.CancellationRequest{}, mapRepositoryError(err, "cancellation request "+requestID)
	}

	w.metrics.RecordDecision(ctx, "cancellation", string(cmd.Decision))
	w.logger(ctx, eventCancellationDecided, map[string]any{
		"requestId": requestID,
		"orderId":   req.OriginalOrderID,
		"decision":  string(cmd.Decision),
		"actorId":   cmd.Actor.label(),
	})

	if cmd.Decision == DecisionApprove && w.ledger != nil {
		if lines := cancelled.StockLines(); len(lines) > 0 {
			if _, err := w.ledger.Restore(ctx, RestoreCommand{Items: lines, Reason: "order cancelled"}); err != nil {
				w.logger(ctx, eventRequestSideEffect, map[string]any{
					"requestId": requestID,
					"step":      "restore_stock",
					"error":     err.Error(),
				})
			}
		}
	}

	ntfType := domain.NotificationCancellationRejected
	title := "Cancellation request rejected"
	if cmd.Decision == DecisionApprove {
		ntfType = domain.NotificationCancellationApproved
		title = "Order cancelled"
	}
	if !req.Owner.Empty() {
		appendBestEffort(ctx, w.notifications, w.logger, domain.Notification{
			Type:           ntfType,
			Audience:       domain.AudienceUser,
			RecipientID:    req.Owner.UserID,
			RecipientEmail: req.Owner.Email,
			SourceID:       req.ID,
			Title:          title,
			Message:        decisionMessage("cancellation", req.OriginalOrderID, cmd.Decision, staffNotes),
			Payload: map[string]any{
				"requestId":  req.ID,
				"orderId":    req.OriginalOrderID,
				"decision":   string(cmd.Decision),
				"staffNotes": staffNotes,
			},
		})
	}
	return req, nil
}

func (w *requestWorkflow) RestoreCancelledRequest(ctx context.Context, requestID string, actor Actor) (domain.Order, error) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return domain.Order{}, validationError("request id is required")
	}
	if !actor.Staff {
		return domain.Order{}, forbiddenError("only staff may restore cancelled orders")
	}
	current, err := w.cancellations.Get(ctx, requestID)
	if err != nil {
		return domain.Order{}, mapRepositoryError(err, "cancellation request "+requestID)
	}
	release, err := acquireOrderLock(ctx, w.locker, current.OriginalOrderID)
	if err != nil {
		return domain.Order{}, err
	}
	defer w.releaseLock(ctx, release, current.OriginalOrderID)

	now := w.now()
	var (
		restored domain.Order
		move     domain.OrderMove
	)
	err = w.uow.RunInTx(ctx, func(ctx context.Context) error {
		req, err := w.cancellations.Get(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != domain.RequestStatusRejected || req.RestoredAt != nil {
			return conflictError("cancellation request %s is %s and cannot be restored", requestID, req.Status)
		}
		if _, err := w.orders.Get(ctx, req.OriginalOrderID); err == nil {
			return conflictError("order %s already exists", req.OriginalOrderID)
		} else if !isNotFound(err) {
			return err
		}

		partition := req.OriginalPartition
		if partition != domain.PartitionAccepted {
			partition = domain.PartitionPending
		}
		restored = req.Snapshot.Clone()
		restored.ID = req.OriginalOrderID
		restored.Partition = partition
		restored.UpdatedAt = now
		restored.LastModifiedBy = actor.label()
		if err := w.orders.Insert(ctx, restored); err != nil {
			return err
		}
		move = domain.OrderMove{
			ID:             "mv_" + w.newID(),
			OrderID:        restored.ID,
			Operation:      "restore",
			To:             partition,
			PreviousStatus: req.Snapshot.Status,
			Status:         restored.Status,
			Reason:         "restored from rejected cancellation " + req.ID,
			ActorID:        actor.label(),
			OccurredAt:     now,
		}
		if err := w.moves.Append(ctx, move); err != nil {
			return err
		}

		req.Status = domain.RequestStatusProcessed
		req.RestoredAt = &now
		req.UpdatedAt = now
		return w.cancellations.Save(ctx, req)
	})
	if err != nil {
		return domain.Order{}, mapRepositoryError(err, "cancellation request "+requestID)
	}

	w.logger(ctx, eventCancellationRestored, map[string]any{
		"requestId": requestID,
		"orderId":   restored.ID,
		"partition": string(restored.Partition),
		"actorId":   actor.label(),
	})
	if !restored.Owner.Empty() {
		appendBestEffort(ctx, w.notifications, w.logger, domain.Notification{
			Type:           domain.NotificationOrderStatusChanged,
			Audience:       domain.AudienceUser,
			RecipientID:    restored.Owner.UserID,
			RecipientEmail: restored.Owner.Email,
			SourceID:       move.ID,
			Title:          "Order restored",
			Message:        fmt.Sprintf("Your order %s has been restored.", restored.ID),
			Payload: map[string]any{
				"orderId": restored.ID,
				"to":      string(restored.Partition),
				"status":  restored.Status,
			},
		})
	}
	return restored, nil
}

func (w *requestWorkflow) RequestReturn(ctx context.Context, cmd ReturnCommand) (domain.ReturnRequest, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.ReturnRequest{}, validationError("orderId is required")
	}
	switch cmd.ReturnType {
	case domain.ReturnTypeReturn, domain.ReturnTypeExchange:
	default:
		return domain.ReturnRequest{}, validationError("returnType must be return or exchange")
	}
	reason := cleanText(cmd.Reason, maxReasonLength)
	if reason == "" {
		return domain.ReturnRequest{}, validationError("reason is required")
	}
	if len(cmd.SelectedItems) == 0 {
		return domain.ReturnRequest{}, validationError("selectedItems are required")
	}
	image := strings.TrimSpace(cmd.ReturnImage)
	if image != "" && w.evidence != nil && !w.evidence.Owns(image) {
		return domain.ReturnRequest{}, validationError("returnImage must reference an uploaded evidence image")
	}
	comments := cleanText(cmd.AdditionalComments, maxNotesLength)

	now := w.now()
	var req domain.ReturnRequest
	err := w.uow.RunInTx(ctx, func(ctx context.Context) error {
		open, err := w.returns.FindOpenByOrder(ctx, orderID)
		if err != nil {
			return err
		}
		order, err := w.orders.Get(ctx, orderID)
		if err != nil {
			if isNotFound(err) {
				return notFoundError("order %s not found", orderID)
			}
			return err
		}
		if !cmd.Actor.Staff && !cmd.Actor.owns(order.Owner) {
			return forbiddenError("order %s belongs to another customer", orderID)
		}
		if len(open) > 0 {
			return conflictError("order %s already has an open return request %s", orderID, open[0].ID)
		}
		if order.Partition != domain.PartitionDelivered && order.Partition != domain.PartitionAccepted {
			return conflictError("order %s cannot be returned while %s", orderID, order.Partition)
		}
		items, err := selectReturnItems(order, cmd.SelectedItems)
		if err != nil {
			return err
		}

		req = domain.ReturnRequest{
			ID:                 "rr_" + w.newID(),
			OrderID:            order.ID,
			OrderPartition:     order.Partition,
			Owner:              order.Owner,
			ReturnType:         cmd.ReturnType,
			SelectedItems:      items,
			Reason:             reason,
			AdditionalComments: comments,
			OrderSnapshot:      order.Clone(),
			Status:             domain.RequestStatusPendingReview,
			RequestedBy:        cmd.Actor.label(),
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if image != "" {
			req.CustomerImage = &domain.EvidenceImage{URL: image, UploadedAt: now}
		}
		return w.returns.Create(ctx, req)
	})
	if err != nil {
		return domain.ReturnRequest{}, mapRepositoryError(err, "order "+orderID)
	}

	w.metrics.RecordDecision(ctx, "return", "requested")
	w.logger(ctx, eventReturnRequested, map[string]any{
		"requestId":  req.ID,
		"orderId":    orderID,
		"returnType": string(req.ReturnType),
		"items":      len(req.SelectedItems),
	})
	appendBestEffort(ctx, w.notifications, w.logger, domain.Notification{
		Type:     domain.NotificationReturnRequest,
		Audience: domain.AudienceStaff,
		SourceID: req.ID,
		Title:    "Return request submitted",
		Message:  fmt.Sprintf("Order %s: %s (%s)", orderID, reason, req.ReturnType),
		Payload: map[string]any{
			"requestId":  req.ID,
			"orderId":    orderID,
			"returnType": string(req.ReturnType),
			"userId":     req.Owner.UserID,
			"userEmail":  req.Owner.Email,
			"reason":     reason,
		},
	})
	return req, nil
}

func (w *requestWorkflow) DecideReturn(ctx context.Context, cmd DecisionCommand) (domain.ReturnArchive, error) {
	requestID, err := w.checkDecision(cmd)
	if err != nil {
		return domain.ReturnArchive{}, err
	}
	staffImage := strings.TrimSpace(cmd.ReturnImage)
	if staffImage != "" && w.evidence != nil && !w.evidence.Owns(staffImage) {
		return domain.ReturnArchive{}, validationError("returnImage must reference an uploaded evidence image")
	}
	staffNotes := cleanText(cmd.StaffNotes, maxNotesLength)

	current, err := w.returns.Get(ctx, requestID)
	if err != nil {
		return domain.ReturnArchive{}, mapRepositoryError(err, "return request "+requestID)
	}
	release, err := acquireOrderLock(ctx, w.locker, current.OrderID)
	if err != nil {
		return domain.ReturnArchive{}, err
	}
	defer w.releaseLock(ctx, release, current.OrderID)

	now := w.now()
	approve := cmd.Decision == DecisionApprove
	var archive domain.ReturnArchive
	err = w.uow.RunInTx(ctx, func(ctx context.Context) error {
		req, err := w.returns.Get(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != domain.RequestStatusPendingReview {
			return conflictError("return request %s is already %s", requestID, req.Status)
		}
		order, err := w.orders.Get(ctx, req.OrderID)
		found := err == nil && !order.Partition.Terminal()
		if err != nil && !isNotFound(err) {
			return err
		}

		archive = buildReturnArchive(req, order, found)
		archive.StaffDecision = domain.StaffDecisionRejected
		if approve {
			archive.StaffDecision = domain.StaffDecisionAccepted
		}
		archive.StaffNotes = staffNotes
		if staffImage != "" {
			archive.StaffImage = &domain.EvidenceImage{URL: staffImage, UploadedAt: now}
		}
		archive.SourceDeleted = approve && found
		archive.DecidedAt = now
		archive.DecidedBy = cmd.Actor.label()

		if err := w.archives.Create(ctx, archive); err != nil {
			return err
		}
		if _, err := w.returns.Delete(ctx, req.ID); err != nil {
			return err
		}
		if archive.SourceDeleted {
			if _, err := w.orders.Delete(ctx, order.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.ReturnArchive{}, mapRepositoryError(err, "return request "+requestID)
	}

	w.metrics.RecordDecision(ctx, "return", string(cmd.Decision))
	w.logger(ctx, eventReturnDecided, map[string]any{
		"requestId":     requestID,
		"orderId":       archive.OrderID,
		"decision":      archive.StaffDecision,
		"orderFound":    archive.OrderFound,
		"sourceDeleted": archive.SourceDeleted,
		"actorId":       archive.DecidedBy,
	})

	userType := domain.NotificationReturnProcessedReject
	title := "Return request rejected"
	if approve {
		userType = domain.NotificationReturnProcessedAccept
		title = "Return request accepted"
	}
	if !archive.Owner.Empty() {
		appendBestEffort(ctx, w.notifications, w.logger, domain.Notification{
			Type:           userType,
			Audience:       domain.AudienceUser,
			RecipientID:    archive.Owner.UserID,
			RecipientEmail: archive.Owner.Email,
			SourceID:       archive.ID,
			Title:          title,
			Message:        decisionMessage(string(archive.ReturnType), archive.OrderID, cmd.Decision, staffNotes),
			Payload: map[string]any{
				"requestId":     archive.RequestID,
				"orderId":       archive.OrderID,
				"staffDecision": archive.StaffDecision,
				"staffNotes":    staffNotes,
			},
		})
	}
	appendBestEffort(ctx, w.notifications, w.logger, domain.Notification{
		Type:     domain.NotificationReturnDecisionStaff,
		Audience: domain.AudienceStaff,
		SourceID: archive.ID,
		Title:    "Return decision recorded",
		Message:  fmt.Sprintf("Return %s for order %s %s by %s", archive.ID, archive.OrderID, archive.StaffDecision, archive.DecidedBy),
		Payload: map[string]any{
			"requestId":     archive.RequestID,
			"orderId":       archive.OrderID,
			"staffDecision": archive.StaffDecision,
			"sourceDeleted": archive.SourceDeleted,
		},
	})
	return archive, nil
}

func (w *requestWorkflow) ListCancellationRequests(ctx context.Context, status []domain.RequestStatus, limit int) ([]domain.CancellationRequest, error) {
	items, err := w.cancellations.List(ctx, repositories.RequestListFilter{Status: status, Limit: clampLimit(limit, defaultRequestLimit, maxRequestLimit)})
	if err != nil {
		return nil, mapRepositoryError(err, "cancellation requests")
	}
	return items, nil
}

func (w *requestWorkflow) ListReturnRequests(ctx context.Context, status []domain.RequestStatus, limit int) ([]domain.ReturnRequest, error) {
	items, err := w.returns.List(ctx, repositories.RequestListFilter{Status: status, Limit: clampLimit(limit, defaultRequestLimit, maxRequestLimit)})
	if err != nil {
		return nil, mapRepositoryError(err, "return requests")
	}
	return items, nil
}

// ListReturnedOrders reads the decided return archive, optionally narrowed to one staff
// decision ("accepted" or "rejected").
func (w *requestWorkflow) ListReturnedOrders(ctx context.Context, staffDecision string, limit int) ([]domain.ReturnArchive, error) {
	staffDecision = strings.ToLower(strings.TrimSpace(staffDecision))
	switch staffDecision {
	case "", domain.StaffDecisionAccepted, domain.StaffDecisionRejected:
	default:
		return nil, validationError("staffDecision must be accepted or rejected")
	}
	items, err := w.archives.List(ctx, repositories.ArchiveListFilter{
		StaffDecision: staffDecision,
		Limit:         clampLimit(limit, defaultRequestLimit, maxRequestLimit),
	})
	if err != nil {
		return nil, mapRepositoryError(err, "returned orders")
	}
	return items, nil
}

func (w *requestWorkflow) GetReturnedOrder(ctx context.Context, archiveID string) (domain.ReturnArchive, error) {
	archiveID = strings.TrimSpace(archiveID)
	if archiveID == "" {
		return domain.ReturnArchive{}, validationError("returned order id is required")
	}
	archive, err := w.archives.Get(ctx, archiveID)
	if err != nil {
		return domain.ReturnArchive{}, mapRepositoryError(err, "returned order "+archiveID)
	}
	return archive, nil
}

func (w *requestWorkflow) checkDecision(cmd DecisionCommand) (string, error) {
	requestID := strings.TrimSpace(cmd.RequestID)
	if requestID == "" {
		return "", validationError("request id is required")
	}
	if cmd.Decision != DecisionApprove && cmd.Decision != DecisionReject {
		return "", validationError("action must be approve or reject")
	}
	if !cmd.Actor.Staff {
		return "", forbiddenError("only staff may decide requests")
	}
	return requestID, nil
}

func (w *requestWorkflow) releaseLock(ctx context.Context, release func(context.Context) error, key string) {
	if err := release(context.WithoutCancel(ctx)); err != nil {
		w.logger(ctx, eventRequestSideEffect, map[string]any{"orderId": key, "lockReleaseError": err.Error()})
	}
}

// buildReturnArchive merges the request snapshot with the live order. Live order fields win
// when present.
func buildReturnArchive(req domain.ReturnRequest, order domain.Order, found bool) domain.ReturnArchive {
	merged := req.OrderSnapshot.Clone()
	partition := req.OrderPartition
	owner := req.Owner
	if found {
		merged = mergeOrder(req.OrderSnapshot, order)
		partition = order.Partition
		if !order.Owner.Empty() {
			owner = order.Owner
		}
	}
	return domain.ReturnArchive{
		ID:                 req.ID,
		RequestID:          req.ID,
		OrderID:            req.OrderID,
		OriginalPartition:  partition,
		Owner:              owner,
		ReturnType:         req.ReturnType,
		SelectedItems:      append([]domain.ReturnItem(nil), req.SelectedItems...),
		Reason:             req.Reason,
		AdditionalComments: req.AdditionalComments,
		CustomerImage:      req.CustomerImage,
		Order:              merged,
		OrderFound:         found,
		RequestedAt:        req.CreatedAt,
	}
}

func mergeOrder(snapshot, live domain.Order) domain.Order {
	out := live.Clone()
	if len(out.Items) == 0 {
		out.Items = append([]domain.OrderLineItem(nil), snapshot.Items...)
	}
	if out.Owner.Empty() {
		out.Owner = snapshot.Owner
	}
	if out.Address == (domain.Address{}) {
		out.Address = snapshot.Address
	}
	if out.Totals == (domain.OrderTotals{}) {
		out.Totals = snapshot.Totals
	}
	if out.Payment.Method == "" && out.Payment.Reference == "" {
		out.Payment = snapshot.Payment
	}
	return out
}

// selectReturnItems checks the selection against the order lines and fills in names and prices.
func selectReturnItems(order domain.Order, selected []domain.ReturnItem) ([]domain.ReturnItem, error) {
	ordered := make(map[string]domain.OrderLineItem, len(order.Items))
	for _, line := range order.Items {
		if existing, ok := ordered[line.ProductID]; ok {
			existing.Quantity += line.Quantity
			ordered[line.ProductID] = existing
			continue
		}
		ordered[line.ProductID] = line
	}

	index := make(map[string]int, len(selected))
	out := make([]domain.ReturnItem, 0, len(selected))
	for i, item := range selected {
		id := strings.TrimSpace(item.ProductID)
		line, ok := ordered[id]
		if id == "" || !ok {
			return nil, validationError("selectedItems[%d] is not part of order %s", i, order.ID)
		}
		if item.Quantity <= 0 {
			return nil, validationError("selectedItems[%d].quantity must be positive", i)
		}
		if pos, seen := index[id]; seen {
			out[pos].Quantity += item.Quantity
		} else {
			index[id] = len(out)
			out = append(out, domain.ReturnItem{ProductID: id, Name: line.Name, Quantity: item.Quantity, UnitPrice: line.UnitPrice})
		}
		if out[index[id]].Quantity > line.Quantity {
			return nil, validationError("selectedItems[%d].quantity exceeds the %d ordered", i, line.Quantity)
		}
	}
	return out, nil
}

func numericUserID(userID string) *int64 {
	id := strings.TrimSpace(userID)
	if id == "" {
		return nil
	}
	v, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

func decisionMessage(kind, orderID string, decision Decision, notes string) string {
	verb := "rejected"
	if decision == DecisionApprove {
		verb = "approved"
	}
	msg := fmt.Sprintf("Your %s request for order %s was %s.", kind, orderID, verb)
	if notes != "" {
		msg += " " + notes
	}
	return msg
}
