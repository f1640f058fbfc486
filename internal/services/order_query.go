package services

import (
	"context"
	"errors"
	"sort"
	"strings"

	domain "github.com/storefront-orders/api/internal/domain"
	"github.com/storefront-orders/api/internal/repositories"
)

const (
	eventOwnerLookup = "orders.owner_lookup"

	// status shown for orders frozen into a pending cancellation request
	statusCancellationRequested = "cancellation_requested"
)

// OrderQueryDeps bundles the collaborators of the owner order view.
type OrderQueryDeps struct {
	Orders        repositories.OrderRepository
	Cancellations repositories.CancellationRequestRepository
	Archives      repositories.ReturnArchiveRepository
	Identity      IdentityResolver
	Logger        Logger
}

type orderQuery struct {
	orders        repositories.OrderRepository
	cancellations repositories.CancellationRequestRepository
	archives      repositories.ReturnArchiveRepository
	identity      IdentityResolver
	logger        Logger
}

// NewOrderQuery wires the owner order view.
func NewOrderQuery(deps OrderQueryDeps) (OrderQuery, error) {
	if deps.Orders == nil {
		return nil, errors.New("order query: order repository is required")
	}
	if deps.Cancellations == nil {
		return nil, errors.New("order query: cancellation repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = nopLogger
	}
	return &orderQuery{
		orders:        deps.Orders,
		cancellations: deps.Cancellations,
		archives:      deps.Archives,
		identity:      deps.Identity,
		logger:        logger,
	}, nil
}

// OwnerOrders merges every live order of the owner with its pending cancellation requests and
// decided returns, newest first. Customers may only read their own orders.
func (q *orderQuery) OwnerOrders(ctx context.Context, lookup OwnerLookup, actor Actor) ([]OwnerOrderView, error) {
	keys, err := q.ownerKeys(ctx, lookup, actor)
	if err != nil {
		return nil, err
	}

	orders, err := q.orders.QueryByOwner(ctx, repositories.OwnerQuery{Keys: keys})
	if err != nil {
		return nil, mapRepositoryError(err, "orders")
	}
	requests, err := q.cancellations.QueryByOwner(ctx, repositories.OwnerQuery{Keys: keys})
	if err != nil {
		return nil, mapRepositoryError(err, "cancellation requests")
	}

	var archives []domain.ReturnArchive
	if q.archives != nil {
		archives, err = q.archives.QueryByOwner(ctx, repositories.OwnerQuery{Keys: keys})
		if err != nil {
			return nil, mapRepositoryError(err, "returned orders")
		}
	}

	views := make([]OwnerOrderView, 0, len(orders)+len(requests)+len(archives))
	seen := make(map[string]struct{}, len(orders))
	for _, order := range orders {
		seen[order.ID] = struct{}{}
		views = append(views, OwnerOrderView{
			OrderID:       order.ID,
			Partition:     order.Partition,
			Status:        order.Status,
			DisplayStatus: order.DisplayStatus,
			Order:         order,
			CreatedAt:     order.CreatedAt,
		})
	}
	for _, req := range requests {
		if req.Status != domain.RequestStatusPendingReview {
			continue
		}
		if _, ok := seen[req.OriginalOrderID]; ok {
			continue
		}
		views = append(views, OwnerOrderView{
			OrderID:       req.OriginalOrderID,
			Partition:     req.OriginalPartition,
			Status:        statusCancellationRequested,
			DisplayStatus: "Cancellation Requested",
			Order:         req.Snapshot,
			RequestID:     req.ID,
			CreatedAt:     req.Snapshot.CreatedAt,
		})
	}
	for _, archive := range archives {
		if _, ok := seen[archive.OrderID]; ok {
			continue
		}
		seen[archive.OrderID] = struct{}{}
		views = append(views, archiveView(archive))
	}
	sort.SliceStable(views, func(i, j int) bool {
		if views[i].CreatedAt.Equal(views[j].CreatedAt) {
			return views[i].OrderID > views[j].OrderID
		}
		return views[i].CreatedAt.After(views[j].CreatedAt)
	})
	return views, nil
}

// archiveView shows a decided return with its status taken from the staff decision, for
// example "return_accepted" or "exchange_rejected".
func archiveView(archive domain.ReturnArchive) OwnerOrderView {
	kind := archive.ReturnType
	if kind == "" {
		kind = domain.ReturnTypeReturn
	}
	decision := archive.StaffDecision
	created := archive.Order.CreatedAt
	if created.IsZero() {
		created = archive.RequestedAt
	}
	return OwnerOrderView{
		OrderID:       archive.OrderID,
		Partition:     archive.OriginalPartition,
		Status:        string(kind) + "_" + decision,
		DisplayStatus: titleWord(string(kind)) + " " + titleWord(decision),
		Order:         archive.Order,
		RequestID:     archive.RequestID,
		Archived:      true,
		CreatedAt:     created,
	}
}

func titleWord(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func (q *orderQuery) ownerKeys(ctx context.Context, lookup OwnerLookup, actor Actor) (domain.OwnerRef, error) {
	lookup.UserID = strings.TrimSpace(lookup.UserID)
	lookup.Email = domain.NormalizeEmail(lookup.Email)
	lookup.FullName = strings.TrimSpace(lookup.FullName)

	if !actor.Staff {
		if strings.TrimSpace(actor.ID) == "" {
			return domain.OwnerRef{}, forbiddenError("caller identity is required")
		}
		if lookup.UserID != "" && lookup.UserID != actor.ID {
			return domain.OwnerRef{}, forbiddenError("customers may only list their own orders")
		}
		return domain.OwnerRef{UserID: actor.ID, Email: domain.NormalizeEmail(actor.Email)}, nil
	}

	keys := domain.OwnerRef{UserID: lookup.UserID, Email: lookup.Email, FullName: lookup.FullName}
	if keys.Empty() {
		return domain.OwnerRef{}, validationError("userId, email or fullName is required")
	}
	if keys.UserID == "" && keys.Email != "" && q.identity != nil {
		uid, ok, err := q.identity.ResolveEmail(ctx, keys.Email)
		switch {
		case err != nil:
			q.logger(ctx, eventOwnerLookup, map[string]any{
				"step":  "resolve_email",
				"error": err.Error(),
			})
		case ok:
			keys.UserID = uid
		}
	}
	return keys, nil
}
