package firestore

import (
	"context"
	"sort"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/storefront-orders/api/internal/domain"
	pfirestore "github.com/storefront-orders/api/internal/platform/firestore"
	"github.com/storefront-orders/api/internal/repositories"
)

const (
	ordersCollection     = "orders"
	orderMovesCollection = "orderMoves"
)

type orderRepository struct {
	base *pfirestore.BaseRepository[orderDocument]
}

func newOrderRepository(provider *pfirestore.Provider) *orderRepository {
	return &orderRepository{
		base: pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil),
	}
}

func (r *orderRepository) Insert(ctx context.Context, order domain.Order) error {
	return r.base.Create(ctx, order.ID, newOrderDocument(order))
}

func (r *orderRepository) Get(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *orderRepository) Save(ctx context.Context, order domain.Order) error {
	return r.base.Set(ctx, order.ID, newOrderDocument(order))
}

func (r *orderRepository) Delete(ctx context.Context, orderID string) (bool, error) {
	return r.base.Delete(ctx, orderID)
}

func (r *orderRepository) QueryByOwner(ctx context.Context, query repositories.OwnerQuery) ([]domain.Order, error) {
	filter, ok := ownerFilter("owner", query.Keys)
	if !ok {
		return nil, nil
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.WhereEntity(filter)
		if len(query.Partitions) > 0 {
			q = q.Where("partition", "in", partitionValues(query.Partitions))
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain(doc.ID))
	}
	sortOrdersNewestFirst(out)
	return limit(out, query.Limit), nil
}

func (r *orderRepository) List(ctx context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if len(filter.Partitions) > 0 {
			q = q.Where("partition", "in", partitionValues(filter.Partitions))
		}
		if status := strings.TrimSpace(filter.Status); status != "" {
			q = q.Where("status", "==", strings.ToLower(status))
		}
		if filter.CreatedAfter != nil {
			q = q.Where("createdAt", ">=", filter.CreatedAfter.UTC())
		}
		if filter.CreatedUntil != nil {
			q = q.Where("createdAt", "<=", filter.CreatedUntil.UTC())
		}
		q = q.OrderBy("createdAt", firestore.Desc)
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain(doc.ID))
	}
	return out, nil
}

type orderMoveRepository struct {
	base *pfirestore.BaseRepository[moveDocument]
}

func newOrderMoveRepository(provider *pfirestore.Provider) *orderMoveRepository {
	return &orderMoveRepository{
		base: pfirestore.NewBaseRepository[moveDocument](provider, orderMovesCollection, nil, nil),
	}
}

func (r *orderMoveRepository) Append(ctx context.Context, move domain.OrderMove) error {
	return r.base.Create(ctx, move.ID, moveDocument{
		OrderID:        move.OrderID,
		Operation:      move.Operation,
		From:           string(move.From),
		To:             string(move.To),
		PreviousStatus: move.PreviousStatus,
		Status:         move.Status,
		Reason:         move.Reason,
		ActorID:        move.ActorID,
		OccurredAt:     move.OccurredAt.UTC(),
	})
}

func (r *orderMoveRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.OrderMove, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", orderID).OrderBy("occurredAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.OrderMove, 0, len(docs))
	for _, doc := range docs {
		out = append(out, domain.OrderMove{
			ID:             doc.ID,
			OrderID:        doc.Data.OrderID,
			Operation:      doc.Data.Operation,
			From:           domain.Partition(doc.Data.From),
			To:             domain.Partition(doc.Data.To),
			PreviousStatus: doc.Data.PreviousStatus,
			Status:         doc.Data.Status,
			Reason:         doc.Data.Reason,
			ActorID:        doc.Data.ActorID,
			OccurredAt:     doc.Data.OccurredAt.UTC(),
		})
	}
	return out, nil
}

// ownerFilter builds the OR of every supplied owner key under prefix. It reports false when
// no key is present; callers must not fall back to an unfiltered query.
func ownerFilter(prefix string, keys domain.OwnerRef) (firestore.EntityFilter, bool) {
	var filters []firestore.EntityFilter
	if id := strings.TrimSpace(keys.UserID); id != "" {
		filters = append(filters, firestore.PropertyFilter{Path: prefix + ".userId", Operator: "==", Value: id})
	}
	if email := domain.NormalizeEmail(keys.Email); email != "" {
		filters = append(filters, firestore.PropertyFilter{Path: prefix + ".email", Operator: "==", Value: email})
	}
	if name := domain.NameKey(keys.FullName); name != "" {
		filters = append(filters, firestore.PropertyFilter{Path: prefix + ".nameKey", Operator: "==", Value: name})
	}
	switch len(filters) {
	case 0:
		return nil, false
	case 1:
		return filters[0], true
	}
	return firestore.OrFilter{Filters: filters}, true
}

func partitionValues(partitions []domain.Partition) []string {
	out := make([]string, 0, len(partitions))
	for _, p := range partitions {
		out = append(out, string(p))
	}
	return out
}

func sortOrdersNewestFirst(orders []domain.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID > orders[j].ID
		}
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
}

func limit[T any](items []T, n int) []T {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}
