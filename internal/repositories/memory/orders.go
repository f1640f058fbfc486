package memory

import (
	"context"
	"slices"
	"sort"
	"strings"

	domain "github.com/storefront-orders/api/internal/domain"
	"github.com/storefront-orders/api/internal/repositories"
)

type orderRepo struct{ s *Store }

func (r orderRepo) Insert(ctx context.Context, order domain.Order) error {
	return r.s.do(ctx, func(st *state) error {
		if _, exists := st.orders[order.ID]; exists {
			return alreadyExists("orders.insert", order.ID)
		}
		st.orders[order.ID] = order.Clone()
		return nil
	})
}

func (r orderRepo) Get(ctx context.Context, orderID string) (domain.Order, error) {
	var out domain.Order
	err := r.s.do(ctx, func(st *state) error {
		order, ok := st.orders[strings.TrimSpace(orderID)]
		if !ok {
			return notFound("orders.get", orderID)
		}
		out = order.Clone()
		return nil
	})
	return out, err
}

func (r orderRepo) Save(ctx context.Context, order domain.Order) error {
	return r.s.do(ctx, func(st *state) error {
		st.orders[order.ID] = order.Clone()
		return nil
	})
}

func (r orderRepo) Delete(ctx context.Context, orderID string) (bool, error) {
	var removed bool
	err := r.s.do(ctx, func(st *state) error {
		if _, ok := st.orders[orderID]; ok {
			delete(st.orders, orderID)
			removed = true
		}
		return nil
	})
	return removed, err
}

func (r orderRepo) QueryByOwner(ctx context.Context, query repositories.OwnerQuery) ([]domain.Order, error) {
	var out []domain.Order
	err := r.s.do(ctx, func(st *state) error {
		for _, order := range st.orders {
			if len(query.Partitions) > 0 && !slices.Contains(query.Partitions, order.Partition) {
				continue
			}
			if order.Owner.Matches(query.Keys) {
				out = append(out, order.Clone())
			}
		}
		return nil
	})
	sortOrders(out)
	return limitSlice(out, query.Limit), err
}

func (r orderRepo) List(ctx context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
	var out []domain.Order
	err := r.s.do(ctx, func(st *state) error {
		for _, order := range st.orders {
			if len(filter.Partitions) > 0 && !slices.Contains(filter.Partitions, order.Partition) {
				continue
			}
			if filter.Status != "" && !strings.EqualFold(order.Status, filter.Status) {
				continue
			}
			if filter.CreatedAfter != nil && order.CreatedAt.Before(*filter.CreatedAfter) {
				continue
			}
			if filter.CreatedUntil != nil && order.CreatedAt.After(*filter.CreatedUntil) {
				continue
			}
			out = append(out, order.Clone())
		}
		return nil
	})
	sortOrders(out)
	return limitSlice(out, filter.Limit), err
}

func sortOrders(orders []domain.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID > orders[j].ID
		}
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
}

type moveRepo struct{ s *Store }

func (r moveRepo) Append(ctx context.Context, move domain.OrderMove) error {
	return r.s.do(ctx, func(st *state) error {
		for _, existing := range st.moves {
			if existing.ID == move.ID {
				return alreadyExists("orderMoves.append", move.ID)
			}
		}
		st.moves = append(st.moves, move)
		return nil
	})
}

func (r moveRepo) ListByOrder(ctx context.Context, orderID string) ([]domain.OrderMove, error) {
	var out []domain.OrderMove
	err := r.s.do(ctx, func(st *state) error {
		for _, move := range st.moves {
			if move.OrderID == orderID {
				out = append(out, move)
			}
		}
		return nil
	})
	return out, err
}
