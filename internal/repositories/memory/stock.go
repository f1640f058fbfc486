package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	domain "github.com/storefront-orders/api/internal/domain"
)

type productRepo struct{ s *Store }

func (r productRepo) Get(ctx context.Context, productID string) (domain.Product, error) {
	var out domain.Product
	err := r.s.do(ctx, func(st *state) error {
		p, ok := st.products[strings.TrimSpace(productID)]
		if !ok {
			return notFound("products.get", productID)
		}
		out = p
		return nil
	})
	return out, err
}

func (r productRepo) GetMany(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	out := make(map[string]domain.Product, len(productIDs))
	err := r.s.do(ctx, func(st *state) error {
		for _, id := range productIDs {
			if p, ok := st.products[strings.TrimSpace(id)]; ok {
				out[p.ID] = p
			}
		}
		return nil
	})
	return out, err
}

func (r productRepo) Save(ctx context.Context, product domain.Product) error {
	return r.s.do(ctx, func(st *state) error {
		st.products[product.ID] = product
		return nil
	})
}

type reservationRepo struct{ s *Store }

func cloneReservation(res domain.StockReservation) domain.StockReservation {
	res.Items = append([]domain.StockLine(nil), res.Items...)
	return res
}

func (r reservationRepo) Get(ctx context.Context, reservationID string) (domain.StockReservation, error) {
	var out domain.StockReservation
	err := r.s.do(ctx, func(st *state) error {
		res, ok := st.reservations[strings.TrimSpace(reservationID)]
		if !ok {
			return notFound("stockReservations.get", reservationID)
		}
		out = cloneReservation(res)
		return nil
	})
	return out, err
}

func (r reservationRepo) Create(ctx context.Context, reservation domain.StockReservation) error {
	return r.s.do(ctx, func(st *state) error {
		if _, exists := st.reservations[reservation.ID]; exists {
			return alreadyExists("stockReservations.create", reservation.ID)
		}
		st.reservations[reservation.ID] = cloneReservation(reservation)
		return nil
	})
}

func (r reservationRepo) Save(ctx context.Context, reservation domain.StockReservation) error {
	return r.s.do(ctx, func(st *state) error {
		st.reservations[reservation.ID] = cloneReservation(reservation)
		return nil
	})
}

func (r reservationRepo) ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.StockReservation, error) {
	var out []domain.StockReservation
	err := r.s.do(ctx, func(st *state) error {
		for _, res := range st.reservations {
			if res.Status == domain.ReservationStatusReserved && !res.ExpiresAt.After(now) {
				out = append(out, cloneReservation(res))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return limitSlice(out, limit), err
}

func (r reservationRepo) ListActiveByOwner(ctx context.Context, ownerID string) ([]domain.StockReservation, error) {
	var out []domain.StockReservation
	err := r.s.do(ctx, func(st *state) error {
		for _, res := range st.reservations {
			if res.OwnerID == ownerID && res.Status == domain.ReservationStatusReserved {
				out = append(out, cloneReservation(res))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}
