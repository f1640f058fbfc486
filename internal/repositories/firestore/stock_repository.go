package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/storefront-orders/api/internal/domain"
	pfirestore "github.com/storefront-orders/api/internal/platform/firestore"
)

const reservationsCollection = "stockReservations"

type reservationRepository struct {
	base *pfirestore.BaseRepository[reservationDocument]
}

func newReservationRepository(provider *pfirestore.Provider) *reservationRepository {
	return &reservationRepository{
		base: pfirestore.NewBaseRepository[reservationDocument](provider, reservationsCollection, nil, nil),
	}
}

func (r *reservationRepository) Get(ctx context.Context, reservationID string) (domain.StockReservation, error) {
	doc, err := r.base.Get(ctx, reservationID)
	if err != nil {
		return domain.StockReservation{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *reservationRepository) Create(ctx context.Context, reservation domain.StockReservation) error {
	return r.base.Create(ctx, reservation.ID, newReservationDocument(reservation))
}

func (r *reservationRepository) Save(ctx context.Context, reservation domain.StockReservation) error {
	return r.base.Set(ctx, reservation.ID, newReservationDocument(reservation))
}

func (r *reservationRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.StockReservation, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("status", "==", domain.ReservationStatusReserved).
			Where("expiresAt", "<=", now.UTC()).
			OrderBy("expiresAt", firestore.Asc)
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.StockReservation, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain(doc.ID))
	}
	return out, nil
}

func (r *reservationRepository) ListActiveByOwner(ctx context.Context, ownerID string) ([]domain.StockReservation, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("ownerId", "==", ownerID).
			Where("status", "==", domain.ReservationStatusReserved)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.StockReservation, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain(doc.ID))
	}
	return out, nil
}
