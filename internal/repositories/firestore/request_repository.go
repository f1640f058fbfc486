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
	cancellationRequestsCollection = "cancellationRequests"
	returnRequestsCollection       = "returnRequests"
	returnedOrdersCollection       = "returnedOrders"
)

type cancellationRepository struct {
	base *pfirestore.BaseRepository[cancellationDocument]
}

func newCancellationRepository(provider *pfirestore.Provider) *cancellationRepository {
	return &cancellationRepository{
		base: pfirestore.NewBaseRepository[cancellationDocument](provider, cancellationRequestsCollection, nil, nil),
	}
}

func (r *cancellationRepository) Create(ctx context.Context, req domain.CancellationRequest) error {
	return r.base.Create(ctx, req.ID, newCancellationDocument(req))
}

func (r *cancellationRepository) Get(ctx context.Context, requestID string) (domain.CancellationRequest, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(requestID))
	if err != nil {
		return domain.CancellationRequest{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *cancellationRepository) Save(ctx context.Context, req domain.CancellationRequest) error {
	return r.base.Set(ctx, req.ID, newCancellationDocument(req))
}

func (r *cancellationRepository) List(ctx context.Context, filter repositories.RequestListFilter) ([]domain.CancellationRequest, error) {
	docs, err := r.base.Query(ctx, requestListQuery(filter))
	if err != nil {
		return nil, err
	}
	out := make([]domain.CancellationRequest, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain(doc.ID))
	}
	return out, nil
}

func (r *cancellationRepository) QueryByOwner(ctx context.Context, query repositories.OwnerQuery) ([]domain.CancellationRequest, error) {
	filter, ok := ownerFilter("owner", query.Keys)
	if !ok {
		return nil, nil
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.WhereEntity(filter)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.CancellationRequest, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain(doc.ID))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return limit(out, query.Limit), nil
}

type returnRepository struct {
	base *pfirestore.BaseRepository[returnDocument]
}

func newReturnRepository(provider *pfirestore.Provider) *returnRepository {
	return &returnRepository{
		base: pfirestore.NewBaseRepository[returnDocument](provider, returnRequestsCollection, nil, nil),
	}
}

func (r *returnRepository) Create(ctx context.Context, req domain.ReturnRequest) error {
	return r.base.Create(ctx, req.ID, newReturnDocument(req))
}

func (r *returnRepository) Get(ctx context.Context, requestID string) (domain.ReturnRequest, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(requestID))
	if err != nil {
		return domain.ReturnRequest{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *returnRepository) Delete(ctx context.Context, requestID string) (bool, error) {
	return r.base.Delete(ctx, requestID)
}

func (r *returnRepository) List(ctx context.Context, filter repositories.RequestListFilter) ([]domain.ReturnRequest, error) {
	docs, err := r.base.Query(ctx, requestListQuery(filter))
	if err != nil {
		return nil, err
	}
	out := make([]domain.ReturnRequest, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain(doc.ID))
	}
	return out, nil
}

func (r *returnRepository) FindOpenByOrder(ctx context.Context, orderID string) ([]domain.ReturnRequest, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", orderID).
			Where("status", "==", string(domain.RequestStatusPendingReview))
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.ReturnRequest, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain(doc.ID))
	}
	return out, nil
}

type archiveRepository struct {
	base *pfirestore.BaseRepository[archiveDocument]
}

func newArchiveRepository(provider *pfirestore.Provider) *archiveRepository {
	return &archiveRepository{
		base: pfirestore.NewBaseRepository[archiveDocument](provider, returnedOrdersCollection, nil, nil),
	}
}

func (r *archiveRepository) Create(ctx context.Context, archive domain.ReturnArchive) error {
	return r.base.Create(ctx, archive.ID, newArchiveDocument(archive))
}

func (r *archiveRepository) Get(ctx context.Context, archiveID string) (domain.ReturnArchive, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(archiveID))
	if err != nil {
		return domain.ReturnArchive{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *archiveRepository) QueryByOwner(ctx context.Context, query repositories.OwnerQuery) ([]domain.ReturnArchive, error) {
	filter, ok := ownerFilter("owner", query.Keys)
	if !ok {
		return nil, nil
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.WhereEntity(filter)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.ReturnArchive, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain(doc.ID))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DecidedAt.After(out[j].DecidedAt) })
	return limit(out, query.Limit), nil
}

func (r *archiveRepository) List(ctx context.Context, filter repositories.ArchiveListFilter) ([]domain.ReturnArchive, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if decision := strings.TrimSpace(filter.StaffDecision); decision != "" {
			q = q.Where("staffDecision", "==", decision)
		}
		q = q.OrderBy("decidedAt", firestore.Desc)
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.ReturnArchive, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain(doc.ID))
	}
	return out, nil
}

func requestListQuery(filter repositories.RequestListFilter) pfirestore.QueryBuilder {
	return func(q firestore.Query) firestore.Query {
		if len(filter.Status) > 0 {
			statuses := make([]string, 0, len(filter.Status))
			for _, s := range filter.Status {
				statuses = append(statuses, string(s))
			}
			q = q.Where("status", "in", statuses)
		}
		q = q.OrderBy("createdAt", firestore.Desc)
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		return q
	}
}
