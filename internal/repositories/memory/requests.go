package memory

import (
	"context"
	"slices"
	"sort"
	"strings"

	domain "github.com/storefront-orders/api/internal/domain"
	"github.com/storefront-orders/api/internal/repositories"
)

type cancellationRepo struct{ s *Store }

func cloneCancellation(req domain.CancellationRequest) domain.CancellationRequest {
	req.Snapshot = req.Snapshot.Clone()
	if req.UserIDNumeric != nil {
		v := *req.UserIDNumeric
		req.UserIDNumeric = &v
	}
	return req
}

func (r cancellationRepo) Create(ctx context.Context, req domain.CancellationRequest) error {
	return r.s.do(ctx, func(st *state) error {
		if _, exists := st.cancellations[req.ID]; exists {
			return alreadyExists("cancellationRequests.create", req.ID)
		}
		st.cancellations[req.ID] = cloneCancellation(req)
		return nil
	})
}

func (r cancellationRepo) Get(ctx context.Context, requestID string) (domain.CancellationRequest, error) {
	var out domain.CancellationRequest
	err := r.s.do(ctx, func(st *state) error {
		req, ok := st.cancellations[strings.TrimSpace(requestID)]
		if !ok {
			return notFound("cancellationRequests.get", requestID)
		}
		out = cloneCancellation(req)
		return nil
	})
	return out, err
}

func (r cancellationRepo) Save(ctx context.Context, req domain.CancellationRequest) error {
	return r.s.do(ctx, func(st *state) error {
		st.cancellations[req.ID] = cloneCancellation(req)
		return nil
	})
}

func (r cancellationRepo) List(ctx context.Context, filter repositories.RequestListFilter) ([]domain.CancellationRequest, error) {
	var out []domain.CancellationRequest
	err := r.s.do(ctx, func(st *state) error {
		for _, req := range st.cancellations {
			if len(filter.Status) > 0 && !slices.Contains(filter.Status, req.Status) {
				continue
			}
			out = append(out, cloneCancellation(req))
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return limitSlice(out, filter.Limit), err
}

func (r cancellationRepo) QueryByOwner(ctx context.Context, query repositories.OwnerQuery) ([]domain.CancellationRequest, error) {
	var out []domain.CancellationRequest
	err := r.s.do(ctx, func(st *state) error {
		for _, req := range st.cancellations {
			if req.Owner.Matches(query.Keys) {
				out = append(out, cloneCancellation(req))
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return limitSlice(out, query.Limit), err
}

type returnRepo struct{ s *Store }

func cloneReturn(req domain.ReturnRequest) domain.ReturnRequest {
	req.SelectedItems = append([]domain.ReturnItem(nil), req.SelectedItems...)
	req.OrderSnapshot = req.OrderSnapshot.Clone()
	if req.CustomerImage != nil {
		img := *req.CustomerImage
		req.CustomerImage = &img
	}
	return req
}

func (r returnRepo) Create(ctx context.Context, req domain.ReturnRequest) error {
	return r.s.do(ctx, func(st *state) error {
		if _, exists := st.returns[req.ID]; exists {
			return alreadyExists("returnRequests.create", req.ID)
		}
		st.returns[req.ID] = cloneReturn(req)
		return nil
	})
}

func (r returnRepo) Get(ctx context.Context, requestID string) (domain.ReturnRequest, error) {
	var out domain.ReturnRequest
	err := r.s.do(ctx, func(st *state) error {
		req, ok := st.returns[strings.TrimSpace(requestID)]
		if !ok {
			return notFound("returnRequests.get", requestID)
		}
		out = cloneReturn(req)
		return nil
	})
	return out, err
}

func (r returnRepo) Delete(ctx context.Context, requestID string) (bool, error) {
	var removed bool
	err := r.s.do(ctx, func(st *state) error {
		if _, ok := st.returns[requestID]; ok {
			delete(st.returns, requestID)
			removed = true
		}
		return nil
	})
	return removed, err
}

func (r returnRepo) List(ctx context.Context, filter repositories.RequestListFilter) ([]domain.ReturnRequest, error) {
	var out []domain.ReturnRequest
	err := r.s.do(ctx, func(st *state) error {
		for _, req := range st.returns {
			if len(filter.Status) > 0 && !slices.Contains(filter.Status, req.Status) {
				continue
			}
			out = append(out, cloneReturn(req))
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return limitSlice(out, filter.Limit), err
}

func (r returnRepo) FindOpenByOrder(ctx context.Context, orderID string) ([]domain.ReturnRequest, error) {
	var out []domain.ReturnRequest
	err := r.s.do(ctx, func(st *state) error {
		for _, req := range st.returns {
			if req.OrderID == orderID && req.Status == domain.RequestStatusPendingReview {
				out = append(out, cloneReturn(req))
			}
		}
		return nil
	})
	return out, err
}

type archiveRepo struct{ s *Store }

func cloneArchive(a domain.ReturnArchive) domain.ReturnArchive {
	a.SelectedItems = append([]domain.ReturnItem(nil), a.SelectedItems...)
	a.Order = a.Order.Clone()
	if a.CustomerImage != nil {
		img := *a.CustomerImage
		a.CustomerImage = &img
	}
	if a.StaffImage != nil {
		img := *a.StaffImage
		a.StaffImage = &img
	}
	return a
}

func (r archiveRepo) Create(ctx context.Context, archive domain.ReturnArchive) error {
	return r.s.do(ctx, func(st *state) error {
		if _, exists := st.archives[archive.ID]; exists {
			return alreadyExists("returnedOrders.create", archive.ID)
		}
		st.archives[archive.ID] = cloneArchive(archive)
		return nil
	})
}

func (r archiveRepo) Get(ctx context.Context, archiveID string) (domain.ReturnArchive, error) {
	var out domain.ReturnArchive
	err := r.s.do(ctx, func(st *state) error {
		a, ok := st.archives[strings.TrimSpace(archiveID)]
		if !ok {
			return notFound("returnedOrders.get", archiveID)
		}
		out = cloneArchive(a)
		return nil
	})
	return out, err
}

func (r archiveRepo) QueryByOwner(ctx context.Context, query repositories.OwnerQuery) ([]domain.ReturnArchive, error) {
	var out []domain.ReturnArchive
	err := r.s.do(ctx, func(st *state) error {
		for _, a := range st.archives {
			if a.Owner.Matches(query.Keys) {
				out = append(out, cloneArchive(a))
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].DecidedAt.After(out[j].DecidedAt) })
	return limitSlice(out, query.Limit), err
}

func (r archiveRepo) List(ctx context.Context, filter repositories.ArchiveListFilter) ([]domain.ReturnArchive, error) {
	var out []domain.ReturnArchive
	err := r.s.do(ctx, func(st *state) error {
		for _, a := range st.archives {
			if filter.StaffDecision != "" && a.StaffDecision != filter.StaffDecision {
				continue
			}
			out = append(out, cloneArchive(a))
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].DecidedAt.After(out[j].DecidedAt) })
	return limitSlice(out, filter.Limit), err
}
