// Package memory provides an in-process repository registry used for local development
// and service tests. All collections share one mutex; RunInTx holds it for the whole
// callback and restores the previous state when the callback fails.
package memory

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"

	domain "github.com/storefront-orders/api/internal/domain"
	"github.com/storefront-orders/api/internal/repositories"
)

var (
	errNotFound      = errors.New("document not found")
	errAlreadyExists = errors.New("document already exists")
)

// Error implements repositories.RepositoryError.
type Error struct {
	op       string
	err      error
	notFound bool
	conflict bool
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %v", e.op, e.err)
}

func (e *Error) Unwrap() error { return e.err }

func (e *Error) IsNotFound() bool { return e != nil && e.notFound }

func (e *Error) IsConflict() bool { return e != nil && e.conflict }

func (e *Error) IsUnavailable() bool { return false }

func notFound(op, id string) error {
	return &Error{op: op, err: fmt.Errorf("%w: %s", errNotFound, id), notFound: true}
}

func alreadyExists(op, id string) error {
	return &Error{op: op, err: fmt.Errorf("%w: %s", errAlreadyExists, id), conflict: true}
}

type txKey struct{ store *Store }

type state struct {
	products      map[string]domain.Product
	reservations  map[string]domain.StockReservation
	orders        map[string]domain.Order
	moves         []domain.OrderMove
	cancellations map[string]domain.CancellationRequest
	returns       map[string]domain.ReturnRequest
	archives      map[string]domain.ReturnArchive
	notifications map[string]domain.Notification
}

func (s state) clone() state {
	return state{
		products:      maps.Clone(s.products),
		reservations:  maps.Clone(s.reservations),
		orders:        maps.Clone(s.orders),
		moves:         append([]domain.OrderMove(nil), s.moves...),
		cancellations: maps.Clone(s.cancellations),
		returns:       maps.Clone(s.returns),
		archives:      maps.Clone(s.archives),
		notifications: maps.Clone(s.notifications),
	}
}

// Store holds every collection. Stored values are copies; callers never share slices with it.
type Store struct {
	mu sync.Mutex
	st state
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{st: state{
		products:      make(map[string]domain.Product),
		reservations:  make(map[string]domain.StockReservation),
		orders:        make(map[string]domain.Order),
		cancellations: make(map[string]domain.CancellationRequest),
		returns:       make(map[string]domain.ReturnRequest),
		archives:      make(map[string]domain.ReturnArchive),
		notifications: make(map[string]domain.Notification),
	}}
}

// RunInTx implements repositories.UnitOfWork. Nested calls join the outer transaction.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return errors.New("memory: transaction function is nil")
	}
	if s.inTx(ctx) {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(context.WithValue(ctx, txKey{store: s}, true)); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

func (s *Store) inTx(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	v, _ := ctx.Value(txKey{store: s}).(bool)
	return v
}

// do runs fn under the store lock unless ctx already belongs to a transaction holding it.
func (s *Store) do(ctx context.Context, fn func(st *state) error) error {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	if s.inTx(ctx) {
		return fn(&s.st)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&s.st)
}

// Registry implements repositories.Registry over a Store.
type Registry struct {
	store *Store
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs a registry backed by a fresh store.
func NewRegistry() *Registry {
	return &Registry{store: NewStore()}
}

// Store exposes the backing store for seeding.
func (r *Registry) Store() *Store { return r.store }

func (r *Registry) Close(context.Context) error { return nil }

func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.store.RunInTx(ctx, fn)
}

func (r *Registry) Products() repositories.ProductRepository { return productRepo{r.store} }

func (r *Registry) Reservations() repositories.ReservationRepository {
	return reservationRepo{r.store}
}

func (r *Registry) Orders() repositories.OrderRepository { return orderRepo{r.store} }

func (r *Registry) OrderMoves() repositories.OrderMoveRepository { return moveRepo{r.store} }

func (r *Registry) CancellationRequests() repositories.CancellationRequestRepository {
	return cancellationRepo{r.store}
}

func (r *Registry) ReturnRequests() repositories.ReturnRequestRepository {
	return returnRepo{r.store}
}

func (r *Registry) ReturnArchives() repositories.ReturnArchiveRepository {
	return archiveRepo{r.store}
}

func (r *Registry) Notifications() repositories.NotificationRepository {
	return notificationRepo{r.store}
}

func limitSlice[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
