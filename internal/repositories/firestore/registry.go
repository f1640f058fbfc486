// Package firestore implements the repositories on Cloud Firestore. Every repository joins the
// transaction bound to the context by Registry.RunInTx.
package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/storefront-orders/api/internal/platform/firestore"
	"github.com/storefront-orders/api/internal/repositories"
)

// Registry wires every Firestore repository over one provider.
type Registry struct {
	provider      *pfirestore.Provider
	uow           *pfirestore.UnitOfWork
	products      *productRepository
	reservations  *reservationRepository
	orders        *orderRepository
	moves         *orderMoveRepository
	cancellations *cancellationRepository
	returns       *returnRepository
	archives      *archiveRepository
	notifications *notificationRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry builds the repositories. Transactions use the provider's defaults unless opts
// override them.
func NewRegistry(provider *pfirestore.Provider, opts ...pfirestore.TxOption) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry: provider is required")
	}
	return &Registry{
		provider:      provider,
		uow:           pfirestore.NewUnitOfWork(provider, opts...),
		products:      newProductRepository(provider),
		reservations:  newReservationRepository(provider),
		orders:        newOrderRepository(provider),
		moves:         newOrderMoveRepository(provider),
		cancellations: newCancellationRepository(provider),
		returns:       newReturnRepository(provider),
		archives:      newArchiveRepository(provider),
		notifications: newNotificationRepository(provider),
	}, nil
}

func (r *Registry) Close(ctx context.Context) error { return r.provider.Close(ctx) }

func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.uow.RunInTx(ctx, fn)
}

func (r *Registry) Products() repositories.ProductRepository { return r.products }
func (r *Registry) Reservations() repositories.ReservationRepository { return r.reservations }
func (r *Registry) Orders() repositories.OrderRepository { return r.orders }
func (r *Registry) OrderMoves() repositories.OrderMoveRepository { return r.moves }
func (r *Registry) CancellationRequests() repositories.CancellationRequestRepository {
	return r.cancellations
}
func (r *Registry) ReturnRequests() repositories.ReturnRequestRepository { return r.returns }
func (r *Registry) ReturnArchives() repositories.ReturnArchiveRepository { return r.archives }
func (r *Registry) Notifications() repositories.NotificationRepository { return r.notifications }
