package repositories

import (
	"context"
	"time"

	domain "github.com/storefront-orders/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Products() ProductRepository
	Reservations() ReservationRepository
	Orders() OrderRepository
	OrderMoves() OrderMoveRepository
	CancellationRequests() CancellationRequestRepository
	ReturnRequests() ReturnRequestRepository
	ReturnArchives() ReturnArchiveRepository
	Notifications() NotificationRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork groups repository operations in one transaction. Repositories called with the
// context handed to fn participate in it. Backends that require reads before writes (Firestore)
// expect fn to perform every Get before its first mutation.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ProductRepository reads and writes product stock documents.
type ProductRepository interface {
	Get(ctx context.Context, productID string) (domain.Product, error)
	// GetMany returns the products that exist; missing ids are absent from the map.
	GetMany(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
	Save(ctx context.Context, product domain.Product) error
}

// ReservationRepository persists stock reservation holds.
type ReservationRepository interface {
	Get(ctx context.Context, reservationID string) (domain.StockReservation, error)
	Create(ctx context.Context, reservation domain.StockReservation) error
	Save(ctx context.Context, reservation domain.StockReservation) error
	ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.StockReservation, error)
	// ListActiveByOwner returns the owner's holds still in the reserved state.
	ListActiveByOwner(ctx context.Context, ownerID string) ([]domain.StockReservation, error)
}

// OrderRepository stores every order in one collection keyed by id; Partition is a field.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Get(ctx context.Context, orderID string) (domain.Order, error)
	Save(ctx context.Context, order domain.Order) error
	Delete(ctx context.Context, orderID string) (bool, error)
	QueryByOwner(ctx context.Context, query OwnerQuery) ([]domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) ([]domain.Order, error)
}

// OrderMoveRepository is the append-only audit log of partition changes.
type OrderMoveRepository interface {
	Append(ctx context.Context, move domain.OrderMove) error
	ListByOrder(ctx context.Context, orderID string) ([]domain.OrderMove, error)
}

// CancellationRequestRepository persists cancellation requests.
type CancellationRequestRepository interface {
	Create(ctx context.Context, req domain.CancellationRequest) error
	Get(ctx context.Context, requestID string) (domain.CancellationRequest, error)
	Save(ctx context.Context, req domain.CancellationRequest) error
	List(ctx context.Context, filter RequestListFilter) ([]domain.CancellationRequest, error)
	QueryByOwner(ctx context.Context, query OwnerQuery) ([]domain.CancellationRequest, error)
}

// ReturnRequestRepository persists return and exchange requests awaiting review.
type ReturnRequestRepository interface {
	Create(ctx context.Context, req domain.ReturnRequest) error
	Get(ctx context.Context, requestID string) (domain.ReturnRequest, error)
	Delete(ctx context.Context, requestID string) (bool, error)
	List(ctx context.Context, filter RequestListFilter) ([]domain.ReturnRequest, error)
	FindOpenByOrder(ctx context.Context, orderID string) ([]domain.ReturnRequest, error)
}

// ReturnArchiveRepository persists decided return requests (the ReturnedOrders records).
type ReturnArchiveRepository interface {
	Create(ctx context.Context, archive domain.ReturnArchive) error
	Get(ctx context.Context, archiveID string) (domain.ReturnArchive, error)
	QueryByOwner(ctx context.Context, query OwnerQuery) ([]domain.ReturnArchive, error)
	List(ctx context.Context, filter ArchiveListFilter) ([]domain.ReturnArchive, error)
}

// NotificationRepository persists notifications and their outbound dispatch state.
type NotificationRepository interface {
	// Create inserts the notification; an existing id yields a conflict error.
	Create(ctx context.Context, notification domain.Notification) error
	Get(ctx context.Context, notificationID string) (domain.Notification, error)
	Save(ctx context.Context, notification domain.Notification) error
	List(ctx context.Context, filter NotificationFilter) ([]domain.Notification, error)
	ListUndispatched(ctx context.Context, limit int) ([]domain.Notification, error)
}

// HealthRepository reports the status of infrastructure dependencies.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// Filter DTOs shared across repositories ------------------------------------

// OwnerQuery matches records whose owner equals any supplied key (logical OR).
type OwnerQuery struct {
	Keys       domain.OwnerRef
	Partitions []domain.Partition
	Limit      int
}

// OrderListFilter narrows staff listings. Results are sorted by createdAt descending.
type OrderListFilter struct {
	Partitions   []domain.Partition
	Status       string
	CreatedAfter *time.Time
	CreatedUntil *time.Time
	Limit        int
}

// RequestListFilter narrows request listings.
type RequestListFilter struct {
	Status []domain.RequestStatus
	Limit  int
}

// ArchiveListFilter narrows decided return listings, newest decision first.
type ArchiveListFilter struct {
	StaffDecision string
	Limit         int
}

// NotificationFilter narrows notification listings for an audience. A notification matches
// when either RecipientID or RecipientEmail equals its recipient.
type NotificationFilter struct {
	Audience       domain.Audience
	RecipientID    string
	RecipientEmail string
	UnreadOnly     bool
	Limit          int
}
