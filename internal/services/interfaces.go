package services

import (
	"context"
	"strings"
	"time"

	domain "github.com/storefront-orders/api/internal/domain"
)

// Actor is the authenticated caller a service acts for.
type Actor struct {
	ID       string
	Email    string
	FullName string
	Staff    bool
	Admin    bool
}

// owns reports whether the actor is the owner of the record. Full names are not trusted for
// ownership.
func (a Actor) owns(owner domain.OwnerRef) bool {
	return owner.Matches(domain.OwnerRef{UserID: a.ID, Email: a.Email})
}

func (a Actor) label() string {
	if id := strings.TrimSpace(a.ID); id != "" {
		return id
	}
	return strings.TrimSpace(a.Email)
}

// Locker serialises work per key across API instances.
type Locker interface {
	Acquire(ctx context.Context, key string) (func(ctx context.Context) error, error)
}

// NotificationPublisher delivers a notification to the outbound channel and returns the
// channel's message id.
type NotificationPublisher interface {
	Name() string
	Publish(ctx context.Context, notification domain.Notification) (string, error)
}

// IdentityResolver translates a legacy email key into the stable user id.
type IdentityResolver interface {
	ResolveEmail(ctx context.Context, email string) (uid string, ok bool, err error)
}

// PaymentCheck is the provider's view of a payment reference.
type PaymentCheck struct {
	Reference string
	Status    string
	Succeeded bool
	Amount    int64
	Currency  string
}

// PaymentVerifier looks up a payment reference with the payment provider.
type PaymentVerifier interface {
	Supports(reference string) bool
	Verify(ctx context.Context, reference string) (PaymentCheck, error)
}

// EvidenceVerifier reports whether an image URL points into the evidence bucket.
type EvidenceVerifier interface {
	Owns(rawURL string) bool
}

// MetricsRecorder receives lifecycle counters. observability.Metrics implements it.
type MetricsRecorder interface {
	RecordMove(ctx context.Context, from, to, outcome string)
	RecordDecision(ctx context.Context, kind, decision string)
	RecordStock(ctx context.Context, operation, outcome string)
	RecordNotification(ctx context.Context, driver, outcome string)
}

type noopMetrics struct{}

func (noopMetrics) RecordMove(context.Context, string, string, string) {}
func (noopMetrics) RecordDecision(context.Context, string, string) {}
func (noopMetrics) RecordStock(context.Context, string, string) {}
func (noopMetrics) RecordNotification(context.Context, string, string) {}

// Logger is the structured event logger shared by services.
type Logger func(ctx context.Context, event string, fields map[string]any)

func nopLogger(context.Context, string, map[string]any) {}

func utcClock(clock func() time.Time) func() time.Time {
	if clock == nil {
		clock = time.Now
	}
	return func() time.Time { return clock().UTC() }
}

// Stock ledger --------------------------------------------------------------

// StockItemCheck is the per-item outcome of a stock validation.
type StockItemCheck struct {
	ProductID         string
	Name              string
	RequestedQuantity int
	AvailableStock    int
	Valid             bool
	Error             string
}

// StockValidation aggregates per-item checks.
type StockValidation struct {
	AllValid bool
	Items    []StockItemCheck
}

// ReserveCommand requests a time-bounded hold.
type ReserveCommand struct {
	ReservationID string
	Items         []domain.StockLine
	TTL           time.Duration
	OwnerID       string
}

// StockChange reports the stock level of one product after a mutation. Released is the part
// of Quantity taken out of reservation holds.
type StockChange struct {
	ProductID     string
	Name          string
	Quantity      int
	Released      int
	StockQuantity int
	Skipped       bool
	Error         string
}

// RestoreCommand returns stock for cancelled or denied orders. Without a reservation id the
// owner's active holds are released first; only the uncovered quantity is added back to stock.
// HoldsOnly restricts the restore to releasing OwnerID's holds, which is how customers restore.
type RestoreCommand struct {
	Items         []domain.StockLine
	Reason        string
	ReservationID string
	OwnerID       string
	HoldsOnly     bool
}

// StockLedger owns product stock levels and reservation holds.
type StockLedger interface {
	Validate(ctx context.Context, items []domain.StockLine) (StockValidation, error)
	Reserve(ctx context.Context, cmd ReserveCommand) (domain.StockReservation, error)
	Decrement(ctx context.Context, items []domain.StockLine, reservationID string) ([]StockChange, error)
	Restore(ctx context.Context, cmd RestoreCommand) ([]StockChange, error)
	SweepExpired(ctx context.Context, limit int) (int, error)
}

// Order move engine ---------------------------------------------------------

// MoveCommand describes a partition change.
type MoveCommand struct {
	OrderID      string
	Operation    string
	From         domain.Partition
	To           domain.Partition
	DenialReason string
	ReturnReason string
	ReturnImage  string
	Actor        Actor
}

// MoveResult carries the moved order. Ids are preserved across moves.
type MoveResult struct {
	NewOrderID string
	Move       domain.OrderMove
	Order      domain.Order
}

// OrderMoveEngine moves orders between lifecycle partitions.
type OrderMoveEngine interface {
	Move(ctx context.Context, cmd MoveCommand) (MoveResult, error)
}

// Request workflow ----------------------------------------------------------

// Decision is a staff verdict on a request.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// ParseDecision accepts approve or reject in any case.
func ParseDecision(raw string) (Decision, bool) {
	switch Decision(strings.ToLower(strings.TrimSpace(raw))) {
	case DecisionApprove:
		return DecisionApprove, true
	case DecisionReject:
		return DecisionReject, true
	}
	return "", false
}

// CancellationCommand is a customer's cancellation request.
type CancellationCommand struct {
	OrderID            string
	Reason             string
	AdditionalComments string
	Actor              Actor
}

// DecisionCommand is a staff decision on a request.
type DecisionCommand struct {
	RequestID   string
	Decision    Decision
	StaffNotes  string
	ReturnImage string
	Actor       Actor
}

// ReturnCommand is a customer's return or exchange request.
type ReturnCommand struct {
	OrderID            string
	ReturnType         domain.ReturnType
	SelectedItems      []domain.ReturnItem
	Reason             string
	AdditionalComments string
	ReturnImage        string
	Actor              Actor
}

// RequestWorkflow runs the cancellation and return request state machines.
type RequestWorkflow interface {
	RequestCancellation(ctx context.Context, cmd CancellationCommand) (domain.CancellationRequest, error)
	DecideCancellation(ctx context.Context, cmd DecisionCommand) (domain.CancellationRequest, error)
	RestoreCancelledRequest(ctx context.Context, requestID string, actor Actor) (domain.Order, error)
	RequestReturn(ctx context.Context, cmd ReturnCommand) (domain.ReturnRequest, error)
	DecideReturn(ctx context.Context, cmd DecisionCommand) (domain.ReturnArchive, error)
	ListCancellationRequests(ctx context.Context, status []domain.RequestStatus, limit int) ([]domain.CancellationRequest, error)
	ListReturnRequests(ctx context.Context, status []domain.RequestStatus, limit int) ([]domain.ReturnRequest, error)
	ListReturnedOrders(ctx context.Context, staffDecision string, limit int) ([]domain.ReturnArchive, error)
	GetReturnedOrder(ctx context.Context, archiveID string) (domain.ReturnArchive, error)
}

// Notifications -------------------------------------------------------------

// NotificationService appends and reads notifications.
type NotificationService interface {
	Append(ctx context.Context, notification domain.Notification) (domain.Notification, bool, error)
	MarkRead(ctx context.Context, notificationID string, reader Actor) (domain.Notification, error)
	List(ctx context.Context, reader Actor, unreadOnly bool, limit int) ([]domain.Notification, error)
}

// RelayResult summarises one outbox pass.
type RelayResult struct {
	Published int
	Failed    int
	Parked    int
}

// NotificationRelay publishes undispatched notifications.
type NotificationRelay interface {
	RelayOnce(ctx context.Context, limit int) (RelayResult, error)
}

// Orders --------------------------------------------------------------------

// OwnerLookup identifies an owner by any of its keys.
type OwnerLookup struct {
	UserID   string
	Email    string
	FullName string
}

// OwnerOrderView is one entry of the merged owner view. Archived marks a decided return read
// from the returned orders archive.
type OwnerOrderView struct {
	OrderID       string
	Partition     domain.Partition
	Status        string
	DisplayStatus string
	Order         domain.Order
	RequestID     string
	Archived      bool
	CreatedAt     time.Time
}

// OrderQuery reads orders on behalf of owners and staff.
type OrderQuery interface {
	OwnerOrders(ctx context.Context, lookup OwnerLookup, actor Actor) ([]OwnerOrderView, error)
}

// OrderListQuery filters the staff order listing.
type OrderListQuery struct {
	Partition domain.Partition
	Status    string
	From      *time.Time
	Until     *time.Time
	Limit     int
}

// PaymentVerificationCommand flags a pending order's payment as verified.
type PaymentVerificationCommand struct {
	OrderID   string
	Verified  bool
	Reference string
	Actor     Actor
}

// OrderAdminService covers staff operations outside the move engine.
type OrderAdminService interface {
	ListOrders(ctx context.Context, query OrderListQuery) ([]domain.Order, error)
	ListMoves(ctx context.Context, orderID string) ([]domain.OrderMove, error)
	VerifyPayment(ctx context.Context, cmd PaymentVerificationCommand) (domain.Order, error)
	UpdateNotes(ctx context.Context, orderID, notes string, actor Actor) (domain.Order, error)
	Purge(ctx context.Context, orderID string, actor Actor) error
}

// CheckoutItem is one cart line at checkout.
type CheckoutItem struct {
	ProductID string
	Quantity  int
}

// CheckoutCommand places an order. Walk-in orders are recorded by staff and complete
// immediately.
type CheckoutCommand struct {
	Items         []CheckoutItem
	ReservationID string
	Payment       domain.Payment
	Address       domain.Address
	DeliveryFee   int64
	Notes         string
	WalkIn        bool
	Customer      domain.OwnerRef
	Actor         Actor
}

// OrderIntake creates orders at checkout.
type OrderIntake interface {
	PlaceOrder(ctx context.Context, cmd CheckoutCommand) (domain.Order, error)
}

// System --------------------------------------------------------------------

// SystemService reports service health.
type SystemService interface {
	HealthReport(ctx context.Context) (domain.SystemHealthReport, error)
}
