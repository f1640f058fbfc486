package firestore

import (
	"time"

	domain "github.com/storefront-orders/api/internal/domain"
)

type ownerDocument struct {
	UserID   string `firestore:"userId"`
	Email    string `firestore:"email"`
	FullName string `firestore:"fullName"`
	NameKey  string `firestore:"nameKey"`
}

func newOwnerDocument(owner domain.OwnerRef) ownerDocument {
	return ownerDocument{
		UserID:   owner.UserID,
		Email:    domain.NormalizeEmail(owner.Email),
		FullName: owner.FullName,
		NameKey:  domain.NameKey(owner.FullName),
	}
}

func (d ownerDocument) toDomain() domain.OwnerRef {
	return domain.OwnerRef{UserID: d.UserID, Email: d.Email, FullName: d.FullName}
}

type lineItemDocument struct {
	ProductID string `firestore:"productId"`
	Name      string `firestore:"name"`
	Quantity  int    `firestore:"quantity"`
	UnitPrice int64  `firestore:"unitPrice"`
	LineTotal int64  `firestore:"lineTotal"`
	Category  string `firestore:"category,omitempty"`
}

type paymentDocument struct {
	Method     string     `firestore:"method"`
	Type       string     `firestore:"type,omitempty"`
	Reference  string     `firestore:"reference,omitempty"`
	Verified   bool       `firestore:"verified"`
	VerifiedAt *time.Time `firestore:"verifiedAt,omitempty"`
	VerifiedBy string     `firestore:"verifiedBy,omitempty"`
}

type addressDocument struct {
	FullName   string `firestore:"fullName,omitempty"`
	Phone      string `firestore:"phone,omitempty"`
	Line1      string `firestore:"line1,omitempty"`
	Line2      string `firestore:"line2,omitempty"`
	City       string `firestore:"city,omitempty"`
	Region     string `firestore:"region,omitempty"`
	PostalCode string `firestore:"postalCode,omitempty"`
	Country    string `firestore:"country,omitempty"`
	Notes      string `firestore:"notes,omitempty"`
}

type imageDocument struct {
	URL        string    `firestore:"url"`
	UploadedAt time.Time `firestore:"uploadedAt"`
}

func newImageDocument(img *domain.EvidenceImage) *imageDocument {
	if img == nil {
		return nil
	}
	return &imageDocument{URL: img.URL, UploadedAt: img.UploadedAt.UTC()}
}

func (d *imageDocument) toDomain() *domain.EvidenceImage {
	if d == nil {
		return nil
	}
	return &domain.EvidenceImage{URL: d.URL, UploadedAt: d.UploadedAt.UTC()}
}

type orderDocument struct {
	Partition      string             `firestore:"partition"`
	Owner          ownerDocument      `firestore:"owner"`
	Items          []lineItemDocument `firestore:"items"`
	Payment        paymentDocument    `firestore:"payment"`
	Address        addressDocument    `firestore:"address"`
	Subtotal       int64              `firestore:"subtotal"`
	DeliveryFee    int64              `firestore:"deliveryFee"`
	Total          int64              `firestore:"total"`
	Status         string             `firestore:"status"`
	DisplayStatus  string             `firestore:"displayStatus,omitempty"`
	Notes          string             `firestore:"notes,omitempty"`
	ReservationID  string             `firestore:"reservationId,omitempty"`
	CreatedAt      time.Time          `firestore:"createdAt"`
	UpdatedAt      time.Time          `firestore:"updatedAt"`
	LastModifiedBy string             `firestore:"lastModifiedBy,omitempty"`

	ApprovedAt         *time.Time     `firestore:"approvedAt,omitempty"`
	DeliveredAt        *time.Time     `firestore:"deliveredAt,omitempty"`
	DeniedAt           *time.Time     `firestore:"deniedAt,omitempty"`
	DenialReason       string         `firestore:"denialReason,omitempty"`
	ReturnedAt         *time.Time     `firestore:"returnedAt,omitempty"`
	ReturnReason       string         `firestore:"returnReason,omitempty"`
	ReturnImage        *imageDocument `firestore:"returnImage,omitempty"`
	CancelledAt        *time.Time     `firestore:"cancelledAt,omitempty"`
	CancellationReason string         `firestore:"cancellationReason,omitempty"`
}

func newOrderDocument(order domain.Order) orderDocument {
	items := make([]lineItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, lineItemDocument(item))
	}
	return orderDocument{
		Partition:          string(order.Partition),
		Owner:              newOwnerDocument(order.Owner),
		Items:              items,
		Payment:            paymentDocument(order.Payment),
		Address:            addressDocument(order.Address),
		Subtotal:           order.Totals.Subtotal,
		DeliveryFee:        order.Totals.DeliveryFee,
		Total:              order.Totals.Total,
		Status:             order.Status,
		DisplayStatus:      order.DisplayStatus,
		Notes:              order.Notes,
		ReservationID:      order.ReservationID,
		CreatedAt:          order.CreatedAt.UTC(),
		UpdatedAt:          order.UpdatedAt.UTC(),
		LastModifiedBy:     order.LastModifiedBy,
		ApprovedAt:         order.ApprovedAt,
		DeliveredAt:        order.DeliveredAt,
		DeniedAt:           order.DeniedAt,
		DenialReason:       order.DenialReason,
		ReturnedAt:         order.ReturnedAt,
		ReturnReason:       order.ReturnReason,
		ReturnImage:        newImageDocument(order.ReturnImage),
		CancelledAt:        order.CancelledAt,
		CancellationReason: order.CancellationReason,
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	items := make([]domain.OrderLineItem, 0, len(d.Items))
	for _, item := range d.Items {
		items = append(items, domain.OrderLineItem(item))
	}
	partition, ok := domain.ParsePartition(d.Partition)
	if !ok {
		partition = domain.Partition(d.Partition)
	}
	return domain.Order{
		ID:                 id,
		Partition:          partition,
		Owner:              d.Owner.toDomain(),
		Items:              items,
		Payment:            domain.Payment(d.Payment),
		Address:            domain.Address(d.Address),
		Totals:             domain.OrderTotals{Subtotal: d.Subtotal, DeliveryFee: d.DeliveryFee, Total: d.Total},
		Status:             d.Status,
		DisplayStatus:      d.DisplayStatus,
		Notes:              d.Notes,
		ReservationID:      d.ReservationID,
		CreatedAt:          d.CreatedAt.UTC(),
		UpdatedAt:          d.UpdatedAt.UTC(),
		LastModifiedBy:     d.LastModifiedBy,
		ApprovedAt:         d.ApprovedAt,
		DeliveredAt:        d.DeliveredAt,
		DeniedAt:           d.DeniedAt,
		DenialReason:       d.DenialReason,
		ReturnedAt:         d.ReturnedAt,
		ReturnReason:       d.ReturnReason,
		ReturnImage:        d.ReturnImage.toDomain(),
		CancelledAt:        d.CancelledAt,
		CancellationReason: d.CancellationReason,
	}
}

type moveDocument struct {
	OrderID        string    `firestore:"orderId"`
	Operation      string    `firestore:"operation"`
	From           string    `firestore:"from"`
	To             string    `firestore:"to"`
	PreviousStatus string    `firestore:"previousStatus,omitempty"`
	Status         string    `firestore:"status,omitempty"`
	Reason         string    `firestore:"reason,omitempty"`
	ActorID        string    `firestore:"actorId,omitempty"`
	OccurredAt     time.Time `firestore:"occurredAt"`
}

type stockLineDocument struct {
	ProductID string `firestore:"productId"`
	Quantity  int    `firestore:"quantity"`
}

type reservationDocument struct {
	Items       []stockLineDocument `firestore:"items"`
	Status      string              `firestore:"status"`
	OwnerID     string              `firestore:"ownerId,omitempty"`
	Reason      string              `firestore:"reason,omitempty"`
	ExpiresAt   time.Time           `firestore:"expiresAt"`
	CreatedAt   time.Time           `firestore:"createdAt"`
	UpdatedAt   time.Time           `firestore:"updatedAt"`
	ReleasedAt  *time.Time          `firestore:"releasedAt,omitempty"`
	CommittedAt *time.Time          `firestore:"committedAt,omitempty"`
}

func newReservationDocument(res domain.StockReservation) reservationDocument {
	items := make([]stockLineDocument, 0, len(res.Items))
	for _, line := range res.Items {
		items = append(items, stockLineDocument(line))
	}
	return reservationDocument{
		Items:       items,
		Status:      res.Status,
		OwnerID:     res.OwnerID,
		Reason:      res.Reason,
		ExpiresAt:   res.ExpiresAt.UTC(),
		CreatedAt:   res.CreatedAt.UTC(),
		UpdatedAt:   res.UpdatedAt.UTC(),
		ReleasedAt:  res.ReleasedAt,
		CommittedAt: res.CommittedAt,
	}
}

func (d reservationDocument) toDomain(id string) domain.StockReservation {
	items := make([]domain.StockLine, 0, len(d.Items))
	for _, line := range d.Items {
		items = append(items, domain.StockLine(line))
	}
	return domain.StockReservation{
		ID:          id,
		Items:       items,
		Status:      d.Status,
		OwnerID:     d.OwnerID,
		Reason:      d.Reason,
		ExpiresAt:   d.ExpiresAt.UTC(),
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
		ReleasedAt:  d.ReleasedAt,
		CommittedAt: d.CommittedAt,
	}
}

type cancellationDocument struct {
	OriginalOrderID    string        `firestore:"originalOrderId"`
	OriginalPartition  string        `firestore:"originalPartition"`
	Owner              ownerDocument `firestore:"owner"`
	UserIDNumeric      *int64        `firestore:"userIdNumeric,omitempty"`
	Snapshot           orderDocument `firestore:"snapshot"`
	Reason             string        `firestore:"reason"`
	AdditionalComments string        `firestore:"additionalComments,omitempty"`
	Status             string        `firestore:"status"`
	RequestedBy        string        `firestore:"requestedBy,omitempty"`
	StaffNotes         string        `firestore:"staffNotes,omitempty"`
	DecidedBy          string        `firestore:"decidedBy,omitempty"`
	DecidedAt          *time.Time    `firestore:"decidedAt,omitempty"`
	RestoredAt         *time.Time    `firestore:"restoredAt,omitempty"`
	CreatedAt          time.Time     `firestore:"createdAt"`
	UpdatedAt          time.Time     `firestore:"updatedAt"`
}

func newCancellationDocument(req domain.CancellationRequest) cancellationDocument {
	return cancellationDocument{
		OriginalOrderID:    req.OriginalOrderID,
		OriginalPartition:  string(req.OriginalPartition),
		Owner:              newOwnerDocument(req.Owner),
		UserIDNumeric:      req.UserIDNumeric,
		Snapshot:           newOrderDocument(req.Snapshot),
		Reason:             req.Reason,
		AdditionalComments: req.AdditionalComments,
		Status:             string(req.Status),
		RequestedBy:        req.RequestedBy,
		StaffNotes:         req.StaffNotes,
		DecidedBy:          req.DecidedBy,
		DecidedAt:          req.DecidedAt,
		RestoredAt:         req.RestoredAt,
		CreatedAt:          req.CreatedAt.UTC(),
		UpdatedAt:          req.UpdatedAt.UTC(),
	}
}

func (d cancellationDocument) toDomain(id string) domain.CancellationRequest {
	return domain.CancellationRequest{
		ID:                 id,
		OriginalOrderID:    d.OriginalOrderID,
		OriginalPartition:  domain.Partition(d.OriginalPartition),
		Owner:              d.Owner.toDomain(),
		UserIDNumeric:      d.UserIDNumeric,
		Snapshot:           d.Snapshot.toDomain(d.OriginalOrderID),
		Reason:             d.Reason,
		AdditionalComments: d.AdditionalComments,
		Status:             domain.RequestStatus(d.Status),
		RequestedBy:        d.RequestedBy,
		StaffNotes:         d.StaffNotes,
		DecidedBy:          d.DecidedBy,
		DecidedAt:          d.DecidedAt,
		RestoredAt:         d.RestoredAt,
		CreatedAt:          d.CreatedAt.UTC(),
		UpdatedAt:          d.UpdatedAt.UTC(),
	}
}

type returnItemDocument struct {
	ProductID string `firestore:"productId"`
	Name      string `firestore:"name"`
	Quantity  int    `firestore:"quantity"`
	UnitPrice int64  `firestore:"unitPrice"`
}

func newReturnItems(items []domain.ReturnItem) []returnItemDocument {
	out := make([]returnItemDocument, 0, len(items))
	for _, item := range items {
		out = append(out, returnItemDocument(item))
	}
	return out
}

func returnItemsToDomain(items []returnItemDocument) []domain.ReturnItem {
	out := make([]domain.ReturnItem, 0, len(items))
	for _, item := range items {
		out = append(out, domain.ReturnItem(item))
	}
	return out
}

type returnDocument struct {
	OrderID            string               `firestore:"orderId"`
	OrderPartition     string               `firestore:"orderPartition"`
	Owner              ownerDocument        `firestore:"owner"`
	ReturnType         string               `firestore:"returnType"`
	SelectedItems      []returnItemDocument `firestore:"selectedItems"`
	Reason             string               `firestore:"reason"`
	AdditionalComments string               `firestore:"additionalComments,omitempty"`
	CustomerImage      *imageDocument       `firestore:"customerImage,omitempty"`
	OrderSnapshot      orderDocument        `firestore:"orderSnapshot"`
	Status             string               `firestore:"status"`
	RequestedBy        string               `firestore:"requestedBy,omitempty"`
	CreatedAt          time.Time            `firestore:"createdAt"`
	UpdatedAt          time.Time            `firestore:"updatedAt"`
}

func newReturnDocument(req domain.ReturnRequest) returnDocument {
	return returnDocument{
		OrderID:            req.OrderID,
		OrderPartition:     string(req.OrderPartition),
		Owner:              newOwnerDocument(req.Owner),
		ReturnType:         string(req.ReturnType),
		SelectedItems:      newReturnItems(req.SelectedItems),
		Reason:             req.Reason,
		AdditionalComments: req.AdditionalComments,
		CustomerImage:      newImageDocument(req.CustomerImage),
		OrderSnapshot:      newOrderDocument(req.OrderSnapshot),
		Status:             string(req.Status),
		RequestedBy:        req.RequestedBy,
		CreatedAt:          req.CreatedAt.UTC(),
		UpdatedAt:          req.UpdatedAt.UTC(),
	}
}

func (d returnDocument) toDomain(id string) domain.ReturnRequest {
	return domain.ReturnRequest{
		ID:                 id,
		OrderID:            d.OrderID,
		OrderPartition:     domain.Partition(d.OrderPartition),
		Owner:              d.Owner.toDomain(),
		ReturnType:         domain.ReturnType(d.ReturnType),
		SelectedItems:      returnItemsToDomain(d.SelectedItems),
		Reason:             d.Reason,
		AdditionalComments: d.AdditionalComments,
		CustomerImage:      d.CustomerImage.toDomain(),
		OrderSnapshot:      d.OrderSnapshot.toDomain(d.OrderID),
		Status:             domain.RequestStatus(d.Status),
		RequestedBy:        d.RequestedBy,
		CreatedAt:          d.CreatedAt.UTC(),
		UpdatedAt:          d.UpdatedAt.UTC(),
	}
}

type archiveDocument struct {
	RequestID          string               `firestore:"requestId"`
	OrderID            string               `firestore:"orderId"`
	OriginalPartition  string               `firestore:"originalPartition"`
	Owner              ownerDocument        `firestore:"owner"`
	ReturnType         string               `firestore:"returnType"`
	SelectedItems      []returnItemDocument `firestore:"selectedItems"`
	Reason             string               `firestore:"reason"`
	AdditionalComments string               `firestore:"additionalComments,omitempty"`
	CustomerImage      *imageDocument       `firestore:"customerImage,omitempty"`
	StaffImage         *imageDocument       `firestore:"staffImage,omitempty"`
	StaffDecision      string               `firestore:"staffDecision"`
	StaffNotes         string               `firestore:"staffNotes,omitempty"`
	Order              orderDocument        `firestore:"order"`
	OrderFound         bool                 `firestore:"orderFound"`
	SourceDeleted      bool                 `firestore:"sourceDeleted"`
	RequestedAt        time.Time            `firestore:"requestedAt"`
	DecidedAt          time.Time            `firestore:"decidedAt"`
	DecidedBy          string               `firestore:"decidedBy"`
}

func newArchiveDocument(a domain.ReturnArchive) archiveDocument {
	return archiveDocument{
		RequestID:          a.RequestID,
		OrderID:            a.OrderID,
		OriginalPartition:  string(a.OriginalPartition),
		Owner:              newOwnerDocument(a.Owner),
		ReturnType:         string(a.ReturnType),
		SelectedItems:      newReturnItems(a.SelectedItems),
		Reason:             a.Reason,
		AdditionalComments: a.AdditionalComments,
		CustomerImage:      newImageDocument(a.CustomerImage),
		StaffImage:         newImageDocument(a.StaffImage),
		StaffDecision:      a.StaffDecision,
		StaffNotes:         a.StaffNotes,
		Order:              newOrderDocument(a.Order),
		OrderFound:         a.OrderFound,
		SourceDeleted:      a.SourceDeleted,
		RequestedAt:        a.RequestedAt.UTC(),
		DecidedAt:          a.DecidedAt.UTC(),
		DecidedBy:          a.DecidedBy,
	}
}

func (d archiveDocument) toDomain(id string) domain.ReturnArchive {
	return domain.ReturnArchive{
		ID:                 id,
		RequestID:          d.RequestID,
		OrderID:            d.OrderID,
		OriginalPartition:  domain.Partition(d.OriginalPartition),
		Owner:              d.Owner.toDomain(),
		ReturnType:         domain.ReturnType(d.ReturnType),
		SelectedItems:      returnItemsToDomain(d.SelectedItems),
		Reason:             d.Reason,
		AdditionalComments: d.AdditionalComments,
		CustomerImage:      d.CustomerImage.toDomain(),
		StaffImage:         d.StaffImage.toDomain(),
		StaffDecision:      d.StaffDecision,
		StaffNotes:         d.StaffNotes,
		Order:              d.Order.toDomain(d.OrderID),
		OrderFound:         d.OrderFound,
		SourceDeleted:      d.SourceDeleted,
		RequestedAt:        d.RequestedAt.UTC(),
		DecidedAt:          d.DecidedAt.UTC(),
		DecidedBy:          d.DecidedBy,
	}
}

type notificationDocument struct {
	Type             string         `firestore:"type"`
	Audience         string         `firestore:"audience"`
	RecipientID      string         `firestore:"recipientId,omitempty"`
	RecipientEmail   string         `firestore:"recipientEmail,omitempty"`
	SourceID         string         `firestore:"sourceId"`
	Title            string         `firestore:"title"`
	Message          string         `firestore:"message"`
	Payload          map[string]any `firestore:"payload,omitempty"`
	Read             bool           `firestore:"read"`
	ReadAt           *time.Time     `firestore:"readAt,omitempty"`
	Dispatched       bool           `firestore:"dispatched"`
	DispatchedAt     *time.Time     `firestore:"dispatchedAt,omitempty"`
	DispatchAttempts int            `firestore:"dispatchAttempts"`
	DispatchFailed   bool           `firestore:"dispatchFailed"`
	LastError        string         `firestore:"lastError,omitempty"`
	CreatedAt        time.Time      `firestore:"createdAt"`
}

func newNotificationDocument(n domain.Notification) notificationDocument {
	return notificationDocument{
		Type:             string(n.Type),
		Audience:         string(n.Audience),
		RecipientID:      n.RecipientID,
		RecipientEmail:   n.RecipientEmail,
		SourceID:         n.SourceID,
		Title:            n.Title,
		Message:          n.Message,
		Payload:          n.Payload,
		Read:             n.Read,
		ReadAt:           n.ReadAt,
		Dispatched:       n.Dispatched,
		DispatchedAt:     n.DispatchedAt,
		DispatchAttempts: n.DispatchAttempts,
		DispatchFailed:   n.DispatchFailed,
		LastError:        n.LastError,
		CreatedAt:        n.CreatedAt.UTC(),
	}
}

func (d notificationDocument) toDomain(id string) domain.Notification {
	return domain.Notification{
		ID:               id,
		Type:             domain.NotificationType(d.Type),
		Audience:         domain.Audience(d.Audience),
		RecipientID:      d.RecipientID,
		RecipientEmail:   d.RecipientEmail,
		SourceID:         d.SourceID,
		Title:            d.Title,
		Message:          d.Message,
		Payload:          d.Payload,
		Read:             d.Read,
		ReadAt:           d.ReadAt,
		Dispatched:       d.Dispatched,
		DispatchedAt:     d.DispatchedAt,
		DispatchAttempts: d.DispatchAttempts,
		DispatchFailed:   d.DispatchFailed,
		LastError:        d.LastError,
		CreatedAt:        d.CreatedAt.UTC(),
	}
}
