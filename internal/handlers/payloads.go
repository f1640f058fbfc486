package handlers

import (
	domain "github.com/storefront-orders/api/internal/domain"
)

type ownerPayload struct {
	UserID   string `json:"userId,omitempty"`
	Email    string `json:"email,omitempty"`
	FullName string `json:"fullName,omitempty"`
}

type orderItemPayload struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
	LineTotal int64  `json:"lineTotal"`
	Category  string `json:"category,omitempty"`
}

type paymentPayload struct {
	Method     string `json:"method"`
	Type       string `json:"type,omitempty"`
	Reference  string `json:"reference,omitempty"`
	Verified   bool   `json:"verified"`
	VerifiedAt string `json:"verifiedAt,omitempty"`
	VerifiedBy string `json:"verifiedBy,omitempty"`
}

type addressPayload struct {
	FullName   string `json:"fullName,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

type totalsPayload struct {
	Subtotal    int64 `json:"subtotal"`
	DeliveryFee int64 `json:"deliveryFee"`
	Total       int64 `json:"total"`
}

type imagePayload struct {
	URL        string `json:"url"`
	UploadedAt string `json:"uploadedAt,omitempty"`
}

type orderPayload struct {
	ID                 string             `json:"id"`
	Partition          string             `json:"partition"`
	Owner              ownerPayload       `json:"owner"`
	Items              []orderItemPayload `json:"items"`
	Payment            paymentPayload     `json:"payment"`
	Address            addressPayload     `json:"address"`
	Totals             totalsPayload      `json:"totals"`
	Status             string             `json:"status"`
	DisplayStatus      string             `json:"displayStatus,omitempty"`
	Notes              string             `json:"notes,omitempty"`
	ReservationID      string             `json:"reservationId,omitempty"`
	CreatedAt          string             `json:"createdAt"`
	UpdatedAt          string             `json:"updatedAt,omitempty"`
	LastModifiedBy     string             `json:"lastModifiedBy,omitempty"`
	ApprovedAt         string             `json:"approvedAt,omitempty"`
	DeliveredAt        string             `json:"deliveredAt,omitempty"`
	DeniedAt           string             `json:"deniedAt,omitempty"`
	DenialReason       string             `json:"denialReason,omitempty"`
	ReturnedAt         string             `json:"returnedAt,omitempty"`
	ReturnReason       string             `json:"returnReason,omitempty"`
	ReturnImage        *imagePayload      `json:"returnImage,omitempty"`
	CancelledAt        string             `json:"cancelledAt,omitempty"`
	CancellationReason string             `json:"cancellationReason,omitempty"`
}

func buildOwnerPayload(owner domain.OwnerRef) ownerPayload {
	return ownerPayload{UserID: owner.UserID, Email: owner.Email, FullName: owner.FullName}
}

func buildImagePayload(img *domain.EvidenceImage) *imagePayload {
	if img == nil || img.URL == "" {
		return nil
	}
	return &imagePayload{URL: img.URL, UploadedAt: formatTime(img.UploadedAt)}
}

func buildOrderPayload(order domain.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemPayload{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			LineTotal: item.LineTotal,
			Category:  item.Category,
		})
	}
	return orderPayload{
		ID:        order.ID,
		Partition: string(order.Partition),
		Owner:     buildOwnerPayload(order.Owner),
		Items:     items,
		Payment: paymentPayload{
			Method:     order.Payment.Method,
			Type:       order.Payment.Type,
			Reference:  order.Payment.Reference,
			Verified:   order.Payment.Verified,
			VerifiedAt: formatTimePtr(order.Payment.VerifiedAt),
			VerifiedBy: order.Payment.VerifiedBy,
		},
		Address: addressPayload(order.Address),
		Totals: totalsPayload{
			Subtotal:    order.Totals.Subtotal,
			DeliveryFee: order.Totals.DeliveryFee,
			Total:       order.Totals.Total,
		},
		Status:             order.Status,
		DisplayStatus:      order.DisplayStatus,
		Notes:              order.Notes,
		ReservationID:      order.ReservationID,
		CreatedAt:          formatTime(order.CreatedAt),
		UpdatedAt:          formatTime(order.UpdatedAt),
		LastModifiedBy:     order.LastModifiedBy,
		ApprovedAt:         formatTimePtr(order.ApprovedAt),
		DeliveredAt:        formatTimePtr(order.DeliveredAt),
		DeniedAt:           formatTimePtr(order.DeniedAt),
		DenialReason:       order.DenialReason,
		ReturnedAt:         formatTimePtr(order.ReturnedAt),
		ReturnReason:       order.ReturnReason,
		ReturnImage:        buildImagePayload(order.ReturnImage),
		CancelledAt:        formatTimePtr(order.CancelledAt),
		CancellationReason: order.CancellationReason,
	}
}

type movePayload struct {
	ID             string `json:"id"`
	OrderID        string `json:"orderId"`
	Operation      string `json:"operation"`
	From           string `json:"fromCollection"`
	To             string `json:"toCollection,omitempty"`
	PreviousStatus string `json:"previousStatus,omitempty"`
	Status         string `json:"status,omitempty"`
	Reason         string `json:"reason,omitempty"`
	ActorID        string `json:"actorId,omitempty"`
	OccurredAt     string `json:"occurredAt"`
}

func buildMovePayload(move domain.OrderMove) movePayload {
	return movePayload{
		ID:             move.ID,
		OrderID:        move.OrderID,
		Operation:      move.Operation,
		From:           string(move.From),
		To:             string(move.To),
		PreviousStatus: move.PreviousStatus,
		Status:         move.Status,
		Reason:         move.Reason,
		ActorID:        move.ActorID,
		OccurredAt:     formatTime(move.OccurredAt),
	}
}

type cancellationPayload struct {
	ID                 string       `json:"id"`
	OriginalOrderID    string       `json:"originalOrderId"`
	OriginalPartition  string       `json:"originalPartition"`
	Owner              ownerPayload `json:"owner"`
	UserIDNumeric      *int64       `json:"userIdNumeric,omitempty"`
	Order              orderPayload `json:"order"`
	Reason             string       `json:"reason"`
	AdditionalComments string       `json:"additionalComments,omitempty"`
	Status             string       `json:"status"`
	RequestedBy        string       `json:"requestedBy,omitempty"`
	StaffNotes         string       `json:"staffNotes,omitempty"`
	DecidedBy          string       `json:"decidedBy,omitempty"`
	DecidedAt          string       `json:"decidedAt,omitempty"`
	RestoredAt         string       `json:"restoredAt,omitempty"`
	CreatedAt          string       `json:"createdAt"`
}

func buildCancellationPayload(req domain.CancellationRequest) cancellationPayload {
	return cancellationPayload{
		ID:                 req.ID,
		OriginalOrderID:    req.OriginalOrderID,
		OriginalPartition:  string(req.OriginalPartition),
		Owner:              buildOwnerPayload(req.Owner),
		UserIDNumeric:      req.UserIDNumeric,
		Order:              buildOrderPayload(req.Snapshot),
		Reason:             req.Reason,
		AdditionalComments: req.AdditionalComments,
		Status:             string(req.Status),
		RequestedBy:        req.RequestedBy,
		StaffNotes:         req.StaffNotes,
		DecidedBy:          req.DecidedBy,
		DecidedAt:          formatTimePtr(req.DecidedAt),
		RestoredAt:         formatTimePtr(req.RestoredAt),
		CreatedAt:          formatTime(req.CreatedAt),
	}
}

type returnItemPayload struct {
	ProductID string `json:"productId"`
	Name      string `json:"name,omitempty"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unitPrice,omitempty"`
}

func buildReturnItems(items []domain.ReturnItem) []returnItemPayload {
	out := make([]returnItemPayload, 0, len(items))
	for _, item := range items {
		out = append(out, returnItemPayload(item))
	}
	return out
}

type returnRequestPayload struct {
	ID                 string              `json:"id"`
	OrderID            string              `json:"orderId"`
	OrderPartition     string              `json:"orderPartition"`
	Owner              ownerPayload        `json:"owner"`
	ReturnType         string              `json:"returnType"`
	SelectedItems      []returnItemPayload `json:"selectedItems"`
	Reason             string              `json:"reason"`
	AdditionalComments string              `json:"additionalComments,omitempty"`
	ReturnImage        *imagePayload       `json:"returnImage,omitempty"`
	Status             string              `json:"status"`
	RequestedBy        string              `json:"requestedBy,omitempty"`
	CreatedAt          string              `json:"createdAt"`
}

func buildReturnRequestPayload(req domain.ReturnRequest) returnRequestPayload {
	return returnRequestPayload{
		ID:                 req.ID,
		OrderID:            req.OrderID,
		OrderPartition:     string(req.OrderPartition),
		Owner:              buildOwnerPayload(req.Owner),
		ReturnType:         string(req.ReturnType),
		SelectedItems:      buildReturnItems(req.SelectedItems),
		Reason:             req.Reason,
		AdditionalComments: req.AdditionalComments,
		ReturnImage:        buildImagePayload(req.CustomerImage),
		Status:             string(req.Status),
		RequestedBy:        req.RequestedBy,
		CreatedAt:          formatTime(req.CreatedAt),
	}
}

type returnArchivePayload struct {
	ID                 string              `json:"id"`
	RequestID          string              `json:"requestId"`
	OrderID            string              `json:"orderId"`
	OriginalPartition  string              `json:"originalPartition"`
	Owner              ownerPayload        `json:"owner"`
	ReturnType         string              `json:"returnType"`
	SelectedItems      []returnItemPayload `json:"selectedItems"`
	Reason             string              `json:"reason"`
	AdditionalComments string              `json:"additionalComments,omitempty"`
	CustomerImage      *imagePayload       `json:"customerImage,omitempty"`
	StaffImage         *imagePayload       `json:"staffImage,omitempty"`
	StaffDecision      string              `json:"staffDecision"`
	StaffNotes         string              `json:"staffNotes,omitempty"`
	Order              orderPayload        `json:"order"`
	OrderFound         bool                `json:"orderFound"`
	SourceDeleted      bool                `json:"sourceDeleted"`
	RequestedAt        string              `json:"requestedAt"`
	DecidedAt          string              `json:"decidedAt"`
	DecidedBy          string              `json:"decidedBy"`
}

func buildReturnArchivePayload(archive domain.ReturnArchive) returnArchivePayload {
	return returnArchivePayload{
		ID:                 archive.ID,
		RequestID:          archive.RequestID,
		OrderID:            archive.OrderID,
		OriginalPartition:  string(archive.OriginalPartition),
		Owner:              buildOwnerPayload(archive.Owner),
		ReturnType:         string(archive.ReturnType),
		SelectedItems:      buildReturnItems(archive.SelectedItems),
		Reason:             archive.Reason,
		AdditionalComments: archive.AdditionalComments,
		CustomerImage:      buildImagePayload(archive.CustomerImage),
		StaffImage:         buildImagePayload(archive.StaffImage),
		StaffDecision:      archive.StaffDecision,
		StaffNotes:         archive.StaffNotes,
		Order:              buildOrderPayload(archive.Order),
		OrderFound:         archive.OrderFound,
		SourceDeleted:      archive.SourceDeleted,
		RequestedAt:        formatTime(archive.RequestedAt),
		DecidedAt:          formatTime(archive.DecidedAt),
		DecidedBy:          archive.DecidedBy,
	}
}

type notificationPayload struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Audience  string         `json:"audience"`
	SourceID  string         `json:"sourceId,omitempty"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Payload   map[string]any `json:"payload,omitempty"`
	Read      bool           `json:"read"`
	ReadAt    string         `json:"readAt,omitempty"`
	CreatedAt string         `json:"createdAt"`
}

func buildNotificationPayload(n domain.Notification) notificationPayload {
	return notificationPayload{
		ID:        n.ID,
		Type:      string(n.Type),
		Audience:  string(n.Audience),
		SourceID:  n.SourceID,
		Title:     n.Title,
		Message:   n.Message,
		Payload:   n.Payload,
		Read:      n.Read,
		ReadAt:    formatTimePtr(n.ReadAt),
		CreatedAt: formatTime(n.CreatedAt),
	}
}
