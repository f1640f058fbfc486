package domain

import "time"

// RequestStatus tracks the staff review lifecycle of cancellation and return requests.
type RequestStatus string

const (
	RequestStatusPendingReview RequestStatus = "pending_review"
	RequestStatusApproved      RequestStatus = "approved"
	RequestStatusAccepted      RequestStatus = "accepted"
	RequestStatusRejected      RequestStatus = "rejected"
	RequestStatusProcessed     RequestStatus = "processed"
)

// CancellationRequest freezes an order at request time. The order itself is removed when
// the request is created; only approval synthesizes a Cancelled order from the snapshot.
type CancellationRequest struct {
	ID                 string
	OriginalOrderID    string
	OriginalPartition  Partition
	Owner              OwnerRef
	UserIDNumeric      *int64
	Snapshot           Order
	Reason             string
	AdditionalComments string
	Status             RequestStatus
	RequestedBy        string
	StaffNotes         string
	DecidedBy          string
	DecidedAt          *time.Time
	RestoredAt         *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ReturnType distinguishes refunds from exchanges.
type ReturnType string

const (
	ReturnTypeReturn   ReturnType = "return"
	ReturnTypeExchange ReturnType = "exchange"
)

// ReturnItem is a subset of an order line selected for return.
type ReturnItem struct {
	ProductID string
	Name      string
	Quantity  int
	UnitPrice int64
}

// ReturnRequest references an order without removing it until staff decide.
type ReturnRequest struct {
	ID                 string
	OrderID            string
	OrderPartition     Partition
	Owner              OwnerRef
	ReturnType         ReturnType
	SelectedItems      []ReturnItem
	Reason             string
	AdditionalComments string
	CustomerImage      *EvidenceImage
	OrderSnapshot      Order
	Status             RequestStatus
	RequestedBy        string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Staff decisions recorded on archived returns.
const (
	StaffDecisionAccepted = "accepted"
	StaffDecisionRejected = "rejected"
)

// ReturnArchive is the ReturnedOrders record written when staff decide a return request.
type ReturnArchive struct {
	ID                 string
	RequestID          string
	OrderID            string
	OriginalPartition  Partition
	Owner              OwnerRef
	ReturnType         ReturnType
	SelectedItems      []ReturnItem
	Reason             string
	AdditionalComments string
	CustomerImage      *EvidenceImage
	StaffImage         *EvidenceImage
	StaffDecision      string
	StaffNotes         string
	Order              Order
	OrderFound         bool
	SourceDeleted      bool
	RequestedAt        time.Time
	DecidedAt          time.Time
	DecidedBy          string
}
