package domain

import (
	"strings"
	"time"
)

// Partition identifies the lifecycle bucket an order currently belongs to.
type Partition string

const (
	PartitionPending   Partition = "pending"
	PartitionAccepted  Partition = "accepted"
	PartitionDelivered Partition = "delivered"
	PartitionDenied    Partition = "denied"
	PartitionReturned  Partition = "returned"
	PartitionCancelled Partition = "cancelled"
	PartitionWalkIn    Partition = "walk_in"
)

// Partitions lists every partition in lifecycle order.
var Partitions = []Partition{
	PartitionPending,
	PartitionAccepted,
	PartitionDelivered,
	PartitionDenied,
	PartitionReturned,
	PartitionCancelled,
	PartitionWalkIn,
}

// legacy collection names used by older clients
var partitionAliases = map[string]Partition{
	"pending":         PartitionPending,
	"pendingorders":   PartitionPending,
	"orders":          PartitionPending,
	"accepted":        PartitionAccepted,
	"acceptedorders":  PartitionAccepted,
	"approved":        PartitionAccepted,
	"delivered":       PartitionDelivered,
	"deliveredorders": PartitionDelivered,
	"denied":          PartitionDenied,
	"deniedorders":    PartitionDenied,
	"returned":        PartitionReturned,
	"returnedorders":  PartitionReturned,
	"cancelled":       PartitionCancelled,
	"canceled":        PartitionCancelled,
	"cancelledorders": PartitionCancelled,
	"walk_in":         PartitionWalkIn,
	"walkin":          PartitionWalkIn,
	"walkinorders":    PartitionWalkIn,
}

// ParsePartition resolves a partition from its canonical or legacy collection name.
func ParsePartition(raw string) (Partition, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, "-", "")
	key = strings.ReplaceAll(key, " ", "")
	if p, ok := partitionAliases[key]; ok {
		return p, true
	}
	if p, ok := partitionAliases[strings.ReplaceAll(key, "_", "")]; ok {
		return p, true
	}
	return "", false
}

// Terminal reports whether the partition has no outbound moves except the documented Delivered→Returned.
func (p Partition) Terminal() bool {
	switch p {
	case PartitionDenied, PartitionCancelled, PartitionWalkIn:
		return true
	}
	return false
}

// Order status labels stored alongside the partition.
const (
	OrderStatusPending   = "pending"
	OrderStatusActive    = "active"
	OrderStatusApproved  = "approved"
	OrderStatusDelivered = "delivered"
	OrderStatusDenied    = "denied"
	OrderStatusReturned  = "returned"
	OrderStatusCancelled = "cancelled"
	OrderStatusCompleted = "completed"
)

// OwnerRef carries the keys that identify an order's owner. UserID is the stable key;
// Email and FullName are retained for legacy lookups.
type OwnerRef struct {
	UserID   string
	Email    string
	FullName string
}

// Empty reports whether no owner key is present.
func (o OwnerRef) Empty() bool {
	return strings.TrimSpace(o.UserID) == "" && strings.TrimSpace(o.Email) == "" && strings.TrimSpace(o.FullName) == ""
}

// OrderLineItem is a single ordered product. Monetary amounts are minor currency units.
type OrderLineItem struct {
	ProductID string
	Name      string
	Quantity  int
	UnitPrice int64
	LineTotal int64
	Category  string
}

// Payment describes how the order is paid and whether staff verified it.
type Payment struct {
	Method     string
	Type       string
	Reference  string
	Verified   bool
	VerifiedAt *time.Time
	VerifiedBy string
}

// Address is the delivery address captured at checkout.
type Address struct {
	FullName   string
	Phone      string
	Line1      string
	Line2      string
	City       string
	Region     string
	PostalCode string
	Country    string
	Notes      string
}

// OrderTotals holds order level amounts in minor currency units.
type OrderTotals struct {
	Subtotal    int64
	DeliveryFee int64
	Total       int64
}

// EvidenceImage references an uploaded photo attached to a return or decision.
type EvidenceImage struct {
	URL        string
	UploadedAt time.Time
}

// Order is a customer order. Partition records which lifecycle bucket holds it.
type Order struct {
	ID             string
	Partition      Partition
	Owner          OwnerRef
	Items          []OrderLineItem
	Payment        Payment
	Address        Address
	Totals         OrderTotals
	Status         string
	DisplayStatus  string
	Notes          string
	ReservationID  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastModifiedBy string

	ApprovedAt         *time.Time
	DeliveredAt        *time.Time
	DeniedAt           *time.Time
	DenialReason       string
	ReturnedAt         *time.Time
	ReturnReason       string
	ReturnImage        *EvidenceImage
	CancelledAt        *time.Time
	CancellationReason string
}

// Clone returns a deep copy of the order.
func (o Order) Clone() Order {
	out := o
	if o.Items != nil {
		out.Items = append([]OrderLineItem(nil), o.Items...)
	}
	out.Payment.VerifiedAt = cloneTime(o.Payment.VerifiedAt)
	out.ApprovedAt = cloneTime(o.ApprovedAt)
	out.DeliveredAt = cloneTime(o.DeliveredAt)
	out.DeniedAt = cloneTime(o.DeniedAt)
	out.ReturnedAt = cloneTime(o.ReturnedAt)
	out.CancelledAt = cloneTime(o.CancelledAt)
	if o.ReturnImage != nil {
		img := *o.ReturnImage
		out.ReturnImage = &img
	}
	return out
}

// StockLines converts the order items into stock ledger lines.
func (o Order) StockLines() []StockLine {
	lines := make([]StockLine, 0, len(o.Items))
	for _, item := range o.Items {
		if item.Quantity <= 0 || strings.TrimSpace(item.ProductID) == "" {
			continue
		}
		lines = append(lines, StockLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return lines
}

// OrderMove is an audit record appended whenever an order changes partition.
type OrderMove struct {
	ID             string
	OrderID        string
	Operation      string
	From           Partition
	To             Partition
	PreviousStatus string
	Status         string
	Reason         string
	ActorID        string
	OccurredAt     time.Time
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
