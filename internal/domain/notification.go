package domain

import "time"

// NotificationType names the event that produced a notification.
type NotificationType string

const (
	NotificationCancellationRequest   NotificationType = "cancellation_request"
	NotificationCancellationApproved  NotificationType = "cancellation_approved"
	NotificationCancellationRejected  NotificationType = "cancellation_rejected"
	NotificationReturnRequest         NotificationType = "return_request"
	NotificationReturnProcessedAccept NotificationType = "return_processed_accepted"
	NotificationReturnProcessedReject NotificationType = "return_processed_rejected"
	NotificationReturnDecisionStaff   NotificationType = "return_decision_recorded"
	NotificationOrderStatusChanged    NotificationType = "order_status_changed"
)

// Audience is the consumer group of a notification.
type Audience string

const (
	AudienceStaff Audience = "staff"
	AudienceUser  Audience = "user"
)

// Notification is an append-only event for staff or a specific user. Only the read and
// dispatch markers change after creation. DispatchFailed parks a notification whose delivery
// attempts are exhausted.
type Notification struct {
	ID               string
	Type             NotificationType
	Audience         Audience
	RecipientID      string
	RecipientEmail   string
	SourceID         string
	Title            string
	Message          string
	Payload          map[string]any
	Read             bool
	ReadAt           *time.Time
	Dispatched       bool
	DispatchedAt     *time.Time
	DispatchAttempts int
	DispatchFailed   bool
	LastError        string
	CreatedAt        time.Time
}
