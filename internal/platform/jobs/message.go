package jobs

import (
	"strings"
	"time"

	"github.com/storefront-orders/api/internal/domain"
)

// NotificationMessage is the wire form of a notification handed to downstream consumers.
type NotificationMessage struct {
	ID             string         `json:"id"`
	Type           string         `json:"type"`
	Audience       string         `json:"audience"`
	RecipientID    string         `json:"recipientId,omitempty"`
	RecipientEmail string         `json:"recipientEmail,omitempty"`
	SourceID       string         `json:"sourceId,omitempty"`
	Title          string         `json:"title"`
	Message        string         `json:"message"`
	Payload        map[string]any `json:"payload,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
}

func newNotificationMessage(n domain.Notification) NotificationMessage {
	return NotificationMessage{
		ID:             n.ID,
		Type:           string(n.Type),
		Audience:       string(n.Audience),
		RecipientID:    n.RecipientID,
		RecipientEmail: n.RecipientEmail,
		SourceID:       n.SourceID,
		Title:          n.Title,
		Message:        n.Message,
		Payload:        n.Payload,
		CreatedAt:      n.CreatedAt.UTC(),
	}
}

func notificationAttributes(n domain.Notification) map[string]string {
	attrs := make(map[string]string)
	setAttr(attrs, "notificationId", n.ID)
	setAttr(attrs, "type", string(n.Type))
	setAttr(attrs, "audience", string(n.Audience))
	setAttr(attrs, "sourceId", n.SourceID)
	return attrs
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
