package jobs

import (
	"context"

	"github.com/storefront-orders/api/internal/domain"
)

// LogNotificationPublisher only records notifications; used when no broker is configured.
type LogNotificationPublisher struct {
	logger func(ctx context.Context, event string, fields map[string]any)
}

// NewLogNotificationPublisher constructs a publisher that writes each notification to logger.
func NewLogNotificationPublisher(logger func(ctx context.Context, event string, fields map[string]any)) *LogNotificationPublisher {
	return &LogNotificationPublisher{logger: logger}
}

// Name identifies the publisher in logs and metrics.
func (p *LogNotificationPublisher) Name() string { return "log" }

// Publish logs the notification and reports it as delivered.
func (p *LogNotificationPublisher) Publish(ctx context.Context, notification domain.Notification) (string, error) {
	if p != nil && p.logger != nil {
		p.logger(ctx, "notification_published", map[string]any{
			"notificationId": notification.ID,
			"type":           string(notification.Type),
			"audience":       string(notification.Audience),
			"recipientId":    notification.RecipientID,
			"sourceId":       notification.SourceID,
		})
	}
	return notification.ID, nil
}
