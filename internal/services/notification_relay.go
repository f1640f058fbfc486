package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/storefront-orders/api/internal/repositories"
)

const (
	eventRelayPublished = "notification.relay.published"
	eventRelayFailed    = "notification.relay.failed"
	eventRelayPass      = "notification.relay.pass"

	defaultRelayBatch       = 50
	defaultRelayMaxAttempts = 5
	maxRelayErrorLength     = 500
)

// NotificationRelayDeps bundles the collaborators of the outbox relay.
type NotificationRelayDeps struct {
	Notifications repositories.NotificationRepository
	Publisher     NotificationPublisher
	MaxAttempts   int
	Metrics       MetricsRecorder
	Clock         func() time.Time
	Logger        Logger
}

// NotificationRelayWorker publishes undispatched notifications to the outbound channel.
type NotificationRelayWorker struct {
	repo        repositories.NotificationRepository
	publisher   NotificationPublisher
	maxAttempts int
	metrics     MetricsRecorder
	now         func() time.Time
	logger      Logger
}

// NewNotificationRelay wires the outbox relay.
func NewNotificationRelay(deps NotificationRelayDeps) (*NotificationRelayWorker, error) {
	if deps.Notifications == nil {
		return nil, errors.New("notification relay: notification repository is required")
	}
	if deps.Publisher == nil {
		return nil, errors.New("notification relay: publisher is required")
	}
	attempts := deps.MaxAttempts
	if attempts <= 0 {
		attempts = defaultRelayMaxAttempts
	}
	logger := deps.Logger
	if logger == nil {
		logger = nopLogger
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &NotificationRelayWorker{
		repo:        deps.Notifications,
		publisher:   deps.Publisher,
		maxAttempts: attempts,
		metrics:     metrics,
		now:         utcClock(deps.Clock),
		logger:      logger,
	}, nil
}

// RelayOnce publishes up to limit pending notifications, oldest first. Publisher failures are
// recorded on the notification and retried on the next pass until MaxAttempts is reached.
func (r *NotificationRelayWorker) RelayOnce(ctx context.Context, limit int) (RelayResult, error) {
	if limit <= 0 {
		limit = defaultRelayBatch
	}
	pending, err := r.repo.ListUndispatched(ctx, limit)
	if err != nil {
		return RelayResult{}, mapRepositoryError(err, "notifications")
	}

	var result RelayResult
	driver := r.publisher.Name()
	for _, n := range pending {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		messageID, pubErr := r.publisher.Publish(ctx, n)
		now := r.now()
		if pubErr == nil {
			n.Dispatched = true
			n.DispatchedAt = &now
			n.DispatchAttempts++
			n.LastError = ""
			if err := r.repo.Save(ctx, n); err != nil {
				return result, mapRepositoryError(err, "notification "+n.ID)
			}
			result.Published++
			r.metrics.RecordNotification(ctx, driver, "published")
			r.logger(ctx, eventRelayPublished, map[string]any{
				"notificationId": n.ID,
				"driver":         driver,
				"messageId":      messageID,
			})
			continue
		}

		n.DispatchAttempts++
		n.LastError = truncate(pubErr.Error(), maxRelayErrorLength)
		if n.DispatchAttempts >= r.maxAttempts {
			n.DispatchFailed = true
			result.Parked++
		}
		if err := r.repo.Save(ctx, n); err != nil {
			return result, mapRepositoryError(err, "notification "+n.ID)
		}
		result.Failed++
		r.metrics.RecordNotification(ctx, driver, "failed")
		r.logger(ctx, eventRelayFailed, map[string]any{
			"notificationId": n.ID,
			"driver":         driver,
			"attempts":       n.DispatchAttempts,
			"parked":         n.DispatchFailed,
			"error":          fmt.Errorf("%w: %v", ErrUpstream, pubErr).Error(),
		})
	}
	return result, nil
}

// Run relays every interval until ctx is cancelled.
func (r *NotificationRelayWorker) Run(ctx context.Context, interval time.Duration, batch int) {
	runEvery(ctx, interval, time.Minute, func(ctx context.Context) {
		result, err := r.RelayOnce(ctx, batch)
		if err != nil && !errors.Is(err, context.Canceled) {
			r.logger(ctx, eventRelayPass, map[string]any{"error": err.Error()})
			return
		}
		if result.Published > 0 || result.Failed > 0 {
			r.logger(ctx, eventRelayPass, map[string]any{
				"published": result.Published,
				"failed":    result.Failed,
				"parked":    result.Parked,
			})
		}
	})
}

var _ NotificationRelay = (*NotificationRelayWorker)(nil)

func truncate(value string, limit int) string {
	if runes := []rune(value); len(runes) > limit {
		return string(runes[:limit])
	}
	return value
}
