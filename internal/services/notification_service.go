package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/storefront-orders/api/internal/domain"
	"github.com/storefront-orders/api/internal/repositories"
)

const (
	eventNotificationAppend       = "notification.append"
	eventNotificationAppendFailed = "notification.append_failed"

	defaultNotificationLimit = 50
	maxNotificationLimit     = 200
)

// NotificationServiceDeps bundles the collaborators of the notification sink.
type NotificationServiceDeps struct {
	Notifications repositories.NotificationRepository
	Clock         func() time.Time
	Logger        Logger
}

type notificationService struct {
	repo   repositories.NotificationRepository
	now    func() time.Time
	logger Logger
}

// NewNotificationService wires the notification sink.
func NewNotificationService(deps NotificationServiceDeps) (NotificationService, error) {
	if deps.Notifications == nil {
		return nil, errors.New("notification service: notification repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = nopLogger
	}
	return &notificationService{
		repo:   deps.Notifications,
		now:    utcClock(deps.Clock),
		logger: logger,
	}, nil
}

// NotificationID derives the id of the notification a source record emits, so each
// transition produces at most one notification per type and audience.
func NotificationID(sourceID string, typ domain.NotificationType, audience domain.Audience) string {
	source := strings.NewReplacer("/", "-", " ", "-").Replace(strings.TrimSpace(sourceID))
	return fmt.Sprintf("ntf_%s_%s_%s", source, typ, audience)
}

// Append stores the notification. The boolean is false when the same transition was already
// recorded; the stored copy is returned in that case.
func (s *notificationService) Append(ctx context.Context, n domain.Notification) (domain.Notification, bool, error) {
	if strings.TrimSpace(n.SourceID) == "" {
		return domain.Notification{}, false, validationError("notification source is required")
	}
	if n.Type == "" {
		return domain.Notification{}, false, validationError("notification type is required")
	}
	switch n.Audience {
	case domain.AudienceStaff:
	case domain.AudienceUser:
		if strings.TrimSpace(n.RecipientID) == "" && strings.TrimSpace(n.RecipientEmail) == "" {
			return domain.Notification{}, false, validationError("user notifications need a recipient")
		}
	default:
		return domain.Notification{}, false, validationError("unknown audience %q", n.Audience)
	}

	n.ID = NotificationID(n.SourceID, n.Type, n.Audience)
	n.RecipientEmail = domain.NormalizeEmail(n.RecipientEmail)
	n.Read = false
	n.ReadAt = nil
	n.Dispatched = false
	n.DispatchedAt = nil
	n.DispatchAttempts = 0
	n.DispatchFailed = false
	n.LastError = ""
	n.CreatedAt = s.now()

	if err := s.repo.Create(ctx, n); err != nil {
		if isConflict(err) {
			existing, gerr := s.repo.Get(ctx, n.ID)
			if gerr != nil {
				return domain.Notification{}, false, mapRepositoryError(gerr, "notification "+n.ID)
			}
			return existing, false, nil
		}
		return domain.Notification{}, false, mapRepositoryError(err, "notification "+n.ID)
	}

	s.logger(ctx, eventNotificationAppend, map[string]any{
		"notificationId": n.ID,
		"type":           string(n.Type),
		"audience":       string(n.Audience),
		"sourceId":       n.SourceID,
	})
	return n, true, nil
}

func (s *notificationService) MarkRead(ctx context.Context, notificationID string, reader Actor) (domain.Notification, error) {
	notificationID = strings.TrimSpace(notificationID)
	if notificationID == "" {
		return domain.Notification{}, validationError("notification id is required")
	}
	n, err := s.repo.Get(ctx, notificationID)
	if err != nil {
		return domain.Notification{}, mapRepositoryError(err, "notification "+notificationID)
	}
	if !canRead(n, reader) {
		return domain.Notification{}, forbiddenError("notification %s belongs to another recipient", notificationID)
	}
	if n.Read {
		return n, nil
	}
	now := s.now()
	n.Read = true
	n.ReadAt = &now
	if err := s.repo.Save(ctx, n); err != nil {
		return domain.Notification{}, mapRepositoryError(err, "notification "+notificationID)
	}
	return n, nil
}

func (s *notificationService) List(ctx context.Context, reader Actor, unreadOnly bool, limit int) ([]domain.Notification, error) {
	filter := repositories.NotificationFilter{UnreadOnly: unreadOnly, Limit: clampLimit(limit, defaultNotificationLimit, maxNotificationLimit)}
	if reader.Staff {
		filter.Audience = domain.AudienceStaff
	} else {
		if strings.TrimSpace(reader.ID) == "" {
			return nil, validationError("reader id is required")
		}
		filter.Audience = domain.AudienceUser
		filter.RecipientID = reader.ID
		filter.RecipientEmail = domain.NormalizeEmail(reader.Email)
	}
	items, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, mapRepositoryError(err, "notifications")
	}
	return items, nil
}

func canRead(n domain.Notification, reader Actor) bool {
	if n.Audience == domain.AudienceStaff {
		return reader.Staff
	}
	if id := strings.TrimSpace(reader.ID); id != "" && id == n.RecipientID {
		return true
	}
	email := domain.NormalizeEmail(reader.Email)
	return email != "" && email == domain.NormalizeEmail(n.RecipientEmail)
}

// appendBestEffort records a notification without failing the caller's transition.
func appendBestEffort(ctx context.Context, svc NotificationService, logger Logger, n domain.Notification) {
	if svc == nil {
		return
	}
	if _, _, err := svc.Append(ctx, n); err != nil {
		logger(ctx, eventNotificationAppendFailed, map[string]any{
			"type":     string(n.Type),
			"audience": string(n.Audience),
			"sourceId": n.SourceID,
			"error":    fmt.Errorf("%w: %v", ErrUpstream, err).Error(),
		})
	}
}

func clampLimit(limit, fallback, ceiling int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > ceiling {
		return ceiling
	}
	return limit
}
