package memory

import (
	"context"
	"maps"
	"sort"
	"strings"

	domain "github.com/storefront-orders/api/internal/domain"
	"github.com/storefront-orders/api/internal/repositories"
)

type notificationRepo struct{ s *Store }

func cloneNotification(n domain.Notification) domain.Notification {
	n.Payload = maps.Clone(n.Payload)
	return n
}

func (r notificationRepo) Create(ctx context.Context, notification domain.Notification) error {
	return r.s.do(ctx, func(st *state) error {
		if _, exists := st.notifications[notification.ID]; exists {
			return alreadyExists("notifications.create", notification.ID)
		}
		st.notifications[notification.ID] = cloneNotification(notification)
		return nil
	})
}

func (r notificationRepo) Get(ctx context.Context, notificationID string) (domain.Notification, error) {
	var out domain.Notification
	err := r.s.do(ctx, func(st *state) error {
		n, ok := st.notifications[strings.TrimSpace(notificationID)]
		if !ok {
			return notFound("notifications.get", notificationID)
		}
		out = cloneNotification(n)
		return nil
	})
	return out, err
}

func (r notificationRepo) Save(ctx context.Context, notification domain.Notification) error {
	return r.s.do(ctx, func(st *state) error {
		st.notifications[notification.ID] = cloneNotification(notification)
		return nil
	})
}

func (r notificationRepo) List(ctx context.Context, filter repositories.NotificationFilter) ([]domain.Notification, error) {
	var out []domain.Notification
	err := r.s.do(ctx, func(st *state) error {
		for _, n := range st.notifications {
			if filter.Audience != "" && n.Audience != filter.Audience {
				continue
			}
			if !recipientMatches(n, filter) {
				continue
			}
			if filter.UnreadOnly && n.Read {
				continue
			}
			out = append(out, cloneNotification(n))
		}
		return nil
	})
	sortNotifications(out)
	return limitSlice(out, filter.Limit), err
}

func (r notificationRepo) ListUndispatched(ctx context.Context, limit int) ([]domain.Notification, error) {
	var out []domain.Notification
	err := r.s.do(ctx, func(st *state) error {
		for _, n := range st.notifications {
			if !n.Dispatched && !n.DispatchFailed {
				out = append(out, cloneNotification(n))
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return limitSlice(out, limit), err
}

func sortNotifications(items []domain.Notification) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID > items[j].ID
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}

func recipientMatches(n domain.Notification, filter repositories.NotificationFilter) bool {
	if filter.RecipientID == "" && filter.RecipientEmail == "" {
		return true
	}
	if filter.RecipientID != "" && n.RecipientID == filter.RecipientID {
		return true
	}
	return filter.RecipientEmail != "" && n.RecipientEmail == filter.RecipientEmail
}
