package firestore

import (
	"context"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/storefront-orders/api/internal/domain"
	pfirestore "github.com/storefront-orders/api/internal/platform/firestore"
	"github.com/storefront-orders/api/internal/repositories"
)

const notificationsCollection = "notifications"

type notificationRepository struct {
	base *pfirestore.BaseRepository[notificationDocument]
}

func newNotificationRepository(provider *pfirestore.Provider) *notificationRepository {
	return &notificationRepository{
		base: pfirestore.NewBaseRepository[notificationDocument](provider, notificationsCollection, nil, nil),
	}
}

func (r *notificationRepository) Create(ctx context.Context, notification domain.Notification) error {
	return r.base.Create(ctx, notification.ID, newNotificationDocument(notification))
}

func (r *notificationRepository) Get(ctx context.Context, notificationID string) (domain.Notification, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(notificationID))
	if err != nil {
		return domain.Notification{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *notificationRepository) Save(ctx context.Context, notification domain.Notification) error {
	return r.base.Set(ctx, notification.ID, newNotificationDocument(notification))
}

func (r *notificationRepository) List(ctx context.Context, filter repositories.NotificationFilter) ([]domain.Notification, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.Audience != "" {
			q = q.Where("audience", "==", string(filter.Audience))
		}
		if recipient, ok := recipientFilter(filter); ok {
			q = q.WhereEntity(recipient)
		}
		if filter.UnreadOnly {
			q = q.Where("read", "==", false)
		}
		q = q.OrderBy("createdAt", firestore.Desc)
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	return notificationsFrom(docs), nil
}

func (r *notificationRepository) ListUndispatched(ctx context.Context, n int) ([]domain.Notification, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("dispatched", "==", false).
			Where("dispatchFailed", "==", false).
			OrderBy("createdAt", firestore.Asc)
		if n > 0 {
			q = q.Limit(n)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	return notificationsFrom(docs), nil
}

func notificationsFrom(docs []pfirestore.Document[notificationDocument]) []domain.Notification {
	out := make([]domain.Notification, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain(doc.ID))
	}
	return out
}

func recipientFilter(filter repositories.NotificationFilter) (firestore.EntityFilter, bool) {
	var filters []firestore.EntityFilter
	if filter.RecipientID != "" {
		filters = append(filters, firestore.PropertyFilter{Path: "recipientId", Operator: "==", Value: filter.RecipientID})
	}
	if filter.RecipientEmail != "" {
		filters = append(filters, firestore.PropertyFilter{Path: "recipientEmail", Operator: "==", Value: filter.RecipientEmail})
	}
	switch len(filters) {
	case 0:
		return nil, false
	case 1:
		return filters[0], true
	}
	return firestore.OrFilter{Filters: filters}, true
}
