package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/storefront-orders/api/internal/platform/auth"
	"github.com/storefront-orders/api/internal/platform/httpx"
	"github.com/storefront-orders/api/internal/services"
)

// NotificationHandlers lets staff and customers read their notifications.
type NotificationHandlers struct {
	authn         *auth.Authenticator
	notifications services.NotificationService
}

// NewNotificationHandlers constructs NotificationHandlers.
func NewNotificationHandlers(authn *auth.Authenticator, notifications services.NotificationService) *NotificationHandlers {
	return &NotificationHandlers{authn: authn, notifications: notifications}
}

// Routes registers the /api/notifications endpoints.
func (h *NotificationHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.list)
	r.Post("/{id}/read", h.markRead)
}

type notificationListResponse struct {
	Success       bool                  `json:"success"`
	Notifications []notificationPayload `json:"notifications"`
}

func (h *NotificationHandlers) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.notifications == nil {
		writeUnavailable(ctx, w, "notification_service")
		return
	}
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	unreadOnly := false
	if raw := strings.TrimSpace(query.Get("unread")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unread must be a boolean", http.StatusBadRequest))
			return
		}
		unreadOnly = parsed
	}
	limit, err := parseLimit(query.Get("limit"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	items, err := h.notifications.List(ctx, actor, unreadOnly, limit)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	resp := notificationListResponse{Success: true, Notifications: make([]notificationPayload, 0, len(items))}
	for _, item := range items {
		resp.Notifications = append(resp.Notifications, buildNotificationPayload(item))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

type notificationResponse struct {
	Success      bool                `json:"success"`
	Notification notificationPayload `json:"notification"`
}

func (h *NotificationHandlers) markRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.notifications == nil {
		writeUnavailable(ctx, w, "notification_service")
		return
	}
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	n, err := h.notifications.MarkRead(ctx, chi.URLParam(r, "id"), actor)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, notificationResponse{Success: true, Notification: buildNotificationPayload(n)})
}
