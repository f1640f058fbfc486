package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/storefront-orders/api/internal/platform/httpx"
	"github.com/storefront-orders/api/internal/repositories"
	"github.com/storefront-orders/api/internal/services"
)

// writeServiceError maps the service error taxonomy onto HTTP. Conflicts are reported as 400
// with the explanatory message, matching what storefront clients already handle.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var shortage *services.StockShortageError
	if errors.As(err, &shortage) {
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", shortage.Error(), http.StatusBadRequest).WithDetails(map[string]any{
			"details": map[string]any{
				"productId": shortage.ProductID,
				"available": shortage.Available,
				"requested": shortage.Requested,
			},
		}))
		return
	}

	switch {
	case errors.Is(err, services.ErrValidation):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", trimSentinel(err, services.ErrValidation), http.StatusBadRequest))
		return
	case errors.Is(err, services.ErrNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", trimSentinel(err, services.ErrNotFound), http.StatusNotFound))
		return
	case errors.Is(err, services.ErrConflict):
		httpx.WriteError(ctx, w, httpx.NewError("conflict", trimSentinel(err, services.ErrConflict), http.StatusBadRequest))
		return
	case errors.Is(err, services.ErrForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", trimSentinel(err, services.ErrForbidden), http.StatusForbidden))
		return
	case errors.Is(err, services.ErrIntegrity):
		httpx.WriteError(ctx, w, httpx.NewError("integrity_error", "order state could not be reconciled; it has been logged for manual review", http.StatusInternalServerError))
		return
	case errors.Is(err, services.ErrUpstream):
		httpx.WriteError(ctx, w, httpx.NewError("upstream_error", trimSentinel(err, services.ErrUpstream), http.StatusBadGateway))
		return
	case errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("timeout", "request timed out", http.StatusGatewayTimeout))
		return
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
		httpx.WriteError(ctx, w, httpx.NewError("storage_unavailable", "storage temporarily unavailable", http.StatusServiceUnavailable))
		return
	}

	httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to process request", http.StatusInternalServerError))
}

// trimSentinel drops the "<sentinel>: " prefix so callers see only the specific message.
func trimSentinel(err, sentinel error) string {
	msg := err.Error()
	if trimmed, ok := strings.CutPrefix(msg, sentinel.Error()+": "); ok && trimmed != "" {
		return trimmed
	}
	return msg
}

func writeUnavailable(ctx context.Context, w http.ResponseWriter, name string) {
	httpx.WriteError(ctx, w, httpx.NewError(name+"_unavailable", strings.ReplaceAll(name, "_", " ")+" unavailable", http.StatusServiceUnavailable))
}
