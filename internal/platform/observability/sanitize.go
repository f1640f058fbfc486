package observability

import (
	"net/http"
	"strings"
	"unicode"

	"github.com/go-chi/chi/v5"

	"github.com/storefront-orders/api/internal/platform/requestctx"
)

const (
	maxRouteLength  = 180
	maxIDLength     = 64
	maxMethodLength = 10
)

// clean drops control characters and truncates to limit runes.
func clean(value string, limit int) string {
	var b strings.Builder
	kept := 0
	for _, r := range value {
		if kept == limit {
			break
		}
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
		kept++
	}
	return b.String()
}

// ResourceFor resolves the order resource r addresses, cleaned for logs and span attributes.
// Once chi has matched, its route pattern replaces the templated path.
func ResourceFor(r *http.Request) requestctx.Resource {
	if r == nil || r.URL == nil {
		return requestctx.Resource{Route: "/"}
	}
	res := requestctx.ResolveResource(r.URL.Path)
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			res.Route = pattern
		}
	}
	res.Route = clean(res.Route, maxRouteLength)
	res.OrderID = clean(res.OrderID, maxIDLength)
	res.RequestID = clean(res.RequestID, maxIDLength)
	res.NotificationID = clean(res.NotificationID, maxIDLength)
	return res
}

func cleanMethod(method string) string {
	return clean(strings.ToUpper(method), maxMethodLength)
}
