// Package requestctx carries the per-request logger, trace and addressed order resource.
package requestctx

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey int

const (
	loggerKey ctxKey = iota
	traceKey
	resourceKey
)

// TraceInfo is the Cloud Trace correlation for a request.
type TraceInfo struct {
	TraceID   string
	SpanID    string
	Sampled   bool
	ProjectID string
}

// Resource names the order API entity a request addresses. RequestID holds a cancellation
// request, return request or returned order archive id depending on Route.
type Resource struct {
	Route          string
	OrderID        string
	RequestID      string
	NotificationID string
}

// Fields renders the populated ids as log fields.
func (r Resource) Fields() []zap.Field {
	fields := make([]zap.Field, 0, 3)
	if r.OrderID != "" {
		fields = append(fields, zap.String("order_id", r.OrderID))
	}
	if r.RequestID != "" {
		fields = append(fields, zap.String("order_request_id", r.RequestID))
	}
	if r.NotificationID != "" {
		fields = append(fields, zap.String("notification_id", r.NotificationID))
	}
	return fields
}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// WithLogger stores logger on ctx. A nil logger clears any logger set further up.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(orBackground(ctx), loggerKey, logger)
}

// Logger returns the request logger, or a no-op logger when none is set.
func Logger(ctx context.Context) *zap.Logger {
	return LoggerOr(ctx, nil)
}

// LoggerOr returns the request logger, or fallback when none is set.
func LoggerOr(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok && logger != nil {
			return logger
		}
	}
	if fallback == nil {
		return zap.NewNop()
	}
	return fallback
}

func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	return context.WithValue(orBackground(ctx), traceKey, info)
}

func Trace(ctx context.Context) (TraceInfo, bool) {
	if ctx == nil {
		return TraceInfo{}, false
	}
	info, ok := ctx.Value(traceKey).(TraceInfo)
	return info, ok
}

// TraceID returns the trace id for error envelopes, or "".
func TraceID(ctx context.Context) string {
	info, _ := Trace(ctx)
	return info.TraceID
}

func WithResource(ctx context.Context, res Resource) context.Context {
	return context.WithValue(orBackground(ctx), resourceKey, res)
}

// ResourceFrom returns the resource resolved from the request path.
func ResourceFrom(ctx context.Context) (Resource, bool) {
	if ctx == nil {
		return Resource{}, false
	}
	res, ok := ctx.Value(resourceKey).(Resource)
	return res, ok
}
