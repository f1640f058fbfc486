package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/storefront-orders/api/internal/platform/observability"

// Metrics records order lifecycle counters. A nil *Metrics discards every measurement.
type Metrics struct {
	moves         metric.Int64Counter
	decisions     metric.Int64Counter
	stock         metric.Int64Counter
	notifications metric.Int64Counter
}

// NewMetrics registers the counters on provider, defaulting to the global meter provider.
func NewMetrics(provider metric.MeterProvider) (*Metrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(meterName)

	moves, err := meter.Int64Counter("orders.moves",
		metric.WithDescription("Order partition moves by outcome"))
	if err != nil {
		return nil, err
	}
	decisions, err := meter.Int64Counter("orders.request_decisions",
		metric.WithDescription("Staff decisions on cancellation and return requests"))
	if err != nil {
		return nil, err
	}
	stock, err := meter.Int64Counter("stock.operations",
		metric.WithDescription("Stock ledger operations by outcome"))
	if err != nil {
		return nil, err
	}
	notifications, err := meter.Int64Counter("notifications.dispatched",
		metric.WithDescription("Notification relay publish attempts by outcome"))
	if err != nil {
		return nil, err
	}
	return &Metrics{moves: moves, decisions: decisions, stock: stock, notifications: notifications}, nil
}

// RecordMove counts a partition move attempt.
func (m *Metrics) RecordMove(ctx context.Context, from, to, outcome string) {
	if m == nil {
		return
	}
	m.moves.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
		attribute.String("outcome", outcome),
	))
}

// RecordDecision counts a staff decision on a request.
func (m *Metrics) RecordDecision(ctx context.Context, kind, decision string) {
	if m == nil {
		return
	}
	m.decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("decision", decision),
	))
}

// RecordStock counts a stock ledger operation.
func (m *Metrics) RecordStock(ctx context.Context, operation, outcome string) {
	if m == nil {
		return
	}
	m.stock.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}

// RecordNotification counts a relay publish attempt.
func (m *Metrics) RecordNotification(ctx context.Context, driver, outcome string) {
	if m == nil {
		return
	}
	m.notifications.Add(ctx, 1, metric.WithAttributes(
		attribute.String("driver", driver),
		attribute.String("outcome", outcome),
	))
}
