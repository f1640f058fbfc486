package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	domain "github.com/storefront-orders/api/internal/domain"
	"github.com/storefront-orders/api/internal/repositories/memory"
)

var testNow = time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func sequenceIDs(prefix string) func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s%03d", prefix, n)
	}
}

type loggedEvent struct {
	event  string
	fields map[string]any
}

type captureLogger struct {
	mu     sync.Mutex
	events []loggedEvent
}

func (c *captureLogger) log(_ context.Context, event string, fields map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, loggedEvent{event: event, fields: fields})
}

func (c *captureLogger) count(event string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.events {
		if e.event == event {
			n++
		}
	}
	return n
}

type stubLocker struct {
	acquireFn func(ctx context.Context, key string) (func(context.Context) error, error)
	acquired  []string
	released  int
}

func (s *stubLocker) Acquire(ctx context.Context, key string) (func(context.Context) error, error) {
	s.acquired = append(s.acquired, key)
	if s.acquireFn != nil {
		return s.acquireFn(ctx, key)
	}
	return func(context.Context) error {
		s.released++
		return nil
	}, nil
}

type recordingMetrics struct {
	moves     []string
	decisions []string
	stock     []string
	notify    []string
}

func (m *recordingMetrics) RecordMove(_ context.Context, from, to, outcome string) {
	m.moves = append(m.moves, from+">"+to+":"+outcome)
}

func (m *recordingMetrics) RecordDecision(_ context.Context, kind, decision string) {
	m.decisions = append(m.decisions, kind+":"+decision)
}

func (m *recordingMetrics) RecordStock(_ context.Context, op, outcome string) {
	m.stock = append(m.stock, op+":"+outcome)
}

func (m *recordingMetrics) RecordNotification(_ context.Context, driver, outcome string) {
	m.notify = append(m.notify, driver+":"+outcome)
}

func seedProducts(t *testing.T, reg *memory.Registry, products ...domain.Product) {
	t.Helper()
	for _, p := range products {
		if err := reg.Products().Save(context.Background(), p); err != nil {
			t.Fatalf("seed product %s: %v", p.ID, err)
		}
	}
}

func seedOrders(t *testing.T, reg *memory.Registry, orders ...domain.Order) {
	t.Helper()
	for _, o := range orders {
		if err := reg.Orders().Insert(context.Background(), o); err != nil {
			t.Fatalf("seed order %s: %v", o.ID, err)
		}
	}
}

func mustProduct(t *testing.T, reg *memory.Registry, id string) domain.Product {
	t.Helper()
	p, err := reg.Products().Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get product %s: %v", id, err)
	}
	return p
}

func sampleOrder(id string, partition domain.Partition, status string) domain.Order {
	return domain.Order{
		ID:        id,
		Partition: partition,
		Owner:     domain.OwnerRef{UserID: "user_1", Email: "maria@example.com", FullName: "Maria Santos"},
		Items: []domain.OrderLineItem{
			{ProductID: "prod_rice", Name: "Jasmine Rice 5kg", Quantity: 2, UnitPrice: 32000, LineTotal: 64000, Category: "grocery"},
			{ProductID: "prod_oil", Name: "Coconut Oil 1L", Quantity: 1, UnitPrice: 15000, LineTotal: 15000, Category: "grocery"},
		},
		Payment:   domain.Payment{Method: "gcash", Type: "e-wallet", Reference: "GC-2231"},
		Totals:    domain.OrderTotals{Subtotal: 79000, DeliveryFee: 5000, Total: 84000},
		Status:    status,
		CreatedAt: testNow.Add(-2 * time.Hour),
		UpdatedAt: testNow.Add(-2 * time.Hour),
	}
}

func sampleProducts() []domain.Product {
	return []domain.Product{
		{ID: "prod_rice", Name: "Jasmine Rice 5kg", Category: "grocery", Price: 32000, StockQuantity: 10, IsActive: true},
		{ID: "prod_oil", Name: "Coconut Oil 1L", Category: "grocery", Price: 15000, StockQuantity: 5, IsActive: true},
	}
}

var (
	staffActor    = Actor{ID: "staff_1", Email: "ops@example.com", Staff: true}
	customerActor = Actor{ID: "user_1", Email: "maria@example.com"}
)
