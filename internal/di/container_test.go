package di

import (
	"context"
	"testing"
	"time"

	domain "github.com/storefront-orders/api/internal/domain"
	"github.com/storefront-orders/api/internal/platform/config"
	"github.com/storefront-orders/api/internal/platform/jobs"
	"github.com/storefront-orders/api/internal/repositories/memory"
)

func TestNewContainerRequiresRegistry(t *testing.T) {
	if _, err := NewContainer(config.Config{}, nil, Infrastructure{}); err == nil {
		t.Fatalf("expected error without registry")
	}
}

func TestNewContainerWiresMemoryRegistry(t *testing.T) {
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	reg := memory.NewRegistry()
	ctx := context.Background()
	if err := reg.Products().Save(ctx, domain.Product{ID: "mug", Name: "Mug", Price: 25000, StockQuantity: 4, IsActive: true}); err != nil {
		t.Fatalf("seed product: %v", err)
	}

	cfg := config.Config{Stock: config.StockConfig{SweepBatchSize: 10}}
	container, err := NewContainer(cfg, reg, Infrastructure{Clock: func() time.Time { return now }})
	if err != nil {
		t.Fatalf("NewContainer: %v", err)
	}
	svc := container.Services
	if svc.Ledger == nil || svc.Moves == nil || svc.Requests == nil || svc.Query == nil || svc.Admin == nil || svc.Intake == nil || svc.Notifications == nil || svc.Sweeper == nil {
		t.Fatalf("expected every core service to be wired: %+v", svc)
	}
	if svc.Relay != nil {
		t.Fatalf("relay must stay unwired without a publisher")
	}
	if svc.System != nil {
		t.Fatalf("system service must stay unwired without health checks")
	}

	validation, err := svc.Ledger.Validate(ctx, []domain.StockLine{{ProductID: "mug", Quantity: 3}})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !validation.AllValid {
		t.Fatalf("expected stock to validate against the memory registry, got %+v", validation)
	}

	released, err := svc.Sweeper.SweepOnce(ctx)
	if err != nil || released != 0 {
		t.Fatalf("expected empty sweep, got %d, %v", released, err)
	}

	if err := container.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestNewContainerWiresRelayWithPublisher(t *testing.T) {
	publisher := jobs.NewLogNotificationPublisher(nil)
	container, err := NewContainer(config.Config{}, memory.NewRegistry(), Infrastructure{Publisher: publisher})
	if err != nil {
		t.Fatalf("NewContainer: %v", err)
	}
	if container.Services.Relay == nil {
		t.Fatalf("expected relay to be wired")
	}

	result, err := container.Services.Relay.RelayOnce(context.Background(), 10)
	if err != nil {
		t.Fatalf("RelayOnce: %v", err)
	}
	if result.Published != 0 {
		t.Fatalf("expected nothing to publish, got %+v", result)
	}
}
