package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/storefront-orders/api/internal/platform/config"
	"github.com/storefront-orders/api/internal/repositories"
	"github.com/storefront-orders/api/internal/services"
)

// Services bundles the service-layer contracts that handlers and background workers rely upon.
type Services struct {
	Ledger        services.StockLedger
	Moves         services.OrderMoveEngine
	Requests      services.RequestWorkflow
	Query         services.OrderQuery
	Admin         services.OrderAdminService
	Intake        services.OrderIntake
	Notifications services.NotificationService
	Relay         *services.NotificationRelayWorker
	Sweeper       *services.ReservationSweeper
	System        services.SystemService
}

// Infrastructure carries the adapters built by the entrypoint. Nil fields fall back to the
// service defaults: in-process locks, no payment verification, no evidence checks.
type Infrastructure struct {
	Locker    services.Locker
	Publisher services.NotificationPublisher
	Identity  services.IdentityResolver
	Payments  services.PaymentVerifier
	Evidence  services.EvidenceVerifier
	Metrics   services.MetricsRecorder
	Health    repositories.HealthRepository
	Build     services.BuildInfo

	// Logger returns the event logger for a named component.
	Logger      func(component string) services.Logger
	Clock       func() time.Time
	IDGenerator func() string
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring passes the Firestore
// registry; tests and local runs can supply the in-memory registry.
func NewContainer(cfg config.Config, reg repositories.Registry, infra Infrastructure) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(cfg, reg, infra)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(cfg config.Config, reg repositories.Registry, infra Infrastructure) (Services, error) {
	var svc Services

	clock := infra.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := func(component string) services.Logger {
		if infra.Logger == nil {
			return nil
		}
		return infra.Logger(component)
	}

	notifications, err := services.NewNotificationService(services.NotificationServiceDeps{
		Notifications: reg.Notifications(),
		Clock:         clock,
		Logger:        logger("notifications"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build notification service: %w", err)
	}
	svc.Notifications = notifications

	ledger, err := services.NewStockLedger(services.StockLedgerDeps{
		Products:     reg.Products(),
		Reservations: reg.Reservations(),
		UnitOfWork:   reg,
		Metrics:      infra.Metrics,
		Clock:        clock,
		IDGenerator:  infra.IDGenerator,
		Logger:       logger("stock"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build stock ledger: %w", err)
	}
	svc.Ledger = ledger

	moves, err := services.NewOrderMoveEngine(services.OrderMoveEngineDeps{
		Orders:        reg.Orders(),
		Moves:         reg.OrderMoves(),
		UnitOfWork:    reg,
		Ledger:        ledger,
		Notifications: notifications,
		Locker:        infra.Locker,
		Evidence:      infra.Evidence,
		Metrics:       infra.Metrics,
		Clock:         clock,
		IDGenerator:   infra.IDGenerator,
		Logger:        logger("orders.move"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order move engine: %w", err)
	}
	svc.Moves = moves

	requests, err := services.NewRequestWorkflow(services.RequestWorkflowDeps{
		Orders:        reg.Orders(),
		Moves:         reg.OrderMoves(),
		Cancellations: reg.CancellationRequests(),
		Returns:       reg.ReturnRequests(),
		Archives:      reg.ReturnArchives(),
		UnitOfWork:    reg,
		Ledger:        ledger,
		Notifications: notifications,
		Locker:        infra.Locker,
		Evidence:      infra.Evidence,
		Metrics:       infra.Metrics,
		Clock:         clock,
		IDGenerator:   infra.IDGenerator,
		Logger:        logger("orders.requests"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build request workflow: %w", err)
	}
	svc.Requests = requests

	query, err := services.NewOrderQuery(services.OrderQueryDeps{
		Orders:        reg.Orders(),
		Cancellations: reg.CancellationRequests(),
		Archives:      reg.ReturnArchives(),
		Identity:      infra.Identity,
		Logger:        logger("orders.query"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order query: %w", err)
	}
	svc.Query = query

	admin, err := services.NewOrderAdminService(services.OrderAdminServiceDeps{
		Orders:      reg.Orders(),
		Moves:       reg.OrderMoves(),
		UnitOfWork:  reg,
		Payments:    infra.Payments,
		Locker:      infra.Locker,
		Clock:       clock,
		IDGenerator: infra.IDGenerator,
		Logger:      logger("orders.admin"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order admin service: %w", err)
	}
	svc.Admin = admin

	intake, err := services.NewOrderIntake(services.OrderIntakeDeps{
		Products:    reg.Products(),
		Orders:      reg.Orders(),
		UnitOfWork:  reg,
		Ledger:      ledger,
		Metrics:     infra.Metrics,
		Clock:       clock,
		IDGenerator: infra.IDGenerator,
		Logger:      logger("orders.intake"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order intake: %w", err)
	}
	svc.Intake = intake

	sweeper, err := services.NewReservationSweeper(ledger, cfg.Stock.SweepBatchSize, logger("stock.sweeper"))
	if err != nil {
		return Services{}, fmt.Errorf("build reservation sweeper: %w", err)
	}
	svc.Sweeper = sweeper

	if infra.Publisher != nil {
		relay, err := services.NewNotificationRelay(services.NotificationRelayDeps{
			Notifications: reg.Notifications(),
			Publisher:     infra.Publisher,
			MaxAttempts:   cfg.Notifier.MaxAttempts,
			Metrics:       infra.Metrics,
			Clock:         clock,
			Logger:        logger("notifications.relay"),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build notification relay: %w", err)
		}
		svc.Relay = relay
	}

	if infra.Health != nil {
		system, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: infra.Health,
			Clock:            clock,
			Build:            infra.Build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = system
	}

	return svc, nil
}
