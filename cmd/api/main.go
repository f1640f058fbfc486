package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/storefront-orders/api/internal/di"
	"github.com/storefront-orders/api/internal/handlers"
	"github.com/storefront-orders/api/internal/payments"
	"github.com/storefront-orders/api/internal/platform/auth"
	"github.com/storefront-orders/api/internal/platform/config"
	pfirestore "github.com/storefront-orders/api/internal/platform/firestore"
	"github.com/storefront-orders/api/internal/platform/httpx"
	"github.com/storefront-orders/api/internal/platform/idempotency"
	"github.com/storefront-orders/api/internal/platform/jobs"
	"github.com/storefront-orders/api/internal/platform/lock"
	"github.com/storefront-orders/api/internal/platform/observability"
	"github.com/storefront-orders/api/internal/platform/secrets"
	platformstorage "github.com/storefront-orders/api/internal/platform/storage"
	"github.com/storefront-orders/api/internal/repositories"
	firestoreRepo "github.com/storefront-orders/api/internal/repositories/firestore"
	"github.com/storefront-orders/api/internal/repositories/memory"
	"github.com/storefront-orders/api/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	resolver := newSecretResolver(ctx, logger, envValues)
	defer func() {
		if err := resolver.Close(); err != nil {
			logger.Warn("secret resolver close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(resolver),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	metrics, err := observability.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		logger.Fatal("failed to register metrics", zap.Error(err))
	}

	var checks []repositories.DependencyCheck

	registry, firestoreProvider := newRegistry(ctx, logger, cfg)
	if firestoreProvider != nil {
		provider := firestoreProvider
		checks = append(checks, repositories.DependencyCheck{
			Name:     "firestore",
			Critical: true,
			Timeout:  1500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				return provider.Ping(ctx, "orders")
			},
		})
	}

	var (
		locker           services.Locker
		idempotencyStore idempotency.Store
	)
	if addr := strings.TrimSpace(cfg.Redis.Addr); addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close error", zap.Error(err))
			}
		}()
		locker = lock.NewRedisLocker(redisClient, lock.WithTTL(cfg.Redis.LockTTL))
		idempotencyStore = idempotency.NewRedisStore(redisClient)
		checks = append(checks, repositories.DependencyCheck{
			Name:     "redis",
			Critical: true,
			Timeout:  time.Second,
			Check: func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		})
	} else {
		logger.Warn("redis not configured; order locks and idempotency records are per instance")
		locker = lock.NewLocalLocker()
		idempotencyStore = idempotency.NewMemoryStore()
	}

	publisher, closePublisher, err := newNotificationPublisher(ctx, logger, cfg)
	if err != nil {
		logger.Fatal("failed to initialise notification publisher", zap.Error(err))
	}
	defer closePublisher()

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier)

	infra := di.Infrastructure{
		Locker:    locker,
		Publisher: publisher,
		Identity:  firebaseVerifier,
		Metrics:   metrics,
		Build:     buildInfo,
		Logger: func(component string) services.Logger {
			return observability.EventLogger(logger.Named(component))
		},
		Clock:       time.Now,
		IDGenerator: func() string { return ulid.Make().String() },
	}

	if strings.TrimSpace(cfg.PSP.StripeAPIKey) != "" {
		stripeVerifier, err := payments.NewStripeVerifier(payments.StripeVerifierConfig{
			APIKey: cfg.PSP.StripeAPIKey,
			Logger: observability.EventLogger(logger.Named("payments")),
		})
		if err != nil {
			logger.Fatal("failed to initialise stripe verifier", zap.Error(err))
		}
		infra.Payments = stripeVerifier
	} else {
		logger.Info("stripe not configured; payment references are recorded without provider checks")
	}

	var uploads *platformstorage.EvidenceUploads
	if bucket := strings.TrimSpace(cfg.Storage.EvidenceBucket); bucket != "" {
		signer, err := platformstorage.NewServiceAccountSigner([]byte(cfg.Storage.SignedURLKey))
		if err != nil {
			logger.Fatal("failed to parse storage signer key", zap.Error(err))
		}
		uploads, err = platformstorage.NewEvidenceUploads(bucket, signer, platformstorage.WithTTL(cfg.Storage.SignedURLTTL))
		if err != nil {
			logger.Fatal("failed to initialise evidence uploads", zap.Error(err))
		}
		infra.Evidence = uploads
	} else {
		logger.Warn("evidence bucket not configured; return photo uploads are disabled")
	}

	if len(checks) > 0 {
		health, err := repositories.NewDependencyHealthRepository(checks)
		if err != nil {
			logger.Fatal("failed to initialise health checks", zap.Error(err))
		}
		infra.Health = health
	}

	container, err := di.NewContainer(cfg, registry, infra)
	if err != nil {
		logger.Fatal("failed to build services", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("repository close error", zap.Error(err))
		}
	}()
	svc := container.Services

	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)
	mutation := []func(http.Handler) http.Handler{idempotencyMiddleware}

	productHandlers := handlers.NewProductHandlers(authenticator, svc.Ledger, mutation...)
	orderDeps := handlers.OrderHandlerDeps{
		Authn:            authenticator,
		Moves:            svc.Moves,
		Requests:         svc.Requests,
		Query:            svc.Query,
		Admin:            svc.Admin,
		Intake:           svc.Intake,
		Mutation:         mutation,
		SubmissionLimit:  cfg.Requests.SubmissionLimit,
		SubmissionWindow: cfg.Requests.SubmissionWindow,
	}
	if uploads != nil {
		orderDeps.Uploads = uploads
	}
	orderHandlers := handlers.NewOrderHandlers(orderDeps)
	notificationHandlers := handlers.NewNotificationHandlers(authenticator, svc.Notifications)

	var relay services.NotificationRelay
	if svc.Relay != nil {
		relay = svc.Relay
	}
	internalHandlers := handlers.NewInternalHandlers(svc.Sweeper, relay, cfg.Notifier.RelayBatchSize)

	healthOpts := []handlers.HealthOption{handlers.WithHealthBuildInfo(buildInfo)}
	if svc.System != nil {
		healthOpts = append(healthOpts, handlers.WithHealthSystemService(svc.System))
	}
	healthHandlers := handlers.NewHealthHandlers(healthOpts...)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
	}

	opts := []handlers.Option{
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithProductRoutes(productHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithNotificationRoutes(notificationHandlers.Routes),
		handlers.WithInternalRoutes(internalHandlers.Routes),
	}
	if oidcMiddleware := buildOIDCMiddleware(logger.Named("auth"), cfg); oidcMiddleware != nil {
		opts = append(opts, handlers.WithInternalMiddlewares(oidcMiddleware))
	} else {
		logger.Warn("OIDC not configured; internal routes are disabled")
		opts = append(opts, handlers.WithInternalMiddlewares(denyAll))
	}

	router := handlers.NewRouter(opts...)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	workerCtx, workerCancel := context.WithCancel(ctx)
	var workers sync.WaitGroup
	startWorker := func(name string, run func(ctx context.Context)) {
		workers.Add(1)
		go func() {
			defer workers.Done()
			logger.Info("background worker started", zap.String("worker", name))
			run(workerCtx)
		}()
	}

	if cfg.Stock.SweepInterval > 0 {
		startWorker("reservation_sweeper", func(ctx context.Context) {
			svc.Sweeper.Run(ctx, cfg.Stock.SweepInterval)
		})
	}
	if svc.Relay != nil && cfg.Notifier.RelayInterval > 0 {
		startWorker("notification_relay", func(ctx context.Context) {
			svc.Relay.Run(ctx, cfg.Notifier.RelayInterval, cfg.Notifier.RelayBatchSize)
		})
	}
	if cfg.Idempotency.CleanupInterval > 0 {
		startWorker("idempotency_cleanup", func(ctx context.Context) {
			runIdempotencyCleanup(ctx, logger.Named("idempotency"), idempotencyStore, cfg.Idempotency)
		})
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("storefront orders api listening",
			zap.String("persistence", cfg.Persistence.Driver),
			zap.String("notifier", cfg.Notifier.Driver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}

	workerCancel()
	workers.Wait()
}

func newRegistry(ctx context.Context, logger *zap.Logger, cfg config.Config) (repositories.Registry, *pfirestore.Provider) {
	if cfg.Persistence.Driver == config.PersistenceMemory {
		logger.Warn("using in-memory persistence; data is lost on restart")
		return memory.NewRegistry(), nil
	}

	provider := pfirestore.NewProvider(cfg.Firestore)
	if _, err := provider.Client(ctx); err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	registry, err := firestoreRepo.NewRegistry(provider)
	if err != nil {
		logger.Fatal("failed to initialise firestore repositories", zap.Error(err))
	}
	return registry, provider
}

func newNotificationPublisher(ctx context.Context, logger *zap.Logger, cfg config.Config) (services.NotificationPublisher, func(), error) {
	noop := func() {}
	switch cfg.Notifier.Driver {
	case config.NotifierPubSub:
		client, err := pubsub.NewClient(ctx, cfg.Notifier.PubSubProject)
		if err != nil {
			return nil, noop, fmt.Errorf("pubsub client: %w", err)
		}
		topic := client.Topic(cfg.Notifier.PubSubTopic)
		publisher, err := jobs.NewPubSubNotificationPublisher(topic)
		if err != nil {
			_ = client.Close()
			return nil, noop, err
		}
		return publisher, func() {
			topic.Stop()
			if err := client.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}, nil
	case config.NotifierKafka:
		publisher, err := jobs.NewKafkaNotificationPublisher(cfg.Notifier.KafkaBrokers, cfg.Notifier.KafkaTopic)
		if err != nil {
			return nil, noop, err
		}
		return publisher, func() {
			if err := publisher.Close(); err != nil {
				logger.Warn("kafka close error", zap.Error(err))
			}
		}, nil
	case config.NotifierWebhook:
		publisher, err := jobs.NewWebhookNotificationPublisher(cfg.Notifier.WebhookURL, cfg.Notifier.WebhookSecret, cfg.Notifier.WebhookTimeout)
		if err != nil {
			return nil, noop, err
		}
		return publisher, noop, nil
	default:
		return jobs.NewLogNotificationPublisher(observability.EventLogger(logger.Named("notifications"))), noop, nil
	}
}

func runIdempotencyCleanup(ctx context.Context, logger *zap.Logger, store idempotency.Store, cfg config.IdempotencyConfig) {
	ticker := time.NewTicker(cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, time.Minute)
			removed, err := store.CleanupExpired(runCtx, time.Now().UTC(), cfg.CleanupBatchSize)
			cancel()
			if err != nil {
				logger.Error("idempotency cleanup error", zap.Error(err))
				continue
			}
			if removed > 0 {
				logger.Info("idempotency cleanup removed records", zap.Int("count", removed))
			}
		case <-ctx.Done():
			return
		}
	}
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	if strings.TrimSpace(cfg.Security.OIDC.JWKSURL) == "" {
		return nil
	}
	audience := strings.TrimSpace(cfg.Security.OIDC.Audience)
	if audience == "" {
		return nil
	}

	adapter := observability.NewPrintfAdapter(logger)
	cache := auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL, auth.WithJWKSLogger(adapter))
	validator := auth.NewOIDCValidator(cache, adapter)
	return validator.RequireOIDC(audience, cfg.Security.OIDC.Issuers)
}

func denyAll(http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(r.Context(), w, httpx.NewError("internal_disabled", "internal routes are disabled", http.StatusForbidden))
	})
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretResolver(ctx context.Context, logger *zap.Logger, env map[string]string) *secrets.Resolver {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}
	projectID := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if projectID == "" {
		projectID = lookup("API_FIREBASE_PROJECT_ID")
	}
	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithMeterProvider(otel.GetMeterProvider()),
	}
	if path := lookup("API_SECRET_FALLBACK_FILE"); path != "" {
		opts = append(opts, secrets.WithFallbackFile(path))
	}
	return secrets.NewResolver(ctx, projectID, opts...)
}

// requiredSecretNames lists the secrets the configured drivers cannot run without.
func requiredSecretNames(env map[string]string) []string {
	var required []string
	if strings.TrimSpace(env["API_STORAGE_EVIDENCE_BUCKET"]) != "" {
		required = append(required, "Storage.SignedURLKey")
	}
	if strings.EqualFold(strings.TrimSpace(env["API_NOTIFIER_DRIVER"]), config.NotifierWebhook) {
		required = append(required, "Notifier.WebhookSecret")
	}
	if strings.TrimSpace(env["API_PSP_STRIPE_API_KEY"]) != "" {
		required = append(required, "PSP.StripeAPIKey")
	}
	sort.Strings(required)
	return required
}
