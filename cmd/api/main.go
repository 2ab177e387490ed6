package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/retailops/api/internal/domain"
	"github.com/retailops/api/internal/handlers"
	"github.com/retailops/api/internal/platform/config"
	pfirestore "github.com/retailops/api/internal/platform/firestore"
	"github.com/retailops/api/internal/platform/idempotency"
	"github.com/retailops/api/internal/platform/notify"
	"github.com/retailops/api/internal/platform/observability"
	"github.com/retailops/api/internal/platform/pgstore"
	"github.com/retailops/api/internal/platform/redisstore"
	"github.com/retailops/api/internal/platform/secrets"
	"github.com/retailops/api/internal/platform/store"
	"github.com/retailops/api/internal/repositories"
	"github.com/retailops/api/internal/services"
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

	resolver, err := secrets.NewResolver(ctx,
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithProject(strings.TrimSpace(envValues["API_SECRETS_PROJECT_ID"])),
		secrets.WithFallbackFile(strings.TrimSpace(envValues["API_SECRETS_FALLBACK_FILE"])),
	)
	if err != nil {
		logger.Fatal("failed to initialise secret resolver", zap.Error(err))
	}
	defer func() {
		if err := resolver.Close(); err != nil {
			logger.Warn("secret resolver close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx, config.WithSecretResolver(resolver))
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	tracerProvider, err := observability.SetupTracing(ctx, cfg.Telemetry)
	if err != nil {
		logger.Fatal("failed to initialise tracing", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracer provider shutdown error", zap.Error(err))
		}
	}()

	backend, checks, closeBackend, err := openBackend(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialise entity store", zap.String("backend", cfg.Store.Backend), zap.Error(err))
	}
	defer closeBackend()

	notifier, err := openNotifier(ctx, cfg, logger.Named("events"))
	if err != nil {
		logger.Fatal("failed to initialise event notifier", zap.String("backend", cfg.Events.Backend), zap.Error(err))
	}
	defer func() {
		if err := notifier.Close(); err != nil {
			logger.Warn("event notifier close error", zap.Error(err))
		}
	}()
	events := timeoutNotifier{next: notifier, timeout: cfg.Events.PublishTimeout}

	registry, err := repositories.NewRegistry(backend, cfg.Store)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	ledger, err := services.NewInventoryLedger(services.InventoryLedgerDeps{
		Products: registry.Products,
		Logger:   observability.EventLogger(logger.Named("inventory")),
	})
	if err != nil {
		logger.Fatal("failed to initialise inventory ledger", zap.Error(err))
	}

	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:        registry.Orders,
		Ledger:        ledger,
		Events:        events,
		Logger:        observability.EventLogger(logger.Named("orders")),
		StockAttempts: cfg.Orders.StockAttempts,
		StockBackoff:  cfg.Orders.StockBackoff,
	})
	if err != nil {
		logger.Fatal("failed to initialise order service", zap.Error(err))
	}

	enrichment, err := services.NewOrderEnrichment(services.OrderEnrichmentDeps{
		Orders:      registry.Orders,
		Customers:   registry.Customers,
		Products:    registry.Products,
		DefaultMode: services.EnrichmentMode(cfg.Orders.EnrichmentMode),
		Logger:      observability.EventLogger(logger.Named("enrichment")),
	})
	if err != nil {
		logger.Fatal("failed to initialise order enrichment", zap.Error(err))
	}

	catalog, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products:  registry.Products,
		Customers: registry.Customers,
		Events:    events,
		Logger:    observability.EventLogger(logger.Named("catalog")),
	})
	if err != nil {
		logger.Fatal("failed to initialise catalog service", zap.Error(err))
	}

	healthRepo, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		logger.Fatal("failed to initialise health checks", zap.Error(err))
	}

	idemStore, err := idempotency.NewTableStore(backend, cfg.Idempotency.Table)
	if err != nil {
		logger.Fatal("failed to initialise idempotency store", zap.Error(err))
	}
	cleanupCtx, stopCleanup := context.WithCancel(ctx)
	defer stopCleanup()
	go runIdempotencyCleanup(cleanupCtx, idemStore, cfg.Idempotency.CleanupInterval, logger.Named("idempotency"))

	orderHandlers := handlers.NewOrderHandlers(orderService, enrichment, catalog)
	catalogHandlers := handlers.NewCatalogHandlers(catalog, ledger)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfoFromEnv(envValues, cfg, startedAt)),
		handlers.WithHealthRepository(healthRepo),
	)

	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger),
		observability.TraceMiddleware(cfg.Firestore.ProjectID),
		observability.RecoveryMiddleware(logger),
		observability.RequestLoggerMiddleware(),
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithProductRoutes(catalogHandlers.ProductRoutes),
		handlers.WithCustomerRoutes(catalogHandlers.CustomerRoutes),
		handlers.WithAPIMiddlewares(idempotency.Middleware(idemStore,
			idempotency.WithHeader(cfg.Idempotency.Header),
			idempotency.WithTTL(cfg.Idempotency.TTL),
			idempotency.WithLogger(logger.Named("idempotency")),
		)),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(
		zap.String("addr", server.Addr),
		zap.String("store", cfg.Store.Backend),
		zap.String("events", cfg.Events.Backend),
	)
	go func() {
		serverLogger.Info("api listening")
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
	stopCleanup()
}

// runIdempotencyCleanup purges expired idempotency keys until ctx is cancelled.
func runIdempotencyCleanup(ctx context.Context, s *idempotency.TableStore, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			removed, err := s.CleanupExpired(ctx, now, 500)
			if err != nil {
				if ctx.Err() == nil {
					logger.Warn("idempotency cleanup failed", zap.Error(err))
				}
				continue
			}
			if removed > 0 {
				logger.Debug("idempotency keys purged", zap.Int("removed", removed))
			}
		}
	}
}

// openBackend dials the configured entity store and returns its readiness checks.
func openBackend(ctx context.Context, cfg config.Config) (store.Backend, []repositories.DependencyCheck, func(), error) {
	switch cfg.Store.Backend {
	case config.StoreBackendMemory:
		backend := store.NewMemoryBackend()
		return backend, []repositories.DependencyCheck{{Name: "store", Check: backend.Ping}}, func() {}, nil

	case config.StoreBackendFirestore:
		provider := pfirestore.NewProvider(cfg.Firestore)
		backend, err := pfirestore.NewBackend(provider)
		if err != nil {
			return nil, nil, nil, err
		}
		closer := func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := provider.Close(closeCtx); err != nil {
				observability.FromContext(ctx).Warn("firestore close error", zap.Error(err))
			}
		}
		return backend, []repositories.DependencyCheck{{Name: "firestore", Check: backend.Ping}}, closer, nil

	case config.StoreBackendRedis:
		client := redisstore.NewClient(cfg.Redis)
		backend, err := redisstore.NewBackend(client, redisstore.WithKeyPrefix(cfg.Redis.KeyPrefix))
		if err != nil {
			_ = client.Close()
			return nil, nil, nil, err
		}
		closer := func() {
			if err := client.Close(); err != nil {
				observability.FromContext(ctx).Warn("redis close error", zap.Error(err))
			}
		}
		return backend, []repositories.DependencyCheck{{Name: "redis", Check: backend.Ping}}, closer, nil

	case config.StoreBackendPostgres:
		db, err := pgstore.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, nil, err
		}
		backend, err := pgstore.NewBackend(ctx, db, cfg.Postgres.Table)
		if err != nil {
			_ = db.Close()
			return nil, nil, nil, err
		}
		closer := func() {
			if err := db.Close(); err != nil {
				observability.FromContext(ctx).Warn("postgres close error", zap.Error(err))
			}
		}
		return backend, []repositories.DependencyCheck{{Name: "postgres", Check: backend.Ping}}, closer, nil
	}
	return nil, nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}

type eventSink interface {
	services.EventNotifier
	Close() error
}

// openNotifier builds the lifecycle event sink for the configured backend.
func openNotifier(ctx context.Context, cfg config.Config, logger *zap.Logger) (eventSink, error) {
	switch cfg.Events.Backend {
	case config.EventsBackendPubSub:
		client, err := pubsub.NewClient(ctx, cfg.Events.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client: %w", err)
		}
		topic, err := notify.EnsureTopic(ctx, client, cfg.Events.Topic)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		notifier, err := notify.NewPubSubNotifier(topic, notify.WithAckTimeout(cfg.Events.PublishTimeout))
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return closeBoth{eventSink: notifier, client: client}, nil

	case config.EventsBackendKafka:
		writer, err := notify.NewKafkaWriter(cfg.Events.Brokers, cfg.Events.Topic)
		if err != nil {
			return nil, err
		}
		notifier, err := notify.NewKafkaNotifier(writer)
		if err != nil {
			_ = writer.Close()
			return nil, err
		}
		return notifier, nil

	case config.EventsBackendLog:
		return notify.NewLogNotifier(logger), nil

	case config.EventsBackendNone:
		return notify.Nop{}, nil
	}
	return nil, fmt.Errorf("unknown events backend %q", cfg.Events.Backend)
}

// closeBoth stops the topic publisher before closing the client that owns it.
type closeBoth struct {
	eventSink
	client *pubsub.Client
}

func (c closeBoth) Close() error {
	return errors.Join(c.eventSink.Close(), c.client.Close())
}

// timeoutNotifier bounds each publish to the configured timeout.
type timeoutNotifier struct {
	next    services.EventNotifier
	timeout time.Duration
}

func (t timeoutNotifier) Notify(ctx context.Context, event domain.LifecycleEvent) error {
	if t.timeout <= 0 {
		return t.next.Notify(ctx, event)
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.timeout)
	defer cancel()
	return t.next.Notify(ctx, event)
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) handlers.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	return handlers.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: cfg.Secrets.Environment,
		StartedAt:   started,
	}
}
