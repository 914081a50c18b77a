package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"gorm.io/gorm"

	"github.com/shorebytelabs/nailsbyabri-sub001/internal/di"
	"github.com/shorebytelabs/nailsbyabri-sub001/internal/handlers"
	"github.com/shorebytelabs/nailsbyabri-sub001/internal/payments"
	"github.com/shorebytelabs/nailsbyabri-sub001/internal/platform/auth"
	"github.com/shorebytelabs/nailsbyabri-sub001/internal/platform/config"
	"github.com/shorebytelabs/nailsbyabri-sub001/internal/platform/database"
	pfirestore "github.com/shorebytelabs/nailsbyabri-sub001/internal/platform/firestore"
	"github.com/shorebytelabs/nailsbyabri-sub001/internal/platform/idempotency"
	"github.com/shorebytelabs/nailsbyabri-sub001/internal/platform/jobs"
	"github.com/shorebytelabs/nailsbyabri-sub001/internal/platform/observability"
	"github.com/shorebytelabs/nailsbyabri-sub001/internal/platform/secrets"
	"github.com/shorebytelabs/nailsbyabri-sub001/internal/repositories"
	"github.com/shorebytelabs/nailsbyabri-sub001/internal/repositories/catalogcache"
	"github.com/shorebytelabs/nailsbyabri-sub001/internal/repositories/catalogfile"
	firestoreRepo "github.com/shorebytelabs/nailsbyabri-sub001/internal/repositories/firestore"
	"github.com/shorebytelabs/nailsbyabri-sub001/internal/repositories/gormdb"
	"github.com/shorebytelabs/nailsbyabri-sub001/internal/services"
)

const (
	metricsNamespace  = "nailsbyabri"
	meterName         = "github.com/shorebytelabs/nailsbyabri-sub001"
	catalogPingTarget = "catalogShapes"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	envValues, err := config.EnvironmentValues()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read environment values: %v\n", err)
		os.Exit(1)
	}

	baseLogger, err := observability.NewLogger(envValues["LOG_LEVEL"])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx, config.WithSecretResolver(fetcher))
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromConfig(cfg, startedAt)
	meter := otel.GetMeterProvider().Meter(meterName)

	db, err := database.Open(ctx, cfg.Database, logger.Named("db"))
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	if cfg.Database.AutoMigrate {
		if err := gormdb.Migrate(ctx, db); err != nil {
			logger.Fatal("failed to migrate database", zap.Error(err))
		}
	}

	var redisClient *redis.Client
	if addr := strings.TrimSpace(cfg.Redis.Addr); addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close error", zap.Error(err))
			}
		}()
	}

	var firestoreProvider *pfirestore.Provider
	if cfg.Catalog.Source == "firestore" {
		firestoreProvider = pfirestore.NewProvider(cfg.Firestore)
		defer func() {
			if err := firestoreProvider.Close(); err != nil {
				logger.Warn("firestore close error", zap.Error(err))
			}
		}()
	}

	catalog, err := newCatalogRepository(cfg, firestoreProvider, redisClient, logger)
	if err != nil {
		logger.Fatal("failed to initialise catalog", zap.Error(err))
	}

	health, err := repositories.NewProbeHealthRepository(healthProbes(db, firestoreProvider, redisClient))
	if err != nil {
		logger.Fatal("failed to initialise health probes", zap.Error(err))
	}

	registry, err := gormdb.NewRegistry(db, catalog, health)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	containerOpts := []di.Option{
		di.WithLogger(logger),
		di.WithMeter(meter),
		di.WithBuildInfo(buildInfo),
	}

	paymentManager, err := newPaymentManager(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialise payment provider", zap.Error(err))
	}
	if paymentManager != nil {
		containerOpts = append(containerOpts, di.WithPaymentProcessor(paymentManager))
	} else {
		logger.Warn("stripe api key not configured; payment initiation disabled")
	}

	if projectID := strings.TrimSpace(cfg.PubSub.ProjectID); projectID != "" {
		publisher, closePublisher, err := newOrderEventPublisher(ctx, cfg.PubSub)
		if err != nil {
			logger.Fatal("failed to initialise order event publisher", zap.Error(err))
		}
		containerOpts = append(containerOpts,
			di.WithOrderEvents(publisher),
			di.WithCloser(closePublisher),
		)
	}

	container, err := di.NewContainer(cfg, registry, containerOpts...)
	if err != nil {
		logger.Fatal("failed to build services", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("container close error", zap.Error(err))
		}
	}()
	svc := container.Services

	var idempotencyStore idempotency.Store = idempotency.NewMemoryStore()
	if redisClient != nil {
		redisStore, err := idempotency.NewRedisStore(redisClient)
		if err != nil {
			logger.Fatal("failed to initialise idempotency store", zap.Error(err))
		}
		idempotencyStore = redisStore
	}
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(logger.Named("idempotency")),
	)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	cleanupWG.Add(1)
	go func() {
		defer cleanupWG.Done()
		idempotency.RunCleanup(cleanupCtx, idempotencyStore, cfg.Idempotency.CleanupInterval, cfg.Idempotency.CleanupBatchSize, logger.Named("idempotency"))
	}()

	httpMetrics := observability.NewHTTPMetrics(metricsNamespace)
	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
		httpMetrics.Middleware,
	}
	if cfg.Server.RequestTimeout > 0 {
		middlewares = append(middlewares, middleware.Timeout(cfg.Server.RequestTimeout))
	}

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(svc.System),
	)
	storefrontHandlers := handlers.NewStorefrontHandlers(svc.Pricing, svc.Promotions, svc.Capacity)
	orderHandlers := handlers.NewOrderHandlers(svc.Orders, handlers.WithPaymentMiddlewares(idempotencyMiddleware))

	opts := []handlers.Option{
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithMetricsHandler(httpMetrics.Handler()),
		handlers.WithStorefrontRoutes(storefrontHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
	}

	if paymentManager != nil {
		webhookHandlers := handlers.NewWebhookHandlers(paymentManager, svc.Orders)
		opts = append(opts, handlers.WithWebhookRoutes(webhookHandlers.Routes))
	}

	adminMiddleware, err := buildAdminMiddleware(cfg, redisClient, logger)
	if err != nil {
		logger.Fatal("failed to initialise admin request signing", zap.Error(err))
	}
	if adminMiddleware != nil {
		adminHandlers := handlers.NewAdminHandlers(svc.Capacity, svc.Promotions)
		opts = append(opts,
			handlers.WithAdminRoutes(adminHandlers.Routes),
			handlers.WithAdminMiddlewares(adminMiddleware),
		)
	} else {
		logger.Warn("admin signing secret not configured; admin routes disabled")
	}

	router := handlers.NewRouter(opts...)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("nailsbyabri api listening",
			zap.String("environment", buildInfo.Environment),
			zap.String("version", buildInfo.Version),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildInfoFromConfig(cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(cfg.Runtime.Version)
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(cfg.Runtime.CommitSHA)
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Runtime.Environment)
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

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		return strings.TrimSpace(env[key])
	}

	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIRESTORE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if credentialsFile := lookup("API_SECRET_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

func newCatalogRepository(cfg config.Config, provider *pfirestore.Provider, redisClient *redis.Client, logger *zap.Logger) (repositories.CatalogRepository, error) {
	var primary repositories.CatalogRepository
	switch cfg.Catalog.Source {
	case "firestore":
		repo, err := firestoreRepo.NewCatalogRepository(provider)
		if err != nil {
			return nil, err
		}
		primary = repo
	case "file":
		repo, err := catalogfile.Load(cfg.Catalog.File)
		if err != nil {
			return nil, err
		}
		primary = repo
	default:
		return nil, fmt.Errorf("unknown catalog source %q", cfg.Catalog.Source)
	}

	if redisClient == nil {
		return primary, nil
	}
	return catalogcache.New(primary, redisClient, cfg.Catalog.CacheTTL, logger.Named("catalogcache"))
}

func healthProbes(db *gorm.DB, provider *pfirestore.Provider, redisClient *redis.Client) []repositories.DependencyProbe {
	probes := []repositories.DependencyProbe{{
		Name:     "database",
		Required: true,
		Ping: func(ctx context.Context) error {
			return database.Ping(ctx, db)
		},
	}}
	if provider != nil {
		probes = append(probes, repositories.DependencyProbe{
			Name:     "firestore",
			Required: true,
			Ping: func(ctx context.Context) error {
				return provider.Ping(ctx, catalogPingTarget)
			},
		})
	}
	if redisClient != nil {
		probes = append(probes, repositories.DependencyProbe{
			Name: "redis",
			Ping: func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		})
	}
	return probes
}

func newPaymentManager(cfg config.Config, logger *zap.Logger) (*payments.Manager, error) {
	if strings.TrimSpace(cfg.PSP.StripeAPIKey) == "" {
		return nil, nil
	}
	stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
		APIKey:        cfg.PSP.StripeAPIKey,
		WebhookSecret: cfg.PSP.StripeWebhookSecret,
		Logger:        observability.EventLogger(logger.Named("stripe")),
	})
	if err != nil {
		return nil, err
	}
	return payments.NewManager(map[string]payments.Provider{"stripe": stripeProvider})
}

func newOrderEventPublisher(ctx context.Context, cfg config.PubSubConfig) (services.OrderEventPublisher, func(context.Context) error, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("pubsub client: %w", err)
	}
	publisher, err := jobs.NewPubSubOrderEventPublisher(client.Topic(cfg.OrderTopic))
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	closeFn := func(context.Context) error {
		publisher.Stop()
		return client.Close()
	}
	return publisher, closeFn, nil
}

func buildAdminMiddleware(cfg config.Config, redisClient *redis.Client, logger *zap.Logger) (func(http.Handler) http.Handler, error) {
	secret := strings.TrimSpace(cfg.Admin.SigningSecret)
	if secret == "" {
		return nil, nil
	}

	var nonces auth.NonceStore = auth.NewInMemoryNonceStore()
	if redisClient != nil {
		store, err := auth.NewRedisNonceStore(redisClient)
		if err != nil {
			return nil, err
		}
		nonces = store
	}

	validator, err := auth.NewHMACValidator(secret, "admin", nonces,
		auth.WithHMACLogger(logger.Named("admin")),
		auth.WithHMACClockSkew(cfg.Admin.ClockSkew),
	)
	if err != nil {
		return nil, err
	}
	return validator.Require, nil
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firestore.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.PubSub.ProjectID)
}
