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
	"google.golang.org/api/option"

	"github.com/rentwheel/api/internal/handlers"
	"github.com/rentwheel/api/internal/platform/auth"
	"github.com/rentwheel/api/internal/platform/config"
	"github.com/rentwheel/api/internal/platform/events"
	pfirestore "github.com/rentwheel/api/internal/platform/firestore"
	"github.com/rentwheel/api/internal/platform/httpx"
	"github.com/rentwheel/api/internal/platform/idempotency"
	"github.com/rentwheel/api/internal/platform/jobs"
	"github.com/rentwheel/api/internal/platform/observability"
	"github.com/rentwheel/api/internal/platform/requestctx"
	"github.com/rentwheel/api/internal/platform/secrets"
	platformstorage "github.com/rentwheel/api/internal/platform/storage"
	"github.com/rentwheel/api/internal/repositories"
	firestoreRepo "github.com/rentwheel/api/internal/repositories/firestore"
	"github.com/rentwheel/api/internal/repositories/memory"
	"github.com/rentwheel/api/internal/services"
)

const secretHealthReference = "secret://system-healthz"

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	envValues, err := config.EnvironmentValues()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read environment values: %v\n", err)
		os.Exit(1)
	}

	baseLogger, err := observability.NewLogger(envValues["API_LOG_LEVEL"])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = requestctx.WithLogger(ctx, logger)

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
		var validation *config.ValidationError
		if errors.As(err, &validation) {
			logger.Fatal("invalid configuration", zap.Strings("fields", validation.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.Telemetry, nil)
	if err != nil {
		logger.Fatal("failed to initialise tracing", zap.Error(err))
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracing shutdown error", zap.Error(err))
		}
	}()

	var checks []repositories.DependencyCheck

	var (
		store            repositories.Registry
		firestoreProv    *pfirestore.Provider
		idempotencyStore idempotency.Store
	)
	switch cfg.Store.Driver {
	case "firestore":
		firestoreProv = pfirestore.NewProvider(cfg.Firestore)
		registry, err := firestoreRepo.NewRegistry(firestoreProv)
		if err != nil {
			logger.Fatal("failed to initialise firestore repositories", zap.Error(err))
		}
		store = registry
		fsIdempotency, err := idempotency.NewFirestoreStore(firestoreProv, "")
		if err != nil {
			logger.Fatal("failed to initialise idempotency store", zap.Error(err))
		}
		idempotencyStore = fsIdempotency
		checks = append(checks, repositories.DependencyCheck{
			Name:     "firestore",
			Timeout:  1500 * time.Millisecond,
			Critical: true,
			Check:    firestoreProv.Ping,
		})
	default:
		logger.Warn("using in-memory store; data is lost on restart")
		store = memory.NewStore()
		idempotencyStore = idempotency.NewMemoryStore()
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			logger.Warn("store close error", zap.Error(err))
		}
	}()

	if secretProject(envValues) != "" {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "secretManager",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				return fetcher.Check(ctx, secretHealthReference)
			},
		})
	}

	publisher, brokerCheck, closePublisher, err := newEventPublisher(ctx, cfg.Events)
	if err != nil {
		logger.Fatal("failed to initialise event publisher", zap.Error(err))
	}
	defer closePublisher()
	if brokerCheck != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "broker",
			Timeout: time.Second,
			Check:   brokerCheck,
		})
	}

	imageStore, err := newImageSigner(cfg.Storage)
	if err != nil {
		logger.Fatal("failed to initialise image signer", zap.Error(err))
	}
	if imageStore == nil {
		logger.Warn("vehicle image signing disabled; storage signer not configured")
	}

	availability, err := services.NewAvailabilityChecker(store.Bookings())
	if err != nil {
		logger.Fatal("failed to initialise availability checker", zap.Error(err))
	}

	bookingService, err := services.NewBookingService(services.BookingServiceDeps{
		Vehicles:          store.Vehicles(),
		Bookings:          store.Bookings(),
		UnitOfWork:        store,
		Availability:      availability,
		Events:            publisher,
		Location:          cfg.Booking.Location,
		ReferenceAttempts: cfg.Booking.ReferenceAttempts,
		Logger:            observability.EventLogger(logger, "bookings"),
	})
	if err != nil {
		logger.Fatal("failed to initialise booking service", zap.Error(err))
	}

	paymentService, err := services.NewPaymentService(services.PaymentServiceDeps{
		Bookings:          store.Bookings(),
		Payments:          store.Payments(),
		UnitOfWork:        store,
		Events:            publisher,
		Currency:          cfg.Payments.Currency,
		ReconcileLookback: cfg.Jobs.ReconcileLookback,
		ReconcileBatch:    cfg.Jobs.ReconcileBatchSize,
		Logger:            observability.EventLogger(logger, "payments"),
	})
	if err != nil {
		logger.Fatal("failed to initialise payment service", zap.Error(err))
	}

	vehicleDeps := services.VehicleServiceDeps{
		Vehicles:   store.Vehicles(),
		Bookings:   store.Bookings(),
		UnitOfWork: store,
		Logger:     observability.EventLogger(logger, "vehicles"),
	}
	if imageStore != nil {
		vehicleDeps.Images = imageStore
	}
	vehicleService, err := services.NewVehicleService(vehicleDeps)
	if err != nil {
		logger.Fatal("failed to initialise vehicle service", zap.Error(err))
	}

	statsService, err := services.NewStatsService(services.StatsServiceDeps{
		Stats:  store.Stats(),
		Logger: observability.EventLogger(logger, "stats"),
	})
	if err != nil {
		logger.Fatal("failed to initialise stats service", zap.Error(err))
	}

	systemService, err := newSystemService(checks, buildInfo)
	if err != nil {
		logger.Warn("health: system service init failed", zap.Error(err))
	}

	authenticator, err := newAuthenticator(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialise authenticator", zap.Error(err))
	}

	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)

	tasks := make([]jobs.Task, 0, 2)
	if cfg.Jobs.ReconcileInterval > 0 {
		task, err := jobs.ReconcileTask(paymentService, jobs.ReconcileConfig{
			Interval:  cfg.Jobs.ReconcileInterval,
			BatchSize: cfg.Jobs.ReconcileBatchSize,
		}, logger.Named("jobs"))
		if err != nil {
			logger.Fatal("failed to initialise reconcile task", zap.Error(err))
		}
		tasks = append(tasks, task)
	}
	if cfg.Idempotency.CleanupInterval > 0 {
		task, err := jobs.PurgeTask("purge-idempotency-keys", idempotencyStore, cfg.Idempotency.CleanupInterval, cfg.Idempotency.CleanupBatchSize, logger.Named("jobs"))
		if err != nil {
			logger.Fatal("failed to initialise idempotency purge task", zap.Error(err))
		}
		tasks = append(tasks, task)
	}
	scheduler, err := jobs.NewScheduler(logger.Named("jobs"), tasks...)
	if err != nil {
		logger.Fatal("failed to initialise job scheduler", zap.Error(err))
	}

	vehicleHandlers := handlers.NewVehicleHandlers(vehicleService)
	bookingHandlers := handlers.NewBookingHandlers(authenticator, bookingService,
		handlers.WithBookingRateLimit(cfg.RateLimit.BookingCreates, cfg.RateLimit.Window))
	paymentHandlers := handlers.NewPaymentHandlers(authenticator, paymentService,
		handlers.WithPaymentIdempotency(idempotencyMiddleware),
		handlers.WithPaymentRateLimit(cfg.RateLimit.PaymentAttempts, cfg.RateLimit.Window))
	adminHandlers := handlers.NewAdminHandlers(authenticator, bookingService, statsService, vehicleHandlers)
	internalHandlers := handlers.NewInternalJobHandlers(paymentService)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.RequestIDMiddleware,
		observability.TraceMiddleware(projectID),
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.RecoveryMiddleware,
		observability.RequestLoggerMiddleware,
	}

	healthOpts := []handlers.HealthOption{handlers.WithHealthBuildInfo(buildInfo)}
	if systemService != nil {
		healthOpts = append(healthOpts, handlers.WithHealthSystemService(systemService))
	}

	opts := []handlers.Option{
		handlers.WithMiddlewares(middlewares...),
		handlers.WithRequestTimeout(cfg.Server.WriteTimeout),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(healthOpts...)),
		handlers.WithVehicleRoutes(vehicleHandlers.Routes),
		handlers.WithBookingRoutes(bookingHandlers.Routes),
		handlers.WithPaymentRoutes(paymentHandlers.Routes),
		handlers.WithAdminRoutes(adminHandlers.Routes),
		handlers.WithInternalRoutes(internalHandlers.Routes),
	}
	if oidcMiddleware := buildOIDCMiddleware(logger.Named("auth"), cfg); oidcMiddleware != nil {
		opts = append(opts, handlers.WithInternalMiddlewares(oidcMiddleware))
	} else {
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

	jobsCtx, stopJobs := context.WithCancel(ctx)
	scheduler.Start(jobsCtx)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("rentwheel api listening",
			zap.String("store", cfg.Store.Driver),
			zap.String("auth", cfg.Auth.Mode),
			zap.String("events", cfg.Events.Driver),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	stopJobs()
	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
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
	environment := strings.TrimSpace(cfg.Environment)
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

func newSystemService(checks []repositories.DependencyCheck, build services.BuildInfo) (services.SystemService, error) {
	if len(checks) == 0 {
		return nil, errors.New("health: no dependency checks configured")
	}
	repo, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return nil, err
	}
	return services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: repo,
		Clock:            time.Now,
		Build:            build,
		CacheTTL:         2 * time.Second,
	})
}

func newAuthenticator(ctx context.Context, cfg config.Config) (*auth.Authenticator, error) {
	switch cfg.Auth.Mode {
	case "jwt":
		verifier, err := auth.NewHMACTokenVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
		if err != nil {
			return nil, err
		}
		return auth.NewAuthenticator(verifier), nil
	default:
		verifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
		if err != nil {
			return nil, err
		}
		return auth.NewAuthenticator(verifier), nil
	}
}

// newEventPublisher returns the configured publisher, a readiness probe for it and a close func.
// The "none" driver publishes nothing.
func newEventPublisher(ctx context.Context, cfg config.EventsConfig) (services.EventPublisher, func(context.Context) error, func(), error) {
	switch cfg.Driver {
	case "pubsub":
		client, err := pubsub.NewClient(ctx, cfg.PubSubProjectID)
		if err != nil {
			return nil, nil, func() {}, fmt.Errorf("pubsub client: %w", err)
		}
		publisher, err := events.NewPubSubPublisher(client.Topic(cfg.PubSubTopic))
		if err != nil {
			_ = client.Close()
			return nil, nil, func() {}, err
		}
		return publisher, publisher.Check, func() {
			publisher.Stop()
			_ = client.Close()
		}, nil
	case "amqp":
		publisher, err := events.DialAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return nil, nil, func() {}, err
		}
		return publisher, publisher.Check, func() { _ = publisher.Close() }, nil
	default:
		return nil, nil, func() {}, nil
	}
}

func newImageSigner(cfg config.StorageConfig) (*platformstorage.ImageSigner, error) {
	if strings.TrimSpace(cfg.VehicleImagesBucket) == "" || strings.TrimSpace(cfg.SignerPrivateKey) == "" {
		return nil, nil
	}
	signer, err := platformstorage.NewServiceAccountSigner(cfg.SignerEmail, cfg.SignerPrivateKey)
	if err != nil {
		return nil, err
	}
	client, err := platformstorage.NewClient(signer)
	if err != nil {
		return nil, err
	}
	return platformstorage.NewImageSigner(client, cfg.VehicleImagesBucket, cfg.SignedURLTTL)
}

func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	if strings.TrimSpace(cfg.Security.OIDC.JWKSURL) == "" {
		return nil
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	cache := auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL)
	validator := auth.NewOIDCValidator(cache, logger)

	audience := strings.TrimSpace(cfg.Security.OIDC.Audience)
	if audience == "" {
		logger.Warn("auth: OIDC audience not configured; internal routes will reject requests")
	}
	issuers := cfg.Security.OIDC.Issuers
	if len(issuers) == 0 {
		logger.Warn("auth: OIDC issuers not configured; internal routes will reject requests")
	}

	return validator.RequireOIDC(audience, issuers)
}

// denyAll closes /internal when no OIDC verifier is configured.
func denyAll(http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "internal endpoints are disabled", http.StatusUnauthorized))
	})
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func secretProject(env map[string]string) string {
	if project := strings.TrimSpace(env["API_SECRET_PROJECT_ID"]); project != "" {
		return project
	}
	return strings.TrimSpace(env["API_FIREBASE_PROJECT_ID"])
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
	}
	if project := secretProject(env); project != "" {
		opts = append(opts, secrets.WithProject(project))
	}
	if path := strings.TrimSpace(env["API_SECRET_FALLBACK_FILE"]); path != "" {
		opts = append(opts, secrets.WithFallbackFile(path))
	}
	if ttl, err := time.ParseDuration(strings.TrimSpace(env["API_SECRET_CACHE_TTL"])); err == nil && ttl > 0 {
		opts = append(opts, secrets.WithCacheTTL(ttl))
	}
	if credentialsFile := strings.TrimSpace(env["API_FIREBASE_CREDENTIALS_FILE"]); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}
	return secrets.NewFetcher(ctx, opts...)
}
