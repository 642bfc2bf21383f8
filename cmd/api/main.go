package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"archie-core-dam-sync/internal/application"
	"archie-core-dam-sync/internal/application/webhook_handlers"
	"archie-core-dam-sync/internal/config"
	"archie-core-dam-sync/internal/infrastructure/api"
	"archie-core-dam-sync/internal/infrastructure/dam"
	"archie-core-dam-sync/internal/infrastructure/encryption"
	"archie-core-dam-sync/internal/infrastructure/metrics"
	"archie-core-dam-sync/internal/infrastructure/pubsub"
	redisinfra "archie-core-dam-sync/internal/infrastructure/redis"
	"archie-core-dam-sync/internal/infrastructure/repository"
	"archie-core-dam-sync/internal/infrastructure/repository/memory"
	shopifyinfra "archie-core-dam-sync/internal/infrastructure/shopify"
	"archie-core-dam-sync/internal/ports"

	goshopify "github.com/bold-commerce/go-shopify/v4"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// repositories groups the persistence ports so either driver can back them
type repositories struct {
	shops         ports.ShopRepository
	jobs          ports.SyncJobRepository
	events        ports.WebhookEventRepository
	subscriptions ports.WebhookSubscriptionRepository
	metrics       ports.MetricRepository
	ping          func(ctx context.Context) error
	close         func()
}

func main() {
	// Initialize logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if err := godotenv.Load(); err != nil {
		logger.Warn().Msg(".env file not found")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	} else {
		logger.Warn().Str("level", cfg.LogLevel).Msg("Unknown LOG_LEVEL, using info")
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repos, err := openRepositories(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize repositories")
	}
	defer repos.close()

	// Get encryption key
	encryptionKey := cfg.EncryptionKey
	if encryptionKey == "" {
		if cfg.RepositoryDriver != "memory" {
			logger.Fatal().Msg("ENCRYPTION_KEY environment variable is required")
		}
		logger.Warn().Msg("ENCRYPTION_KEY not set, using an ephemeral key for the in-memory store")
		if encryptionKey, err = encryption.GenerateKey(); err != nil {
			logger.Fatal().Err(err).Msg("Failed to generate encryption key")
		}
	}
	encryptionService, err := encryption.NewService(encryptionKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize encryption service")
	}
	repos.shops = application.NewEncryptedShopRepository(repos.shops, encryptionService)

	// Per-asset locks are optional; without Redis the version gate alone prevents duplicate writes
	var locker ports.AssetLocker
	var redisClient *redisinfra.Client
	if cfg.RedisURL != "" {
		redisClient, err = redisinfra.NewClient(ctx, cfg.RedisURL, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer redisClient.Close()
		locker = redisinfra.NewAssetLocker(redisClient, "")
	}

	// Sync events feed SSE subscribers and Prometheus counters
	eventPubSub := pubsub.NewSyncEventPubSub(logger)
	publisher := metrics.NewEventCounter(eventPubSub)

	collector := application.NewObservabilityService(
		repos.metrics,
		application.NewLogAlertSink(publisher, logger),
		application.AlertThresholds{
			MaxErrorRate:     cfg.AlertMaxErrorRate,
			MinThroughput:    cfg.AlertMinThroughput,
			MaxRateLimitHits: cfg.AlertMaxRateLimitHits,
			MinSamples:       application.DefaultAlertThresholds().MinSamples,
		},
		logger,
	)
	collector.WithBuffer(application.DefaultMetricBuffer)
	observer := metrics.NewObserver(collector)

	// The writer outlives ctx so metrics recorded while the worker winds down still land
	writerCtx, stopWriter := context.WithCancel(context.Background())
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		collector.RunWriter(writerCtx)
	}()

	damClients := dam.NewClientFactory(dam.ClientOptions{
		Timeout:           cfg.DAMTimeout,
		RequestsPerSecond: cfg.DAMRequestsPerSecond,
	}, logger)
	fileStores := shopifyinfra.NewFileStoreFactory(goshopify.App{}, cfg.ShopifyAPIVersion, shopifyinfra.DefaultBindingType, logger)

	// Initialize application services
	shopService := application.NewShopService(repos.shops, logger)
	executor := application.NewAssetSyncService(repos.shops, damClients, fileStores, observer, locker, logger)
	batch := application.NewBatchSyncService(executor, observer, application.BatchConfig{
		PageSize:         cfg.SyncPageSize,
		Concurrency:      cfg.SyncConcurrency,
		RateLimitRetries: cfg.SyncRateLimitRetries,
		Backoff: application.BackoffConfig{
			BaseDelay: cfg.SyncBackoffBase,
			MaxDelay:  cfg.SyncBackoffMax,
		},
	}, logger)
	jobService := application.NewJobService(repos.jobs, repos.shops, publisher, logger)
	retryService := application.NewRetryService(executor, repos.jobs, observer, logger)

	// Initialize webhook dispatcher and register handlers
	webhookDispatcher := application.NewWebhookDispatcher(logger)
	webhookDispatcher.RegisterHandler(webhook_handlers.NewAssetTaggedHandler(executor, logger))

	webhookService := application.NewWebhookService(
		repos.shops,
		repos.subscriptions,
		repos.events,
		webhookDispatcher,
		dam.NewHMACVerifier(),
		publisher,
		cfg.WebhookSignatureVerification,
		logger,
	)

	workerConfig := application.DefaultWorkerConfig()
	workerConfig.Interval = cfg.WorkerPollInterval
	workerConfig.MetricRetention = cfg.MetricRetention
	workerConfig.AlertWindow = cfg.AlertWindow
	worker := application.NewWorker(jobService, batch, collector, workerConfig, logger)

	var background sync.WaitGroup
	background.Add(1)
	go func() {
		defer background.Done()
		worker.Run(ctx)
	}()

	if cfg.SyncSchedule != "" {
		scheduler, err := application.NewScheduler(cfg.SyncSchedule, jobService, repos.shops, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create sync scheduler")
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
	}))

	// Health check - must be public for monitoring
	r.Get("/health", healthHandler(repos, redisClient))
	r.Handle("/metrics", promhttp.Handler())

	handler := api.NewHandler(shopService, webhookService, jobService, retryService, collector, eventPubSub, cfg.AppURL, cfg.AlertWindow, logger)
	handler.Routes(r)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Str("driver", cfg.RepositoryDriver).Msg("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown failed")
	}
	background.Wait()
	stopWriter()
	<-writerDone
	logger.Info().Msg("Stopped")
}

func openRepositories(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*repositories, error) {
	if cfg.RepositoryDriver == "memory" {
		logger.Warn().Msg("Using in-memory repositories; data is lost on restart")
		store := memory.NewStore()
		return &repositories{
			shops:         store,
			jobs:          store,
			events:        store,
			subscriptions: store,
			metrics:       store,
			ping:          func(context.Context) error { return nil },
			close:         func() {},
		}, nil
	}

	// Connect to MongoDB
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, err
	}
	db := client.Database(cfg.MongoDatabase)

	indexCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := repository.EnsureIndexes(indexCtx, db); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	repo := repository.NewMongoRepository(db)
	return &repositories{
		shops:         repo,
		jobs:          repository.NewMongoSyncJobRepository(db),
		events:        repo,
		subscriptions: repository.NewMongoWebhookSubscriptionRepository(db),
		metrics:       repository.NewMongoMetricRepository(db),
		ping: func(ctx context.Context) error {
			return client.Ping(ctx, nil)
		},
		close: func() {
			if err := client.Disconnect(context.Background()); err != nil {
				logger.Error().Err(err).Msg("Failed to disconnect from MongoDB")
			}
		},
	}, nil
}

// healthHandler reports whether the backing stores answer
func healthHandler(repos *repositories, redisClient *redisinfra.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := map[string]string{"repository": "ok"}
		status := http.StatusOK
		if err := repos.ping(ctx); err != nil {
			checks["repository"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		if redisClient != nil {
			checks["redis"] = "ok"
			if err := redisClient.Ping(ctx); err != nil {
				checks["redis"] = err.Error()
				status = http.StatusServiceUnavailable
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"status": http.StatusText(status),
			"checks": checks,
		})
	}
}
