package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"SocialMeshPlatform/pkg/config"
	"SocialMeshPlatform/pkg/database"
	"SocialMeshPlatform/pkg/events"
	"SocialMeshPlatform/pkg/health"
	"SocialMeshPlatform/pkg/identity"
	"SocialMeshPlatform/pkg/logger"
	"SocialMeshPlatform/pkg/metrics"
	pkg_rabbitmq "SocialMeshPlatform/pkg/rabbitmq"
	pkg_redis "SocialMeshPlatform/pkg/redis"
	"SocialMeshPlatform/pkg/server"
	handler "SocialMeshPlatform/services/media-service/internal/handler/http"
	"SocialMeshPlatform/services/media-service/internal/repository/postgres"
	"SocialMeshPlatform/services/media-service/migrations"
	"SocialMeshPlatform/services/media-service/internal/service"
	"SocialMeshPlatform/services/media-service/internal/storage"
)

const (
	serviceName    = "media-service"
	serviceVersion = "v1.0.0"
	queueName      = "media-service.posts"
)

func main() {
	cfg, err := config.LoadConfig(config.FindConfigFile(serviceName))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger, err := logger.New(logger.FromConfig(cfg.Environment, cfg.Logger, serviceName))
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		_ = appLogger.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, appLogger); err != nil {
		appLogger.Error("Service stopped with error", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, appLogger logger.Logger) error {
	appLogger.Info("Starting media service",
		logger.String("version", serviceVersion),
		logger.String("environment", cfg.Environment),
		logger.String("bucket", cfg.Storage.Bucket))

	shutdownTracing := metrics.InitializeOpenTelemetry(serviceName, serviceVersion)
	defer func() {
		_ = shutdownTracing(context.Background())
	}()
	metricsInstance := metrics.NewMetrics(serviceName)

	db, err := database.Connect(ctx, database.FromAppConfig(cfg.Database), appLogger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.MigrateUp(ctx, db.Pool, migrations.Schema(), appLogger); err != nil {
		return err
	}

	redisClient, err := pkg_redis.Connect(ctx, pkg_redis.FromAppConfig(cfg.Redis), appLogger)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	objectStore, err := storage.NewS3Store(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	rabbitConfig := pkg_rabbitmq.FromAppConfig(cfg.RabbitMQ)
	rabbitConn, err := pkg_rabbitmq.Connect(ctx, rabbitConfig, appLogger)
	if err != nil {
		return err
	}
	defer rabbitConn.Close()

	producer, err := pkg_rabbitmq.NewProducer(rabbitConn, rabbitConfig)
	if err != nil {
		return err
	}
	defer producer.Close()

	publisher := events.NewPublisher(producer, serviceName, appLogger)
	publisher.SetObserver(metricsInstance)

	mediaService := service.NewMediaService(
		postgres.NewMediaRepository(db.Pool),
		objectStore,
		publisher,
		cfg.Storage.MaxUploadBytes,
		appLogger,
	)

	dedup := events.NewDeduplicator(redisClient.Client, serviceName, config.MustDuration(cfg.RabbitMQ.DedupTTL, 24*time.Hour))
	subscriber := events.NewSubscriber(pkg_rabbitmq.NewConsumer(rabbitConn, rabbitConfig, appLogger), dedup, appLogger)
	subscriber.SetObserver(metricsInstance)
	subscriber.Subscribe(queueName, mediaService.Handlers())

	checker := health.NewDependencyChecker(serviceVersion, 2*time.Second)
	checker.Register("postgres", db.HealthCheck)
	checker.Register("redis", redisClient.HealthCheck)
	checker.Register("rabbitmq", rabbitConn.HealthCheck)
	checker.Register("storage", objectStore.HealthCheck)

	r := server.NewRouter(appLogger, metricsInstance, checker)
	handler.NewHandler(mediaService, appLogger).Routes(r, identity.HeaderSource{})
	srv := server.New(cfg.Server, r)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return subscriber.Start(gctx)
	})
	g.Go(func() error {
		return server.Run(gctx, srv, appLogger, config.MustDuration(cfg.Server.ShutdownTimeout, 30*time.Second))
	})
	return g.Wait()
}
