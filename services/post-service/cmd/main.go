package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"SocialMeshPlatform/pkg/cache"
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
	handler "SocialMeshPlatform/services/post-service/internal/handler/http"
	"SocialMeshPlatform/services/post-service/internal/repository/postgres"
	"SocialMeshPlatform/services/post-service/migrations"
	"SocialMeshPlatform/services/post-service/internal/service"
)

const (
	serviceName    = "post-service"
	serviceVersion = "v1.0.0"
	cacheNamespace = "post"
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
	appLogger.Info("Starting post service",
		logger.String("version", serviceVersion),
		logger.String("environment", cfg.Environment))

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

	rabbitConn, err := pkg_rabbitmq.Connect(ctx, pkg_rabbitmq.FromAppConfig(cfg.RabbitMQ), appLogger)
	if err != nil {
		return err
	}
	defer rabbitConn.Close()

	producer, err := pkg_rabbitmq.NewProducer(rabbitConn, pkg_rabbitmq.FromAppConfig(cfg.RabbitMQ))
	if err != nil {
		return err
	}
	defer producer.Close()

	publisher := events.NewPublisher(producer, serviceName, appLogger)
	publisher.SetObserver(metricsInstance)

	cacheOpts := cache.OptionsFromConfig(cfg.Cache)
	cacheOpts.Observer = metricsInstance
	postCache := cache.New(redisClient.Client, cacheNamespace, cacheOpts, appLogger)

	postService := service.NewPostService(postgres.NewPostRepository(db.Pool), postCache, publisher, appLogger)

	checker := health.NewDependencyChecker(serviceVersion, 2*time.Second)
	checker.Register("postgres", db.HealthCheck)
	checker.Register("redis", redisClient.HealthCheck)
	checker.Register("rabbitmq", rabbitConn.HealthCheck)

	r := server.NewRouter(appLogger, metricsInstance, checker)
	handler.NewHandler(postService, appLogger).Routes(r, identity.HeaderSource{})

	srv := server.New(cfg.Server, r)
	return server.Run(ctx, srv, appLogger, config.MustDuration(cfg.Server.ShutdownTimeout, 30*time.Second))
}
