package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"SocialMeshPlatform/pkg/config"
	"SocialMeshPlatform/pkg/database"
	"SocialMeshPlatform/pkg/health"
	"SocialMeshPlatform/pkg/logger"
	"SocialMeshPlatform/pkg/metrics"
	"SocialMeshPlatform/pkg/middleware"
	"SocialMeshPlatform/pkg/ratelimit"
	pkg_redis "SocialMeshPlatform/pkg/redis"
	"SocialMeshPlatform/pkg/server"
	"SocialMeshPlatform/pkg/token"
	handler "SocialMeshPlatform/services/identity-service/internal/handler/http"
	"SocialMeshPlatform/services/identity-service/internal/pkg/hash"
	"SocialMeshPlatform/services/identity-service/internal/pkg/password"
	"SocialMeshPlatform/services/identity-service/internal/repository/postgres"
	"SocialMeshPlatform/services/identity-service/migrations"
	"SocialMeshPlatform/services/identity-service/internal/service"
	"SocialMeshPlatform/services/identity-service/internal/worker"
)

const (
	serviceName    = "identity-service"
	serviceVersion = "v1.0.0"
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
	appLogger.Info("Starting identity service",
		logger.String("version", serviceVersion),
		logger.String("environment", cfg.Environment))

	shutdownTracing := metrics.InitializeOpenTelemetry(serviceName, serviceVersion)
	defer func() {
		_ = shutdownTracing(context.Background())
	}()
	metricsInstance := metrics.NewMetrics(serviceName)

	// PostgreSQL
	db, err := database.Connect(ctx, database.FromAppConfig(cfg.Database), appLogger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.MigrateUp(ctx, db.Pool, migrations.Schema(), appLogger); err != nil {
		return err
	}

	// Redis для счетчиков rate limiting
	redisClient, err := pkg_redis.Connect(ctx, pkg_redis.FromAppConfig(cfg.Redis), appLogger)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	accessTokens, err := token.NewManager(cfg.JWT.AccessSecret, cfg.JWT.Issuer,
		config.MustDuration(cfg.JWT.AccessTokenDuration, 60*time.Minute))
	if err != nil {
		return err
	}

	users := postgres.NewUserRepository(db.Pool)
	refreshTokens := postgres.NewRefreshTokenRepository(db.Pool)

	tokenService := service.NewTokenService(users, refreshTokens, accessTokens, hash.NewTokenHasher(),
		config.MustDuration(cfg.JWT.RefreshTokenDuration, 7*24*time.Hour), appLogger)
	authService := service.NewAuthService(users, password.NewArgon2Verifier(password.DefaultParams()), tokenService, appLogger)

	purgeJob, err := worker.NewPurgeJob(tokenService, cfg.Purge.Schedule,
		config.MustDuration(cfg.Purge.Timeout, 30*time.Second), appLogger)
	if err != nil {
		return err
	}
	go purgeJob.Start(ctx)

	// Rate limiting внутри сервиса
	failurePolicy, err := ratelimit.ParseFailurePolicy(cfg.RateLimiting.FailurePolicy)
	if err != nil {
		return err
	}
	limitTimeout := config.MustDuration(cfg.RateLimiting.Timeout, 200*time.Millisecond)
	// За шлюзом X-Forwarded-For выставляет ReverseProxy, если сеть шлюза в trusted_proxies
	trustedProxies, err := ratelimit.ParseTrustedProxies(cfg.RateLimiting.TrustedProxies)
	if err != nil {
		return err
	}
	clientKey := ratelimit.WithKeyFunc(ratelimit.ForwardedIP(trustedProxies))

	globalPolicy := ratelimit.PolicyFromConfig("global", cfg.RateLimiting.Global)
	globalPolicy.KeyPrefix = "identity:ratelimit:global"
	globalLimiter, err := ratelimit.NewRedisLimiter(redisClient.Client, globalPolicy, limitTimeout)
	if err != nil {
		return err
	}

	sensitivePolicy := ratelimit.PolicyFromConfig("sensitive", cfg.RateLimiting.Sensitive)
	sensitivePolicy.KeyPrefix = "identity:ratelimit:sensitive"
	sensitiveLimiter, err := ratelimit.NewRedisLimiter(redisClient.Client, sensitivePolicy, limitTimeout)
	if err != nil {
		return err
	}

	checker := health.NewDependencyChecker(serviceVersion, 2*time.Second)
	checker.Register("postgres", db.HealthCheck)
	checker.Register("redis", redisClient.HealthCheck)

	r := server.NewRouter(appLogger, metricsInstance, checker, middleware.CORSMiddleware(cfg.Server.AllowedOrigins, appLogger))
	authHandler := handler.NewHandler(authService, tokenService, appLogger)
	r.Group(func(r chi.Router) {
		r.Use(ratelimit.Middleware(globalLimiter, failurePolicy, appLogger, clientKey, ratelimit.WithObserver(metricsInstance)))
		authHandler.Routes(r, ratelimit.Middleware(sensitiveLimiter, failurePolicy, appLogger, clientKey, ratelimit.WithObserver(metricsInstance)))
	})

	srv := server.New(cfg.Server, r)
	return server.Run(ctx, srv, appLogger, config.MustDuration(cfg.Server.ShutdownTimeout, 30*time.Second))
}
