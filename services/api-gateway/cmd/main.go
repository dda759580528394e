package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"SocialMeshPlatform/pkg/config"
	"SocialMeshPlatform/pkg/health"
	"SocialMeshPlatform/pkg/logger"
	"SocialMeshPlatform/pkg/metrics"
	pkgmiddleware "SocialMeshPlatform/pkg/middleware"
	"SocialMeshPlatform/pkg/ratelimit"
	pkg_redis "SocialMeshPlatform/pkg/redis"
	"SocialMeshPlatform/pkg/server"
	"SocialMeshPlatform/pkg/token"
	"SocialMeshPlatform/services/api-gateway/internal/middleware"
	"SocialMeshPlatform/services/api-gateway/internal/proxy"
	"SocialMeshPlatform/services/api-gateway/internal/router"
	"SocialMeshPlatform/services/api-gateway/internal/upstream"
)

const (
	serviceName    = "api-gateway"
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
		appLogger.Error("Gateway stopped with error", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, appLogger logger.Logger) error {
	appLogger.Info("Starting API Gateway",
		logger.String("version", serviceVersion),
		logger.String("environment", cfg.Environment))

	shutdownTracing := metrics.InitializeOpenTelemetry(serviceName, serviceVersion)
	defer func() {
		_ = shutdownTracing(context.Background())
	}()
	metricsInstance := metrics.NewMetrics(serviceName)

	// Redis общий для всех инстансов шлюза: счетчики лимитов
	redisClient, err := pkg_redis.Connect(ctx, pkg_redis.FromAppConfig(cfg.Redis), appLogger)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	failurePolicy, err := ratelimit.ParseFailurePolicy(cfg.RateLimiting.FailurePolicy)
	if err != nil {
		return err
	}
	limitTimeout := config.MustDuration(cfg.RateLimiting.Timeout, 200*time.Millisecond)
	// Шлюз граница доверия: без trusted_proxies ключ только по адресу сокета
	trustedProxies, err := ratelimit.ParseTrustedProxies(cfg.RateLimiting.TrustedProxies)
	if err != nil {
		return err
	}
	clientKey := ratelimit.WithKeyFunc(ratelimit.ForwardedIP(trustedProxies))

	globalPolicy := ratelimit.PolicyFromConfig("global", cfg.RateLimiting.Global)
	globalPolicy.KeyPrefix = "gateway:ratelimit:global"
	globalLimiter, err := ratelimit.NewRedisLimiter(redisClient.Client, globalPolicy, limitTimeout)
	if err != nil {
		return err
	}

	sensitivePolicy := ratelimit.PolicyFromConfig("sensitive", cfg.RateLimiting.Sensitive)
	sensitivePolicy.KeyPrefix = "gateway:ratelimit:sensitive"
	sensitiveLimiter, err := ratelimit.NewRedisLimiter(redisClient.Client, sensitivePolicy, limitTimeout)
	if err != nil {
		return err
	}

	accessTokens, err := token.NewManager(cfg.JWT.AccessSecret, cfg.JWT.Issuer,
		config.MustDuration(cfg.JWT.AccessTokenDuration, 60*time.Minute))
	if err != nil {
		return err
	}

	checker := health.NewDependencyChecker(serviceVersion, 2*time.Second)
	checker.Register("redis", redisClient.HealthCheck)

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: config.MustDuration(cfg.Services.UpstreamTimeout, 30*time.Second),
	}
	breaker := upstream.BreakerSettings{
		FailureThreshold: cfg.Services.BreakerThreshold,
		RecoveryTimeout:  config.MustDuration(cfg.Services.BreakerRecovery, 10*time.Second),
	}

	proxyTo := func(name, rawURLs string) (http.Handler, error) {
		up, err := upstream.New(name, rawURLs, appLogger)
		if err != nil {
			return nil, err
		}
		checker.Register(name, up.HealthCheck)
		cb := upstream.NewCircuitBreaker(name, transport, breaker, metricsInstance, appLogger)
		return proxy.New(up, cb, appLogger), nil
	}

	var upstreams router.Upstreams
	for _, u := range []struct {
		name   string
		urls   string
		target *http.Handler
	}{
		{"identity-service", cfg.Services.IdentityURL, &upstreams.Identity},
		{"post-service", cfg.Services.PostURL, &upstreams.Post},
		{"media-service", cfg.Services.MediaURL, &upstreams.Media},
		{"search-service", cfg.Services.SearchURL, &upstreams.Search},
	} {
		h, err := proxyTo(u.name, u.urls)
		if err != nil {
			return err
		}
		*u.target = h
	}

	r := server.NewRouter(appLogger, metricsInstance, checker, pkgmiddleware.CORSMiddleware(cfg.Server.AllowedOrigins, appLogger))
	router.Mount(r, router.Gates{
		Global:         ratelimit.Middleware(globalLimiter, failurePolicy, appLogger, clientKey, ratelimit.WithObserver(metricsInstance)),
		Sensitive:      ratelimit.Middleware(sensitiveLimiter, failurePolicy, appLogger, clientKey, ratelimit.WithObserver(metricsInstance)),
		SensitivePaths: cfg.RateLimiting.SensitivePaths,
		Auth:           middleware.Auth(accessTokens, appLogger),
	}, upstreams)

	srv := server.New(cfg.Server, r)
	return server.Run(ctx, srv, appLogger, config.MustDuration(cfg.Server.ShutdownTimeout, 30*time.Second))
}
