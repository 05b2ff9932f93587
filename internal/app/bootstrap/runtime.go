package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	cacheadapter "github.com/promptrelay/chat-api/internal/adapters/cache"
	httpadapter "github.com/promptrelay/chat-api/internal/adapters/http"
	"github.com/promptrelay/chat-api/internal/adapters/llm"
	"github.com/promptrelay/chat-api/internal/adapters/postgres"
	"github.com/promptrelay/chat-api/internal/application"
	"github.com/promptrelay/chat-api/internal/ports"
)

type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	httpServer *http.Server
	grpcServer *grpc.Server
	grpcLis    net.Listener
	cleanupFn  func(context.Context)
}

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	logger.Info("bootstrapping chat api", "http_port", cfg.HTTPPort, "grpc_port", cfg.GRPCPort)

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	sqlDB, err := pool.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	// Redis is optional. Without it both the cache and the rate limiter
	// run on their in-memory backends.
	var (
		cachePrimary   ports.CacheBackend
		limiterPrimary ports.RateLimitBackend
		closeRedis     = func() {}
	)
	memCache := cacheadapter.NewMemoryCacheBackend(cfg.CacheMaxSize)
	memLimiter := cacheadapter.NewMemoryRateLimitBackend()
	if cfg.RedisURL != "" {
		redisClient, redisErr := cacheadapter.Connect(ctx, cfg.RedisURL)
		if redisErr != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("connect redis: %w", redisErr)
		}
		cachePrimary = cacheadapter.NewRedisCacheBackend(redisClient)
		limiterPrimary = cacheadapter.NewRedisRateLimitBackend(redisClient)
		closeRedis = func() { _ = redisClient.Close() }
	} else {
		logger.Warn("no REDIS_URL configured, using in-memory cache and rate limiting")
		cachePrimary = memCache
		limiterPrimary = memLimiter
	}

	interactions := postgres.NewInteractionRepository(pool)

	retryPolicy := application.NewRetryPolicy(cfg.RetryMaxAttempts, cfg.RetryBaseDelay, cfg.RetryMaxDelay)
	llmClient, err := buildLLMClient(cfg, retryPolicy)
	if err != nil {
		closeRedis()
		_ = sqlDB.Close()
		return nil, err
	}

	svc := application.NewService(application.Dependencies{
		Config: application.Config{
			LLMTimeout:          cfg.LLMTimeout,
			DefaultHistoryLimit: cfg.DefaultHistoryLimit,
			MaxHistoryLimit:     cfg.MaxHistoryLimit,
		},
		Interactions: interactions,
		LLM:          llmClient,
		Cache:        application.NewCacheService(cachePrimary, memCache, cfg.CacheTTL, cfg.CacheEnabled),
		RateLimiter:  application.NewRateLimiter(limiterPrimary, memLimiter, cfg.RateLimit, cfg.RateLimitWindow),
		Breaker:      application.NewCircuitBreaker(cfg.BreakerThreshold, cfg.BreakerTimeout),
		Metrics:      application.NewSimpleMetricsCollector(),
	})

	handler := httpadapter.NewHandler(svc, httpadapter.APIKeyAuth{
		Keys:    cfg.APIKeys,
		Require: cfg.RequireAPIKey,
	})
	router := httpadapter.NewRouter(handler)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		closeRedis()
		_ = sqlDB.Close()
		return nil, fmt.Errorf("listen gRPC: %w", err)
	}

	return &Runtime{
		cfg:        cfg,
		logger:     logger,
		httpServer: httpServer,
		grpcServer: grpcServer,
		grpcLis:    lis,
		cleanupFn: func(ctx context.Context) {
			closeRedis()
			_ = sqlDB.Close()
		},
	}, nil
}

// buildLLMClient assembles the provider chain: the configured primary first,
// then the configured fallback when it differs.
func buildLLMClient(cfg Config, retry application.RetryPolicy) (ports.LLMClient, error) {
	primary, err := llm.NewProvider(llm.ProviderConfig{
		Provider: cfg.LLMProvider,
		Model:    cfg.LLMModel,
		APIKey:   cfg.LLMAPIKey,
		BaseURL:  cfg.LLMBaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("init llm provider: %w", err)
	}

	chain := llm.NewFailover(retry).Add(cfg.LLMProvider, primary)
	if cfg.LLMFallbackName != "" && cfg.LLMFallbackName != cfg.LLMProvider {
		fallback, fbErr := llm.NewProvider(llm.ProviderConfig{
			Provider: cfg.LLMFallbackName,
			Model:    cfg.LLMModel,
			APIKey:   cfg.LLMAPIKey,
			BaseURL:  cfg.LLMBaseURL,
		})
		if fbErr != nil {
			return nil, fmt.Errorf("init fallback llm provider: %w", fbErr)
		}
		chain.Add(cfg.LLMFallbackName, fallback)
	}
	return chain, nil
}

func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() {
		r.logger.Info("http server started", "addr", r.httpServer.Addr)
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		r.logger.Info("grpc server started", "addr", r.grpcLis.Addr().String())
		if err := r.grpcServer.Serve(r.grpcLis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		r.logger.Info("shutdown signal received")
	case err := <-errCh:
		r.logger.Error("server failure", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = r.httpServer.Shutdown(shutdownCtx)
	r.grpcServer.GracefulStop()
	r.cleanupFn(shutdownCtx)
	return nil
}
