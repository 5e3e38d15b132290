package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/aryan0dhankhar/usersvc/internal/domain"
	"github.com/aryan0dhankhar/usersvc/internal/handler"
	"github.com/aryan0dhankhar/usersvc/internal/infrastructure/logger"
	"github.com/aryan0dhankhar/usersvc/internal/infrastructure/redis"
	"github.com/aryan0dhankhar/usersvc/internal/observability/tracing"
	"github.com/aryan0dhankhar/usersvc/internal/readthrough"
	"github.com/aryan0dhankhar/usersvc/internal/reliability/circuitbreaker"
	"github.com/aryan0dhankhar/usersvc/internal/repository"
	"github.com/aryan0dhankhar/usersvc/internal/security/audit"
	"github.com/aryan0dhankhar/usersvc/internal/security/auth"
	"github.com/aryan0dhankhar/usersvc/internal/security/ratelimit"
	"github.com/aryan0dhankhar/usersvc/internal/service"
	"github.com/aryan0dhankhar/usersvc/pkg/cache"
	"github.com/aryan0dhankhar/usersvc/pkg/config"
	"github.com/aryan0dhankhar/usersvc/pkg/database"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize structured logger
	log := logger.NewLogger(cfg.LogLevel, cfg.LogFormat)
	log.Info("starting usersvc",
		slog.String("environment", cfg.Environment),
		slog.String("store", cfg.StoreBackend),
		slog.String("cache", cfg.CacheBackend),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Initialize tracing
	shutdownTracing, err := tracing.Init(ctx, log, cfg.OTLPEndpoint, "usersvc", cfg.Environment)
	if err != nil {
		log.Error("failed to initialize tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}

	checks := make(map[string]handler.Pinger)

	// 4. Initialize the user store
	var repo domain.UserRepository
	switch cfg.StoreBackend {
	case config.StorePostgres:
		pool, err := database.NewConnectionPool(ctx, &cfg.Database, log)
		if err != nil {
			log.Error("failed to connect to PostgreSQL", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer pool.Close()

		if err := pool.Migrate(ctx); err != nil {
			log.Error("failed to apply schema", slog.String("error", err.Error()))
			os.Exit(1)
		}
		pgRepo := repository.NewPostgresUserRepository(pool.GetDB(), log)
		checks["store"] = pgRepo
		repo = pgRepo
	default:
		memRepo := repository.NewMemoryUserRepository(log)
		checks["store"] = memRepo
		repo = memRepo
	}

	// 5. Initialize the cache store
	var store readthrough.Store
	switch cfg.CacheBackend {
	case config.CacheRedis:
		redisClient, err := redis.NewClient(ctx, cfg.RedisURL, log)
		if err != nil {
			log.Error("failed to connect to Redis", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer redisClient.Close()
		checks["cache"] = redisClient
		store = redisClient
	case config.CacheMemory:
		store = cache.New(time.Minute)
	default:
		log.Warn("response caching disabled")
	}

	// 6. Wrap the store in a breaker so an unhealthy cache degrades to misses
	breaker := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.CacheBreakerFailures,
		SuccessThreshold: 1,
		OpenTimeout:      cfg.CacheBreakerCooldown,
	})
	layer := readthrough.New(store, readthrough.WithLogger(log), readthrough.WithBreaker(breaker))

	// 7. Initialize services
	hasher := auth.NewBcryptHasher(bcrypt.DefaultCost)
	userService := service.NewUserService(repo, hasher, log)
	auditLogger := audit.NewLogger(log)

	// 8. Initialize handlers
	deps := handler.RouterDeps{
		Users: handler.NewUserHandler(userService, layer, handler.UserHandlerConfig{
			Keys:     handler.CacheKeys{Prefix: cfg.CacheKeyPrefix},
			CacheTTL: cfg.CacheTTL,
			MaxBulk:  cfg.BulkMaxItems,
		}, auditLogger, log),
		Health: handler.NewHealthHandler(checks, log),
		Audit:  auditLogger,
		Logger: log,
	}

	// 8a. Authentication is optional; with it off every route is public
	if cfg.AuthEnabled {
		tokenManager := auth.NewTokenManager(cfg.JWTSecret, "usersvc", cfg.JWTTTL)
		authService := service.NewAuthService(repo, hasher, tokenManager, int(cfg.JWTTTL.Seconds()), log)
		deps.Auth = handler.NewAuthHandler(authService, auditLogger, log)
		deps.Tokens = tokenManager
	}

	// 8b. Throttle writes per caller
	if cfg.WriteRateLimit > 0 {
		limiter := ratelimit.NewLimiter(cfg.WriteRateLimit, time.Minute)
		go limiter.Run(ctx, 5*time.Minute)
		deps.Limiter = limiter
	}

	// 9. Start HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      handler.NewRouter(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info("server starting",
		slog.Int("port", cfg.ServerPort),
		slog.Bool("auth", cfg.AuthEnabled),
		slog.Duration("cache_ttl", cfg.CacheTTL),
		slog.Int("bulk_max_items", cfg.BulkMaxItems),
		slog.Int("write_rate_limit", cfg.WriteRateLimit),
	)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for shutdown signal or a listener failure
	select {
	case <-sigChan:
		log.Info("shutdown signal received")
	case err := <-serverErr:
		log.Error("server error", slog.String("error", err.Error()))
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.String("error", err.Error()))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracing shutdown error", slog.String("error", err.Error()))
	}

	log.Info("server stopped")
}
