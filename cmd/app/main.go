package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"pantry-raffle-backend/docs"
	"pantry-raffle-backend/internal/common/cache"
	"pantry-raffle-backend/internal/common/config"
	"pantry-raffle-backend/internal/common/logger"
	"pantry-raffle-backend/internal/common/middleware"
	"pantry-raffle-backend/internal/common/ratelimit"
	raffleHTTP "pantry-raffle-backend/internal/features/raffle/delivery/http"
	"pantry-raffle-backend/internal/features/raffle/repository/factory"
	"pantry-raffle-backend/internal/features/raffle/service"
	"pantry-raffle-backend/internal/platform/redis"
	"pantry-raffle-backend/internal/workers"
)

const serviceName = "pantry-raffle-backend"

// @title           Pantry Raffle API
// @version         1.0
// @description     Ticket raffle state for a food pantry queue: draw order, serving pointer, snapshots and undo/redo.

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:8080
// @BasePath  /api/v1

// @tag.name state
// @tag.description Raffle state and actions

// @tag.name snapshots
// @tag.description Snapshot history

func main() {
	// Инициализируем конфигурацию
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Инициализируем логгер
	logger.Init(serviceName, cfg.Debug)
	logger.Info().
		Str("version", "1.0.0").
		Str("backend", cfg.Store.Backend).
		Bool("redis", cfg.Redis.Enabled).
		Msg("Starting Pantry Raffle Backend")

	ctx := context.Background()

	// Инициализируем хранилище
	backend, err := factory.Open(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.Store.Backend).Msg("Failed to open state storage")
	}
	defer backend.Close()

	// Redis опционален: кэш состояния и общий rate limit
	var redisClient *redis.Client
	var cacheService *cache.CacheService
	var limiter ratelimit.Limiter = ratelimit.NewMemoryLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	if cfg.Redis.Enabled {
		redisClient, err = redis.NewClient(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer redisClient.Close()

		cacheService = cache.NewCacheService(redisClient, "raffle")
		limiter = ratelimit.NewRedisLimiter(redisClient, cfg.RateLimit.Requests, cfg.RateLimit.Window)
		logger.Info().Msg("Cache service initialized")
	}

	store := service.NewStateStore(backend.Repo)
	handler := raffleHTTP.NewRaffleHandler(store, cacheService, cfg.Cache.StateTTL)

	// Фоновая очистка старых снапшотов
	var retention *workers.RetentionWorker
	if cfg.Retention.Days > 0 {
		retention = workers.NewRetentionWorker(store, cfg.Retention.Days, cfg.Retention.Interval)
		retention.Start(ctx)
	}

	// Настраиваем Gin
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Добавляем middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.HandleErrors())

	// Настраиваем CORS
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.Server.Origin}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Content-Type", "Accept", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "Retry-After"}
	router.Use(cors.New(corsConfig))

	setupRoutes(router, handler, limiter, backend, redisClient)

	docs.SwaggerInfo.Host = fmt.Sprintf("localhost:%d", cfg.Server.Port)
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	logger.Info().Msg("Routes configured")

	// Создаем HTTP сервер
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Запускаем сервер в горутине
	go func() {
		logger.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Ждем сигнала для graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	if retention != nil {
		retention.Stop()
	}

	logger.Info().Msg("Server exited")
}

func setupRoutes(router *gin.Engine, handler *raffleHTTP.RaffleHandler, limiter ratelimit.Limiter, backend *factory.Backend, redisClient *redis.Client) {
	// Группа API v1
	v1 := router.Group("/api/v1")
	handler.RegisterRoutes(v1, middleware.RateLimit(limiter))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC(),
			"service":   serviceName,
			"backend":   backend.Name,
		})
	})

	// Liveness probe
	router.GET("/live", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	// Readiness probe
	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		// Проверка хранилища
		if err := backend.HealthCheck(ctx); err != nil {
			logger.Warn().Err(err).Msg("Storage is not ready")
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unready",
				"error":  "storage unavailable",
			})
			return
		}

		// Проверка Redis
		if redisClient != nil {
			if err := redisClient.HealthCheck(ctx); err != nil {
				logger.Warn().Err(err).Msg("Redis is not ready")
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status": "unready",
					"error":  "redis unavailable",
				})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "ready",
			"timestamp": time.Now().UTC(),
			"service":   serviceName,
		})
	})
}
