package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata" // DIARY_TIMEZONE в контейнере без системной базы зон

	"storyteller-server/internal/ai"
	"storyteller-server/internal/config"
	"storyteller-server/internal/handler"
	"storyteller-server/internal/messaging"
	"storyteller-server/internal/projection"
	"storyteller-server/internal/repository"
	"storyteller-server/internal/service"
	sharedLogger "storyteller-server/shared/logger"
	sharedMiddleware "storyteller-server/shared/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadConfig(".env")
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := sharedLogger.New(sharedLogger.Config{
		Level:    cfg.LogLevel,
		Encoding: cfg.LogEncoding,
		Service:  "storyteller",
		// В development включаем caller и стектрейсы
		Development: cfg.Env == "development",
	})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)
	logger.Info("Logger initialized", zap.String("logLevel", cfg.LogLevel), zap.String("env", cfg.Env))

	// --- External Connections ---
	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	store, closeStore, err := repository.OpenStoryStore(initCtx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open story store", zap.String("backend", cfg.StoreBackend), zap.Error(err))
	}
	defer closeStore()
	logger.Info("Story store ready", zap.String("backend", cfg.StoreBackend))

	var aiClient ai.Client
	if cfg.AIConfigured() {
		aiClient, err = ai.NewClient(context.Background(), cfg, logger)
		if err != nil {
			logger.Fatal("Failed to create AI client", zap.Error(err))
		}
	} else {
		logger.Warn("AI provider not configured, /api/gemini will answer with an error",
			zap.String("provider", cfg.AIClientType))
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient, err = setupRedis(initCtx, cfg, logger)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
	}

	// --- Dependency Injection ---
	location, err := cfg.Location()
	if err != nil {
		logger.Fatal("Invalid diary time zone", zap.Error(err))
	}
	projector := projection.New(projection.Options{
		Location:            location,
		RemoteImagePrefixes: cfg.GetRemoteImagePrefixes(),
	})
	aggregator := service.NewPlanetAggregator(store, projector, cfg.AggregatorConcurrency, logger)
	promptService := service.NewPromptService(aiClient, cfg.AIMaxRPS, logger)

	// nil *redis.Client нельзя класть в интерфейс: limiter решит, что Redis есть
	var limiterRedis redis.UniversalClient
	if redisClient != nil {
		limiterRedis = redisClient
	}
	promptLimiter := handler.NewPromptRateLimiter(limiterRedis, cfg.PromptRateLimit, cfg.PromptRateWindow, logger)
	storyHandler := handler.NewStoryHandler(aggregator, store, promptService, cfg.GetAllowedOrigins(), logger)

	// --- HTTP Server Setup (Gin) ---
	gin.SetMode(gin.ReleaseMode)
	if cfg.Env == "development" {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.RedirectTrailingSlash = true
	router.Use(sharedMiddleware.GinZapLogger(logger))
	router.Use(gin.Recovery())

	p := ginprometheus.NewPrometheus("gin")

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.GetAllowedOrigins()
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowOrigins = []string{"http://localhost:3000"}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", sharedMiddleware.RequestIDHeader}
	corsConfig.ExposeHeaders = []string{sharedMiddleware.RequestIDHeader}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	storyHandler.RegisterRoutes(router, promptLimiter)
	p.Use(router)

	// --- Start Background Workers ---
	aggregator.Start()

	var refreshConsumer *messaging.RefreshConsumer
	if cfg.RabbitMQURL != "" {
		mqConn, err := messaging.Connect(initCtx, cfg.RabbitMQURL, 5, 3*time.Second, logger)
		if err != nil {
			logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
		defer mqConn.Close()

		refreshConsumer, err = messaging.NewRefreshConsumer(mqConn, cfg.RefreshExchange, aggregator, logger)
		if err != nil {
			logger.Fatal("Failed to create RefreshConsumer", zap.Error(err))
		}
		if err := refreshConsumer.StartConsuming(); err != nil {
			logger.Fatal("Failed to start RefreshConsumer", zap.Error(err))
		}
	}

	// --- Start HTTP Server ---
	srv := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// Ответ /api/gemini ждет модель, поэтому запас сверх AI_TIMEOUT
		WriteTimeout: cfg.AITimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP Server listen error", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	if refreshConsumer != nil {
		refreshConsumer.Stop()
	}

	// Закрываем агрегатор раньше HTTP сервера: WebSocket соединения получат close
	aggregator.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exiting")
}

// setupRedis подключается к Redis с повторами.
func setupRedis(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*redis.Client, error) {
	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	const maxRetries = 5
	retryDelay := 2 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		client := redis.NewClient(opts)
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.Ping(pingCtx).Err()
		pingCancel()
		if err == nil {
			logger.Info("Connected to Redis", zap.String("address", opts.Addr), zap.Int("attempt", attempt))
			return client, nil
		}
		_ = client.Close()
		lastErr = fmt.Errorf("unable to ping redis (attempt %d/%d): %w", attempt, maxRetries, err)
		logger.Warn("Redis connection failed, retrying...", zap.Error(lastErr))

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("redis connect canceled: %w", ctx.Err())
		case <-time.After(retryDelay):
		}
	}
	return nil, lastErr
}
