package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lgu-eportal/rptpay/internal/cache"
	"github.com/lgu-eportal/rptpay/internal/config"
	"github.com/lgu-eportal/rptpay/internal/database"
	"github.com/lgu-eportal/rptpay/internal/handlers"
	"github.com/lgu-eportal/rptpay/internal/logger"
	"github.com/lgu-eportal/rptpay/internal/middleware"
	"github.com/lgu-eportal/rptpay/internal/notify"
	"github.com/lgu-eportal/rptpay/internal/repository"
	"github.com/lgu-eportal/rptpay/internal/services"
)

const (
	shutdownTimeout = 30 * time.Second
)

func main() {
	// Load configuration from environment variables
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	log := logger.New(cfg.Server.Env)
	log.Info("Starting RPT payment API", map[string]interface{}{
		"version":     handlers.APIVersion,
		"environment": cfg.Server.Env,
		"port":        cfg.Server.Port,
	})

	// Background work stops when the server shuts down
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Create database connection pool
	db, err := database.NewPostgresPool(ctx, cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", err, map[string]interface{}{
			"host": cfg.Database.Host,
			"port": cfg.Database.Port,
			"name": cfg.Database.Name,
		})
	}
	defer db.Close()

	log.Info("Database connection established", map[string]interface{}{
		"host":     cfg.Database.Host,
		"port":     cfg.Database.Port,
		"database": cfg.Database.Name,
		"pool_min": cfg.Database.PoolMin,
		"pool_max": cfg.Database.PoolMax,
	})

	if cfg.Database.AutoMigrate {
		applied, err := db.Migrate(ctx)
		if err != nil {
			log.Fatal("Failed to apply migrations", err, nil)
		}
		log.Info("Migrations applied", map[string]interface{}{
			"applied": applied,
		})
	}

	healthHandler := handlers.NewHealthHandler(cfg.Server.Env).AddCheck("database", db)

	// Session store and status cache
	var (
		sessions cache.SessionStore
		status   cache.StatusCache
	)
	if cfg.Redis.Enabled {
		rdb := cache.NewRedisClient(cfg.Redis)
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Error("Failed to close redis client", err, nil)
			}
		}()

		pinger := cache.RedisPinger{Client: rdb}
		pingCtx, cancel := context.WithTimeout(ctx, handlers.HealthCheckTimeout)
		err := pinger.Ping(pingCtx)
		cancel()
		if err != nil {
			log.Fatal("Failed to connect to redis", err, map[string]interface{}{
				"host": cfg.Redis.Host,
				"port": cfg.Redis.Port,
			})
		}

		sessions = cache.NewRedisSessionStore(rdb)
		status = cache.NewRedisStatusCache(rdb, cfg.Verification.StatusCacheTTL)
		healthHandler.AddCheck("redis", pinger)
		log.Info("Redis connection established", map[string]interface{}{
			"host": cfg.Redis.Host,
			"port": cfg.Redis.Port,
			"db":   cfg.Redis.DB,
		})
	} else {
		sessions = cache.NewMemorySessionStore()
		status = cache.NewMemoryStatusCache(cfg.Verification.StatusCacheTTL)
		log.Warn("Redis disabled, using in-memory session store", nil)
	}

	// Verification code delivery
	notifier, err := notify.New(ctx, cfg.Notify, log)
	if err != nil {
		log.Fatal("Failed to configure notification channels", err, map[string]interface{}{
			"channels": cfg.Notify.Channels,
		})
	}

	// Setup Gin router
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware in order: RequestID -> Session -> Logger -> Recovery -> CORS
	router.Use(middleware.RequestID())
	router.Use(middleware.Session(cfg.Session))
	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.CORS(cfg.CORS.Origins))

	// Register health check routes
	router.GET("/health", healthHandler.Health)
	router.GET("/health/ready", healthHandler.Ready)
	router.GET("/api/v1/info", healthHandler.Info)

	// Initialize repository and service layers
	quarterRepo := repository.NewQuarterRepository(db)
	paymentService := services.NewPaymentService(
		quarterRepo,
		sessions,
		status,
		notifier,
		log,
		services.OptionsFromConfig(cfg.Verification, cfg.Session),
	)

	// Initialize handlers
	paymentHandler := handlers.NewPaymentHandler(paymentService)

	// Code submissions are rate limited per client IP
	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	go limiter.Run(ctx)

	// Register API v1 routes
	v1 := router.Group("/api/v1")
	{
		assessments := v1.Group("/assessments/:assessmentId")
		{
			assessments.GET("/payment", paymentHandler.GetPayment)
			assessments.POST("/payment", limiter.Middleware(), paymentHandler.PostPayment)
			assessments.GET("/payment/status", paymentHandler.GetStatus)
		}
		v1.GET("/payments/success", paymentHandler.GetSuccess)
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server listening", map[string]interface{}{
			"port": cfg.Server.Port,
			"addr": srv.Addr,
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed to start", err, nil)
		}
	}()

	// Wait for interrupt signal (SIGINT or SIGTERM)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Graceful shutdown
	log.Info("Shutting down server...", nil)
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", err, map[string]interface{}{
			"timeout": shutdownTimeout.String(),
		})
	}

	log.Info("Server exited", nil)
}
