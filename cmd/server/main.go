package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/repeatableai/Container-app-workflow-voice-sub001/internal/handler"
	"github.com/repeatableai/Container-app-workflow-voice-sub001/internal/middleware"
	"github.com/repeatableai/Container-app-workflow-voice-sub001/internal/service"
	"github.com/repeatableai/Container-app-workflow-voice-sub001/internal/store"
	"github.com/repeatableai/Container-app-workflow-voice-sub001/internal/urlhealth"
	"github.com/repeatableai/Container-app-workflow-voice-sub001/pkg/config"
	"github.com/repeatableai/Container-app-workflow-voice-sub001/pkg/database"
	"github.com/repeatableai/Container-app-workflow-voice-sub001/pkg/jwtutil"
	"github.com/repeatableai/Container-app-workflow-voice-sub001/pkg/logger"
	"github.com/repeatableai/Container-app-workflow-voice-sub001/prometheus"
)

var version = "dev"

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	if err := logger.InitLogger(cfg); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	log := logger.GetLogger()
	defer log.Sync()
	log.Info("Starting marketplace service...", cfg.LogConfig()...)

	st, closeStore := openStore(cfg, log)
	defer closeStore()
	prometheus.SetInfo(version, cfg.Store.Driver)

	tokens := jwtutil.NewJWTUtil(&cfg.JWT)
	limiter := newRateLimiter(cfg, log)
	if limiter != nil {
		defer limiter.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.URLHealth.Enabled {
		checker := urlhealth.NewChecker(st, cfg.URLHealth.Interval, cfg.URLHealth.Timeout, log.Named("urlhealth"))
		go checker.Run(ctx)
	}

	e := echo.New()
	e.HideBanner = true

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(middleware.RequestIDMiddleware)
	e.Use(logger.Middleware(log))
	e.Use(prometheus.MetricsMiddleware())

	// Public routes
	e.GET("/health", handler.HealthCheck(cfg.ServiceName))
	e.GET("/metrics", handler.MetricsHandler)

	svc := service.New(st)
	limit := middleware.RateLimit(limiter, cfg.RateLimit.PerMinute, time.Minute)

	// Login is public and limited per client address
	handler.NewAuth(svc, tokens).Register(e.Group("/auth"), limit)

	// API routes - all require authentication
	api := e.Group("/api", middleware.Auth(tokens))
	handler.New(svc, cfg.Access.HideForbiddenAsNotFound).Register(api, limit)

	go func() {
		log.Info("Starting server", zap.String("port", cfg.Server.Port))
		if err := e.Start(":" + cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", zap.Error(err))
	}
}

func openStore(cfg *config.Config, log *zap.Logger) (store.Store, func()) {
	if cfg.Store.Driver == config.StoreDriverMemory {
		log.Warn("Using in-memory store; data is lost on restart")
		return store.NewMemory(log.Named("store")), func() {}
	}

	db, err := database.Open(&cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal("Failed to migrate database", zap.Error(err))
	}
	log.Info("Database migration completed")

	return store.NewGorm(db), func() {
		if err := database.Close(db); err != nil {
			log.Error("Failed to close database", zap.Error(err))
		}
	}
}

// newRateLimiter returns nil when rate limiting is disabled
func newRateLimiter(cfg *config.Config, log *zap.Logger) middleware.RateLimiter {
	if cfg.RateLimit.PerMinute <= 0 {
		log.Info("Rate limiting disabled")
		return nil
	}
	if cfg.RateLimit.RedisAddr != "" {
		rl, err := middleware.NewRedisRateLimiter(cfg.RateLimit.RedisAddr, cfg.RateLimit.RedisPassword, cfg.RateLimit.RedisDB, log)
		if err == nil {
			log.Info("Using Redis rate limiter", zap.String("addr", cfg.RateLimit.RedisAddr))
			return rl
		}
		log.Warn("Redis unavailable, falling back to in-memory rate limiter", zap.Error(err))
	}
	return middleware.NewMemoryRateLimiter()
}
