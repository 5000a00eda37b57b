package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-gradebook-api/api/swagger"
	"github.com/noah-isme/sma-gradebook-api/internal/handler"
	internalmiddleware "github.com/noah-isme/sma-gradebook-api/internal/middleware"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
	"github.com/noah-isme/sma-gradebook-api/internal/repository"
	"github.com/noah-isme/sma-gradebook-api/internal/service"
	"github.com/noah-isme/sma-gradebook-api/pkg/cache"
	"github.com/noah-isme/sma-gradebook-api/pkg/config"
	"github.com/noah-isme/sma-gradebook-api/pkg/database"
	"github.com/noah-isme/sma-gradebook-api/pkg/jobs"
	"github.com/noah-isme/sma-gradebook-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-gradebook-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-gradebook-api/pkg/middleware/requestid"
)

// @title SMA Gradebook API
// @version 1.0.0
// @description Configurable grading, score entry and annual promotion summaries
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect database", "error", err)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		logr.Sugar().Fatalw("failed to migrate database", "error", err)
	}

	readiness := map[string]handler.ReadinessCheck{
		"database": db.PingContext,
	}

	var cacheRepo service.CacheRepository
	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	switch {
	case err == nil:
		redisRepo := repository.NewCacheRepository(redisClient, logr)
		defer redisRepo.Close() //nolint:errcheck
		cacheRepo = redisRepo
		readiness["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	case errors.Is(err, cache.ErrDisabled):
		logr.Info("redis disabled, memoising summaries in process")
		cacheRepo = repository.NewMemoryCacheRepository(cfg.Summary.CacheTTL, 0)
	default:
		logr.Warn("redis unavailable, memoising summaries in process", zap.Error(err))
		cacheRepo = repository.NewMemoryCacheRepository(cfg.Summary.CacheTTL, 0)
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Summary.CacheTTL, logr, cfg.Summary.CacheEnabled)
	tokenSvc := service.NewTokenService(cfg.JWT.Secret, cfg.JWT.Issuer)

	configRepo := repository.NewGradingConfigRepository(db)
	scoreRepo := repository.NewScoreRepository(db)

	configSvc := service.NewGradingConfigService(configRepo, cacheSvc, nil, metricsSvc, validate, logr)
	scoreSvc := service.NewScoreService(scoreRepo, configSvc, cacheSvc, metricsSvc, validate, logr)
	summarySvc := service.NewSummaryService(configSvc, scoreSvc, scoreRepo, cacheSvc, metricsSvc, logr)
	exportSvc := service.NewExportService(configSvc, summarySvc, service.ExportConfig{Enabled: cfg.Exports.Enabled}, logr, nil, nil)

	recomputeSvc := service.NewRecomputeService(scoreRepo, summarySvc, metricsSvc, logr)
	queue := jobs.NewQueue("recompute", recomputeSvc.Handle, jobs.QueueConfig{
		Workers:    cfg.Recompute.Workers,
		MaxRetries: cfg.Recompute.Retries,
		Logger:     logr,
	})
	queue.Start(ctx)
	defer queue.Stop()
	recomputeSvc.AttachQueue(queue)
	configSvc.SetRecomputeScheduler(recomputeSvc)

	configHandler := handler.NewGradingConfigHandler(configSvc)
	scoreHandler := handler.NewScoreHandler(scoreSvc)
	summaryHandler := handler.NewSummaryHandler(summarySvc, exportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, readiness)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	admin := string(models.RoleAdmin)
	teacher := string(models.RoleTeacher)

	api := r.Group(cfg.APIPrefix)
	secured := api.Group("")
	secured.Use(internalmiddleware.JWT(tokenSvc))

	gradingConfig := secured.Group("/grading-config")
	gradingConfig.GET("", internalmiddleware.RBAC(admin, teacher), configHandler.Get)
	gradingConfig.PUT("", internalmiddleware.RBAC(admin), configHandler.Update)
	gradingConfig.GET("/history", internalmiddleware.RBAC(admin), configHandler.History)
	gradingConfig.POST("/formula/check", internalmiddleware.RBAC(admin), configHandler.CheckFormula)

	students := secured.Group("/students/:id")
	students.GET("/scores", internalmiddleware.RBAC(admin, teacher, internalmiddleware.Self), scoreHandler.List)
	students.PUT("/scores/:periodId", internalmiddleware.RBAC(admin, teacher), scoreHandler.Write)
	students.GET("/periods/:periodId/fields", internalmiddleware.RBAC(admin, teacher), scoreHandler.Fields)
	students.GET("/summary", internalmiddleware.RBAC(admin, teacher, internalmiddleware.Self), summaryHandler.Get)

	summaries := secured.Group("/summaries")
	summaries.GET("", internalmiddleware.RBAC(admin, teacher), summaryHandler.List)
	summaries.GET("/export", internalmiddleware.RBAC(admin), summaryHandler.Export)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
