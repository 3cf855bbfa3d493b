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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/pbcdev/attend-sync/api/swagger"
	"github.com/pbcdev/attend-sync/internal/handler"
	"github.com/pbcdev/attend-sync/internal/middleware"
	"github.com/pbcdev/attend-sync/internal/models"
	"github.com/pbcdev/attend-sync/internal/populi"
	"github.com/pbcdev/attend-sync/internal/repository"
	"github.com/pbcdev/attend-sync/internal/service"
	"github.com/pbcdev/attend-sync/pkg/cache"
	"github.com/pbcdev/attend-sync/pkg/config"
	"github.com/pbcdev/attend-sync/pkg/database"
	"github.com/pbcdev/attend-sync/pkg/jobs"
	"github.com/pbcdev/attend-sync/pkg/logger"
	corsmiddleware "github.com/pbcdev/attend-sync/pkg/middleware/cors"
	reqidmiddleware "github.com/pbcdev/attend-sync/pkg/middleware/requestid"
)

// @title Attend Sync API
// @version 1.0.0
// @description Populi attendance synchronization and review gateway
// @BasePath /
// @schemes http

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect redis", "error", err)
	}
	defer redisClient.Close()

	// Populi access
	resolver := populi.NewResolver(cfg.Populi)
	populiClient := populi.NewClient(resolver, cfg.Populi, logr, nil)

	// Repositories
	recordRepo := repository.NewRecordRepository(db)
	linkRepo := repository.NewLinkRepository(db)
	reviewerRepo := repository.NewReviewerRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Services
	metricsSvc := service.NewMetricsService()
	activityLog := service.NewActivityLog(logr)
	linkSvc := service.NewLinkService(linkRepo, cacheRepo, populiClient, cfg.Linking, activityLog, metricsSvc, logr)
	syncSvc := service.NewSyncService(recordRepo, populiClient, linkSvc, resolver, cacheRepo, cfg.Sync, activityLog, metricsSvc, logr)
	reverseSvc := service.NewReverseSyncService(populiClient, activityLog, metricsSvc, logr)
	reviewSvc := service.NewReviewService(recordRepo, linkRepo, reverseSvc, activityLog, logr)
	exportSvc := service.NewExportService(recordRepo, cfg.Export, logr)
	authSvc := service.NewAuthService(reviewerRepo, cfg.JWT, logr)

	// Background workers
	linkQueue := jobs.NewQueue("bulk-link", linkSvc.HandleBatchJob, jobs.QueueConfig{
		Workers:    cfg.Linking.BatchWorkers,
		BufferSize: 256,
		Logger:     logr,
	})
	linkQueue.Start(ctx)
	defer linkQueue.Stop()

	go directoryRefreshLoop(ctx, linkSvc, cfg.Linking.DirectoryTTL, logr)

	// Handlers
	authHandler := handler.NewAuthHandler(authSvc)
	syncHandler := handler.NewSyncHandler(syncSvc, linkSvc, linkQueue)
	ssoHandler := handler.NewSSOHandler(linkSvc, syncSvc)
	recordHandler := handler.NewRecordHandler(recordRepo, reviewSvc, exportSvc)
	activityHandler := handler.NewActivityHandler(activityLog)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		api.POST("/auth/login", authHandler.Login)

		triggers := api.Group("/triggers")
		{
			triggers.POST("/login", syncHandler.Login)
			triggers.POST("/page-view", syncHandler.PageView)
			triggers.POST("/sso", ssoHandler.Login)
			triggers.POST("/bulk-link", syncHandler.BulkLink)
		}

		protected := api.Group("")
		protected.Use(middleware.JWT(authSvc))
		{
			protected.GET("/auth/me", authHandler.Me)
			protected.GET("/activity", activityHandler.List)

			protected.GET("/records", recordHandler.List)
			protected.GET("/records/export", recordHandler.Export)
			protected.GET("/records/:id", recordHandler.Get)
			protected.POST("/records/:id/note", recordHandler.SubmitNote)
			protected.POST("/records/:id/review",
				middleware.RequireRoles(models.RoleAdmin, models.RoleReviewer), recordHandler.Decide)

			admin := protected.Group("/triggers")
			admin.Use(middleware.RequireRoles(models.RoleAdmin))
			{
				admin.POST("/manual-sync", syncHandler.ManualSync)
				admin.POST("/directory-refresh", syncHandler.DirectoryRefresh)
			}
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Errorw("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("shutdown failed", "error", err)
	}
}

// directoryRefreshLoop rebuilds the student directory cache before it expires
// so email-based linking rarely pays the full directory walk.
func directoryRefreshLoop(ctx context.Context, links *service.LinkService, ttl time.Duration, logr *zap.Logger) {
	interval := ttl - time.Hour
	if interval <= 0 {
		interval = ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := links.RefreshDirectoryCache(ctx); err != nil {
				logr.Warn("scheduled directory refresh failed", zap.Error(err))
			}
		}
	}
}
