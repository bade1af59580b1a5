package main

import (
	"context"
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

	_ "github.com/netwatch-io/console-api/api/swagger"
	"github.com/netwatch-io/console-api/internal/handler"
	"github.com/netwatch-io/console-api/internal/middleware"
	"github.com/netwatch-io/console-api/internal/models"
	"github.com/netwatch-io/console-api/internal/repository"
	"github.com/netwatch-io/console-api/internal/service"
	"github.com/netwatch-io/console-api/pkg/cache"
	"github.com/netwatch-io/console-api/pkg/config"
	"github.com/netwatch-io/console-api/pkg/database"
	"github.com/netwatch-io/console-api/pkg/jobs"
	"github.com/netwatch-io/console-api/pkg/logger"
	corsmiddleware "github.com/netwatch-io/console-api/pkg/middleware/cors"
	reqidmiddleware "github.com/netwatch-io/console-api/pkg/middleware/requestid"
	"github.com/netwatch-io/console-api/pkg/storage"
)

// @title NetWatch Console API
// @version 1.0.0
// @description Operations console for the capture platform: audit checklists, user administration, status widgets, and report exports.
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, widget caching disabled", "error", err)
		redisClient = nil
	}

	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	auditLogRepo := repository.NewAuditLogRepository(db)
	exportRepo := repository.NewExportRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	validate := validator.New()
	metricsService := service.NewMetricsService()
	cacheService := service.NewCacheService(cacheRepo, metricsService, cfg.Proxy.WidgetCacheTTL, logr, redisClient != nil)

	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "console-api",
	})
	userService := service.NewUserService(userRepo, validate, logr)
	auditService := service.NewAuditService(auditRepo, userRepo, validate, logr)
	auditLogService := service.NewAuditLogService(auditLogRepo, auditService, metricsService, logr)
	proxyService := service.NewProxyService(cacheService, service.ProxyServiceConfig{
		SwarmURL:       cfg.Proxy.SwarmURL,
		ElasticURL:     cfg.Proxy.ElasticURL,
		ArkimeURL:      cfg.Proxy.ArkimeURL,
		NetdataURL:     cfg.Proxy.NetdataURL,
		RegistryURL:    cfg.Proxy.RegistryURL,
		Timeout:        cfg.Proxy.Timeout,
		WidgetCacheTTL: cfg.Proxy.WidgetCacheTTL,
	}, logr)

	var browser *storage.Browser
	if cfg.Files.Enabled {
		browser, err = storage.NewBrowser(cfg.Files.Root)
		if err != nil {
			logr.Sugar().Fatalw("failed to mount file browser root", "root", cfg.Files.Root, "error", err)
		}
	}
	fileService := service.NewFileService(browser, logr)

	var exportService *service.ExportService
	var exportQueue *jobs.Queue
	if cfg.Exports.Enabled {
		exportStorage, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to prepare export storage", "dir", cfg.Exports.StorageDir, "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)

		exportQueue = jobs.NewQueue("exports", func(jobCtx context.Context, job jobs.Job) error {
			return exportService.Handle(jobCtx, job)
		}, jobs.QueueConfig{
			Workers:    cfg.Exports.WorkerConcurrency,
			MaxRetries: cfg.Exports.WorkerRetries,
			Logger:     logr,
		})

		exportService = service.NewExportService(exportRepo, auditLogRepo, exportStorage, exportQueue, signer, userRepo, validate, logr, service.ExportConfig{
			APIPrefix:  cfg.APIPrefix,
			ResultTTL:  cfg.Exports.SignedURLTTL,
			MaxRetries: cfg.Exports.WorkerRetries,
		})

		exportQueue.Start(ctx)
		defer exportQueue.Stop()
		exportService.StartCleanup(ctx, time.Hour)
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	authHandler := handler.NewAuthHandler(authService)
	userHandler := handler.NewUserHandler(userService)
	auditHandler := handler.NewAuditHandler(auditService)
	auditLogHandler := handler.NewAuditLogHandler(auditLogService)
	proxyHandler := handler.NewProxyHandler(proxyService)
	fileHandler := handler.NewFileHandler(fileService)
	metricsHandler := handler.NewMetricsHandler(metricsService)

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)

		session := auth.Group("", middleware.JWT(authService))
		session.POST("/logout", authHandler.Logout)
		session.POST("/change-password", authHandler.ChangePassword)
		session.GET("/me", authHandler.Me)
	}

	protected := api.Group("", middleware.JWT(authService))

	users := protected.Group("/users", middleware.RequireRole(models.RoleAdmin))
	{
		users.GET("", userHandler.List)
		users.POST("", userHandler.Create)
		users.GET("/:id", userHandler.Get)
		users.PUT("/:id", userHandler.Update)
		users.DELETE("/:id", userHandler.Delete)
	}

	audits := protected.Group("/audits")
	{
		audits.GET("/active", middleware.RequireRole(models.RoleUser), auditHandler.GetActive)

		admin := audits.Group("", middleware.RequireRole(models.RoleAdmin))
		admin.GET("", auditHandler.List)
		admin.POST("", auditHandler.Create)
		admin.GET("/:id", auditHandler.Get)
		admin.PUT("/:id", auditHandler.UpdateComment)
		admin.DELETE("/:id", auditHandler.Delete)
		admin.POST("/:id/activate", auditHandler.Activate)
		admin.POST("/:id/groups", auditHandler.CreateGroup)
		admin.PUT("/groups/:groupId", auditHandler.UpdateGroup)
		admin.DELETE("/groups/:groupId", auditHandler.DeleteGroup)
		admin.POST("/groups/:groupId/items", auditHandler.CreateItem)
		admin.PUT("/items/:itemId", auditHandler.UpdateItem)
		admin.DELETE("/items/:itemId", auditHandler.DeleteItem)
	}

	auditLogs := protected.Group("/audit-logs", middleware.RequireRole(models.RoleUser))
	{
		auditLogs.POST("", auditLogHandler.Create)
		auditLogs.GET("/active", auditLogHandler.GetActive)
		auditLogs.GET("/history", auditLogHandler.History)
		auditLogs.GET("/:id", auditLogHandler.Get)
		auditLogs.DELETE("/:id", auditLogHandler.Delete)
		auditLogs.PUT("/:id/description", auditLogHandler.UpdateDescription)
		auditLogs.POST("/:id/lock", auditLogHandler.Lock)
		auditLogs.PUT("/groups/:groupLogId", auditLogHandler.UpdateGroup)
		auditLogs.PUT("/items/:itemLogId", auditLogHandler.UpdateItem)
	}

	reports := protected.Group("/reports", middleware.RequireRole(models.RoleAdmin))
	{
		reports.GET("/audit-logs", auditLogHandler.Report)
	}

	status := protected.Group("/status", middleware.RequireRole(models.RoleGuest))
	{
		status.GET("", proxyHandler.Dashboard)
		status.GET("/api", metricsHandler.Snapshot)
		status.GET("/:source", proxyHandler.Widget)
		status.DELETE("/cache", middleware.RequireRole(models.RoleAdmin), proxyHandler.RefreshCache)
	}

	files := protected.Group("/files", middleware.RequireRole(models.RoleUser))
	{
		files.GET("", fileHandler.List)
		files.GET("/download", fileHandler.Download)
	}

	if cfg.Exports.Enabled {
		exportHandler := handler.NewExportHandler(exportService)

		// Downloads authenticate via the signed token, not a bearer header,
		// so browsers can follow the link directly.
		api.GET("/exports/download/:token", exportHandler.Download)

		exports := protected.Group("/exports", middleware.RequireRole(models.RoleAdmin))
		exports.POST("", exportHandler.Create)
		exports.GET("", exportHandler.List)
		exports.GET("/:id", exportHandler.Status)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
