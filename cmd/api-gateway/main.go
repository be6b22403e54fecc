package main

import (
	"context"
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/hse-dms-api/api/swagger"
	"github.com/noah-isme/hse-dms-api/internal/esign"
	"github.com/noah-isme/hse-dms-api/internal/handler"
	"github.com/noah-isme/hse-dms-api/internal/middleware"
	"github.com/noah-isme/hse-dms-api/internal/models"
	"github.com/noah-isme/hse-dms-api/internal/repository"
	"github.com/noah-isme/hse-dms-api/internal/service"
	"github.com/noah-isme/hse-dms-api/pkg/cache"
	"github.com/noah-isme/hse-dms-api/pkg/config"
	"github.com/noah-isme/hse-dms-api/pkg/database"
	"github.com/noah-isme/hse-dms-api/pkg/jobs"
	"github.com/noah-isme/hse-dms-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/hse-dms-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/hse-dms-api/pkg/middleware/requestid"
	"github.com/noah-isme/hse-dms-api/pkg/storage"
)

// @title HSE Document Management API
// @version 1.0.0
// @description Document lifecycle and multi-step approval workflow engine
// @BasePath /api/v1
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	files, err := storage.NewLocalStorage(cfg.Documents.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare document storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Documents.SignedURLSecret, cfg.Documents.SignedURLTTL)

	validate := validator.New()
	metricsService := service.NewMetricsService()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	workflowRepo := repository.NewWorkflowRepository(db)
	distributionRepo := repository.NewDistributionRepository(db)
	esignRepo := repository.NewEsignRepository(db)
	changeRequestRepo := repository.NewChangeRequestRepository(db)
	employeeRepo := repository.NewEmployeeRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	// Background notification fan-out.
	notifier := service.NewLogNotifier(logr)
	dispatcher := service.NewNotificationDispatcher(notifier, jobs.QueueConfig{
		Workers:    cfg.Notifier.Workers,
		BufferSize: cfg.Notifier.BufferSize,
		MaxRetries: cfg.Notifier.MaxRetries,
		RetryDelay: cfg.Notifier.RetryDelay,
		Logger:     logr,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	// Services.
	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "hse-dms-api",
	})
	registryService := service.NewRegistryService(documentRepo, userRepo, validate, logr)
	workflowService := service.NewWorkflowService(workflowRepo, documentRepo, employeeRepo, userRepo, validate, logr,
		service.WithInboxCache(cacheRepo, cfg.Workflow.InboxCacheTTL),
		service.WithWorkflowMetrics(metricsService),
		service.WithNotificationSink(dispatcher),
	)
	provider := esign.NewHTTPProvider(esign.HTTPProviderConfig{
		BaseURL:     cfg.Esign.ProviderBaseURL,
		APIKey:      cfg.Esign.APIKey,
		CallbackURL: cfg.Esign.CallbackURL,
		Timeout:     cfg.Esign.Timeout,
	}, logr)
	esignService := service.NewEsignService(esignRepo, documentRepo, provider, userRepo, metricsService, validate, logr, cfg.Esign.MaxRetries)
	distributionService := service.NewDistributionService(distributionRepo, documentRepo, dispatcher, userRepo, metricsService, validate, logr)
	changeRequestService := service.NewChangeRequestService(changeRequestRepo, documentRepo, registryService, userRepo, validate, logr)

	sweeper := service.NewDeadlineSweeper(distributionService, cfg.Distribution.SweepInterval, cfg.Distribution.SweepLimit, logr)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	// Handlers.
	authHandler := handler.NewAuthHandler(authService)
	documentHandler := handler.NewDocumentHandler(registryService, signer, files)
	workflowHandler := handler.NewWorkflowHandler(workflowService)
	esignHandler := handler.NewEsignHandler(esignService, cfg.Esign.CallbackSecret)
	distributionHandler := handler.NewDistributionHandler(distributionService)
	changeRequestHandler := handler.NewChangeRequestHandler(changeRequestService)
	metricsHandler := handler.NewMetricsHandler(metricsService)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

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
		auth.POST("/logout", middleware.JWT(authService), authHandler.Logout)
		auth.POST("/change-password", middleware.JWT(authService), authHandler.ChangePassword)
		auth.GET("/me", middleware.JWT(authService), authHandler.Me)
	}

	// Provider webhook, authenticated by shared secret instead of JWT.
	api.POST("/esign/callback", esignHandler.Callback)

	authed := api.Group("", middleware.JWT(authService))
	{
		docControl := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleDocControl)

		documents := authed.Group("/documents")
		{
			documents.POST("", docControl, documentHandler.Create)
			documents.GET("", documentHandler.List)
			documents.GET("/:id", documentHandler.Get)
			documents.GET("/:id/versions", documentHandler.ListVersions)
			documents.POST("/:id/versions", docControl, documentHandler.CreateVersion)
			documents.GET("/:id/versions/:versionId/download-link", documentHandler.DownloadLink)
			documents.POST("/:id/publish", docControl, documentHandler.Publish)
			documents.POST("/:id/archive", docControl, documentHandler.Archive)
			documents.POST("/:id/dispose", docControl, documentHandler.Dispose)
			documents.GET("/:id/disposals", documentHandler.ListDisposalRecords)

			documents.POST("/:id/submit", docControl, workflowHandler.Submit)
			documents.GET("/:id/workflows", workflowHandler.History)

			documents.POST("/:id/esign", docControl, esignHandler.RequestSignature)
			documents.GET("/:id/esign", esignHandler.ListByDocument)

			documents.POST("/:id/distribute", docControl, distributionHandler.Distribute)
			documents.GET("/:id/distributions", docControl, distributionHandler.ListByDocument)
			documents.GET("/:id/compliance", docControl, distributionHandler.Compliance)
			documents.GET("/:id/compliance/export", docControl, distributionHandler.ExportCompliance)

			documents.POST("/:id/change-requests", changeRequestHandler.Create)
		}

		approvals := authed.Group("/approvals")
		{
			approvals.GET("/inbox", workflowHandler.Inbox)
			approvals.POST("/:assigneeId/decide", workflowHandler.Decide)
			approvals.POST("/steps/:stepId/assignees", docControl, workflowHandler.AddAssignee)
		}

		authed.POST("/esign/:requestId/retry", docControl, esignHandler.Retry)

		distributions := authed.Group("/distributions")
		{
			distributions.POST("/:distributionId/read", distributionHandler.MarkRead)
			distributions.POST("/:distributionId/acknowledge", distributionHandler.Acknowledge)
		}

		changeRequests := authed.Group("/change-requests")
		{
			changeRequests.GET("", changeRequestHandler.List)
			changeRequests.GET("/:requestId", changeRequestHandler.Get)
			changeRequests.POST("/:requestId/resolve", docControl, changeRequestHandler.Resolve)
		}

		authed.GET("/files/download", middleware.Audit(userRepo, models.AuditActionDownload, "file"), documentHandler.Download)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
