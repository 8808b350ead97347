package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/procuradev/procura-api/api/swagger"
	"github.com/procuradev/procura-api/internal/handler"
	"github.com/procuradev/procura-api/internal/middleware"
	"github.com/procuradev/procura-api/internal/models"
	"github.com/procuradev/procura-api/internal/repository"
	"github.com/procuradev/procura-api/internal/service"
	"github.com/procuradev/procura-api/pkg/cache"
	"github.com/procuradev/procura-api/pkg/config"
	"github.com/procuradev/procura-api/pkg/database"
	appErrors "github.com/procuradev/procura-api/pkg/errors"
	"github.com/procuradev/procura-api/pkg/logger"
	corsmiddleware "github.com/procuradev/procura-api/pkg/middleware/cors"
	reqidmiddleware "github.com/procuradev/procura-api/pkg/middleware/requestid"
	"github.com/procuradev/procura-api/pkg/response"
	"github.com/procuradev/procura-api/pkg/storage"
)

// @title Procura API
// @version 1.0.0
// @description Purchase requisition and attachment backend
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
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close() //nolint:errcheck

	blobs, err := storage.NewLocalBlobStore(cfg.Storage.Dir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init blob store", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Storage.SignedURLSecret, cfg.Storage.SignedURLTTL)

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	requisitionRepo := repository.NewRequisitionRepository(db)
	approvalRepo := repository.NewApprovalRepository(db)
	attachmentRepo := repository.NewAttachmentRepository(db)
	stockRepo := repository.NewStockRepository(db)
	exportRepo := repository.NewExportRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.TTL, logr, cfg.Cache.Enabled)
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
	})
	userSvc := service.NewUserService(userRepo, validate, logr)
	requisitionSvc := service.NewRequisitionService(requisitionRepo, approvalRepo, userRepo, cacheSvc, validate, logr)
	attachmentSvc := service.NewAttachmentService(attachmentRepo, blobs, signer, userRepo, validate, logr,
		cfg.Storage.MaxFileSizeBytes, cfg.Storage.AllowedMIMEs)
	stockSvc := service.NewStockService(stockRepo, validate, logr)

	var exportSvc *service.ExportService
	if cfg.Exports.Enabled {
		exportSvc = service.NewExportService(exportRepo, requisitionRepo, userRepo, blobs, signer, validate, logr,
			cfg.Exports.WorkerConcurrency, cfg.Exports.WorkerRetries)
	}

	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	requisitionHandler := handler.NewRequisitionHandler(requisitionSvc)
	attachmentHandler := handler.NewAttachmentHandler(attachmentSvc)
	stockHandler := handler.NewStockHandler(stockSvc)
	exportHandler := handler.NewExportHandler(exportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.NoRoute(func(c *gin.Context) {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "route not found"))
	})

	r.GET("/health", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)
	r.GET("/files/:key", attachmentHandler.Download)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)

	authed := api.Group("", middleware.JWT(authSvc))
	authed.GET("/auth/me", authHandler.Me)

	authed.POST("/users", middleware.RequireRoles(models.RoleAdmin), userHandler.Create)
	authed.GET("/users", middleware.RequireRoles(models.RoleAdmin, models.RoleManager), userHandler.List)
	authed.GET("/users/:id", middleware.RBAC(string(models.RoleAdmin), string(models.RoleManager), middleware.SelfRole), userHandler.Get)

	authed.POST("/requisitions", requisitionHandler.Create)
	authed.GET("/requisitions", requisitionHandler.List)
	authed.GET("/requisitions/:id", requisitionHandler.Get)
	authed.PATCH("/requisitions/:id/status", requisitionHandler.UpdateStatus)
	authed.POST("/requisitions/:id/approvals",
		middleware.RequireRoles(models.RoleManager, models.RoleAdmin), requisitionHandler.DecideApproval)
	authed.GET("/requisitions/:id/approvals", requisitionHandler.ListApprovals)

	authed.POST("/attachments", attachmentHandler.Upload)
	authed.GET("/attachments", attachmentHandler.ListByRelated)
	authed.GET("/attachments/:id/download-url", attachmentHandler.DownloadURL)
	authed.DELETE("/attachments/:id", attachmentHandler.Delete)

	authed.GET("/stock-items", stockHandler.List)
	authed.GET("/stock-items/:id", stockHandler.Get)
	authed.POST("/stock-items",
		middleware.RequireRoles(models.RoleAdmin, models.RoleManager),
		middleware.Audit(userRepo, models.AuditActionStockCreate, "stock_item"),
		stockHandler.Create)
	authed.PUT("/stock-items/:id",
		middleware.RequireRoles(models.RoleAdmin, models.RoleManager),
		middleware.Audit(userRepo, models.AuditActionStockUpdate, "stock_item"),
		stockHandler.Update)

	authed.POST("/exports", exportHandler.Request)
	authed.GET("/exports/:id", exportHandler.Get)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if exportSvc != nil {
		exportSvc.Start(ctx)
		defer exportSvc.Stop()
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
	if err := srv.Shutdown(context.Background()); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
