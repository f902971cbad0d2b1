package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/room-access-api/internal/handler"
	"github.com/noah-isme/room-access-api/internal/middleware"
	"github.com/noah-isme/room-access-api/internal/models"
	"github.com/noah-isme/room-access-api/pkg/config"
	"github.com/noah-isme/room-access-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/room-access-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/room-access-api/pkg/middleware/requestid"
)

func newRouter(cfg *config.Config, app *application, logr *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(app.metrics))

	metricsHandler := handler.NewMetricsHandler(app.metrics.Handler(), app.readinessChecks())
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	authHandler := handler.NewAuthHandler(app.auth)
	commonHandler := handler.NewCommonHandler(app.rooms)
	roomHandler := handler.NewRoomHandler(app.rooms)
	accessHandler := handler.NewAccessHandler(app.access, app.records, app.exporter)
	approvalHandler := handler.NewApprovalHandler(app.access)
	gateHandler := handler.NewGateHandler(app.records, app.issuer)

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.WithResponseMeta(), middleware.AuditContext())
	api.POST("/auth/login", authHandler.Login)

	secured := api.Group("")
	secured.Use(middleware.JWT(app.auth))

	staff := middleware.RequireRoles(models.RoleManager, models.RoleApplicant)
	managers := middleware.RequireRoles(models.RoleManager)
	devices := middleware.RequireRoles(models.RoleDevice)

	common := secured.Group("/common", staff)
	common.GET("/regions", commonHandler.Regions)
	common.GET("/centers", commonHandler.Centers)

	rooms := secured.Group("/rooms")
	rooms.GET("", staff, roomHandler.List)
	rooms.GET("/managers", managers, roomHandler.Candidates)
	rooms.GET("/:id", staff, roomHandler.Get)
	rooms.GET("/:id/managers", staff, roomHandler.Managers)
	rooms.POST("", managers, roomHandler.Create)
	rooms.PUT("/:id", managers, roomHandler.Update)
	rooms.DELETE("/:id", managers, roomHandler.Delete)

	access := secured.Group("/access", staff)
	access.POST("", accessHandler.Submit)
	access.GET("", accessHandler.List)
	access.GET("/records", accessHandler.Records)
	access.GET("/records/export", accessHandler.Export)
	access.GET("/:id", accessHandler.Get)
	access.POST("/:id/cancel", accessHandler.Cancel)

	approvals := secured.Group("/approvals")
	approvals.GET("/pending", managers, approvalHandler.Pending)
	approvals.POST("/process", managers, approvalHandler.Process)
	approvals.GET("/results", staff, approvalHandler.Results)

	secured.POST("/gate/entries", devices, gateHandler.Entry)
	secured.GET("/codes/:code/validate", middleware.RequireRoles(models.RoleDevice, models.RoleManager), gateHandler.Validate)

	return r
}
