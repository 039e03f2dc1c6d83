// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/core/actor"
	"stockledger/internal/domain/inventory"
	"stockledger/internal/infrastructure/http/v1/handlers"
	"stockledger/internal/infrastructure/http/v1/middleware"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	// Inventory is the stock operations engine.
	Inventory *inventory.Service

	// Pool backs the readiness probe; nil with the in-memory store.
	Pool *postgres.Pool

	// Logger for request logging.
	Logger *logger.Logger
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Order matters: recovery outermost, then logging, then error rendering.
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.Pool)
	health := router.Group("/health")
	{
		health.GET("", healthHandler.Live)
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	base := handlers.NewBaseHandler()
	invHandler := handlers.NewInventoryHandler(base, cfg.Inventory)

	staff := []actor.Role{actor.RoleAdmin, actor.RoleWarehouseStaff}
	reservers := []actor.Role{actor.RoleAdmin, actor.RoleWarehouseStaff, actor.RoleOrderService}

	api := router.Group("/api/inventory")
	api.Use(middleware.Claims())
	{
		api.GET("", middleware.RequireAuthenticated(), invHandler.List)
		api.POST("", middleware.RequireRole(staff...), invHandler.Create)
		api.GET("/movements", middleware.RequireAuthenticated(), invHandler.Movements)

		api.POST("/adjust", middleware.RequireRole(staff...), invHandler.Adjust)
		api.POST("/reserve", middleware.RequireRole(reservers...), invHandler.Reserve)
		api.POST("/release", middleware.RequireRole(reservers...), invHandler.Release)

		product := api.Group("/product/:productId")
		{
			product.GET("", middleware.RequireAuthenticated(), invHandler.Get)
			product.PUT("", middleware.RequireRole(staff...), invHandler.Update)
			product.DELETE("", middleware.RequireRole(actor.RoleAdmin), invHandler.Deactivate)
			product.GET("/reconcile", middleware.RequireRole(actor.RoleAdmin), invHandler.Reconcile)
		}
	}

	return router
}
