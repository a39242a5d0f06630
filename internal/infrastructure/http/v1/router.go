// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"stockcore/internal/core/tx"
	"stockcore/internal/domain/item"
	"stockcore/internal/domain/ledger"
	"stockcore/internal/domain/stockeffect"
	"stockcore/internal/infrastructure/http/v1/handlers"
	"stockcore/internal/infrastructure/http/v1/middleware"
	"stockcore/pkg/logger"
)

// RouterConfig holds the wired services the router exposes.
type RouterConfig struct {
	// TxManager and Pool are injected into every request context so
	// services can open transactions without infrastructure imports.
	TxManager tx.Manager
	Pool      *pgxpool.Pool

	// Logger for request logging
	Logger *logger.Logger

	// Verifier validates bearer tokens and resolves the tenant scope.
	Verifier *middleware.TokenVerifier

	Items        *item.Service
	Stock        *ledger.Service
	Coordinator  *stockeffect.Coordinator
	AuditHistory handlers.AuditHistory
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	// Health endpoint (no auth, no tenant required)
	healthHandler := handlers.NewHealthHandler(cfg.Pool)
	router.GET("/healthz", healthHandler.Healthz)

	// API v1
	api := router.Group("/api/v1")
	api.Use(middleware.Storage(cfg.TxManager, cfg.Pool))
	api.Use(middleware.Auth(cfg.Verifier))

	itemHandler := handlers.NewItemHandler(cfg.Items)
	items := api.Group("/items")
	{
		items.POST("", itemHandler.Create)
		items.GET("", itemHandler.List)
		items.GET("/:id", itemHandler.Get)
		items.PUT("/:id", itemHandler.Update)
		items.DELETE("/:id", itemHandler.Delete)
	}

	stockHandler := handlers.NewStockHandler(cfg.Items, cfg.Stock)
	stock := api.Group("/stock")
	{
		stock.GET("/balance/:itemId", stockHandler.Balance)
		stock.GET("/lots", stockHandler.Lots)
		stock.GET("/movements", stockHandler.Movements)
		stock.GET("/low", stockHandler.Low)
		stock.POST("/opening-balances", stockHandler.LoadOpening)
	}

	effectHandler := handlers.NewEffectHandler(cfg.Coordinator, cfg.AuditHistory)
	effects := api.Group("/stock-effects")
	{
		effects.POST("/apply", effectHandler.Apply)
		effects.POST("/update", effectHandler.Update)
		effects.POST("/remove", effectHandler.Remove)
		effects.POST("/delete", effectHandler.Delete)
		if cfg.AuditHistory != nil {
			effects.GET("/audit/:entityType/:id", effectHandler.History)
		}
	}

	return router
}
