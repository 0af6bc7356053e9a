package app

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"fare/internal/handler"
	"fare/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	QuoteHandler      *handler.QuoteHandler
	SurgeHandler      *handler.SurgeHandler
	OverrideHandler   *handler.OverrideHandler
	SimulationHandler *handler.SimulationHandler
	RedisClient       *redis.Client
	NewRelicApp       *newrelic.Application
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORSMiddleware())

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	router.Use(middleware.IdempotencyMiddleware(deps.RedisClient))

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// API v1 routes.
	v1 := router.Group("/v1")
	{
		// Quote routes.
		v1.POST("/quotes", deps.QuoteHandler.CreateQuote)

		// Surge routes.
		surge := v1.Group("/surge")
		{
			surge.GET("", deps.SurgeHandler.Heatmap)
			surge.GET("/:cell_id", deps.SurgeHandler.GetCell)
		}

		// Activity signals feeding the surge computation.
		v1.POST("/drivers/:id/location", deps.SurgeHandler.UpdateDriverLocation)
		v1.POST("/demand", deps.SurgeHandler.RecordDemand)

		// Override routes.
		overrides := v1.Group("/overrides")
		{
			overrides.POST("", deps.OverrideHandler.CreateOverride)
			overrides.GET("", deps.OverrideHandler.ListOverrides)
			overrides.GET("/dashboard", deps.OverrideHandler.Dashboard)
			overrides.GET("/:id", deps.OverrideHandler.GetOverride)
			overrides.POST("/:id/revoke", deps.OverrideHandler.RevokeOverride)
		}

		// Simulation routes.
		simulations := v1.Group("/simulations")
		{
			simulations.POST("", deps.SimulationHandler.StartSimulation)
			simulations.GET("", deps.SimulationHandler.ListSimulations)
			simulations.GET("/:id", deps.SimulationHandler.GetSimulation)
			simulations.POST("/:id/cancel", deps.SimulationHandler.CancelSimulation)
		}
	}

	return router
}
