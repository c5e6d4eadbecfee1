// Package routes defines the HTTP routes for the message warehouse.
package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/unifiedui/message-warehouse/internal/api/handlers"
	"github.com/unifiedui/message-warehouse/internal/api/middleware"
)

// Config holds the dependencies for setting up routes.
type Config struct {
	HealthHandler      *handlers.HealthHandler
	MessagesHandler    *handlers.MessagesHandler
	CollectionsHandler *handlers.CollectionsHandler
	EventsHandler      *handlers.EventsHandler

	// MetricsPath and MetricsHandler expose Prometheus metrics when both are set.
	MetricsPath    string
	MetricsHandler http.Handler
}

// Setup configures all routes on the Gin engine.
func Setup(r *gin.Engine, cfg *Config) {
	// API v1 routes - all routes under /api/v1/warehouse
	v1 := r.Group("/api/v1/warehouse")
	{
		v1.GET("/health", cfg.HealthHandler.Health)
		v1.GET("/ready", cfg.HealthHandler.Ready)
		v1.GET("/live", cfg.HealthHandler.Live)

		databases := v1.Group("/databases/:database")
		{
			databases.GET("/collections", cfg.CollectionsHandler.ListCollections)

			collection := databases.Group("/collections/:collection")
			{
				collection.GET("/count", cfg.CollectionsHandler.Count)
				collection.GET("/schema", cfg.CollectionsHandler.Schema)
				collection.POST("/indexes", cfg.CollectionsHandler.EnsureIndex)
				collection.GET("/events", cfg.EventsHandler.StreamInserts)

				messages := collection.Group("/messages")
				{
					messages.POST("", cfg.MessagesHandler.InsertMessage)
					messages.POST("/query", cfg.MessagesHandler.QueryMessages)
					messages.POST("/find-one", cfg.MessagesHandler.FindMessage)
					messages.POST("/remove", cfg.MessagesHandler.RemoveMessages)
					messages.PATCH("/metadata", cfg.MessagesHandler.ModifyMetadata)
				}
			}
		}
	}

	if cfg.MetricsPath != "" && cfg.MetricsHandler != nil {
		r.GET(cfg.MetricsPath, gin.WrapH(cfg.MetricsHandler))
	}

	r.NoRoute(middleware.NotFound())
	r.NoMethod(middleware.MethodNotAllowed())
}

// SetupWithMiddleware sets up routes with common middleware.
func SetupWithMiddleware(r *gin.Engine, cfg *Config, loggingMw *middleware.LoggingMiddleware, errorMw *middleware.ErrorMiddleware, cors gin.HandlerFunc) {
	// Apply global middleware
	r.Use(loggingMw.RequestLogger())
	r.Use(loggingMw.Logger())
	r.Use(errorMw.Recovery())
	if cors != nil {
		r.Use(cors)
	}

	Setup(r, cfg)
}
