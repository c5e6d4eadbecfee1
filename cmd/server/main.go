// Package main is the entry point for the Message Warehouse service.
// @title Message Warehouse API
// @version 1.0
// @description Stores typed messages with queryable metadata in MongoDB and announces every insert

// @contact.name API Support
// @contact.url https://github.com/unifiedui/message-warehouse

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http https
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/unifiedui/message-warehouse/docs"
	"github.com/unifiedui/message-warehouse/internal/api/handlers"
	"github.com/unifiedui/message-warehouse/internal/api/middleware"
	"github.com/unifiedui/message-warehouse/internal/api/routes"
	"github.com/unifiedui/message-warehouse/internal/config"
	"github.com/unifiedui/message-warehouse/internal/core/docdb"
	"github.com/unifiedui/message-warehouse/internal/core/notify"
	"github.com/unifiedui/message-warehouse/internal/infrastructure/docdb/mongodb"
	redisnotify "github.com/unifiedui/message-warehouse/internal/infrastructure/notify/redis"
	"github.com/unifiedui/message-warehouse/internal/pkg/logger"
	"github.com/unifiedui/message-warehouse/internal/pkg/metrics"
	"github.com/unifiedui/message-warehouse/internal/services/collections"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		bootLogger := logger.New(logger.Config{}, "message-warehouse")
		bootLogger.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.Setup(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	}, "message-warehouse")

	ctx := context.Background()

	// Initialize document db client using factory pattern
	docDBClient, err := createDocDBClient(ctx, cfg.Warehouse)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize document db client")
	}
	defer docDBClient.Close(context.Background())

	// Initialize notification publisher using factory pattern
	publisher, err := createPublisher(cfg.Notify)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize notification publisher")
	}
	defer publisher.Close()

	// Metrics registry
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	registry, err := collections.NewRegistry(&collections.Config{
		Client:    docDBClient,
		Publisher: publisher,
		Metrics:   metrics.New(reg),
		Logger:    &log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize collection registry")
	}
	defer registry.Close(context.Background())

	// Set Gin mode
	gin.SetMode(cfg.Server.GinMode)

	// Setup router
	router := setupRouter(cfg, log, reg, docDBClient, registry)

	// Create HTTP server
	srv := &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("address", cfg.Server.Address()).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return
	}

	log.Info().Msg("server exited")
}

// createDocDBClient creates a document database client based on the configuration.
func createDocDBClient(ctx context.Context, cfg config.WarehouseConfig) (docdb.Client, error) {
	switch docdb.Type(cfg.Type) {
	case docdb.TypeMongoDB:
		return mongodb.NewClient(ctx, &mongodb.ClientConfig{
			URI:            cfg.URI,
			Host:           cfg.Host,
			Port:           cfg.Port,
			ConnectTimeout: cfg.ConnectTimeout,
		})
	default:
		return nil, fmt.Errorf("unsupported docdb type: %s", cfg.Type)
	}
}

// createPublisher creates a notification publisher based on the configuration.
func createPublisher(cfg config.NotifyConfig) (notify.Publisher, error) {
	switch notify.Type(cfg.Type) {
	case notify.TypeRedis:
		return redisnotify.NewPublisher(redisnotify.Config{
			Host:     cfg.Host,
			Port:     cfg.Port,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
	case notify.TypeNone:
		return notify.NewNoopPublisher(), nil
	default:
		return nil, fmt.Errorf("unsupported notify type: %s", cfg.Type)
	}
}

// setupRouter creates and configures the Gin router.
func setupRouter(cfg *config.Config, log zerolog.Logger, reg *prometheus.Registry, docDBClient docdb.Client, registry *collections.Registry) *gin.Engine {
	router := gin.New()

	// Create middleware
	loggingMw := middleware.NewLoggingMiddlewareWithLogger(log)
	errorMw := middleware.NewErrorMiddleware()
	cors := middleware.NewCORSMiddleware(middleware.DefaultCORSConfig(cfg.Server.CORSOrigins))

	// Setup routes
	routesCfg := &routes.Config{
		HealthHandler:      handlers.NewHealthHandler(registry.Publisher(), docDBClient),
		MessagesHandler:    handlers.NewMessagesHandler(registry),
		CollectionsHandler: handlers.NewCollectionsHandler(registry),
		EventsHandler:      handlers.NewEventsHandler(registry.Publisher()),
	}
	if cfg.Metrics.Enabled {
		routesCfg.MetricsPath = cfg.Metrics.Path
		routesCfg.MetricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
	}

	routes.SetupWithMiddleware(router, routesCfg, loggingMw, errorMw, cors)

	// Swagger documentation endpoint
	router.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return router
}
