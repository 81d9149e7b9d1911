package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/ksred/exchange-api/internal/config"
	"github.com/ksred/exchange-api/internal/database"
	"github.com/ksred/exchange-api/internal/events"
	"github.com/ksred/exchange-api/internal/intake"
	"github.com/ksred/exchange-api/internal/matching"
	"github.com/ksred/exchange-api/internal/outbox"
	"github.com/ksred/exchange-api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the exchange API server with graceful
// shutdown support. It wires the ledger store, the outbox relay, and the
// matching consumer around the HTTP shell.
func main() {
	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize database
	db, err := database.NewDatabase(cfg.DatabasePath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Initialize router
	router := gin.Default()

	// Initialize services and handlers
	intakeService := intake.NewService(db)
	intakeHandlers := intake.NewGinHandlers(intakeService)

	// Event bus plumbing: the relay drains the outbox to Kafka, the
	// consumer settles events against the ledger.
	producer := events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	defer producer.Close()

	relay := outbox.NewRelay(db, producer, cfg.Outbox.RelayInterval, cfg.Outbox.BatchSize)

	reader := events.NewReader(cfg.Kafka)
	consumer := matching.NewConsumer(db, reader, matching.RemainderPolicy(cfg.Matching.RemainderPolicy))
	defer consumer.Close()

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	go relay.Start(workerCtx)
	go consumer.Run(workerCtx)

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, intakeHandlers)

	// Create server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers
func setupRoutes(router *gin.Engine, intakeHandlers *intake.GinHandlers) {
	api := router.Group("/api")
	{
		api.POST("/orders", intakeHandlers.PlaceOrderHandler())
		api.GET("/orders", intakeHandlers.GetOrdersHandler())
		api.GET("/balances/:userId", intakeHandlers.GetBalancesHandler())
	}
}
