package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/lifestock/lifestock-api/internal/auth"
	"github.com/lifestock/lifestock-api/internal/config"
	"github.com/lifestock/lifestock-api/internal/database"
	"github.com/lifestock/lifestock-api/internal/options"
	"github.com/lifestock/lifestock-api/internal/portfolio"
	"github.com/lifestock/lifestock-api/internal/settlement"
	"github.com/lifestock/lifestock-api/internal/trading"
	"github.com/lifestock/lifestock-api/pkg/middleware"

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

// main initializes and runs the LifeStock API server with graceful shutdown
// support: the portfolio, trading, options and settlement services, the
// background settlement processor and the weekly ladder cron job.
func main() {
	// Local overrides from .env, if present
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Initialize router
	router := gin.Default()

	// Initialize services and handlers
	authService := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiry)
	authHandlers := auth.NewGinHandlers(authService)
	// Register test credentials
	authService.RegisterAPICredentials(auth.TestAPIKey, auth.TestAPISecret)

	portfolioService := portfolio.NewService(db, cfg.Trading.StartingCash, cfg.Cache.IndexTTL, cfg.Cache.CleanupInterval)
	portfolioHandlers := portfolio.NewGinHandlers(portfolioService)

	tradingService := trading.NewService(db, portfolioService, cfg.Trading.BrokerageFloor, cfg.Trading.BrokerageRate)
	tradingHandlers := trading.NewGinHandlers(tradingService)

	optionsService := options.NewService(db, portfolioService)
	optionsHandlers := options.NewGinHandlers(optionsService)

	settlementService := settlement.NewService(db)
	settlementHandlers := settlement.NewGinHandlers(settlementService)

	// Create and start settlement processor
	settlementProcessor := settlement.NewProcessor(settlementService, cfg.Settlement.SweepInterval)
	processorCtx, processorCancel := context.WithCancel(context.Background())
	defer processorCancel()

	go settlementProcessor.Start(processorCtx)

	// Weekly ladder generation
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Options.LadderCron, func() {
		if err := optionsService.GenerateWeeklyLadders(); err != nil {
			zlog.Error().Err(err).Msg("weekly ladder generation failed")
		}
	}); err != nil {
		zlog.Fatal().Err(err).Msg("Failed to schedule ladder generation")
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, cfg.Auth.JWTSecret, authHandlers, portfolioHandlers, tradingHandlers, optionsHandlers, settlementHandlers)

	// Create server
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
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
// It groups routes by functionality and applies appropriate middleware:
// - Auth routes: Public endpoints for authentication
// - Portfolio/trading/options routes: Protected by JWT authentication
// - Internal routes: Protected by internal network authentication
func setupRoutes(
	router *gin.Engine,
	jwtSecret string,
	authHandlers *auth.GinHandlers,
	portfolioHandlers *portfolio.GinHandlers,
	tradingHandlers *trading.GinHandlers,
	optionsHandlers *options.GinHandlers,
	settlementHandlers *settlement.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Portfolio routes
		portfolioGroup := v1.Group("/portfolio")
		portfolioGroup.Use(middleware.JWTAuth(jwtSecret))
		{
			portfolioGroup.GET("", portfolioHandlers.GetPortfolioHandler())
			portfolioGroup.POST("/funds", tradingHandlers.AddFundsHandler())
			portfolioGroup.POST("/stocks", portfolioHandlers.CreateStockHandler())
			portfolioGroup.GET("/stocks", portfolioHandlers.ListStocksHandler())
			portfolioGroup.PUT("/stocks/:stock_id/score", portfolioHandlers.UpdateScoreHandler())
			portfolioGroup.DELETE("/stocks/:stock_id", portfolioHandlers.DeleteStockHandler())
			portfolioGroup.GET("/index", portfolioHandlers.GetIndexHandler())
		}

		// Equity trading routes
		tradingGroup := v1.Group("/trading")
		tradingGroup.Use(middleware.JWTAuth(jwtSecret))
		{
			tradingGroup.POST("/buy", tradingHandlers.BuyHandler())
			tradingGroup.POST("/sell", tradingHandlers.SellHandler())
			tradingGroup.GET("/transactions", tradingHandlers.ListTransactionsHandler())
		}

		// Options trading routes
		optionsGroup := v1.Group("/options")
		optionsGroup.Use(middleware.JWTAuth(jwtSecret))
		{
			optionsGroup.GET("/chain", optionsHandlers.GetChainHandler())
			optionsGroup.POST("/buy", optionsHandlers.BuyHandler())
			optionsGroup.POST("/write", optionsHandlers.WriteHandler())
			optionsGroup.POST("/exit", optionsHandlers.ExitHandler())
			optionsGroup.GET("/positions", optionsHandlers.ListPositionsHandler())
			optionsGroup.GET("/transactions", optionsHandlers.ListTransactionsHandler())
			optionsGroup.DELETE("/contracts/:contract_id", optionsHandlers.DeleteContractHandler())
		}

		// Internal routes (should be protected by internal network)
		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth(jwtSecret))
		{
			internal.POST("/settlement/run", settlementHandlers.RunSweepHandler())
			internal.GET("/settlements", settlementHandlers.ListSettlementsHandler())
		}
	}
}
