package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"freelancer-bot/internal/app"
	"freelancer-bot/internal/auth"
	"freelancer-bot/internal/config"
	"freelancer-bot/internal/logger"
	"freelancer-bot/internal/queue"
	"freelancer-bot/internal/telemetry"
	"freelancer-bot/middleware"
	"freelancer-bot/routes"

	"github.com/gin-gonic/gin"
)

const serviceName = "freelancer-bot"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	logger.InitLogger(cfg)
	for _, w := range cfg.Warnings {
		logger.Warn("configuration warning", "warning", w)
	}

	shutdownTracer, err := telemetry.InitTracer(cfg, serviceName)
	if err != nil {
		logger.Error("Failed to init tracer", "error", err)
		os.Exit(1)
	}
	defer shutdownTracer()

	ctx := context.Background()
	bot, err := app.Build(ctx, cfg)
	if err != nil {
		logger.Error("Failed to start", "error", err)
		os.Exit(1)
	}
	defer bot.Close()

	inline := routes.NewInlineDispatcher(bot.Processor)
	var dispatcher routes.Dispatcher = inline
	var confirmations routes.ConfirmationQueue
	if cfg.AsyncProcessing {
		redisOpt, err := queue.RedisConnOpt(cfg)
		if err != nil {
			logger.Error("Invalid Redis settings for queue", "error", err)
			os.Exit(1)
		}
		enqueuer := queue.NewEnqueuer(redisOpt)
		defer enqueuer.Close()
		dispatcher = routes.NewQueueDispatcher(enqueuer)
		confirmations = enqueuer
	}

	if err := bot.Sweeper.Start(); err != nil {
		logger.Error("Failed to start payment sweeper", "error", err)
		os.Exit(1)
	}
	defer bot.Sweeper.Stop()

	var issuer *auth.Issuer
	if cfg.OpsJWTSecret != "" {
		issuer, err = auth.NewIssuer(cfg.OpsJWTSecret, cfg.OpsTokenTTL, bot.Redis)
		if err != nil {
			logger.Error("Invalid ops token settings", "error", err)
			os.Exit(1)
		}
	}

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.TracingMiddleware(serviceName))
	router.Use(middleware.EnrichTrace())
	router.Use(middleware.MetricsMiddleware(bot.Metrics))
	router.Use(middleware.CORSMiddleware(cfg.CORSOrigins))

	routes.SetupHealthRoutes(router, map[string]routes.HealthCheck{
		"mongo": bot.PingMongo,
		"redis": bot.PingRedis,
	})
	routes.SetupWebhookRoutes(router, cfg, dispatcher)
	routes.SetupPaymentRoutes(router, cfg, bot.Confirmer, confirmations)
	routes.SetupOpsRoutes(router, cfg, bot.Redis, middleware.NewOpsAuth(issuer, cfg.OpsAPIKeyHash), bot.Confirmer, bot.Sweeper)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}
	if err := inline.Wait(shutdownCtx); err != nil {
		logger.Warn("In-flight messages did not finish before shutdown", "error", err)
	}

	logger.Info("Server exited")
}
