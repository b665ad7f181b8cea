// Package app wires the adapters and the bot together for the server and
// worker binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"freelancer-bot/internal/ai"
	"freelancer-bot/internal/bot"
	"freelancer-bot/internal/config"
	"freelancer-bot/internal/dedup"
	"freelancer-bot/internal/logger"
	"freelancer-bot/internal/payment"
	"freelancer-bot/internal/scheduler"
	"freelancer-bot/internal/store"
	"freelancer-bot/internal/telemetry"
	"freelancer-bot/internal/whatsapp"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

type App struct {
	Config    *config.Config
	Mongo     *mongo.Client
	Redis     *redis.Client
	Store     *store.MongoStore
	Metrics   *telemetry.Metrics
	Messenger *whatsapp.Client
	Payments  *payment.Router
	Gemini    *ai.GeminiClient

	Bridge    *bot.BridgeService
	Flow      *bot.PaymentFlow
	Processor *bot.Processor
	Confirmer *bot.PaymentConfirmer
	Sweeper   *bot.ExpirationSweeper
}

// Build connects to Mongo and, when reachable, Redis, and assembles the bot.
// Without Redis the duplicate guard falls back to process memory.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	a.Metrics = metrics

	a.Mongo, err = config.ConnectMongoDB(cfg)
	if err != nil {
		return nil, err
	}
	a.Store = store.NewMongoStore(a.Mongo.Database(cfg.DBName), cfg.HistoryLimit)

	indexCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := a.Store.EnsureIndexes(indexCtx); err != nil {
		a.Close()
		return nil, err
	}

	var guard dedup.Guard
	if rdb, err := config.NewRedisClient(cfg); err != nil {
		logger.Warn("redis unavailable, using in-memory duplicate guard", "error", err)
		guard = dedup.NewMemoryGuard(cfg.DedupWindow)
	} else {
		a.Redis = rdb
		guard = dedup.NewRedisGuard(rdb, cfg.DedupWindow)
	}

	a.Messenger = whatsapp.NewClient(cfg)

	a.Payments, err = payment.NewProvider(cfg, metrics)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Gemini, err = ai.NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiTier, metrics)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init gemini: %w", err)
	}
	nlu := ai.NewService(a.Gemini, cfg.AIResponseTimeout)

	a.Bridge = bot.NewBridgeService(a.Store, a.Messenger, cfg.DefaultCountryCode)
	a.Flow = bot.NewPaymentFlow(a.Store, nlu, a.Payments, a.Messenger, metrics, bot.PaymentOptions{
		Amount:       cfg.PaymentAmount,
		Currency:     cfg.PaymentCurrency,
		Expiry:       cfg.PaymentExpiry(),
		CatalogLimit: cfg.CatalogLimit,
	})
	a.Processor = bot.NewProcessor(guard, a.Store, a.Messenger, nlu, a.Bridge, a.Flow, metrics, bot.ProcessorOptions{
		CatalogLimit: cfg.CatalogLimit,
	})
	a.Confirmer = bot.NewPaymentConfirmer(a.Payments, a.Store, a.Bridge, a.Messenger, metrics, cfg.DefaultCountryCode)
	a.Sweeper = bot.NewExpirationSweeper(a.Store, a.Messenger, scheduler.NewScheduler(), cfg.SweepInterval, metrics)

	logger.Info("bot assembled",
		"payment_policy", string(a.Payments.Policy()),
		"redis", a.Redis != nil,
		"async", cfg.AsyncProcessing,
	)
	return a, nil
}

// PingMongo and PingRedis back the readiness probe.
func (a *App) PingMongo(ctx context.Context) error {
	return a.Store.Ping(ctx)
}

func (a *App) PingRedis(ctx context.Context) error {
	if a.Redis == nil {
		return errors.New("redis not connected")
	}
	return a.Redis.Ping(ctx).Err()
}

// Close releases every connection Build opened.
func (a *App) Close() {
	if a.Gemini != nil {
		if err := a.Gemini.Close(); err != nil {
			logger.Warn("failed to close gemini client", "error", err)
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			logger.Warn("failed to close redis", "error", err)
		}
	}
	if a.Mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.Mongo.Disconnect(ctx); err != nil {
			logger.Warn("failed to disconnect mongo", "error", err)
		}
	}
}
