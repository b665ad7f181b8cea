package main

import (
	"context"
	"os"

	"freelancer-bot/internal/app"
	"freelancer-bot/internal/config"
	"freelancer-bot/internal/logger"
	"freelancer-bot/internal/queue"
	"freelancer-bot/internal/telemetry"

	"github.com/hibiken/asynq"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	logger.InitLogger(cfg)

	shutdownTracer, err := telemetry.InitTracer(cfg, "freelancer-bot-worker")
	if err != nil {
		logger.Error("Failed to init tracer", "error", err)
		os.Exit(1)
	}
	defer shutdownTracer()

	bot, err := app.Build(context.Background(), cfg)
	if err != nil {
		logger.Error("Failed to start worker", "error", err)
		os.Exit(1)
	}
	defer bot.Close()

	redisOpt, err := queue.RedisConnOpt(cfg)
	if err != nil {
		logger.Error("Invalid Redis settings", "error", err)
		os.Exit(1)
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.WorkerConcurrency,
			Queues: map[string]int{
				queue.QueueCritical: 6,
				queue.QueueDefault:  3,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	mux := asynq.NewServeMux()
	queue.NewTaskProcessor(bot.Processor, bot.Confirmer).Register(mux)

	logger.Info("Starting asynq worker",
		"concurrency", cfg.WorkerConcurrency,
		"queues", []string{queue.QueueCritical, queue.QueueDefault},
		"redis", redisOpt.Addr,
	)

	if err := server.Run(mux); err != nil {
		logger.Error("Worker stopped", "error", err)
		os.Exit(1)
	}
}
