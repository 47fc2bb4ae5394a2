// worker runs the background retry schedule: it periodically pokes the
// daemon's sync trigger so pending records from an offline period get
// reflushed even without new mutations.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/kesspos/kesspos/internal/app"
	"github.com/kesspos/kesspos/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	triggerURL := "http://" + cfg.AppAddr + "/api/sync/trigger"
	retryTask, err := jobs.NewSyncRetryTask(triggerURL)
	if err != nil {
		logger.Error("build sync retry task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Cron: []jobs.CronRegistration{
			{Spec: "@every 5m", Task: retryTask, Options: []asynq.Option{asynq.Queue(jobs.QueueDefault)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started", slog.String("redis", cfg.RedisAddr))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker terminated", slog.Any("error", err))
		os.Exit(1)
	}
}
