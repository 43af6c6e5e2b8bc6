package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/barangaylink/barangaylink/internal/app"
	"github.com/barangaylink/barangaylink/internal/identity"
	jobmetrics "github.com/barangaylink/barangaylink/internal/jobs"
	"github.com/barangaylink/barangaylink/internal/platform/db"
	"github.com/barangaylink/barangaylink/internal/saga"
	"github.com/barangaylink/barangaylink/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	identityClient := identity.NewHTTPClient(cfg.IdentityURL, cfg.IdentityAnonKey, cfg.IdentityServiceKey)
	sagaRepo := saga.NewRepository(pool)
	metrics := jobmetrics.NewMetrics(nil)

	sweep := jobs.NewSagaSweepJob(sagaRepo, identityClient, logger, metrics)

	sweepTask, err := jobs.NewSagaSweepTask(jobs.SagaSweepPayload{
		StallAfterMinutes: int(cfg.SagaStallAfter.Minutes()),
	})
	if err != nil {
		logger.Error("build sweep task", slog.Any("error", err))
		os.Exit(1)
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}

	// One sweep right away so a restart doesn't wait out the cron interval.
	queueClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("build queue client", slog.Any("error", err))
		os.Exit(1)
	}
	if _, err := queueClient.EnqueueSagaSweep(ctx, jobs.SagaSweepPayload{
		StallAfterMinutes: int(cfg.SagaStallAfter.Minutes()),
	}); err != nil {
		logger.Warn("enqueue initial sweep", slog.Any("error", err))
	}
	if err := queueClient.Close(); err != nil {
		logger.Warn("queue client close", slog.Any("error", err))
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpts,
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskSagaSweep, Handler: sweep.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/15 * * * *", Task: sweepTask},
		},
	})
	if err != nil {
		logger.Error("build worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker starting", slog.String("redis", cfg.RedisAddr))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
