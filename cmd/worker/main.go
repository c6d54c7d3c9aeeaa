package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"print-scheduler/internal/config"
	"print-scheduler/internal/lock"
	"print-scheduler/internal/logging"
	"print-scheduler/internal/queue"
	"print-scheduler/internal/scheduler"
	"print-scheduler/internal/store"
	"print-scheduler/internal/telemetry"
	workerproc "print-scheduler/internal/worker"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	cal, err := cfg.Calendar()
	if err != nil {
		log.Fatalf("calendar: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	st, err := store.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer st.Close()

	if err := st.RunMigrations(ctx); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	redisClient := queue.NewClient(cfg)
	defer redisClient.Close()

	svc := scheduler.New(st,
		scheduler.WithCalendar(cal),
		scheduler.WithLocker(lock.NewRedisLock(redisClient, cfg.RegenerateLockTTL, logger)),
		scheduler.WithLogger(logger),
	)
	processor := workerproc.NewProcessor(cfg,
		queue.NewRedisQueue(redisClient, cfg),
		queue.NewStateCache(redisClient),
		svc,
		logger,
	)

	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, telemetry.Handler()); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	logger.Info("worker started",
		"visibility", cfg.VisibilityTimeout,
		"backoff_initial", cfg.BackoffInitial,
		"max_attempts", cfg.MaxAttempts,
	)
	if err := processor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", "error", err)
	}
}
