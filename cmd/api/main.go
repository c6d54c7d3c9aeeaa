package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "print-scheduler/internal/api"
	"print-scheduler/internal/config"
	"print-scheduler/internal/lock"
	"print-scheduler/internal/logging"
	"print-scheduler/internal/queue"
	"print-scheduler/internal/ratelimit"
	"print-scheduler/internal/scheduler"
	"print-scheduler/internal/store"
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
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("connect redis: %v", err)
	}

	svc := scheduler.New(st,
		scheduler.WithCalendar(cal),
		scheduler.WithLocker(lock.NewRedisLock(redisClient, cfg.RegenerateLockTTL, logger)),
		scheduler.WithLogger(logger),
	)
	q := queue.NewRedisQueue(redisClient, cfg)
	limiter := ratelimit.NewTokenBucket(redisClient, cfg.EventRateCapacity, cfg.EventRateRefill, time.Hour)

	server := api.New(svc, q, st, limiter, logger)
	server.AddReadinessCheck("postgres", st.Ping)
	server.AddReadinessCheck("redis", func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})
	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("api listening", "port", cfg.HTTPPort, "env", cfg.Env, "calendar", cfg.CalendarMode)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
}
