package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sendlater/internal/api"
	"sendlater/internal/config"
	"sendlater/internal/db"
	"sendlater/internal/dispatcher"
	"sendlater/internal/email"
	"sendlater/internal/metrics"
	"sendlater/internal/queue"
	"sendlater/internal/ratelimit"
	"sendlater/internal/scheduler"
)

func main() {

	// ------------------------------------------------
	// Logger
	// ------------------------------------------------
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// ------------------------------------------------
	// Config
	// ------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// ------------------------------------------------
	// Root Context + Shutdown
	// ------------------------------------------------
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
		cancel()
	}()

	// ------------------------------------------------
	// Database
	// ------------------------------------------------
	store, err := db.New(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer store.Close()

	// ------------------------------------------------
	// Redis (delay queue + rate counters)
	// ------------------------------------------------
	redisOpt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal("invalid redis url", zap.Error(err))
	}

	rdb := redis.NewClient(redisOpt)
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("redis connection failed", zap.Error(err))
	}

	// ------------------------------------------------
	// Metrics
	// ------------------------------------------------
	metrics.Init()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())

	metricsServer := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: metricsMux,
	}

	go func() {
		logger.Info("metrics server started", zap.String("port", cfg.MetricsPort))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("metrics server error", zap.Error(err))
		}
	}()

	// ------------------------------------------------
	// Delay Queue
	// ------------------------------------------------
	delayQueue := queue.NewRedisQueue(rdb, cfg.QueuePollInterval)

	// ------------------------------------------------
	// Rate Limiters
	// ------------------------------------------------
	hourly := ratelimit.NewHourlyLimiter(
		ratelimit.NewRedisCounters(rdb),
		cfg.RateLimitEnabled,
		cfg.MaxEmailsPerHour,
	)

	pace := rate.NewLimiter(rate.Every(cfg.MinDelayBetweenSends), 1)

	// ------------------------------------------------
	// Email Sender
	// ------------------------------------------------
	sender := &email.SMTPSender{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		User:     cfg.SMTPUser,
		Password: cfg.SMTPPassword,
	}

	// ------------------------------------------------
	// Scheduler + Reconciler
	// ------------------------------------------------
	sched := scheduler.New(store, delayQueue, logger, cfg.ScheduleBuffer, cfg.DefaultRecipientDelay)

	reconciler := scheduler.NewReconciler(store, delayQueue, logger)
	go reconciler.Run(ctx, cfg.ReconcileInterval)

	// ------------------------------------------------
	// Dispatcher Pool
	// ------------------------------------------------
	var wg sync.WaitGroup

	disp := dispatcher.New(
		store,
		delayQueue,
		hourly,
		pace,
		sender,
		logger,
		cfg.SendAttempts,
		cfg.RetryInitialInterval,
	)
	disp.StartPool(ctx, &wg, cfg.WorkerCount)

	// ------------------------------------------------
	// HTTP API Server
	// ------------------------------------------------
	apiHandler := &api.Handler{
		Scheduler: sched,
		Store:     store,
		Log:       logger,
		HealthChecks: []func(ctx context.Context) error{
			store.Pool.Ping,
			func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		},
	}

	apiMux := http.NewServeMux()
	apiHandler.Register(apiMux)

	apiServer := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: apiMux,
	}

	go func() {
		logger.Info("api server started", zap.String("port", cfg.APIPort))
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("api server error", zap.Error(err))
		}
	}()

	// ------------------------------------------------
	// Wait for shutdown
	// ------------------------------------------------
	<-ctx.Done()

	logger.Info("shutting down services...")

	// Wait workers to finish their in-flight jobs
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown failed", zap.Error(err))
	}

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics shutdown failed", zap.Error(err))
	}

	logger.Info("application shutdown complete")
}
