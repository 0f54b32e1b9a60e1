package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/krizhik-test/microservices-demo/internal/app/migrate"
	"github.com/krizhik-test/microservices-demo/internal/bus"
	"github.com/krizhik-test/microservices-demo/internal/domain"
	"github.com/krizhik-test/microservices-demo/internal/event"
	"github.com/krizhik-test/microservices-demo/internal/httpx"
	"github.com/krizhik-test/microservices-demo/internal/report"
	"github.com/krizhik-test/microservices-demo/internal/repository/postgres"
	"github.com/krizhik-test/microservices-demo/internal/timeseries"
	"github.com/krizhik-test/microservices-demo/internal/ws"
	"github.com/krizhik-test/microservices-demo/pkg/config"
	"github.com/krizhik-test/microservices-demo/pkg/logger"
)

func main() {
	cfg := config.LoadLoggingConfig()
	log := logger.New("logging", logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eventBus, err := bus.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, log)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
	if err != nil {
		log.Error("failed to configure migrations", "error", err)
		os.Exit(1)
	}
	defer runner.Close()
	if err := runner.Ping(ctx); err != nil {
		log.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	if err := runner.Ensure(ctx); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	repo := postgres.New(pool)
	hub := ws.NewHub()
	tsStore := timeseries.NewRedisStore(eventBus.Client(), log)
	recorder := timeseries.NewRecorder(tsStore, log)

	subscriber := event.NewSubscriber(eventBus, repo, recorder, hub, domain.ServiceLogging, cfg.EventChannel, log)
	if err := subscriber.Start(ctx); err != nil {
		log.Error("event subscription failed", "error", err)
		os.Exit(1)
	}

	engine := timeseries.NewEngine(tsStore, cfg.EventChannel, log)
	reports := report.NewGenerator(engine, log)
	eventsSvc := event.NewService(repo)

	limiter := httpx.NewMemoryRateLimiter()
	if cfg.RateLimitRedis {
		redisLimiter, err := httpx.NewRedisRateLimiter(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter = redisLimiter
		}
	}

	router := httpx.NewLoggingRouter(httpx.LoggingRouterConfig{
		Logger:   log,
		Events:   eventsSvc,
		Series:   engine,
		Reports:  reports,
		Hub:      hub,
		Channel:  cfg.EventChannel,
		Recorder: recorder,
		Limiter:  limiter,
		Health: []httpx.HealthCheck{
			{Name: "database", Probe: pool.Ping},
			{Name: "redis", Probe: func(ctx context.Context) error {
				return eventBus.Client().Ping(ctx).Err()
			}},
		},
	})
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("logging server starting", "addr", cfg.Addr)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("logging server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
