package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/telecare/scheduling-engine/internal/api"
	"github.com/telecare/scheduling-engine/internal/config"
	"github.com/telecare/scheduling-engine/internal/db"
	"github.com/telecare/scheduling-engine/internal/events"
	redisclient "github.com/telecare/scheduling-engine/internal/redis"
	"github.com/telecare/scheduling-engine/internal/scheduling"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	slog := logger.Sugar()

	slog.Infow("api-server starting up", "env", cfg.Env, "http_port", cfg.HTTPPort)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		slog.Fatalw("postgres connection error", "err", err)
	}
	defer pgPool.Close()
	slog.Info("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword, cfg.RedisPoolSize)
	if err != nil {
		slog.Fatalw("redis connection error", "err", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			slog.Errorw("error closing redis", "err", err)
		}
	}()
	slog.Info("connected to Redis")

	repo := scheduling.NewPgRepository(pgPool)
	locker := redisclient.NewRedisProviderLocker(rdb, cfg.LockTTL)
	publisher := events.NewRedisPublisher(rdb, slog)
	svc := scheduling.NewService(repo, locker, publisher, scheduling.Policy{
		MinLeadTime:        cfg.MinLeadTime,
		CancellationWindow: cfg.CancellationWindow,
		RescheduleLimit:    cfg.RescheduleLimit,
		DefaultSlotMinutes: cfg.DefaultSlotMinutes,
	}, slog)

	router := api.NewRouter(api.RouterConfig{
		Service: svc,
		PgPool:  pgPool,
		Redis:   rdb,
		Logger:  slog,
		Env:     cfg.Env,
		Version: version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Infow("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-rootCtx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		slog.Errorw("http server error", "err", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Errorw("graceful shutdown failed", "err", err)
	}

	slog.Info("api-server stopped")
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	if cfg.Env == "prod" {
		zcfg := zap.NewProductionConfig()
		if err := zcfg.Level.UnmarshalText([]byte(cfg.LogLevel)); err == nil {
			return zcfg.Build()
		}
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
