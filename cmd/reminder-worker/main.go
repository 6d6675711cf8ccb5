package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/telecare/scheduling-engine/internal/config"
	"github.com/telecare/scheduling-engine/internal/db"
	"github.com/telecare/scheduling-engine/internal/events"
	redisclient "github.com/telecare/scheduling-engine/internal/redis"
	"github.com/telecare/scheduling-engine/internal/scheduling"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := zap.NewProduction()
	if cfg.Env != "prod" {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	slog := logger.Sugar()

	slog.Infow("reminder-worker starting up", "env", cfg.Env, "interval", cfg.WorkerInterval)

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

	// Run once at startup
	runOnce(rootCtx, svc, slog)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			slog.Info("shutdown signal received, stopping reminder worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, slog)
		}
	}
}

func runOnce(ctx context.Context, svc *scheduling.Service, slog *zap.SugaredLogger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	flagged, err := svc.FlagOverdueAppointments(runCtx)
	if err != nil {
		slog.Errorw("overdue run error", "err", err)
		return
	}
	slog.Infow("overdue run complete", "flagged", flagged, "took", time.Since(start))
}
