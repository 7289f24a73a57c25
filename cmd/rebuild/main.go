// Command rebuild recomputes the referral closure relation from raw
// parent pointers and swaps it in atomically. Run it for disaster
// recovery or backfill; routine registrations maintain the closure
// incrementally.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"upline/internal/platform/config"
	"upline/internal/platform/lock"
	"upline/internal/platform/logger"
	"upline/internal/platform/postgres"
	"upline/internal/platform/redis"
	referralmetrics "upline/internal/referral/metrics"
	"upline/internal/referral/rebuild"
	"upline/internal/referral/store/closure"
	"upline/internal/referral/store/nodes"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		fatal(log, "connect postgres pool", err)
	}
	defer pool.Close()

	// Without redis the maintenance marker is process-local and running
	// server instances will not see it; rebuild against a live fleet
	// needs the shared locker.
	var locker lock.Locker = lock.NewMemory()
	rdb, err := redis.New(cfg.Redis)
	if err != nil {
		fatal(log, "connect redis", err)
	}
	if rdb != nil {
		defer rdb.Close()
		locker = lock.NewRedis(rdb.Client)
	} else {
		log.Warn("redis not configured, maintenance marker is process-local")
	}

	job, err := rebuild.New(
		closure.NewPostgresTxRunner(pool),
		locker,
		cfg.Referral.MaxChainDepth,
		rebuild.WithLogger(log),
		rebuild.WithMetrics(referralmetrics.New()),
	)
	if err != nil {
		fatal(log, "build rebuild job", err)
	}

	allNodes, err := nodes.NewPostgres(pool).AllNodes(ctx)
	if err != nil {
		fatal(log, "load referral nodes", err)
	}

	edges, err := job.RebuildAll(ctx, allNodes)
	if err != nil {
		fatal(log, "rebuild closure", err)
	}
	log.Info("closure rebuild finished", "nodes", len(allNodes), "edges", edges)
}

func fatal(log *slog.Logger, msg string, err error) {
	log.Error(msg, "error", err)
	os.Exit(1)
}
