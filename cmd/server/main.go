// Command server runs the referral commission service: the admin HTTP
// surface plus, when brokers are configured, the kafka event consumer.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	commissionhandler "upline/internal/commission/handler"
	"upline/internal/commission/engine"
	"upline/internal/commission/ledger"
	commissionmetrics "upline/internal/commission/metrics"
	"upline/internal/commission/rates"
	commissionstore "upline/internal/commission/store"
	"upline/internal/commission/store/calclog"
	"upline/internal/commission/store/record"
	"upline/internal/events"
	"upline/internal/notify"
	"upline/internal/order"
	"upline/internal/platform/config"
	"upline/internal/platform/httpserver"
	"upline/internal/platform/kafka/consumer"
	"upline/internal/platform/kafka/producer"
	"upline/internal/platform/lock"
	"upline/internal/platform/logger"
	"upline/internal/platform/metrics"
	"upline/internal/platform/postgres"
	"upline/internal/platform/redis"
	referralhandler "upline/internal/referral/handler"
	referralmetrics "upline/internal/referral/metrics"
	referralservice "upline/internal/referral/service"
	"upline/internal/referral/store/closure"
	httptransport "upline/internal/transport/http"
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

	db, err := postgres.NewDB(cfg.Postgres)
	if err != nil {
		fatal(log, "connect postgres", err)
	}
	defer db.Close()

	var locker lock.Locker = lock.NewMemory()
	rdb, err := redis.New(cfg.Redis)
	if err != nil {
		fatal(log, "connect redis", err)
	}
	if rdb != nil {
		defer rdb.Close()
		locker = lock.NewRedis(rdb.Client)
	} else {
		log.Warn("redis not configured, locks are process-local")
	}

	var notifier notify.Notifier = notify.Noop{}
	var prod *producer.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		prod, err = producer.New(cfg.Kafka.Brokers)
		if err != nil {
			fatal(log, "connect kafka producer", err)
		}
		defer prod.Close()
		notifier = notify.NewKafka(prod, cfg.Kafka.NotifyTopic, log)
	}

	platformMetrics := metrics.New()
	refMetrics := referralmetrics.New()
	comMetrics := commissionmetrics.New()

	referralSvc, err := referralservice.New(
		closure.NewPostgres(pool),
		closure.NewPostgresTxRunner(pool),
		locker,
		cfg.Referral.MaxChainDepth,
		referralservice.WithLogger(log),
		referralservice.WithMetrics(refMetrics),
		referralservice.WithNotifier(notifier),
	)
	if err != nil {
		fatal(log, "build referral service", err)
	}

	eng, err := engine.New(
		commissionstore.NewPostgresTx(db),
		order.NewPostgresReader(pool),
		referralSvc,
		locker,
		rates.Default(),
		engine.WithLogger(log),
		engine.WithMetrics(comMetrics),
		engine.WithNotifier(notifier),
		engine.WithLockTTL(cfg.Commission.LockTTL),
		engine.WithProcessedBy(cfg.Commission.ProcessedBy),
	)
	if err != nil {
		fatal(log, "build commission engine", err)
	}

	led, err := ledger.New(
		record.NewPostgres(db),
		calclog.NewPostgres(db),
		ledger.WithLogger(log),
		ledger.WithMetrics(comMetrics),
		ledger.WithNotifier(notifier),
	)
	if err != nil {
		fatal(log, "build commission ledger", err)
	}

	router := httptransport.NewRouter(log, platformMetrics,
		referralhandler.New(referralSvc, log),
		commissionhandler.New(eng, led, log),
	)
	srv := httpserver.New(cfg.Server.Addr, router)

	var cons *consumer.Consumer
	if len(cfg.Kafka.Brokers) > 0 {
		eventRouter := events.NewRouter(log, events.WithMetrics(platformMetrics))
		eventRouter.Register(cfg.Kafka.UserRegisteredTopic, events.NewUserRegisteredHandler(referralSvc, log))
		eventRouter.Register(cfg.Kafka.OrderCompletedTopic, events.NewOrderCompletedHandler(eng, log))

		cons, err = consumer.New(
			cfg.Kafka.Brokers,
			cfg.Kafka.Group,
			[]string{cfg.Kafka.UserRegisteredTopic, cfg.Kafka.OrderCompletedTopic},
			eventRouter,
			log,
		)
		if err != nil {
			fatal(log, "connect kafka consumer", err)
		}
		defer cons.Close()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if cons != nil {
		g.Go(func() error {
			log.Info("kafka consumer running", "group", cfg.Kafka.Group)
			if err := cons.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		fatal(log, "server exited", err)
	}
	log.Info("shutdown complete")
}

func fatal(log *slog.Logger, msg string, err error) {
	log.Error(msg, "error", err)
	os.Exit(1)
}
