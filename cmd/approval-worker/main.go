package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/openfleet/ride-booking/internal/approval"
	"github.com/openfleet/ride-booking/internal/booking"
	"github.com/openfleet/ride-booking/internal/config"
	"github.com/openfleet/ride-booking/internal/db"
	"github.com/openfleet/ride-booking/internal/logging"
	"github.com/openfleet/ride-booking/internal/metrics"
	"github.com/openfleet/ride-booking/internal/notify"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer logger.Sync()

	logger.Info("approval-worker starting up",
		zap.String("env", cfg.Env),
		zap.String("queue", cfg.ApprovalQueue),
		zap.Int("concurrency", cfg.Concurrency),
		zap.Int("max_retry", cfg.ApprovalRetries))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	m := metrics.New()

	var publisher notify.Publisher = notify.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = notify.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	} else {
		logger.Warn("KAFKA_BROKERS not set, notification events will be dropped")
	}
	defer publisher.Close()

	dispatcher := notify.NewDispatcher(publisher, logger, m.NotificationsDropped.Inc)

	repo := booking.NewPgRepository(pgPool)
	// The worker never enqueues, it only consumes.
	svc := booking.NewService(repo, nil, dispatcher, logger)

	worker := approval.NewWorker(approval.WorkerConfig{
		RedisOpt: asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisQueueDB,
		},
		Queue:       cfg.ApprovalQueue,
		Concurrency: cfg.Concurrency,
	}, svc, m, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- worker.Run()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatal("approval worker error", zap.Error(err))
		}
	case <-rootCtx.Done():
		logger.Info("shutdown signal received, stopping approval worker")
		worker.Shutdown()
		<-errCh
	}
}
