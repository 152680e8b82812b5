package approval

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/openfleet/ride-booking/internal/booking"
	"github.com/openfleet/ride-booking/internal/metrics"
	"github.com/openfleet/ride-booking/internal/queue"
)

// Processor drives booking approvals from the asynchronous channel. The
// queue redelivers on error with backoff; after the retry budget is spent
// the task is archived (the dead-letter path) and the booking is finalized
// as failed.
type Processor interface {
	ProcessApproval(ctx context.Context, msg booking.ApprovalMessage) (booking.Outcome, error)
	MarkProcessingExhausted(ctx context.Context, ref string)
}

type Worker struct {
	srv     *asynq.Server
	proc    Processor
	metrics *metrics.Metrics
	log     *zap.Logger
}

type WorkerConfig struct {
	RedisOpt    asynq.RedisClientOpt
	Queue       string
	Concurrency int
}

func NewWorker(cfg WorkerConfig, proc Processor, m *metrics.Metrics, log *zap.Logger) *Worker {
	srv := asynq.NewServer(cfg.RedisOpt, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues: map[string]int{
			cfg.Queue: 1,
		},
	})

	return &Worker{
		srv:     srv,
		proc:    proc,
		metrics: m,
		log:     log,
	}
}

// Run blocks until the server is stopped.
func (w *Worker) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeBookingApprove, w.handleApprove)

	if err := w.srv.Run(mux); err != nil {
		return fmt.Errorf("run approval worker: %w", err)
	}
	return nil
}

func (w *Worker) Shutdown() {
	w.srv.Shutdown()
}

func (w *Worker) handleApprove(ctx context.Context, task *asynq.Task) error {
	msg, err := queue.DecodeApprovalTask(task)
	if err != nil {
		// A payload that never decodes will never decode; skip retries.
		w.log.Error("undecodable approval task", zap.Error(err))
		return fmt.Errorf("%w: %w", asynq.SkipRetry, err)
	}

	log := w.log.With(zap.String("reference", msg.BookingReference))

	outcome, err := w.proc.ProcessApproval(ctx, msg)
	if err == nil {
		w.metrics.ApprovalsProcessed.WithLabelValues(string(outcome)).Inc()
		log.Info("approval processed", zap.String("outcome", string(outcome)))
		return nil
	}

	retried, okRetried := asynq.GetRetryCount(ctx)
	maxRetry, okMax := asynq.GetMaxRetry(ctx)
	if okRetried && okMax && retried >= maxRetry {
		// Last attempt. Record the terminal failure, then still return the
		// error so the queue archives the task.
		log.Error("approval retries exhausted, dead-lettering",
			zap.Int("attempts", retried+1), zap.Error(err))
		w.proc.MarkProcessingExhausted(ctx, msg.BookingReference)
		w.metrics.ApprovalsProcessed.WithLabelValues("exhausted").Inc()
		return err
	}

	w.metrics.ApprovalsProcessed.WithLabelValues("retried").Inc()
	log.Warn("transient approval failure, will be redelivered",
		zap.Int("attempt", retried+1), zap.Error(err))
	return err
}
