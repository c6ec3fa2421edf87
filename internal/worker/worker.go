package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/cartpulse/cartpulse/internal/commerce"
	"github.com/cartpulse/cartpulse/internal/config"
	"github.com/cartpulse/cartpulse/internal/metrics"
	"github.com/cartpulse/cartpulse/internal/models"
	"github.com/cartpulse/cartpulse/internal/queue"
)

// Worker consumes rollup jobs and also recomputes on a fixed interval,
// so stats converge even if every queued job is lost.
type Worker struct {
	queue      queue.Queue
	aggregator *commerce.Aggregator
	cfg        config.WorkerConfig
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

func New(q queue.Queue, aggregator *commerce.Aggregator, cfg config.WorkerConfig, m *metrics.Metrics, logger *zap.Logger) *Worker {
	return &Worker{queue: q, aggregator: aggregator, cfg: cfg, metrics: m, logger: logger}
}

// Run processes jobs until the context is canceled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("Worker started",
		zap.String("queue", w.cfg.QueueName),
		zap.Duration("rollup_interval", w.cfg.RollupInterval))

	ticker := time.NewTicker(w.cfg.RollupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Worker stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := w.aggregator.RunToday(ctx, "interval"); err != nil {
				w.logger.Error("Scheduled rollup failed", zap.Error(err))
			}
			w.observeDepth(ctx)
		default:
		}

		job, err := w.queue.Dequeue(ctx, w.cfg.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Error("Dequeue failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			continue
		}
		w.process(ctx, job)
	}
}

func (w *Worker) process(ctx context.Context, job *models.RollupJob) {
	logger := w.logger.With(
		zap.String("job_id", job.ID),
		zap.String("kind", string(job.Kind)),
		zap.Int("attempts", job.Attempts))

	if err := w.aggregator.RunToday(ctx, "job"); err != nil {
		logger.Error("Rollup job failed", zap.Error(err))

		dead, nackErr := w.queue.Nack(ctx, job, w.cfg.MaxAttempts)
		if nackErr != nil {
			logger.Error("Failed to nack job", zap.Error(nackErr))
			return
		}
		if dead {
			w.metrics.JobsDead.Inc()
			w.metrics.JobsProcessed.WithLabelValues(string(job.Kind), "dead").Inc()
			logger.Warn("Job dead-lettered after max attempts")
			return
		}
		w.metrics.JobsProcessed.WithLabelValues(string(job.Kind), "retried").Inc()
		return
	}

	if err := w.queue.Ack(ctx, job); err != nil {
		// The rollup is idempotent, so a reprocessed job is harmless.
		logger.Warn("Failed to ack job", zap.Error(err))
	}
	w.metrics.JobsProcessed.WithLabelValues(string(job.Kind), "ok").Inc()
}

func (w *Worker) observeDepth(ctx context.Context) {
	depth, err := w.queue.Depth(ctx)
	if err != nil {
		return
	}
	w.metrics.QueueDepth.Set(float64(depth))
}
