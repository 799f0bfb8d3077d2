package worker

import (
	"context"
	"time"

	"dispatch-service/internal/repository"
	"dispatch-service/internal/usecase"

	"go.uber.org/zap"
)

const (
	sweepInterval  = 1 * time.Minute
	stuckThreshold = 5 * time.Minute
	sweepBatchSize = 100
)

// RedeliveryWorker sweeps deliveries stuck in PROCESSING (producer crash,
// broker outage) and FAILED rows that never reached the broker and still
// have retries left, pushing both back through the queue.
type RedeliveryWorker struct {
	repo       repository.Repository
	dispatcher *usecase.Dispatcher
	logger     *zap.Logger
	interval   time.Duration
}

func NewRedeliveryWorker(repo repository.Repository, d *usecase.Dispatcher, logger *zap.Logger) *RedeliveryWorker {
	return &RedeliveryWorker{
		repo:       repo,
		dispatcher: d,
		logger:     logger,
		interval:   sweepInterval,
	}
}

// Run blocks until ctx is cancelled.
func (w *RedeliveryWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("redelivery worker started",
		zap.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("redelivery worker stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *RedeliveryWorker) sweep(ctx context.Context) {
	stuck, err := w.repo.ListStuckDeliveries(ctx, stuckThreshold, sweepBatchSize)
	if err != nil {
		w.logger.Error("stuck delivery scan failed", zap.Error(err))
		return
	}
	if len(stuck) == 0 {
		return
	}

	w.logger.Info("requeueing stuck deliveries", zap.Int("count", len(stuck)))
	for _, del := range stuck {
		if err := w.dispatcher.RequeueDelivery(ctx, del.ID); err != nil {
			w.logger.Warn("requeue failed",
				zap.Int64("delivery_id", del.ID),
				zap.Error(err))
		}
	}
}
