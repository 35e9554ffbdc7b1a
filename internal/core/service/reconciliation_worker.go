package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/pokestore/internal/core/domain"
	"github.com/rl1809/pokestore/internal/metrics"
	"github.com/rl1809/pokestore/internal/port"
)

const (
	publishAttempts = 3
	publishTimeout  = 5 * time.Second
	publishBackoff  = 100 * time.Millisecond
)

// ReconciliationWorker forwards paid-but-unpersisted purchases to the reconciliation publisher.
type ReconciliationWorker struct {
	publisher port.ReconciliationPublisher
	logger    *zap.Logger
	metrics   *metrics.Metrics
	backoff   time.Duration
}

func NewReconciliationWorker(publisher port.ReconciliationPublisher, logger *zap.Logger, m *metrics.Metrics) *ReconciliationWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconciliationWorker{
		publisher: publisher,
		logger:    logger,
		metrics:   m,
		backoff:   publishBackoff,
	}
}

// Run drains queue until it is closed.
func (w *ReconciliationWorker) Run(id int, queue <-chan domain.ReconciliationEvent) {
	logger := w.logger.With(zap.Int("worker", id))
	for event := range queue {
		w.publish(logger, event)
	}
}

func (w *ReconciliationWorker) publish(logger *zap.Logger, event domain.ReconciliationEvent) {
	backoff := w.backoff
	var err error
	for attempt := 1; attempt <= publishAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		err = w.publisher.Publish(ctx, event)
		cancel()

		if err == nil {
			w.metrics.ObserveReconciliation("published")
			logger.Info("reconciliation_published",
				zap.String("event_id", event.ID),
				zap.String("transaction_id", event.TransactionID),
				zap.Int("attempt", attempt),
			)
			return
		}

		logger.Warn("reconciliation_publish_retry",
			zap.String("event_id", event.ID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt < publishAttempts {
			time.Sleep(backoff)
			backoff *= 2
		}
	}

	w.metrics.ObserveReconciliation("failed")
	logger.Error("reconciliation_publish_failed",
		zap.String("event_id", event.ID),
		zap.String("item", event.ItemName),
		zap.Int("quantity", event.Quantity),
		zap.Int64("amount", event.Amount),
		zap.String("transaction_id", event.TransactionID),
		zap.Int("attempted_stock", event.AttemptedStock),
		zap.Error(err),
	)
}
