package messaging

import (
	"context"

	"go.uber.org/zap"

	"github.com/rl1809/pokestore/internal/core/domain"
)

// LogPublisher records reconciliation events in the service log when no broker is configured.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, event domain.ReconciliationEvent) error {
	p.logger.Warn("reconciliation_required",
		zap.String("event_id", event.ID),
		zap.String("item", event.ItemName),
		zap.Int("quantity", event.Quantity),
		zap.Int64("amount", event.Amount),
		zap.String("transaction_id", event.TransactionID),
		zap.Int("attempted_stock", event.AttemptedStock),
		zap.String("reason", event.Reason),
		zap.Time("occurred_at", event.OccurredAt),
	)
	return nil
}
