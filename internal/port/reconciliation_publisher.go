package port

import (
	"context"

	"github.com/rl1809/pokestore/internal/core/domain"
)

type ReconciliationPublisher interface {
	Publish(ctx context.Context, event domain.ReconciliationEvent) error
}
