package port

import (
	"context"

	"github.com/rl1809/pokestore/internal/core/domain"
)

type ItemRepository interface {
	// FindByName returns nil, nil when no item has the given name
	FindByName(ctx context.Context, name string) (*domain.Item, error)

	FindAll(ctx context.Context) ([]domain.Item, error)

	// Create fails with domain.ErrDuplicateName if the name is taken
	Create(ctx context.Context, item domain.Item) (*domain.Item, error)

	// DeleteByName returns the number of removed items (0 or 1)
	DeleteByName(ctx context.Context, name string) (int64, error)

	// Update applies a partial update, domain.ErrNotFound if the item is missing
	Update(ctx context.Context, name string, patch domain.ItemPatch) (*domain.Item, error)

	// DecrementStock atomically removes quantity from stock only when enough is left.
	// Returns domain.ErrNotFound or domain.ErrStockConflict when no row was changed.
	DecrementStock(ctx context.Context, name string, quantity int) (*domain.Item, error)
}
