package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rl1809/pokestore/internal/core/domain"
	"github.com/rl1809/pokestore/internal/pkg/logging"
	"github.com/rl1809/pokestore/internal/port"
)

type ItemService struct {
	items port.ItemRepository
}

func NewItemService(items port.ItemRepository) *ItemService {
	return &ItemService{items: items}
}

func (s *ItemService) List(ctx context.Context) ([]domain.Item, error) {
	items, err := s.items.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	if items == nil {
		items = []domain.Item{}
	}
	return items, nil
}

// Create stores a new item. A nil stock falls back to domain.DefaultStock.
func (s *ItemService) Create(ctx context.Context, name string, price int, stock *int) (*domain.Item, error) {
	created, err := s.items.Create(ctx, domain.NewItem(name, price, stock))
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateName) {
			return nil, err
		}
		logging.FromContext(ctx).Error("item_create_failed", zap.String("item", name), zap.Error(err))
		return nil, fmt.Errorf("create item: %w", err)
	}
	return created, nil
}

func (s *ItemService) Update(ctx context.Context, name string, patch domain.ItemPatch) (*domain.Item, error) {
	updated, err := s.items.Update(ctx, name, patch)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		logging.FromContext(ctx).Error("item_update_failed", zap.String("item", name), zap.Error(err))
		return nil, fmt.Errorf("update item: %w", err)
	}
	return updated, nil
}

// Delete removes the named item and reports how many were removed.
func (s *ItemService) Delete(ctx context.Context, name string) (int64, error) {
	n, err := s.items.DeleteByName(ctx, name)
	if err != nil {
		logging.FromContext(ctx).Error("item_delete_failed", zap.String("item", name), zap.Error(err))
		return 0, fmt.Errorf("delete item: %w", err)
	}
	return n, nil
}
