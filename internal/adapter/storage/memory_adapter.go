package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/rl1809/pokestore/internal/core/domain"
)

// MemoryAdapter keeps items in process memory. Used for local runs and tests.
type MemoryAdapter struct {
	mu    sync.RWMutex
	items map[string]domain.Item
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{items: make(map[string]domain.Item)}
}

func (m *MemoryAdapter) Migrate(ctx context.Context) error {
	return nil
}

func (m *MemoryAdapter) FindByName(ctx context.Context, name string) (*domain.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	it, ok := m.items[name]
	if !ok {
		return nil, nil
	}
	return &it, nil
}

func (m *MemoryAdapter) FindAll(ctx context.Context) ([]domain.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := make([]domain.Item, 0, len(m.items))
	for _, it := range m.items {
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

func (m *MemoryAdapter) Create(ctx context.Context, item domain.Item) (*domain.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[item.Name]; ok {
		return nil, domain.ErrDuplicateName
	}
	m.items[item.Name] = item
	return &item, nil
}

func (m *MemoryAdapter) DeleteByName(ctx context.Context, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[name]; !ok {
		return 0, nil
	}
	delete(m.items, name)
	return 1, nil
}

func (m *MemoryAdapter) Update(ctx context.Context, name string, patch domain.ItemPatch) (*domain.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[name]
	if !ok {
		return nil, domain.ErrNotFound
	}
	it = it.Apply(patch)
	m.items[name] = it
	return &it, nil
}

func (m *MemoryAdapter) DecrementStock(ctx context.Context, name string, quantity int) (*domain.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[name]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if it.Stock < quantity {
		return nil, domain.ErrStockConflict
	}
	it = it.Apply(domain.ItemPatch{Stock: intPtr(it.Stock - quantity)})
	m.items[name] = it
	return &it, nil
}

func intPtr(v int) *int { return &v }
