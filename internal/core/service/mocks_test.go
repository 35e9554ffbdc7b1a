package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/pokestore/internal/core/domain"
)

// Mock ItemRepository
type mockItemRepo struct {
	mu             sync.Mutex
	items          map[string]domain.Item
	findErr        error
	decrementErr   error
	decrementCalls int
}

func newMockItemRepo(items ...domain.Item) *mockItemRepo {
	m := &mockItemRepo{items: make(map[string]domain.Item)}
	for _, it := range items {
		m.items[it.Name] = it
	}
	return m
}

func (m *mockItemRepo) stockOf(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[name].Stock
}

func (m *mockItemRepo) FindByName(ctx context.Context, name string) (*domain.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	it, ok := m.items[name]
	if !ok {
		return nil, nil
	}
	return &it, nil
}

func (m *mockItemRepo) FindAll(ctx context.Context) ([]domain.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	out := make([]domain.Item, 0, len(m.items))
	for _, it := range m.items {
		out = append(out, it)
	}
	return out, nil
}

func (m *mockItemRepo) Create(ctx context.Context, item domain.Item) (*domain.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[item.Name]; ok {
		return nil, domain.ErrDuplicateName
	}
	m.items[item.Name] = item
	return &item, nil
}

func (m *mockItemRepo) DeleteByName(ctx context.Context, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[name]; !ok {
		return 0, nil
	}
	delete(m.items, name)
	return 1, nil
}

func (m *mockItemRepo) Update(ctx context.Context, name string, patch domain.ItemPatch) (*domain.Item, error) {
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

func (m *mockItemRepo) DecrementStock(ctx context.Context, name string, quantity int) (*domain.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decrementCalls++
	if m.decrementErr != nil {
		return nil, m.decrementErr
	}
	it, ok := m.items[name]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if it.Stock < quantity {
		return nil, domain.ErrStockConflict
	}
	it.Stock -= quantity
	m.items[name] = it
	return &it, nil
}

// Mock PaymentGateway
type mockGateway struct {
	paid       bool
	err        error
	calls      atomic.Int32
	lastAmount atomic.Int64
	lastMeta   atomic.Value
	onCharge   func(ctx context.Context)
}

func (g *mockGateway) Charge(ctx context.Context, amount int64, meta domain.ChargeMetadata) (domain.ChargeResult, error) {
	n := g.calls.Add(1)
	g.lastAmount.Store(amount)
	g.lastMeta.Store(meta)
	if g.onCharge != nil {
		g.onCharge(ctx)
	}
	if g.err != nil {
		return domain.ChargeResult{}, g.err
	}
	status := "refused"
	if g.paid {
		status = "paid"
	}
	return domain.ChargeResult{
		Paid:          g.paid,
		TransactionID: fmt.Sprintf("tx-%d", n),
		Status:        status,
	}, nil
}

// Mock CacheRepository
type mockCacheRepo struct {
	mu             sync.Mutex
	locks          map[string]string
	idempotencySet map[string]bool
	releases       int
}

func newMockCacheRepo() *mockCacheRepo {
	return &mockCacheRepo{
		locks:          make(map[string]string),
		idempotencySet: make(map[string]bool),
	}
}

func (m *mockCacheRepo) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.locks[key]; held {
		return "", false, nil
	}
	token := uuid.NewString()
	m.locks[key] = token
	return token, true, nil
}

func (m *mockCacheRepo) ReleaseLock(ctx context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[key] == token {
		delete(m.locks, key)
		m.releases++
	}
	return nil
}

func (m *mockCacheRepo) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.idempotencySet[key] {
		return false, nil
	}
	m.idempotencySet[key] = true
	return true, nil
}

func (m *mockCacheRepo) ClearIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.idempotencySet, key)
	return nil
}

// Mock ReconciliationPublisher
type mockPublisher struct {
	mu        sync.Mutex
	failFirst int
	attempts  int
	published []domain.ReconciliationEvent
}

func (p *mockPublisher) Publish(ctx context.Context, event domain.ReconciliationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts++
	if p.attempts <= p.failFirst {
		return fmt.Errorf("broker unavailable")
	}
	p.published = append(p.published, event)
	return nil
}

func pikachu(stock int) domain.Item {
	return domain.Item{Name: "Pikachu", Price: 20, Stock: stock}
}
