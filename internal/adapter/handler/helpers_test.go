package handler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/pokestore/internal/adapter/storage"
	"github.com/rl1809/pokestore/internal/core/domain"
	"github.com/rl1809/pokestore/internal/core/service"
	"github.com/rl1809/pokestore/internal/metrics"
)

var errStorage = errors.New("storage unavailable")

type fakeGateway struct {
	paid  bool
	err   error
	calls atomic.Int32
}

func (g *fakeGateway) Charge(ctx context.Context, amount int64, meta domain.ChargeMetadata) (domain.ChargeResult, error) {
	g.calls.Add(1)
	if g.err != nil {
		return domain.ChargeResult{}, g.err
	}
	return domain.ChargeResult{Paid: g.paid, TransactionID: "tx-1", Status: "paid"}, nil
}

// flakyRepo wraps the memory store and fails the operations selected by the test.
type flakyRepo struct {
	*storage.MemoryAdapter
	failFind      bool
	failWrite     bool
	failDecrement bool
}

func (r *flakyRepo) FindByName(ctx context.Context, name string) (*domain.Item, error) {
	if r.failFind {
		return nil, errStorage
	}
	return r.MemoryAdapter.FindByName(ctx, name)
}

func (r *flakyRepo) FindAll(ctx context.Context) ([]domain.Item, error) {
	if r.failFind {
		return nil, errStorage
	}
	return r.MemoryAdapter.FindAll(ctx)
}

func (r *flakyRepo) Create(ctx context.Context, item domain.Item) (*domain.Item, error) {
	if r.failWrite {
		return nil, errStorage
	}
	return r.MemoryAdapter.Create(ctx, item)
}

func (r *flakyRepo) Update(ctx context.Context, name string, patch domain.ItemPatch) (*domain.Item, error) {
	if r.failWrite {
		return nil, errStorage
	}
	return r.MemoryAdapter.Update(ctx, name, patch)
}

func (r *flakyRepo) DeleteByName(ctx context.Context, name string) (int64, error) {
	if r.failWrite {
		return 0, errStorage
	}
	return r.MemoryAdapter.DeleteByName(ctx, name)
}

func (r *flakyRepo) DecrementStock(ctx context.Context, name string, quantity int) (*domain.Item, error) {
	if r.failDecrement {
		return nil, errStorage
	}
	return r.MemoryAdapter.DecrementStock(ctx, name, quantity)
}

type testEnv struct {
	repo      *flakyRepo
	gateway   *fakeGateway
	purchases *service.PurchaseService
	handler   *HTTPHandler
	registry  *prometheus.Registry
}

func newTestEnv(t *testing.T, items ...domain.Item) *testEnv {
	t.Helper()

	repo := &flakyRepo{MemoryAdapter: storage.NewMemoryAdapter()}
	for _, it := range items {
		_, err := repo.MemoryAdapter.Create(context.Background(), it)
		require.NoError(t, err)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	gw := &fakeGateway{paid: true}
	purchases := service.NewPurchaseService(repo, gw, service.WithMetrics(m), service.WithQueueSize(10))
	t.Cleanup(purchases.Close)

	return &testEnv{
		repo:      repo,
		gateway:   gw,
		purchases: purchases,
		handler:   NewHTTPHandler(service.NewItemService(repo), purchases, nil, m, reg),
		registry:  reg,
	}
}

func pikachu() domain.Item {
	return domain.Item{Name: "Pikachu", Price: 20, Stock: 4}
}
