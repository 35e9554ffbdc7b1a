package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/pokestore/internal/core/domain"
	"github.com/rl1809/pokestore/internal/core/service"
)

type approvingGateway struct {
	charges atomic.Int32
}

func (g *approvingGateway) Charge(ctx context.Context, amount int64, meta domain.ChargeMetadata) (domain.ChargeResult, error) {
	g.charges.Add(1)
	return domain.ChargeResult{Paid: true, TransactionID: uuid.NewString(), Status: "paid"}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.ReconciliationEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, event domain.ReconciliationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

type integrationEnv struct {
	db    *MySQLAdapter
	cache *RedisAdapter
}

func setupIntegrationEnv(t *testing.T) *integrationEnv {
	rdb := getRedisClient(t)
	t.Cleanup(func() { rdb.Close() })

	db := getMySQLDB(t)
	t.Cleanup(func() { db.Close() })

	adapter := NewMySQLAdapter(db)
	if err := adapter.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}

	return &integrationEnv{db: adapter, cache: NewRedisAdapter(rdb)}
}

func TestIntegration_ConcurrentPurchases(t *testing.T) {
	env := setupIntegrationEnv(t)

	ctx := context.Background()
	name := "Integration" + uuid.NewString()[:8]
	initialStock := 10
	if _, err := env.db.Create(ctx, domain.NewItem(name, 20, &initialStock)); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	gw := &approvingGateway{}
	svc := service.NewPurchaseService(env.db, gw,
		service.WithCache(env.cache),
		service.WithLock(5*time.Second, 30*time.Second),
	)
	defer svc.Close()

	var paid atomic.Int32
	var wg sync.WaitGroup
	totalRequests := 20
	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := svc.Purchase(ctx, domain.PurchaseRequest{Name: name, Quantity: 1})
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if out.Status == domain.OutcomePaid {
				paid.Add(1)
			}
		}()
	}
	wg.Wait()

	if paid.Load() != int32(initialStock) {
		t.Errorf("expected %d paid purchases, got %d", initialStock, paid.Load())
	}
	if gw.charges.Load() != int32(initialStock) {
		t.Errorf("expected %d charges, got %d", initialStock, gw.charges.Load())
	}

	item, err := env.db.FindByName(ctx, name)
	if err != nil || item == nil {
		t.Fatalf("find item: %v", err)
	}
	if item.Stock != 0 {
		t.Errorf("expected MySQL stock 0, got %d", item.Stock)
	}

	env.db.DeleteByName(ctx, name)
}

func TestIntegration_PersistFailureIsReconciled(t *testing.T) {
	env := setupIntegrationEnv(t)

	ctx := context.Background()
	name := "Vanishing" + uuid.NewString()[:8]
	if _, err := env.db.Create(ctx, domain.NewItem(name, 20, nil)); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	// The row disappears between the stock check and the decrement.
	gw := &deletingGateway{onCharge: func() { env.db.DeleteByName(context.Background(), name) }}
	svc := service.NewPurchaseService(env.db, gw, service.WithCache(env.cache))

	pub := &recordingPublisher{}
	worker := service.NewReconciliationWorker(pub, nil, nil)
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(0, svc.GetReconciliationQueue())
	}()

	out, err := svc.Purchase(ctx, domain.PurchaseRequest{Name: name, Quantity: 1})
	if err != nil {
		t.Fatalf("purchase failed: %v", err)
	}
	if out.Status != domain.OutcomePaidButPersistFailed {
		t.Errorf("expected paid_persist_failed, got %s", out.Status)
	}

	svc.Close()
	<-done

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.events) != 1 || pub.events[0].ItemName != name {
		t.Errorf("expected one reconciliation event for %s, got %+v", name, pub.events)
	}
}

func TestIntegration_IdempotencyPreventsDoubleCharge(t *testing.T) {
	env := setupIntegrationEnv(t)

	ctx := context.Background()
	name := "Idem" + uuid.NewString()[:8]
	stock := 10
	if _, err := env.db.Create(ctx, domain.NewItem(name, 20, &stock)); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	gw := &approvingGateway{}
	svc := service.NewPurchaseService(env.db, gw, service.WithCache(env.cache))
	defer svc.Close()

	req := domain.PurchaseRequest{Name: name, Quantity: 1, IdempotencyKey: "same-request-id-" + uuid.NewString()}

	if _, err := svc.Purchase(ctx, req); err != nil {
		t.Fatalf("first purchase failed: %v", err)
	}

	_, err := svc.Purchase(ctx, req)
	if err != domain.ErrDuplicateRequest {
		t.Errorf("expected ErrDuplicateRequest, got: %v", err)
	}

	if gw.charges.Load() != 1 {
		t.Errorf("expected 1 charge, got %d", gw.charges.Load())
	}
	item, _ := env.db.FindByName(ctx, name)
	if item == nil || item.Stock != 9 {
		t.Errorf("expected stock 9, got %+v", item)
	}

	env.db.DeleteByName(ctx, name)
}

type deletingGateway struct {
	onCharge func()
}

func (g *deletingGateway) Charge(ctx context.Context, amount int64, meta domain.ChargeMetadata) (domain.ChargeResult, error) {
	g.onCharge()
	return domain.ChargeResult{Paid: true, TransactionID: uuid.NewString(), Status: "paid"}, nil
}
