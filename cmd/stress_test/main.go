package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/pokestore/internal/adapter/storage"
	"github.com/rl1809/pokestore/internal/core/domain"
	"github.com/rl1809/pokestore/internal/core/service"
)

const (
	itemName      = "Pikachu"
	itemPrice     = 20
	initialStock  = 20
	totalRequests = 50
	queueSize     = 100
)

// countingGateway approves every charge and counts them.
type countingGateway struct {
	charges atomic.Int32
}

func (g *countingGateway) Charge(ctx context.Context, amount int64, meta domain.ChargeMetadata) (domain.ChargeResult, error) {
	n := g.charges.Add(1)
	time.Sleep(5 * time.Millisecond)
	return domain.ChargeResult{Paid: true, TransactionID: fmt.Sprintf("stress-%d", n), Status: "paid"}, nil
}

func main() {
	ctx := context.Background()

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer rdb.Close()

	// Clear previous test data
	rdb.Del(ctx, "lock:item:"+itemName)

	// Initialize store and service
	store := storage.NewMemoryAdapter()
	stock := initialStock
	if _, err := store.Create(ctx, domain.NewItem(itemName, itemPrice, &stock)); err != nil {
		log.Fatalf("failed to create item: %v", err)
	}

	gateway := &countingGateway{}
	purchaseService := service.NewPurchaseService(store, gateway,
		service.WithCache(storage.NewRedisAdapter(rdb)),
		service.WithLock(10*time.Second, 30*time.Second),
		service.WithQueueSize(queueSize),
	)
	defer purchaseService.Close()

	// Drain the reconciliation queue in background
	go func() {
		for range purchaseService.GetReconciliationQueue() {
		}
	}()

	// Counters
	var successCount atomic.Int32
	var soldOutCount atomic.Int32
	var errorCount atomic.Int32

	// Spawn concurrent requests
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			out, err := purchaseService.Purchase(ctx, domain.PurchaseRequest{Name: itemName, Quantity: 1})
			switch {
			case err != nil:
				errorCount.Add(1)
			case out.Status == domain.OutcomePaid:
				successCount.Add(1)
			case out.Status == domain.OutcomeInsufficientStock:
				soldOutCount.Add(1)
			default:
				errorCount.Add(1)
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	success := successCount.Load()
	soldOut := soldOutCount.Load()
	charges := gateway.charges.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Paid:             %d\n", success)
	fmt.Printf("Sold Out:         %d\n", soldOut)
	fmt.Printf("Errors:           %d\n", errorCount.Load())
	fmt.Printf("Gateway Charges:  %d\n", charges)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	// Assertions
	if success == int32(initialStock) && soldOut == int32(totalRequests-initialStock) {
		fmt.Printf("PASS: Exactly %d purchases paid, %d sold out\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: Expected %d paid/%d sold out, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, soldOut)
	}

	if charges == int32(initialStock) {
		fmt.Println("PASS: No buyer was charged without stock")
	} else {
		fmt.Printf("FAIL: Expected %d charges, got %d\n", initialStock, charges)
	}

	item, _ := store.FindByName(ctx, itemName)
	if item != nil && item.Stock == 0 {
		fmt.Println("PASS: Stock depleted to 0")
	} else {
		fmt.Printf("FAIL: Expected stock 0, got %+v\n", item)
	}
}
