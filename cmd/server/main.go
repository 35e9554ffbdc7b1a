package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rl1809/pokestore/internal/adapter/handler"
	"github.com/rl1809/pokestore/internal/adapter/handler/pb"
	"github.com/rl1809/pokestore/internal/adapter/messaging"
	"github.com/rl1809/pokestore/internal/adapter/payment"
	"github.com/rl1809/pokestore/internal/adapter/storage"
	"github.com/rl1809/pokestore/internal/config"
	"github.com/rl1809/pokestore/internal/core/service"
	"github.com/rl1809/pokestore/internal/metrics"
	"github.com/rl1809/pokestore/internal/pkg/logging"
	"github.com/rl1809/pokestore/internal/port"
)

const shutdownTimeout = 5 * time.Second

// itemStore is an ItemRepository that can create its own schema.
type itemStore interface {
	port.ItemRepository
	Migrate(ctx context.Context) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger, _ := logging.New(logging.Options{Service: "pokestore"})
		bootLogger.Fatal("config_load_failed", zap.Error(err))
	}

	logger, err := logging.New(logging.Options{
		Service: cfg.ServiceName,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		File:    cfg.LogFile,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize item store
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal("store_connect_failed", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer closeStore()
	logger.Info("store_connected", zap.String("driver", cfg.StoreDriver))

	if cfg.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			logger.Fatal("store_migrate_failed", zap.Error(err))
		}
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	gateway := payment.NewPagarmeGateway(payment.PagarmeConfig{
		APIKey:  cfg.Pagarme.APIKey,
		BaseURL: cfg.Pagarme.URL,
		Timeout: cfg.Pagarme.Timeout,
		Card: payment.Card{
			Number:         cfg.Pagarme.CardNumber,
			ExpirationDate: cfg.Pagarme.CardExpirationDate,
			HolderName:     cfg.Pagarme.CardHolderName,
			CVV:            cfg.Pagarme.CardCVV,
		},
	})

	opts := []service.PurchaseOption{
		service.WithMetrics(m),
		service.WithLock(cfg.LockTTL, cfg.LockWait),
		service.WithQueueSize(cfg.QueueSize),
	}

	// Initialize Redis (optional)
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			PoolSize: 100,
		})
		cache := storage.NewRedisAdapter(rdb)
		if err := cache.Ping(ctx); err != nil {
			logger.Fatal("redis_connect_failed", zap.Error(err))
		}
		opts = append(opts, service.WithCache(cache))
		logger.Info("redis_connected", zap.String("addr", cfg.RedisAddr))
	}

	// Reconciliation publisher
	var publisher port.ReconciliationPublisher = messaging.NewLogPublisher(logger)
	var rabbit *messaging.RabbitMQPublisher
	if cfg.RabbitMQURL != "" {
		rabbit, err = messaging.NewRabbitMQPublisher(messaging.RabbitMQConfig{
			URL:      cfg.RabbitMQURL,
			Exchange: cfg.RabbitMQExchange,
		})
		if err != nil {
			logger.Fatal("rabbitmq_connect_failed", zap.Error(err))
		}
		publisher = rabbit
		logger.Info("rabbitmq_connected", zap.String("exchange", cfg.RabbitMQExchange))
	}

	// Initialize services
	itemService := service.NewItemService(store)
	purchaseService := service.NewPurchaseService(store, gateway, opts...)

	// Start reconciliation workers
	worker := service.NewReconciliationWorker(publisher, logger, m)
	var wg sync.WaitGroup
	for i := 0; i < cfg.WorkerCount; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			worker.Run(id, purchaseService.GetReconciliationQueue())
		}(i)
	}
	logger.Info("workers_started", zap.Int("count", cfg.WorkerCount))

	// Initialize gRPC server
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(handler.UnaryLoggingInterceptor(logger)))
	pb.RegisterOrderServiceServer(grpcServer, handler.NewGRPCHandler(purchaseService))
	healthServer := health.NewServer()
	healthServer.SetServingStatus(pb.OrderServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal("grpc_listen_failed", zap.String("addr", cfg.GRPCAddr), zap.Error(err))
	}

	go func() {
		logger.Info("grpc_server_listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("grpc_server_error", zap.Error(err))
		}
	}()

	// Initialize HTTP server
	httpHandler := handler.NewHTTPHandler(itemService, purchaseService, logger, m, registry)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpHandler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http_server_listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http_server_error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting_down")
	healthServer.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http_shutdown_failed", zap.Error(err))
	}
	logger.Info("http_server_stopped")

	grpcServer.GracefulStop()
	logger.Info("grpc_server_stopped")

	// Close reconciliation queue and wait for workers to drain it
	purchaseService.Close()
	wg.Wait()
	logger.Info("workers_stopped")

	if rabbit != nil {
		rabbit.Close()
	}
	if rdb != nil {
		rdb.Close()
	}
	logger.Info("connections_closed")
}

func openStore(ctx context.Context, cfg *config.Config) (itemStore, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverMySQL:
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			return nil, nil, err
		}
		db.SetMaxOpenConns(50)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return storage.NewMySQLAdapter(db), func() { db.Close() }, nil

	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return storage.NewPostgresAdapter(pool), pool.Close, nil

	default:
		return storage.NewMemoryAdapter(), func() {}, nil
	}
}
