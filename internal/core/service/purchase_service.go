package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/pokestore/internal/core/domain"
	"github.com/rl1809/pokestore/internal/metrics"
	"github.com/rl1809/pokestore/internal/pkg/logging"
	"github.com/rl1809/pokestore/internal/port"
)

const (
	chargeProduct        = "pokemon"
	itemLockKeyPrefix    = "lock:item:"
	idempotencyKeyPrefix = "idempotency:purchase:"
	lockPollInterval     = 50 * time.Millisecond
	lockReleaseTimeout   = 2 * time.Second
	defaultLockTTL       = 30 * time.Second
	defaultLockWait      = 2 * time.Second
	defaultQueueSize     = 1000
)

type PurchaseService struct {
	items          port.ItemRepository
	gateway        port.PaymentGateway
	cache          port.CacheRepository
	metrics        *metrics.Metrics
	tracer         trace.Tracer
	lockTTL        time.Duration
	lockWait       time.Duration
	reconcileQueue chan domain.ReconciliationEvent

	// mu guards closed; inflight counts purchases that may still enqueue.
	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

type PurchaseOption func(*purchaseOptions)

type purchaseOptions struct {
	cache     port.CacheRepository
	metrics   *metrics.Metrics
	lockTTL   time.Duration
	lockWait  time.Duration
	queueSize int
}

// WithCache enables per-item purchase locks and idempotency keys.
func WithCache(cache port.CacheRepository) PurchaseOption {
	return func(o *purchaseOptions) { o.cache = cache }
}

func WithMetrics(m *metrics.Metrics) PurchaseOption {
	return func(o *purchaseOptions) { o.metrics = m }
}

// WithLock sets how long an item lock lives and how long a purchase waits to get it.
func WithLock(ttl, wait time.Duration) PurchaseOption {
	return func(o *purchaseOptions) {
		o.lockTTL = ttl
		o.lockWait = wait
	}
}

func WithQueueSize(size int) PurchaseOption {
	return func(o *purchaseOptions) { o.queueSize = size }
}

func NewPurchaseService(items port.ItemRepository, gateway port.PaymentGateway, opts ...PurchaseOption) *PurchaseService {
	o := purchaseOptions{
		lockTTL:   defaultLockTTL,
		lockWait:  defaultLockWait,
		queueSize: defaultQueueSize,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &PurchaseService{
		items:          items,
		gateway:        gateway,
		cache:          o.cache,
		metrics:        o.metrics,
		tracer:         otel.Tracer("pokestore/purchase"),
		lockTTL:        o.lockTTL,
		lockWait:       o.lockWait,
		reconcileQueue: make(chan domain.ReconciliationEvent, o.queueSize),
	}
}

// Purchase runs one purchase attempt: lookup, stock check, charge, stock decrement.
// Business branches are reported through the returned Outcome; a non-nil error means
// the attempt failed unexpectedly (storage, gateway transport, lock contention).
func (s *PurchaseService) Purchase(ctx context.Context, req domain.PurchaseRequest) (out domain.Outcome, err error) {
	if !s.begin() {
		return domain.Outcome{}, domain.ErrShuttingDown
	}
	defer s.inflight.Done()

	ctx, span := s.tracer.Start(ctx, "UC.Purchase", trace.WithAttributes(
		attribute.String("item.name", req.Name),
		attribute.Int("purchase.quantity", req.Quantity),
	))
	logger := logging.FromContext(ctx).With(
		zap.String("item", req.Name),
		zap.Int("quantity", req.Quantity),
	)

	defer func() {
		outcome := string(out.Status)
		if err != nil && outcome == "" {
			outcome = "error"
		}
		span.SetAttributes(attribute.String("purchase.outcome", outcome))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		} else {
			span.SetStatus(codes.Ok, outcome)
		}
		span.End()
		s.metrics.ObservePurchase(outcome)
	}()

	// settled is set once the gateway has given a definite answer. Until then
	// the idempotency key is cleared on return so the request can be retried.
	var settled bool
	if req.IdempotencyKey != "" && s.cache != nil {
		key := idempotencyKeyPrefix + req.IdempotencyKey
		ok, err := s.cache.SetIdempotency(ctx, key)
		if err != nil {
			return domain.Outcome{}, fmt.Errorf("idempotency check failed: %w", err)
		}
		if !ok {
			return domain.Outcome{}, domain.ErrDuplicateRequest
		}
		defer func() {
			if !settled {
				s.clearIdempotency(ctx, key)
			}
		}()
	}

	release, err := s.lockItem(ctx, req.Name)
	if err != nil {
		return domain.Outcome{}, err
	}
	defer release()

	item, err := s.items.FindByName(ctx, req.Name)
	if err != nil {
		return domain.Outcome{}, fmt.Errorf("find item: %w", err)
	}
	if item == nil {
		return domain.Outcome{Status: domain.OutcomeNotFound}, nil
	}

	if item.Stock < req.Quantity {
		return domain.Outcome{
			Status:    domain.OutcomeInsufficientStock,
			Item:      *item,
			Shortfall: req.Quantity - item.Stock,
		}, nil
	}

	if err := ctx.Err(); err != nil {
		return domain.Outcome{}, err
	}
	// Once the charge is issued the attempt must finish even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	amount := domain.Amount(item.Price, req.Quantity)
	charge, err := s.charge(ctx, amount, *item, req.Quantity)
	if err != nil {
		logger.Error("transaction_charge_failed", zap.Int64("amount", amount), zap.Error(err))
		return domain.Outcome{Status: domain.OutcomeTransientError, Item: *item}, fmt.Errorf("charge: %w", err)
	}
	settled = true

	if !charge.Paid {
		logger.Info("transaction_forbidden",
			zap.String("transaction_id", charge.TransactionID),
			zap.String("gateway_status", charge.Status),
		)
		return domain.Outcome{
			Status:        domain.OutcomePaymentDeclined,
			Item:          *item,
			TransactionID: charge.TransactionID,
		}, nil
	}

	attempted := *item
	attempted.Stock -= req.Quantity
	logger.Info("transaction_update_stock",
		zap.String("transaction_id", charge.TransactionID),
		zap.Int("price", item.Price),
		zap.Int("stock", item.Stock),
		zap.Int("new_stock", attempted.Stock),
	)

	updated, err := s.items.DecrementStock(ctx, item.Name, req.Quantity)
	if err != nil {
		// The charge went through; stock is fixed later by reconciliation.
		logger.Error("transaction_failed",
			zap.String("transaction_id", charge.TransactionID),
			zap.Int("attempted_stock", attempted.Stock),
			zap.Error(err),
		)
		s.enqueueReconciliation(logger, domain.NewReconciliationEvent(attempted, req.Quantity, charge, err.Error()))
		return domain.Outcome{
			Status:        domain.OutcomePaidButPersistFailed,
			Item:          attempted,
			TransactionID: charge.TransactionID,
		}, nil
	}

	logger.Info("transaction_success",
		zap.String("transaction_id", charge.TransactionID),
		zap.Int("stock", updated.Stock),
	)
	return domain.Outcome{
		Status:        domain.OutcomePaid,
		Item:          *updated,
		TransactionID: charge.TransactionID,
	}, nil
}

func (s *PurchaseService) charge(ctx context.Context, amount int64, item domain.Item, quantity int) (domain.ChargeResult, error) {
	start := time.Now()
	result, err := s.gateway.Charge(ctx, amount, domain.ChargeMetadata{
		Product:  chargeProduct,
		Name:     item.Name,
		Quantity: quantity,
	})

	outcome := "declined"
	switch {
	case err != nil:
		outcome = "error"
	case result.Paid:
		outcome = "paid"
	}
	s.metrics.ObserveCharge(outcome, time.Since(start))

	return result, err
}

// lockItem serializes purchases of the same item when a cache is configured.
func (s *PurchaseService) lockItem(ctx context.Context, name string) (func(), error) {
	if s.cache == nil {
		return func() {}, nil
	}

	key := itemLockKeyPrefix + name
	deadline := time.Now().Add(s.lockWait)
	for {
		token, ok, err := s.cache.AcquireLock(ctx, key, s.lockTTL)
		if err != nil {
			return nil, fmt.Errorf("acquire item lock: %w", err)
		}
		if ok {
			return func() {
				releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lockReleaseTimeout)
				defer cancel()
				if err := s.cache.ReleaseLock(releaseCtx, key, token); err != nil {
					logging.FromContext(ctx).Warn("item_lock_release_failed",
						zap.String("item", name),
						zap.Error(err),
					)
				}
			}, nil
		}
		if !time.Now().Before(deadline) {
			return nil, domain.ErrPurchaseInProgress
		}

		timer := time.NewTimer(lockPollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (s *PurchaseService) clearIdempotency(ctx context.Context, key string) {
	clearCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lockReleaseTimeout)
	defer cancel()
	if err := s.cache.ClearIdempotency(clearCtx, key); err != nil {
		logging.FromContext(ctx).Warn("idempotency_clear_failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *PurchaseService) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.inflight.Add(1)
	return true
}

func (s *PurchaseService) enqueueReconciliation(logger *zap.Logger, event domain.ReconciliationEvent) {
	select {
	case s.reconcileQueue <- event:
		s.metrics.ObserveReconciliation("queued")
	default:
		s.metrics.ObserveReconciliation("dropped")
		logger.Error("reconciliation_queue_full",
			zap.String("event_id", event.ID),
			zap.String("transaction_id", event.TransactionID),
			zap.Int("attempted_stock", event.AttemptedStock),
		)
	}
}

func (s *PurchaseService) GetReconciliationQueue() <-chan domain.ReconciliationEvent {
	return s.reconcileQueue
}

// Close stops accepting purchases, waits for the running ones to finish and
// then closes the reconciliation queue. It is safe to call more than once.
func (s *PurchaseService) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.inflight.Wait()
	close(s.reconcileQueue)
}

