package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rl1809/pokestore/internal/adapter/handler/pb"
	"github.com/rl1809/pokestore/internal/core/domain"
	"github.com/rl1809/pokestore/internal/core/service"
	"github.com/rl1809/pokestore/internal/pkg/logging"
)

const idempotencyKeyMetadata = "idempotency-key"

type GRPCHandler struct {
	pb.UnimplementedOrderServiceServer
	purchaseService *service.PurchaseService
}

func NewGRPCHandler(purchaseService *service.PurchaseService) *GRPCHandler {
	return &GRPCHandler{purchaseService: purchaseService}
}

// Purchase accepts {name, quantity} and answers with the purchase outcome.
func (h *GRPCHandler) Purchase(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	raw, err := req.MarshalJSON()
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid request")
	}
	body, err := decodeBody[purchaseRequest](bytes.NewReader(raw))
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	var idempotencyKey string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if keys := md.Get(idempotencyKeyMetadata); len(keys) > 0 {
			idempotencyKey = keys[0]
		}
	}
	purchase := body.toDomain(idempotencyKey)

	out, err := h.purchaseService.Purchase(ctx, purchase)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrDuplicateRequest):
			return nil, status.Error(codes.AlreadyExists, "duplicate request")
		case errors.Is(err, domain.ErrPurchaseInProgress):
			return nil, status.Error(codes.Aborted, "another purchase of this pokemon is in progress")
		case errors.Is(err, domain.ErrShuttingDown):
			return nil, status.Error(codes.Unavailable, "service is shutting down")
		default:
			logging.FromContext(ctx).Error("grpc_purchase_failed", zap.Error(err))
			return nil, status.Error(codes.Internal, "internal error")
		}
	}

	switch out.Status {
	case domain.OutcomePaid, domain.OutcomePaidButPersistFailed:
		return outcomeStruct(out)
	case domain.OutcomeInsufficientStock:
		return nil, status.Errorf(codes.FailedPrecondition, "Not enough %s in stock: %d", out.Item.Name, out.Item.Stock)
	case domain.OutcomePaymentDeclined:
		return nil, status.Error(codes.PermissionDenied, "payment declined")
	case domain.OutcomeNotFound:
		return nil, status.Error(codes.NotFound, "pokemon not found")
	default:
		return nil, status.Error(codes.Internal, fmt.Sprintf("unexpected purchase outcome %q", out.Status))
	}
}

func outcomeStruct(out domain.Outcome) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(map[string]interface{}{
		"status":         string(out.Status),
		"name":           out.Item.Name,
		"price":          out.Item.Price,
		"stock":          out.Item.Stock,
		"shortfall":      out.Shortfall,
		"transaction_id": out.TransactionID,
	})
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	return s, nil
}

// UnaryLoggingInterceptor puts a request-scoped logger in the context and logs each call.
func UnaryLoggingInterceptor(base *zap.Logger) grpc.UnaryServerInterceptor {
	if base == nil {
		base = zap.L()
	}
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		logger := base.With(
			zap.String("request_id", uuid.NewString()),
			zap.String("grpc_method", info.FullMethod),
		)
		ctx = logging.NewContext(ctx, logger)

		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Info("grpc_access",
			zap.String("code", status.Code(err).String()),
			zap.Duration("duration", time.Since(start)),
		)
		return resp, err
	}
}
