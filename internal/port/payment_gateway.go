package port

import (
	"context"

	"github.com/rl1809/pokestore/internal/core/domain"
)

type PaymentGateway interface {
	// Charge attempts a payment of amount minor units. Transport failures wrap domain.ErrGatewayUnavailable.
	Charge(ctx context.Context, amount int64, meta domain.ChargeMetadata) (domain.ChargeResult, error)
}
