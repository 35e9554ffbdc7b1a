package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/pokestore/internal/core/domain"
	"github.com/rl1809/pokestore/internal/pkg/logging"
)

const (
	transactionsPath = "/1/transactions"
	paidStatus       = "paid"
	maxErrorBody     = 512
)

// Card is the credit card charged for every purchase.
type Card struct {
	Number         string
	ExpirationDate string
	HolderName     string
	CVV            string
}

type PagarmeConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	Card    Card
}

// PagarmeGateway charges purchases through the pagar.me transactions API.
type PagarmeGateway struct {
	apiKey     string
	endpoint   string
	card       Card
	httpClient *http.Client
}

func NewPagarmeGateway(cfg PagarmeConfig) *PagarmeGateway {
	return &PagarmeGateway{
		apiKey:   cfg.APIKey,
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + transactionsPath,
		card:     cfg.Card,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type transactionRequest struct {
	APIKey             string                `json:"api_key"`
	Amount             int64                 `json:"amount"`
	PaymentMethod      string                `json:"payment_method"`
	CardNumber         string                `json:"card_number"`
	CardExpirationDate string                `json:"card_expiration_date"`
	CardHolderName     string                `json:"card_holder_name"`
	CardCVV            string                `json:"card_cvv"`
	Metadata           domain.ChargeMetadata `json:"metadata"`
}

type transactionResponse struct {
	// ID is a number in v1 responses and a string in later API versions.
	ID     json.RawMessage `json:"id"`
	Status string          `json:"status"`
}

func (g *PagarmeGateway) Charge(ctx context.Context, amount int64, meta domain.ChargeMetadata) (domain.ChargeResult, error) {
	body, err := json.Marshal(transactionRequest{
		APIKey:             g.apiKey,
		Amount:             amount,
		PaymentMethod:      "credit_card",
		CardNumber:         g.card.Number,
		CardExpirationDate: g.card.ExpirationDate,
		CardHolderName:     g.card.HolderName,
		CardCVV:            g.card.CVV,
		Metadata:           meta,
	})
	if err != nil {
		return domain.ChargeResult{}, fmt.Errorf("encode transaction: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.ChargeResult{}, fmt.Errorf("build transaction request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return domain.ChargeResult{}, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return domain.ChargeResult{}, fmt.Errorf("%w: status %d: %s",
			domain.ErrGatewayUnavailable, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var tx transactionResponse
	if err := json.NewDecoder(resp.Body).Decode(&tx); err != nil {
		return domain.ChargeResult{}, fmt.Errorf("%w: decode response: %v", domain.ErrGatewayUnavailable, err)
	}

	result := domain.ChargeResult{
		Paid:          tx.Status == paidStatus,
		TransactionID: strings.Trim(string(tx.ID), `"`),
		Status:        tx.Status,
	}
	logging.FromContext(ctx).Info("transaction_charge",
		zap.String("id", result.TransactionID),
		zap.Bool("paid", result.Paid),
		zap.Int64("amount", amount),
	)
	return result, nil
}
