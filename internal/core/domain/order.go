package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	MinQuantity = 1
	MaxQuantity = 99

	minorUnitsPerMajor = 100
)

type PurchaseRequest struct {
	Name     string
	Quantity int

	// IdempotencyKey is optional; a repeated key is rejected with ErrDuplicateRequest.
	IdempotencyKey string
}

type OutcomeStatus string

const (
	OutcomePaid                 OutcomeStatus = "paid"
	OutcomeInsufficientStock    OutcomeStatus = "insufficient_stock"
	OutcomeNotFound             OutcomeStatus = "not_found"
	OutcomePaymentDeclined      OutcomeStatus = "payment_declined"
	OutcomePaidButPersistFailed OutcomeStatus = "paid_persist_failed"
	OutcomeTransientError       OutcomeStatus = "transient_error"
)

// Outcome is the terminal state of one purchase attempt.
type Outcome struct {
	Status        OutcomeStatus
	Item          Item
	Shortfall     int
	TransactionID string
}

// Amount converts a unit price in major currency units to the minor-unit total for quantity.
func Amount(price, quantity int) int64 {
	return int64(price) * minorUnitsPerMajor * int64(quantity)
}

type ChargeMetadata struct {
	Product  string `json:"product"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

type ChargeResult struct {
	Paid          bool
	TransactionID string
	Status        string
}

// ReconciliationEvent records a charge whose stock decrement could not be persisted.
type ReconciliationEvent struct {
	ID             string    `json:"id"`
	ItemName       string    `json:"item_name"`
	Quantity       int       `json:"quantity"`
	Amount         int64     `json:"amount"`
	TransactionID  string    `json:"transaction_id"`
	AttemptedStock int       `json:"attempted_stock"`
	Reason         string    `json:"reason"`
	OccurredAt     time.Time `json:"occurred_at"`
}

func NewReconciliationEvent(item Item, quantity int, charge ChargeResult, reason string) ReconciliationEvent {
	return ReconciliationEvent{
		ID:             uuid.NewString(),
		ItemName:       item.Name,
		Quantity:       quantity,
		Amount:         Amount(item.Price, quantity),
		TransactionID:  charge.TransactionID,
		AttemptedStock: item.Stock,
		Reason:         reason,
		OccurredAt:     time.Now().UTC(),
	}
}
