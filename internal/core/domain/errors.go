package domain

import (
	"errors"
	"strings"
)

var (
	ErrNotFound           = errors.New("item not found")
	ErrDuplicateName      = errors.New("item name already exists")
	ErrStockConflict      = errors.New("stock changed concurrently")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrPurchaseInProgress = errors.New("another purchase for this item is in progress")
	ErrDuplicateRequest   = errors.New("duplicate request")
	ErrShuttingDown       = errors.New("purchases are no longer accepted")
)

// ValidationError carries every problem found in a request body.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Messages, "; ")
}
