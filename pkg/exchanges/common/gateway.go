package common

import (
	"context"
	"errors"
)

// ErrDuplicateClientID is matched by venue errors rejecting an order whose
// client order id was already used.
var ErrDuplicateClientID = errors.New("duplicate client order id")

// Gateway abstracts the trading venue.
type Gateway interface {
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
}

// OrderQuerier is implemented by venues that can look an order up by the
// client order id it was submitted with.
type OrderQuerier interface {
	QueryOrder(ctx context.Context, symbol, clientID string) (OrderResult, error)
}

// LeverageSetter is implemented by venues that support per-symbol leverage.
type LeverageSetter interface {
	SetLeverage(ctx context.Context, symbol string, leverage int) error
}
