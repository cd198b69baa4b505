// Package risk talks to the external risk gateway: the remote service that
// approves, adjusts, or rejects each order and mirrors position state. The
// ledger treats gateway transport failures as recoverable and falls back to
// its local checks, so errors from this package never reach the strategy.
package risk

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/SamoraDC/Phantom-Flow/broker"
)

// CheckRequest asks the gateway to rule on a prospective order.
type CheckRequest struct {
	Symbol   string
	Side     broker.Side
	Quantity decimal.Decimal
}

// CheckResponse is the gateway's ruling. When Adjusted is set, AdjustedQty
// is the quantity the gateway wants instead.
type CheckResponse struct {
	Approved    bool
	Adjusted    bool
	AdjustedQty decimal.Decimal
	Reason      string
}

// PositionUpdate mirrors a post-trade position to the gateway.
type PositionUpdate struct {
	Symbol     string
	Quantity   decimal.Decimal
	EntryPrice decimal.Decimal
}

// Gateway is the remote decision surface the ledger consults.
type Gateway interface {
	CheckOrder(ctx context.Context, req CheckRequest) (CheckResponse, error)

	// UpdatePosition is best-effort from the caller's point of view: the
	// ledger logs a failure and moves on.
	UpdatePosition(ctx context.Context, update PositionUpdate) error
}
