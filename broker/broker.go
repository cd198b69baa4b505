package broker

import (
	"context"

	"github.com/shopspring/decimal"
)

// Broker is the surface the API layer and CLI drive. The paper
// implementation lives in broker/paper.
type Broker interface {
	SubmitOrder(ctx context.Context, req OrderRequest) (*Order, error)
	ExecuteMarketOrder(ctx context.Context, order *Order, price decimal.Decimal) (*Trade, error)
	Position(symbol string) (Position, bool)
	Positions() []Position
	Account() Account
}
