package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/SamoraDC/Phantom-Flow/broker"
)

// Journal is the persistence store the ledger writes through. All saves are
// idempotent upserts keyed by id (orders, trades) or symbol (positions), so
// a caller can safely retry after a failure.
type Journal interface {
	SaveOrder(ctx context.Context, o broker.Order) error
	SaveTrade(ctx context.Context, t broker.Trade) error
	SavePosition(ctx context.Context, p broker.Position) error

	// Positions returns every stored position, used to rehydrate the
	// ledger's in-memory map at startup.
	Positions(ctx context.Context) ([]broker.Position, error)

	// Trades returns executed trades, newest first, narrowed by q.
	Trades(ctx context.Context, q TradeQuery) ([]broker.Trade, error)

	// TradeCountToday counts trades executed since UTC midnight, used to
	// enforce the daily trade cap.
	TradeCountToday(ctx context.Context) (int, error)

	// SnapshotAccount appends a point-in-time account record.
	SnapshotAccount(ctx context.Context, a broker.Account, positions []broker.Position) error

	Close() error
}

// TradeQuery narrows a Trades call. Zero values mean "no filter";
// Limit defaults to 1000.
type TradeQuery struct {
	Symbol string
	Since  time.Time
	Until  time.Time
	Limit  int
}

// DailyStats is one end-of-day summary row.
type DailyStats struct {
	Date            time.Time
	StartingBalance decimal.Decimal
	EndingBalance   decimal.Decimal
	PnL             decimal.Decimal
	TradesCount     int
	WinningTrades   int
	LosingTrades    int
	MaxDrawdown     decimal.Decimal
}

// positionsJSON renders positions for the snapshot blob column.
func positionsJSON(positions []broker.Position) (string, error) {
	if positions == nil {
		positions = []broker.Position{}
	}
	blob, err := json.Marshal(positions)
	if err != nil {
		return "", fmt.Errorf("marshal positions: %w", err)
	}
	return string(blob), nil
}
