// Package paper implements the broker ledger: it sequences risk checks,
// applies simulated fills, and owns the position map and account state.
//
// Every order flows guard -> risk gateway -> (market order) simulator ->
// position/account mutation -> journal. One mutex serializes ledger
// mutations and stays held across the mutate-and-persist sequence, so the
// in-memory ledger and the journal cannot diverge between two in-flight
// orders. Remote gateway calls run outside the lock.
package paper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/SamoraDC/Phantom-Flow/broker"
	"github.com/SamoraDC/Phantom-Flow/journal"
	"github.com/SamoraDC/Phantom-Flow/market"
	"github.com/SamoraDC/Phantom-Flow/metrics"
	"github.com/SamoraDC/Phantom-Flow/pkg/id"
	"github.com/SamoraDC/Phantom-Flow/risk"
	"github.com/SamoraDC/Phantom-Flow/safety"
	"github.com/SamoraDC/Phantom-Flow/sim"
)

// Broker is the paper-trading ledger. The guard, gateway, and simulator are
// optional; a nil guard skips admission gates, a nil gateway always falls
// back to local checks, and a nil simulator disables ExecuteBook.
type Broker struct {
	cfg     Config
	journal journal.Journal
	gateway risk.Gateway
	guard   *safety.Guard
	sim     *sim.Simulator
	log     *zap.Logger

	mu        sync.Mutex
	positions map[string]broker.Position
	account   broker.Account
}

var _ broker.Broker = (*Broker)(nil)

// New builds a ledger with an untouched account. Call Rehydrate before
// trading to restore persisted positions.
func New(cfg Config, j journal.Journal, gw risk.Gateway, guard *safety.Guard, simulator *sim.Simulator, log *zap.Logger) *Broker {
	if log == nil {
		log = zap.NewNop()
	}

	b := &Broker{
		cfg:       cfg,
		journal:   j,
		gateway:   gw,
		guard:     guard,
		sim:       simulator,
		log:       log,
		positions: make(map[string]broker.Position),
	}
	b.account = broker.Account{
		Balance:        cfg.InitialBalance,
		Equity:         cfg.InitialBalance,
		InitialBalance: cfg.InitialBalance,
		UpdatedAt:      time.Now().UTC(),
	}
	return b
}

// Rehydrate loads persisted positions into the in-memory map and recomputes
// equity. Called once at startup.
func (b *Broker) Rehydrate(ctx context.Context) error {
	positions, err := b.journal.Positions(ctx)
	if err != nil {
		return fmt.Errorf("rehydrate positions: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.positions = make(map[string]broker.Position, len(positions))
	for _, p := range positions {
		b.positions[p.Symbol] = p
	}
	b.refreshEquityLocked()

	b.log.Info("ledger rehydrated",
		zap.Int("positions", len(positions)),
		zap.String("balance", b.account.Balance.String()),
		zap.String("equity", b.account.Equity.String()))

	return nil
}

// SubmitOrder runs the admission sequence and persists a PENDING order.
// Admission failures come back as typed errors (*safety.ViolationError,
// *broker.RejectError, ErrDailyTradeLimit) that callers treat as a normal
// no-trade outcome; journal failures propagate as faults.
func (b *Broker) SubmitOrder(ctx context.Context, req broker.OrderRequest) (*broker.Order, error) {
	tradesToday, err := b.journal.TradeCountToday(ctx)
	if err != nil {
		return nil, fmt.Errorf("trade count today: %w", err)
	}
	if tradesToday >= b.cfg.MaxDailyTrades {
		b.log.Warn("daily trade limit reached", zap.Int("count", tradesToday))
		metrics.OrdersRejected.WithLabelValues("daily_limit").Inc()
		return nil, broker.ErrDailyTradeLimit
	}

	if b.guard != nil {
		if err := b.guard.TradingAllowed(); err != nil {
			var verr *safety.ViolationError
			if errors.As(err, &verr) {
				metrics.OrdersRejected.WithLabelValues(string(verr.Kind)).Inc()
			}
			return nil, err
		}
	}

	quantity, err := b.checkRisk(ctx, req.Symbol, req.Side, req.Quantity)
	if err != nil {
		metrics.OrdersRejected.WithLabelValues("risk_rejected").Inc()
		return nil, err
	}

	now := time.Now().UTC()
	order := &broker.Order{
		ID:        id.NewOrder(),
		Symbol:    req.Symbol,
		Side:      req.Side,
		Type:      req.Type,
		Quantity:  quantity,
		Price:     req.Price,
		Status:    broker.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := b.journal.SaveOrder(ctx, *order); err != nil {
		return nil, fmt.Errorf("persist order: %w", err)
	}

	if b.guard != nil {
		b.guard.RecordOrder(req.Symbol, req.Price)
	}
	metrics.OrdersSubmitted.WithLabelValues(order.Symbol, string(order.Side)).Inc()

	b.log.Info("order submitted",
		zap.String("order_id", order.ID),
		zap.String("symbol", order.Symbol),
		zap.String("side", string(order.Side)),
		zap.String("quantity", order.Quantity.String()))

	return order, nil
}

// checkRisk consults the remote gateway and returns the (possibly adjusted)
// quantity to trade. Gateway transport failures are recovered by the local
// position-size check and never surface to the caller.
func (b *Broker) checkRisk(ctx context.Context, symbol string, side broker.Side, quantity decimal.Decimal) (decimal.Decimal, error) {
	if b.gateway != nil {
		resp, err := b.gateway.CheckOrder(ctx, risk.CheckRequest{
			Symbol:   symbol,
			Side:     side,
			Quantity: quantity,
		})
		if err == nil {
			if !resp.Approved {
				b.log.Warn("order rejected by risk gateway",
					zap.String("symbol", symbol),
					zap.String("reason", resp.Reason))
				return decimal.Zero, &broker.RejectError{Reason: resp.Reason}
			}
			if resp.Adjusted {
				b.log.Info("order quantity adjusted by risk gateway",
					zap.String("original", quantity.String()),
					zap.String("adjusted", resp.AdjustedQty.String()))
				return resp.AdjustedQty, nil
			}
			return quantity, nil
		}

		b.log.Warn("risk gateway unavailable, using local checks", zap.Error(err))
		metrics.GatewayFallbacks.Inc()
	}

	return b.localRiskCheck(symbol, side, quantity)
}

// localRiskCheck caps the prospective position at MaxPositionSize: reject
// when no room remains, otherwise clamp the order to the remaining size.
func (b *Broker) localRiskCheck(symbol string, side broker.Side, quantity decimal.Decimal) (decimal.Decimal, error) {
	b.mu.Lock()
	current := b.positions[symbol].Quantity
	b.mu.Unlock()

	newQty := current.Add(side.Sign().Mul(quantity))
	if newQty.Abs().LessThanOrEqual(b.cfg.MaxPositionSize) {
		return quantity, nil
	}

	allowed := b.cfg.MaxPositionSize.Sub(current.Abs())
	if !allowed.IsPositive() {
		return decimal.Zero, &broker.RejectError{Reason: "position limit reached"}
	}

	b.log.Info("order clamped to position limit",
		zap.String("symbol", symbol),
		zap.String("original", quantity.String()),
		zap.String("allowed", allowed.String()))
	return allowed, nil
}

// ExecuteMarketOrder fills the order at the reference price moved by the
// configured slippage in the adverse direction. This is the direct
// execution path for manual fills; ExecuteBook simulates against a book.
func (b *Broker) ExecuteMarketOrder(ctx context.Context, order *broker.Order, currentPrice decimal.Decimal) (*broker.Trade, error) {
	slip := currentPrice.Mul(b.cfg.SlippageBPS).Div(decimal.NewFromInt(10000))
	fillPrice := currentPrice.Add(slip)
	if order.Side == broker.Sell {
		fillPrice = currentPrice.Sub(slip)
	}

	return b.applyFill(ctx, order, fillPrice, order.Quantity)
}

// ExecuteBook walks the order through the simulator and applies the
// resulting (possibly partial) fill. Returns broker.ErrNoFill when the
// simulated execution found no liquidity.
func (b *Broker) ExecuteBook(ctx context.Context, order *broker.Order, book *market.Book, volatility float64) (*broker.Trade, error) {
	if b.sim == nil {
		return nil, fmt.Errorf("paper: no simulator configured")
	}

	res := b.sim.MarketOrder(order.Side, order.Quantity, book, volatility)
	metrics.SimulatedLatency.Observe(res.LatencyMS)

	if !res.Filled || res.FillQuantity.IsZero() {
		b.log.Info("no fill from simulated execution",
			zap.String("order_id", order.ID),
			zap.String("symbol", order.Symbol))
		return nil, broker.ErrNoFill
	}

	return b.applyFill(ctx, order, res.FillPrice, res.FillQuantity)
}

// applyFill books one fill: fee, realized P&L, order transition, position
// state machine, account update, persistence. The mutex stays held through
// the journal writes; a journal failure is fatal for the call and the
// position map is not rolled back, leaving retry to the caller against
// idempotent upserts.
func (b *Broker) applyFill(ctx context.Context, order *broker.Order, fillPrice, fillQty decimal.Decimal) (*broker.Trade, error) {
	now := time.Now().UTC()
	fee := fillPrice.Mul(fillQty).Mul(b.cfg.TakerFee)

	b.mu.Lock()

	// Realized P&L exists only when the fill reduces, closes, or flips an
	// opposite-signed position.
	var pnl decimal.NullDecimal
	if pos, ok := b.positions[order.Symbol]; ok && !pos.Flat() {
		closing := (pos.Long() && order.Side == broker.Sell) ||
			(pos.Short() && order.Side == broker.Buy)
		if closing {
			closeQty := decimal.Min(pos.Quantity.Abs(), fillQty)
			gross := fillPrice.Sub(pos.EntryPrice).Mul(closeQty)
			if pos.Short() {
				gross = pos.EntryPrice.Sub(fillPrice).Mul(closeQty)
			}
			pnl = decimal.NullDecimal{Decimal: gross.Sub(fee), Valid: true}
		}
	}

	trade := &broker.Trade{
		ID:          id.NewTrade(),
		OrderID:     order.ID,
		Symbol:      order.Symbol,
		Side:        order.Side,
		Price:       fillPrice,
		Quantity:    fillQty,
		Fee:         fee,
		FeeAsset:    b.cfg.FeeAsset,
		RealizedPnL: pnl,
		ExecutedAt:  now,
	}

	order.Status = broker.StatusFilled
	if fillQty.LessThan(order.Quantity) {
		order.Status = broker.StatusPartiallyFilled
	}
	order.FilledQuantity = fillQty
	order.AvgFillPrice = fillPrice
	order.UpdatedAt = now

	position := b.updatePositionLocked(order.Symbol, order.Side, fillQty, fillPrice, pnl, now)

	// Fee always reduces the balance: a BUY pays notional plus fee, a SELL
	// receives notional minus fee.
	notional := fillPrice.Mul(fillQty)
	if order.Side == broker.Buy {
		b.account.Balance = b.account.Balance.Sub(notional.Add(fee))
	} else {
		b.account.Balance = b.account.Balance.Add(notional.Sub(fee))
	}

	if pnl.Valid {
		b.account.TotalPnL = b.account.TotalPnL.Add(pnl.Decimal)
		b.account.TotalTrades++
		if pnl.Decimal.IsPositive() {
			b.account.WinningTrades++
		}
	}
	b.refreshEquityLocked()

	// Trade, order, position, in that causal order. Any failure is fatal
	// for this call: memory and disk must not silently diverge.
	if err := b.journal.SaveTrade(ctx, *trade); err != nil {
		b.mu.Unlock()
		return nil, fmt.Errorf("persist trade: %w", err)
	}
	if err := b.journal.SaveOrder(ctx, *order); err != nil {
		b.mu.Unlock()
		return nil, fmt.Errorf("persist order: %w", err)
	}
	if err := b.journal.SavePosition(ctx, position); err != nil {
		b.mu.Unlock()
		return nil, fmt.Errorf("persist position: %w", err)
	}

	if err := b.journal.SnapshotAccount(ctx, b.account, b.positionsLocked()); err != nil {
		// Snapshots are history, not ledger state. Log and move on.
		b.log.Warn("account snapshot failed", zap.Error(err))
	}

	account := b.account
	b.mu.Unlock()

	b.notifyGateway(position)

	if b.guard != nil && pnl.Valid {
		b.guard.RecordTradeResult(pnl.Decimal)
	}

	metrics.TradesExecuted.WithLabelValues(trade.Symbol, string(trade.Side)).Inc()
	balance, _ := account.Balance.Float64()
	equity, _ := account.Equity.Float64()
	totalPnL, _ := account.TotalPnL.Float64()
	metrics.AccountBalance.Set(balance)
	metrics.AccountEquity.Set(equity)
	metrics.RealizedPnL.Set(totalPnL)

	b.log.Info("trade executed",
		zap.String("trade_id", trade.ID),
		zap.String("symbol", trade.Symbol),
		zap.String("side", string(trade.Side)),
		zap.String("price", fillPrice.String()),
		zap.String("quantity", fillQty.String()),
		zap.String("pnl", pnlString(pnl)))

	return trade, nil
}

// updatePositionLocked runs the position state machine and returns the new
// position. Keyed on the sign of the current versus post-trade quantity:
// open, close, grow, reduce, or flip.
func (b *Broker) updatePositionLocked(symbol string, side broker.Side, quantity, price decimal.Decimal, pnl decimal.NullDecimal, now time.Time) broker.Position {
	tradeQty := side.Sign().Mul(quantity)

	position, exists := b.positions[symbol]
	if !exists || position.Flat() {
		position = broker.Position{
			Symbol:      symbol,
			Quantity:    tradeQty,
			EntryPrice:  price,
			RealizedPnL: position.RealizedPnL,
		}
	} else {
		currentQty := position.Quantity
		newQty := currentQty.Add(tradeQty)

		switch {
		case newQty.IsZero():
			// Fully closed. Entry price is meaningless while flat.
			position.Quantity = decimal.Zero
			if pnl.Valid {
				position.RealizedPnL = position.RealizedPnL.Add(pnl.Decimal)
			}

		case currentQty.Sign() == newQty.Sign() && newQty.Abs().GreaterThan(currentQty.Abs()):
			// Adding: entry becomes the size-weighted average.
			totalCost := position.EntryPrice.Mul(currentQty.Abs()).Add(price.Mul(quantity))
			position.EntryPrice = totalCost.Div(newQty.Abs())
			position.Quantity = newQty

		case currentQty.Sign() == newQty.Sign():
			// Reducing: entry price of the remainder is unchanged.
			position.Quantity = newQty
			if pnl.Valid {
				position.RealizedPnL = position.RealizedPnL.Add(pnl.Decimal)
			}

		default:
			// Flipped through zero: the closed share realizes, the new
			// side opens at the trade price.
			position.Quantity = newQty
			position.EntryPrice = price
			if pnl.Valid {
				position.RealizedPnL = position.RealizedPnL.Add(pnl.Decimal)
			}
		}
	}

	position.MarkTo(price, now)
	b.positions[symbol] = position
	return position
}

// notifyGateway mirrors the position to the risk gateway, fire-and-forget.
// The trade is already booked; a notification failure is logged only.
func (b *Broker) notifyGateway(position broker.Position) {
	if b.gateway == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), risk.DefaultTimeout)
		defer cancel()

		err := b.gateway.UpdatePosition(ctx, risk.PositionUpdate{
			Symbol:     position.Symbol,
			Quantity:   position.Quantity,
			EntryPrice: position.EntryPrice,
		})
		if err != nil {
			b.log.Warn("failed to update risk gateway position",
				zap.String("symbol", position.Symbol),
				zap.Error(err))
		}
	}()
}

// refreshEquityLocked recomputes equity as balance plus the sum of
// unrealized P&L across open positions.
func (b *Broker) refreshEquityLocked() {
	unrealized := decimal.Zero
	for _, p := range b.positions {
		unrealized = unrealized.Add(p.UnrealizedPnL)
	}
	b.account.Equity = b.account.Balance.Add(unrealized)
	b.account.UpdatedAt = time.Now().UTC()
}

// Position returns the live position for symbol, if any.
func (b *Broker) Position(symbol string) (broker.Position, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.positions[symbol]
	return p, ok
}

// PositionValue is the absolute notional of the live position for symbol,
// zero when flat. Feeds the guard's position-value check.
func (b *Broker) PositionValue(symbol string) decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.positions[symbol]
	if !ok {
		return decimal.Zero
	}
	return p.Notional()
}

// Positions returns all live positions, sorted by symbol.
func (b *Broker) Positions() []broker.Position {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.positionsLocked()
}

func (b *Broker) positionsLocked() []broker.Position {
	positions := make([]broker.Position, 0, len(b.positions))
	for _, p := range b.positions {
		positions = append(positions, p)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Symbol < positions[j].Symbol })
	return positions
}

// Account returns a copy of the account state.
func (b *Broker) Account() broker.Account {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.account
}

func pnlString(pnl decimal.NullDecimal) string {
	if !pnl.Valid {
		return "none"
	}
	return pnl.Decimal.String()
}
