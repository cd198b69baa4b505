package paper

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SamoraDC/Phantom-Flow/broker"
	"github.com/SamoraDC/Phantom-Flow/journal"
	"github.com/SamoraDC/Phantom-Flow/market"
	"github.com/SamoraDC/Phantom-Flow/risk"
	"github.com/SamoraDC/Phantom-Flow/safety"
	"github.com/SamoraDC/Phantom-Flow/sim"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// fakeGateway scripts the remote risk gateway.
type fakeGateway struct {
	mu       sync.Mutex
	resp     risk.CheckResponse
	err      error
	checks   []risk.CheckRequest
	updates  []risk.PositionUpdate
	updateCh chan struct{}
}

func (g *fakeGateway) CheckOrder(_ context.Context, req risk.CheckRequest) (risk.CheckResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.checks = append(g.checks, req)
	return g.resp, g.err
}

func (g *fakeGateway) UpdatePosition(_ context.Context, update risk.PositionUpdate) error {
	g.mu.Lock()
	g.updates = append(g.updates, update)
	g.mu.Unlock()
	if g.updateCh != nil {
		g.updateCh <- struct{}{}
	}
	return nil
}

func approveAll() *fakeGateway {
	return &fakeGateway{resp: risk.CheckResponse{Approved: true}}
}

// noSlippage makes the direct execution fill exactly at the reference price,
// keeping the arithmetic in assertions exact.
func noSlippage(cfg Config) Config {
	cfg.SlippageBPS = decimal.Zero
	return cfg
}

func newTestBroker(t *testing.T, cfg Config, gw risk.Gateway) (*Broker, *journal.Memory) {
	t.Helper()

	mem := journal.NewMemory()
	b := New(cfg, mem, gw, nil, nil, nil)
	return b, mem
}

func submitMarket(t *testing.T, b *Broker, symbol string, side broker.Side, qty string) *broker.Order {
	t.Helper()

	order, err := b.SubmitOrder(context.Background(), broker.OrderRequest{
		Symbol:   symbol,
		Side:     side,
		Type:     broker.MarketOrder,
		Quantity: dec(qty),
	})
	require.NoError(t, err)
	require.NotNil(t, order)
	return order
}

func TestSubmitOrderHappyPath(t *testing.T) {
	t.Parallel()

	gw := approveAll()
	b, mem := newTestBroker(t, DefaultConfig(), gw)

	order := submitMarket(t, b, "BTCUSDT", broker.Buy, "0.5")

	assert.Equal(t, broker.StatusPending, order.Status)
	assert.True(t, order.Quantity.Equal(dec("0.5")))
	assert.NotEmpty(t, order.ID)

	require.Len(t, gw.checks, 1)
	assert.Equal(t, "BTCUSDT", gw.checks[0].Symbol)

	require.Len(t, mem.Orders(), 1)
	assert.Equal(t, order.ID, mem.Orders()[0].ID)
}

func TestSubmitOrderGatewayReject(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{resp: risk.CheckResponse{Approved: false, Reason: "too much exposure"}}
	b, _ := newTestBroker(t, DefaultConfig(), gw)

	_, err := b.SubmitOrder(context.Background(), broker.OrderRequest{
		Symbol: "BTCUSDT", Side: broker.Buy, Type: broker.MarketOrder, Quantity: dec("0.5"),
	})

	var rerr *broker.RejectError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "too much exposure", rerr.Reason)
}

func TestSubmitOrderGatewayAdjusts(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{resp: risk.CheckResponse{
		Approved:    true,
		Adjusted:    true,
		AdjustedQty: dec("0.25"),
	}}
	b, _ := newTestBroker(t, DefaultConfig(), gw)

	order := submitMarket(t, b, "BTCUSDT", broker.Buy, "0.5")
	assert.True(t, order.Quantity.Equal(dec("0.25")))
}

func TestSubmitOrderLocalFallbackClamp(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{err: errors.New("gateway down")}
	b, _ := newTestBroker(t, noSlippage(DefaultConfig()), gw)

	// Open 0.8 of the 1.0 position cap, then ask for 0.5 more.
	open := submitMarket(t, b, "BTCUSDT", broker.Buy, "0.8")
	_, err := b.ExecuteMarketOrder(context.Background(), open, dec("50000"))
	require.NoError(t, err)

	order := submitMarket(t, b, "BTCUSDT", broker.Buy, "0.5")
	assert.True(t, order.Quantity.Equal(dec("0.2")), "clamped to remaining size, got %s", order.Quantity)
}

func TestSubmitOrderLocalFallbackReject(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{err: errors.New("gateway down")}
	b, _ := newTestBroker(t, noSlippage(DefaultConfig()), gw)

	open := submitMarket(t, b, "BTCUSDT", broker.Buy, "1")
	_, err := b.ExecuteMarketOrder(context.Background(), open, dec("50000"))
	require.NoError(t, err)

	_, err = b.SubmitOrder(context.Background(), broker.OrderRequest{
		Symbol: "BTCUSDT", Side: broker.Buy, Type: broker.MarketOrder, Quantity: dec("0.1"),
	})

	var rerr *broker.RejectError
	require.ErrorAs(t, err, &rerr)
	assert.Contains(t, rerr.Reason, "position limit")
}

func TestSubmitOrderDailyLimit(t *testing.T) {
	t.Parallel()

	cfg := noSlippage(DefaultConfig())
	cfg.MaxDailyTrades = 1
	b, _ := newTestBroker(t, cfg, approveAll())

	order := submitMarket(t, b, "BTCUSDT", broker.Buy, "0.1")
	_, err := b.ExecuteMarketOrder(context.Background(), order, dec("50000"))
	require.NoError(t, err)

	_, err = b.SubmitOrder(context.Background(), broker.OrderRequest{
		Symbol: "BTCUSDT", Side: broker.Buy, Type: broker.MarketOrder, Quantity: dec("0.1"),
	})
	assert.ErrorIs(t, err, broker.ErrDailyTradeLimit)
}

func TestSubmitOrderGuardGate(t *testing.T) {
	t.Parallel()

	guard := safety.NewGuard(safety.DefaultConfig(), nil)
	require.NoError(t, guard.ActivateKillSwitch("maintenance"))

	mem := journal.NewMemory()
	b := New(DefaultConfig(), mem, approveAll(), guard, nil, nil)

	_, err := b.SubmitOrder(context.Background(), broker.OrderRequest{
		Symbol: "BTCUSDT", Side: broker.Buy, Type: broker.MarketOrder, Quantity: dec("0.1"),
	})

	var verr *safety.ViolationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, safety.KillSwitch, verr.Kind)
}

func TestExecuteRoundTripRealizesPnL(t *testing.T) {
	t.Parallel()

	b, _ := newTestBroker(t, noSlippage(DefaultConfig()), approveAll())
	ctx := context.Background()

	buy := submitMarket(t, b, "BTCUSDT", broker.Buy, "1")
	buyTrade, err := b.ExecuteMarketOrder(ctx, buy, dec("100"))
	require.NoError(t, err)

	// Opening fill: fee charged, nothing realized.
	assert.True(t, buyTrade.Fee.Equal(dec("0.1")))
	assert.False(t, buyTrade.RealizedPnL.Valid)
	assert.Equal(t, broker.StatusFilled, buy.Status)

	sell := submitMarket(t, b, "BTCUSDT", broker.Sell, "1")
	sellTrade, err := b.ExecuteMarketOrder(ctx, sell, dec("110"))
	require.NoError(t, err)

	// (110 - 100) * 1 - 0.11 sell fee.
	require.True(t, sellTrade.RealizedPnL.Valid)
	assert.True(t, sellTrade.RealizedPnL.Decimal.Equal(dec("9.89")),
		"got %s", sellTrade.RealizedPnL.Decimal)

	pos, ok := b.Position("BTCUSDT")
	require.True(t, ok)
	assert.True(t, pos.Flat())
	assert.True(t, pos.RealizedPnL.Equal(dec("9.89")))

	account := b.Account()
	// 10000 - 100.1 + 109.89
	assert.True(t, account.Balance.Equal(dec("10009.79")), "balance %s", account.Balance)
	assert.True(t, account.Equity.Equal(account.Balance), "flat book: equity equals balance")
	assert.True(t, account.TotalPnL.Equal(dec("9.89")))
	assert.Equal(t, 1, account.TotalTrades)
	assert.Equal(t, 1, account.WinningTrades)
}

func TestExecuteShortRoundTrip(t *testing.T) {
	t.Parallel()

	b, _ := newTestBroker(t, noSlippage(DefaultConfig()), approveAll())
	ctx := context.Background()

	sell := submitMarket(t, b, "BTCUSDT", broker.Sell, "1")
	_, err := b.ExecuteMarketOrder(ctx, sell, dec("100"))
	require.NoError(t, err)

	pos, _ := b.Position("BTCUSDT")
	assert.True(t, pos.Short())
	assert.True(t, pos.Quantity.Equal(dec("-1")))

	buy := submitMarket(t, b, "BTCUSDT", broker.Buy, "1")
	trade, err := b.ExecuteMarketOrder(ctx, buy, dec("90"))
	require.NoError(t, err)

	// Short covered lower: (100 - 90) * 1 - 0.09 buy fee.
	require.True(t, trade.RealizedPnL.Valid)
	assert.True(t, trade.RealizedPnL.Decimal.Equal(dec("9.91")), "got %s", trade.RealizedPnL.Decimal)
}

func TestExecuteGrowsPositionWeightedEntry(t *testing.T) {
	t.Parallel()

	cfg := noSlippage(DefaultConfig())
	cfg.MaxPositionSize = dec("10")
	b, _ := newTestBroker(t, cfg, approveAll())
	ctx := context.Background()

	first := submitMarket(t, b, "BTCUSDT", broker.Buy, "1")
	_, err := b.ExecuteMarketOrder(ctx, first, dec("100"))
	require.NoError(t, err)

	second := submitMarket(t, b, "BTCUSDT", broker.Buy, "1")
	trade, err := b.ExecuteMarketOrder(ctx, second, dec("110"))
	require.NoError(t, err)

	// Growing a position realizes nothing.
	assert.False(t, trade.RealizedPnL.Valid)

	pos, _ := b.Position("BTCUSDT")
	assert.True(t, pos.Quantity.Equal(dec("2")))
	assert.True(t, pos.EntryPrice.Equal(dec("105")), "entry %s", pos.EntryPrice)
}

func TestExecuteReduceKeepsEntryPrice(t *testing.T) {
	t.Parallel()

	cfg := noSlippage(DefaultConfig())
	cfg.MaxPositionSize = dec("10")
	b, _ := newTestBroker(t, cfg, approveAll())
	ctx := context.Background()

	open := submitMarket(t, b, "BTCUSDT", broker.Buy, "2")
	_, err := b.ExecuteMarketOrder(ctx, open, dec("100"))
	require.NoError(t, err)

	reduce := submitMarket(t, b, "BTCUSDT", broker.Sell, "1")
	trade, err := b.ExecuteMarketOrder(ctx, reduce, dec("110"))
	require.NoError(t, err)

	// (110 - 100) * 1 - 0.11 fee on the closed half.
	require.True(t, trade.RealizedPnL.Valid)
	assert.True(t, trade.RealizedPnL.Decimal.Equal(dec("9.89")))

	pos, _ := b.Position("BTCUSDT")
	assert.True(t, pos.Quantity.Equal(dec("1")))
	assert.True(t, pos.EntryPrice.Equal(dec("100")), "remainder keeps its entry, got %s", pos.EntryPrice)
	assert.True(t, pos.RealizedPnL.Equal(dec("9.89")))
}

func TestExecuteFlipResetsEntry(t *testing.T) {
	t.Parallel()

	cfg := noSlippage(DefaultConfig())
	cfg.MaxPositionSize = dec("10")
	b, _ := newTestBroker(t, cfg, approveAll())
	ctx := context.Background()

	open := submitMarket(t, b, "BTCUSDT", broker.Buy, "1")
	_, err := b.ExecuteMarketOrder(ctx, open, dec("100"))
	require.NoError(t, err)

	flip := submitMarket(t, b, "BTCUSDT", broker.Sell, "2")
	trade, err := b.ExecuteMarketOrder(ctx, flip, dec("110"))
	require.NoError(t, err)

	// The closed long realizes (110 - 100) * 1 minus the whole fill's fee.
	require.True(t, trade.RealizedPnL.Valid)
	assert.True(t, trade.RealizedPnL.Decimal.Equal(dec("9.78")), "got %s", trade.RealizedPnL.Decimal)

	pos, _ := b.Position("BTCUSDT")
	assert.True(t, pos.Quantity.Equal(dec("-1")))
	assert.True(t, pos.EntryPrice.Equal(dec("110")))
	assert.True(t, pos.RealizedPnL.Equal(dec("9.78")))
}

func TestExecuteAppliesAdverseSlippage(t *testing.T) {
	t.Parallel()

	b, _ := newTestBroker(t, DefaultConfig(), approveAll()) // 5 bps
	ctx := context.Background()

	buy := submitMarket(t, b, "BTCUSDT", broker.Buy, "0.1")
	trade, err := b.ExecuteMarketOrder(ctx, buy, dec("50000"))
	require.NoError(t, err)
	assert.True(t, trade.Price.Equal(dec("50025")), "buy slips up, got %s", trade.Price)

	sell := submitMarket(t, b, "BTCUSDT", broker.Sell, "0.1")
	trade, err = b.ExecuteMarketOrder(ctx, sell, dec("50000"))
	require.NoError(t, err)
	assert.True(t, trade.Price.Equal(dec("49975")), "sell slips down, got %s", trade.Price)
}

func TestExecuteNotifiesGateway(t *testing.T) {
	t.Parallel()

	gw := approveAll()
	gw.updateCh = make(chan struct{}, 1)
	b, _ := newTestBroker(t, noSlippage(DefaultConfig()), gw)

	order := submitMarket(t, b, "BTCUSDT", broker.Buy, "0.5")
	_, err := b.ExecuteMarketOrder(context.Background(), order, dec("50000"))
	require.NoError(t, err)

	<-gw.updateCh
	gw.mu.Lock()
	defer gw.mu.Unlock()
	require.Len(t, gw.updates, 1)
	assert.Equal(t, "BTCUSDT", gw.updates[0].Symbol)
	assert.True(t, gw.updates[0].Quantity.Equal(dec("0.5")))
}

func TestExecuteFeedsCircuitBreaker(t *testing.T) {
	t.Parallel()

	guard := safety.NewGuard(safety.DefaultConfig(), nil)
	mem := journal.NewMemory()
	b := New(noSlippage(DefaultConfig()), mem, approveAll(), guard, nil, nil)
	ctx := context.Background()

	open := submitMarket(t, b, "BTCUSDT", broker.Buy, "0.5")
	_, err := b.ExecuteMarketOrder(ctx, open, dec("100"))
	require.NoError(t, err)

	// Close at a heavy loss: (50 - 100) * 0.5 - fee = -25.025, past the
	// 500 cumulative threshold after repeated rounds? No - one loss only
	// bumps the consecutive counter.
	lose := submitMarket(t, b, "BTCUSDT", broker.Sell, "0.5")
	_, err = b.ExecuteMarketOrder(ctx, lose, dec("50"))
	require.NoError(t, err)

	st := guard.Status()
	assert.Equal(t, 1, st.ConsecutiveLosses)
	assert.True(t, st.CumulativeLoss.IsPositive())
}

// failingJournal fails a chosen persistence call.
type failingJournal struct {
	*journal.Memory
	failTrade    bool
	failPosition bool
}

func (f *failingJournal) SaveTrade(ctx context.Context, t broker.Trade) error {
	if f.failTrade {
		return errors.New("disk full")
	}
	return f.Memory.SaveTrade(ctx, t)
}

func (f *failingJournal) SavePosition(ctx context.Context, p broker.Position) error {
	if f.failPosition {
		return errors.New("disk full")
	}
	return f.Memory.SavePosition(ctx, p)
}

func TestExecutePersistenceFailureIsFatal(t *testing.T) {
	t.Parallel()

	j := &failingJournal{Memory: journal.NewMemory(), failTrade: true}
	b := New(noSlippage(DefaultConfig()), j, approveAll(), nil, nil, nil)

	order := submitMarket(t, b, "BTCUSDT", broker.Buy, "0.5")
	_, err := b.ExecuteMarketOrder(context.Background(), order, dec("50000"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "persist trade")
}

func TestRehydrate(t *testing.T) {
	t.Parallel()

	mem := journal.NewMemory()
	ctx := context.Background()

	seeded := broker.Position{
		Symbol:        "BTCUSDT",
		Quantity:      dec("0.5"),
		EntryPrice:    dec("50000"),
		UnrealizedPnL: dec("250"),
	}
	require.NoError(t, mem.SavePosition(ctx, seeded))

	b := New(DefaultConfig(), mem, nil, nil, nil, nil)
	require.NoError(t, b.Rehydrate(ctx))

	pos, ok := b.Position("BTCUSDT")
	require.True(t, ok)
	assert.True(t, pos.Quantity.Equal(dec("0.5")))

	account := b.Account()
	assert.True(t, account.Equity.Equal(dec("10250")), "equity %s", account.Equity)
}

// scriptedSource replays fixed draws for deterministic simulations.
type scriptedSource struct {
	uniform []float64
	normal  []float64
	ui, ni  int
}

func (s *scriptedSource) Float64() float64 {
	if s.ui >= len(s.uniform) {
		return 0
	}
	v := s.uniform[s.ui]
	s.ui++
	return v
}

func (s *scriptedSource) NormFloat64() float64 {
	if s.ni >= len(s.normal) {
		return 0
	}
	v := s.normal[s.ni]
	s.ni++
	return v
}

func testBook() *market.Book {
	return &market.Book{
		Symbol: "BTCUSDT",
		Bids:   []market.PriceLevel{{Price: dec("99"), Quantity: dec("5")}},
		Asks: []market.PriceLevel{
			{Price: dec("100"), Quantity: dec("0.3")},
			{Price: dec("101"), Quantity: dec("0.3")},
			{Price: dec("102"), Quantity: dec("0.5")},
		},
	}
}

func bookBroker(t *testing.T, src sim.Source) (*Broker, *journal.Memory) {
	t.Helper()

	simCfg := sim.DefaultConfig()
	simCfg.LevelFillProbability = 1.0
	simulator := sim.New(simCfg, src, nil)

	mem := journal.NewMemory()
	b := New(noSlippage(DefaultConfig()), mem, approveAll(), nil, simulator, nil)
	return b, mem
}

func TestExecuteBookFullFill(t *testing.T) {
	t.Parallel()

	// Gate draw then fraction draw per level; fraction 1.0 exposes the
	// full level quantity.
	src := &scriptedSource{uniform: []float64{0, 1, 0, 1, 0, 1}}
	b, _ := bookBroker(t, src)

	order := submitMarket(t, b, "BTCUSDT", broker.Buy, "1")
	trade, err := b.ExecuteBook(context.Background(), order, testBook(), 0)
	require.NoError(t, err)

	assert.Equal(t, broker.StatusFilled, order.Status)
	assert.True(t, trade.Quantity.Equal(dec("1")))

	// 0.3@100 + 0.3@101 + 0.4@102 = 101.1 weighted.
	assert.True(t, trade.Price.Equal(dec("101.1")), "got %s", trade.Price)

	pos, _ := b.Position("BTCUSDT")
	assert.True(t, pos.Quantity.Equal(dec("1")))
	assert.True(t, pos.EntryPrice.Equal(dec("101.1")))
}

func TestExecuteBookPartialFill(t *testing.T) {
	t.Parallel()

	book := &market.Book{
		Symbol: "BTCUSDT",
		Asks:   []market.PriceLevel{{Price: dec("100"), Quantity: dec("0.4")}},
	}

	src := &scriptedSource{uniform: []float64{0, 1}}
	b, _ := bookBroker(t, src)

	order := submitMarket(t, b, "BTCUSDT", broker.Buy, "1")
	trade, err := b.ExecuteBook(context.Background(), order, book, 0)
	require.NoError(t, err)

	assert.Equal(t, broker.StatusPartiallyFilled, order.Status)
	assert.True(t, trade.Quantity.Equal(dec("0.4")))
	assert.True(t, order.FilledQuantity.Equal(dec("0.4")))

	pos, _ := b.Position("BTCUSDT")
	assert.True(t, pos.Quantity.Equal(dec("0.4")))
}

func TestExecuteBookNoFill(t *testing.T) {
	t.Parallel()

	empty := &market.Book{Symbol: "BTCUSDT"}

	src := &scriptedSource{}
	b, _ := bookBroker(t, src)

	order := submitMarket(t, b, "BTCUSDT", broker.Buy, "1")
	_, err := b.ExecuteBook(context.Background(), order, empty, 0)

	assert.ErrorIs(t, err, broker.ErrNoFill)
	assert.Equal(t, broker.StatusPending, order.Status, "order stays pending for retry or cancellation")
}
