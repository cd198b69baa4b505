package sim

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/SamoraDC/Phantom-Flow/broker"
	"github.com/SamoraDC/Phantom-Flow/market"
)

// Result describes one simulated execution attempt. FillPrice is the
// quantity-weighted average across consumed levels; Fills lists the
// (price, quantity) pairs in consumption order.
type Result struct {
	Filled          bool                `json:"filled"`
	FillPrice       decimal.Decimal     `json:"fill_price"`
	FillQuantity    decimal.Decimal     `json:"fill_quantity"`
	SlippageBPS     decimal.Decimal     `json:"slippage_bps"`
	LatencyMS       float64             `json:"latency_ms"`
	Fills           []market.PriceLevel `json:"fills"`
	MarketImpactBPS decimal.Decimal     `json:"market_impact_bps"`
	QueuePosition   float64             `json:"queue_position"`
	ExecutedAt      time.Time           `json:"executed_at"`
}

// Simulator models how orders would fill against a book snapshot:
// partial liquidity per level, queue position for resting limit orders,
// slippage, market impact, and network latency.
type Simulator struct {
	cfg Config
	rng Source
	log *zap.Logger
}

// New builds a Simulator. A nil src gets a time-seeded default; a nil
// logger is replaced with a no-op one.
func New(cfg Config, src Source, log *zap.Logger) *Simulator {
	if src == nil {
		src = newSource()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Simulator{cfg: cfg, rng: src, log: log}
}

var (
	hundred = decimal.NewFromInt(100)
	tenK    = decimal.NewFromInt(10000)
)

// MarketOrder simulates an immediate execution of qty against the book.
// BUY consumes asks, SELL consumes bids. volatility > 0.5 lengthens the
// simulated latency.
func (s *Simulator) MarketOrder(side broker.Side, qty decimal.Decimal, book *market.Book, volatility float64) Result {
	start := time.Now().UTC()
	latency := s.latency(volatility)

	levels := book.Asks
	if side == broker.Sell {
		levels = book.Bids
	}

	if len(levels) == 0 {
		s.log.Warn("empty book side",
			zap.String("symbol", book.Symbol),
			zap.String("side", string(side)))
		return Result{LatencyMS: latency, ExecutedAt: start}
	}

	fills, filled, notional := s.walk(levels, qty)
	if filled.IsZero() {
		return Result{LatencyMS: latency, ExecutedAt: start}
	}

	fillPrice := notional.Div(filled)

	mid := book.Mid()
	if mid.IsZero() {
		mid = levels[0].Price
	}

	slippage := decimal.Zero
	if mid.IsPositive() {
		if side == broker.Buy {
			slippage = fillPrice.Sub(mid).Div(mid).Mul(tenK)
		} else {
			slippage = mid.Sub(fillPrice).Div(mid).Mul(tenK)
		}
	}

	impact := s.marketImpact(filled, levels)

	s.log.Debug("execution simulated",
		zap.String("symbol", book.Symbol),
		zap.String("side", string(side)),
		zap.String("requested_qty", qty.String()),
		zap.String("filled_qty", filled.String()),
		zap.String("fill_price", fillPrice.String()),
		zap.String("slippage_bps", slippage.String()),
		zap.Float64("latency_ms", latency),
		zap.Int("levels", len(fills)))

	return Result{
		Filled:          true,
		FillPrice:       fillPrice,
		FillQuantity:    filled,
		SlippageBPS:     slippage,
		LatencyMS:       latency,
		Fills:           fills,
		MarketImpactBPS: impact,
		QueuePosition:   1.0,
		ExecutedAt:      start,
	}
}

// LimitOrder simulates a limit order. A crossing limit (BUY at or above the
// best ask, SELL at or below the best bid) executes immediately as a market
// order. Otherwise the order rests: fill probability decays with queue
// position and distance from the same-side best, and time already spent in
// the queue improves the position.
func (s *Simulator) LimitOrder(side broker.Side, qty, limit decimal.Decimal, book *market.Book, timeInQueue time.Duration) Result {
	start := time.Now().UTC()

	if bestAsk, ok := book.BestAsk(); ok && side == broker.Buy && limit.GreaterThanOrEqual(bestAsk.Price) {
		return s.MarketOrder(side, qty, book, 0)
	}
	if bestBid, ok := book.BestBid(); ok && side == broker.Sell && limit.LessThanOrEqual(bestBid.Price) {
		return s.MarketOrder(side, qty, book, 0)
	}

	queuePos := s.queuePosition(side, limit, book, timeInQueue)
	prob := s.fillProbability(side, limit, book, queuePos)

	if s.rng.Float64() < prob {
		ratio := math.Min(1.0, (1.0-queuePos)+0.3)
		fillQty := qty.Mul(decimal.NewFromFloat(ratio))

		return Result{
			Filled:        true,
			FillPrice:     limit,
			FillQuantity:  fillQty,
			LatencyMS:     s.latency(0),
			Fills:         []market.PriceLevel{{Price: limit, Quantity: fillQty}},
			QueuePosition: queuePos,
			ExecutedAt:    start,
		}
	}

	return Result{
		LatencyMS:     s.latency(0),
		QueuePosition: queuePos,
		ExecutedAt:    start,
	}
}

// walk consumes book levels until qty is filled or levels run out. Each
// level is reachable with probability LevelFillProbability and offers only a
// random fraction of its resting quantity, between MinFillRatio and 1.
func (s *Simulator) walk(levels []market.PriceLevel, qty decimal.Decimal) (fills []market.PriceLevel, filled, notional decimal.Decimal) {
	remaining := qty

	for _, lvl := range levels {
		if !remaining.IsPositive() {
			break
		}

		if s.rng.Float64() > s.cfg.LevelFillProbability {
			continue
		}

		frac := s.cfg.MinFillRatio + (1.0-s.cfg.MinFillRatio)*s.rng.Float64()
		available := lvl.Quantity.Mul(decimal.NewFromFloat(frac))

		take := decimal.Min(remaining, available)
		if !take.IsPositive() {
			continue
		}

		fills = append(fills, market.PriceLevel{Price: lvl.Price, Quantity: take})
		notional = notional.Add(lvl.Price.Mul(take))
		filled = filled.Add(take)
		remaining = remaining.Sub(take)
	}

	return fills, filled, notional
}

func (s *Simulator) marketImpact(filled decimal.Decimal, levels []market.PriceLevel) decimal.Decimal {
	total := decimal.Zero
	for _, lvl := range levels {
		total = total.Add(lvl.Quantity)
	}
	if !total.IsPositive() {
		return decimal.Zero
	}

	pct := filled.Div(total).Mul(hundred)
	return pct.Mul(decimal.NewFromFloat(s.cfg.ImpactCoefficient))
}

// queuePosition estimates where in the queue a resting order sits, 0 front
// to 1 back. Price levels strictly better than the limit push it back; time
// already queued pulls it forward by up to 0.5 after a minute.
func (s *Simulator) queuePosition(side broker.Side, limit decimal.Decimal, book *market.Book, timeInQueue time.Duration) float64 {
	var levels []market.PriceLevel
	ahead := 0

	if side == broker.Buy {
		levels = book.Bids
		for _, lvl := range levels {
			if lvl.Price.GreaterThan(limit) {
				ahead++
			}
		}
	} else {
		levels = book.Asks
		for _, lvl := range levels {
			if lvl.Price.LessThan(limit) {
				ahead++
			}
		}
	}

	if len(levels) == 0 {
		return 0.5
	}

	pos := float64(ahead) / float64(len(levels))
	credit := math.Min(0.5, float64(timeInQueue.Milliseconds())/60000.0)

	return math.Max(0, pos-credit)
}

func (s *Simulator) fillProbability(side broker.Side, limit decimal.Decimal, book *market.Book, queuePos float64) float64 {
	prob := s.cfg.BaseFillProbability - queuePos*s.cfg.QueuePositionDecay

	// Distance from the same-side best. Signed: pricing past the best
	// raises the probability instead of lowering it.
	var best decimal.Decimal
	var distance float64

	if side == broker.Buy {
		if bid, ok := book.BestBid(); ok {
			best = bid.Price
		} else {
			best = limit
		}
		if best.IsPositive() {
			distance, _ = best.Sub(limit).Div(best).Float64()
		}
	} else {
		if ask, ok := book.BestAsk(); ok {
			best = ask.Price
		} else {
			best = limit
		}
		if best.IsPositive() {
			distance, _ = limit.Sub(best).Div(best).Float64()
		}
	}

	prob -= math.Min(0.5, distance*10.0)

	return math.Max(0.1, prob)
}

// latency draws an execution delay in milliseconds, floored at 10ms and
// stretched during high volatility.
func (s *Simulator) latency(volatility float64) float64 {
	latency := math.Max(10, s.cfg.BaseLatencyMS+s.rng.NormFloat64()*s.cfg.LatencyStdMS)
	if volatility > 0.5 {
		latency *= s.cfg.HighVolLatencyMult
	}
	return latency
}
