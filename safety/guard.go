package safety

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// State is the guard's mutable condition: the two gates and the counters
// that feed them.
type State struct {
	KillSwitchActive      bool            `json:"kill_switch_active"`
	KillSwitchReason      string          `json:"kill_switch_reason,omitempty"`
	KillSwitchActivatedAt time.Time       `json:"kill_switch_activated_at,omitempty"`
	CircuitBreakerActive  bool            `json:"circuit_breaker_active"`
	CircuitBreakerReason  string          `json:"circuit_breaker_reason,omitempty"`
	ConsecutiveLosses     int             `json:"consecutive_losses"`
	CumulativeLoss        decimal.Decimal `json:"cumulative_loss"`
	ViolationsToday       int             `json:"violations_today"`
	LastViolationAt       time.Time       `json:"last_violation_at,omitempty"`
}

// Callback is a named stop-trading hook run when the kill switch fires.
type Callback struct {
	Name string
	Run  func() error
}

// Guard is the single admission-control authority. Every order attempt
// passes through TradingAllowed and ValidateOrder before it may be created
// or executed. One mutex covers the state, the rate limiter, and the
// last-price table.
type Guard struct {
	cfg Config
	log *zap.Logger

	mu         sync.Mutex
	state      State
	limiter    *RateLimiter
	lastPrices map[string]decimal.Decimal
	symbols    map[string]struct{}
	callbacks  []Callback
}

// NewGuard builds a guard from cfg. A nil logger is replaced with a no-op.
func NewGuard(cfg Config, log *zap.Logger) *Guard {
	if log == nil {
		log = zap.NewNop()
	}

	symbols := make(map[string]struct{}, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		symbols[s] = struct{}{}
	}

	g := &Guard{
		cfg:        cfg,
		log:        log,
		limiter:    NewRateLimiter(cfg.MaxOrdersPerSecond, cfg.MaxOrdersPerMinute, cfg.MaxOrdersPerHour, log),
		lastPrices: make(map[string]decimal.Decimal),
		symbols:    symbols,
	}

	log.Info("safety guard initialized",
		zap.Int("max_orders_per_second", cfg.MaxOrdersPerSecond),
		zap.String("max_position_value", cfg.MaxPositionValue.String()),
		zap.Strings("symbols", cfg.Symbols))

	return g
}

// RegisterKillSwitchCallback adds a named hook to run when the kill switch
// activates. Hooks run in registration order.
func (g *Guard) RegisterKillSwitchCallback(name string, run func() error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.callbacks = append(g.callbacks, Callback{Name: name, Run: run})
}

// TradingAllowed checks the global gates: kill switch, then circuit
// breaker, then rate limiter. The first failing gate wins.
func (g *Guard) TradingAllowed() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tradingAllowedLocked()
}

func (g *Guard) tradingAllowedLocked() error {
	if g.state.KillSwitchActive {
		return &ViolationError{Kind: KillSwitch, Reason: g.state.KillSwitchReason}
	}
	if g.state.CircuitBreakerActive {
		return &ViolationError{Kind: CircuitBreaker, Reason: g.state.CircuitBreakerReason}
	}
	if !g.limiter.Check() {
		return &ViolationError{Kind: RateLimit, Reason: "rate limit exceeded"}
	}
	return nil
}

// ValidateOrder runs the full admission sequence for one order attempt.
// Checks run in a fixed order and the first failure stops the sequence;
// every failure past the global gates counts as a violation.
func (g *Guard) ValidateOrder(symbol string, price, quantity, currentPositionValue decimal.Decimal) error {
	g.mu.Lock()

	if err := g.tradingAllowedLocked(); err != nil {
		g.mu.Unlock()
		return err
	}

	if _, ok := g.symbols[symbol]; !ok {
		return g.violation(InvalidSymbol, fmt.Sprintf("invalid symbol: %s", symbol))
	}

	if price.LessThan(g.cfg.MinPrice) {
		return g.violation(InvalidPrice, fmt.Sprintf("price too low: %s", price))
	}
	if price.GreaterThan(g.cfg.MaxPrice) {
		return g.violation(InvalidPrice, fmt.Sprintf("price too high: %s", price))
	}

	if last, ok := g.lastPrices[symbol]; ok && last.IsPositive() {
		changePct, _ := price.Sub(last).Div(last).Mul(decimal.NewFromInt(100)).Abs().Float64()
		if changePct > g.cfg.PriceChangeThresholdPct {
			g.log.Warn("price anomaly detected",
				zap.String("symbol", symbol),
				zap.String("last_price", last.String()),
				zap.String("price", price.String()),
				zap.Float64("change_pct", changePct))
			return g.violation(AnomalyDetected, fmt.Sprintf("price change too large: %.1f%%", changePct))
		}
	}

	if quantity.LessThan(g.cfg.MinQuantity) {
		return g.violation(InvalidQuantity, fmt.Sprintf("quantity too small: %s", quantity))
	}
	if quantity.GreaterThan(g.cfg.MaxQuantity) {
		return g.violation(InvalidQuantity, fmt.Sprintf("quantity too large: %s", quantity))
	}

	notional := price.Mul(quantity)
	if notional.GreaterThan(g.cfg.MaxNotionalPerOrder) {
		return g.violation(InvalidQuantity, fmt.Sprintf("notional too large: %s", notional))
	}

	if currentPositionValue.Add(notional).GreaterThan(g.cfg.MaxPositionValue) {
		return g.violation(PositionLimit, fmt.Sprintf("position limit exceeded: %s", currentPositionValue.Add(notional)))
	}

	g.mu.Unlock()
	return nil
}

// violation records a failed check and returns its error. Called with the
// mutex held; releases it.
func (g *Guard) violation(kind Violation, reason string) error {
	now := time.Now().UTC()

	// The daily counter restarts on the first violation of a new UTC day.
	if !g.state.LastViolationAt.IsZero() &&
		g.state.LastViolationAt.UTC().Truncate(24*time.Hour) != now.Truncate(24*time.Hour) {
		g.state.ViolationsToday = 0
	}

	g.state.ViolationsToday++
	g.state.LastViolationAt = now

	g.log.Warn("safety violation",
		zap.String("kind", string(kind)),
		zap.String("reason", reason),
		zap.Int("violations_today", g.state.ViolationsToday))

	autoKill := g.state.ViolationsToday >= g.cfg.AutoKillViolations && !g.state.KillSwitchActive
	g.mu.Unlock()

	if autoKill {
		// Fire-and-forget: the triggering order attempt is already
		// rejected either way.
		go func() {
			if err := g.ActivateKillSwitch("too many safety violations"); err != nil {
				g.log.Error("auto kill switch failed", zap.Error(err))
			}
		}()
	}

	return &ViolationError{Kind: kind, Reason: reason}
}

// RecordOrder registers a successful admission: consumes a rate-limit slot
// and remembers the price for anomaly detection.
func (g *Guard) RecordOrder(symbol string, price decimal.Decimal) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.limiter.Record()
	if price.IsPositive() {
		g.lastPrices[symbol] = price
	}
}

// RecordTradeResult feeds a realized P&L into the circuit breaker. Losses
// accumulate; a win resets the counters but never clears a tripped breaker.
func (g *Guard) RecordTradeResult(pnl decimal.Decimal) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if pnl.IsNegative() {
		g.state.ConsecutiveLosses++
		g.state.CumulativeLoss = g.state.CumulativeLoss.Add(pnl.Abs())

		if g.state.ConsecutiveLosses >= g.cfg.MaxConsecutiveLosses {
			g.tripCircuitBreakerLocked(fmt.Sprintf("max consecutive losses reached: %d", g.state.ConsecutiveLosses))
		} else if g.state.CumulativeLoss.GreaterThanOrEqual(g.cfg.LossThresholdForPause) {
			g.tripCircuitBreakerLocked(fmt.Sprintf("cumulative loss threshold reached: %s", g.state.CumulativeLoss))
		}
		return
	}

	g.state.ConsecutiveLosses = 0
	g.state.CumulativeLoss = decimal.Zero
}

func (g *Guard) tripCircuitBreakerLocked(reason string) {
	g.state.CircuitBreakerActive = true
	g.state.CircuitBreakerReason = reason
	g.log.Warn("circuit breaker activated", zap.String("reason", reason))
}

// ResetCircuitBreaker clears the breaker and both loss counters. Manual
// override; there is no automatic reset.
func (g *Guard) ResetCircuitBreaker() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.state.CircuitBreakerActive = false
	g.state.CircuitBreakerReason = ""
	g.state.ConsecutiveLosses = 0
	g.state.CumulativeLoss = decimal.Zero
	g.log.Info("circuit breaker reset")
}

// ActivateKillSwitch halts all trading and runs the registered hooks in
// order. A failing hook is logged and the rest still run; the collected
// hook errors are returned for the operator.
func (g *Guard) ActivateKillSwitch(reason string) error {
	g.mu.Lock()
	g.state.KillSwitchActive = true
	g.state.KillSwitchReason = reason
	g.state.KillSwitchActivatedAt = time.Now().UTC()
	callbacks := make([]Callback, len(g.callbacks))
	copy(callbacks, g.callbacks)
	g.mu.Unlock()

	g.log.Error("KILL SWITCH ACTIVATED", zap.String("reason", reason))

	var errs []error
	for _, cb := range callbacks {
		if err := cb.Run(); err != nil {
			g.log.Error("kill switch callback failed",
				zap.String("callback", cb.Name),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", cb.Name, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("kill switch callbacks failed: %v", errs)
	}
	return nil
}

// DeactivateKillSwitch clears the kill switch.
func (g *Guard) DeactivateKillSwitch() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state.KillSwitchActive && !g.state.KillSwitchActivatedAt.IsZero() {
		g.log.Info("kill switch deactivated",
			zap.Duration("was_active_for", time.Since(g.state.KillSwitchActivatedAt)))
	}

	g.state.KillSwitchActive = false
	g.state.KillSwitchReason = ""
	g.state.KillSwitchActivatedAt = time.Time{}
}

// Status returns a copy of the guard's state for reporting.
func (g *Guard) Status() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}
