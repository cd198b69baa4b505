package broker

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is the net exposure in one symbol. Quantity is signed: positive
// long, negative short, zero flat.
type Position struct {
	Symbol        string          `json:"symbol"`
	Quantity      decimal.Decimal `json:"quantity"`
	EntryPrice    decimal.Decimal `json:"entry_price"`
	MarkPrice     decimal.Decimal `json:"mark_price"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (p *Position) Flat() bool  { return p.Quantity.IsZero() }
func (p *Position) Long() bool  { return p.Quantity.IsPositive() }
func (p *Position) Short() bool { return p.Quantity.IsNegative() }

// Notional is the absolute exposure at the mark price, falling back to the
// entry price before the first mark.
func (p *Position) Notional() decimal.Decimal {
	px := p.MarkPrice
	if px.IsZero() {
		px = p.EntryPrice
	}
	return p.Quantity.Abs().Mul(px)
}

// MarkTo revalues the position against price. (mark - entry) * signed
// quantity is correct for both directions: a short with price below entry
// yields a positive figure.
func (p *Position) MarkTo(price decimal.Decimal, at time.Time) {
	p.MarkPrice = price
	p.UnrealizedPnL = price.Sub(p.EntryPrice).Mul(p.Quantity)
	p.UpdatedAt = at
}

// Account is the paper account's cash and performance state.
type Account struct {
	Balance        decimal.Decimal `json:"balance"`
	Equity         decimal.Decimal `json:"equity"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
	TotalPnL       decimal.Decimal `json:"total_pnl"`
	TotalTrades    int             `json:"total_trades"`
	WinningTrades  int             `json:"winning_trades"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// WinRate is winning trades over P&L-bearing trades, in [0, 1].
func (a *Account) WinRate() float64 {
	if a.TotalTrades == 0 {
		return 0
	}
	return float64(a.WinningTrades) / float64(a.TotalTrades)
}
