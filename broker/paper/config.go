package paper

import "github.com/shopspring/decimal"

// Config holds the paper account parameters and the ledger's own limits.
type Config struct {
	InitialBalance  decimal.Decimal `json:"initial_balance" yaml:"initial_balance"`
	MaxDailyTrades  int             `json:"max_daily_trades" yaml:"max_daily_trades"`
	MaxPositionSize decimal.Decimal `json:"max_position_size" yaml:"max_position_size"`

	// Fee schedule (fraction of notional). Both default to 10 bps.
	MakerFee decimal.Decimal `json:"maker_fee" yaml:"maker_fee"`
	TakerFee decimal.Decimal `json:"taker_fee" yaml:"taker_fee"`
	FeeAsset string          `json:"fee_asset" yaml:"fee_asset"`

	// Adverse slippage applied by the direct execution path, in basis
	// points. The book-walk path derives slippage from the book instead.
	SlippageBPS decimal.Decimal `json:"slippage_bps" yaml:"slippage_bps"`
}

// DefaultConfig returns the stock paper account.
func DefaultConfig() Config {
	return Config{
		InitialBalance:  decimal.NewFromInt(10000),
		MaxDailyTrades:  50,
		MaxPositionSize: decimal.NewFromInt(1),
		MakerFee:        decimal.RequireFromString("0.001"),
		TakerFee:        decimal.RequireFromString("0.001"),
		FeeAsset:        "USDT",
		SlippageBPS:     decimal.NewFromInt(5),
	}
}
