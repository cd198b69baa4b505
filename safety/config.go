package safety

import "github.com/shopspring/decimal"

// Config holds the hard limits the guard enforces. These cannot be bypassed
// at runtime; raising a limit requires a restart.
type Config struct {
	// Rate limits.
	MaxOrdersPerSecond int `json:"max_orders_per_second" yaml:"max_orders_per_second"`
	MaxOrdersPerMinute int `json:"max_orders_per_minute" yaml:"max_orders_per_minute"`
	MaxOrdersPerHour   int `json:"max_orders_per_hour" yaml:"max_orders_per_hour"`

	// Value sanity bounds.
	MinPrice            decimal.Decimal `json:"min_price" yaml:"min_price"`
	MaxPrice            decimal.Decimal `json:"max_price" yaml:"max_price"`
	MinQuantity         decimal.Decimal `json:"min_quantity" yaml:"min_quantity"`
	MaxQuantity         decimal.Decimal `json:"max_quantity" yaml:"max_quantity"`
	MaxNotionalPerOrder decimal.Decimal `json:"max_notional_per_order" yaml:"max_notional_per_order"`
	MaxPositionValue    decimal.Decimal `json:"max_position_value" yaml:"max_position_value"`

	// Anomaly detection: reject when the price moved more than this
	// percentage since the last recorded order on the symbol.
	PriceChangeThresholdPct float64 `json:"price_change_threshold_pct" yaml:"price_change_threshold_pct"`

	// Circuit breaker.
	MaxConsecutiveLosses  int             `json:"max_consecutive_losses" yaml:"max_consecutive_losses"`
	LossThresholdForPause decimal.Decimal `json:"loss_threshold_for_pause" yaml:"loss_threshold_for_pause"`

	// Symbols the guard admits orders for.
	Symbols []string `json:"symbols" yaml:"symbols"`

	// Daily violation count that auto-triggers the kill switch.
	AutoKillViolations int `json:"auto_kill_violations" yaml:"auto_kill_violations"`
}

// DefaultConfig returns the stock limits.
func DefaultConfig() Config {
	return Config{
		MaxOrdersPerSecond:      5,
		MaxOrdersPerMinute:      60,
		MaxOrdersPerHour:        500,
		MinPrice:                decimal.RequireFromString("0.01"),
		MaxPrice:                decimal.NewFromInt(1_000_000),
		MinQuantity:             decimal.RequireFromString("0.00001"),
		MaxQuantity:             decimal.NewFromInt(100),
		MaxNotionalPerOrder:     decimal.NewFromInt(100_000),
		MaxPositionValue:        decimal.NewFromInt(50_000),
		PriceChangeThresholdPct: 10.0,
		MaxConsecutiveLosses:    10,
		LossThresholdForPause:   decimal.NewFromInt(500),
		Symbols:                 []string{"BTCUSDT", "ETHUSDT"},
		AutoKillViolations:      100,
	}
}
