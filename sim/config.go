package sim

// Config holds the execution model parameters.
type Config struct {
	// Latency parameters (milliseconds).
	BaseLatencyMS      float64 `json:"base_latency_ms" yaml:"base_latency_ms"`
	LatencyStdMS       float64 `json:"latency_std_ms" yaml:"latency_std_ms"`
	HighVolLatencyMult float64 `json:"high_vol_latency_multiplier" yaml:"high_vol_latency_multiplier"`

	// Fill model.
	BaseFillProbability  float64 `json:"base_fill_probability" yaml:"base_fill_probability"`
	QueuePositionDecay   float64 `json:"queue_position_decay" yaml:"queue_position_decay"`
	LevelFillProbability float64 `json:"level_fill_probability" yaml:"level_fill_probability"`
	MinFillRatio         float64 `json:"min_fill_ratio" yaml:"min_fill_ratio"`

	// Market impact.
	ImpactCoefficient float64 `json:"impact_coefficient" yaml:"impact_coefficient"`
}

// DefaultConfig returns the stock execution model.
func DefaultConfig() Config {
	return Config{
		BaseLatencyMS:        50.0,
		LatencyStdMS:         20.0,
		HighVolLatencyMult:   3.0,
		BaseFillProbability:  0.95,
		QueuePositionDecay:   0.1,
		LevelFillProbability: 0.8,
		MinFillRatio:         0.5,
		ImpactCoefficient:    0.1,
	}
}
