package sim

import "math"

// LatencyModel samples standalone network and processing delays, separate
// from the execution model: jitter around a base, scaling under volatility,
// and occasional congestion spikes.
type LatencyModel struct {
	BaseMS           float64
	JitterMS         float64
	SpikeProbability float64
	SpikeMultiplier  float64

	rng Source
}

// NewLatencyModel builds a model with the stock parameters: 50ms base, 20ms
// jitter, 1% spike chance at 10x.
func NewLatencyModel(src Source) *LatencyModel {
	if src == nil {
		src = newSource()
	}
	return &LatencyModel{
		BaseMS:           50,
		JitterMS:         20,
		SpikeProbability: 0.01,
		SpikeMultiplier:  10,
		rng:              src,
	}
}

// Sample returns a latency in milliseconds, never below 10. volatilityFactor
// scales the draw; spikes multiply it further.
func (m *LatencyModel) Sample(volatilityFactor float64) float64 {
	latency := m.BaseMS + m.rng.NormFloat64()*m.JitterMS
	latency *= volatilityFactor

	if m.rng.Float64() < m.SpikeProbability {
		latency *= m.SpikeMultiplier
	}

	return math.Max(10, latency)
}
