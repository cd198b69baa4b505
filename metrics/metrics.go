// Package metrics holds the Prometheus collectors for the execution engine.
// Collectors register themselves on the default registry; the API serves
// them at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phantom_orders_submitted_total",
		Help: "Orders admitted and persisted, by symbol and side",
	}, []string{"symbol", "side"})

	OrdersRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phantom_orders_rejected_total",
		Help: "Order attempts refused before execution, by reason",
	}, []string{"reason"})

	TradesExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phantom_trades_executed_total",
		Help: "Simulated fills applied to the ledger, by symbol and side",
	}, []string{"symbol", "side"})

	RealizedPnL = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "phantom_realized_pnl_usd",
		Help: "Cumulative realized P&L in quote currency; a gauge because losses pull it down",
	})

	AccountBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "phantom_account_balance_usd",
		Help: "Current account cash balance",
	})

	AccountEquity = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "phantom_account_equity_usd",
		Help: "Current account equity (balance plus unrealized P&L)",
	})

	SafetyViolations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phantom_safety_violations_total",
		Help: "Admission failures recorded by the safety guard, by kind",
	}, []string{"kind"})

	KillSwitchActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "phantom_kill_switch_active",
		Help: "1 while the kill switch is engaged",
	})

	CircuitBreakerActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "phantom_circuit_breaker_active",
		Help: "1 while the circuit breaker is tripped",
	})

	GatewayFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "phantom_risk_gateway_fallbacks_total",
		Help: "Times the remote risk gateway was unreachable and local checks ran instead",
	})

	SimulatedLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "phantom_simulated_latency_ms",
		Help:    "Latency drawn by the execution simulator, in milliseconds",
		Buckets: []float64{10, 25, 50, 75, 100, 150, 250, 500, 1000},
	})
)
