package safety

// Violation classifies why the guard refused an order.
type Violation string

const (
	RateLimit       Violation = "rate_limit"
	InvalidPrice    Violation = "invalid_price"
	InvalidQuantity Violation = "invalid_quantity"
	InvalidSymbol   Violation = "invalid_symbol"
	PositionLimit   Violation = "position_limit"
	KillSwitch      Violation = "kill_switch"
	AnomalyDetected Violation = "anomaly_detected"
	CircuitBreaker  Violation = "circuit_breaker"
)

// ViolationError is the structured outcome of a failed admission check. It
// is a normal no-trade result for the caller, not a process fault.
type ViolationError struct {
	Kind   Violation
	Reason string
}

func (e *ViolationError) Error() string {
	return "safety: " + string(e.Kind) + ": " + e.Reason
}
