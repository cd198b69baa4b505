package broker

import "errors"

var (
	// ErrDailyTradeLimit means the per-day trade cap was already reached.
	ErrDailyTradeLimit = errors.New("broker: daily trade limit reached")

	// ErrNoFill means a simulated execution completed without any fill.
	ErrNoFill = errors.New("broker: order received no fill")
)

// RejectError reports an order denied by the risk gateway or by the local
// position-limit fallback. The reason is operator-facing.
type RejectError struct {
	Reason string
}

func (e *RejectError) Error() string {
	return "broker: order rejected: " + e.Reason
}
