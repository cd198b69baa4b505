package sim

import (
	"math/rand"
	"time"
)

// Source supplies the randomness the simulator consumes. *rand.Rand
// satisfies it; tests inject a scripted source to make draws deterministic.
type Source interface {
	// Float64 returns a uniform draw in [0, 1).
	Float64() float64
	// NormFloat64 returns a standard normal draw.
	NormFloat64() float64
}

func newSource() Source {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}
