// Package id generates the ledger's identifiers: ULIDs for orders and
// TRD-prefixed hex ids for trades.
package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	mu   sync.Mutex
	mono io.Reader
)

func init() {
	// Seed a PRNG from crypto/rand so ULID entropy is unpredictable.
	// ulid.Monotonic keeps ids generated within the same millisecond
	// lexicographically increasing.
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	mono = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// NewOrder returns an order id: a ULID, time-sortable, which keeps the
// orders table naturally ordered by creation time.
func NewOrder() string {
	mu.Lock()
	defer mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(time.Now().UTC()), mono)
	if err != nil {
		// Only possible if time goes backwards or entropy fails.
		panic(err)
	}
	return id.String()
}

// NewTrade returns a trade id of the form TRD-<12 hex chars>.
func NewTrade() string {
	u := uuid.New()
	return "TRD-" + hex.EncodeToString(u[:6])
}
