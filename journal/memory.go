package journal

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/SamoraDC/Phantom-Flow/broker"
)

// Memory is an in-process Journal with the same upsert semantics as the
// SQLite store. It backs tests and throwaway simulation runs where nothing
// should touch disk.
type Memory struct {
	mu        sync.Mutex
	orders    map[string]broker.Order
	trades    map[string]broker.Trade
	positions map[string]broker.Position
	snapshots []broker.Account
	daily     map[string]DailyStats
}

var _ Journal = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		orders:    make(map[string]broker.Order),
		trades:    make(map[string]broker.Trade),
		positions: make(map[string]broker.Position),
		daily:     make(map[string]DailyStats),
	}
}

func (m *Memory) SaveOrder(_ context.Context, o broker.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
	return nil
}

func (m *Memory) SaveTrade(_ context.Context, t broker.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades[t.ID] = t
	return nil
}

func (m *Memory) SavePosition(_ context.Context, p broker.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[p.Symbol] = p
	return nil
}

func (m *Memory) Positions(_ context.Context) ([]broker.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	positions := make([]broker.Position, 0, len(m.positions))
	for _, p := range m.positions {
		positions = append(positions, p)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Symbol < positions[j].Symbol })
	return positions, nil
}

func (m *Memory) Trades(_ context.Context, q TradeQuery) ([]broker.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var trades []broker.Trade
	for _, t := range m.trades {
		if q.Symbol != "" && t.Symbol != q.Symbol {
			continue
		}
		if !q.Since.IsZero() && t.ExecutedAt.Before(q.Since) {
			continue
		}
		if !q.Until.IsZero() && t.ExecutedAt.After(q.Until) {
			continue
		}
		trades = append(trades, t)
	}

	sort.Slice(trades, func(i, j int) bool { return trades[i].ExecutedAt.After(trades[j].ExecutedAt) })

	limit := q.Limit
	if limit <= 0 {
		limit = 1000
	}
	if len(trades) > limit {
		trades = trades[:limit]
	}
	return trades, nil
}

func (m *Memory) TradeCountToday(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	midnight := time.Now().UTC().Truncate(24 * time.Hour)
	count := 0
	for _, t := range m.trades {
		if !t.ExecutedAt.UTC().Before(midnight) {
			count++
		}
	}
	return count, nil
}

func (m *Memory) SnapshotAccount(_ context.Context, a broker.Account, _ []broker.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = append(m.snapshots, a)
	return nil
}

func (m *Memory) SaveDailyStats(_ context.Context, stats DailyStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.daily[stats.Date.UTC().Format("2006-01-02")] = stats
	return nil
}

func (m *Memory) Close() error { return nil }

// Orders returns the stored orders, test helper.
func (m *Memory) Orders() []broker.Order {
	m.mu.Lock()
	defer m.mu.Unlock()

	orders := make([]broker.Order, 0, len(m.orders))
	for _, o := range m.orders {
		orders = append(orders, o)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })
	return orders
}

// Snapshots returns the recorded account snapshots, test helper.
func (m *Memory) Snapshots() []broker.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]broker.Account(nil), m.snapshots...)
}
