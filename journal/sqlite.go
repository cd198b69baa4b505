package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/SamoraDC/Phantom-Flow/broker"
)

// SQLite is the durable Journal. One writer is assumed; the ledger
// serializes its persistence calls.
type SQLite struct {
	db *sql.DB
}

var _ Journal = (*SQLite)(nil)

// timeFormat is RFC 3339 with fixed-width nanoseconds. All stored times are
// UTC, so the rendered strings sort lexicographically in time order and the
// store can range-filter and ORDER BY on the TEXT column directly.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// NewSQLite opens (creating if needed) the database at path and applies the
// schema.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) SaveOrder(ctx context.Context, o broker.Order) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO orders
		(id, symbol, side, order_type, quantity, price, status, filled_quantity, avg_fill_price, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.Symbol, string(o.Side), string(o.Type),
		o.Quantity.String(), nullDecimal(o.Price),
		string(o.Status), o.FilledQuantity.String(), nullDecimal(o.AvgFillPrice),
		o.CreatedAt.UTC().Format(timeFormat),
		o.UpdatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("save order %s: %w", o.ID, err)
	}
	return nil
}

func (j *SQLite) SaveTrade(ctx context.Context, t broker.Trade) error {
	var pnl sql.NullString
	if t.RealizedPnL.Valid {
		pnl = sql.NullString{String: t.RealizedPnL.Decimal.String(), Valid: true}
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO trades
		(id, order_id, symbol, side, price, quantity, fee, fee_asset, pnl, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.OrderID, t.Symbol, string(t.Side),
		t.Price.String(), t.Quantity.String(), t.Fee.String(), t.FeeAsset,
		pnl, t.ExecutedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("save trade %s: %w", t.ID, err)
	}
	return nil
}

func (j *SQLite) SavePosition(ctx context.Context, p broker.Position) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO positions
		(symbol, quantity, entry_price, unrealized_pnl, realized_pnl, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.Symbol, p.Quantity.String(), p.EntryPrice.String(),
		p.UnrealizedPnL.String(), p.RealizedPnL.String(),
		p.UpdatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("save position %s: %w", p.Symbol, err)
	}
	return nil
}

func (j *SQLite) Positions(ctx context.Context) ([]broker.Position, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT symbol, quantity, entry_price, unrealized_pnl, realized_pnl, updated_at
		FROM positions`)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	var positions []broker.Position
	for rows.Next() {
		var p broker.Position
		var qty, entry, upnl, rpnl, updated string

		if err := rows.Scan(&p.Symbol, &qty, &entry, &upnl, &rpnl, &updated); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}

		if p.Quantity, err = decimal.NewFromString(qty); err != nil {
			return nil, fmt.Errorf("position %s quantity: %w", p.Symbol, err)
		}
		if p.EntryPrice, err = decimal.NewFromString(entry); err != nil {
			return nil, fmt.Errorf("position %s entry_price: %w", p.Symbol, err)
		}
		if p.UnrealizedPnL, err = decimal.NewFromString(upnl); err != nil {
			return nil, fmt.Errorf("position %s unrealized_pnl: %w", p.Symbol, err)
		}
		if p.RealizedPnL, err = decimal.NewFromString(rpnl); err != nil {
			return nil, fmt.Errorf("position %s realized_pnl: %w", p.Symbol, err)
		}
		if p.UpdatedAt, err = time.Parse(timeFormat, updated); err != nil {
			return nil, fmt.Errorf("position %s updated_at: %w", p.Symbol, err)
		}

		positions = append(positions, p)
	}

	return positions, rows.Err()
}

func (j *SQLite) Trades(ctx context.Context, q TradeQuery) ([]broker.Trade, error) {
	query := `
		SELECT id, order_id, symbol, side, price, quantity, fee, fee_asset, pnl, executed_at
		FROM trades WHERE 1=1`
	var args []any

	if q.Symbol != "" {
		query += " AND symbol = ?"
		args = append(args, q.Symbol)
	}
	if !q.Since.IsZero() {
		query += " AND executed_at >= ?"
		args = append(args, q.Since.UTC().Format(timeFormat))
	}
	if !q.Until.IsZero() {
		query += " AND executed_at <= ?"
		args = append(args, q.Until.UTC().Format(timeFormat))
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 1000
	}
	query += " ORDER BY executed_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var trades []broker.Trade
	for rows.Next() {
		var t broker.Trade
		var side, price, qty, fee, executed string
		var pnl sql.NullString

		if err := rows.Scan(&t.ID, &t.OrderID, &t.Symbol, &side, &price, &qty, &fee, &t.FeeAsset, &pnl, &executed); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}

		t.Side = broker.Side(side)
		if t.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("trade %s price: %w", t.ID, err)
		}
		if t.Quantity, err = decimal.NewFromString(qty); err != nil {
			return nil, fmt.Errorf("trade %s quantity: %w", t.ID, err)
		}
		if t.Fee, err = decimal.NewFromString(fee); err != nil {
			return nil, fmt.Errorf("trade %s fee: %w", t.ID, err)
		}
		if pnl.Valid {
			d, err := decimal.NewFromString(pnl.String)
			if err != nil {
				return nil, fmt.Errorf("trade %s pnl: %w", t.ID, err)
			}
			t.RealizedPnL = decimal.NullDecimal{Decimal: d, Valid: true}
		}
		if t.ExecutedAt, err = time.Parse(timeFormat, executed); err != nil {
			return nil, fmt.Errorf("trade %s executed_at: %w", t.ID, err)
		}

		trades = append(trades, t)
	}

	return trades, rows.Err()
}

func (j *SQLite) TradeCountToday(ctx context.Context) (int, error) {
	midnight := time.Now().UTC().Truncate(24 * time.Hour)

	var count int
	err := j.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM trades WHERE executed_at >= ?",
		midnight.Format(timeFormat),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count trades today: %w", err)
	}
	return count, nil
}

func (j *SQLite) SnapshotAccount(ctx context.Context, a broker.Account, positions []broker.Position) error {
	blob, err := positionsJSON(positions)
	if err != nil {
		return err
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO account_snapshots
		(balance, equity, total_pnl, win_rate, total_trades, positions_json)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.Balance.String(), a.Equity.String(), a.TotalPnL.String(),
		a.WinRate(), a.TotalTrades, blob,
	)
	if err != nil {
		return fmt.Errorf("snapshot account: %w", err)
	}
	return nil
}

// SaveDailyStats upserts the end-of-day summary row for stats.Date.
func (j *SQLite) SaveDailyStats(ctx context.Context, stats DailyStats) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO daily_stats
		(date, starting_balance, ending_balance, pnl, trades_count, winning_trades, losing_trades, max_drawdown)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		stats.Date.UTC().Format("2006-01-02"),
		stats.StartingBalance.String(), stats.EndingBalance.String(), stats.PnL.String(),
		stats.TradesCount, stats.WinningTrades, stats.LosingTrades,
		stats.MaxDrawdown.String(),
	)
	if err != nil {
		return fmt.Errorf("save daily stats: %w", err)
	}
	return nil
}

func (j *SQLite) Close() error {
	return j.db.Close()
}

// nullDecimal maps a zero decimal to NULL. Orders without a price (market
// orders) store NULL rather than "0".
func nullDecimal(d decimal.Decimal) sql.NullString {
	if d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}
