package journal

// Schema creates the ledger tables. Monetary columns are TEXT holding exact
// decimal strings; SQLite REAL would round them.
const Schema = `
CREATE TABLE IF NOT EXISTS orders (
	id TEXT PRIMARY KEY,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	order_type TEXT NOT NULL,
	quantity TEXT NOT NULL,
	price TEXT,
	status TEXT NOT NULL,
	filled_quantity TEXT NOT NULL,
	avg_fill_price TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
	id TEXT PRIMARY KEY,
	order_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	price TEXT NOT NULL,
	quantity TEXT NOT NULL,
	fee TEXT NOT NULL,
	fee_asset TEXT NOT NULL,
	pnl TEXT,
	executed_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
	symbol TEXT PRIMARY KEY,
	quantity TEXT NOT NULL,
	entry_price TEXT NOT NULL,
	unrealized_pnl TEXT NOT NULL,
	realized_pnl TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS account_snapshots (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	balance TEXT NOT NULL,
	equity TEXT NOT NULL,
	total_pnl TEXT NOT NULL,
	win_rate REAL NOT NULL,
	total_trades INTEGER NOT NULL,
	positions_json TEXT NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS daily_stats (
	date DATE PRIMARY KEY,
	starting_balance TEXT NOT NULL,
	ending_balance TEXT NOT NULL,
	pnl TEXT NOT NULL,
	trades_count INTEGER NOT NULL,
	winning_trades INTEGER NOT NULL,
	losing_trades INTEGER NOT NULL,
	max_drawdown TEXT NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
CREATE INDEX IF NOT EXISTS idx_trades_executed_at ON trades(executed_at);
CREATE INDEX IF NOT EXISTS idx_orders_symbol ON orders(symbol);
CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);
`
