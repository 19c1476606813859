package journal

const Schema = `
CREATE TABLE IF NOT EXISTS trades (
	order_id TEXT PRIMARY KEY,
	instrument TEXT NOT NULL,
	side TEXT NOT NULL,
	requested REAL NOT NULL,
	filled_qty REAL NOT NULL,
	filled_price REAL NOT NULL,
	status TEXT NOT NULL,
	time DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
	type TEXT NOT NULL,
	source TEXT NOT NULL,
	instrument TEXT NOT NULL,
	detail TEXT NOT NULL,
	time DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_time ON trades(time);
CREATE INDEX IF NOT EXISTS idx_events_time ON events(time);
`
