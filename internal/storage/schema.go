package storage

// Decimal columns are stored as TEXT in SQLite and NUMERIC in Postgres;
// both scan losslessly into decimal.Decimal.

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS trades (
	trade_id           TEXT PRIMARY KEY,
	created_at         TIMESTAMP NOT NULL,
	condition_id       TEXT NOT NULL,
	asset              TEXT NOT NULL,
	slug               TEXT NOT NULL,
	yes_token_id       TEXT NOT NULL,
	no_token_id        TEXT NOT NULL,
	yes_price          TEXT NOT NULL,
	no_price           TEXT NOT NULL,
	intended_pairs     TEXT NOT NULL,
	intended_cost      TEXT NOT NULL,
	yes_shares         TEXT NOT NULL,
	no_shares          TEXT NOT NULL,
	yes_cost           TEXT NOT NULL,
	no_cost            TEXT NOT NULL,
	status             TEXT NOT NULL,
	yes_order_status   TEXT NOT NULL,
	no_order_status    TEXT NOT NULL,
	hedge_ratio        TEXT NOT NULL,
	expected_profit    TEXT NOT NULL,
	yes_depth_at_limit TEXT NOT NULL,
	yes_depth_total    TEXT NOT NULL,
	no_depth_at_limit  TEXT NOT NULL,
	no_depth_total     TEXT NOT NULL,
	market_end_time    TIMESTAMP NOT NULL,
	dry_run            INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_trades_created_at ON trades (created_at);
CREATE INDEX IF NOT EXISTS idx_trades_end_time ON trades (market_end_time);

CREATE TABLE IF NOT EXISTS settlement_queue (
	trade_id        TEXT NOT NULL,
	token_id        TEXT NOT NULL,
	condition_id    TEXT NOT NULL,
	asset           TEXT NOT NULL,
	outcome         TEXT NOT NULL,
	shares          TEXT NOT NULL,
	entry_price     TEXT NOT NULL,
	entry_cost      TEXT NOT NULL,
	market_end_time TIMESTAMP NOT NULL,
	claimed         INTEGER NOT NULL DEFAULT 0,
	claimed_at      TIMESTAMP,
	claim_proceeds  TEXT NOT NULL DEFAULT '0',
	claim_profit    TEXT NOT NULL DEFAULT '0',
	claim_attempts  INTEGER NOT NULL DEFAULT 0,
	last_error      TEXT NOT NULL DEFAULT '',
	next_attempt_at TIMESTAMP,
	abandoned       INTEGER NOT NULL DEFAULT 0,
	created_at      TIMESTAMP NOT NULL,
	PRIMARY KEY (trade_id, token_id)
);

CREATE INDEX IF NOT EXISTS idx_settlement_pending
	ON settlement_queue (claimed, abandoned, market_end_time);

CREATE TABLE IF NOT EXISTS circuit_breaker_state (
	id                   INTEGER PRIMARY KEY CHECK (id = 1),
	level                TEXT NOT NULL,
	consecutive_failures INTEGER NOT NULL,
	daily_pnl            TEXT NOT NULL,
	day_bucket           TEXT NOT NULL,
	updated_at           TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS liquidity_snapshots (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	condition_id TEXT NOT NULL,
	asset        TEXT NOT NULL,
	taken_at     TIMESTAMP NOT NULL,
	yes_bid      TEXT NOT NULL DEFAULT '0',
	yes_bid_size TEXT NOT NULL DEFAULT '0',
	yes_ask      TEXT NOT NULL DEFAULT '0',
	yes_ask_size TEXT NOT NULL DEFAULT '0',
	no_bid       TEXT NOT NULL DEFAULT '0',
	no_bid_size  TEXT NOT NULL DEFAULT '0',
	no_ask       TEXT NOT NULL DEFAULT '0',
	no_ask_size  TEXT NOT NULL DEFAULT '0',
	spread       TEXT NOT NULL DEFAULT '0'
);

CREATE INDEX IF NOT EXISTS idx_liquidity_taken_at ON liquidity_snapshots (taken_at);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS trades (
	trade_id           TEXT PRIMARY KEY,
	created_at         TIMESTAMPTZ NOT NULL,
	condition_id       TEXT NOT NULL,
	asset              TEXT NOT NULL,
	slug               TEXT NOT NULL,
	yes_token_id       TEXT NOT NULL,
	no_token_id        TEXT NOT NULL,
	yes_price          NUMERIC(20,8) NOT NULL,
	no_price           NUMERIC(20,8) NOT NULL,
	intended_pairs     NUMERIC(20,8) NOT NULL,
	intended_cost      NUMERIC(20,8) NOT NULL,
	yes_shares         NUMERIC(20,8) NOT NULL,
	no_shares          NUMERIC(20,8) NOT NULL,
	yes_cost           NUMERIC(20,8) NOT NULL,
	no_cost            NUMERIC(20,8) NOT NULL,
	status             TEXT NOT NULL,
	yes_order_status   TEXT NOT NULL,
	no_order_status    TEXT NOT NULL,
	hedge_ratio        NUMERIC(20,8) NOT NULL,
	expected_profit    NUMERIC(20,8) NOT NULL,
	yes_depth_at_limit NUMERIC(20,8) NOT NULL,
	yes_depth_total    NUMERIC(20,8) NOT NULL,
	no_depth_at_limit  NUMERIC(20,8) NOT NULL,
	no_depth_total     NUMERIC(20,8) NOT NULL,
	market_end_time    TIMESTAMPTZ NOT NULL,
	dry_run            BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_trades_created_at ON trades (created_at);
CREATE INDEX IF NOT EXISTS idx_trades_end_time ON trades (market_end_time);

CREATE TABLE IF NOT EXISTS settlement_queue (
	trade_id        TEXT NOT NULL,
	token_id        TEXT NOT NULL,
	condition_id    TEXT NOT NULL,
	asset           TEXT NOT NULL,
	outcome         TEXT NOT NULL,
	shares          NUMERIC(20,8) NOT NULL,
	entry_price     NUMERIC(20,8) NOT NULL,
	entry_cost      NUMERIC(20,8) NOT NULL,
	market_end_time TIMESTAMPTZ NOT NULL,
	claimed         BOOLEAN NOT NULL DEFAULT FALSE,
	claimed_at      TIMESTAMPTZ,
	claim_proceeds  NUMERIC(20,8) NOT NULL DEFAULT 0,
	claim_profit    NUMERIC(20,8) NOT NULL DEFAULT 0,
	claim_attempts  INTEGER NOT NULL DEFAULT 0,
	last_error      TEXT NOT NULL DEFAULT '',
	next_attempt_at TIMESTAMPTZ,
	abandoned       BOOLEAN NOT NULL DEFAULT FALSE,
	created_at      TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (trade_id, token_id)
);

CREATE INDEX IF NOT EXISTS idx_settlement_pending
	ON settlement_queue (claimed, abandoned, market_end_time);

CREATE TABLE IF NOT EXISTS circuit_breaker_state (
	id                   INTEGER PRIMARY KEY CHECK (id = 1),
	level                TEXT NOT NULL,
	consecutive_failures INTEGER NOT NULL,
	daily_pnl            NUMERIC(20,8) NOT NULL,
	day_bucket           TEXT NOT NULL,
	updated_at           TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS liquidity_snapshots (
	id           BIGSERIAL PRIMARY KEY,
	condition_id TEXT NOT NULL,
	asset        TEXT NOT NULL,
	taken_at     TIMESTAMPTZ NOT NULL,
	yes_bid      NUMERIC(20,8) NOT NULL DEFAULT 0,
	yes_bid_size NUMERIC(20,8) NOT NULL DEFAULT 0,
	yes_ask      NUMERIC(20,8) NOT NULL DEFAULT 0,
	yes_ask_size NUMERIC(20,8) NOT NULL DEFAULT 0,
	no_bid       NUMERIC(20,8) NOT NULL DEFAULT 0,
	no_bid_size  NUMERIC(20,8) NOT NULL DEFAULT 0,
	no_ask       NUMERIC(20,8) NOT NULL DEFAULT 0,
	no_ask_size  NUMERIC(20,8) NOT NULL DEFAULT 0,
	spread       NUMERIC(20,8) NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_liquidity_taken_at ON liquidity_snapshots (taken_at);
`
