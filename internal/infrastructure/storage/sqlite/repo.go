package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"solcycle/internal/application/port"
	"solcycle/internal/domain/model"
)

type Repo struct {
	db *sql.DB
}

func New(path string) (*Repo, error) {
	// ensure directory exists
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) GetDB() *sql.DB {
	return r.db
}

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS positions (
  mint TEXT PRIMARY KEY,
  symbol TEXT NOT NULL DEFAULT '',
  entry_price REAL NOT NULL,
  quantity REAL NOT NULL,
  last_observed_price REAL NOT NULL DEFAULT 0,
  decimals INTEGER NOT NULL,
  partial_tp_done INTEGER NOT NULL DEFAULT 0,
  capital_invested REAL NOT NULL,
  opened_at INTEGER NOT NULL,
  sell_failures INTEGER NOT NULL DEFAULT 0,
  updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_positions_opened ON positions(opened_at);

CREATE TABLE IF NOT EXISTS purchases (
  mint TEXT PRIMARY KEY,
  attempt_count INTEGER NOT NULL,
  last_entry_price REAL NOT NULL,
  updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS decimals (
  mint TEXT PRIMARY KEY,
  decimals INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS blocklist (
  mint TEXT PRIMARY KEY,
  blocked_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS cooldowns (
  mint TEXT PRIMARY KEY,
  sold_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  mint TEXT NOT NULL,
  symbol TEXT NOT NULL DEFAULT '',
  side TEXT NOT NULL,
  sol_amount REAL NOT NULL,
  token_amount REAL NOT NULL,
  price REAL NOT NULL,
  signature TEXT NOT NULL,
  reason TEXT NOT NULL DEFAULT '',
  pnl_pct REAL NOT NULL DEFAULT 0,
  ts_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_mint ON trades(mint);
CREATE INDEX IF NOT EXISTS idx_trades_ts ON trades(ts_ms);
`)
	return err
}

func (r *Repo) LoadPositions(ctx context.Context) ([]model.Position, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT mint, symbol, entry_price, quantity, last_observed_price,
		       decimals, partial_tp_done, capital_invested, opened_at, sell_failures
		FROM positions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		var p model.Position
		var tpDone int
		var openedMs int64
		if err := rows.Scan(&p.Mint, &p.Symbol, &p.EntryPrice, &p.Quantity, &p.LastObservedPrice,
			&p.Decimals, &tpDone, &p.CapitalInvested, &openedMs, &p.SellFailures); err != nil {
			return nil, err
		}
		p.PartialTakeProfitDone = tpDone != 0
		p.OpenedAt = time.UnixMilli(openedMs)
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func (r *Repo) UpsertPosition(ctx context.Context, pos model.Position) error {
	tpDone := 0
	if pos.PartialTakeProfitDone {
		tpDone = 1
	}
	now := time.Now().UnixMilli()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO positions(mint, symbol, entry_price, quantity, last_observed_price,
		                      decimals, partial_tp_done, capital_invested, opened_at, sell_failures, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(mint) DO UPDATE SET
		symbol=excluded.symbol, entry_price=excluded.entry_price, quantity=excluded.quantity,
		last_observed_price=excluded.last_observed_price, decimals=excluded.decimals,
		partial_tp_done=excluded.partial_tp_done, capital_invested=excluded.capital_invested,
		opened_at=excluded.opened_at, sell_failures=excluded.sell_failures, updated_at=excluded.updated_at
	`, pos.Mint, pos.Symbol, pos.EntryPrice, pos.Quantity, pos.LastObservedPrice,
		pos.Decimals, tpDone, pos.CapitalInvested, pos.OpenedAt.UnixMilli(), pos.SellFailures, now)
	return err
}

func (r *Repo) DeletePosition(ctx context.Context, mint string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM positions WHERE mint=?`, mint)
	return err
}

func (r *Repo) LoadPurchases(ctx context.Context) (map[string]model.PurchaseRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT mint, attempt_count, last_entry_price FROM purchases`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	purchases := make(map[string]model.PurchaseRecord)
	for rows.Next() {
		var mint string
		var rec model.PurchaseRecord
		if err := rows.Scan(&mint, &rec.AttemptCount, &rec.LastEntryPrice); err != nil {
			return nil, err
		}
		purchases[mint] = rec
	}
	return purchases, rows.Err()
}

func (r *Repo) UpsertPurchase(ctx context.Context, mint string, rec model.PurchaseRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO purchases(mint, attempt_count, last_entry_price, updated_at)
		VALUES(?, ?, ?, ?)
		ON CONFLICT(mint) DO UPDATE SET
		attempt_count=excluded.attempt_count, last_entry_price=excluded.last_entry_price, updated_at=excluded.updated_at
	`, mint, rec.AttemptCount, rec.LastEntryPrice, time.Now().UnixMilli())
	return err
}

func (r *Repo) LoadDecimals(ctx context.Context) (map[string]uint8, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT mint, decimals FROM decimals`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]uint8)
	for rows.Next() {
		var mint string
		var d uint8
		if err := rows.Scan(&mint, &d); err != nil {
			return nil, err
		}
		out[mint] = d
	}
	return out, rows.Err()
}

func (r *Repo) UpsertDecimals(ctx context.Context, mint string, decimals uint8) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO decimals(mint, decimals) VALUES(?, ?)
		ON CONFLICT(mint) DO UPDATE SET decimals=excluded.decimals
	`, mint, decimals)
	return err
}

func (r *Repo) LoadBlocklist(ctx context.Context) (map[string]time.Time, error) {
	return r.loadTimes(ctx, `SELECT mint, blocked_at FROM blocklist`)
}

func (r *Repo) UpsertBlock(ctx context.Context, mint string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO blocklist(mint, blocked_at) VALUES(?, ?)
		ON CONFLICT(mint) DO UPDATE SET blocked_at=excluded.blocked_at
	`, mint, at.UnixMilli())
	return err
}

func (r *Repo) DeleteBlock(ctx context.Context, mint string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM blocklist WHERE mint=?`, mint)
	return err
}

func (r *Repo) LoadCooldowns(ctx context.Context) (map[string]time.Time, error) {
	return r.loadTimes(ctx, `SELECT mint, sold_at FROM cooldowns`)
}

func (r *Repo) UpsertCooldown(ctx context.Context, mint string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cooldowns(mint, sold_at) VALUES(?, ?)
		ON CONFLICT(mint) DO UPDATE SET sold_at=excluded.sold_at
	`, mint, at.UnixMilli())
	return err
}

func (r *Repo) DeleteCooldown(ctx context.Context, mint string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM cooldowns WHERE mint=?`, mint)
	return err
}

func (r *Repo) loadTimes(ctx context.Context, query string) (map[string]time.Time, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var mint string
		var ms int64
		if err := rows.Scan(&mint, &ms); err != nil {
			return nil, err
		}
		out[mint] = time.UnixMilli(ms)
	}
	return out, rows.Err()
}

func (r *Repo) InsertTrade(ctx context.Context, t model.TradeRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO trades(mint, symbol, side, sol_amount, token_amount, price, signature, reason, pnl_pct, ts_ms)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.Mint, t.Symbol, t.Side, t.SOLAmount, t.TokenAmount, t.Price, t.Signature, t.Reason, t.PnLPct, t.Timestamp)
	return err
}

func (r *Repo) TradeStats(ctx context.Context) (port.TradeStats, error) {
	var s port.TradeStats
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN pnl_pct > 0 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(pnl_pct), 0)
		FROM trades WHERE side='sell'
	`).Scan(&s.Trades, &s.Wins, &s.NetPnL)
	return s, err
}

var _ port.Repository = (*Repo)(nil)
