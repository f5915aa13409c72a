package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"solcycle/internal/application/port"
	"solcycle/internal/domain/model"
)

type Repo struct {
	db *sql.DB
}

func New(dsn string) (*Repo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS positions (
  mint TEXT PRIMARY KEY,
  symbol TEXT NOT NULL DEFAULT '',
  entry_price DOUBLE PRECISION NOT NULL,
  quantity DOUBLE PRECISION NOT NULL,
  last_observed_price DOUBLE PRECISION NOT NULL DEFAULT 0,
  decimals SMALLINT NOT NULL,
  partial_tp_done BOOLEAN NOT NULL DEFAULT FALSE,
  capital_invested DOUBLE PRECISION NOT NULL,
  opened_at BIGINT NOT NULL,
  sell_failures INT NOT NULL DEFAULT 0,
  updated_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS purchases (
  mint TEXT PRIMARY KEY,
  attempt_count INT NOT NULL,
  last_entry_price DOUBLE PRECISION NOT NULL,
  updated_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS decimals (
  mint TEXT PRIMARY KEY,
  decimals SMALLINT NOT NULL
);

CREATE TABLE IF NOT EXISTS blocklist (
  mint TEXT PRIMARY KEY,
  blocked_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS cooldowns (
  mint TEXT PRIMARY KEY,
  sold_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
  id BIGSERIAL PRIMARY KEY,
  mint TEXT NOT NULL,
  symbol TEXT NOT NULL DEFAULT '',
  side TEXT NOT NULL,
  sol_amount DOUBLE PRECISION NOT NULL,
  token_amount DOUBLE PRECISION NOT NULL,
  price DOUBLE PRECISION NOT NULL,
  signature TEXT NOT NULL,
  reason TEXT NOT NULL DEFAULT '',
  pnl_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
  ts_ms BIGINT NOT NULL
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
		var openedMs int64
		if err := rows.Scan(&p.Mint, &p.Symbol, &p.EntryPrice, &p.Quantity, &p.LastObservedPrice,
			&p.Decimals, &p.PartialTakeProfitDone, &p.CapitalInvested, &openedMs, &p.SellFailures); err != nil {
			return nil, err
		}
		p.OpenedAt = time.UnixMilli(openedMs)
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func (r *Repo) UpsertPosition(ctx context.Context, pos model.Position) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO positions(mint, symbol, entry_price, quantity, last_observed_price,
		                      decimals, partial_tp_done, capital_invested, opened_at, sell_failures, updated_at)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT(mint) DO UPDATE SET
		symbol=EXCLUDED.symbol, entry_price=EXCLUDED.entry_price, quantity=EXCLUDED.quantity,
		last_observed_price=EXCLUDED.last_observed_price, decimals=EXCLUDED.decimals,
		partial_tp_done=EXCLUDED.partial_tp_done, capital_invested=EXCLUDED.capital_invested,
		opened_at=EXCLUDED.opened_at, sell_failures=EXCLUDED.sell_failures, updated_at=EXCLUDED.updated_at
	`, pos.Mint, pos.Symbol, pos.EntryPrice, pos.Quantity, pos.LastObservedPrice,
		pos.Decimals, pos.PartialTakeProfitDone, pos.CapitalInvested, pos.OpenedAt.UnixMilli(),
		pos.SellFailures, time.Now().UnixMilli())
	return err
}

func (r *Repo) DeletePosition(ctx context.Context, mint string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM positions WHERE mint=$1`, mint)
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
		VALUES($1, $2, $3, $4)
		ON CONFLICT(mint) DO UPDATE SET
		attempt_count=EXCLUDED.attempt_count, last_entry_price=EXCLUDED.last_entry_price, updated_at=EXCLUDED.updated_at
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
		INSERT INTO decimals(mint, decimals) VALUES($1, $2)
		ON CONFLICT(mint) DO UPDATE SET decimals=EXCLUDED.decimals
	`, mint, decimals)
	return err
}

func (r *Repo) LoadBlocklist(ctx context.Context) (map[string]time.Time, error) {
	return r.loadTimes(ctx, `SELECT mint, blocked_at FROM blocklist`)
}

func (r *Repo) UpsertBlock(ctx context.Context, mint string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO blocklist(mint, blocked_at) VALUES($1, $2)
		ON CONFLICT(mint) DO UPDATE SET blocked_at=EXCLUDED.blocked_at
	`, mint, at.UnixMilli())
	return err
}

func (r *Repo) DeleteBlock(ctx context.Context, mint string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM blocklist WHERE mint=$1`, mint)
	return err
}

func (r *Repo) LoadCooldowns(ctx context.Context) (map[string]time.Time, error) {
	return r.loadTimes(ctx, `SELECT mint, sold_at FROM cooldowns`)
}

func (r *Repo) UpsertCooldown(ctx context.Context, mint string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cooldowns(mint, sold_at) VALUES($1, $2)
		ON CONFLICT(mint) DO UPDATE SET sold_at=EXCLUDED.sold_at
	`, mint, at.UnixMilli())
	return err
}

func (r *Repo) DeleteCooldown(ctx context.Context, mint string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM cooldowns WHERE mint=$1`, mint)
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
		VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
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
