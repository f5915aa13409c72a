package storage

import (
	"context"
	"time"

	"solcycle/internal/application/port"
	"solcycle/internal/domain/model"
)

// MemoryRepo is an in-memory Repository. Nothing survives a restart; it backs
// dry runs and tests.
type MemoryRepo struct {
	positions map[string]model.Position
	purchases map[string]model.PurchaseRecord
	decimals  map[string]uint8
	blocklist map[string]time.Time
	cooldowns map[string]time.Time
	trades    []model.TradeRecord
}

// NewMemoryRepo creates an empty in-memory repository.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		positions: make(map[string]model.Position),
		purchases: make(map[string]model.PurchaseRecord),
		decimals:  make(map[string]uint8),
		blocklist: make(map[string]time.Time),
		cooldowns: make(map[string]time.Time),
	}
}

func (r *MemoryRepo) LoadPositions(ctx context.Context) ([]model.Position, error) {
	out := make([]model.Position, 0, len(r.positions))
	for _, p := range r.positions {
		out = append(out, p)
	}
	return out, nil
}

func (r *MemoryRepo) UpsertPosition(ctx context.Context, pos model.Position) error {
	r.positions[pos.Mint] = pos
	return nil
}

func (r *MemoryRepo) DeletePosition(ctx context.Context, mint string) error {
	delete(r.positions, mint)
	return nil
}

func (r *MemoryRepo) LoadPurchases(ctx context.Context) (map[string]model.PurchaseRecord, error) {
	out := make(map[string]model.PurchaseRecord, len(r.purchases))
	for k, v := range r.purchases {
		out[k] = v
	}
	return out, nil
}

func (r *MemoryRepo) UpsertPurchase(ctx context.Context, mint string, rec model.PurchaseRecord) error {
	r.purchases[mint] = rec
	return nil
}

func (r *MemoryRepo) LoadDecimals(ctx context.Context) (map[string]uint8, error) {
	out := make(map[string]uint8, len(r.decimals))
	for k, v := range r.decimals {
		out[k] = v
	}
	return out, nil
}

func (r *MemoryRepo) UpsertDecimals(ctx context.Context, mint string, decimals uint8) error {
	r.decimals[mint] = decimals
	return nil
}

func (r *MemoryRepo) LoadBlocklist(ctx context.Context) (map[string]time.Time, error) {
	out := make(map[string]time.Time, len(r.blocklist))
	for k, v := range r.blocklist {
		out[k] = v
	}
	return out, nil
}

func (r *MemoryRepo) UpsertBlock(ctx context.Context, mint string, at time.Time) error {
	r.blocklist[mint] = at
	return nil
}

func (r *MemoryRepo) DeleteBlock(ctx context.Context, mint string) error {
	delete(r.blocklist, mint)
	return nil
}

func (r *MemoryRepo) LoadCooldowns(ctx context.Context) (map[string]time.Time, error) {
	out := make(map[string]time.Time, len(r.cooldowns))
	for k, v := range r.cooldowns {
		out[k] = v
	}
	return out, nil
}

func (r *MemoryRepo) UpsertCooldown(ctx context.Context, mint string, at time.Time) error {
	r.cooldowns[mint] = at
	return nil
}

func (r *MemoryRepo) DeleteCooldown(ctx context.Context, mint string) error {
	delete(r.cooldowns, mint)
	return nil
}

func (r *MemoryRepo) InsertTrade(ctx context.Context, t model.TradeRecord) error {
	r.trades = append(r.trades, t)
	return nil
}

func (r *MemoryRepo) TradeStats(ctx context.Context) (port.TradeStats, error) {
	var s port.TradeStats
	for _, t := range r.trades {
		if t.Side != "sell" {
			continue
		}
		s.Trades++
		if t.PnLPct > 0 {
			s.Wins++
		}
		s.NetPnL += t.PnLPct
	}
	return s, nil
}

// Trades returns a copy of the trade log, newest last.
func (r *MemoryRepo) Trades() []model.TradeRecord {
	out := make([]model.TradeRecord, len(r.trades))
	copy(out, r.trades)
	return out
}

func (r *MemoryRepo) Close() error { return nil }

var _ port.Repository = (*MemoryRepo)(nil)
