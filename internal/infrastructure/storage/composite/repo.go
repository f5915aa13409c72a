package composite

import (
	"context"
	"time"

	"solcycle/internal/application/port"
	"solcycle/internal/domain/model"
)

// Repo fans writes out to every backing repository and serves reads from the
// first one. The first repo is the source of truth on restart.
type Repo struct {
	repos []port.Repository
}

func New(repos ...port.Repository) *Repo {
	// nil repos are allowed; filter in constructor for safety
	out := make([]port.Repository, 0, len(repos))
	for _, r := range repos {
		if r != nil {
			out = append(out, r)
		}
	}
	return &Repo{repos: out}
}

func (r *Repo) fanout(fn func(port.Repository) error) error {
	var firstErr error
	for _, repo := range r.repos {
		if err := fn(repo); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Repo) LoadPositions(ctx context.Context) ([]model.Position, error) {
	if len(r.repos) == 0 {
		return nil, nil
	}
	return r.repos[0].LoadPositions(ctx)
}

func (r *Repo) UpsertPosition(ctx context.Context, pos model.Position) error {
	return r.fanout(func(repo port.Repository) error { return repo.UpsertPosition(ctx, pos) })
}

func (r *Repo) DeletePosition(ctx context.Context, mint string) error {
	return r.fanout(func(repo port.Repository) error { return repo.DeletePosition(ctx, mint) })
}

func (r *Repo) LoadPurchases(ctx context.Context) (map[string]model.PurchaseRecord, error) {
	if len(r.repos) == 0 {
		return map[string]model.PurchaseRecord{}, nil
	}
	return r.repos[0].LoadPurchases(ctx)
}

func (r *Repo) UpsertPurchase(ctx context.Context, mint string, rec model.PurchaseRecord) error {
	return r.fanout(func(repo port.Repository) error { return repo.UpsertPurchase(ctx, mint, rec) })
}

func (r *Repo) LoadDecimals(ctx context.Context) (map[string]uint8, error) {
	if len(r.repos) == 0 {
		return map[string]uint8{}, nil
	}
	return r.repos[0].LoadDecimals(ctx)
}

func (r *Repo) UpsertDecimals(ctx context.Context, mint string, decimals uint8) error {
	return r.fanout(func(repo port.Repository) error { return repo.UpsertDecimals(ctx, mint, decimals) })
}

func (r *Repo) LoadBlocklist(ctx context.Context) (map[string]time.Time, error) {
	if len(r.repos) == 0 {
		return map[string]time.Time{}, nil
	}
	return r.repos[0].LoadBlocklist(ctx)
}

func (r *Repo) UpsertBlock(ctx context.Context, mint string, at time.Time) error {
	return r.fanout(func(repo port.Repository) error { return repo.UpsertBlock(ctx, mint, at) })
}

func (r *Repo) DeleteBlock(ctx context.Context, mint string) error {
	return r.fanout(func(repo port.Repository) error { return repo.DeleteBlock(ctx, mint) })
}

func (r *Repo) LoadCooldowns(ctx context.Context) (map[string]time.Time, error) {
	if len(r.repos) == 0 {
		return map[string]time.Time{}, nil
	}
	return r.repos[0].LoadCooldowns(ctx)
}

func (r *Repo) UpsertCooldown(ctx context.Context, mint string, at time.Time) error {
	return r.fanout(func(repo port.Repository) error { return repo.UpsertCooldown(ctx, mint, at) })
}

func (r *Repo) DeleteCooldown(ctx context.Context, mint string) error {
	return r.fanout(func(repo port.Repository) error { return repo.DeleteCooldown(ctx, mint) })
}

func (r *Repo) InsertTrade(ctx context.Context, t model.TradeRecord) error {
	return r.fanout(func(repo port.Repository) error { return repo.InsertTrade(ctx, t) })
}

func (r *Repo) TradeStats(ctx context.Context) (port.TradeStats, error) {
	if len(r.repos) == 0 {
		return port.TradeStats{}, nil
	}
	return r.repos[0].TradeStats(ctx)
}

func (r *Repo) Close() error {
	return r.fanout(func(repo port.Repository) error { return repo.Close() })
}

var _ port.Repository = (*Repo)(nil)
