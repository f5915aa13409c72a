package service

import (
	"context"
	"errors"
	"time"

	"solcycle/internal/application/port"
	"solcycle/internal/domain/model"
)

// fakeRepo keeps everything in maps; writes are counted so tests can assert
// the write-through behavior.
type fakeRepo struct {
	positions map[string]model.Position
	purchases map[string]model.PurchaseRecord
	decimals  map[string]uint8
	blocklist map[string]time.Time
	cooldowns map[string]time.Time
	trades    []model.TradeRecord

	positionWrites int
	failWrites     bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		positions: make(map[string]model.Position),
		purchases: make(map[string]model.PurchaseRecord),
		decimals:  make(map[string]uint8),
		blocklist: make(map[string]time.Time),
		cooldowns: make(map[string]time.Time),
	}
}

var errWriteFailed = errors.New("write failed")

func (r *fakeRepo) LoadPositions(ctx context.Context) ([]model.Position, error) {
	out := make([]model.Position, 0, len(r.positions))
	for _, p := range r.positions {
		out = append(out, p)
	}
	return out, nil
}

func (r *fakeRepo) UpsertPosition(ctx context.Context, pos model.Position) error {
	if r.failWrites {
		return errWriteFailed
	}
	r.positions[pos.Mint] = pos
	r.positionWrites++
	return nil
}

func (r *fakeRepo) DeletePosition(ctx context.Context, mint string) error {
	delete(r.positions, mint)
	return nil
}

func (r *fakeRepo) LoadPurchases(ctx context.Context) (map[string]model.PurchaseRecord, error) {
	out := make(map[string]model.PurchaseRecord, len(r.purchases))
	for k, v := range r.purchases {
		out[k] = v
	}
	return out, nil
}

func (r *fakeRepo) UpsertPurchase(ctx context.Context, mint string, rec model.PurchaseRecord) error {
	r.purchases[mint] = rec
	return nil
}

func (r *fakeRepo) LoadDecimals(ctx context.Context) (map[string]uint8, error) {
	out := make(map[string]uint8, len(r.decimals))
	for k, v := range r.decimals {
		out[k] = v
	}
	return out, nil
}

func (r *fakeRepo) UpsertDecimals(ctx context.Context, mint string, decimals uint8) error {
	r.decimals[mint] = decimals
	return nil
}

func (r *fakeRepo) LoadBlocklist(ctx context.Context) (map[string]time.Time, error) {
	out := make(map[string]time.Time, len(r.blocklist))
	for k, v := range r.blocklist {
		out[k] = v
	}
	return out, nil
}

func (r *fakeRepo) UpsertBlock(ctx context.Context, mint string, at time.Time) error {
	r.blocklist[mint] = at
	return nil
}

func (r *fakeRepo) DeleteBlock(ctx context.Context, mint string) error {
	delete(r.blocklist, mint)
	return nil
}

func (r *fakeRepo) LoadCooldowns(ctx context.Context) (map[string]time.Time, error) {
	out := make(map[string]time.Time, len(r.cooldowns))
	for k, v := range r.cooldowns {
		out[k] = v
	}
	return out, nil
}

func (r *fakeRepo) UpsertCooldown(ctx context.Context, mint string, at time.Time) error {
	r.cooldowns[mint] = at
	return nil
}

func (r *fakeRepo) DeleteCooldown(ctx context.Context, mint string) error {
	delete(r.cooldowns, mint)
	return nil
}

func (r *fakeRepo) InsertTrade(ctx context.Context, t model.TradeRecord) error {
	r.trades = append(r.trades, t)
	return nil
}

func (r *fakeRepo) TradeStats(ctx context.Context) (port.TradeStats, error) {
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

func (r *fakeRepo) Close() error { return nil }

var _ port.Repository = (*fakeRepo)(nil)

// fakeChain serves balances from maps and records submissions.
type fakeChain struct {
	balance    uint64
	balances   map[string]uint64 // mint -> raw token balance
	decimals   map[string]uint8
	fees       []uint64
	balanceErr error
	submitErr  error
	confirmErr error
	submitted  int
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		balances: make(map[string]uint64),
		decimals: make(map[string]uint8),
	}
}

func (c *fakeChain) WalletAddress() string { return "TestWallet1111111111111111111111111111111111" }

func (c *fakeChain) Balance(ctx context.Context) (uint64, error) {
	if c.balanceErr != nil {
		return 0, c.balanceErr
	}
	return c.balance, nil
}

func (c *fakeChain) TokenBalance(ctx context.Context, mint string) (uint64, bool, error) {
	raw, ok := c.balances[mint]
	return raw, ok, nil
}

func (c *fakeChain) TokenAccounts(ctx context.Context) ([]port.TokenAccount, error) {
	out := make([]port.TokenAccount, 0, len(c.balances))
	for mint, raw := range c.balances {
		out = append(out, port.TokenAccount{Mint: mint, RawAmount: raw})
	}
	return out, nil
}

func (c *fakeChain) TokenDecimals(ctx context.Context, mint string) (uint8, error) {
	if d, ok := c.decimals[mint]; ok {
		return d, nil
	}
	return 0, errors.New("mint not found")
}

func (c *fakeChain) LatestBlockhash(ctx context.Context) (string, uint64, error) {
	return "hash", 1000, nil
}

func (c *fakeChain) RecentPriorityFees(ctx context.Context) ([]uint64, error) {
	return c.fees, nil
}

func (c *fakeChain) SignAndSubmit(ctx context.Context, txBase64 string) (string, error) {
	if c.submitErr != nil {
		return "", c.submitErr
	}
	c.submitted++
	return "sig", nil
}

func (c *fakeChain) Confirm(ctx context.Context, signature string, lastValidHeight uint64, timeout time.Duration) error {
	return c.confirmErr
}

var _ port.ChainClient = (*fakeChain)(nil)

// fakeSwap answers quotes via a function so tests can script per-call
// behavior, and records the requested fractions via amounts.
type fakeSwap struct {
	quoteFn      func(inputMint, outputMint string, amount uint64) (*model.Quote, error)
	quoteAmounts []uint64
	buildErr     error
}

func (s *fakeSwap) Quote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*model.Quote, error) {
	s.quoteAmounts = append(s.quoteAmounts, amount)
	if s.quoteFn != nil {
		return s.quoteFn(inputMint, outputMint, amount)
	}
	return &model.Quote{InputMint: inputMint, OutputMint: outputMint, InAmount: amount, OutAmount: amount}, nil
}

func (s *fakeSwap) BuildSwap(ctx context.Context, quote *model.Quote, wallet string, priorityFeeLamports uint64) (string, error) {
	if s.buildErr != nil {
		return "", s.buildErr
	}
	return "dHg=", nil
}

var _ port.SwapClient = (*fakeSwap)(nil)

// fakeFeed returns a fixed listing.
type fakeFeed struct {
	pairs []model.Pair
	err   error
}

func (f *fakeFeed) SearchPairs(ctx context.Context, query string) ([]model.Pair, error) {
	return f.pairs, f.err
}

var _ port.MarketData = (*fakeFeed)(nil)
