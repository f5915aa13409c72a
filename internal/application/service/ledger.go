package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"solcycle/internal/application/port"
	"solcycle/internal/domain/model"
)

// LedgerConfig bounds position bookkeeping.
type LedgerConfig struct {
	DustThreshold   float64       // whole tokens below which a position is closed
	BlockTimeout    time.Duration // blocklist entry lifetime
	CooldownTimeout time.Duration // sold-cooldown entry lifetime
	PriceFailureCap int           // unavailable prices before a block
	BuyFailureCap   int           // failed buy cycles before a block
}

// Ledger exclusively owns all position records plus the blocklist, the sold
// cooldowns, and the purchase records. Every mutation is written through to
// the repository before the cycle proceeds, so a crash between cycles never
// loses a fill. The active cycle is the only writer; there is no locking.
type Ledger struct {
	repo  port.Repository
	chain port.ChainClient
	cfg   LedgerConfig

	positions map[string]*model.Position
	blocklist map[string]time.Time
	cooldowns map[string]time.Time
	purchases map[string]model.PurchaseRecord

	// in-memory escalation counters, reset on success or block
	priceFailures map[string]int
	buyFailures   map[string]int
}

func NewLedger(repo port.Repository, chain port.ChainClient, cfg LedgerConfig) *Ledger {
	return &Ledger{
		repo:          repo,
		chain:         chain,
		cfg:           cfg,
		positions:     make(map[string]*model.Position),
		blocklist:     make(map[string]time.Time),
		cooldowns:     make(map[string]time.Time),
		purchases:     make(map[string]model.PurchaseRecord),
		priceFailures: make(map[string]int),
		buyFailures:   make(map[string]int),
	}
}

// Load restores the persisted snapshot at startup.
func (l *Ledger) Load(ctx context.Context) error {
	positions, err := l.repo.LoadPositions(ctx)
	if err != nil {
		return fmt.Errorf("load positions: %w", err)
	}
	for i := range positions {
		p := positions[i]
		l.positions[p.Mint] = &p
	}

	if l.purchases, err = l.repo.LoadPurchases(ctx); err != nil {
		return fmt.Errorf("load purchases: %w", err)
	}
	if l.blocklist, err = l.repo.LoadBlocklist(ctx); err != nil {
		return fmt.Errorf("load blocklist: %w", err)
	}
	if l.cooldowns, err = l.repo.LoadCooldowns(ctx); err != nil {
		return fmt.Errorf("load cooldowns: %w", err)
	}

	log.Info().
		Int("positions", len(l.positions)).
		Int("purchases", len(l.purchases)).
		Int("blocked", len(l.blocklist)).
		Msg("ledger loaded")
	return nil
}

// Reconcile re-reads on-chain balances for every tracked position. The
// chain, not in-memory state, is the source of truth for quantity: a stale
// entry is corrected, a dusted one is closed.
func (l *Ledger) Reconcile(ctx context.Context) error {
	for _, mint := range l.mints() {
		pos := l.positions[mint]
		raw, exists, err := l.chain.TokenBalance(ctx, mint)
		if err != nil {
			// One cycle of divergence is tolerated; the next reconcile
			// retries before anything else trusts the quantity.
			log.Warn().Err(err).Str("mint", mint).Msg("reconcile balance read failed")
			continue
		}

		real := float64(raw) / pow10(pos.Decimals)
		if !exists || real < l.cfg.DustThreshold {
			if err := l.Close(ctx, mint); err != nil {
				return err
			}
			log.Info().Str("mint", mint).Float64("quantity", real).Msg("position dusted, closed")
			continue
		}
		if real != pos.Quantity {
			log.Warn().
				Str("mint", mint).
				Float64("ledger", pos.Quantity).
				Float64("chain", real).
				Msg("quantity corrected from chain")
			pos.Quantity = real
			if err := l.repo.UpsertPosition(ctx, *pos); err != nil {
				return fmt.Errorf("persist corrected position: %w", err)
			}
		}
	}
	return nil
}

// AbsorbUntracked scans the wallet for token balances the ledger does not
// know about and adopts them as positions at the current oracle price. A
// confirmed fill whose bookkeeping was lost must be recovered here rather
// than sit invisible in the wallet.
func (l *Ledger) AbsorbUntracked(ctx context.Context, oracle *Oracle) error {
	accounts, err := l.chain.TokenAccounts(ctx)
	if err != nil {
		return fmt.Errorf("scan token accounts: %w", err)
	}
	for _, acct := range accounts {
		if acct.Mint == model.WSOLMint || acct.RawAmount == 0 {
			continue
		}
		if _, held := l.positions[acct.Mint]; held {
			continue
		}
		// A blocked asset stays unadopted until its block expires;
		// re-adopting it would just restart the failed-sell loop.
		if l.IsBlocked(acct.Mint) {
			continue
		}
		decimals := oracle.Decimals(ctx, acct.Mint)
		quantity := float64(acct.RawAmount) / pow10(decimals)
		if quantity < l.cfg.DustThreshold {
			continue
		}
		price, err := oracle.Price(ctx, acct.Mint, quantity)
		if err != nil {
			log.Warn().Err(err).Str("mint", acct.Mint).Msg("untracked balance not yet priceable")
			continue
		}
		if err := l.Adopt(ctx, acct.Mint, shortMint(acct.Mint), quantity, price, decimals, time.Now()); err != nil {
			return err
		}
	}
	return nil
}

// Adopt opens a position for a balance discovered in the wallet rather
// than bought this cycle. The current price stands in for the entry and
// the implied value for the invested capital; the purchase record is
// untouched because no buy attempt was spent.
func (l *Ledger) Adopt(ctx context.Context, mint, symbol string, quantity, price float64, decimals uint8, now time.Time) error {
	pos := &model.Position{
		Mint:            mint,
		Symbol:          symbol,
		EntryPrice:      price,
		Quantity:        quantity,
		Decimals:        decimals,
		CapitalInvested: price * quantity,
		OpenedAt:        now,
	}
	l.positions[mint] = pos
	if err := l.repo.UpsertPosition(ctx, *pos); err != nil {
		return fmt.Errorf("persist adopted position: %w", err)
	}
	log.Info().
		Str("mint", mint).
		Float64("quantity", quantity).
		Float64("price", price).
		Msg("untracked balance adopted")
	return nil
}

func shortMint(mint string) string {
	if len(mint) > 8 {
		return mint[:8]
	}
	return mint
}

// Open records a confirmed buy. Quantity must be the chain-confirmed fill.
// Opening clears any blocklist entry: an asset is never both blocked and
// held.
func (l *Ledger) Open(ctx context.Context, mint, symbol string, quantity, price, capitalSOL float64, decimals uint8, now time.Time) error {
	pos := &model.Position{
		Mint:            mint,
		Symbol:          symbol,
		EntryPrice:      price,
		Quantity:        quantity,
		Decimals:        decimals,
		CapitalInvested: capitalSOL,
		OpenedAt:        now,
	}
	l.positions[mint] = pos
	if err := l.repo.UpsertPosition(ctx, *pos); err != nil {
		return fmt.Errorf("persist position: %w", err)
	}

	rec := l.purchases[mint]
	rec.AttemptCount++
	rec.LastEntryPrice = price
	l.purchases[mint] = rec
	if err := l.repo.UpsertPurchase(ctx, mint, rec); err != nil {
		return fmt.Errorf("persist purchase record: %w", err)
	}

	if _, blocked := l.blocklist[mint]; blocked {
		delete(l.blocklist, mint)
		if err := l.repo.DeleteBlock(ctx, mint); err != nil {
			return fmt.Errorf("unblock on open: %w", err)
		}
	}
	return nil
}

// Reduce records a confirmed partial sell. newQuantity must be the re-read
// post-trade chain balance; recoveredSOL shrinks the invested capital so the
// take-profit sizing stays meaningful. A reduction under the dust threshold
// closes the position instead.
func (l *Ledger) Reduce(ctx context.Context, mint string, newQuantity, recoveredSOL float64, tpDone bool) error {
	pos, ok := l.positions[mint]
	if !ok {
		return fmt.Errorf("reduce: no position for %s", mint)
	}
	if newQuantity < l.cfg.DustThreshold {
		return l.Close(ctx, mint)
	}

	pos.Quantity = newQuantity
	pos.CapitalInvested -= recoveredSOL
	if pos.CapitalInvested < 0 {
		pos.CapitalInvested = 0
	}
	if tpDone {
		pos.PartialTakeProfitDone = true
	}
	pos.SellFailures = 0
	if err := l.repo.UpsertPosition(ctx, *pos); err != nil {
		return fmt.Errorf("persist reduced position: %w", err)
	}
	return nil
}

// Close removes the position and leaves the asset simultaneously in the
// sold cooldown and on the blocklist. The purchase attempt count resets to
// zero; the entry-price memory stays for the re-entry guard.
func (l *Ledger) Close(ctx context.Context, mint string) error {
	delete(l.positions, mint)
	if err := l.repo.DeletePosition(ctx, mint); err != nil {
		return fmt.Errorf("delete position: %w", err)
	}

	now := time.Now()
	l.cooldowns[mint] = now
	if err := l.repo.UpsertCooldown(ctx, mint, now); err != nil {
		return fmt.Errorf("persist cooldown: %w", err)
	}
	l.blocklist[mint] = now
	if err := l.repo.UpsertBlock(ctx, mint, now); err != nil {
		return fmt.Errorf("persist block: %w", err)
	}

	if rec, ok := l.purchases[mint]; ok && rec.AttemptCount != 0 {
		rec.AttemptCount = 0
		l.purchases[mint] = rec
		if err := l.repo.UpsertPurchase(ctx, mint, rec); err != nil {
			return fmt.Errorf("reset purchase record: %w", err)
		}
	}
	return nil
}

// Block puts an asset on the blocklist and, if held, drops it from the
// ledger in the same operation. Blocking is always paired with removal.
func (l *Ledger) Block(ctx context.Context, mint string, reason string) error {
	if _, held := l.positions[mint]; held {
		if err := l.Close(ctx, mint); err != nil {
			return err
		}
	} else {
		now := time.Now()
		l.blocklist[mint] = now
		if err := l.repo.UpsertBlock(ctx, mint, now); err != nil {
			return fmt.Errorf("persist block: %w", err)
		}
	}
	delete(l.priceFailures, mint)
	delete(l.buyFailures, mint)
	log.Info().Str("mint", mint).Str("reason", reason).Msg("asset blocked")
	return nil
}

// EvictExpired drops blocklist and cooldown entries older than their
// timeouts. Called before each screening pass.
func (l *Ledger) EvictExpired(ctx context.Context, now time.Time) {
	for mint, at := range l.blocklist {
		if now.Sub(at) > l.cfg.BlockTimeout {
			delete(l.blocklist, mint)
			if err := l.repo.DeleteBlock(ctx, mint); err != nil {
				log.Warn().Err(err).Str("mint", mint).Msg("blocklist eviction write failed")
			}
		}
	}
	for mint, at := range l.cooldowns {
		if now.Sub(at) > l.cfg.CooldownTimeout {
			delete(l.cooldowns, mint)
			if err := l.repo.DeleteCooldown(ctx, mint); err != nil {
				log.Warn().Err(err).Str("mint", mint).Msg("cooldown eviction write failed")
			}
		}
	}
}

// ObservePrice refreshes the last observed price after a no-action cycle.
func (l *Ledger) ObservePrice(ctx context.Context, mint string, price float64) error {
	pos, ok := l.positions[mint]
	if !ok {
		return nil
	}
	pos.LastObservedPrice = price
	return l.repo.UpsertPosition(ctx, *pos)
}

// NoteSellFailure bumps the position's consecutive sell-failure counter.
func (l *Ledger) NoteSellFailure(ctx context.Context, mint string) int {
	pos, ok := l.positions[mint]
	if !ok {
		return 0
	}
	pos.SellFailures++
	if err := l.repo.UpsertPosition(ctx, *pos); err != nil {
		log.Warn().Err(err).Str("mint", mint).Msg("sell failure write failed")
	}
	return pos.SellFailures
}

// NoteQuoteFailure counts an unavailable price; at the cap the asset is
// blocked. Returns whether the block happened.
func (l *Ledger) NoteQuoteFailure(ctx context.Context, mint string) (bool, error) {
	l.priceFailures[mint]++
	if l.priceFailures[mint] < l.cfg.PriceFailureCap {
		return false, nil
	}
	return true, l.Block(ctx, mint, "repeated quote failures")
}

// NoteBuyFailure counts an exhausted buy attempt across cycles; at the cap
// the asset is blocked.
func (l *Ledger) NoteBuyFailure(ctx context.Context, mint string) (bool, error) {
	l.buyFailures[mint]++
	if l.buyFailures[mint] < l.cfg.BuyFailureCap {
		return false, nil
	}
	return true, l.Block(ctx, mint, "repeated buy failures")
}

// ResetFailures clears escalation counters after a confirmed success.
func (l *Ledger) ResetFailures(mint string) {
	delete(l.priceFailures, mint)
	delete(l.buyFailures, mint)
}

// Position returns a snapshot copy.
func (l *Ledger) Position(mint string) (model.Position, bool) {
	pos, ok := l.positions[mint]
	if !ok {
		return model.Position{}, false
	}
	return *pos, true
}

// Positions returns snapshot copies in stable mint order.
func (l *Ledger) Positions() []model.Position {
	out := make([]model.Position, 0, len(l.positions))
	for _, mint := range l.mints() {
		out = append(out, *l.positions[mint])
	}
	return out
}

func (l *Ledger) Count() int { return len(l.positions) }

func (l *Ledger) IsBlocked(mint string) bool {
	_, ok := l.blocklist[mint]
	return ok
}

func (l *Ledger) InCooldown(mint string) bool {
	_, ok := l.cooldowns[mint]
	return ok
}

func (l *Ledger) Purchase(mint string) model.PurchaseRecord {
	return l.purchases[mint]
}

func (l *Ledger) mints() []string {
	mints := make([]string, 0, len(l.positions))
	for mint := range l.positions {
		mints = append(mints, mint)
	}
	sort.Strings(mints)
	return mints
}

func pow10(d uint8) float64 {
	v := 1.0
	for i := uint8(0); i < d; i++ {
		v *= 10
	}
	return v
}
