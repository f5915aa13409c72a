package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"solcycle/internal/application/port"
	"solcycle/internal/domain/model"
	"solcycle/internal/pkg/retry"
)

// ErrPriceUnavailable is the oracle's only failure mode visible to policy
// code: no route, implausible quote, and exhausted retries all collapse
// into it.
var ErrPriceUnavailable = errors.New("price unavailable")

// OracleConfig bounds quote lookups.
type OracleConfig struct {
	CeilingSOL      float64       // implied position value above this is implausible
	Attempts        int           // quote retries
	BackoffBase     time.Duration // exponential backoff base
	SnapshotMaxAge  time.Duration // fallback snapshot freshness
	SlippageBps     int
	DecimalAttempts int
}

// MarketSnapshot is the screener's last sighting of an asset, kept as the
// oracle's fallback source and the executor's liquidity precondition.
type MarketSnapshot struct {
	PriceNative  float64 // SOL per token
	LiquidityUSD float64
	At           time.Time
}

// Oracle converts swap quotes into SOL-per-token prices. The quote probe is
// one whole token, small enough to avoid price-impact skew.
type Oracle struct {
	swap  port.SwapClient
	chain port.ChainClient
	repo  port.Repository
	cfg   OracleConfig

	decimals  map[string]uint8
	snapshots map[string]MarketSnapshot
}

func NewOracle(swap port.SwapClient, chain port.ChainClient, repo port.Repository, cfg OracleConfig) *Oracle {
	return &Oracle{
		swap:      swap,
		chain:     chain,
		repo:      repo,
		cfg:       cfg,
		decimals:  make(map[string]uint8),
		snapshots: make(map[string]MarketSnapshot),
	}
}

// Load warms the decimals cache from the repository.
func (o *Oracle) Load(ctx context.Context) error {
	cached, err := o.repo.LoadDecimals(ctx)
	if err != nil {
		return fmt.Errorf("load decimals cache: %w", err)
	}
	o.decimals = cached
	return nil
}

// Price returns the SOL-per-token price for mint. heldQuantity feeds the
// implausibility guard: a price whose implied full position value exceeds
// the ceiling is treated as unavailable rather than trusted. On quote
// exhaustion the last fresh market snapshot is used; failing that,
// ErrPriceUnavailable.
func (o *Oracle) Price(ctx context.Context, mint string, heldQuantity float64) (float64, error) {
	decimals := o.Decimals(ctx, mint)
	probe := uint64(pow10(decimals)) // one whole token

	var quote *model.Quote
	err := retry.Do(ctx, o.cfg.Attempts, retry.Exponential(o.cfg.BackoffBase, 2), func(int) error {
		q, err := o.swap.Quote(ctx, mint, model.WSOLMint, probe, o.cfg.SlippageBps)
		if err != nil {
			return err
		}
		if q.OutAmount == 0 {
			return errors.New("zero out amount")
		}
		quote = q
		return nil
	})
	if err != nil {
		if price, ok := o.fallback(mint, heldQuantity); ok {
			log.Debug().Str("mint", mint).Float64("price", price).Msg("using snapshot price fallback")
			return price, nil
		}
		return 0, fmt.Errorf("%w: %s", ErrPriceUnavailable, mint)
	}

	price := float64(quote.OutAmount) / model.LamportsPerSOL
	if !o.plausible(price, heldQuantity) {
		log.Warn().Str("mint", mint).Float64("price", price).Msg("implausible quote rejected")
		return 0, fmt.Errorf("%w: implausible price for %s", ErrPriceUnavailable, mint)
	}
	return price, nil
}

// Decimals returns the token's fractional-unit exponent from the cache, the
// chain, or the default after exhausted retries. Real lookups are persisted.
func (o *Oracle) Decimals(ctx context.Context, mint string) uint8 {
	if d, ok := o.decimals[mint]; ok {
		return d
	}

	var decimals uint8
	err := retry.Do(ctx, o.cfg.DecimalAttempts, retry.Exponential(o.cfg.BackoffBase, 2), func(int) error {
		d, err := o.chain.TokenDecimals(ctx, mint)
		if err != nil {
			return err
		}
		decimals = d
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Str("mint", mint).Msg("decimals lookup exhausted, using default")
		return model.DefaultDecimals
	}

	o.decimals[mint] = decimals
	if err := o.repo.UpsertDecimals(ctx, mint, decimals); err != nil {
		log.Warn().Err(err).Str("mint", mint).Msg("decimals cache write failed")
	}
	return decimals
}

// NoteSnapshot records the screener's latest sighting of an asset.
func (o *Oracle) NoteSnapshot(mint string, priceNative, liquidityUSD float64, at time.Time) {
	o.snapshots[mint] = MarketSnapshot{PriceNative: priceNative, LiquidityUSD: liquidityUSD, At: at}
}

// Snapshot returns the last market sighting, if any.
func (o *Oracle) Snapshot(mint string) (MarketSnapshot, bool) {
	s, ok := o.snapshots[mint]
	return s, ok
}

func (o *Oracle) fallback(mint string, heldQuantity float64) (float64, bool) {
	s, ok := o.snapshots[mint]
	if !ok || s.PriceNative <= 0 {
		return 0, false
	}
	if time.Since(s.At) > o.cfg.SnapshotMaxAge {
		return 0, false
	}
	if !o.plausible(s.PriceNative, heldQuantity) {
		return 0, false
	}
	return s.PriceNative, true
}

// plausible rejects prices that imply a full-position value past the
// ceiling, guarding against bad decimals and manipulated thin quotes.
func (o *Oracle) plausible(price, heldQuantity float64) bool {
	if price <= 0 {
		return false
	}
	if heldQuantity <= 0 {
		return true
	}
	return price*heldQuantity <= o.cfg.CeilingSOL
}
