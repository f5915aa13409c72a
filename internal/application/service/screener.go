package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"solcycle/internal/application/port"
	"solcycle/internal/domain/model"
)

// ScreenerConfig holds the universe filters. The relaxed values apply for a
// single pass when the strict pass starves the shortlist.
type ScreenerConfig struct {
	Query               string
	ShortlistSize       int
	MinLiquidityUSD     float64
	RelaxedLiquidityUSD float64
	MinVolumeUSD        float64
	FDVMinUSD           float64
	FDVMaxUSD           float64
	MaxPairAge          time.Duration
	RelaxedPairAge      time.Duration
	ProbeLamports       uint64 // quotability test notional
	SlippageBps         int
	PurchaseAttemptCap  int
}

var stableSymbols = map[string]struct{}{
	"USDC": {}, "USDT": {}, "DAI": {}, "USDE": {}, "PYUSD": {}, "FDUSD": {},
}

// shortlisted is one surviving pair plus what SelectBest needs later.
type shortlisted struct {
	mint         string
	symbol       string
	liquidityUSD float64
	volume24h    float64
	priceNative  float64
	createdAt    time.Time
}

// Screener turns the raw market-data listing into a ranked shortlist and,
// each trading cycle, a single best entry.
type Screener struct {
	feed   port.MarketData
	swap   port.SwapClient
	chain  port.ChainClient
	ledger *Ledger
	oracle *Oracle
	cfg    ScreenerConfig

	shortlist []shortlisted
}

func NewScreener(feed port.MarketData, swap port.SwapClient, chain port.ChainClient, ledger *Ledger, oracle *Oracle, cfg ScreenerConfig) *Screener {
	return &Screener{feed: feed, swap: swap, chain: chain, ledger: ledger, oracle: oracle, cfg: cfg}
}

// RefreshUniverse pulls the bulk listing, filters it, and rebuilds the
// shortlist. If the strict thresholds keep the shortlist under size, the
// pass is re-run with relaxed liquidity and age so the engine is never
// starved by an overly strict filter.
func (s *Screener) RefreshUniverse(ctx context.Context) error {
	pairs, err := s.feed.SearchPairs(ctx, s.cfg.Query)
	if err != nil {
		return fmt.Errorf("search pairs: %w", err)
	}
	now := time.Now()
	s.ledger.EvictExpired(ctx, now)

	kept := s.filterPairs(pairs, now, s.cfg.MinLiquidityUSD, s.cfg.MaxPairAge)
	if len(kept) < s.cfg.ShortlistSize {
		relaxed := s.filterPairs(pairs, now, s.cfg.RelaxedLiquidityUSD, s.cfg.RelaxedPairAge)
		log.Info().
			Int("strict", len(kept)).
			Int("relaxed", len(relaxed)).
			Msg("universe thin, thresholds relaxed for this pass")
		kept = relaxed
	}

	// Quotability probe: a pair without a live route is dropped silently.
	alive := kept[:0]
	for _, c := range kept {
		if _, err := s.swap.Quote(ctx, model.WSOLMint, c.mint, s.cfg.ProbeLamports, s.cfg.SlippageBps); err != nil {
			log.Debug().Str("mint", c.mint).Msg("dead quote route, dropped")
			continue
		}
		alive = append(alive, c)
	}

	sort.Slice(alive, func(i, j int) bool { return alive[i].volume24h > alive[j].volume24h })
	if len(alive) > s.cfg.ShortlistSize {
		alive = alive[:s.cfg.ShortlistSize]
	}
	s.shortlist = alive

	for _, c := range alive {
		s.oracle.NoteSnapshot(c.mint, c.priceNative, c.liquidityUSD, now)
	}

	log.Info().Int("pairs", len(pairs)).Int("shortlist", len(alive)).Msg("universe refreshed")
	return nil
}

func (s *Screener) filterPairs(pairs []model.Pair, now time.Time, minLiquidity float64, maxAge time.Duration) []shortlisted {
	var kept []shortlisted
	for i := range pairs {
		p := &pairs[i]
		if reason := s.exclude(p, now, minLiquidity, maxAge); reason != model.ExcludeNone {
			log.Debug().Str("mint", p.BaseMint).Str("reason", reason.String()).Msg("pair excluded")
			continue
		}
		kept = append(kept, shortlisted{
			mint:         p.BaseMint,
			symbol:       p.BaseSymbol,
			liquidityUSD: p.LiquidityUSD,
			volume24h:    p.Volume24h,
			priceNative:  p.PriceNative,
			createdAt:    time.UnixMilli(p.PairCreatedAt),
		})
	}
	return kept
}

// exclude applies the refresh-time filters, returning the tagged reason
// instead of re-deriving it for logging later.
func (s *Screener) exclude(p *model.Pair, now time.Time, minLiquidity float64, maxAge time.Duration) model.ExclusionReason {
	switch {
	case p.ChainID != "solana":
		return model.ExcludeWrongChain
	case p.QuoteMint != model.WSOLMint:
		return model.ExcludeWrongQuote
	case isStable(p.BaseSymbol):
		return model.ExcludeStablecoin
	case s.ledger.IsBlocked(p.BaseMint):
		return model.ExcludeBlocked
	case p.FDV < s.cfg.FDVMinUSD || p.FDV > s.cfg.FDVMaxUSD:
		return model.ExcludeMarketCap
	case p.Volume24h < s.cfg.MinVolumeUSD:
		return model.ExcludeLowVolume
	case p.LiquidityUSD < minLiquidity:
		return model.ExcludeLowLiquidity
	case p.Age(now) > maxAge:
		return model.ExcludeTooOld
	}
	return model.ExcludeNone
}

// SelectBest re-filters the shortlist at decision time, quotes each
// survivor for the actual available capital, and returns the candidate
// yielding the most tokens per SOL. Quote failures count toward blocking
// but never abort the scan.
func (s *Screener) SelectBest(ctx context.Context, capitalLamports uint64) (*model.Candidate, error) {
	if capitalLamports == 0 {
		return nil, nil
	}
	now := time.Now()
	capitalSOL := float64(capitalLamports) / model.LamportsPerSOL

	var best *model.Candidate
	for _, c := range s.shortlist {
		if reason, err := s.disqualify(ctx, c, now); err != nil {
			return nil, err
		} else if reason != model.ExcludeNone {
			log.Debug().Str("mint", c.mint).Str("reason", reason.String()).Msg("candidate disqualified")
			continue
		}

		quote, err := s.swap.Quote(ctx, model.WSOLMint, c.mint, capitalLamports, s.cfg.SlippageBps)
		if err != nil || quote.OutAmount == 0 {
			if blocked, berr := s.ledger.NoteQuoteFailure(ctx, c.mint); berr != nil {
				return nil, berr
			} else if blocked {
				continue
			}
			log.Debug().Str("mint", c.mint).Msg("ranking quote failed")
			continue
		}

		decimals := s.oracle.Decimals(ctx, c.mint)
		tokens := float64(quote.OutAmount) / pow10(decimals)
		if tokens <= 0 {
			continue
		}
		impliedPrice := capitalSOL / tokens

		// Monotonic re-entry guard: never re-enter below the last
		// recorded entry price.
		if rec := s.ledger.Purchase(c.mint); rec.LastEntryPrice > 0 && impliedPrice < rec.LastEntryPrice {
			log.Debug().Str("mint", c.mint).Str("reason", model.ExcludePriceGuard.String()).Msg("candidate disqualified")
			continue
		}

		cand := model.Candidate{
			Mint:         c.mint,
			Symbol:       c.symbol,
			LiquidityUSD: c.liquidityUSD,
			Volume24h:    c.volume24h,
			PairAge:      now.Sub(c.createdAt),
			PriceNative:  impliedPrice,
			TokensPerSOL: tokens / capitalSOL,
		}
		if best == nil || cand.TokensPerSOL > best.TokensPerSOL {
			best = &cand
		}
	}
	return best, nil
}

// disqualify applies the decision-time filters. Aged-out entries are lazily
// re-blocked rather than waiting for the next refresh.
func (s *Screener) disqualify(ctx context.Context, c shortlisted, now time.Time) (model.ExclusionReason, error) {
	if s.ledger.IsBlocked(c.mint) {
		return model.ExcludeBlocked, nil
	}
	if s.ledger.InCooldown(c.mint) {
		return model.ExcludeCooldown, nil
	}
	if _, held := s.ledger.Position(c.mint); held {
		return model.ExcludeAlreadyHeld, nil
	}
	if s.ledger.Purchase(c.mint).AttemptCount >= s.cfg.PurchaseAttemptCap {
		return model.ExcludeAttemptCap, nil
	}
	if now.Sub(c.createdAt) > s.cfg.MaxPairAge {
		if err := s.ledger.Block(ctx, c.mint, "aged out of universe"); err != nil {
			return model.ExcludeNone, err
		}
		return model.ExcludeTooOld, nil
	}
	// Stale-ledger guard: a wallet already holding the token means the
	// ledger missed a fill somewhere.
	if raw, exists, err := s.chain.TokenBalance(ctx, c.mint); err == nil && exists && raw > 0 {
		return model.ExcludeExistingBalance, nil
	}
	return model.ExcludeNone, nil
}

// ShortlistSize reports the current shortlist length.
func (s *Screener) ShortlistSize() int { return len(s.shortlist) }

func isStable(symbol string) bool {
	_, ok := stableSymbols[strings.ToUpper(symbol)]
	return ok
}
