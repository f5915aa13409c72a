package trader

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"solcycle/internal/application/port"
	"solcycle/internal/application/service"
	"solcycle/internal/domain/model"
	domainsvc "solcycle/internal/domain/service"
)

// ServiceDeps wires the trading loop.
type ServiceDeps struct {
	Chain    port.ChainClient
	Repo     port.Repository
	Ledger   *service.Ledger
	Oracle   *service.Oracle
	Screener *service.Screener
	Executor *service.Executor
	Policy   *domainsvc.Policy

	CycleInterval    time.Duration
	RefreshInterval  time.Duration
	StatsInterval    time.Duration
	RestartDelay     time.Duration // pause after a panicked cycle
	MaxPositions     int
	TradeLamports    uint64 // capital per entry
	ReserveLamports  uint64 // never spent
	CriticalLamports uint64 // below this, everything is liquidated
}

// Service runs the cooperative trading loop. One cycle runs to completion
// before the next may start; the universe refresh and the stats report
// share the same goroutine, so the ledger and the shortlist have a single
// writer by construction.
type Service struct {
	deps ServiceDeps
}

func NewService(deps ServiceDeps) *Service {
	return &Service{deps: deps}
}

// Run performs the initial load and full cycle, then free-runs on the two
// independent timers until the context ends.
func (s *Service) Run(ctx context.Context) error {
	if err := s.deps.Ledger.Load(ctx); err != nil {
		return err
	}
	if err := s.deps.Oracle.Load(ctx); err != nil {
		return err
	}
	if err := s.deps.Screener.RefreshUniverse(ctx); err != nil {
		log.Warn().Err(err).Msg("initial universe refresh failed")
	}
	s.safeCycle(ctx)

	cycleTicker := time.NewTicker(s.deps.CycleInterval)
	defer cycleTicker.Stop()
	refreshTicker := time.NewTicker(s.deps.RefreshInterval)
	defer refreshTicker.Stop()
	statsTicker := time.NewTicker(s.deps.StatsInterval)
	defer statsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-refreshTicker.C:
			if err := s.deps.Screener.RefreshUniverse(ctx); err != nil {
				log.Warn().Err(err).Msg("universe refresh failed")
			}
		case <-statsTicker.C:
			s.logStats(ctx)
		case <-cycleTicker.C:
			s.safeCycle(ctx)
		}
	}
}

// safeCycle contains a cycle's failures: an unexpected panic is logged and
// the loop resumes after a fixed delay, because one bad cycle must not
// terminate an otherwise healthy service.
func (s *Service) safeCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("cycle panicked, restarting after delay")
			select {
			case <-ctx.Done():
			case <-time.After(s.deps.RestartDelay):
			}
		}
	}()
	if err := s.cycle(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("cycle failed")
	}
}

// cycle is the single pass: reconcile, evaluate every held position, then
// screen for one new entry if capacity remains.
func (s *Service) cycle(ctx context.Context) error {
	if err := s.deps.Ledger.Reconcile(ctx); err != nil {
		return err
	}
	if err := s.deps.Ledger.AbsorbUntracked(ctx, s.deps.Oracle); err != nil {
		log.Warn().Err(err).Msg("wallet scan failed")
	}

	balance, err := s.deps.Chain.Balance(ctx)
	if err != nil {
		return err
	}
	forced := balance < s.deps.CriticalLamports
	if forced && s.deps.Ledger.Count() > 0 {
		log.Warn().Uint64("lamports", balance).Msg("capital below critical floor, liquidating")
	}
	now := time.Now()
	s.deps.Ledger.EvictExpired(ctx, now)

	for _, pos := range s.deps.Ledger.Positions() {
		price, perr := s.deps.Oracle.Price(ctx, pos.Mint, pos.Quantity)
		priceOK := perr == nil
		if !priceOK {
			if blocked, err := s.deps.Ledger.NoteQuoteFailure(ctx, pos.Mint); err != nil {
				return err
			} else if blocked {
				continue
			}
		}

		d := s.deps.Policy.Evaluate(&pos, price, priceOK, now, forced)
		switch d.Kind {
		case model.ActionSellAll, model.ActionSellPartial:
			if _, err := s.deps.Executor.ExecuteSell(ctx, pos.Mint, d.Fraction, d.Reason); err != nil {
				log.Warn().Err(err).Str("mint", pos.Mint).Msg("sell execution failed")
			}
		default:
			if priceOK {
				if err := s.deps.Ledger.ObservePrice(ctx, pos.Mint, price); err != nil {
					return err
				}
			}
		}
	}

	if forced || s.deps.Ledger.Count() >= s.deps.MaxPositions {
		return nil
	}

	capital := s.spendable(balance)
	if capital == 0 {
		return nil
	}

	cand, err := s.deps.Screener.SelectBest(ctx, capital)
	if err != nil {
		return err
	}
	if cand == nil {
		return nil
	}

	log.Info().
		Str("mint", cand.Mint).
		Str("symbol", cand.Symbol).
		Float64("tokens_per_sol", cand.TokensPerSOL).
		Float64("volume_24h", cand.Volume24h).
		Msg("entry candidate selected")
	if err := s.deps.Executor.ExecuteBuy(ctx, cand, capital); err != nil {
		if errors.Is(err, service.ErrInsufficientBalance) {
			log.Warn().Err(err).Msg("entry skipped")
			return nil
		}
		log.Warn().Err(err).Str("mint", cand.Mint).Msg("buy execution failed")
	}
	return nil
}

// spendable caps the entry size at the configured trade amount while
// keeping the reserve untouched.
func (s *Service) spendable(balance uint64) uint64 {
	floor := s.deps.ReserveLamports + s.deps.TradeLamports
	if balance < floor {
		return 0
	}
	return s.deps.TradeLamports
}

func (s *Service) logStats(ctx context.Context) {
	stats, err := s.deps.Repo.TradeStats(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("trade stats read failed")
		return
	}
	balance, err := s.deps.Chain.Balance(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("balance read failed")
		return
	}
	ev := log.Info().
		Float64("sol", float64(balance)/model.LamportsPerSOL).
		Int("positions", s.deps.Ledger.Count())
	if stats.Trades > 0 {
		ev = ev.
			Int("trades", stats.Trades).
			Float64("win_rate", float64(stats.Wins)/float64(stats.Trades)*100).
			Float64("total_pnl_pct", stats.NetPnL)
	}
	ev.Msg("stats")
}
