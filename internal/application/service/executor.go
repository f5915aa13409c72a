package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"solcycle/internal/application/port"
	"solcycle/internal/domain/model"
)

// ExecutorConfig bounds the trade state machines.
type ExecutorConfig struct {
	MaxAttempts         int
	SlippageBps         int
	ReserveLamports     uint64 // never spent
	FeeEstimateLamports uint64 // per-transaction cushion
	MinSellOutLamports  uint64 // sell viability floor
	MinPoolLiquidityUSD float64
	ConfirmTimeout      time.Duration
	AttemptBackoff      time.Duration
	FeeMultiplier       float64 // priority fee safety factor
	MinPriorityFee      uint64  // lamports floor
}

// ErrInsufficientBalance aborts a buy for the whole cycle rather than
// retrying against a wallet that cannot fund it.
var ErrInsufficientBalance = errors.New("insufficient wallet balance")

// Executor drives a trade decision to a confirmed on-chain effect. Both
// directions are bounded-retry loops that re-validate preconditions on
// every attempt and never mutate the ledger without an explicit
// confirmation and a post-trade balance re-read.
type Executor struct {
	chain  port.ChainClient
	swap   port.SwapClient
	ledger *Ledger
	oracle *Oracle
	repo   port.Repository
	pub    port.EventPublisher
	cfg    ExecutorConfig
}

func NewExecutor(chain port.ChainClient, swap port.SwapClient, ledger *Ledger, oracle *Oracle, repo port.Repository, pub port.EventPublisher, cfg ExecutorConfig) *Executor {
	return &Executor{chain: chain, swap: swap, ledger: ledger, oracle: oracle, repo: repo, pub: pub, cfg: cfg}
}

// ExecuteBuy spends capitalLamports on the candidate. Exhausting the
// attempt bound abandons this cycle's entry and counts toward the
// cross-cycle block escalation.
func (e *Executor) ExecuteBuy(ctx context.Context, cand *model.Candidate, capitalLamports uint64) error {
	capitalSOL := float64(capitalLamports) / model.LamportsPerSOL

	var lastErr error
	for attempt := 0; attempt < e.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, e.cfg.AttemptBackoff*time.Duration(attempt)); err != nil {
				return err
			}
		}

		balance, err := e.chain.Balance(ctx)
		if err != nil {
			lastErr = err
			continue
		}
		if balance < capitalLamports+e.cfg.ReserveLamports+e.cfg.FeeEstimateLamports {
			return fmt.Errorf("%w: have %d, need %d lamports", ErrInsufficientBalance,
				balance, capitalLamports+e.cfg.ReserveLamports+e.cfg.FeeEstimateLamports)
		}

		quote, err := e.swap.Quote(ctx, model.WSOLMint, cand.Mint, capitalLamports, e.cfg.SlippageBps)
		if err != nil {
			lastErr = err
			continue
		}
		if quote.OutAmount == 0 {
			lastErr = fmt.Errorf("zero out amount for %s", cand.Mint)
			continue
		}

		sig, err := e.submit(ctx, quote)
		if err != nil {
			lastErr = err
			log.Warn().Err(err).Str("mint", cand.Mint).Int("attempt", attempt+1).Msg("buy attempt failed")
			continue
		}

		// Confirmed. The fill, not the quote, decides the position size.
		raw, exists, err := e.chain.TokenBalance(ctx, cand.Mint)
		if err != nil || !exists || raw == 0 {
			return fmt.Errorf("buy confirmed but balance read failed for %s: %v", cand.Mint, err)
		}
		decimals := e.oracle.Decimals(ctx, cand.Mint)
		quantity := float64(raw) / pow10(decimals)
		price := capitalSOL / quantity

		if err := e.ledger.Open(ctx, cand.Mint, cand.Symbol, quantity, price, capitalSOL, decimals, time.Now()); err != nil {
			return err
		}
		e.ledger.ResetFailures(cand.Mint)
		e.recordTrade(ctx, model.TradeRecord{
			Mint:        cand.Mint,
			Symbol:      cand.Symbol,
			Side:        "buy",
			SOLAmount:   capitalSOL,
			TokenAmount: quantity,
			Price:       price,
			Signature:   sig,
			Timestamp:   time.Now().UnixMilli(),
		})
		log.Info().
			Str("mint", cand.Mint).
			Str("symbol", cand.Symbol).
			Float64("sol", capitalSOL).
			Float64("tokens", quantity).
			Str("sig", sig).
			Msg("buy confirmed")
		return nil
	}

	if blocked, err := e.ledger.NoteBuyFailure(ctx, cand.Mint); err != nil {
		return err
	} else if blocked {
		log.Warn().Str("mint", cand.Mint).Msg("buy failures escalated to block")
	}
	return fmt.Errorf("buy %s exhausted %d attempts: %w", cand.Mint, e.cfg.MaxAttempts, lastErr)
}

// ExecuteSell sells fraction of the held position. Each retry halves the
// attempted fraction, recovering from thin pools without abandoning the
// position outright; exhausting the bound forces the asset out of the
// ledger and onto the blocklist. Returns SOL recovered.
func (e *Executor) ExecuteSell(ctx context.Context, mint string, fraction float64, reason model.ExitReason) (float64, error) {
	pos, ok := e.ledger.Position(mint)
	if !ok {
		return 0, fmt.Errorf("sell: no position for %s", mint)
	}
	if fraction > 1 {
		fraction = 1
	}

	var lastErr error
	for attempt := 0; attempt < e.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			fraction /= 2
			if err := sleepCtx(ctx, e.cfg.AttemptBackoff*time.Duration(attempt)); err != nil {
				return 0, err
			}
		}

		// Preconditions, re-validated every attempt against the chain.
		raw, exists, err := e.chain.TokenBalance(ctx, mint)
		if err != nil {
			lastErr = err
			continue
		}
		if !exists || raw == 0 {
			// Nothing left to sell; the ledger was stale.
			return 0, e.ledger.Close(ctx, mint)
		}
		if snap, ok := e.oracle.Snapshot(mint); ok && snap.LiquidityUSD > 0 && snap.LiquidityUSD < e.cfg.MinPoolLiquidityUSD {
			lastErr = fmt.Errorf("pool liquidity %.0f below floor %.0f", snap.LiquidityUSD, e.cfg.MinPoolLiquidityUSD)
			e.ledger.NoteSellFailure(ctx, mint)
			continue
		}

		sellRaw := uint64(float64(raw) * fraction)
		if sellRaw == 0 {
			lastErr = fmt.Errorf("fraction %.4f of %d rounds to zero", fraction, raw)
			continue
		}

		quote, err := e.swap.Quote(ctx, mint, model.WSOLMint, sellRaw, e.cfg.SlippageBps)
		if err != nil {
			lastErr = err
			e.ledger.NoteSellFailure(ctx, mint)
			continue
		}
		if quote.OutAmount < e.cfg.MinSellOutLamports {
			lastErr = fmt.Errorf("quote out %d below viability floor %d", quote.OutAmount, e.cfg.MinSellOutLamports)
			e.ledger.NoteSellFailure(ctx, mint)
			continue
		}

		sig, err := e.submit(ctx, quote)
		if err != nil {
			lastErr = err
			e.ledger.NoteSellFailure(ctx, mint)
			log.Warn().Err(err).Str("mint", mint).Int("attempt", attempt+1).Float64("fraction", fraction).Msg("sell attempt failed")
			continue
		}

		// Confirmed: the reduction reflects the re-read balance, never the
		// requested amount, because fills diverge from quotes under
		// slippage.
		newRaw, stillExists, err := e.chain.TokenBalance(ctx, mint)
		if err != nil {
			return 0, fmt.Errorf("sell confirmed but balance read failed for %s: %w", mint, err)
		}
		recoveredSOL := float64(quote.OutAmount) / model.LamportsPerSOL
		soldTokens := float64(raw-newRaw) / pow10(pos.Decimals)
		pnlPct := 0.0
		if pos.EntryPrice > 0 && soldTokens > 0 {
			pnlPct = (recoveredSOL/soldTokens/pos.EntryPrice - 1) * 100
		}

		newQuantity := 0.0
		if stillExists {
			newQuantity = float64(newRaw) / pow10(pos.Decimals)
		}
		tpDone := reason == model.ExitPartialTakeProfit
		if err := e.ledger.Reduce(ctx, mint, newQuantity, recoveredSOL, tpDone); err != nil {
			return 0, err
		}
		e.ledger.ResetFailures(mint)
		e.recordTrade(ctx, model.TradeRecord{
			Mint:        mint,
			Symbol:      pos.Symbol,
			Side:        "sell",
			SOLAmount:   recoveredSOL,
			TokenAmount: soldTokens,
			Price:       pos.EntryPrice,
			Signature:   sig,
			Reason:      reason.String(),
			PnLPct:      pnlPct,
			Timestamp:   time.Now().UnixMilli(),
		})
		log.Info().
			Str("mint", mint).
			Str("reason", reason.String()).
			Float64("sol", recoveredSOL).
			Float64("pnl_pct", pnlPct).
			Str("sig", sig).
			Msg("sell confirmed")
		return recoveredSOL, nil
	}

	// An unsellable position is a stuck asset, not something to retry
	// forever: force it out and block it.
	if err := e.ledger.Block(ctx, mint, "sell attempts exhausted"); err != nil {
		return 0, err
	}
	return 0, fmt.Errorf("sell %s exhausted %d attempts: %w", mint, e.cfg.MaxAttempts, lastErr)
}

// submit builds, signs, submits, and confirms one swap. An unconfirmed or
// erroring result is a failure for the caller to retry, never a silent
// success; a transaction that lands late anyway is absorbed by the next
// reconcile.
func (e *Executor) submit(ctx context.Context, quote *model.Quote) (string, error) {
	fee, err := e.priorityFee(ctx)
	if err != nil {
		return "", err
	}
	txB64, err := e.swap.BuildSwap(ctx, quote, e.chain.WalletAddress(), fee)
	if err != nil {
		return "", fmt.Errorf("build swap: %w", err)
	}
	_, lastValid, err := e.chain.LatestBlockhash(ctx)
	if err != nil {
		return "", fmt.Errorf("latest blockhash: %w", err)
	}
	sig, err := e.chain.SignAndSubmit(ctx, txB64)
	if err != nil {
		return "", fmt.Errorf("submit: %w", err)
	}
	if err := e.chain.Confirm(ctx, sig, lastValid, e.cfg.ConfirmTimeout); err != nil {
		return "", fmt.Errorf("confirm %s: %w", sig, err)
	}
	return sig, nil
}

// priorityFee averages the recent fee sample, scales it by the safety
// multiplier, and floors it at the configured minimum.
func (e *Executor) priorityFee(ctx context.Context) (uint64, error) {
	fees, err := e.chain.RecentPriorityFees(ctx)
	if err != nil {
		return e.cfg.MinPriorityFee, nil // fee sampling is best-effort
	}
	var total, count uint64
	for _, f := range fees {
		if f > 0 {
			total += f
			count++
		}
	}
	if count == 0 {
		return e.cfg.MinPriorityFee, nil
	}
	fee := uint64(float64(total/count) * e.cfg.FeeMultiplier)
	if fee < e.cfg.MinPriorityFee {
		fee = e.cfg.MinPriorityFee
	}
	return fee, nil
}

func (e *Executor) recordTrade(ctx context.Context, t model.TradeRecord) {
	if err := e.repo.InsertTrade(ctx, t); err != nil {
		log.Warn().Err(err).Str("mint", t.Mint).Msg("trade log write failed")
	}
	if e.pub != nil {
		if err := e.pub.PublishTrade(ctx, t); err != nil {
			log.Warn().Err(err).Str("mint", t.Mint).Msg("trade publish failed")
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
