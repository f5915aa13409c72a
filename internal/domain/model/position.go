package model

import "time"

// WSOLMint is the wrapped SOL mint, the capital side of every trade.
const WSOLMint = "So11111111111111111111111111111111111111112"

// DefaultDecimals is assumed for a token whose mint info could not be fetched.
const DefaultDecimals = 9

// LamportsPerSOL converts between raw lamports and SOL.
const LamportsPerSOL = 1e9

// Position is one held token. Quantity is always the last chain-confirmed
// value in whole tokens; CapitalInvested shrinks as partial sells recover SOL.
type Position struct {
	Mint                  string    `json:"mint"`
	Symbol                string    `json:"symbol,omitempty"`
	EntryPrice            float64   `json:"entry_price"` // SOL per token at open
	Quantity              float64   `json:"quantity"`    // whole tokens
	LastObservedPrice     float64   `json:"last_observed_price"`
	Decimals              uint8     `json:"decimals"`
	PartialTakeProfitDone bool      `json:"partial_tp_done"`
	CapitalInvested       float64   `json:"capital_invested"` // SOL not yet recovered
	OpenedAt              time.Time `json:"opened_at"`
	SellFailures          int       `json:"sell_failures"`
}

// State derives the exit-ladder state from the position's flags.
func (p *Position) State() PositionState {
	if p.PartialTakeProfitDone {
		return StatePartialTPDone
	}
	return StateHolding
}

// RawQuantity converts the held quantity back to base units.
func (p *Position) RawQuantity() uint64 {
	return uint64(p.Quantity * pow10(p.Decimals))
}

func pow10(d uint8) float64 {
	v := 1.0
	for i := uint8(0); i < d; i++ {
		v *= 10
	}
	return v
}

// PurchaseRecord survives restarts. AttemptCount only grows until a final
// exit resets it; LastEntryPrice backs the monotonic re-entry guard.
type PurchaseRecord struct {
	AttemptCount   int     `json:"attempt_count"`
	LastEntryPrice float64 `json:"last_entry_price"`
}

// Candidate is one screened pair, alive for a single screening pass.
type Candidate struct {
	Mint         string
	Symbol       string
	LiquidityUSD float64
	Volume24h    float64
	PairAge      time.Duration
	PriceNative  float64 // SOL per token as reported by the feed
	TokensPerSOL float64 // quoted return per SOL, ranking key in SelectBest
}

// Pair is one entry from the market-data feed.
type Pair struct {
	ChainID       string  `json:"chainId"`
	DexID         string  `json:"dexId"`
	PairAddress   string  `json:"pairAddress"`
	BaseMint      string  `json:"-"`
	BaseSymbol    string  `json:"-"`
	QuoteMint     string  `json:"-"`
	PriceNative   float64 `json:"-"`
	PriceUsd      float64 `json:"-"`
	FDV           float64 `json:"fdv"`
	Volume24h     float64 `json:"-"`
	LiquidityUSD  float64 `json:"-"`
	PairCreatedAt int64   `json:"pairCreatedAt"` // unix ms
}

// Age returns how long ago the pair was created.
func (p *Pair) Age(now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(p.PairCreatedAt))
}

// Quote is a priced route from the swap collaborator. Amounts are base units
// of the respective mints.
type Quote struct {
	InputMint  string `json:"inputMint"`
	OutputMint string `json:"outputMint"`
	InAmount   uint64 `json:"-"`
	OutAmount  uint64 `json:"-"`
	Raw        []byte `json:"-"` // verbatim response, echoed back when building the swap
}

// TradeRecord is one confirmed fill, persisted and published.
type TradeRecord struct {
	Mint        string  `json:"mint"`
	Symbol      string  `json:"symbol,omitempty"`
	Side        string  `json:"side"` // "buy" | "sell"
	SOLAmount   float64 `json:"sol_amount"`
	TokenAmount float64 `json:"token_amount"`
	Price       float64 `json:"price"` // SOL per token
	Signature   string  `json:"signature"`
	Reason      string  `json:"reason,omitempty"`  // exit reason for sells
	PnLPct      float64 `json:"pnl_pct,omitempty"` // vs entry price, sells only
	Timestamp   int64   `json:"ts_ms"`
}
