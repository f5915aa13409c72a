package model

// PositionState tracks where a position sits on the exit ladder.
type PositionState int

const (
	StateHolding PositionState = iota
	StatePartialTPDone
	StateScaling
)

func (s PositionState) String() string {
	switch s {
	case StateHolding:
		return "holding"
	case StatePartialTPDone:
		return "partial_tp_done"
	case StateScaling:
		return "scaling"
	default:
		return "unknown"
	}
}

// ActionKind is what the policy wants done with a position this cycle.
type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionSellPartial
	ActionSellAll
)

// ExitReason explains a sell decision.
type ExitReason int

const (
	ExitNone ExitReason = iota
	ExitStopLoss
	ExitMaxHold
	ExitPriceUnavailable
	ExitStagnant
	ExitPartialTakeProfit
	ExitScaleOut
	ExitForcedLiquidation
	ExitUnsellable
)

func (r ExitReason) String() string {
	switch r {
	case ExitStopLoss:
		return "stop_loss"
	case ExitMaxHold:
		return "max_hold"
	case ExitPriceUnavailable:
		return "price_unavailable"
	case ExitStagnant:
		return "stagnant"
	case ExitPartialTakeProfit:
		return "partial_take_profit"
	case ExitScaleOut:
		return "scale_out"
	case ExitForcedLiquidation:
		return "forced_liquidation"
	case ExitUnsellable:
		return "unsellable"
	default:
		return "none"
	}
}

// Decision is the policy's verdict for one position in one cycle.
type Decision struct {
	Kind     ActionKind
	Fraction float64 // of current quantity, only for sells
	Reason   ExitReason
	NewState PositionState // state after the action succeeds
}

// ExclusionReason says why the screener dropped a pair, decided once at
// filter time rather than reconstructed for logging.
type ExclusionReason int

const (
	ExcludeNone ExclusionReason = iota
	ExcludeWrongChain
	ExcludeWrongQuote
	ExcludeStablecoin
	ExcludeBlocked
	ExcludeCooldown
	ExcludeAlreadyHeld
	ExcludeAttemptCap
	ExcludeExistingBalance
	ExcludeMarketCap
	ExcludeLowVolume
	ExcludeLowLiquidity
	ExcludeTooOld
	ExcludeNoRoute
	ExcludePriceGuard
)

func (r ExclusionReason) String() string {
	switch r {
	case ExcludeWrongChain:
		return "wrong_chain"
	case ExcludeWrongQuote:
		return "wrong_quote_token"
	case ExcludeStablecoin:
		return "stablecoin"
	case ExcludeBlocked:
		return "blocklisted"
	case ExcludeCooldown:
		return "sold_cooldown"
	case ExcludeAlreadyHeld:
		return "already_held"
	case ExcludeAttemptCap:
		return "attempt_cap"
	case ExcludeExistingBalance:
		return "existing_balance"
	case ExcludeMarketCap:
		return "market_cap_band"
	case ExcludeLowVolume:
		return "low_volume"
	case ExcludeLowLiquidity:
		return "low_liquidity"
	case ExcludeTooOld:
		return "too_old"
	case ExcludeNoRoute:
		return "no_route"
	case ExcludePriceGuard:
		return "reentry_price_guard"
	default:
		return "none"
	}
}
