package service

import (
	"math"
	"time"

	"solcycle/internal/domain/model"
)

// Policy decides, once per cycle and per position, whether to hold, scale
// out, or exit. It is a priority cascade: liveness and stop-loss win over
// any profit-taking rule, and partial-exit eligibility depends on the state
// the position is already in.
type Policy struct {
	StopLossGrowth    float64       // full exit at or below this growth
	InitialTakeProfit float64       // growth that triggers the first partial sell
	ScaleOutGrowth    float64       // growth that allows further scale-outs
	StagnationFloor   float64       // below this growth a post-TP position is stagnant
	ScaleOutFraction  float64       // fixed fraction sold on each scale-out
	MaxHold           time.Duration // liveness cap on holding time
}

// DefaultPolicy mirrors the engine's stock exit ladder.
func DefaultPolicy() *Policy {
	return &Policy{
		StopLossGrowth:    0.5,
		InitialTakeProfit: 1.3,
		ScaleOutGrowth:    1.5,
		StagnationFloor:   1.15,
		ScaleOutFraction:  0.25,
		MaxHold:           6 * time.Hour,
	}
}

// Evaluate returns the action for one position. priceOK is false when the
// oracle had no usable price; forcedLiquidation is set when wallet capital
// fell below the critical floor and overrides everything.
func (p *Policy) Evaluate(pos *model.Position, price float64, priceOK bool, now time.Time, forcedLiquidation bool) model.Decision {
	if forcedLiquidation {
		return sellAll(model.ExitForcedLiquidation)
	}
	if !priceOK {
		return sellAll(model.ExitPriceUnavailable)
	}
	if now.Sub(pos.OpenedAt) > p.MaxHold {
		return sellAll(model.ExitMaxHold)
	}

	growth := price / pos.EntryPrice

	if growth <= p.StopLossGrowth {
		return sellAll(model.ExitStopLoss)
	}

	// Momentum relative to the previous observation. A non-positive last
	// price means no baseline yet, which counts as accelerating.
	growthVsLast := math.Inf(1)
	if pos.LastObservedPrice > 0 {
		growthVsLast = (price - pos.LastObservedPrice) / pos.LastObservedPrice
	}

	switch pos.State() {
	case model.StateHolding:
		if growth >= p.InitialTakeProfit {
			// Sell exactly enough to recover the remaining invested
			// capital, leaving the rest to ride for free.
			fraction := pos.CapitalInvested / (price * pos.Quantity)
			if fraction > 1 {
				fraction = 1
			}
			return model.Decision{
				Kind:     model.ActionSellPartial,
				Fraction: fraction,
				Reason:   model.ExitPartialTakeProfit,
				NewState: model.StatePartialTPDone,
			}
		}

	case model.StatePartialTPDone, model.StateScaling:
		if growth >= p.ScaleOutGrowth && growthVsLast > 0 {
			return model.Decision{
				Kind:     model.ActionSellPartial,
				Fraction: p.ScaleOutFraction,
				Reason:   model.ExitScaleOut,
				NewState: model.StateScaling,
			}
		}
		if growthVsLast <= 0 || growth < p.StagnationFloor {
			return sellAll(model.ExitStagnant)
		}
	}

	return model.Decision{Kind: model.ActionNone}
}

func sellAll(reason model.ExitReason) model.Decision {
	return model.Decision{Kind: model.ActionSellAll, Fraction: 1, Reason: reason}
}
