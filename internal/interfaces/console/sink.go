package console

import (
	"context"
	"fmt"
	"time"

	"solcycle/internal/application/port"
	"solcycle/internal/domain/model"
)

// Sink prints confirmed trades to stdout, one line per fill. It is the
// default trade consumer when no external publisher is configured.
type Sink struct{}

func NewSink() port.EventPublisher { return &Sink{} }

func (s *Sink) PublishTrade(ctx context.Context, t model.TradeRecord) error {
	ts := time.UnixMilli(t.Timestamp).Format("2006-01-02 15:04:05")
	switch t.Side {
	case "sell":
		fmt.Printf("%s SELL %-8s %.6f SOL  %.4f tokens  pnl %+.1f%%  [%s]  %s\n",
			ts, t.Symbol, t.SOLAmount, t.TokenAmount, t.PnLPct, t.Reason, t.Signature)
	default:
		fmt.Printf("%s BUY  %-8s %.6f SOL  %.4f tokens  %s\n",
			ts, t.Symbol, t.SOLAmount, t.TokenAmount, t.Signature)
	}
	return nil
}

func (s *Sink) Close() error { return nil }
