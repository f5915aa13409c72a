package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer enforces a minimum spacing between outbound calls. One instance is
// shared by every quote and market-data call site, so bursts from
// independent components cannot trip the collaborator's throttling.
type Pacer struct {
	lim *rate.Limiter
}

func New(minInterval time.Duration) *Pacer {
	if minInterval <= 0 {
		return &Pacer{lim: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Pacer{lim: rate.NewLimiter(rate.Every(minInterval), 1)}
}

// Wait blocks until the next call slot or the context ends.
func (p *Pacer) Wait(ctx context.Context) error {
	return p.lim.Wait(ctx)
}
