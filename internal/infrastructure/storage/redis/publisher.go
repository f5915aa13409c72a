package redis

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/redis/go-redis/v9"

	"solcycle/internal/application/port"
	"solcycle/internal/domain/model"
)

// Publisher pushes confirmed trades onto a Redis stream and a pub/sub
// channel so external consumers can tail either.
type Publisher struct {
	rdb         *redis.Client
	tradeStream string
	tradeChan   string
}

func New(rdb *redis.Client, prefix, tradeStream, tradeChan string) *Publisher {
	if strings.TrimSpace(tradeStream) == "" {
		tradeStream = prefix + ":trades"
	}
	if strings.TrimSpace(tradeChan) == "" {
		tradeChan = prefix + ":trades:pub"
	}
	return &Publisher{
		rdb:         rdb,
		tradeStream: tradeStream,
		tradeChan:   tradeChan,
	}
}

func (p *Publisher) PublishTrade(ctx context.Context, t model.TradeRecord) error {
	payload, _ := json.Marshal(t)

	// 1) Stream: XADD <stream> * mint side ... payload
	_, err := p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: p.tradeStream,
		Values: map[string]any{
			"ts_ms":      t.Timestamp,
			"mint":       t.Mint,
			"side":       t.Side,
			"sol_amount": t.SOLAmount,
			"payload":    string(payload),
		},
	}).Result()
	if err != nil {
		return err
	}

	// 2) PubSub: PUBLISH <channel> json
	return p.rdb.Publish(ctx, p.tradeChan, string(payload)).Err()
}

func (p *Publisher) Close() error {
	return p.rdb.Close()
}

var _ port.EventPublisher = (*Publisher)(nil)
