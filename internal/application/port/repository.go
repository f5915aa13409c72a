package port

import (
	"context"
	"time"

	"solcycle/internal/domain/model"
)

// TradeStats summarizes the persisted trade history.
type TradeStats struct {
	Trades int
	Wins   int
	NetPnL float64 // summed sell PnL percent
}

// Repository persists everything that must survive a restart: positions,
// purchase records, the decimals cache, the blocklist, sold cooldowns, and
// the trade log. Loads happen at startup, writes on every mutation.
type Repository interface {
	// Position operations
	LoadPositions(ctx context.Context) ([]model.Position, error)
	UpsertPosition(ctx context.Context, pos model.Position) error
	DeletePosition(ctx context.Context, mint string) error

	// Purchase records
	LoadPurchases(ctx context.Context) (map[string]model.PurchaseRecord, error)
	UpsertPurchase(ctx context.Context, mint string, rec model.PurchaseRecord) error

	// Decimals cache
	LoadDecimals(ctx context.Context) (map[string]uint8, error)
	UpsertDecimals(ctx context.Context, mint string, decimals uint8) error

	// Blocklist and sold cooldowns (mint -> when)
	LoadBlocklist(ctx context.Context) (map[string]time.Time, error)
	UpsertBlock(ctx context.Context, mint string, at time.Time) error
	DeleteBlock(ctx context.Context, mint string) error
	LoadCooldowns(ctx context.Context) (map[string]time.Time, error)
	UpsertCooldown(ctx context.Context, mint string, at time.Time) error
	DeleteCooldown(ctx context.Context, mint string) error

	// Trade log
	InsertTrade(ctx context.Context, t model.TradeRecord) error
	TradeStats(ctx context.Context) (TradeStats, error)

	// Connection management
	Close() error
}

// EventPublisher pushes confirmed trades to external consumers.
type EventPublisher interface {
	PublishTrade(ctx context.Context, t model.TradeRecord) error
	Close() error
}
