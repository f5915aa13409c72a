package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"solcycle/internal/domain/model"
)

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	repo, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create repo: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteRepoMigrateCreatesSchema(t *testing.T) {
	repo := newTestRepo(t)

	rows, err := repo.GetDB().QueryContext(context.Background(),
		`SELECT name FROM sqlite_master WHERE type = 'table'`)
	if err != nil {
		t.Fatalf("schema query failed: %v", err)
	}
	defer rows.Close()

	tables := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("scan failed: %v", err)
		}
		tables[name] = true
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows failed: %v", err)
	}
	for _, want := range []string{"positions", "purchases", "decimals", "blocklist", "cooldowns", "trades"} {
		if !tables[want] {
			t.Errorf("table %q missing after migrate", want)
		}
	}
}

func TestSQLiteRepoPositionRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	opened := time.Now().Truncate(time.Millisecond)
	pos := model.Position{
		Mint:                  "MintAAA",
		Symbol:                "AAA",
		EntryPrice:            0.0005,
		Quantity:              120000,
		LastObservedPrice:     0.0006,
		Decimals:              6,
		PartialTakeProfitDone: true,
		CapitalInvested:       0.04,
		OpenedAt:              opened,
		SellFailures:          1,
	}
	if err := repo.UpsertPosition(ctx, pos); err != nil {
		t.Fatalf("UpsertPosition failed: %v", err)
	}

	got, err := repo.LoadPositions(ctx)
	if err != nil {
		t.Fatalf("LoadPositions failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 position, got %d", len(got))
	}
	p := got[0]
	if p.Mint != pos.Mint || p.EntryPrice != pos.EntryPrice || p.Quantity != pos.Quantity {
		t.Errorf("position fields mismatch: %+v", p)
	}
	if !p.PartialTakeProfitDone || p.SellFailures != 1 {
		t.Errorf("flags lost on round trip: %+v", p)
	}
	if !p.OpenedAt.Equal(opened) {
		t.Errorf("opened_at mismatch: want %v got %v", opened, p.OpenedAt)
	}

	if err := repo.DeletePosition(ctx, pos.Mint); err != nil {
		t.Fatalf("DeletePosition failed: %v", err)
	}
	got, _ = repo.LoadPositions(ctx)
	if len(got) != 0 {
		t.Errorf("expected 0 positions after delete, got %d", len(got))
	}
}

func TestSQLiteRepoUpsertIsIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	pos := model.Position{Mint: "MintBBB", EntryPrice: 1, Quantity: 10, Decimals: 9, CapitalInvested: 0.05, OpenedAt: time.Now()}
	if err := repo.UpsertPosition(ctx, pos); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}
	pos.Quantity = 5
	if err := repo.UpsertPosition(ctx, pos); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	got, _ := repo.LoadPositions(ctx)
	if len(got) != 1 {
		t.Fatalf("expected single row, got %d", len(got))
	}
	if got[0].Quantity != 5 {
		t.Errorf("expected updated quantity 5, got %v", got[0].Quantity)
	}
}

func TestSQLiteRepoPurchases(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.UpsertPurchase(ctx, "MintCCC", model.PurchaseRecord{AttemptCount: 2, LastEntryPrice: 0.001}); err != nil {
		t.Fatalf("UpsertPurchase failed: %v", err)
	}
	purchases, err := repo.LoadPurchases(ctx)
	if err != nil {
		t.Fatalf("LoadPurchases failed: %v", err)
	}
	rec, ok := purchases["MintCCC"]
	if !ok {
		t.Fatal("purchase record missing")
	}
	if rec.AttemptCount != 2 || rec.LastEntryPrice != 0.001 {
		t.Errorf("unexpected record: %+v", rec)
	}
}

func TestSQLiteRepoBlocklistAndCooldowns(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	at := time.Now().Truncate(time.Millisecond)
	if err := repo.UpsertBlock(ctx, "MintDDD", at); err != nil {
		t.Fatalf("UpsertBlock failed: %v", err)
	}
	if err := repo.UpsertCooldown(ctx, "MintEEE", at); err != nil {
		t.Fatalf("UpsertCooldown failed: %v", err)
	}

	blocks, _ := repo.LoadBlocklist(ctx)
	if got := blocks["MintDDD"]; !got.Equal(at) {
		t.Errorf("block time mismatch: want %v got %v", at, got)
	}
	cooldowns, _ := repo.LoadCooldowns(ctx)
	if got := cooldowns["MintEEE"]; !got.Equal(at) {
		t.Errorf("cooldown time mismatch: want %v got %v", at, got)
	}

	if err := repo.DeleteBlock(ctx, "MintDDD"); err != nil {
		t.Fatalf("DeleteBlock failed: %v", err)
	}
	if err := repo.DeleteCooldown(ctx, "MintEEE"); err != nil {
		t.Fatalf("DeleteCooldown failed: %v", err)
	}
	blocks, _ = repo.LoadBlocklist(ctx)
	cooldowns, _ = repo.LoadCooldowns(ctx)
	if len(blocks) != 0 || len(cooldowns) != 0 {
		t.Errorf("expected empty maps after delete, got %d blocks %d cooldowns", len(blocks), len(cooldowns))
	}
}

func TestSQLiteRepoDecimals(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.UpsertDecimals(ctx, "MintFFF", 6); err != nil {
		t.Fatalf("UpsertDecimals failed: %v", err)
	}
	decimals, err := repo.LoadDecimals(ctx)
	if err != nil {
		t.Fatalf("LoadDecimals failed: %v", err)
	}
	if decimals["MintFFF"] != 6 {
		t.Errorf("expected 6 decimals, got %d", decimals["MintFFF"])
	}
}

func TestSQLiteRepoTradeStats(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	trades := []model.TradeRecord{
		{Mint: "M1", Side: "buy", SOLAmount: 0.05, Timestamp: 1},
		{Mint: "M1", Side: "sell", SOLAmount: 0.03, PnLPct: 35, Timestamp: 2},
		{Mint: "M2", Side: "sell", SOLAmount: 0.02, PnLPct: -50, Timestamp: 3},
	}
	for _, tr := range trades {
		if err := repo.InsertTrade(ctx, tr); err != nil {
			t.Fatalf("InsertTrade failed: %v", err)
		}
	}

	stats, err := repo.TradeStats(ctx)
	if err != nil {
		t.Fatalf("TradeStats failed: %v", err)
	}
	if stats.Trades != 2 {
		t.Errorf("expected 2 sell trades, got %d", stats.Trades)
	}
	if stats.Wins != 1 {
		t.Errorf("expected 1 win, got %d", stats.Wins)
	}
	if stats.NetPnL != -15 {
		t.Errorf("expected net pnl -15, got %v", stats.NetPnL)
	}
}
