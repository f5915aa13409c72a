package service

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"solcycle/internal/domain/model"
)

func testLedgerConfig() LedgerConfig {
	return LedgerConfig{
		DustThreshold:   1e-6,
		BlockTimeout:    24 * time.Hour,
		CooldownTimeout: 12 * time.Hour,
		PriceFailureCap: 5,
		BuyFailureCap:   3,
	}
}

func TestLedgerOpenPersistsAndBumpsAttempts(t *testing.T) {
	repo := newFakeRepo()
	chain := newFakeChain()
	l := NewLedger(repo, chain, testLedgerConfig())

	ctx := context.Background()
	if err := l.Open(ctx, "MintA", "AAA", 1000, 0.0001, 0.1, 6, time.Now()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	pos, ok := l.Position("MintA")
	if !ok {
		t.Fatal("position missing after open")
	}
	if pos.Quantity != 1000 || pos.EntryPrice != 0.0001 || pos.CapitalInvested != 0.1 {
		t.Errorf("unexpected position: %+v", pos)
	}
	if _, stored := repo.positions["MintA"]; !stored {
		t.Error("position not written through to repo")
	}
	if got := l.Purchase("MintA"); got.AttemptCount != 1 || got.LastEntryPrice != 0.0001 {
		t.Errorf("purchase record not updated: %+v", got)
	}

	// Re-opening after a close keeps counting attempts.
	if err := l.Close(ctx, "MintA"); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	l.EvictExpired(ctx, time.Now().Add(25*time.Hour))
	if err := l.Open(ctx, "MintA", "AAA", 900, 0.0002, 0.1, 6, time.Now()); err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if got := l.Purchase("MintA"); got.AttemptCount != 1 {
		t.Errorf("attempt count after close+reopen = %d, want 1", got.AttemptCount)
	}
}

func TestLedgerOpenClearsBlocklist(t *testing.T) {
	repo := newFakeRepo()
	l := NewLedger(repo, newFakeChain(), testLedgerConfig())
	ctx := context.Background()

	if err := l.Block(ctx, "MintB", "test"); err != nil {
		t.Fatalf("Block failed: %v", err)
	}
	if !l.IsBlocked("MintB") {
		t.Fatal("expected blocked")
	}
	if err := l.Open(ctx, "MintB", "BBB", 10, 1, 0.05, 9, time.Now()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if l.IsBlocked("MintB") {
		t.Error("open must clear the blocklist entry")
	}
	if _, ok := repo.blocklist["MintB"]; ok {
		t.Error("blocklist entry not removed from repo")
	}
}

func TestLedgerCloseLeavesCooldownAndBlock(t *testing.T) {
	repo := newFakeRepo()
	l := NewLedger(repo, newFakeChain(), testLedgerConfig())
	ctx := context.Background()

	if err := l.Open(ctx, "MintC", "CCC", 50, 0.01, 0.5, 9, time.Now()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := l.Close(ctx, "MintC"); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, held := l.Position("MintC"); held {
		t.Error("position survived close")
	}
	if !l.InCooldown("MintC") {
		t.Error("close must start the sold cooldown")
	}
	if !l.IsBlocked("MintC") {
		t.Error("close must block the asset")
	}
	if got := l.Purchase("MintC"); got.AttemptCount != 0 {
		t.Errorf("attempt count after close = %d, want 0", got.AttemptCount)
	}
	if got := l.Purchase("MintC"); got.LastEntryPrice != 0.01 {
		t.Errorf("entry-price memory lost on close: %v", got.LastEntryPrice)
	}
}

func TestLedgerReduceShrinksCapitalAndClearsFailures(t *testing.T) {
	repo := newFakeRepo()
	l := NewLedger(repo, newFakeChain(), testLedgerConfig())
	ctx := context.Background()

	if err := l.Open(ctx, "MintD", "DDD", 100, 0.001, 0.1, 9, time.Now()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	l.NoteSellFailure(ctx, "MintD")
	l.NoteSellFailure(ctx, "MintD")

	if err := l.Reduce(ctx, "MintD", 60, 0.06, true); err != nil {
		t.Fatalf("Reduce failed: %v", err)
	}
	pos, _ := l.Position("MintD")
	if pos.Quantity != 60 {
		t.Errorf("quantity = %v, want 60", pos.Quantity)
	}
	if math.Abs(pos.CapitalInvested-0.04) > 1e-9 {
		t.Errorf("capital = %v, want 0.04", pos.CapitalInvested)
	}
	if !pos.PartialTakeProfitDone {
		t.Error("tp flag not set")
	}
	if pos.SellFailures != 0 {
		t.Errorf("sell failures = %d, want 0 after confirmed reduce", pos.SellFailures)
	}

	// Recovering more than invested floors at zero.
	if err := l.Reduce(ctx, "MintD", 30, 1.0, false); err != nil {
		t.Fatalf("Reduce failed: %v", err)
	}
	pos, _ = l.Position("MintD")
	if pos.CapitalInvested != 0 {
		t.Errorf("capital = %v, want 0 floor", pos.CapitalInvested)
	}
}

func TestLedgerReduceToDustCloses(t *testing.T) {
	repo := newFakeRepo()
	l := NewLedger(repo, newFakeChain(), testLedgerConfig())
	ctx := context.Background()

	if err := l.Open(ctx, "MintE", "EEE", 100, 0.001, 0.1, 9, time.Now()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := l.Reduce(ctx, "MintE", 1e-9, 0.1, false); err != nil {
		t.Fatalf("Reduce failed: %v", err)
	}
	if _, held := l.Position("MintE"); held {
		t.Error("dust reduction must close the position")
	}
	if !l.IsBlocked("MintE") || !l.InCooldown("MintE") {
		t.Error("dust close must behave as a full close")
	}
}

func TestLedgerReconcileTrustsChain(t *testing.T) {
	repo := newFakeRepo()
	chain := newFakeChain()
	l := NewLedger(repo, chain, testLedgerConfig())
	ctx := context.Background()

	if err := l.Open(ctx, "MintF", "FFF", 100, 0.001, 0.1, 6, time.Now()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	// Chain says 80 tokens at 6 decimals.
	chain.balances["MintF"] = 80_000_000

	if err := l.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	pos, _ := l.Position("MintF")
	if pos.Quantity != 80 {
		t.Errorf("quantity = %v, want chain-corrected 80", pos.Quantity)
	}

	// Reconcile is idempotent once in agreement.
	writes := repo.positionWrites
	if err := l.Reconcile(ctx); err != nil {
		t.Fatalf("second Reconcile failed: %v", err)
	}
	if repo.positionWrites != writes {
		t.Error("agreeing reconcile must not write")
	}
}

func TestLedgerReconcileClosesVanishedPosition(t *testing.T) {
	repo := newFakeRepo()
	chain := newFakeChain()
	l := NewLedger(repo, chain, testLedgerConfig())
	ctx := context.Background()

	if err := l.Open(ctx, "MintG", "GGG", 100, 0.001, 0.1, 6, time.Now()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	// No chain balance at all.
	if err := l.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if _, held := l.Position("MintG"); held {
		t.Error("vanished balance must close the position")
	}
}

func TestLedgerEvictExpired(t *testing.T) {
	repo := newFakeRepo()
	l := NewLedger(repo, newFakeChain(), testLedgerConfig())
	ctx := context.Background()

	if err := l.Block(ctx, "MintH", "test"); err != nil {
		t.Fatalf("Block failed: %v", err)
	}
	blockedAt := l.blocklist["MintH"]

	l.EvictExpired(ctx, blockedAt.Add(23*time.Hour))
	if !l.IsBlocked("MintH") {
		t.Error("evicted before the timeout")
	}
	l.EvictExpired(ctx, blockedAt.Add(25*time.Hour))
	if l.IsBlocked("MintH") {
		t.Error("entry survived past the timeout")
	}
	if _, ok := repo.blocklist["MintH"]; ok {
		t.Error("eviction not written through")
	}
}

func TestLedgerQuoteFailureEscalatesToBlock(t *testing.T) {
	repo := newFakeRepo()
	l := NewLedger(repo, newFakeChain(), testLedgerConfig())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		blocked, err := l.NoteQuoteFailure(ctx, "MintI")
		if err != nil {
			t.Fatalf("NoteQuoteFailure failed: %v", err)
		}
		if blocked {
			t.Fatalf("blocked after %d failures, cap is 5", i+1)
		}
	}
	blocked, err := l.NoteQuoteFailure(ctx, "MintI")
	if err != nil {
		t.Fatalf("NoteQuoteFailure failed: %v", err)
	}
	if !blocked {
		t.Error("5th failure must block")
	}
	if !l.IsBlocked("MintI") {
		t.Error("blocklist entry missing after escalation")
	}
}

func TestLedgerBlockWhileHeldCloses(t *testing.T) {
	repo := newFakeRepo()
	l := NewLedger(repo, newFakeChain(), testLedgerConfig())
	ctx := context.Background()

	if err := l.Open(ctx, "MintJ", "JJJ", 10, 1, 0.05, 9, time.Now()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := l.Block(ctx, "MintJ", "test"); err != nil {
		t.Fatalf("Block failed: %v", err)
	}
	if _, held := l.Position("MintJ"); held {
		t.Error("blocking a held asset must drop the position")
	}
	if !l.IsBlocked("MintJ") || !l.InCooldown("MintJ") {
		t.Error("blocking a held asset must leave block and cooldown")
	}
}

func TestLedgerLoadRestoresState(t *testing.T) {
	repo := newFakeRepo()
	repo.positions["MintK"] = model.Position{Mint: "MintK", Quantity: 5, EntryPrice: 1, Decimals: 9, CapitalInvested: 0.05, OpenedAt: time.Now()}
	repo.purchases["MintK"] = model.PurchaseRecord{AttemptCount: 2, LastEntryPrice: 1}
	repo.blocklist["MintL"] = time.Now()
	repo.cooldowns["MintM"] = time.Now()

	l := NewLedger(repo, newFakeChain(), testLedgerConfig())
	if err := l.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if l.Count() != 1 {
		t.Errorf("count = %d, want 1", l.Count())
	}
	if !l.IsBlocked("MintL") || !l.InCooldown("MintM") {
		t.Error("blocklist or cooldowns not restored")
	}
	if l.Purchase("MintK").AttemptCount != 2 {
		t.Error("purchase records not restored")
	}
}

func TestLedgerAbsorbUntrackedAdoptsWalletBalance(t *testing.T) {
	repo := newFakeRepo()
	chain := newFakeChain()
	chain.balances["MintU"] = 80_000_000
	chain.decimals["MintU"] = 6
	oracle := NewOracle(&fakeSwap{}, chain, repo, testOracleConfig())
	l := NewLedger(repo, chain, testLedgerConfig())
	ctx := context.Background()

	// A confirmed fill whose ledger write was lost looks exactly like
	// this: tokens in the wallet, nothing tracked.
	if err := l.AbsorbUntracked(ctx, oracle); err != nil {
		t.Fatalf("AbsorbUntracked failed: %v", err)
	}

	pos, ok := l.Position("MintU")
	if !ok {
		t.Fatal("untracked balance not adopted")
	}
	if pos.Quantity != 80 {
		t.Errorf("quantity = %v, want 80", pos.Quantity)
	}
	if pos.EntryPrice != 0.001 {
		t.Errorf("entry price = %v, want current oracle price 0.001", pos.EntryPrice)
	}
	if math.Abs(pos.CapitalInvested-0.08) > 1e-9 {
		t.Errorf("capital = %v, want 0.08", pos.CapitalInvested)
	}
	if got := l.Purchase("MintU"); got.AttemptCount != 0 {
		t.Errorf("adoption spent a buy attempt: %d", got.AttemptCount)
	}
	if _, ok := repo.positions["MintU"]; !ok {
		t.Error("adopted position not persisted")
	}

	// A second scan must not re-adopt or rewrite.
	writes := repo.positionWrites
	if err := l.AbsorbUntracked(ctx, oracle); err != nil {
		t.Fatalf("second AbsorbUntracked failed: %v", err)
	}
	if repo.positionWrites != writes {
		t.Errorf("tracked balance re-adopted: %d extra writes", repo.positionWrites-writes)
	}
}

func TestLedgerAbsorbUntrackedSkipsBlockedAndUnpriced(t *testing.T) {
	repo := newFakeRepo()
	chain := newFakeChain()
	chain.balances["MintBlocked"] = 10_000_000
	chain.decimals["MintBlocked"] = 6
	chain.balances["MintNoPrice"] = 10_000_000
	chain.decimals["MintNoPrice"] = 6
	swap := &fakeSwap{quoteFn: func(inputMint, outputMint string, amount uint64) (*model.Quote, error) {
		if inputMint == "MintNoPrice" {
			return nil, errors.New("no route")
		}
		return &model.Quote{InputMint: inputMint, OutputMint: outputMint, InAmount: amount, OutAmount: amount}, nil
	}}
	oracle := NewOracle(swap, chain, repo, testOracleConfig())
	l := NewLedger(repo, chain, testLedgerConfig())
	l.blocklist["MintBlocked"] = time.Now()

	if err := l.AbsorbUntracked(context.Background(), oracle); err != nil {
		t.Fatalf("AbsorbUntracked failed: %v", err)
	}
	if l.Count() != 0 {
		t.Errorf("adopted %d positions, want 0", l.Count())
	}
	if !l.IsBlocked("MintBlocked") {
		t.Error("scan cleared an active block")
	}
}
