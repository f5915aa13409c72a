package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"solcycle/internal/domain/model"
)

func testOracleConfig() OracleConfig {
	return OracleConfig{
		CeilingSOL:      10_000,
		Attempts:        3,
		BackoffBase:     time.Millisecond,
		SnapshotMaxAge:  15 * time.Minute,
		SlippageBps:     300,
		DecimalAttempts: 2,
	}
}

func TestOraclePriceFromQuote(t *testing.T) {
	chain := newFakeChain()
	chain.decimals["MintA"] = 6
	swap := &fakeSwap{quoteFn: func(in, out string, amount uint64) (*model.Quote, error) {
		if in != "MintA" || out != model.WSOLMint {
			t.Errorf("unexpected quote direction %s -> %s", in, out)
		}
		if amount != 1_000_000 {
			t.Errorf("probe amount = %d, want one whole token", amount)
		}
		return &model.Quote{InAmount: amount, OutAmount: 500_000}, nil // 0.0005 SOL
	}}
	o := NewOracle(swap, chain, newFakeRepo(), testOracleConfig())

	price, err := o.Price(context.Background(), "MintA", 100)
	if err != nil {
		t.Fatalf("Price failed: %v", err)
	}
	if price != 0.0005 {
		t.Errorf("price = %v, want 0.0005", price)
	}
}

func TestOraclePriceRejectsImplausible(t *testing.T) {
	chain := newFakeChain()
	chain.decimals["MintB"] = 6
	swap := &fakeSwap{quoteFn: func(in, out string, amount uint64) (*model.Quote, error) {
		// 100 SOL per token: with a million tokens held that is absurd.
		return &model.Quote{InAmount: amount, OutAmount: 100 * model.LamportsPerSOL}, nil
	}}
	o := NewOracle(swap, chain, newFakeRepo(), testOracleConfig())

	_, err := o.Price(context.Background(), "MintB", 1_000_000)
	if !errors.Is(err, ErrPriceUnavailable) {
		t.Errorf("expected ErrPriceUnavailable, got %v", err)
	}
}

func TestOraclePriceFallsBackToSnapshot(t *testing.T) {
	chain := newFakeChain()
	chain.decimals["MintC"] = 6
	swap := &fakeSwap{quoteFn: func(in, out string, amount uint64) (*model.Quote, error) {
		return nil, errors.New("no route")
	}}
	o := NewOracle(swap, chain, newFakeRepo(), testOracleConfig())
	o.NoteSnapshot("MintC", 0.002, 5000, time.Now())

	price, err := o.Price(context.Background(), "MintC", 10)
	if err != nil {
		t.Fatalf("Price failed: %v", err)
	}
	if price != 0.002 {
		t.Errorf("price = %v, want snapshot 0.002", price)
	}
}

func TestOraclePriceStaleSnapshotUnavailable(t *testing.T) {
	chain := newFakeChain()
	chain.decimals["MintD"] = 6
	swap := &fakeSwap{quoteFn: func(in, out string, amount uint64) (*model.Quote, error) {
		return nil, errors.New("no route")
	}}
	o := NewOracle(swap, chain, newFakeRepo(), testOracleConfig())
	o.NoteSnapshot("MintD", 0.002, 5000, time.Now().Add(-time.Hour))

	_, err := o.Price(context.Background(), "MintD", 10)
	if !errors.Is(err, ErrPriceUnavailable) {
		t.Errorf("expected ErrPriceUnavailable for stale snapshot, got %v", err)
	}
}

func TestOracleDecimalsCachesAndPersists(t *testing.T) {
	chain := newFakeChain()
	chain.decimals["MintE"] = 8
	repo := newFakeRepo()
	o := NewOracle(&fakeSwap{}, chain, repo, testOracleConfig())

	if d := o.Decimals(context.Background(), "MintE"); d != 8 {
		t.Errorf("decimals = %d, want 8", d)
	}
	if repo.decimals["MintE"] != 8 {
		t.Error("decimals not persisted")
	}

	// Cache hit must not touch the chain again.
	delete(chain.decimals, "MintE")
	if d := o.Decimals(context.Background(), "MintE"); d != 8 {
		t.Errorf("cached decimals = %d, want 8", d)
	}
}

func TestOracleDecimalsDefaultOnExhaustion(t *testing.T) {
	o := NewOracle(&fakeSwap{}, newFakeChain(), newFakeRepo(), testOracleConfig())
	if d := o.Decimals(context.Background(), "MintUnknown"); d != model.DefaultDecimals {
		t.Errorf("decimals = %d, want default %d", d, model.DefaultDecimals)
	}
}

func TestOracleLoadWarmsCache(t *testing.T) {
	repo := newFakeRepo()
	repo.decimals["MintF"] = 4
	o := NewOracle(&fakeSwap{}, newFakeChain(), repo, testOracleConfig())
	if err := o.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if d := o.Decimals(context.Background(), "MintF"); d != 4 {
		t.Errorf("decimals = %d, want cached 4", d)
	}
}
