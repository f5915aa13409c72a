package port

import (
	"context"

	"solcycle/internal/domain/model"
)

// SwapClient is the quote/build boundary of the swap aggregator.
type SwapClient interface {
	// Quote prices an exact-in swap. Amount is base units of inputMint.
	Quote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*model.Quote, error)

	// BuildSwap turns a quote into an unsigned base64 transaction template
	// for the given wallet, carrying the requested priority fee in lamports.
	BuildSwap(ctx context.Context, quote *model.Quote, wallet string, priorityFeeLamports uint64) (txBase64 string, err error)
}

// MarketData is the bulk discovery feed.
type MarketData interface {
	SearchPairs(ctx context.Context, query string) ([]model.Pair, error)
}
