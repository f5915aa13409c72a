package port

import (
	"context"
	"time"
)

// TokenAccount is one SPL token account owned by the wallet.
type TokenAccount struct {
	Mint      string
	RawAmount uint64
}

// ChainClient is the RPC boundary. All amounts are raw base units
// (lamports for SOL, 10^-decimals tokens otherwise).
type ChainClient interface {
	WalletAddress() string

	Balance(ctx context.Context) (lamports uint64, err error)
	TokenBalance(ctx context.Context, mint string) (raw uint64, exists bool, err error)
	TokenAccounts(ctx context.Context) ([]TokenAccount, error)
	TokenDecimals(ctx context.Context, mint string) (uint8, error)

	LatestBlockhash(ctx context.Context) (hash string, lastValidHeight uint64, err error)
	RecentPriorityFees(ctx context.Context) ([]uint64, error)

	// SignAndSubmit signs the base64 transaction template with the wallet
	// key and submits it. It does not wait for confirmation.
	SignAndSubmit(ctx context.Context, txBase64 string) (signature string, err error)

	// Confirm polls for an explicit confirmation until timeout or until the
	// transaction's blockhash expires past lastValidHeight. A timeout is an
	// error, never a silent success.
	Confirm(ctx context.Context, signature string, lastValidHeight uint64, timeout time.Duration) error
}
