package chain

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"solcycle/internal/application/port"
)

// ErrUnconfirmed means the confirmation window closed without an explicit
// confirmation. The transaction may still land; reconcile absorbs that.
var ErrUnconfirmed = errors.New("transaction not confirmed")

const confirmPollInterval = 2 * time.Second

// Client wraps the Solana JSON-RPC client and the wallet key behind
// port.ChainClient.
type Client struct {
	rpc    *rpc.Client
	wallet solana.PrivateKey
}

func New(rpcURL string, wallet solana.PrivateKey) *Client {
	return &Client{rpc: rpc.New(rpcURL), wallet: wallet}
}

func (c *Client) WalletAddress() string {
	return c.wallet.PublicKey().String()
}

func (c *Client) Balance(ctx context.Context) (uint64, error) {
	out, err := c.rpc.GetBalance(ctx, c.wallet.PublicKey(), rpc.CommitmentConfirmed)
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return out.Value, nil
}

func (c *Client) TokenBalance(ctx context.Context, mint string) (uint64, bool, error) {
	mintKey, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return 0, false, fmt.Errorf("bad mint %s: %w", mint, err)
	}
	out, err := c.rpc.GetTokenAccountsByOwner(
		ctx,
		c.wallet.PublicKey(),
		&rpc.GetTokenAccountsConfig{Mint: &mintKey},
		&rpc.GetTokenAccountsOpts{Commitment: rpc.CommitmentConfirmed},
	)
	if err != nil {
		return 0, false, fmt.Errorf("get token accounts: %w", err)
	}
	if len(out.Value) == 0 {
		return 0, false, nil
	}
	var total uint64
	for _, acc := range out.Value {
		if amount, ok := parseTokenAmount(acc.Account.Data.GetBinary()); ok {
			total += amount
		}
	}
	return total, true, nil
}

func (c *Client) TokenAccounts(ctx context.Context) ([]port.TokenAccount, error) {
	program := solana.TokenProgramID
	out, err := c.rpc.GetTokenAccountsByOwner(
		ctx,
		c.wallet.PublicKey(),
		&rpc.GetTokenAccountsConfig{ProgramId: &program},
		&rpc.GetTokenAccountsOpts{Commitment: rpc.CommitmentConfirmed},
	)
	if err != nil {
		return nil, fmt.Errorf("get token accounts: %w", err)
	}
	accounts := make([]port.TokenAccount, 0, len(out.Value))
	for _, acc := range out.Value {
		data := acc.Account.Data.GetBinary()
		if len(data) < 72 {
			continue
		}
		mint := solana.PublicKeyFromBytes(data[0:32])
		amount, _ := parseTokenAmount(data)
		accounts = append(accounts, port.TokenAccount{Mint: mint.String(), RawAmount: amount})
	}
	return accounts, nil
}

func (c *Client) TokenDecimals(ctx context.Context, mint string) (uint8, error) {
	mintKey, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return 0, fmt.Errorf("bad mint %s: %w", mint, err)
	}
	out, err := c.rpc.GetTokenSupply(ctx, mintKey, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, fmt.Errorf("get token supply: %w", err)
	}
	return out.Value.Decimals, nil
}

func (c *Client) LatestBlockhash(ctx context.Context) (string, uint64, error) {
	out, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return "", 0, fmt.Errorf("get latest blockhash: %w", err)
	}
	return out.Value.Blockhash.String(), out.Value.LastValidBlockHeight, nil
}

func (c *Client) RecentPriorityFees(ctx context.Context) ([]uint64, error) {
	out, err := c.rpc.GetRecentPrioritizationFees(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("get prioritization fees: %w", err)
	}
	fees := make([]uint64, 0, len(out))
	for _, f := range out {
		fees = append(fees, f.PrioritizationFee)
	}
	return fees, nil
}

func (c *Client) SignAndSubmit(ctx context.Context, txBase64 string) (string, error) {
	txBytes, err := base64.StdEncoding.DecodeString(txBase64)
	if err != nil {
		return "", fmt.Errorf("decode transaction: %w", err)
	}
	tx, err := solana.TransactionFromBytes(txBytes)
	if err != nil {
		return "", fmt.Errorf("parse transaction: %w", err)
	}
	_, err = tx.Sign(func(pub solana.PublicKey) *solana.PrivateKey {
		if pub.Equals(c.wallet.PublicKey()) {
			return &c.wallet
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}
	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       true,
		PreflightCommitment: rpc.CommitmentProcessed,
	})
	if err != nil {
		return "", fmt.Errorf("send transaction: %w", err)
	}
	return sig.String(), nil
}

func (c *Client) Confirm(ctx context.Context, signature string, lastValidHeight uint64, timeout time.Duration) error {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return fmt.Errorf("bad signature %s: %w", signature, err)
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		statuses, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
		if err == nil && len(statuses.Value) > 0 && statuses.Value[0] != nil {
			st := statuses.Value[0]
			if st.Err != nil {
				return fmt.Errorf("transaction failed: %v", st.Err)
			}
			if st.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
				st.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return nil
			}
		}

		if lastValidHeight > 0 {
			if height, herr := c.rpc.GetBlockHeight(ctx, rpc.CommitmentConfirmed); herr == nil && height > lastValidHeight {
				return fmt.Errorf("%w: blockhash expired at height %d", ErrUnconfirmed, height)
			}
		}

		timer := time.NewTimer(confirmPollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("%w: timed out after %s", ErrUnconfirmed, timeout)
}

// parseTokenAmount reads the u64 amount field of an SPL token account.
func parseTokenAmount(data []byte) (uint64, bool) {
	if len(data) < 72 {
		return 0, false
	}
	return binary.LittleEndian.Uint64(data[64:72]), true
}

var _ port.ChainClient = (*Client)(nil)
