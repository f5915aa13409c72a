package swap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"solcycle/internal/application/port"
	"solcycle/internal/domain/model"
	"solcycle/internal/infrastructure/ratelimit"
)

const (
	defaultQuoteURL = "https://api.jup.ag/swap/v1/quote"
	defaultSwapURL  = "https://api.jup.ag/swap/v1/swap"
)

// Client speaks the Jupiter v1 quote/swap API. Every request passes through
// the shared pacer before hitting the wire.
type Client struct {
	httpClient *http.Client
	quoteURL   string
	swapURL    string
	pacer      *ratelimit.Pacer
}

func New(quoteURL, swapURL string, pacer *ratelimit.Pacer) *Client {
	if quoteURL == "" {
		quoteURL = defaultQuoteURL
	}
	if swapURL == "" {
		swapURL = defaultSwapURL
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		quoteURL: quoteURL,
		swapURL:  swapURL,
		pacer:    pacer,
	}
}

type quoteResponse struct {
	InputMint  string `json:"inputMint"`
	OutputMint string `json:"outputMint"`
	InAmount   string `json:"inAmount"`
	OutAmount  string `json:"outAmount"`
	Error      string `json:"error"`
}

func (c *Client) Quote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*model.Quote, error) {
	if err := c.pacer.Wait(ctx); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s?inputMint=%s&outputMint=%s&amount=%d&slippageBps=%d&swapMode=ExactIn",
		c.quoteURL, inputMint, outputMint, amount, slippageBps)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("quote request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("quote read: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quote http %d: %s", resp.StatusCode, truncate(body))
	}

	var qr quoteResponse
	if err := json.Unmarshal(body, &qr); err != nil {
		return nil, fmt.Errorf("quote decode: %w", err)
	}
	if qr.Error != "" {
		return nil, fmt.Errorf("quote error: %s", qr.Error)
	}

	in, _ := strconv.ParseUint(qr.InAmount, 10, 64)
	out, _ := strconv.ParseUint(qr.OutAmount, 10, 64)
	return &model.Quote{
		InputMint:  qr.InputMint,
		OutputMint: qr.OutputMint,
		InAmount:   in,
		OutAmount:  out,
		Raw:        body,
	}, nil
}

type swapRequest struct {
	QuoteResponse             json.RawMessage `json:"quoteResponse"`
	UserPublicKey             string          `json:"userPublicKey"`
	WrapAndUnwrapSol          bool            `json:"wrapAndUnwrapSol"`
	DynamicComputeUnitLimit   bool            `json:"dynamicComputeUnitLimit"`
	PrioritizationFeeLamports uint64          `json:"prioritizationFeeLamports"`
}

type swapResponse struct {
	SwapTransaction string `json:"swapTransaction"`
	Error           string `json:"error"`
}

func (c *Client) BuildSwap(ctx context.Context, quote *model.Quote, wallet string, priorityFeeLamports uint64) (string, error) {
	if err := c.pacer.Wait(ctx); err != nil {
		return "", err
	}

	payload, err := json.Marshal(swapRequest{
		QuoteResponse:             quote.Raw,
		UserPublicKey:             wallet,
		WrapAndUnwrapSol:          true,
		DynamicComputeUnitLimit:   true,
		PrioritizationFeeLamports: priorityFeeLamports,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.swapURL, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("swap request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("swap read: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("swap http %d: %s", resp.StatusCode, truncate(body))
	}

	var sr swapResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return "", fmt.Errorf("swap decode: %w", err)
	}
	if sr.Error != "" {
		return "", fmt.Errorf("swap error: %s", sr.Error)
	}
	if sr.SwapTransaction == "" {
		return "", fmt.Errorf("no swapTransaction in response")
	}
	return sr.SwapTransaction, nil
}

func truncate(b []byte) string {
	const max = 256
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}

var _ port.SwapClient = (*Client)(nil)
